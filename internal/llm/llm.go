// Package llm talks to hosted language models for document generation and
// review. Each provider is a thin adapter over its official SDK.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	openai "github.com/sashabaranov/go-openai"
	"google.golang.org/genai"

	"docbridge/internal/config"
)

// Generator produces a completion for a system instruction and a user prompt.
type Generator interface {
	GenerateText(ctx context.Context, system, prompt string) (string, error)
}

var (
	// ErrNotConfigured is returned by New when the selected provider has no API key.
	ErrNotConfigured = errors.New("llm provider not configured")
	// ErrRateLimited marks a provider refusal for rate limiting.
	ErrRateLimited = errors.New("llm rate limited")
	// ErrEmptyResponse is returned when a provider answers with no text.
	ErrEmptyResponse = errors.New("llm returned empty response")
)

const (
	defaultAnthropicModel = "claude-sonnet-4-5"
	defaultOpenAIModel    = "gpt-4o"
	defaultGeminiModel    = "gemini-2.5-flash"
)

// New builds the generator selected by cfg.LLMProvider.
func New(cfg config.Config) (Generator, error) {
	model := cfg.LLMModel
	maxTokens := uint32(cfg.LLMMaxTokens)
	temperature := float32(cfg.LLMTemperature)

	switch strings.ToLower(cfg.LLMProvider) {
	case "anthropic", "claude":
		if cfg.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("%w: ANTHROPIC_API_KEY is empty", ErrNotConfigured)
		}
		if model == "" {
			model = defaultAnthropicModel
		}
		return NewAnthropic(cfg.AnthropicAPIKey, model, maxTokens, temperature), nil
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("%w: OPENAI_API_KEY is empty", ErrNotConfigured)
		}
		if model == "" {
			model = defaultOpenAIModel
		}
		return NewOpenAI(cfg.OpenAIAPIKey, model, maxTokens, temperature), nil
	case "gemini", "google":
		if cfg.GeminiAPIKey == "" {
			return nil, fmt.Errorf("%w: GEMINI_API_KEY is empty", ErrNotConfigured)
		}
		if model == "" {
			model = defaultGeminiModel
		}
		return NewGemini(cfg.GeminiAPIKey, model, maxTokens, temperature), nil
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrNotConfigured, cfg.LLMProvider)
	}
}

// IsRateLimited reports whether err is an HTTP 429 from any provider.
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	var anthropicErr *anthropic.Error
	if errors.As(err, &anthropicErr) {
		return anthropicErr.StatusCode == 429
	}
	var openaiErr *openai.APIError
	if errors.As(err, &openaiErr) {
		return openaiErr.HTTPStatusCode == 429
	}
	var requestErr *openai.RequestError
	if errors.As(err, &requestErr) {
		return requestErr.HTTPStatusCode == 429
	}
	var geminiErr genai.APIError
	if errors.As(err, &geminiErr) {
		return geminiErr.Code == 429
	}
	return false
}
