package app

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"docbridge/internal/archive"
	"docbridge/internal/auth"
	"docbridge/internal/blob"
	"docbridge/internal/export"
	"docbridge/internal/review"
	"docbridge/internal/store"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
	logger     *zap.Logger
	files      http.Handler
}

func NewHTTPServer(service *Service, corsOrigin string, logger *zap.Logger) *HTTPServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPServer{service: service, corsOrigin: corsOrigin, logger: logger}
}

// ServeFiles exposes locally stored blobs under /files/.
func (s *HTTPServer) ServeFiles(h http.Handler) {
	s.files = http.StripPrefix("/files/", h)
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := "ready"
		statusCode := http.StatusOK
		checks := map[string]any{
			"database": map[string]any{"status": "ok"},
		}

		if err := s.service.Ping(ctx); err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks["database"] = map[string]any{
				"status": "error",
				"error":  err.Error(),
			}
		}

		writeJSON(w, statusCode, map[string]any{
			"ok":     status == "ready",
			"status": status,
			"checks": checks,
		})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/ws/connector" {
		s.service.Bridge().ServeHTTP(w, r)
		return
	}

	if s.files != nil && (r.Method == http.MethodGet || r.Method == http.MethodHead) && strings.HasPrefix(r.URL.Path, "/files/") {
		w.Header().Del("Content-Type")
		s.files.ServeHTTP(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/onlyoffice/token" {
		s.handleIssueToken(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/onlyoffice/callback" {
		s.handleCallback(w, r)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/suggestions" {
		documentID := strings.TrimSpace(r.URL.Query().Get("documentId"))
		if documentID == "" {
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "documentId is required", nil)
			return
		}
		suggestions, err := s.service.ListSuggestions(r.Context(), documentID)
		if err != nil {
			s.writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, suggestions)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/documents" {
		var body CreateDocumentInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		doc, err := s.service.CreateDocument(r.Context(), body)
		if err != nil {
			s.writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, doc)
		return
	}

	parts := splitPath(r.URL.Path)
	if len(parts) == 3 && parts[0] == "api" && parts[1] == "sessions" && r.Method == http.MethodGet {
		status, err := s.service.SessionStatus(parts[2])
		if err != nil {
			s.writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, status)
		return
	}

	if len(parts) >= 3 && parts[0] == "api" && parts[1] == "documents" {
		s.handleDocuments(w, r, parts[2], parts[3:])
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
}

func (s *HTTPServer) handleDocuments(w http.ResponseWriter, r *http.Request, documentID string, parts []string) {
	switch {
	case len(parts) == 0 && r.Method == http.MethodGet:
		doc, err := s.service.GetDocument(r.Context(), documentID)
		if err != nil {
			s.writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, doc)

	case len(parts) == 1 && parts[0] == "revise" && r.Method == http.MethodPost:
		var body struct {
			Instructions string `json:"instructions"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		doc, err := s.service.ReviseDocument(r.Context(), documentID, body.Instructions)
		if err != nil {
			s.writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, doc)

	case len(parts) == 1 && parts[0] == "export" && r.Method == http.MethodGet:
		result, err := s.service.ExportDocument(r.Context(), documentID, r.URL.Query().Get("format"))
		if err != nil {
			s.writeMappedError(w, err)
			return
		}
		writeFile(w, result)

	case len(parts) == 1 && parts[0] == "history" && r.Method == http.MethodGet:
		limit := 20
		if raw := r.URL.Query().Get("limit"); raw != "" {
			if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
				limit = parsed
			}
		}
		items, err := s.service.History(r.Context(), documentID, limit)
		if err != nil {
			s.writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})

	case len(parts) == 2 && parts[0] == "history" && r.Method == http.MethodGet:
		result, err := s.service.HistoryVersion(r.Context(), documentID, parts[1])
		if err != nil {
			s.writeMappedError(w, err)
			return
		}
		writeFile(w, result)

	case len(parts) == 1 && parts[0] == "session" && r.Method == http.MethodPost:
		user, err := s.service.UserFromToken(bearerToken(r))
		if err != nil {
			s.writeMappedError(w, err)
			return
		}
		var body StartSessionInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		view, err := s.service.StartSession(r.Context(), documentID, user, body)
		if err != nil {
			s.writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, view)

	case len(parts) == 1 && parts[0] == "review" && r.Method == http.MethodPost:
		suggestions, err := s.service.ReviewDocument(r.Context(), documentID)
		if err != nil {
			s.writeReviewError(w, documentID, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"suggestions": suggestions})

	case len(parts) == 3 && parts[0] == "suggestions" && parts[2] == "resolve" && r.Method == http.MethodPost:
		if err := s.service.ResolveSuggestion(r.Context(), documentID, parts[1]); err != nil {
			s.writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
	}
}

// handleIssueToken signs the posted config. Responses use the editor's token
// protocol shapes rather than the API error envelope.
func (s *HTTPServer) handleIssueToken(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if err := decodeBody(r, &body); err != nil || body == nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Invalid JSON"})
		return
	}
	token, err := s.service.IssueToken(body)
	if errors.Is(err, auth.ErrConfiguration) {
		s.logger.Error("token requested without signing secret")
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": auth.ErrConfiguration.Error()})
		return
	}
	if err != nil {
		s.logger.Error("token signing failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "Failed to sign token"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"token": token})
}

func (s *HTTPServer) handleCallback(w http.ResponseWriter, r *http.Request) {
	var body CallbackInput
	if err := decodeBody(r, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": 1, "message": "Invalid JSON"})
		return
	}
	err := s.service.SaveCallback(r.Context(), body)
	if errors.Is(err, archive.ErrInvalidKey) {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": 1, "message": "Invalid key"})
		return
	}
	if err != nil {
		s.logger.Error("save callback failed", zap.String("key", body.Key), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": 1, "message": "Failed to save file"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"error": 0})
}

// writeReviewError keeps the no-text and rate-limit cases apart so the client can
// show a specific message.
func (s *HTTPServer) writeReviewError(w http.ResponseWriter, documentID string, err error) {
	switch {
	case errors.Is(err, review.ErrNoExtractableText):
		writeError(w, http.StatusUnprocessableEntity, "NO_TEXT", "Document has no text to review", nil)
	case errors.Is(err, review.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", "Review is rate limited, try again shortly", nil)
	case errors.Is(err, review.ErrReview):
		s.logger.Warn("document review failed", zap.String("document_id", documentID), zap.Error(err))
		writeError(w, http.StatusBadGateway, "REVIEW_FAILED", "Document review failed", nil)
	default:
		s.writeMappedError(w, err)
	}
}

func (s *HTTPServer) writeMappedError(w http.ResponseWriter, err error) {
	status, code, message, details := mapError(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", zap.String("code", code), zap.Error(err))
	}
	writeError(w, status, code, message, details)
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		s.logger.Info("request",
			zap.String("request_id", requestID),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", writer.status),
			zap.Int64("duration_ms", time.Since(started).Milliseconds()),
		)
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Hijack lets the connector bridge upgrade through the middleware.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return hijacker.Hijack()
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func writeFile(w http.ResponseWriter, result *export.Result) {
	w.Header().Set("Content-Type", result.MimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(result.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Data)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, archive.ErrVersionNotFound):
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	case errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrExpiredToken):
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	case errors.Is(err, auth.ErrConfiguration):
		return http.StatusInternalServerError, "CONFIGURATION_ERROR", auth.ErrConfiguration.Error(), nil
	case errors.Is(err, export.ErrUnsupportedFormat):
		return http.StatusBadRequest, "UNSUPPORTED_FORMAT", "Unsupported export format", nil
	case errors.Is(err, export.ErrPDFDependencyMissing):
		return http.StatusServiceUnavailable, "PDF_UNAVAILABLE", "PDF export is not available on this server", nil
	case errors.Is(err, blob.ErrFetch):
		return http.StatusBadGateway, "FETCH_FAILED", "Could not read the stored document", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
