package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrConfiguration means no signing secret is available.
	ErrConfiguration = errors.New("JWT secret not set")
	// ErrSigning means the payload could not be encoded or signed.
	ErrSigning = errors.New("token signing failed")
)

// Signer issues editor access tokens. The secret is resolved on every call and
// never exposed.
type Signer struct {
	secret func() string
	now    func() time.Time
	newID  func() string
}

func NewSigner(secret string) *Signer {
	return &Signer{secret: func() string { return secret }, now: time.Now, newID: uuid.NewString}
}

// NewEnvSigner reads the secret from the environment variable key at issuance.
func NewEnvSigner(key string) *Signer {
	return &Signer{secret: func() string { return os.Getenv(key) }, now: time.Now, newID: uuid.NewString}
}

// Configured reports whether a secret is available.
func (s *Signer) Configured() bool {
	return s.secret() != ""
}

// IssueToken signs payload, which must encode to a JSON object, as HS256 claims.
// Every call yields a distinct token.
func (s *Signer) IssueToken(payload any) (string, error) {
	secret := s.secret()
	if secret == "" {
		return "", ErrConfiguration
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("%w: encode payload: %v", ErrSigning, err)
	}
	claims := jwt.MapClaims{}
	if err := json.Unmarshal(raw, &claims); err != nil {
		return "", fmt.Errorf("%w: payload is not an object", ErrSigning)
	}
	claims["iat"] = s.now().Unix()
	claims["jti"] = s.newID()

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSigning, err)
	}
	return signed, nil
}

// ParseToken verifies token and decodes its payload into into, without the
// iat and jti claims IssueToken adds.
func (s *Signer) ParseToken(token string, into any) error {
	secret := s.secret()
	if secret == "" {
		return ErrConfiguration
	}

	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if errors.Is(err, jwt.ErrTokenExpired) {
		return ErrExpiredToken
	}
	if err != nil {
		return ErrInvalidToken
	}

	delete(claims, "iat")
	delete(claims, "jti")
	raw, err := json.Marshal(claims)
	if err != nil {
		return ErrInvalidToken
	}
	if err := json.Unmarshal(raw, into); err != nil {
		return ErrInvalidToken
	}
	return nil
}
