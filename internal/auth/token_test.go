package auth

import (
	"errors"
	"testing"
	"time"
)

func TestIssueAndParseUserToken(t *testing.T) {
	secret := []byte("secret")
	issued, err := IssueUserToken(secret, Claims{
		Sub:  "user-1",
		Name: "Avery",
		Role: "editor",
		JTI:  "jti-1",
		Exp:  time.Now().Add(time.Hour).Unix(),
	})
	if err != nil {
		t.Fatalf("IssueUserToken() error = %v", err)
	}
	claims, err := ParseUserToken(secret, issued)
	if err != nil {
		t.Fatalf("ParseUserToken() error = %v", err)
	}
	if claims.Sub != "user-1" || claims.Name != "Avery" || claims.Role != "editor" || claims.JTI != "jti-1" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestParseUserTokenRejectsExpired(t *testing.T) {
	secret := []byte("secret")
	issued, err := IssueUserToken(secret, Claims{
		Sub:  "user-1",
		Name: "Avery",
		Role: "editor",
		JTI:  "jti-1",
		Exp:  time.Now().Add(-time.Minute).Unix(),
	})
	if err != nil {
		t.Fatalf("IssueUserToken() error = %v", err)
	}
	if _, err := ParseUserToken(secret, issued); !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("ParseUserToken() error = %v, want ErrExpiredToken", err)
	}
}

func TestParseUserTokenRejectsWrongSecret(t *testing.T) {
	issued, err := IssueUserToken([]byte("secret"), Claims{
		Sub: "user-1", Name: "Avery", Role: "editor", JTI: "jti-1", Exp: time.Now().Add(time.Hour).Unix(),
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ParseUserToken([]byte("other"), issued); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("ParseUserToken() error = %v, want ErrInvalidToken", err)
	}
	if _, err := ParseUserToken([]byte("secret"), "garbage"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("ParseUserToken(garbage) error = %v", err)
	}
}
