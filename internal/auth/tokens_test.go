package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestTokensRoundTrip(t *testing.T) {
	tokens := NewTokens("s3cret", time.Hour)

	tok, err := tokens.Issue(42)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	id, err := tokens.Parse(tok)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if id != 42 {
		t.Errorf("id = %d, want 42", id)
	}
}

func TestTokensExpired(t *testing.T) {
	tokens := NewTokens("s3cret", time.Minute)
	issued := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	tokens.now = func() time.Time { return issued }

	tok, err := tokens.Issue(42)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	tokens.now = func() time.Time { return issued.Add(2 * time.Minute) }
	if _, err := tokens.Parse(tok); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("err = %v, want ErrInvalidToken", err)
	}
}

func TestTokensWrongSecret(t *testing.T) {
	tok, err := NewTokens("one", time.Hour).Issue(42)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := NewTokens("two", time.Hour).Parse(tok); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("err = %v, want ErrInvalidToken", err)
	}
}

func TestTokensRejectsOtherAlgorithms(t *testing.T) {
	claims := jwt.RegisteredClaims{
		Subject:   "42",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := NewTokens("s3cret", time.Hour).Parse(tok); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("err = %v, want ErrInvalidToken", err)
	}
}

func TestTokensRejectsGarbage(t *testing.T) {
	if _, err := NewTokens("s3cret", time.Hour).Parse("not-a-token"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("err = %v, want ErrInvalidToken", err)
	}
}
