package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestTokenService_RoundTrip(t *testing.T) {
	s := NewTokenService("test-secret-0123456789", time.Hour)

	token, err := s.Generate("user-1", "ana@example.com", "admin")
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}

	claims, err := s.Parse(token)
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if claims.UserID != "user-1" || claims.Email != "ana@example.com" || claims.Role != "admin" {
		t.Errorf("unexpected claims: %+v", claims)
	}
}

func TestTokenService_Rejects(t *testing.T) {
	s := NewTokenService("test-secret-0123456789", time.Hour)
	other := NewTokenService("another-secret-987654", time.Hour)

	expired := NewTokenService("test-secret-0123456789", time.Hour)
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expiredToken, _ := expired.Generate("user-1", "", "user")

	foreign, _ := other.Generate("user-1", "", "user")
	state, _ := s.GenerateState("user-1", "web")

	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"userId": "user-1",
		"aud":    sessionAudience,
		"exp":    time.Now().Add(time.Hour).Unix(),
	})
	noneToken, _ := none.SignedString(jwt.UnsafeAllowNoneSignatureType)

	tests := []struct {
		name  string
		token string
	}{
		{name: "garbage", token: "not-a-token"},
		{name: "expired", token: expiredToken},
		{name: "wrong secret", token: foreign},
		{name: "state used as session", token: state},
		{name: "alg none", token: noneToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := s.Parse(tt.token); !errors.Is(err, ErrInvalidToken) {
				t.Errorf("expected ErrInvalidToken, got %v", err)
			}
		})
	}
}

func TestTokenService_State(t *testing.T) {
	s := NewTokenService("test-secret-0123456789", time.Hour)

	state, err := s.GenerateState("user-7", "mobile")
	if err != nil {
		t.Fatalf("GenerateState() error: %v", err)
	}
	got, err := s.ParseState(state)
	if err != nil {
		t.Fatalf("ParseState() error: %v", err)
	}
	if got.UserID != "user-7" || got.Platform != "mobile" {
		t.Errorf("unexpected state: %+v", got)
	}

	session, _ := s.Generate("user-7", "", "user")
	if _, err := s.ParseState(session); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("session token must not verify as state, got %v", err)
	}
}

func TestTokenService_StateExpiresAfterFiveMinutes(t *testing.T) {
	issued := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	s := NewTokenService("test-secret-0123456789", time.Hour)
	s.now = func() time.Time { return issued }

	state, err := s.GenerateState("user-7", "")
	if err != nil {
		t.Fatalf("GenerateState() error: %v", err)
	}

	s.now = func() time.Time { return issued.Add(4 * time.Minute) }
	if _, err := s.ParseState(state); err != nil {
		t.Errorf("state should be valid after 4 minutes: %v", err)
	}

	s.now = func() time.Time { return issued.Add(6 * time.Minute) }
	if _, err := s.ParseState(state); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("state should expire after 5 minutes, got %v", err)
	}
}
