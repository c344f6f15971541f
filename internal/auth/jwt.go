// Package auth issues and verifies HS256 tokens for API sessions and for the
// Gmail OAuth state parameter.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	sessionAudience = "finko-api"
	stateAudience   = "finko-gmail-oauth"

	// StateTTL bounds how long a user has to finish the Gmail consent screen.
	StateTTL = 5 * time.Minute
)

// ErrInvalidToken is returned for any token that fails verification.
var ErrInvalidToken = errors.New("invalid token")

// Claims identifies the caller of an API request.
type Claims struct {
	UserID string
	Email  string
	Role   string
}

// StateClaims is carried through the OAuth round trip.
type StateClaims struct {
	UserID   string
	Platform string
}

type TokenService struct {
	secretKey []byte
	expiresIn time.Duration
	now       func() time.Time
}

func NewTokenService(secret string, expiresIn time.Duration) *TokenService {
	return &TokenService{
		secretKey: []byte(secret),
		expiresIn: expiresIn,
		now:       time.Now,
	}
}

// Generate signs a session token.
func (s *TokenService) Generate(userID, email, role string) (string, error) {
	return s.sign(jwt.MapClaims{
		"userId": userID,
		"email":  email,
		"role":   role,
		"aud":    sessionAudience,
	}, s.expiresIn)
}

// Parse verifies a session token.
func (s *TokenService) Parse(tokenStr string) (*Claims, error) {
	claims, err := s.verify(tokenStr, sessionAudience)
	if err != nil {
		return nil, err
	}
	userID, _ := claims["userId"].(string)
	if userID == "" {
		return nil, fmt.Errorf("%w: missing userId", ErrInvalidToken)
	}
	email, _ := claims["email"].(string)
	role, _ := claims["role"].(string)
	return &Claims{UserID: userID, Email: email, Role: role}, nil
}

// GenerateState signs the OAuth state for userID.
func (s *TokenService) GenerateState(userID, platform string) (string, error) {
	return s.sign(jwt.MapClaims{
		"userId":   userID,
		"platform": platform,
		"aud":      stateAudience,
	}, StateTTL)
}

// ParseState verifies an OAuth state. Session tokens are rejected.
func (s *TokenService) ParseState(state string) (*StateClaims, error) {
	claims, err := s.verify(state, stateAudience)
	if err != nil {
		return nil, err
	}
	userID, _ := claims["userId"].(string)
	if userID == "" {
		return nil, fmt.Errorf("%w: missing userId", ErrInvalidToken)
	}
	platform, _ := claims["platform"].(string)
	return &StateClaims{UserID: userID, Platform: platform}, nil
}

func (s *TokenService) sign(claims jwt.MapClaims, ttl time.Duration) (string, error) {
	now := s.now()
	claims["iat"] = now.Unix()
	claims["exp"] = now.Add(ttl).Unix()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secretKey)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func (s *TokenService) verify(tokenStr, audience string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.secretKey, nil
	},
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
