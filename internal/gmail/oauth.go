// Package gmail wraps the Gmail REST API and the OAuth flow used to reach it.
// Every API call derives a fresh access token from the stored refresh token;
// access tokens are never cached.
package gmail

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmailapi "google.golang.org/api/gmail/v1"
)

// ErrNoRefreshToken is returned when Google completes the code exchange
// without issuing a refresh token.
var ErrNoRefreshToken = errors.New("google did not return a refresh token")

// TokenProvider exchanges a refresh token for a short-lived access token.
type TokenProvider interface {
	AccessToken(ctx context.Context, refreshToken string) (string, error)
}

// OAuth drives the consent flow for read-only Gmail access.
type OAuth struct {
	cfg *oauth2.Config
}

// NewOAuth configures the flow against Google's OAuth endpoints.
func NewOAuth(clientID, clientSecret, redirectURL string) *OAuth {
	return NewOAuthWithEndpoint(clientID, clientSecret, redirectURL, google.Endpoint)
}

// NewOAuthWithEndpoint configures the flow against an arbitrary endpoint.
func NewOAuthWithEndpoint(clientID, clientSecret, redirectURL string, endpoint oauth2.Endpoint) *OAuth {
	return &OAuth{cfg: &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Scopes:       []string{gmailapi.GmailReadonlyScope},
		Endpoint:     endpoint,
	}}
}

// AuthCodeURL returns the consent URL. Offline access and a forced consent
// prompt make Google issue a refresh token on every grant.
func (o *OAuth) AuthCodeURL(state string) string {
	return o.cfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Exchange trades an authorization code for a refresh token.
func (o *OAuth) Exchange(ctx context.Context, code string) (string, error) {
	tok, err := o.cfg.Exchange(ctx, code)
	if err != nil {
		return "", fmt.Errorf("exchange authorization code: %w", err)
	}
	if tok.RefreshToken == "" {
		return "", ErrNoRefreshToken
	}
	return tok.RefreshToken, nil
}

// AccessToken implements TokenProvider with a one-off refresh.
func (o *OAuth) AccessToken(ctx context.Context, refreshToken string) (string, error) {
	tok, err := o.cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return "", fmt.Errorf("refresh access token: %w", err)
	}
	if tok.AccessToken == "" {
		return "", errors.New("refresh access token: empty access token")
	}
	return tok.AccessToken, nil
}

var _ TokenProvider = (*OAuth)(nil)
