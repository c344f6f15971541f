package gmail

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"golang.org/x/oauth2"
)

func tokenServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testOAuth(srv *httptest.Server) *OAuth {
	return NewOAuthWithEndpoint("client", "secret", "https://app.example.com/auth/gmail/callback", oauth2.Endpoint{
		AuthURL:   "https://accounts.example.com/auth",
		TokenURL:  srv.URL + "/token",
		AuthStyle: oauth2.AuthStyleInParams,
	})
}

func TestAuthCodeURL(t *testing.T) {
	o := NewOAuth("client", "secret", "https://app.example.com/cb")
	u, err := url.Parse(o.AuthCodeURL("signed-state"))
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	q := u.Query()
	if q.Get("state") != "signed-state" || q.Get("access_type") != "offline" || q.Get("prompt") != "consent" {
		t.Errorf("unexpected query %v", q)
	}
	if !strings.Contains(q.Get("scope"), "gmail.readonly") {
		t.Errorf("scope = %q", q.Get("scope"))
	}
}

func TestExchange(t *testing.T) {
	srv := tokenServer(t, `{"access_token":"at","token_type":"Bearer","expires_in":3600,"refresh_token":"rt-1"}`)
	rt, err := testOAuth(srv).Exchange(context.Background(), "code")
	if err != nil || rt != "rt-1" {
		t.Fatalf("Exchange() = %q, %v", rt, err)
	}
}

func TestExchange_NoRefreshToken(t *testing.T) {
	srv := tokenServer(t, `{"access_token":"at","token_type":"Bearer","expires_in":3600}`)
	if _, err := testOAuth(srv).Exchange(context.Background(), "code"); !errors.Is(err, ErrNoRefreshToken) {
		t.Fatalf("expected ErrNoRefreshToken, got %v", err)
	}
}

func TestAccessToken(t *testing.T) {
	srv := tokenServer(t, `{"access_token":"fresh","token_type":"Bearer","expires_in":3600}`)
	at, err := testOAuth(srv).AccessToken(context.Background(), "rt-1")
	if err != nil || at != "fresh" {
		t.Fatalf("AccessToken() = %q, %v", at, err)
	}
}
