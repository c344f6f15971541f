package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/dvloznov/finko-backend/internal/api/middleware"
	"github.com/dvloznov/finko-backend/internal/gmail"
	"github.com/dvloznov/finko-backend/internal/mailbox"
	"github.com/rs/zerolog"
)

// PlatformMobile selects the mobile redirect after the OAuth callback.
const PlatformMobile = "mobile"

// MailboxManager connects, inspects and disconnects a user's Gmail mailbox.
type MailboxManager interface {
	StartAuth(userID, platform string) (string, error)
	CompleteAuth(ctx context.Context, code, state string) (*mailbox.ConnectResult, error)
	Status(ctx context.Context, userID string) (*mailbox.Status, error)
	Disconnect(ctx context.Context, userID string) (bool, error)
	RenewWatches(ctx context.Context) (*mailbox.RenewResult, error)
}

// GmailHandler serves the Gmail OAuth flow, connection status and watch renewal.
type GmailHandler struct {
	mailboxes   MailboxManager
	frontendURL string
	mobileURL   string
	log         zerolog.Logger
}

// NewGmailHandler creates a Gmail handler. mobileURL may be empty, in which
// case mobile callbacks also land on frontendURL.
func NewGmailHandler(mailboxes MailboxManager, frontendURL, mobileURL string, log zerolog.Logger) *GmailHandler {
	if frontendURL == "" {
		frontendURL = "http://localhost:5173"
	}
	return &GmailHandler{
		mailboxes:   mailboxes,
		frontendURL: frontendURL,
		mobileURL:   mobileURL,
		log:         log,
	}
}

// StartAuth handles GET /auth/gmail
func (h *GmailHandler) StartAuth(w http.ResponseWriter, r *http.Request) {
	claims, _ := middleware.ClaimsFromContext(r.Context())

	redirectURL, err := h.mailboxes.StartAuth(claims.UserID, r.URL.Query().Get("platform"))
	if err != nil {
		requestLogger(r, h.log).Error().Err(err).Str("user_id", claims.UserID).Msg("Failed to start Gmail OAuth")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to start Gmail connection")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]string{"redirectUrl": redirectURL})
}

// Callback handles GET /auth/gmail/callback. Every outcome is a redirect back
// to the client carrying gmail=connected or gmail=error.
func (h *GmailHandler) Callback(w http.ResponseWriter, r *http.Request) {
	log := requestLogger(r, h.log)
	query := r.URL.Query()

	code, state := query.Get("code"), query.Get("state")
	if code == "" {
		h.redirect(w, r, "", url.Values{"gmail": {"error"}, "message": {"code_missing"}})
		return
	}
	if state == "" {
		h.redirect(w, r, "", url.Values{"gmail": {"error"}, "message": {"state_missing"}})
		return
	}

	result, err := h.mailboxes.CompleteAuth(r.Context(), code, state)
	if err != nil {
		platform := ""
		if result != nil {
			platform = result.Platform
		}
		log.Error().Err(err).Msg("Gmail OAuth callback failed")
		h.redirect(w, r, platform, url.Values{"gmail": {"error"}, "message": {callbackReason(result, err)}})
		return
	}

	h.redirect(w, r, result.Platform, url.Values{"gmail": {"connected"}, "email": {result.GmailAddress}})
}

func callbackReason(result *mailbox.ConnectResult, err error) string {
	switch {
	case result == nil:
		return "invalid_state"
	case errors.Is(err, mailbox.ErrTopicNotConfigured):
		return "topic_not_configured"
	case errors.Is(err, gmail.ErrNoRefreshToken):
		return "no_refresh_token"
	}
	return "connect_failed"
}

func (h *GmailHandler) redirect(w http.ResponseWriter, r *http.Request, platform string, params url.Values) {
	base := h.frontendURL
	if platform == PlatformMobile && h.mobileURL != "" {
		base = h.mobileURL
	}
	http.Redirect(w, r, withQuery(base, params), http.StatusFound)
}

// withQuery appends params to base, keeping any query base already has.
func withQuery(base string, params url.Values) string {
	u, err := url.Parse(base)
	if err != nil {
		sep := "?"
		if strings.Contains(base, "?") {
			sep = "&"
		}
		return base + sep + params.Encode()
	}
	q := u.Query()
	for k, vs := range params {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// Status handles GET /gmail/status
func (h *GmailHandler) Status(w http.ResponseWriter, r *http.Request) {
	claims, _ := middleware.ClaimsFromContext(r.Context())

	status, err := h.mailboxes.Status(r.Context(), claims.UserID)
	if err != nil {
		requestLogger(r, h.log).Error().Err(err).Str("user_id", claims.UserID).Msg("Failed to get Gmail status")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to get Gmail status")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, status)
}

// Disconnect handles POST /gmail/disconnect
func (h *GmailHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	claims, _ := middleware.ClaimsFromContext(r.Context())

	existed, err := h.mailboxes.Disconnect(r.Context(), claims.UserID)
	if err != nil {
		requestLogger(r, h.log).Error().Err(err).Str("user_id", claims.UserID).Msg("Failed to disconnect Gmail")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to disconnect Gmail")
		return
	}

	message := "Gmail disconnected"
	if !existed {
		message = "Gmail was not connected"
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"message": message})
}

// RenewWatches handles POST /cron/gmail-renew
func (h *GmailHandler) RenewWatches(w http.ResponseWriter, r *http.Request) {
	log := requestLogger(r, h.log)

	result, err := h.mailboxes.RenewWatches(r.Context())
	if errors.Is(err, mailbox.ErrTopicNotConfigured) {
		middleware.WriteError(w, http.StatusInternalServerError, "GMAIL_PUBSUB_TOPIC is not configured")
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("Gmail watch renewal failed")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to renew Gmail watches")
		return
	}

	log.Info().Int("total", result.Total).Int("renewed", result.Renewed).Int("errors", len(result.Errors)).Msg("Gmail watch renewal finished")
	body := map[string]interface{}{
		"ok":      true,
		"total":   result.Total,
		"renewed": result.Renewed,
	}
	if len(result.Errors) > 0 {
		body["errors"] = result.Errors
	}
	middleware.WriteJSON(w, http.StatusOK, body)
}
