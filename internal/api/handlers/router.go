package handlers

import (
	"net/http"

	"github.com/dvloznov/finko-backend/internal/api/middleware"
	"github.com/rs/zerolog"
)

// RouterConfig carries the handlers and access controls mounted by NewRouter.
// Gmail may be nil when the Gmail integration is not configured.
type RouterConfig struct {
	Webhooks *WebhooksHandler
	Gmail    *GmailHandler
	Profiles *ProfilesHandler
	Keys     *KeysHandler
	Ledger   *LedgerHandler
	Jobs     *JobsHandler
	Health   *HealthHandler

	Tokens         middleware.TokenParser
	CronSecret     string
	AllowedOrigins []string
	Log            zerolog.Logger
}

// NewRouter builds the API mux wrapped in the standard middleware stack.
func NewRouter(cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()

	authed := func(h http.HandlerFunc) http.Handler {
		return middleware.RequireAuth(cfg.Tokens)(h)
	}
	admin := func(h http.HandlerFunc) http.Handler {
		return middleware.Chain(h, middleware.RequireAuth(cfg.Tokens), middleware.RequireAdmin)
	}

	// Webhooks
	mux.HandleFunc("POST /webhooks/bancochile", cfg.Webhooks.BancoChile)
	mux.HandleFunc("POST /webhooks/gmail", cfg.Webhooks.Gmail)

	// Gmail connection
	if cfg.Gmail != nil {
		mux.Handle("GET /auth/gmail", authed(cfg.Gmail.StartAuth))
		mux.HandleFunc("GET /auth/gmail/callback", cfg.Gmail.Callback)
		mux.Handle("GET /gmail/status", authed(cfg.Gmail.Status))
		mux.Handle("POST /gmail/disconnect", authed(cfg.Gmail.Disconnect))
		mux.Handle("POST /cron/gmail-renew", middleware.CronSecret(cfg.CronSecret)(http.HandlerFunc(cfg.Gmail.RenewWatches)))
	}

	// Bank email profiles
	mux.Handle("GET /bank-email-configs", admin(cfg.Profiles.ListProfiles))
	mux.Handle("POST /bank-email-configs", admin(cfg.Profiles.CreateProfile))
	mux.Handle("PUT /bank-email-configs/{id}", admin(cfg.Profiles.UpdateProfile))
	mux.Handle("DELETE /bank-email-configs/{id}", admin(cfg.Profiles.DeleteProfile))

	// Banking API keys
	mux.Handle("GET /bancochile/keys", authed(cfg.Keys.ListKeys))
	mux.Handle("POST /bancochile/keys", authed(cfg.Keys.AssociateKey))
	mux.Handle("DELETE /bancochile/keys/{id}", authed(cfg.Keys.RemoveKey))

	// Ledger
	mux.Handle("GET /expenses", authed(cfg.Ledger.ListExpenses))
	mux.Handle("GET /incomes", authed(cfg.Ledger.ListIncomes))
	mux.Handle("GET /summary", authed(cfg.Ledger.Summary))

	// Jobs
	mux.Handle("GET /api/jobs", admin(cfg.Jobs.ListJobs))
	mux.Handle("GET /api/jobs/{id}", admin(cfg.Jobs.GetJob))

	mux.HandleFunc("GET /health", cfg.Health.Health)

	return middleware.Chain(mux,
		middleware.Recovery(cfg.Log),
		middleware.Logger(cfg.Log),
		middleware.RequestID(cfg.Log),
		middleware.CORS(cfg.AllowedOrigins),
	)
}
