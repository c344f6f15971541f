// Package app wires configuration into the services shared by the binaries.
package app

import (
	"context"
	"fmt"

	"github.com/dvloznov/finko-backend/internal/archive"
	"github.com/dvloznov/finko-backend/internal/auth"
	"github.com/dvloznov/finko-backend/internal/cloudevent"
	"github.com/dvloznov/finko-backend/internal/config"
	"github.com/dvloznov/finko-backend/internal/extraction"
	"github.com/dvloznov/finko-backend/internal/gmail"
	"github.com/dvloznov/finko-backend/internal/identity"
	"github.com/dvloznov/finko-backend/internal/ingest"
	"github.com/dvloznov/finko-backend/internal/jobs"
	"github.com/dvloznov/finko-backend/internal/mailbox"
	"github.com/dvloznov/finko-backend/internal/store/postgres"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// App holds the long-lived collaborators built from a Config.
type App struct {
	Config    *config.Config
	Log       zerolog.Logger
	Pool      *pgxpool.Pool
	Store     *postgres.Store
	Tokens    *auth.TokenService
	OAuth     *gmail.OAuth
	Gmail     *gmail.Client
	Ingest    *ingest.Service
	Mailboxes *mailbox.Service
	Keys      *identity.KeyService
	Archive   ingest.Archiver

	closers []func() error
}

// New connects to the database and builds every service.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*App, error) {
	pool, err := postgres.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	a := &App{Config: cfg, Log: log, Pool: pool}
	a.closers = append(a.closers, func() error { pool.Close(); return nil })

	a.Store = postgres.NewStore(pool)
	a.Tokens = auth.NewTokenService(cfg.JWTSecret, cfg.JWTExpiresIn)
	a.OAuth = gmail.NewOAuth(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GmailAuthRedirectURI)
	a.Gmail = gmail.NewClient(a.OAuth)
	a.Keys = identity.NewKeyService(a.Store)

	extractor, err := NewExtractor(ctx, cfg, log)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Archive = archive.Nop{}
	if cfg.ArchiveBucket != "" {
		gcs, err := archive.NewGCSArchiver(ctx, cfg.ArchiveBucket)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("archive: %w", err)
		}
		a.Archive = gcs
		a.closers = append(a.closers, gcs.Close)
	}

	a.Ingest = ingest.NewService(ingest.Deps{
		Connections: a.Store,
		Markers:     a.Store,
		Profiles:    a.Store,
		Ledger:      a.Store,
		Mailbox:     a.Gmail,
		Extractor:   extractor,
		Archiver:    a.Archive,
		Resolver:    identity.NewResolver(a.Store, cfg.BancoChileUserEmail),
		Parser:      cloudevent.NewParser(),
	}, log)

	a.Mailboxes = mailbox.NewService(a.Store, a.OAuth, a.Gmail, a.Tokens, cfg.GmailPubSubTopic, log)

	return a, nil
}

// NewExtractor builds the extraction gateway for the configured provider.
func NewExtractor(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*extraction.Gateway, error) {
	var model extraction.Model
	switch cfg.ExtractionProvider {
	case config.ProviderOpenAI:
		model = extraction.NewOpenAIModel(cfg.OpenAIAPIKey, cfg.OpenAIModel)
	case config.ProviderGemini, "":
		gm, err := extraction.NewGeminiModel(ctx, cfg.GeminiModel)
		if err != nil {
			return nil, err
		}
		model = gm
	default:
		return nil, fmt.Errorf("unknown extraction provider %q", cfg.ExtractionProvider)
	}
	log.Info().Str("provider", cfg.ExtractionProvider).Msg("Extraction provider configured")
	return extraction.NewGateway(model, log), nil
}

// GmailJobHandler runs the history walk for a queued notification and
// records its outcome on the job.
func (a *App) GmailJobHandler() jobs.JobHandler {
	return func(ctx context.Context, job jobs.Job) error {
		n, ok := job.(*jobs.GmailNotificationJob)
		if !ok {
			return fmt.Errorf("unexpected job type: %T", job)
		}

		log := a.Log.With().
			Str("job_id", n.JobID).
			Str("gmail_address", n.GmailAddress).
			Uint64("history_id", n.HistoryID).
			Logger()

		result, err := a.Ingest.HandleGmailNotification(ctx, n.GmailAddress, n.HistoryID)
		if err != nil {
			log.Error().Err(err).Msg("Gmail notification failed")
			return err
		}
		if result == nil {
			log.Info().Msg("Mailbox not connected, notification ignored")
			return nil
		}
		n.Result = result

		log.Info().
			Int("candidates", result.Candidates).
			Int("processed", result.Processed).
			Int("transactions", result.Transactions).
			Msg("Gmail notification processed")
		return nil
	}
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.Log.Warn().Err(err).Msg("Close failed")
		}
	}
	a.closers = nil
}
