// Package ingest ties the banking webhook and Gmail notifications to the ledger.
package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/finko-backend/internal/cloudevent"
	"github.com/dvloznov/finko-backend/internal/domain"
	"github.com/dvloznov/finko-backend/internal/identity"
	"github.com/dvloznov/finko-backend/internal/logger"
	"github.com/rs/zerolog"
)

// Client-input failures of the webhook path. They are never retried.
var (
	ErrInvalidEnvelope    = errors.New("invalid cloud event format")
	ErrIncompleteEnvelope = errors.New("incomplete cloud event: id, type and source are required")
	ErrUserNotFound       = errors.New("user not found for event")
	ErrUnparseable        = errors.New("could not parse transaction from event")
)

// Service runs both ingestion pipelines.
type Service struct {
	deps Deps
	log  zerolog.Logger
}

// NewService creates a new ingestion service.
func NewService(deps Deps, log zerolog.Logger) *Service {
	return &Service{deps: deps, log: log}
}

func (s *Service) logger(ctx context.Context) zerolog.Logger {
	return logger.FromContextOr(ctx, s.log)
}

// WebhookResult describes the ledger row written for a webhook event.
type WebhookResult struct {
	UserID      string                   `json:"userId"`
	EntryID     string                   `json:"entryId"`
	Category    string                   `json:"category"`
	Transaction domain.ParsedTransaction `json:"-"`
}

// HandleWebhook validates, attributes, parses and persists one banking event.
// No idempotency marker is kept for this path: a redelivered event is stored again.
func (s *Service) HandleWebhook(ctx context.Context, ev *cloudevent.CloudEvent, rc identity.RequestContext) (*WebhookResult, error) {
	if err := ev.Validate(); err != nil {
		if errors.Is(err, cloudevent.ErrMissingFields) {
			return nil, ErrIncompleteEnvelope
		}
		return nil, ErrInvalidEnvelope
	}

	log := s.logger(ctx).With().Str("event_id", ev.ID).Str("event_type", ev.Type).Logger()

	userID, err := s.deps.Resolver.Resolve(ctx, ev, rc)
	if errors.Is(err, domain.ErrNotFound) {
		log.Warn().Msg("No user matches webhook event")
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("HandleWebhook: resolve identity: %w", err)
	}

	tx, ok := s.deps.Parser.Parse(ev)
	if !ok {
		log.Warn().Str("user_id", userID).Msg("Webhook event carries no recognizable amount")
		return nil, ErrUnparseable
	}

	entryID, category, err := s.persist(ctx, userID, *tx, placeholderCategory(tx.Direction))
	if err != nil {
		return nil, fmt.Errorf("HandleWebhook: %w", err)
	}

	log.Info().
		Str("user_id", userID).
		Str("direction", string(tx.Direction)).
		Str("amount", tx.Amount.String()).
		Str("entry_id", entryID).
		Msg("Stored transaction from banking webhook")

	return &WebhookResult{UserID: userID, EntryID: entryID, Category: category, Transaction: *tx}, nil
}

func placeholderCategory(d domain.Direction) string {
	if d == domain.DirectionIncome {
		return domain.DefaultIncomeCategory
	}
	return domain.DefaultExpenseCategory
}

// persist writes tx as an expense or an income and returns the new row id.
func (s *Service) persist(ctx context.Context, userID string, tx domain.ParsedTransaction, category string) (string, string, error) {
	if tx.Direction == domain.DirectionIncome {
		income, err := s.deps.Ledger.CreateIncome(ctx, userID, tx, category)
		if err != nil {
			return "", "", fmt.Errorf("create income: %w", err)
		}
		return income.ID, category, nil
	}

	expense, err := s.deps.Ledger.CreateExpense(ctx, userID, tx, category)
	if err != nil {
		return "", "", fmt.Errorf("create expense: %w", err)
	}
	return expense.ID, category, nil
}
