package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/finko-backend/internal/bankprofile"
	"github.com/dvloznov/finko-backend/internal/domain"
	"github.com/dvloznov/finko-backend/internal/extraction"
	"github.com/dvloznov/finko-backend/internal/gmail"
	"github.com/dvloznov/finko-backend/internal/logger"
)

// MessageStep represents a single step in handling one Gmail message.
type MessageStep interface {
	Execute(ctx context.Context, state *MessageState) error
}

// MessageState holds the shared state across all message steps.
type MessageState struct {
	Connection   *domain.BankConnection
	MessageID    string
	From         string
	Profile      *domain.BankEmailProfile
	Message      *gmail.Message
	Body         string
	ArchiveURI   string
	Transactions []domain.ParsedTransaction
	Persisted    int
	Deduplicated bool
}

// SkipError stops a message pipeline without counting the message as failed.
type SkipError struct {
	Reason string
}

func (e *SkipError) Error() string { return "skipped: " + e.Reason }

func skip(reason string) error { return &SkipError{Reason: reason} }

// Step 1: CheckMarkerStep stops early for messages that were already handled.
// It runs before any remote fetch.
type CheckMarkerStep struct {
	markers MarkerStore
}

func (s *CheckMarkerStep) Execute(ctx context.Context, state *MessageState) error {
	done, err := s.markers.IsProcessed(ctx, state.MessageID)
	if err != nil {
		return fmt.Errorf("check processed marker: %w", err)
	}
	if done {
		return skip("already processed")
	}
	return nil
}

// Step 2: FetchMetadataStep reads the From header.
type FetchMetadataStep struct {
	mailbox Mailbox
}

func (s *FetchMetadataStep) Execute(ctx context.Context, state *MessageState) error {
	meta, err := s.mailbox.GetMessageMetadata(ctx, state.Connection.RefreshToken, state.MessageID)
	if errors.Is(err, gmail.ErrMessageNotFound) {
		return skip("message no longer exists")
	}
	if err != nil {
		return fmt.Errorf("fetch metadata: %w", err)
	}
	state.From = meta.From
	return nil
}

// Step 3: MatchProfileStep picks the bank profile for the sender.
// Profiles are read on every message so admin edits apply immediately.
type MatchProfileStep struct {
	profiles ProfileSource
}

func (s *MatchProfileStep) Execute(ctx context.Context, state *MessageState) error {
	profiles, err := s.profiles.ListProfiles(ctx)
	if err != nil {
		return fmt.Errorf("load bank profiles: %w", err)
	}
	profile, ok := bankprofile.Match(state.From, profiles)
	if !ok {
		return skip("sender matches no bank profile")
	}
	state.Profile = profile
	return nil
}

// Step 4: FetchMessageStep downloads the full message.
type FetchMessageStep struct {
	mailbox Mailbox
}

func (s *FetchMessageStep) Execute(ctx context.Context, state *MessageState) error {
	msg, err := s.mailbox.GetMessage(ctx, state.Connection.RefreshToken, state.MessageID)
	if errors.Is(err, gmail.ErrMessageNotFound) {
		return skip("message no longer exists")
	}
	if err != nil {
		return fmt.Errorf("fetch message: %w", err)
	}
	state.Message = msg

	state.Body = msg.Body
	if state.Body == "" {
		state.Body = msg.Snippet
	}
	if state.Body == "" {
		return skip("message has no content")
	}
	return nil
}

// Step 5: ArchiveStep stores the body. Failures are logged and ignored.
type ArchiveStep struct {
	archiver Archiver
}

func (s *ArchiveStep) Execute(ctx context.Context, state *MessageState) error {
	if s.archiver == nil {
		return nil
	}
	uri, err := s.archiver.ArchiveEmail(ctx, state.Connection.UserID, state.MessageID, []byte(state.Body))
	if err != nil {
		log := logger.FromContext(ctx)
		log.Warn().Err(err).Str("message_id", state.MessageID).Msg("Failed to archive email body")
		return nil
	}
	state.ArchiveURI = uri
	return nil
}

// Step 6: ExtractStep calls the extraction service once.
type ExtractStep struct {
	extractor Extractor
}

func (s *ExtractStep) Execute(ctx context.Context, state *MessageState) error {
	txs, err := s.extractor.Extract(ctx, extraction.Request{
		Body:         state.Body,
		EmailDate:    state.Message.Date,
		BankName:     state.Profile.BankName,
		Instructions: state.Profile.ExtractionInstructions,
	})
	if err != nil {
		return fmt.Errorf("extract transactions: %w", err)
	}
	state.Transactions = txs
	return nil
}

// Step 7: PersistStep writes every transaction in extraction order.
type PersistStep struct {
	ledger Ledger
}

func (s *PersistStep) Execute(ctx context.Context, state *MessageState) error {
	userID := state.Connection.UserID
	for i, tx := range state.Transactions {
		var err error
		if tx.Direction == domain.DirectionIncome {
			_, err = s.ledger.CreateIncome(ctx, userID, tx, tx.Category)
		} else {
			_, err = s.ledger.CreateExpense(ctx, userID, tx, tx.Category)
		}
		if err != nil {
			return fmt.Errorf("persist transaction %d of %d: %w", i+1, len(state.Transactions), err)
		}
		state.Persisted++
	}
	return nil
}

// Step 8: MarkProcessedStep records the marker after every write succeeded.
// Losing the insert race to a concurrent run counts as success.
type MarkProcessedStep struct {
	markers MarkerStore
}

func (s *MarkProcessedStep) Execute(ctx context.Context, state *MessageState) error {
	err := s.markers.MarkProcessed(ctx, domain.ProcessedEmailMarker{
		GmailMessageID: state.MessageID,
		UserID:         state.Connection.UserID,
	})
	if errors.Is(err, domain.ErrDuplicate) {
		state.Deduplicated = true
		return nil
	}
	if err != nil {
		return fmt.Errorf("mark processed: %w", err)
	}
	return nil
}

// MessagePipeline executes a sequence of steps in order.
type MessagePipeline struct {
	steps []MessageStep
}

// NewMessagePipeline creates a new pipeline with the given steps.
func NewMessagePipeline(steps ...MessageStep) *MessagePipeline {
	return &MessagePipeline{steps: steps}
}

// Execute runs all steps sequentially. A *SkipError is returned unwrapped.
func (p *MessagePipeline) Execute(ctx context.Context, state *MessageState) error {
	for i, step := range p.steps {
		if err := step.Execute(ctx, state); err != nil {
			var sk *SkipError
			if errors.As(err, &sk) {
				return sk
			}
			return fmt.Errorf("message step %d failed: %w", i+1, err)
		}
	}
	return nil
}

// newGmailMessagePipeline wires the standard message steps.
func newGmailMessagePipeline(d Deps) *MessagePipeline {
	return NewMessagePipeline(
		&CheckMarkerStep{markers: d.Markers},
		&FetchMetadataStep{mailbox: d.Mailbox},
		&MatchProfileStep{profiles: d.Profiles},
		&FetchMessageStep{mailbox: d.Mailbox},
		&ArchiveStep{archiver: d.Archiver},
		&ExtractStep{extractor: d.Extractor},
		&PersistStep{ledger: d.Ledger},
		&MarkProcessedStep{markers: d.Markers},
	)
}
