package ingest

import (
	"context"

	"github.com/dvloznov/finko-backend/internal/cloudevent"
	"github.com/dvloznov/finko-backend/internal/domain"
	"github.com/dvloznov/finko-backend/internal/extraction"
	"github.com/dvloznov/finko-backend/internal/gmail"
	"github.com/dvloznov/finko-backend/internal/identity"
)

// ConnectionStore reads and advances mailbox connections.
// FindConnectionByAddress returns nil when the mailbox is not connected.
type ConnectionStore interface {
	FindConnectionByAddress(ctx context.Context, gmailAddress string) (*domain.BankConnection, error)
	UpdateHistoryID(ctx context.Context, gmailAddress string, historyID uint64) error
}

// MarkerStore is the idempotency ledger for Gmail messages.
// MarkProcessed returns domain.ErrDuplicate when the marker already exists.
type MarkerStore interface {
	IsProcessed(ctx context.Context, gmailMessageID string) (bool, error)
	MarkProcessed(ctx context.Context, marker domain.ProcessedEmailMarker) error
}

// ProfileSource lists bank profiles in precedence order.
type ProfileSource interface {
	ListProfiles(ctx context.Context) ([]domain.BankEmailProfile, error)
}

// Ledger persists expenses and incomes.
type Ledger interface {
	CreateExpense(ctx context.Context, userID string, tx domain.ParsedTransaction, category string) (*domain.Expense, error)
	CreateIncome(ctx context.Context, userID string, tx domain.ParsedTransaction, category string) (*domain.Income, error)
}

// Mailbox is the subset of the Gmail client the pipeline needs.
type Mailbox interface {
	ListHistoryMessageIDs(ctx context.Context, refreshToken string, startHistoryID uint64) ([]string, error)
	GetMessageMetadata(ctx context.Context, refreshToken, messageID string) (*gmail.MessageMetadata, error)
	GetMessage(ctx context.Context, refreshToken, messageID string) (*gmail.Message, error)
}

// Extractor turns an email into transactions.
type Extractor interface {
	Extract(ctx context.Context, req extraction.Request) ([]domain.ParsedTransaction, error)
}

// Archiver keeps a copy of extracted email bodies.
type Archiver interface {
	ArchiveEmail(ctx context.Context, userID, messageID string, body []byte) (string, error)
}

// IdentityResolver maps a webhook event to a user.
type IdentityResolver interface {
	Resolve(ctx context.Context, ev *cloudevent.CloudEvent, rc identity.RequestContext) (string, error)
}

// TransactionParser reads a single transaction from a webhook event.
type TransactionParser interface {
	Parse(ev *cloudevent.CloudEvent) (*domain.ParsedTransaction, bool)
}

// Deps bundles the collaborators of Service.
type Deps struct {
	Connections ConnectionStore
	Markers     MarkerStore
	Profiles    ProfileSource
	Ledger      Ledger
	Mailbox     Mailbox
	Extractor   Extractor
	Archiver    Archiver // optional
	Resolver    IdentityResolver
	Parser      TransactionParser
}
