package ingest

import (
	"context"
	"fmt"
	"sync"

	"github.com/dvloznov/finko-backend/internal/domain"
	"github.com/dvloznov/finko-backend/internal/extraction"
	"github.com/dvloznov/finko-backend/internal/gmail"
)

// memoryStore is an in-memory stand-in for the relational store.
type memoryStore struct {
	mu          sync.Mutex
	connections map[string]*domain.BankConnection
	markers     map[string]string
	profiles    []domain.BankEmailProfile
	ledger      []ledgerWrite
	cursor      []uint64

	updateHistoryErr error
	createErr        error
	// markRaced simulates a concurrent run committing the marker first.
	markRaced bool
}

type ledgerWrite struct {
	UserID    string
	Direction domain.Direction
	Merchant  string
	Category  string
	Amount    string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		connections: make(map[string]*domain.BankConnection),
		markers:     make(map[string]string),
	}
}

func (m *memoryStore) FindConnectionByAddress(_ context.Context, addr string) (*domain.BankConnection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.connections[addr]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (m *memoryStore) UpdateHistoryID(_ context.Context, addr string, historyID uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateHistoryErr != nil {
		return m.updateHistoryErr
	}
	m.cursor = append(m.cursor, historyID)
	if c, ok := m.connections[addr]; ok && historyID > c.HistoryID {
		c.HistoryID = historyID
	}
	return nil
}

func (m *memoryStore) IsProcessed(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.markers[id]
	return ok, nil
}

func (m *memoryStore) MarkProcessed(_ context.Context, marker domain.ProcessedEmailMarker) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.markers[marker.GmailMessageID]; ok || m.markRaced {
		m.markers[marker.GmailMessageID] = marker.UserID
		return fmt.Errorf("insert marker: %w", domain.ErrDuplicate)
	}
	m.markers[marker.GmailMessageID] = marker.UserID
	return nil
}

func (m *memoryStore) ListProfiles(context.Context) ([]domain.BankEmailProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.BankEmailProfile(nil), m.profiles...), nil
}

func (m *memoryStore) record(userID string, tx domain.ParsedTransaction, category string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return "", m.createErr
	}
	m.ledger = append(m.ledger, ledgerWrite{
		UserID:    userID,
		Direction: tx.Direction,
		Merchant:  tx.Merchant,
		Category:  category,
		Amount:    tx.Amount.String(),
	})
	return fmt.Sprintf("entry-%d", len(m.ledger)), nil
}

func (m *memoryStore) CreateExpense(_ context.Context, userID string, tx domain.ParsedTransaction, category string) (*domain.Expense, error) {
	id, err := m.record(userID, tx, category)
	if err != nil {
		return nil, err
	}
	return &domain.Expense{LedgerEntry: domain.LedgerEntry{ID: id, UserID: userID}}, nil
}

func (m *memoryStore) CreateIncome(_ context.Context, userID string, tx domain.ParsedTransaction, category string) (*domain.Income, error) {
	id, err := m.record(userID, tx, category)
	if err != nil {
		return nil, err
	}
	return &domain.Income{LedgerEntry: domain.LedgerEntry{ID: id, UserID: userID}}, nil
}

// MockMailbox is a mock implementation of Mailbox for testing.
type MockMailbox struct {
	ListHistoryMessageIDsFunc func(ctx context.Context, refreshToken string, start uint64) ([]string, error)
	GetMessageMetadataFunc    func(ctx context.Context, refreshToken, id string) (*gmail.MessageMetadata, error)
	GetMessageFunc            func(ctx context.Context, refreshToken, id string) (*gmail.Message, error)

	mu          sync.Mutex
	fullFetches []string
}

func (m *MockMailbox) ListHistoryMessageIDs(ctx context.Context, refreshToken string, start uint64) ([]string, error) {
	if m.ListHistoryMessageIDsFunc != nil {
		return m.ListHistoryMessageIDsFunc(ctx, refreshToken, start)
	}
	return nil, nil
}

func (m *MockMailbox) GetMessageMetadata(ctx context.Context, refreshToken, id string) (*gmail.MessageMetadata, error) {
	if m.GetMessageMetadataFunc != nil {
		return m.GetMessageMetadataFunc(ctx, refreshToken, id)
	}
	return &gmail.MessageMetadata{ID: id, From: "alertas@bancochile.cl"}, nil
}

func (m *MockMailbox) GetMessage(ctx context.Context, refreshToken, id string) (*gmail.Message, error) {
	m.mu.Lock()
	m.fullFetches = append(m.fullFetches, id)
	m.mu.Unlock()
	if m.GetMessageFunc != nil {
		return m.GetMessageFunc(ctx, refreshToken, id)
	}
	return &gmail.Message{ID: id, From: "alertas@bancochile.cl", Body: "body of " + id, Date: "2024-01-15"}, nil
}

// MockExtractor is a mock implementation of Extractor for testing.
type MockExtractor struct {
	ExtractFunc func(ctx context.Context, req extraction.Request) ([]domain.ParsedTransaction, error)

	mu       sync.Mutex
	requests []extraction.Request
}

func (m *MockExtractor) Extract(ctx context.Context, req extraction.Request) ([]domain.ParsedTransaction, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()
	if m.ExtractFunc != nil {
		return m.ExtractFunc(ctx, req)
	}
	return nil, nil
}

// MockArchiver is a mock implementation of Archiver for testing.
type MockArchiver struct {
	ArchiveEmailFunc func(ctx context.Context, userID, messageID string, body []byte) (string, error)
}

func (m *MockArchiver) ArchiveEmail(ctx context.Context, userID, messageID string, body []byte) (string, error) {
	if m.ArchiveEmailFunc != nil {
		return m.ArchiveEmailFunc(ctx, userID, messageID, body)
	}
	return "gs://bucket/" + messageID, nil
}
