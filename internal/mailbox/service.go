// Package mailbox manages the lifecycle of a user's Gmail connection: the
// OAuth consent round trip, the push watch registration and its renewal.
package mailbox

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dvloznov/finko-backend/internal/auth"
	"github.com/dvloznov/finko-backend/internal/domain"
	"github.com/dvloznov/finko-backend/internal/gmail"
	"github.com/dvloznov/finko-backend/internal/logger"
	"github.com/rs/zerolog"
)

// ErrTopicNotConfigured is returned when no Pub/Sub topic is set for watches.
var ErrTopicNotConfigured = errors.New("gmail pub/sub topic is not configured")

// ConnectionStore persists mailbox connections.
type ConnectionStore interface {
	FindConnectionByUser(ctx context.Context, userID string) (*domain.BankConnection, error)
	ListConnections(ctx context.Context) ([]domain.BankConnection, error)
	UpsertConnection(ctx context.Context, c domain.BankConnection) error
	UpdateWatch(ctx context.Context, userID string, historyID uint64, expiration time.Time) error
	DeleteConnection(ctx context.Context, userID string) error
}

// Authorizer runs the Google OAuth code flow.
type Authorizer interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (string, error)
}

// Watcher registers and inspects Gmail push watches.
type Watcher interface {
	Watch(ctx context.Context, refreshToken, topic string) (*gmail.WatchResult, error)
	StopWatch(ctx context.Context, refreshToken string) error
	GetProfileEmail(ctx context.Context, refreshToken string) (string, error)
}

// StateSigner signs and verifies the OAuth state parameter.
type StateSigner interface {
	GenerateState(userID, platform string) (string, error)
	ParseState(state string) (*auth.StateClaims, error)
}

type Service struct {
	store  ConnectionStore
	oauth  Authorizer
	gmail  Watcher
	states StateSigner
	topic  string
	log    zerolog.Logger
}

func NewService(store ConnectionStore, oauth Authorizer, gm Watcher, states StateSigner, topic string, log zerolog.Logger) *Service {
	return &Service{store: store, oauth: oauth, gmail: gm, states: states, topic: topic, log: log}
}

// StartAuth returns the Google consent URL for userID.
func (s *Service) StartAuth(userID, platform string) (string, error) {
	state, err := s.states.GenerateState(userID, platform)
	if err != nil {
		return "", fmt.Errorf("StartAuth: %w", err)
	}
	return s.oauth.AuthCodeURL(state), nil
}

// ConnectResult describes a completed OAuth round trip.
type ConnectResult struct {
	UserID       string
	GmailAddress string
	Platform     string
}

// CompleteAuth verifies state, exchanges code, registers a watch and stores
// the connection. Reconnecting replaces the user's previous mailbox. On a
// state failure the returned result is nil; on later failures it still carries
// the platform so the caller can pick the right redirect.
func (s *Service) CompleteAuth(ctx context.Context, code, state string) (*ConnectResult, error) {
	claims, err := s.states.ParseState(state)
	if err != nil {
		return nil, fmt.Errorf("CompleteAuth: verify state: %w", err)
	}
	result := &ConnectResult{UserID: claims.UserID, Platform: claims.Platform}
	log := logger.FromContextOr(ctx, s.log).With().Str("user_id", claims.UserID).Logger()

	if s.topic == "" {
		return result, fmt.Errorf("CompleteAuth: %w", ErrTopicNotConfigured)
	}

	refreshToken, err := s.oauth.Exchange(ctx, code)
	if err != nil {
		return result, fmt.Errorf("CompleteAuth: %w", err)
	}

	address, err := s.gmail.GetProfileEmail(ctx, refreshToken)
	if err != nil {
		return result, fmt.Errorf("CompleteAuth: profile: %w", err)
	}
	result.GmailAddress = address

	watch, err := s.gmail.Watch(ctx, refreshToken, s.topic)
	if err != nil {
		return result, fmt.Errorf("CompleteAuth: watch: %w", err)
	}

	err = s.store.UpsertConnection(ctx, domain.BankConnection{
		UserID:          claims.UserID,
		GmailAddress:    strings.ToLower(address),
		RefreshToken:    refreshToken,
		HistoryID:       watch.HistoryID,
		WatchExpiration: watch.Expiration,
	})
	if err != nil {
		return result, fmt.Errorf("CompleteAuth: %w", err)
	}

	log.Info().
		Str("gmail_address", address).
		Uint64("history_id", watch.HistoryID).
		Time("watch_expiration", watch.Expiration).
		Msg("Gmail mailbox connected")
	return result, nil
}

// Status is the connection state shown to a user.
type Status struct {
	Connected       bool       `json:"connected"`
	GmailAddress    string     `json:"gmailAddress,omitempty"`
	WatchExpiration *time.Time `json:"watchExpiration,omitempty"`
}

func (s *Service) Status(ctx context.Context, userID string) (*Status, error) {
	c, err := s.store.FindConnectionByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("Status: %w", err)
	}
	if c == nil {
		return &Status{Connected: false}, nil
	}
	st := &Status{Connected: true, GmailAddress: c.GmailAddress}
	if !c.WatchExpiration.IsZero() {
		exp := c.WatchExpiration
		st.WatchExpiration = &exp
	}
	return st, nil
}

// Disconnect stops the watch and removes the connection. It reports whether
// a connection existed. A failing stop is logged and ignored: the watch may
// already be expired or the grant revoked.
func (s *Service) Disconnect(ctx context.Context, userID string) (bool, error) {
	c, err := s.store.FindConnectionByUser(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("Disconnect: %w", err)
	}
	if c == nil {
		return false, nil
	}

	log := logger.FromContextOr(ctx, s.log)
	if err := s.gmail.StopWatch(ctx, c.RefreshToken); err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("Failed to stop Gmail watch")
	}

	if err := s.store.DeleteConnection(ctx, userID); err != nil {
		return true, fmt.Errorf("Disconnect: %w", err)
	}
	log.Info().Str("user_id", userID).Str("gmail_address", c.GmailAddress).Msg("Gmail mailbox disconnected")
	return true, nil
}

// RenewResult summarizes a watch renewal sweep.
type RenewResult struct {
	Total   int      `json:"total"`
	Renewed int      `json:"renewed"`
	Errors  []string `json:"errors,omitempty"`
}

// RenewWatches re-registers the watch of every connection. Gmail watches
// lapse after about a week, so this runs on a schedule. One failing mailbox
// is recorded and the sweep moves on.
func (s *Service) RenewWatches(ctx context.Context) (*RenewResult, error) {
	if s.topic == "" {
		return nil, fmt.Errorf("RenewWatches: %w", ErrTopicNotConfigured)
	}

	conns, err := s.store.ListConnections(ctx)
	if err != nil {
		return nil, fmt.Errorf("RenewWatches: %w", err)
	}

	log := logger.FromContextOr(ctx, s.log)
	result := &RenewResult{Total: len(conns)}
	for _, c := range conns {
		if err := ctx.Err(); err != nil {
			return result, fmt.Errorf("RenewWatches: %w", err)
		}
		if err := s.renew(ctx, c); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", c.GmailAddress, err))
			log.Error().Err(err).Str("gmail_address", c.GmailAddress).Msg("Failed to renew Gmail watch")
			continue
		}
		result.Renewed++
		log.Info().Str("gmail_address", c.GmailAddress).Msg("Gmail watch renewed")
	}
	return result, nil
}

func (s *Service) renew(ctx context.Context, c domain.BankConnection) error {
	watch, err := s.gmail.Watch(ctx, c.RefreshToken, s.topic)
	if err != nil {
		return err
	}
	return s.store.UpdateWatch(ctx, c.UserID, watch.HistoryID, watch.Expiration)
}
