package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/finko-backend/internal/domain"
	"github.com/dvloznov/finko-backend/internal/gmail"
	"github.com/dvloznov/finko-backend/internal/logger"
)

// RunResult summarizes one Gmail notification run.
type RunResult struct {
	GmailAddress   string `json:"gmail_address"`
	UserID         string `json:"user_id"`
	StartHistoryID uint64 `json:"start_history_id"`
	HistoryID      uint64 `json:"history_id"`
	Candidates     int    `json:"candidates"`
	Processed      int    `json:"processed"`
	Skipped        int    `json:"skipped"`
	Failed         int    `json:"failed"`
	Transactions   int    `json:"transactions"`
}

// HandleGmailNotification processes every message added to the mailbox since
// its stored history cursor, one at a time and in history order, then moves
// the cursor to historyID.
//
// A mailbox without a connection is ignored and yields a nil result.
// A failing message is logged and counted; the rest of the batch continues.
// The cursor is advanced even when messages failed, so a failed message is
// only revisited when history is walked again from an earlier point.
func (s *Service) HandleGmailNotification(ctx context.Context, gmailAddress string, historyID uint64) (*RunResult, error) {
	log := s.logger(ctx).With().Str("gmail_address", gmailAddress).Uint64("history_id", historyID).Logger()
	ctx = logger.WithContext(ctx, log)

	conn, err := s.deps.Connections.FindConnectionByAddress(ctx, gmailAddress)
	if err != nil {
		return nil, fmt.Errorf("HandleGmailNotification: find connection: %w", err)
	}
	if conn == nil {
		log.Info().Msg("No bank connection for mailbox, ignoring notification")
		return nil, nil
	}

	start := conn.HistoryID
	if start == 0 {
		start = historyID
	}
	result := &RunResult{GmailAddress: gmailAddress, UserID: conn.UserID, StartHistoryID: start}

	ids, err := s.deps.Mailbox.ListHistoryMessageIDs(ctx, conn.RefreshToken, start)
	switch {
	case errors.Is(err, gmail.ErrHistoryNotFound):
		log.Warn().Uint64("start_history_id", start).Msg("History cursor unknown to Gmail, no candidates")
		ids = nil
	case err != nil:
		return nil, fmt.Errorf("HandleGmailNotification: list history: %w", err)
	}
	result.Candidates = len(ids)

	pipeline := newGmailMessagePipeline(s.deps)
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return result, fmt.Errorf("HandleGmailNotification: %w", err)
		}
		s.processMessage(ctx, pipeline, conn, id, result)
	}

	if err := s.deps.Connections.UpdateHistoryID(ctx, gmailAddress, historyID); err != nil {
		return result, fmt.Errorf("HandleGmailNotification: advance history cursor: %w", err)
	}
	result.HistoryID = historyID

	log.Info().
		Int("candidates", result.Candidates).
		Int("processed", result.Processed).
		Int("skipped", result.Skipped).
		Int("failed", result.Failed).
		Int("transactions", result.Transactions).
		Msg("Gmail notification processed")

	return result, nil
}

func (s *Service) processMessage(ctx context.Context, p *MessagePipeline, conn *domain.BankConnection, messageID string, result *RunResult) {
	log := s.logger(ctx).With().Str("message_id", messageID).Logger()
	state := &MessageState{Connection: conn, MessageID: messageID}

	err := p.Execute(logger.WithContext(ctx, log), state)

	var sk *SkipError
	switch {
	case errors.As(err, &sk):
		result.Skipped++
		log.Debug().Str("reason", sk.Reason).Msg("Skipping message")
	case err != nil:
		result.Failed++
		result.Transactions += state.Persisted
		log.Error().Err(err).Int("persisted", state.Persisted).Msg("Failed to process message")
	default:
		result.Processed++
		result.Transactions += state.Persisted
		ev := log.Info().Int("transactions", state.Persisted).Bool("deduplicated", state.Deduplicated)
		if state.Profile != nil {
			ev = ev.Str("bank", state.Profile.BankName)
		}
		ev.Msg("Message ingested")
	}
}
