package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dvloznov/finko-backend/internal/domain"
	"github.com/jackc/pgx/v5"
)

const connectionColumns = `user_id::text, gmail_address, refresh_token, history_id, watch_expiration, created_at, updated_at`

func scanConnection(row pgx.Row) (*domain.BankConnection, error) {
	var (
		c         domain.BankConnection
		historyID int64
		expires   *time.Time
	)
	if err := row.Scan(&c.UserID, &c.GmailAddress, &c.RefreshToken, &historyID, &expires, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.HistoryID = uint64(historyID)
	c.WatchExpiration = nullableTime(expires)
	return &c, nil
}

// FindConnectionByAddress returns nil when the mailbox is not connected.
func (s *Store) FindConnectionByAddress(ctx context.Context, gmailAddress string) (*domain.BankConnection, error) {
	c, err := scanConnection(s.db.QueryRow(ctx,
		"SELECT "+connectionColumns+" FROM gmail_connections WHERE LOWER(gmail_address) = LOWER($1)",
		strings.TrimSpace(gmailAddress),
	))
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("find connection by address: %w", err)
	}
	return c, nil
}

// FindConnectionByUser returns nil when the user has no mailbox connected.
func (s *Store) FindConnectionByUser(ctx context.Context, userID string) (*domain.BankConnection, error) {
	c, err := scanConnection(s.db.QueryRow(ctx,
		"SELECT "+connectionColumns+" FROM gmail_connections WHERE user_id::text = $1",
		userID,
	))
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("find connection by user: %w", err)
	}
	return c, nil
}

func (s *Store) ListConnections(ctx context.Context) ([]domain.BankConnection, error) {
	rows, err := s.db.Query(ctx, "SELECT "+connectionColumns+" FROM gmail_connections ORDER BY created_at")
	if err != nil {
		return nil, fmt.Errorf("list connections: %w", err)
	}
	defer rows.Close()

	var out []domain.BankConnection
	for rows.Next() {
		c, err := scanConnection(rows)
		if err != nil {
			return nil, fmt.Errorf("scan connection: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// UpsertConnection stores the user's single mailbox connection, replacing
// any previous one. Reconnecting resets the history cursor.
func (s *Store) UpsertConnection(ctx context.Context, c domain.BankConnection) error {
	var expires any
	if !c.WatchExpiration.IsZero() {
		expires = c.WatchExpiration
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO gmail_connections (user_id, gmail_address, refresh_token, history_id, watch_expiration)
		VALUES ($1::uuid, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO UPDATE SET
			gmail_address = EXCLUDED.gmail_address,
			refresh_token = EXCLUDED.refresh_token,
			history_id = EXCLUDED.history_id,
			watch_expiration = EXCLUDED.watch_expiration,
			updated_at = NOW()
	`, c.UserID, strings.ToLower(strings.TrimSpace(c.GmailAddress)), c.RefreshToken, int64(c.HistoryID), expires)
	if err != nil {
		if IsUniqueViolation(err) {
			return fmt.Errorf("upsert connection: %w", domain.ErrConflict)
		}
		return fmt.Errorf("upsert connection: %w", err)
	}
	return nil
}

// UpdateHistoryID moves the cursor forward. It never moves backwards.
func (s *Store) UpdateHistoryID(ctx context.Context, gmailAddress string, historyID uint64) error {
	_, err := s.db.Exec(ctx, `
		UPDATE gmail_connections
		SET history_id = GREATEST(history_id, $2), updated_at = NOW()
		WHERE LOWER(gmail_address) = LOWER($1)
	`, gmailAddress, int64(historyID))
	if err != nil {
		return fmt.Errorf("update history id: %w", err)
	}
	return nil
}

// UpdateWatch records a renewed watch registration. The history cursor is
// only seeded when it was never set; an established cursor is left alone so
// messages between it and the renewal point are still walked.
func (s *Store) UpdateWatch(ctx context.Context, userID string, historyID uint64, expiration time.Time) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE gmail_connections
		SET history_id = CASE WHEN history_id = 0 THEN $2 ELSE history_id END,
			watch_expiration = $3, updated_at = NOW()
		WHERE user_id::text = $1
	`, userID, int64(historyID), expiration)
	if err != nil {
		return fmt.Errorf("update watch: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteConnection(ctx context.Context, userID string) error {
	if _, err := s.db.Exec(ctx, "DELETE FROM gmail_connections WHERE user_id::text = $1", userID); err != nil {
		return fmt.Errorf("delete connection: %w", err)
	}
	return nil
}

// === Processed email markers ===

func (s *Store) IsProcessed(ctx context.Context, gmailMessageID string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM processed_emails WHERE gmail_message_id = $1)",
		gmailMessageID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check processed email: %w", err)
	}
	return exists, nil
}

// MarkProcessed returns domain.ErrDuplicate when the marker already exists.
func (s *Store) MarkProcessed(ctx context.Context, m domain.ProcessedEmailMarker) error {
	_, err := s.db.Exec(ctx,
		"INSERT INTO processed_emails (gmail_message_id, user_id) VALUES ($1, $2::uuid)",
		m.GmailMessageID, m.UserID,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return fmt.Errorf("mark processed: %w", domain.ErrDuplicate)
		}
		return fmt.Errorf("mark processed: %w", err)
	}
	return nil
}
