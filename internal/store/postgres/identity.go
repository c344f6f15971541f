package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/dvloznov/finko-backend/internal/domain"
)

// === Users ===

// FindUserIDByEmail returns "" when no active user has that email.
func (s *Store) FindUserIDByEmail(ctx context.Context, email string) (string, error) {
	var id string
	err := s.db.QueryRow(ctx,
		"SELECT id::text FROM users WHERE LOWER(email) = LOWER($1) AND active",
		strings.TrimSpace(email),
	).Scan(&id)
	if err != nil {
		if isNoRows(err) {
			return "", nil
		}
		return "", fmt.Errorf("find user by email: %w", err)
	}
	return id, nil
}

// FindUser returns nil when the id is unknown.
func (s *Store) FindUser(ctx context.Context, userID string) (*domain.User, error) {
	var u domain.User
	err := s.db.QueryRow(ctx,
		"SELECT id::text, email, role FROM users WHERE id::text = $1",
		userID,
	).Scan(&u.ID, &u.Email, &u.Role)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return &u, nil
}

// === Banking keys ===

// FindUserByPublicKey returns "" when the key is not registered.
func (s *Store) FindUserByPublicKey(ctx context.Context, publicKey string) (string, error) {
	key, err := s.FindKeyByPublicKey(ctx, publicKey)
	if err != nil || key == nil {
		return "", err
	}
	return key.UserID, nil
}

// FindKeyByPublicKey returns nil when the key is not registered.
func (s *Store) FindKeyByPublicKey(ctx context.Context, publicKey string) (*domain.IdentityKey, error) {
	var k domain.IdentityKey
	err := s.db.QueryRow(ctx, `
		SELECT id::text, user_id::text, public_key, created_at, updated_at
		FROM banco_chile_keys
		WHERE public_key = $1
	`, publicKey).Scan(&k.ID, &k.UserID, &k.PublicKey, &k.CreatedAt, &k.UpdatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("find key: %w", err)
	}
	return &k, nil
}

// InsertKey returns domain.ErrDuplicate when the key is already registered.
func (s *Store) InsertKey(ctx context.Context, userID, publicKey string) (*domain.IdentityKey, error) {
	k := domain.IdentityKey{UserID: userID, PublicKey: publicKey}
	err := s.db.QueryRow(ctx, `
		INSERT INTO banco_chile_keys (user_id, public_key)
		VALUES ($1::uuid, $2)
		RETURNING id::text, created_at, updated_at
	`, userID, publicKey).Scan(&k.ID, &k.CreatedAt, &k.UpdatedAt)
	if err != nil {
		if IsUniqueViolation(err) {
			return nil, fmt.Errorf("insert key: %w", domain.ErrDuplicate)
		}
		return nil, fmt.Errorf("insert key: %w", err)
	}
	return &k, nil
}

func (s *Store) ListKeys(ctx context.Context, userID string) ([]domain.IdentityKey, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id::text, user_id::text, public_key, created_at, updated_at
		FROM banco_chile_keys
		WHERE user_id = $1::uuid
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	defer rows.Close()

	keys := []domain.IdentityKey{}
	for rows.Next() {
		var k domain.IdentityKey
		if err := rows.Scan(&k.ID, &k.UserID, &k.PublicKey, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// DeleteKey removes a key owned by userID, or returns domain.ErrNotFound.
func (s *Store) DeleteKey(ctx context.Context, userID, keyID string) error {
	tag, err := s.db.Exec(ctx,
		"DELETE FROM banco_chile_keys WHERE id::text = $1 AND user_id::text = $2",
		keyID, userID,
	)
	if err != nil {
		return fmt.Errorf("delete key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
