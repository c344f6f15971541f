package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dvloznov/finko-backend/internal/domain"
)

// KeyStore persists public-key associations. FindKeyByPublicKey returns nil
// when the key is unknown; DeleteKey returns domain.ErrNotFound when no row
// matched both id and user.
type KeyStore interface {
	FindKeyByPublicKey(ctx context.Context, publicKey string) (*domain.IdentityKey, error)
	InsertKey(ctx context.Context, userID, publicKey string) (*domain.IdentityKey, error)
	ListKeys(ctx context.Context, userID string) ([]domain.IdentityKey, error)
	DeleteKey(ctx context.Context, userID, keyID string) error
}

// KeyService manages the public keys a user registers for the banking webhook.
type KeyService struct {
	store KeyStore
}

// NewKeyService creates a new key service.
func NewKeyService(store KeyStore) *KeyService {
	return &KeyService{store: store}
}

// Associate links publicKey to userID. Associating a key the user already owns
// returns the existing record; a key owned by someone else yields domain.ErrConflict.
func (s *KeyService) Associate(ctx context.Context, userID, publicKey string) (*domain.IdentityKey, error) {
	publicKey = strings.TrimSpace(publicKey)
	if publicKey == "" {
		return nil, fmt.Errorf("%w: publicKey is required", domain.ErrInvalidInput)
	}

	existing, err := s.owned(ctx, userID, publicKey)
	if err != nil || existing != nil {
		return existing, err
	}

	key, err := s.store.InsertKey(ctx, userID, publicKey)
	if errors.Is(err, domain.ErrDuplicate) {
		// Lost a race with another insert of the same key.
		key, err = s.owned(ctx, userID, publicKey)
		if err == nil && key == nil {
			err = fmt.Errorf("Associate: %w", domain.ErrConflict)
		}
		return key, err
	}
	if err != nil {
		return nil, fmt.Errorf("Associate: %w", err)
	}
	return key, nil
}

func (s *KeyService) owned(ctx context.Context, userID, publicKey string) (*domain.IdentityKey, error) {
	existing, err := s.store.FindKeyByPublicKey(ctx, publicKey)
	if err != nil {
		return nil, fmt.Errorf("Associate: lookup key: %w", err)
	}
	if existing == nil {
		return nil, nil
	}
	if existing.UserID != userID {
		return nil, fmt.Errorf("%w: publicKey is already associated with another user", domain.ErrConflict)
	}
	return existing, nil
}

// List returns the user's keys, newest first.
func (s *KeyService) List(ctx context.Context, userID string) ([]domain.IdentityKey, error) {
	keys, err := s.store.ListKeys(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("List: %w", err)
	}
	return keys, nil
}

// Remove deletes one of the user's keys.
func (s *KeyService) Remove(ctx context.Context, userID, keyID string) error {
	if err := s.store.DeleteKey(ctx, userID, keyID); err != nil {
		return fmt.Errorf("Remove: %w", err)
	}
	return nil
}
