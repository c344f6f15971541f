package identity

import (
	"context"
	"errors"
	"testing"

	"github.com/dvloznov/finko-backend/internal/domain"
)

// MockKeyStore is a mock implementation of KeyStore for testing.
type MockKeyStore struct {
	FindKeyByPublicKeyFunc func(ctx context.Context, publicKey string) (*domain.IdentityKey, error)
	InsertKeyFunc          func(ctx context.Context, userID, publicKey string) (*domain.IdentityKey, error)
	ListKeysFunc           func(ctx context.Context, userID string) ([]domain.IdentityKey, error)
	DeleteKeyFunc          func(ctx context.Context, userID, keyID string) error
}

func (m *MockKeyStore) FindKeyByPublicKey(ctx context.Context, publicKey string) (*domain.IdentityKey, error) {
	if m.FindKeyByPublicKeyFunc != nil {
		return m.FindKeyByPublicKeyFunc(ctx, publicKey)
	}
	return nil, nil
}

func (m *MockKeyStore) InsertKey(ctx context.Context, userID, publicKey string) (*domain.IdentityKey, error) {
	if m.InsertKeyFunc != nil {
		return m.InsertKeyFunc(ctx, userID, publicKey)
	}
	return &domain.IdentityKey{ID: "new", UserID: userID, PublicKey: publicKey}, nil
}

func (m *MockKeyStore) ListKeys(ctx context.Context, userID string) ([]domain.IdentityKey, error) {
	if m.ListKeysFunc != nil {
		return m.ListKeysFunc(ctx, userID)
	}
	return nil, nil
}

func (m *MockKeyStore) DeleteKey(ctx context.Context, userID, keyID string) error {
	if m.DeleteKeyFunc != nil {
		return m.DeleteKeyFunc(ctx, userID, keyID)
	}
	return nil
}

func TestAssociate(t *testing.T) {
	ctx := context.Background()

	t.Run("trims and inserts", func(t *testing.T) {
		var inserted string
		svc := NewKeyService(&MockKeyStore{
			InsertKeyFunc: func(_ context.Context, userID, pk string) (*domain.IdentityKey, error) {
				inserted = pk
				return &domain.IdentityKey{ID: "k1", UserID: userID, PublicKey: pk}, nil
			},
		})
		key, err := svc.Associate(ctx, "u1", "  pk-1 ")
		if err != nil {
			t.Fatalf("Associate() error = %v", err)
		}
		if inserted != "pk-1" || key.ID != "k1" {
			t.Errorf("unexpected insert %q / key %+v", inserted, key)
		}
	})

	t.Run("blank key rejected", func(t *testing.T) {
		_, err := NewKeyService(&MockKeyStore{}).Associate(ctx, "u1", "   ")
		if !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("same owner is idempotent", func(t *testing.T) {
		svc := NewKeyService(&MockKeyStore{
			FindKeyByPublicKeyFunc: func(context.Context, string) (*domain.IdentityKey, error) {
				return &domain.IdentityKey{ID: "k1", UserID: "u1", PublicKey: "pk"}, nil
			},
			InsertKeyFunc: func(context.Context, string, string) (*domain.IdentityKey, error) {
				t.Fatal("insert must not be called")
				return nil, nil
			},
		})
		key, err := svc.Associate(ctx, "u1", "pk")
		if err != nil || key.ID != "k1" {
			t.Errorf("Associate() = %+v, %v", key, err)
		}
	})

	t.Run("other owner conflicts", func(t *testing.T) {
		svc := NewKeyService(&MockKeyStore{
			FindKeyByPublicKeyFunc: func(context.Context, string) (*domain.IdentityKey, error) {
				return &domain.IdentityKey{ID: "k1", UserID: "u2", PublicKey: "pk"}, nil
			},
		})
		_, err := svc.Associate(ctx, "u1", "pk")
		if !errors.Is(err, domain.ErrConflict) {
			t.Errorf("expected ErrConflict, got %v", err)
		}
	})

	t.Run("insert race resolves to winner", func(t *testing.T) {
		calls := 0
		svc := NewKeyService(&MockKeyStore{
			FindKeyByPublicKeyFunc: func(context.Context, string) (*domain.IdentityKey, error) {
				calls++
				if calls == 1 {
					return nil, nil
				}
				return &domain.IdentityKey{ID: "k9", UserID: "u2", PublicKey: "pk"}, nil
			},
			InsertKeyFunc: func(context.Context, string, string) (*domain.IdentityKey, error) {
				return nil, domain.ErrDuplicate
			},
		})
		_, err := svc.Associate(ctx, "u1", "pk")
		if !errors.Is(err, domain.ErrConflict) {
			t.Errorf("expected ErrConflict after losing race, got %v", err)
		}
	})
}

func TestRemove_NotFound(t *testing.T) {
	svc := NewKeyService(&MockKeyStore{
		DeleteKeyFunc: func(context.Context, string, string) error { return domain.ErrNotFound },
	})
	if err := svc.Remove(context.Background(), "u1", "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
