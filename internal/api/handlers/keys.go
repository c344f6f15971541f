package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/dvloznov/finko-backend/internal/api/middleware"
	"github.com/dvloznov/finko-backend/internal/domain"
	"github.com/rs/zerolog"
)

// KeyManager manages the banking API keys linked to a user.
type KeyManager interface {
	Associate(ctx context.Context, userID, publicKey string) (*domain.IdentityKey, error)
	List(ctx context.Context, userID string) ([]domain.IdentityKey, error)
	Remove(ctx context.Context, userID, keyID string) error
}

// KeysHandler handles /bancochile/keys.
type KeysHandler struct {
	keys KeyManager
	log  zerolog.Logger
}

func NewKeysHandler(keys KeyManager, log zerolog.Logger) *KeysHandler {
	return &KeysHandler{keys: keys, log: log}
}

type associateKeyRequest struct {
	PublicKey string `json:"publicKey"`
}

// AssociateKey handles POST /bancochile/keys
func (h *KeysHandler) AssociateKey(w http.ResponseWriter, r *http.Request) {
	claims, _ := middleware.ClaimsFromContext(r.Context())

	var req associateKeyRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxWebhookBody)).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	key, err := h.keys.Associate(r.Context(), claims.UserID, req.PublicKey)
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		middleware.WriteError(w, http.StatusBadRequest, "publicKey is required")
	case errors.Is(err, domain.ErrConflict):
		middleware.WriteError(w, http.StatusConflict, "publicKey is already associated with another user")
	case err != nil:
		requestLogger(r, h.log).Error().Err(err).Str("user_id", claims.UserID).Msg("Failed to associate key")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to associate key")
	default:
		middleware.WriteJSON(w, http.StatusCreated, key)
	}
}

// ListKeys handles GET /bancochile/keys
func (h *KeysHandler) ListKeys(w http.ResponseWriter, r *http.Request) {
	claims, _ := middleware.ClaimsFromContext(r.Context())

	keys, err := h.keys.List(r.Context(), claims.UserID)
	if err != nil {
		requestLogger(r, h.log).Error().Err(err).Str("user_id", claims.UserID).Msg("Failed to list keys")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list keys")
		return
	}
	if keys == nil {
		keys = []domain.IdentityKey{}
	}
	middleware.WriteJSON(w, http.StatusOK, keys)
}

// RemoveKey handles DELETE /bancochile/keys/{id}
func (h *KeysHandler) RemoveKey(w http.ResponseWriter, r *http.Request) {
	claims, _ := middleware.ClaimsFromContext(r.Context())
	keyID := strings.TrimSpace(r.PathValue("id"))

	err := h.keys.Remove(r.Context(), claims.UserID, keyID)
	if errors.Is(err, domain.ErrNotFound) {
		middleware.WriteError(w, http.StatusNotFound, "Key not found")
		return
	}
	if err != nil {
		requestLogger(r, h.log).Error().Err(err).Str("key_id", keyID).Msg("Failed to remove key")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to remove key")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
