package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dvloznov/finko-backend/internal/api/middleware"
	"github.com/dvloznov/finko-backend/internal/bankprofile"
	"github.com/dvloznov/finko-backend/internal/domain"
	"github.com/rs/zerolog"
)

// ProfileStore persists bank email profiles.
type ProfileStore interface {
	ListProfiles(ctx context.Context) ([]domain.BankEmailProfile, error)
	CreateProfile(ctx context.Context, p domain.BankEmailProfile) (*domain.BankEmailProfile, error)
	UpdateProfile(ctx context.Context, p domain.BankEmailProfile) (*domain.BankEmailProfile, error)
	DeleteProfile(ctx context.Context, id string) error
}

// ProfilesHandler handles the admin bank email profile endpoints.
type ProfilesHandler struct {
	store ProfileStore
	log   zerolog.Logger
}

func NewProfilesHandler(store ProfileStore, log zerolog.Logger) *ProfilesHandler {
	return &ProfilesHandler{store: store, log: log}
}

// ListProfiles handles GET /bank-email-configs
func (h *ProfilesHandler) ListProfiles(w http.ResponseWriter, r *http.Request) {
	profiles, err := h.store.ListProfiles(r.Context())
	if err != nil {
		requestLogger(r, h.log).Error().Err(err).Msg("Failed to list bank email profiles")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list bank email configs")
		return
	}
	if profiles == nil {
		profiles = []domain.BankEmailProfile{}
	}
	middleware.WriteJSON(w, http.StatusOK, profiles)
}

// CreateProfile handles POST /bank-email-configs
func (h *ProfilesHandler) CreateProfile(w http.ResponseWriter, r *http.Request) {
	in, ok := decodeProfileInput(w, r)
	if !ok {
		return
	}

	created, err := h.store.CreateProfile(r.Context(), in.Profile())
	if err != nil {
		requestLogger(r, h.log).Error().Err(err).Str("bank_name", in.BankName).Msg("Failed to create bank email profile")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to create bank email config")
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, created)
}

// UpdateProfile handles PUT /bank-email-configs/{id}
func (h *ProfilesHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	in, ok := decodeProfileInput(w, r)
	if !ok {
		return
	}

	p := in.Profile()
	p.ID = id
	updated, err := h.store.UpdateProfile(r.Context(), p)
	if errors.Is(err, domain.ErrNotFound) {
		middleware.WriteError(w, http.StatusNotFound, "Bank email config not found")
		return
	}
	if err != nil {
		requestLogger(r, h.log).Error().Err(err).Str("profile_id", id).Msg("Failed to update bank email profile")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to update bank email config")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, updated)
}

// DeleteProfile handles DELETE /bank-email-configs/{id}
func (h *ProfilesHandler) DeleteProfile(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	err := h.store.DeleteProfile(r.Context(), id)
	if errors.Is(err, domain.ErrNotFound) {
		middleware.WriteError(w, http.StatusNotFound, "Bank email config not found")
		return
	}
	if err != nil {
		requestLogger(r, h.log).Error().Err(err).Str("profile_id", id).Msg("Failed to delete bank email profile")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to delete bank email config")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func decodeProfileInput(w http.ResponseWriter, r *http.Request) (*bankprofile.Input, bool) {
	var in bankprofile.Input
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxWebhookBody)).Decode(&in); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return nil, false
	}
	if err := in.Validate(); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	return &in, true
}
