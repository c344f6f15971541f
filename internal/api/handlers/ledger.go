package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/finko-backend/internal/api/middleware"
	"github.com/dvloznov/finko-backend/internal/domain"
	"github.com/rs/zerolog"
)

// LedgerReader reads a user's expenses and incomes.
type LedgerReader interface {
	ListExpenses(ctx context.Context, userID string, f domain.LedgerFilter) ([]domain.Expense, error)
	ListIncomes(ctx context.Context, userID string, f domain.LedgerFilter) ([]domain.Income, error)
	Summary(ctx context.Context, userID string, year, month int) (*domain.Summary, error)
}

// LedgerHandler serves read-only views of the ledger written by ingestion.
type LedgerHandler struct {
	ledger LedgerReader
	log    zerolog.Logger
}

func NewLedgerHandler(ledger LedgerReader, log zerolog.Logger) *LedgerHandler {
	return &LedgerHandler{ledger: ledger, log: log}
}

var errMonthWithoutYear = errors.New("month requires year")

// ListExpenses handles GET /expenses
func (h *LedgerHandler) ListExpenses(w http.ResponseWriter, r *http.Request) {
	claims, _ := middleware.ClaimsFromContext(r.Context())
	filter, err := ledgerFilter(r.URL.Query())
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	expenses, err := h.ledger.ListExpenses(r.Context(), claims.UserID, filter)
	if err != nil {
		requestLogger(r, h.log).Error().Err(err).Str("user_id", claims.UserID).Msg("Failed to list expenses")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list expenses")
		return
	}
	if expenses == nil {
		expenses = []domain.Expense{}
	}
	middleware.WriteJSON(w, http.StatusOK, expenses)
}

// ListIncomes handles GET /incomes
func (h *LedgerHandler) ListIncomes(w http.ResponseWriter, r *http.Request) {
	claims, _ := middleware.ClaimsFromContext(r.Context())
	filter, err := ledgerFilter(r.URL.Query())
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	incomes, err := h.ledger.ListIncomes(r.Context(), claims.UserID, filter)
	if err != nil {
		requestLogger(r, h.log).Error().Err(err).Str("user_id", claims.UserID).Msg("Failed to list incomes")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list incomes")
		return
	}
	if incomes == nil {
		incomes = []domain.Income{}
	}
	middleware.WriteJSON(w, http.StatusOK, incomes)
}

// Summary handles GET /summary
func (h *LedgerHandler) Summary(w http.ResponseWriter, r *http.Request) {
	claims, _ := middleware.ClaimsFromContext(r.Context())
	year, month, err := period(r.URL.Query())
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	summary, err := h.ledger.Summary(r.Context(), claims.UserID, year, month)
	if err != nil {
		requestLogger(r, h.log).Error().Err(err).Str("user_id", claims.UserID).Msg("Failed to compute summary")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to compute summary")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, summary)
}

// period reads year and month. Zero means the parameter was absent.
func period(q url.Values) (int, int, error) {
	year, err := optionalInt(q, "year", 1, 9999)
	if err != nil {
		return 0, 0, err
	}
	month, err := optionalInt(q, "month", 1, 12)
	if err != nil {
		return 0, 0, err
	}
	if month != 0 && year == 0 {
		return 0, 0, errMonthWithoutYear
	}
	return year, month, nil
}

// ledgerFilter accepts either year[/month] or an explicit from/to range.
// An explicit bound overrides the one derived from the period.
func ledgerFilter(q url.Values) (domain.LedgerFilter, error) {
	year, month, err := period(q)
	if err != nil {
		return domain.LedgerFilter{}, err
	}
	f := domain.PeriodFilter(year, month)

	for _, b := range []struct {
		key string
		dst *civil.Date
	}{{"from", &f.From}, {"to", &f.To}} {
		v := q.Get(b.key)
		if v == "" {
			continue
		}
		d, err := civil.ParseDate(v)
		if err != nil {
			return domain.LedgerFilter{}, fmt.Errorf("%s must be a YYYY-MM-DD date", b.key)
		}
		*b.dst = d
	}

	if f.From.IsValid() && f.To.IsValid() && f.To.Before(f.From) {
		return domain.LedgerFilter{}, errors.New("to must not be before from")
	}

	limit, err := optionalInt(q, "limit", 1, 1000)
	if err != nil {
		return domain.LedgerFilter{}, err
	}
	f.Limit = limit
	return f, nil
}

func optionalInt(q url.Values, key string, lo, hi int) (int, error) {
	v := q.Get(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < lo || n > hi {
		return 0, fmt.Errorf("%s must be an integer between %d and %d", key, lo, hi)
	}
	return n, nil
}
