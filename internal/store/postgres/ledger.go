package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/finko-backend/internal/domain"
	"github.com/shopspring/decimal"
)

type ledgerTable string

const (
	expensesTable ledgerTable = "expenses"
	incomesTable  ledgerTable = "incomes"
)

func (s *Store) CreateExpense(ctx context.Context, userID string, tx domain.ParsedTransaction, category string) (*domain.Expense, error) {
	entry, err := s.insertEntry(ctx, expensesTable, userID, tx, category)
	if err != nil {
		return nil, fmt.Errorf("create expense: %w", err)
	}
	return &domain.Expense{LedgerEntry: *entry}, nil
}

func (s *Store) CreateIncome(ctx context.Context, userID string, tx domain.ParsedTransaction, category string) (*domain.Income, error) {
	entry, err := s.insertEntry(ctx, incomesTable, userID, tx, category)
	if err != nil {
		return nil, fmt.Errorf("create income: %w", err)
	}
	return &domain.Income{LedgerEntry: *entry}, nil
}

func (s *Store) insertEntry(ctx context.Context, table ledgerTable, userID string, tx domain.ParsedTransaction, category string) (*domain.LedgerEntry, error) {
	if !tx.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive, got %s", domain.ErrInvalidInput, tx.Amount)
	}
	if !tx.Date.IsValid() {
		return nil, fmt.Errorf("%w: invalid date", domain.ErrInvalidInput)
	}

	entry := domain.LedgerEntry{
		UserID:   userID,
		Merchant: strings.TrimSpace(tx.Merchant),
		Amount:   tx.Amount,
		Category: category,
		Date:     tx.Date,
	}
	err := s.db.QueryRow(ctx, `
		INSERT INTO `+string(table)+` (user_id, merchant, amount, category, date)
		VALUES ($1::uuid, $2, $3::numeric, $4, $5::date)
		RETURNING id::text, created_at, updated_at
	`, userID, entry.Merchant, tx.Amount.String(), category, tx.Date.String()).Scan(&entry.ID, &entry.CreatedAt, &entry.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (s *Store) ListExpenses(ctx context.Context, userID string, f domain.LedgerFilter) ([]domain.Expense, error) {
	entries, err := s.listEntries(ctx, expensesTable, userID, f)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	out := make([]domain.Expense, 0, len(entries))
	for _, e := range entries {
		out = append(out, domain.Expense{LedgerEntry: e})
	}
	return out, nil
}

func (s *Store) ListIncomes(ctx context.Context, userID string, f domain.LedgerFilter) ([]domain.Income, error) {
	entries, err := s.listEntries(ctx, incomesTable, userID, f)
	if err != nil {
		return nil, fmt.Errorf("list incomes: %w", err)
	}
	out := make([]domain.Income, 0, len(entries))
	for _, e := range entries {
		out = append(out, domain.Income{LedgerEntry: e})
	}
	return out, nil
}

func (s *Store) listEntries(ctx context.Context, table ledgerTable, userID string, f domain.LedgerFilter) ([]domain.LedgerEntry, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 500
	}

	rows, err := s.db.Query(ctx, `
		SELECT id::text, user_id::text, merchant, amount::text, category, date, created_at, updated_at
		FROM `+string(table)+`
		WHERE user_id::text = $1
		  AND ($2::date IS NULL OR date >= $2::date)
		  AND ($3::date IS NULL OR date <= $3::date)
		ORDER BY date DESC, created_at DESC
		LIMIT $4
	`, userID, dateParam(f.From), dateParam(f.To), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.LedgerEntry
	for rows.Next() {
		var (
			e      domain.LedgerEntry
			amount string
			date   time.Time
		)
		if err := rows.Scan(&e.ID, &e.UserID, &e.Merchant, &amount, &e.Category, &date, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		if e.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("parse amount %q: %w", amount, err)
		}
		e.Date = civil.DateOf(date)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Summary totals incomes and expenses over a calendar year or month.
// year <= 0 covers the whole ledger.
func (s *Store) Summary(ctx context.Context, userID string, year, month int) (*domain.Summary, error) {
	f := domain.PeriodFilter(year, month)

	incomes, err := s.total(ctx, incomesTable, userID, f)
	if err != nil {
		return nil, fmt.Errorf("summary incomes: %w", err)
	}
	expenses, err := s.total(ctx, expensesTable, userID, f)
	if err != nil {
		return nil, fmt.Errorf("summary expenses: %w", err)
	}
	return &domain.Summary{
		TotalIncomes:  incomes,
		TotalExpenses: expenses,
		Balance:       incomes.Sub(expenses),
	}, nil
}

func (s *Store) total(ctx context.Context, table ledgerTable, userID string, f domain.LedgerFilter) (decimal.Decimal, error) {
	var sum string
	err := s.db.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0)::text
		FROM `+string(table)+`
		WHERE user_id::text = $1
		  AND ($2::date IS NULL OR date >= $2::date)
		  AND ($3::date IS NULL OR date <= $3::date)
	`, userID, dateParam(f.From), dateParam(f.To)).Scan(&sum)
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(sum)
}
