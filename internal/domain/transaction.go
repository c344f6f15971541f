package domain

import (
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// Direction tells whether a transaction moved money out of or into the account.
type Direction string

const (
	DirectionExpense Direction = "expense"
	DirectionIncome  Direction = "income"
)

// ParsedTransaction is one transaction recovered from a webhook payload or a bank email.
// It is never stored as-is; the orchestrator turns it into an Expense or an Income.
type ParsedTransaction struct {
	Amount    decimal.Decimal // always positive
	Merchant  string
	Date      civil.Date // calendar date, no time of day
	Direction Direction
	Category  string // empty when the source carries no category
}

// LedgerEntry holds the fields shared by expenses and incomes.
type LedgerEntry struct {
	ID        string          `json:"id"`
	UserID    string          `json:"userId"`
	Merchant  string          `json:"merchant"`
	Amount    decimal.Decimal `json:"amount"`
	Category  string          `json:"category"`
	Date      civil.Date      `json:"date"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// Expense is money going out of the user's accounts.
type Expense struct {
	LedgerEntry
}

// Income is money coming into the user's accounts.
type Income struct {
	LedgerEntry
}

// Summary aggregates a user's ledger over an optional year/month window.
type Summary struct {
	TotalIncomes  decimal.Decimal `json:"totalIncomes"`
	TotalExpenses decimal.Decimal `json:"totalExpenses"`
	Balance       decimal.Decimal `json:"balance"`
}

// LedgerFilter narrows ledger listings. Zero values mean "no bound".
type LedgerFilter struct {
	From  civil.Date
	To    civil.Date
	Limit int
}

// PeriodFilter returns the filter covering a calendar year, or one month of it
// when month is 1-12. A year <= 0 means no bound at all.
func PeriodFilter(year, month int) LedgerFilter {
	if year <= 0 {
		return LedgerFilter{}
	}
	if month >= 1 && month <= 12 {
		last := time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC)
		return LedgerFilter{
			From: civil.Date{Year: year, Month: time.Month(month), Day: 1},
			To:   civil.DateOf(last),
		}
	}
	return LedgerFilter{
		From: civil.Date{Year: year, Month: time.January, Day: 1},
		To:   civil.Date{Year: year, Month: time.December, Day: 31},
	}
}
