package extraction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/finko-backend/internal/cloudevent"
	"github.com/dvloznov/finko-backend/internal/domain"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// ErrUnavailable wraps failures to reach the model at all.
var ErrUnavailable = errors.New("extraction service unavailable")

// Request is one email to extract transactions from.
type Request struct {
	Body         string
	EmailDate    string // as found in the email, may be empty
	BankName     string
	Instructions string
}

// Gateway validates model output into domain transactions.
// The model is called once per Extract; results are not deterministic, so
// callers must not retry an email that may already have been persisted.
type Gateway struct {
	model Model
	now   func() time.Time
	log   zerolog.Logger
}

// NewGateway creates a gateway over model.
func NewGateway(model Model, log zerolog.Logger) *Gateway {
	return &Gateway{model: model, now: time.Now, log: log}
}

// Extract returns the transactions found in req.Body. A reply that is not
// usable JSON yields an empty slice and no error; only transport failures
// are returned, wrapped in ErrUnavailable.
func (g *Gateway) Extract(ctx context.Context, req Request) ([]domain.ParsedTransaction, error) {
	raw, err := g.model.Complete(ctx, systemPrompt(req.BankName, req.Instructions), userPrompt(req.Body, req.EmailDate))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	items, err := decodeItems(raw)
	if err != nil {
		g.log.Warn().Err(err).Str("raw_response", truncate(raw, 500)).Msg("Discarding malformed extraction response")
		return []domain.ParsedTransaction{}, nil
	}

	fallback := civil.DateOf(g.now())
	if d, ok := cloudevent.ParseDate(req.EmailDate); ok {
		fallback = d
	}

	txs := make([]domain.ParsedTransaction, 0, len(items))
	for i, item := range items {
		tx, ok := toTransaction(item, fallback)
		if !ok {
			g.log.Debug().Int("index", i).Msg("Dropping extracted item with unexpected shape")
			continue
		}
		txs = append(txs, tx)
	}
	return txs, nil
}

// decodeItems accepts a top-level array or an object with a "transactions" array.
func decodeItems(raw string) ([]json.RawMessage, error) {
	clean := cleanModelJSON(raw)
	if clean == "" {
		return nil, nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal([]byte(clean), &items); err == nil {
		return items, nil
	}

	var wrapped struct {
		Transactions []json.RawMessage `json:"transactions"`
	}
	if err := json.Unmarshal([]byte(clean), &wrapped); err != nil {
		return nil, fmt.Errorf("decode model output: %w", err)
	}
	return wrapped.Transactions, nil
}

// cleanModelJSON strips markdown fences and any prose around the JSON value.
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		} else {
			return ""
		}
	}
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	s = strings.TrimSpace(s)

	start := strings.IndexAny(s, "[{")
	if start == -1 {
		return s
	}
	closer := "]"
	if s[start] == '{' {
		closer = "}"
	}
	if end := strings.LastIndex(s, closer); end > start {
		s = s[start : end+1]
	}
	return s
}

type item struct {
	Merchant json.RawMessage `json:"merchant"`
	Amount   json.RawMessage `json:"amount"`
	Date     json.RawMessage `json:"date"`
	Category json.RawMessage `json:"category"`
	Type     json.RawMessage `json:"type"`
}

func toTransaction(raw json.RawMessage, fallback civil.Date) (domain.ParsedTransaction, bool) {
	var it item
	if err := json.Unmarshal(raw, &it); err != nil {
		return domain.ParsedTransaction{}, false
	}

	merchant, ok1 := asString(it.Merchant)
	date, ok2 := asString(it.Date)
	category, ok3 := asString(it.Category)
	kind, ok4 := asString(it.Type)
	amount, ok5 := asAmount(it.Amount)
	if !ok1 || !ok2 || !ok3 || !ok4 || !ok5 {
		return domain.ParsedTransaction{}, false
	}
	if !amount.IsPositive() {
		return domain.ParsedTransaction{}, false
	}

	if !domain.IsKnownCategory(category) {
		category = domain.DefaultExpenseCategory
	}
	direction := domain.DirectionExpense
	if kind == string(domain.DirectionIncome) {
		direction = domain.DirectionIncome
	}
	d, ok := cloudevent.ParseDate(date)
	if !ok {
		d = fallback
	}

	return domain.ParsedTransaction{
		Amount:    amount,
		Merchant:  strings.TrimSpace(merchant),
		Date:      d,
		Direction: direction,
		Category:  category,
	}, true
}

func asString(raw json.RawMessage) (string, bool) {
	var s string
	if len(raw) == 0 || raw[0] != '"' || json.Unmarshal(raw, &s) != nil {
		return "", false
	}
	return s, true
}

var plainDecimal = regexp.MustCompile(`^-?\d+(\.\d{1,2})?$`)

// asAmount accepts a JSON number or a numeric string. Strings that are not
// plain decimals are read as Chilean formatted amounts ("15.500").
func asAmount(raw json.RawMessage) (decimal.Decimal, bool) {
	if len(raw) == 0 {
		return decimal.Decimal{}, false
	}
	if raw[0] == '"' {
		s, ok := asString(raw)
		if !ok {
			return decimal.Decimal{}, false
		}
		s = strings.TrimSpace(s)
		if plainDecimal.MatchString(s) {
			d, err := decimal.NewFromString(s)
			return d, err == nil
		}
		return cloudevent.ParseLocalAmount(s)
	}

	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return decimal.Decimal{}, false
	}
	d, err := decimal.NewFromString(n.String())
	return d, err == nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
