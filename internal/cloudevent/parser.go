package cloudevent

import (
	"encoding/json"
	"regexp"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/finko-backend/internal/domain"
	"github.com/shopspring/decimal"
)

// DefaultMerchant is used when the payload names no merchant.
const DefaultMerchant = "Banco de Chile"

// Each field is read by an ordered list of probes. The first probe that
// yields a value wins; later probes are not consulted.
type (
	amountProbe    func(data map[string]any) (decimal.Decimal, bool)
	dateProbe      func(ev *CloudEvent) (civil.Date, bool)
	directionInput func(ev *CloudEvent) string
)

var amountProbes = []amountProbe{
	numericAmount("monto"),
	textAmount("monto"),
	numericAmount("amount"),
	textAmount("amount"),
	numericAmount("valor"),
}

var merchantKeys = []string{"comercio", "merchant", "establecimiento", "descripcion", "concepto"}

var dateProbes = []dateProbe{
	dataDate("fecha"),
	dataDate("date"),
	dataDate("fechaTransaccion"),
	envelopeTime,
}

var directionInputs = []directionInput{
	func(ev *CloudEvent) string { return ev.Type },
	func(ev *CloudEvent) string { return ev.DataString("tipo") },
	func(ev *CloudEvent) string { return ev.DataString("tipoMovimiento") },
}

var (
	expenseKeywords = []string{"cargo", "debito", "pago", "egreso"}
	incomeKeywords  = []string{"abono", "credito", "ingreso", "deposito"}
)

// Parser extracts a transaction from a CloudEvent. It performs no I/O.
type Parser struct {
	now func() time.Time
}

// NewParser returns a parser that uses the wall clock for the last-resort date.
func NewParser() *Parser {
	return &Parser{now: time.Now}
}

// NewParserWithClock returns a parser whose "today" comes from now.
func NewParserWithClock(now func() time.Time) *Parser {
	return &Parser{now: now}
}

// Parse returns the transaction described by ev, or false when no amount
// can be found. Every other field has a fallback.
func (p *Parser) Parse(ev *CloudEvent) (*domain.ParsedTransaction, bool) {
	if ev == nil || ev.Data == nil {
		return nil, false
	}

	amount, ok := p.amount(ev.Data)
	if !ok {
		return nil, false
	}

	return &domain.ParsedTransaction{
		Amount:    amount,
		Merchant:  p.merchant(ev.Data),
		Date:      p.date(ev),
		Direction: p.direction(ev),
	}, true
}

func (p *Parser) amount(data map[string]any) (decimal.Decimal, bool) {
	for _, probe := range amountProbes {
		if v, ok := probe(data); ok {
			return v, true
		}
	}
	return decimal.Decimal{}, false
}

func (p *Parser) merchant(data map[string]any) string {
	for _, key := range merchantKeys {
		if s, ok := data[key].(string); ok {
			if s = strings.TrimSpace(s); s != "" {
				return s
			}
		}
	}
	return DefaultMerchant
}

func (p *Parser) date(ev *CloudEvent) civil.Date {
	for _, probe := range dateProbes {
		if d, ok := probe(ev); ok {
			return d
		}
	}
	return civil.DateOf(p.now())
}

func (p *Parser) direction(ev *CloudEvent) domain.Direction {
	for _, input := range directionInputs {
		if d, ok := classify(input(ev)); ok {
			return d
		}
	}
	if n, ok := numberValue(ev.Data["monto"]); ok && n.IsNegative() {
		return domain.DirectionExpense
	}
	// No signal at all: treated as an expense.
	return domain.DirectionExpense
}

var accentFolder = strings.NewReplacer("á", "a", "é", "e", "í", "i", "ó", "o", "ú", "u")

// classify looks for expense keywords first, then income keywords.
func classify(s string) (domain.Direction, bool) {
	if s == "" {
		return "", false
	}
	s = accentFolder.Replace(strings.ToLower(s))
	for _, kw := range expenseKeywords {
		if strings.Contains(s, kw) {
			return domain.DirectionExpense, true
		}
	}
	for _, kw := range incomeKeywords {
		if strings.Contains(s, kw) {
			return domain.DirectionIncome, true
		}
	}
	return "", false
}

// numericAmount accepts any non-zero JSON number and yields its magnitude.
// The sign is handled by direction classification.
func numericAmount(key string) amountProbe {
	return func(data map[string]any) (decimal.Decimal, bool) {
		n, ok := numberValue(data[key])
		if !ok || n.IsZero() {
			return decimal.Decimal{}, false
		}
		return n.Abs(), true
	}
}

// textAmount reads amounts written the Chilean way: "." groups thousands
// and "," separates decimals. Only positive results count.
func textAmount(key string) amountProbe {
	return func(data map[string]any) (decimal.Decimal, bool) {
		s, ok := data[key].(string)
		if !ok {
			return decimal.Decimal{}, false
		}
		n, ok := ParseLocalAmount(s)
		if !ok || !n.IsPositive() {
			return decimal.Decimal{}, false
		}
		return n, true
	}
}

// ParseLocalAmount parses strings such as "25.000", "$ 1.234,50" or "990".
func ParseLocalAmount(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(s)
	s = strings.NewReplacer("$", "", " ", "", "\u00a0", "").Replace(s)
	s = strings.ReplaceAll(s, ".", "")
	s = strings.Replace(s, ",", ".", 1)
	if s == "" {
		return decimal.Decimal{}, false
	}
	n, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return n, true
}

func numberValue(v any) (decimal.Decimal, bool) {
	switch n := v.(type) {
	case json.Number:
		d, err := decimal.NewFromString(n.String())
		if err != nil {
			return decimal.Decimal{}, false
		}
		return d, true
	case float64:
		return decimal.NewFromFloat(n), true
	case int:
		return decimal.NewFromInt(int64(n)), true
	case int64:
		return decimal.NewFromInt(n), true
	default:
		return decimal.Decimal{}, false
	}
}

var (
	isoDatePattern  = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}(T\d{2}:\d{2}:\d{2}(\.\d{1,9})?(Z|[+-]\d{2}:\d{2})?)?$`)
	embeddedPattern = regexp.MustCompile(`(\d{4}-\d{2}-\d{2})`)
)

// ParseDate reads the calendar date at the start of an ISO date or timestamp.
// Strings that are not ISO shaped still match when they embed a YYYY-MM-DD.
func ParseDate(s string) (civil.Date, bool) {
	s = strings.TrimSpace(s)
	var candidate string
	switch {
	case isoDatePattern.MatchString(s):
		candidate = s[:10]
	default:
		m := embeddedPattern.FindStringSubmatch(s)
		if m == nil {
			return civil.Date{}, false
		}
		candidate = m[1]
	}
	d, err := civil.ParseDate(candidate)
	if err != nil || !d.IsValid() {
		return civil.Date{}, false
	}
	return d, true
}

func dataDate(key string) dateProbe {
	return func(ev *CloudEvent) (civil.Date, bool) {
		s := ev.DataString(key)
		if s == "" {
			return civil.Date{}, false
		}
		return ParseDate(s)
	}
}

func envelopeTime(ev *CloudEvent) (civil.Date, bool) {
	if ev.Time == "" {
		return civil.Date{}, false
	}
	if t, err := time.Parse(time.RFC3339Nano, ev.Time); err == nil {
		return civil.DateOf(t), true
	}
	return ParseDate(ev.Time)
}
