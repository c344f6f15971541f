package extraction

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/finko-backend/internal/domain"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// MockModel is a mock implementation of Model for testing.
type MockModel struct {
	CompleteFunc func(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	calls        int
}

func (m *MockModel) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	m.calls++
	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, systemPrompt, userPrompt)
	}
	return "[]", nil
}

func reply(s string) *MockModel {
	return &MockModel{CompleteFunc: func(context.Context, string, string) (string, error) { return s, nil }}
}

func newTestGateway(m Model) *Gateway {
	g := NewGateway(m, zerolog.Nop())
	g.now = func() time.Time { return time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC) }
	return g
}

func TestExtract_ValidResponses(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want int
	}{
		{"top-level array", `[{"merchant":"Lider","amount":15500,"date":"2024-01-15","category":"Supermercado","type":"expense"}]`, 1},
		{"wrapped object", `{"transactions":[{"merchant":"Lider","amount":"15.500","date":"2024-01-15","category":"Supermercado","type":"expense"}]}`, 1},
		{"code fence", "```json\n[{\"merchant\":\"Lider\",\"amount\":1,\"date\":\"2024-01-15\",\"category\":\"Otros\",\"type\":\"income\"}]\n```", 1},
		{"empty object", `{}`, 0},
		{"empty array", `[]`, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			txs, err := newTestGateway(reply(tt.raw)).Extract(context.Background(), Request{Body: "x"})
			if err != nil {
				t.Fatalf("Extract() error = %v", err)
			}
			if len(txs) != tt.want {
				t.Fatalf("got %d transactions, want %d", len(txs), tt.want)
			}
		})
	}
}

func TestExtract_Coercion(t *testing.T) {
	raw := `[
		{"merchant":" Uber ","amount":"4.990","date":"2024-02-03","category":"Taxi","type":"expense"},
		{"merchant":"Sueldo","amount":1200000,"date":"2024-02-01","category":"Otros","type":"income"},
		{"merchant":"Transfer","amount":100,"date":"2024-02-01","category":"Otros","type":"Income"},
		{"merchant":"Farmacia","amount":"12500.50","date":"sin fecha","category":"Salud","type":"expense"}
	]`
	txs, err := newTestGateway(reply(raw)).Extract(context.Background(), Request{Body: "x", EmailDate: "2024-02-05"})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if len(txs) != 4 {
		t.Fatalf("got %d transactions, want 4", len(txs))
	}

	if txs[0].Category != "Otros" {
		t.Errorf("unknown category should become Otros, got %q", txs[0].Category)
	}
	if txs[0].Merchant != "Uber" || !txs[0].Amount.Equal(decimal.NewFromInt(4990)) {
		t.Errorf("unexpected first transaction %+v", txs[0])
	}
	if txs[1].Direction != domain.DirectionIncome {
		t.Errorf("exact income should stay income")
	}
	if txs[2].Direction != domain.DirectionExpense {
		t.Errorf("non-exact income type should become expense")
	}
	if !txs[3].Amount.Equal(decimal.RequireFromString("12500.5")) {
		t.Errorf("plain decimal string parsed as %s", txs[3].Amount)
	}
	if txs[3].Date != (civil.Date{Year: 2024, Month: 2, Day: 5}) {
		t.Errorf("invalid date should fall back to email date, got %s", txs[3].Date)
	}
}

func TestExtract_DropsWrongTypes(t *testing.T) {
	raw := `[
		{"merchant":123,"amount":1,"date":"2024-01-01","category":"Otros","type":"expense"},
		{"merchant":"A","amount":true,"date":"2024-01-01","category":"Otros","type":"expense"},
		{"merchant":"B","amount":1,"date":null,"category":"Otros","type":"expense"},
		{"merchant":"C","amount":1,"date":"2024-01-01","type":"expense"},
		{"merchant":"D","amount":0,"date":"2024-01-01","category":"Otros","type":"expense"},
		"not an object",
		{"merchant":"OK","amount":1,"date":"2024-01-01","category":"Hogar","type":"expense"}
	]`
	txs, err := newTestGateway(reply(raw)).Extract(context.Background(), Request{Body: "x"})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if len(txs) != 1 || txs[0].Merchant != "OK" {
		t.Fatalf("expected only the well-formed item, got %+v", txs)
	}
}

func TestExtract_MalformedResponseIsEmpty(t *testing.T) {
	for _, raw := range []string{"", "lo siento, no puedo", `{"transactions": "nope"}`, `[{"merchant":`} {
		txs, err := newTestGateway(reply(raw)).Extract(context.Background(), Request{Body: "x"})
		if err != nil {
			t.Errorf("Extract(%q) error = %v, want nil", raw, err)
		}
		if len(txs) != 0 {
			t.Errorf("Extract(%q) = %d transactions, want 0", raw, len(txs))
		}
	}
}

func TestExtract_TransportErrorIsReturned(t *testing.T) {
	m := &MockModel{CompleteFunc: func(context.Context, string, string) (string, error) {
		return "", errors.New("connection reset")
	}}
	_, err := newTestGateway(m).Extract(context.Background(), Request{Body: "x"})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if m.calls != 1 {
		t.Errorf("model must be called exactly once, got %d", m.calls)
	}
}

func TestExtract_Prompts(t *testing.T) {
	var gotSystem, gotUser string
	m := &MockModel{CompleteFunc: func(_ context.Context, s, u string) (string, error) {
		gotSystem, gotUser = s, u
		return "[]", nil
	}}
	g := newTestGateway(m)

	_, _ = g.Extract(context.Background(), Request{Body: "Compra por $5.000", EmailDate: "2024-03-01", BankName: "BCI", Instructions: "El monto aparece tras 'Monto:'"})
	if !strings.Contains(gotSystem, "BCI") || !strings.Contains(gotSystem, "Monto:") {
		t.Errorf("bank-specific prompt expected, got %q", gotSystem)
	}
	if !strings.HasPrefix(gotUser, "Fecha del correo: 2024-03-01") || !strings.Contains(gotUser, "Compra por $5.000") {
		t.Errorf("unexpected user prompt %q", gotUser)
	}

	_, _ = g.Extract(context.Background(), Request{Body: "hola", BankName: "BCI"})
	if !strings.Contains(gotSystem, "Banco de Chile") {
		t.Errorf("default prompt expected without instructions, got %q", gotSystem)
	}
	if gotUser != "Contenido del correo:\nhola" {
		t.Errorf("unexpected user prompt without date %q", gotUser)
	}
}

func TestCleanModelJSON(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"[1]", "[1]"},
		{"```json\n[1]\n```", "[1]"},
		{"Aquí está: {\"transactions\": []} gracias", `{"transactions": []}`},
		{"```", ""},
	}
	for _, tt := range tests {
		if got := cleanModelJSON(tt.in); got != tt.want {
			t.Errorf("cleanModelJSON(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
