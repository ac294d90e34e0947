package types_test

import (
	"strings"
	"testing"

	"github.com/stayforge/entitle/types"
)

func TestMoneyConstructors(t *testing.T) {
	tests := []struct {
		name     string
		money    types.Money
		amount   int64
		currency string
	}{
		{"USD", types.USD(4900), 4900, "usd"},
		{"EUR", types.EUR(19900), 19900, "eur"},
		{"GBP", types.GBP(9900), 9900, "gbp"},
		{"Zero", types.Zero("USD"), 0, "usd"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.money.Amount != tt.amount {
				t.Errorf("expected amount %d, got %d", tt.amount, tt.money.Amount)
			}
			if tt.money.Currency != tt.currency {
				t.Errorf("expected currency %q, got %q", tt.currency, tt.money.Currency)
			}
		})
	}
}

func TestMoneyArithmetic(t *testing.T) {
	a := types.USD(4900)
	b := types.USD(100)

	if got := a.Add(b); got.Amount != 5000 {
		t.Errorf("Add: expected 5000, got %d", got.Amount)
	}
	if got := a.Subtract(b); got.Amount != 4800 {
		t.Errorf("Subtract: expected 4800, got %d", got.Amount)
	}
	if got := b.Multiply(12); got.Amount != 1200 {
		t.Errorf("Multiply: expected 1200, got %d", got.Amount)
	}
}

func TestMoneyCurrencyMismatchPanics(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic on currency mismatch")
		}
	}()
	types.USD(100).Add(types.EUR(100))
}

func TestMoneyComparisons(t *testing.T) {
	if !types.Zero("usd").IsZero() {
		t.Error("Zero should be zero")
	}
	if !types.USD(1).IsPositive() {
		t.Error("USD(1) should be positive")
	}
	if !types.USD(100).Equal(types.USD(100)) {
		t.Error("equal values should compare equal")
	}
	if types.USD(100).Equal(types.EUR(100)) {
		t.Error("different currencies should not compare equal")
	}
	if !types.USD(99).LessThan(types.USD(100)) {
		t.Error("99 should be less than 100")
	}
}

func TestMoneyFormatting(t *testing.T) {
	tests := []struct {
		name  string
		money types.Money
		major string
		str   string
	}{
		{"dollars", types.USD(4900), "49.00", "$49.00"},
		{"cents only", types.USD(5), "0.05", "$0.05"},
		{"negative", types.USD(-4900), "-49.00", "$-49.00"},
		{"euros", types.EUR(19900), "199.00", "€199.00"},
		{"zero-decimal", types.Money{Amount: 100, Currency: "jpy"}, "100", "¥100"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.money.FormatMajor(); got != tt.major {
				t.Errorf("FormatMajor: expected %q, got %q", tt.major, got)
			}
			if got := tt.money.String(); got != tt.str {
				t.Errorf("String: expected %q, got %q", tt.str, got)
			}
		})
	}
}

func TestMoneyJSON(t *testing.T) {
	data, err := types.USD(4900).MarshalJSON()
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	for _, want := range []string{`"amount":4900`, `"currency":"usd"`, `"display":"$49.00"`} {
		if !strings.Contains(string(data), want) {
			t.Errorf("expected JSON to contain %s, got %s", want, data)
		}
	}
}
