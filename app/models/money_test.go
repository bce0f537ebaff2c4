package models

import (
	"errors"
	"testing"
)

func TestNewMoney(t *testing.T) {
	tests := []struct {
		amount   int64
		currency string
		wantErr  error
	}{
		{amount: 7900, currency: "KRW", wantErr: nil},
		{amount: 0, currency: "USD", wantErr: nil},
		{amount: 1299, currency: "usd", wantErr: nil},
		{amount: -1, currency: "KRW", wantErr: ErrNegativeAmount},
		{amount: 100, currency: "GBP", wantErr: ErrUnsupportedCurrency},
		{amount: 100, currency: "", wantErr: ErrUnsupportedCurrency},
	}

	for _, tt := range tests {
		m, err := NewMoney(tt.amount, tt.currency)
		if tt.wantErr != nil {
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("NewMoney(%d, %q) error = %v, want %v", tt.amount, tt.currency, err, tt.wantErr)
			}
			continue
		}
		if err != nil {
			t.Fatalf("NewMoney(%d, %q) unexpected error: %v", tt.amount, tt.currency, err)
		}
		if m.Amount != tt.amount {
			t.Fatalf("NewMoney(%d, %q) amount = %d", tt.amount, tt.currency, m.Amount)
		}
	}
}

func TestMoneyNormalizesCurrency(t *testing.T) {
	m, err := NewMoney(500, "krw")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Currency != "KRW" {
		t.Fatalf("currency = %q, want KRW", m.Currency)
	}
}

func TestMoneySameCurrency(t *testing.T) {
	krw, _ := NewMoney(100, "KRW")
	krw2, _ := NewMoney(200, "KRW")
	usd, _ := NewMoney(100, "USD")

	if !krw.SameCurrency(krw2) {
		t.Fatalf("expected KRW to match KRW")
	}
	if krw.SameCurrency(usd) {
		t.Fatalf("expected KRW not to match USD")
	}
}

func TestMoneyIsZero(t *testing.T) {
	zero, _ := NewMoney(0, "KRW")
	if !zero.IsZero() {
		t.Fatalf("expected zero amount to report IsZero")
	}
	one, _ := NewMoney(1, "KRW")
	if one.IsZero() {
		t.Fatalf("expected non-zero amount not to report IsZero")
	}
}
