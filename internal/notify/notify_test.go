package notify

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/smartcontractkit/x402-cre-price-alerts/internal/alert"
)

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}

func sampleRule() alert.Rule {
	return alert.Rule{
		Asset:          alert.AssetBTC,
		Condition:      alert.CondGT,
		TargetPriceUSD: 50000,
		CreatedAt:      1700000000,
	}
}

func TestFormatUSD(t *testing.T) {
	cases := []struct {
		in   decimal.Decimal
		want string
	}{
		{decimal.NewFromInt(51000), "51,000.00"},
		{decimal.NewFromInt(999), "999.00"},
		{decimal.NewFromInt(1000), "1,000.00"},
		{decimal.NewFromFloat(1234567.891), "1,234,567.89"},
		{decimal.NewFromFloat(0.5), "0.50"},
		{decimal.NewFromInt(-51000), "-51,000.00"},
	}
	for _, tc := range cases {
		if got := FormatUSD(tc.in); got != tc.want {
			t.Fatalf("FormatUSD(%s) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestMessageContents(t *testing.T) {
	msg := Message(sampleRule(), decimal.NewFromInt(51000))
	want := "BTC is trading at $51,000.00, > target $50,000.00"
	if msg != want {
		t.Fatalf("message = %q, want %q", msg, want)
	}
}

func TestTitleContents(t *testing.T) {
	if got := Title(sampleRule()); got != "Price alert: BTC" {
		t.Fatalf("title = %q", got)
	}
}
