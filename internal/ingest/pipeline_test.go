package ingest

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/smartcontractkit/x402-cre-price-alerts/internal/alert"
	"github.com/smartcontractkit/x402-cre-price-alerts/internal/store"
)

func encodedRule(t *testing.T, sender common.Address) (alert.Rule, []byte) {
	t.Helper()
	rule := alert.Rule{
		Asset:          alert.AssetBTC,
		Condition:      alert.CondGT,
		TargetPriceUSD: 50000,
		CreatedAt:      1700000000,
	}
	rule.ID = alert.NewRuleID(rule.Asset, rule.Condition, rule.TargetPriceUSD, rule.CreatedAt, sender)

	report, err := alert.EncodeReport(rule)
	if err != nil {
		t.Fatalf("encode report: %v", err)
	}
	return rule, report
}

func TestPipelineIngestSuccess(t *testing.T) {
	ctx := context.Background()
	sender := common.HexToAddress("0x1111111111111111111111111111111111111111")
	mem := store.NewMemory()
	pipeline := NewPipeline(NewAuthenticator(AuthenticatorOptions{}, noopLogger()), mem, noopLogger())

	want, report := encodedRule(t, sender)
	got, index, err := pipeline.Ingest(ctx, sender, nil, report)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if index != 0 {
		t.Fatalf("first rule must land at index 0, got %d", index)
	}
	if got != want {
		t.Fatalf("stored rule mismatch: %+v vs %+v", got, want)
	}

	stored, err := mem.Get(ctx, 0)
	if err != nil {
		t.Fatalf("get stored rule: %v", err)
	}
	if stored != want {
		t.Fatalf("rule altered in storage: %+v vs %+v", stored, want)
	}
}

func TestPipelineDerivesIDWhenUnset(t *testing.T) {
	ctx := context.Background()
	sender := common.HexToAddress("0x1111111111111111111111111111111111111111")
	pipeline := NewPipeline(NewAuthenticator(AuthenticatorOptions{}, noopLogger()), store.NewMemory(), noopLogger())

	rule := alert.Rule{Asset: alert.AssetETH, Condition: alert.CondLTE, TargetPriceUSD: 4000, CreatedAt: 1700000000}
	report, err := alert.EncodeReport(rule)
	if err != nil {
		t.Fatalf("encode report: %v", err)
	}

	got, _, err := pipeline.Ingest(ctx, sender, nil, report)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	want := alert.NewRuleID(rule.Asset, rule.Condition, rule.TargetPriceUSD, rule.CreatedAt, sender)
	if got.ID != want {
		t.Fatalf("pipeline must derive the id from content and sender")
	}
}

func TestPipelineRejectsMismatchedID(t *testing.T) {
	ctx := context.Background()
	sender := common.HexToAddress("0x1111111111111111111111111111111111111111")
	other := common.HexToAddress("0x2222222222222222222222222222222222222222")
	mem := store.NewMemory()
	pipeline := NewPipeline(NewAuthenticator(AuthenticatorOptions{}, noopLogger()), mem, noopLogger())

	// Report id derived for a different principal does not match the
	// actual sender.
	_, report := encodedRule(t, other)
	if _, _, err := pipeline.Ingest(ctx, sender, nil, report); !errors.Is(err, alert.ErrMalformedReport) {
		t.Fatalf("expected ErrMalformedReport, got %v", err)
	}
	assertEmpty(t, mem)
}

func TestPipelineAuthFailureLeavesStoreUntouched(t *testing.T) {
	ctx := context.Background()
	trusted := common.HexToAddress("0x1111111111111111111111111111111111111111")
	intruder := common.HexToAddress("0x2222222222222222222222222222222222222222")
	mem := store.NewMemory()
	pipeline := NewPipeline(NewAuthenticator(AuthenticatorOptions{TrustedSender: &trusted}, noopLogger()), mem, noopLogger())

	_, report := encodedRule(t, intruder)
	if _, _, err := pipeline.Ingest(ctx, intruder, nil, report); !errors.Is(err, ErrUnauthorizedSender) {
		t.Fatalf("expected ErrUnauthorizedSender, got %v", err)
	}
	assertEmpty(t, mem)
}

func TestPipelineRejectsMalformedReport(t *testing.T) {
	ctx := context.Background()
	sender := common.HexToAddress("0x1111111111111111111111111111111111111111")
	mem := store.NewMemory()
	pipeline := NewPipeline(NewAuthenticator(AuthenticatorOptions{}, noopLogger()), mem, noopLogger())

	if _, _, err := pipeline.Ingest(ctx, sender, nil, []byte{0x01, 0x02}); !errors.Is(err, alert.ErrMalformedReport) {
		t.Fatalf("expected ErrMalformedReport, got %v", err)
	}
	assertEmpty(t, mem)
}

func TestPipelineRejectsUnknownAsset(t *testing.T) {
	ctx := context.Background()
	sender := common.HexToAddress("0x1111111111111111111111111111111111111111")
	mem := store.NewMemory()
	pipeline := NewPipeline(NewAuthenticator(AuthenticatorOptions{}, noopLogger()), mem, noopLogger())

	rule := alert.Rule{Asset: "DOGE", Condition: alert.CondGT, TargetPriceUSD: 1, CreatedAt: 1700000000}
	report, err := alert.EncodeReport(rule)
	if err != nil {
		t.Fatalf("encode report: %v", err)
	}

	if _, _, err := pipeline.Ingest(ctx, sender, nil, report); !errors.Is(err, alert.ErrMalformedReport) {
		t.Fatalf("expected ErrMalformedReport for unknown asset, got %v", err)
	}
	assertEmpty(t, mem)
}

func assertEmpty(t *testing.T, mem *store.Memory) {
	t.Helper()
	count, err := mem.Count(context.Background())
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("store must remain untouched, found %d rules", count)
	}
}
