package alert

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func sampleRule() Rule {
	submitter := common.HexToAddress("0x1111111111111111111111111111111111111111")
	rule := Rule{
		Asset:          AssetBTC,
		Condition:      CondGT,
		TargetPriceUSD: 50000,
		CreatedAt:      1700000000,
	}
	rule.ID = NewRuleID(rule.Asset, rule.Condition, rule.TargetPriceUSD, rule.CreatedAt, submitter)
	return rule
}

func TestReportRoundTrip(t *testing.T) {
	rule := sampleRule()

	payload, err := EncodeReport(rule)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	decoded, err := DecodeReport(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if decoded != rule {
		t.Fatalf("round trip mismatch: got %+v, want %+v", decoded, rule)
	}
}

func TestDecodeTruncatedReport(t *testing.T) {
	rule := sampleRule()
	payload, err := EncodeReport(rule)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	for _, cut := range []int{0, 1, 31, 32, len(payload) / 2, len(payload) - 1} {
		if _, err := DecodeReport(payload[:cut]); !errors.Is(err, ErrMalformedReport) {
			t.Fatalf("truncation at %d must yield ErrMalformedReport, got %v", cut, err)
		}
	}
}

func TestDecodeGarbageReport(t *testing.T) {
	garbage := make([]byte, 160)
	for i := range garbage {
		garbage[i] = 0xff
	}

	if _, err := DecodeReport(garbage); !errors.Is(err, ErrMalformedReport) {
		t.Fatalf("garbage buffer must yield ErrMalformedReport, got %v", err)
	}
}
