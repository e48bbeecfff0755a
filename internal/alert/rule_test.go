package alert

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

func TestNewRuleIDDeterministic(t *testing.T) {
	submitter := common.HexToAddress("0x1111111111111111111111111111111111111111")

	first := NewRuleID(AssetBTC, CondGT, 50000, 1700000000, submitter)
	second := NewRuleID(AssetBTC, CondGT, 50000, 1700000000, submitter)
	if first != second {
		t.Fatalf("identical inputs must yield identical ids: %s vs %s", first.Hex(), second.Hex())
	}
	if first.IsZero() {
		t.Fatal("derived id must not be zero")
	}
}

func TestNewRuleIDVariesWithInputs(t *testing.T) {
	submitter := common.HexToAddress("0x1111111111111111111111111111111111111111")
	base := NewRuleID(AssetBTC, CondGT, 50000, 1700000000, submitter)

	if other := NewRuleID(AssetBTC, CondGT, 50000, 1700000001, submitter); other == base {
		t.Fatal("different createdAt must yield a distinct id")
	}
	if other := NewRuleID(AssetETH, CondGT, 50000, 1700000000, submitter); other == base {
		t.Fatal("different asset must yield a distinct id")
	}
	if other := NewRuleID(AssetBTC, CondLT, 50000, 1700000000, submitter); other == base {
		t.Fatal("different condition must yield a distinct id")
	}
	otherSubmitter := common.HexToAddress("0x2222222222222222222222222222222222222222")
	if other := NewRuleID(AssetBTC, CondGT, 50000, 1700000000, otherSubmitter); other == base {
		t.Fatal("different submitter must yield a distinct id")
	}
}

func TestConditionHoldsAtBoundary(t *testing.T) {
	price := decimal.NewFromInt(60000)
	target := decimal.NewFromInt(60000)

	cases := []struct {
		condition Condition
		want      bool
	}{
		{CondGT, false},
		{CondLT, false},
		{CondGTE, true},
		{CondLTE, true},
	}

	for _, tc := range cases {
		if got := tc.condition.Holds(price, target); got != tc.want {
			t.Fatalf("condition %s at price==target: got %v, want %v", tc.condition, got, tc.want)
		}
	}
}

func TestConditionHolds(t *testing.T) {
	target := decimal.NewFromInt(50000)

	if !CondGT.Holds(decimal.NewFromInt(51000), target) {
		t.Fatal("51000 > 50000 must hold")
	}
	if CondGT.Holds(decimal.NewFromInt(49000), target) {
		t.Fatal("49000 > 50000 must not hold")
	}
	if !CondLT.Holds(decimal.NewFromInt(49000), target) {
		t.Fatal("49000 < 50000 must hold")
	}
}

func TestParseAsset(t *testing.T) {
	asset, err := ParseAsset(" btc ")
	if err != nil {
		t.Fatalf("btc must parse: %v", err)
	}
	if asset != AssetBTC {
		t.Fatalf("expected BTC, got %s", asset)
	}

	if _, err := ParseAsset("DOGE"); err == nil {
		t.Fatal("unknown symbol must be rejected")
	}
}

func TestParseCondition(t *testing.T) {
	cond, err := ParseCondition("GTE")
	if err != nil {
		t.Fatalf("GTE must parse: %v", err)
	}
	if cond != CondGTE {
		t.Fatalf("expected gte, got %s", cond)
	}

	if _, err := ParseCondition("between"); err == nil {
		t.Fatal("unknown condition must be rejected")
	}
}

func TestRuleExpiryBoundary(t *testing.T) {
	created := time.Unix(1700000000, 0).UTC()
	rule := Rule{CreatedAt: uint64(created.Unix())}
	ttl := 1800 * time.Second

	if rule.Expired(created.Add(1800*time.Second), ttl) {
		t.Fatal("age == TTL must still be within policy")
	}
	if !rule.Expired(created.Add(1801*time.Second), ttl) {
		t.Fatal("age > TTL must be expired")
	}
}
