package alert

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/shopspring/decimal"
)

// Asset identifies one of the supported price feeds.
type Asset string

const (
	AssetBTC  Asset = "BTC"
	AssetETH  Asset = "ETH"
	AssetLINK Asset = "LINK"
)

// SupportedAssets lists every asset a rule may reference, in canonical order.
func SupportedAssets() []Asset {
	return []Asset{AssetBTC, AssetETH, AssetLINK}
}

// ParseAsset validates a symbol against the supported set.
func ParseAsset(raw string) (Asset, error) {
	candidate := Asset(strings.ToUpper(strings.TrimSpace(raw)))
	for _, a := range SupportedAssets() {
		if candidate == a {
			return a, nil
		}
	}
	return "", fmt.Errorf("unsupported asset %q", raw)
}

// Known reports whether the asset belongs to the supported set.
func (a Asset) Known() bool {
	_, err := ParseAsset(string(a))
	return err == nil
}

// Condition is the relational operator applied between observed price and
// target. Comparison is exact; no tolerance is applied anywhere.
type Condition string

const (
	CondGT  Condition = "gt"
	CondLT  Condition = "lt"
	CondGTE Condition = "gte"
	CondLTE Condition = "lte"
)

// ParseCondition validates a condition token.
func ParseCondition(raw string) (Condition, error) {
	switch Condition(strings.ToLower(strings.TrimSpace(raw))) {
	case CondGT:
		return CondGT, nil
	case CondLT:
		return CondLT, nil
	case CondGTE:
		return CondGTE, nil
	case CondLTE:
		return CondLTE, nil
	}
	return "", fmt.Errorf("unsupported condition %q", raw)
}

// Known reports whether the condition is one of the four supported operators.
func (c Condition) Known() bool {
	_, err := ParseCondition(string(c))
	return err == nil
}

// Symbol returns the display form of the operator.
func (c Condition) Symbol() string {
	switch c {
	case CondGT:
		return ">"
	case CondLT:
		return "<"
	case CondGTE:
		return ">="
	case CondLTE:
		return "<="
	}
	return "?"
}

// Holds evaluates the condition against an observed price and a target.
func (c Condition) Holds(price, target decimal.Decimal) bool {
	cmp := price.Cmp(target)
	switch c {
	case CondGT:
		return cmp > 0
	case CondLT:
		return cmp < 0
	case CondGTE:
		return cmp >= 0
	case CondLTE:
		return cmp <= 0
	}
	return false
}

// RuleID is the content-addressed rule identifier.
type RuleID [32]byte

// Hex renders the identifier as a 0x-prefixed string.
func (id RuleID) Hex() string {
	return hexutil.Encode(id[:])
}

// IsZero reports whether the identifier is unset.
func (id RuleID) IsZero() bool {
	return id == RuleID{}
}

// RuleIDFromHex parses a 0x-prefixed 32-byte identifier.
func RuleIDFromHex(s string) (RuleID, error) {
	raw, err := hexutil.Decode(s)
	if err != nil {
		return RuleID{}, fmt.Errorf("parse rule id: %w", err)
	}
	if len(raw) != 32 {
		return RuleID{}, fmt.Errorf("parse rule id: want 32 bytes, got %d", len(raw))
	}
	var id RuleID
	copy(id[:], raw)
	return id, nil
}

// Rule is the durable unit of work. Rules are append-only: once stored they
// are never mutated or deleted, and expiry is derived from CreatedAt at read
// time rather than recorded.
type Rule struct {
	ID             RuleID
	Asset          Asset
	Condition      Condition
	TargetPriceUSD uint64
	CreatedAt      uint64
}

// CreatedTime converts the creation timestamp to time.Time (UTC).
func (r Rule) CreatedTime() time.Time {
	return time.Unix(int64(r.CreatedAt), 0).UTC()
}

// Age returns how long the rule has existed at the given instant.
func (r Rule) Age(now time.Time) time.Duration {
	return now.Sub(r.CreatedTime())
}

// Expired reports whether the rule is outside its time-to-live at the given
// instant. The boundary is strictly greater-than: a rule whose age equals the
// TTL is still eligible.
func (r Rule) Expired(now time.Time, ttl time.Duration) bool {
	return r.Age(now) > ttl
}

// TargetPrice returns the target as a decimal for exact comparison.
func (r Rule) TargetPrice() decimal.Decimal {
	return decimal.NewFromUint64(r.TargetPriceUSD)
}

// NewRuleID derives the content-addressed identifier for a rule. The digest
// covers the logical content plus the submitting principal, so identical
// submissions from the same principal within the same second collide on
// purpose (resubmission-window idempotency) while differing timestamps yield
// distinct rules.
func NewRuleID(asset Asset, condition Condition, targetPriceUSD, createdAt uint64, submitter common.Address) RuleID {
	packed := packRuleContent(asset, condition, targetPriceUSD, createdAt, submitter)
	var id RuleID
	copy(id[:], keccak(packed))
	return id
}
