package pricefeed

import (
	"context"
	"errors"
	"math/big"
	"time"

	"github.com/shopspring/decimal"
)

// ErrPriceUnavailable marks a failed price read: endpoint unreachable,
// empty call result, or a malformed response. It is fatal only to rules
// referencing that one asset for that one cycle.
var ErrPriceUnavailable = errors.New("pricefeed: price unavailable")

// Observation is one price reading with round metadata. The answer carries a
// fixed implicit decimal scale set per feed; round and timestamp fields are
// used for staleness diagnostics only, never enforced.
type Observation struct {
	RoundID         *big.Int
	Answer          *big.Int
	StartedAt       uint64
	UpdatedAt       uint64
	AnsweredInRound *big.Int
}

// Normalized scales the raw integer answer down by the feed's decimal count,
// returning an exact decimal value.
func (o Observation) Normalized(decimals int32) decimal.Decimal {
	if o.Answer == nil {
		return decimal.Decimal{}
	}
	return decimal.NewFromBigInt(o.Answer, -decimals)
}

// UpdatedTime converts the update timestamp for staleness logging.
func (o Observation) UpdatedTime() time.Time {
	return time.Unix(int64(o.UpdatedAt), 0).UTC()
}

// Source retrieves the latest observation from one configured endpoint. The
// call is read-only and requires no write authorization; redundant execution
// and result agreement are the platform's concern, not the adapter's.
type Source interface {
	Latest(ctx context.Context) (Observation, error)
}
