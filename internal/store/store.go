package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/smartcontractkit/x402-cre-price-alerts/internal/alert"
)

var (
	// ErrRuleNotFound indicates a lookup of an index that was never assigned.
	ErrRuleNotFound = errors.New("store: rule not found")
	// ErrNotConfigured indicates the backing pool was not initialised.
	ErrNotConfigured = errors.New("store: pool not configured")
)

// RuleStore is the append-only, index-addressed rule collection. Append is
// the only mutator and is reached exclusively through the ingest pipeline;
// enumeration order is insertion order and indices are assigned monotonically
// from zero, never reused.
type RuleStore interface {
	Append(ctx context.Context, r alert.Rule) (uint64, error)
	Get(ctx context.Context, index uint64) (alert.Rule, error)
	Count(ctx context.Context) (uint64, error)
	ListAll(ctx context.Context) ([]alert.Rule, error)
}

// ListVerified retrieves the full rule set using the bulk path first and
// cross-checks its length against Count. The bulk read may be unreliable or
// partially unsupported by the underlying substrate, so a short or failed
// result falls back to fetching indices 0..count-1 one by one. It returns the
// rules plus whether the fallback path was taken.
func ListVerified(ctx context.Context, s RuleStore) ([]alert.Rule, bool, error) {
	count, err := s.Count(ctx)
	if err != nil {
		return nil, false, err
	}
	if count == 0 {
		return nil, false, nil
	}

	if rules, err := s.ListAll(ctx); err == nil && uint64(len(rules)) == count {
		return rules, false, nil
	}

	rules := make([]alert.Rule, 0, count)
	for i := uint64(0); i < count; i++ {
		rule, err := s.Get(ctx, i)
		if err != nil {
			return nil, true, err
		}
		rules = append(rules, rule)
	}
	return rules, true, nil
}

// NotificationRecord captures one dispatched (or failed) notification for
// auditing. The pipeline keeps no cross-cycle state, so this table is the
// only durable trace that a rule fired.
type NotificationRecord struct {
	ID            int64
	CycleTS       time.Time
	RuleID        alert.RuleID
	Asset         alert.Asset
	ObservedPrice decimal.Decimal
	Message       string
	Status        string
	CreatedAt     time.Time
}

// ObservationRecord is one normalized price read taken during a cycle.
type ObservationRecord struct {
	CycleTS   time.Time
	Asset     alert.Asset
	Price     decimal.Decimal
	CreatedAt time.Time
}

// Notification delivery statuses.
const (
	DeliveryOK     = "delivered"
	DeliveryFailed = "failed"
)

// AuditStore persists per-cycle diagnostics. All writes are best effort from
// the evaluator's point of view.
type AuditStore interface {
	InsertNotification(ctx context.Context, rec NotificationRecord) error
	ListRecentNotifications(ctx context.Context, limit int) ([]NotificationRecord, error)
	UpsertObservation(ctx context.Context, rec ObservationRecord) error
	ListObservationsBetween(ctx context.Context, from, to time.Time) ([]ObservationRecord, error)
	DeleteNotificationsBefore(ctx context.Context, olderThan time.Time) error
}
