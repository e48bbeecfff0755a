package store

import (
	"context"
	"sync"

	"github.com/smartcontractkit/x402-cre-price-alerts/internal/alert"
)

// Memory is an in-process RuleStore used when no database is configured and
// in tests. It preserves the same contract as the durable store: append-only,
// insertion order, monotonic indices.
type Memory struct {
	mu    sync.RWMutex
	rules []alert.Rule
}

// NewMemory constructs an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{}
}

// Append records the rule and returns its sequential index.
func (m *Memory) Append(ctx context.Context, r alert.Rule) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, r)
	return uint64(len(m.rules) - 1), nil
}

// Get returns the rule at the given index or ErrRuleNotFound.
func (m *Memory) Get(ctx context.Context, index uint64) (alert.Rule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if index >= uint64(len(m.rules)) {
		return alert.Rule{}, ErrRuleNotFound
	}
	return m.rules[index], nil
}

// Count returns the number of appended rules.
func (m *Memory) Count(ctx context.Context) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return uint64(len(m.rules)), nil
}

// ListAll returns every rule in insertion order.
func (m *Memory) ListAll(ctx context.Context) ([]alert.Rule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]alert.Rule, len(m.rules))
	copy(out, m.rules)
	return out, nil
}

var _ RuleStore = (*Memory)(nil)
