package notify

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrOutcomeUnavailable indicates another executor claimed the request but
// its outcome never became visible within the poll budget.
var ErrOutcomeUnavailable = errors.New("notify: delivery outcome unavailable")

const inflightPrefix = "inflight:"

// Delivery outcomes stored in the response cache.
const (
	outcomeOK           = "ok"
	outcomeFailedPrefix = "failed:"
)

// ResponseCache is the short-lived cache keyed by literal request content
// that deduplicates redundant executions of the same logical dispatch. One
// executor claims the key and performs the outbound call; the rest read the
// stored outcome so every executor observes a consistent result.
type ResponseCache interface {
	// Claim atomically marks the key as in flight for the window. It returns
	// true when the caller won the claim and must perform the call itself.
	Claim(ctx context.Context, key string, window time.Duration) (bool, error)
	// StoreOutcome publishes the call result under the key for the window.
	StoreOutcome(ctx context.Context, key, outcome string, window time.Duration) error
	// AwaitOutcome polls for the claimant's published outcome.
	AwaitOutcome(ctx context.Context, key string) (string, error)
}

func claimToken() string {
	return inflightPrefix + uuid.New().String()
}

// MemoryCache is the single-executor fallback used when redis is not
// configured. The real cross-executor path is RedisCache.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	value   string
	expires time.Time
}

// NewMemoryCache constructs an empty in-process response cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]memoryEntry)}
}

func (c *MemoryCache) get(key string, now time.Time) (string, bool) {
	entry, ok := c.entries[key]
	if !ok || now.After(entry.expires) {
		delete(c.entries, key)
		return "", false
	}
	return entry.value, true
}

// Claim marks the key in flight unless a live entry already exists.
func (c *MemoryCache) Claim(ctx context.Context, key string, window time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if _, ok := c.get(key, now); ok {
		return false, nil
	}
	c.entries[key] = memoryEntry{value: claimToken(), expires: now.Add(window)}
	return true, nil
}

// StoreOutcome overwrites the claim with the terminal outcome.
func (c *MemoryCache) StoreOutcome(ctx context.Context, key, outcome string, window time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = memoryEntry{value: outcome, expires: time.Now().Add(window)}
	return nil
}

// AwaitOutcome returns the stored outcome; within one process the claimant
// has always finished before a duplicate dispatch runs, so no polling is
// needed.
func (c *MemoryCache) AwaitOutcome(ctx context.Context, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	value, ok := c.get(key, time.Now())
	if !ok || strings.HasPrefix(value, inflightPrefix) {
		return "", ErrOutcomeUnavailable
	}
	return value, nil
}

var _ ResponseCache = (*MemoryCache)(nil)
