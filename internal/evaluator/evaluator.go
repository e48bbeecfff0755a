package evaluator

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/smartcontractkit/x402-cre-price-alerts/internal/alert"
	"github.com/smartcontractkit/x402-cre-price-alerts/internal/notify"
	"github.com/smartcontractkit/x402-cre-price-alerts/internal/pricefeed"
	"github.com/smartcontractkit/x402-cre-price-alerts/internal/store"
)

// Feed pairs a price source with its fixed decimal scale. The scale is a
// per-feed constant, never auto-discovered.
type Feed struct {
	Source   pricefeed.Source
	Decimals int32
}

// CycleResult aggregates one evaluation cycle. The cycle itself always
// completes; individual failures are downgraded to these counts.
type CycleResult struct {
	Considered          int
	Matched             int
	Notified            int
	SkippedExpired      int
	SkippedUnknownAsset int
	SkippedNoPrice      int
	DeliveryFailures    int
}

// Evaluator runs the read path: list rules, fetch prices, filter by TTL,
// match conditions, dispatch notifications. It keeps no state between
// cycles; every cycle is a full re-evaluation, so a rule that keeps matching
// keeps firing until its TTL lapses.
type Evaluator struct {
	store    store.RuleStore
	feeds    map[alert.Asset]Feed
	notifier notify.Notifier
	audit    store.AuditStore
	ttl      time.Duration
	logger   zerolog.Logger
}

// New constructs the evaluator. audit may be nil when no database is
// configured.
func New(ruleStore store.RuleStore, feeds map[alert.Asset]Feed, notifier notify.Notifier, audit store.AuditStore, ttl time.Duration, logger zerolog.Logger) *Evaluator {
	return &Evaluator{
		store:    ruleStore,
		feeds:    feeds,
		notifier: notifier,
		audit:    audit,
		ttl:      ttl,
		logger:   logger.With().Str("component", "evaluator").Logger(),
	}
}

type priceEntry struct {
	obs   pricefeed.Observation
	price decimal.Decimal
	err   error
}

// RunCycle executes one full evaluation at the given instant. Prices for all
// configured feeds are fetched up front, unconditionally, before any rule is
// examined. The only cycle-level error is an unreadable rule store.
func (e *Evaluator) RunCycle(ctx context.Context, now time.Time) (CycleResult, error) {
	prices := e.fetchPrices(ctx, now)

	rules, fellBack, err := store.ListVerified(ctx, e.store)
	if err != nil {
		return CycleResult{}, fmt.Errorf("list rules: %w", err)
	}
	if fellBack {
		e.logger.Warn().Msg("bulk rule read disagreed with count; used per-index fallback")
	}

	var result CycleResult
	if len(rules) == 0 {
		e.logger.Info().Msg("no rules to evaluate")
		return result, nil
	}

	for i, rule := range rules {
		result.Considered++
		e.evaluateRule(ctx, now, uint64(i), rule, prices, &result)
	}

	e.logger.Info().
		Int("considered", result.Considered).
		Int("matched", result.Matched).
		Int("notified", result.Notified).
		Int("skipped_expired", result.SkippedExpired).
		Int("skipped_unknown_asset", result.SkippedUnknownAsset).
		Int("skipped_no_price", result.SkippedNoPrice).
		Int("delivery_failures", result.DeliveryFailures).
		Msg("cycle complete")

	return result, nil
}

// fetchPrices reads every configured feed in parallel, one independent call
// per asset. A failed feed is recorded per asset and skipped later; it never
// aborts the other fetches.
func (e *Evaluator) fetchPrices(ctx context.Context, now time.Time) map[alert.Asset]priceEntry {
	assets := make([]alert.Asset, 0, len(e.feeds))
	for asset := range e.feeds {
		assets = append(assets, asset)
	}
	sort.Slice(assets, func(i, j int) bool { return assets[i] < assets[j] })

	entries := make([]priceEntry, len(assets))
	var group errgroup.Group
	for i, asset := range assets {
		feed := e.feeds[asset]
		group.Go(func() error {
			obs, err := feed.Source.Latest(ctx)
			if err != nil {
				entries[i] = priceEntry{err: err}
				return nil
			}
			entries[i] = priceEntry{obs: obs, price: obs.Normalized(feed.Decimals)}
			return nil
		})
	}
	_ = group.Wait()

	prices := make(map[alert.Asset]priceEntry, len(assets))
	for i, asset := range assets {
		entry := entries[i]
		prices[asset] = entry

		if entry.err != nil {
			e.logger.Error().Err(entry.err).Str("asset", string(asset)).Msg("price fetch failed")
			continue
		}

		// Staleness is diagnostic only; stale rounds are never rejected.
		e.logger.Debug().
			Str("asset", string(asset)).
			Str("price", entry.price.String()).
			Str("round", entry.obs.RoundID.String()).
			Dur("round_age", now.Sub(entry.obs.UpdatedTime())).
			Msg("price observed")

		if e.audit != nil {
			rec := store.ObservationRecord{CycleTS: now.UTC(), Asset: asset, Price: entry.price}
			if err := e.audit.UpsertObservation(ctx, rec); err != nil {
				e.logger.Warn().Err(err).Str("asset", string(asset)).Msg("failed to record observation")
			}
		}
	}
	return prices
}

func (e *Evaluator) evaluateRule(ctx context.Context, now time.Time, index uint64, rule alert.Rule, prices map[alert.Asset]priceEntry, result *CycleResult) {
	log := e.logger.With().Uint64("index", index).Str("rule_id", rule.ID.Hex()).Logger()

	if rule.Expired(now, e.ttl) {
		result.SkippedExpired++
		log.Info().
			Dur("age", rule.Age(now)).
			Dur("ttl", e.ttl).
			Msg("rule expired; skipping")
		return
	}

	entry, known := prices[rule.Asset]
	if !known {
		result.SkippedUnknownAsset++
		log.Warn().Str("asset", string(rule.Asset)).Msg("unknown asset; skipping")
		return
	}
	if entry.err != nil {
		result.SkippedNoPrice++
		log.Warn().Err(entry.err).Str("asset", string(rule.Asset)).Msg("price unavailable; skipping")
		return
	}

	if !rule.Condition.Holds(entry.price, rule.TargetPrice()) {
		log.Debug().
			Str("price", entry.price.String()).
			Uint64("target_usd", rule.TargetPriceUSD).
			Str("condition", string(rule.Condition)).
			Msg("condition not met")
		return
	}

	result.Matched++
	log.Info().
		Str("price", entry.price.String()).
		Uint64("target_usd", rule.TargetPriceUSD).
		Str("condition", string(rule.Condition)).
		Msg("condition met; dispatching")

	status := store.DeliveryOK
	if err := e.notifier.Dispatch(ctx, rule, entry.price); err != nil {
		result.DeliveryFailures++
		status = store.DeliveryFailed
		log.Error().Err(err).Msg("notification dispatch failed")
	} else {
		result.Notified++
	}

	if e.audit != nil {
		rec := store.NotificationRecord{
			CycleTS:       now.UTC(),
			RuleID:        rule.ID,
			Asset:         rule.Asset,
			ObservedPrice: entry.price,
			Message:       notify.Message(rule, entry.price),
			Status:        status,
		}
		if err := e.audit.InsertNotification(ctx, rec); err != nil {
			log.Warn().Err(err).Msg("failed to record notification")
		}
	}
}
