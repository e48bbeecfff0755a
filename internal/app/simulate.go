package app

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/smartcontractkit/x402-cre-price-alerts/internal/alert"
	"github.com/smartcontractkit/x402-cre-price-alerts/internal/evaluator"
	"github.com/smartcontractkit/x402-cre-price-alerts/internal/pricefeed"
	"github.com/smartcontractkit/x402-cre-price-alerts/internal/store"
)

// SimulateOptions drive one evaluation cycle against a fixed price.
type SimulateOptions struct {
	Asset     string
	Condition string
	TargetUSD uint64
	Price     decimal.Decimal
}

const simulatedFeedDecimals = 8

// SimulateCycle stores a single in-memory rule, wires a static price source
// for its asset, and runs one real evaluation cycle through the configured
// notifier. Useful to verify delivery end to end without waiting on a feed.
func (a *App) SimulateCycle(ctx context.Context, opts SimulateOptions) error {
	asset, err := alert.ParseAsset(opts.Asset)
	if err != nil {
		return err
	}
	condition, err := alert.ParseCondition(opts.Condition)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	rule := alert.Rule{
		Asset:          asset,
		Condition:      condition,
		TargetPriceUSD: opts.TargetUSD,
		CreatedAt:      uint64(now.Unix()),
	}
	rule.ID = alert.NewRuleID(rule.Asset, rule.Condition, rule.TargetPriceUSD, rule.CreatedAt, common.Address{})

	ruleStore := store.NewMemory()
	if _, err := ruleStore.Append(ctx, rule); err != nil {
		return err
	}

	notifier, closeNotifier, err := a.newNotifier(ctx)
	if err != nil {
		return err
	}
	if closeNotifier != nil {
		defer closeNotifier()
	}

	feeds := map[alert.Asset]evaluator.Feed{
		asset: {
			Source:   staticSource{price: opts.Price, now: now},
			Decimals: simulatedFeedDecimals,
		},
	}

	eval := evaluator.New(ruleStore, feeds, notifier, nil, a.Config.Rules.TTL, a.Logger)
	result, err := eval.RunCycle(ctx, now)
	if err != nil {
		return err
	}

	a.Logger.Info().
		Int("considered", result.Considered).
		Int("matched", result.Matched).
		Int("notified", result.Notified).
		Msg("simulation complete")
	return nil
}

type staticSource struct {
	price decimal.Decimal
	now   time.Time
}

func (s staticSource) Latest(ctx context.Context) (pricefeed.Observation, error) {
	answer := s.price.Shift(simulatedFeedDecimals).Round(0).BigInt()
	return pricefeed.Observation{
		RoundID:         big.NewInt(1),
		Answer:          answer,
		StartedAt:       uint64(s.now.Unix()),
		UpdatedAt:       uint64(s.now.Unix()),
		AnsweredInRound: big.NewInt(1),
	}, nil
}
