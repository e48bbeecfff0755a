package ingest

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/smartcontractkit/x402-cre-price-alerts/internal/alert"
	"github.com/smartcontractkit/x402-cre-price-alerts/internal/store"
)

// Pipeline is the write path: authenticate, decode, derive the identifier,
// append. It is the only caller of the store's Append.
type Pipeline struct {
	auth   *Authenticator
	store  store.RuleStore
	logger zerolog.Logger
}

// NewPipeline wires the authenticator and store together.
func NewPipeline(auth *Authenticator, ruleStore store.RuleStore, logger zerolog.Logger) *Pipeline {
	return &Pipeline{
		auth:   auth,
		store:  ruleStore,
		logger: logger.With().Str("component", "ingest").Logger(),
	}
}

// Ingest processes one inbound report. Authentication strictly precedes
// decoding and storage; any failure leaves the store untouched. The rule id
// is recomputed here from the decoded content plus the submitting principal,
// and a non-zero wire id that disagrees is rejected.
func (p *Pipeline) Ingest(ctx context.Context, sender common.Address, metadata, report []byte) (alert.Rule, uint64, error) {
	if err := p.auth.Authenticate(sender, metadata); err != nil {
		p.logger.Warn().Err(err).Str("sender", sender.Hex()).Msg("report rejected by authenticator")
		return alert.Rule{}, 0, err
	}

	rule, err := alert.DecodeReport(report)
	if err != nil {
		return alert.Rule{}, 0, err
	}

	if !rule.Asset.Known() {
		return alert.Rule{}, 0, fmt.Errorf("%w: unsupported asset %q", alert.ErrMalformedReport, rule.Asset)
	}
	if !rule.Condition.Known() {
		return alert.Rule{}, 0, fmt.Errorf("%w: unsupported condition %q", alert.ErrMalformedReport, rule.Condition)
	}

	derived := alert.NewRuleID(rule.Asset, rule.Condition, rule.TargetPriceUSD, rule.CreatedAt, sender)
	if !rule.ID.IsZero() && rule.ID != derived {
		return alert.Rule{}, 0, fmt.Errorf("%w: report id does not match content", alert.ErrMalformedReport)
	}
	rule.ID = derived

	index, err := p.store.Append(ctx, rule)
	if err != nil {
		return alert.Rule{}, 0, fmt.Errorf("append rule: %w", err)
	}

	p.logger.Info().
		Str("rule_id", rule.ID.Hex()).
		Uint64("index", index).
		Str("asset", string(rule.Asset)).
		Str("condition", string(rule.Condition)).
		Uint64("target_usd", rule.TargetPriceUSD).
		Msg("rule stored")

	return rule, index, nil
}
