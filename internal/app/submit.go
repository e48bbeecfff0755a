package app

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/smartcontractkit/x402-cre-price-alerts/internal/alert"
	"github.com/smartcontractkit/x402-cre-price-alerts/internal/ingest"
)

// SubmitOptions hold parameters for submitting one rule report.
type SubmitOptions struct {
	Asset     string
	Condition string
	TargetUSD uint64
	CreatedAt int64
	Sender    string
}

// SubmitReport encodes a rule report and posts it to the configured ingest
// endpoint. Origin metadata is taken from the auth section of the config so
// a server with predicates configured will accept it.
func (a *App) SubmitReport(ctx context.Context, opts SubmitOptions) error {
	asset, err := alert.ParseAsset(opts.Asset)
	if err != nil {
		return err
	}
	condition, err := alert.ParseCondition(opts.Condition)
	if err != nil {
		return err
	}
	if opts.TargetUSD == 0 {
		return fmt.Errorf("target price must be greater than zero")
	}
	if !common.IsHexAddress(opts.Sender) {
		return fmt.Errorf("invalid sender address %q", opts.Sender)
	}
	sender := common.HexToAddress(opts.Sender)

	createdAt := opts.CreatedAt
	if createdAt <= 0 {
		createdAt = time.Now().UTC().Unix()
	}

	rule := alert.Rule{
		Asset:          asset,
		Condition:      condition,
		TargetPriceUSD: opts.TargetUSD,
		CreatedAt:      uint64(createdAt),
	}
	rule.ID = alert.NewRuleID(rule.Asset, rule.Condition, rule.TargetPriceUSD, rule.CreatedAt, sender)

	report, err := alert.EncodeReport(rule)
	if err != nil {
		return err
	}

	metadata, err := a.originMetadata()
	if err != nil {
		return err
	}

	client := ingest.NewClient(a.Config.Ingest.SubmitURL, a.Config.Ingest.RequestTimeout)
	result, err := client.Submit(ctx, sender, metadata.Encode(), report)
	if err != nil {
		return err
	}

	a.Logger.Info().
		Str("rule_id", result.RuleID).
		Uint64("index", result.Index).
		Str("asset", string(asset)).
		Msg("rule submitted")
	return nil
}

func (a *App) originMetadata() (ingest.Metadata, error) {
	var md ingest.Metadata
	authCfg := a.Config.Auth

	if authCfg.OriginID != "" {
		raw, err := hexutil.Decode(authCfg.OriginID)
		if err != nil || len(raw) != 32 {
			return ingest.Metadata{}, fmt.Errorf("auth.origin_id must be a 32-byte hex value")
		}
		md.OriginID = common.BytesToHash(raw)
	}
	if authCfg.OriginName != "" {
		md.OriginName = ingest.NameDigest(authCfg.OriginName)
	}
	if authCfg.OriginOwner != "" {
		md.Owner = common.HexToAddress(authCfg.OriginOwner)
	}
	return md, nil
}
