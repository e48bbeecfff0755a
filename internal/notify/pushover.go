package notify

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/smartcontractkit/x402-cre-price-alerts/internal/alert"
)

const messagesPath = "/1/messages.json"

// PushoverOptions parameterise the Pushover dispatcher. Credentials are
// resolved once at construction, not per rule.
type PushoverOptions struct {
	Token        string
	User         string
	BaseURL      string
	Timeout      time.Duration
	DedupeWindow time.Duration
}

// Pushover delivers notifications through the Pushover message API. Each
// outbound request is deduplicated across redundant executors via the
// response cache, keyed by the literal request body.
type Pushover struct {
	opts    PushoverOptions
	baseURL string
	client  *http.Client
	cache   ResponseCache
	logger  zerolog.Logger
}

type pushoverRequest struct {
	Token   string `json:"token"`
	User    string `json:"user"`
	Message string `json:"message"`
	Title   string `json:"title"`
}

type pushoverResponse struct {
	Status  int      `json:"status"`
	Errors  []string `json:"errors"`
	Request string   `json:"request"`
}

// NewPushover constructs the dispatcher. The cache must not be nil; use
// MemoryCache when no shared cache is available.
func NewPushover(opts PushoverOptions, cache ResponseCache, logger zerolog.Logger) *Pushover {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.pushover.net"
	}

	if opts.DedupeWindow <= 0 {
		opts.DedupeWindow = 30 * time.Second
	}

	return &Pushover{
		opts:    opts,
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		cache:   cache,
		logger:  logger.With().Str("component", "pushover_notifier").Logger(),
	}
}

// Dispatch formats and sends the message for a firing rule. When a redundant
// executor has already claimed the identical request, the stored outcome is
// surfaced instead of issuing a second call.
func (p *Pushover) Dispatch(ctx context.Context, rule alert.Rule, observedPrice decimal.Decimal) error {
	payload := pushoverRequest{
		Token:   p.opts.Token,
		User:    p.opts.User,
		Message: Message(rule, observedPrice),
		Title:   Title(rule),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal pushover payload: %w", err)
	}

	key := hex.EncodeToString(crypto.Keccak256(body))

	claimed, claimErr := p.cache.Claim(ctx, key, p.opts.DedupeWindow)
	if claimErr != nil {
		// Cache trouble must not suppress the notification itself.
		p.logger.Warn().Err(claimErr).Msg("response cache unavailable; sending without dedupe")
		claimed = true
	}

	if !claimed {
		outcome, awaitErr := p.cache.AwaitOutcome(ctx, key)
		if awaitErr != nil {
			return fmt.Errorf("deduplicated dispatch: %w", awaitErr)
		}
		p.logger.Debug().Str("key", key).Str("outcome", outcome).Msg("dispatch already delivered by another executor")
		return outcomeError(outcome)
	}

	sendErr := p.send(ctx, body)

	outcome := outcomeOK
	if sendErr != nil {
		outcome = outcomeFailedPrefix + sendErr.Error()
	}
	if storeErr := p.cache.StoreOutcome(ctx, key, outcome, p.opts.DedupeWindow); storeErr != nil {
		p.logger.Warn().Err(storeErr).Msg("failed to publish delivery outcome")
	}

	if sendErr != nil {
		return sendErr
	}

	p.logger.Info().
		Str("rule_id", rule.ID.Hex()).
		Str("asset", string(rule.Asset)).
		Str("title", payload.Title).
		Msg("notification delivered")
	return nil
}

func (p *Pushover) send(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+messagesPath, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create pushover request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return &DeliveryError{Transport: true, Reason: err.Error()}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return &DeliveryError{Transport: true, Status: resp.StatusCode, Reason: "read response: " + err.Error()}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &DeliveryError{Transport: true, Status: resp.StatusCode, Reason: strings.TrimSpace(string(respBody))}
	}

	var parsed pushoverResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return &DeliveryError{Status: resp.StatusCode, Reason: "unparseable response body"}
	}
	if parsed.Status != 1 {
		reason := strings.Join(parsed.Errors, "; ")
		if reason == "" {
			reason = fmt.Sprintf("application status %d", parsed.Status)
		}
		return &DeliveryError{Status: resp.StatusCode, Reason: reason}
	}

	return nil
}

func outcomeError(outcome string) error {
	if outcome == outcomeOK {
		return nil
	}
	return &DeliveryError{Reason: strings.TrimPrefix(outcome, outcomeFailedPrefix)}
}

var _ Notifier = (*Pushover)(nil)
