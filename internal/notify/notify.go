package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/smartcontractkit/x402-cre-price-alerts/internal/alert"
)

// Notifier delivers a human-readable message for a firing rule. Failures are
// always caught at the evaluator boundary; a bad dispatch never aborts the
// cycle it occurred in.
type Notifier interface {
	Dispatch(ctx context.Context, rule alert.Rule, observedPrice decimal.Decimal) error
}

// DeliveryError reports a failed dispatch, distinguishing a transport-level
// failure (network error or non-2xx status) from an application-level
// rejection (2xx status whose body does not indicate acceptance).
type DeliveryError struct {
	Transport bool
	Status    int
	Reason    string
}

func (e *DeliveryError) Error() string {
	kind := "rejected"
	if e.Transport {
		kind = "transport failed"
	}
	if e.Status != 0 {
		return fmt.Sprintf("notify: delivery %s (status %d): %s", kind, e.Status, e.Reason)
	}
	return fmt.Sprintf("notify: delivery %s: %s", kind, e.Reason)
}

// Title renders the notification title for a rule.
func Title(rule alert.Rule) string {
	return fmt.Sprintf("Price alert: %s", rule.Asset)
}

// Message renders the notification body, embedding asset, observed price,
// condition symbol, and target.
func Message(rule alert.Rule, observedPrice decimal.Decimal) string {
	return fmt.Sprintf("%s is trading at $%s, %s target $%s",
		rule.Asset,
		FormatUSD(observedPrice),
		rule.Condition.Symbol(),
		FormatUSD(rule.TargetPrice()),
	)
}

// FormatUSD renders a price with two decimal places and comma-grouped
// thousands, e.g. 51000 -> "51,000.00".
func FormatUSD(d decimal.Decimal) string {
	fixed := d.StringFixed(2)

	neg := strings.HasPrefix(fixed, "-")
	if neg {
		fixed = fixed[1:]
	}

	intPart, fracPart, _ := strings.Cut(fixed, ".")
	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	for i, digit := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(digit)
	}
	b.WriteByte('.')
	b.WriteString(fracPart)
	return b.String()
}

// LogNotifier is the fallback dispatcher used when no delivery channel is
// configured. It records the would-be message and succeeds.
type LogNotifier struct {
	logger zerolog.Logger
}

// NewLogNotifier constructs a log-only dispatcher.
func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With().Str("component", "log_notifier").Logger()}
}

// Dispatch logs the rendered message.
func (n *LogNotifier) Dispatch(ctx context.Context, rule alert.Rule, observedPrice decimal.Decimal) error {
	n.logger.Info().
		Str("rule_id", rule.ID.Hex()).
		Str("asset", string(rule.Asset)).
		Str("message", Message(rule, observedPrice)).
		Msg("notification channel not configured; logging only")
	return nil
}

var _ Notifier = (*LogNotifier)(nil)
