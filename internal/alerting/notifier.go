package alerting

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/SashOkT/ElectricityPricingProject/internal/pricing"
)

// Kind distinguishes price alerts from alerts about the monitor itself.
type Kind string

const (
	KindPriceThreshold  Kind = "price_threshold"
	KindMonitorDegraded Kind = "monitor_degraded"
)

// Notification carries everything a channel needs to render an alert.
type Notification struct {
	Kind           Kind
	CycleID        string
	HourLabel      string
	RawDisplay     string
	PriceCents     float64
	ThresholdCents float64
	SourceURL      string
	Failures       int
	LastError      string
	At             time.Time
}

// FromEvent converts a tracker event into a notification.
func FromEvent(ev pricing.AlertEvent, cycleID string, at time.Time) Notification {
	return Notification{
		Kind:           KindPriceThreshold,
		CycleID:        cycleID,
		HourLabel:      ev.HourLabel,
		RawDisplay:     ev.RawDisplay,
		PriceCents:     ev.NumericPrice,
		ThresholdCents: ev.ThresholdCents,
		SourceURL:      ev.SourceURL,
		At:             at,
	}
}

// Notifier delivers a notification. Each call is a single attempt.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, note Notification) error
}

// Subject returns the one-line summary used as mail subject.
func Subject(note Notification) string {
	switch note.Kind {
	case KindMonitorDegraded:
		return fmt.Sprintf("Price Monitor: %d consecutive fetch failures", note.Failures)
	default:
		return fmt.Sprintf("Price Alert: Electricity Price is %s", note.RawDisplay)
	}
}

// Body renders the plain-text message body.
func Body(note Notification) string {
	builder := strings.Builder{}
	switch note.Kind {
	case KindMonitorDegraded:
		builder.WriteString(fmt.Sprintf("The price monitor failed to fetch prices %d times in a row.\n", note.Failures))
		if note.LastError != "" {
			builder.WriteString(fmt.Sprintf("Last error: %s\n", note.LastError))
		}
	default:
		builder.WriteString(fmt.Sprintf("Hour ending: %s\n", note.HourLabel))
		builder.WriteString(fmt.Sprintf("Price: %s (%s¢/kWh)\n", note.RawDisplay, decimal.NewFromFloat(note.PriceCents).StringFixed(1)))
		builder.WriteString(fmt.Sprintf("Threshold: %s¢/kWh\n", decimal.NewFromFloat(note.ThresholdCents).StringFixed(1)))
	}
	if note.SourceURL != "" {
		builder.WriteString(fmt.Sprintf("Source: %s\n", note.SourceURL))
	}
	if !note.At.IsZero() {
		builder.WriteString(fmt.Sprintf("Checked: %s\n", note.At.Format(time.RFC1123)))
	}
	return builder.String()
}

// Fanout sends each notification to every channel once.
type Fanout struct {
	notifiers []Notifier
	logger    zerolog.Logger
}

// NewFanout combines notifiers; nil entries are ignored.
func NewFanout(logger zerolog.Logger, notifiers ...Notifier) *Fanout {
	kept := make([]Notifier, 0, len(notifiers))
	for _, n := range notifiers {
		if n != nil {
			kept = append(kept, n)
		}
	}
	return &Fanout{notifiers: kept, logger: logger.With().Str("component", "alert_fanout").Logger()}
}

// Name lists the wrapped channels.
func (f *Fanout) Name() string {
	names := make([]string, 0, len(f.notifiers))
	for _, n := range f.notifiers {
		names = append(names, n.Name())
	}
	return strings.Join(names, ",")
}

// Len returns the number of channels.
func (f *Fanout) Len() int { return len(f.notifiers) }

// Notify delivers to all channels and joins their errors. A failing channel
// does not stop the others.
func (f *Fanout) Notify(ctx context.Context, note Notification) error {
	if len(f.notifiers) == 0 {
		return errors.New("no notification channels configured")
	}
	var errs []error
	for _, n := range f.notifiers {
		if err := n.Notify(ctx, note); err != nil {
			f.logger.Warn().Err(err).Str("channel", n.Name()).Str("kind", string(note.Kind)).Msg("channel delivery failed")
			errs = append(errs, fmt.Errorf("%s: %w", n.Name(), err))
		}
	}
	return errors.Join(errs...)
}

var _ Notifier = (*Fanout)(nil)
