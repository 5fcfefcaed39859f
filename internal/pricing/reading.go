package pricing

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrInvalidReading is returned when a reading cannot be constructed.
var ErrInvalidReading = errors.New("invalid price reading")

// Reading is one (hour, price) sample extracted from the source table.
// Build readings with NewReading, ParseReading or MustReading; those are the
// only constructors that enforce a non-empty label and a finite, non-negative
// price. A Reading composed as a struct literal is unchecked.
type Reading struct {
	HourLabel    string
	RawDisplay   string
	NumericPrice float64
}

// NewReading validates and builds a Reading. Prices are cents/kWh and must be
// finite and non-negative.
func NewReading(hourLabel, rawDisplay string, price float64) (Reading, error) {
	hourLabel = strings.TrimSpace(hourLabel)
	if hourLabel == "" {
		return Reading{}, fmt.Errorf("%w: empty hour label", ErrInvalidReading)
	}
	if math.IsNaN(price) || math.IsInf(price, 0) {
		return Reading{}, fmt.Errorf("%w: price for %s is not finite", ErrInvalidReading, hourLabel)
	}
	if price < 0 {
		return Reading{}, fmt.Errorf("%w: price for %s is negative (%v)", ErrInvalidReading, hourLabel, price)
	}
	rawDisplay = strings.TrimSpace(rawDisplay)
	if rawDisplay == "" {
		rawDisplay = FormatCents(price)
	}
	return Reading{HourLabel: hourLabel, RawDisplay: rawDisplay, NumericPrice: price}, nil
}

// MustReading is like NewReading but panics if the reading is invalid. It is
// meant for fixed readings known to be valid, such as test fixtures.
func MustReading(hourLabel, rawDisplay string, price float64) Reading {
	r, err := NewReading(hourLabel, rawDisplay, price)
	if err != nil {
		panic(err)
	}
	return r
}

// ParseReading parses the display text of a price cell and builds a Reading.
func ParseReading(hourLabel, rawDisplay string) (Reading, error) {
	price, err := ParsePrice(rawDisplay)
	if err != nil {
		return Reading{}, err
	}
	return NewReading(hourLabel, rawDisplay, price)
}

// ParsePrice converts cell text such as "5.0¢" or " 2.3 ¢/kWh" into cents.
func ParsePrice(raw string) (float64, error) {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimSuffix(cleaned, "/kWh")
	cleaned = strings.ReplaceAll(cleaned, "¢", "")
	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" {
		return 0, fmt.Errorf("%w: empty price text", ErrInvalidReading)
	}

	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return 0, fmt.Errorf("%w: parse price %q: %v", ErrInvalidReading, raw, err)
	}
	return d.InexactFloat64(), nil
}

// FormatCents renders a price the way the source table displays it.
func FormatCents(price float64) string {
	return decimal.NewFromFloat(price).StringFixed(1) + "¢"
}

// ThresholdConfig holds the alert threshold in cents/kWh.
type ThresholdConfig struct {
	ThresholdCents float64
}

// Reached reports whether price is at or above the threshold.
func (c ThresholdConfig) Reached(price float64) bool {
	return price >= c.ThresholdCents
}

// AlertEvent is produced by the tracker on a threshold crossing.
type AlertEvent struct {
	HourLabel      string
	RawDisplay     string
	NumericPrice   float64
	ThresholdCents float64
	SourceURL      string
}
