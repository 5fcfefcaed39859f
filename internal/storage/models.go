package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// AlertRecord is one audited dispatch attempt.
type AlertRecord struct {
	ID             int64
	CycleID        string
	Kind           string
	HourLabel      string
	RawDisplay     string
	PriceCents     decimal.Decimal
	ThresholdCents decimal.Decimal
	SourceURL      string
	Channels       []string
	Delivered      bool
	Error          *string
	CreatedAt      time.Time
}
