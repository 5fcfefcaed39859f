package fetcher

import (
	"context"
	"fmt"

	"github.com/SashOkT/ElectricityPricingProject/internal/pricing"
)

// Batch is the result of one fetch of the day's price table.
type Batch struct {
	SourceURL  string
	Readings   []pricing.Reading
	TableFound bool
}

// ReadingFetcher retrieves the current day's hourly readings.
type ReadingFetcher interface {
	FetchReadings(ctx context.Context) (Batch, error)
}

// FetchError reports that the page could not be retrieved or parsed.
type FetchError struct {
	Op         string
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s %s: status %d", e.Op, e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s %s: %v", e.Op, e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Func adapts a plain function to ReadingFetcher.
type Func func(ctx context.Context) (Batch, error)

// FetchReadings calls f.
func (f Func) FetchReadings(ctx context.Context) (Batch, error) { return f(ctx) }

// Static returns a fetcher that always yields the given readings.
func Static(sourceURL string, readings ...pricing.Reading) ReadingFetcher {
	return Func(func(context.Context) (Batch, error) {
		return Batch{SourceURL: sourceURL, Readings: readings, TableFound: true}, nil
	})
}

var _ ReadingFetcher = Func(nil)
