package tracker

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SashOkT/ElectricityPricingProject/internal/pricing"
)

func reading(t *testing.T, hour string, price float64) pricing.Reading {
	t.Helper()
	r, err := pricing.NewReading(hour, "", price)
	require.NoError(t, err)
	return r
}

func TestEvaluateFiresOnFirstReadingAtThreshold(t *testing.T) {
	tr := New()
	cfg := pricing.ThresholdConfig{ThresholdCents: 1.5}

	ev, fired := tr.Evaluate(reading(t, "14:00", 1.5), cfg)
	require.True(t, fired)
	assert.Equal(t, "14:00", ev.HourLabel)
	assert.Equal(t, 1.5, ev.NumericPrice)
	assert.Equal(t, 1.5, ev.ThresholdCents)
	assert.True(t, tr.Armed("14:00"))
}

func TestEvaluateBelowThresholdNeverFires(t *testing.T) {
	tr := New()
	cfg := pricing.ThresholdConfig{ThresholdCents: 1.5}

	_, fired := tr.Evaluate(reading(t, "14:00", 1.49), cfg)
	assert.False(t, fired)
	assert.False(t, tr.Armed("14:00"))
	assert.Equal(t, 1, tr.Len())
}

func TestEvaluateDedupsIdenticalReadings(t *testing.T) {
	tr := New()
	cfg := pricing.ThresholdConfig{ThresholdCents: 5}
	r := reading(t, "11:00", 6.2)

	_, first := tr.Evaluate(r, cfg)
	_, second := tr.Evaluate(r, cfg)
	_, third := tr.Evaluate(r, cfg)

	assert.True(t, first)
	assert.False(t, second)
	assert.False(t, third)
}

func TestEvaluateRearmsAfterDrop(t *testing.T) {
	tr := New()
	cfg := pricing.ThresholdConfig{ThresholdCents: 1.5}

	prices := []float64{2.0, 2.0, 0.9, 2.0}
	want := []bool{true, false, false, true}

	events := 0
	for i, p := range prices {
		_, fired := tr.Evaluate(reading(t, "14:00", p), cfg)
		assert.Equal(t, want[i], fired, "step %d", i)
		if fired {
			events++
		}
	}
	assert.Equal(t, 2, events)
}

func TestEvaluateFiresOnlyOnCrossings(t *testing.T) {
	cfg := pricing.ThresholdConfig{ThresholdCents: 3}
	prices := []float64{1, 3, 4, 2.9, 2, 3.1, 3.1, 0, 5}

	tr := New()
	prevAbove := false
	for i, p := range prices {
		_, fired := tr.Evaluate(reading(t, "9:00 AM", p), cfg)
		above := p >= cfg.ThresholdCents
		assert.Equal(t, above && !prevAbove, fired, "step %d price %v", i, p)
		prevAbove = above
	}
}

func TestEvaluateHourLabelsAreIndependent(t *testing.T) {
	tr := New()
	cfg := pricing.ThresholdConfig{ThresholdCents: 1.5}

	for _, p := range []float64{2, 2, 1, 2} {
		_, a := tr.Evaluate(reading(t, "14:00", p), cfg)
		_, b := tr.Evaluate(reading(t, "15:00", p), cfg)
		assert.Equal(t, a, b, "price %v", p)
	}

	_, fired := tr.Evaluate(reading(t, "16:00", 2), cfg)
	assert.True(t, fired, "armed 14:00/15:00 must not suppress a new label")
}

func TestPruneDropsStaleEntries(t *testing.T) {
	base := time.Date(2026, 10, 18, 23, 0, 0, 0, time.UTC)
	now := base
	tr := New().WithClock(func() time.Time { return now })
	cfg := pricing.ThresholdConfig{ThresholdCents: 1}

	tr.Evaluate(reading(t, "14:00", 2), cfg)
	now = base.Add(2 * time.Hour)
	tr.Evaluate(reading(t, "1:00 AM", 2), cfg)

	removed := tr.Prune(time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, 1, removed)
	assert.False(t, tr.Armed("14:00"))
	assert.True(t, tr.Armed("1:00 AM"))

	_, fired := tr.Evaluate(reading(t, "14:00", 2), cfg)
	assert.True(t, fired, "pruned label starts from an unarmed baseline")
}

func TestSnapshotOrderedByHour(t *testing.T) {
	tr := New()
	cfg := pricing.ThresholdConfig{ThresholdCents: 1}
	tr.Evaluate(reading(t, "3:00 PM", 2), cfg)
	tr.Evaluate(reading(t, "1:00 AM", 0.5), cfg)
	tr.Evaluate(reading(t, "12:00 AM", 2), cfg)

	snap := tr.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, "1:00 AM", snap[0].HourLabel)
	assert.False(t, snap[0].Armed)
	assert.Equal(t, "3:00 PM", snap[1].HourLabel)
	assert.Equal(t, "12:00 AM", snap[2].HourLabel)
}

func TestEvaluateConcurrentCallersFireOnce(t *testing.T) {
	tr := New()
	cfg := pricing.ThresholdConfig{ThresholdCents: 1}
	r := reading(t, "14:00", 2)

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		fires int
	)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, fired := tr.Evaluate(r, cfg); fired {
				mu.Lock()
				fires++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, fires)
}
