// Package tracker holds the per-hour threshold crossing state.
//
// Each hour label is either armed (an alert already fired while the price
// stayed at or above the threshold) or unarmed. A reading at or above the
// threshold fires only when the label is unarmed; any reading below the
// threshold disarms it again.
package tracker

import (
	"sort"
	"sync"
	"time"

	"github.com/SashOkT/ElectricityPricingProject/internal/pricing"
)

// State is the alert state kept for one hour label.
type State struct {
	HourLabel string
	Armed     bool
	LastSeen  time.Time
}

// Tracker maps hour labels to their alert state. It is safe for concurrent
// use; a single lock covers the whole map because lookups create entries.
type Tracker struct {
	mu     sync.Mutex
	states map[string]*State
	now    func() time.Time
}

// New returns an empty tracker.
func New() *Tracker {
	return &Tracker{states: make(map[string]*State), now: time.Now}
}

// WithClock overrides the clock used to stamp LastSeen.
func (t *Tracker) WithClock(now func() time.Time) *Tracker {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.now = now
	return t
}

func (t *Tracker) clock() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.now()
}

// Evaluate applies one reading and returns an event when it crosses into the
// at-or-above region for its hour label.
func (t *Tracker) Evaluate(reading pricing.Reading, cfg pricing.ThresholdConfig) (pricing.AlertEvent, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.states[reading.HourLabel]
	if !ok {
		st = &State{HourLabel: reading.HourLabel}
		t.states[reading.HourLabel] = st
	}
	st.LastSeen = t.now()

	if !cfg.Reached(reading.NumericPrice) {
		st.Armed = false
		return pricing.AlertEvent{}, false
	}
	if st.Armed {
		return pricing.AlertEvent{}, false
	}

	st.Armed = true
	return pricing.AlertEvent{
		HourLabel:      reading.HourLabel,
		RawDisplay:     reading.RawDisplay,
		NumericPrice:   reading.NumericPrice,
		ThresholdCents: cfg.ThresholdCents,
	}, true
}

// Armed reports whether the hour label currently suppresses alerts.
func (t *Tracker) Armed(hourLabel string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.states[hourLabel]
	return ok && st.Armed
}

// Prune removes entries last seen before cutoff and returns how many were dropped.
func (t *Tracker) Prune(cutoff time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for label, st := range t.states {
		if st.LastSeen.Before(cutoff) {
			delete(t.states, label)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked hour labels.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.states)
}

// Snapshot returns a copy of all states ordered by hour.
func (t *Tracker) Snapshot() []State {
	t.mu.Lock()
	out := make([]State, 0, len(t.states))
	for _, st := range t.states {
		out = append(out, *st)
	}
	t.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		mi, iok := pricing.HourMinutes(out[i].HourLabel)
		mj, jok := pricing.HourMinutes(out[j].HourLabel)
		if iok && jok && mi != mj {
			return mi < mj
		}
		if iok != jok {
			return iok
		}
		return out[i].HourLabel < out[j].HourLabel
	})
	return out
}
