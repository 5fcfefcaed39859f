package tracker

import (
	"sync"
	"time"

	"github.com/SashOkT/ElectricityPricingProject/internal/pricing"
)

const seriesKey = "\x00series"

// Evaluator is the contract the poll cycle drives.
type Evaluator interface {
	Evaluate(reading pricing.Reading, cfg pricing.ThresholdConfig) (pricing.AlertEvent, bool)
	Prune(cutoff time.Time) int
}

// Series treats the day's hourly readings as one price series: each hour
// label is evaluated the first time it appears on a given day, against a
// single armed flag. Re-reads of an hour already seen that day are ignored.
type Series struct {
	mu      sync.Mutex
	tracker *Tracker
	loc     *time.Location
	seen    map[seenKey]time.Time
}

// seenKey scopes an hour label to the source-local date it was read on, so
// "10:00 AM" tomorrow is a new hour even when nothing pruned today's entry.
type seenKey struct {
	day   string
	label string
}

// NewSeries wraps t for series evaluation. Days roll over in time.Local
// unless WithLocation says otherwise.
func NewSeries(t *Tracker) *Series {
	return &Series{tracker: t, loc: time.Local, seen: make(map[seenKey]time.Time)}
}

// WithLocation sets the zone whose calendar date scopes hour labels.
func (s *Series) WithLocation(loc *time.Location) *Series {
	s.mu.Lock()
	defer s.mu.Unlock()
	if loc != nil {
		s.loc = loc
	}
	return s
}

// Evaluate feeds a not-yet-seen hour into the series.
func (s *Series) Evaluate(reading pricing.Reading, cfg pricing.ThresholdConfig) (pricing.AlertEvent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.tracker.clock()
	key := seenKey{day: now.In(s.loc).Format(time.DateOnly), label: reading.HourLabel}
	if _, ok := s.seen[key]; ok {
		return pricing.AlertEvent{}, false
	}
	s.seen[key] = now

	keyed := reading
	keyed.HourLabel = seriesKey
	ev, fired := s.tracker.Evaluate(keyed, cfg)
	if fired {
		ev.HourLabel = reading.HourLabel
	}
	return ev, fired
}

// Armed reports whether the series currently suppresses alerts.
func (s *Series) Armed() bool {
	return s.tracker.Armed(seriesKey)
}

// Prune forgets hours and series state last seen before cutoff.
func (s *Series) Prune(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, at := range s.seen {
		if at.Before(cutoff) {
			delete(s.seen, key)
			removed++
		}
	}
	return removed + s.tracker.Prune(cutoff)
}

var (
	_ Evaluator = (*Tracker)(nil)
	_ Evaluator = (*Series)(nil)
)
