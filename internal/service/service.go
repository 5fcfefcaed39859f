package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/semaphore"

	"github.com/SashOkT/ElectricityPricingProject/internal/alerting"
	"github.com/SashOkT/ElectricityPricingProject/internal/config"
	"github.com/SashOkT/ElectricityPricingProject/internal/fetcher"
	"github.com/SashOkT/ElectricityPricingProject/internal/pricing"
	"github.com/SashOkT/ElectricityPricingProject/internal/scheduler"
	"github.com/SashOkT/ElectricityPricingProject/internal/storage"
	"github.com/SashOkT/ElectricityPricingProject/internal/tracker"
)

// ErrCycleInFlight is returned when RunOnce is called while another cycle runs.
var ErrCycleInFlight = errors.New("poll cycle already in flight")

var errNoNotifier = errors.New("alerting disabled or no notifier configured")

// CycleSummary describes the outcome of one poll cycle.
type CycleSummary struct {
	CycleID          string
	SourceURL        string
	StartedAt        time.Time
	Duration         time.Duration
	Readings         int
	Alerts           int
	Dispatched       int
	DispatchFailures int
	Pruned           int
	FetchFailed      bool
	TableMissing     bool
	Skipped          bool
}

// MarshalZerologObject implements zerolog.LogObjectMarshaler.
func (c CycleSummary) MarshalZerologObject(e *zerolog.Event) {
	e.Str("cycle_id", c.CycleID).
		Str("source_url", c.SourceURL).
		Int("readings", c.Readings).
		Int("alerts", c.Alerts).
		Int("dispatched", c.Dispatched).
		Int("dispatch_failures", c.DispatchFailures).
		Bool("fetch_failed", c.FetchFailed).
		Dur("duration", c.Duration)
	if c.TableMissing {
		e.Bool("table_missing", true)
	}
	if c.Pruned > 0 {
		e.Int("pruned", c.Pruned)
	}
	if c.Skipped {
		e.Bool("skipped", true)
	}
}

// Service runs poll cycles: fetch, evaluate, dispatch.
type Service struct {
	scheduler  *scheduler.Scheduler
	fetcher    fetcher.ReadingFetcher
	evaluator  tracker.Evaluator
	notifier   alerting.Notifier
	alertStore storage.AlertStore
	locker     storage.AdvisoryLocker
	logger     zerolog.Logger

	threshold         pricing.ThresholdConfig
	alertsOn          bool
	channels          []string
	pruneDaily        bool
	cycleTimeout      time.Duration
	sendTimeout       time.Duration
	failureAlertAfter int
	lockKey           int64
	loc               *time.Location
	now               func() time.Time

	guard *semaphore.Weighted

	// guarded by guard
	failures     int
	degradedSent bool
	prunedDay    time.Time
}

// New constructs the monitoring service. alertStore may be nil.
func New(cfg *config.Config, sched *scheduler.Scheduler, fetch fetcher.ReadingFetcher, evaluator tracker.Evaluator, notifier alerting.Notifier, alertStore storage.AlertStore, logger zerolog.Logger) *Service {
	var locker storage.AdvisoryLocker
	if l, ok := alertStore.(storage.AdvisoryLocker); ok {
		locker = l
	}

	return &Service{
		scheduler:         sched,
		fetcher:           fetch,
		evaluator:         evaluator,
		notifier:          notifier,
		alertStore:        alertStore,
		locker:            locker,
		logger:            logger.With().Str("component", "service").Logger(),
		threshold:         pricing.ThresholdConfig{ThresholdCents: cfg.Alerting.ThresholdCents},
		alertsOn:          cfg.Alerting.Enabled,
		channels:          cfg.Alerting.Channels,
		pruneDaily:        cfg.Alerting.PruneDaily,
		cycleTimeout:      cfg.Scheduler.CycleTimeout,
		sendTimeout:       cfg.Alerting.SendTimeout,
		failureAlertAfter: cfg.Alerting.FetchFailureAlertAfter,
		lockKey:           cfg.Scheduler.AdvisoryLockKey,
		loc:               cfg.Location(),
		now:               time.Now,
		guard:             semaphore.NewWeighted(1),
	}
}

// WithClock overrides the clock used for timestamps and daily pruning.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Run drives RunOnce on every scheduler tick until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return s.scheduler.Run(ctx, func(ctx context.Context, _ time.Time) error {
		_, err := s.RunOnce(ctx)
		return err
	})
}

// RunOnce executes a single poll cycle. Fetch and dispatch failures are
// logged and reported in the summary; the only error is ErrCycleInFlight.
func (s *Service) RunOnce(ctx context.Context) (CycleSummary, error) {
	if !s.guard.TryAcquire(1) {
		return CycleSummary{}, ErrCycleInFlight
	}
	defer s.guard.Release(1)

	summary := CycleSummary{CycleID: uuid.NewString(), StartedAt: s.now()}
	logger := s.logger.With().Str("cycle_id", summary.CycleID).Logger()

	unlock, proceed := s.acquireLock(ctx, logger)
	if !proceed {
		summary.Skipped = true
		logger.Info().Msg("skip cycle because advisory lock held elsewhere")
		return summary, nil
	}
	if unlock != nil {
		defer unlock()
	}

	if s.cycleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cycleTimeout)
		defer cancel()
	}

	summary.Pruned = s.pruneStale(summary.StartedAt)
	s.execute(ctx, &summary, logger)

	summary.Duration = s.now().Sub(summary.StartedAt)
	logger.Info().Object("cycle", summary).Msg("poll cycle finished")
	return summary, nil
}

func (s *Service) execute(ctx context.Context, summary *CycleSummary, logger zerolog.Logger) {
	batch, err := s.fetcher.FetchReadings(ctx)
	if err != nil {
		summary.FetchFailed = true
		var fetchErr *fetcher.FetchError
		if errors.As(err, &fetchErr) {
			summary.SourceURL = fetchErr.URL
		}
		s.failures++
		logger.Error().Err(err).Int("consecutive_failures", s.failures).Msg("fetch failed; retrying on next tick")
		s.alertDegraded(ctx, summary, err, logger)
		return
	}

	if s.failures > 0 {
		logger.Info().Int("failures", s.failures).Msg("fetch recovered")
	}
	s.failures = 0
	s.degradedSent = false

	summary.SourceURL = batch.SourceURL
	summary.TableMissing = !batch.TableFound
	if len(batch.Readings) == 0 {
		if !batch.TableFound {
			logger.Warn().Str("source_url", batch.SourceURL).Msg("price table not found")
		} else {
			logger.Info().Str("source_url", batch.SourceURL).Msg("no prices found")
		}
		return
	}

	readings := slices.Clone(batch.Readings)
	pricing.SortByHour(readings)
	summary.Readings = len(readings)

	table := zerolog.Arr()
	for _, r := range readings {
		table.Str(r.HourLabel + " " + r.RawDisplay)
	}
	logger.Debug().Array("prices", table).Msg("price table")

	for _, reading := range readings {
		ev, fired := s.evaluator.Evaluate(reading, s.threshold)
		if !fired {
			continue
		}
		ev.SourceURL = batch.SourceURL
		summary.Alerts++
		logger.Info().
			Str("hour", ev.HourLabel).
			Str("price", ev.RawDisplay).
			Float64("threshold_cents", ev.ThresholdCents).
			Msg("price crossed threshold")

		_ = s.dispatch(ctx, alerting.FromEvent(ev, summary.CycleID, s.now()), summary, logger)
	}
}

// alertDegraded sends one meta-alert per streak of failed fetches.
func (s *Service) alertDegraded(ctx context.Context, summary *CycleSummary, fetchErr error, logger zerolog.Logger) {
	if s.failureAlertAfter <= 0 || s.failures < s.failureAlertAfter || s.degradedSent {
		return
	}
	if !s.alertsOn || s.notifier == nil {
		// nothing can deliver it; log the streak once
		logger.Warn().Int("consecutive_failures", s.failures).Msg("monitor degraded; alerting disabled")
		s.degradedSent = true
		return
	}
	note := alerting.Notification{
		Kind:      alerting.KindMonitorDegraded,
		CycleID:   summary.CycleID,
		SourceURL: summary.SourceURL,
		Failures:  s.failures,
		LastError: fetchErr.Error(),
		At:        s.now(),
	}
	if err := s.dispatch(ctx, note, summary, logger); err == nil {
		s.degradedSent = true
	}
}

func (s *Service) dispatch(ctx context.Context, note alerting.Notification, summary *CycleSummary, logger zerolog.Logger) error {
	if !s.alertsOn || s.notifier == nil {
		logger.Warn().Str("kind", string(note.Kind)).Str("hour", note.HourLabel).Msg("alert not sent: alerting disabled")
		return errNoNotifier
	}

	sendCtx := ctx
	if s.sendTimeout > 0 {
		var cancel context.CancelFunc
		sendCtx, cancel = context.WithTimeout(ctx, s.sendTimeout)
		defer cancel()
	}

	err := s.notifier.Notify(sendCtx, note)
	if err != nil {
		summary.DispatchFailures++
		logger.Error().Err(err).Str("kind", string(note.Kind)).Str("hour", note.HourLabel).Msg("failed to dispatch alert")
	} else {
		summary.Dispatched++
		logger.Info().Str("kind", string(note.Kind)).Str("channels", s.notifier.Name()).Msg("alert dispatched")
	}

	s.audit(ctx, note, err, logger)
	return err
}

func (s *Service) audit(ctx context.Context, note alerting.Notification, sendErr error, logger zerolog.Logger) {
	if s.alertStore == nil {
		return
	}
	record := storage.AlertRecord{
		CycleID:        note.CycleID,
		Kind:           string(note.Kind),
		HourLabel:      note.HourLabel,
		RawDisplay:     note.RawDisplay,
		PriceCents:     decimal.NewFromFloat(note.PriceCents),
		ThresholdCents: decimal.NewFromFloat(s.threshold.ThresholdCents),
		SourceURL:      note.SourceURL,
		Channels:       s.channels,
		Delivered:      sendErr == nil,
	}
	if sendErr != nil {
		msg := sendErr.Error()
		record.Error = &msg
	}
	if _, err := s.alertStore.InsertAlert(ctx, record); err != nil {
		logger.Error().Err(err).Msg("failed to persist alert record")
	}
}

// pruneStale drops tracker state from previous days, once per day.
func (s *Service) pruneStale(now time.Time) int {
	if !s.pruneDaily || s.evaluator == nil {
		return 0
	}
	local := now.In(s.loc)
	day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.loc)
	if !day.After(s.prunedDay) {
		return 0
	}
	s.prunedDay = day
	removed := s.evaluator.Prune(day)
	if removed > 0 {
		s.logger.Debug().Int("removed", removed).Time("cutoff", day).Msg("pruned stale alert state")
	}
	return removed
}

func (s *Service) acquireLock(ctx context.Context, logger zerolog.Logger) (func(), bool) {
	if s.lockKey == 0 || s.locker == nil {
		return nil, true
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.lockKey)
	if err != nil {
		// a database outage must not silence alerts
		logger.Warn().Err(err).Msg("advisory lock unavailable; running cycle without it")
		return nil, true
	}
	if !acquired {
		return nil, false
	}
	return unlock, true
}
