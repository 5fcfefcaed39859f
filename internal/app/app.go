package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/SashOkT/ElectricityPricingProject/internal/alerting"
	"github.com/SashOkT/ElectricityPricingProject/internal/config"
	"github.com/SashOkT/ElectricityPricingProject/internal/fetcher"
	"github.com/SashOkT/ElectricityPricingProject/internal/scheduler"
	"github.com/SashOkT/ElectricityPricingProject/internal/service"
	"github.com/SashOkT/ElectricityPricingProject/internal/storage"
	"github.com/SashOkT/ElectricityPricingProject/internal/tracker"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newFetcher() *fetcher.ComEd {
	src := a.Config.Source
	return fetcher.NewComEd(fetcher.ComEdOptions{
		BaseURL:     src.BaseURL,
		Location:    a.Config.Location(),
		Timeout:     src.RequestTimeout,
		UserAgent:   src.UserAgent,
		HourHeader:  src.HourHeader,
		PriceHeader: src.PriceHeader,
	}, a.Logger)
}

func (a *App) newEvaluator() tracker.Evaluator {
	if a.Config.Alerting.Mode == config.ModeSeries {
		return tracker.NewSeries(tracker.New()).WithLocation(a.Config.Location())
	}
	return tracker.New()
}

// newNotifier returns nil when alerting is disabled.
func (a *App) newNotifier() alerting.Notifier {
	cfg := a.Config.Alerting
	if !cfg.Enabled {
		return nil
	}

	var notifiers []alerting.Notifier
	if a.Config.HasChannel("email") {
		notifiers = append(notifiers, alerting.NewEmailNotifier(alerting.EmailOptions{
			Host:     cfg.Email.Host,
			Port:     cfg.Email.Port,
			Username: cfg.Email.Username,
			Password: cfg.Email.Password,
			From:     cfg.Email.From,
			To:       cfg.Email.To,
		}, a.Logger))
	}
	if a.Config.HasChannel("telegram") {
		tg := cfg.Telegram
		notifiers = append(notifiers, alerting.NewTelegramNotifier(tg.BotToken, tg.ChatID, tg.APIBase, cfg.SendTimeout, a.Logger))
	}

	fanout := alerting.NewFanout(a.Logger, notifiers...)
	if fanout.Len() == 0 {
		return nil
	}
	return fanout
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	if err := store.EnsureSchema(ctx); err != nil {
		store.Close()
		return nil, nil, err
	}
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

func (a *App) newService(sched *scheduler.Scheduler, store *storage.Store) *service.Service {
	var alertStore storage.AlertStore
	if store != nil {
		alertStore = store
	}
	return service.New(a.Config, sched, a.newFetcher(), a.newEvaluator(), a.newNotifier(), alertStore, a.Logger)
}

// Run executes the long-running monitoring service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; alert audit log disabled")
	}
	if closeStore != nil {
		defer closeStore()
	}
	a.applyRetention(ctx, store)

	sched := scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Interval,
		RunOnStart:   a.Config.Scheduler.RunOnStart,
		AlignToStart: a.Config.Scheduler.AlignToInterval,
		StartupDelay: a.Config.Scheduler.StartupDelay,
	}, a.Logger)

	svc := a.newService(sched, store)

	a.Logger.Info().
		Float64("threshold_cents", a.Config.Alerting.ThresholdCents).
		Str("mode", a.Config.Alerting.Mode).
		Strs("channels", a.Config.Alerting.Channels).
		Dur("interval", sched.Interval()).
		Msg("starting price monitor")
	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("price monitor stopped")
	return nil
}

// RunOnce executes a single poll cycle and prints its summary.
func (a *App) RunOnce(ctx context.Context, out io.Writer) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if closeStore != nil {
		defer closeStore()
	}

	summary, err := a.newService(nil, store).RunOnce(ctx)
	if err != nil {
		return err
	}
	printSummary(out, summary)
	return nil
}

func (a *App) applyRetention(ctx context.Context, store *storage.Store) {
	retention := a.Config.Database.Retention
	if store == nil || retention <= 0 {
		return
	}
	cutoff := time.Now().Add(-retention)
	removed, err := store.DeleteAlertsBefore(ctx, cutoff)
	if err != nil {
		a.Logger.Warn().Err(err).Msg("failed to prune alert audit log")
		return
	}
	a.Logger.Info().Int64("removed", removed).Time("cutoff", cutoff).Msg("pruned alert audit log")
}

func printSummary(out io.Writer, s service.CycleSummary) {
	fmt.Fprintf(out, "cycle:      %s\n", s.CycleID)
	fmt.Fprintf(out, "source:     %s\n", s.SourceURL)
	switch {
	case s.Skipped:
		fmt.Fprintln(out, "status:     skipped (another instance holds the lock)")
	case s.FetchFailed:
		fmt.Fprintln(out, "status:     fetch failed")
	case s.TableMissing:
		fmt.Fprintln(out, "status:     price table not found")
	default:
		fmt.Fprintln(out, "status:     ok")
	}
	fmt.Fprintf(out, "readings:   %d\n", s.Readings)
	fmt.Fprintf(out, "alerts:     %d (dispatched %d, failed %d)\n", s.Alerts, s.Dispatched, s.DispatchFailures)
	fmt.Fprintf(out, "duration:   %s\n", s.Duration.Round(time.Millisecond))
}

// ExportOptions hold parameters for exporting today's price table.
type ExportOptions struct {
	PNGPath string
	CSVPath string
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}

// SimulateOptions describe a synthetic reading.
type SimulateOptions struct {
	Hour  string
	Price float64
}
