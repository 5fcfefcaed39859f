package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/SashOkT/ElectricityPricingProject/internal/fetcher"
	"github.com/SashOkT/ElectricityPricingProject/internal/pricing"
	"github.com/SashOkT/ElectricityPricingProject/internal/service"
	"github.com/SashOkT/ElectricityPricingProject/internal/tracker"
)

// SimulateAlert pushes one synthetic reading through a fresh tracker and the
// configured notification channels.
func (a *App) SimulateAlert(ctx context.Context, out io.Writer, opts SimulateOptions) error {
	if !a.Config.Alerting.Enabled {
		return errors.New("alerting is disabled")
	}

	notifier := a.newNotifier()
	if notifier == nil {
		return errors.New("no notification channel configured")
	}

	reading, err := pricing.NewReading(opts.Hour, "", opts.Price)
	if err != nil {
		return err
	}

	source := fetcher.Static(a.newFetcher().SourceURL(time.Now()), reading)
	svc := service.New(a.Config, nil, source, tracker.New(), notifier, nil, a.Logger)

	summary, err := svc.RunOnce(ctx)
	if err != nil {
		return err
	}
	printSummary(out, summary)

	if summary.Alerts == 0 {
		fmt.Fprintf(out, "%s is below the %.1f¢ threshold; nothing sent\n", reading.RawDisplay, a.Config.Alerting.ThresholdCents)
		return nil
	}
	if summary.DispatchFailures > 0 {
		return fmt.Errorf("simulated alert failed on %d channel attempt(s)", summary.DispatchFailures)
	}
	return nil
}
