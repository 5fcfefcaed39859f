package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/SashOkT/ElectricityPricingProject/internal/storage"
)

// Show prints the most recent audited alerts.
func (a *App) Show(ctx context.Context, out io.Writer, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot show alerts")
	}
	if closeStore != nil {
		defer closeStore()
	}

	alerts, err := store.ListRecentAlerts(ctx, opts.Limit)
	if err != nil {
		return err
	}
	writeAlertTable(out, alerts)
	return nil
}

func writeAlertTable(out io.Writer, alerts []storage.AlertRecord) {
	if len(alerts) == 0 {
		fmt.Fprintln(out, "no alerts found")
		return
	}

	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tKind\tHour\tPrice\tThreshold\tChannels\tDelivered\tError")

	for _, alert := range alerts {
		errMsg := ""
		if alert.Error != nil {
			errMsg = sanitizeInline(*alert.Error)
		}
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\t%s\t%t\t%s\n",
			alert.CreatedAt.UTC().Format(time.RFC3339),
			alert.Kind,
			alert.HourLabel,
			alert.RawDisplay,
			alert.ThresholdCents.StringFixed(1),
			strings.Join(alert.Channels, ","),
			alert.Delivered,
			errMsg,
		)
	}

	writer.Flush()
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
