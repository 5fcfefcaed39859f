package app

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/SashOkT/ElectricityPricingProject/internal/pricing"
)

// Export fetches today's price table and renders it as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	batch, err := a.newFetcher().FetchReadings(ctx)
	if err != nil {
		return err
	}
	if len(batch.Readings) == 0 {
		a.Logger.Info().Str("source_url", batch.SourceURL).Bool("table_found", batch.TableFound).Msg("no prices found for export")
		return nil
	}

	readings := append([]pricing.Reading(nil), batch.Readings...)
	pricing.SortByHour(readings)
	threshold := pricing.ThresholdConfig{ThresholdCents: a.Config.Alerting.ThresholdCents}
	a.Logger.Info().Int("readings", len(readings)).Str("source_url", batch.SourceURL).Msg("exporting price table")

	if opts.CSVPath != "" {
		if err := writeReadingsCSV(opts.CSVPath, readings, threshold); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		size := chartSize{width: a.Config.Export.ChartWidth, height: a.Config.Export.ChartHeight}
		if err := writeReadingsPNG(opts.PNGPath, readings, threshold, size); err != nil {
			return err
		}
	}

	return nil
}

func writeReadingsCSV(path string, readings []pricing.Reading, threshold pricing.ThresholdConfig) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"hour_ending", "price_display", "price_cents", "threshold_cents", "at_or_above"}
	if err := writer.Write(header); err != nil {
		return err
	}

	thresholdText := strconv.FormatFloat(threshold.ThresholdCents, 'f', -1, 64)
	for _, r := range readings {
		record := []string{
			r.HourLabel,
			r.RawDisplay,
			strconv.FormatFloat(r.NumericPrice, 'f', -1, 64),
			thresholdText,
			strconv.FormatBool(threshold.Reached(r.NumericPrice)),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

type chartSize struct {
	width  int
	height int
}

func writeReadingsPNG(path string, readings []pricing.Reading, threshold pricing.ThresholdConfig, size chartSize) error {
	if len(readings) < 2 {
		return fmt.Errorf("need at least two readings to chart, got %d", len(readings))
	}
	if err := ensureDir(path); err != nil {
		return err
	}
	if size.width <= 0 {
		size.width = 1280
	}
	if size.height <= 0 {
		size.height = 720
	}

	x := make([]float64, len(readings))
	prices := make([]float64, len(readings))
	limit := make([]float64, len(readings))
	ticks := make([]chart.Tick, len(readings))

	for i, r := range readings {
		x[i] = float64(i)
		prices[i] = r.NumericPrice
		limit[i] = threshold.ThresholdCents
		ticks[i] = chart.Tick{Value: float64(i), Label: r.HourLabel}
	}

	centsFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.1f¢")
	}
	graph := chart.Chart{
		Width:  size.width,
		Height: size.height,
		XAxis: chart.XAxis{
			Name:  "Hour ending",
			Ticks: ticks,
		},
		YAxis: chart.YAxis{
			Name:           "Price (¢/kWh)",
			ValueFormatter: centsFormatter,
		},
		Series: []chart.Series{
			chart.ContinuousSeries{
				Name:    "Hourly price",
				XValues: x,
				YValues: prices,
			},
			chart.ContinuousSeries{
				Name:    "Threshold",
				XValues: x,
				YValues: limit,
				Style: chart.Style{
					StrokeColor:     drawing.ColorRed,
					StrokeDashArray: []float64{5.0, 5.0},
				},
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
