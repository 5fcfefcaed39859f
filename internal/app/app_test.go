package app

import (
	"bytes"
	"context"
	"encoding/csv"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SashOkT/ElectricityPricingProject/internal/alerting"
	"github.com/SashOkT/ElectricityPricingProject/internal/config"
	"github.com/SashOkT/ElectricityPricingProject/internal/pricing"
	"github.com/SashOkT/ElectricityPricingProject/internal/service"
	"github.com/SashOkT/ElectricityPricingProject/internal/storage"
	"github.com/SashOkT/ElectricityPricingProject/internal/tracker"
)

const pricePage = `<html><body>
<table class="prices">
  <tr><th>Price for the Hour Ending</th><th>Hourly Price (¢/kWh)</th></tr>
  <tr><td>2:00 PM</td><td>4.9¢</td></tr>
  <tr><td>1:00 PM</td><td>5.2¢</td></tr>
  <tr><td>3:00 PM</td><td>3.1¢</td></tr>
</table>
</body></html>`

func testApp(t *testing.T, baseURL string) *App {
	t.Helper()
	cfg := &config.Config{
		Scheduler: config.SchedulerConfig{Interval: time.Hour},
		Source: config.SourceConfig{
			BaseURL:        baseURL,
			Timezone:       "America/Chicago",
			RequestTimeout: time.Second,
		},
		Alerting: config.AlertingConfig{
			Enabled:        true,
			Mode:           config.ModePerHour,
			ThresholdCents: 5,
			Channels:       []string{"telegram"},
			Telegram:       config.TelegramConfig{BotToken: "token", ChatID: "42"},
		},
	}
	return NewApp(cfg, zerolog.Nop())
}

func TestNewEvaluatorFollowsMode(t *testing.T) {
	a := testApp(t, "http://example")
	_, ok := a.newEvaluator().(*tracker.Tracker)
	assert.True(t, ok)

	a.Config.Alerting.Mode = config.ModeSeries
	_, ok = a.newEvaluator().(*tracker.Series)
	assert.True(t, ok)
}

func TestNewNotifier(t *testing.T) {
	a := testApp(t, "http://example")
	notifier := a.newNotifier()
	require.NotNil(t, notifier)
	assert.Equal(t, "telegram", notifier.Name())

	a.Config.Alerting.Channels = []string{"email", "telegram"}
	a.Config.Alerting.Email = config.EmailConfig{Host: "smtp", Port: 587, Username: "u", Password: "p", To: []string{"u"}}
	assert.Equal(t, "email,telegram", a.newNotifier().Name())

	a.Config.Alerting.Enabled = false
	assert.Nil(t, a.newNotifier())
}

func TestExportWritesTodaysTable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.URL.Query().Get("date"))
		_, _ = w.Write([]byte(pricePage))
	}))
	defer server.Close()

	dir := t.TempDir()
	csvPath := filepath.Join(dir, "out", "prices.csv")
	pngPath := filepath.Join(dir, "out", "prices.png")

	a := testApp(t, server.URL)
	require.NoError(t, a.Export(context.Background(), ExportOptions{CSVPath: csvPath, PNGPath: pngPath}))

	file, err := os.Open(csvPath)
	require.NoError(t, err)
	defer file.Close()
	rows, err := csv.NewReader(file).ReadAll()
	require.NoError(t, err)

	require.Len(t, rows, 4)
	assert.Equal(t, []string{"hour_ending", "price_display", "price_cents", "threshold_cents", "at_or_above"}, rows[0])
	assert.Equal(t, []string{"1:00 PM", "5.2¢", "5.2", "5", "true"}, rows[1])
	assert.Equal(t, "2:00 PM", rows[2][0])
	assert.Equal(t, "false", rows[3][4])

	info, err := os.Stat(pngPath)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
}

func TestExportRequiresOutput(t *testing.T) {
	a := testApp(t, "http://example")
	assert.Error(t, a.Export(context.Background(), ExportOptions{}))
}

func TestWriteReadingsPNGNeedsTwoPoints(t *testing.T) {
	path := filepath.Join(t.TempDir(), "one.png")
	readings := []pricing.Reading{pricing.MustReading("1:00 PM", "2.0¢", 2)}
	err := writeReadingsPNG(path, readings, pricing.ThresholdConfig{ThresholdCents: 5}, chartSize{})
	assert.Error(t, err)
}

func TestWriteAlertTable(t *testing.T) {
	var buf bytes.Buffer
	writeAlertTable(&buf, nil)
	assert.Equal(t, "no alerts found\n", buf.String())

	failure := "smtp: 535\nauth failed"
	buf.Reset()
	writeAlertTable(&buf, []storage.AlertRecord{{
		Kind:           string(alerting.KindPriceThreshold),
		HourLabel:      "1:00 PM",
		RawDisplay:     "5.2¢",
		ThresholdCents: decimal.NewFromInt(5),
		Channels:       []string{"email"},
		Error:          &failure,
		CreatedAt:      time.Date(2026, 10, 19, 18, 5, 0, 0, time.UTC),
	}})
	out := buf.String()
	assert.Contains(t, out, "2026-10-19T18:05:00Z")
	assert.Contains(t, out, "price_threshold")
	assert.Contains(t, out, "5.0")
	assert.Contains(t, out, "smtp: 535 auth failed")
}

func TestPrintSummary(t *testing.T) {
	var buf bytes.Buffer
	printSummary(&buf, service.CycleSummary{CycleID: "abc", FetchFailed: true})
	assert.Contains(t, buf.String(), "status:     fetch failed")

	buf.Reset()
	printSummary(&buf, service.CycleSummary{CycleID: "abc", Readings: 3, Alerts: 1, Dispatched: 1})
	assert.Contains(t, buf.String(), "alerts:     1 (dispatched 1, failed 0)")
}

func TestSimulateAlertRejectsInvalidPrice(t *testing.T) {
	a := testApp(t, "http://example")
	err := a.SimulateAlert(context.Background(), &bytes.Buffer{}, SimulateOptions{Hour: "1:00 PM", Price: -1})
	assert.ErrorIs(t, err, pricing.ErrInvalidReading)
}

func TestSimulateAlertSendsThroughTelegram(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	a := testApp(t, "http://example")
	a.Config.Alerting.Telegram.APIBase = server.URL

	var out bytes.Buffer
	require.NoError(t, a.SimulateAlert(context.Background(), &out, SimulateOptions{Hour: "1:00 PM", Price: 6.5}))
	assert.Equal(t, int32(1), hits.Load())
	assert.Contains(t, out.String(), "dispatched 1")

	out.Reset()
	require.NoError(t, a.SimulateAlert(context.Background(), &out, SimulateOptions{Hour: "1:00 PM", Price: 1.2}))
	assert.Equal(t, int32(1), hits.Load())
	assert.Contains(t, out.String(), "below the 5.0¢ threshold")
}
