package fetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

const priceTablePage = `<html><body>
<form><input type="text" value="10/19/2026"><input type="submit"></form>
<table class="prices">
  <tr><th>Price for the Hour Ending</th><th>Day-Ahead Price (¢/kWh)</th><th>Hourly Price (¢/kWh)</th></tr>
  <tr><td>1:00 AM</td><td>2.0¢</td><td> 2.1¢ </td></tr>
  <tr><td>2:00 AM</td><td>2.0¢</td><td>n/a</td></tr>
  <tr><td>3:00 AM</td><td>2.0¢</td><td>5.0¢</td></tr>
  <tr><td>4:00 AM</td><td>2.0¢</td></tr>
  <tr><td></td><td>2.0¢</td><td>3.0¢</td></tr>
</table>
</body></html>`

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}

func TestExtractReadings(t *testing.T) {
	readings, found, dropped, err := ExtractReadings(strings.NewReader(priceTablePage), defaultHourHeader, defaultPriceHeader)
	if err != nil {
		t.Fatalf("extract should succeed: %v", err)
	}
	if !found {
		t.Fatal("table should be found")
	}
	if len(readings) != 2 {
		t.Fatalf("expected 2 readings, got %d: %#v", len(readings), readings)
	}
	if readings[0].HourLabel != "1:00 AM" || readings[0].RawDisplay != "2.1¢" || readings[0].NumericPrice != 2.1 {
		t.Fatalf("unexpected first reading: %#v", readings[0])
	}
	if readings[1].HourLabel != "3:00 AM" || readings[1].NumericPrice != 5.0 {
		t.Fatalf("unexpected second reading: %#v", readings[1])
	}
	if dropped != 2 {
		t.Fatalf("expected 2 dropped rows, got %d", dropped)
	}
}

func TestExtractReadingsNoTable(t *testing.T) {
	page := `<html><body><table><tr><th>Something else</th></tr><tr><td>1</td></tr></table></body></html>`
	readings, found, _, err := ExtractReadings(strings.NewReader(page), defaultHourHeader, defaultPriceHeader)
	if err != nil {
		t.Fatalf("missing table is not an error: %v", err)
	}
	if found || len(readings) != 0 {
		t.Fatalf("expected no table, got found=%v readings=%d", found, len(readings))
	}
}

func TestSourceURLUsesSourceTimezone(t *testing.T) {
	loc, err := time.LoadLocation("America/Chicago")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	c := NewComEd(ComEdOptions{Location: loc}, noopLogger())

	// 03:30 UTC on the 20th is still the 19th in Chicago.
	now := time.Date(2026, 10, 20, 3, 30, 0, 0, time.UTC)
	want := "https://hourlypricing.comed.com/pricing-table-today/?date=10/19/2026"
	if got := c.SourceURL(now); got != want {
		t.Fatalf("want %s, got %s", want, got)
	}
}

func TestFetchReadingsSuccess(t *testing.T) {
	var gotDate, gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotDate = r.URL.Query().Get("date")
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(priceTablePage))
	}))
	defer srv.Close()

	c := NewComEd(ComEdOptions{
		BaseURL:   srv.URL + "/pricing-table-today/",
		Location:  time.UTC,
		Timeout:   time.Second,
		UserAgent: "test",
		Now:       func() time.Time { return time.Date(2026, 3, 7, 12, 0, 0, 0, time.UTC) },
	}, noopLogger())

	batch, err := c.FetchReadings(context.Background())
	if err != nil {
		t.Fatalf("fetch should succeed: %v", err)
	}
	if gotDate != "03/07/2026" {
		t.Fatalf("date query should be zero padded, got %q", gotDate)
	}
	if gotUA != "test" {
		t.Fatalf("user agent not forwarded: %q", gotUA)
	}
	if !batch.TableFound || len(batch.Readings) != 2 {
		t.Fatalf("unexpected batch: %#v", batch)
	}
	if !strings.HasSuffix(batch.SourceURL, "?date=03/07/2026") {
		t.Fatalf("source url should carry the date: %s", batch.SourceURL)
	}
}

func TestFetchReadingsHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewComEd(ComEdOptions{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())
	batch, err := c.FetchReadings(context.Background())
	if err == nil {
		t.Fatal("HTTP 502 should fail")
	}
	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) || fetchErr.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected FetchError with status, got %v", err)
	}
	if batch.SourceURL == "" {
		t.Fatal("failed batch should still report its url")
	}
}

func TestFetchReadingsMissingTable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html><body>maintenance</body></html>"))
	}))
	defer srv.Close()

	c := NewComEd(ComEdOptions{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())
	batch, err := c.FetchReadings(context.Background())
	if err != nil {
		t.Fatalf("missing table should not error: %v", err)
	}
	if batch.TableFound || len(batch.Readings) != 0 {
		t.Fatalf("unexpected batch: %#v", batch)
	}
}

func TestFetchReadingsTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := NewComEd(ComEdOptions{BaseURL: url, Timeout: time.Second}, noopLogger())
	if _, err := c.FetchReadings(context.Background()); err == nil {
		t.Fatal("closed server should fail")
	}
}
