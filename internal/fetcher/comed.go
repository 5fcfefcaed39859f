package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"

	"github.com/SashOkT/ElectricityPricingProject/internal/pricing"
)

const (
	defaultBaseURL     = "https://hourlypricing.comed.com/pricing-table-today/"
	defaultHourHeader  = "Price for the Hour Ending"
	defaultPriceHeader = "Hourly Price"
	maxPageBytes       = 4 << 20
)

// ComEdOptions parameterise the hourly pricing page fetcher.
type ComEdOptions struct {
	BaseURL     string
	Location    *time.Location
	Timeout     time.Duration
	UserAgent   string
	HourHeader  string
	PriceHeader string
	Now         func() time.Time
}

// ComEd scrapes the day's hourly price table.
type ComEd struct {
	opts   ComEdOptions
	logger zerolog.Logger
	client *http.Client
}

// NewComEd constructs the page fetcher.
func NewComEd(opts ComEdOptions, logger zerolog.Logger) *ComEd {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if opts.BaseURL == "" {
		opts.BaseURL = defaultBaseURL
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.HourHeader == "" {
		opts.HourHeader = defaultHourHeader
	}
	if opts.PriceHeader == "" {
		opts.PriceHeader = defaultPriceHeader
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &ComEd{
		opts:   opts,
		logger: logger.With().Str("component", "comed_fetcher").Logger(),
		client: &http.Client{Timeout: timeout},
	}
}

// SourceURL returns the page URL for the day containing now, in the source timezone.
func (c *ComEd) SourceURL(now time.Time) string {
	day := now.In(c.opts.Location)
	sep := "?"
	if strings.Contains(c.opts.BaseURL, "?") {
		sep = "&"
	}
	return c.opts.BaseURL + sep + "date=" + day.Format("01/02/2006")
}

// FetchReadings downloads today's table. A page without the table yields an
// empty batch with TableFound=false and no error.
func (c *ComEd) FetchReadings(ctx context.Context) (Batch, error) {
	url := c.SourceURL(c.opts.Now())
	batch := Batch{SourceURL: url}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return batch, &FetchError{Op: "build request", URL: url, Err: err}
	}
	req.Header.Set("Accept", "text/html")
	if ua := strings.TrimSpace(c.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", "pricewatch/1.0")
	}

	c.logger.Debug().Str("url", url).Msg("fetching price table")
	resp, err := c.client.Do(req)
	if err != nil {
		return batch, &FetchError{Op: "request", URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxPageBytes))
		return batch, &FetchError{Op: "request", URL: url, StatusCode: resp.StatusCode}
	}

	readings, found, dropped, err := ExtractReadings(io.LimitReader(resp.Body, maxPageBytes), c.opts.HourHeader, c.opts.PriceHeader)
	if err != nil {
		return batch, &FetchError{Op: "parse", URL: url, Err: err}
	}
	if dropped > 0 {
		c.logger.Debug().Int("dropped", dropped).Msg("skipped rows without a usable price")
	}

	batch.Readings = readings
	batch.TableFound = found
	return batch, nil
}

// ExtractReadings parses an HTML page and returns the rows of the first table
// whose header row names both the hour and the price columns. Rows with
// missing cells or unparsable prices are skipped and counted in dropped.
func ExtractReadings(r io.Reader, hourHeader, priceHeader string) (readings []pricing.Reading, found bool, dropped int, err error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, false, 0, fmt.Errorf("parse html: %w", err)
	}

	readings = make([]pricing.Reading, 0, 24)
	doc.Find("table").EachWithBreak(func(_ int, table *goquery.Selection) bool {
		rows := table.Find("tr")
		if rows.Length() == 0 {
			return true
		}

		hourIdx, priceIdx := locateColumns(rows.First(), hourHeader, priceHeader)
		if hourIdx < 0 || priceIdx < 0 {
			return true
		}
		found = true

		rows.Slice(1, goquery.ToEnd).Each(func(_ int, row *goquery.Selection) {
			cells := row.Find("td")
			if cells.Length() <= max(hourIdx, priceIdx) {
				return
			}
			hour := cleanText(cells.Eq(hourIdx).Text())
			price := cleanText(cells.Eq(priceIdx).Text())
			if hour == "" || price == "" {
				dropped++
				return
			}
			reading, parseErr := pricing.ParseReading(hour, price)
			if parseErr != nil {
				dropped++
				return
			}
			readings = append(readings, reading)
		})
		return false
	})

	return readings, found, dropped, nil
}

func locateColumns(header *goquery.Selection, hourHeader, priceHeader string) (int, int) {
	cells := header.Find("th")
	if cells.Length() == 0 {
		cells = header.Find("td")
	}

	hourIdx, priceIdx := -1, -1
	cells.Each(func(i int, cell *goquery.Selection) {
		text := strings.ToLower(cleanText(cell.Text()))
		if hourIdx < 0 && strings.Contains(text, strings.ToLower(hourHeader)) {
			hourIdx = i
			return
		}
		if priceIdx < 0 && strings.Contains(text, strings.ToLower(priceHeader)) &&
			strings.Contains(text, "¢") && strings.Contains(text, "kwh") {
			priceIdx = i
		}
	})
	return hourIdx, priceIdx
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

var _ ReadingFetcher = (*ComEd)(nil)
