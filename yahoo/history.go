package yahoo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"stock_screener/config"
	"stock_screener/metrics"
	"stock_screener/middleware"
	"stock_screener/utils"

	"github.com/go-resty/resty/v2"
	finance "github.com/piquette/finance-go"
	"github.com/piquette/finance-go/chart"
	"github.com/piquette/finance-go/datetime"
	"github.com/piquette/finance-go/form"
	"github.com/sony/gobreaker"
	"github.com/tidwall/gjson"
)

// HistoryClient fetches daily closes through the chart API.
type HistoryClient struct {
	months  int
	chart   chart.Client
	breaker *gobreaker.CircuitBreaker
	now     func() time.Time
}

func NewHistoryClient(cfg *config.Config) *HistoryClient {
	client := resty.New()
	client.SetBaseURL(cfg.Yahoo.BaseURL)
	client.SetTimeout(cfg.Yahoo.Timeout)
	client.SetHeader("User-Agent", cfg.Yahoo.UserAgent)
	client.SetHeader("Accept", "application/json")

	return &HistoryClient{
		months:  cfg.Screener.HistoryMonths,
		chart:   chart.Client{B: &chartBackend{http: client}},
		breaker: middleware.NewBreaker("yahoo-chart"),
		now:     time.Now,
	}
}

// Closes returns adjusted daily closes, oldest first, for the symbols of the
// batch. Symbols Yahoo has no chart for are left out of the map. Any other
// failure fails the whole batch.
func (h *HistoryClient) Closes(ctx context.Context, symbols []string) (map[string][]float64, error) {
	end := h.now()
	start := end.AddDate(0, -h.months, 0)

	out := make(map[string][]float64, len(symbols))
	for _, symbol := range symbols {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var (
			closes  []float64
			missing bool
		)
		began := time.Now()
		err := middleware.WithCircuitBreaker(h.breaker, func() error {
			var err error
			closes, err = h.fetchCloses(ctx, symbol, start, end)
			if errors.Is(err, ErrNoHistory) {
				missing = true
				return nil
			}
			return err
		})
		metrics.ObserveProviderRequest("chart", time.Since(began), err)
		if err != nil {
			return nil, fmt.Errorf("history for %s: %w", symbol, err)
		}
		if missing {
			utils.Logger.Debugw("No price history", "symbol", symbol)
			continue
		}
		out[symbol] = closes
	}
	return out, nil
}

func (h *HistoryClient) fetchCloses(ctx context.Context, symbol string, start, end time.Time) ([]float64, error) {
	params := &chart.Params{
		Symbol:   symbol,
		Start:    datetime.New(&start),
		End:      datetime.New(&end),
		Interval: datetime.OneDay,
	}
	params.Context = &ctx

	var closes []float64
	// The chart decoder indexes the quote arrays by timestamp and panics on
	// ragged responses.
	err := middleware.Recover(func() error {
		iter := h.chart.Get(params)
		for iter.Next() {
			bar := iter.Bar()
			price := bar.AdjClose
			if price.IsZero() {
				price = bar.Close
			}
			// Yahoo pads non-trading or halted days with empty bars.
			if v := price.InexactFloat64(); v > 0 {
				closes = append(closes, v)
			}
		}
		return iter.Err()
	})
	if err != nil {
		return nil, err
	}
	return closes, nil
}

// chartBackend serves finance-go chart requests over resty. Unlike the
// library's default backend it keeps Yahoo's "Not Found" answers apart from
// transport and server failures.
type chartBackend struct {
	http *resty.Client
}

func (b *chartBackend) Call(path string, body *form.Values, ctx *context.Context, v interface{}) error {
	req := b.http.R()
	if ctx != nil {
		req.SetContext(*ctx)
	}
	if body != nil {
		req.SetQueryParamsFromValues(body.ToValues())
	}

	resp, err := req.Get("/" + strings.TrimPrefix(path, "/"))
	if err != nil {
		return err
	}

	raw := resp.Body()
	if e := gjson.GetBytes(raw, "chart.error"); e.IsObject() && isNotFound(e) {
		return ErrNoHistory
	}
	switch {
	case resp.StatusCode() == http.StatusNotFound:
		return ErrNoHistory
	case resp.StatusCode() >= http.StatusBadRequest:
		return fmt.Errorf("chart returned status %s", resp.Status())
	}
	if e := gjson.GetBytes(raw, "chart.error"); e.IsObject() {
		return &finance.YfinError{Code: e.Get("code").String(), Description: e.Get("description").String()}
	}
	if !gjson.GetBytes(raw, "chart.result.0.indicators.quote.0").Exists() {
		return ErrNoHistory
	}
	return json.Unmarshal(raw, v)
}
