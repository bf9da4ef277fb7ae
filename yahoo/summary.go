package yahoo

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"sync"
	"time"

	"stock_screener/config"
	"stock_screener/metrics"
	"stock_screener/middleware"
	"stock_screener/models"
	"stock_screener/utils"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker"
	"github.com/tidwall/gjson"
)

// SummaryClient reads valuation, profitability and growth ratios from the
// quoteSummary API. Yahoo requires a session cookie plus a matching crumb.
type SummaryClient struct {
	http      *resty.Client
	cookieURL string
	breaker   *gobreaker.CircuitBreaker
	retry     func() backoff.BackOff

	mu    sync.Mutex
	crumb string
}

func NewSummaryClient(cfg *config.Config) *SummaryClient {
	jar, _ := cookiejar.New(nil)

	client := resty.New()
	client.SetBaseURL(cfg.Yahoo.BaseURL)
	client.SetTimeout(cfg.Yahoo.Timeout)
	client.SetCookieJar(jar)
	client.SetHeader("User-Agent", cfg.Yahoo.UserAgent)
	client.SetHeader("Accept", "application/json")

	return &SummaryClient{
		http:      client,
		cookieURL: cfg.Yahoo.CookieURL,
		breaker:   middleware.NewBreaker("yahoo-summary"),
		retry: func() backoff.BackOff {
			return utils.NewExponentialBackoff(cfg.Retry.InitialInterval, cfg.Retry.MaxInterval, cfg.Retry.MaxElapsedTime)
		},
	}
}

// Fundamentals returns ErrNoFundamentals together with an empty value when
// Yahoo knows nothing about the symbol.
func (c *SummaryClient) Fundamentals(ctx context.Context, symbol string) (models.Fundamentals, error) {
	var (
		body     []byte
		notFound bool
	)
	began := time.Now()
	err := middleware.WithCircuitBreaker(c.breaker, func() error {
		var err error
		body, err = c.fetchSummary(ctx, symbol)
		if errors.Is(err, errUnauthorized) {
			c.resetCrumb()
			body, err = c.fetchSummary(ctx, symbol)
		}
		if errors.Is(err, ErrNoFundamentals) {
			notFound = true
			return nil
		}
		return err
	})
	metrics.ObserveProviderRequest("summary", time.Since(began), err)

	switch {
	case err != nil:
		return models.Fundamentals{}, fmt.Errorf("fundamentals for %s: %w", symbol, err)
	case notFound:
		return models.Fundamentals{}, ErrNoFundamentals
	}
	return parseSummary(body), nil
}

func (c *SummaryClient) fetchSummary(ctx context.Context, symbol string) ([]byte, error) {
	crumb, err := c.sessionCrumb(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("symbol", symbol).
		SetQueryParams(map[string]string{
			"modules": summaryModules,
			"crumb":   crumb,
		}).
		Get("/v10/finance/quoteSummary/{symbol}")
	if err != nil {
		return nil, err
	}

	switch resp.StatusCode() {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, errUnauthorized
	case http.StatusNotFound:
		return nil, ErrNoFundamentals
	default:
		return nil, fmt.Errorf("quoteSummary returned status %s", resp.Status())
	}

	body := resp.Body()
	if e := gjson.GetBytes(body, "quoteSummary.error"); e.IsObject() {
		if isNotFound(e) {
			return nil, ErrNoFundamentals
		}
		return nil, fmt.Errorf("quoteSummary error %q: %s", e.Get("code").String(), e.Get("description").String())
	}
	if !gjson.GetBytes(body, "quoteSummary.result.0").Exists() {
		return nil, ErrNoFundamentals
	}
	return body, nil
}

// isNotFound reports whether a quoteSummary error means "no data for this
// symbol". Funds answer with code "Not Found" and a description that only
// says "No fundamentals data found".
func isNotFound(e gjson.Result) bool {
	if strings.EqualFold(strings.TrimSpace(e.Get("code").String()), "not found") {
		return true
	}
	desc := strings.ToLower(e.Get("description").String())
	return strings.Contains(desc, "not found") || strings.Contains(desc, "no fundamentals data")
}

func (c *SummaryClient) sessionCrumb(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.crumb != "" {
		return c.crumb, nil
	}

	err := utils.Retry(ctx, c.retry(), "yahoo crumb", func() error {
		// The cookie endpoint answers 404 but still sets the session cookie.
		if _, err := c.http.R().SetContext(ctx).Get(c.cookieURL); err != nil {
			return fmt.Errorf("failed to get cookie: %w", err)
		}

		resp, err := c.http.R().SetContext(ctx).
			SetHeader("Accept", "text/plain").
			Get("/v1/test/getcrumb")
		if err != nil {
			return fmt.Errorf("failed to get crumb: %w", err)
		}
		crumb := strings.TrimSpace(resp.String())
		if resp.StatusCode() == http.StatusTooManyRequests || resp.StatusCode() >= http.StatusInternalServerError {
			return fmt.Errorf("crumb endpoint returned status %s", resp.Status())
		}
		if resp.StatusCode() != http.StatusOK || crumb == "" || strings.Contains(crumb, "<") {
			return backoff.Permanent(fmt.Errorf("invalid crumb received (status %s)", resp.Status()))
		}
		c.crumb = crumb
		return nil
	})
	if err != nil {
		return "", err
	}
	return c.crumb, nil
}

func (c *SummaryClient) resetCrumb() {
	c.mu.Lock()
	c.crumb = ""
	c.mu.Unlock()
}

func parseSummary(body []byte) models.Fundamentals {
	result := gjson.GetBytes(body, "quoteSummary.result.0")
	return models.Fundamentals{
		TrailingPE:     rawValue(result, pathTrailingPE),
		PriceToBook:    rawValue(result, pathPriceBook),
		ReturnOnEquity: rawValue(result, pathROE),
		DebtToEquity:   rawValue(result, pathDebtEquity),
		ProfitMargin:   rawValue(result, pathMargin),
		EarningsGrowth: rawValue(result, pathEPSGrowth),
		RevenueGrowth:  rawValue(result, pathSalesGrowth),
	}
}

// rawValue returns the first numeric "raw" value found under paths. Yahoo
// reports missing ratios as {} or with a non-numeric raw ("Infinity").
func rawValue(result gjson.Result, paths []string) *float64 {
	for _, p := range paths {
		v := result.Get(p + ".raw")
		if v.Type == gjson.Number {
			return models.Float(v.Float())
		}
	}
	return nil
}
