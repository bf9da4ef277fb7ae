package nasdaq

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"stock_screener/config"
	"stock_screener/parser"
	"stock_screener/utils"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-resty/resty/v2"
)

// Client downloads the exchange symbol directory.
type Client struct {
	http  *resty.Client
	url   string
	retry func() backoff.BackOff
}

func NewClient(cfg *config.Config) *Client {
	client := resty.New()
	client.SetTimeout(30 * time.Second)
	client.SetHeader("User-Agent", cfg.Yahoo.UserAgent)

	return &Client{
		http: client,
		url:  cfg.Screener.ListingURL,
		retry: func() backoff.BackOff {
			return utils.NewExponentialBackoff(cfg.Retry.InitialInterval, cfg.Retry.MaxInterval, cfg.Retry.MaxElapsedTime)
		},
	}
}

// FetchSymbols returns the filtered universe in listing order.
func (c *Client) FetchSymbols(ctx context.Context) ([]string, error) {
	var body []byte
	err := utils.Retry(ctx, c.retry(), "fetch listing", func() error {
		resp, err := c.http.R().SetContext(ctx).Get(c.url)
		if err != nil {
			return fmt.Errorf("failed to fetch listing: %w", err)
		}
		if resp.StatusCode() != http.StatusOK {
			err := fmt.Errorf("listing returned status %s", resp.Status())
			if resp.StatusCode() < http.StatusInternalServerError && resp.StatusCode() != http.StatusTooManyRequests {
				return backoff.Permanent(err)
			}
			return err
		}
		body = resp.Body()
		return nil
	})
	if err != nil {
		return nil, err
	}

	raw, err := parser.ParseListing(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse listing: %w", err)
	}
	symbols := parser.FilterSymbols(raw)

	utils.Logger.Infow("Listing loaded",
		"url", c.url,
		"listed", len(raw),
		"eligible", len(symbols),
	)
	return symbols, nil
}
