package screener

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"stock_screener/config"
	"stock_screener/indicators"
	"stock_screener/metrics"
	"stock_screener/models"
	"stock_screener/scoring"
	"stock_screener/utils"
	"stock_screener/yahoo"

	"golang.org/x/time/rate"
)

// PriceSource returns daily closes, oldest first, keyed by symbol.
type PriceSource interface {
	Closes(ctx context.Context, symbols []string) (map[string][]float64, error)
}

// FundamentalsSource returns the ratios for one symbol. It may return
// yahoo.ErrNoFundamentals for symbols without fundamentals.
type FundamentalsSource interface {
	Fundamentals(ctx context.Context, symbol string) (models.Fundamentals, error)
}

type Options struct {
	BatchSize     int
	BatchInterval time.Duration
	MinPoints     int
	MinScore      int
	TopN          int
}

func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		BatchSize:     cfg.Screener.BatchSize,
		BatchInterval: cfg.Screener.BatchInterval,
		MinPoints:     cfg.Screener.MinPoints,
		MinScore:      cfg.Screener.MinScore,
		TopN:          cfg.Screener.TopN,
	}
}

// Progress is reported after every batch, whether it succeeded or not.
type Progress struct {
	Done          int
	Total         int
	FailedBatches int
}

type Result struct {
	Rows  []models.ScoredSymbol
	Stats models.RunStats
}

type Screener struct {
	prices       PriceSource
	fundamentals FundamentalsSource
	opts         Options
}

func New(prices PriceSource, fundamentals FundamentalsSource, opts Options) *Screener {
	return &Screener{prices: prices, fundamentals: fundamentals, opts: opts}
}

// Run scores symbols batch by batch and returns the ranked survivors. A
// failed batch is logged and skipped; only context cancellation aborts.
func (s *Screener) Run(ctx context.Context, symbols []string, onProgress func(Progress)) (Result, error) {
	started := time.Now()
	stats := models.RunStats{Symbols: len(symbols)}

	limit := rate.Inf
	if s.opts.BatchInterval > 0 {
		limit = rate.Every(s.opts.BatchInterval)
	}
	limiter := rate.NewLimiter(limit, 1)

	var kept []models.ScoredSymbol
	done := 0
	for _, batch := range Batches(symbols, s.opts.BatchSize) {
		if err := limiter.Wait(ctx); err != nil {
			return Result{}, err
		}
		stats.Batches++

		rows, scored, skipped, err := s.scoreBatch(ctx, batch)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return Result{}, ctxErr
			}
			utils.Error(err, "Batch failed, skipping",
				"batch", stats.Batches,
				"symbols", batch,
			)
			stats.FailedBatches++
			metrics.IncrementBatchFailures()
		} else {
			kept = append(kept, rows...)
			stats.Scored += scored
			stats.Skipped += skipped
		}

		done = min(done+len(batch), len(symbols))
		metrics.IncrementProcessed(len(batch))
		if onProgress != nil {
			onProgress(Progress{Done: done, Total: len(symbols), FailedBatches: stats.FailedBatches})
		}
	}

	ranked := Rank(kept, s.opts.TopN)
	stats.Kept = len(ranked)
	stats.Duration = time.Since(started)

	utils.Logger.Infow("Screen finished",
		"symbols", stats.Symbols,
		"batches", stats.Batches,
		"failed_batches", stats.FailedBatches,
		"scored", stats.Scored,
		"qualified", len(kept),
		"kept", stats.Kept,
		"duration", stats.Duration,
	)
	return Result{Rows: ranked, Stats: stats}, nil
}

// scoreBatch returns the qualifying rows of one batch. Rows are only
// returned when the whole batch completes.
func (s *Screener) scoreBatch(ctx context.Context, batch []string) ([]models.ScoredSymbol, int, int, error) {
	closes, err := s.prices.Closes(ctx, batch)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("fetch closes: %w", err)
	}

	var (
		rows    []models.ScoredSymbol
		scored  int
		skipped int
	)
	for _, symbol := range batch {
		prices := closes[symbol]
		if len(prices) < s.opts.MinPoints {
			skipped++
			continue
		}
		ind := indicators.Compute(prices)

		f, err := s.fundamentals.Fundamentals(ctx, symbol)
		if err != nil && !errors.Is(err, yahoo.ErrNoFundamentals) {
			return nil, 0, 0, err
		}

		score := scoring.Score(ind, f)
		scored++
		metrics.IncrementScored()
		utils.Logger.Debugw("Symbol scored",
			"symbol", symbol,
			"points", len(prices),
			"score", score,
		)
		if score >= s.opts.MinScore {
			rows = append(rows, models.NewScoredSymbol(symbol, ind, f, score))
		}
	}
	return rows, scored, skipped, nil
}

// Batches splits symbols into consecutive chunks of at most size.
func Batches(symbols []string, size int) [][]string {
	if size <= 0 {
		size = 1
	}
	out := make([][]string, 0, (len(symbols)+size-1)/size)
	for i := 0; i < len(symbols); i += size {
		out = append(out, symbols[i:min(i+size, len(symbols))])
	}
	return out
}

// Rank orders rows by score, highest first, keeping discovery order among
// equal scores, and truncates to limit.
func Rank(rows []models.ScoredSymbol, limit int) []models.ScoredSymbol {
	ranked := make([]models.ScoredSymbol, len(rows))
	copy(ranked, rows)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	if limit >= 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}
