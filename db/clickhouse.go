package db

import (
	"context"
	"fmt"
	"time"

	"stock_screener/config"
	"stock_screener/middleware"
	"stock_screener/models"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/sony/gobreaker"
)

const createTableSQL = `
CREATE TABLE IF NOT EXISTS screen_results (
    run_id String,
    run_at DateTime,
    rank UInt16,
    symbol String,
    price Float64,
    pe Nullable(Float64),
    pb Nullable(Float64),
    roe Nullable(Float64),
    rsi Nullable(Float64),
    profit_margin Nullable(Float64),
    eps_growth Nullable(Float64),
    revenue_growth Nullable(Float64),
    score UInt8
) ENGINE = MergeTree()
ORDER BY (run_at, rank)
`

// ResultRow is one archived row of a run.
type ResultRow struct {
	RunID         string    `ch:"run_id"`
	RunAt         time.Time `ch:"run_at"`
	Rank          uint16    `ch:"rank"`
	Symbol        string    `ch:"symbol"`
	Price         float64   `ch:"price"`
	PE            *float64  `ch:"pe"`
	PB            *float64  `ch:"pb"`
	ROE           *float64  `ch:"roe"`
	RSI           *float64  `ch:"rsi"`
	ProfitMargin  *float64  `ch:"profit_margin"`
	EPSGrowth     *float64  `ch:"eps_growth"`
	RevenueGrowth *float64  `ch:"revenue_growth"`
	Score         uint8     `ch:"score"`
}

// ClickHouseDB archives ranked results of each run.
type ClickHouseDB struct {
	conn    driver.Conn
	timeout time.Duration
	breaker *gobreaker.CircuitBreaker
}

func NewClickHouseDB(ctx context.Context, cfg *config.Config) (*ClickHouseDB, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", cfg.ClickHouse.Host, cfg.ClickHouse.Port)},
		Auth: clickhouse.Auth{
			Database: cfg.ClickHouse.Database,
			Username: cfg.ClickHouse.User,
			Password: cfg.ClickHouse.Password,
		},
		Protocol:    clickhouse.Native,
		Debug:       cfg.ClickHouse.Debug,
		DialTimeout: cfg.ClickHouse.DialTimeout,
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	db := &ClickHouseDB{
		conn:    conn,
		timeout: cfg.ClickHouse.QueryTimeout,
		breaker: middleware.NewBreaker("clickhouse"),
	}
	if err := db.createTable(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create screen_results: %w", err)
	}
	return db, nil
}

func (db *ClickHouseDB) createTable(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, db.timeout)
	defer cancel()
	return db.conn.Exec(ctx, createTableSQL)
}

// InsertResults appends one run's ranked rows.
func (db *ClickHouseDB) InsertResults(ctx context.Context, runID string, runAt time.Time, rows []models.ScoredSymbol) error {
	if len(rows) == 0 {
		return nil
	}
	return middleware.WithCircuitBreaker(db.breaker, func() error {
		ctx, cancel := context.WithTimeout(ctx, db.timeout)
		defer cancel()

		batch, err := db.conn.PrepareBatch(ctx, "INSERT INTO screen_results")
		if err != nil {
			return err
		}
		for _, row := range ToResultRows(runID, runAt, rows) {
			if err := batch.AppendStruct(&row); err != nil {
				return err
			}
		}
		return batch.Send()
	})
}

// Ping backs the health check.
func (db *ClickHouseDB) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return db.conn.Ping(ctx)
}

func (db *ClickHouseDB) Close() error {
	return db.conn.Close()
}

func ToResultRows(runID string, runAt time.Time, rows []models.ScoredSymbol) []ResultRow {
	out := make([]ResultRow, 0, len(rows))
	for i, r := range rows {
		out = append(out, ResultRow{
			RunID:         runID,
			RunAt:         runAt.UTC().Truncate(time.Second),
			Rank:          uint16(i + 1),
			Symbol:        r.Symbol,
			Price:         r.Price,
			PE:            r.PE,
			PB:            r.PB,
			ROE:           r.ROE,
			RSI:           r.RSI,
			ProfitMargin:  r.ProfitMargin,
			EPSGrowth:     r.EPSGrowth,
			RevenueGrowth: r.RevenueGrowth,
			Score:         uint8(r.Score),
		})
	}
	return out
}
