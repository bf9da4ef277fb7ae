package models

import (
	"math"

	"github.com/shopspring/decimal"
)

// Fundamentals holds the ratios read from the data provider. A nil field
// means the provider did not report the value.
type Fundamentals struct {
	TrailingPE     *float64 `json:"trailing_pe,omitempty"`
	PriceToBook    *float64 `json:"price_to_book,omitempty"`
	ReturnOnEquity *float64 `json:"return_on_equity,omitempty"`
	DebtToEquity   *float64 `json:"debt_to_equity,omitempty"`
	ProfitMargin   *float64 `json:"profit_margin,omitempty"`
	EarningsGrowth *float64 `json:"earnings_growth,omitempty"`
	RevenueGrowth  *float64 `json:"revenue_growth,omitempty"`
}

// Indicators are the technical values derived from a close series.
type Indicators struct {
	Last   float64
	SMA50  *float64
	SMA200 *float64
	RSI    *float64
}

// ScoredSymbol is one screened row. Field names on the wire match the
// files produced by earlier versions of the screener.
type ScoredSymbol struct {
	Symbol        string   `json:"symbol"`
	Price         float64  `json:"price"`
	PE            *float64 `json:"PE"`
	PB            *float64 `json:"PB"`
	ROE           *float64 `json:"ROE"`
	RSI           *float64 `json:"RSI"`
	ProfitMargin  *float64 `json:"ProfitMargin"`
	EPSGrowth     *float64 `json:"EPS_Growth"`
	RevenueGrowth *float64 `json:"RevenueGrowth"`
	Score         int      `json:"Score"`
}

// NewScoredSymbol builds a row with every value rounded to two decimals.
func NewScoredSymbol(symbol string, ind Indicators, f Fundamentals, score int) ScoredSymbol {
	return ScoredSymbol{
		Symbol:        symbol,
		Price:         Round2(ind.Last),
		PE:            roundPtr(f.TrailingPE),
		PB:            roundPtr(f.PriceToBook),
		ROE:           roundPtr(f.ReturnOnEquity),
		RSI:           roundPtr(ind.RSI),
		ProfitMargin:  roundPtr(f.ProfitMargin),
		EPSGrowth:     roundPtr(f.EarningsGrowth),
		RevenueGrowth: roundPtr(f.RevenueGrowth),
		Score:         score,
	}
}

func Round2(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

func roundPtr(v *float64) *float64 {
	if v == nil {
		return nil
	}
	r := Round2(*v)
	return &r
}

// Float returns a pointer to v, or nil when v is NaN or infinite.
func Float(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
