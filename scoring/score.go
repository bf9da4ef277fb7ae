package scoring

import "stock_screener/models"

const (
	MinScore = 4
	MaxScore = 11

	rsiLow         = 40.0
	rsiHigh        = 70.0
	cheapPE        = 15.0
	fairPE         = 25.0
	maxPB          = 5.0
	minROE         = 0.10
	minMargin      = 0.05
	maxDebtEquity  = 2.0
	minEPSGrowth   = 0.10
	minSalesGrowth = 0.10
)

// Score sums eleven independent checks. An unavailable input simply earns
// nothing for its check.
func Score(ind models.Indicators, f models.Fundamentals) int {
	score := 0

	if ind.SMA50 != nil && ind.Last > *ind.SMA50 {
		score++
	}
	if ind.SMA200 != nil && ind.Last > *ind.SMA200 {
		score++
	}
	if ind.RSI != nil && *ind.RSI > rsiLow && *ind.RSI < rsiHigh {
		score++
	}

	if f.TrailingPE != nil {
		switch pe := *f.TrailingPE; {
		case pe < cheapPE:
			score += 2
		case pe < fairPE:
			score++
		}
	}
	if below(f.PriceToBook, maxPB) {
		score++
	}
	if above(f.ReturnOnEquity, minROE) {
		score++
	}
	if above(f.ProfitMargin, minMargin) {
		score++
	}
	if below(f.DebtToEquity, maxDebtEquity) {
		score++
	}
	if above(f.EarningsGrowth, minEPSGrowth) {
		score++
	}
	if above(f.RevenueGrowth, minSalesGrowth) {
		score++
	}

	return score
}

func below(v *float64, limit float64) bool { return v != nil && *v < limit }
func above(v *float64, limit float64) bool { return v != nil && *v > limit }
