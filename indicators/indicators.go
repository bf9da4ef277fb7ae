// Package indicators derives the technical inputs of the score from a
// series of daily closes, oldest first.
package indicators

import "stock_screener/models"

const (
	ShortWindow = 50
	LongWindow  = 200
	RSIPeriod   = 14
)

// SMA is the mean of the last period closes.
func SMA(prices []float64, period int) (float64, bool) {
	if period <= 0 || len(prices) < period {
		return 0, false
	}
	sum := 0.0
	for _, p := range prices[len(prices)-period:] {
		sum += p
	}
	return sum / float64(period), true
}

// RSI uses simple averages of the gains and losses over the last period
// changes (not Wilder smoothing). A window with no losses reads 100; a
// flat window has no defined value.
func RSI(prices []float64, period int) (float64, bool) {
	if period <= 0 || len(prices) < period+1 {
		return 0, false
	}

	var gain, loss float64
	window := prices[len(prices)-period-1:]
	for i := 1; i < len(window); i++ {
		change := window[i] - window[i-1]
		if change > 0 {
			gain += change
		} else {
			loss -= change
		}
	}
	gain /= float64(period)
	loss /= float64(period)

	switch {
	case loss == 0 && gain == 0:
		return 0, false
	case loss == 0:
		return 100, true
	}
	rs := gain / loss
	return 100 - 100/(1+rs), true
}

// Compute returns the last close with SMA50, SMA200 and RSI-14 where the
// series is long enough for each.
func Compute(prices []float64) models.Indicators {
	var ind models.Indicators
	if len(prices) == 0 {
		return ind
	}
	ind.Last = prices[len(prices)-1]
	if v, ok := SMA(prices, ShortWindow); ok {
		ind.SMA50 = models.Float(v)
	}
	if v, ok := SMA(prices, LongWindow); ok {
		ind.SMA200 = models.Float(v)
	}
	if v, ok := RSI(prices, RSIPeriod); ok {
		ind.RSI = models.Float(v)
	}
	return ind
}
