package yahoo

import "errors"

// ErrNoFundamentals means the provider has no fundamentals for the symbol
// (funds, SPACs, fresh listings). It is not a transport failure.
var ErrNoFundamentals = errors.New("no fundamentals available")

// ErrNoHistory means Yahoo has no chart for the symbol (test issues,
// delisted tickers).
var ErrNoHistory = errors.New("no price history available")

var errUnauthorized = errors.New("yahoo rejected the crumb")

const summaryModules = "summaryDetail,defaultKeyStatistics,financialData"

// quoteSummary paths of the ratios the screener reads. Each module nests the
// numeric value under "raw".
var (
	pathTrailingPE  = []string{"summaryDetail.trailingPE", "defaultKeyStatistics.trailingPE"}
	pathPriceBook   = []string{"defaultKeyStatistics.priceToBook", "summaryDetail.priceToBook"}
	pathROE         = []string{"financialData.returnOnEquity"}
	pathDebtEquity  = []string{"financialData.debtToEquity"}
	pathMargin      = []string{"financialData.profitMargins", "defaultKeyStatistics.profitMargins"}
	pathEPSGrowth   = []string{"defaultKeyStatistics.earningsQuarterlyGrowth", "financialData.earningsGrowth"}
	pathSalesGrowth = []string{"financialData.revenueGrowth"}
)
