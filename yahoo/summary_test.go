package yahoo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"stock_screener/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const aaplSummary = `{"quoteSummary":{"result":[{
	"summaryDetail":{"trailingPE":{"raw":28.41,"fmt":"28.41"},"priceToBook":{}},
	"defaultKeyStatistics":{"priceToBook":{"raw":45.2,"fmt":"45.20"},"earningsQuarterlyGrowth":{"raw":0.108,"fmt":"10.80%"}},
	"financialData":{"returnOnEquity":{"raw":1.5,"fmt":"150%"},"debtToEquity":{"raw":151.86,"fmt":"151.86%"},
		"profitMargins":{"raw":0.243,"fmt":"24.30%"},"revenueGrowth":{"raw":"Infinity","fmt":"∞"}}
}],"error":null}}`

type fakeYahoo struct {
	crumbCalls   int32
	summaryCalls int32
	rejectFirst  bool
}

func (f *fakeYahoo) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/cookie", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "A3", Value: "session", Path: "/"})
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("/v1/test/getcrumb", func(w http.ResponseWriter, r *http.Request) {
		if _, err := r.Cookie("A3"); err != nil {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		n := atomic.AddInt32(&f.crumbCalls, 1)
		if n == 1 {
			w.Write([]byte("crumb-1"))
			return
		}
		w.Write([]byte("crumb-2"))
	})
	mux.HandleFunc("/v10/finance/quoteSummary/", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&f.summaryCalls, 1)
		if f.rejectFirst && r.URL.Query().Get("crumb") == "crumb-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch r.URL.Path {
		case "/v10/finance/quoteSummary/AAPL":
			w.Write([]byte(aaplSummary))
		case "/v10/finance/quoteSummary/QQQ":
			w.Write([]byte(`{"quoteSummary":{"result":null,"error":{"code":"Not Found","description":"No fundamentals data found for any of the summaryTypes=financialData"}}}`))
		case "/v10/finance/quoteSummary/VOO":
			w.Write([]byte(`{"quoteSummary":{"result":null,"error":{"code":"not found","description":""}}}`))
		case "/v10/finance/quoteSummary/ZVZZT":
			w.Write([]byte(`{"quoteSummary":{"result":null,"error":{"code":"Bad Request","description":"Quote not found for ticker symbol: ZVZZT"}}}`))
		case "/v10/finance/quoteSummary/LIMIT":
			w.Write([]byte(`{"quoteSummary":{"result":null,"error":{"code":"Internal Server Error","description":"Service temporarily unavailable"}}}`))
		case "/v10/finance/quoteSummary/GONE":
			w.WriteHeader(http.StatusNotFound)
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	})
	return mux
}

func newTestClient(t *testing.T, srv *httptest.Server) *SummaryClient {
	t.Helper()
	cfg := &config.Config{}
	cfg.Yahoo.BaseURL = srv.URL
	cfg.Yahoo.CookieURL = srv.URL + "/cookie"
	cfg.Yahoo.Timeout = 5 * time.Second
	cfg.Yahoo.UserAgent = "test"
	cfg.Retry.InitialInterval = time.Millisecond
	cfg.Retry.MaxInterval = 5 * time.Millisecond
	cfg.Retry.MaxElapsedTime = time.Second
	return NewSummaryClient(cfg)
}

func TestFundamentalsParsesRatios(t *testing.T) {
	fake := &fakeYahoo{}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()
	client := newTestClient(t, srv)

	f, err := client.Fundamentals(context.Background(), "AAPL")
	require.NoError(t, err)

	require.NotNil(t, f.TrailingPE)
	assert.Equal(t, 28.41, *f.TrailingPE)
	require.NotNil(t, f.PriceToBook)
	assert.Equal(t, 45.2, *f.PriceToBook, "falls back to defaultKeyStatistics when summaryDetail is empty")
	require.NotNil(t, f.ReturnOnEquity)
	assert.Equal(t, 1.5, *f.ReturnOnEquity)
	require.NotNil(t, f.DebtToEquity)
	assert.Equal(t, 151.86, *f.DebtToEquity)
	require.NotNil(t, f.ProfitMargin)
	assert.Equal(t, 0.243, *f.ProfitMargin)
	require.NotNil(t, f.EarningsGrowth)
	assert.Equal(t, 0.108, *f.EarningsGrowth)
	assert.Nil(t, f.RevenueGrowth, "non-numeric raw values are unavailable")

	_, err = client.Fundamentals(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&fake.crumbCalls), "crumb is reused across calls")
}

func TestFundamentalsNotFound(t *testing.T) {
	srv := httptest.NewServer((&fakeYahoo{}).handler())
	defer srv.Close()
	client := newTestClient(t, srv)

	for _, symbol := range []string{"QQQ", "VOO", "ZVZZT", "GONE"} {
		f, err := client.Fundamentals(context.Background(), symbol)
		assert.ErrorIs(t, err, ErrNoFundamentals, symbol)
		assert.Nil(t, f.TrailingPE)
	}
}

func TestFundamentalsRemoteError(t *testing.T) {
	srv := httptest.NewServer((&fakeYahoo{}).handler())
	defer srv.Close()
	client := newTestClient(t, srv)

	_, err := client.Fundamentals(context.Background(), "LIMIT")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoFundamentals)
	assert.Contains(t, err.Error(), "Service temporarily unavailable")
}

func TestFundamentalsRefreshesRejectedCrumb(t *testing.T) {
	fake := &fakeYahoo{rejectFirst: true}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()
	client := newTestClient(t, srv)

	f, err := client.Fundamentals(context.Background(), "AAPL")
	require.NoError(t, err)
	require.NotNil(t, f.TrailingPE)

	assert.Equal(t, int32(2), atomic.LoadInt32(&fake.crumbCalls))
	assert.Equal(t, int32(2), atomic.LoadInt32(&fake.summaryCalls))
}

func TestFundamentalsServerError(t *testing.T) {
	srv := httptest.NewServer((&fakeYahoo{}).handler())
	defer srv.Close()
	client := newTestClient(t, srv)

	_, err := client.Fundamentals(context.Background(), "BROKEN")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoFundamentals)
}
