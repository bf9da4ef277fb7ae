package nasdaq

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

func testConfig(t *testing.T, url string) *config.Config {
	t.Helper()
	cfg := &config.Config{}
	cfg.Screener.ListingURL = url
	cfg.Retry.InitialInterval = time.Millisecond
	cfg.Retry.MaxInterval = 5 * time.Millisecond
	cfg.Retry.MaxElapsedTime = time.Second
	return cfg
}

func TestFetchSymbolsRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte("Symbol|Security Name\nAAPL|Apple\nBRK.A|Berkshire\nNVDA|Nvidia\nFile Creation Time: 0|\n"))
	}))
	defer srv.Close()

	symbols, err := NewClient(testConfig(t, srv.URL)).FetchSymbols(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"AAPL", "NVDA"}, symbols)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestFetchSymbolsDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewClient(testConfig(t, srv.URL)).FetchSymbols(context.Background())
	require.Error(t, err)

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestFetchSymbolsRejectsMalformedListing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>maintenance</html>"))
	}))
	defer srv.Close()

	_, err := NewClient(testConfig(t, srv.URL)).FetchSymbols(context.Background())
	assert.Error(t, err)
}
