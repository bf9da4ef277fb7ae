package jobs

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"stock_screener/models"
	"stock_screener/output"
	"stock_screener/screener"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticUniverse struct {
	symbols []string
	err     error
}

func (u staticUniverse) FetchSymbols(context.Context) ([]string, error) {
	return u.symbols, u.err
}

// blockingScreen reports progress once, then waits for release.
type blockingScreen struct {
	calls   int32
	release chan struct{}
	rows    []models.ScoredSymbol
	err     error
	panics  bool
}

func (s *blockingScreen) Run(ctx context.Context, symbols []string, onProgress func(screener.Progress)) (screener.Result, error) {
	atomic.AddInt32(&s.calls, 1)
	if s.panics {
		panic("nil map write")
	}
	onProgress(screener.Progress{Done: 1, Total: len(symbols)})
	if s.release != nil {
		select {
		case <-s.release:
		case <-ctx.Done():
			return screener.Result{}, ctx.Err()
		}
	}
	if s.err != nil {
		return screener.Result{}, s.err
	}
	return screener.Result{Rows: s.rows}, nil
}

type recordingArchive struct {
	mu    sync.Mutex
	runID string
	rows  int
	err   error
}

func (a *recordingArchive) InsertResults(ctx context.Context, runID string, runAt time.Time, rows []models.ScoredSymbol) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.runID = runID
	a.rows = len(rows)
	return a.err
}

func TestStartRejectsConcurrentRuns(t *testing.T) {
	screen := &blockingScreen{release: make(chan struct{})}
	r := NewRunner(context.Background(), staticUniverse{symbols: []string{"A", "B"}}, screen,
		Options{OutputPath: filepath.Join(t.TempDir(), "top.json")})

	first, started := r.Start()
	require.True(t, started)

	var wg sync.WaitGroup
	var extra int32
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := r.Start(); ok {
				atomic.AddInt32(&extra, 1)
			}
		}()
	}
	wg.Wait()

	assert.Zero(t, atomic.LoadInt32(&extra))
	snap := r.Snapshot()
	assert.True(t, snap.Running())
	assert.Equal(t, first, snap.RunID)

	close(screen.release)
	r.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&screen.calls))
	assert.Equal(t, models.StatusDone, r.Snapshot().Status)

	_, started = r.Start()
	assert.True(t, started, "a finished run frees the slot")
	r.Wait()
}

func TestRunWritesOutputAndArchives(t *testing.T) {
	path := filepath.Join(t.TempDir(), "top.json")
	rows := []models.ScoredSymbol{{Symbol: "AAPL", Price: 200, Score: 6}}
	archive := &recordingArchive{}
	r := NewRunner(context.Background(), staticUniverse{symbols: []string{"AAPL", "MSFT"}},
		&blockingScreen{rows: rows}, Options{OutputPath: path, Archive: archive})

	runID, started := r.Start()
	require.True(t, started)
	r.Wait()

	snap := r.Snapshot()
	assert.Equal(t, models.StatusDone, snap.Status)
	assert.Equal(t, 2, snap.Total)
	assert.Equal(t, 1, snap.Done)
	assert.NotNil(t, snap.FinishedAt)

	saved, err := output.ReadJSON(path)
	require.NoError(t, err)
	assert.Equal(t, rows, saved)

	assert.Equal(t, runID, archive.runID)
	assert.Equal(t, 1, archive.rows)
}

func TestArchiveFailureDoesNotFailRun(t *testing.T) {
	r := NewRunner(context.Background(), staticUniverse{symbols: []string{"A"}}, &blockingScreen{},
		Options{OutputPath: filepath.Join(t.TempDir(), "top.json"), Archive: &recordingArchive{err: errors.New("clickhouse down")}})

	_, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.StatusDone, r.Snapshot().Status)
}

func TestRunErrorsBecomeStatus(t *testing.T) {
	tests := []struct {
		name     string
		universe staticUniverse
		screen   *blockingScreen
		want     string
	}{
		{
			name:     "listing unavailable",
			universe: staticUniverse{err: errors.New("listing returned status 503")},
			screen:   &blockingScreen{},
			want:     "error: fetch universe: listing returned status 503",
		},
		{
			name:     "screen aborted",
			universe: staticUniverse{symbols: []string{"A"}},
			screen:   &blockingScreen{err: context.DeadlineExceeded},
			want:     "error: screen: context deadline exceeded",
		},
		{
			name:     "panic",
			universe: staticUniverse{symbols: []string{"A"}},
			screen:   &blockingScreen{panics: true},
			want:     "error: panic: nil map write",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "top.json")
			r := NewRunner(context.Background(), tt.universe, tt.screen, Options{OutputPath: path})

			_, started := r.Start()
			require.True(t, started)
			r.Wait()

			snap := r.Snapshot()
			assert.True(t, snap.Failed())
			assert.Equal(t, tt.want, snap.Status)

			_, err := output.ReadJSON(path)
			assert.ErrorIs(t, err, output.ErrNotFound, "aborted runs write nothing")
		})
	}
}

func TestShutdownCancelsBackgroundRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	screen := &blockingScreen{release: make(chan struct{})}
	r := NewRunner(ctx, staticUniverse{symbols: []string{"A"}}, screen,
		Options{OutputPath: filepath.Join(t.TempDir(), "top.json")})

	_, started := r.Start()
	require.True(t, started)
	cancel()
	r.Wait()

	assert.Equal(t, "error: screen: context canceled", r.Snapshot().Status)
}

func TestSubscribeReceivesSnapshots(t *testing.T) {
	r := NewRunner(context.Background(), staticUniverse{symbols: []string{"A", "B"}}, &blockingScreen{},
		Options{OutputPath: filepath.Join(t.TempDir(), "top.json")})
	ch, unsubscribe := r.Subscribe()
	defer unsubscribe()

	_, err := r.RunOnce(context.Background())
	require.NoError(t, err)

	var statuses []string
	for len(ch) > 0 {
		statuses = append(statuses, (<-ch).Status)
	}
	require.NotEmpty(t, statuses)
	assert.Equal(t, models.StatusRunning, statuses[0])
	assert.Equal(t, models.StatusDone, statuses[len(statuses)-1])
}

func TestRunOnceRejectedWhileRunning(t *testing.T) {
	screen := &blockingScreen{release: make(chan struct{})}
	r := NewRunner(context.Background(), staticUniverse{symbols: []string{"A"}}, screen,
		Options{OutputPath: filepath.Join(t.TempDir(), "top.json")})

	_, started := r.Start()
	require.True(t, started)

	_, err := r.RunOnce(context.Background())
	assert.Error(t, err)

	close(screen.release)
	r.Wait()
}
