package jobs

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"stock_screener/metrics"
	"stock_screener/middleware"
	"stock_screener/models"
	"stock_screener/output"
	"stock_screener/screener"
	"stock_screener/utils"

	"github.com/google/uuid"
)

type UniverseSource interface {
	FetchSymbols(ctx context.Context) ([]string, error)
}

type Screen interface {
	Run(ctx context.Context, symbols []string, onProgress func(screener.Progress)) (screener.Result, error)
}

// Archive receives the ranked rows of successful runs. Optional.
type Archive interface {
	InsertResults(ctx context.Context, runID string, runAt time.Time, rows []models.ScoredSymbol) error
}

type Options struct {
	OutputPath   string
	OutputFormat string
	Archive      Archive
}

// Runner executes at most one screen at a time. Progress is published as
// immutable snapshots so readers never see a half-updated record.
type Runner struct {
	universe UniverseSource
	screen   Screen
	opts     Options

	running  atomic.Bool
	progress atomic.Pointer[models.RunProgress]

	subsMu sync.Mutex
	subs   map[chan models.RunProgress]struct{}

	baseCtx context.Context
	wg      sync.WaitGroup
}

// NewRunner binds background runs to ctx; cancelling it aborts them.
func NewRunner(ctx context.Context, universe UniverseSource, screen Screen, opts Options) *Runner {
	r := &Runner{
		universe: universe,
		screen:   screen,
		opts:     opts,
		subs:     make(map[chan models.RunProgress]struct{}),
		baseCtx:  ctx,
	}
	idle := models.IdleProgress()
	r.progress.Store(&idle)
	return r
}

// Start launches a background run unless one is already in flight.
func (r *Runner) Start() (string, bool) {
	if !r.running.CompareAndSwap(false, true) {
		return r.Snapshot().RunID, false
	}
	runID := r.begin()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.execute(r.baseCtx, runID)
	}()
	return runID, true
}

// RunOnce runs a screen in the calling goroutine.
func (r *Runner) RunOnce(ctx context.Context) (screener.Result, error) {
	if !r.running.CompareAndSwap(false, true) {
		return screener.Result{}, fmt.Errorf("a run is already in progress")
	}
	return r.execute(ctx, r.begin())
}

// Wait blocks until the background run, if any, has finished.
func (r *Runner) Wait() {
	r.wg.Wait()
}

func (r *Runner) Snapshot() models.RunProgress {
	return *r.progress.Load()
}

// Subscribe returns a channel of snapshots. Slow subscribers miss
// intermediate snapshots rather than block the run.
func (r *Runner) Subscribe() (<-chan models.RunProgress, func()) {
	ch := make(chan models.RunProgress, 8)
	r.subsMu.Lock()
	r.subs[ch] = struct{}{}
	r.subsMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			r.subsMu.Lock()
			delete(r.subs, ch)
			r.subsMu.Unlock()
			close(ch)
		})
	}
}

func (r *Runner) begin() string {
	now := time.Now()
	runID := uuid.New().String()
	r.publish(models.RunProgress{
		RunID:     runID,
		Total:     1,
		Status:    models.StatusRunning,
		StartedAt: &now,
	})
	return runID
}

func (r *Runner) execute(ctx context.Context, runID string) (res screener.Result, err error) {
	defer r.running.Store(false)
	started := time.Now()
	log := utils.Logger.With("run_id", runID)
	log.Infow("Run started")

	err = middleware.Recover(func() error {
		symbols, err := r.universe.FetchSymbols(ctx)
		if err != nil {
			return fmt.Errorf("fetch universe: %w", err)
		}
		r.update(func(p *models.RunProgress) { p.Total = len(symbols) })

		res, err = r.screen.Run(ctx, symbols, func(pr screener.Progress) {
			r.update(func(p *models.RunProgress) {
				p.Done = pr.Done
				p.Total = pr.Total
				p.FailedBatches = pr.FailedBatches
			})
		})
		if err != nil {
			return fmt.Errorf("screen: %w", err)
		}

		if err := output.Write(r.opts.OutputPath, r.opts.OutputFormat, res.Rows); err != nil {
			return err
		}

		if r.opts.Archive != nil {
			if err := r.opts.Archive.InsertResults(ctx, runID, started, res.Rows); err != nil {
				metrics.IncrementArchiveErrors()
				utils.Error(err, "Archiving results failed", "run_id", runID)
			}
		}
		return nil
	})

	finished := time.Now()
	if err != nil {
		utils.Error(err, "Run failed", "run_id", runID)
		metrics.RecordRun("error", finished.Sub(started), 0)
		r.update(func(p *models.RunProgress) {
			p.Status = models.ErrorStatus(err)
			p.FinishedAt = &finished
		})
		return res, err
	}

	log.Infow("Run finished",
		"kept", len(res.Rows),
		"output", r.opts.OutputPath,
		"duration", finished.Sub(started),
	)
	metrics.RecordRun("done", finished.Sub(started), len(res.Rows))
	r.update(func(p *models.RunProgress) {
		p.Status = models.StatusDone
		p.FinishedAt = &finished
	})
	return res, nil
}

// update copies the current snapshot, applies fn and publishes the copy.
// Only the goroutine holding the running flag calls it.
func (r *Runner) update(fn func(*models.RunProgress)) {
	next := *r.progress.Load()
	fn(&next)
	r.publish(next)
}

func (r *Runner) publish(p models.RunProgress) {
	r.progress.Store(&p)

	r.subsMu.Lock()
	defer r.subsMu.Unlock()
	for ch := range r.subs {
		select {
		case ch <- p:
		default:
		}
	}
}
