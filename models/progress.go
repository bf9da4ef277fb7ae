package models

import (
	"strings"
	"time"
)

const (
	StatusIdle    = "idle"
	StatusRunning = "running"
	StatusDone    = "done"

	errorPrefix = "error: "
)

// RunProgress is an immutable snapshot of the current (or last) run.
// Writers publish a new value instead of mutating a shared one.
type RunProgress struct {
	RunID         string     `json:"run_id,omitempty"`
	Total         int        `json:"total"`
	Done          int        `json:"done"`
	FailedBatches int        `json:"failed_batches"`
	Status        string     `json:"status"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
}

func IdleProgress() RunProgress {
	return RunProgress{Total: 1, Status: StatusIdle}
}

func ErrorStatus(err error) string {
	return errorPrefix + err.Error()
}

func (p RunProgress) Running() bool {
	return p.Status == StatusRunning
}

func (p RunProgress) Failed() bool {
	return strings.HasPrefix(p.Status, errorPrefix)
}

// Percent is Done/Total as a percentage rounded to two decimals.
func (p RunProgress) Percent() float64 {
	if p.Total <= 0 {
		return 0
	}
	return Round2(float64(p.Done) / float64(p.Total) * 100)
}
