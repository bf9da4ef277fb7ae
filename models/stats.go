package models

import "time"

// RunStats summarises one pass of the screener.
type RunStats struct {
	Symbols       int           `json:"symbols"`
	Batches       int           `json:"batches"`
	FailedBatches int           `json:"failed_batches"`
	Skipped       int           `json:"skipped"`
	Scored        int           `json:"scored"`
	Kept          int           `json:"kept"`
	Duration      time.Duration `json:"duration"`
}
