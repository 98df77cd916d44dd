package model

import "time"

// BatchStatus is the state of one detection run.
type BatchStatus string

const (
	BatchPending   BatchStatus = "PENDING"
	BatchRunning   BatchStatus = "RUNNING"
	BatchCompleted BatchStatus = "COMPLETED"
	BatchFailed    BatchStatus = "FAILED"
)

// ImportBatch aggregates counters for one detection run. It is written by
// whichever stage owns it at that moment and read only for monitoring.
type ImportBatch struct {
	ID                string      `json:"id"`
	Source            string      `json:"source"`
	Status            BatchStatus `json:"status"`
	TotalFound        int         `json:"total_found"`
	NewInserted       int         `json:"new_inserted"`
	DuplicatesSkipped int         `json:"duplicates_skipped"`
	Enriched          int         `json:"enriched"`
	Scored            int         `json:"scored"`
	Assigned          int         `json:"assigned"`
	Errors            int         `json:"errors"`
	ErrorDetails      *string     `json:"error_details,omitempty"`
	StartedAt         time.Time   `json:"started_at"`
	CompletedAt       *time.Time  `json:"completed_at,omitempty"`
}

// Counters is the snapshot written when a detection run finishes.
type Counters struct {
	TotalFound        int `json:"total_found"`
	NewInserted       int `json:"new_inserted"`
	DuplicatesSkipped int `json:"duplicates_skipped"`
	Errors            int `json:"errors"`
}
