// Package pipeline implements the four queued stages that move a lead
// from registry discovery to operator assignment: detection, enrichment,
// scoring and assignment. Each stage enqueues its successor only after
// its own writes have committed, which gives the per-lead ordering
// guarantee without any cross-stage locking.
package pipeline

import "context"

// Job names as stored in the jobs table.
const (
	JobDetect = "detect-companies"
	JobEnrich = "enrich-company"
	JobScore  = "score-companies"
	JobAssign = "assign-prospects"
)

// chain maps each stage to the job it enqueues on success.
var chain = map[string]string{
	JobDetect: JobEnrich,
	JobEnrich: JobScore,
	JobScore:  JobAssign,
}

// NextJob returns the successor job for a stage, if it has one.
func NextJob(name string) (string, bool) {
	next, ok := chain[name]
	return next, ok
}

// Enqueuer is the slice of the queue the stages need.
type Enqueuer interface {
	Enqueue(ctx context.Context, name string, payload any) (string, error)
}

// DetectPayload triggers a detection run. Empty dates default to the
// configured look-back window ending today. A non-empty BatchID makes the
// run report into that existing batch instead of opening a new one.
type DetectPayload struct {
	DateFrom string `json:"date_from,omitempty"`
	DateTo   string `json:"date_to,omitempty"`
	BatchID  string `json:"batch_id,omitempty"`
}

// EnrichPayload enriches one lead.
type EnrichPayload struct {
	LeadID  string `json:"lead_id"`
	BatchID string `json:"batch_id,omitempty"`
}

// ScorePayload scores specific leads, or every lead still awaiting
// contact when All is set.
type ScorePayload struct {
	LeadIDs []string `json:"lead_ids,omitempty"`
	All     bool     `json:"all,omitempty"`
	BatchID string   `json:"batch_id,omitempty"`
}

// AssignPayload routes one scored lead to an operator.
type AssignPayload struct {
	LeadID  string `json:"lead_id"`
	Score   int    `json:"score"`
	BatchID string `json:"batch_id,omitempty"`
}
