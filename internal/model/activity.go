package model

import "time"

// ActivityType classifies an audit activity.
type ActivityType string

const (
	ActivityCall         ActivityType = "CALL"
	ActivityEmail        ActivityType = "EMAIL"
	ActivityNote         ActivityType = "NOTE"
	ActivityFollowUp     ActivityType = "FOLLOW_UP"
	ActivityStatusChange ActivityType = "STATUS_CHANGE"
	ActivityEnrichment   ActivityType = "ENRICHMENT"
)

// Activity is an immutable, append-only audit record on a lead.
type Activity struct {
	ID        string         `json:"id"`
	LeadID    string         `json:"lead_id"`
	Type      ActivityType   `json:"type"`
	Title     string         `json:"title"`
	Content   *string        `json:"content,omitempty"`
	ActorID   string         `json:"actor_id"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// StatusHistoryEntry records one lifecycle transition. From is nil for the
// creation entry. Entries are never mutated or deleted.
type StatusHistoryEntry struct {
	ID        string    `json:"id"`
	LeadID    string    `json:"lead_id"`
	From      *Status   `json:"from,omitempty"`
	To        Status    `json:"to"`
	Reason    *string   `json:"reason,omitempty"`
	ChangedBy string    `json:"changed_by"`
	CreatedAt time.Time `json:"created_at"`
}

// EnrichmentLogEntry records one attempt against an external source.
type EnrichmentLogEntry struct {
	ID          string        `json:"id"`
	LeadID      string        `json:"lead_id"`
	Source      string        `json:"source"`
	Endpoint    string        `json:"endpoint"`
	Success     bool          `json:"success"`
	Latency     time.Duration `json:"latency"`
	CreditsUsed int           `json:"credits_used"`
	Error       string        `json:"error,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
}

// maxEnrichmentErrorLen bounds the stored error text.
const maxEnrichmentErrorLen = 500

// TruncateEnrichmentError clips error text to the stored limit.
func TruncateEnrichmentError(s string) string {
	if len(s) > maxEnrichmentErrorLen {
		return s[:maxEnrichmentErrorLen]
	}
	return s
}
