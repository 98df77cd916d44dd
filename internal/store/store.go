// Package store persists leads, operators, batches and their audit trail.
package store

import (
	"context"
	"time"

	"github.com/leadgrid/prospector/internal/lifecycle"
	"github.com/leadgrid/prospector/internal/model"
	"github.com/leadgrid/prospector/internal/scorer"
)

// LeadPatch is the accumulated enrichment update applied to a lead in one
// write. Nil fields are left untouched.
type LeadPatch struct {
	SIRET         *string
	Name          *string
	LegalForm     *string
	SectorCode    *string
	SectorLabel   *string
	Address       *string
	PostalCode    *string
	City          *string
	Region        *string
	Website       *string
	Phone         *string
	Email         *string
	EmployeeCount *int
	Revenue       *float64
	FoundedAt     *time.Time
	PlaceID       *string
	HasPresence   *bool
	Rating        *float64
}

// Empty reports whether the patch sets no fields.
func (p LeadPatch) Empty() bool {
	return len(p.Fields()) == 0
}

// Fields returns the names of the fields the patch sets, for audit metadata.
func (p LeadPatch) Fields() []string {
	var out []string
	add := func(name string, set bool) {
		if set {
			out = append(out, name)
		}
	}
	add("siret", p.SIRET != nil)
	add("name", p.Name != nil)
	add("legal_form", p.LegalForm != nil)
	add("sector_code", p.SectorCode != nil)
	add("sector_label", p.SectorLabel != nil)
	add("address", p.Address != nil)
	add("postal_code", p.PostalCode != nil)
	add("city", p.City != nil)
	add("region", p.Region != nil)
	add("website", p.Website != nil)
	add("phone", p.Phone != nil)
	add("email", p.Email != nil)
	add("employee_count", p.EmployeeCount != nil)
	add("revenue", p.Revenue != nil)
	add("founded_at", p.FoundedAt != nil)
	add("place_id", p.PlaceID != nil)
	add("has_presence", p.HasPresence != nil)
	add("rating", p.Rating != nil)
	return out
}

// ScoringCandidate is a lead loaded for scoring together with its
// director-contactability flag.
type ScoringCandidate struct {
	Lead               model.Lead
	HasDirectorContact bool
}

// BatchCounter names a pipeline counter on an import batch.
type BatchCounter string

const (
	CounterEnriched BatchCounter = "enriched"
	CounterScored   BatchCounter = "scored"
	CounterAssigned BatchCounter = "assigned"
)

// Store defines the persistence interface for the lead pipeline.
type Store interface {
	lifecycle.TransitionStore

	// Leads
	CreateLead(ctx context.Context, lead *model.Lead, directors []model.Director) (created bool, err error)
	GetLead(ctx context.Context, id string) (*model.Lead, error)
	ApplyLeadPatch(ctx context.Context, leadID string, patch LeadPatch) error
	SaveScore(ctx context.Context, leadID string, score, priority int, details model.ScoreDetails) error
	ListScoringCandidates(ctx context.Context, ids []string, all bool) ([]ScoringCandidate, error)
	DeleteLead(ctx context.Context, id string) error

	// Directors
	UpsertDirector(ctx context.Context, d model.Director) error

	// Operators
	ListOperatorsByRole(ctx context.Context, role model.Role) ([]model.OperatorLoad, error)
	AssignLead(ctx context.Context, leadID, operatorID string) (bool, error)

	// Audit
	CreateActivity(ctx context.Context, a *model.Activity) error
	CreateEnrichmentLog(ctx context.Context, e *model.EnrichmentLogEntry) error

	// Batches
	CreateBatch(ctx context.Context, source string) (*model.ImportBatch, error)
	GetBatch(ctx context.Context, id string) (*model.ImportBatch, error)
	MarkBatchRunning(ctx context.Context, id string) error
	CompleteBatch(ctx context.Context, id string, c model.Counters) error
	FailBatch(ctx context.Context, id string, c model.Counters, cause error) error
	IncrementBatchCounter(ctx context.Context, id string, counter BatchCounter, delta int) error

	// Sectors
	ListSectors(ctx context.Context) (scorer.SectorTable, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
