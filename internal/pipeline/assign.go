package pipeline

import (
	"context"
	"fmt"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/leadgrid/prospector/internal/model"
	"github.com/leadgrid/prospector/internal/queue"
	"github.com/leadgrid/prospector/internal/resilience"
	"github.com/leadgrid/prospector/internal/store"
)

// AssignerConfig tunes operator routing.
type AssignerConfig struct {
	// HotThreshold routes leads scoring at or above it to closers.
	HotThreshold int
}

// Assigner routes one scored lead to the least-loaded operator with
// spare capacity. Hot leads go to closers, the rest to qualifiers; when
// the target role is full the other role is tried before giving up.
type Assigner struct {
	store store.Store
	cfg   AssignerConfig
}

// NewAssigner wires the assignment stage.
func NewAssigner(st store.Store, cfg AssignerConfig) *Assigner {
	if cfg.HotThreshold <= 0 {
		cfg.HotThreshold = 70
	}
	return &Assigner{store: st, cfg: cfg}
}

// Handle runs one assignment job.
func (a *Assigner) Handle(ctx context.Context, job *queue.Job) error {
	var payload AssignPayload
	if err := job.Decode(&payload); err != nil {
		return resilience.Permanent(err)
	}
	log := zap.L().With(zap.String("lead_id", payload.LeadID))

	lead, err := a.store.GetLead(ctx, payload.LeadID)
	if err != nil {
		return eris.Wrap(err, "assign: load lead")
	}
	if lead == nil {
		log.Info("assignment skipped: lead missing")
		return nil
	}
	if !lead.Status.Active() {
		log.Info("assignment skipped: lead in terminal status",
			zap.String("status", string(lead.Status)))
		return nil
	}
	if lead.AssignedTo != nil {
		log.Info("assignment skipped: already assigned",
			zap.String("operator_id", *lead.AssignedTo))
		return nil
	}

	target := model.RoleQualifier
	if payload.Score >= a.cfg.HotThreshold {
		target = model.RoleCloser
	}
	fallback := model.RoleCloser
	if target == model.RoleCloser {
		fallback = model.RoleQualifier
	}

	operator, err := a.tryRole(ctx, lead.ID, target)
	if err != nil {
		return err
	}
	role := target
	if operator == nil {
		if operator, err = a.tryRole(ctx, lead.ID, fallback); err != nil {
			return err
		}
		role = fallback
	}
	if operator == nil {
		log.Info("assignment skipped: no operator with spare capacity",
			zap.Int("score", payload.Score))
		return nil
	}

	content := fmt.Sprintf("Automatically assigned to %s (score %d)", operator.Name, payload.Score)
	err = a.store.CreateActivity(ctx, &model.Activity{
		LeadID:  lead.ID,
		Type:    model.ActivityNote,
		Title:   "Automatic assignment",
		Content: &content,
		ActorID: model.SystemActorID,
		Metadata: map[string]any{
			"operator_id": operator.ID,
			"role":        string(role),
			"score":       payload.Score,
		},
	})
	if err != nil {
		return eris.Wrap(err, "assign: write activity")
	}

	if payload.BatchID != "" {
		if err := a.store.IncrementBatchCounter(ctx, payload.BatchID, store.CounterAssigned, 1); err != nil {
			return eris.Wrap(err, "assign: bump batch counter")
		}
	}
	log.Info("lead assigned",
		zap.String("operator_id", operator.ID),
		zap.String("role", string(role)),
	)
	return nil
}

// tryRole attempts the capacity-checked assignment against each candidate
// of a role, least-loaded first. The atomic update can refuse a candidate
// whose last slot was taken by a concurrent run; the next candidate is
// then tried.
func (a *Assigner) tryRole(ctx context.Context, leadID string, role model.Role) (*model.Operator, error) {
	loads, err := a.store.ListOperatorsByRole(ctx, role)
	if err != nil {
		return nil, eris.Wrapf(err, "assign: list %s operators", role)
	}

	// ListOperatorsByRole orders by account creation; a stable sort on
	// load keeps that order as the tie-break.
	sort.SliceStable(loads, func(i, j int) bool {
		return loads[i].ActiveLeads < loads[j].ActiveLeads
	})

	for _, cand := range loads {
		if cand.ActiveLeads >= cand.MaxLeads {
			continue
		}
		ok, err := a.store.AssignLead(ctx, leadID, cand.ID)
		if err != nil {
			return nil, eris.Wrapf(err, "assign: assign to %s", cand.ID)
		}
		if ok {
			op := cand.Operator
			return &op, nil
		}
	}
	return nil, nil
}
