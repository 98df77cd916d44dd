package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/leadgrid/prospector/internal/lifecycle"
	"github.com/leadgrid/prospector/internal/model"
	"github.com/leadgrid/prospector/internal/queue"
	"github.com/leadgrid/prospector/internal/resilience"
	"github.com/leadgrid/prospector/internal/scorer"
	"github.com/leadgrid/prospector/internal/store"
)

// ScorerConfig tunes the scoring stage.
type ScorerConfig struct {
	QualifyThreshold int
	AutoQualify      bool
	AutoAssign       bool
}

// ScoreStage computes and persists scores, auto-qualifies new leads at
// the threshold and hands qualified leads to assignment.
type ScoreStage struct {
	store   store.Store
	machine *lifecycle.Machine
	enqueue Enqueuer
	cfg     ScorerConfig
}

// NewScoreStage wires the scoring stage.
func NewScoreStage(st store.Store, machine *lifecycle.Machine, enq Enqueuer, cfg ScorerConfig) *ScoreStage {
	if cfg.QualifyThreshold <= 0 {
		cfg.QualifyThreshold = 40
	}
	return &ScoreStage{store: st, machine: machine, enqueue: enq, cfg: cfg}
}

// Handle runs one scoring job.
func (s *ScoreStage) Handle(ctx context.Context, job *queue.Job) error {
	var payload ScorePayload
	if err := job.Decode(&payload); err != nil {
		return resilience.Permanent(err)
	}

	sectors, err := s.store.ListSectors(ctx)
	if err != nil {
		return eris.Wrap(err, "score: load sectors")
	}
	if len(sectors) == 0 {
		sectors = scorer.DefaultSectors()
	}

	candidates, err := s.store.ListScoringCandidates(ctx, payload.LeadIDs, payload.All)
	if err != nil {
		return eris.Wrap(err, "score: load candidates")
	}
	if len(candidates) == 0 {
		zap.L().Info("scoring skipped: no candidates")
		return nil
	}

	now := time.Now()
	scored := 0
	for _, cand := range candidates {
		if err := s.scoreOne(ctx, cand, sectors, now, payload.BatchID); err != nil {
			zap.L().Warn("scoring lead failed",
				zap.String("lead_id", cand.Lead.ID),
				zap.Error(err),
			)
			continue
		}
		scored++
	}

	if payload.BatchID != "" && scored > 0 {
		if err := s.store.IncrementBatchCounter(ctx, payload.BatchID, store.CounterScored, scored); err != nil {
			return eris.Wrap(err, "score: bump batch counter")
		}
	}
	zap.L().Info("scoring completed",
		zap.Int("candidates", len(candidates)),
		zap.Int("scored", scored),
	)
	return nil
}

func (s *ScoreStage) scoreOne(ctx context.Context, cand store.ScoringCandidate, sectors scorer.SectorTable, now time.Time, batchID string) error {
	lead := cand.Lead
	result := scorer.Score(lead, scorer.Context{
		Now:                now,
		HasDirectorContact: cand.HasDirectorContact,
		Sectors:            sectors,
	})

	if err := s.store.SaveScore(ctx, lead.ID, result.Score, result.Priority, result.Details); err != nil {
		return err
	}

	qualified := s.cfg.AutoQualify &&
		lead.Status == model.StatusNew &&
		result.Score >= s.cfg.QualifyThreshold
	if qualified {
		err := s.machine.Transition(ctx, &lead, model.StatusToContact,
			fmt.Sprintf("Auto-qualified with score %d", result.Score),
			model.SystemActor())
		if err != nil {
			return eris.Wrap(err, "auto-qualify")
		}
	}

	// Only freshly qualified leads move on; leads below threshold are
	// scored and left where they are.
	if qualified && s.cfg.AutoAssign {
		_, err := s.enqueue.Enqueue(ctx, JobAssign, AssignPayload{
			LeadID:  lead.ID,
			Score:   result.Score,
			BatchID: batchID,
		})
		if err != nil {
			return eris.Wrap(err, "enqueue assignment")
		}
	}
	return nil
}
