package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadgrid/prospector/internal/lifecycle"
	"github.com/leadgrid/prospector/internal/model"
	"github.com/leadgrid/prospector/internal/store"
)

// hotCandidate scores 80: no website 30, high-value sector 20, young 20,
// director contact 10.
func hotCandidate(id string) store.ScoringCandidate {
	founded := time.Now().AddDate(0, 0, -10)
	sector := "47.11B"
	return store.ScoringCandidate{
		Lead: model.Lead{
			ID:         id,
			SIREN:      "111111111",
			Name:       "Alpha",
			Status:     model.StatusNew,
			SectorCode: &sector,
			FoundedAt:  &founded,
		},
		HasDirectorContact: true,
	}
}

// coldCandidate scores 0: has a website, old company, unknown sector.
func coldCandidate(id string) store.ScoringCandidate {
	founded := time.Now().AddDate(-5, 0, 0)
	website := "https://beta.fr"
	quality := 90
	sector := "99.99Z"
	return store.ScoringCandidate{
		Lead: model.Lead{
			ID:             id,
			SIREN:          "222222222",
			Name:           "Beta",
			Status:         model.StatusNew,
			Website:        &website,
			WebsiteQuality: &quality,
			SectorCode:     &sector,
			FoundedAt:      &founded,
		},
	}
}

func newScoreStage(st *fakeStore, enq *fakeEnqueuer, cfg ScorerConfig) *ScoreStage {
	return NewScoreStage(st, lifecycle.NewMachine(st), enq, cfg)
}

func TestScoreFailedCandidateIsSkippedNotFatal(t *testing.T) {
	st := newFakeStore()
	st.candidates = []store.ScoringCandidate{hotCandidate("lead-1")}
	st.saveScoreErr = eris.New("disk full")
	enq := &fakeEnqueuer{}
	s := newScoreStage(st, enq, ScorerConfig{QualifyThreshold: 40, AutoQualify: true, AutoAssign: true})

	require.NoError(t, s.Handle(context.Background(), makeJob(t, JobScore, ScorePayload{LeadIDs: []string{"lead-1"}})))

	assert.Empty(t, st.scores)
	assert.Empty(t, st.transitions)
	assert.Empty(t, enq.jobs)
}

func TestScoreQualifiesAndChainsAssignment(t *testing.T) {
	st := newFakeStore()
	enq := &fakeEnqueuer{}
	cand := hotCandidate("lead-1")
	seedLead(st, cand.Lead)
	st.candidates = []store.ScoringCandidate{cand}

	s := newScoreStage(st, enq, ScorerConfig{QualifyThreshold: 40, AutoQualify: true, AutoAssign: true})
	require.NoError(t, s.Handle(context.Background(), makeJob(t, JobScore, ScorePayload{LeadIDs: []string{"lead-1"}})))

	assert.Equal(t, 80, st.scores["lead-1"])

	require.Len(t, st.transitions, 1)
	assert.Equal(t, model.StatusToContact, st.transitions[0].To)
	assert.Equal(t, model.SystemActorID, st.transitions[0].Actor.ID)
	assert.Contains(t, st.transitions[0].Reason, "score 80")

	assignJobs := enq.byName(JobAssign)
	require.Len(t, assignJobs, 1)
	payload := assignJobs[0].payload.(AssignPayload)
	assert.Equal(t, "lead-1", payload.LeadID)
	assert.Equal(t, 80, payload.Score)
}

func TestScoreBelowThresholdLeavesStatusUntouched(t *testing.T) {
	st := newFakeStore()
	enq := &fakeEnqueuer{}
	cand := coldCandidate("lead-2")
	seedLead(st, cand.Lead)
	st.candidates = []store.ScoringCandidate{cand}

	s := newScoreStage(st, enq, ScorerConfig{QualifyThreshold: 40, AutoQualify: true, AutoAssign: true})
	require.NoError(t, s.Handle(context.Background(), makeJob(t, JobScore, ScorePayload{LeadIDs: []string{"lead-2"}})))

	assert.Contains(t, st.scores, "lead-2")
	assert.Empty(t, st.transitions)
	assert.Empty(t, enq.byName(JobAssign))
}

func TestScoreAutoQualifyDisabled(t *testing.T) {
	st := newFakeStore()
	enq := &fakeEnqueuer{}
	cand := hotCandidate("lead-1")
	seedLead(st, cand.Lead)
	st.candidates = []store.ScoringCandidate{cand}

	s := newScoreStage(st, enq, ScorerConfig{QualifyThreshold: 40, AutoQualify: false, AutoAssign: true})
	require.NoError(t, s.Handle(context.Background(), makeJob(t, JobScore, ScorePayload{LeadIDs: []string{"lead-1"}})))

	assert.Equal(t, 80, st.scores["lead-1"])
	assert.Empty(t, st.transitions)
	assert.Empty(t, enq.byName(JobAssign))
}

func TestScoreAlreadyQualifiedLeadIsNotRequalified(t *testing.T) {
	st := newFakeStore()
	enq := &fakeEnqueuer{}
	cand := hotCandidate("lead-1")
	cand.Lead.Status = model.StatusToContact
	seedLead(st, cand.Lead)
	st.candidates = []store.ScoringCandidate{cand}

	s := newScoreStage(st, enq, ScorerConfig{QualifyThreshold: 40, AutoQualify: true, AutoAssign: true})
	require.NoError(t, s.Handle(context.Background(), makeJob(t, JobScore, ScorePayload{LeadIDs: []string{"lead-1"}})))

	assert.Equal(t, 80, st.scores["lead-1"])
	assert.Empty(t, st.transitions)
	assert.Empty(t, enq.byName(JobAssign))
}

func TestScoreAllAndBatchCounter(t *testing.T) {
	st := newFakeStore()
	enq := &fakeEnqueuer{}
	_, err := st.CreateBatch(context.Background(), "rne")
	require.NoError(t, err)

	hot := hotCandidate("lead-1")
	cold := coldCandidate("lead-2")
	seedLead(st, hot.Lead)
	seedLead(st, cold.Lead)
	st.candidates = []store.ScoringCandidate{hot, cold}

	s := newScoreStage(st, enq, ScorerConfig{QualifyThreshold: 40, AutoQualify: true, AutoAssign: true})
	require.NoError(t, s.Handle(context.Background(), makeJob(t, JobScore, ScorePayload{All: true, BatchID: "batch-1"})))

	assert.Len(t, st.scores, 2)
	batch, _ := st.GetBatch(context.Background(), "batch-1")
	assert.Equal(t, 2, batch.Scored)
}

func TestScoreNoCandidatesIsNoop(t *testing.T) {
	st := newFakeStore()
	enq := &fakeEnqueuer{}

	s := newScoreStage(st, enq, ScorerConfig{AutoQualify: true})
	require.NoError(t, s.Handle(context.Background(), makeJob(t, JobScore, ScorePayload{LeadIDs: []string{"absent"}})))
	assert.Empty(t, st.scores)
	assert.Empty(t, enq.jobs)
}
