package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadgrid/prospector/internal/model"
	"github.com/leadgrid/prospector/pkg/pappers"
	"github.com/leadgrid/prospector/pkg/places"
	"github.com/leadgrid/prospector/pkg/rne"
)

func seedLead(st *fakeStore, lead model.Lead) *model.Lead {
	st.leads[lead.ID] = &lead
	return st.leads[lead.ID]
}

func TestEnrichMergesAllThreeSources(t *testing.T) {
	st := newFakeStore()
	enq := &fakeEnqueuer{}
	seedLead(st, model.Lead{ID: "lead-1", SIREN: "111111111", Name: "Alpha", Status: model.StatusNew})
	st.nextBatchID = "b-1"
	_, err := st.CreateBatch(context.Background(), "rne")
	require.NoError(t, err)

	registry := &fakeRegistry{detail: map[string]*rne.Company{
		"111111111": {
			SIREN:        "111111111",
			Name:         "ALPHA",
			ActivityCode: "62.01Z",
			Address:      &rne.Address{StreetLabel: "Rue de la Paix", PostalCode: "69001", City: "Lyon"},
		},
	}}
	revenue := 120000.0
	paid := &fakePaid{company: &pappers.Company{
		SIREN:       "111111111",
		Name:        "Alpha Conseil",
		SectorCode:  "62.01Z",
		SectorLabel: "Programmation informatique",
		Revenue:     &revenue,
		HeadOffice:  &pappers.HeadOffice{SIRET: "11111111100012", Region: "Auvergne-Rhône-Alpes"},
		Officers:    []pappers.Representant{{LastName: "Durand", Email: "a.durand@example.fr"}},
	}}
	rating := 4.2
	pl := &fakePlaces{lookup: &places.Lookup{
		CreditsUsed: 2,
		Place: &places.Place{
			PlaceID: "place-1",
			Website: "https://alpha-conseil.fr",
			Rating:  &rating,
		},
	}}

	e := NewEnricher(st, registry, paid, pl, enq)
	require.NoError(t, e.Handle(context.Background(), makeJob(t, JobEnrich, EnrichPayload{LeadID: "lead-1", BatchID: "b-1"})))

	patch := st.patches["lead-1"]
	require.NotNil(t, patch.Name)
	assert.Equal(t, "Alpha Conseil", *patch.Name)
	require.NotNil(t, patch.SIRET)
	assert.Equal(t, "11111111100012", *patch.SIRET)
	require.NotNil(t, patch.SectorLabel)
	require.NotNil(t, patch.Revenue)
	require.NotNil(t, patch.PostalCode)
	assert.Equal(t, "69001", *patch.PostalCode)
	require.NotNil(t, patch.Website)
	assert.Equal(t, "https://alpha-conseil.fr", *patch.Website)
	require.NotNil(t, patch.PlaceID)
	require.NotNil(t, patch.HasPresence)
	require.NotNil(t, patch.Rating)

	// One log entry per source attempt, places credits carried through.
	require.Len(t, st.enrichLogs, 3)
	assert.Equal(t, "rne", st.enrichLogs[0].Source)
	assert.Equal(t, "pappers", st.enrichLogs[1].Source)
	assert.Equal(t, "places", st.enrichLogs[2].Source)
	assert.Equal(t, 2, st.enrichLogs[2].CreditsUsed)
	for _, entry := range st.enrichLogs {
		assert.True(t, entry.Success)
	}

	// Director from the paid source.
	require.NotEmpty(t, st.directors["lead-1"])
	assert.Equal(t, "Durand", st.directors["lead-1"][0].LastName)

	// Summary activity and chained scoring job.
	require.Len(t, st.activities, 1)
	assert.Equal(t, model.ActivityEnrichment, st.activities[0].Type)

	scoreJobs := enq.byName(JobScore)
	require.Len(t, scoreJobs, 1)
	payload := scoreJobs[0].payload.(ScorePayload)
	assert.Equal(t, []string{"lead-1"}, payload.LeadIDs)
	assert.Equal(t, "b-1", payload.BatchID)
}

func TestEnrichSourceFailureDoesNotAbortRun(t *testing.T) {
	st := newFakeStore()
	enq := &fakeEnqueuer{}
	seedLead(st, model.Lead{ID: "lead-1", SIREN: "111111111", Name: "Alpha", Status: model.StatusNew})

	paid := &fakePaid{err: pappers.ErrQuotaExhausted}
	rating := 4.0
	pl := &fakePlaces{lookup: &places.Lookup{CreditsUsed: 2, Place: &places.Place{PlaceID: "place-1", Rating: &rating}}}

	e := NewEnricher(st, nil, paid, pl, enq)
	require.NoError(t, e.Handle(context.Background(), makeJob(t, JobEnrich, EnrichPayload{LeadID: "lead-1"})))

	require.Len(t, st.enrichLogs, 2)
	assert.False(t, st.enrichLogs[0].Success)
	assert.Contains(t, st.enrichLogs[0].Error, "credits exhausted")
	assert.True(t, st.enrichLogs[1].Success)

	// Places still contributed; scoring still chained.
	patch := st.patches["lead-1"]
	require.NotNil(t, patch.PlaceID)
	assert.Len(t, enq.byName(JobScore), 1)
}

func TestEnrichPlacesFailureStillLogsBilledCredits(t *testing.T) {
	st := newFakeStore()
	enq := &fakeEnqueuer{}
	seedLead(st, model.Lead{ID: "lead-1", SIREN: "111111111", Name: "Alpha", Status: model.StatusNew})

	pl := &fakePlaces{
		lookup: &places.Lookup{CreditsUsed: 2},
		err:    &places.APIError{Status: "OVER_QUERY_LIMIT"},
	}

	e := NewEnricher(st, nil, nil, pl, enq)
	require.NoError(t, e.Handle(context.Background(), makeJob(t, JobEnrich, EnrichPayload{LeadID: "lead-1"})))

	require.Len(t, st.enrichLogs, 1)
	entry := st.enrichLogs[0]
	assert.Equal(t, "places", entry.Source)
	assert.False(t, entry.Success)
	assert.Equal(t, 2, entry.CreditsUsed)

	patch := st.patches["lead-1"]
	assert.Nil(t, patch.PlaceID)
}

func TestEnrichMissingLeadIsNoop(t *testing.T) {
	st := newFakeStore()
	enq := &fakeEnqueuer{}

	e := NewEnricher(st, nil, nil, nil, enq)
	require.NoError(t, e.Handle(context.Background(), makeJob(t, JobEnrich, EnrichPayload{LeadID: "absent"})))
	assert.Empty(t, enq.jobs)
	assert.Empty(t, st.enrichLogs)
}

func TestEnrichTerminalLeadIsNoop(t *testing.T) {
	st := newFakeStore()
	enq := &fakeEnqueuer{}
	seedLead(st, model.Lead{ID: "lead-1", SIREN: "111111111", Name: "Alpha", Status: model.StatusDoNotContact})

	e := NewEnricher(st, nil, &fakePaid{}, nil, enq)
	require.NoError(t, e.Handle(context.Background(), makeJob(t, JobEnrich, EnrichPayload{LeadID: "lead-1"})))
	assert.Empty(t, enq.jobs)
	assert.Empty(t, st.enrichLogs)
}

func TestEnrichBumpsBatchCounter(t *testing.T) {
	st := newFakeStore()
	enq := &fakeEnqueuer{}
	seedLead(st, model.Lead{ID: "lead-1", SIREN: "111111111", Name: "Alpha", Status: model.StatusNew})
	_, err := st.CreateBatch(context.Background(), "rne")
	require.NoError(t, err)

	e := NewEnricher(st, nil, nil, nil, enq)
	require.NoError(t, e.Handle(context.Background(), makeJob(t, JobEnrich, EnrichPayload{LeadID: "lead-1", BatchID: "batch-1"})))

	batch, _ := st.GetBatch(context.Background(), "batch-1")
	assert.Equal(t, 1, batch.Enriched)
}
