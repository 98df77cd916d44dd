package pipeline

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/leadgrid/prospector/internal/lifecycle"
	"github.com/leadgrid/prospector/internal/model"
	"github.com/leadgrid/prospector/internal/scorer"
	"github.com/leadgrid/prospector/internal/store"
	"github.com/leadgrid/prospector/pkg/pappers"
	"github.com/leadgrid/prospector/pkg/places"
	"github.com/leadgrid/prospector/pkg/rne"
)

// fakeStore is an in-memory store.Store for stage tests.
type fakeStore struct {
	mu sync.Mutex

	leads       map[string]*model.Lead
	directors   map[string][]model.Director
	activities  []model.Activity
	enrichLogs  []model.EnrichmentLogEntry
	transitions []lifecycle.Transition
	batches     map[string]*model.ImportBatch
	operators   []model.OperatorLoad
	sectors     scorer.SectorTable
	candidates  []store.ScoringCandidate
	scores      map[string]int
	patches     map[string]store.LeadPatch

	nextBatchID  string
	failAssign   map[string]bool // operator IDs whose atomic assign refuses
	createErr    error
	saveScoreErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		leads:       make(map[string]*model.Lead),
		directors:   make(map[string][]model.Director),
		batches:     make(map[string]*model.ImportBatch),
		scores:      make(map[string]int),
		patches:     make(map[string]store.LeadPatch),
		failAssign:  make(map[string]bool),
		nextBatchID: "batch-1",
	}
}

func (f *fakeStore) CreateLead(ctx context.Context, lead *model.Lead, directors []model.Director) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return false, f.createErr
	}
	for _, l := range f.leads {
		if l.SIREN == lead.SIREN {
			return false, nil
		}
	}
	if lead.ID == "" {
		lead.ID = "lead-" + lead.SIREN
	}
	cp := *lead
	f.leads[lead.ID] = &cp
	f.directors[lead.ID] = directors
	return true, nil
}

func (f *fakeStore) GetLead(ctx context.Context, id string) (*model.Lead, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.leads[id]
	if !ok {
		return nil, nil
	}
	cp := *l
	return &cp, nil
}

func (f *fakeStore) ApplyLeadPatch(ctx context.Context, leadID string, patch store.LeadPatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.patches[leadID] = patch
	return nil
}

func (f *fakeStore) SaveScore(ctx context.Context, leadID string, score, priority int, details model.ScoreDetails) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveScoreErr != nil {
		return f.saveScoreErr
	}
	f.scores[leadID] = score
	return nil
}

func (f *fakeStore) ListScoringCandidates(ctx context.Context, ids []string, all bool) ([]store.ScoringCandidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if all {
		return f.candidates, nil
	}
	var out []store.ScoringCandidate
	for _, cand := range f.candidates {
		for _, id := range ids {
			if cand.Lead.ID == id {
				out = append(out, cand)
			}
		}
	}
	return out, nil
}

func (f *fakeStore) DeleteLead(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.leads, id)
	return nil
}

func (f *fakeStore) UpsertDirector(ctx context.Context, d model.Director) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.directors[d.LeadID] = append(f.directors[d.LeadID], d)
	return nil
}

func (f *fakeStore) ListOperatorsByRole(ctx context.Context, role model.Role) ([]model.OperatorLoad, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.OperatorLoad
	for _, op := range f.operators {
		if op.Role == role && op.IsActive {
			out = append(out, op)
		}
	}
	return out, nil
}

func (f *fakeStore) AssignLead(ctx context.Context, leadID, operatorID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAssign[operatorID] {
		return false, nil
	}
	l, ok := f.leads[leadID]
	if !ok || l.AssignedTo != nil {
		return false, nil
	}
	l.AssignedTo = &operatorID
	return true, nil
}

func (f *fakeStore) RecordTransition(ctx context.Context, t lifecycle.Transition) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transitions = append(f.transitions, t)
	if l, ok := f.leads[t.LeadID]; ok {
		l.Status = t.To
	}
	return nil
}

func (f *fakeStore) CreateActivity(ctx context.Context, a *model.Activity) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.activities = append(f.activities, *a)
	return nil
}

func (f *fakeStore) CreateEnrichmentLog(ctx context.Context, e *model.EnrichmentLogEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enrichLogs = append(f.enrichLogs, *e)
	return nil
}

func (f *fakeStore) CreateBatch(ctx context.Context, source string) (*model.ImportBatch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b := &model.ImportBatch{ID: f.nextBatchID, Source: source, Status: model.BatchPending}
	f.batches[b.ID] = b
	return b, nil
}

func (f *fakeStore) GetBatch(ctx context.Context, id string) (*model.ImportBatch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.batches[id]
	if !ok {
		return nil, nil
	}
	cp := *b
	return &cp, nil
}

func (f *fakeStore) MarkBatchRunning(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if b, ok := f.batches[id]; ok {
		b.Status = model.BatchRunning
	}
	return nil
}

func (f *fakeStore) CompleteBatch(ctx context.Context, id string, c model.Counters) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.batches[id]
	if !ok {
		return eris.Errorf("no batch %s", id)
	}
	b.Status = model.BatchCompleted
	b.TotalFound = c.TotalFound
	b.NewInserted = c.NewInserted
	b.DuplicatesSkipped = c.DuplicatesSkipped
	b.Errors = c.Errors
	return nil
}

func (f *fakeStore) FailBatch(ctx context.Context, id string, c model.Counters, cause error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.batches[id]
	if !ok {
		return eris.Errorf("no batch %s", id)
	}
	b.Status = model.BatchFailed
	b.TotalFound = c.TotalFound
	b.NewInserted = c.NewInserted
	b.DuplicatesSkipped = c.DuplicatesSkipped
	b.Errors = c.Errors
	if cause != nil {
		msg := cause.Error()
		b.ErrorDetails = &msg
	}
	return nil
}

func (f *fakeStore) IncrementBatchCounter(ctx context.Context, id string, counter store.BatchCounter, delta int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.batches[id]
	if !ok {
		return eris.Errorf("no batch %s", id)
	}
	switch counter {
	case store.CounterEnriched:
		b.Enriched += delta
	case store.CounterScored:
		b.Scored += delta
	case store.CounterAssigned:
		b.Assigned += delta
	}
	return nil
}

func (f *fakeStore) ListSectors(ctx context.Context) (scorer.SectorTable, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sectors, nil
}

func (f *fakeStore) Migrate(ctx context.Context) error { return nil }
func (f *fakeStore) Close() error                      { return nil }

// fakeEnqueuer records enqueued jobs.
type fakeEnqueuer struct {
	mu   sync.Mutex
	jobs []enqueued
	err  error
}

type enqueued struct {
	name    string
	payload any
}

func (f *fakeEnqueuer) Enqueue(ctx context.Context, name string, payload any) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.jobs = append(f.jobs, enqueued{name: name, payload: payload})
	return "job-x", nil
}

func (f *fakeEnqueuer) byName(name string) []enqueued {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []enqueued
	for _, j := range f.jobs {
		if j.name == name {
			out = append(out, j)
		}
	}
	return out
}

// fakeRegistry is an rne.Client serving canned pages.
type fakeRegistry struct {
	pages     [][]rne.Company
	total     int
	searchErr error
	detail    map[string]*rne.Company
	detailErr error
	calls     int
}

func (f *fakeRegistry) Search(ctx context.Context, req rne.SearchRequest) (*rne.SearchResult, error) {
	f.calls++
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	page := req.Page - 1
	if page < 0 || page >= len(f.pages) {
		return &rne.SearchResult{TotalResults: f.total}, nil
	}
	return &rne.SearchResult{Results: f.pages[page], TotalResults: f.total}, nil
}

func (f *fakeRegistry) GetBySIREN(ctx context.Context, siren string) (*rne.Company, error) {
	if f.detailErr != nil {
		return nil, f.detailErr
	}
	return f.detail[siren], nil
}

// fakePaid is a pappers.Client.
type fakePaid struct {
	company *pappers.Company
	err     error
}

func (f *fakePaid) GetBySIREN(ctx context.Context, siren string) (*pappers.Company, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.company, nil
}

// fakePlaces is a places.Client.
type fakePlaces struct {
	lookup *places.Lookup
	err    error
}

func (f *fakePlaces) SearchCompany(ctx context.Context, name, city string) (*places.Lookup, error) {
	lookup := f.lookup
	if lookup == nil {
		lookup = &places.Lookup{CreditsUsed: 1}
	}
	return lookup, f.err
}
