package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/leadgrid/prospector/internal/model"
	"github.com/leadgrid/prospector/internal/queue"
	"github.com/leadgrid/prospector/internal/resilience"
	"github.com/leadgrid/prospector/internal/store"
	"github.com/leadgrid/prospector/pkg/rne"
)

// DetectorConfig tunes the registry import.
type DetectorConfig struct {
	PageSize    int
	DaysBack    int
	NAFCodes    []string
	Departments []string
	LegalForms  []string
}

// Detector imports newly registered companies as leads. One run equals
// one ImportBatch; individual record failures are counted and skipped,
// only a failure that stops the run (registry unreachable after retries)
// fails the batch and the job.
type Detector struct {
	store    store.Store
	registry rne.Client
	enqueue  Enqueuer
	cfg      DetectorConfig
}

// NewDetector wires the detection stage.
func NewDetector(st store.Store, registry rne.Client, enq Enqueuer, cfg DetectorConfig) *Detector {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 100
	}
	if cfg.DaysBack <= 0 {
		cfg.DaysBack = 1
	}
	return &Detector{store: st, registry: registry, enqueue: enq, cfg: cfg}
}

// Handle runs one detection job.
func (d *Detector) Handle(ctx context.Context, job *queue.Job) error {
	var payload DetectPayload
	if err := job.Decode(&payload); err != nil {
		return resilience.Permanent(err)
	}
	if d.registry == nil {
		zap.L().Warn("detection skipped: registry client not configured")
		return nil
	}

	from, to, err := d.window(payload)
	if err != nil {
		return resilience.Permanent(err)
	}

	batch, err := d.resolveBatch(ctx, payload.BatchID)
	if err != nil {
		return err
	}

	log := zap.L().With(zap.String("batch_id", batch.ID))
	log.Info("detection started",
		zap.Time("from", from),
		zap.Time("to", to),
	)

	counters, runErr := d.importWindow(ctx, log, batch.ID, from, to)
	if runErr != nil {
		if ferr := d.store.FailBatch(ctx, batch.ID, counters, runErr); ferr != nil {
			log.Error("recording batch failure failed", zap.Error(ferr))
		}
		return runErr
	}

	if err := d.store.CompleteBatch(ctx, batch.ID, counters); err != nil {
		return eris.Wrap(err, "detect: complete batch")
	}
	log.Info("detection completed",
		zap.Int("total_found", counters.TotalFound),
		zap.Int("new_inserted", counters.NewInserted),
		zap.Int("duplicates_skipped", counters.DuplicatesSkipped),
		zap.Int("errors", counters.Errors),
	)
	return nil
}

// resolveBatch reuses the batch named in the payload, or opens a fresh
// one. A named batch that does not exist is a permanent failure: the id
// came from the trigger, retrying cannot make it appear.
func (d *Detector) resolveBatch(ctx context.Context, batchID string) (*model.ImportBatch, error) {
	if batchID != "" {
		batch, err := d.store.GetBatch(ctx, batchID)
		if err != nil {
			return nil, eris.Wrap(err, "detect: load batch")
		}
		if batch == nil {
			return nil, resilience.Permanent(eris.Errorf("detect: batch %s not found", batchID))
		}
		return batch, nil
	}

	batch, err := d.store.CreateBatch(ctx, string(SourceRegistry))
	if err != nil {
		return nil, eris.Wrap(err, "detect: create batch")
	}
	if err := d.store.MarkBatchRunning(ctx, batch.ID); err != nil {
		return nil, eris.Wrap(err, "detect: mark batch running")
	}
	return batch, nil
}

func (d *Detector) window(p DetectPayload) (from, to time.Time, err error) {
	now := time.Now()
	to = now
	from = now.AddDate(0, 0, -d.cfg.DaysBack)
	if p.DateFrom != "" {
		if from, err = time.Parse("2006-01-02", p.DateFrom); err != nil {
			return from, to, eris.Wrapf(err, "detect: bad date_from %q", p.DateFrom)
		}
	}
	if p.DateTo != "" {
		if to, err = time.Parse("2006-01-02", p.DateTo); err != nil {
			return from, to, eris.Wrapf(err, "detect: bad date_to %q", p.DateTo)
		}
	}
	if to.Before(from) {
		return from, to, eris.New("detect: date_to before date_from")
	}
	return from, to, nil
}

func (d *Detector) importWindow(ctx context.Context, log *zap.Logger, batchID string, from, to time.Time) (model.Counters, error) {
	var counters model.Counters
	retry := resilience.RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: 2 * time.Second,
		MaxBackoff:     30 * time.Second,
		Multiplier:     2,
		OnRetry:        resilience.RetryLogger("rne", "search"),
	}

	for page := 1; ; page++ {
		var result *rne.SearchResult
		err := resilience.Do(ctx, retry, func(ctx context.Context) error {
			var serr error
			result, serr = d.registry.Search(ctx, rne.SearchRequest{
				CreatedFrom: from,
				CreatedTo:   to,
				NAFCodes:    d.cfg.NAFCodes,
				Departments: d.cfg.Departments,
				LegalForms:  d.cfg.LegalForms,
				Page:        page,
				PageSize:    d.cfg.PageSize,
			})
			return serr
		})
		if err != nil {
			return counters, eris.Wrapf(err, "detect: search page %d", page)
		}
		if len(result.Results) == 0 {
			return counters, nil
		}
		counters.TotalFound += len(result.Results)

		for _, company := range result.Results {
			created, err := d.importOne(ctx, batchID, company)
			if err != nil {
				counters.Errors++
				log.Warn("record import failed",
					zap.String("siren", company.SIREN),
					zap.Error(err),
				)
				continue
			}
			if created {
				counters.NewInserted++
			} else {
				counters.DuplicatesSkipped++
			}
		}

		if page*d.cfg.PageSize >= result.TotalResults {
			return counters, nil
		}
	}
}

// importOne inserts a single registry record and, when it is new, enqueues
// its enrichment. The insert commits before the enqueue, so an enrich job
// can never observe a missing lead.
func (d *Detector) importOne(ctx context.Context, batchID string, company rne.Company) (bool, error) {
	if err := model.ValidateSIREN(company.SIREN); err != nil {
		return false, err
	}

	lead := &model.Lead{
		SIREN:         company.SIREN,
		Name:          company.DisplayName(),
		Status:        model.StatusNew,
		FoundedAt:     company.FoundedAt(),
		EmployeeCount: company.EmployeeCount(),
		ImportBatchID: &batchID,
	}
	setIf(&lead.LegalForm, company.LegalForm)
	setIf(&lead.SectorCode, company.ActivityCode)
	if addr := company.Address; addr != nil {
		setIf(&lead.Address, joinAddress(addr.StreetNumber, addr.StreetType, addr.StreetLabel))
		setIf(&lead.PostalCode, addr.PostalCode)
		setIf(&lead.City, addr.City)
	}

	directors := make([]model.Director, 0, len(company.Directors))
	for _, dir := range company.Directors {
		md := model.Director{LastName: dir.LastName}
		if md.LastName == "" {
			md.LastName = "Inconnu"
		}
		setIf(&md.FirstName, dir.FirstName)
		setIf(&md.Role, dir.Role)
		if t, err := time.Parse("2006-01-02", dir.BirthDate); err == nil {
			md.BirthDate = &t
		}
		directors = append(directors, md)
	}

	created, err := d.store.CreateLead(ctx, lead, directors)
	if err != nil || !created {
		return created, err
	}

	_, err = d.enqueue.Enqueue(ctx, JobEnrich, EnrichPayload{LeadID: lead.ID, BatchID: batchID})
	if err != nil {
		return true, eris.Wrapf(err, "detect: enqueue enrichment for %s", company.SIREN)
	}
	return true, nil
}

func setIf(dst **string, v string) {
	if v != "" {
		*dst = &v
	}
}

func joinAddress(parts ...string) string {
	out := ""
	for _, p := range parts {
		if p == "" {
			continue
		}
		if out != "" {
			out += " "
		}
		out += p
	}
	return out
}
