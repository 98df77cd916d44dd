package pipeline

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/leadgrid/prospector/internal/model"
	"github.com/leadgrid/prospector/internal/queue"
	"github.com/leadgrid/prospector/internal/resilience"
	"github.com/leadgrid/prospector/internal/store"
	"github.com/leadgrid/prospector/pkg/pappers"
	"github.com/leadgrid/prospector/pkg/places"
	"github.com/leadgrid/prospector/pkg/rne"
)

// Enricher runs the three-source merge for one lead. Sources are
// attempted in a fixed order; a failing source is logged and skipped,
// never aborting the run. Unconfigured sources (nil clients) are skipped
// silently.
type Enricher struct {
	store    store.Store
	registry rne.Client
	paid     pappers.Client
	places   places.Client
	enqueue  Enqueuer
}

// NewEnricher wires the enrichment stage. Any client may be nil.
func NewEnricher(st store.Store, registry rne.Client, paid pappers.Client, pl places.Client, enq Enqueuer) *Enricher {
	return &Enricher{store: st, registry: registry, paid: paid, places: pl, enqueue: enq}
}

// Handle runs one enrichment job.
func (e *Enricher) Handle(ctx context.Context, job *queue.Job) error {
	var payload EnrichPayload
	if err := job.Decode(&payload); err != nil {
		return resilience.Permanent(err)
	}
	log := zap.L().With(zap.String("lead_id", payload.LeadID))

	lead, err := e.store.GetLead(ctx, payload.LeadID)
	if err != nil {
		return eris.Wrap(err, "enrich: load lead")
	}
	if lead == nil {
		log.Info("enrichment skipped: lead missing")
		return nil
	}
	if !lead.Status.Active() {
		log.Info("enrichment skipped: lead in terminal status",
			zap.String("status", string(lead.Status)))
		return nil
	}

	acc := NewAccumulator(lead)
	e.fromRegistry(ctx, log, lead, acc)
	e.fromPaid(ctx, log, lead, acc)
	e.fromPlaces(ctx, log, lead, acc)

	if patch := acc.Patch(); !patch.Empty() {
		if err := e.store.ApplyLeadPatch(ctx, lead.ID, patch); err != nil {
			return eris.Wrap(err, "enrich: apply patch")
		}
	}

	if err := e.writeSummary(ctx, lead.ID, acc.Contributors()); err != nil {
		return err
	}
	if payload.BatchID != "" {
		if err := e.store.IncrementBatchCounter(ctx, payload.BatchID, store.CounterEnriched, 1); err != nil {
			return eris.Wrap(err, "enrich: bump batch counter")
		}
	}

	_, err = e.enqueue.Enqueue(ctx, JobScore, ScorePayload{
		LeadIDs: []string{lead.ID},
		BatchID: payload.BatchID,
	})
	if err != nil {
		return eris.Wrap(err, "enrich: enqueue scoring")
	}
	log.Info("enrichment completed", zap.Int("sources", len(acc.Contributors())))
	return nil
}

// logAttempt records one source attempt, success or not. Logging failures
// must not fail the job, only the store write of the entry itself can.
func (e *Enricher) logAttempt(ctx context.Context, log *zap.Logger, leadID string, src Source, endpoint string, started time.Time, credits int, attemptErr error) {
	entry := &model.EnrichmentLogEntry{
		LeadID:      leadID,
		Source:      string(src),
		Endpoint:    endpoint,
		Success:     attemptErr == nil,
		Latency:     time.Since(started),
		CreditsUsed: credits,
	}
	if attemptErr != nil {
		entry.Error = attemptErr.Error()
	}
	if err := e.store.CreateEnrichmentLog(ctx, entry); err != nil {
		log.Error("writing enrichment log failed",
			zap.String("source", string(src)),
			zap.Error(err),
		)
	}
}

func (e *Enricher) fromRegistry(ctx context.Context, log *zap.Logger, lead *model.Lead, acc *Accumulator) {
	if e.registry == nil {
		return
	}
	started := time.Now()
	company, err := e.registry.GetBySIREN(ctx, lead.SIREN)
	e.logAttempt(ctx, log, lead.ID, SourceRegistry, "/companies/"+lead.SIREN, started, 0, err)
	if err != nil {
		log.Warn("registry detail failed", zap.Error(err))
		return
	}
	if company == nil {
		return
	}

	acc.SetString(SourceRegistry, FieldName, company.DisplayName())
	acc.SetString(SourceRegistry, FieldLegalForm, company.LegalForm)
	acc.SetString(SourceRegistry, FieldSectorCode, company.ActivityCode)
	if addr := company.Address; addr != nil {
		acc.SetString(SourceRegistry, FieldAddress, joinAddress(addr.StreetNumber, addr.StreetType, addr.StreetLabel))
		acc.SetString(SourceRegistry, FieldPostalCode, addr.PostalCode)
		acc.SetString(SourceRegistry, FieldCity, addr.City)
	}
	if n := company.EmployeeCount(); n != nil {
		acc.SetInt(SourceRegistry, FieldEmployeeCount, *n)
	}
	if t := company.FoundedAt(); t != nil {
		acc.SetTime(SourceRegistry, FieldFoundedAt, *t)
	}
}

func (e *Enricher) fromPaid(ctx context.Context, log *zap.Logger, lead *model.Lead, acc *Accumulator) {
	if e.paid == nil {
		return
	}
	started := time.Now()
	company, err := e.paid.GetBySIREN(ctx, lead.SIREN)
	e.logAttempt(ctx, log, lead.ID, SourcePaid, "/entreprise", started, 1, err)
	if err != nil {
		log.Warn("paid source failed", zap.Error(err))
		return
	}
	if company == nil {
		return
	}

	acc.SetString(SourcePaid, FieldSIRET, company.SIRET())
	acc.SetString(SourcePaid, FieldName, company.DisplayName())
	acc.SetString(SourcePaid, FieldLegalForm, company.LegalForm)
	acc.SetString(SourcePaid, FieldSectorCode, company.SectorCode)
	acc.SetString(SourcePaid, FieldSectorLabel, company.SectorLabel)
	acc.SetString(SourcePaid, FieldWebsite, company.Website)
	acc.SetString(SourcePaid, FieldPhone, company.Phone)
	if ho := company.HeadOffice; ho != nil {
		acc.SetString(SourcePaid, FieldAddress, ho.Address)
		acc.SetString(SourcePaid, FieldPostalCode, ho.PostalCode)
		acc.SetString(SourcePaid, FieldCity, ho.City)
		acc.SetString(SourcePaid, FieldRegion, ho.Region)
	}
	if company.Workforce != nil {
		acc.SetInt(SourcePaid, FieldEmployeeCount, *company.Workforce)
	}
	if company.Revenue != nil {
		acc.SetFloat(SourcePaid, FieldRevenue, *company.Revenue)
	}
	if t := company.FoundedAt(); t != nil {
		acc.SetTime(SourcePaid, FieldFoundedAt, *t)
	}

	for _, officer := range company.Officers {
		if officer.LastName == "" {
			continue
		}
		d := model.Director{LeadID: lead.ID, LastName: officer.LastName}
		setIf(&d.FirstName, officer.FirstName)
		setIf(&d.Role, officer.Role)
		setIf(&d.Email, officer.Email)
		setIf(&d.Phone, officer.Phone)
		if t, err := time.Parse("2006-01-02", officer.BirthDate); err == nil {
			d.BirthDate = &t
		}
		if err := e.store.UpsertDirector(ctx, d); err != nil {
			log.Warn("director upsert failed",
				zap.String("last_name", officer.LastName),
				zap.Error(err),
			)
		}
	}
}

func (e *Enricher) fromPlaces(ctx context.Context, log *zap.Logger, lead *model.Lead, acc *Accumulator) {
	if e.places == nil {
		return
	}
	started := time.Now()
	lookup, err := e.places.SearchCompany(ctx, acc.CurrentName(), acc.CurrentCity())
	credits := 0
	if lookup != nil {
		credits = lookup.CreditsUsed
	}
	e.logAttempt(ctx, log, lead.ID, SourcePlaces, "/textsearch/json", started, credits, err)
	if err != nil {
		log.Warn("places lookup failed", zap.Error(err))
		return
	}
	if lookup.Place == nil {
		return
	}

	place := lookup.Place
	acc.SetString(SourcePlaces, FieldPlaceID, place.PlaceID)
	acc.SetBool(SourcePlaces, FieldHasPresence, true)
	acc.SetString(SourcePlaces, FieldWebsite, place.Website)
	acc.SetString(SourcePlaces, FieldPhone, place.BestPhone())
	if place.Rating != nil {
		acc.SetFloat(SourcePlaces, FieldRating, *place.Rating)
	}
}

func (e *Enricher) writeSummary(ctx context.Context, leadID string, contributors []Source) error {
	names := make([]string, len(contributors))
	for i, src := range contributors {
		names[i] = string(src)
	}
	content := "No source contributed new data"
	if len(names) > 0 {
		content = "Sources: " + strings.Join(names, ", ")
	}
	err := e.store.CreateActivity(ctx, &model.Activity{
		LeadID:   leadID,
		Type:     model.ActivityEnrichment,
		Title:    "Enrichment completed",
		Content:  &content,
		ActorID:  model.SystemActorID,
		Metadata: map[string]any{"sources": names},
	})
	return eris.Wrap(err, "enrich: write summary activity")
}
