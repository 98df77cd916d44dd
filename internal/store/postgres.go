package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/leadgrid/prospector/internal/db"
	"github.com/leadgrid/prospector/internal/lifecycle"
	"github.com/leadgrid/prospector/internal/model"
	"github.com/leadgrid/prospector/internal/scorer"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32
	MinConns int32
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool. Used by tests and the queue,
// which share one pool with the store.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Pool returns the underlying database pool for subsystems that need
// direct query access (the job queue, seeding).
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS operators (
	id         TEXT PRIMARY KEY,
	email      TEXT NOT NULL UNIQUE,
	name       TEXT NOT NULL,
	role       TEXT NOT NULL,
	is_active  BOOLEAN NOT NULL DEFAULT TRUE,
	max_leads  INT NOT NULL DEFAULT 100,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS import_batches (
	id                 TEXT PRIMARY KEY,
	source             TEXT NOT NULL,
	status             TEXT NOT NULL DEFAULT 'PENDING',
	total_found        INT NOT NULL DEFAULT 0,
	new_inserted       INT NOT NULL DEFAULT 0,
	duplicates_skipped INT NOT NULL DEFAULT 0,
	enriched           INT NOT NULL DEFAULT 0,
	scored             INT NOT NULL DEFAULT 0,
	assigned           INT NOT NULL DEFAULT 0,
	errors             INT NOT NULL DEFAULT 0,
	error_details      TEXT,
	started_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	completed_at       TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS leads (
	id                TEXT PRIMARY KEY,
	siren             TEXT NOT NULL UNIQUE,
	siret             TEXT,
	name              TEXT NOT NULL,
	legal_form        TEXT,
	sector_code       TEXT,
	sector_label      TEXT,
	address           TEXT,
	postal_code       TEXT,
	city              TEXT,
	region            TEXT,
	website           TEXT,
	phone             TEXT,
	email             TEXT,
	employee_count    INT,
	revenue           DOUBLE PRECISION,
	founded_at        TIMESTAMPTZ,
	website_quality   INT,
	place_id          TEXT,
	has_presence      BOOLEAN NOT NULL DEFAULT FALSE,
	rating            DOUBLE PRECISION,
	score             INT NOT NULL DEFAULT 0,
	priority          INT NOT NULL DEFAULT 5,
	score_details     JSONB,
	status            TEXT NOT NULL DEFAULT 'NEW',
	assigned_to       TEXT REFERENCES operators(id),
	assigned_at       TIMESTAMPTZ,
	next_follow_up_at TIMESTAMPTZ,
	last_contacted_at TIMESTAMPTZ,
	opted_out         BOOLEAN NOT NULL DEFAULT FALSE,
	opted_out_at      TIMESTAMPTZ,
	import_batch_id   TEXT REFERENCES import_batches(id),
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_leads_status ON leads (status);
CREATE INDEX IF NOT EXISTS idx_leads_assigned_to ON leads (assigned_to);

CREATE TABLE IF NOT EXISTS directors (
	id         TEXT PRIMARY KEY,
	lead_id    TEXT NOT NULL REFERENCES leads(id) ON DELETE CASCADE,
	first_name TEXT,
	last_name  TEXT NOT NULL,
	role       TEXT,
	email      TEXT,
	phone      TEXT,
	birth_date TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_directors_identity
	ON directors (lead_id, last_name, COALESCE(first_name, ''));

CREATE TABLE IF NOT EXISTS activities (
	id         TEXT PRIMARY KEY,
	lead_id    TEXT NOT NULL REFERENCES leads(id) ON DELETE CASCADE,
	type       TEXT NOT NULL,
	title      TEXT NOT NULL,
	content    TEXT,
	actor_id   TEXT NOT NULL,
	metadata   JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_activities_lead ON activities (lead_id, created_at);

CREATE TABLE IF NOT EXISTS status_history (
	id          TEXT PRIMARY KEY,
	lead_id     TEXT NOT NULL REFERENCES leads(id) ON DELETE CASCADE,
	from_status TEXT,
	to_status   TEXT NOT NULL,
	reason      TEXT,
	changed_by  TEXT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_status_history_lead ON status_history (lead_id, created_at);

CREATE TABLE IF NOT EXISTS enrichment_logs (
	id           TEXT PRIMARY KEY,
	lead_id      TEXT NOT NULL REFERENCES leads(id) ON DELETE CASCADE,
	source       TEXT NOT NULL,
	endpoint     TEXT NOT NULL,
	success      BOOLEAN NOT NULL,
	response_ms  INT NOT NULL DEFAULT 0,
	credits_used INT NOT NULL DEFAULT 0,
	error        TEXT,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS naf_sectors (
	code          TEXT PRIMARY KEY,
	label         TEXT NOT NULL,
	score_bonus   INT NOT NULL DEFAULT 0,
	is_high_value BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS jobs (
	id           TEXT PRIMARY KEY,
	name         TEXT NOT NULL,
	payload      JSONB NOT NULL DEFAULT '{}',
	state        TEXT NOT NULL DEFAULT 'created',
	retry_count  INT NOT NULL DEFAULT 0,
	retry_limit  INT NOT NULL DEFAULT 2,
	error        TEXT,
	start_after  TIMESTAMPTZ NOT NULL DEFAULT now(),
	started_at   TIMESTAMPTZ,
	completed_at TIMESTAMPTZ,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_jobs_claim ON jobs (name, state, start_after);
`

// Migrate creates the schema and the system operator row.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresMigration); err != nil {
		return eris.Wrap(err, "postgres: migrate")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO operators (id, email, name, role, is_active, max_leads)
		VALUES ($1, 'system@prospector.local', 'System', $2, FALSE, 0)
		ON CONFLICT (id) DO NOTHING`,
		model.SystemActorID, string(model.RoleAdmin),
	)
	return eris.Wrap(err, "postgres: seed system operator")
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

const leadColumns = `id, siren, siret, name, legal_form, sector_code, sector_label,
	address, postal_code, city, region, website, phone, email,
	employee_count, revenue, founded_at, website_quality,
	place_id, has_presence, rating, score, priority, score_details,
	status, assigned_to, assigned_at, next_follow_up_at, last_contacted_at,
	opted_out, opted_out_at, import_batch_id, created_at, updated_at`

func scanLead(row pgx.Row) (*model.Lead, error) {
	var l model.Lead
	var details []byte
	err := row.Scan(
		&l.ID, &l.SIREN, &l.SIRET, &l.Name, &l.LegalForm, &l.SectorCode, &l.SectorLabel,
		&l.Address, &l.PostalCode, &l.City, &l.Region, &l.Website, &l.Phone, &l.Email,
		&l.EmployeeCount, &l.Revenue, &l.FoundedAt, &l.WebsiteQuality,
		&l.PlaceID, &l.HasPresence, &l.Rating, &l.Score, &l.Priority, &details,
		&l.Status, &l.AssignedTo, &l.AssignedAt, &l.NextFollowUpAt, &l.LastContactedAt,
		&l.OptedOut, &l.OptedOutAt, &l.ImportBatchID, &l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(details) > 0 {
		var d model.ScoreDetails
		if err := json.Unmarshal(details, &d); err != nil {
			return nil, eris.Wrap(err, "postgres: decode score details")
		}
		l.ScoreDetails = &d
	}
	return &l, nil
}

// CreateLead inserts a lead, its directors and the initial status history
// entry in one transaction. A SIREN conflict returns created=false with no
// error, so concurrent detection runs can race on the same company.
func (s *PostgresStore) CreateLead(ctx context.Context, lead *model.Lead, directors []model.Director) (bool, error) {
	if err := model.ValidateSIREN(lead.SIREN); err != nil {
		return false, err
	}
	if lead.ID == "" {
		lead.ID = uuid.NewString()
	}
	if lead.Status == "" {
		lead.Status = model.StatusNew
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, eris.Wrap(err, "postgres: create lead: begin")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		INSERT INTO leads (
			id, siren, siret, name, legal_form, sector_code, sector_label,
			address, postal_code, city, region, website, phone, email,
			employee_count, revenue, founded_at, status, import_batch_id
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			$8, $9, $10, $11, $12, $13, $14,
			$15, $16, $17, $18, $19
		) ON CONFLICT (siren) DO NOTHING`,
		lead.ID, lead.SIREN, lead.SIRET, lead.Name, lead.LegalForm, lead.SectorCode, lead.SectorLabel,
		lead.Address, lead.PostalCode, lead.City, lead.Region, lead.Website, lead.Phone, lead.Email,
		lead.EmployeeCount, lead.Revenue, lead.FoundedAt, string(lead.Status), lead.ImportBatchID,
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: create lead %s", lead.SIREN)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	for _, d := range directors {
		if _, err := tx.Exec(ctx, `
			INSERT INTO directors (id, lead_id, first_name, last_name, role, email, phone, birth_date)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (lead_id, last_name, COALESCE(first_name, '')) DO NOTHING`,
			uuid.NewString(), lead.ID, d.FirstName, d.LastName, d.Role, d.Email, d.Phone, d.BirthDate,
		); err != nil {
			return false, eris.Wrapf(err, "postgres: create director for lead %s", lead.SIREN)
		}
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO status_history (id, lead_id, from_status, to_status, changed_by)
		VALUES ($1, $2, NULL, $3, $4)`,
		uuid.NewString(), lead.ID, string(lead.Status), model.SystemActorID,
	); err != nil {
		return false, eris.Wrapf(err, "postgres: initial history for lead %s", lead.SIREN)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, eris.Wrap(err, "postgres: create lead: commit")
	}
	return true, nil
}

// GetLead fetches a lead by ID. A missing lead returns (nil, nil) so queued
// jobs can treat it as a documented no-op.
func (s *PostgresStore) GetLead(ctx context.Context, id string) (*model.Lead, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+leadColumns+` FROM leads WHERE id = $1`, id)
	lead, err := scanLead(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get lead %s", id)
	}
	return lead, nil
}

// ApplyLeadPatch writes the accumulated enrichment patch in one update.
func (s *PostgresStore) ApplyLeadPatch(ctx context.Context, leadID string, patch LeadPatch) error {
	var sets []string
	var args []any
	set := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	if patch.SIRET != nil {
		set("siret", *patch.SIRET)
	}
	if patch.Name != nil {
		set("name", *patch.Name)
	}
	if patch.LegalForm != nil {
		set("legal_form", *patch.LegalForm)
	}
	if patch.SectorCode != nil {
		set("sector_code", *patch.SectorCode)
	}
	if patch.SectorLabel != nil {
		set("sector_label", *patch.SectorLabel)
	}
	if patch.Address != nil {
		set("address", *patch.Address)
	}
	if patch.PostalCode != nil {
		set("postal_code", *patch.PostalCode)
	}
	if patch.City != nil {
		set("city", *patch.City)
	}
	if patch.Region != nil {
		set("region", *patch.Region)
	}
	if patch.Website != nil {
		set("website", *patch.Website)
	}
	if patch.Phone != nil {
		set("phone", *patch.Phone)
	}
	if patch.Email != nil {
		set("email", *patch.Email)
	}
	if patch.EmployeeCount != nil {
		set("employee_count", *patch.EmployeeCount)
	}
	if patch.Revenue != nil {
		set("revenue", *patch.Revenue)
	}
	if patch.FoundedAt != nil {
		set("founded_at", *patch.FoundedAt)
	}
	if patch.PlaceID != nil {
		set("place_id", *patch.PlaceID)
	}
	if patch.HasPresence != nil {
		set("has_presence", *patch.HasPresence)
	}
	if patch.Rating != nil {
		set("rating", *patch.Rating)
	}

	if len(sets) == 0 {
		return nil
	}

	args = append(args, leadID)
	sql := fmt.Sprintf("UPDATE leads SET %s, updated_at = now() WHERE id = $%d",
		strings.Join(sets, ", "), len(args))

	if _, err := s.pool.Exec(ctx, sql, args...); err != nil {
		return eris.Wrapf(err, "postgres: patch lead %s", leadID)
	}
	return nil
}

// SaveScore persists a scoring result.
func (s *PostgresStore) SaveScore(ctx context.Context, leadID string, score, priority int, details model.ScoreDetails) error {
	payload, err := json.Marshal(details)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal score details")
	}
	_, err = s.pool.Exec(ctx, `
		UPDATE leads SET score = $1, priority = $2, score_details = $3, updated_at = now()
		WHERE id = $4`,
		score, priority, payload, leadID,
	)
	return eris.Wrapf(err, "postgres: save score for lead %s", leadID)
}

// ListScoringCandidates loads leads for scoring with their
// director-contactability flag. With all=true it selects every lead still
// in NEW or TO_CONTACT; otherwise ids selects specific leads.
func (s *PostgresStore) ListScoringCandidates(ctx context.Context, ids []string, all bool) ([]ScoringCandidate, error) {
	hasContact := `EXISTS (
		SELECT 1 FROM directors d
		WHERE d.lead_id = leads.id
		AND (COALESCE(d.email, '') <> '' OR COALESCE(d.phone, '') <> ''))`

	var rows pgx.Rows
	var err error
	if all {
		rows, err = s.pool.Query(ctx,
			`SELECT `+leadColumns+`, `+hasContact+` FROM leads WHERE status = ANY($1)`,
			[]string{string(model.StatusNew), string(model.StatusToContact)},
		)
	} else {
		if len(ids) == 0 {
			return nil, nil
		}
		rows, err = s.pool.Query(ctx,
			`SELECT `+leadColumns+`, `+hasContact+` FROM leads WHERE id = ANY($1)`,
			ids,
		)
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list scoring candidates")
	}
	defer rows.Close()

	var out []ScoringCandidate
	for rows.Next() {
		var l model.Lead
		var details []byte
		var contact bool
		if err := rows.Scan(
			&l.ID, &l.SIREN, &l.SIRET, &l.Name, &l.LegalForm, &l.SectorCode, &l.SectorLabel,
			&l.Address, &l.PostalCode, &l.City, &l.Region, &l.Website, &l.Phone, &l.Email,
			&l.EmployeeCount, &l.Revenue, &l.FoundedAt, &l.WebsiteQuality,
			&l.PlaceID, &l.HasPresence, &l.Rating, &l.Score, &l.Priority, &details,
			&l.Status, &l.AssignedTo, &l.AssignedAt, &l.NextFollowUpAt, &l.LastContactedAt,
			&l.OptedOut, &l.OptedOutAt, &l.ImportBatchID, &l.CreatedAt, &l.UpdatedAt,
			&contact,
		); err != nil {
			return nil, eris.Wrap(err, "postgres: scan scoring candidate")
		}
		if len(details) > 0 {
			var d model.ScoreDetails
			if err := json.Unmarshal(details, &d); err != nil {
				return nil, eris.Wrap(err, "postgres: decode score details")
			}
			l.ScoreDetails = &d
		}
		out = append(out, ScoringCandidate{Lead: l, HasDirectorContact: contact})
	}
	return out, eris.Wrap(rows.Err(), "postgres: list scoring candidates")
}

// DeleteLead erases a lead. Directors, activities, history and enrichment
// logs cascade.
func (s *PostgresStore) DeleteLead(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM leads WHERE id = $1`, id)
	return eris.Wrapf(err, "postgres: delete lead %s", id)
}

// UpsertDirector inserts a director or fills missing contact fields on the
// existing row with the same name.
func (s *PostgresStore) UpsertDirector(ctx context.Context, d model.Director) error {
	id := d.ID
	if id == "" {
		id = uuid.NewString()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO directors (id, lead_id, first_name, last_name, role, email, phone, birth_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (lead_id, last_name, COALESCE(first_name, '')) DO UPDATE SET
			role = COALESCE(directors.role, EXCLUDED.role),
			email = COALESCE(directors.email, EXCLUDED.email),
			phone = COALESCE(directors.phone, EXCLUDED.phone),
			birth_date = COALESCE(directors.birth_date, EXCLUDED.birth_date)`,
		id, d.LeadID, d.FirstName, d.LastName, d.Role, d.Email, d.Phone, d.BirthDate,
	)
	return eris.Wrapf(err, "postgres: upsert director for lead %s", d.LeadID)
}

// ListOperatorsByRole returns active operators of a role with their live
// active-lead counts, ordered by account creation for deterministic ties.
func (s *PostgresStore) ListOperatorsByRole(ctx context.Context, role model.Role) ([]model.OperatorLoad, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT o.id, o.email, o.name, o.role, o.is_active, o.max_leads, o.created_at,
			(SELECT count(*) FROM leads l
			 WHERE l.assigned_to = o.id
			 AND l.status NOT IN ('CLIENT', 'LOST', 'DO_NOT_CONTACT')) AS active_leads
		FROM operators o
		WHERE o.role = $1 AND o.is_active
		ORDER BY o.created_at`,
		string(role),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list operators %s", role)
	}
	defer rows.Close()

	var out []model.OperatorLoad
	for rows.Next() {
		var ol model.OperatorLoad
		if err := rows.Scan(&ol.ID, &ol.Email, &ol.Name, &ol.Role, &ol.IsActive, &ol.MaxLeads, &ol.CreatedAt, &ol.ActiveLeads); err != nil {
			return nil, eris.Wrap(err, "postgres: scan operator")
		}
		out = append(out, ol)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list operators")
}

// AssignLead sets the assignee if and only if the lead is still unassigned
// and the operator has spare capacity. The capacity check and the update
// are one statement, so concurrent assignment runs cannot overbook a slot.
func (s *PostgresStore) AssignLead(ctx context.Context, leadID, operatorID string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE leads SET assigned_to = $2, assigned_at = now(), updated_at = now()
		WHERE id = $1
		AND assigned_to IS NULL
		AND (SELECT count(*) FROM leads l
			 WHERE l.assigned_to = $2
			 AND l.status NOT IN ('CLIENT', 'LOST', 'DO_NOT_CONTACT'))
			< (SELECT max_leads FROM operators WHERE id = $2 AND is_active)`,
		leadID, operatorID,
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: assign lead %s to %s", leadID, operatorID)
	}
	return tag.RowsAffected() == 1, nil
}

// RecordTransition atomically updates the lead's status, appends the
// history entry and appends the audit activity.
func (s *PostgresStore) RecordTransition(ctx context.Context, t lifecycle.Transition) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: transition: begin")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if t.OptOut {
		_, err = tx.Exec(ctx, `
			UPDATE leads SET status = $1, opted_out = TRUE, opted_out_at = now(), updated_at = now()
			WHERE id = $2`,
			string(t.To), t.LeadID,
		)
	} else {
		_, err = tx.Exec(ctx, `
			UPDATE leads SET status = $1, updated_at = now()
			WHERE id = $2`,
			string(t.To), t.LeadID,
		)
	}
	if err != nil {
		return eris.Wrapf(err, "postgres: transition: update lead %s", t.LeadID)
	}

	var from *string
	if t.From != nil {
		v := string(*t.From)
		from = &v
	}
	var reason *string
	if t.Reason != "" {
		reason = &t.Reason
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO status_history (id, lead_id, from_status, to_status, reason, changed_by)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		uuid.NewString(), t.LeadID, from, string(t.To), reason, t.Actor.ID,
	); err != nil {
		return eris.Wrapf(err, "postgres: transition: history for lead %s", t.LeadID)
	}

	meta, err := json.Marshal(map[string]any{"from": from, "to": string(t.To)})
	if err != nil {
		return eris.Wrap(err, "postgres: transition: marshal metadata")
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO activities (id, lead_id, type, title, content, actor_id, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		uuid.NewString(), t.LeadID, string(model.ActivityStatusChange),
		fmt.Sprintf("Status changed to %s", t.To), reason, t.Actor.ID, meta,
	); err != nil {
		return eris.Wrapf(err, "postgres: transition: activity for lead %s", t.LeadID)
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: transition: commit")
}

// CreateActivity appends an audit activity.
func (s *PostgresStore) CreateActivity(ctx context.Context, a *model.Activity) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	var meta []byte
	if a.Metadata != nil {
		var err error
		meta, err = json.Marshal(a.Metadata)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal activity metadata")
		}
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO activities (id, lead_id, type, title, content, actor_id, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		a.ID, a.LeadID, string(a.Type), a.Title, a.Content, a.ActorID, meta,
	)
	return eris.Wrapf(err, "postgres: create activity for lead %s", a.LeadID)
}

// CreateEnrichmentLog appends one source-attempt record.
func (s *PostgresStore) CreateEnrichmentLog(ctx context.Context, e *model.EnrichmentLogEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	var errText *string
	if e.Error != "" {
		v := model.TruncateEnrichmentError(e.Error)
		errText = &v
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO enrichment_logs (id, lead_id, source, endpoint, success, response_ms, credits_used, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.ID, e.LeadID, e.Source, e.Endpoint, e.Success, int(e.Latency.Milliseconds()), e.CreditsUsed, errText,
	)
	return eris.Wrapf(err, "postgres: enrichment log for lead %s", e.LeadID)
}

// CreateBatch inserts a new pending import batch.
func (s *PostgresStore) CreateBatch(ctx context.Context, source string) (*model.ImportBatch, error) {
	b := &model.ImportBatch{
		ID:     uuid.NewString(),
		Source: source,
		Status: model.BatchPending,
	}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO import_batches (id, source, status)
		VALUES ($1, $2, $3)
		RETURNING started_at`,
		b.ID, b.Source, string(b.Status),
	).Scan(&b.StartedAt)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create batch")
	}
	return b, nil
}

// GetBatch fetches a batch by ID; missing batches return (nil, nil).
func (s *PostgresStore) GetBatch(ctx context.Context, id string) (*model.ImportBatch, error) {
	var b model.ImportBatch
	err := s.pool.QueryRow(ctx, `
		SELECT id, source, status, total_found, new_inserted, duplicates_skipped,
			enriched, scored, assigned, errors, error_details, started_at, completed_at
		FROM import_batches WHERE id = $1`, id,
	).Scan(
		&b.ID, &b.Source, &b.Status, &b.TotalFound, &b.NewInserted, &b.DuplicatesSkipped,
		&b.Enriched, &b.Scored, &b.Assigned, &b.Errors, &b.ErrorDetails, &b.StartedAt, &b.CompletedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get batch %s", id)
	}
	return &b, nil
}

// MarkBatchRunning moves a batch to RUNNING.
func (s *PostgresStore) MarkBatchRunning(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE import_batches SET status = $1 WHERE id = $2`,
		string(model.BatchRunning), id,
	)
	return eris.Wrapf(err, "postgres: mark batch %s running", id)
}

// CompleteBatch writes final detection counters and marks the batch done.
func (s *PostgresStore) CompleteBatch(ctx context.Context, id string, c model.Counters) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE import_batches SET
			status = $1, total_found = $2, new_inserted = $3,
			duplicates_skipped = $4, errors = $5, completed_at = now()
		WHERE id = $6`,
		string(model.BatchCompleted), c.TotalFound, c.NewInserted, c.DuplicatesSkipped, c.Errors, id,
	)
	return eris.Wrapf(err, "postgres: complete batch %s", id)
}

// FailBatch records counters as they stood plus the run-level error.
func (s *PostgresStore) FailBatch(ctx context.Context, id string, c model.Counters, cause error) error {
	var details *string
	if cause != nil {
		v := cause.Error()
		details = &v
	}
	_, err := s.pool.Exec(ctx, `
		UPDATE import_batches SET
			status = $1, total_found = $2, new_inserted = $3,
			duplicates_skipped = $4, errors = $5, error_details = $6, completed_at = now()
		WHERE id = $7`,
		string(model.BatchFailed), c.TotalFound, c.NewInserted, c.DuplicatesSkipped, c.Errors, details, id,
	)
	return eris.Wrapf(err, "postgres: fail batch %s", id)
}

// IncrementBatchCounter bumps one pipeline counter.
func (s *PostgresStore) IncrementBatchCounter(ctx context.Context, id string, counter BatchCounter, delta int) error {
	var col string
	switch counter {
	case CounterEnriched:
		col = "enriched"
	case CounterScored:
		col = "scored"
	case CounterAssigned:
		col = "assigned"
	default:
		return eris.Errorf("postgres: unknown batch counter %q", counter)
	}
	sql := fmt.Sprintf(`UPDATE import_batches SET %s = %s + $1 WHERE id = $2`, col, col)
	_, err := s.pool.Exec(ctx, sql, delta, id)
	return eris.Wrapf(err, "postgres: increment %s on batch %s", col, id)
}

// ListSectors loads the high-value sector table.
func (s *PostgresStore) ListSectors(ctx context.Context) (scorer.SectorTable, error) {
	rows, err := s.pool.Query(ctx, `SELECT code, label, score_bonus, is_high_value FROM naf_sectors`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list sectors")
	}
	defer rows.Close()

	table := make(scorer.SectorTable)
	for rows.Next() {
		var sec scorer.Sector
		if err := rows.Scan(&sec.Code, &sec.Label, &sec.ScoreBonus, &sec.IsHighValue); err != nil {
			return nil, eris.Wrap(err, "postgres: scan sector")
		}
		if len(sec.Code) >= 2 {
			table[sec.Code[:2]] = sec
		}
	}
	return table, eris.Wrap(rows.Err(), "postgres: list sectors")
}
