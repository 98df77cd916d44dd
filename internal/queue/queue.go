// Package queue implements a durable Postgres-backed job queue. Jobs
// survive process restarts, are claimed with FOR UPDATE SKIP LOCKED so
// concurrent workers never double-process, and retry with a fixed delay
// until their retry budget runs out.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/leadgrid/prospector/internal/db"
	"github.com/leadgrid/prospector/internal/resilience"
)

// Job states mirror the jobs.state column.
const (
	StateCreated   = "created"
	StateRetry     = "retry"
	StateActive    = "active"
	StateCompleted = "completed"
	StateFailed    = "failed"
)

// Job is one unit of queued work.
type Job struct {
	ID         string
	Name       string
	Payload    []byte
	RetryCount int
	RetryLimit int
}

// Decode unmarshals the job payload into v.
func (j *Job) Decode(v any) error {
	if len(j.Payload) == 0 {
		return nil
	}
	return eris.Wrapf(json.Unmarshal(j.Payload, v), "queue: decode payload of %s", j.Name)
}

// Config tunes polling and retry behavior.
type Config struct {
	PollInterval time.Duration
	RetryLimit   int
	RetryDelay   time.Duration
}

// Queue enqueues and claims jobs against a shared database pool.
type Queue struct {
	pool db.Pool
	cfg  Config
}

// New creates a Queue. Zero config fields fall back to sane values.
func New(pool db.Pool, cfg Config) *Queue {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.RetryLimit <= 0 {
		cfg.RetryLimit = 2
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 30 * time.Second
	}
	return &Queue{pool: pool, cfg: cfg}
}

// Enqueue inserts a job ready to run immediately and returns its ID.
func (q *Queue) Enqueue(ctx context.Context, name string, payload any) (string, error) {
	return q.EnqueueAfter(ctx, name, payload, 0)
}

// EnqueueAfter inserts a job that becomes claimable after the delay.
func (q *Queue) EnqueueAfter(ctx context.Context, name string, payload any, delay time.Duration) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", eris.Wrapf(err, "queue: marshal payload of %s", name)
	}
	if payload == nil {
		body = []byte("{}")
	}
	id := uuid.NewString()
	_, err = q.pool.Exec(ctx, `
		INSERT INTO jobs (id, name, payload, retry_limit, start_after)
		VALUES ($1, $2, $3, $4, now() + make_interval(secs => $5))`,
		id, name, body, q.cfg.RetryLimit, delay.Seconds(),
	)
	if err != nil {
		return "", eris.Wrapf(err, "queue: enqueue %s", name)
	}
	return id, nil
}

// Claim atomically takes the oldest runnable job with the given name, or
// returns nil when there is nothing to do. The row lock is held only for
// the claim transaction; the job itself runs unlocked in state active.
func (q *Queue) Claim(ctx context.Context, name string) (*Job, error) {
	tx, err := q.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "queue: claim: begin")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var j Job
	err = tx.QueryRow(ctx, `
		SELECT id, name, payload, retry_count, retry_limit
		FROM jobs
		WHERE name = $1
		AND state = ANY($2)
		AND start_after <= now()
		ORDER BY created_at
		LIMIT 1
		FOR UPDATE SKIP LOCKED`,
		name, []string{StateCreated, StateRetry},
	).Scan(&j.ID, &j.Name, &j.Payload, &j.RetryCount, &j.RetryLimit)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "queue: claim %s", name)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE jobs SET state = $1, started_at = now() WHERE id = $2`,
		StateActive, j.ID,
	); err != nil {
		return nil, eris.Wrapf(err, "queue: activate job %s", j.ID)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, eris.Wrap(err, "queue: claim: commit")
	}
	return &j, nil
}

// Complete marks a job done.
func (q *Queue) Complete(ctx context.Context, jobID string) error {
	_, err := q.pool.Exec(ctx, `
		UPDATE jobs SET state = $1, completed_at = now() WHERE id = $2`,
		StateCompleted, jobID,
	)
	return eris.Wrapf(err, "queue: complete job %s", jobID)
}

// Fail records a handler failure. Transient failures with remaining budget
// go back to retry after the configured delay; permanent failures and
// exhausted budgets land in failed. Permanent errors never consume a retry.
func (q *Queue) Fail(ctx context.Context, job *Job, cause error) error {
	msg := cause.Error()
	if resilience.IsPermanent(cause) || job.RetryCount >= job.RetryLimit {
		_, err := q.pool.Exec(ctx, `
			UPDATE jobs SET state = $1, error = $2, completed_at = now() WHERE id = $3`,
			StateFailed, msg, job.ID,
		)
		return eris.Wrapf(err, "queue: fail job %s", job.ID)
	}
	_, err := q.pool.Exec(ctx, `
		UPDATE jobs SET state = $1, error = $2, retry_count = retry_count + 1,
			start_after = now() + make_interval(secs => $3)
		WHERE id = $4`,
		StateRetry, msg, q.cfg.RetryDelay.Seconds(), job.ID,
	)
	return eris.Wrapf(err, "queue: schedule retry of job %s", job.ID)
}

// RecoverStale requeues jobs left active by a crashed worker. Anything
// active longer than the threshold goes back to retry without consuming
// budget.
func (q *Queue) RecoverStale(ctx context.Context, olderThan time.Duration) (int, error) {
	tag, err := q.pool.Exec(ctx, `
		UPDATE jobs SET state = $1, start_after = now()
		WHERE state = $2 AND started_at < now() - make_interval(secs => $3)`,
		StateRetry, StateActive, olderThan.Seconds(),
	)
	if err != nil {
		return 0, eris.Wrap(err, "queue: recover stale jobs")
	}
	return int(tag.RowsAffected()), nil
}
