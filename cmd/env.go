package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/leadgrid/prospector/internal/lifecycle"
	"github.com/leadgrid/prospector/internal/pipeline"
	"github.com/leadgrid/prospector/internal/queue"
	"github.com/leadgrid/prospector/internal/store"
	"github.com/leadgrid/prospector/pkg/pappers"
	"github.com/leadgrid/prospector/pkg/places"
	"github.com/leadgrid/prospector/pkg/rne"
)

// appEnv holds the store, queue and source clients shared by the worker,
// serve and one-shot commands.
type appEnv struct {
	Store    *store.PostgresStore
	Queue    *queue.Queue
	Registry rne.Client     // nil when registry credentials are absent
	Paid     pappers.Client // nil when no API key is configured
	Places   places.Client  // nil when no API key is configured
}

// Close releases resources held by the environment.
func (e *appEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initEnv connects the store, runs migrations and builds the queue plus
// whatever source clients are configured. Callers should defer env.Close().
func initEnv(ctx context.Context) (*appEnv, error) {
	if cfg.Store.DatabaseURL == "" {
		return nil, eris.New("store.database_url is not configured")
	}

	st, err := store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
		MaxConns: cfg.Store.MaxConns,
		MinConns: cfg.Store.MinConns,
	})
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}

	q := queue.New(st.Pool(), queue.Config{
		PollInterval: time.Duration(cfg.Queue.PollIntervalSecs) * time.Second,
		RetryLimit:   cfg.Queue.RetryLimit,
		RetryDelay:   time.Duration(cfg.Queue.RetryDelaySecs) * time.Second,
	})

	env := &appEnv{Store: st, Queue: q}

	if cfg.RNE.Username != "" && cfg.RNE.Password != "" {
		env.Registry = rne.NewClient(cfg.RNE.Username, cfg.RNE.Password,
			rne.WithBaseURL(cfg.RNE.BaseURL),
			rne.WithRateLimit(cfg.RNE.RPS),
		)
	}
	if cfg.Pappers.APIKey != "" {
		env.Paid = pappers.NewClient(cfg.Pappers.APIKey,
			pappers.WithBaseURL(cfg.Pappers.BaseURL),
			pappers.WithRateLimit(cfg.Pappers.RPS),
		)
	}
	if cfg.Places.APIKey != "" {
		env.Places = places.NewClient(cfg.Places.APIKey,
			places.WithBaseURL(cfg.Places.BaseURL),
			places.WithLocale(cfg.Places.Region, cfg.Places.Language),
			places.WithRateLimit(cfg.Places.RPS),
		)
	}

	return env, nil
}

// stages builds the four pipeline handlers against the environment.
func (e *appEnv) stages() (*pipeline.Detector, *pipeline.Enricher, *pipeline.ScoreStage, *pipeline.Assigner) {
	detector := pipeline.NewDetector(e.Store, e.Registry, e.Queue, pipeline.DetectorConfig{
		PageSize:    cfg.Detection.PageSize,
		DaysBack:    cfg.Detection.DaysBack,
		NAFCodes:    cfg.Detection.NAFCodes,
		Departments: cfg.Detection.Departments,
		LegalForms:  cfg.Detection.LegalForms,
	})
	enricher := pipeline.NewEnricher(e.Store, e.Registry, e.Paid, e.Places, e.Queue)
	scoreStage := pipeline.NewScoreStage(e.Store, lifecycle.NewMachine(e.Store), e.Queue, pipeline.ScorerConfig{
		QualifyThreshold: cfg.Scoring.QualifyThreshold,
		AutoQualify:      cfg.Scoring.AutoQualify,
		AutoAssign:       cfg.Assignment.AutoAssign,
	})
	assigner := pipeline.NewAssigner(e.Store, pipeline.AssignerConfig{
		HotThreshold: cfg.Scoring.HotThreshold,
	})
	return detector, enricher, scoreStage, assigner
}
