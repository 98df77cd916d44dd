package queue

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Handler processes one claimed job. Returning an error sends the job
// through the retry policy; wrap with resilience.Permanent to fail it
// outright.
type Handler func(ctx context.Context, job *Job) error

type subscription struct {
	name        string
	concurrency int
	handler     Handler
}

// Worker polls subscribed job names and dispatches claimed jobs to their
// handlers. One Worker process runs all pipeline stages; per-name
// concurrency bounds how many jobs of that name run at once.
type Worker struct {
	queue        *Queue
	cron         *cron.Cron
	subs         []subscription
	drainTimeout time.Duration
	staleAfter   time.Duration
}

// NewWorker creates a Worker scheduling cron entries in the given
// location.
func NewWorker(q *Queue, loc *time.Location, drainTimeout time.Duration) *Worker {
	if loc == nil {
		loc = time.UTC
	}
	if drainTimeout <= 0 {
		drainTimeout = 30 * time.Second
	}
	return &Worker{
		queue:        q,
		cron:         cron.New(cron.WithLocation(loc)),
		drainTimeout: drainTimeout,
		staleAfter:   15 * time.Minute,
	}
}

// Subscribe registers a handler for a job name with the given concurrency.
// Concurrency below 1 is treated as 1.
func (w *Worker) Subscribe(name string, concurrency int, h Handler) {
	if concurrency < 1 {
		concurrency = 1
	}
	w.subs = append(w.subs, subscription{name: name, concurrency: concurrency, handler: h})
}

// Schedule registers a cron entry that enqueues the named job.
func (w *Worker) Schedule(spec, name string, payload any) error {
	_, err := w.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if _, err := w.queue.Enqueue(ctx, name, payload); err != nil {
			zap.L().Error("scheduled enqueue failed",
				zap.String("job", name),
				zap.Error(err),
			)
			return
		}
		zap.L().Info("scheduled job enqueued", zap.String("job", name))
	})
	return eris.Wrapf(err, "queue: schedule %s (%s)", name, spec)
}

// Run starts the cron scheduler and the polling goroutines, then blocks
// until the context is cancelled. In-flight jobs get the drain timeout to
// finish before their contexts are cut.
func (w *Worker) Run(ctx context.Context) error {
	if n, err := w.queue.RecoverStale(ctx, w.staleAfter); err != nil {
		zap.L().Warn("stale job recovery failed", zap.Error(err))
	} else if n > 0 {
		zap.L().Info("requeued stale jobs", zap.Int("count", n))
	}

	w.cron.Start()

	// Jobs run on a context that outlives ctx by the drain timeout, so a
	// shutdown signal stops claiming immediately but lets running
	// handlers finish.
	jobCtx, cancelJobs := context.WithCancel(context.Background())
	defer cancelJobs()

	g, pollCtx := errgroup.WithContext(ctx)
	for _, sub := range w.subs {
		for i := 0; i < sub.concurrency; i++ {
			g.Go(func() error {
				return w.poll(pollCtx, jobCtx, sub)
			})
		}
	}

	<-pollCtx.Done()
	cronCtx := w.cron.Stop()

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	select {
	case err := <-done:
		<-cronCtx.Done()
		if err != nil && !eris.Is(err, context.Canceled) {
			return err
		}
		return nil
	case <-time.After(w.drainTimeout):
		cancelJobs()
		<-done
		return eris.New("queue: drain timeout exceeded")
	}
}

func (w *Worker) poll(pollCtx, jobCtx context.Context, sub subscription) error {
	log := zap.L().With(zap.String("job", sub.name))
	ticker := time.NewTicker(w.queue.cfg.PollInterval)
	defer ticker.Stop()

	for {
		// Drain the backlog before sleeping again.
		for {
			if pollCtx.Err() != nil {
				return pollCtx.Err()
			}
			job, err := w.queue.Claim(pollCtx, sub.name)
			if err != nil {
				log.Error("claim failed", zap.Error(err))
				break
			}
			if job == nil {
				break
			}
			w.dispatch(jobCtx, log, sub, job)
		}

		select {
		case <-pollCtx.Done():
			return pollCtx.Err()
		case <-ticker.C:
		}
	}
}

func (w *Worker) dispatch(ctx context.Context, log *zap.Logger, sub subscription, job *Job) {
	start := time.Now()
	log.Info("job started",
		zap.String("job_id", job.ID),
		zap.Int("retry_count", job.RetryCount),
	)

	err := sub.handler(ctx, job)
	if err != nil {
		log.Warn("job failed",
			zap.String("job_id", job.ID),
			zap.Duration("took", time.Since(start)),
			zap.Error(err),
		)
		if ferr := w.queue.Fail(ctx, job, err); ferr != nil {
			log.Error("recording job failure failed",
				zap.String("job_id", job.ID),
				zap.Error(ferr),
			)
		}
		return
	}

	if cerr := w.queue.Complete(ctx, job.ID); cerr != nil {
		log.Error("recording job completion failed",
			zap.String("job_id", job.ID),
			zap.Error(cerr),
		)
		return
	}
	log.Info("job completed",
		zap.String("job_id", job.ID),
		zap.Duration("took", time.Since(start)),
	)
}
