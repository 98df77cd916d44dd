package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSubscribeConcurrencyFloor(t *testing.T) {
	t.Parallel()

	w := NewWorker(New(nil, Config{}), time.UTC, 0)
	w.Subscribe("detect-companies", 0, func(context.Context, *Job) error { return nil })
	require.Len(t, w.subs, 1)
	assert.Equal(t, 1, w.subs[0].concurrency)
}

func TestScheduleRejectsBadSpec(t *testing.T) {
	t.Parallel()

	w := NewWorker(New(nil, Config{}), time.UTC, 0)
	assert.Error(t, w.Schedule("not a cron spec", "detect-companies", nil))
	assert.NoError(t, w.Schedule("0 6 * * *", "detect-companies", nil))
}

func TestDispatchSuccessCompletesJob(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`UPDATE jobs SET state = \$1, completed_at = now\(\)`).
		WithArgs(StateCompleted, "job-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	w := NewWorker(New(mock, Config{}), time.UTC, 0)
	var handled bool
	sub := subscription{name: "score-companies", concurrency: 1, handler: func(ctx context.Context, j *Job) error {
		handled = true
		return nil
	}}

	w.dispatch(context.Background(), zap.NewNop(), sub, &Job{ID: "job-1", Name: "score-companies"})
	assert.True(t, handled)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDispatchFailureRoutesThroughRetryPolicy(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`UPDATE jobs SET state = \$1, error = \$2, retry_count = retry_count \+ 1`).
		WithArgs(StateRetry, "transient blip", float64(30), "job-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	w := NewWorker(New(mock, Config{RetryDelay: 30 * time.Second}), time.UTC, 0)
	sub := subscription{name: "enrich-company", concurrency: 1, handler: func(ctx context.Context, j *Job) error {
		return errors.New("transient blip")
	}}

	w.dispatch(context.Background(), zap.NewNop(), sub, &Job{ID: "job-1", Name: "enrich-company", RetryLimit: 2})
	assert.NoError(t, mock.ExpectationsWereMet())
}
