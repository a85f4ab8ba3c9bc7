package scheduler_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/vaultrun/internal/scheduler"
)

func TestQueueEnqueueDequeueRoundTrip(t *testing.T) {
	client, mock := redismock.NewClientMock()
	q := scheduler.NewQueue(client, "jobs", zerolog.Nop())

	mock.Regexp().ExpectRPush("jobs", `.*"type":"ingest_wallets".*`).SetVal(1)

	err := q.Enqueue(context.Background(), scheduler.Job{Type: scheduler.JobIngestWallets})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestQueueDequeueTimeout(t *testing.T) {
	client, mock := redismock.NewClientMock()
	q := scheduler.NewQueue(client, "jobs", zerolog.Nop())

	mock.ExpectBLPop(time.Second, "jobs").RedisNil()

	job, ok, err := q.Dequeue(context.Background(), time.Second)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, scheduler.Job{}, job)
}

func TestQueueDequeueReturnsJob(t *testing.T) {
	client, mock := redismock.NewClientMock()
	q := scheduler.NewQueue(client, "jobs", zerolog.Nop())

	payload := `{"type":"build_ranking","enqueued_at":"2026-01-01T00:00:00Z"}`
	mock.ExpectBLPop(time.Second, "jobs").SetVal([]string{"jobs", payload})

	job, ok, err := q.Dequeue(context.Background(), time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, scheduler.JobBuildRanking, job.Type)
}

func TestQueueLen(t *testing.T) {
	client, mock := redismock.NewClientMock()
	q := scheduler.NewQueue(client, "jobs", zerolog.Nop())

	mock.ExpectLLen("jobs").SetVal(3)

	n, err := q.Len(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestDispatcherRoutesToRegisteredHandler(t *testing.T) {
	client, mock := redismock.NewClientMock()
	q := scheduler.NewQueue(client, "jobs", zerolog.Nop())
	d := scheduler.NewDispatcher(q, zerolog.Nop())

	handled := make(chan scheduler.JobType, 1)
	d.Register(scheduler.JobComputeMetrics, func(ctx context.Context, job scheduler.Job) error {
		handled <- job.Type
		return nil
	})

	payload := `{"type":"compute_metrics","enqueued_at":"2026-01-01T00:00:00Z"}`
	mock.ExpectBLPop(5*time.Second, "jobs").SetVal([]string{"jobs", payload})
	mock.ExpectBLPop(5*time.Second, "jobs").RedisNil()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	select {
	case jobType := <-handled:
		assert.Equal(t, scheduler.JobComputeMetrics, jobType)
	case <-time.After(time.Second):
		t.Fatal("handler was not invoked")
	}

	<-done
}

func TestDispatcherSkipsUnknownJobType(t *testing.T) {
	client, mock := redismock.NewClientMock()
	q := scheduler.NewQueue(client, "jobs", zerolog.Nop())
	d := scheduler.NewDispatcher(q, zerolog.Nop())

	payload := `{"type":"unregistered","enqueued_at":"2026-01-01T00:00:00Z"}`
	mock.ExpectBLPop(5*time.Second, "jobs").SetVal([]string{"jobs", payload})
	mock.ExpectBLPop(5*time.Second, "jobs").RedisNil()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	err := d.Run(ctx)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestProducerEnqueuesOnEachCadence(t *testing.T) {
	client, mock := redismock.NewClientMock()
	q := scheduler.NewQueue(client, "jobs", zerolog.Nop())

	mock.Regexp().ExpectRPush("jobs", `.*"type":"ingest_wallets".*`).SetVal(1)

	p := scheduler.NewProducer(q, scheduler.Cadence{
		IngestInterval: 20 * time.Millisecond,
		ScoreInterval:  time.Hour,
		RankInterval:   time.Hour,
	}, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := p.Run(ctx)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}
