// Package scheduler publishes and dispatches the periodic ingest/score/rank
// cycle jobs on a Redis-backed queue, decoupling cadence from execution so
// cmd/analytics can wire concrete handlers without the scheduler knowing
// about ingestion, metrics, or ranking internals.
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// JobType names one of the periodic analytics cycle jobs.
type JobType string

const (
	JobIngestWallets  JobType = "ingest_wallets"
	JobComputeMetrics JobType = "compute_metrics"
	JobBuildRanking   JobType = "build_ranking"
)

// Job is one unit of work placed on the queue.
type Job struct {
	Type       JobType        `json:"type"`
	Payload    map[string]any `json:"payload,omitempty"`
	EnqueuedAt time.Time      `json:"enqueued_at"`
}

// Queue is a Redis list used as a FIFO job queue (RPUSH/BLPOP).
type Queue struct {
	client *redis.Client
	key    string
	log    zerolog.Logger
}

// NewQueue constructs a Queue bound to one Redis list key.
func NewQueue(client *redis.Client, key string, log zerolog.Logger) *Queue {
	return &Queue{client: client, key: key, log: log.With().Str("component", "scheduler_queue").Str("key", key).Logger()}
}

// Enqueue appends a job to the tail of the list.
func (q *Queue) Enqueue(ctx context.Context, job Job) error {
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now()
	}
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("scheduler: marshal job: %w", err)
	}
	if err := q.client.RPush(ctx, q.key, data).Err(); err != nil {
		return fmt.Errorf("scheduler: enqueue job: %w", err)
	}
	q.log.Debug().Str("job_type", string(job.Type)).Msg("job enqueued")
	return nil
}

// Dequeue blocks up to timeout for the next job at the head of the list.
// ok is false on timeout with no error.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (job Job, ok bool, err error) {
	res, err := q.client.BLPop(ctx, timeout, q.key).Result()
	if err == redis.Nil {
		return Job{}, false, nil
	}
	if err != nil {
		return Job{}, false, fmt.Errorf("scheduler: dequeue job: %w", err)
	}
	// BLPop returns [key, value].
	if len(res) != 2 {
		return Job{}, false, fmt.Errorf("scheduler: unexpected BLPOP reply shape")
	}
	if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
		return Job{}, false, fmt.Errorf("scheduler: unmarshal job: %w", err)
	}
	return job, true, nil
}

// Len reports the number of jobs currently queued, used by the health
// endpoint's backlog-size reporting.
func (q *Queue) Len(ctx context.Context) (int64, error) {
	n, err := q.client.LLen(ctx, q.key).Result()
	if err != nil {
		return 0, fmt.Errorf("scheduler: queue length: %w", err)
	}
	return n, nil
}

// Cadence configures how often each periodic job type is enqueued.
type Cadence struct {
	IngestInterval time.Duration
	ScoreInterval  time.Duration
	RankInterval   time.Duration
}

// DefaultCadence mirrors the teacher's scan-job cadence philosophy: a
// frequent "hot" job, a slower "warm" job, and a still-slower aggregate job.
func DefaultCadence() Cadence {
	return Cadence{
		IngestInterval: 5 * time.Minute,
		ScoreInterval:  15 * time.Minute,
		RankInterval:   30 * time.Minute,
	}
}

// Producer enqueues each periodic job type on its own ticker until ctx is
// cancelled.
type Producer struct {
	queue   *Queue
	cadence Cadence
	log     zerolog.Logger
}

// NewProducer constructs a Producer.
func NewProducer(queue *Queue, cadence Cadence, log zerolog.Logger) *Producer {
	return &Producer{queue: queue, cadence: cadence, log: log.With().Str("component", "scheduler_producer").Logger()}
}

// Run enqueues ingest/score/rank jobs on their configured cadences until the
// context is cancelled.
func (p *Producer) Run(ctx context.Context) error {
	ingestTicker := time.NewTicker(p.cadence.IngestInterval)
	scoreTicker := time.NewTicker(p.cadence.ScoreInterval)
	rankTicker := time.NewTicker(p.cadence.RankInterval)
	defer ingestTicker.Stop()
	defer scoreTicker.Stop()
	defer rankTicker.Stop()

	p.log.Info().
		Dur("ingest_interval", p.cadence.IngestInterval).
		Dur("score_interval", p.cadence.ScoreInterval).
		Dur("rank_interval", p.cadence.RankInterval).
		Msg("scheduler producer starting")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ingestTicker.C:
			p.enqueue(ctx, JobIngestWallets)
		case <-scoreTicker.C:
			p.enqueue(ctx, JobComputeMetrics)
		case <-rankTicker.C:
			p.enqueue(ctx, JobBuildRanking)
		}
	}
}

func (p *Producer) enqueue(ctx context.Context, t JobType) {
	if err := p.queue.Enqueue(ctx, Job{Type: t}); err != nil {
		p.log.Error().Err(err).Str("job_type", string(t)).Msg("failed to enqueue scheduled job")
	}
}

// Handler processes one dequeued job.
type Handler func(ctx context.Context, job Job) error

// Dispatcher pulls jobs off the queue and routes them to registered
// handlers by job type.
type Dispatcher struct {
	queue    *Queue
	handlers map[JobType]Handler
	log      zerolog.Logger
}

// NewDispatcher constructs a Dispatcher with no handlers registered.
func NewDispatcher(queue *Queue, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		queue:    queue,
		handlers: make(map[JobType]Handler),
		log:      log.With().Str("component", "scheduler_dispatcher").Logger(),
	}
}

// Register binds a handler to a job type, replacing any prior handler.
func (d *Dispatcher) Register(t JobType, h Handler) {
	d.handlers[t] = h
}

// Run dequeues and dispatches jobs until ctx is cancelled. A handler error
// is logged; it never stops the dispatch loop.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.log.Info().Int("handlers", len(d.handlers)).Msg("scheduler dispatcher starting")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		job, ok, err := d.queue.Dequeue(ctx, 5*time.Second)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			d.log.Error().Err(err).Msg("dequeue failed")
			continue
		}
		if !ok {
			continue
		}

		handler, known := d.handlers[job.Type]
		if !known {
			d.log.Warn().Str("job_type", string(job.Type)).Msg("no handler registered for job type")
			continue
		}

		start := time.Now()
		if err := handler(ctx, job); err != nil {
			d.log.Error().Err(err).Str("job_type", string(job.Type)).Dur("elapsed", time.Since(start)).Msg("job handler failed")
			continue
		}
		d.log.Info().Str("job_type", string(job.Type)).Dur("elapsed", time.Since(start)).Msg("job handled")
	}
}
