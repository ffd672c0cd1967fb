package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// QueueViews is the Redis list key for view counting jobs.
	QueueViews = "worker:views"
	// QueueReplays is the Redis list key for replay upload jobs.
	QueueReplays = "worker:replays"
	// QueueDLQ is the dead-letter queue for failed jobs after retries.
	QueueDLQ = "worker:dlq"
	// MaxRetries is the number of times to retry a job before moving to DLQ.
	MaxRetries = 3
	// RetryBackoff is the delay between retries.
	RetryBackoff = 10 * time.Second
)

// JobType identifies the job kind.
type JobType string

const (
	JobTypeViewRecorded JobType = "view_recorded"
	JobTypeReplayUpload JobType = "replay_upload"
)

// ViewRecordedPayload is the payload for view counting jobs.
type ViewRecordedPayload struct {
	SessionID uuid.UUID `json:"session_id"`
	TicketID  uuid.UUID `json:"ticket_id"`
	At        time.Time `json:"at"`
}

// ReplayUploadPayload is the payload for replay upload jobs.
type ReplayUploadPayload struct {
	SessionID uuid.UUID `json:"session_id"`
	EventID   uuid.UUID `json:"event_id"`
	SourceURL string    `json:"source_url"`
}

// Job is a generic job envelope.
type Job struct {
	ID        string          `json:"id"`
	Type      JobType         `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Attempt   int             `json:"attempt"`
	CreatedAt time.Time       `json:"created_at"`
}

// Queue enqueues and dequeues jobs via Redis lists.
type Queue struct {
	client *redis.Client
	logger *zap.Logger
}

// NewQueue creates a new Redis-backed job queue.
func NewQueue(client *redis.Client, logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{client: client, logger: logger}
}

func listFor(t JobType) (string, error) {
	switch t {
	case JobTypeViewRecorded:
		return QueueViews, nil
	case JobTypeReplayUpload:
		return QueueReplays, nil
	}
	return "", fmt.Errorf("unknown job type: %s", t)
}

func (q *Queue) enqueue(ctx context.Context, t JobType, payload interface{}) (*Job, error) {
	list, err := listFor(t)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	job := &Job{
		ID:        uuid.New().String(),
		Type:      t,
		Payload:   body,
		CreatedAt: time.Now().UTC(),
	}
	raw, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("marshal job: %w", err)
	}
	if err := q.client.RPush(ctx, list, raw).Err(); err != nil {
		return nil, fmt.Errorf("rpush: %w", err)
	}
	return job, nil
}

// EnqueueViewRecorded enqueues a view counting job.
func (q *Queue) EnqueueViewRecorded(ctx context.Context, payload ViewRecordedPayload) error {
	job, err := q.enqueue(ctx, JobTypeViewRecorded, payload)
	if err != nil {
		return err
	}
	q.logger.Debug("enqueued view job", zap.String("job_id", job.ID), zap.String("session_id", payload.SessionID.String()))
	return nil
}

// EnqueueReplayUpload enqueues a replay upload job.
func (q *Queue) EnqueueReplayUpload(ctx context.Context, payload ReplayUploadPayload) error {
	job, err := q.enqueue(ctx, JobTypeReplayUpload, payload)
	if err != nil {
		return err
	}
	q.logger.Debug("enqueued replay upload job", zap.String("job_id", job.ID), zap.String("session_id", payload.SessionID.String()))
	return nil
}

// Dequeue blocks until a job is available on any queue, timeout elapses or ctx
// is done. A nil job with nil error means nothing arrived in time.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (*Job, error) {
	result, err := q.client.BLPop(ctx, timeout, QueueReplays, QueueViews).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	if len(result) < 2 {
		return nil, nil
	}
	var job Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		q.logger.Warn("invalid job payload", zap.String("queue", result[0]), zap.String("raw", result[1]), zap.Error(err))
		return nil, nil
	}
	return &job, nil
}

// Retry re-enqueues a job with incremented attempt. If attempt >= MaxRetries, pushes to DLQ instead.
func (q *Queue) Retry(ctx context.Context, job *Job) error {
	job.Attempt++
	raw, err := json.Marshal(job)
	if err != nil {
		return err
	}
	if job.Attempt >= MaxRetries {
		if err := q.client.RPush(ctx, QueueDLQ, raw).Err(); err != nil {
			q.logger.Error("dlq push failed", zap.Error(err), zap.String("job_id", job.ID))
			return err
		}
		q.logger.Warn("job moved to DLQ", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt))
		return nil
	}
	list, err := listFor(job.Type)
	if err != nil {
		return err
	}
	if err := q.client.RPush(ctx, list, raw).Err(); err != nil {
		return err
	}
	q.logger.Info("job retried", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt))
	return nil
}
