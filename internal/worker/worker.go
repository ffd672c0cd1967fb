package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eventpass/streamgate/internal/metrics"
	"github.com/eventpass/streamgate/pkg/queue"
	"github.com/eventpass/streamgate/pkg/storage"
)

// ErrReplayStorageDisabled is returned for replay jobs when no bucket is configured.
var ErrReplayStorageDisabled = errors.New("replay storage is not configured")

// Sessions applies job results to stream sessions.
type Sessions interface {
	RecordView(ctx context.Context, id uuid.UUID) error
	ReplayStored(ctx context.Context, id uuid.UUID, key string) error
}

// Uploader stores replay files.
type Uploader interface {
	UploadReplay(ctx context.Context, key, contentType string, body io.Reader, contentLength int64) error
}

// Source yields jobs and takes failed ones back.
type Source interface {
	Dequeue(ctx context.Context, timeout time.Duration) (*queue.Job, error)
	Retry(ctx context.Context, job *queue.Job) error
}

// Processor runs view counting and replay upload jobs.
type Processor struct {
	sessions    Sessions
	uploader    Uploader
	source      Source
	httpClient  *http.Client
	pollTimeout time.Duration
	backoff     time.Duration
	logger      *zap.Logger
}

// NewProcessor creates a job processor. uploader may be nil when replays are disabled.
func NewProcessor(sessions Sessions, uploader Uploader, source Source, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{
		sessions:    sessions,
		uploader:    uploader,
		source:      source,
		httpClient:  &http.Client{Timeout: 30 * time.Minute},
		pollTimeout: 5 * time.Second,
		backoff:     queue.RetryBackoff,
		logger:      logger,
	}
}

// SetTimings overrides the dequeue poll timeout and the pause after a failure.
func (p *Processor) SetTimings(poll, backoff time.Duration) {
	p.pollTimeout = poll
	p.backoff = backoff
}

// Process executes one job.
func (p *Processor) Process(ctx context.Context, job *queue.Job) error {
	switch job.Type {
	case queue.JobTypeViewRecorded:
		var payload queue.ViewRecordedPayload
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return fmt.Errorf("unmarshal payload: %w", err)
		}
		return p.sessions.RecordView(ctx, payload.SessionID)
	case queue.JobTypeReplayUpload:
		var payload queue.ReplayUploadPayload
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return fmt.Errorf("unmarshal payload: %w", err)
		}
		return p.uploadReplay(ctx, payload)
	}
	return fmt.Errorf("unknown job type: %s", job.Type)
}

func (p *Processor) uploadReplay(ctx context.Context, payload queue.ReplayUploadPayload) error {
	if p.uploader == nil {
		return ErrReplayStorageDisabled
	}

	// Download from provider (streaming)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, payload.SourceURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download status: %d", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "video/mp4"
	}
	key := storage.ReplayKey(payload.EventID.String(), payload.SessionID.String())

	if err := p.uploader.UploadReplay(ctx, key, contentType, resp.Body, resp.ContentLength); err != nil {
		return fmt.Errorf("s3 upload: %w", err)
	}
	if err := p.sessions.ReplayStored(ctx, payload.SessionID, key); err != nil {
		return fmt.Errorf("update session: %w", err)
	}

	p.logger.Info("replay upload completed", zap.String("session_id", payload.SessionID.String()), zap.String("s3_key", key))
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error. It returns when ctx is done.
func (p *Processor) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			p.logger.Info("worker stopping")
			return
		}

		job, err := p.source.Dequeue(ctx, p.pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			p.pause(ctx)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			metrics.ObserveJob(string(job.Type), "failed")
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt), zap.Error(err))
			if reErr := p.source.Retry(ctx, job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			p.pause(ctx)
			continue
		}
		metrics.ObserveJob(string(job.Type), "ok")
	}
}

func (p *Processor) pause(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(p.backoff):
	}
}
