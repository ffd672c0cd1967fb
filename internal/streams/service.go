package streams

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eventpass/streamgate/internal/metrics"
	"github.com/eventpass/streamgate/internal/models"
	"github.com/eventpass/streamgate/internal/tickets"
	"github.com/eventpass/streamgate/pkg/queue"
)

// EventStreamUpdated is pushed to viewers whenever a session changes.
const EventStreamUpdated = "stream_updated"

// Access denials. Handlers map them to HTTP status codes.
var (
	ErrTicketNotFound = errors.New("ticket not found")
	ErrNoStream       = errors.New("no stream is configured for this event")
	ErrNotHolder      = errors.New("this ticket belongs to another account")
	ErrTicketInvalid  = errors.New("this ticket is no longer valid")
	ErrTicketExpired  = errors.New("this ticket has expired")
	ErrNotEntitled    = errors.New("this ticket does not include streaming access")
)

// SessionStore persists stream sessions.
type SessionStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.StreamSession, error)
	GetByEventID(ctx context.Context, eventID uuid.UUID) (*models.StreamSession, error)
	Create(ctx context.Context, s *models.StreamSession) error
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
	SetReplay(ctx context.Context, id uuid.UUID, permitted bool, until *time.Time) error
	SetReplayKey(ctx context.Context, id uuid.UUID, key string) error
	IncrementViewCount(ctx context.Context, id uuid.UUID) error
}

// TicketStore looks up tickets.
type TicketStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Ticket, error)
}

// Cache holds recently read sessions keyed by event ID.
type Cache interface {
	Get(ctx context.Context, eventID uuid.UUID) (*models.StreamSession, error)
	Set(ctx context.Context, s *models.StreamSession) error
	Invalidate(ctx context.Context, eventID uuid.UUID) error
}

// Presigner issues time-limited replay URLs.
type Presigner interface {
	PresignReplay(ctx context.Context, key string) (string, error)
}

// Jobs enqueues background work.
type Jobs interface {
	EnqueueViewRecorded(ctx context.Context, p queue.ViewRecordedPayload) error
	EnqueueReplayUpload(ctx context.Context, p queue.ReplayUploadPayload) error
}

// Publisher fans session events out to connected viewers.
type Publisher interface {
	PublishSessionEvent(sessionID uuid.UUID, event string, payload []byte) error
}

// Service implements the stream access gateway.
type Service struct {
	sessions  SessionStore
	tickets   TicketStore
	cache     Cache
	presigner Presigner
	jobs      Jobs
	publisher Publisher
	logger    *zap.Logger
	now       func() time.Time
}

// Option configures optional collaborators of a Service.
type Option func(*Service)

// WithCache enables the session cache.
func WithCache(c Cache) Option { return func(s *Service) { s.cache = c } }

// WithPresigner enables stored replays.
func WithPresigner(p Presigner) Option { return func(s *Service) { s.presigner = p } }

// WithJobs enables background view counting and replay uploads.
func WithJobs(j Jobs) Option { return func(s *Service) { s.jobs = j } }

// WithPublisher enables push updates.
func WithPublisher(p Publisher) Option { return func(s *Service) { s.publisher = p } }

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// NewService creates the gateway service.
func NewService(sessions SessionStore, ticketStore TicketStore, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{sessions: sessions, tickets: ticketStore, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Access validates a ticket for the caller and returns the session it unlocks.
// Each granted access is counted as one view.
func (s *Service) Access(ctx context.Context, ticketID, userID uuid.UUID) (*models.StreamSession, error) {
	t, session, err := s.authorize(ctx, ticketID, userID)
	if err != nil {
		metrics.ObserveAccess(accessResult(err))
		return nil, err
	}
	now := s.now()
	out := s.project(ctx, session, now)
	if s.jobs != nil {
		err := s.jobs.EnqueueViewRecorded(ctx, queue.ViewRecordedPayload{SessionID: session.ID, TicketID: t.ID, At: now})
		if err != nil {
			s.logger.Warn("enqueue view failed", zap.Error(err), zap.String("session_id", session.ID.String()))
		}
	}
	metrics.ObserveAccess("granted")
	return out, nil
}

// Authorize applies the same ticket checks as Access without counting a view.
// It returns the ID of the session the ticket unlocks.
func (s *Service) Authorize(ctx context.Context, ticketID, userID uuid.UUID) (uuid.UUID, error) {
	_, session, err := s.authorize(ctx, ticketID, userID)
	if err != nil {
		return uuid.Nil, err
	}
	return session.ID, nil
}

func (s *Service) authorize(ctx context.Context, ticketID, userID uuid.UUID) (*models.Ticket, *models.StreamSession, error) {
	t, err := s.tickets.GetByID(ctx, ticketID)
	if errors.Is(err, tickets.ErrNotFound) {
		return nil, nil, ErrTicketNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("get ticket: %w", err)
	}
	if err := checkTicket(t, userID, s.now()); err != nil {
		return nil, nil, err
	}
	session, err := s.sessionForEvent(ctx, t.EventID)
	if errors.Is(err, ErrSessionNotFound) {
		return nil, nil, ErrNoStream
	}
	if err != nil {
		return nil, nil, fmt.Errorf("get session: %w", err)
	}
	return t, session, nil
}

func accessResult(err error) string {
	switch {
	case errors.Is(err, ErrTicketNotFound), errors.Is(err, ErrNoStream):
		return "not_found"
	case errors.Is(err, ErrNotHolder):
		return "denied_holder"
	case errors.Is(err, ErrTicketInvalid):
		return "denied_status"
	case errors.Is(err, ErrTicketExpired):
		return "denied_expired"
	case errors.Is(err, ErrNotEntitled):
		return "denied_entitlement"
	}
	return "error"
}

func checkTicket(t *models.Ticket, userID uuid.UUID, now time.Time) error {
	switch {
	case t.HolderID != userID:
		return ErrNotHolder
	case t.Status != models.TicketValid:
		return ErrTicketInvalid
	case t.ExpiresAt != nil && now.After(*t.ExpiresAt):
		return ErrTicketExpired
	case !t.StreamingEntitled:
		return ErrNotEntitled
	}
	return nil
}

func (s *Service) sessionForEvent(ctx context.Context, eventID uuid.UUID) (*models.StreamSession, error) {
	if s.cache != nil {
		cached, err := s.cache.Get(ctx, eventID)
		if err != nil {
			s.logger.Warn("session cache read failed", zap.Error(err))
		}
		if cached != nil {
			return cached, nil
		}
	}
	session, err := s.sessions.GetByEventID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, session); err != nil {
			s.logger.Warn("session cache write failed", zap.Error(err))
		}
	}
	return session, nil
}

// project returns the copy of a session that viewers receive. A lapsed replay
// window withdraws the replay; a stored replay after the end replaces the
// provider embed with a presigned URL.
func (s *Service) project(ctx context.Context, session *models.StreamSession, now time.Time) *models.StreamSession {
	out := *session
	if out.ReplayAvailableUntil != nil && now.After(*out.ReplayAvailableUntil) {
		out.ReplayPermitted = false
	}
	if out.ReplayPermitted && !out.IsCurrentlyActive && now.After(out.ScheduledEnd) &&
		out.ReplayS3Key != "" && s.presigner != nil {
		url, err := s.presigner.PresignReplay(ctx, out.ReplayS3Key)
		if err != nil {
			s.logger.Warn("presign replay failed", zap.Error(err), zap.String("session_id", out.ID.String()))
		} else {
			out.ProviderName = models.ProviderCustom
			out.RawStreamURL = url
			out.EmbedMarkup = ""
		}
	}
	out.ReplayS3Key = ""
	return &out
}

// Get returns a session for operators.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.StreamSession, error) {
	return s.sessions.GetByID(ctx, id)
}

// Create stores a new session.
func (s *Service) Create(ctx context.Context, session *models.StreamSession) error {
	if err := s.sessions.Create(ctx, session); err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// SetLive toggles the operator live flag and notifies viewers.
func (s *Service) SetLive(ctx context.Context, id uuid.UUID, active bool) (*models.StreamSession, error) {
	if err := s.sessions.SetActive(ctx, id, active); err != nil {
		return nil, err
	}
	return s.changed(ctx, id)
}

// SetReplay updates replay permission and notifies viewers.
func (s *Service) SetReplay(ctx context.Context, id uuid.UUID, permitted bool, until *time.Time) (*models.StreamSession, error) {
	if err := s.sessions.SetReplay(ctx, id, permitted, until); err != nil {
		return nil, err
	}
	return s.changed(ctx, id)
}

// ReplayStored records an uploaded replay asset and notifies viewers.
func (s *Service) ReplayStored(ctx context.Context, id uuid.UUID, key string) error {
	if err := s.sessions.SetReplayKey(ctx, id, key); err != nil {
		return err
	}
	_, err := s.changed(ctx, id)
	return err
}

// RecordView counts one view.
func (s *Service) RecordView(ctx context.Context, id uuid.UUID) error {
	return s.sessions.IncrementViewCount(ctx, id)
}

// RequestReplayUpload queues a provider replay file for storage.
func (s *Service) RequestReplayUpload(ctx context.Context, id uuid.UUID, sourceURL string) error {
	session, err := s.sessions.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if s.jobs == nil {
		return errors.New("background jobs are disabled")
	}
	return s.jobs.EnqueueReplayUpload(ctx, queue.ReplayUploadPayload{
		SessionID: session.ID,
		EventID:   session.EventID,
		SourceURL: sourceURL,
	})
}

// changed reloads a session, drops its cache entry and pushes it to viewers.
func (s *Service) changed(ctx context.Context, id uuid.UUID) (*models.StreamSession, error) {
	session, err := s.sessions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, session.EventID); err != nil {
			s.logger.Warn("session cache invalidate failed", zap.Error(err))
		}
	}
	if s.publisher != nil {
		body, err := json.Marshal(s.project(ctx, session, s.now()))
		if err == nil {
			err = s.publisher.PublishSessionEvent(session.ID, EventStreamUpdated, body)
		}
		if err != nil {
			s.logger.Warn("publish session update failed", zap.Error(err), zap.String("session_id", id.String()))
		}
	}
	return session, nil
}
