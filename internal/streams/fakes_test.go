package streams

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/eventpass/streamgate/internal/models"
	"github.com/eventpass/streamgate/internal/tickets"
	"github.com/eventpass/streamgate/pkg/queue"
)

type memSessions struct {
	mu   sync.Mutex
	byID map[uuid.UUID]*models.StreamSession
}

func newMemSessions(list ...*models.StreamSession) *memSessions {
	m := &memSessions{byID: map[uuid.UUID]*models.StreamSession{}}
	for _, s := range list {
		m.byID[s.ID] = s
	}
	return m
}

func (m *memSessions) get(id uuid.UUID) (*models.StreamSession, error) {
	s, ok := m.byID[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memSessions) GetByID(_ context.Context, id uuid.UUID) (*models.StreamSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.get(id)
}

func (m *memSessions) GetByEventID(_ context.Context, eventID uuid.UUID) (*models.StreamSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.byID {
		if s.EventID == eventID {
			return m.get(id)
		}
	}
	return nil, ErrSessionNotFound
}

func (m *memSessions) Create(_ context.Context, s *models.StreamSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.ID = uuid.New()
	cp := *s
	m.byID[s.ID] = &cp
	return nil
}

func (m *memSessions) update(id uuid.UUID, fn func(*models.StreamSession)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byID[id]
	if !ok {
		return ErrSessionNotFound
	}
	fn(s)
	return nil
}

func (m *memSessions) SetActive(_ context.Context, id uuid.UUID, active bool) error {
	return m.update(id, func(s *models.StreamSession) { s.IsCurrentlyActive = active })
}

func (m *memSessions) SetReplay(_ context.Context, id uuid.UUID, permitted bool, until *time.Time) error {
	return m.update(id, func(s *models.StreamSession) {
		s.ReplayPermitted = permitted
		s.ReplayAvailableUntil = until
	})
}

func (m *memSessions) SetReplayKey(_ context.Context, id uuid.UUID, key string) error {
	return m.update(id, func(s *models.StreamSession) { s.ReplayS3Key = key })
}

func (m *memSessions) IncrementViewCount(_ context.Context, id uuid.UUID) error {
	return m.update(id, func(s *models.StreamSession) {
		var n int64
		if s.ViewCount != nil {
			n = *s.ViewCount
		}
		n++
		s.ViewCount = &n
	})
}

type memTickets map[uuid.UUID]*models.Ticket

func (m memTickets) GetByID(_ context.Context, id uuid.UUID) (*models.Ticket, error) {
	t, ok := m[id]
	if !ok {
		return nil, tickets.ErrNotFound
	}
	return t, nil
}

type fakePresigner struct{ keys []string }

func (f *fakePresigner) PresignReplay(_ context.Context, key string) (string, error) {
	f.keys = append(f.keys, key)
	return "https://replays.example.com/" + key + "?sig=1", nil
}

type fakeJobs struct {
	views   []queue.ViewRecordedPayload
	replays []queue.ReplayUploadPayload
}

func (f *fakeJobs) EnqueueViewRecorded(_ context.Context, p queue.ViewRecordedPayload) error {
	f.views = append(f.views, p)
	return nil
}

func (f *fakeJobs) EnqueueReplayUpload(_ context.Context, p queue.ReplayUploadPayload) error {
	f.replays = append(f.replays, p)
	return nil
}

type published struct {
	sessionID uuid.UUID
	event     string
	payload   []byte
}

type fakePublisher struct{ sent []published }

func (f *fakePublisher) PublishSessionEvent(sessionID uuid.UUID, event string, payload []byte) error {
	f.sent = append(f.sent, published{sessionID, event, payload})
	return nil
}
