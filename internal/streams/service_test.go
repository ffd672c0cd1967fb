package streams

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eventpass/streamgate/internal/models"
)

var (
	start = time.Date(2026, 5, 1, 18, 0, 0, 0, time.UTC)
	end   = time.Date(2026, 5, 1, 20, 0, 0, 0, time.UTC)
)

type fixture struct {
	svc       *Service
	sessions  *memSessions
	tickets   memTickets
	presigner *fakePresigner
	jobs      *fakeJobs
	publisher *fakePublisher
	session   *models.StreamSession
	ticket    *models.Ticket
	holder    uuid.UUID
	now       time.Time
}

func newFixture(t *testing.T, now time.Time) *fixture {
	t.Helper()
	f := &fixture{holder: uuid.New(), now: now}
	f.session = &models.StreamSession{
		ID:             uuid.New(),
		EventID:        uuid.New(),
		Title:          "Keynote",
		ProviderName:   models.ProviderYouTube,
		RawStreamURL:   "https://www.youtube.com/watch?v=abc123XYZ9",
		ScheduledStart: start,
		ScheduledEnd:   end,
	}
	f.ticket = &models.Ticket{
		ID:                uuid.New(),
		EventID:           f.session.EventID,
		HolderID:          f.holder,
		Status:            models.TicketValid,
		StreamingEntitled: true,
	}
	f.sessions = newMemSessions(f.session)
	f.tickets = memTickets{f.ticket.ID: f.ticket}
	f.presigner = &fakePresigner{}
	f.jobs = &fakeJobs{}
	f.publisher = &fakePublisher{}
	f.svc = NewService(f.sessions, f.tickets, nil,
		WithPresigner(f.presigner),
		WithJobs(f.jobs),
		WithPublisher(f.publisher),
		WithClock(func() time.Time { return f.now }),
	)
	return f
}

func TestAccess_Granted(t *testing.T) {
	f := newFixture(t, start.Add(-time.Hour))
	got, err := f.svc.Access(context.Background(), f.ticket.ID, f.holder)
	require.NoError(t, err)
	assert.Equal(t, f.session.ID, got.ID)
	assert.Equal(t, f.session.RawStreamURL, got.RawStreamURL)
	require.Len(t, f.jobs.views, 1)
	assert.Equal(t, f.session.ID, f.jobs.views[0].SessionID)
	assert.Equal(t, f.ticket.ID, f.jobs.views[0].TicketID)
}

func TestAccess_Denials(t *testing.T) {
	past := start.Add(-48 * time.Hour)
	cases := []struct {
		name   string
		mutate func(f *fixture)
		user   func(f *fixture) uuid.UUID
		want   error
	}{
		{"not holder", nil, func(*fixture) uuid.UUID { return uuid.New() }, ErrNotHolder},
		{"revoked", func(f *fixture) { f.ticket.Status = models.TicketRevoked }, nil, ErrTicketInvalid},
		{"refunded", func(f *fixture) { f.ticket.Status = models.TicketRefunded }, nil, ErrTicketInvalid},
		{"expired", func(f *fixture) { f.ticket.ExpiresAt = &past }, nil, ErrTicketExpired},
		{"not entitled", func(f *fixture) { f.ticket.StreamingEntitled = false }, nil, ErrNotEntitled},
		{"no stream", func(f *fixture) { f.ticket.EventID = uuid.New() }, nil, ErrNoStream},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, start)
			if tc.mutate != nil {
				tc.mutate(f)
			}
			user := f.holder
			if tc.user != nil {
				user = tc.user(f)
			}
			_, err := f.svc.Access(context.Background(), f.ticket.ID, user)
			assert.ErrorIs(t, err, tc.want)
			assert.Empty(t, f.jobs.views)
		})
	}
}

func TestAccess_UnknownTicket(t *testing.T) {
	f := newFixture(t, start)
	_, err := f.svc.Access(context.Background(), uuid.New(), f.holder)
	assert.ErrorIs(t, err, ErrTicketNotFound)
}

func TestAccess_StoredReplayIsPresigned(t *testing.T) {
	f := newFixture(t, end.Add(time.Hour))
	f.session.ReplayPermitted = true
	f.session.ReplayS3Key = "replays/e/s.mp4"

	got, err := f.svc.Access(context.Background(), f.ticket.ID, f.holder)
	require.NoError(t, err)
	assert.Equal(t, models.ProviderCustom, got.ProviderName)
	assert.Equal(t, "https://replays.example.com/replays/e/s.mp4?sig=1", got.RawStreamURL)
	assert.Empty(t, got.ReplayS3Key)
	assert.Equal(t, []string{"replays/e/s.mp4"}, f.presigner.keys)
}

func TestAccess_LapsedReplayWithdrawn(t *testing.T) {
	f := newFixture(t, end.Add(72*time.Hour))
	until := end.Add(24 * time.Hour)
	f.session.ReplayPermitted = true
	f.session.ReplayAvailableUntil = &until
	f.session.ReplayS3Key = "replays/e/s.mp4"

	got, err := f.svc.Access(context.Background(), f.ticket.ID, f.holder)
	require.NoError(t, err)
	assert.False(t, got.ReplayPermitted)
	assert.Equal(t, models.ProviderYouTube, got.ProviderName)
	assert.Empty(t, f.presigner.keys)
}

func TestAccess_NoPresignBeforeEnd(t *testing.T) {
	f := newFixture(t, start.Add(30*time.Minute))
	f.session.ReplayPermitted = true
	f.session.ReplayS3Key = "replays/e/s.mp4"

	got, err := f.svc.Access(context.Background(), f.ticket.ID, f.holder)
	require.NoError(t, err)
	assert.Equal(t, models.ProviderYouTube, got.ProviderName)
	assert.Empty(t, f.presigner.keys)
}

func TestAuthorize_DoesNotCountView(t *testing.T) {
	f := newFixture(t, start)
	id, err := f.svc.Authorize(context.Background(), f.ticket.ID, f.holder)
	require.NoError(t, err)
	assert.Equal(t, f.session.ID, id)
	assert.Empty(t, f.jobs.views)
}

func TestSetLive_PublishesUpdate(t *testing.T) {
	f := newFixture(t, start)
	got, err := f.svc.SetLive(context.Background(), f.session.ID, true)
	require.NoError(t, err)
	assert.True(t, got.IsCurrentlyActive)

	require.Len(t, f.publisher.sent, 1)
	msg := f.publisher.sent[0]
	assert.Equal(t, f.session.ID, msg.sessionID)
	assert.Equal(t, EventStreamUpdated, msg.event)
	var pushed models.StreamSession
	require.NoError(t, json.Unmarshal(msg.payload, &pushed))
	assert.True(t, pushed.IsCurrentlyActive)
}

func TestSetLive_UnknownSession(t *testing.T) {
	f := newFixture(t, start)
	_, err := f.svc.SetLive(context.Background(), uuid.New(), true)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.Empty(t, f.publisher.sent)
}

func TestReplayStoredAndRecordView(t *testing.T) {
	f := newFixture(t, end.Add(time.Hour))
	ctx := context.Background()
	require.NoError(t, f.svc.ReplayStored(ctx, f.session.ID, "replays/x.mp4"))
	require.NoError(t, f.svc.RecordView(ctx, f.session.ID))
	require.NoError(t, f.svc.RecordView(ctx, f.session.ID))

	s, err := f.sessions.GetByID(ctx, f.session.ID)
	require.NoError(t, err)
	assert.Equal(t, "replays/x.mp4", s.ReplayS3Key)
	require.NotNil(t, s.ViewCount)
	assert.Equal(t, int64(2), *s.ViewCount)
	assert.Len(t, f.publisher.sent, 1)
}

func TestRequestReplayUpload(t *testing.T) {
	f := newFixture(t, end)
	err := f.svc.RequestReplayUpload(context.Background(), f.session.ID, "https://cdn.example.com/r.mp4")
	require.NoError(t, err)
	require.Len(t, f.jobs.replays, 1)
	assert.Equal(t, f.session.EventID, f.jobs.replays[0].EventID)
	assert.Equal(t, "https://cdn.example.com/r.mp4", f.jobs.replays[0].SourceURL)
}
