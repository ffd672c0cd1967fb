package streams

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/eventpass/streamgate/internal/models"
)

// ErrSessionNotFound is returned when no stream session matches.
var ErrSessionNotFound = errors.New("stream session not found")

const sessionColumns = `id, event_id, title, provider_name, raw_stream_url, embed_markup, meeting_link,
	scheduled_start, scheduled_end, is_currently_active, replay_permitted, replay_available_until,
	replay_s3_key, view_count, created_at, updated_at`

// Repository handles stream_sessions persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a stream sessions repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanSession(row pgx.Row) (*models.StreamSession, error) {
	var s models.StreamSession
	var provider string
	var rawURL, markup, meeting, replayKey *string
	var views int64
	err := row.Scan(&s.ID, &s.EventID, &s.Title, &provider, &rawURL, &markup, &meeting,
		&s.ScheduledStart, &s.ScheduledEnd, &s.IsCurrentlyActive, &s.ReplayPermitted, &s.ReplayAvailableUntil,
		&replayKey, &views, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	s.ProviderName = models.Provider(provider)
	s.RawStreamURL = deref(rawURL)
	s.EmbedMarkup = deref(markup)
	s.MeetingLink = deref(meeting)
	s.ReplayS3Key = deref(replayKey)
	s.ViewCount = &views
	return &s, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// GetByID returns a stream session by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.StreamSession, error) {
	return scanSession(r.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM stream_sessions WHERE id = $1`, id))
}

// GetByEventID returns the stream session configured for an event.
func (r *Repository) GetByEventID(ctx context.Context, eventID uuid.UUID) (*models.StreamSession, error) {
	return scanSession(r.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM stream_sessions WHERE event_id = $1`, eventID))
}

// Create inserts a stream session and fills its generated fields.
func (r *Repository) Create(ctx context.Context, s *models.StreamSession) error {
	const q = `INSERT INTO stream_sessions (id, event_id, title, provider_name, raw_stream_url, embed_markup, meeting_link,
		scheduled_start, scheduled_end, replay_permitted, replay_available_until)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, q, s.EventID, s.Title, string(s.ProviderName), nullable(s.RawStreamURL),
		nullable(s.EmbedMarkup), nullable(s.MeetingLink), s.ScheduledStart, s.ScheduledEnd,
		s.ReplayPermitted, s.ReplayAvailableUntil).Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
}

func (r *Repository) exec(ctx context.Context, q string, args ...interface{}) error {
	tag, err := r.pool.Exec(ctx, q, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// SetActive sets the operator live flag.
func (r *Repository) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	return r.exec(ctx, `UPDATE stream_sessions SET is_currently_active = $2, updated_at = NOW() WHERE id = $1`, id, active)
}

// SetReplay sets the replay permission and its availability window.
func (r *Repository) SetReplay(ctx context.Context, id uuid.UUID, permitted bool, until *time.Time) error {
	return r.exec(ctx, `UPDATE stream_sessions SET replay_permitted = $2, replay_available_until = $3, updated_at = NOW() WHERE id = $1`,
		id, permitted, until)
}

// SetReplayKey stores the object key of an uploaded replay.
func (r *Repository) SetReplayKey(ctx context.Context, id uuid.UUID, key string) error {
	return r.exec(ctx, `UPDATE stream_sessions SET replay_s3_key = $2, updated_at = NOW() WHERE id = $1`, id, key)
}

// IncrementViewCount adds one view to the session.
func (r *Repository) IncrementViewCount(ctx context.Context, id uuid.UUID) error {
	return r.exec(ctx, `UPDATE stream_sessions SET view_count = view_count + 1 WHERE id = $1`, id)
}
