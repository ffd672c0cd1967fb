package tickets

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/eventpass/streamgate/internal/models"
)

// ErrNotFound is returned when no ticket matches.
var ErrNotFound = errors.New("ticket not found")

const ticketColumns = `id, event_id, holder_id, status, streaming_entitled, expires_at, created_at`

// Repository handles ticket persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a tickets repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanTicket(row pgx.Row) (*models.Ticket, error) {
	var t models.Ticket
	var status string
	if err := row.Scan(&t.ID, &t.EventID, &t.HolderID, &status, &t.StreamingEntitled, &t.ExpiresAt, &t.CreatedAt); err != nil {
		return nil, err
	}
	t.Status = models.TicketStatus(status)
	return &t, nil
}

// GetByID returns a ticket by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Ticket, error) {
	t, err := scanTicket(r.pool.QueryRow(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return t, err
}

// Create inserts a ticket.
func (r *Repository) Create(ctx context.Context, t *models.Ticket) error {
	const q = `INSERT INTO tickets (id, event_id, holder_id, status, streaming_entitled, expires_at)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5)
		RETURNING id, created_at`
	if t.Status == "" {
		t.Status = models.TicketValid
	}
	return r.pool.QueryRow(ctx, q, t.EventID, t.HolderID, string(t.Status), t.StreamingEntitled, t.ExpiresAt).
		Scan(&t.ID, &t.CreatedAt)
}

// ListByHolder returns the holder's tickets, newest first.
func (r *Repository) ListByHolder(ctx context.Context, holderID uuid.UUID) ([]models.Ticket, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE holder_id = $1 ORDER BY created_at DESC`, holderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list := []models.Ticket{}
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *t)
	}
	return list, rows.Err()
}
