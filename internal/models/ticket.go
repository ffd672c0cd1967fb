package models

import (
	"time"

	"github.com/google/uuid"
)

// TicketStatus is the lifecycle state of a ticket.
type TicketStatus string

const (
	TicketValid    TicketStatus = "valid"
	TicketRevoked  TicketStatus = "revoked"
	TicketRefunded TicketStatus = "refunded"
)

// Ticket grants its holder access to an event and, when entitled, its stream.
type Ticket struct {
	ID                uuid.UUID    `json:"id"`
	EventID           uuid.UUID    `json:"event_id"`
	HolderID          uuid.UUID    `json:"holder_id"`
	Status            TicketStatus `json:"status"`
	StreamingEntitled bool         `json:"streaming_entitled"`
	ExpiresAt         *time.Time   `json:"expires_at,omitempty"`
	CreatedAt         time.Time    `json:"created_at"`
}
