package models

import (
	"time"

	"github.com/google/uuid"
)

// Provider is the third-party platform hosting the media of a stream.
type Provider string

const (
	ProviderYouTube Provider = "youtube"
	ProviderTwitch  Provider = "twitch"
	ProviderVimeo   Provider = "vimeo"
	ProviderCustom  Provider = "custom"
)

// Known reports whether p is one of the supported providers.
func (p Provider) Known() bool {
	switch p {
	case ProviderYouTube, ProviderTwitch, ProviderVimeo, ProviderCustom:
		return true
	}
	return false
}

// StreamSession is the streaming configuration and schedule of a virtual event.
// IsCurrentlyActive is set by operators and is authoritative over the schedule.
type StreamSession struct {
	ID                   uuid.UUID  `json:"id"`
	EventID              uuid.UUID  `json:"event_id"`
	Title                string     `json:"title"`
	ProviderName         Provider   `json:"provider_name"`
	RawStreamURL         string     `json:"raw_stream_url,omitempty"`
	EmbedMarkup          string     `json:"embed_markup,omitempty"`
	MeetingLink          string     `json:"meeting_link,omitempty"`
	ScheduledStart       time.Time  `json:"scheduled_start"`
	ScheduledEnd         time.Time  `json:"scheduled_end"`
	IsCurrentlyActive    bool       `json:"is_currently_active"`
	ReplayPermitted      bool       `json:"replay_permitted"`
	ReplayAvailableUntil *time.Time `json:"replay_available_until,omitempty"`
	ViewCount            *int64     `json:"view_count,omitempty"`
	ReplayS3Key          string     `json:"-"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}
