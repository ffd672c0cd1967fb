// Package viewer is the client side of stream access: it fetches a ticket's
// stream session, keeps it current and renders what the viewer sees.
package viewer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eventpass/streamgate/internal/models"
)

// Gateway fetches the stream session a ticket unlocks.
type Gateway interface {
	Fetch(ctx context.Context, ticketID string) (*models.StreamSession, error)
}

// GatewayFunc adapts a function to Gateway.
type GatewayFunc func(ctx context.Context, ticketID string) (*models.StreamSession, error)

// Fetch calls f.
func (f GatewayFunc) Fetch(ctx context.Context, ticketID string) (*models.StreamSession, error) {
	return f(ctx, ticketID)
}

// AccessDeniedError is a non-2xx gateway answer. Message is shown to the viewer as is.
type AccessDeniedError struct {
	Status  int
	Message string
}

func (e *AccessDeniedError) Error() string {
	return fmt.Sprintf("access denied (%d): %s", e.Status, e.Message)
}

const defaultDenial = "You do not have access to this stream."

// Client is the HTTP Gateway for GET {base}/streaming/access/{ticketId}.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a gateway client. httpClient may be nil.
func NewClient(baseURL, token string, httpClient *http.Client, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), token: token, httpClient: httpClient, logger: logger}
}

type envelope struct {
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

func (c *Client) get(ctx context.Context, path string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	var env envelope
	decodeErr := json.Unmarshal(body, &env)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := strings.TrimSpace(env.Message)
		if decodeErr != nil || msg == "" {
			msg = defaultDenial
		}
		return nil, &AccessDeniedError{Status: resp.StatusCode, Message: msg}
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("decode response: %w", decodeErr)
	}
	return env.Data, nil
}

// Fetch implements Gateway.
func (c *Client) Fetch(ctx context.Context, ticketID string) (*models.StreamSession, error) {
	data, err := c.get(ctx, "/streaming/access/"+url.PathEscape(ticketID))
	if err != nil {
		return nil, err
	}
	return DecodeSession(data, c.logger)
}

// Tickets lists the caller's tickets.
func (c *Client) Tickets(ctx context.Context) ([]models.Ticket, error) {
	data, err := c.get(ctx, "/tickets")
	if err != nil {
		return nil, err
	}
	var list []models.Ticket
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("decode tickets: %w", err)
	}
	return list, nil
}

// wireSession mirrors models.StreamSession with timestamps kept as text so a
// bad value degrades one field instead of the whole payload.
type wireSession struct {
	ID                   string `json:"id"`
	EventID              string `json:"event_id"`
	Title                string `json:"title"`
	ProviderName         string `json:"provider_name"`
	RawStreamURL         string `json:"raw_stream_url"`
	EmbedMarkup          string `json:"embed_markup"`
	MeetingLink          string `json:"meeting_link"`
	ScheduledStart       string `json:"scheduled_start"`
	ScheduledEnd         string `json:"scheduled_end"`
	IsCurrentlyActive    bool   `json:"is_currently_active"`
	ReplayPermitted      bool   `json:"replay_permitted"`
	ReplayAvailableUntil string `json:"replay_available_until"`
	ViewCount            *int64 `json:"view_count"`
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
}

// parseTime accepts RFC 3339 and the common zone-less variants (read as UTC).
// Anything else yields the zero time.
func parseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// DecodeSession parses a StreamSession leniently. Unparsable timestamps become
// the zero time and are logged, so status derivation fails closed.
func DecodeSession(data []byte, logger *zap.Logger) (*models.StreamSession, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var w wireSession
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decode stream session: %w", err)
	}
	s := &models.StreamSession{
		Title:             w.Title,
		ProviderName:      models.Provider(strings.ToLower(strings.TrimSpace(w.ProviderName))),
		RawStreamURL:      strings.TrimSpace(w.RawStreamURL),
		EmbedMarkup:       w.EmbedMarkup,
		MeetingLink:       w.MeetingLink,
		IsCurrentlyActive: w.IsCurrentlyActive,
		ReplayPermitted:   w.ReplayPermitted,
		ViewCount:         w.ViewCount,
	}
	s.ID, _ = uuid.Parse(w.ID)
	s.EventID, _ = uuid.Parse(w.EventID)

	field := func(name, raw string) time.Time {
		t, ok := parseTime(raw)
		if !ok {
			logger.Warn("unparsable stream session timestamp",
				zap.String("session_id", w.ID), zap.String("field", name), zap.String("value", raw))
		}
		return t
	}
	s.ScheduledStart = field("scheduled_start", w.ScheduledStart)
	s.ScheduledEnd = field("scheduled_end", w.ScheduledEnd)
	if w.ReplayAvailableUntil != "" {
		if t := field("replay_available_until", w.ReplayAvailableUntil); !t.IsZero() {
			s.ReplayAvailableUntil = &t
		} else {
			// a replay window we cannot read is treated as closed
			s.ReplayPermitted = false
		}
	}
	return s, nil
}
