package streams

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eventpass/streamgate/internal/middleware"
	"github.com/eventpass/streamgate/internal/models"
	"github.com/eventpass/streamgate/pkg/response"
)

// WebhookSecretHeader carries the shared secret of provider webhooks.
const WebhookSecretHeader = "X-Webhook-Secret"

// CreateRequest is the body for POST /streams.
type CreateRequest struct {
	EventID              string  `json:"event_id" binding:"required,uuid"`
	Title                string  `json:"title" binding:"required"`
	ProviderName         string  `json:"provider_name" binding:"required"`
	RawStreamURL         string  `json:"raw_stream_url"`
	EmbedMarkup          string  `json:"embed_markup"`
	MeetingLink          string  `json:"meeting_link"`
	ScheduledStart       string  `json:"scheduled_start" binding:"required"`
	ScheduledEnd         string  `json:"scheduled_end" binding:"required"`
	ReplayPermitted      bool    `json:"replay_permitted"`
	ReplayAvailableUntil *string `json:"replay_available_until"`
}

// LiveRequest is the body for PATCH /streams/:id/live.
type LiveRequest struct {
	Active *bool `json:"active" binding:"required"`
}

// ReplayRequest is the body for PATCH /streams/:id/replay.
type ReplayRequest struct {
	Permitted      *bool   `json:"permitted" binding:"required"`
	AvailableUntil *string `json:"available_until"`
}

// ReplayReadyRequest is the body for POST /webhooks/replay-ready.
type ReplayReadyRequest struct {
	SessionID string `json:"session_id" binding:"required,uuid"`
	SourceURL string `json:"source_url" binding:"required,url"`
}

// Handler handles stream HTTP endpoints.
type Handler struct {
	svc           *Service
	webhookSecret string
	logger        *zap.Logger
}

// NewHandler creates a streams handler. An empty webhookSecret rejects every webhook call.
func NewHandler(svc *Service, webhookSecret string, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, webhookSecret: webhookSecret, logger: logger}
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}

func parseOptionalTime(s *string) (*time.Time, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	t, err := parseTime(*s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// AccessStatus maps an Access error to its HTTP status.
func AccessStatus(err error) int {
	switch {
	case errors.Is(err, ErrTicketNotFound), errors.Is(err, ErrNoStream):
		return http.StatusNotFound
	case errors.Is(err, ErrNotHolder), errors.Is(err, ErrTicketInvalid),
		errors.Is(err, ErrTicketExpired), errors.Is(err, ErrNotEntitled):
		return http.StatusForbidden
	}
	return http.StatusInternalServerError
}

// Access handles GET /streaming/access/:ticketId.
func (h *Handler) Access(c *gin.Context) {
	ticketID, err := uuid.Parse(c.Param("ticketId"))
	if err != nil {
		response.BadRequest(c, "invalid ticket id")
		return
	}
	userID, _ := middleware.UserID(c)
	session, err := h.svc.Access(c.Request.Context(), ticketID, userID)
	if err != nil {
		status := AccessStatus(err)
		if status == http.StatusInternalServerError {
			h.logger.Error("stream access failed", zap.Error(err), zap.String("ticket_id", ticketID.String()))
			response.Internal(c, "failed to load stream")
			return
		}
		response.Fail(c, status, err.Error())
		return
	}
	response.OK(c, session)
}

// Create handles POST /streams.
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	provider := models.Provider(strings.ToLower(req.ProviderName))
	if !provider.Known() {
		response.BadRequest(c, "unsupported provider_name")
		return
	}
	start, err := parseTime(req.ScheduledStart)
	if err != nil {
		response.BadRequest(c, "invalid scheduled_start")
		return
	}
	end, err := parseTime(req.ScheduledEnd)
	if err != nil {
		response.BadRequest(c, "invalid scheduled_end")
		return
	}
	if start.After(end) {
		response.BadRequest(c, "scheduled_start must not be after scheduled_end")
		return
	}
	until, err := parseOptionalTime(req.ReplayAvailableUntil)
	if err != nil {
		response.BadRequest(c, "invalid replay_available_until")
		return
	}

	session := &models.StreamSession{
		EventID:              uuid.MustParse(req.EventID),
		Title:                req.Title,
		ProviderName:         provider,
		RawStreamURL:         strings.TrimSpace(req.RawStreamURL),
		EmbedMarkup:          req.EmbedMarkup,
		MeetingLink:          req.MeetingLink,
		ScheduledStart:       start,
		ScheduledEnd:         end,
		ReplayPermitted:      req.ReplayPermitted,
		ReplayAvailableUntil: until,
	}
	if err := h.svc.Create(c.Request.Context(), session); err != nil {
		h.logger.Error("create stream session failed", zap.Error(err))
		response.Internal(c, "failed to create stream session")
		return
	}
	response.Created(c, session)
}

func (h *Handler) sessionID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid stream session id")
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) fail(c *gin.Context, err error, msg string) {
	if errors.Is(err, ErrSessionNotFound) {
		response.NotFound(c, "stream session not found")
		return
	}
	h.logger.Error(msg, zap.Error(err))
	response.Internal(c, msg)
}

// Get handles GET /streams/:id.
func (h *Handler) Get(c *gin.Context) {
	id, ok := h.sessionID(c)
	if !ok {
		return
	}
	session, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err, "failed to get stream session")
		return
	}
	response.OK(c, session)
}

// SetLive handles PATCH /streams/:id/live.
func (h *Handler) SetLive(c *gin.Context) {
	id, ok := h.sessionID(c)
	if !ok {
		return
	}
	var req LiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	session, err := h.svc.SetLive(c.Request.Context(), id, *req.Active)
	if err != nil {
		h.fail(c, err, "failed to update live state")
		return
	}
	h.logger.Info("stream live state changed", zap.String("session_id", id.String()), zap.Bool("active", *req.Active))
	response.OK(c, session)
}

// SetReplay handles PATCH /streams/:id/replay.
func (h *Handler) SetReplay(c *gin.Context) {
	id, ok := h.sessionID(c)
	if !ok {
		return
	}
	var req ReplayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	until, err := parseOptionalTime(req.AvailableUntil)
	if err != nil {
		response.BadRequest(c, "invalid available_until")
		return
	}
	session, err := h.svc.SetReplay(c.Request.Context(), id, *req.Permitted, until)
	if err != nil {
		h.fail(c, err, "failed to update replay")
		return
	}
	response.OK(c, session)
}

// ReplayReady handles POST /webhooks/replay-ready.
func (h *Handler) ReplayReady(c *gin.Context) {
	secret := c.GetHeader(WebhookSecretHeader)
	if h.webhookSecret == "" || subtle.ConstantTimeCompare([]byte(secret), []byte(h.webhookSecret)) != 1 {
		response.Unauthorized(c, "invalid webhook secret")
		return
	}
	var req ReplayReadyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if err := h.svc.RequestReplayUpload(c.Request.Context(), uuid.MustParse(req.SessionID), req.SourceURL); err != nil {
		h.fail(c, err, "failed to queue replay upload")
		return
	}
	c.JSON(http.StatusAccepted, response.Body{Success: true})
}
