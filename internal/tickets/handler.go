package tickets

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eventpass/streamgate/internal/middleware"
	"github.com/eventpass/streamgate/internal/models"
	"github.com/eventpass/streamgate/pkg/response"
)

// Store is the ticket persistence the handler needs.
type Store interface {
	Create(ctx context.Context, t *models.Ticket) error
	ListByHolder(ctx context.Context, holderID uuid.UUID) ([]models.Ticket, error)
}

// IssueRequest is the body for POST /tickets.
type IssueRequest struct {
	EventID           string  `json:"event_id" binding:"required,uuid"`
	HolderID          string  `json:"holder_id" binding:"required,uuid"`
	StreamingEntitled bool    `json:"streaming_entitled"`
	ExpiresAt         *string `json:"expires_at"`
}

// Handler handles ticket HTTP endpoints.
type Handler struct {
	repo   Store
	logger *zap.Logger
}

// NewHandler creates a tickets handler.
func NewHandler(repo Store, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{repo: repo, logger: logger}
}

// ListMine handles GET /tickets.
func (h *Handler) ListMine(c *gin.Context) {
	userID, _ := middleware.UserID(c)
	list, err := h.repo.ListByHolder(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("list tickets failed", zap.Error(err), zap.String("user_id", userID.String()))
		response.Internal(c, "failed to list tickets")
		return
	}
	response.OK(c, list)
}

// Issue handles POST /tickets (operators).
func (h *Handler) Issue(c *gin.Context) {
	var req IssueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	t := &models.Ticket{
		EventID:           uuid.MustParse(req.EventID),
		HolderID:          uuid.MustParse(req.HolderID),
		Status:            models.TicketValid,
		StreamingEntitled: req.StreamingEntitled,
	}
	if req.ExpiresAt != nil {
		exp, err := time.Parse(time.RFC3339, *req.ExpiresAt)
		if err != nil {
			response.BadRequest(c, "invalid expires_at")
			return
		}
		t.ExpiresAt = &exp
	}
	if err := h.repo.Create(c.Request.Context(), t); err != nil {
		h.logger.Error("issue ticket failed", zap.Error(err))
		response.Internal(c, "failed to issue ticket")
		return
	}
	response.Created(c, t)
}
