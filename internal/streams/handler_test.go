package streams

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eventpass/streamgate/internal/middleware"
	"github.com/eventpass/streamgate/pkg/response"
)

func newTestRouter(f *fixture, secret string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewHandler(f.svc, secret, nil)
	r := gin.New()
	authed := r.Group("")
	authed.Use(func(c *gin.Context) { c.Set(middleware.ContextUserID, f.holder); c.Next() })
	authed.GET("/streaming/access/:ticketId", h.Access)
	authed.POST("/streams", h.Create)
	authed.GET("/streams/:id", h.Get)
	authed.PATCH("/streams/:id/live", h.SetLive)
	authed.PATCH("/streams/:id/replay", h.SetReplay)
	r.POST("/webhooks/replay-ready", h.ReplayReady)
	return r
}

func do(r http.Handler, method, path, body string, header ...string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) response.Body {
	t.Helper()
	var b response.Body
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &b))
	return b
}

func TestAccessHandler(t *testing.T) {
	f := newFixture(t, start.Add(-time.Hour))
	r := newTestRouter(f, "")

	w := do(r, http.MethodGet, "/streaming/access/"+f.ticket.ID.String(), "")
	require.Equal(t, http.StatusOK, w.Code)
	var ok struct {
		Success bool `json:"success"`
		Data    struct {
			ID             uuid.UUID `json:"id"`
			ProviderName   string    `json:"provider_name"`
			ScheduledStart time.Time `json:"scheduled_start"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ok))
	assert.True(t, ok.Success)
	assert.Equal(t, f.session.ID, ok.Data.ID)
	assert.Equal(t, "youtube", ok.Data.ProviderName)
	assert.NotContains(t, w.Body.String(), "replay_s3_key")

	w = do(r, http.MethodGet, "/streaming/access/"+uuid.NewString(), "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, ErrTicketNotFound.Error(), decode(t, w).Message)

	w = do(r, http.MethodGet, "/streaming/access/not-a-uuid", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAccessHandler_Forbidden(t *testing.T) {
	f := newFixture(t, start)
	f.ticket.StreamingEntitled = false
	r := newTestRouter(f, "")

	w := do(r, http.MethodGet, "/streaming/access/"+f.ticket.ID.String(), "")
	assert.Equal(t, http.StatusForbidden, w.Code)
	b := decode(t, w)
	assert.False(t, b.Success)
	assert.Equal(t, ErrNotEntitled.Error(), b.Message)
}

func TestOperatorEndpoints(t *testing.T) {
	f := newFixture(t, start)
	r := newTestRouter(f, "")

	body := `{"event_id":"` + uuid.NewString() + `","title":"Panel","provider_name":"Twitch",
		"raw_stream_url":"https://www.twitch.tv/somechannel",
		"scheduled_start":"2026-06-01T10:00:00Z","scheduled_end":"2026-06-01T12:00:00Z"}`
	w := do(r, http.MethodPost, "/streams", body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = do(r, http.MethodPost, "/streams", `{"event_id":"`+uuid.NewString()+`","title":"x","provider_name":"dailymotion","scheduled_start":"2026-06-01T10:00:00Z","scheduled_end":"2026-06-01T12:00:00Z"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodPost, "/streams", `{"event_id":"`+uuid.NewString()+`","title":"x","provider_name":"vimeo","scheduled_start":"2026-06-01T13:00:00Z","scheduled_end":"2026-06-01T12:00:00Z"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodPatch, "/streams/"+f.session.ID.String()+"/live", `{"active":true}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, f.publisher.sent, 1)

	w = do(r, http.MethodPatch, "/streams/"+f.session.ID.String()+"/live", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodPatch, "/streams/"+f.session.ID.String()+"/replay", `{"permitted":true,"available_until":"2026-06-30T00:00:00Z"}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = do(r, http.MethodGet, "/streams/"+f.session.ID.String(), "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"replay_permitted":true`)
	assert.Contains(t, w.Body.String(), `"is_currently_active":true`)

	w = do(r, http.MethodGet, "/streams/"+uuid.NewString(), "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestReplayReadyWebhook(t *testing.T) {
	f := newFixture(t, end)
	r := newTestRouter(f, "s3cret")
	body := `{"session_id":"` + f.session.ID.String() + `","source_url":"https://cdn.example.com/r.mp4"}`

	w := do(r, http.MethodPost, "/webhooks/replay-ready", body)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(r, http.MethodPost, "/webhooks/replay-ready", body, WebhookSecretHeader, "wrong")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(r, http.MethodPost, "/webhooks/replay-ready", body, WebhookSecretHeader, "s3cret")
	assert.Equal(t, http.StatusAccepted, w.Code)
	require.Len(t, f.jobs.replays, 1)
	assert.Equal(t, f.session.ID, f.jobs.replays[0].SessionID)
}

func TestReplayReadyWebhook_DisabledWithoutSecret(t *testing.T) {
	f := newFixture(t, end)
	r := newTestRouter(f, "")
	body := `{"session_id":"` + f.session.ID.String() + `","source_url":"https://cdn.example.com/r.mp4"}`
	w := do(r, http.MethodPost, "/webhooks/replay-ready", body, WebhookSecretHeader, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, f.jobs.replays)
}
