package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(h *Hub, sessionID uuid.UUID) *Client {
	return &Client{ID: uuid.NewString(), SessionID: sessionID, hub: h, send: make(chan WSMessage, 8), done: make(chan struct{})}
}

func receive(t *testing.T, c *Client) WSMessage {
	t.Helper()
	select {
	case msg := <-c.send:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("no message delivered")
		return WSMessage{}
	}
}

func TestHub_LocalBroadcastIsPerSession(t *testing.T) {
	h := NewHub(nil, nil, nil)
	a, b := uuid.New(), uuid.New()
	ca, cb := testClient(h, a), testClient(h, b)
	h.Register(ca)
	h.Register(cb)
	assert.Equal(t, 1, h.AudienceCount(a))

	require.NoError(t, h.PublishSessionEvent(a, "stream_updated", []byte(`{"is_currently_active":true}`)))
	msg := receive(t, ca)
	assert.Equal(t, "stream_updated", msg.Event)
	assert.JSONEq(t, `{"is_currently_active":true}`, string(msg.Data))
	assert.Empty(t, cb.send)

	h.Unregister(ca)
	h.Unregister(ca)
	assert.Equal(t, 0, h.AudienceCount(a))
}

func TestHub_RedisFanOut(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	ps := NewRedisPubSub(client, nil)

	// two hubs stand in for two server instances
	h1 := NewHub(nil, ps, ps)
	h2 := NewHub(nil, ps, ps)
	session := uuid.New()
	c1, c2 := testClient(h1, session), testClient(h2, session)
	h1.Register(c1)
	h2.Register(c2)
	t.Cleanup(func() {
		h1.Unregister(c1)
		h2.Unregister(c2)
	})

	require.NoError(t, h1.PublishSessionEvent(session, "stream_updated", []byte(`{"title":"Keynote"}`)))
	for _, c := range []*Client{c1, c2} {
		msg := receive(t, c)
		assert.Equal(t, "stream_updated", msg.Event)
		assert.JSONEq(t, `{"title":"Keynote"}`, string(msg.Data))
	}
}

type fixedAuthz struct {
	session uuid.UUID
	err     error
}

func (f fixedAuthz) Authorize(context.Context, uuid.UUID, uuid.UUID) (uuid.UUID, error) {
	return f.session, f.err
}

func validToken(token string) (uuid.UUID, error) {
	if token != "good" {
		return uuid.Nil, errors.New("bad token")
	}
	return uuid.New(), nil
}

func TestServeWs(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewHub(nil, nil, nil)
	session := uuid.New()
	r := gin.New()
	r.GET("/ws", ServeWs(h, nil, validToken, fixedAuthz{session: session}))
	srv := httptest.NewServer(r)
	defer srv.Close()

	base := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?ticket_id=" + uuid.NewString()

	_, resp, err := websocket.DefaultDialer.Dial(base+"&token=bad", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(base+"&token=good", nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return h.AudienceCount(session) == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, h.PublishSessionEvent(session, "stream_updated", []byte(`{"is_currently_active":false}`)))
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg WSMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "stream_updated", msg.Event)

	require.NoError(t, conn.WriteJSON(WSMessage{Event: "join"}))
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, EventAudienceCount, msg.Event)
	var count map[string]int
	require.NoError(t, json.Unmarshal(msg.Data, &count))
	assert.Equal(t, 1, count["count"])

	_ = conn.Close()
	require.Eventually(t, func() bool { return h.AudienceCount(session) == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestServeWs_Forbidden(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewHub(nil, nil, nil)
	r := gin.New()
	r.GET("/ws", ServeWs(h, nil, validToken, fixedAuthz{err: errors.New("this ticket has expired")}))
	srv := httptest.NewServer(r)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=good&ticket_id=" + uuid.NewString()
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
