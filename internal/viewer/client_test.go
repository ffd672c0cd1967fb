package viewer

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/eventpass/streamgate/internal/models"
	"github.com/eventpass/streamgate/internal/streamstatus"
)

func gatewayServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/streaming/access/tkt-1", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClientFetch_Success(t *testing.T) {
	srv := gatewayServer(t, http.StatusOK, `{"success":true,"data":{
		"id":"6f1c1f7e-6a43-4a55-9c56-5c1c4bde8f10","title":"Keynote","provider_name":"YouTube",
		"raw_stream_url":" https://youtu.be/abc123XYZ9 ","scheduled_start":"2026-05-01T18:00:00Z",
		"scheduled_end":"2026-05-01T20:00:00+02:00","replay_permitted":true,
		"replay_available_until":"2026-05-08 00:00:00","view_count":42}}`)

	s, err := NewClient(srv.URL+"/api/", "tok", nil, nil).Fetch(context.Background(), "tkt-1")
	require.NoError(t, err)
	assert.Equal(t, "Keynote", s.Title)
	assert.Equal(t, models.ProviderYouTube, s.ProviderName)
	assert.Equal(t, "https://youtu.be/abc123XYZ9", s.RawStreamURL)
	assert.True(t, s.ScheduledStart.Equal(time.Date(2026, 5, 1, 18, 0, 0, 0, time.UTC)))
	assert.True(t, s.ScheduledEnd.Equal(time.Date(2026, 5, 1, 18, 0, 0, 0, time.UTC)))
	require.NotNil(t, s.ReplayAvailableUntil)
	assert.True(t, s.ReplayAvailableUntil.Equal(time.Date(2026, 5, 8, 0, 0, 0, 0, time.UTC)))
	assert.True(t, s.ReplayPermitted)
	require.NotNil(t, s.ViewCount)
	assert.Equal(t, int64(42), *s.ViewCount)
}

func TestClientFetch_Denied(t *testing.T) {
	srv := gatewayServer(t, http.StatusForbidden, `{"success":false,"message":"this ticket has expired"}`)
	_, err := NewClient(srv.URL+"/api", "tok", nil, nil).Fetch(context.Background(), "tkt-1")

	var denied *AccessDeniedError
	require.True(t, errors.As(err, &denied))
	assert.Equal(t, http.StatusForbidden, denied.Status)
	assert.Equal(t, "this ticket has expired", denied.Message)
}

func TestClientFetch_DeniedWithoutMessage(t *testing.T) {
	srv := gatewayServer(t, http.StatusBadGateway, `<html>bad gateway</html>`)
	_, err := NewClient(srv.URL+"/api", "tok", nil, nil).Fetch(context.Background(), "tkt-1")

	var denied *AccessDeniedError
	require.True(t, errors.As(err, &denied))
	assert.Equal(t, defaultDenial, denied.Message)
}

func TestDecodeSession_MalformedTimestampsFailClosed(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	s, err := DecodeSession([]byte(`{"provider_name":"vimeo","scheduled_start":"tomorrow-ish",
		"scheduled_end":"2026-05-01T20:00:00Z","replay_permitted":true,"replay_available_until":"soon"}`), zap.New(core))
	require.NoError(t, err)

	assert.True(t, s.ScheduledStart.IsZero())
	assert.Nil(t, s.ReplayAvailableUntil)
	assert.False(t, s.ReplayPermitted)
	assert.Equal(t, 2, logs.Len())
	assert.Equal(t, streamstatus.Offline, streamstatus.Derive(s, time.Now()))
}

func TestDecodeSession_RejectsNonObject(t *testing.T) {
	_, err := DecodeSession([]byte(`[1,2,3]`), nil)
	assert.Error(t, err)
}

func TestClientTickets(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tickets", r.URL.Path)
		_, _ = w.Write([]byte(`{"success":true,"data":[{"id":"6f1c1f7e-6a43-4a55-9c56-5c1c4bde8f10","status":"valid","streaming_entitled":true}]}`))
	}))
	defer srv.Close()

	list, err := NewClient(srv.URL, "", nil, nil).Tickets(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, models.TicketValid, list[0].Status)
}
