package viewer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/eventpass/streamgate/internal/models"
)

// EventStreamUpdated carries a full StreamSession in its data.
const EventStreamUpdated = "stream_updated"

type pushMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Follow connects to the push endpoint at wsURL for ticketID and calls apply
// with every session update until ctx is done. It returns nil on cancellation.
func Follow(ctx context.Context, wsURL, token, ticketID string, apply func(*models.StreamSession), logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	u, err := url.Parse(wsURL)
	if err != nil {
		return fmt.Errorf("parse push url: %w", err)
	}
	q := u.Query()
	q.Set("ticket_id", ticketID)
	q.Set("token", token)
	u.RawQuery = q.Encode()

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil && resp.StatusCode != http.StatusSwitchingProtocols {
			return &AccessDeniedError{Status: resp.StatusCode, Message: defaultDenial}
		}
		return fmt.Errorf("dial push url: %w", err)
	}
	defer conn.Close()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			_ = conn.Close()
		case <-stop:
		}
	}()

	if err := conn.WriteJSON(pushMessage{Event: "join"}); err != nil {
		return fmt.Errorf("join: %w", err)
	}
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			return fmt.Errorf("read push: %w", err)
		}
		var msg pushMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			logger.Warn("dropping malformed push message", zap.Error(err))
			continue
		}
		if msg.Event != EventStreamUpdated {
			continue
		}
		session, err := DecodeSession(msg.Data, logger)
		if err != nil {
			logger.Warn("dropping undecodable stream update", zap.Error(err))
			continue
		}
		apply(session)
	}
}
