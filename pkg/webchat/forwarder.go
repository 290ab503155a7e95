package webchat

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-go-golems/threadchat/pkg/events"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
)

// forwarder pumps turn events into one websocket. Clients only read; incoming
// frames are discarded and used to notice the connection going away.
type forwarder struct {
	conn   *websocket.Conn
	logger zerolog.Logger
}

func newForwarder(conn *websocket.Conn, logger zerolog.Logger) *forwarder {
	return &forwarder{conn: conn, logger: logger}
}

func (f *forwarder) run(ctx context.Context, cancel context.CancelFunc, ch <-chan events.TurnEvent) {
	defer func() { _ = f.conn.Close() }()

	go f.readLoop(cancel)

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	f.logger.Debug().Msg("websocket attached")
	for {
		select {
		case <-ctx.Done():
			_ = f.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(wsWriteWait))
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			b, err := json.Marshal(e)
			if err != nil {
				f.logger.Warn().Err(err).Msg("could not encode turn event")
				continue
			}
			_ = f.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := f.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				f.logger.Debug().Err(err).Msg("websocket write failed, detaching")
				return
			}
		case <-ticker.C:
			if err := f.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		}
	}
}

func (f *forwarder) readLoop(cancel context.CancelFunc) {
	defer cancel()
	_ = f.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	f.conn.SetPongHandler(func(string) error {
		return f.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		if _, _, err := f.conn.ReadMessage(); err != nil {
			return
		}
	}
}
