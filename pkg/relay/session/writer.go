package session

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
)

type wsWriter interface {
	SetWriteDeadline(t time.Time) error
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	Close() error
}

// outboundWriter owns all writes to the WebSocket: fragment frames in FIFO
// order from the outbound channel, plus the fixed-interval keepalive ping.
// The ping runs on its own schedule regardless of pong timing; it is a
// liveness signal, not a disconnect detector.
type outboundWriter struct {
	ws           wsWriter
	ctx          context.Context
	frames       <-chan []byte
	pingInterval time.Duration
	writeTimeout time.Duration

	// tick overrides the ping ticker; tests inject it for determinism.
	tick <-chan time.Time
}

func (w *outboundWriter) Run() error {
	if w == nil || w.ws == nil {
		return nil
	}

	pingInterval := w.pingInterval
	if pingInterval <= 0 {
		pingInterval = 25 * time.Second
	}
	writeTimeout := w.writeTimeout
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}

	tick := w.tick
	if tick == nil {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	// The connection is closed on every exit path so the blocked read loop
	// unwinds too.
	for {
		select {
		case <-w.ctx.Done():
			_ = w.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeTimeout))
			return w.ws.Close()
		case <-tick:
			if err := w.ws.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(writeTimeout)); err != nil {
				_ = w.ws.Close()
				return err
			}
		case frame := <-w.frames:
			if err := w.ws.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
				_ = w.ws.Close()
				return err
			}
			if err := w.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				_ = w.ws.Close()
				return err
			}
		}
	}
}
