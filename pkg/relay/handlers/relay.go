package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/kaiwa-labs/kaiwa-relay/pkg/llm"
	"github.com/kaiwa-labs/kaiwa-relay/pkg/relay/config"
	"github.com/kaiwa-labs/kaiwa-relay/pkg/relay/mw"
	"github.com/kaiwa-labs/kaiwa-relay/pkg/relay/session"
	"github.com/kaiwa-labs/kaiwa-relay/pkg/relay/sessions"
)

// RelayHandler upgrades the ConversationRelay WebSocket and runs one session
// per connection until the call ends.
type RelayHandler struct {
	Config   config.Config
	Logger   *slog.Logger
	Provider llm.Provider
	Sessions *sessions.Tracker
}

func (h RelayHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	logger := h.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		// The telephony platform connects server-to-server without an Origin.
		CheckOrigin: func(*http.Request) bool { return true },
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	connID := "c_" + mw.RandHex(8)
	logger.Info("relay connected", "conn_id", connID, "remote", r.RemoteAddr)

	s, err := session.New(session.Dependencies{
		Conn:      conn,
		Logger:    logger,
		Provider:  h.Provider,
		SessionID: connID,
		Config: session.Config{
			SystemPrompt: h.Config.SystemPrompt,
			PingInterval: h.Config.PingInterval,
			WriteTimeout: h.Config.WriteTimeout,
		},
	})
	if err != nil {
		logger.Error("session setup failed", "conn_id", connID, "error", err)
		_ = conn.Close()
		return
	}

	unregister := h.Sessions.Register(connID, sessions.Handle{Cancel: s.Cancel})
	defer unregister()

	if err := s.Run(); err != nil {
		logger.Warn("relay session ended with error", "conn_id", connID, "error", err)
		return
	}
	logger.Info("relay disconnected", "conn_id", connID)
}
