// Package server assembles the relay HTTP surface: the voice webhook, the
// relay WebSocket, and the health endpoints, behind the shared middleware
// chain.
package server

import (
	"log/slog"
	"net/http"

	"github.com/kaiwa-labs/kaiwa-relay/pkg/llm"
	openaillm "github.com/kaiwa-labs/kaiwa-relay/pkg/llm/openai"
	"github.com/kaiwa-labs/kaiwa-relay/pkg/relay/config"
	"github.com/kaiwa-labs/kaiwa-relay/pkg/relay/handlers"
	"github.com/kaiwa-labs/kaiwa-relay/pkg/relay/mw"
	"github.com/kaiwa-labs/kaiwa-relay/pkg/relay/sessions"
)

type Server struct {
	cfg    config.Config
	logger *slog.Logger
	mux    *http.ServeMux

	provider llm.Provider
	tracker  *sessions.Tracker
}

func New(cfg config.Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	var provider llm.Provider
	if cfg.OpenAIAPIKey != "" {
		provider = openaillm.New(cfg.OpenAIAPIKey,
			openaillm.WithModel(cfg.OpenAIModel),
			openaillm.WithMaxTokens(cfg.MaxTokens),
			openaillm.WithTemperature(cfg.Temperature),
		)
	} else {
		logger.Warn("no OpenAI API key configured, serving placeholder replies")
	}

	s := &Server{
		cfg:      cfg,
		logger:   logger,
		mux:      http.NewServeMux(),
		provider: provider,
		tracker:  sessions.NewTracker(),
	}

	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.Handle("/healthz", handlers.HealthHandler{Sessions: s.tracker})
	s.mux.Handle("/readyz", handlers.ReadyHandler{Config: s.cfg})

	s.mux.Handle("/twiml/{preset}", handlers.TwiMLHandler{
		Config: s.cfg,
		Logger: s.logger,
	})

	s.mux.Handle(s.cfg.WSPath, handlers.RelayHandler{
		Config:   s.cfg,
		Logger:   s.logger,
		Provider: s.provider,
		Sessions: s.tracker,
	})
}

func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = mw.Recover(s.logger, h)
	h = mw.AccessLog(s.logger, h)
	h = mw.RequestID(h)
	return h
}

// Sessions exposes the connection tracker for drain and shutdown.
func (s *Server) Sessions() *sessions.Tracker {
	return s.tracker
}
