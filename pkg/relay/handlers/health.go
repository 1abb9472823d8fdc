package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/kaiwa-labs/kaiwa-relay/pkg/relay/config"
	"github.com/kaiwa-labs/kaiwa-relay/pkg/relay/sessions"
)

// HealthHandler reports process liveness plus the number of active relay
// connections.
type HealthHandler struct {
	Sessions *sessions.Tracker
}

func (h HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	type healthResp struct {
		Status        string `json:"status"`
		WSConnections int    `json:"wsConnections"`
		Timestamp     string `json:"timestamp"`
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(healthResp{
		Status:        "healthy",
		WSConnections: h.Sessions.Count(),
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
	})
}

// ReadyHandler reports whether the configuration is serviceable. Signature
// validation without an auth token is a readiness issue, not a startup error.
type ReadyHandler struct {
	Config config.Config
}

func (h ReadyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	type readyResp struct {
		OK               bool     `json:"ok"`
		LLMEnabled       bool     `json:"llm_enabled"`
		WebhookValidated bool     `json:"webhook_validated"`
		Issues           []string `json:"issues,omitempty"`
	}

	issues := make([]string, 0, 4)

	if !strings.HasPrefix(h.Config.WSPath, "/") {
		issues = append(issues, "ws path must start with /")
	}
	if h.Config.ValidateWebhooks && h.Config.TwilioAuthToken == "" {
		issues = append(issues, "webhook validation enabled but no auth token configured")
	}
	if h.Config.MaxTokens <= 0 {
		issues = append(issues, "max tokens must be > 0")
	}
	if h.Config.PingInterval <= 0 || h.Config.WriteTimeout <= 0 {
		issues = append(issues, "timeouts must be > 0")
	}

	ok := len(issues) == 0
	status := http.StatusOK
	if !ok {
		status = http.StatusInternalServerError
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(readyResp{
		OK:               ok,
		LLMEnabled:       h.Config.OpenAIAPIKey != "",
		WebhookValidated: h.Config.ValidateWebhooks && h.Config.TwilioAuthToken != "",
		Issues:           issues,
	})
}
