// Package config loads relay configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultSystemPrompt    = "あなたは親切で丁寧な日本語の電話オペレーターです。簡潔で自然な会話を心がけてください。"
	DefaultWelcomeGreeting = "もしもし。こんにちは。こちらはAIオペレーターです。なんでもご相談ください。"
)

type Config struct {
	Addr   string
	WSPath string

	// Voice settings handed to the telephony platform in the TwiML answer.
	Language        string
	TTSProvider     string
	Voice           string
	WelcomeGreeting string

	// PublicWSURL overrides the relay WebSocket URL advertised in TwiML.
	// When empty the URL is derived from the request host.
	PublicWSURL string

	// Webhook signature validation for the TwiML endpoint.
	ValidateWebhooks bool
	TwilioAuthToken  string

	// LLM settings. An empty API key switches the relay to canned
	// placeholder replies.
	OpenAIAPIKey string
	OpenAIModel  string
	SystemPrompt string
	MaxTokens    int64
	Temperature  float64

	PingInterval        time.Duration
	WriteTimeout        time.Duration
	ReadHeaderTimeout   time.Duration
	ShutdownGracePeriod time.Duration
}

func LoadFromEnv() (Config, error) {
	cfg := Config{
		Addr:                envOr("RELAY_ADDR", ":8080"),
		WSPath:              envOr("RELAY_WS_PATH", "/relay"),
		Language:            envOr("RELAY_LANGUAGE", "ja-JP"),
		TTSProvider:         envOr("RELAY_TTS_PROVIDER", "Google"),
		Voice:               envOr("RELAY_VOICE", "ja-JP-Standard-B"),
		WelcomeGreeting:     envOr("RELAY_WELCOME_GREETING", DefaultWelcomeGreeting),
		PublicWSURL:         strings.TrimSpace(os.Getenv("RELAY_WSS_URL")),
		ValidateWebhooks:    envBoolOr("RELAY_VALIDATE_WEBHOOKS", false),
		TwilioAuthToken:     strings.TrimSpace(os.Getenv("TWILIO_AUTH_TOKEN")),
		OpenAIAPIKey:        strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		OpenAIModel:         envOr("RELAY_OPENAI_MODEL", "gpt-4o-mini"),
		SystemPrompt:        envOr("RELAY_SYSTEM_PROMPT", DefaultSystemPrompt),
		MaxTokens:           envInt64Or("RELAY_MAX_TOKENS", 500),
		Temperature:         envFloat64Or("RELAY_TEMPERATURE", 0.7),
		PingInterval:        envDurationOr("RELAY_PING_INTERVAL", 25*time.Second),
		WriteTimeout:        envDurationOr("RELAY_WRITE_TIMEOUT", 5*time.Second),
		ReadHeaderTimeout:   envDurationOr("RELAY_READ_HEADER_TIMEOUT", 10*time.Second),
		ShutdownGracePeriod: envDurationOr("RELAY_SHUTDOWN_GRACE_PERIOD", 10*time.Second),
	}

	if !strings.HasPrefix(cfg.WSPath, "/") {
		return Config{}, fmt.Errorf("RELAY_WS_PATH must start with /")
	}
	if cfg.PublicWSURL != "" && !strings.HasPrefix(cfg.PublicWSURL, "ws://") && !strings.HasPrefix(cfg.PublicWSURL, "wss://") {
		return Config{}, fmt.Errorf("RELAY_WSS_URL must start with ws:// or wss://")
	}
	if strings.TrimSpace(cfg.Language) == "" {
		return Config{}, fmt.Errorf("RELAY_LANGUAGE must not be empty")
	}
	if strings.TrimSpace(cfg.OpenAIModel) == "" {
		return Config{}, fmt.Errorf("RELAY_OPENAI_MODEL must not be empty")
	}
	if cfg.MaxTokens <= 0 {
		return Config{}, fmt.Errorf("RELAY_MAX_TOKENS must be > 0")
	}
	if cfg.Temperature < 0 || cfg.Temperature > 2 {
		return Config{}, fmt.Errorf("RELAY_TEMPERATURE must be in [0, 2]")
	}
	if cfg.PingInterval <= 0 {
		return Config{}, fmt.Errorf("RELAY_PING_INTERVAL must be > 0")
	}
	if cfg.WriteTimeout <= 0 {
		return Config{}, fmt.Errorf("RELAY_WRITE_TIMEOUT must be > 0")
	}
	if cfg.ReadHeaderTimeout <= 0 {
		return Config{}, fmt.Errorf("RELAY_READ_HEADER_TIMEOUT must be > 0")
	}
	if cfg.ShutdownGracePeriod <= 0 {
		return Config{}, fmt.Errorf("RELAY_SHUTDOWN_GRACE_PERIOD must be > 0")
	}

	// Validation enabled without an auth token is deliberately not a startup
	// error: the TwiML endpoint reports the misconfiguration per request, and
	// /readyz surfaces it.
	return cfg, nil
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envInt64Or(key string, def int64) int64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func envFloat64Or(key string, def float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return def
	}
	return n
}

func envBoolOr(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	switch strings.ToLower(raw) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	default:
		return def
	}
}

func envDurationOr(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}
