package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/kaiwa-labs/kaiwa-relay/pkg/relay/config"
	relayserver "github.com/kaiwa-labs/kaiwa-relay/pkg/relay/server"
)

func testRelayConfig() config.Config {
	return config.Config{
		Addr:                "127.0.0.1:0",
		WSPath:              "/relay",
		Language:            "ja-JP",
		TTSProvider:         "Google",
		Voice:               "ja-JP-Standard-B",
		WelcomeGreeting:     config.DefaultWelcomeGreeting,
		SystemPrompt:        config.DefaultSystemPrompt,
		OpenAIModel:         "gpt-4o-mini",
		MaxTokens:           500,
		Temperature:         0.7,
		PingInterval:        25 * time.Second,
		WriteTimeout:        5 * time.Second,
		ReadHeaderTimeout:   2 * time.Second,
		ShutdownGracePeriod: time.Second,
	}
}

func TestRunMain_ReturnsNonZeroWhenConfigLoadFails(t *testing.T) {
	t.Parallel()

	var stderr bytes.Buffer
	exitCode := runMain(context.Background(), &stderr, relayDeps{
		loadConfig: func() (config.Config, error) {
			return config.Config{}, errors.New("boom")
		},
		newServer: func(cfg config.Config, logger *slog.Logger) *relayserver.Server {
			t.Fatalf("newServer should not be called when config load fails")
			return nil
		},
		signalNotify: func(c chan<- os.Signal, sig ...os.Signal) {},
		signalStop:   func(c chan<- os.Signal) {},
	})

	if exitCode != 1 {
		t.Fatalf("exitCode=%d, want 1", exitCode)
	}
	if stderr.String() == "" {
		t.Fatalf("expected stderr output for startup error")
	}
}

func TestBuildHTTPServer_UsesConfiguredAddress(t *testing.T) {
	t.Parallel()

	cfg := testRelayConfig()
	cfg.Addr = "127.0.0.1:9999"
	srv := buildHTTPServer(cfg, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	if srv.Addr != cfg.Addr {
		t.Fatalf("Addr=%q, want %q", srv.Addr, cfg.Addr)
	}
	if srv.ReadHeaderTimeout != cfg.ReadHeaderTimeout {
		t.Fatalf("ReadHeaderTimeout=%v, want %v", srv.ReadHeaderTimeout, cfg.ReadHeaderTimeout)
	}
}

func TestRunRelay_ShutsDownOnSignal(t *testing.T) {
	t.Parallel()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sigChans := make(chan chan<- os.Signal, 1)

	deps := relayDeps{
		loadConfig: func() (config.Config, error) { return testRelayConfig(), nil },
		newServer:  relayserver.New,
		signalNotify: func(c chan<- os.Signal, sig ...os.Signal) {
			sigChans <- c
		},
		signalStop: func(chan<- os.Signal) {},
	}

	done := make(chan error, 1)
	go func() { done <- runRelay(context.Background(), logger, deps) }()

	select {
	case sigCh := <-sigChans:
		sigCh <- os.Interrupt
	case <-time.After(3 * time.Second):
		t.Fatalf("signalNotify was never called")
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("runRelay error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("runRelay did not stop after signal")
	}
}

func TestRelayHandlerStack_Smoke(t *testing.T) {
	t.Parallel()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := relayserver.New(testRelayConfig(), logger)

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d", resp.StatusCode)
	}
}
