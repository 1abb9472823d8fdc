// Package session implements the per-call relay session: the state machine
// that consumes the ordered inbound event stream of one ConversationRelay
// connection, coordinates at most one in-flight generation, and streams
// sentence-sized reply fragments back over the socket.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kaiwa-labs/kaiwa-relay/pkg/llm"
	"github.com/kaiwa-labs/kaiwa-relay/pkg/relay/protocol"
)

// Conn is the subset of *websocket.Conn the session needs. Tests substitute
// an in-memory fake.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

type Config struct {
	SystemPrompt      string
	PingInterval      time.Duration
	WriteTimeout      time.Duration
	MaxHistoryTurns   int
	HistoryKeepRecent int
	OutboundQueueSize int
}

func DefaultConfig() Config {
	return Config{
		PingInterval:      25 * time.Second,
		WriteTimeout:      5 * time.Second,
		MaxHistoryTurns:   20,
		HistoryKeepRecent: 10,
		OutboundQueueSize: 64,
	}
}

type Dependencies struct {
	Conn      Conn
	Logger    *slog.Logger
	Provider  llm.Provider // nil enables the placeholder reply
	SessionID string
	Config    Config
}

// Session is the state machine for one call. It is Idle or Generating; a
// monotonically increasing epoch invalidates superseded generation runs
// without locks, and a bumped epoch plus context cancellation is also the
// teardown path.
type Session struct {
	id       string
	conn     Conn
	logger   *slog.Logger
	provider llm.Provider
	cfg      Config

	history    *history
	epoch      atomic.Int64
	generating atomic.Bool

	ctx      context.Context
	cancel   context.CancelFunc
	outbound chan []byte
	genWG    sync.WaitGroup

	// callSID is set once from the setup frame and read only by the
	// dispatch goroutine.
	callSID string
}

func New(deps Dependencies) (*Session, error) {
	if deps.Conn == nil {
		return nil, errors.New("session: nil connection")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	cfg := deps.Config
	def := DefaultConfig()
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = def.PingInterval
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.MaxHistoryTurns <= 0 {
		cfg.MaxHistoryTurns = def.MaxHistoryTurns
	}
	if cfg.HistoryKeepRecent <= 0 {
		cfg.HistoryKeepRecent = def.HistoryKeepRecent
	}
	if cfg.OutboundQueueSize <= 0 {
		cfg.OutboundQueueSize = def.OutboundQueueSize
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		id:       deps.SessionID,
		conn:     deps.Conn,
		logger:   logger.With("session_id", deps.SessionID),
		provider: deps.Provider,
		cfg:      cfg,
		history:  newHistory(cfg.SystemPrompt),
		ctx:      ctx,
		cancel:   cancel,
		outbound: make(chan []byte, cfg.OutboundQueueSize),
	}, nil
}

// Run blocks until the connection closes or the session is cancelled. It
// owns two goroutines: the calling one reads and dispatches inbound events
// in order; the writer serializes outbound frames and the keepalive ping.
func (s *Session) Run() error {
	writer := &outboundWriter{
		ws:           s.conn,
		ctx:          s.ctx,
		frames:       s.outbound,
		pingInterval: s.cfg.PingInterval,
		writeTimeout: s.cfg.WriteTimeout,
	}
	writerDone := make(chan error, 1)
	go func() { writerDone <- writer.Run() }()

	readErr := s.readLoop()

	// Teardown: invalidate any in-flight generation, stop the writer, and
	// wait for the coordinator goroutine before releasing the session.
	s.epoch.Add(1)
	s.cancel()
	s.genWG.Wait()
	<-writerDone

	if readErr != nil && !isExpectedClose(readErr) {
		return readErr
	}
	return nil
}

// Cancel tears the session down from outside (registry shutdown). The writer
// closes the connection, which unwinds the read loop.
func (s *Session) Cancel() {
	s.epoch.Add(1)
	s.cancel()
}

func (s *Session) readLoop() error {
	for {
		messageType, data, err := s.conn.ReadMessage()
		if err != nil {
			return err
		}
		if messageType != websocket.TextMessage {
			continue
		}

		msg, err := protocol.DecodeInbound(data)
		if err != nil {
			s.logger.Warn("malformed inbound frame", "error", err)
			continue
		}

		switch m := msg.(type) {
		case protocol.Setup:
			s.callSID = m.CallSID
			s.logger.Info("relay setup", "call_sid", m.CallSID, "from", m.From, "to", m.To)
		case protocol.Prompt:
			s.handlePrompt(m.VoicePrompt)
		case protocol.Interrupt:
			s.handleInterrupt(m)
		case protocol.DTMF:
			s.logger.Info("dtmf received", "digit", m.Digit)
		case protocol.Unknown:
			s.logger.Info("unhandled message type", "type", m.Type)
		}
	}
}

func (s *Session) handlePrompt(voicePrompt string) {
	if s.generating.Load() {
		// One generation per session: a transcript arriving mid-generation
		// is dropped, not queued.
		s.logger.Info("prompt dropped, generation in flight")
		return
	}

	if strings.TrimSpace(voicePrompt) == "" {
		s.sendToken(couldNotHearMessage, true)
		return
	}

	s.logger.Info("user prompt", "call_sid", s.callSID, "chars", len(voicePrompt))

	epoch := s.epoch.Add(1)
	s.generating.Store(true)
	s.history.appendUser(voicePrompt)

	s.genWG.Add(1)
	go func() {
		defer s.genWG.Done()
		defer func() {
			// Only the current run may flip the session back to Idle. A
			// superseded run exiting late must not unguard a newer one.
			if s.epoch.Load() == epoch {
				s.generating.Store(false)
			}
		}()
		s.generate(epoch, voicePrompt)
	}()
}

func (s *Session) handleInterrupt(m protocol.Interrupt) {
	if !s.generating.Load() {
		return
	}
	s.logger.Info("interrupt", "utterance", m.UtteranceUntilInterrupt)
	// Invalidate the running generation and return to Idle immediately; the
	// coordinator notices the epoch change on its next token pull.
	s.epoch.Add(1)
	s.generating.Store(false)
}

func (s *Session) sendToken(token string, last bool) {
	frame, err := json.Marshal(protocol.NewTextToken(token, last))
	if err != nil {
		s.logger.Error("encode outbound token", "error", err)
		return
	}
	select {
	case s.outbound <- frame:
	case <-s.ctx.Done():
	}
}

func isExpectedClose(err error) bool {
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
		return true
	}
	return errors.Is(err, net.ErrClosed)
}
