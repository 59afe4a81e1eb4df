// Package session owns one logical duplex connection between the page and
// the backend: connect/retry lifecycle with exponential backoff, envelope
// (de)serialization, and inbound message dispatch to the executor.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"

	"github.com/contextbridge/backend/internal/instruction"
	"github.com/contextbridge/backend/internal/logging"
	"github.com/contextbridge/backend/internal/shared/id"
	"github.com/contextbridge/backend/internal/shared/sched"
	"github.com/contextbridge/backend/internal/types"
)

// ErrNotOpen is returned by Send when the channel is not Open. Sends are
// dropped, never queued: callers must not assume delivery.
var ErrNotOpen = errors.New("session not open")

// ErrFailed marks a session that exhausted its reconnect budget.
var ErrFailed = errors.New("session failed: reconnect attempts exhausted")

// Config holds the session's endpoint and reconnect policy.
type Config struct {
	URL           string
	Headers       http.Header
	ReconnectBase time.Duration
	MaxAttempts   int
}

// Hooks are the session's outward edges.
type Hooks struct {
	// OnInstruction receives each successfully decoded instruction, in
	// arrival order.
	OnInstruction func(instruction.Instruction)
	// ContextSupplier produces a fresh context snapshot for
	// context_request messages.
	ContextSupplier func() *types.PageContext
	// OnStateChange observes lifecycle transitions.
	OnStateChange func(from, to State)
	// OnFatal fires once when the session transitions to Failed.
	OnFatal func(err error)
}

// Session is the transport state machine.
type Session struct {
	cfg   Config
	dial  DialFunc
	hooks Hooks
	log   *logging.Logger
	sched sched.Scheduler

	mu         sync.Mutex
	state      State
	conn       Conn
	closures   int // consecutive unexpected closures
	deliberate bool
	retry      sched.CancelHandle
}

// Option customizes a Session.
type Option func(*Session)

// WithDialer replaces the websocket dialer, used in tests.
func WithDialer(d DialFunc) Option {
	return func(s *Session) { s.dial = d }
}

// WithScheduler replaces the backoff scheduler, used in tests.
func WithScheduler(sc sched.Scheduler) Option {
	return func(s *Session) { s.sched = sc }
}

// New creates a session. It starts Idle; call Connect to open it.
func New(cfg Config, hooks Hooks, log *logging.Logger, opts ...Option) *Session {
	if log == nil {
		log = logging.NewNop()
	}
	if cfg.ReconnectBase <= 0 {
		cfg.ReconnectBase = time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	s := &Session{
		cfg:   cfg,
		dial:  Dial,
		hooks: hooks,
		log:   log.WithComponent("session"),
		sched: sched.New(),
		state: StateIdle,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Connect dials the endpoint. On success the session is Open and a read
// loop runs until the connection drops or Close is called.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateFailed {
		s.mu.Unlock()
		return ErrFailed
	}
	if s.state == StateConnecting || s.state == StateOpen {
		s.mu.Unlock()
		return nil
	}
	s.setStateLocked(StateConnecting)
	s.mu.Unlock()

	conn, err := s.dial(ctx, s.cfg.URL, s.cfg.Headers)
	if err != nil {
		s.log.Warn("connect failed", zap.String("url", s.cfg.URL), zap.Error(err))
		s.mu.Lock()
		s.setStateLocked(StateClosed)
		s.scheduleReconnectLocked()
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	s.conn = conn
	s.closures = 0
	s.setStateLocked(StateOpen)
	s.mu.Unlock()

	s.log.Info("session open", zap.String("url", s.cfg.URL))
	go s.readLoop(conn)
	return nil
}

// Close tears the session down deliberately: no reconnect is scheduled.
// Idempotent.
func (s *Session) Close() error {
	s.mu.Lock()
	s.deliberate = true
	if s.retry != nil {
		s.retry.Cancel()
		s.retry = nil
	}
	conn := s.conn
	s.conn = nil
	if s.state != StateFailed {
		s.setStateLocked(StateClosed)
	}
	s.mu.Unlock()

	if conn != nil {
		return conn.Close()
	}
	return nil
}

// Send wraps data in an envelope and writes it. When the channel is not
// Open the send is dropped and ErrNotOpen returned.
func (s *Session) Send(msgType string, data any) error {
	s.mu.Lock()
	conn := s.conn
	open := s.state == StateOpen
	s.mu.Unlock()

	if !open || conn == nil {
		s.log.Debug("dropping send, channel not open", zap.String("type", msgType))
		return ErrNotOpen
	}

	env := types.Message{
		Type:      msgType,
		Data:      data,
		Timestamp: types.NowMillis(),
		ID:        id.NewMessageID().String(),
	}
	payload, err := sonic.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to encode %s envelope: %w", msgType, err)
	}
	return conn.WriteMessage(payload)
}

// SendContext sends a context snapshot envelope.
func (s *Session) SendContext(pc *types.PageContext) error {
	return s.Send(types.MsgContext, pc)
}

// SendScreenshot sends a captured screenshot for a URL.
func (s *Session) SendScreenshot(url, base64Data string) error {
	return s.Send(types.MsgScreenshot, map[string]any{
		"url":        url,
		"screenshot": base64Data,
	})
}

func (s *Session) readLoop(conn Conn) {
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			s.handleClose(conn, err)
			return
		}
		s.handleMessage(data)
	}
}

// inboundEnvelope keeps Data raw so instruction payloads get the strict
// two-phase decode.
type inboundEnvelope struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
	ID        string          `json:"id,omitempty"`
}

func (s *Session) handleMessage(data []byte) {
	var env inboundEnvelope
	if err := sonic.Unmarshal(data, &env); err != nil {
		s.log.Warn("dropping malformed envelope", zap.Error(err))
		return
	}

	switch env.Type {
	case types.MsgPing:
		if err := s.Send(types.MsgPong, nil); err != nil {
			s.log.Debug("pong not sent", zap.Error(err))
		}

	case types.MsgContextRequest:
		if s.hooks.ContextSupplier == nil {
			s.log.Debug("context requested but no supplier configured")
			return
		}
		if pc := s.hooks.ContextSupplier(); pc != nil {
			if err := s.SendContext(pc); err != nil {
				s.log.Debug("context not sent", zap.Error(err))
			}
		}

	case types.MsgInstruction:
		in, err := instruction.Decode(env.Data)
		if err != nil {
			// Malformed instructions are dropped; the channel stays open.
			s.log.Warn("dropping undecodable instruction", zap.Error(err))
			return
		}
		if s.hooks.OnInstruction != nil {
			s.hooks.OnInstruction(in)
		}

	default:
		s.log.Debug("ignoring message", zap.String("type", env.Type))
	}
}

func (s *Session) handleClose(conn Conn, err error) {
	_ = conn.Close()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn != conn {
		// A stale read loop from a superseded connection.
		return
	}
	s.conn = nil

	if s.deliberate {
		s.setStateLocked(StateClosed)
		return
	}

	s.log.Warn("connection lost", zap.Error(err))
	s.setStateLocked(StateClosed)
	s.scheduleReconnectLocked()
}

// scheduleReconnectLocked schedules the next attempt with exponential
// backoff: delay = base * 2^closures. After MaxAttempts consecutive
// closures the session is terminally Failed. Caller holds the lock.
func (s *Session) scheduleReconnectLocked() {
	s.closures++
	if s.closures > s.cfg.MaxAttempts {
		s.setStateLocked(StateFailed)
		s.log.Error("reconnect attempts exhausted",
			zap.Int("max_attempts", s.cfg.MaxAttempts))
		if s.hooks.OnFatal != nil {
			go s.hooks.OnFatal(ErrFailed)
		}
		return
	}

	delay := s.cfg.ReconnectBase * (1 << s.closures)
	s.log.Info("scheduling reconnect",
		zap.Int("closure", s.closures),
		zap.Duration("delay", delay))
	s.retry = s.sched.After(delay, func() {
		_ = s.Connect(context.Background())
	})
}

func (s *Session) setStateLocked(to State) {
	from := s.state
	if from == to {
		return
	}
	s.state = to
	if s.hooks.OnStateChange != nil {
		go s.hooks.OnStateChange(from, to)
	}
}
