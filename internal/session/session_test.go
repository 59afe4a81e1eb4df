package session

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contextbridge/backend/internal/instruction"
	"github.com/contextbridge/backend/internal/shared/sched"
	"github.com/contextbridge/backend/internal/types"
)

// fakeConn is a scriptable duplex channel. Inbound frames are pushed on
// inbox; Close unblocks any pending read with io.EOF.
type fakeConn struct {
	inbox chan []byte

	mu      sync.Mutex
	written [][]byte

	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		inbox:  make(chan []byte, 16),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() ([]byte, error) {
	select {
	case data := <-c.inbox:
		return data, nil
	case <-c.closed:
		return nil, io.EOF
	}
}

func (c *fakeConn) WriteMessage(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.written = append(c.written, append([]byte(nil), data...))
	return nil
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

// writtenTypes decodes every written envelope's type tag.
func (c *fakeConn) writtenTypes() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.written))
	for _, data := range c.written {
		var env types.Message
		if sonic.Unmarshal(data, &env) == nil {
			out = append(out, env.Type)
		}
	}
	return out
}

func (c *fakeConn) hasWritten(msgType string) bool {
	for _, t := range c.writtenTypes() {
		if t == msgType {
			return true
		}
	}
	return false
}

// push delivers an inbound envelope.
func (c *fakeConn) push(t *testing.T, msgType string, data any) {
	t.Helper()
	env := types.NewMessage(msgType, data)
	payload, err := sonic.Marshal(env)
	require.NoError(t, err)
	c.inbox <- payload
}

// testSched is a manual scheduler shared with the session under test, so
// it takes a lock: reconnects are scheduled from the read-loop goroutine.
type testTask struct {
	delay     time.Duration
	fn        func()
	cancelled bool
}

func (t *testTask) Cancel() { t.cancelled = true }

type testSched struct {
	mu    sync.Mutex
	tasks []*testTask
}

func (s *testSched) After(d time.Duration, fn func()) sched.CancelHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	task := &testTask{delay: d, fn: fn}
	s.tasks = append(s.tasks, task)
	return task
}

func (s *testSched) pending() []*testTask {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*testTask(nil), s.tasks...)
}

// fire runs and drops all currently pending tasks; tasks scheduled during
// fire stay pending for the next call.
func (s *testSched) fire() {
	s.mu.Lock()
	batch := s.tasks
	s.tasks = nil
	s.mu.Unlock()
	for _, t := range batch {
		if !t.cancelled {
			t.fn()
		}
	}
}

func testConfig() Config {
	return Config{
		URL:           "ws://backend.test/ws",
		ReconnectBase: 100 * time.Millisecond,
		MaxAttempts:   2,
	}
}

// dialTo always hands out the given conn.
func dialTo(conn Conn) DialFunc {
	return func(context.Context, string, http.Header) (Conn, error) {
		return conn, nil
	}
}

func TestConnectOpensSession(t *testing.T) {
	conn := newFakeConn()
	var mu sync.Mutex
	var transitions []State

	s := New(testConfig(), Hooks{
		OnStateChange: func(_, to State) {
			mu.Lock()
			transitions = append(transitions, to)
			mu.Unlock()
		},
	}, nil, WithDialer(dialTo(conn)), WithScheduler(&testSched{}))

	require.Equal(t, StateIdle, s.State())
	require.NoError(t, s.Connect(context.Background()))
	assert.Equal(t, StateOpen, s.State())

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(transitions) == 2
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	assert.Contains(t, transitions, StateConnecting)
	assert.Contains(t, transitions, StateOpen)
	mu.Unlock()

	require.NoError(t, s.Close())
}

func TestConnectWhileOpenIsNoOp(t *testing.T) {
	conn := newFakeConn()
	s := New(testConfig(), Hooks{}, nil, WithDialer(dialTo(conn)), WithScheduler(&testSched{}))

	require.NoError(t, s.Connect(context.Background()))
	require.NoError(t, s.Connect(context.Background()))
	assert.Equal(t, StateOpen, s.State())

	require.NoError(t, s.Close())
}

func TestSendBeforeOpenIsDropped(t *testing.T) {
	s := New(testConfig(), Hooks{}, nil, WithDialer(dialTo(newFakeConn())), WithScheduler(&testSched{}))

	err := s.SendContext(&types.PageContext{URL: "https://example.com"})
	assert.ErrorIs(t, err, ErrNotOpen)
}

func TestSendWrapsEnvelope(t *testing.T) {
	conn := newFakeConn()
	s := New(testConfig(), Hooks{}, nil, WithDialer(dialTo(conn)), WithScheduler(&testSched{}))
	require.NoError(t, s.Connect(context.Background()))
	defer s.Close()

	require.NoError(t, s.SendContext(&types.PageContext{URL: "https://example.com/cart"}))

	conn.mu.Lock()
	require.Len(t, conn.written, 1)
	raw := conn.written[0]
	conn.mu.Unlock()

	var env struct {
		Type      string            `json:"type"`
		ID        string            `json:"id"`
		Timestamp int64             `json:"timestamp"`
		Data      types.PageContext `json:"data"`
	}
	require.NoError(t, sonic.Unmarshal(raw, &env))
	assert.Equal(t, types.MsgContext, env.Type)
	assert.NotEmpty(t, env.ID)
	assert.NotZero(t, env.Timestamp)
	assert.Equal(t, "https://example.com/cart", env.Data.URL)
}

func TestPingAnsweredWithPong(t *testing.T) {
	conn := newFakeConn()
	s := New(testConfig(), Hooks{}, nil, WithDialer(dialTo(conn)), WithScheduler(&testSched{}))
	require.NoError(t, s.Connect(context.Background()))
	defer s.Close()

	conn.push(t, types.MsgPing, nil)

	require.Eventually(t, func() bool {
		return conn.hasWritten(types.MsgPong)
	}, time.Second, 5*time.Millisecond)
}

func TestContextRequestUsesSupplier(t *testing.T) {
	conn := newFakeConn()
	s := New(testConfig(), Hooks{
		ContextSupplier: func() *types.PageContext {
			return &types.PageContext{URL: "https://example.com/now", Title: "Now"}
		},
	}, nil, WithDialer(dialTo(conn)), WithScheduler(&testSched{}))
	require.NoError(t, s.Connect(context.Background()))
	defer s.Close()

	conn.push(t, types.MsgContextRequest, nil)

	require.Eventually(t, func() bool {
		return conn.hasWritten(types.MsgContext)
	}, time.Second, 5*time.Millisecond)
}

func TestContextRequestWithoutSupplierIsIgnored(t *testing.T) {
	conn := newFakeConn()
	s := New(testConfig(), Hooks{}, nil, WithDialer(dialTo(conn)), WithScheduler(&testSched{}))
	require.NoError(t, s.Connect(context.Background()))
	defer s.Close()

	conn.push(t, types.MsgContextRequest, nil)
	// A follow-up ping proves the loop survived and stayed in order.
	conn.push(t, types.MsgPing, nil)

	require.Eventually(t, func() bool {
		return conn.hasWritten(types.MsgPong)
	}, time.Second, 5*time.Millisecond)
	assert.False(t, conn.hasWritten(types.MsgContext))
}

func TestInstructionDispatchedInOrder(t *testing.T) {
	conn := newFakeConn()
	received := make(chan instruction.Instruction, 4)

	s := New(testConfig(), Hooks{
		OnInstruction: func(in instruction.Instruction) { received <- in },
	}, nil, WithDialer(dialTo(conn)), WithScheduler(&testSched{}))
	require.NoError(t, s.Connect(context.Background()))
	defer s.Close()

	conn.push(t, types.MsgInstruction, map[string]any{
		"id":   "i1",
		"type": "highlight_element",
		"data": map[string]any{"selector": "#first"},
	})
	conn.push(t, types.MsgInstruction, map[string]any{
		"id":   "i2",
		"type": "click_element",
		"data": map[string]any{"selector": "#second"},
	})

	first := <-received
	second := <-received
	assert.Equal(t, "i1", first.ID)
	assert.Equal(t, instruction.TypeHighlightElement, first.Type)
	assert.Equal(t, "i2", second.ID)
}

func TestMalformedInstructionDroppedChannelSurvives(t *testing.T) {
	conn := newFakeConn()
	received := make(chan instruction.Instruction, 4)

	s := New(testConfig(), Hooks{
		OnInstruction: func(in instruction.Instruction) { received <- in },
	}, nil, WithDialer(dialTo(conn)), WithScheduler(&testSched{}))
	require.NoError(t, s.Connect(context.Background()))
	defer s.Close()

	// Unknown tag, then missing required field, then garbage bytes.
	conn.push(t, types.MsgInstruction, map[string]any{
		"id": "bad1", "type": "teleport", "data": map[string]any{},
	})
	conn.push(t, types.MsgInstruction, map[string]any{
		"id": "bad2", "type": "redirect", "data": map[string]any{},
	})
	conn.inbox <- []byte("{not json")

	conn.push(t, types.MsgInstruction, map[string]any{
		"id":   "good",
		"type": "redirect",
		"data": map[string]any{"url": "https://example.com"},
	})

	in := <-received
	assert.Equal(t, "good", in.ID)
	assert.Empty(t, received)
	assert.Equal(t, StateOpen, s.State())
}

func TestReconnectBackoffDoubles(t *testing.T) {
	ts := &testSched{}
	dialErr := errors.New("refused")
	s := New(testConfig(), Hooks{}, nil,
		WithDialer(func(context.Context, string, http.Header) (Conn, error) {
			return nil, dialErr
		}),
		WithScheduler(ts))

	require.Error(t, s.Connect(context.Background()))
	assert.Equal(t, StateClosed, s.State())

	pending := ts.pending()
	require.Len(t, pending, 1)
	assert.Equal(t, 200*time.Millisecond, pending[0].delay)

	ts.fire()
	pending = ts.pending()
	require.Len(t, pending, 1)
	assert.Equal(t, 400*time.Millisecond, pending[0].delay)
}

func TestReconnectExhaustionIsTerminal(t *testing.T) {
	ts := &testSched{}
	fatal := make(chan error, 1)
	s := New(testConfig(), Hooks{
		OnFatal: func(err error) { fatal <- err },
	}, nil,
		WithDialer(func(context.Context, string, http.Header) (Conn, error) {
			return nil, errors.New("refused")
		}),
		WithScheduler(ts))

	require.Error(t, s.Connect(context.Background()))
	ts.fire() // second failure
	ts.fire() // third failure, budget of 2 exhausted

	select {
	case err := <-fatal:
		assert.ErrorIs(t, err, ErrFailed)
	case <-time.After(time.Second):
		t.Fatal("OnFatal never fired")
	}

	assert.Equal(t, StateFailed, s.State())
	assert.Empty(t, ts.pending())

	// Further connects are refused outright.
	assert.ErrorIs(t, s.Connect(context.Background()), ErrFailed)
}

func TestSuccessfulReconnectResetsBackoff(t *testing.T) {
	ts := &testSched{}
	var mu sync.Mutex
	fail := true
	conns := []*fakeConn{}

	s := New(testConfig(), Hooks{}, nil,
		WithDialer(func(context.Context, string, http.Header) (Conn, error) {
			mu.Lock()
			defer mu.Unlock()
			if fail {
				return nil, errors.New("refused")
			}
			c := newFakeConn()
			conns = append(conns, c)
			return c, nil
		}),
		WithScheduler(ts))

	require.Error(t, s.Connect(context.Background()))

	mu.Lock()
	fail = false
	mu.Unlock()
	ts.fire()
	require.Equal(t, StateOpen, s.State())

	// Drop the live connection: backoff restarts from the base delay.
	mu.Lock()
	fail = true
	live := conns[0]
	mu.Unlock()
	live.Close()

	require.Eventually(t, func() bool {
		return len(ts.pending()) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 200*time.Millisecond, ts.pending()[0].delay)

	require.NoError(t, s.Close())
}

func TestDeliberateCloseSkipsReconnect(t *testing.T) {
	ts := &testSched{}
	conn := newFakeConn()
	s := New(testConfig(), Hooks{}, nil, WithDialer(dialTo(conn)), WithScheduler(ts))
	require.NoError(t, s.Connect(context.Background()))

	require.NoError(t, s.Close())
	assert.Equal(t, StateClosed, s.State())

	// Give the read loop time to observe EOF; nothing must be scheduled.
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, ts.pending())

	assert.NotPanics(t, func() { _ = s.Close() })
}

func TestSendScreenshotEnvelope(t *testing.T) {
	conn := newFakeConn()
	s := New(testConfig(), Hooks{}, nil, WithDialer(dialTo(conn)), WithScheduler(&testSched{}))
	require.NoError(t, s.Connect(context.Background()))
	defer s.Close()

	require.NoError(t, s.SendScreenshot("https://example.com", "aGVsbG8="))

	conn.mu.Lock()
	raw := conn.written[0]
	conn.mu.Unlock()

	var env struct {
		Type string            `json:"type"`
		Data map[string]string `json:"data"`
	}
	require.NoError(t, sonic.Unmarshal(raw, &env))
	assert.Equal(t, types.MsgScreenshot, env.Type)
	assert.Equal(t, "https://example.com", env.Data["url"])
	assert.Equal(t, "aGVsbG8=", env.Data["screenshot"])
}
