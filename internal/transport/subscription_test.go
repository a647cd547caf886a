package transport

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsdeck/opsdeck/internal/logging"
)

// fakeConn replays scripted payloads, then fails with failErr.
type fakeConn struct {
	mu       sync.Mutex
	payloads [][]byte
	failErr  error
	closed   bool
}

func (c *fakeConn) Read() ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, io.ErrClosedPipe
	}
	if len(c.payloads) == 0 {
		return nil, c.failErr
	}
	p := c.payloads[0]
	c.payloads = c.payloads[1:]
	return p, nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

// fakeDialer returns each scripted outcome in order; once exhausted, every
// further dial fails.
type fakeDialer struct {
	mu       sync.Mutex
	outcomes []func() (Conn, error)
	dials    int
}

func (d *fakeDialer) Dial(ctx context.Context) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if len(d.outcomes) == 0 {
		return nil, errors.New("dial refused")
	}
	next := d.outcomes[0]
	d.outcomes = d.outcomes[1:]
	return next()
}

func (d *fakeDialer) Name() string { return "fake" }

func (d *fakeDialer) Backoff() backoff.BackOff {
	return backoff.NewConstantBackOff(time.Millisecond)
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func conn(payloads ...string) func() (Conn, error) {
	return func() (Conn, error) {
		c := &fakeConn{failErr: io.EOF}
		for _, p := range payloads {
			c.payloads = append(c.payloads, []byte(p))
		}
		return c, nil
	}
}

func dialFailure() func() (Conn, error) {
	return func() (Conn, error) { return nil, errors.New("connection refused") }
}

func testLog() *logging.Logger { return logging.New(nil, "silent") }

func TestSubscription_DeliversPayloadsInOrder(t *testing.T) {
	dialer := &fakeDialer{outcomes: []func() (Conn, error){conn("one", "two", "three")}}

	var got []string
	var mu sync.Mutex
	sub := NewSubscription(dialer, func(p []byte) {
		mu.Lock()
		got = append(got, string(p))
		mu.Unlock()
	}, Config{MaxAttempts: 2}, testLog())

	err := sub.Run(context.Background())
	require.ErrorIs(t, err, ErrReconnectCeiling)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"one", "two", "three"}, got)
}

func TestSubscription_ReconnectsAfterDrop(t *testing.T) {
	dialer := &fakeDialer{outcomes: []func() (Conn, error){
		conn("before drop"),
		conn("after drop"),
	}}

	var got []string
	var mu sync.Mutex
	sub := NewSubscription(dialer, func(p []byte) {
		mu.Lock()
		got = append(got, string(p))
		mu.Unlock()
	}, Config{MaxAttempts: 2}, testLog())

	sub.Run(context.Background())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"before drop", "after drop"}, got)
}

func TestSubscription_CeilingStopsRetrying(t *testing.T) {
	dialer := &fakeDialer{}

	sub := NewSubscription(dialer, func([]byte) {}, Config{MaxAttempts: 5}, testLog())
	err := sub.Run(context.Background())

	require.ErrorIs(t, err, ErrReconnectCeiling)
	assert.Equal(t, 5, dialer.dialCount())
	assert.Equal(t, StateDisconnected, sub.State())
}

func TestSubscription_SuccessResetsAttempts(t *testing.T) {
	// Two failures, a success, then two more failures: with a ceiling of 3
	// the run must survive past the first success and only give up after
	// three consecutive failures.
	dialer := &fakeDialer{outcomes: []func() (Conn, error){
		dialFailure(),
		dialFailure(),
		conn("alive"),
		dialFailure(),
		dialFailure(),
	}}

	sub := NewSubscription(dialer, func([]byte) {}, Config{MaxAttempts: 3}, testLog())
	err := sub.Run(context.Background())

	require.ErrorIs(t, err, ErrReconnectCeiling)
	assert.Equal(t, 6, dialer.dialCount())
}

func TestSubscription_ContextCancelStopsCleanly(t *testing.T) {
	// The connection never yields: the watcher must close it on cancel so the
	// blocked Read returns.
	blocking := &blockingConn{release: make(chan struct{})}
	dialer := &fakeDialer{outcomes: []func() (Conn, error){
		func() (Conn, error) { return blocking, nil },
	}}

	sub := NewSubscription(dialer, func([]byte) {}, Config{}, testLog())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sub.Run(ctx) }()

	// Let it connect, then cancel.
	require.Eventually(t, func() bool { return sub.State() == StateConnected },
		time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Equal(t, StateDisconnected, sub.State())
}

type blockingConn struct {
	release chan struct{}
	once    sync.Once
}

func (c *blockingConn) Read() ([]byte, error) {
	<-c.release
	return nil, io.ErrClosedPipe
}

func (c *blockingConn) Close() error {
	c.once.Do(func() { close(c.release) })
	return nil
}

func TestSubscription_StateTransitions(t *testing.T) {
	dialer := &fakeDialer{outcomes: []func() (Conn, error){conn("x")}}

	var states []State
	var mu sync.Mutex
	sub := NewSubscription(dialer, func([]byte) {}, Config{MaxAttempts: 1}, testLog())
	sub.OnStateChange(func(carrier string, st State) {
		assert.Equal(t, "fake", carrier)
		mu.Lock()
		states = append(states, st)
		mu.Unlock()
	})

	sub.Run(context.Background())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []State{StateConnecting, StateConnected, StateConnecting, StateDisconnected}, states)
}

func TestSubscription_Send_NotConnected(t *testing.T) {
	sub := NewSubscription(&fakeDialer{}, func([]byte) {}, Config{}, testLog())
	assert.ErrorIs(t, sub.Send([]byte("x")), ErrNotConnected)
}

func TestSubscription_Send_ReceiveOnlyCarrier(t *testing.T) {
	blocking := &blockingConn{release: make(chan struct{})}
	dialer := &fakeDialer{outcomes: []func() (Conn, error){
		func() (Conn, error) { return blocking, nil },
	}}

	sub := NewSubscription(dialer, func([]byte) {}, Config{}, testLog())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sub.Run(ctx)

	require.Eventually(t, func() bool { return sub.State() == StateConnected },
		time.Second, 5*time.Millisecond)
	assert.ErrorIs(t, sub.Send([]byte("x")), ErrNotDuplex)
}

func TestPushDialer_ReadsEventStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, ": heartbeat\n\n")
		io.WriteString(w, "data: {\"type\":\"progress\",\"percent\":50}\n\n")
		io.WriteString(w, "data: first line\ndata: second line\n\n")
	}))
	defer srv.Close()

	dialer := NewPushDialer(srv.URL, "")
	c, err := dialer.Dial(context.Background())
	require.NoError(t, err)
	defer c.Close()

	p1, err := c.Read()
	require.NoError(t, err)
	assert.Equal(t, `{"type":"progress","percent":50}`, string(p1))

	p2, err := c.Read()
	require.NoError(t, err)
	assert.Equal(t, "first line\nsecond line", string(p2))

	_, err = c.Read()
	assert.ErrorIs(t, err, io.EOF)
}

func TestPushDialer_RejectsNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	dialer := NewPushDialer(srv.URL, "")
	_, err := dialer.Dial(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestSocketDialer_DialAndEcho(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		ws, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer ws.Close()

		_, msg, err := ws.ReadMessage()
		if err != nil {
			return
		}
		ws.WriteMessage(websocket.TextMessage, msg)
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	dialer := NewSocketDialer(url, "tok")
	c, err := dialer.Dial(context.Background())
	require.NoError(t, err)
	defer c.Close()

	sender, ok := c.(Sender)
	require.True(t, ok)
	require.NoError(t, sender.Send([]byte("ping")))

	payload, err := c.Read()
	require.NoError(t, err)
	assert.Equal(t, "ping", string(payload))
}

func TestDialerBackoffShapes(t *testing.T) {
	sb, ok := NewSocketDialer("ws://localhost", "").Backoff().(*backoff.ExponentialBackOff)
	require.True(t, ok, "socket pacing should be exponential")
	assert.Equal(t, time.Second, sb.InitialInterval)
	assert.Zero(t, sb.MaxElapsedTime, "only the attempt ceiling may stop retries")

	pb := NewPushDialer("http://localhost", "").Backoff()
	assert.Equal(t, pb.NextBackOff(), pb.NextBackOff(), "push pacing should be constant")
}
