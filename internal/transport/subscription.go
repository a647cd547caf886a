// Package transport provides resilient event subscriptions over interchangeable
// carriers. A Subscription owns one Dialer and keeps its connection alive
// through a bounded reconnect loop; the carriers (WebSocket, server-sent
// events) only know how to dial and read.
package transport

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/opsdeck/opsdeck/internal/logging"
)

// State is the lifecycle state of a subscription, as reported to observers.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
)

// DefaultMaxAttempts is the reconnect ceiling. Once a connection has failed
// this many times in a row the subscription goes terminally disconnected and
// stays there until Run is called again.
const DefaultMaxAttempts = 5

// ErrReconnectCeiling is returned by Run when consecutive connection attempts
// exhaust the configured ceiling.
var ErrReconnectCeiling = errors.New("transport: reconnect ceiling reached")

// ErrNotConnected is returned by Send when no live connection exists.
var ErrNotConnected = errors.New("transport: not connected")

// ErrNotDuplex is returned by Send when the carrier is receive-only.
var ErrNotDuplex = errors.New("transport: carrier is receive-only")

// Conn is a live connection yielding raw payloads until it fails or closes.
type Conn interface {
	// Read blocks until the next payload arrives or the connection dies.
	Read() ([]byte, error)
	Close() error
}

// Sender is implemented by duplex connections that accept outbound payloads.
type Sender interface {
	Send(payload []byte) error
}

// Dialer establishes connections for one carrier and owns its retry pacing.
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
	// Name identifies the carrier in logs and state callbacks.
	Name() string
	// Backoff returns a fresh backoff policy for one run of the reconnect
	// loop. The policy paces the gaps between attempts; the attempt ceiling
	// is enforced by the subscription itself.
	Backoff() backoff.BackOff
}

// Config tunes a subscription.
type Config struct {
	// MaxAttempts caps consecutive failed connection attempts. Zero means
	// DefaultMaxAttempts.
	MaxAttempts int
}

// Handler receives each payload read from the connection.
type Handler func(payload []byte)

// StateFunc observes subscription state transitions.
type StateFunc func(carrier string, state State)

// Subscription keeps one carrier connection alive, delivering payloads to its
// handler and state changes to its observer. Safe for a single Run at a time.
type Subscription struct {
	dialer  Dialer
	handler Handler
	cfg     Config
	log     *logging.Logger

	mu      sync.Mutex
	state   State
	conn    Conn
	onState StateFunc
}

// NewSubscription creates a subscription over the given dialer. The handler
// is called once per payload, from the Run goroutine.
func NewSubscription(dialer Dialer, handler Handler, cfg Config, log *logging.Logger) *Subscription {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	return &Subscription{
		dialer:  dialer,
		handler: handler,
		cfg:     cfg,
		log:     log.Sub("transport"),
		state:   StateDisconnected,
	}
}

// OnStateChange registers a state observer. Pass nil to remove it.
func (s *Subscription) OnStateChange(fn StateFunc) {
	s.mu.Lock()
	s.onState = fn
	s.mu.Unlock()
}

// State returns the current lifecycle state.
func (s *Subscription) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Send writes a payload on the live connection. Fails when disconnected or
// when the carrier cannot send.
func (s *Subscription) Send(payload []byte) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()

	if conn == nil {
		return ErrNotConnected
	}
	sender, ok := conn.(Sender)
	if !ok {
		return ErrNotDuplex
	}
	return sender.Send(payload)
}

// Run connects and reads until the context is canceled or the reconnect
// ceiling is reached. A successful dial resets the attempt counter, so the
// ceiling only trips on consecutive failures. Run returns nil on context
// cancellation and ErrReconnectCeiling when the ceiling trips.
func (s *Subscription) Run(ctx context.Context) error {
	attempts := 0
	pace := s.dialer.Backoff()

	for {
		if ctx.Err() != nil {
			s.setState(StateDisconnected)
			return nil
		}

		s.setState(StateConnecting)
		conn, err := s.dialer.Dial(ctx)
		if err != nil {
			attempts++
			s.log.Warn().Err(err).
				Str("carrier", s.dialer.Name()).
				Int("attempt", attempts).
				Int("max", s.cfg.MaxAttempts).
				Msg("connection attempt failed")

			if attempts >= s.cfg.MaxAttempts {
				s.setState(StateDisconnected)
				return ErrReconnectCeiling
			}
			if !s.sleep(ctx, pace) {
				s.setState(StateDisconnected)
				return nil
			}
			continue
		}

		attempts = 0
		pace.Reset()
		s.mu.Lock()
		s.conn = conn
		s.mu.Unlock()
		s.setState(StateConnected)
		s.log.Info().Str("carrier", s.dialer.Name()).Msg("connected")

		err = s.read(ctx, conn)
		s.mu.Lock()
		s.conn = nil
		s.mu.Unlock()
		conn.Close()

		if ctx.Err() != nil {
			s.setState(StateDisconnected)
			return nil
		}
		s.log.Warn().Err(err).Str("carrier", s.dialer.Name()).Msg("connection lost, reconnecting")
	}
}

// read pumps payloads to the handler until the connection fails. A watcher
// goroutine closes the connection on context cancellation so the blocking
// Read returns promptly.
func (s *Subscription) read(ctx context.Context, conn Conn) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		payload, err := conn.Read()
		if err != nil {
			return err
		}
		s.handler(payload)
	}
}

// sleep waits for the next backoff interval. Returns false if the context was
// canceled while waiting or the policy gave up.
func (s *Subscription) sleep(ctx context.Context, pace backoff.BackOff) bool {
	next := pace.NextBackOff()
	if next == backoff.Stop {
		return false
	}
	timer := time.NewTimer(next)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (s *Subscription) setState(state State) {
	s.mu.Lock()
	changed := s.state != state
	s.state = state
	fn := s.onState
	s.mu.Unlock()

	if changed && fn != nil {
		fn(s.dialer.Name(), state)
	}
}
