// Package session owns the long-lived connection to the browser-control
// endpoint and hands it out to one fill operation at a time.
package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/hairizuanbinnoorazman/forum-autofill/browser"
	"github.com/hairizuanbinnoorazman/forum-autofill/logger"
)

// BusyPolicy decides what Acquire does while the session is held.
type BusyPolicy string

const (
	// PolicyQueue waits in arrival order.
	PolicyQueue BusyPolicy = "queue"
	// PolicyFailFast returns ErrBusy at once.
	PolicyFailFast BusyPolicy = "fail_fast"
)

// ParseBusyPolicy accepts "queue" and "fail_fast".
func ParseBusyPolicy(s string) (BusyPolicy, error) {
	switch BusyPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case PolicyQueue, "":
		return PolicyQueue, nil
	case PolicyFailFast:
		return PolicyFailFast, nil
	}
	return "", fmt.Errorf("unknown busy policy %q", s)
}

// Config tunes a Manager.
type Config struct {
	// ConnectTimeout bounds each dial.
	ConnectTimeout time.Duration
	// RoundTripTimeout bounds every protocol call except navigation.
	RoundTripTimeout time.Duration
	// NavigationTimeout bounds navigation calls.
	NavigationTimeout time.Duration
	Policy            BusyPolicy
	// Sink receives the readiness event. Defaults to a LogSink.
	Sink ReadySink
}

// Manager holds one connection and leases it to one caller at a time.
type Manager struct {
	dialer browser.Dialer
	cfg    Config
	logger logger.Logger

	// gate is a one-slot semaphore. Blocked senders are served in FIFO order.
	gate chan struct{}

	mu     sync.Mutex
	conn   *conn
	closed bool

	readyOnce sync.Once
	leases    uint64
}

// NewManager creates a manager. It does not dial until the first Acquire.
func NewManager(dialer browser.Dialer, cfg Config, log logger.Logger) *Manager {
	log = logger.OrNop(log)
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 120 * time.Second
	}
	if cfg.Policy == "" {
		cfg.Policy = PolicyQueue
	}
	if cfg.Sink == nil {
		cfg.Sink = LogSink{Logger: log}
	}
	return &Manager{
		dialer: dialer,
		cfg:    cfg,
		logger: log,
		gate:   make(chan struct{}, 1),
	}
}

// Acquire waits for the session according to the busy policy, then
// connects or reuses the live connection.
func (m *Manager) Acquire(ctx context.Context) (*Session, error) {
	if err := m.enter(ctx); err != nil {
		return nil, err
	}

	c, err := m.connect(ctx)
	if err != nil {
		<-m.gate
		return nil, err
	}

	c.invalidate()
	lease := atomic.AddUint64(&m.leases, 1)
	m.logger.Debug(ctx, "session acquired", map[string]interface{}{
		"session_id": c.id,
		"lease":      lease,
	})
	return &Session{mgr: m, conn: c, lease: lease}, nil
}

func (m *Manager) enter(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.cfg.Policy == PolicyFailFast {
		select {
		case m.gate <- struct{}{}:
			return nil
		default:
			return ErrBusy
		}
	}
	select {
	case m.gate <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) connect(ctx context.Context) (*conn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClosed
	}
	if m.conn != nil && m.conn.isAlive() {
		return m.conn, nil
	}
	if m.conn != nil {
		m.conn.close()
		m.conn = nil
	}

	dctx, cancel := context.WithTimeout(ctx, m.cfg.ConnectTimeout)
	defer cancel()

	endpoint := m.dialer.Endpoint()
	start := time.Now()
	drv, err := m.dialer.Dial(dctx)
	if err != nil {
		m.logger.Error(ctx, "failed to connect to control endpoint", map[string]interface{}{
			"error":    err.Error(),
			"endpoint": endpoint,
		})
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %s: %w", ErrConnection, endpoint, err)
	}

	c := &conn{
		id:           uuid.New().String(),
		driver:       drv,
		endpoint:     endpoint,
		alive:        true,
		lastActivity: time.Now(),
	}
	m.conn = c

	m.logger.Info(ctx, "connected to control endpoint", map[string]interface{}{
		"session_id":  c.id,
		"endpoint":    endpoint,
		"duration_ms": time.Since(start).Milliseconds(),
	})
	m.readyOnce.Do(func() {
		m.cfg.Sink.Ready(ctx, ReadyEvent{SessionID: c.id, Endpoint: endpoint, At: time.Now().UTC()})
	})
	return c, nil
}

// Release returns the session to the manager. Releasing twice is a no-op.
func (m *Manager) Release(s *Session) {
	if s == nil || s.mgr != m {
		return
	}
	if !atomic.CompareAndSwapInt32(&s.released, 0, 1) {
		return
	}
	s.conn.invalidate()
	<-m.gate
	m.logger.Debug(context.Background(), "session released", map[string]interface{}{
		"session_id": s.conn.id,
		"lease":      s.lease,
	})
}

// Close tears down the connection. Later Acquire calls fail with ErrClosed.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	if m.conn == nil {
		return nil
	}
	err := m.conn.close()
	m.logger.Info(context.Background(), "control endpoint connection closed", map[string]interface{}{
		"session_id": m.conn.id,
	})
	m.conn = nil
	return err
}

// Endpoint describes the control endpoint.
func (m *Manager) Endpoint() string {
	return m.dialer.Endpoint()
}

// WithSession acquires a session, runs fn, and releases the session on every
// exit path, including a panic in fn.
func WithSession[T any](ctx context.Context, m *Manager, fn func(ctx context.Context, s *Session) (T, error)) (T, error) {
	s, err := m.Acquire(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	defer m.Release(s)
	return fn(ctx, s)
}
