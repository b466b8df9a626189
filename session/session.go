package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hairizuanbinnoorazman/forum-autofill/browser"
	"github.com/hairizuanbinnoorazman/forum-autofill/snapshot"
)

// conn is the long-lived connection shared by successive leases.
type conn struct {
	id       string
	driver   browser.Driver
	endpoint string

	mu           sync.Mutex
	alive        bool
	lastActivity time.Time
	current      string
}

func (c *conn) isAlive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.alive
}

func (c *conn) markDead() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.alive = false
	c.current = ""
}

func (c *conn) touch() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastActivity = time.Now()
}

func (c *conn) invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = ""
}

func (c *conn) setCurrent(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = id
}

func (c *conn) currentID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

func (c *conn) close() error {
	c.markDead()
	return c.driver.Close()
}

// Session is one lease on the connection. It tracks the current snapshot
// and rejects handles from any other snapshot.
type Session struct {
	mgr      *Manager
	conn     *conn
	lease    uint64
	released int32
}

var _ snapshot.Source = (*Session)(nil)

// ID identifies the underlying connection. It is stable across leases.
func (s *Session) ID() string {
	return s.conn.id
}

// Alive reports the connection's liveness flag.
func (s *Session) Alive() bool {
	return s.conn.isAlive()
}

// LastActivity is when the connection last completed a round trip.
func (s *Session) LastActivity() time.Time {
	s.conn.mu.Lock()
	defer s.conn.mu.Unlock()
	return s.conn.lastActivity
}

// CurrentSnapshot is the id of the snapshot whose handles are valid, or ""
// after a page-mutating action.
func (s *Session) CurrentSnapshot() string {
	return s.conn.currentID()
}

// Navigate loads url. It invalidates the current snapshot.
func (s *Session) Navigate(ctx context.Context, url string) error {
	if err := s.check(); err != nil {
		return err
	}
	defer s.conn.invalidate()
	return s.call(ctx, "navigate", s.mgr.cfg.NavigationTimeout, func(ctx context.Context) error {
		return s.conn.driver.Navigate(ctx, url)
	})
}

// LoadState polls the document's readiness.
func (s *Session) LoadState(ctx context.Context) (browser.LoadState, error) {
	if err := s.check(); err != nil {
		return "", err
	}
	var state browser.LoadState
	err := s.call(ctx, "load_state", s.mgr.cfg.RoundTripTimeout, func(ctx context.Context) error {
		var err error
		state, err = s.conn.driver.LoadState(ctx)
		return err
	})
	return state, err
}

// Snapshot issues exactly one capture and makes the result current.
func (s *Session) Snapshot(ctx context.Context) (*snapshot.Snapshot, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	var capture *browser.Capture
	err := s.call(ctx, "snapshot", s.mgr.cfg.RoundTripTimeout, func(ctx context.Context) error {
		var err error
		capture, err = s.conn.driver.Snapshot(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	snap := snapshot.New(capture)
	s.conn.setCurrent(snap.ID)
	return snap, nil
}

// Click activates the element. It invalidates the current snapshot whether
// or not the click succeeded. A round-trip deadline yields
// browser.ErrAmbiguous because the click may have landed.
func (s *Session) Click(ctx context.Context, h snapshot.Handle) error {
	if err := s.checkHandle("click", h); err != nil {
		return err
	}
	defer s.conn.invalidate()
	err := s.call(ctx, "click", s.mgr.cfg.RoundTripTimeout, func(ctx context.Context) error {
		return s.conn.driver.Click(ctx, h.Ref)
	})
	if err != nil && ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, browser.ErrAmbiguous) {
		return errors.Join(browser.ErrAmbiguous, err)
	}
	return err
}

// Fill writes value into a text field.
func (s *Session) Fill(ctx context.Context, h snapshot.Handle, value string) error {
	if err := s.checkHandle("fill", h); err != nil {
		return err
	}
	return s.call(ctx, "fill", s.mgr.cfg.RoundTripTimeout, func(ctx context.Context) error {
		return s.conn.driver.Fill(ctx, h.Ref, value)
	})
}

// InsertRich inserts markup through the editor's native mechanism.
func (s *Session) InsertRich(ctx context.Context, h snapshot.Handle, markup string) error {
	if err := s.checkHandle("insert_rich", h); err != nil {
		return err
	}
	return s.call(ctx, "insert_rich", s.mgr.cfg.RoundTripTimeout, func(ctx context.Context) error {
		return s.conn.driver.InsertRich(ctx, h.Ref, markup)
	})
}

func (s *Session) check() error {
	if atomic.LoadInt32(&s.released) == 1 {
		return ErrReleased
	}
	return nil
}

func (s *Session) checkHandle(op string, h snapshot.Handle) error {
	if err := s.check(); err != nil {
		return err
	}
	current := s.conn.currentID()
	if current == "" || h.SnapshotID != current {
		s.mgr.logger.Warn(context.Background(), "stale handle rejected", map[string]interface{}{
			"session_id":  s.conn.id,
			"op":          op,
			"snapshot_id": h.SnapshotID,
			"current":     current,
		})
		return &StaleHandleError{Op: op, Handle: h, Current: current}
	}
	return nil
}

// call runs one round trip under timeout and marks the connection dead on
// fatal I/O errors.
func (s *Session) call(ctx context.Context, op string, timeout time.Duration, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cctx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		cctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	err := fn(cctx)
	fields := map[string]interface{}{
		"session_id":  s.conn.id,
		"op":          op,
		"duration_ms": time.Since(start).Milliseconds(),
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	s.mgr.logger.Debug(ctx, "protocol round trip", fields)

	if err == nil {
		s.conn.touch()
		return nil
	}
	if browser.IsFatal(err) {
		s.conn.markDead()
		s.mgr.logger.Warn(ctx, "control endpoint connection lost", map[string]interface{}{
			"session_id": s.conn.id,
			"error":      err.Error(),
		})
	}
	return err
}
