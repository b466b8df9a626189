package browsertest

import (
	"context"
	"fmt"
	"sync"

	"github.com/hairizuanbinnoorazman/forum-autofill/browser"
)

// Dialer hands out drivers from a factory and counts dials.
type Dialer struct {
	// New builds the driver for each successful dial.
	New func() browser.Driver
	// Err, when set, fails every dial with browser.ErrUnreachable.
	Err error
	// Block makes Dial wait for ctx to end.
	Block bool

	mu    sync.Mutex
	dials int
}

// NewDialer always returns the same forum.
func NewDialer(f *Forum) *Dialer {
	return &Dialer{New: func() browser.Driver { return f }}
}

func (d *Dialer) Dial(ctx context.Context) (browser.Driver, error) {
	d.mu.Lock()
	d.dials++
	d.mu.Unlock()

	if d.Block {
		<-ctx.Done()
		return nil, fmt.Errorf("%w: %v", browser.ErrUnreachable, ctx.Err())
	}
	if d.Err != nil {
		return nil, fmt.Errorf("%w: %v", browser.ErrUnreachable, d.Err)
	}
	return d.New(), nil
}

func (d *Dialer) Endpoint() string {
	return "fake://forum"
}

// Dials returns how many times Dial was called.
func (d *Dialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}
