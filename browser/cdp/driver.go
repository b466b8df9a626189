// Package cdp drives an already running Chrome directly over the DevTools
// protocol with go-rod. It attaches to an existing tab and never launches
// or closes the browser.
package cdp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync/atomic"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/hairizuanbinnoorazman/forum-autofill/browser"
	"github.com/hairizuanbinnoorazman/forum-autofill/logger"
)

// RefAttr is the attribute snapshots tag elements with.
const RefAttr = "data-autofill-ref"

// Dialer attaches to the browser at a debugging address. It implements
// browser.Dialer.
type Dialer struct {
	controlURL string
	logger     logger.Logger
}

var _ browser.Dialer = (*Dialer)(nil)

// NewDialer accepts an http debugging address such as
// http://127.0.0.1:9222 or a ws:// browser URL.
func NewDialer(controlURL string, log logger.Logger) *Dialer {
	return &Dialer{controlURL: controlURL, logger: logger.OrNop(log)}
}

func (d *Dialer) Endpoint() string {
	return d.controlURL
}

func (d *Dialer) Dial(ctx context.Context) (browser.Driver, error) {
	ws, err := launcher.ResolveURL(d.controlURL)
	if err != nil {
		return nil, fmt.Errorf("%w: resolve %s: %v", browser.ErrUnreachable, d.controlURL, err)
	}

	// The connection outlives ctx, which only bounds the dial.
	connCtx, cancel := context.WithCancel(context.Background())
	b := rod.New().ControlURL(ws).Context(connCtx)
	dialDone := make(chan error, 1)
	go func() { dialDone <- b.Connect() }()
	select {
	case err = <-dialDone:
	case <-ctx.Done():
		cancel()
		return nil, fmt.Errorf("%w: connect %s: %v", browser.ErrUnreachable, ws, ctx.Err())
	}
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: connect %s: %v", browser.ErrUnreachable, ws, err)
	}

	pages, err := b.Pages()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: list pages: %v", browser.ErrUnreachable, err)
	}
	page := pages.First()
	if page == nil {
		page, err = b.Page(proto.TargetCreateTarget{URL: "about:blank"})
		if err != nil {
			cancel()
			return nil, fmt.Errorf("%w: open tab: %v", browser.ErrUnreachable, err)
		}
	}

	d.logger.Info(ctx, "attached to browser over CDP", map[string]interface{}{
		"endpoint": ws,
		"pages":    len(pages),
	})
	return &Driver{page: page, cancel: cancel, logger: d.logger}, nil
}

// Driver is one attached tab. It implements browser.Driver.
type Driver struct {
	page   *rod.Page
	cancel context.CancelFunc
	seq    int64
	logger logger.Logger
}

var _ browser.Driver = (*Driver)(nil)

// mapErr classifies rod errors. Context errors pass through.
func mapErr(ctx context.Context, op string, err error) error {
	if err == nil {
		return nil
	}
	if cerr := ctx.Err(); cerr != nil {
		return fmt.Errorf("%s: %w", op, cerr)
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("%w: %s: %v", browser.ErrDisconnected, op, err)
	}
	return fmt.Errorf("%w: %s: %v", browser.ErrRejected, op, err)
}

func (d *Driver) Navigate(ctx context.Context, url string) error {
	return mapErr(ctx, "navigate", d.page.Context(ctx).Navigate(url))
}

func (d *Driver) LoadState(ctx context.Context) (browser.LoadState, error) {
	res, err := d.page.Context(ctx).Eval(browser.ReadyStateScript)
	if err != nil {
		return "", mapErr(ctx, "load state", err)
	}
	return browser.LoadState(res.Value.Str()), nil
}

func (d *Driver) Snapshot(ctx context.Context) (*browser.Capture, error) {
	seq := atomic.AddInt64(&d.seq, 1)
	res, err := d.page.Context(ctx).Eval(snapshotScript, seq)
	if err != nil {
		return nil, mapErr(ctx, "snapshot", err)
	}
	raw := res.Value.Str()
	var nodes []browser.Node
	if err := json.Unmarshal([]byte(raw), &nodes); err != nil {
		return nil, fmt.Errorf("%w: snapshot result: %v", browser.ErrRejected, err)
	}
	return &browser.Capture{Raw: raw, Nodes: nodes}, nil
}

func (d *Driver) element(ctx context.Context, ref string) (*rod.Element, error) {
	els, err := d.page.Context(ctx).Elements("[" + RefAttr + "=" + strconv.Quote(ref) + "]")
	if err != nil {
		return nil, mapErr(ctx, "find "+ref, err)
	}
	if els.Empty() {
		return nil, fmt.Errorf("%w: %s", browser.ErrUnknownRef, ref)
	}
	return els.First(), nil
}

func (d *Driver) Click(ctx context.Context, ref string) error {
	el, err := d.element(ctx, ref)
	if err != nil {
		return err
	}
	err = el.Context(ctx).Click(proto.InputMouseButtonLeft, 1)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return errors.Join(browser.ErrAmbiguous, mapErr(ctx, "click", err))
	}
	return mapErr(ctx, "click", err)
}

func (d *Driver) Fill(ctx context.Context, ref, value string) error {
	el, err := d.element(ctx, ref)
	if err != nil {
		return err
	}
	el = el.Context(ctx)
	if err := el.SelectAllText(); err != nil {
		return mapErr(ctx, "fill", err)
	}
	return mapErr(ctx, "fill", el.Input(value))
}

func (d *Driver) InsertRich(ctx context.Context, ref, markup string) error {
	el, err := d.element(ctx, ref)
	if err != nil {
		return err
	}
	// Element.Eval binds this to the element.
	js := "function() { return JSON.stringify((" + browser.InsertRichScript(markup) + ")(this)); }"
	res, err := el.Context(ctx).Eval(js)
	if err != nil {
		return mapErr(ctx, "insert rich", err)
	}
	var out browser.InsertOutcome
	if err := json.Unmarshal([]byte(res.Value.Str()), &out); err != nil {
		return fmt.Errorf("%w: insert result: %v", browser.ErrRejected, err)
	}
	if !out.OK {
		return fmt.Errorf("%w: insert: %s", browser.ErrRejected, out.Reason)
	}
	d.logger.Debug(ctx, "rich content inserted", map[string]interface{}{
		"ref":  ref,
		"mode": out.Mode,
	})
	return nil
}

// Close detaches from the browser. The user's browser and tab stay open.
func (d *Driver) Close() error {
	d.cancel()
	return nil
}
