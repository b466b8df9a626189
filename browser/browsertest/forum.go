// Package browsertest provides an in-memory forum page that implements
// browser.Driver, records every call, and can inject faults.
package browsertest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hairizuanbinnoorazman/forum-autofill/browser"
)

// Ops recorded in the call log.
const (
	OpNavigate   = "navigate"
	OpLoadState  = "load_state"
	OpSnapshot   = "snapshot"
	OpClick      = "click"
	OpFill       = "fill"
	OpInsertRich = "insert_rich"
	OpClose      = "close"
)

// Labels used by the fake page.
const (
	CreateLabel  = "Add discussion topic"
	SubjectLabel = "Subject"
	BodyLabel    = "Message"
	SubmitLabel  = "Post to forum"
	CancelLabel  = "Cancel"
)

// Call is one recorded driver call. Target is the accessible name of the
// element the call resolved to, if any.
type Call struct {
	Op     string
	Ref    string
	Target string
	Arg    string
	Err    error
}

// Options shape the fake page and its faults.
type Options struct {
	// FormOpen starts with the new-discussion form already rendered.
	FormOpen bool
	// LoadPolls is how many LoadState polls report "loading" after a
	// navigation. Negative never becomes ready.
	LoadPolls int
	// FormDelay is how many snapshots after the click still show the page
	// without the form.
	FormDelay int
	// CreateLabel overrides the create control's name.
	CreateLabel string
	// NoBodyEditor renders the form without a body editor.
	NoBodyEditor bool
	// NoCreateControl renders the listing without a create control.
	NoCreateControl bool
	// RejectNavigate makes Navigate fail with browser.ErrRejected.
	RejectNavigate bool
	// AmbiguousClick makes the create click take effect but report
	// browser.ErrAmbiguous.
	AmbiguousClick bool
	// DropBody makes the editor discard inserted content.
	DropBody bool
	// SnapshotErr fails every snapshot with this error.
	SnapshotErr error
	// Delay is added to every call.
	Delay time.Duration
	// OnCall runs inside every call, after the delay.
	OnCall func(op string)
}

type element struct {
	role  string
	name  string
	value string
	attrs map[string]string
}

// Forum is a scripted forum tab.
type Forum struct {
	opts Options

	mu        sync.Mutex
	calls     []Call
	url       string
	pollsLeft int
	formOpen  bool
	clicked   bool
	formDelay int
	subject   string
	body      string
	submitted bool
	closed    bool
	page      []element

	inflight int32
	overlaps int32
}

// NewForum creates a fake forum page.
func NewForum(opts Options) *Forum {
	f := &Forum{opts: opts, formOpen: opts.FormOpen}
	f.render()
	return f
}

var _ browser.Driver = (*Forum)(nil)

func (f *Forum) enter(op string) func() {
	if atomic.AddInt32(&f.inflight, 1) > 1 {
		atomic.AddInt32(&f.overlaps, 1)
	}
	if f.opts.Delay > 0 {
		time.Sleep(f.opts.Delay)
	}
	if f.opts.OnCall != nil {
		f.opts.OnCall(op)
	}
	return func() { atomic.AddInt32(&f.inflight, -1) }
}

func (f *Forum) record(c Call) {
	f.calls = append(f.calls, c)
}

func (f *Forum) createLabel() string {
	if f.opts.CreateLabel != "" {
		return f.opts.CreateLabel
	}
	return CreateLabel
}

// render rebuilds the element list for the current page state. Callers
// hold f.mu except during construction.
func (f *Forum) render() {
	page := []element{
		{role: "link", name: "Forum home", attrs: map[string]string{"href": "/mod/forum/view.php"}},
		{role: "heading", name: "Course discussions"},
	}
	if !f.formOpen {
		if !f.opts.NoCreateControl {
			page = append(page, element{role: "button", name: f.createLabel()})
		}
		page = append(page, element{role: "link", name: "Week 1 questions"})
		f.page = page
		return
	}
	page = append(page, element{
		role:  "textbox",
		name:  SubjectLabel,
		value: f.subject,
		attrs: map[string]string{"id": "id_subject", "name": "subject", "required": "true"},
	})
	if !f.opts.NoBodyEditor {
		page = append(page, element{
			role:  "textbox",
			name:  BodyLabel,
			value: f.body,
			attrs: map[string]string{"id": "id_message", "multiline": "true"},
		})
	}
	page = append(page,
		element{role: "button", name: SubmitLabel, attrs: map[string]string{"type": "submit"}},
		element{role: "button", name: CancelLabel},
	)
	f.page = page
}

func (f *Forum) lookup(ref string) (int, *element) {
	var idx int
	if _, err := fmt.Sscanf(ref, "e%d", &idx); err != nil || idx < 0 || idx >= len(f.page) {
		return -1, nil
	}
	return idx, &f.page[idx]
}

func (f *Forum) Navigate(ctx context.Context, url string) error {
	defer f.enter(OpNavigate)()
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		f.record(Call{Op: OpNavigate, Arg: url, Err: err})
		return err
	}
	if f.opts.RejectNavigate {
		err := fmt.Errorf("%w: net::ERR_NAME_NOT_RESOLVED", browser.ErrRejected)
		f.record(Call{Op: OpNavigate, Arg: url, Err: err})
		return err
	}
	f.url = url
	f.pollsLeft = f.opts.LoadPolls
	f.formOpen = f.opts.FormOpen
	f.clicked = false
	f.subject = ""
	f.body = ""
	f.render()
	f.record(Call{Op: OpNavigate, Arg: url})
	return nil
}

func (f *Forum) LoadState(ctx context.Context) (browser.LoadState, error) {
	defer f.enter(OpLoadState)()
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}
	state := browser.LoadComplete
	if f.pollsLeft != 0 {
		state = browser.LoadLoading
		if f.pollsLeft > 0 {
			f.pollsLeft--
		}
	}
	f.record(Call{Op: OpLoadState, Arg: string(state)})
	return state, nil
}

func (f *Forum) Snapshot(ctx context.Context) (*browser.Capture, error) {
	defer f.enter(OpSnapshot)()
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.opts.SnapshotErr != nil {
		f.record(Call{Op: OpSnapshot, Err: f.opts.SnapshotErr})
		return nil, f.opts.SnapshotErr
	}

	if f.clicked && !f.formOpen {
		if f.formDelay > 0 {
			f.formDelay--
		} else {
			f.formOpen = true
			f.render()
		}
	}

	capture := &browser.Capture{}
	var raw strings.Builder
	for i, el := range f.page {
		ref := fmt.Sprintf("e%d", i)
		attrs := make(map[string]string, len(el.attrs))
		for k, v := range el.attrs {
			attrs[k] = v
		}
		capture.Nodes = append(capture.Nodes, browser.Node{
			Ref:   ref,
			Role:  el.role,
			Name:  el.name,
			Value: el.value,
			Attrs: attrs,
		})
		fmt.Fprintf(&raw, "uid=%s %s %q\n", ref, el.role, el.name)
	}
	capture.Raw = raw.String()
	f.record(Call{Op: OpSnapshot})
	return capture, nil
}

func (f *Forum) Click(ctx context.Context, ref string) error {
	defer f.enter(OpClick)()
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	_, el := f.lookup(ref)
	if el == nil {
		err := fmt.Errorf("%w: %s", browser.ErrUnknownRef, ref)
		f.record(Call{Op: OpClick, Ref: ref, Err: err})
		return err
	}
	call := Call{Op: OpClick, Ref: ref, Target: el.name}

	switch el.name {
	case SubmitLabel:
		f.submitted = true
	case f.createLabel():
		if !f.formOpen {
			f.clicked = true
			f.formDelay = f.opts.FormDelay
		}
	}

	if f.opts.AmbiguousClick && el.name == f.createLabel() {
		call.Err = browser.ErrAmbiguous
		f.record(call)
		return browser.ErrAmbiguous
	}
	f.record(call)
	return nil
}

func (f *Forum) Fill(ctx context.Context, ref, value string) error {
	defer f.enter(OpFill)()
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	idx, el := f.lookup(ref)
	if el == nil || el.role != "textbox" {
		err := fmt.Errorf("%w: %s", browser.ErrUnknownRef, ref)
		f.record(Call{Op: OpFill, Ref: ref, Arg: value, Err: err})
		return err
	}
	switch el.name {
	case SubjectLabel:
		f.subject = value
	case BodyLabel:
		f.body = value
	}
	f.page[idx].value = value
	f.record(Call{Op: OpFill, Ref: ref, Target: el.name, Arg: value})
	return nil
}

func (f *Forum) InsertRich(ctx context.Context, ref, markup string) error {
	defer f.enter(OpInsertRich)()
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	idx, el := f.lookup(ref)
	if el == nil || el.role != "textbox" {
		err := fmt.Errorf("%w: %s", browser.ErrUnknownRef, ref)
		f.record(Call{Op: OpInsertRich, Ref: ref, Err: err})
		return err
	}
	if !f.opts.DropBody {
		if el.name == BodyLabel {
			f.body = markup
		}
		f.page[idx].value = markup
	}
	f.record(Call{Op: OpInsertRich, Ref: ref, Target: el.name, Arg: markup})
	return nil
}

func (f *Forum) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.record(Call{Op: OpClose})
	return nil
}

// Calls returns a copy of the call log.
func (f *Forum) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Call, len(f.calls))
	copy(out, f.calls)
	return out
}

// Count returns how many calls of op were made.
func (f *Forum) Count(op string) int {
	n := 0
	for _, c := range f.Calls() {
		if c.Op == op {
			n++
		}
	}
	return n
}

// Clicks returns how many clicks landed on the element named target.
func (f *Forum) Clicks(target string) int {
	n := 0
	for _, c := range f.Calls() {
		if c.Op == OpClick && c.Target == target {
			n++
		}
	}
	return n
}

// Submitted reports whether the submit button was ever clicked.
func (f *Forum) Submitted() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submitted
}

// Overlaps reports how many calls started while another was in flight.
func (f *Forum) Overlaps() int {
	return int(atomic.LoadInt32(&f.overlaps))
}

// Subject returns the current subject field value.
func (f *Forum) Subject() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subject
}

// Body returns the current body editor content.
func (f *Forum) Body() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.body
}

// Closed reports whether Close was called.
func (f *Forum) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// URL returns the last navigated URL.
func (f *Forum) URL() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.url
}
