package formfill

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hairizuanbinnoorazman/forum-autofill/browser"
	"github.com/hairizuanbinnoorazman/forum-autofill/content"
	"github.com/hairizuanbinnoorazman/forum-autofill/logger"
	"github.com/hairizuanbinnoorazman/forum-autofill/retry"
	"github.com/hairizuanbinnoorazman/forum-autofill/session"
	"github.com/hairizuanbinnoorazman/forum-autofill/snapshot"
)

// run is the state of one fill operation.
type run struct {
	e        *Engine
	id       string
	forumURL string
	post     content.Post
	started  time.Time
	log      logger.Logger

	states   []State
	last     State
	lastSnap string
	clicked  bool
}

func newRun(e *Engine, forumURL string, post content.Post) *run {
	id := newRunID()
	return &run{
		e:        e,
		id:       id,
		forumURL: forumURL,
		post:     post,
		started:  time.Now(),
		log:      e.logger.WithField("run_id", id),
		states:   []State{StateIdle},
		last:     StateIdle,
	}
}

// enter records a transition. It fails when ctx is already done, since
// every transition is a suspension point.
func (r *run) enter(ctx context.Context, s State) error {
	r.states = append(r.states, s)
	r.log.Info(ctx, "state transition", map[string]interface{}{
		"state":       string(s),
		"snapshot_id": r.lastSnap,
	})
	return ctx.Err()
}

func (r *run) complete(s State) {
	r.last = s
}

func (r *run) result() FillResult {
	states := make([]State, len(r.states))
	copy(states, r.states)
	return FillResult{
		RunID:          r.id,
		LastState:      r.last,
		LastSnapshotID: r.lastSnap,
		States:         states,
	}
}

// fail ends the operation. A done context overrides class, because the
// underlying error is then a consequence of the cancellation.
func (r *run) fail(ctx context.Context, class ErrorClass, err error) FillResult {
	if cerr := ctx.Err(); cerr != nil {
		class = Classify(cerr)
		err = fmt.Errorf("%w: %v", cerr, err)
	}
	if r.states[len(r.states)-1] != StateFailed {
		r.states = append(r.states, StateFailed)
	}

	res := r.result()
	res.Error = class
	res.Descriptor = descriptorOf(err)
	res.Message = fmt.Sprintf("%s after %s: %v", class, r.last, err)
	if class == ClassConnection {
		res.Message += "; " + ConnectionHint
	}
	if class == ClassStaleHandle {
		// A stale handle means the call order is wrong, not that the page is slow.
		r.log.Error(ctx, "stale handle used by fill operation", map[string]interface{}{"error": err.Error()})
	}

	r.log.Warn(ctx, "fill operation failed", map[string]interface{}{
		"state":            string(r.last),
		"error_class":      string(class),
		"error":            err.Error(),
		"last_snapshot_id": r.lastSnap,
	})
	return res
}

func (r *run) take(ctx context.Context, s *session.Session) (*snapshot.Snapshot, error) {
	snap, err := r.e.resolver.Take(ctx, s)
	if err != nil {
		return nil, err
	}
	r.lastSnap = snap.ID
	return snap, nil
}

// permanentIfFatal stops a retry loop on errors that another attempt
// cannot fix.
func permanentIfFatal(err error) error {
	if browser.IsFatal(err) || errors.Is(err, session.ErrStaleHandle) || errors.Is(err, session.ErrReleased) {
		return retry.Permanent(err)
	}
	return err
}

// execute runs Navigating through Verifying on a held session.
func (r *run) execute(ctx context.Context, s *session.Session, markup string) FillResult {
	form := r.e.cfg.Form
	budgets := r.e.cfg.Budgets

	// Navigating
	if err := r.enter(ctx, StateNavigating); err != nil {
		return r.fail(ctx, ClassCancelled, err)
	}
	if err := s.Navigate(ctx, r.forumURL); err != nil {
		class := ClassNavigation
		if browser.IsFatal(err) {
			class = ClassConnection
		}
		return r.fail(ctx, class, err)
	}
	r.complete(StateNavigating)

	// AwaitingPageLoad
	if err := r.enter(ctx, StateAwaitingPageLoad); err != nil {
		return r.fail(ctx, ClassCancelled, err)
	}
	if err := r.awaitLoad(ctx, s, budgets.PageLoad); err != nil {
		return r.fail(ctx, classFor(err, ClassTimeout), err)
	}
	r.complete(StateAwaitingPageLoad)

	// LocatingCreateControl
	if err := r.enter(ctx, StateLocatingCreateControl); err != nil {
		return r.fail(ctx, ClassCancelled, err)
	}
	create, formOpen, err := r.locateCreate(ctx, s, form, budgets.Locate)
	if err != nil {
		return r.fail(ctx, classFor(err, ClassNotFound), err)
	}
	r.complete(StateLocatingCreateControl)

	if formOpen {
		r.log.Info(ctx, "form already open, skipping create control", map[string]interface{}{
			"snapshot_id": r.lastSnap,
		})
	} else {
		// Clicking
		if err := r.enter(ctx, StateClicking); err != nil {
			return r.fail(ctx, ClassCancelled, err)
		}
		if err := r.clickOnce(ctx, s, create); err != nil {
			return r.fail(ctx, classFor(err, ClassProtocol), err)
		}
		r.complete(StateClicking)

		// AwaitingFormLoad
		if err := r.enter(ctx, StateAwaitingFormLoad); err != nil {
			return r.fail(ctx, ClassCancelled, err)
		}
		if err := r.awaitForm(ctx, s, form, budgets.FormLoad); err != nil {
			return r.fail(ctx, classFor(err, ClassTimeout), err)
		}
		r.complete(StateAwaitingFormLoad)
	}

	// LocatingFields
	if err := r.enter(ctx, StateLocatingFields); err != nil {
		return r.fail(ctx, ClassCancelled, err)
	}
	subject, body, err := r.locateFields(ctx, s, form, budgets.Locate)
	if err != nil {
		return r.fail(ctx, classFor(err, ClassNotFound), err)
	}
	r.complete(StateLocatingFields)

	// FillingSubject
	if err := r.enter(ctx, StateFillingSubject); err != nil {
		return r.fail(ctx, ClassCancelled, err)
	}
	if err := s.Fill(ctx, subject, r.post.Title); err != nil {
		return r.fail(ctx, classFor(err, ClassProtocol), err)
	}
	r.complete(StateFillingSubject)

	// FillingBody
	if err := r.enter(ctx, StateFillingBody); err != nil {
		return r.fail(ctx, ClassCancelled, err)
	}
	if err := s.InsertRich(ctx, body, markup); err != nil {
		return r.fail(ctx, classFor(err, ClassProtocol), err)
	}
	r.complete(StateFillingBody)

	// Verifying
	if err := r.enter(ctx, StateVerifying); err != nil {
		return r.fail(ctx, ClassCancelled, err)
	}
	confirmed, err := r.verify(ctx, s, form, budgets.Verify)
	if err != nil {
		return r.fail(ctx, classFor(err, ClassVerification), err)
	}
	r.complete(StateVerifying)

	r.states = append(r.states, StateDone)
	r.complete(StateDone)
	res := r.result()
	res.Success = true
	res.SnapshotID = confirmed
	res.Message = fmt.Sprintf("Subject and body filled. Nothing was submitted: review the post in the browser and press %q yourself.", submitHint(form))
	r.log.Info(ctx, "state transition", map[string]interface{}{
		"state":       string(StateDone),
		"snapshot_id": confirmed,
	})
	return res
}

// classFor keeps class for budget exhaustion and the state's own errors,
// and lets Classify name anything more specific.
func classFor(err error, class ErrorClass) ErrorClass {
	c := Classify(err)
	switch c {
	case ClassProtocol:
		return class
	case ClassTimeout:
		if class == ClassNotFound || class == ClassVerification {
			return class
		}
	}
	return c
}

func submitHint(f Form) string {
	if len(f.SubmitLabels) > 0 {
		return f.SubmitLabels[0]
	}
	return "submit"
}

func (r *run) awaitLoad(ctx context.Context, s *session.Session, p retry.Policy) error {
	return retry.Do(ctx, p, func(ctx context.Context, attempt int) error {
		state, err := s.LoadState(ctx)
		if err != nil {
			return permanentIfFatal(err)
		}
		if !state.Ready() {
			return fmt.Errorf("%w: readyState %s on attempt %d", ErrNotReady, state, attempt)
		}
		return nil
	})
}

// locateCreate resolves the create control. formOpen is true when the
// subject field is already on the page, in which case there is nothing to
// click.
func (r *run) locateCreate(ctx context.Context, s *session.Session, form Form, p retry.Policy) (snapshot.Handle, bool, error) {
	var (
		handle   snapshot.Handle
		formOpen bool
	)
	err := retry.Do(ctx, p, func(ctx context.Context, attempt int) error {
		snap, err := r.take(ctx, s)
		if err != nil {
			return permanentIfFatal(err)
		}
		if _, ok := r.e.resolver.Find(ctx, snap, form.SubjectField); ok {
			formOpen = true
			return nil
		}
		m, ok := snapshot.Resolve(snap, form.CreateControl)
		if !ok {
			return &notFoundError{descriptor: form.CreateControl}
		}
		if form.isSubmit(m.Element.Name) {
			return retry.Permanent(fmt.Errorf("%w: %s resolved to %q", ErrSubmitRefused, form.CreateControl, m.Element.Name))
		}
		handle = m.Handle
		return nil
	})
	return handle, formOpen, unwrapExhausted(err)
}

// clickOnce activates the create control. It runs at most once per
// operation. An ambiguous outcome is left for AwaitingFormLoad to settle
// by re-snapshotting.
func (r *run) clickOnce(ctx context.Context, s *session.Session, h snapshot.Handle) error {
	if r.clicked {
		return fmt.Errorf("create control already clicked in run %s", r.id)
	}
	r.clicked = true

	err := s.Click(ctx, h)
	if err != nil && errors.Is(err, browser.ErrAmbiguous) && ctx.Err() == nil {
		r.log.Warn(ctx, "click outcome ambiguous, verifying form presence instead of clicking again", map[string]interface{}{
			"snapshot_id": h.SnapshotID,
			"error":       err.Error(),
		})
		return nil
	}
	return err
}

func (r *run) awaitForm(ctx context.Context, s *session.Session, form Form, p retry.Policy) error {
	return retry.Do(ctx, p, func(ctx context.Context, attempt int) error {
		state, err := s.LoadState(ctx)
		if err != nil {
			return permanentIfFatal(err)
		}
		if !state.Ready() {
			return fmt.Errorf("%w: readyState %s on attempt %d", ErrNotReady, state, attempt)
		}
		snap, err := r.take(ctx, s)
		if err != nil {
			return permanentIfFatal(err)
		}
		if _, ok := r.e.resolver.Find(ctx, snap, form.SubjectField); !ok {
			return fmt.Errorf("%w: %s not present on attempt %d", ErrFormNotLoaded, form.SubjectField, attempt)
		}
		return nil
	})
}

func (r *run) locateFields(ctx context.Context, s *session.Session, form Form, p retry.Policy) (snapshot.Handle, snapshot.Handle, error) {
	var subject, body snapshot.Handle
	err := retry.Do(ctx, p, func(ctx context.Context, attempt int) error {
		snap, err := r.take(ctx, s)
		if err != nil {
			return permanentIfFatal(err)
		}
		var ok bool
		if subject, ok = r.e.resolver.Find(ctx, snap, form.SubjectField); !ok {
			return &notFoundError{descriptor: form.SubjectField}
		}
		if body, ok = r.e.resolver.Find(ctx, snap, form.BodyEditor); !ok {
			return &notFoundError{descriptor: form.BodyEditor}
		}
		return nil
	})
	return subject, body, unwrapExhausted(err)
}

// verify re-snapshots and checks the subject holds the title and the body
// holds non-empty text starting with the expected heading.
func (r *run) verify(ctx context.Context, s *session.Session, form Form, p retry.Policy) (string, error) {
	var confirmed string
	want := strings.TrimSpace(r.post.Title)
	heading := strings.ToLower(r.post.FirstHeading())

	err := retry.Do(ctx, p, func(ctx context.Context, attempt int) error {
		snap, err := r.take(ctx, s)
		if err != nil {
			return permanentIfFatal(err)
		}
		subject, ok := snapshot.Resolve(snap, form.SubjectField)
		if !ok {
			return &notFoundError{descriptor: form.SubjectField}
		}
		body, ok := snapshot.Resolve(snap, form.BodyEditor)
		if !ok {
			return &notFoundError{descriptor: form.BodyEditor}
		}
		if got := strings.TrimSpace(subject.Element.Value); got != want {
			return fmt.Errorf("%w: subject is %q, want %q", ErrVerification, got, want)
		}
		text := r.e.transformer.PlainText(body.Element.Value)
		if text == "" {
			return fmt.Errorf("%w: body editor is empty", ErrVerification)
		}
		if heading != "" && !strings.Contains(strings.ToLower(text), heading) {
			return fmt.Errorf("%w: body does not contain heading %q", ErrVerification, r.post.FirstHeading())
		}
		confirmed = snap.ID
		return nil
	})
	if err != nil {
		return "", unwrapExhausted(err)
	}
	return confirmed, nil
}

// unwrapExhausted keeps the retry.ErrExhausted chain but puts the last
// attempt's error first, so notFoundError and ErrVerification classify
// ahead of the budget itself.
func unwrapExhausted(err error) error {
	var ex *retry.ExhaustedError
	if errors.As(err, &ex) && ex.Last != nil {
		return fmt.Errorf("%w (%d attempts)", ex.Last, ex.Attempts)
	}
	return err
}
