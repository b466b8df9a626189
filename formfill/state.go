package formfill

import (
	"context"
	"errors"

	"github.com/hairizuanbinnoorazman/forum-autofill/browser"
	"github.com/hairizuanbinnoorazman/forum-autofill/content"
	"github.com/hairizuanbinnoorazman/forum-autofill/retry"
	"github.com/hairizuanbinnoorazman/forum-autofill/session"
	"github.com/hairizuanbinnoorazman/forum-autofill/snapshot"
)

// State is a step of the fill operation.
type State string

const (
	StateIdle                  State = "idle"
	StateNavigating            State = "navigating"
	StateAwaitingPageLoad      State = "awaiting_page_load"
	StateLocatingCreateControl State = "locating_create_control"
	StateClicking              State = "clicking"
	StateAwaitingFormLoad      State = "awaiting_form_load"
	StateLocatingFields        State = "locating_fields"
	StateFillingSubject        State = "filling_subject"
	StateFillingBody           State = "filling_body"
	StateVerifying             State = "verifying"
	StateDone                  State = "done"
	StateFailed                State = "failed"
)

// Terminal reports whether s ends an operation.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// ErrorClass classifies a failed operation.
type ErrorClass string

const (
	ClassConnection   ErrorClass = "connection_error"
	ClassNavigation   ErrorClass = "navigation_error"
	ClassNotFound     ErrorClass = "element_not_found"
	ClassStaleHandle  ErrorClass = "stale_handle"
	ClassTimeout      ErrorClass = "timeout"
	ClassBusy         ErrorClass = "busy"
	ClassInvalid      ErrorClass = "invalid_payload"
	ClassVerification ErrorClass = "verification_failed"
	ClassProtocol     ErrorClass = "protocol_error"
	ClassCancelled    ErrorClass = "cancelled"
)

var (
	ErrInvalidURL      = errors.New("invalid forum URL")
	ErrElementNotFound = errors.New("element not found")
	ErrNotReady        = errors.New("page not ready")
	ErrFormNotLoaded   = errors.New("form not loaded")
	ErrVerification    = errors.New("filled fields did not verify")
	ErrSubmitRefused   = errors.New("resolved control is a submit control")
)

// Classify maps an error to its class. Wrapped sentinels are matched with
// errors.Is, most specific first.
func Classify(err error) ErrorClass {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.Canceled):
		return ClassCancelled
	case errors.Is(err, session.ErrBusy):
		return ClassBusy
	case errors.Is(err, session.ErrConnection),
		errors.Is(err, browser.ErrUnreachable),
		errors.Is(err, browser.ErrDisconnected),
		errors.Is(err, session.ErrClosed):
		return ClassConnection
	case errors.Is(err, session.ErrStaleHandle):
		return ClassStaleHandle
	case errors.Is(err, content.ErrInvalidPost):
		return ClassInvalid
	case errors.Is(err, ErrInvalidURL):
		return ClassNavigation
	case errors.Is(err, ErrElementNotFound),
		errors.Is(err, ErrSubmitRefused),
		errors.Is(err, snapshot.ErrNotFound):
		return ClassNotFound
	case errors.Is(err, ErrVerification):
		return ClassVerification
	case errors.Is(err, retry.ErrExhausted),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, ErrNotReady),
		errors.Is(err, ErrFormNotLoaded):
		return ClassTimeout
	}
	return ClassProtocol
}
