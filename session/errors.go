package session

import (
	"errors"
	"fmt"

	"github.com/hairizuanbinnoorazman/forum-autofill/snapshot"
)

var (
	// ErrConnection is returned when the control endpoint cannot be reached
	// within the connect timeout.
	ErrConnection = errors.New("control endpoint unreachable")

	// ErrBusy is returned under the fail_fast policy while another
	// operation holds the session.
	ErrBusy = errors.New("session busy: a fill operation is already in flight")

	// ErrStaleHandle is matched by every *StaleHandleError.
	ErrStaleHandle = errors.New("stale element handle")

	// ErrReleased is returned when a released session is used.
	ErrReleased = errors.New("session already released")

	// ErrClosed is returned by Acquire after Close.
	ErrClosed = errors.New("session manager closed")
)

// StaleHandleError reports a handle used after its snapshot stopped being
// current. It is a call-ordering defect, not a transient condition.
type StaleHandleError struct {
	Op      string
	Handle  snapshot.Handle
	Current string
}

func (e *StaleHandleError) Error() string {
	current := e.Current
	if current == "" {
		current = "none, page mutated since"
	}
	return fmt.Sprintf("stale handle on %s: ref %s belongs to snapshot %s, current snapshot is %s; take a new snapshot",
		e.Op, e.Handle.Ref, e.Handle.SnapshotID, current)
}

func (e *StaleHandleError) Is(target error) bool {
	return target == ErrStaleHandle
}
