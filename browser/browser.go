// Package browser defines the request/response boundary to a remote
// browser-control endpoint. Implementations attach to a browser that is
// already running and authenticated. None of them can submit a form.
package browser

import (
	"context"
	"errors"
)

var (
	ErrUnreachable  = errors.New("control endpoint unreachable")
	ErrDisconnected = errors.New("control endpoint disconnected")
	ErrRejected     = errors.New("control endpoint rejected the command")
	ErrUnknownRef   = errors.New("element reference not known to the endpoint")
	ErrAmbiguous    = errors.New("command outcome unknown")
)

// LoadState mirrors document.readyState.
type LoadState string

const (
	LoadLoading     LoadState = "loading"
	LoadInteractive LoadState = "interactive"
	LoadComplete    LoadState = "complete"
)

// Ready reports whether the document finished loading.
func (s LoadState) Ready() bool {
	return s == LoadComplete
}

// Node is one element of a structural capture.
type Node struct {
	Ref   string            `json:"ref"`
	Role  string            `json:"role"`
	Name  string            `json:"name"`
	Value string            `json:"value,omitempty"`
	Attrs map[string]string `json:"attrs,omitempty"`
}

// Attr returns the named attribute or "".
func (n Node) Attr(key string) string {
	if n.Attrs == nil {
		return ""
	}
	return n.Attrs[key]
}

// Capture is the raw result of one snapshot round trip. Nodes are in
// document order.
type Capture struct {
	Raw   string
	Nodes []Node
}

// Driver is one live connection to the control endpoint. Every method is a
// single bounded round trip.
type Driver interface {
	Navigate(ctx context.Context, url string) error
	LoadState(ctx context.Context) (LoadState, error)
	Snapshot(ctx context.Context) (*Capture, error)
	Click(ctx context.Context, ref string) error
	Fill(ctx context.Context, ref, value string) error
	// InsertRich hands markup to the target editor's native insert
	// mechanism. It never types the markup as keystrokes.
	InsertRich(ctx context.Context, ref, markup string) error
	Close() error
}

// Dialer connects to an endpoint that is already listening.
type Dialer interface {
	Dial(ctx context.Context) (Driver, error)
	// Endpoint describes the address for diagnostics.
	Endpoint() string
}

// IsFatal reports whether err means the connection can no longer be used.
func IsFatal(err error) bool {
	return errors.Is(err, ErrDisconnected) || errors.Is(err, ErrUnreachable)
}
