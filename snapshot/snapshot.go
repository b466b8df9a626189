// Package snapshot holds immutable page captures and resolves semantic
// element descriptors to snapshot-scoped handles.
package snapshot

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hairizuanbinnoorazman/forum-autofill/browser"
)

var ErrNotFound = errors.New("element not found in snapshot")

// Element is one element of a snapshot, in document order.
type Element struct {
	Ref   string
	Role  string
	Name  string
	Value string
	Attrs map[string]string
}

// Attr returns the named attribute or "".
func (e Element) Attr(key string) string {
	if e.Attrs == nil {
		return ""
	}
	return e.Attrs[key]
}

// Handle is a snapshot-scoped element reference. It is only valid while its
// snapshot is the session's current one.
type Handle struct {
	SnapshotID string `json:"snapshot_id"`
	Ref        string `json:"ref"`
}

func (h Handle) String() string {
	return h.SnapshotID + "/" + h.Ref
}

// IsZero reports whether h was never set.
func (h Handle) IsZero() bool {
	return h.SnapshotID == "" && h.Ref == ""
}

// Snapshot is a point-in-time capture of the page. It is never modified
// after New returns.
type Snapshot struct {
	ID       string
	TakenAt  time.Time
	Elements []Element

	raw   string
	byRef map[string]int
}

// New builds a snapshot from one capture, assigning a fresh id.
func New(c *browser.Capture) *Snapshot {
	s := &Snapshot{
		ID:      uuid.New().String(),
		TakenAt: time.Now().UTC(),
		byRef:   make(map[string]int),
	}
	if c == nil {
		return s
	}
	s.raw = c.Raw
	s.Elements = make([]Element, 0, len(c.Nodes))
	for _, n := range c.Nodes {
		attrs := make(map[string]string, len(n.Attrs))
		for k, v := range n.Attrs {
			attrs[k] = v
		}
		if _, dup := s.byRef[n.Ref]; !dup {
			s.byRef[n.Ref] = len(s.Elements)
		}
		s.Elements = append(s.Elements, Element{
			Ref:   n.Ref,
			Role:  n.Role,
			Name:  n.Name,
			Value: n.Value,
			Attrs: attrs,
		})
	}
	return s
}

// Raw is the endpoint's own rendering of the capture.
func (s *Snapshot) Raw() string {
	return s.raw
}

// Handle returns the handle for an element of this snapshot.
func (s *Snapshot) Handle(e Element) Handle {
	return Handle{SnapshotID: s.ID, Ref: e.Ref}
}

// Lookup returns the element a handle points at. It fails when the handle
// belongs to another snapshot.
func (s *Snapshot) Lookup(h Handle) (Element, error) {
	if h.SnapshotID != s.ID {
		return Element{}, fmt.Errorf("%w: handle %s is from another snapshot", ErrNotFound, h)
	}
	idx, ok := s.byRef[h.Ref]
	if !ok {
		return Element{}, fmt.Errorf("%w: ref %s", ErrNotFound, h.Ref)
	}
	return s.Elements[idx], nil
}

// Len is the number of elements.
func (s *Snapshot) Len() int {
	return len(s.Elements)
}
