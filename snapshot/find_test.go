package snapshot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hairizuanbinnoorazman/forum-autofill/browser"
)

func forumCapture() *browser.Capture {
	return &browser.Capture{Nodes: []browser.Node{
		{Ref: "1", Role: "link", Name: "Add discussion topic guide"},
		{Ref: "2", Role: "button", Name: "Add  discussion\ttopic"},
		{Ref: "3", Role: "button", Name: "Add discussion topic"},
		{Ref: "4", Role: "textbox", Name: "", Attrs: map[string]string{"placeholder": "Subject"}},
		{Ref: "5", Role: "textbox", Name: "Message", Attrs: map[string]string{"id": "id_message"}},
		{Ref: "6", Role: "textbox", Name: "Search forums"},
	}}
}

func TestFind(t *testing.T) {
	snap := New(forumCapture())

	tests := []struct {
		name    string
		d       Descriptor
		wantRef string
		wantOK  bool
	}{
		{
			name:    "exact name collapses whitespace and takes first in document order",
			d:       Descriptor{Names: []string{"add discussion topic"}},
			wantRef: "2",
			wantOK:  true,
		},
		{
			name:    "role filter skips buttons with the exact name",
			d:       Descriptor{Names: []string{"Add discussion topic"}, Roles: []string{"link"}},
			wantRef: "1",
			wantOK:  true,
		},
		{
			name:    "role plus partial text",
			d:       Descriptor{Names: []string{"New topic"}, Roles: []string{"button"}, Contains: []string{"discussion"}},
			wantRef: "2",
			wantOK:  true,
		},
		{
			name:    "partial text falls back to names",
			d:       Descriptor{Names: []string{"search"}, Roles: []string{"textbox"}},
			wantRef: "6",
			wantOK:  true,
		},
		{
			name:    "placeholder attribute",
			d:       Descriptor{Names: []string{"Subject"}, Roles: []string{"textbox"}},
			wantRef: "4",
			wantOK:  true,
		},
		{
			name:    "explicit attribute",
			d:       Descriptor{Attrs: map[string]string{"id": "id_message"}},
			wantRef: "5",
			wantOK:  true,
		},
		{
			name:   "not found is not an error",
			d:      Descriptor{Names: []string{"Reply"}, Roles: []string{"button"}},
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, ok := Find(snap, tt.d)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.wantRef, h.Ref)
				assert.Equal(t, snap.ID, h.SnapshotID)
			} else {
				assert.True(t, h.IsZero())
			}
		})
	}
}

func TestResolve_TierPriority(t *testing.T) {
	snap := New(&browser.Capture{Nodes: []browser.Node{
		{Ref: "a", Role: "textbox", Name: "Your subject line"},
		{Ref: "b", Role: "textbox", Name: "", Attrs: map[string]string{"aria-label": "subject"}},
		{Ref: "c", Role: "textbox", Name: "Subject"},
	}})

	m, ok := Resolve(snap, Descriptor{Names: []string{"Subject"}, Roles: []string{"textbox"}})
	require.True(t, ok)
	assert.Equal(t, "c", m.Handle.Ref)
	assert.Equal(t, TierExactName, m.Tier)
}

func TestSnapshot_Lookup(t *testing.T) {
	first := New(forumCapture())
	second := New(forumCapture())
	require.NotEqual(t, first.ID, second.ID)

	h, ok := Find(first, Descriptor{Names: []string{"Message"}})
	require.True(t, ok)

	el, err := first.Lookup(h)
	require.NoError(t, err)
	assert.Equal(t, "Message", el.Name)

	_, err = second.Lookup(h)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNew_CopiesCapture(t *testing.T) {
	c := forumCapture()
	snap := New(c)
	c.Nodes[4].Attrs["id"] = "changed"
	assert.Equal(t, "id_message", snap.Elements[4].Attr("id"))
	assert.Zero(t, New(nil).Len())
}
