package snapshot

import (
	"strings"
)

// Tier is the priority level at which a descriptor matched.
type Tier int

const (
	TierNone Tier = iota
	TierExactName
	TierRoleText
	TierAttribute
)

func (t Tier) String() string {
	switch t {
	case TierExactName:
		return "exact_name"
	case TierRoleText:
		return "role_text"
	case TierAttribute:
		return "attribute"
	}
	return "none"
}

// labelAttrs are the attributes that carry a human label for an element.
var labelAttrs = []string{"placeholder", "aria-label", "label", "title", "description"}

// Descriptor describes an element semantically.
type Descriptor struct {
	// Label names the descriptor in error messages.
	Label string
	// Names are accepted accessible names.
	Names []string
	// Roles restricts the name and text tiers to these roles.
	Roles []string
	// Contains are partial texts for the role tier. Names are used when empty.
	Contains []string
	// Attrs are attribute values that identify the element, e.g. id=id_subject.
	Attrs map[string]string
}

func (d Descriptor) String() string {
	if d.Label != "" {
		return d.Label
	}
	if len(d.Names) > 0 {
		return d.Names[0]
	}
	return "element"
}

// Match is a resolved descriptor.
type Match struct {
	Handle  Handle
	Element Element
	Tier    Tier
}

// Find resolves d against snap. Absence is reported through ok, never as an
// error.
func Find(snap *Snapshot, d Descriptor) (Handle, bool) {
	m, ok := Resolve(snap, d)
	return m.Handle, ok
}

// Resolve is Find with the matched element and tier. Tiers are tried in
// order: exact accessible name, role plus partial text, attribute. Within a
// tier the first element in document order wins.
func Resolve(snap *Snapshot, d Descriptor) (Match, bool) {
	if snap == nil {
		return Match{}, false
	}

	names := normalizeAll(d.Names)
	contains := normalizeAll(d.Contains)
	if len(contains) == 0 {
		contains = names
	}

	if len(names) > 0 {
		for _, el := range snap.Elements {
			if d.roleAllowed(el.Role) && containsString(names, normalize(el.Name)) {
				return snap.match(el, TierExactName), true
			}
		}
	}

	if len(contains) > 0 {
		for _, el := range snap.Elements {
			if len(d.Roles) > 0 && !d.roleAllowed(el.Role) {
				continue
			}
			text := normalize(el.Name)
			if text == "" {
				continue
			}
			for _, c := range contains {
				if strings.Contains(text, c) {
					return snap.match(el, TierRoleText), true
				}
			}
		}
	}

	for _, el := range snap.Elements {
		if d.attrsMatch(el, names) {
			return snap.match(el, TierAttribute), true
		}
	}

	return Match{}, false
}

func (s *Snapshot) match(el Element, t Tier) Match {
	return Match{Handle: s.Handle(el), Element: el, Tier: t}
}

func (d Descriptor) roleAllowed(role string) bool {
	if len(d.Roles) == 0 {
		return true
	}
	role = normalize(role)
	for _, r := range d.Roles {
		if normalize(r) == role {
			return true
		}
	}
	return false
}

func (d Descriptor) attrsMatch(el Element, names []string) bool {
	for k, want := range d.Attrs {
		if got, ok := el.Attrs[k]; ok && normalize(got) == normalize(want) {
			return true
		}
	}
	if len(names) == 0 {
		return false
	}
	for _, key := range labelAttrs {
		if v := normalize(el.Attr(key)); v != "" && containsString(names, v) {
			return true
		}
	}
	return false
}

// normalize lowercases s and collapses runs of whitespace.
func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

func normalizeAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if n := normalize(s); n != "" {
			out = append(out, n)
		}
	}
	return out
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
