package formfill

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/hairizuanbinnoorazman/forum-autofill/retry"
	"github.com/hairizuanbinnoorazman/forum-autofill/snapshot"
)

// Form describes the target site's controls.
type Form struct {
	CreateControl snapshot.Descriptor
	SubjectField  snapshot.Descriptor
	BodyEditor    snapshot.Descriptor
	// SubmitLabels are names the engine must never click.
	SubmitLabels []string
}

// Budgets are the per-state retry policies.
type Budgets struct {
	PageLoad retry.Policy
	Locate   retry.Policy
	FormLoad retry.Policy
	Verify   retry.Policy
}

// Config is everything the engine consumes but does not compute.
type Config struct {
	ForumURL     string
	AllowedHosts []string
	RequireHTTPS bool
	// PathContains, when set, requires the URL path to contain one entry.
	PathContains []string
	Form         Form
	Budgets      Budgets
}

// MoodleForm targets a Moodle forum's "new discussion" form.
func MoodleForm() Form {
	return Form{
		CreateControl: snapshot.Descriptor{
			Label:    "create control",
			Names:    []string{"Add discussion topic", "Add a new discussion topic"},
			Roles:    []string{"button", "link"},
			Contains: []string{"add discussion", "new discussion"},
		},
		SubjectField: snapshot.Descriptor{
			Label: "subject field",
			Names: []string{"Subject"},
			Roles: []string{"textbox"},
			Attrs: map[string]string{"id": "id_subject", "name": "subject"},
		},
		BodyEditor: snapshot.Descriptor{
			Label:    "body editor",
			Names:    []string{"Message", "Rich text area"},
			Roles:    []string{"textbox", "document", "iframe"},
			Contains: []string{"message", "rich text area"},
			Attrs:    map[string]string{"id": "id_message"},
		},
		SubmitLabels: []string{"Post to forum", "Submit", "Save changes"},
	}
}

// DefaultBudgets are small fixed budgets with exponential backoff.
func DefaultBudgets() Budgets {
	return Budgets{
		PageLoad: retry.Policy{Attempts: 10, Initial: 250 * time.Millisecond, Max: 2 * time.Second, Multiplier: 2},
		Locate:   retry.Policy{Attempts: 5, Initial: 250 * time.Millisecond, Max: 2 * time.Second, Multiplier: 2},
		FormLoad: retry.Policy{Attempts: 8, Initial: 250 * time.Millisecond, Max: 2 * time.Second, Multiplier: 2},
		Verify:   retry.Policy{Attempts: 3, Initial: 250 * time.Millisecond, Max: time.Second, Multiplier: 2},
	}
}

// DefaultConfig returns a Moodle-targeted configuration without a forum URL.
func DefaultConfig() Config {
	return Config{
		RequireHTTPS: true,
		Form:         MoodleForm(),
		Budgets:      DefaultBudgets(),
	}
}

// ValidateURL checks raw before any navigation.
func (c Config) ValidateURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%w: no forum URL given or configured", ErrInvalidURL)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}

	switch strings.ToLower(u.Scheme) {
	case "https":
	case "http":
		if c.RequireHTTPS {
			return nil, fmt.Errorf("%w: %s is not https", ErrInvalidURL, raw)
		}
	default:
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, u.Scheme)
	}

	host := strings.ToLower(u.Hostname())
	if host == "" {
		return nil, fmt.Errorf("%w: %s has no host", ErrInvalidURL, raw)
	}
	if len(c.AllowedHosts) > 0 && !hostAllowed(host, c.AllowedHosts) {
		return nil, fmt.Errorf("%w: host %s is not allowed", ErrInvalidURL, host)
	}
	if len(c.PathContains) > 0 {
		ok := false
		for _, p := range c.PathContains {
			if strings.Contains(u.Path, p) {
				ok = true
				break
			}
		}
		if !ok {
			return nil, fmt.Errorf("%w: %s does not look like a forum page", ErrInvalidURL, u.Path)
		}
	}
	return u, nil
}

// hostAllowed accepts an exact entry or any subdomain of one.
func hostAllowed(host string, allowed []string) bool {
	for _, a := range allowed {
		a = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(a), "."))
		if a == "" {
			continue
		}
		if host == a || strings.HasSuffix(host, "."+a) {
			return true
		}
	}
	return false
}

func (f Form) isSubmit(name string) bool {
	n := strings.ToLower(strings.Join(strings.Fields(name), " "))
	for _, l := range f.SubmitLabels {
		if n == strings.ToLower(strings.Join(strings.Fields(l), " ")) {
			return true
		}
	}
	return false
}
