package content

import (
	"encoding/json"
	"fmt"
	"strings"
)

// flatDraft is the JSON shape produced by the drafting assistant.
type flatDraft struct {
	Title      string          `json:"title"`
	Understood string          `json:"understood"`
	Confused   string          `json:"confused"`
	AISummary  string          `json:"ai_summary"`
	Questions  string          `json:"questions"`
	Sections   json.RawMessage `json:"sections"`
	Citations  []string        `json:"citations"`
}

// ParseDraft reads a post from either a JSON draft or a Markdown draft.
//
// JSON drafts are either a Post or the flat form with title, understood,
// confused, ai_summary and questions keys. Markdown drafts use "# " for the
// title and "## " headings matching the heading table for sections. A
// "## References" section becomes post-level citations.
func ParseDraft(draft string) (Post, error) {
	trimmed := strings.TrimSpace(draft)
	if trimmed == "" {
		return Post{}, fmt.Errorf("%w: empty draft", ErrInvalidPost)
	}

	var p Post
	var err error
	if strings.HasPrefix(trimmed, "{") {
		p, err = parseJSONDraft(trimmed)
	} else {
		p, err = parseMarkdownDraft(trimmed)
	}
	if err != nil {
		return Post{}, err
	}
	if err := p.Validate(); err != nil {
		return Post{}, err
	}
	return p, nil
}

func parseJSONDraft(s string) (Post, error) {
	var d flatDraft
	if err := json.Unmarshal([]byte(s), &d); err != nil {
		return Post{}, fmt.Errorf("%w: malformed JSON draft: %v", ErrInvalidPost, err)
	}

	if len(d.Sections) > 0 && string(d.Sections) != "null" {
		var p Post
		if err := json.Unmarshal([]byte(s), &p); err != nil {
			return Post{}, fmt.Errorf("%w: malformed JSON draft: %v", ErrInvalidPost, err)
		}
		return p, nil
	}

	p := Post{Title: strings.TrimSpace(d.Title), Citations: d.Citations}
	for _, f := range []struct {
		name string
		text string
	}{
		{SectionUnderstood, d.Understood},
		{SectionConfused, d.Confused},
		{SectionAISummary, d.AISummary},
		{SectionQuestions, d.Questions},
	} {
		if strings.TrimSpace(f.text) != "" {
			p.Sections = append(p.Sections, Section{Name: f.name, Text: strings.TrimSpace(f.text)})
		}
	}
	return p, nil
}

func parseMarkdownDraft(s string) (Post, error) {
	var (
		p       Post
		current *Section
		body    []string
		inRefs  bool
	)
	flush := func() {
		if current != nil {
			current.Text = strings.TrimSpace(strings.Join(body, "\n"))
			p.Sections = append(p.Sections, *current)
		}
		current = nil
		body = nil
	}

	for _, line := range strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case p.Title == "" && current == nil && !inRefs && strings.HasPrefix(trimmed, "# "):
			p.Title = strings.TrimSpace(trimmed[2:])
		case strings.HasPrefix(trimmed, "## "):
			flush()
			heading := strings.TrimSpace(trimmed[3:])
			if strings.EqualFold(heading, ReferencesHeading) {
				inRefs = true
				continue
			}
			inRefs = false
			name, ok := SectionFor(heading)
			if !ok {
				return Post{}, fmt.Errorf("%w: %w: heading %q", ErrInvalidPost, ErrUnknownSection, heading)
			}
			current = &Section{Name: name}
		case inRefs:
			if ref := listItemText(trimmed); ref != "" {
				p.Citations = append(p.Citations, ref)
			}
		case current != nil:
			body = append(body, line)
		case trimmed != "":
			return Post{}, fmt.Errorf("%w: text before the first section heading", ErrInvalidPost)
		}
	}
	flush()
	return p, nil
}

func listItemText(line string) string {
	if m := bulletRe.FindStringSubmatch(line); m != nil {
		return m[1]
	}
	if m := orderedRe.FindStringSubmatch(line); m != nil {
		return m[1]
	}
	return strings.TrimSpace(line)
}
