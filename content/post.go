// Package content turns a structured forum post into the markup the body
// editor accepts.
package content

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidPost     = errors.New("invalid post payload")
	ErrUnknownSection  = errors.New("unknown section name")
	ErrInvalidCitation = errors.New("citation marker out of range")
)

// Section names understood by the heading table.
const (
	SectionUnderstood = "understood"
	SectionConfused   = "confused"
	SectionSummary    = "summary"
	SectionAISummary  = "ai_summary"
	SectionQuestions  = "questions"
)

// headings maps section names to their fixed heading labels.
var headings = map[string]string{
	SectionUnderstood: "What I Understand",
	SectionConfused:   "My Confusion Points",
	SectionSummary:    "AI Assistant Summary",
	SectionAISummary:  "AI Assistant Summary",
	SectionQuestions:  "My Questions",
}

// HeadingFor returns the heading label for a section name.
func HeadingFor(name string) (string, bool) {
	h, ok := headings[strings.ToLower(strings.TrimSpace(name))]
	return h, ok
}

// SectionFor maps a heading label back to its canonical section name.
func SectionFor(heading string) (string, bool) {
	want := strings.ToLower(strings.TrimSpace(heading))
	for _, name := range []string{SectionUnderstood, SectionConfused, SectionAISummary, SectionQuestions} {
		if strings.ToLower(headings[name]) == want {
			return name, true
		}
	}
	return "", false
}

// Section is one named part of the post body.
type Section struct {
	Name string `json:"name"`
	// Text is Markdown-like. {{cite:k}} refers to the k-th entry of
	// Citations, 1-based.
	Text      string   `json:"text"`
	Citations []string `json:"citations,omitempty"`
}

// Post is the payload handed to the engine. It is not modified.
type Post struct {
	Title    string    `json:"title"`
	Sections []Section `json:"sections"`
	// Citations are post-level sources listed after the section ones.
	Citations []string `json:"citations,omitempty"`
}

// Validate checks the payload before any browser action.
func (p Post) Validate() error {
	if strings.TrimSpace(p.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidPost)
	}
	if len(p.Sections) == 0 {
		return fmt.Errorf("%w: at least one section is required", ErrInvalidPost)
	}
	for i, s := range p.Sections {
		if _, ok := HeadingFor(s.Name); !ok {
			return fmt.Errorf("%w: %w: section %d %q", ErrInvalidPost, ErrUnknownSection, i, s.Name)
		}
		if strings.TrimSpace(s.Text) == "" {
			return fmt.Errorf("%w: section %q has no text", ErrInvalidPost, s.Name)
		}
		for j, c := range s.Citations {
			if strings.TrimSpace(c) == "" {
				return fmt.Errorf("%w: section %q citation %d is empty", ErrInvalidPost, s.Name, j+1)
			}
		}
	}
	for j, c := range p.Citations {
		if strings.TrimSpace(c) == "" {
			return fmt.Errorf("%w: citation %d is empty", ErrInvalidPost, j+1)
		}
	}
	return nil
}

// FirstHeading is the heading label of the first section.
func (p Post) FirstHeading() string {
	if len(p.Sections) == 0 {
		return ""
	}
	h, _ := HeadingFor(p.Sections[0].Name)
	return h
}
