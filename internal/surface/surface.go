// Package surface is the boundary between the agent and a live page: one
// interface to perform actions and one to look at what is on screen.
package surface

import (
	"context"
	"fmt"
	"strings"

	"github.com/rahul/autopilot/internal/plan"
)

// Outcome is what the page reported for one action.
type Outcome struct {
	Success bool
	Reason  string
	// Data carries the payload of Extract actions.
	Data string
}

// Executor performs a single action against the page.
type Executor interface {
	Perform(ctx context.Context, a plan.Action) (Outcome, error)
}

// Inspector reports what is currently on the page.
type Inspector interface {
	Snapshot(ctx context.Context) (Snapshot, error)
}

// Surface is one page context owned by exactly one session.
type Surface interface {
	Executor
	Inspector
	Close() error
}

// Factory opens a surface for a session.
type Factory func(ctx context.Context, sessionID string) (Surface, error)

// Snapshot summarises the visible page.
type Snapshot struct {
	Title       string   `json:"title"`
	URL         string   `json:"url"`
	Headings    []string `json:"headings"`
	Buttons     []string `json:"buttons"`
	Links       []string `json:"links"`
	Textboxes   []string `json:"textboxes"`
	VisibleText []string `json:"visible_text_sample"`
}

// Elements renders the interactive elements for a prompt.
func (s Snapshot) Elements() string {
	var sb strings.Builder
	writeList(&sb, "Buttons", s.Buttons)
	writeList(&sb, "Links", s.Links)
	writeList(&sb, "Text fields", s.Textboxes)
	if sb.Len() == 0 {
		return "(no interactive elements found)\n"
	}
	return sb.String()
}

// Summary renders the whole snapshot for a prompt.
func (s Snapshot) Summary() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Title: %s\nURL: %s\n", orNone(s.Title), orNone(s.URL))
	writeList(&sb, "Headings", s.Headings)
	writeList(&sb, "Visible text", s.VisibleText)
	sb.WriteString(s.Elements())
	return sb.String()
}

func writeList(sb *strings.Builder, label string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(sb, "%s:\n", label)
	for _, it := range items {
		fmt.Fprintf(sb, "  - %s\n", it)
	}
}

func orNone(s string) string {
	if s == "" {
		return "(unknown)"
	}
	return s
}
