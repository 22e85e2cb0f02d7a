package plan

import (
	"fmt"
	"strings"
)

// Format renders a plan for terminals and chat transports.
func Format(p StepPlan) string {
	var sb strings.Builder
	sb.WriteString("PLAN:\n")
	for i, set := range p {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, oneLine(describe(set[0])))
		for _, alt := range set[1:] {
			fmt.Fprintf(&sb, "   or %s\n", oneLine(describe(alt)))
		}
	}
	return sb.String()
}

// FormatEntries renders history lines, most recent last.
func FormatEntries(entries []Entry) string {
	var sb strings.Builder
	for i, e := range entries {
		fmt.Fprintf(&sb, "%d. [%s] %s", i+1, e.Outcome, oneLine(e.Action.String()))
		if e.Reason != "" {
			fmt.Fprintf(&sb, " (%s)", oneLine(e.Reason))
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

func describe(a Action) string {
	if a.Description != "" {
		return fmt.Sprintf("%s: %s", a.Kind, a.Description)
	}
	return a.String()
}

func oneLine(s string) string {
	s = strings.ReplaceAll(s, "\n", "\\n")
	if len(s) > 100 {
		s = s[:97] + "..."
	}
	return s
}
