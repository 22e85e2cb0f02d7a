package flights

import (
	"regexp"
	"strings"
)

// ParsePreferences reads ranking criteria from free text such as a goal or
// a user's reply. It defaults to {Cheapest}.
func ParsePreferences(text string) Preferences {
	t := strings.ToLower(text)
	var prefs []Preference
	if strings.Contains(t, "cheap") || strings.Contains(t, "budget") {
		prefs = append(prefs, Cheapest)
	}
	if strings.Contains(t, "direct") || strings.Contains(t, "nonstop") || strings.Contains(t, "non-stop") {
		prefs = append(prefs, Direct)
	}
	if strings.Contains(t, "fast") || strings.Contains(t, "quick") {
		prefs = append(prefs, Fastest)
	}
	return NewPreferences(prefs...)
}

// IsFlightGoal reports whether a goal is a flight comparison task.
func IsFlightGoal(goal string) bool {
	t := strings.ToLower(goal)
	return strings.Contains(t, "flight") || strings.Contains(t, " fly ") || strings.HasPrefix(t, "fly ")
}

var (
	routeRe = regexp.MustCompile(`\bfrom\s+([a-z][a-z\s]*?)\s+to\s+([a-z][a-z\s]*?)(?:\s+(?:on|departing|next|this|for|in)\b|$)`)
	fromRe  = regexp.MustCompile(`\bfrom\s+([a-z][a-z\s]*?)(?:\s+(?:on|departing|next|this|for|in)\b|$)`)
	toRe    = regexp.MustCompile(`\b(?:fly|flight|flights|go|trip)\s+to\s+([a-z][a-z\s]*?)(?:\s+(?:on|departing|next|this|for|in|from)\b|$)`)
)

// ParseRoute pulls "from X to Y" out of a goal. Missing ends are "".
func ParseRoute(goal string) (origin, destination string) {
	t := strings.ToLower(strings.TrimRight(strings.TrimSpace(goal), ".!?"))
	if m := routeRe.FindStringSubmatch(t); m != nil {
		return titleCase(m[1]), titleCase(m[2])
	}
	if m := fromRe.FindStringSubmatch(t); m != nil {
		origin = titleCase(m[1])
	}
	if m := toRe.FindStringSubmatch(t); m != nil {
		destination = titleCase(m[1])
	}
	return origin, destination
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
