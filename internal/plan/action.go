package plan

import (
	"fmt"
	"sort"
	"strings"
)

// Kind identifies what an Action does against a page.
type Kind string

const (
	KindNavigate Kind = "navigate"
	KindSearch   Kind = "search"
	KindClick    Kind = "click"
	KindFill     Kind = "fill"
	KindWait     Kind = "wait"
	KindScroll   Kind = "scroll"
	KindAskUser  Kind = "ask_user"
	KindExtract  Kind = "extract"
)

var kindAliases = map[string]Kind{
	"navigate":        KindNavigate,
	"goto":            KindNavigate,
	"open":            KindNavigate,
	"search":          KindSearch,
	"click":           KindClick,
	"fill":            KindFill,
	"type":            KindFill,
	"input":           KindFill,
	"wait":            KindWait,
	"scroll":          KindScroll,
	"ask_user":        KindAskUser,
	"askuser":         KindAskUser,
	"ask":             KindAskUser,
	"extract":         KindExtract,
	"extract_results": KindExtract,
}

// ParseKind maps a generator-supplied action name onto a Kind.
func ParseKind(s string) (Kind, error) {
	k, ok := kindAliases[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return "", fmt.Errorf("unknown action kind %q", s)
	}
	return k, nil
}

// Action is one thing to try against the page. Target and Value depend on
// Kind: Fill types Value into Target, Wait reads Value as seconds, AskUser
// carries the question in Description and an answer key in Value.
type Action struct {
	Kind        Kind   `json:"action"`
	Target      string `json:"target,omitempty"`
	Value       string `json:"value,omitempty"`
	Description string `json:"description,omitempty"`

	// Answered marks an AskUser action whose Value now holds the user's reply.
	Answered bool `json:"answered,omitempty"`
}

// WithAnswer returns a copy of an AskUser action carrying the user's reply.
func (a Action) WithAnswer(answer string) Action {
	a.Value = answer
	a.Answered = true
	return a
}

// Expand substitutes {{key}} placeholders in Target and Value from answers.
func (a Action) Expand(answers map[string]string) Action {
	if len(answers) == 0 {
		return a
	}
	keys := make([]string, 0, len(answers))
	for k := range answers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, 2*len(keys))
	for _, k := range keys {
		pairs = append(pairs, "{{"+k+"}}", answers[k])
	}
	// One pass: placeholders inside an answer are left as typed.
	r := strings.NewReplacer(pairs...)
	a.Target = r.Replace(a.Target)
	a.Value = r.Replace(a.Value)
	return a
}

func (a Action) String() string {
	var sb strings.Builder
	sb.WriteString(string(a.Kind))
	if a.Target != "" {
		fmt.Fprintf(&sb, " %q", a.Target)
	}
	if a.Value != "" {
		fmt.Fprintf(&sb, " = %q", a.Value)
	}
	return sb.String()
}

// AlternativeSet is an ordered list of interchangeable actions for one step.
// The first one that succeeds wins.
type AlternativeSet []Action

// Targets returns the lower-cased non-empty targets in the set.
func (s AlternativeSet) Targets() []string {
	out := make([]string, 0, len(s))
	for _, a := range s {
		if t := strings.ToLower(strings.TrimSpace(a.Target)); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// Intent describes what the step is trying to achieve, for prompts.
func (s AlternativeSet) Intent() string {
	for _, a := range s {
		if a.Description != "" {
			return a.Description
		}
	}
	if len(s) > 0 {
		return s[0].String()
	}
	return ""
}

// StepPlan is an ordered list of steps, executed front to back.
type StepPlan []AlternativeSet

// Clone copies the outer slice so steps can be substituted without touching
// the caller's plan. The sets themselves are never mutated.
func (p StepPlan) Clone() StepPlan {
	out := make(StepPlan, len(p))
	copy(out, p)
	return out
}

// Single wraps plain actions into one-alternative steps.
func Single(actions ...Action) StepPlan {
	out := make(StepPlan, 0, len(actions))
	for _, a := range actions {
		out = append(out, AlternativeSet{a})
	}
	return out
}
