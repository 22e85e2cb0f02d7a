package governance

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// Effect defines the result of a policy evaluation.
type Effect string

const (
	EffectAllow Effect = "allow"
	EffectDeny  Effect = "deny"
)

// Request describes one page action about to be dispatched.
type Request struct {
	SessionID string
	Kind      string
	Target    string
	Value     string
}

// Result contains the outcome of a policy evaluation.
type Result struct {
	Effect Effect
	Reason string
}

// PolicyEngine evaluates actions against a set of rules.
type PolicyEngine interface {
	Evaluate(ctx context.Context, req Request) (Result, error)
}

// DefaultPolicyEngine denies by action kind or by a pattern matching the
// action's target or value.
type DefaultPolicyEngine struct {
	DeniedKinds map[string]bool
	DeniedRegex []*regexp.Regexp
}

func NewDefaultPolicyEngine() *DefaultPolicyEngine {
	return &DefaultPolicyEngine{
		DeniedKinds: make(map[string]bool),
		DeniedRegex: make([]*regexp.Regexp, 0),
	}
}

// NewPolicyEngine builds an engine from configured kinds and patterns.
func NewPolicyEngine(kinds, patterns []string) (*DefaultPolicyEngine, error) {
	e := NewDefaultPolicyEngine()
	for _, k := range kinds {
		e.DenyKind(k)
	}
	for _, p := range patterns {
		if err := e.DenyPattern(p); err != nil {
			return nil, fmt.Errorf("invalid deny pattern %q: %w", p, err)
		}
	}
	return e, nil
}

func (e *DefaultPolicyEngine) DenyKind(kind string) {
	e.DeniedKinds[strings.ToLower(kind)] = true
}

func (e *DefaultPolicyEngine) DenyPattern(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	e.DeniedRegex = append(e.DeniedRegex, re)
	return nil
}

func (e *DefaultPolicyEngine) Evaluate(ctx context.Context, req Request) (Result, error) {
	if e.DeniedKinds[strings.ToLower(req.Kind)] {
		return Result{
			Effect: EffectDeny,
			Reason: fmt.Sprintf("action kind '%s' is restricted by policy", req.Kind),
		}, nil
	}

	for _, re := range e.DeniedRegex {
		if re.MatchString(req.Target) || re.MatchString(req.Value) {
			return Result{
				Effect: EffectDeny,
				Reason: fmt.Sprintf("action matches restricted pattern: %s", re.String()),
			}, nil
		}
	}

	return Result{
		Effect: EffectAllow,
		Reason: "approved by default policy",
	}, nil
}
