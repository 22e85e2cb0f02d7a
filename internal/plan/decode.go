package plan

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrShape is returned when a payload parses as JSON but does not have the
// shape expected at its call site.
var ErrShape = errors.New("unexpected payload shape")

type wireAction struct {
	Action      string          `json:"action"`
	Kind        string          `json:"kind"`
	Target      string          `json:"target"`
	Selector    string          `json:"selector"`
	Value       json.RawMessage `json:"value"`
	Description string          `json:"description"`
}

func (w wireAction) toAction() (Action, error) {
	name := w.Action
	if name == "" {
		name = w.Kind
	}
	kind, err := ParseKind(name)
	if err != nil {
		return Action{}, fmt.Errorf("%w: %v", ErrShape, err)
	}
	value, err := scalarString(w.Value)
	if err != nil {
		return Action{}, fmt.Errorf("%w: value of %s action: %v", ErrShape, kind, err)
	}
	target := w.Target
	if target == "" {
		target = w.Selector
	}
	return Action{
		Kind:        kind,
		Target:      strings.TrimSpace(target),
		Value:       value,
		Description: strings.TrimSpace(w.Description),
	}, nil
}

// scalarString accepts strings, numbers and booleans; models are loose about
// quoting wait durations.
func scalarString(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
		return s, nil
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(raw, &b); err != nil {
			return "", err
		}
		return strconv.FormatBool(b), nil
	case '{', '[':
		return "", errors.New("must be a scalar")
	default:
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return "", err
		}
		return n.String(), nil
	}
}

func decodeAction(raw json.RawMessage) (Action, error) {
	var w wireAction
	if err := json.Unmarshal(raw, &w); err != nil {
		return Action{}, fmt.Errorf("%w: action must be an object: %v", ErrShape, err)
	}
	return w.toAction()
}

// decodeStep accepts either a single action object or an array of
// alternative action objects.
func decodeStep(raw json.RawMessage) (AlternativeSet, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty step", ErrShape)
	}
	if raw[0] == '{' {
		a, err := decodeAction(raw)
		if err != nil {
			return nil, err
		}
		return AlternativeSet{a}, nil
	}
	return DecodeAlternativeSet(raw)
}

// DecodeAlternativeSet parses a JSON array of action objects. An empty array
// is rejected.
func DecodeAlternativeSet(raw json.RawMessage) (AlternativeSet, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("%w: alternatives must be an array: %v", ErrShape, err)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: no alternatives", ErrShape)
	}
	set := make(AlternativeSet, 0, len(items))
	for i, item := range items {
		a, err := decodeAction(item)
		if err != nil {
			return nil, fmt.Errorf("alternative %d: %w", i, err)
		}
		set = append(set, a)
	}
	return set, nil
}

// DecodeStepPlan parses a JSON array whose elements are either action
// objects or arrays of alternatives.
func DecodeStepPlan(raw json.RawMessage) (StepPlan, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("%w: plan must be an array: %v", ErrShape, err)
	}
	p := make(StepPlan, 0, len(items))
	for i, item := range items {
		set, err := decodeStep(item)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
		p = append(p, set)
	}
	return p, nil
}

// Verification is the goal check reply: whether the goal is met, why, and
// what to do next when it is not.
type Verification struct {
	Achieved     bool
	Reason       string
	Continuation StepPlan
}

// DecodeVerification parses {"achieved": bool, "reason": string, "steps": [...]}.
// "continuation" is accepted in place of "steps".
func DecodeVerification(raw json.RawMessage) (Verification, error) {
	var w struct {
		Achieved     *bool           `json:"achieved"`
		Reason       string          `json:"reason"`
		Steps        json.RawMessage `json:"steps"`
		Continuation json.RawMessage `json:"continuation"`
	}
	if err := json.Unmarshal(raw, &w); err != nil {
		return Verification{}, fmt.Errorf("%w: verification must be an object: %v", ErrShape, err)
	}
	if w.Achieved == nil {
		return Verification{}, fmt.Errorf("%w: missing achieved", ErrShape)
	}
	v := Verification{Achieved: *w.Achieved, Reason: strings.TrimSpace(w.Reason)}

	steps := w.Steps
	if isNull(steps) {
		steps = w.Continuation
	}
	if !isNull(steps) {
		p, err := DecodeStepPlan(steps)
		if err != nil {
			return Verification{}, fmt.Errorf("continuation: %w", err)
		}
		v.Continuation = p
	}
	return v, nil
}

func isNull(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}
