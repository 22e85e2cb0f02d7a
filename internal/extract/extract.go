// Package extract pulls one JSON value out of free-form model output. Replies
// may wrap the payload in prose or a markdown fence, or stop mid-structure.
package extract

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Reason classifies why extraction failed.
type Reason string

const (
	// Empty means there was no text to look at.
	Empty Reason = "empty"
	// Malformed means no complete structure of the expected shape was found.
	Malformed Reason = "malformed"
	// Unparseable means a structure was found but it is not valid JSON.
	Unparseable Reason = "unparseable"
)

// Error is returned by Extract. Callers treat it as recoverable.
type Error struct {
	Reason Reason
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("extract: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("extract: %s", e.Reason)
}

func (e *Error) Unwrap() error { return e.Err }

// Shape restricts which top-level JSON value is accepted.
type Shape int

const (
	Any Shape = iota
	Array
	Object
)

func (s Shape) opens(c byte) bool {
	switch s {
	case Array:
		return c == '['
	case Object:
		return c == '{'
	default:
		return c == '[' || c == '{'
	}
}

const fence = "```"

// Extract returns the first JSON array or object embedded in raw.
func Extract(raw string) (json.RawMessage, error) {
	return ExtractShape(raw, Any)
}

// ExtractShape returns the first JSON value of the given shape embedded in
// raw. If raw holds a fenced block only its first block is searched.
func ExtractShape(raw string, shape Shape) (json.RawMessage, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, &Error{Reason: Empty}
	}
	text := strings.TrimSpace(unfence(raw))
	if text == "" {
		return nil, &Error{Reason: Empty, Err: fmt.Errorf("fenced block is empty")}
	}

	var lastErr error
	found := false
	for start := 0; start < len(text); start++ {
		if !shape.opens(text[start]) || !structural(text, start) {
			continue
		}
		end, ok := matchClose(text, start)
		if !ok {
			if truncated(text[start:]) {
				// A payload cut off mid-structure; anything further in is a fragment of it.
				break
			}
			// A bracket in prose that is never closed.
			continue
		}
		found = true
		candidate := text[start : end+1]
		if err := strictParse(candidate); err != nil {
			// Never descend into a broken structure to return a fragment.
			lastErr = err
			start = end
			continue
		}
		return json.RawMessage(candidate), nil
	}

	// Last resort: the whole de-fenced text.
	if shape.opens(text[0]) {
		err := strictParse(text)
		if err == nil {
			return json.RawMessage(text), nil
		}
		if lastErr == nil {
			lastErr = err
		}
	}

	if !found {
		return nil, &Error{Reason: Malformed, Err: lastErr}
	}
	return nil, &Error{Reason: Unparseable, Err: lastErr}
}

// structural reports whether the opener at i can begin JSON: an object
// needs a key or its close, an array a value or its close.
func structural(s string, i int) bool {
	rest := strings.TrimLeft(s[i+1:], " \t\r\n")
	if rest == "" {
		return true
	}
	c := rest[0]
	if s[i] == '{' {
		return c == '"' || c == '}'
	}
	switch {
	case c == '[', c == '{', c == '"', c == '-', c == ']', c >= '0' && c <= '9':
		return true
	}
	for _, lit := range []string{"true", "false", "null"} {
		if strings.HasPrefix(rest, lit) || strings.HasPrefix(lit, rest) {
			return true
		}
	}
	return false
}

// truncated reports whether s is valid JSON up to the point where it ends.
func truncated(s string) bool {
	var v any
	err := json.NewDecoder(strings.NewReader(s)).Decode(&v)
	return errors.Is(err, io.ErrUnexpectedEOF)
}

func strictParse(s string) error {
	var v any
	return json.Unmarshal([]byte(s), &v)
}

// unfence returns the body of the first fenced block, or raw unchanged when
// there is none. An unclosed fence runs to the end of the text.
func unfence(raw string) string {
	open := strings.Index(raw, fence)
	if open < 0 {
		return raw
	}
	body := raw[open+len(fence):]
	// Skip an info string such as "json".
	i := 0
	for i < len(body) && isTagByte(body[i]) {
		i++
	}
	body = body[i:]
	if end := strings.Index(body, fence); end >= 0 {
		body = body[:end]
	}
	return body
}

func isTagByte(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '-' || c == '_'
}

// matchClose finds the index of the token closing the structure opened at
// start. Brackets inside string literals are ignored.
func matchClose(s string, start int) (int, bool) {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '[', '{':
			depth++
		case ']', '}':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}
