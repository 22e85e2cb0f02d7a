// Package textgen wraps the text generation backends the agent plans with.
package textgen

import (
	"context"
	"errors"
	"net"
	"net/url"
	"syscall"
)

var (
	// ErrBlocked is returned when the backend refuses to answer.
	ErrBlocked = errors.New("generation blocked")
	// ErrUnavailable is returned when the backend cannot be reached or is not
	// configured.
	ErrUnavailable = errors.New("generator unavailable")
	// ErrEmptyResponse is returned when the backend answers with no text.
	ErrEmptyResponse = errors.New("empty response")
)

// Generator turns a prompt into free-form text.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

type ctxKey int

const (
	keySession ctxKey = iota
	keyPurpose
)

// WithCall tags ctx with the session and purpose of a generation request so
// wrappers can log and measure it.
func WithCall(ctx context.Context, sessionID, purpose string) context.Context {
	ctx = context.WithValue(ctx, keySession, sessionID)
	return context.WithValue(ctx, keyPurpose, purpose)
}

func callInfo(ctx context.Context) (sessionID, purpose string) {
	sessionID, _ = ctx.Value(keySession).(string)
	purpose, _ = ctx.Value(keyPurpose).(string)
	if purpose == "" {
		purpose = "unknown"
	}
	return sessionID, purpose
}

// unreachable maps transport failures onto ErrUnavailable so callers can
// tell "no service" apart from "bad answer".
func unreachable(err error) error {
	if err == nil {
		return nil
	}
	var opErr *net.OpError
	var dnsErr *net.DNSError
	var urlErr *url.Error
	switch {
	case errors.Is(err, syscall.ECONNREFUSED), errors.As(err, &opErr), errors.As(err, &dnsErr):
		return errors.Join(ErrUnavailable, err)
	case errors.As(err, &urlErr) && !urlErr.Timeout():
		return errors.Join(ErrUnavailable, err)
	}
	return err
}
