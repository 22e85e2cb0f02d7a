package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rahul/autopilot/internal/agent"
	"github.com/rahul/autopilot/internal/flights"
	"go.uber.org/zap"
)

// Messenger defines the interface for communication gateways (Telegram, Discord, etc.)
type Messenger interface {
	// Start receives messages until ctx is done.
	Start(ctx context.Context) error
	// Send sends a message to a specific chat
	Send(chatID string, text string) error
	// Stop gracefully shuts down the gateway
	Stop() error
}

// Driver is the part of the orchestrator a chat needs.
type Driver interface {
	Start(ctx context.Context, id, goal string) (agent.View, error)
	Resume(ctx context.Context, id, answer string) (agent.View, error)
	Cancel(id string) error
	Status(id string) (agent.View, error)
}

const helpText = `Send a goal in plain words, e.g. "book a cheap flight from Toronto to Montreal".
/status shows progress, /cancel stops the current goal.`

// Handler turns chat messages into orchestrator calls. Each chat owns one
// session, named after the gateway and the chat id.
type Handler struct {
	Driver Driver
	log    *zap.Logger
}

func NewHandler(d Driver, z *zap.Logger) *Handler {
	if z == nil {
		z = zap.NewNop()
	}
	return &Handler{Driver: d, log: z.With(zap.String("component", "gateway"))}
}

// SessionID scopes a chat id to its gateway.
func SessionID(gateway, chatID string) string {
	return gateway + ":" + chatID
}

// Handle processes one message and returns the reply. A goal runs to its
// next resting point before Handle returns, so callers should not block
// their receive loop on it.
func (h *Handler) Handle(ctx context.Context, sessionID, text string) string {
	text = strings.TrimSpace(text)
	switch cmd := command(text); cmd {
	case "":
		return h.message(ctx, sessionID, text)
	case "start", "help":
		return helpText
	case "cancel":
		if err := h.Driver.Cancel(sessionID); err != nil {
			if errors.Is(err, agent.ErrUnknownSession) {
				return "Nothing to cancel."
			}
			return "Could not cancel: " + err.Error()
		}
		return "Cancelling."
	case "status":
		v, err := h.Driver.Status(sessionID)
		if err != nil {
			return "No goal yet. " + helpText
		}
		return FormatView(v)
	default:
		return fmt.Sprintf("Unknown command /%s.\n%s", cmd, helpText)
	}
}

func (h *Handler) message(ctx context.Context, sessionID, text string) string {
	if text == "" {
		return helpText
	}
	var (
		v   agent.View
		err error
	)
	if cur, serr := h.Driver.Status(sessionID); serr == nil && cur.Status == agent.StatusAwaitingUser {
		v, err = h.Driver.Resume(ctx, sessionID, text)
	} else {
		v, err = h.Driver.Start(ctx, sessionID, text)
	}

	var ferr *agent.FailureError
	switch {
	case err == nil, errors.As(err, &ferr):
		return FormatView(v)
	case errors.Is(err, agent.ErrNotAwaitingUser):
		// The question was withdrawn, e.g. by /cancel, after the status check.
		return "That question is no longer open. " + FormatView(v)
	case errors.Is(err, agent.ErrSessionBusy):
		return "Still working on the previous goal. Send /cancel to stop it."
	default:
		h.log.Error("session call failed", zap.String("session_id", sessionID), zap.Error(err))
		return "Something went wrong: " + err.Error()
	}
}

// command returns the bot command in text without its slash or @botname
// suffix, or "" when text is not a command.
func command(text string) string {
	if !strings.HasPrefix(text, "/") {
		return ""
	}
	word := strings.Fields(text[1:])
	if len(word) == 0 {
		return ""
	}
	name, _, _ := strings.Cut(word[0], "@")
	return strings.ToLower(name)
}

// FormatView renders a session view as a chat reply.
func FormatView(v agent.View) string {
	var sb strings.Builder
	switch v.Status {
	case agent.StatusAwaitingUser:
		sb.WriteString(v.Question)
	case agent.StatusDone:
		sb.WriteString("Done")
		if v.Reason != "" {
			sb.WriteString(": " + v.Reason)
		}
		if len(v.Options) > 0 {
			sb.WriteString("\n\n" + flights.Format(v.Options))
			if v.Recommendation != "" {
				sb.WriteString("\n" + v.Recommendation)
			}
		}
	case agent.StatusFailed:
		fmt.Fprintf(&sb, "Failed (%s)", v.Failure)
		if v.Reason != "" && v.Reason != string(v.Failure) {
			sb.WriteString(": " + v.Reason)
		}
	case agent.StatusRunning:
		fmt.Fprintf(&sb, "Working on %q: step %d of %d", v.Goal, min(v.Step+1, len(v.Plan)), len(v.Plan))
		if v.Phase != "" {
			fmt.Fprintf(&sb, " (%s)", v.Phase)
		}
	default:
		sb.WriteString("Idle")
	}
	return sb.String()
}
