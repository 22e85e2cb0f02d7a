package observability

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// EventType defines the category of the log event.
type EventType string

const (
	EventTypePlan         EventType = "plan"
	EventTypeStep         EventType = "step"
	EventTypeReplacement  EventType = "replacement"
	EventTypeVerification EventType = "verification"
	EventTypeSession      EventType = "session"
	EventTypePolicyCheck  EventType = "policy_check"
	EventTypeHeartbeat    EventType = "heartbeat"
	EventTypeLLM          EventType = "llm"
)

// Event represents a structured log entry.
type Event struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id,omitempty"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// NewZap builds the process logger. format is "json" or "console"; w
// defaults to the terminal writer.
func NewZap(level, format string, w io.Writer) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, err
	}
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	var enc zapcore.Encoder
	if format == "console" {
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	} else {
		enc = zapcore.NewJSONEncoder(encCfg)
	}
	if w == nil {
		w = NewTermWriter()
	}
	core := zapcore.NewCore(enc, zapcore.AddSync(w), lvl)
	return zap.New(core), nil
}

// Logger emits agent events through zap and keeps a rotated transcript of
// model traffic on disk.
type Logger struct {
	zap        *zap.Logger
	llmLogPath string
	maxSize    int64
	mu         sync.Mutex
}

// NewLogger wraps z. An empty llmLogPath disables the transcript file.
func NewLogger(z *zap.Logger, llmLogPath string) *Logger {
	if z == nil {
		z = zap.NewNop()
	}
	return &Logger{
		zap:        z.With(zap.String("component", "events")),
		llmLogPath: llmLogPath,
		maxSize:    10 * 1024 * 1024, // 10MB
	}
}

// Log emits a structured event.
func (l *Logger) Log(evt Event) {
	if l == nil {
		return
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	l.zap.Info(string(evt.Type),
		zap.String("session_id", evt.SessionID),
		zap.Any("data", evt.Data),
		zap.Time("at", evt.Timestamp),
	)

	if evt.Type == EventTypeLLM && l.llmLogPath != "" {
		data, err := json.Marshal(evt)
		if err != nil {
			l.zap.Warn("failed to marshal llm event", zap.Error(err))
			return
		}
		l.writeToFile(data)
	}
}

func (l *Logger) writeToFile(data []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.llmLogPath), 0755); err != nil {
		l.zap.Warn("failed to create log directory", zap.Error(err))
		return
	}

	info, err := os.Stat(l.llmLogPath)
	if err == nil && info.Size() > l.maxSize {
		l.rotateLogs()
	}

	f, err := os.OpenFile(l.llmLogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		l.zap.Warn("failed to open log file", zap.Error(err))
		return
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		l.zap.Warn("failed to write to log file", zap.Error(err))
	}
}

func (l *Logger) rotateLogs() {
	// Keep one .old generation.
	oldPath := l.llmLogPath + ".old"
	_ = os.Remove(oldPath)
	_ = os.Rename(l.llmLogPath, oldPath)
}

// Helper methods for common events

func (l *Logger) LogPlan(sessionID, source string, steps int, rendered string) {
	l.Log(Event{
		Type:      EventTypePlan,
		SessionID: sessionID,
		Data: map[string]any{
			"source": source,
			"steps":  steps,
			"plan":   rendered,
		},
	})
}

func (l *Logger) LogStep(sessionID string, index int, action, outcome, reason string) {
	l.Log(Event{
		Type:      EventTypeStep,
		SessionID: sessionID,
		Data: map[string]any{
			"index":   index,
			"action":  action,
			"outcome": outcome,
			"reason":  reason,
		},
	})
}

func (l *Logger) LogReplacement(sessionID string, index, attempt int, result string) {
	l.Log(Event{
		Type:      EventTypeReplacement,
		SessionID: sessionID,
		Data: map[string]any{
			"index":   index,
			"attempt": attempt,
			"result":  result,
		},
	})
}

func (l *Logger) LogVerification(sessionID string, achieved bool, reason string, continuation int) {
	l.Log(Event{
		Type:      EventTypeVerification,
		SessionID: sessionID,
		Data: map[string]any{
			"achieved":     achieved,
			"reason":       reason,
			"continuation": continuation,
		},
	})
}

func (l *Logger) LogSession(sessionID, status, reason string) {
	l.Log(Event{
		Type:      EventTypeSession,
		SessionID: sessionID,
		Data:      map[string]string{"status": status, "reason": reason},
	})
}

func (l *Logger) LogPolicy(sessionID, action, effect, reason string) {
	l.Log(Event{
		Type:      EventTypePolicyCheck,
		SessionID: sessionID,
		Data: map[string]string{
			"action": action,
			"effect": effect,
			"reason": reason,
		},
	})
}

func (l *Logger) LogHeartbeat() {
	l.Log(Event{
		Type: EventTypeHeartbeat,
		Data: map[string]string{"status": "alive"},
	})
}

func (l *Logger) LogLLM(sessionID, purpose, prompt, response string) {
	l.Log(Event{
		Type:      EventTypeLLM,
		SessionID: sessionID,
		Data: map[string]string{
			"purpose":  purpose,
			"prompt":   prompt,
			"response": response,
		},
	})
}
