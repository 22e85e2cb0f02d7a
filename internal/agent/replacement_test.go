package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/rahul/autopilot/internal/plan"
	"github.com/rahul/autopilot/internal/surface"
	"github.com/rahul/autopilot/internal/textgen"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func replacementRequest() ReplacementRequest {
	return ReplacementRequest{
		SessionID: "s1",
		Goal:      "open the compose dialog",
		Tried:     plan.AlternativeSet{click("Create"), click("New Post")},
		Page:      surface.Snapshot{Buttons: []string{"Compose", "Share"}},
	}
}

func TestReplacer_Accepts(t *testing.T) {
	gen := newScriptGen().on("replacement", "Try these:\n```json\n[{\"action\":\"click\",\"target\":\"Compose\"},{\"action\":\"click\",\"target\":\"#compose\"}]\n```\nGood luck.")
	set, err := NewReplacer(gen, NewPromptManager("")).Request(context.Background(), replacementRequest())
	require.NoError(t, err)
	assert.Equal(t, plan.AlternativeSet{click("Compose"), click("#compose")}, set)

	prompt := gen.lastPrompt("replacement")
	assert.Contains(t, prompt, "open the compose dialog")
	assert.Contains(t, prompt, `1. click "Create"`)
	assert.Contains(t, prompt, `2. click "New Post"`)
	assert.Contains(t, prompt, "  - Compose")
}

func TestReplacer_RejectsRepeatedTarget(t *testing.T) {
	gen := newScriptGen().on("replacement", `[{"action":"click","target":"Share"},{"action":"click","target":"  new POST "}]`)
	_, err := NewReplacer(gen, NewPromptManager("")).Request(context.Background(), replacementRequest())

	var rerr *ReplacementError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, Repeated, rerr.Reason)
}

func TestReplacer_TruncatesToThree(t *testing.T) {
	gen := newScriptGen().on("replacement", `[{"action":"click","target":"a"},{"action":"click","target":"b"},{"action":"click","target":"c"},{"action":"click","target":"d"}]`)
	set, err := NewReplacer(gen, NewPromptManager("")).Request(context.Background(), replacementRequest())
	require.NoError(t, err)
	assert.Len(t, set, 3)
}

func TestReplacer_SingleStepPlan(t *testing.T) {
	gen := newScriptGen().on("replacement", `[[{"action":"click","target":"Compose"}]]`)
	set, err := NewReplacer(gen, NewPromptManager("")).Request(context.Background(), replacementRequest())
	require.NoError(t, err)
	assert.Equal(t, plan.AlternativeSet{click("Compose")}, set)
}

func TestReplacer_Failures(t *testing.T) {
	tests := []struct {
		name string
		gen  textgen.Generator
		want ReplacementReason
	}{
		{"no generator", nil, ServiceFailure},
		{"generator error", newScriptGen().fail("replacement", textgen.ErrBlocked), ServiceFailure},
		{"prose only", newScriptGen().on("replacement", "I cannot find anything."), Malformed},
		{"empty array", newScriptGen().on("replacement", "[]"), Malformed},
		{"unknown action", newScriptGen().on("replacement", `[{"action":"teleport","target":"x"}]`), Malformed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewReplacer(tt.gen, NewPromptManager("")).Request(context.Background(), replacementRequest())
			var rerr *ReplacementError
			require.True(t, errors.As(err, &rerr), "got %v", err)
			assert.Equal(t, tt.want, rerr.Reason)
		})
	}
}
