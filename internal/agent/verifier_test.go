package agent

import (
	"context"
	"fmt"
	"testing"

	"github.com/rahul/autopilot/internal/plan"
	"github.com/rahul/autopilot/internal/surface"
	"github.com/rahul/autopilot/internal/textgen"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func verify(t *testing.T, gen textgen.Generator, history []plan.Entry) (plan.Verification, error) {
	t.Helper()
	v := NewVerifier(gen, NewPromptManager(""), 3)
	return v.Verify(context.Background(), "s1", "post a photo", history, surface.Snapshot{Title: "Feed", URL: "https://example.com"})
}

func TestVerifier_Achieved(t *testing.T) {
	gen := newScriptGen().on("verification", `Sure! {"achieved": true, "reason": "the post is live", "steps": []}`)
	res, err := verify(t, gen, nil)
	require.NoError(t, err)
	assert.True(t, res.Achieved)
	assert.Equal(t, "the post is live", res.Reason)
	assert.Empty(t, res.Continuation)
}

func TestVerifier_AchievedWithStepsIsNotTrusted(t *testing.T) {
	gen := newScriptGen().on("verification", `{"achieved": true, "reason": "almost", "steps": [{"action":"click","target":"Share"}]}`)
	res, err := verify(t, gen, nil)
	require.NoError(t, err)
	assert.False(t, res.Achieved)
	assert.Equal(t, plan.StepPlan{{click("Share")}}, res.Continuation)
}

func TestVerifier_NotAchievedNeedsSteps(t *testing.T) {
	gen := newScriptGen().on("verification", `{"achieved": false, "reason": "stuck"}`)
	_, err := verify(t, gen, nil)
	var verr *VerificationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, err.Error(), "stuck")
}

func TestVerifier_SingleStepContinuation(t *testing.T) {
	gen := newScriptGen().on("verification", `{"achieved": false, "reason": "one more", "steps": [{"action":"click","target":"Share"}]}`)
	res, err := verify(t, gen, nil)
	require.NoError(t, err)
	assert.False(t, res.Achieved)
	assert.Equal(t, "one more", res.Reason)
	assert.Equal(t, plan.StepPlan{{click("Share")}}, res.Continuation)
}

func TestVerifier_TruncatesContinuation(t *testing.T) {
	steps := ""
	for i := 0; i < 7; i++ {
		if i > 0 {
			steps += ","
		}
		steps += fmt.Sprintf(`{"action":"click","target":"b%d"}`, i)
	}
	gen := newScriptGen().on("verification", `{"achieved": false, "reason": "more", "steps": [`+steps+`]}`)
	res, err := verify(t, gen, nil)
	require.NoError(t, err)
	assert.Len(t, res.Continuation, 5)
}

func TestVerifier_Failures(t *testing.T) {
	for name, gen := range map[string]*scriptGen{
		"blocked":     newScriptGen().fail("verification", textgen.ErrBlocked),
		"no object":   newScriptGen().on("verification", "yes, done"),
		"no achieved": newScriptGen().on("verification", `{"reason": "?"}`),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := verify(t, gen, nil)
			var verr *VerificationError
			assert.ErrorAs(t, err, &verr)
		})
	}
}

func TestVerifier_BoundsHistory(t *testing.T) {
	var history []plan.Entry
	for i := 0; i < 6; i++ {
		history = append(history, plan.Entry{Action: click(fmt.Sprintf("step-%d", i)), Outcome: plan.Succeeded})
	}
	gen := newScriptGen().on("verification", `{"achieved": true, "reason": "ok"}`)
	_, err := verify(t, gen, history)
	require.NoError(t, err)

	prompt := gen.lastPrompt("verification")
	assert.NotContains(t, prompt, "step-2")
	assert.Contains(t, prompt, "step-3")
	assert.Contains(t, prompt, "step-5")
	assert.Contains(t, prompt, "Title: Feed")
}

func TestVerifier_NoGenerator(t *testing.T) {
	res, err := verify(t, nil, nil)
	require.NoError(t, err)
	assert.True(t, res.Achieved)
}
