package agent

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/rahul/autopilot/internal/plan"
	"github.com/rahul/autopilot/internal/textgen"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanner_GeneratedPlan(t *testing.T) {
	gen := newScriptGen().on("plan", "Here is the plan:\n```json\n{\"steps\": [[{\"action\":\"click\",\"target\":\"Create\"},{\"action\":\"click\",\"target\":\"New Post\"}], {\"action\":\"click\",\"target\":\"Share\"}]}\n```")
	steps, source, err := NewPlanner(gen, NewPromptManager(""), nil).Plan(context.Background(), "s1", "post a photo")
	require.NoError(t, err)
	assert.Equal(t, SourceGenerator, source)
	assert.Equal(t, plan.StepPlan{{click("Create"), click("New Post")}, {click("Share")}}, steps)
	assert.Contains(t, gen.lastPrompt("plan"), `User goal: "post a photo"`)
}

func TestPlanner_FallsBackWhenUnavailable(t *testing.T) {
	for name, gen := range map[string]textgen.Generator{
		"no generator": nil,
		"unreachable":  newScriptGen().fail("plan", errors.Join(textgen.ErrUnavailable, errors.New("connection refused"))),
	} {
		t.Run(name, func(t *testing.T) {
			steps, source, err := NewPlanner(gen, NewPromptManager(""), nil).Plan(context.Background(), "s1", "order pizza from dominos")
			require.NoError(t, err)
			assert.Equal(t, SourceFallback, source)
			assert.Equal(t, "https://www.dominos.ca", steps[0][0].Value)
		})
	}
}

func TestPlanner_Failures(t *testing.T) {
	for name, gen := range map[string]*scriptGen{
		"blocked":    newScriptGen().fail("plan", fmt.Errorf("gemini: %w", textgen.ErrBlocked)),
		"prose":      newScriptGen().on("plan", "I'd rather not."),
		"empty plan": newScriptGen().on("plan", "[]"),
		"bad step":   newScriptGen().on("plan", `[{"action":"dance"}]`),
	} {
		t.Run(name, func(t *testing.T) {
			_, _, err := NewPlanner(gen, NewPromptManager(""), nil).Plan(context.Background(), "s1", "book a flight")
			assert.Error(t, err)
		})
	}
}

func TestFallbackPlan(t *testing.T) {
	tests := []struct {
		goal  string
		first plan.Action
		steps int
	}{
		{"message my first instagram DM hello", plan.Action{Kind: plan.KindSearch, Target: "google", Value: "Instagram"}, 8},
		{"order pizza from Domino's", plan.Action{Kind: plan.KindNavigate, Target: "dominos", Value: "https://www.dominos.ca"}, 3},
		{"open my calculus lecture on YouTube", plan.Action{Kind: plan.KindSearch, Target: "google", Value: "my calculus lecture on YouTube"}, 2},
		{"create a new EC2 instance", plan.Action{Kind: plan.KindSearch, Target: "google", Value: "create a new EC2 instance"}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.goal, func(t *testing.T) {
			p := FallbackPlan(tt.goal)
			require.Len(t, p, tt.steps)
			got := p[0][0]
			got.Description = ""
			assert.Equal(t, tt.first, got)
		})
	}
}

func TestFallbackPlan_Flight(t *testing.T) {
	p := FallbackPlan("Book a cheap flight from Toronto to New York")
	require.Len(t, p, 6)
	assert.Equal(t, plan.KindNavigate, p[0][0].Kind)
	require.Len(t, p[1], 2)
	assert.Equal(t, "Toronto", p[1][0].Value)
	assert.Equal(t, "New York", p[2][0].Value)
	assert.Equal(t, plan.KindExtract, p[5][0].Kind)

	// a route that cannot be read is asked for
	p = FallbackPlan("book a flight")
	require.Len(t, p, 8)
	assert.Equal(t, plan.KindAskUser, p[1][0].Kind)
	assert.Equal(t, "origin", p[1][0].Value)
	assert.Equal(t, "{{origin}}", p[3][0].Value)
}

func TestPromptManager_Override(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, writeFile(dir, "planner.md", "custom plan for {{.Goal}}"))

	pm := NewPromptManager(dir)
	out, err := pm.Render(PromptPlanner, struct{ Goal string }{"x"})
	require.NoError(t, err)
	assert.Equal(t, "custom plan for x", out)

	// not overridden: the built-in template is used
	out, err = pm.Render(PromptVerifier, struct{ Goal, History, Page string }{"g", "", "Title: T"})
	require.NoError(t, err)
	assert.Contains(t, out, `Goal: "g"`)
	assert.Contains(t, out, "(none)")

	_, err = pm.Render("nope", nil)
	assert.Error(t, err)
}

func TestPromptManager_PlannerShowsPlaceholderSyntax(t *testing.T) {
	out, err := NewPromptManager("").Render(PromptPlanner, struct{ Goal string }{"g"})
	require.NoError(t, err)
	assert.Contains(t, out, `"{{key}}"`)
}

func writeFile(dir, name, content string) error {
	return os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644)
}
