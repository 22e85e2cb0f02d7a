package cli

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rahul/autopilot/pkg/config"
)

func clearProviderEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"GEMINI_API_KEY", "OPENAI_API_KEY", "OPENROUTER_API_KEY"} {
		t.Setenv(k, "")
	}
}

func TestPlanCmd_FallbackWithoutProvider(t *testing.T) {
	clearProviderEnv(t)
	dir := t.TempDir()

	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs([]string{
		"plan",
		"--config", filepath.Join(dir, "missing.yaml"),
		"--env-file", filepath.Join(dir, "missing.env"),
		"order", "pizza", "from", "dominos",
	})
	require.NoError(t, cmd.Execute())

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.NotEmpty(t, lines)
	assert.Equal(t, "3 steps (fallback)", lines[0])
	assert.Equal(t, "PLAN:", lines[1])
	assert.Contains(t, out.String(), "1. navigate: Open the Domino's website")
	assert.Contains(t, errOut.String(), "no text generation provider enabled")
}

func TestPlanCmd_RequiresGoal(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"plan"})
	assert.Error(t, cmd.Execute())
}

func TestMetricsMux(t *testing.T) {
	clearProviderEnv(t)
	cfg := config.Default()
	cfg.Log.LLMLogPath = ""
	a, err := newCore(context.Background(), cfg, &bytes.Buffer{})
	require.NoError(t, err)
	a.metrics.ObserveAction("click", "succeeded")

	srv := httptest.NewServer(metricsMux(a))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	var body bytes.Buffer
	_, err = body.ReadFrom(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, body.String(), `autopilot_actions_attempted_total{kind="click",outcome="succeeded"} 1`)
}
