package cmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sortie/testserver"
)

const token = "cli-token"

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := RootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func startCollector(t *testing.T, opts testserver.Options) *testserver.Server {
	t.Helper()
	s := testserver.NewServer(opts)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	t.Setenv("SORTIE_HEC_URL", ts.URL+"/services/collector")
	t.Setenv("SORTIE_HEC_TOKEN", token)
	return s
}

func TestScenarios(t *testing.T) {
	out, err := execute(t, "scenarios")
	require.NoError(t, err)
	assert.Contains(t, out, "enterprise_attack_10min")
	assert.Contains(t, out, "insider_threat")

	out, err = execute(t, "scenarios", "--search", "no scenario is called this")
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found")
}

func TestScenarios_JSON(t *testing.T) {
	out, err := execute(t, "scenarios", "-o", "json")
	require.NoError(t, err)

	var summaries []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &summaries))
	require.NotEmpty(t, summaries)
	assert.NotEmpty(t, summaries[0]["id"])
}

func TestScenarios_FromConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sortie.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
scenarios:
  - id: quick_check
    name: Quick check
    description: One okta login
    phases:
      - name: login
        duration: 1
        sources: [okta_authentication]
`), 0o644))

	out, err := execute(t, "--config", path, "scenarios", "--search", "quick")
	require.NoError(t, err)
	assert.Contains(t, out, "quick_check")
	assert.Contains(t, out, "(custom)")
}

func TestTimeline(t *testing.T) {
	out, err := execute(t, "timeline", "enterprise_attack_10min")
	require.NoError(t, err)
	assert.Contains(t, out, "Scenario: enterprise_attack_10min")
	assert.Contains(t, out, "Events:   29")
	assert.Contains(t, out, "compressed")

	out, err = execute(t, "timeline", "enterprise_attack_10min", "-o", "json", "--speed", "realtime")
	require.NoError(t, err)
	var tl struct {
		Mode   string           `json:"mode"`
		Events []map[string]any `json:"events"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &tl))
	assert.Len(t, tl.Events, 29)
	assert.Contains(t, tl.Mode, "real-time")
}

func TestTimeline_Errors(t *testing.T) {
	_, err := execute(t, "timeline", "missing")
	assert.Error(t, err)

	_, err = execute(t, "timeline", "enterprise_attack_10min", "--speed", "slow")
	assert.Error(t, err)

	_, err = execute(t, "timeline")
	assert.Error(t, err)
}

func TestRun(t *testing.T) {
	collector := startCollector(t, testserver.Options{Token: token})

	out, err := execute(t, "run", "enterprise_attack_10min", "--quiet", "--concurrency", "4")
	require.NoError(t, err)
	assert.Contains(t, out, "Status:         completed")

	st := collector.Stats()
	assert.EqualValues(t, 29, st.Events+st.Raw)
	assert.Zero(t, st.Rejected)
	assert.LessOrEqual(t, st.MaxInFlight, int64(4))
}

func TestRun_JSONWithEvents(t *testing.T) {
	startCollector(t, testserver.Options{Token: token})

	out, err := execute(t, "run", "insider_threat", "-q", "-o", "json", "--include-events")
	require.NoError(t, err)

	var report map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, "completed", report["status"])
	assert.NotEmpty(t, report["events"])
}

func TestRun_DryRun(t *testing.T) {
	collector := startCollector(t, testserver.Options{Token: token})

	out, err := execute(t, "run", "enterprise_attack_10min", "-q", "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, out, "completed")
	assert.Zero(t, collector.Stats().Events+collector.Stats().Raw)
}

func TestRun_FailedExitCode(t *testing.T) {
	startCollector(t, testserver.Options{Token: token, FailRate: 100})

	out, err := execute(t, "run", "enterprise_attack_10min", "-q")
	require.Error(t, err)
	var code *CodeError
	require.True(t, errors.As(err, &code))
	assert.Equal(t, ExitFailed, code.Code)
	assert.Contains(t, out, "Status:         failed")
}

func TestRun_WrongToken(t *testing.T) {
	startCollector(t, testserver.Options{Token: "another-token"})

	_, err := execute(t, "run", "enterprise_attack_10min", "-q")
	var code *CodeError
	require.True(t, errors.As(err, &code))
	assert.Equal(t, ExitFailed, code.Code)
}

func TestRun_Errors(t *testing.T) {
	startCollector(t, testserver.Options{Token: token})

	_, err := execute(t, "run", "enterprise_attack_10min", "-o", "yaml")
	assert.ErrorContains(t, err, "--output")

	_, err = execute(t, "run", "missing", "-q")
	assert.Error(t, err)
	var code *CodeError
	assert.False(t, errors.As(err, &code))

	_, err = execute(t, "--log-format", "xml", "scenarios")
	assert.Error(t, err)

	_, err = execute(t, "--config", filepath.Join(t.TempDir(), "absent.yaml"), "scenarios")
	assert.Error(t, err)
}
