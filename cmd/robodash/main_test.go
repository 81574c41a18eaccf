package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/Zacy-Sokach/RoboDash/internal/report"
	"github.com/Zacy-Sokach/RoboDash/internal/robot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, baseURL string) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("ROBODASH_CONFIG_HOME", dir)
	t.Setenv("ROBODASH_API_KEY", "")
	t.Setenv("ROBODASH_BASE_URL", "")

	path := filepath.Join(dir, "config.yaml")
	content := fmt.Sprintf(`base_url: %s
models: [m1, m2]
robot:
  debounce_ms: 0
  min_state_ms: 0
  talking_ms: 60000
retry:
  max_retries: 1
  initial_delay_ms: 1
  max_delay_ms: 5
`, baseURL)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "RoboDash dev\n", out)
}

func TestReplayScenarioFile(t *testing.T) {
	cfgPath := writeConfig(t, "http://127.0.0.1:1")
	dir := filepath.Dir(cfgPath)

	scenarioPath := filepath.Join(dir, "run.yaml")
	require.NoError(t, os.WriteFile(scenarioPath, []byte(`
name: failing run
steps:
  - after: 0s
    state:
      is_request_pending: true
  - after: 10ms
    state:
      is_streaming: true
      streaming_content: partial
  - after: 10ms
    state:
      streaming_error: boom
`), 0644))
	reportPath := filepath.Join(dir, "history.json")

	out, err := execute(t, "--config", cfgPath, "replay", scenarioPath, "--speed", "10", "--report", reportPath)
	require.NoError(t, err)

	assert.Contains(t, out, `回放剧本 "failing run"：3 步`)
	assert.Contains(t, out, "Robot is thinking: Request sent.")
	assert.Contains(t, out, "Robot is responding: Streaming started.")
	assert.Contains(t, out, "Robot encountered an error: Streaming failed: boom.")
	assert.Contains(t, out, "历史已保存到 "+reportPath)

	history, err := report.Load(reportPath)
	require.NoError(t, err)
	var to []robot.State
	for _, h := range history {
		to = append(to, h.To)
	}
	assert.Equal(t, []robot.State{robot.StateThinking, robot.StateTalking, robot.StateError}, to)
}

func TestReplayDemo(t *testing.T) {
	cfgPath := writeConfig(t, "http://127.0.0.1:1")

	out, err := execute(t, "--config", cfgPath, "replay", "demo", "--speed", "200")
	require.NoError(t, err)
	for _, want := range []string{"→ thinking", "→ talking", "→ error", "→ idle"} {
		assert.Contains(t, out, want)
	}
}

func TestReplayMissingFile(t *testing.T) {
	cfgPath := writeConfig(t, "http://127.0.0.1:1")

	_, err := execute(t, "--config", cfgPath, "replay", filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func newGateway(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/models":
			fmt.Fprint(w, `{"object":"list","data":[{"id":"m1","owned_by":"bedrock"},{"id":"m3"}]}`)
		case "/chat/completions":
			var req struct {
				Model string `json:"model"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			if req.Model == "broken" {
				http.Error(w, "unknown model", http.StatusBadRequest)
				return
			}
			w.Header().Set("Content-Type", "text/event-stream")
			fmt.Fprintf(w, "data: {\"choices\":[{\"delta\":{\"content\":\"answer %s\"}}]}\n\n", req.Model)
			fmt.Fprint(w, "data: [DONE]\n\n")
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func TestCompareCommand(t *testing.T) {
	server := newGateway(t)
	cfgPath := writeConfig(t, server.URL)

	out, err := execute(t, "--config", cfgPath, "compare", "say", "hello")
	require.NoError(t, err)

	assert.Contains(t, out, "对比 2 个模型: m1, m2")
	assert.Contains(t, out, "== m1 ==\nanswer m1")
	assert.Contains(t, out, "== m2 ==\nanswer m2")
	assert.Contains(t, out, "tok/s")
	assert.Contains(t, out, "Robot is responding")
}

func TestCompareCommandFailure(t *testing.T) {
	server := newGateway(t)
	cfgPath := writeConfig(t, server.URL)

	out, err := execute(t, "--config", cfgPath, "compare", "hi", "-m", "m1", "-m", "broken")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
	assert.Contains(t, out, "== m1 ==")
	assert.Contains(t, out, "Robot encountered an error")
}

func TestModelsCommand(t *testing.T) {
	server := newGateway(t)
	cfgPath := writeConfig(t, server.URL)

	out, err := execute(t, "--config", cfgPath, "models")
	require.NoError(t, err)
	assert.Contains(t, out, "* m1 (bedrock)\n")
	assert.Contains(t, out, "  m3\n")
}

func TestVersionCheck(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"tag_name":"v9.9.9","html_url":"https://example.com/release"}`)
	}))
	defer server.Close()

	prevURL, prevVersion := releaseAPIURL, version
	releaseAPIURL, version = server.URL, "v1.0.0"
	defer func() { releaseAPIURL, version = prevURL, prevVersion }()

	out, err := execute(t, "version", "--check")
	require.NoError(t, err)
	assert.Contains(t, out, "RoboDash v1.0.0")
	assert.Contains(t, out, "发现新版本 v9.9.9: https://example.com/release")
}
