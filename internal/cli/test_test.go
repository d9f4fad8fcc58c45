package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const scenarioYAML = `name: pair
nodes:
  - id: node-a
  - id: node-b
steps:
  - action: write
    node: node-a
    table: agents
    row: {id: agent-1, name: builder, status: idle}
  - action: scan
  - action: sync
assertions:
  - type: converged
  - type: row_field
    node: node-b
    table: agents
    row_id: agent-1
    field: status
    value: idle
`

func writeScenario(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
}

func TestTestCommand_PassesAndWritesGolden(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "pair.yaml", scenarioYAML)

	out, err := execute(t, "", "test", dir, "--update")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ pair")

	golden, err := os.ReadFile(filepath.Join(dir, "golden", "pair.golden"))
	require.NoError(t, err)
	assert.Contains(t, string(golden), `"vector":{"node-a":1}`)

	// A second run compares against the golden file it just wrote.
	out, err = execute(t, "", "test", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "1 passed, 0 failed, 1 total")
}

func TestTestCommand_GoldenMismatch(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "pair.yaml", scenarioYAML)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "golden"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "golden", "pair.golden"), []byte("{}"), 0o644))

	out, err := execute(t, "", "test", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "does not match golden file")
}

func TestTestCommand_FailingScenarioJSON(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "bad.yaml", `name: bad
nodes: [{id: node-a}]
steps:
  - action: write
    node: node-a
    table: agents
    row: {id: agent-1}
assertions:
  - type: row_count
    node: node-a
    table: agents
    count: 3
`)

	out, err := execute(t, "", "test", dir, "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
		Error  *EnvelopeError  `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, 1, resp.Data.Failed)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeScenario, resp.Error.Code)
}

func TestTestCommand_HarnessScenarios(t *testing.T) {
	out, err := execute(t, "", "test", "../harness/testdata/scenarios")
	require.NoError(t, err, out)
	assert.Contains(t, out, "0 failed")
}

func TestTestCommand_MissingDir(t *testing.T) {
	_, err := execute(t, "", "test", filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTestCommand_Empty(t *testing.T) {
	out, err := execute(t, "", "test", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found.")
}
