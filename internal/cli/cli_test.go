package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docalign/internal/analysis"
	"docalign/internal/config"
	"docalign/internal/supervision"
	"docalign/internal/tasks"
)

const testTemplate = `
id: receipt
keypoints:
  - {id: top, x: 0, y: 0, w: 10, h: 10}
  - {id: bottom, x: 0, y: 40, w: 10, h: 10}
supervision:
  engine: least_squares_regression
`

const testMatches = `
template: receipt
keypoints:
  - id: top
    matches:
      - {template: [0, 0], target: [3, 4]}
      - {template: [10, 0], target: [23, 4]}
  - id: bottom
    matches:
      - {template: [0, 40], target: [3, 84]}
      - {template: [10, 40], target: [23, 84]}
`

func newTestRoot(t *testing.T) *Root {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	pool := tasks.New(ctx, 2, nil)
	t.Cleanup(func() {
		pool.Stop()
		cancel()
	})
	return NewRoot(config.Default(), nil, pool, nil)
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func run(t *testing.T, root *Root, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd(root)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestEngines(t *testing.T) {
	out, err := run(t, newTestRoot(t), "engines")
	require.NoError(t, err)
	assert.Contains(t, out, supervision.CombinatorialEngineID)
	assert.Contains(t, out, supervision.RegressionEngineID)
	assert.Contains(t, out, "max_transformation_error")
	assert.Contains(t, out, "workers")
}

func TestVersion(t *testing.T) {
	out, err := run(t, newTestRoot(t), "version")
	require.NoError(t, err)
	assert.Contains(t, out, "docalign 0.1.0")
}

func TestSupervise(t *testing.T) {
	dir := t.TempDir()
	tpl := writeFile(t, dir, "receipt.yaml", testTemplate)
	matches := writeFile(t, dir, "matches.yaml", testMatches)
	db := filepath.Join(dir, "runs.db")
	root := newTestRoot(t)

	out, err := run(t, root, "supervise", "--template", tpl, "--matches", matches, "--db", db)
	require.NoError(t, err)

	var report analysis.Report
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, "receipt", report.TemplateID)
	assert.Equal(t, supervision.RegressionEngineID, report.Engine)
	assert.InDelta(t, 2, report.Summary.Matrix[0][0], 1e-9)
	assert.InDelta(t, 2, report.Summary.Matrix[1][1], 1e-9)
	assert.NotEmpty(t, report.RunID)

	out, err = run(t, root, "runs", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, report.RunID)
	assert.Contains(t, out, "succeeded")
}

func TestSupervise_Combinatorial(t *testing.T) {
	dir := t.TempDir()
	tpl := writeFile(t, dir, "receipt.yaml", testTemplate)
	matches := writeFile(t, dir, "matches.yaml", testMatches)

	out, err := run(t, newTestRoot(t), "supervise", "-t", tpl, "-m", matches,
		"--engine", supervision.CombinatorialEngineID, "--seed", "3", "--set", "timeout_ms=60000")
	require.NoError(t, err)

	var report analysis.Report
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, supervision.CombinatorialEngineID, report.Engine)
	assert.Greater(t, report.Summary.Score, 0.0)
}

func TestSupervise_Errors(t *testing.T) {
	dir := t.TempDir()
	tpl := writeFile(t, dir, "receipt.yaml", testTemplate)
	matches := writeFile(t, dir, "matches.yaml", testMatches)
	root := newTestRoot(t)

	_, err := run(t, root, "supervise", "--template", tpl)
	assert.Error(t, err)

	_, err = run(t, root, "supervise", "--template", tpl, "--matches", filepath.Join(dir, "none.yaml"))
	assert.True(t, errors.Is(err, supervision.ErrInvalidPath))

	_, err = run(t, root, "supervise", "--template", tpl, "--matches", matches, "--engine", "ransac")
	assert.True(t, errors.Is(err, supervision.ErrInvalidEngine))

	_, err = run(t, root, "supervise", "--template", tpl, "--matches", matches, "--set", "workers=many")
	assert.Error(t, err)

	_, err = run(t, root, "supervise", "--template", tpl, "--matches", matches,
		"--target", filepath.Join(dir, "missing.png"))
	assert.True(t, errors.Is(err, supervision.ErrInvalidPath))
}

func TestRuns_NoStore(t *testing.T) {
	_, err := run(t, newTestRoot(t), "runs")
	assert.Error(t, err)
}
