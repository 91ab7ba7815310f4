package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docalign/internal/supervision"
)

const invoiceTemplate = `
id: invoice
name: Supplier invoice
width: 1240
height: 1754
keypoints:
  - {id: logo, x: 40, y: 30, w: 200, h: 80}
  - {id: footer, x: 40, y: 1600, w: 600, h: 60}
features:
  - id: total
    x: 900
    y: 1400
    w: 250
    h: 40
    mutators: [grayscale, binarize]
    interpretation: ocr
supervision:
  engine: combinatorial
  config:
    combinatorial:
      min_match_factor: 0.5
      timeout_ms: 1000
`

func TestParseTemplate(t *testing.T) {
	tpl, err := ParseTemplate([]byte(invoiceTemplate))
	require.NoError(t, err)
	assert.Equal(t, "invoice", tpl.ID)
	assert.Equal(t, 1240, tpl.Width)
	require.Len(t, tpl.Keypoints, 2)
	assert.Equal(t, "footer", tpl.Keypoints[1].ID)

	f, ok := tpl.Feature("total")
	require.True(t, ok)
	assert.Equal(t, 250.0, f.Rect().Width)
	assert.Equal(t, []string{"grayscale", "binarize"}, f.Mutators)
	assert.Equal(t, "ocr", f.Interpretation)
	_, ok = tpl.Feature("missing")
	assert.False(t, ok)

	opts := tpl.Supervision.EngineOptions()
	assert.Equal(t, 0.5, opts["min_match_factor"])
	assert.Equal(t, 1000, opts["timeout_ms"])
}

func TestParseTemplate_DefaultEngine(t *testing.T) {
	tpl, err := ParseTemplate([]byte("id: bare\n"))
	require.NoError(t, err)
	assert.Equal(t, supervision.CombinatorialEngineID, tpl.Supervision.Engine)
	assert.Nil(t, tpl.Supervision.EngineOptions())
}

func TestParseTemplate_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		code int
	}{
		{"unknown engine", "id: a\nsupervision: {engine: ransac}\n", supervision.CodeTemplateInvalidEngine},
		{"duplicate region", "id: a\nkeypoints: [{id: k, w: 1, h: 1}]\nfeatures: [{id: k, w: 1, h: 1}]\n", supervision.CodeTemplateIDNotUnique},
		{"empty feature", "id: a\nfeatures: [{id: f, w: 0, h: 10}]\n", supervision.CodeTemplateInvalidFeature},
		{"unnamed keypoint", "id: a\nkeypoints: [{w: 1, h: 1}]\n", supervision.CodeTemplateInvalidKeypoint},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseTemplate([]byte(tc.doc))
			var se *supervision.Error
			require.True(t, errors.As(err, &se), "got %v", err)
			assert.Equal(t, tc.code, se.Code)
			assert.Equal(t, supervision.ModuleTemplate, se.Module)
		})
	}

	_, err := ParseTemplate([]byte("name: nameless\n"))
	assert.Error(t, err)
	_, err = ParseTemplate([]byte("id: [unterminated"))
	assert.Error(t, err)
}

func TestLoadTemplate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "invoice.yaml")
	require.NoError(t, os.WriteFile(path, []byte(invoiceTemplate), 0o644))

	tpl, err := LoadTemplate(path)
	require.NoError(t, err)
	assert.Equal(t, path, tpl.Path())

	_, err = LoadTemplate(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.True(t, errors.Is(err, supervision.ErrInvalidPath))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	t.Setenv(envConfigPath, filepath.Join(dir, "absent.yaml"))
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logging: {level: debug}\ntasks: {workers: 8}\nstorage: {path: runs.db}\n"), 0o644))
	t.Setenv(envConfigPath, path)
	cfg, err = Load()
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 8, cfg.Tasks.Workers)
	assert.Equal(t, "runs.db", cfg.Storage.Path)
	assert.Equal(t, "eng", cfg.OCR.Language)

	require.NoError(t, os.WriteFile(path, []byte("tasks: {workers: 0}\n"), 0o644))
	_, err = Load()
	assert.Error(t, err)
}

func TestExpandUser(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	got, err := expandUser("~/.config/docalign/config.yaml")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".config/docalign/config.yaml"), got)

	got, err = expandUser("/etc/docalign.yaml")
	require.NoError(t, err)
	assert.Equal(t, "/etc/docalign.yaml", got)
}
