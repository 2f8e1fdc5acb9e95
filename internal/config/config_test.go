package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/dasmtools/jitdiff/internal/config"
	"github.com/dasmtools/jitdiff/pkg/metric"
)

func writeConfig(t *testing.T, doc map[string]any) string {
	t.Helper()

	data, err := yaml.Marshal(doc)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "jitdiff.yaml")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, 20, cfg.Diff.Count)
	assert.Equal(t, ".dasm", cfg.Diff.Extension)
	assert.Equal(t, []string{metric.CodeSize}, cfg.Diff.Metrics)
	assert.Positive(t, cfg.Diff.Workers)
	assert.False(t, cfg.Diff.Recursive)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoad_FromFile(t *testing.T) {
	path := writeConfig(t, map[string]any{
		"diff": map[string]any{
			"count":     5,
			"extension": ".asm",
			"metrics":   []string{metric.PerfScore, metric.CodeSize},
			"recursive": true,
		},
		"logging": map[string]any{"level": "debug"},
	})

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Diff.Count)
	assert.Equal(t, ".asm", cfg.Diff.Extension)
	assert.Equal(t, []string{metric.PerfScore, metric.CodeSize}, cfg.Diff.Metrics)
	assert.True(t, cfg.Diff.Recursive)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("JITDIFF_DIFF_COUNT", "3")

	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Diff.Count)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		doc     map[string]any
		wantErr error
	}{
		{
			name:    "negative count",
			doc:     map[string]any{"diff": map[string]any{"count": -1}},
			wantErr: config.ErrInvalidCount,
		},
		{
			name:    "zero workers",
			doc:     map[string]any{"diff": map[string]any{"workers": 0}},
			wantErr: config.ErrInvalidWorkers,
		},
		{
			name:    "empty extension",
			doc:     map[string]any{"diff": map[string]any{"extension": ""}},
			wantErr: config.ErrEmptyExtension,
		},
		{
			name:    "unknown metric",
			doc:     map[string]any{"diff": map[string]any{"metrics": []string{"Bogus"}}},
			wantErr: config.ErrUnknownMetric,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.doc)

			_, err := config.Load(path)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}
