package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	s := Defaults()

	assert.Equal(t, 6, s.Assistant.MaxIterations)
	assert.Equal(t, 90*time.Second, s.Assistant.Timeout)
	assert.Equal(t, 500, s.Assistant.MaxQueryLength)
	assert.Equal(t, 10, s.Data.MaxRowsDisplay)
	assert.Equal(t, "#F25D27", s.Brand.Primary)
	assert.True(t, s.Data.Cache)
	assert.Len(t, s.Datasets, 4)
	require.NoError(t, s.Validate())

	d, ok := s.Dataset("processed_data")
	require.True(t, ok)
	assert.Equal(t, "processed_data.csv", d.File)
}

func TestLoadFromDirWithoutFile(t *testing.T) {
	dir := t.TempDir()

	s, err := LoadFromDir(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, DefaultDataDir), s.Data.Dir)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	content := `
assistant:
  max_iterations: 3
  timeout: 45s
data:
  dir: ./csv
  cache: false
datasets:
  - name: loans
    file: loans.csv
llm:
  provider: scripted
  script: replies.yaml
`
	path := filepath.Join(dir, ConfigFileName)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	s, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, 3, s.Assistant.MaxIterations)
	assert.Equal(t, 45*time.Second, s.Assistant.Timeout)
	assert.False(t, s.Data.Cache)
	assert.Equal(t, filepath.Join(dir, "csv"), s.Data.Dir)
	assert.Equal(t, filepath.Join(dir, "replies.yaml"), s.LLM.Script)
	require.Len(t, s.Datasets, 1)
	assert.Equal(t, "loans", s.Datasets[0].Name)
	// Untouched values keep their defaults.
	assert.Equal(t, 500, s.Assistant.MaxQueryLength)
	require.NoError(t, s.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Settings)
		wantErr string
	}{
		{
			name:    "bad early stopping",
			mutate:  func(s *Settings) { s.Assistant.EarlyStopping = "later" },
			wantErr: "early_stopping",
		},
		{
			name:    "bad loader",
			mutate:  func(s *Settings) { s.Data.Loader = "parquet" },
			wantErr: "data.loader",
		},
		{
			name:    "scripted without script",
			mutate:  func(s *Settings) { s.LLM.Provider = ProviderScripted },
			wantErr: "llm.script",
		},
		{
			name: "duplicate dataset",
			mutate: func(s *Settings) {
				s.Datasets = append(s.Datasets, DatasetConfig{Name: "loans", File: "x.csv"})
			},
			wantErr: "declared twice",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Defaults()
			tt.mutate(s)
			err := s.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
