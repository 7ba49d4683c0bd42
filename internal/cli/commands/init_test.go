package commands

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapinsight/internal/cli/testutil"
	intconfig "github.com/leapstack-labs/leapinsight/internal/config"
)

func TestNewInitCommand(t *testing.T) {
	tests := []struct {
		name      string
		setupDir  func(t *testing.T, dir string) // setup before running
		args      []string
		wantErr   bool
		wantFiles []string
	}{
		{
			name: "init empty directory",
			args: []string{},
			wantFiles: []string{
				"leapinsight.yaml",
				".gitignore",
				"data",
				"data/README.md",
			},
		},
		{
			name: "init example",
			args: []string{"--example"},
			wantFiles: []string{
				"leapinsight.yaml",
				"replies.yaml",
				"data/processed_data.csv",
				"data/loans.csv",
				"data/ledger.csv",
				"data/clients.csv",
			},
		},
		{
			name: "init existing config without force",
			setupDir: func(_ *testing.T, dir string) {
				_ = os.WriteFile(filepath.Join(dir, "leapinsight.yaml"), []byte("existing"), 0600)
			},
			args:    []string{},
			wantErr: true,
		},
		{
			name: "init existing config with force",
			setupDir: func(_ *testing.T, dir string) {
				_ = os.WriteFile(filepath.Join(dir, "leapinsight.yaml"), []byte("existing"), 0600)
			},
			args:      []string{"--force"},
			wantFiles: []string{"leapinsight.yaml", "data"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpDir := t.TempDir()
			if tt.setupDir != nil {
				tt.setupDir(t, tmpDir)
			}

			cmd := NewInitCommand()
			buf := new(bytes.Buffer)
			cmd.SetOut(buf)
			cmd.SetErr(buf)
			cmd.SetArgs(append(tt.args, tmpDir))

			err := cmd.Execute()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)

			for _, f := range tt.wantFiles {
				_, err := os.Stat(filepath.Join(tmpDir, f))
				assert.False(t, os.IsNotExist(err), "expected file/dir %q to exist", f)
			}
		})
	}
}

func TestInitCommandMetadata(t *testing.T) {
	cmd := NewInitCommand()

	assert.Equal(t, "init [directory]", cmd.Use)
	assert.NotEmpty(t, cmd.Short, "Short should not be empty")
	assert.NotNil(t, cmd.Flags().Lookup("force"), "--force flag should exist")
	assert.NotNil(t, cmd.Flags().Lookup("example"), "--example flag should exist")
}

func TestInitCreatesValidConfig(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		provider string
	}{
		{name: "minimal", provider: intconfig.ProviderOllama},
		{name: "example", args: []string{"--example"}, provider: intconfig.ProviderScripted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := filepath.Join(t.TempDir(), "project")
			cmd := NewInitCommand()
			cmd.SetOut(new(bytes.Buffer))
			cmd.SetErr(new(bytes.Buffer))
			cmd.SetArgs(append(tt.args, dir))
			require.NoError(t, cmd.Execute())

			s, err := intconfig.LoadFromDir(dir)
			require.NoError(t, err)
			require.NoError(t, s.Validate())
			assert.Equal(t, tt.provider, s.LLM.Provider)
			assert.Equal(t, filepath.Join(dir, "data"), s.Data.Dir)
		})
	}
}

func TestInitExampleAnswers(t *testing.T) {
	dir := t.TempDir()
	tr := testutil.NewTestRendererMarkdown()
	require.NoError(t, runInit(tr.Renderer, dir, &InitOptions{Example: true}))

	s, err := intconfig.LoadFromDir(dir)
	require.NoError(t, err)

	ctx := context.Background()
	app, err := OpenApp(ctx, s, nil)
	require.NoError(t, err)
	defer func() { _ = app.Close() }()

	reply := app.Session.Ask(ctx, DefaultSessionID, "What are the total arrears on active loans?")
	assert.Empty(t, reply.Fault)
	assert.Contains(t, reply.HTML, "KES 5,800")

	reply = app.Session.Ask(ctx, DefaultSessionID, "How many active loans do we have?")
	assert.Contains(t, reply.HTML, "9")

	history, err := app.Archive.Recent(ctx, DefaultSessionID, 10)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestCopyTemplateSkipsExisting(t *testing.T) {
	dir := t.TempDir()
	written, skipped, err := copyTemplate(templateMinimal, dir, false)
	require.NoError(t, err)
	assert.Contains(t, written, "leapinsight.yaml")
	assert.Contains(t, written, ".gitignore")
	assert.Empty(t, skipped)

	written, skipped, err = copyTemplate(templateMinimal, dir, false)
	require.NoError(t, err)
	assert.Empty(t, written)
	assert.Contains(t, skipped, "data/README.md")
}

func TestGroupTemplateFiles(t *testing.T) {
	groups := groupTemplateFiles([]string{"leapinsight.yaml", "data/loans.csv", ".gitignore", "data/clients.csv"})
	assert.Equal(t, []string{"leapinsight.yaml", ".gitignore"}, groups["config"])
	assert.Equal(t, []string{"data/loans.csv", "data/clients.csv"}, groups["data"])
}
