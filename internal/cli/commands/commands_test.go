package commands

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapinsight/internal/assistant"
	clitestutil "github.com/leapstack-labs/leapinsight/internal/cli/testutil"
	intconfig "github.com/leapstack-labs/leapinsight/internal/config"
	"github.com/leapstack-labs/leapinsight/internal/conversation"
	"github.com/leapstack-labs/leapinsight/internal/llm"
	"github.com/leapstack-labs/leapinsight/internal/sandbox"
	"github.com/leapstack-labs/leapinsight/internal/testutil"
)

func TestCommandMetadata(t *testing.T) {
	tests := []struct {
		cmd   *cobra.Command
		use   string
		flags []string
	}{
		{NewAskCommand(), "ask <question>", []string{"render", "session"}},
		{NewChatCommand(), "chat", []string{"session", "history-file", "raw"}},
		{NewExecCommand(), "exec [code]", []string{"file", "show-clean"}},
		{NewDatasetsCommand(), "datasets [name]", []string{"head"}},
		{NewSQLCommand(), "sql <select>", []string{"show-clean"}},
		{NewServeCommand("dev"), "serve", []string{"host", "port"}},
		{NewHistoryCommand(), "history", []string{"session", "limit", "full"}},
		{NewDoctorCommand(), "doctor", []string{"skip-llm"}},
		{NewInitCommand(), "init [directory]", []string{"force", "example"}},
	}

	for _, tt := range tests {
		t.Run(tt.use, func(t *testing.T) {
			assert.Equal(t, tt.use, tt.cmd.Use)
			assert.NotEmpty(t, tt.cmd.Short, "Short should not be empty")
			for _, flag := range tt.flags {
				assert.NotNil(t, tt.cmd.Flags().Lookup(flag), "flag %q should exist", flag)
			}
		})
	}
}

func newFixtureSettings(t *testing.T) *intconfig.Settings {
	t.Helper()
	s := intconfig.Defaults()
	s.Data.Dir = testutil.WriteLoanFixtures(t)
	return s
}

func openProject(t *testing.T) *App {
	t.Helper()
	s, err := intconfig.LoadFromDir(clitestutil.SetupTestProject(t))
	require.NoError(t, err)
	app, err := OpenApp(context.Background(), s, testutil.NewTestLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })
	return app
}

func TestSnippetSource(t *testing.T) {
	file := filepath.Join(t.TempDir(), "snippet.py")
	require.NoError(t, os.WriteFile(file, []byte("len(df)"), 0600))

	tests := []struct {
		name    string
		args    []string
		file    string
		want    string
		wantErr bool
	}{
		{name: "argument", args: []string{"1 + 1"}, want: "1 + 1"},
		{name: "file", file: file, want: "len(df)"},
		{name: "both", args: []string{"1"}, file: file, wantErr: true},
		{name: "neither", wantErr: true},
		{name: "missing file", file: file + ".missing", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := snippetSource(tt.args, tt.file)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOpenData_MissingDir(t *testing.T) {
	s := intconfig.Defaults()
	s.Data.Dir = filepath.Join(t.TempDir(), "missing")
	_, err := OpenData(context.Background(), s, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "data directory does not exist")
}

func TestExecObservation(t *testing.T) {
	tests := []struct {
		name     string
		code     string
		mode     string
		contains []string
		failed   bool
	}{
		{
			name:     "active loan count",
			code:     "import pandas as pd; df = pd.read_csv('processed_data.csv'); len(df[df['Status'] == 'Active'])",
			contains: []string{"9"},
		},
		{
			name:     "show cleaned code",
			code:     "```python\nimport pandas as pd\ndf = pd.read_csv('processed_data.csv')\ndf['Arrears'].sum()\n```",
			contains: []string{"Cleaned code:", "5800"},
		},
		{
			name:     "json",
			code:     "import pandas as pd; 1 + 1",
			mode:     "json",
			contains: []string{`"kind": "scalar"`, `"text": "2"`},
		},
		{
			name:     "unknown dataset",
			code:     "import pandas as pd; pd.read_csv('secrets.csv')",
			contains: []string{sandbox.ErrorPrefix},
			failed:   true,
		},
	}

	data, err := OpenData(context.Background(), newFixtureSettings(t), testutil.NewTestLogger(t))
	require.NoError(t, err)
	defer func() { _ = data.Close() }()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := clitestutil.NewTestRendererMarkdown()
			if tt.mode == "json" {
				tr = clitestutil.NewTestRendererJSON()
			}
			obs := data.Evaluator.Execute(context.Background(), tt.code)
			assert.Equal(t, tt.failed, obs.Failed())

			printObservation(tr.Renderer, obs, tt.name == "show cleaned code" || tt.mode == "json")
			for _, want := range tt.contains {
				assert.Contains(t, tr.Output(), want)
			}
		})
	}
}

func TestListDatasets(t *testing.T) {
	data, err := OpenData(context.Background(), newFixtureSettings(t), nil)
	require.NoError(t, err)
	defer func() { _ = data.Close() }()

	t.Run("markdown", func(t *testing.T) {
		tr := clitestutil.NewTestRendererMarkdown()
		require.NoError(t, listDatasets(tr.Renderer, data.Catalog))
		md := tr.Output()
		clitestutil.AssertNoANSI(t, md)
		assert.Contains(t, md, "| Name")
		for _, name := range []string{"processed_data", "loans", "ledger", "clients"} {
			assert.Contains(t, md, name)
		}
	})

	t.Run("json", func(t *testing.T) {
		tr := clitestutil.NewTestRendererJSON()
		require.NoError(t, listDatasets(tr.Renderer, data.Catalog))
		var out []datasetOutput
		require.NoError(t, json.Unmarshal(tr.Out.Bytes(), &out))
		require.Len(t, out, 4)
		for _, d := range out {
			assert.True(t, d.Available, d.Name)
		}
	})
}

func TestShowDataset(t *testing.T) {
	data, err := OpenData(context.Background(), newFixtureSettings(t), nil)
	require.NoError(t, err)
	defer func() { _ = data.Close() }()

	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())

	t.Run("schema and preview", func(t *testing.T) {
		tr := clitestutil.NewTestRendererMarkdown()
		require.NoError(t, showDataset(cmd, tr.Renderer, data, "clients", 2))
		out := tr.Output()
		assert.Contains(t, out, "Client_Code")
		assert.Contains(t, out, "Jane Wanjiru")
		assert.NotContains(t, out, "Mary Akinyi")
	})

	t.Run("json preview", func(t *testing.T) {
		tr := clitestutil.NewTestRendererJSON()
		require.NoError(t, showDataset(cmd, tr.Renderer, data, "loans", 3))
		var out datasetOutput
		require.NoError(t, json.Unmarshal(tr.Out.Bytes(), &out))
		assert.Equal(t, "loans", out.Name)
		assert.Len(t, out.Preview, 3)
		assert.NotEmpty(t, out.Columns)
	})

	t.Run("unknown", func(t *testing.T) {
		tr := clitestutil.NewTestRendererMarkdown()
		err := showDataset(cmd, tr.Renderer, data, "salaries", 0)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "available: ")
	})
}

func TestAskWithScriptedProvider(t *testing.T) {
	app := openProject(t)

	reply := app.Session.Ask(context.Background(), DefaultSessionID, "How many active loans are there?")
	assert.Empty(t, reply.Fault)
	assert.Contains(t, reply.HTML, clitestutil.ActiveLoansReply)

	tests := []struct {
		name   string
		mode   string
		render bool
		want   string
		not    string
	}{
		{name: "html", mode: "markdown", want: "</p>"},
		{name: "rendered", mode: "markdown", render: true, want: clitestutil.ActiveLoansReply, not: "</p>"},
		{name: "json", mode: "json", want: `"response":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := clitestutil.NewTestRendererMarkdown()
			if tt.mode == "json" {
				tr = clitestutil.NewTestRendererJSON()
			}
			require.NoError(t, printReply(tr.Renderer, reply, tt.render))
			assert.Contains(t, tr.Output(), tt.want)
			if tt.not != "" {
				assert.NotContains(t, tr.Output(), tt.not)
			}
		})
	}
}

func TestOpenApp_WithCompleter(t *testing.T) {
	s, err := intconfig.LoadFromDir(clitestutil.SetupTestProject(t))
	require.NoError(t, err)
	s.Conversation.Archive = ""

	calls := 0
	completer := llm.CompleterFunc(func(context.Context, llm.Request) (string, error) {
		calls++
		return "Final Answer: <div class=\"response-container\"><p>static</p></div>", nil
	})
	app, err := OpenApp(context.Background(), s, nil, WithCompleter(completer))
	require.NoError(t, err)
	defer func() { _ = app.Close() }()

	assert.Nil(t, app.Archive)
	assert.NotNil(t, app.SQL)
	reply := app.Session.Ask(context.Background(), "x", "Anything at all?")
	assert.Contains(t, reply.HTML, "static")
	assert.Equal(t, 1, calls)
}

func TestPrintHistory(t *testing.T) {
	at := time.Date(2025, 3, 17, 9, 30, 0, 0, time.UTC)
	exchanges := []conversation.Exchange{
		{ID: "1", SessionID: "cli", Question: "How many active loans?", Answer: "<p>9 active</p>", Outcome: "final_answer", CreatedAt: at},
	}

	tests := []struct {
		name      string
		mode      string
		full      bool
		exchanges []conversation.Exchange
		contains  []string
	}{
		{name: "table", mode: "markdown", exchanges: exchanges, contains: []string{"How many active loans?", "final_answer"}},
		{name: "full", mode: "markdown", full: true, exchanges: exchanges, contains: []string{"Q: How many active loans?", "9 active"}},
		{name: "json", mode: "json", exchanges: exchanges, contains: []string{`"session_id": "cli"`}},
		{name: "json empty", mode: "json", contains: []string{"[]"}},
		{name: "empty", mode: "markdown", contains: []string{"No exchanges archived yet."}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := clitestutil.NewTestRendererMarkdown()
			if tt.mode == "json" {
				tr = clitestutil.NewTestRendererJSON()
			}
			require.NoError(t, printHistory(tr.Renderer, tt.exchanges, tt.full))
			for _, want := range tt.contains {
				assert.Contains(t, tr.Output(), want)
			}
		})
	}
}

func TestHistoryFromArchive(t *testing.T) {
	app := openProject(t)
	ctx := context.Background()
	for _, q := range []string{"How many active loans?", "Count active loans again"} {
		app.Session.Ask(ctx, "web", q)
	}

	history, err := app.Session.History(ctx, "web", 10)
	require.NoError(t, err)
	require.Len(t, history, 2)

	_, err = (&assistant.Session{}).History(ctx, "web", 1)
	assert.ErrorIs(t, err, assistant.ErrNoArchive)
}

func TestClip(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"exactly ten", 11, "exactly ten"},
		{"a longer question", 8, "a longe…"},
		{"Ñandú Ñandú", 6, "Ñandú…"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, clip(tt.in, tt.n))
		})
	}
}

func TestRandomSecret(t *testing.T) {
	a, err := randomSecret()
	require.NoError(t, err)
	b, err := randomSecret()
	require.NoError(t, err)
	assert.Len(t, a, 64)
	assert.NotEqual(t, a, b)
}
