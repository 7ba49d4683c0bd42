package sandbox

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapinsight/internal/config"
	"github.com/leapstack-labs/leapinsight/internal/dataset"
	"github.com/leapstack-labs/leapinsight/internal/fault"
	"github.com/leapstack-labs/leapinsight/internal/testutil"
	"github.com/leapstack-labs/leapinsight/pkg/frame"
)

var testNow = time.Date(2025, 3, 20, 9, 30, 0, 0, time.UTC)

// recordingLoader remembers every path the accessor asked it to open.
type recordingLoader struct {
	mu    sync.Mutex
	paths []string
	next  dataset.Loader
}

func (l *recordingLoader) Load(ctx context.Context, path string) (*frame.DataFrame, error) {
	l.mu.Lock()
	l.paths = append(l.paths, path)
	l.mu.Unlock()
	return l.next.Load(ctx, path)
}

func newTestEvaluator(t *testing.T, opts ...Option) (*Evaluator, *recordingLoader, string) {
	t.Helper()
	dir := testutil.WriteLoanFixtures(t)
	catalog, err := dataset.NewCatalog(dir, config.DefaultDatasets())
	require.NoError(t, err)
	loader := &recordingLoader{next: dataset.NewCSVLoader()}
	accessor := dataset.NewAccessor(catalog, loader)
	base := []Option{WithClock(func() time.Time { return testNow }), WithLogger(testutil.NewTestLogger(t))}
	return New(accessor, append(base, opts...)...), loader, dir
}

const load = "import pandas as pd; df = pd.read_csv('processed_data.csv'); "

func TestExecute_RowCount(t *testing.T) {
	e, _, _ := newTestEvaluator(t)
	obs := e.Execute(context.Background(), "import pandas as pd; df = pd.read_csv('processed_data.csv'); len(df)")
	assert.Equal(t, "12", obs.Text)
	assert.Equal(t, KindScalar, obs.Kind)
	assert.False(t, obs.Failed())
}

func TestExecute_FencedMultiLineMatchesSingleLine(t *testing.T) {
	e, _, _ := newTestEvaluator(t)
	fenced := "```python\nimport pandas as pd\ndf = pd.read_csv('processed_data.csv')\nlen(df[df['Status'] == 'Active'])\n```"
	flat := load + "len(df[df['Status'] == 'Active'])"
	a := e.Execute(context.Background(), fenced)
	b := e.Execute(context.Background(), flat)
	assert.Equal(t, b.Text, a.Text)
	assert.Equal(t, "9", a.Text)
}

func TestExecute_Results(t *testing.T) {
	tests := []struct {
		name string
		code string
		want string
		kind Kind
	}{
		{name: "total arrears", code: load + "df['Arrears'].sum()", want: "5800", kind: KindScalar},
		{name: "integral mean drops fraction", code: load + "df['Amount_Disbursed'].mean()", want: "3150", kind: KindScalar},
		{name: "due today count", code: load + "(df['Due_Today'] > 0).sum()", want: "7", kind: KindScalar},
		{name: "string result is bare", code: load + "df.groupby('Managed_By')['Total_Paid'].sum().idxmax()", want: "Carol", kind: KindScalar},
		{name: "mapping as compact json", code: load + "df.groupby('Managed_By')['Total_Paid'].sum().to_dict()", want: `{"Alice":10700,"Bob":8800,"Carol":13300}`, kind: KindMapping},
		{name: "list as json", code: load + "sorted(df['Managed_By'].unique())", want: `["Alice","Bob","Carol"]`, kind: KindMapping},
		{name: "printed f-string", code: load + "total = df['Arrears'].sum(); print(f\"Total arrears: KES {total:,}\")", want: "Total arrears: KES 5,800", kind: KindText},
		{name: "print wins over value", code: load + "print('done'); len(df)", want: "done", kind: KindText},
		{name: "last assignment", code: load + "clients = df['Client_Code'].nunique()", want: "10", kind: KindScalar},
		{name: "datetime import", code: "import pandas as pd; from datetime import datetime; datetime.now().year", want: "2025", kind: KindScalar},
		{name: "numpy", code: "import pandas as pd; import numpy as np; np.mean([1, 2, 3])", want: "2", kind: KindScalar},
		{name: "power", code: "import pandas as pd; 2 ** 10", want: "1024", kind: KindScalar},
		{name: "identity", code: "import pandas as pd; x = None; x is None", want: "True", kind: KindScalar},
		{name: "no output", code: "import pandas as pd", want: NoOutput, kind: KindText},
		{name: "repaired client column", code: load + "df['Client'].nunique()", want: "10", kind: KindScalar},
	}
	e, _, _ := newTestEvaluator(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obs := e.Execute(context.Background(), tt.code)
			require.False(t, obs.Failed(), "unexpected failure: %s", obs.Text)
			assert.Equal(t, tt.want, obs.Text)
			assert.Equal(t, tt.kind, obs.Kind)
		})
	}
}

func TestExecute_Bindings(t *testing.T) {
	e, _, _ := newTestEvaluator(t)
	obs := e.Execute(context.Background(), load+"total = len(df); active = len(df[df['Status'] == 'Active']); print(total)")
	require.False(t, obs.Failed())
	require.Contains(t, obs.Bindings, "total")
	assert.Equal(t, "12", obs.Bindings["total"].String())
	assert.Equal(t, "9", obs.Bindings["active"].String())
	assert.NotContains(t, obs.Bindings, "df")
	assert.NotContains(t, obs.Bindings, "pd")
}

func TestExecute_TablePreviewIsBounded(t *testing.T) {
	e, _, _ := newTestEvaluator(t, WithPreviewRows(5))
	obs := e.Execute(context.Background(), load+"df[['Loan_No', 'Arrears']]")
	assert.Equal(t, KindTable, obs.Kind)
	assert.Contains(t, obs.Text, "L005")
	assert.NotContains(t, obs.Text, "L006")
	assert.Contains(t, obs.Text, "(showing 5 of 12 rows)")

	obs = e.Execute(context.Background(), load+"df['Arrears']")
	assert.Equal(t, KindTable, obs.Kind)
	assert.Contains(t, obs.Text, "(showing 5 of 12 rows)")

	obs = e.Execute(context.Background(), load+"df.head(3)")
	assert.NotContains(t, obs.Text, "showing")
}

func TestExecute_UndefinedColumn(t *testing.T) {
	e, _, _ := newTestEvaluator(t)
	obs := e.Execute(context.Background(), load+"df['Nonexistent_Column'].sum()")
	require.True(t, obs.Failed())
	assert.Equal(t, fault.KindName, obs.Fault)
	assert.True(t, strings.HasPrefix(obs.Text, ErrorPrefix+fault.Message(fault.KindName)), obs.Text)
	assert.Contains(t, obs.Text, "Nonexistent_Column")
	assert.NotContains(t, obs.Text, "column not found")
}

func TestExecute_Faults(t *testing.T) {
	tests := []struct {
		name string
		code string
		want fault.Kind
	}{
		{name: "syntax", code: "import pandas as pd; x = (1,", want: fault.KindSyntax},
		{name: "missing import", code: "len([1, 2])", want: fault.KindSyntax},
		{name: "empty", code: "```\n```", want: fault.KindSyntax},
		{name: "bad f-string", code: "import pandas as pd; f'{x'", want: fault.KindSyntax},
		{name: "undefined name", code: "import pandas as pd; total_loans + 1", want: fault.KindName},
		{name: "unknown attribute", code: load + "df.no_such_method()", want: fault.KindName},
		{name: "forbidden import", code: "import pandas as pd; import os; os.listdir('.')", want: fault.KindName},
		{name: "load statement", code: "import pandas as pd; load('x.star', 'y')", want: fault.KindName},
		{name: "unknown dataset", code: "import pandas as pd; pd.read_csv('secrets.csv')", want: fault.KindName},
		{name: "division by zero", code: "import pandas as pd; 1 / 0", want: fault.KindCompute},
		{name: "type error", code: "import pandas as pd; 'a' + 1", want: fault.KindCompute},
	}
	e, _, _ := newTestEvaluator(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obs := e.Execute(context.Background(), tt.code)
			require.True(t, obs.Failed(), "expected failure, got %q", obs.Text)
			assert.Equal(t, tt.want, obs.Fault)
			assert.True(t, strings.HasPrefix(obs.Text, ErrorPrefix+fault.Message(tt.want)), obs.Text)
		})
	}
}

func TestExecute_MissingDatasetFile(t *testing.T) {
	e, _, dir := newTestEvaluator(t)
	require.NoError(t, os.Remove(filepath.Join(dir, "clients.csv")))
	obs := e.Execute(context.Background(), "import pandas as pd; len(pd.read_csv('clients.csv'))")
	assert.Equal(t, fault.KindDatasetUnavailable, obs.Fault)
	assert.NotContains(t, obs.Text, dir)
}

func TestExecute_Bounds(t *testing.T) {
	t.Run("step budget", func(t *testing.T) {
		e, _, _ := newTestEvaluator(t, WithLimits(config.LimitsConfig{MaxSteps: 10_000, EvalTimeout: time.Minute}))
		obs := e.Execute(context.Background(), "import pandas as pd\nx = 0\nwhile True:\n    x += 1\n")
		assert.Equal(t, fault.KindTimeout, obs.Fault)
	})
	t.Run("wall clock", func(t *testing.T) {
		e, _, _ := newTestEvaluator(t, WithLimits(config.LimitsConfig{MaxSteps: 1 << 62, EvalTimeout: 20 * time.Millisecond}))
		start := time.Now()
		obs := e.Execute(context.Background(), "import pandas as pd\nx = 0\nwhile True:\n    x += 1\n")
		assert.Equal(t, fault.KindTimeout, obs.Fault)
		assert.Less(t, time.Since(start), 5*time.Second)
	})
	t.Run("request context", func(t *testing.T) {
		e, _, _ := newTestEvaluator(t, WithLimits(config.LimitsConfig{MaxSteps: 1 << 62}))
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		obs := e.Execute(ctx, "import pandas as pd\nwhile True:\n    pass\n")
		assert.Equal(t, fault.KindTimeout, obs.Fault)
	})
}

func TestExecute_NoStateAcrossCalls(t *testing.T) {
	e, _, _ := newTestEvaluator(t)
	require.False(t, e.Execute(context.Background(), "import pandas as pd; leak = 1").Failed())
	obs := e.Execute(context.Background(), "import pandas as pd; leak")
	assert.Equal(t, fault.KindName, obs.Fault)
}

func TestExecute_Containment(t *testing.T) {
	refs := []string{
		"/etc/passwd",
		"../processed_data.csv",
		"data/../../etc/passwd",
		"processed_data.csv/../../secret",
		"file:///etc/passwd",
		"https://example.com/loans.csv",
		"~/.ssh/id_rsa",
		`C:\Windows\win.ini`,
		`..\\processed_data.csv`,
		"processed_data.csv\\x00.txt",
	}
	snippets := []string{
		"import pandas as pd; open('/etc/passwd').read()",
		"import pandas as pd; load('/etc/passwd', 'x')",
		"import pandas as pd; __import__('os').system('id')",
		"import pandas as pd; import os; os.system('id')",
		"import pandas as pd; import subprocess",
		"import pandas as pd; from os import path",
		"import pandas as pd; import pandas.io",
		"import pandas as pd; pd.io.parsers.read_csv('/etc/passwd')",
		"import pandas as pd; eval('1')",
		"import pandas as pd; exec('x = 1')",
		"import pandas as pd; pd.read_csv('')",
	}
	for _, ref := range refs {
		snippets = append(snippets,
			"import pandas as pd; pd.read_csv('"+ref+"')",
			"import pandas as pd; pd.read_csv(filepath_or_buffer='"+ref+"')",
			"import pandas as pd; pd.read_csv(\"processed_data\" + '"+ref+"')",
		)
	}

	e, loader, dir := newTestEvaluator(t)
	for _, code := range snippets {
		obs := e.Execute(context.Background(), code)
		assert.True(t, obs.Failed(), "snippet escaped: %s -> %s", code, obs.Text)
	}
	for _, p := range loader.paths {
		rel, err := filepath.Rel(dir, p)
		require.NoError(t, err)
		assert.False(t, strings.HasPrefix(rel, ".."), "loader opened %s", p)
		assert.NotContains(t, rel, string(filepath.Separator), "loader opened %s", p)
	}
}

func TestExecute_TotalAndBounded(t *testing.T) {
	const limit = 300
	inputs := []string{
		"",
		"   ",
		"```",
		"`",
		"import pandas as pd; (((",
		"import pandas as pd; ]]]",
		"import pandas as pd; f'{'",
		"import pandas as pd; '''unterminated",
		"import pandas as pd; \"\\",
		"import pandas as pd; print('x' * 100000)",
		"import pandas as pd; 'y' * 100000",
		"import pandas as pd; list(range(100000))",
		"import pandas as pd; ** ** **",
		"import pandas as pd; is is is",
		"import pandas as pd; from from import import",
		"import pandas as pd; def f(: pass",
		"import pandas as pd\nif True:\nprint(1)",
		"import pandas as pd; x = [[[[[[[[[[[[[[[[[[[[[[[[[[[[[[[[[[[[[[[[[[[[[[[[[[[[[[[[[[[[[[[[[[[[]]]]]]]]]]]]]]]]]]]]]]]]]]]]]]]]]]]]]]]]]]]]]]]]]]]]]]]]]]]]]]]]]]]]]; x",
		"import pandas as pd; def f(n): return f(n - 1)\nf(10)",
		"import pandas as pd; \x00\xff\xfe",
		strings.Repeat("import pandas as pd; ", 500),
	}
	e, _, _ := newTestEvaluator(t, WithLimits(config.LimitsConfig{MaxSteps: 1_000_000, EvalTimeout: 2 * time.Second, MaxObservationChars: limit}))
	for _, in := range inputs {
		var obs Observation
		assert.NotPanics(t, func() { obs = e.Execute(context.Background(), in) })
		assert.NotEmpty(t, obs.Text, "input %q", in)
		assert.LessOrEqual(t, utf8.RuneCountInString(obs.Text), limit, "input %q", in)
	}
}

func TestExecute_WidePreviewFitsBudget(t *testing.T) {
	e, _, _ := newTestEvaluator(t)
	obs := e.Execute(context.Background(), load+"df")
	require.False(t, obs.Failed(), obs.Text)
	assert.Equal(t, KindTable, obs.Kind)
	assert.LessOrEqual(t, utf8.RuneCountInString(obs.Text), config.DefaultMaxObservationChars)
	assert.Regexp(t, `\(showing \d+ of 12 rows\)$`, obs.Text)
	assert.NotContains(t, obs.Text, "output truncated")
	assert.Contains(t, obs.Text, "Loan_No")
	assert.Contains(t, obs.Text, "Expected_Before_Today")
	assert.NotContains(t, obs.Text, "LOAN_NO")
}

func TestExecute_PrintedPreviewKeepsRowNote(t *testing.T) {
	e, _, _ := newTestEvaluator(t, WithLimits(config.LimitsConfig{
		EvalTimeout:         time.Second,
		MaxSteps:            1_000_000,
		MaxObservationChars: 1200,
	}))
	obs := e.Execute(context.Background(), load+"print(df)")
	require.False(t, obs.Failed(), obs.Text)
	assert.LessOrEqual(t, utf8.RuneCountInString(obs.Text), 1200)
	assert.True(t, strings.HasSuffix(obs.Text, "(showing 10 of 12 rows)"), obs.Text)
}

func TestBound(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		limit int
		want  string
	}{
		{name: "under limit", text: "abc", limit: 10, want: "abc"},
		{name: "no limit", text: "abc", limit: 0, want: "abc"},
		{name: "tiny limit", text: "abcdef", limit: 3, want: "abc"},
		{name: "suffix appended", text: strings.Repeat("a", 40), limit: 30, want: strings.Repeat("a", 30-len(truncatedSuffix)) + truncatedSuffix},
		{
			name:  "row note survives",
			text:  strings.Repeat("a", 60) + "\n(showing 10 of 12 rows)",
			limit: 60,
			want:  strings.Repeat("a", 13) + truncatedSuffix + "\n(showing 10 of 12 rows)",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Bound(tt.text, tt.limit))
		})
	}
}
