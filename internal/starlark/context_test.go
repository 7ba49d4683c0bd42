package starlark

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapinsight/pkg/frame"
)

var testNow = time.Date(2025, 3, 20, 9, 30, 0, 0, time.UTC)

// testReader serves a small loans table and rejects every other name.
func testReader(t *testing.T) Reader {
	t.Helper()
	loans, err := frame.FromRecords(
		[]string{"Loan_No", "Managed_By", "Status", "Amount", "Arrears", "Issued_Date"},
		[][]string{
			{"L1", "Alice", "Active", "100", "10", "2025-01-06"},
			{"L2", "Bob", "Closed", "200", "0", "2024-11-04"},
			{"L3", "Alice", "Active", "300", "25", "2025-02-03"},
		},
	)
	require.NoError(t, err)
	return ReaderFunc(func(_ context.Context, name string) (*frame.DataFrame, error) {
		if name != "loans.csv" {
			return nil, errors.New("dataset not in allow-list")
		}
		return loans, nil
	})
}

func exec(t *testing.T, src string) (*Result, error) {
	t.Helper()
	ec := NewExecutionContext(Options{Reader: testReader(t), Now: func() time.Time { return testNow }})
	return ec.Exec(context.Background(), "snippet.py", src)
}

func mustExec(t *testing.T, src string) *Result {
	t.Helper()
	res, err := exec(t, src)
	require.NoError(t, err, "snippet:\n%s", src)
	return res
}

const loadLoans = "pd = _import(\"pandas\")\ndf = pd.read_csv(\"loans.csv\")\n"

func TestExec_TrailingExpression(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{name: "row count", src: loadLoans + "len(df)", want: "3"},
		{name: "column sum", src: loadLoans + `df["Amount"].sum()`, want: "600"},
		{name: "column mean", src: loadLoans + `df["Amount"].mean()`, want: "200.0"},
		{name: "mask filter", src: loadLoans + `df[df["Amount"] > 150]["Amount"].sum()`, want: "500"},
		{name: "combined mask", src: loadLoans + `len(df[(df["Status"] == "Active") & (df["Arrears"] > 20)])`, want: "1"},
		{name: "negated mask", src: loadLoans + `len(df[~(df["Status"] == "Active")])`, want: "1"},
		{name: "bool sum counts", src: loadLoans + `(df["Arrears"] > 0).sum()`, want: "2"},
		{name: "groupby sum", src: loadLoans + `df.groupby("Managed_By")["Amount"].sum().to_dict()`, want: `{"Alice": 400, "Bob": 200}`},
		{name: "value counts", src: loadLoans + `df["Status"].value_counts().to_dict()`, want: `{"Active": 2, "Closed": 1}`},
		{name: "scalar comparison", src: "1 < 2", want: "True"},
		{name: "string method", src: loadLoans + `df["Managed_By"].str.upper().tolist()`, want: `["ALICE", "BOB", "ALICE"]`},
		{name: "power", src: "_pow(2, 10)", want: "1024"},
		{name: "format", src: `_fmt(1234567.891, ",.2f")`, want: `"1,234,567.89"`},
		{name: "round half even", src: "round(2.5)", want: "2"},
		{name: "sum builtin", src: "sum([1, 2, 3])", want: "6"},
		{name: "comprehension with comparison", src: "[x for x in range(6) if x >= 4]", want: "[4, 5]"},
		{name: "lambda default with comparison", src: "f = lambda x, lim=3 > 2: x if lim else 0\nf(5)", want: "5"},
		{name: "datetime now", src: `datetime = _import("datetime", "datetime")` + "\ndatetime.now().year", want: "2025"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := mustExec(t, tt.src)
			require.NotNil(t, res.Value)
			assert.Equal(t, tt.want, res.Value.String())
		})
	}
}

func TestExec_PrintTakesPrecedence(t *testing.T) {
	res := mustExec(t, loadLoans+"total = df[\"Amount\"].sum()\nprint(\"Total:\", total)\ntotal")
	assert.True(t, res.Printed)
	assert.Equal(t, "Total: 600", res.Output)
}

func TestExec_LastAssignedIdentifier(t *testing.T) {
	res := mustExec(t, loadLoans+"active = len(df[df[\"Status\"] == \"Active\"])")
	require.NotNil(t, res.Value)
	assert.Equal(t, "active", res.Name)
	assert.Equal(t, "2", res.Value.String())
}

func TestExec_NoResult(t *testing.T) {
	res := mustExec(t, "for i in range(3):\n    pass\n")
	assert.Nil(t, res.Value)
	assert.False(t, res.Printed)
}

func TestExec_Errors(t *testing.T) {
	tests := []struct {
		name     string
		src      string
		sentinel error
		errName  string
	}{
		{name: "syntax", src: "x = (1,", sentinel: ErrSyntax},
		{name: "undefined name", src: "x = undefined_thing + 1", sentinel: ErrUndefined, errName: "undefined_thing"},
		{name: "unknown attribute", src: loadLoans + "df.no_such_method()", sentinel: ErrUndefined, errName: "no_such_method"},
		{name: "unknown import", src: `os = _import("os")`, sentinel: ErrImportNotAllowed},
		{name: "unknown member", src: `x = _import("math", "system")`, sentinel: ErrImportNotAllowed},
		{name: "missing column", src: loadLoans + `df["Nope"]`, sentinel: frame.ErrColumnNotFound},
		{name: "step limit", src: "x = 0\nwhile True:\n    x += 1\n", sentinel: ErrStepLimit},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := exec(t, tt.src)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.sentinel)
			var ee *EvalError
			require.ErrorAs(t, err, &ee)
			if tt.errName != "" {
				assert.Equal(t, tt.errName, ee.Name)
			}
		})
	}
}

func TestExec_LoadIsRejected(t *testing.T) {
	_, err := exec(t, `load("x.star", "y")`)
	require.Error(t, err)
	var ie *ImportError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, "x.star", ie.Module)
	assert.ErrorIs(t, err, ErrImportNotAllowed)
}

func TestExec_DatasetOutsideAllowList(t *testing.T) {
	_, err := exec(t, `pd = _import("pandas")`+"\npd.read_csv(\"/etc/passwd\")")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "allow-list")
}

func TestExec_Timeout(t *testing.T) {
	ec := NewExecutionContext(Options{Timeout: 20 * time.Millisecond, MaxSteps: 1 << 62})
	_, err := ec.Exec(context.Background(), "snippet.py", "x = 0\nwhile True:\n    x += 1\n")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCancelled)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestExec_SingleUse(t *testing.T) {
	ec := NewExecutionContext(Options{})
	_, err := ec.Exec(context.Background(), "a.py", "x = 1")
	require.NoError(t, err)
	_, err = ec.Exec(context.Background(), "a.py", "x")
	assert.Error(t, err)
}

func TestExec_FreshGlobals(t *testing.T) {
	mustExec(t, "leak = 42")
	_, err := exec(t, "leak")
	assert.ErrorIs(t, err, ErrUndefined)
}

func TestExec_FrameMutationViaSetKey(t *testing.T) {
	res := mustExec(t, loadLoans+"df[\"Double\"] = df[\"Amount\"] * 2\ndf[\"Double\"].max()")
	assert.Equal(t, "600", res.Value.String())
}
