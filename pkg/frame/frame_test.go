package frame

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loansFrame(t *testing.T) *DataFrame {
	t.Helper()
	df, err := FromRecords(
		[]string{"Loan_No", "Managed_By", "Status", "Arrears", "Amount_Disbursed"},
		[][]string{
			{"L1", "Alice", "Active", "0", "1000"},
			{"L2", "Bob", "Active", "250.5", "2000"},
			{"L3", "Alice", "Closed", "0", "1500"},
			{"L4", "Carol", "Active", "100", ""},
		},
	)
	require.NoError(t, err)
	return df
}

func TestFromRecordsInfersTypes(t *testing.T) {
	df := loansFrame(t)

	rows, cols := df.Shape()
	assert.Equal(t, 4, rows)
	assert.Equal(t, 5, cols)

	arrears, err := df.Column("Arrears")
	require.NoError(t, err)
	// Mixed int and float cells are promoted to float.
	assert.Equal(t, []any{0.0, 250.5, 0.0, 100.0}, arrears.Values())

	amount, err := df.Column("Amount_Disbursed")
	require.NoError(t, err)
	assert.Equal(t, []any{int64(1000), int64(2000), int64(1500), nil}, amount.Values())
}

func TestColumnNotFound(t *testing.T) {
	df := loansFrame(t)

	_, err := df.Column("Client")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrColumnNotFound)

	var ce *ColumnError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "Client", ce.Name)
}

func TestFilterWithMask(t *testing.T) {
	df := loansFrame(t)
	status, err := df.Column("Status")
	require.NoError(t, err)
	arrears, err := df.Column("Arrears")
	require.NoError(t, err)

	active, err := status.CompareWith(OpEQ, "Active", false)
	require.NoError(t, err)
	owing, err := arrears.CompareWith(OpGT, int64(0), false)
	require.NoError(t, err)
	mask, err := active.Logical("&", owing)
	require.NoError(t, err)

	out, err := df.Filter(mask)
	require.NoError(t, err)
	loans, err := out.Column("Loan_No")
	require.NoError(t, err)
	assert.Equal(t, []any{"L2", "L4"}, loans.Values())
	assert.Equal(t, []any{int64(1), int64(3)}, out.Index())
}

func TestFilterRejectsNonBoolean(t *testing.T) {
	df := loansFrame(t)
	arrears, err := df.Column("Arrears")
	require.NoError(t, err)

	_, err = df.Filter(arrears)
	assert.ErrorIs(t, err, ErrNotBoolean)
}

func TestSeriesAggregates(t *testing.T) {
	s := NewSeries("x", []any{int64(1), int64(2), int64(3), int64(4), nil}, nil)

	tests := []struct {
		name string
		got  any
		want any
	}{
		{name: "sum keeps ints", got: s.Sum(), want: int64(10)},
		{name: "mean", got: s.Mean(), want: 2.5},
		{name: "median", got: s.Median(), want: 2.5},
		{name: "count skips missing", got: s.Count(), want: 4},
		{name: "min", got: s.Min(), want: int64(1)},
		{name: "max", got: s.Max(), want: int64(4)},
		{name: "idxmax", got: s.IdxMax(), want: int64(3)},
		{name: "nunique", got: s.NUnique(), want: 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.got)
		})
	}

	assert.InDelta(t, 1.2909944, s.Std(), 1e-6)
	assert.True(t, math.IsNaN(NewSeries("e", nil, nil).Mean()))
}

func TestValueCounts(t *testing.T) {
	s := NewSeries("Status", []any{"Active", "Closed", "Active", nil, "Active"}, nil)
	vc := s.ValueCounts()

	assert.Equal(t, []any{"Active", "Closed"}, vc.Index())
	assert.Equal(t, []any{int64(3), int64(1)}, vc.Values())
}

func TestArith(t *testing.T) {
	paid := NewSeries("Total_Paid", []any{int64(100), 50.5, nil}, nil)
	expected := NewSeries("Expected_Paid", []any{int64(200), int64(0), int64(10)}, nil)

	ratio, err := paid.Arith(OpDiv, expected, false)
	require.NoError(t, err)
	vals := ratio.Values()
	assert.Equal(t, 0.5, vals[0])
	assert.True(t, math.IsInf(vals[1].(float64), 1))
	assert.Nil(t, vals[2])

	doubled, err := paid.Arith(OpMul, int64(2), false)
	require.NoError(t, err)
	assert.Equal(t, []any{int64(200), 101.0, nil}, doubled.Values())

	rsub, err := paid.Arith(OpSub, int64(1000), true)
	require.NoError(t, err)
	assert.Equal(t, int64(900), rsub.At(0))

	_, err = paid.Arith(OpAdd, NewSeries("short", []any{int64(1)}, nil), false)
	assert.ErrorIs(t, err, ErrLengthMismatch)
}

func TestSortValues(t *testing.T) {
	df := loansFrame(t)

	sorted, err := df.SortValues([]string{"Amount_Disbursed"}, []bool{false})
	require.NoError(t, err)
	loans, err := sorted.Column("Loan_No")
	require.NoError(t, err)
	// Missing values sort last.
	assert.Equal(t, []any{"L2", "L3", "L1", "L4"}, loans.Values())

	_, err = df.SortValues([]string{"Nope"}, nil)
	assert.ErrorIs(t, err, ErrColumnNotFound)
}

func TestGroupBy(t *testing.T) {
	df := loansFrame(t)

	g, err := df.GroupBy("Managed_By")
	require.NoError(t, err)
	assert.Equal(t, 3, g.NGroups())

	col, err := g.Column("Amount_Disbursed")
	require.NoError(t, err)
	sums, err := col.Aggregate("sum")
	require.NoError(t, err)
	assert.Equal(t, []any{"Alice", "Bob", "Carol"}, sums.Index())
	assert.Equal(t, []any{int64(2500), int64(2000), int64(0)}, sums.Values())

	size := g.Size()
	assert.Equal(t, []any{int64(2), int64(1), int64(1)}, size.Values())

	top := sums.IdxMax()
	assert.Equal(t, "Alice", top)
}

func TestGroupByMultipleKeys(t *testing.T) {
	df := loansFrame(t)

	g, err := df.GroupBy("Managed_By", "Status")
	require.NoError(t, err)
	col, err := g.Column("Loan_No")
	require.NoError(t, err)
	counts, err := col.Aggregate("count")
	require.NoError(t, err)

	assert.Equal(t, 4, counts.Len())
	assert.Equal(t, []any{"Alice", "Active"}, counts.Label(0))

	flat, err := ResetGroupIndex(g.Keys(), counts)
	require.NoError(t, err)
	assert.Equal(t, []string{"Managed_By", "Status", "Loan_No"}, flat.Columns())
}

func TestMerge(t *testing.T) {
	loans, err := FromRecords([]string{"Loan_No", "Client_Code"}, [][]string{
		{"L1", "C1"}, {"L2", "C2"}, {"L3", "C9"},
	})
	require.NoError(t, err)
	clients, err := FromRecords([]string{"Client_Code", "Name"}, [][]string{
		{"C1", "Ann"}, {"C2", "Ben"},
	})
	require.NoError(t, err)

	tests := []struct {
		how      string
		wantRows int
	}{
		{how: JoinInner, wantRows: 2},
		{how: JoinLeft, wantRows: 3},
		{how: JoinOuter, wantRows: 3},
	}

	for _, tt := range tests {
		t.Run(tt.how, func(t *testing.T) {
			out, err := Merge(loans, clients, []string{"Client_Code"}, tt.how)
			require.NoError(t, err)
			assert.Equal(t, tt.wantRows, out.Len())
			assert.Equal(t, []string{"Loan_No", "Client_Code", "Name"}, out.Columns())
		})
	}

	_, err = Merge(loans, clients, []string{"Loan_No"}, JoinInner)
	assert.ErrorIs(t, err, ErrColumnNotFound)
}

func TestWithColumnDoesNotMutate(t *testing.T) {
	df := loansFrame(t)
	flag := NewSeries("Flag", []any{true, false, true, false}, nil)

	out, err := df.WithColumn("Flag", flag)
	require.NoError(t, err)
	assert.True(t, out.HasColumn("Flag"))
	assert.False(t, df.HasColumn("Flag"))
}

func TestFormatValue(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{in: nil, want: "NaN"},
		{in: int64(42), want: "42"},
		{in: 0.1 + 0.2, want: "0.3"},
		{in: 1500.0, want: "1500"},
		{in: true, want: "True"},
		{in: []any{"Alice", "Active"}, want: "(Alice, Active)"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatValue(tt.in))
		})
	}
}
