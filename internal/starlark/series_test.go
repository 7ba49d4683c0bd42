package starlark

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeriesMethods(t *testing.T) {
	tests := []struct {
		name string
		expr string
		want string
	}{
		{name: "max", expr: `df["Amount"].max()`, want: "300"},
		{name: "idxmax", expr: `df.loc[df["Amount"].idxmax(), "Loan_No"]`, want: `"L3"`},
		{name: "nunique", expr: `df["Managed_By"].nunique()`, want: "2"},
		{name: "unique", expr: `df["Managed_By"].unique()`, want: `["Alice", "Bob"]`},
		{name: "isin", expr: `df[df["Loan_No"].isin(["L1", "L2"])]["Amount"].sum()`, want: "300"},
		{name: "between", expr: `len(df[df["Amount"].between(100, 200)])`, want: "2"},
		{name: "round", expr: `(df["Arrears"] / 3).round(1).tolist()`, want: "[3.3, 0.0, 8.3]"},
		{name: "sort values", expr: `df.sort_values("Amount", ascending=False)["Loan_No"].tolist()`, want: `["L3", "L2", "L1"]`},
		{name: "nlargest", expr: `df.nlargest(2, "Arrears")["Loan_No"].tolist()`, want: `["L3", "L1"]`},
		{name: "head", expr: `len(df.head(2))`, want: "2"},
		{name: "str contains", expr: `df["Managed_By"].str.contains("li").sum()`, want: "2"},
		{name: "apply lambda", expr: `df["Amount"].apply(lambda x: x // 100).tolist()`, want: "[1, 2, 3]"},
		{name: "map dict", expr: `df["Status"].map({"Active": 1, "Closed": 0}).sum()`, want: "2"},
		{name: "arithmetic between series", expr: `(df["Amount"] - df["Arrears"]).tolist()`, want: "[90, 200, 275]"},
		{name: "reflected arithmetic", expr: `(1000 - df["Amount"]).min()`, want: "700"},
		{name: "iloc", expr: `df["Amount"].iloc[-1]`, want: "300"},
		{name: "dt year", expr: `pd.to_datetime(df["Issued_Date"]).dt.year.tolist()`, want: "[2025, 2024, 2025]"},
		{name: "dt month name", expr: `pd.to_datetime(df["Issued_Date"]).dt.month_name().tolist()`, want: `["January", "November", "February"]`},
		{name: "timestamp comparison", expr: `len(df[pd.to_datetime(df["Issued_Date"]) >= "2025-01-01"])`, want: "2"},
		{name: "cumsum", expr: `df["Amount"].cumsum().tolist()`, want: "[100, 300, 600]"},
		{name: "in on index", expr: `"Amount" in df.columns`, want: "True"},
		{name: "numpy where", expr: `np.where(df["Arrears"] > 0, "late", "ok").tolist()`, want: `["late", "ok", "late"]`},
		{name: "numpy population std", expr: `round(np.std([1, 2, 3, 4]), 4)`, want: "1.118"},
		{name: "statistics sample stdev", expr: `round(statistics.stdev([1, 2, 3, 4]), 4)`, want: "1.291"},
	}
	prelude := loadLoans + `np = _import("numpy")` + "\n" + `statistics = _import("statistics")` + "\n"
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := mustExec(t, prelude+tt.expr)
			require.NotNil(t, res.Value)
			assert.Equal(t, tt.want, res.Value.String())
		})
	}
}

func TestFrameAndGroupBy(t *testing.T) {
	tests := []struct {
		name string
		expr string
		want string
	}{
		{name: "shape", expr: "df.shape", want: "(3, 6)"},
		{name: "columns", expr: "list(df.columns)[:2]", want: `["Loan_No", "Managed_By"]`},
		{name: "select columns", expr: `df[["Loan_No", "Amount"]].shape`, want: "(3, 2)"},
		{name: "groupby agg dict", expr: `df.groupby("Managed_By").agg({"Amount": "sum"})["Amount"].to_dict()`, want: `{"Alice": 400, "Bob": 200}`},
		{name: "groupby size", expr: `df.groupby("Status").size().to_dict()`, want: `{"Active": 2, "Closed": 1}`},
		{name: "groupby reset index", expr: `df.groupby("Managed_By")["Arrears"].sum().reset_index().columns.tolist()`, want: `["Managed_By", "Arrears"]`},
		{name: "groupby as_index false", expr: `df.groupby("Managed_By", as_index=False)["Amount"].mean()["Managed_By"].tolist()`, want: `["Alice", "Bob"]`},
		{name: "groupby iteration", expr: `[name for name, g in df.groupby("Status")]`, want: `["Active", "Closed"]`},
		{name: "groupby mean then idxmax", expr: `df.groupby("Managed_By")["Amount"].mean().idxmax()`, want: `"Alice"`},
		{name: "records", expr: `df[["Loan_No"]].to_dict("records")[0]`, want: `{"Loan_No": "L1"}`},
		{name: "loc assignment", expr: "df2 = df.copy()\ndf2.loc[df2[\"Status\"] == \"Closed\", \"Arrears\"] = 99\ndf2[\"Arrears\"].tolist()", want: "[10, 99, 25]"},
		{name: "dataframe constructor", expr: `pd.DataFrame({"a": [1, 2], "b": ["x", "y"]}).shape`, want: "(2, 2)"},
		{name: "merge", expr: `pd.merge(df, pd.DataFrame({"Managed_By": ["Alice"], "Region": ["North"]}), on="Managed_By")["Region"].tolist()`, want: `["North", "North"]`},
		{name: "concat", expr: `len(pd.concat([df, df], ignore_index=True))`, want: "6"},
		{name: "iterrows", expr: `[row["Loan_No"] for _, row in df.iterrows()]`, want: `["L1", "L2", "L3"]`},
		{name: "empty filter", expr: `df[df["Amount"] > 1000].empty`, want: "True"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := mustExec(t, loadLoans+tt.expr)
			require.NotNil(t, res.Value)
			assert.Equal(t, tt.want, res.Value.String())
		})
	}
}

func TestFramePreview(t *testing.T) {
	res := mustExec(t, loadLoans+"print(df)")
	assert.Contains(t, res.Output, "Loan_No")
	assert.Contains(t, res.Output, "L3")

	res = mustExec(t, loadLoans+`print(df["Amount"].head(2))`)
	assert.Contains(t, res.Output, "100")
	assert.NotContains(t, res.Output, "300")
}
