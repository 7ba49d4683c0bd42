package sandbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranslate(t *testing.T) {
	tests := []struct {
		name string
		code string
		want string
	}{
		{name: "import alias", code: "import pandas as pd", want: `pd = _import("pandas")`},
		{name: "import list", code: "import numpy as np, math", want: `np = _import("numpy"); math = _import("math")`},
		{name: "from import", code: "from datetime import datetime, timedelta", want: `datetime = _import("datetime", "datetime"); timedelta = _import("datetime", "timedelta")`},
		{name: "from import parenthesized", code: "from statistics import (mean as avg)", want: `avg = _import("statistics", "mean")`},
		{name: "indented import keeps indent", code: "def f():\n    import math\n    return 1", want: "def f():\n    math = _import(\"math\")\n    return 1"},
		{name: "imports between statements", code: "import pandas as pd; x = 1", want: `pd = _import("pandas"); x = 1`},
		{name: "f-string with spec", code: `x = f"Total: {t:,.2f}"`, want: `x = ("Total: " + _fmt(t, ",.2f"))`},
		{name: "f-string single field", code: `f'{name!r}'`, want: `_fmt(repr(name), "")`},
		{name: "f-string str conversion", code: `f"{n!s:>4}"`, want: `_fmt(str(n), ">4")`},
		{name: "f-string self documenting", code: `f"{x=}"`, want: `("x=" + _fmt(repr(x), ""))`},
		{name: "f-string escaped braces", code: `f"{{literal}}"`, want: `"{literal}"`},
		{name: "f-string subscript", code: `f"{d['a']}"`, want: `_fmt(d['a'], "")`},
		{name: "f-string nested spec", code: `f"{x:>{w}}"`, want: `_fmt(x, (">" + _fmt(w, "")))`},
		{name: "f-string comparison inside", code: `f"{a != b}"`, want: `_fmt(a != b, "")`},
		{name: "empty f-string", code: `f""`, want: `""`},
		{name: "power", code: "a ** 2", want: "_pow(a, 2)"},
		{name: "power of call", code: `df["x"].sum() ** 0.5`, want: `_pow(df["x"].sum(), 0.5)`},
		{name: "power is right associative", code: "2 ** 3 ** 2", want: "_pow(2, _pow(3, 2))"},
		{name: "unary minus binds looser", code: "-x ** 2", want: "-_pow(x, 2)"},
		{name: "parenthesized base", code: "(a + b) ** 2", want: "_pow((a + b), 2)"},
		{name: "negative exponent", code: "x ** -1", want: "_pow(x, -1)"},
		{name: "power inside f-string", code: `f"{r ** 2:.1f}"`, want: `_fmt(_pow(r, 2), ".1f")`},
		{name: "keyword unpacking untouched", code: "f(**kw)", want: "f(**kw)"},
		{name: "dict unpacking untouched", code: "{**a, **b}", want: "{**a, **b}"},
		{name: "is none", code: "x is None", want: "x == None"},
		{name: "is not none", code: "x is not None", want: "x != None"},
		{name: "identifiers containing is", code: "df.isin(this)", want: "df.isin(this)"},
		{name: "strings untouched", code: `s = "a ** b is c"`, want: `s = "a ** b is c"`},
		{name: "import text in string untouched", code: `print("import os")`, want: `print("import os")`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Translate(tt.code)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTranslate_Errors(t *testing.T) {
	tests := []struct {
		name string
		code string
	}{
		{name: "unclosed field", code: `f"{x"`},
		{name: "single closing brace", code: `f"}"`},
		{name: "empty field", code: `f"{}"`},
		{name: "bad conversion", code: `f"{x!z}"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Translate(tt.code)
			assert.ErrorIs(t, err, ErrTranslate)
		})
	}
}
