package frame

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// Series is a named, labelled, immutable column of values.
type Series struct {
	name   string
	index  []any
	values []any
}

// NewSeries creates a Series. A nil index yields a positional index 0..n-1.
func NewSeries(name string, values []any, index []any) *Series {
	if index == nil {
		index = rangeIndex(len(values))
	}
	return &Series{name: name, index: index, values: values}
}

func rangeIndex(n int) []any {
	idx := make([]any, n)
	for i := range idx {
		idx[i] = int64(i)
	}
	return idx
}

// Name returns the series name.
func (s *Series) Name() string { return s.name }

// Len returns the number of values.
func (s *Series) Len() int { return len(s.values) }

// At returns the value at position i.
func (s *Series) At(i int) any { return s.values[i] }

// Label returns the index label at position i.
func (s *Series) Label(i int) any { return s.index[i] }

// Values returns a copy of the values.
func (s *Series) Values() []any { return append([]any(nil), s.values...) }

// Index returns a copy of the index labels.
func (s *Series) Index() []any { return append([]any(nil), s.index...) }

// Rename returns a copy with a new name.
func (s *Series) Rename(name string) *Series {
	return &Series{name: name, index: s.index, values: s.values}
}

// Get looks up a value by index label.
func (s *Series) Get(label any) (any, bool) {
	key := labelKey(label)
	for i, l := range s.index {
		if labelKey(l) == key {
			return s.values[i], true
		}
	}
	return nil, false
}

// IsBool reports whether every non-missing value is a bool.
func (s *Series) IsBool() bool {
	for _, v := range s.values {
		if v == nil {
			continue
		}
		if _, ok := v.(bool); !ok {
			return false
		}
	}
	return true
}

// Map applies fn to every value.
func (s *Series) Map(fn func(any) (any, error)) (*Series, error) {
	out := make([]any, len(s.values))
	for i, v := range s.values {
		r, err := fn(v)
		if err != nil {
			return nil, err
		}
		out[i] = r
	}
	return &Series{name: s.name, index: s.index, values: out}, nil
}

func (s *Series) take(rows []int) *Series {
	idx := make([]any, len(rows))
	vals := make([]any, len(rows))
	for i, r := range rows {
		idx[i] = s.index[r]
		vals[i] = s.values[r]
	}
	return &Series{name: s.name, index: idx, values: vals}
}

// Head returns the first n values.
func (s *Series) Head(n int) *Series {
	if n < 0 {
		n = max(len(s.values)+n, 0)
	}
	n = min(n, len(s.values))
	return &Series{name: s.name, index: s.index[:n], values: s.values[:n]}
}

// Tail returns the last n values.
func (s *Series) Tail(n int) *Series {
	n = min(max(n, 0), len(s.values))
	start := len(s.values) - n
	return &Series{name: s.name, index: s.index[start:], values: s.values[start:]}
}

// Filter keeps the positions where mask is true.
func (s *Series) Filter(mask *Series) (*Series, error) {
	rows, err := maskRows(mask, len(s.values))
	if err != nil {
		return nil, err
	}
	return s.take(rows), nil
}

func maskRows(mask *Series, n int) ([]int, error) {
	if mask.Len() != n {
		return nil, fmt.Errorf("%w: mask has %d values, want %d", ErrLengthMismatch, mask.Len(), n)
	}
	rows := make([]int, 0, n)
	for i, v := range mask.values {
		switch b := v.(type) {
		case bool:
			if b {
				rows = append(rows, i)
			}
		case nil:
		default:
			return nil, ErrNotBoolean
		}
	}
	return rows, nil
}

// SortValues orders the series by value. Missing values sort last.
func (s *Series) SortValues(ascending bool) *Series {
	rows := rangeInts(len(s.values))
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := s.values[rows[i]], s.values[rows[j]]
		if IsNull(a) || IsNull(b) {
			return !IsNull(a) && IsNull(b)
		}
		c := compareLabels(a, b)
		if ascending {
			return c < 0
		}
		return c > 0
	})
	return s.take(rows)
}

// SortIndex orders the series by index label.
func (s *Series) SortIndex(ascending bool) *Series {
	rows := rangeInts(len(s.values))
	sort.SliceStable(rows, func(i, j int) bool {
		c := compareLabels(s.index[rows[i]], s.index[rows[j]])
		if ascending {
			return c < 0
		}
		return c > 0
	})
	return s.take(rows)
}

func rangeInts(n int) []int {
	rows := make([]int, n)
	for i := range rows {
		rows[i] = i
	}
	return rows
}

// NLargest returns the n largest values.
func (s *Series) NLargest(n int) *Series { return s.SortValues(false).Head(n) }

// NSmallest returns the n smallest values.
func (s *Series) NSmallest(n int) *Series { return s.SortValues(true).Head(n) }

// Binary operator names accepted by Arith and CompareWith.
const (
	OpAdd      = "+"
	OpSub      = "-"
	OpMul      = "*"
	OpDiv      = "/"
	OpFloorDiv = "//"
	OpMod      = "%"
	OpPow      = "**"

	OpLT = "<"
	OpLE = "<="
	OpGT = ">"
	OpGE = ">="
	OpEQ = "=="
	OpNE = "!="
)

// operand returns the value at position i of other, which is either a Series
// of matching length or a scalar.
func operand(other any, i int) any {
	if o, ok := other.(*Series); ok {
		return o.values[i]
	}
	return other
}

func (s *Series) checkOperand(other any) error {
	if o, ok := other.(*Series); ok && o.Len() != s.Len() {
		return fmt.Errorf("%w: %d vs %d values", ErrLengthMismatch, s.Len(), o.Len())
	}
	return nil
}

// Arith applies an element-wise arithmetic operator. String concatenation is
// supported for "+". Missing values propagate.
func (s *Series) Arith(op string, other any, reflected bool) (*Series, error) {
	if err := s.checkOperand(other); err != nil {
		return nil, err
	}
	out := make([]any, len(s.values))
	for i, v := range s.values {
		a, b := v, operand(other, i)
		if reflected {
			a, b = b, a
		}
		r, err := ArithValue(op, a, b)
		if err != nil {
			return nil, err
		}
		out[i] = r
	}
	return &Series{name: s.name, index: s.index, values: out}, nil
}

// ArithValue applies an arithmetic operator to two cells.
func ArithValue(op string, a, b any) (any, error) {
	if IsNull(a) || IsNull(b) {
		return nil, nil
	}
	if as, ok := a.(string); ok {
		if bs, ok := b.(string); ok && op == OpAdd {
			return as + bs, nil
		}
		return nil, fmt.Errorf("%w: %s on string", ErrUnsupported, op)
	}
	if r, ok, err := temporalArith(op, a, b); ok {
		return r, err
	}
	af, aok := ToFloat(a)
	bf, bok := ToFloat(b)
	if !aok || !bok {
		return nil, fmt.Errorf("%w: %s between %T and %T", ErrUnsupported, op, a, b)
	}
	_, ai := a.(int64)
	_, bi := b.(int64)
	integral := ai && bi
	switch op {
	case OpAdd:
		return normalizeNumber(af+bf, integral), nil
	case OpSub:
		return normalizeNumber(af-bf, integral), nil
	case OpMul:
		return normalizeNumber(af*bf, integral), nil
	case OpDiv:
		if bf == 0 {
			return divByZero(af), nil
		}
		return af / bf, nil
	case OpFloorDiv:
		if bf == 0 {
			return divByZero(af), nil
		}
		return normalizeNumber(math.Floor(af/bf), integral), nil
	case OpMod:
		if bf == 0 {
			return math.NaN(), nil
		}
		m := math.Mod(af, bf)
		if m != 0 && (m < 0) != (bf < 0) {
			m += bf
		}
		return normalizeNumber(m, integral), nil
	case OpPow:
		return normalizeNumber(math.Pow(af, bf), integral && bf >= 0), nil
	}
	return nil, fmt.Errorf("%w: operator %s", ErrUnsupported, op)
}

// temporalArith handles dates and durations. The second result is false when
// neither operand is temporal.
func temporalArith(op string, a, b any) (any, bool, error) {
	switch av := a.(type) {
	case time.Time:
		switch bv := b.(type) {
		case time.Time:
			if op == OpSub {
				return av.Sub(bv), true, nil
			}
		case time.Duration:
			switch op {
			case OpAdd:
				return av.Add(bv), true, nil
			case OpSub:
				return av.Add(-bv), true, nil
			}
		}
		return nil, true, fmt.Errorf("%w: %s on date", ErrUnsupported, op)
	case time.Duration:
		switch bv := b.(type) {
		case time.Duration:
			switch op {
			case OpAdd:
				return av + bv, true, nil
			case OpSub:
				return av - bv, true, nil
			case OpDiv:
				if bv == 0 {
					return divByZero(float64(av)), true, nil
				}
				return float64(av) / float64(bv), true, nil
			}
		case time.Time:
			if op == OpAdd {
				return bv.Add(av), true, nil
			}
		default:
			if f, ok := ToFloat(b); ok {
				switch op {
				case OpMul:
					return time.Duration(float64(av) * f), true, nil
				case OpDiv:
					if f == 0 {
						return nil, true, fmt.Errorf("%w: duration divided by zero", ErrUnsupported)
					}
					return time.Duration(float64(av) / f), true, nil
				}
			}
		}
		return nil, true, fmt.Errorf("%w: %s on duration", ErrUnsupported, op)
	}
	if _, ok := b.(time.Duration); ok {
		if f, ok := ToFloat(a); ok && op == OpMul {
			return time.Duration(f * float64(b.(time.Duration))), true, nil
		}
		return nil, true, fmt.Errorf("%w: %s on duration", ErrUnsupported, op)
	}
	if bt, ok := b.(time.Time); ok {
		if ad, ok := a.(time.Duration); ok && op == OpAdd {
			return bt.Add(ad), true, nil
		}
		return nil, true, fmt.Errorf("%w: %s on date", ErrUnsupported, op)
	}
	return nil, false, nil
}

// divByZero mirrors IEEE semantics used by pandas: x/0 is ±inf, 0/0 is NaN.
func divByZero(num float64) float64 {
	switch {
	case num > 0:
		return math.Inf(1)
	case num < 0:
		return math.Inf(-1)
	}
	return math.NaN()
}

// CompareWith applies an element-wise comparison and returns a boolean Series.
// Comparisons involving missing values are false except "!=".
func (s *Series) CompareWith(op string, other any, reflected bool) (*Series, error) {
	if err := s.checkOperand(other); err != nil {
		return nil, err
	}
	out := make([]any, len(s.values))
	for i, v := range s.values {
		a, b := v, operand(other, i)
		if reflected {
			a, b = b, a
		}
		r, err := CompareValue(op, a, b)
		if err != nil {
			return nil, err
		}
		out[i] = r
	}
	return &Series{name: s.name, index: s.index, values: out}, nil
}

// CompareValue compares two cells with the given operator.
func CompareValue(op string, a, b any) (bool, error) {
	switch op {
	case OpEQ:
		return Equal(a, b), nil
	case OpNE:
		return !Equal(a, b), nil
	}
	c, ok := Compare(a, b)
	if !ok {
		return false, nil
	}
	switch op {
	case OpLT:
		return c < 0, nil
	case OpLE:
		return c <= 0, nil
	case OpGT:
		return c > 0, nil
	case OpGE:
		return c >= 0, nil
	}
	return false, fmt.Errorf("%w: comparison %s", ErrUnsupported, op)
}

// Logical combines two boolean series (or a series and a bool) with "&", "|"
// or "^".
func (s *Series) Logical(op string, other any) (*Series, error) {
	if err := s.checkOperand(other); err != nil {
		return nil, err
	}
	out := make([]any, len(s.values))
	for i, v := range s.values {
		a, aok := v.(bool)
		b, bok := operand(other, i).(bool)
		if !aok && v != nil || !bok && operand(other, i) != nil {
			return nil, ErrNotBoolean
		}
		switch op {
		case "&":
			out[i] = a && b
		case "|":
			out[i] = a || b
		case "^":
			out[i] = a != b
		default:
			return nil, fmt.Errorf("%w: operator %s", ErrUnsupported, op)
		}
	}
	return &Series{name: s.name, index: s.index, values: out}, nil
}

// Not inverts a boolean series.
func (s *Series) Not() (*Series, error) {
	out := make([]any, len(s.values))
	for i, v := range s.values {
		b, ok := v.(bool)
		if !ok && v != nil {
			return nil, ErrNotBoolean
		}
		out[i] = !b
	}
	return &Series{name: s.name, index: s.index, values: out}, nil
}

// Neg negates a numeric series.
func (s *Series) Neg() (*Series, error) {
	return s.Arith(OpMul, int64(-1), false)
}

// IsIn reports membership of each value in set.
func (s *Series) IsIn(set []any) *Series {
	keys := make(map[string]bool, len(set))
	for _, v := range set {
		keys[labelKey(v)] = true
	}
	out := make([]any, len(s.values))
	for i, v := range s.values {
		out[i] = !IsNull(v) && keys[labelKey(v)]
	}
	return &Series{name: s.name, index: s.index, values: out}
}

// Between reports lo <= v <= hi for each value.
func (s *Series) Between(lo, hi any) *Series {
	out := make([]any, len(s.values))
	for i, v := range s.values {
		a, aok := Compare(v, lo)
		b, bok := Compare(v, hi)
		out[i] = aok && bok && a >= 0 && b <= 0
	}
	return &Series{name: s.name, index: s.index, values: out}
}

// IsNA marks missing values.
func (s *Series) IsNA() *Series {
	out := make([]any, len(s.values))
	for i, v := range s.values {
		out[i] = IsNull(v)
	}
	return &Series{name: s.name, index: s.index, values: out}
}

// NotNA marks present values.
func (s *Series) NotNA() *Series {
	out := make([]any, len(s.values))
	for i, v := range s.values {
		out[i] = !IsNull(v)
	}
	return &Series{name: s.name, index: s.index, values: out}
}

// FillNA replaces missing values.
func (s *Series) FillNA(fill any) *Series {
	out := make([]any, len(s.values))
	for i, v := range s.values {
		if IsNull(v) {
			out[i] = fill
		} else {
			out[i] = v
		}
	}
	return &Series{name: s.name, index: s.index, values: out}
}

// DropNA removes missing values.
func (s *Series) DropNA() *Series {
	rows := make([]int, 0, len(s.values))
	for i, v := range s.values {
		if !IsNull(v) {
			rows = append(rows, i)
		}
	}
	return s.take(rows)
}

func (s *Series) floats() []float64 {
	out := make([]float64, 0, len(s.values))
	for _, v := range s.values {
		if f, ok := ToFloat(v); ok && !IsNull(v) {
			out = append(out, f)
		}
	}
	return out
}

func (s *Series) allInts() bool {
	for _, v := range s.values {
		switch v.(type) {
		case int64, bool, nil:
		default:
			return false
		}
	}
	return true
}

// Sum adds the numeric values. An all-integer series sums to int64.
func (s *Series) Sum() any {
	fs := s.floats()
	total := 0.0
	for _, f := range fs {
		total += f
	}
	return normalizeNumber(total, s.allInts())
}

// Mean is the arithmetic mean of the numeric values (NaN when empty).
func (s *Series) Mean() float64 {
	fs := s.floats()
	if len(fs) == 0 {
		return math.NaN()
	}
	total := 0.0
	for _, f := range fs {
		total += f
	}
	return total / float64(len(fs))
}

// Median returns the median of the numeric values.
func (s *Series) Median() float64 {
	fs := s.floats()
	if len(fs) == 0 {
		return math.NaN()
	}
	sort.Float64s(fs)
	mid := len(fs) / 2
	if len(fs)%2 == 1 {
		return fs[mid]
	}
	return (fs[mid-1] + fs[mid]) / 2
}

// Std is the sample standard deviation (ddof=1).
func (s *Series) Std() float64 {
	fs := s.floats()
	if len(fs) < 2 {
		return math.NaN()
	}
	mean := s.Mean()
	ss := 0.0
	for _, f := range fs {
		ss += (f - mean) * (f - mean)
	}
	return math.Sqrt(ss / float64(len(fs)-1))
}

// Quantile returns the q-th quantile using linear interpolation between the
// closest ranks (NaN when empty).
func (s *Series) Quantile(q float64) float64 {
	fs := s.floats()
	if len(fs) == 0 || q < 0 || q > 1 {
		return math.NaN()
	}
	sort.Float64s(fs)
	pos := q * float64(len(fs)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	return fs[lo] + (fs[hi]-fs[lo])*(pos-float64(lo))
}

// Any reports whether any value is truthy.
func (s *Series) Any() bool {
	for _, v := range s.values {
		if truthy(v) {
			return true
		}
	}
	return false
}

// All reports whether every non-missing value is truthy.
func (s *Series) All() bool {
	for _, v := range s.values {
		if !IsNull(v) && !truthy(v) {
			return false
		}
	}
	return true
}

func truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case string:
		return val != ""
	case time.Duration:
		return val != 0
	}
	if f, ok := ToFloat(v); ok {
		return f != 0
	}
	return !IsNull(v)
}

// Var is the sample variance (ddof=1).
func (s *Series) Var() float64 {
	sd := s.Std()
	return sd * sd
}

// Min returns the smallest non-missing value, or nil.
func (s *Series) Min() any { return s.extreme(-1) }

// Max returns the largest non-missing value, or nil.
func (s *Series) Max() any { return s.extreme(1) }

func (s *Series) extreme(sign int) any {
	i := s.argExtreme(sign)
	if i < 0 {
		return nil
	}
	return s.values[i]
}

func (s *Series) argExtreme(sign int) int {
	best := -1
	for i, v := range s.values {
		if IsNull(v) {
			continue
		}
		if best < 0 || compareLabels(v, s.values[best])*sign > 0 {
			best = i
		}
	}
	return best
}

// IdxMax returns the index label of the largest value.
func (s *Series) IdxMax() any {
	if i := s.argExtreme(1); i >= 0 {
		return s.index[i]
	}
	return nil
}

// IdxMin returns the index label of the smallest value.
func (s *Series) IdxMin() any {
	if i := s.argExtreme(-1); i >= 0 {
		return s.index[i]
	}
	return nil
}

// Count returns the number of non-missing values.
func (s *Series) Count() int {
	n := 0
	for _, v := range s.values {
		if !IsNull(v) {
			n++
		}
	}
	return n
}

// Unique returns distinct non-missing values in order of first appearance.
func (s *Series) Unique() []any {
	seen := make(map[string]bool)
	var out []any
	for _, v := range s.values {
		if IsNull(v) {
			continue
		}
		k := labelKey(v)
		if !seen[k] {
			seen[k] = true
			out = append(out, v)
		}
	}
	return out
}

// NUnique counts distinct non-missing values.
func (s *Series) NUnique() int { return len(s.Unique()) }

// Mode returns the most frequent values, sorted.
func (s *Series) Mode() *Series {
	counts := s.ValueCounts()
	if counts.Len() == 0 {
		return NewSeries(s.name, nil, nil)
	}
	top := counts.values[0]
	var vals []any
	for i, c := range counts.values {
		if c == top {
			vals = append(vals, counts.index[i])
		}
	}
	sort.SliceStable(vals, func(i, j int) bool { return compareLabels(vals[i], vals[j]) < 0 })
	return NewSeries(s.name, vals, nil)
}

// ValueCounts counts occurrences of each value, most frequent first.
func (s *Series) ValueCounts() *Series {
	order := s.Unique()
	counts := make(map[string]int64, len(order))
	for _, v := range s.values {
		if !IsNull(v) {
			counts[labelKey(v)]++
		}
	}
	sort.SliceStable(order, func(i, j int) bool {
		return counts[labelKey(order[i])] > counts[labelKey(order[j])]
	})
	vals := make([]any, len(order))
	for i, v := range order {
		vals[i] = counts[labelKey(v)]
	}
	return &Series{name: "count", index: order, values: vals}
}

// Abs returns absolute values.
func (s *Series) Abs() (*Series, error) {
	return s.Map(func(v any) (any, error) {
		switch n := v.(type) {
		case nil:
			return nil, nil
		case int64:
			if n < 0 {
				return -n, nil
			}
			return n, nil
		case float64:
			return math.Abs(n), nil
		}
		return nil, fmt.Errorf("%w: abs of %T", ErrUnsupported, v)
	})
}

// Round rounds numeric values to the given number of decimals.
func (s *Series) Round(decimals int) *Series {
	out, _ := s.Map(func(v any) (any, error) {
		if f, ok := v.(float64); ok {
			return RoundFloat(f, decimals), nil
		}
		return v, nil
	})
	return out
}

// RoundFloat rounds half away from zero to the given number of decimals.
func RoundFloat(f float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(f*p) / p
}

// CumSum is the running total.
func (s *Series) CumSum() *Series {
	out := make([]any, len(s.values))
	total := 0.0
	ints := s.allInts()
	for i, v := range s.values {
		if f, ok := ToFloat(v); ok && !IsNull(v) {
			total += f
			out[i] = normalizeNumber(total, ints)
		}
	}
	return &Series{name: s.name, index: s.index, values: out}
}

// AsType converts values to "int", "float", "str" or "bool".
func (s *Series) AsType(kind string) (*Series, error) {
	return s.Map(func(v any) (any, error) {
		if IsNull(v) {
			return nil, nil
		}
		switch kind {
		case "int", "int64", "int32":
			f, ok := ToFloat(v)
			if !ok {
				if p, isNum := ToFloat(ParseCell(FormatValue(v))); isNum {
					f = p
				} else {
					return nil, fmt.Errorf("%w: cannot convert %q to int", ErrUnsupported, FormatValue(v))
				}
			}
			return int64(f), nil
		case "float", "float64", "float32":
			f, ok := ToFloat(v)
			if !ok {
				if p, isNum := ToFloat(ParseCell(FormatValue(v))); isNum {
					return p, nil
				}
				return nil, fmt.Errorf("%w: cannot convert %q to float", ErrUnsupported, FormatValue(v))
			}
			return f, nil
		case "str", "string", "object":
			return FormatValue(v), nil
		case "bool":
			if f, ok := ToFloat(v); ok {
				return f != 0, nil
			}
			return FormatValue(v) != "", nil
		}
		return nil, fmt.Errorf("%w: astype %q", ErrUnsupported, kind)
	})
}

// ToNumeric parses values as numbers; unparsable values become missing.
func (s *Series) ToNumeric() *Series {
	out, _ := s.Map(func(v any) (any, error) {
		if _, ok := numeric(v); ok {
			return v, nil
		}
		if str, ok := v.(string); ok {
			p := ParseCell(strings.ReplaceAll(str, ",", ""))
			if _, ok := numeric(p); ok {
				return p, nil
			}
		}
		return nil, nil
	})
	return out
}

// ToDatetime parses values as dates; unparsable values become missing.
func (s *Series) ToDatetime() *Series {
	out, _ := s.Map(func(v any) (any, error) {
		if t, ok := ParseDate(v); ok {
			return t, nil
		}
		return nil, nil
	})
	return out
}

// ResetIndex turns the series into a two-column frame of index and values.
func (s *Series) ResetIndex(indexName string) *DataFrame {
	name := s.name
	if name == "" {
		name = "0"
	}
	if indexName == "" {
		indexName = "index"
	}
	df, _ := New([]string{indexName, name}, [][]any{s.Index(), s.Values()}, nil)
	return df
}

// ToFrame converts the series into a single-column frame.
func (s *Series) ToFrame() *DataFrame {
	name := s.name
	if name == "" {
		name = "0"
	}
	df, _ := New([]string{name}, [][]any{s.Values()}, s.Index())
	return df
}

// Pairs returns (label, value) pairs in order.
func (s *Series) Pairs() [][2]any {
	out := make([][2]any, len(s.values))
	for i := range s.values {
		out[i] = [2]any{s.index[i], s.values[i]}
	}
	return out
}
