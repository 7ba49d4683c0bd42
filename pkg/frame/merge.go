package frame

import "fmt"

// Join kinds accepted by Merge.
const (
	JoinInner = "inner"
	JoinLeft  = "left"
	JoinRight = "right"
	JoinOuter = "outer"
)

// Merge joins two frames on shared key columns. Overlapping non-key columns
// get "_x" and "_y" suffixes.
func Merge(left, right *DataFrame, on []string, how string) (*DataFrame, error) {
	if how == "" {
		how = JoinInner
	}
	switch how {
	case JoinInner, JoinLeft, JoinRight, JoinOuter:
	default:
		return nil, fmt.Errorf("%w: merge how=%q", ErrUnsupported, how)
	}
	if len(on) == 0 {
		on = sharedColumns(left, right)
		if len(on) == 0 {
			return nil, fmt.Errorf("no common columns to merge on")
		}
	}
	for _, k := range on {
		if !left.HasColumn(k) {
			return nil, &ColumnError{Name: k}
		}
		if !right.HasColumn(k) {
			return nil, &ColumnError{Name: k}
		}
	}
	if how == JoinRight {
		out, err := Merge(right, left, on, JoinLeft)
		if err != nil {
			return nil, err
		}
		return out, nil
	}

	isKey := make(map[string]bool, len(on))
	for _, k := range on {
		isKey[k] = true
	}
	rightRows := make(map[string][]int)
	for r := 0; r < right.nrows; r++ {
		k, ok := rowKey(right, on, r)
		if ok {
			rightRows[k] = append(rightRows[k], r)
		}
	}

	type pair struct{ l, r int }
	var pairs []pair
	matchedRight := make(map[int]bool)
	for l := 0; l < left.nrows; l++ {
		k, ok := rowKey(left, on, l)
		matches := rightRows[k]
		if ok && len(matches) > 0 {
			for _, r := range matches {
				pairs = append(pairs, pair{l, r})
				matchedRight[r] = true
			}
			continue
		}
		if how == JoinLeft || how == JoinOuter {
			pairs = append(pairs, pair{l, -1})
		}
	}
	if how == JoinOuter {
		for r := 0; r < right.nrows; r++ {
			if !matchedRight[r] {
				pairs = append(pairs, pair{-1, r})
			}
		}
	}

	var names []string
	type source struct {
		frame  *DataFrame
		column string
		key    bool
	}
	var sources []source
	for _, c := range left.columns {
		name := c
		if !isKey[c] && right.HasColumn(c) {
			name = c + "_x"
		}
		names = append(names, name)
		sources = append(sources, source{left, c, isKey[c]})
	}
	for _, c := range right.columns {
		if isKey[c] {
			continue
		}
		name := c
		if left.HasColumn(c) {
			name = c + "_y"
		}
		names = append(names, name)
		sources = append(sources, source{right, c, false})
	}

	data := make([][]any, len(names))
	for i, src := range sources {
		col := make([]any, len(pairs))
		for p, pr := range pairs {
			switch {
			case src.frame == left && pr.l >= 0:
				col[p] = left.data[src.column][pr.l]
			case src.frame == left && src.key && pr.r >= 0:
				col[p] = right.data[src.column][pr.r]
			case src.frame == right && pr.r >= 0:
				col[p] = right.data[src.column][pr.r]
			}
		}
		data[i] = col
	}
	return New(names, data, nil)
}

func sharedColumns(a, b *DataFrame) []string {
	var out []string
	for _, c := range a.columns {
		if b.HasColumn(c) {
			out = append(out, c)
		}
	}
	return out
}

func rowKey(df *DataFrame, on []string, r int) (string, bool) {
	parts := make([]any, len(on))
	for i, k := range on {
		v := df.data[k][r]
		if IsNull(v) {
			return "", false
		}
		parts[i] = v
	}
	return labelKey(parts), true
}
