package answer

import (
	"regexp"
	"slices"
	"strings"

	"go.starlark.net/starlark"
	"golang.org/x/net/html"

	"github.com/leapstack-labs/leapinsight/internal/fault"
	"github.com/leapstack-labs/leapinsight/internal/sandbox"
	starctx "github.com/leapstack-labs/leapinsight/internal/starlark"
	"github.com/leapstack-labs/leapinsight/pkg/frame"
)

var (
	placeholder = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)(?::([^{}<>]*))?\}`)
	rawText     = regexp.MustCompile(`(?is)<(style|script)\b.*?</(style|script)\s*>`)
)

// Placeholders lists the distinct placeholder names in s, in order of first
// appearance. Style and script bodies are skipped.
func Placeholders(s string) []string {
	var names []string
	for _, m := range placeholder.FindAllStringSubmatch(mask(s), -1) {
		if !slices.Contains(names, m[1]) {
			names = append(names, m[1])
		}
	}
	return names
}

// mask blanks style and script elements, keeping offsets.
func mask(s string) string {
	return rawText.ReplaceAllStringFunc(s, func(m string) string {
		return strings.Repeat(" ", len(m))
	})
}

// Resolve fills placeholders left in fa from the structured result of the
// last Observation. Values come from, in order, a result mapping holding the
// name, the scalar variables the code left behind, or a scalar result when
// exactly one name is present. An answer with any name left over is
// replaced by the ParseFault fragment; values are never invented.
func (e *Extractor) Resolve(fa FinalAnswer, obs *sandbox.Observation) FinalAnswer {
	names := Placeholders(fa.HTML)
	if len(names) == 0 {
		return fa
	}

	values := make(map[string]starlark.Value, len(names))
	var missing []string
	for _, name := range names {
		if v, ok := lookup(obs, name); ok {
			values[name] = v
			continue
		}
		missing = append(missing, name)
	}
	if len(missing) > 0 && len(names) == 1 && obs != nil && obs.Value != nil && isScalar(obs.Value) {
		values[names[0]] = obs.Value
		missing = nil
	}
	if len(missing) > 0 {
		return e.unresolved(fa, missing)
	}

	masked := mask(fa.HTML)
	var sb strings.Builder
	last := 0
	for _, loc := range placeholder.FindAllStringSubmatchIndex(masked, -1) {
		name := masked[loc[2]:loc[3]]
		spec := ""
		if loc[4] >= 0 {
			spec = masked[loc[4]:loc[5]]
		}
		text, err := format(values[name], spec)
		if err != nil {
			return e.unresolved(fa, []string{name})
		}
		sb.WriteString(fa.HTML[last:loc[0]])
		sb.WriteString(html.EscapeString(text))
		last = loc[1]
	}
	sb.WriteString(fa.HTML[last:])
	fa.HTML = sb.String()
	return fa
}

// Resolve uses the default brand palette.
func Resolve(fa FinalAnswer, obs *sandbox.Observation) FinalAnswer {
	return defaultExtractor.Resolve(fa, obs)
}

func (e *Extractor) unresolved(fa FinalAnswer, names []string) FinalAnswer {
	out := e.r.Fault(fault.KindParse)
	out.Source = fa.Source
	out.Unresolved = names
	return out
}

func lookup(obs *sandbox.Observation, name string) (starlark.Value, bool) {
	if obs == nil {
		return nil, false
	}
	if d, ok := obs.Value.(*starlark.Dict); ok {
		if v, found, err := d.Get(starlark.String(name)); err == nil && found {
			return v, true
		}
	}
	if v, ok := obs.Bindings[name]; ok {
		return v, true
	}
	return nil, false
}

func isScalar(v starlark.Value) bool {
	switch v.(type) {
	case starlark.String, starlark.Int, starlark.Float, starlark.Bool, starctx.Timestamp, starctx.Timedelta:
		return true
	}
	return false
}

func format(v starlark.Value, spec string) (string, error) {
	if f, ok := v.(starlark.Float); ok && spec == "" {
		return frame.FormatFloat(float64(f)), nil
	}
	return starctx.FormatSpec(v, spec)
}
