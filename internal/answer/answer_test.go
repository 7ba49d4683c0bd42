package answer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.starlark.net/starlark"

	"github.com/leapstack-labs/leapinsight/internal/config"
	"github.com/leapstack-labs/leapinsight/internal/fault"
	"github.com/leapstack-labs/leapinsight/internal/sandbox"
)

const container = `<div class="response-container">`

func TestExtract(t *testing.T) {
	tests := []struct {
		name       string
		transcript string
		want       string
		contains   string
		source     Source
		tone       fault.Tone
	}{
		{
			name:       "trailing junk is discarded",
			transcript: "Thought: done\nFinal Answer: <div class=\"response-container\"><p>9 loans</p></div>\nSome trailing junk",
			want:       `<div class="response-container"><p>9 loans</p></div>`,
			source:     SourceMarker,
			tone:       fault.ToneNormal,
		},
		{
			name: "nested divs are kept",
			transcript: "Thought: done\nFinal Answer: <div class=\"response-container\"><div style=\"color: white;\">" +
				"<h3>Top Manager</h3><div><p><strong>Carol</strong></p></div></div></div>",
			want: `<div class="response-container"><div style="color: white;">` +
				`<h3>Top Manager</h3><div><p><strong>Carol</strong></p></div></div></div>`,
			source: SourceMarker,
			tone:   fault.ToneNormal,
		},
		{
			name:       "last marker wins",
			transcript: "Final Answer: <p>old</p>\nObservation: x\nFinal Answer: <p>new</p>",
			want:       container + `<p>new</p></div>`,
			source:     SourceMarker,
		},
		{
			name:       "fenced answer",
			transcript: "Final Answer: ```html\n<div class=\"response-container\"><p>ok</p></div>\n```",
			want:       `<div class="response-container"><p>ok</p></div>`,
			source:     SourceMarker,
		},
		{
			name:       "leading prose before the first tag",
			transcript: "Final Answer: Here it is: <p>7 due today</p>",
			want:       container + `<p>7 due today</p></div>`,
			source:     SourceMarker,
		},
		{
			name:       "unclosed markup is repaired",
			transcript: "Final Answer: <div class=\"response-container\"><p><strong>Carol</strong> leads",
			want:       `<div class="response-container"><p><strong>Carol</strong> leads</p></div>`,
			source:     SourceMarker,
		},
		{
			name:       "mismatched close is repaired",
			transcript: "Final Answer: <div><p>x</div>",
			want:       container + `<div><p>x</p></div></div>`,
			source:     SourceMarker,
		},
		{
			name:       "markers inside the answer are removed",
			transcript: "Final Answer: <p>Thought: 12</p>",
			want:       container + `<p> 12</p></div>`,
			source:     SourceMarker,
		},
		{
			name:       "plain text answer is escaped",
			transcript: "Final Answer: We have <9 active loans & counting",
			contains:   "We have &lt;9 active loans &amp; counting",
			source:     SourceMarker,
		},
		{
			name:       "stray paragraph without a marker",
			transcript: "Thought: the answer is\n<p>12 loans</p> hope that helps",
			want:       container + `<p>12 loans</p></div>`,
			source:     SourceTagSpan,
		},
		{
			name:       "execution error without markup",
			transcript: "Observation: Error in Python calculation: something broke",
			contains:   "Analysis Error",
			source:     SourceAnalysisError,
			tone:       fault.ToneCautionary,
		},
		{
			name:       "leftover plain text",
			transcript: "Thought: there are 12 loans",
			contains:   "I found some data: there are 12 loans",
			source:     SourcePlainText,
		},
		{
			name:       "empty transcript",
			transcript: "",
			contains:   "Please try again.",
			source:     SourceFallback,
			tone:       fault.ToneCautionary,
		},
		{
			name:       "empty answer after the marker",
			transcript: "Final Answer:   ",
			source:     SourceFallback,
			tone:       fault.ToneCautionary,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fa := Extract(tt.transcript)
			if tt.want != "" {
				assert.Equal(t, tt.want, fa.HTML)
			}
			if tt.contains != "" {
				assert.Contains(t, fa.HTML, tt.contains)
			}
			assert.Equal(t, tt.source, fa.Source)
			if tt.tone != "" {
				assert.Equal(t, tt.tone, fa.Tone)
			}
			assert.True(t, isContainer(fa.HTML), fa.HTML)
			assert.True(t, balanced(fa.HTML), fa.HTML)
		})
	}
}

// Every transcript yields one balanced response container.
func TestExtract_Total(t *testing.T) {
	inputs := []string{
		"", " ", "<", ">", "<<>>", "</div>", "<div", "<div class=", "<div class='x'",
		"Final Answer:", "Final Answer: <", "Final Answer: <div class=", "Final Answer: </p></div>",
		"Action: execute_code\nAction Input: len(df", "Final Answer: ```", "```html\n<p>x",
		"<script>alert(1)</script>", "Final Answer: <style>p{}</style>", "<!-- c -->", "<p>a</p><p>b",
		"Final Answer: <table><tr><td>1</td></tr>", "\x00\xff<\x00>", "Final Answer: <br><hr>",
		"Final Answer: <svg><path d='M0'/></svg>",
	}
	for _, in := range inputs {
		fa := Extract(in)
		require.NotEmpty(t, fa.HTML, "input %q", in)
		assert.True(t, strings.HasPrefix(fa.HTML, `<div class="response-container"`), "input %q: %s", in, fa.HTML)
		assert.True(t, balanced(fa.HTML), "input %q: %s", in, fa.HTML)
		assert.True(t, isContainer(fa.HTML), "input %q: %s", in, fa.HTML)
		assert.NotEmpty(t, fa.Source)
	}
}

func TestBalanced(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{in: "<div><div>x</div></div>", want: true},
		{in: "<div><p><div>x</div></p></div>", want: true},
		{in: "<div><br><p>x</p></div>", want: true},
		{in: "<div><p>x</div>", want: false},
		{in: "<div><div>x</div>", want: false},
		{in: "</div>", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, balanced(tt.in))
		})
	}
}

func TestExtract_RemovesActiveContent(t *testing.T) {
	fa := Extract(`Final Answer: <div class="response-container"><p onclick="steal()">9</p><script>alert(1)</script><a href="javascript:x()">more</a></div>`)
	assert.NotContains(t, fa.HTML, "script")
	assert.NotContains(t, fa.HTML, "onclick")
	assert.NotContains(t, fa.HTML, "javascript:")
	assert.Contains(t, fa.HTML, "<p>9</p>")
	assert.True(t, isContainer(fa.HTML))
}

func TestExtract_BrandPalette(t *testing.T) {
	fa := Extract("")
	assert.Contains(t, fa.HTML, "linear-gradient(135deg, #F25D27 0%, #19593B 100%)")

	fa = Extract("Final Answer: just text")
	assert.Contains(t, fa.HTML, "linear-gradient(135deg, #82BF45 0%, #19593B 100%)")
}

func TestRendererFault(t *testing.T) {
	r := New(config.Defaults().Brand).Renderer()
	fa := r.Fault(fault.KindLoopExhausted)
	assert.Contains(t, fa.HTML, "Incomplete Response")
	assert.Contains(t, fa.HTML, "I couldn&#39;t finish analysing")
	assert.Equal(t, fault.ToneCautionary, fa.Tone)
}

func TestPlaceholders(t *testing.T) {
	got := Placeholders(`<style>.a{color:red}</style><p>{total:,.0f} from {count} and {total}</p><p>{"json": 1}</p>`)
	assert.Equal(t, []string{"total", "count"}, got)
}

func TestResolve(t *testing.T) {
	dict := starlark.NewDict(2)
	require.NoError(t, dict.SetKey(starlark.String("Carol"), starlark.MakeInt(13300)))
	require.NoError(t, dict.SetKey(starlark.String("Alice"), starlark.MakeInt(10700)))

	tests := []struct {
		name       string
		html       string
		obs        *sandbox.Observation
		want       string
		unresolved []string
	}{
		{
			name: "no placeholders",
			html: "<p>9</p>",
			want: "<p>9</p>",
		},
		{
			name: "from bindings with spec",
			html: "<p>Total arrears: KES {total_arrears:,.0f}</p>",
			obs:  &sandbox.Observation{Bindings: map[string]starlark.Value{"total_arrears": starlark.Float(5800)}},
			want: "<p>Total arrears: KES 5,800</p>",
		},
		{
			name: "from mapping result",
			html: "<p>{Carol} and {Alice:,}</p>",
			obs:  &sandbox.Observation{Value: dict},
			want: "<p>13300 and 10,700</p>",
		},
		{
			name: "single name from scalar result",
			html: "<p>{active_count} active</p>",
			obs:  &sandbox.Observation{Value: starlark.MakeInt(9)},
			want: "<p>9 active</p>",
		},
		{
			name: "float without spec drops fraction",
			html: "<p>{x}</p>",
			obs:  &sandbox.Observation{Bindings: map[string]starlark.Value{"x": starlark.Float(12)}},
			want: "<p>12</p>",
		},
		{
			name: "values are escaped",
			html: "<p>{name}</p>",
			obs:  &sandbox.Observation{Bindings: map[string]starlark.Value{"name": starlark.String("<b>Bob</b>")}},
			want: "<p>&lt;b&gt;Bob&lt;/b&gt;</p>",
		},
		{
			name:       "scalar cannot fill two names",
			html:       "<p>{a} {b}</p>",
			obs:        &sandbox.Observation{Value: starlark.MakeInt(9)},
			unresolved: []string{"a", "b"},
		},
		{
			name:       "no observation",
			html:       "<p>{total}</p>",
			unresolved: []string{"total"},
		},
		{
			name:       "bad spec",
			html:       "<p>{n:q}</p>",
			obs:        &sandbox.Observation{Bindings: map[string]starlark.Value{"n": starlark.MakeInt(1)}},
			unresolved: []string{"n"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fa := Resolve(FinalAnswer{HTML: tt.html, Source: SourceMarker, Tone: fault.ToneNormal}, tt.obs)
			assert.Equal(t, tt.unresolved, fa.Unresolved)
			if tt.unresolved != nil {
				assert.Contains(t, fa.HTML, "Processing Error")
				assert.Equal(t, fault.ToneCautionary, fa.Tone)
				assert.Equal(t, SourceMarker, fa.Source)
				return
			}
			assert.Equal(t, tt.want, fa.HTML)
		})
	}
}

func TestMarkdown(t *testing.T) {
	md := Markdown(`<div class="response-container"><h3 style="color: red">Total</h3><p>There are <strong>12</strong> loans.</p></div>`)

	assert.Contains(t, md, "### Total")
	assert.Contains(t, md, "**12**")
	assert.NotContains(t, md, "style")
}
