// Package answer turns the model's final transcript text into a safe,
// balanced HTML fragment.
//
// Extraction is total: every input, including an empty one, yields a
// fragment wrapped in a single response container.
package answer

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"

	"github.com/leapstack-labs/leapinsight/internal/config"
	"github.com/leapstack-labs/leapinsight/internal/fault"
	"github.com/leapstack-labs/leapinsight/internal/sandbox"
)

// Source records which extraction path produced an answer.
type Source string

// Extraction sources.
const (
	SourceMarker        Source = "marker"
	SourceTagSpan       Source = "tag_span"
	SourceAnalysisError Source = "analysis_error"
	SourcePlainText     Source = "plain_text"
	SourceFallback      Source = "fallback"
)

// FinalAnswer is the displayable result of one question.
type FinalAnswer struct {
	HTML   string
	Source Source
	Tone   fault.Tone
	// Unresolved lists placeholder names that could not be filled in.
	Unresolved []string
}

var (
	finalMarker = regexp.MustCompile(`(?i)Final\s+Answer\s*:`)
	fenceLine   = regexp.MustCompile("(?m)^[ \t]*```[A-Za-z0-9_-]*[ \t]*$\n?")
	openTag     = regexp.MustCompile(`<[A-Za-z][A-Za-z0-9-]*[\s/>]`)
	markers     = []string{"Action Input:", "Final Answer:", "Thought:", "Action:", "Observation:"}
)

// Extractor extracts answers and renders fallback fragments.
type Extractor struct {
	r *Renderer
}

// New creates an extractor using brand for synthesized fragments.
func New(brand config.BrandConfig) *Extractor {
	return &Extractor{r: NewRenderer(brand)}
}

var defaultExtractor = New(config.Defaults().Brand)

// Extract uses the default brand palette.
func Extract(transcript string) FinalAnswer {
	return defaultExtractor.Extract(transcript)
}

// Renderer returns the fragment renderer.
func (e *Extractor) Renderer() *Renderer { return e.r }

// Extract finds the final answer in transcript.
func (e *Extractor) Extract(transcript string) FinalAnswer {
	if locs := finalMarker.FindAllStringIndex(transcript, -1); len(locs) > 0 {
		candidate := stripFences(transcript[locs[len(locs)-1][1]:])
		if loc := openTag.FindStringIndex(candidate); loc != nil {
			if frag, ok := normalize(candidate[loc[0]:]); ok {
				return FinalAnswer{HTML: frag, Source: SourceMarker, Tone: fault.ToneNormal}
			}
		}
		if text := plainText(candidate); text != "" {
			return FinalAnswer{HTML: e.r.Card(plainTextTitle, text, fault.ToneNormal), Source: SourceMarker, Tone: fault.ToneNormal}
		}
		// An empty answer after the marker falls through to the
		// transcript-wide fallbacks below.
		transcript = transcript[:locs[len(locs)-1][0]]
	}

	if span, ok := tagSpan(transcript); ok {
		if frag, ok := normalize(span); ok {
			return FinalAnswer{HTML: frag, Source: SourceTagSpan, Tone: fault.ToneNormal}
		}
	}
	if reportsError(transcript) {
		return FinalAnswer{
			HTML:   e.r.Card(titles[fault.KindSyntax], analysisErrorBody, fault.ToneCautionary),
			Source: SourceAnalysisError,
			Tone:   fault.ToneCautionary,
		}
	}
	if text := plainText(stripFences(transcript)); text != "" {
		return FinalAnswer{
			HTML:   e.r.Card(plainTextTitle, "I found some data: "+text, fault.ToneNormal),
			Source: SourcePlainText,
			Tone:   fault.ToneNormal,
		}
	}
	return FinalAnswer{
		HTML:   e.r.Card(titles[fault.KindCompute], apologyBody, fault.ToneCautionary),
		Source: SourceFallback,
		Tone:   fault.ToneCautionary,
	}
}

// normalize trims, balances and wraps a fragment that starts at a tag.
func normalize(fragment string) (string, bool) {
	fragment = removeMarkers(trimTrailing(fragment))
	fragment = strings.TrimSpace(fragment)
	if fragment == "" {
		return "", false
	}
	if !balanced(fragment) {
		repaired, err := repair(fragment)
		if err != nil || strings.TrimSpace(repaired) == "" {
			return "", false
		}
		fragment = repaired
	}
	if unsafe(fragment) {
		scrubbed, err := scrub(fragment)
		if err != nil || strings.TrimSpace(scrubbed) == "" {
			return "", false
		}
		fragment = scrubbed
	}
	if !isContainer(fragment) {
		fragment = `<div class="` + ContainerClass + `">` + fragment + `</div>`
	}
	if !balanced(fragment) || !isContainer(fragment) {
		return "", false
	}
	return fragment, true
}

func stripFences(s string) string {
	s = fenceLine.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, "```", "")
	return strings.Trim(strings.TrimSpace(s), "`")
}

// tagSpan returns the text from the first tag to the last '>'.
func tagSpan(s string) (string, bool) {
	loc := openTag.FindStringIndex(s)
	if loc == nil {
		return "", false
	}
	end := strings.LastIndex(s, ">")
	if end < loc[0] {
		return "", false
	}
	return s[loc[0] : end+1], true
}

func reportsError(s string) bool {
	if strings.Contains(s, sandbox.ErrorPrefix) || strings.Contains(s, strings.TrimSpace(sandbox.ErrorPrefix)) {
		return true
	}
	for _, k := range []fault.Kind{
		fault.KindSyntax, fault.KindName, fault.KindCompute, fault.KindDatasetUnavailable,
		fault.KindTimeout, fault.KindSQL,
	} {
		if strings.Contains(s, fault.Message(k)) {
			return true
		}
	}
	return false
}

// plainText strips markers and tags residue, leaving escaped-on-render text.
func plainText(s string) string {
	s = removeMarkers(s)
	s = html.UnescapeString(s)
	return strings.Join(strings.Fields(s), " ")
}

func removeMarkers(s string) string {
	for _, m := range markers {
		s = strings.ReplaceAll(s, m, "")
	}
	return s
}
