package answer

import (
	"html/template"
	"strings"

	"github.com/leapstack-labs/leapinsight/internal/config"
	"github.com/leapstack-labs/leapinsight/internal/fault"
)

// ContainerClass is the class of the element every answer is wrapped in.
const ContainerClass = "response-container"

const cardTemplate = `<div class="response-container"><div style="background: linear-gradient(135deg, {{.From}} 0%, {{.To}} 100%); color: white; padding: 20px; border-radius: 8px; margin: 10px 0; ` +
	`{{if .Cautionary}}box-shadow: 0 4px 15px rgba(242, 93, 39, 0.3);{{else}}box-shadow: 0 4px 15px rgba(130, 191, 69, 0.3);{{end}} border-left: 5px solid {{.To}};">` +
	`<h3 style="margin: 0 0 10px 0; font-size: 1.3rem; font-weight: 700;">{{.Title}}</h3>` +
	`<p style="margin: 0; line-height: 1.6; font-size: 1rem;">{{.Body}}</p></div></div>`

var titles = map[fault.Kind]string{
	fault.KindSyntax:             "Analysis Error",
	fault.KindName:               "Data Field Not Found",
	fault.KindCompute:            "Processing Error",
	fault.KindDatasetUnavailable: "Data Unavailable",
	fault.KindTimeout:            "Request Timeout",
	fault.KindLoopExhausted:      "Incomplete Response",
	fault.KindParse:              "Processing Error",
	fault.KindInvalidQuery:       "Invalid Question",
	fault.KindQueryTooLong:       "Question Too Complex",
	fault.KindSQL:                "Query Error",
}

const (
	analysisErrorBody = "I encountered an issue while analyzing the data. Please try rephrasing your question or ask about a different aspect of the loan portfolio."
	apologyBody       = "I'm having trouble processing your request. Please try again."
	plainTextTitle    = "Analysis Complete"
)

// Renderer builds answer fragments in the brand palette.
type Renderer struct {
	brand config.BrandConfig
	tmpl  *template.Template
}

// NewRenderer creates a renderer for brand.
func NewRenderer(brand config.BrandConfig) *Renderer {
	return &Renderer{
		brand: brand,
		tmpl:  template.Must(template.New("card").Parse(cardTemplate)),
	}
}

type card struct {
	From, To   string
	Title      string
	Body       string
	Cautionary bool
}

// Card renders a titled message. Title and body are escaped.
func (r *Renderer) Card(title, body string, tone fault.Tone) string {
	c := card{From: r.brand.Success, To: r.brand.Dark, Title: title, Body: body}
	if tone == fault.ToneCautionary {
		c.From, c.Cautionary = r.brand.Primary, true
	}
	var sb strings.Builder
	if err := r.tmpl.Execute(&sb, c); err != nil {
		// The template is static; only a writer failure can get here.
		return `<div class="response-container"><p>` + template.HTMLEscapeString(body) + `</p></div>`
	}
	return sb.String()
}

// Fault renders the fixed message for k.
func (r *Renderer) Fault(k fault.Kind) FinalAnswer {
	title, ok := titles[k]
	if !ok {
		title = titles[fault.KindParse]
	}
	return FinalAnswer{
		HTML:   r.Card(title, fault.Message(k), fault.ToneCautionary),
		Source: SourceFallback,
		Tone:   fault.ToneCautionary,
	}
}

// Notice renders an informational message.
func (r *Renderer) Notice(title, body string) string {
	return r.Card(title, body, fault.ToneNormal)
}
