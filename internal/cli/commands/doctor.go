package commands

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/leapstack-labs/leapinsight/internal/cli/config"
	"github.com/leapstack-labs/leapinsight/internal/cli/output"
	intconfig "github.com/leapstack-labs/leapinsight/internal/config"
	"github.com/leapstack-labs/leapinsight/internal/llm"
	"github.com/leapstack-labs/leapinsight/internal/sqltool"
	"github.com/spf13/cobra"
)

// Check statuses.
const (
	StatusPass  = "pass"
	StatusWarn  = "warn"
	StatusError = "error"
)

// Check groups.
const (
	groupConfig    = "configuration"
	groupData      = "data"
	groupProviders = "providers"
)

// pingTimeout bounds the llm reachability check.
const pingTimeout = 5 * time.Second

// DoctorOptions holds options for the doctor command.
type DoctorOptions struct {
	SkipLLM bool
}

// NewDoctorCommand creates the doctor command.
func NewDoctorCommand() *cobra.Command {
	opts := &DoctorOptions{}
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check that the assistant is ready to answer",
		Long: `Check the configuration, the datasets and the providers the assistant
depends on, and report what needs fixing.

The report includes:
- Configuration checks (config file, settings)
- Data checks (data directory, each dataset and its documented columns)
- Provider checks (language model, SQL tool, conversation archive)
- Health score (0-100)

Output adapts to environment:
  - Terminal: Styled output with colors
  - Piped/Scripted: Markdown format
  - JSON: Machine-readable format`,
		Example: `  # Run health check
  leapinsight doctor

  # Skip the language model ping
  leapinsight doctor --skip-llm -o json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDoctor(cmd, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.SkipLLM, "skip-llm", false, "Do not contact the language model")

	return cmd
}

// DoctorOutput is the JSON output for the doctor command.
type DoctorOutput struct {
	ConfigFile      string        `json:"config_file,omitempty"`
	HealthChecks    []HealthCheck `json:"health_checks"`
	Score           int           `json:"score"`
	Recommendations []string      `json:"recommendations"`
	IssueCount      int           `json:"issue_count"`
}

// HealthCheck represents a single health check result.
type HealthCheck struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Group   string   `json:"group"`
	Status  string   `json:"status"`
	Details []string `json:"details,omitempty"`
	// Fix is the recommendation shown when the check does not pass.
	Fix string `json:"-"`
}

func (h HealthCheck) issues() int {
	if h.Status == StatusPass {
		return 0
	}
	if len(h.Details) == 0 {
		return 1
	}
	return len(h.Details)
}

func runDoctor(cmd *cobra.Command, opts *DoctorOptions) error {
	cc, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	checks := runChecks(cmd.Context(), cc.Settings, cc.Logger, opts)
	out := buildDoctorOutput(checks)
	out.ConfigFile = config.GetConfigFileUsed()

	switch cc.Renderer.Mode() {
	case output.ModeJSON:
		return cc.Renderer.JSON(out)
	case output.ModeMarkdown:
		return renderDoctorMarkdown(cc.Renderer, out)
	default:
		return renderDoctorText(cc.Renderer, out)
	}
}

func runChecks(ctx context.Context, s *intconfig.Settings, logger *slog.Logger, opts *DoctorOptions) []HealthCheck {
	checks := []HealthCheck{checkSettings(s)}

	dataCheck := HealthCheck{ID: "DT01", Name: "Data directory", Group: groupData, Status: StatusPass,
		Fix: "Point data.dir or --data-dir at the directory holding the CSV files"}
	data, err := OpenData(ctx, s, logger)
	if err != nil {
		dataCheck.Status = StatusError
		dataCheck.Details = []string{err.Error()}
		checks = append(checks, dataCheck)
	} else {
		defer func() { _ = data.Close() }()
		dataCheck.Details = []string{s.Data.Dir}
		checks = append(checks, dataCheck, checkDatasets(ctx, data), checkColumns(ctx, data))
	}

	if !opts.SkipLLM {
		checks = append(checks, checkLLM(ctx, s, logger))
	}
	if s.Tools.SQL && data != nil {
		checks = append(checks, checkSQLTool(ctx, data))
	}
	if s.Conversation.Archive != "" {
		checks = append(checks, checkArchive(s.Conversation.Archive, logger))
	}
	return checks
}

func checkSettings(s *intconfig.Settings) HealthCheck {
	h := HealthCheck{ID: "CF01", Name: "Settings are valid", Group: groupConfig, Status: StatusPass,
		Fix: "Fix the reported settings in leapinsight.yaml"}
	if err := config.Validate(s); err != nil {
		h.Status = StatusError
		h.Details = []string{err.Error()}
	}
	return h
}

func checkDatasets(ctx context.Context, data *Data) HealthCheck {
	h := HealthCheck{ID: "DT02", Name: "Datasets are readable", Group: groupData, Status: StatusPass,
		Fix: "Export the missing datasets into the data directory"}
	for _, d := range data.Catalog.Datasets() {
		if _, err := data.Accessor.Read(ctx, d.Name); err != nil {
			h.Details = append(h.Details, fmt.Sprintf("%s: %s is missing or unreadable", d.Name, d.File))
		}
	}
	switch {
	case len(h.Details) == len(data.Catalog.Datasets()):
		h.Status = StatusError
	case len(h.Details) > 0:
		h.Status = StatusWarn
	}
	return h
}

func checkColumns(ctx context.Context, data *Data) HealthCheck {
	h := HealthCheck{ID: "DT03", Name: "Documented columns exist", Group: groupData, Status: StatusPass,
		Fix: "Update the column documentation to match the exported files"}
	for _, d := range data.Catalog.Datasets() {
		df, err := data.Accessor.Read(ctx, d.Name)
		if err != nil {
			continue
		}
		for _, c := range d.Columns {
			if !df.HasColumn(c.Name) {
				h.Details = append(h.Details, fmt.Sprintf("%s.%s is documented but not present", d.Name, c.Name))
			}
		}
	}
	if len(h.Details) > 0 {
		h.Status = StatusWarn
	}
	return h
}

func checkLLM(ctx context.Context, s *intconfig.Settings, logger *slog.Logger) HealthCheck {
	h := HealthCheck{ID: "PR01", Name: "Language model is reachable", Group: groupProviders, Status: StatusPass,
		Fix: "Start the model server or correct llm.url and llm.model"}
	completer, err := llm.FromSettings(s, logger)
	if err != nil {
		h.Status = StatusError
		h.Details = []string{err.Error()}
		return h
	}
	p, ok := completer.(llm.Pinger)
	if !ok {
		h.Details = []string{s.LLM.Provider + " provider needs no connection"}
		return h
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := p.Ping(ctx); err != nil {
		h.Status = StatusError
		h.Details = []string{fmt.Sprintf("%s at %s: %v", s.LLM.Model, s.LLM.URL, err)}
	}
	return h
}

func checkSQLTool(ctx context.Context, data *Data) HealthCheck {
	h := HealthCheck{ID: "PR02", Name: "SQL tool loads the datasets", Group: groupProviders, Status: StatusPass,
		Fix: "Disable tools.sql or fix the datasets DuckDB cannot read"}
	tool, err := sqltool.Open(ctx, data.Catalog)
	if err != nil {
		h.Status = StatusError
		h.Details = []string{err.Error()}
		return h
	}
	defer func() { _ = tool.Close() }()
	loaded := make(map[string]bool)
	for _, name := range tool.Tables() {
		loaded[name] = true
	}
	for _, name := range data.Catalog.Names() {
		if !loaded[name] {
			h.Details = append(h.Details, name+" is not queryable")
		}
	}
	if len(h.Details) > 0 {
		h.Status = StatusWarn
	}
	return h
}

func checkArchive(path string, logger *slog.Logger) HealthCheck {
	h := HealthCheck{ID: "PR03", Name: "Conversation archive opens", Group: groupProviders, Status: StatusPass,
		Fix: "Check that conversation.archive is a writable path"}
	archive, err := openArchive(path, logger)
	if err != nil {
		h.Status = StatusError
		h.Details = []string{err.Error()}
		return h
	}
	defer func() { _ = archive.Close() }()
	if v, err := archive.Version(); err == nil {
		h.Details = []string{fmt.Sprintf("%s (schema version %d)", path, v)}
	}
	return h
}

func buildDoctorOutput(checks []HealthCheck) *DoctorOutput {
	out := &DoctorOutput{HealthChecks: checks, Recommendations: []string{}}
	for _, c := range checks {
		out.IssueCount += c.issues()
	}
	out.Score = calculateHealthScore(checks)
	out.Recommendations = generateRecommendations(checks)
	return out
}

// calculateHealthScore computes a health score from 0-100. Errors weigh
// twice as much as warnings.
func calculateHealthScore(checks []HealthCheck) int {
	const penalty = 10.0
	score := 100.0
	for _, check := range checks {
		switch check.Status {
		case StatusError:
			score -= float64(check.issues()) * penalty * 2
		case StatusWarn:
			score -= float64(check.issues()) * penalty
		}
	}
	if score < 0 {
		score = 0
	}
	return int(score)
}

// generateRecommendations lists the fixes of failing checks, errors first.
func generateRecommendations(checks []HealthCheck) []string {
	recommendations := []string{}
	seen := make(map[string]bool)
	for _, status := range []string{StatusError, StatusWarn} {
		for _, check := range checks {
			if check.Status != status || check.Fix == "" || seen[check.Fix] {
				continue
			}
			recommendations = append(recommendations, check.Fix)
			seen[check.Fix] = true
		}
	}
	if len(recommendations) > 5 {
		recommendations = recommendations[:5]
	}
	return recommendations
}

func renderDoctorText(r *output.Renderer, out *DoctorOutput) error {
	styles := r.Styles()

	r.Println("")
	r.Println(styles.Header.Render("LeapInsight Health Report"))
	r.Println(styles.Muted.Render(strings.Repeat("=", 55)))
	if out.ConfigFile != "" {
		r.Println(styles.Muted.Render("   Config: " + out.ConfigFile))
	}
	r.Println("")

	currentGroup := ""
	titleCaser := cases.Title(language.English)
	for _, check := range out.HealthChecks {
		if check.Group != currentGroup {
			currentGroup = check.Group
			r.Println(styles.Bold.Render("   " + titleCaser.String(currentGroup)))
			r.Println(styles.Muted.Render("   " + strings.Repeat("-", 40)))
		}

		icon := styles.Success.Render("✓")
		switch check.Status {
		case StatusWarn:
			icon = styles.Warning.Render("!")
		case StatusError:
			icon = styles.Error.Render("✗")
		}
		r.Printf("   %s %s: %s\n", icon, check.ID, check.Name)

		for i, detail := range check.Details {
			if i >= 3 {
				r.Println(styles.Muted.Render(fmt.Sprintf("       ... and %d more", len(check.Details)-3)))
				break
			}
			r.Println(styles.Muted.Render("       - " + detail))
		}
	}
	r.Println("")

	r.Println(styles.Muted.Render(strings.Repeat("=", 55)))
	scoreStyle := styles.Success
	if out.Score < 70 {
		scoreStyle = styles.Warning
	}
	if out.Score < 50 {
		scoreStyle = styles.Error
	}
	r.Printf("   Health Score: %s\n", scoreStyle.Render(fmt.Sprintf("%d/100", out.Score)))
	r.Println("")

	if len(out.Recommendations) > 0 {
		r.Println(styles.Header.Render("Recommendations"))
		for i, rec := range out.Recommendations {
			r.Printf("   %d. %s\n", i+1, rec)
		}
		r.Println("")
	}
	return nil
}

func renderDoctorMarkdown(r *output.Renderer, out *DoctorOutput) error {
	r.Println(output.FormatHeader(1, "LeapInsight Health Report"))
	r.Println("")
	if out.ConfigFile != "" {
		r.Println(output.FormatKeyValue("Config", out.ConfigFile))
		r.Println("")
	}

	currentGroup := ""
	titleCaser := cases.Title(language.English)
	for _, check := range out.HealthChecks {
		if check.Group != currentGroup {
			currentGroup = check.Group
			r.Println(output.FormatHeader(2, titleCaser.String(currentGroup)))
			r.Println("")
		}
		r.Printf("- **[%s]** %s: %s\n", strings.ToUpper(check.Status), check.ID, check.Name)
		for _, detail := range check.Details {
			r.Printf("  - %s\n", detail)
		}
	}
	r.Println("")

	r.Println(output.FormatHeader(2, "Health Score"))
	r.Println("")
	r.Printf("**%d/100**\n", out.Score)
	r.Println("")

	if len(out.Recommendations) > 0 {
		r.Println(output.FormatHeader(2, "Recommendations"))
		r.Println("")
		for i, rec := range out.Recommendations {
			r.Printf("%d. %s\n", i+1, rec)
		}
		r.Println("")
	}
	return nil
}
