package commands

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	clitestutil "github.com/leapstack-labs/leapinsight/internal/cli/testutil"
	intconfig "github.com/leapstack-labs/leapinsight/internal/config"
	"github.com/leapstack-labs/leapinsight/internal/testutil"
)

func TestCalculateHealthScore(t *testing.T) {
	tests := []struct {
		name   string
		checks []HealthCheck
		want   int
	}{
		{
			name: "no checks returns 100",
			want: 100,
		},
		{
			name: "all passing returns 100",
			checks: []HealthCheck{
				{ID: "CF01", Status: StatusPass},
				{ID: "DT01", Status: StatusPass, Details: []string{"data"}},
			},
			want: 100,
		},
		{
			name: "warnings reduce score",
			checks: []HealthCheck{
				{ID: "DT02", Status: StatusWarn, Details: []string{"a", "b"}},
			},
			want: 80,
		},
		{
			name: "errors reduce score more",
			checks: []HealthCheck{
				{ID: "PR01", Status: StatusError},
			},
			want: 80,
		},
		{
			name: "errors count each detail",
			checks: []HealthCheck{
				{ID: "DT02", Status: StatusError, Details: []string{"a", "b"}},
			},
			want: 60,
		},
		{
			name: "many issues can reduce to 0",
			checks: []HealthCheck{
				{ID: "DT03", Status: StatusError, Details: make([]string, 20)},
			},
			want: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, calculateHealthScore(tt.checks))
		})
	}
}

func TestGenerateRecommendations(t *testing.T) {
	checks := []HealthCheck{
		{ID: "DT03", Status: StatusWarn, Fix: "fix columns"},
		{ID: "CF01", Status: StatusPass, Fix: "fix settings"},
		{ID: "PR01", Status: StatusError, Fix: "start the model"},
		{ID: "PR02", Status: StatusError, Fix: "start the model"},
		{ID: "DT02", Status: StatusWarn},
	}

	recs := generateRecommendations(checks)
	assert.Equal(t, []string{"start the model", "fix columns"}, recs)
}

func TestGenerateRecommendations_Capped(t *testing.T) {
	var checks []HealthCheck
	for _, fix := range []string{"a", "b", "c", "d", "e", "f", "g"} {
		checks = append(checks, HealthCheck{Status: StatusWarn, Fix: fix})
	}
	assert.Len(t, generateRecommendations(checks), 5)
}

func TestRunChecks(t *testing.T) {
	tests := []struct {
		name      string
		setup     func(t *testing.T, s *intconfig.Settings)
		wantIDs   []string
		wantState map[string]string
	}{
		{
			name: "healthy fixtures",
			setup: func(t *testing.T, s *intconfig.Settings) {
				s.Data.Dir = testutil.WriteLoanFixtures(t)
			},
			wantIDs: []string{"CF01", "DT01", "DT02", "DT03"},
			wantState: map[string]string{
				"CF01": StatusPass, "DT01": StatusPass, "DT02": StatusPass, "DT03": StatusPass,
			},
		},
		{
			name: "missing data directory",
			setup: func(t *testing.T, s *intconfig.Settings) {
				s.Data.Dir = filepath.Join(t.TempDir(), "nope")
			},
			wantIDs:   []string{"CF01", "DT01"},
			wantState: map[string]string{"DT01": StatusError},
		},
		{
			name: "one dataset missing",
			setup: func(t *testing.T, s *intconfig.Settings) {
				s.Data.Dir = testutil.WriteLoanFixtures(t)
				require.NoError(t, os.Remove(filepath.Join(s.Data.Dir, "clients.csv")))
			},
			wantIDs:   []string{"CF01", "DT01", "DT02", "DT03"},
			wantState: map[string]string{"DT02": StatusWarn},
		},
		{
			name: "sql tool and archive",
			setup: func(t *testing.T, s *intconfig.Settings) {
				s.Data.Dir = testutil.WriteLoanFixtures(t)
				s.Tools.SQL = true
				s.Conversation.Archive = filepath.Join(t.TempDir(), "history.db")
			},
			wantIDs:   []string{"CF01", "DT01", "DT02", "DT03", "PR02", "PR03"},
			wantState: map[string]string{"PR02": StatusPass, "PR03": StatusPass},
		},
		{
			name: "invalid settings",
			setup: func(t *testing.T, s *intconfig.Settings) {
				s.Data.Dir = testutil.WriteLoanFixtures(t)
				s.Log.Format = "xml"
			},
			wantIDs:   []string{"CF01", "DT01", "DT02", "DT03"},
			wantState: map[string]string{"CF01": StatusError},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := intconfig.Defaults()
			tt.setup(t, s)

			checks := runChecks(context.Background(), s, testutil.NewTestLogger(t), &DoctorOptions{SkipLLM: true})

			ids := make([]string, 0, len(checks))
			got := make(map[string]string)
			for _, c := range checks {
				ids = append(ids, c.ID)
				got[c.ID] = c.Status
			}
			assert.Equal(t, tt.wantIDs, ids)
			for id, status := range tt.wantState {
				assert.Equal(t, status, got[id], "check %s", id)
			}
		})
	}
}

func TestCheckLLM_Scripted(t *testing.T) {
	s := intconfig.Defaults()
	s.LLM.Provider = intconfig.ProviderScripted
	s.LLM.Script = filepath.Join(t.TempDir(), "missing.yaml")

	h := checkLLM(context.Background(), s, testutil.NewTestLogger(t))
	assert.Equal(t, StatusError, h.Status)
	assert.NotEmpty(t, h.Details)
}

func TestRenderDoctor(t *testing.T) {
	out := buildDoctorOutput([]HealthCheck{
		{ID: "CF01", Name: "Settings are valid", Group: groupConfig, Status: StatusPass},
		{ID: "DT02", Name: "Datasets are readable", Group: groupData, Status: StatusWarn,
			Details: []string{"clients: clients.csv is missing or unreadable"}, Fix: "Export the missing datasets"},
	})
	assert.Equal(t, 90, out.Score)
	assert.Equal(t, 1, out.IssueCount)

	t.Run("markdown", func(t *testing.T) {
		tr := clitestutil.NewTestRendererMarkdown()
		require.NoError(t, renderDoctorMarkdown(tr.Renderer, out))
		md := tr.Output()
		clitestutil.AssertValidMarkdown(t, md)
		clitestutil.AssertNoANSI(t, md)
		assert.Contains(t, md, "## Configuration")
		assert.Contains(t, md, "**[WARN]** DT02")
		assert.Contains(t, md, "**90/100**")
		assert.Contains(t, md, "1. Export the missing datasets")
	})

	t.Run("text", func(t *testing.T) {
		tr := clitestutil.NewTestRendererText()
		require.NoError(t, renderDoctorText(tr.Renderer, out))
		assert.Contains(t, tr.Output(), "Health Score: 90/100")
		assert.Contains(t, tr.Output(), "Data")
	})
}
