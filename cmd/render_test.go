package cmd

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/linksync/internal/domain"
	"github.com/jonesrussell/north-cloud/linksync/internal/jobs"
	"github.com/jonesrussell/north-cloud/linksync/internal/suggestion"
)

func TestRenderJobState(t *testing.T) {
	var buf bytes.Buffer
	err := renderJobState(&buf, jobs.State{
		Name:    "export",
		Outcome: jobs.OutcomeFailed,
		Error:   "export job superseded by a newer job",
		Result:  map[string]int{"written": 3},
	})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "Job export")
	assert.Contains(t, out, "superseded")
	assert.Contains(t, out, `"written": 3`)
}

func TestRenderImportResult_ListsErrors(t *testing.T) {
	var buf bytes.Buffer
	renderImportResult(&buf, &suggestion.Result{
		Total: 2, Valid: 1, Imported: 1, BatchID: "b-1",
		Errors: []string{"entry 2: keyword is required"},
	})

	out := buf.String()
	assert.Contains(t, out, "b-1")
	assert.Contains(t, out, "Rejected entries")
	assert.Contains(t, out, "keyword is required")
}

func TestRenderStats(t *testing.T) {
	var buf bytes.Buffer
	renderStats(&buf, statsReport{
		Content: map[string]int{"shop": 4, "local": 9},
		Links:   map[domain.LinkStatus]int{domain.StatusActive: 2},
		Health:  domain.HealthStats{Total: 5, Broken: 1},
	})

	out := buf.String()
	assert.Less(t, strings.Index(out, "local"), strings.Index(out, "shop"), "origins sorted")
	assert.Contains(t, out, "manual_override")
	assert.Contains(t, out, "Link health")
}

func TestReadPayload(t *testing.T) {
	data, err := readPayload(strings.NewReader(`[{"keyword":"x"}]`), "-")
	require.NoError(t, err)
	assert.Equal(t, `[{"keyword":"x"}]`, string(data))

	_, err = readPayload(nil, "/does/not/exist.json")
	assert.Error(t, err)
}

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"serve", "run", "import", "stats", "version"} {
		assert.True(t, names[want], want)
	}
}

func TestVersionCommand(t *testing.T) {
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetArgs([]string{"version"})
	t.Cleanup(func() { rootCmd.SetArgs(nil); rootCmd.SetOut(nil) })

	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, buf.String(), "linksync version dev")
}
