package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/jonesrussell/north-cloud/linksync/internal/domain"
	"github.com/jonesrussell/north-cloud/linksync/internal/jobs"
	"github.com/jonesrussell/north-cloud/linksync/internal/suggestion"
)

var linkStatusOrder = []domain.LinkStatus{
	domain.StatusPending, domain.StatusApproved, domain.StatusActive,
	domain.StatusUserDeleted, domain.StatusManualOverride,
}

func newTable(w io.Writer, title string) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.SetTitle(title)
	return t
}

func renderJobState(w io.Writer, s jobs.State) error {
	t := newTable(w, "Job "+s.Name)
	t.AppendRow(table.Row{"Outcome", s.Outcome})
	t.AppendRow(table.Row{"Duration", s.Duration})
	if s.Error != "" {
		t.AppendRow(table.Row{"Error", s.Error})
	}
	t.Render()

	if s.Result == nil {
		return nil
	}
	out, err := json.MarshalIndent(s.Result, "", "  ")
	if err != nil {
		return fmt.Errorf("encode job result: %w", err)
	}
	_, err = fmt.Fprintf(w, "%s\n", out)
	return err
}

func renderImportResult(w io.Writer, res *suggestion.Result) {
	t := newTable(w, "Suggestion import")
	t.AppendRow(table.Row{"Batch", res.BatchID})
	t.AppendRow(table.Row{"Entries", res.Total})
	t.AppendRow(table.Row{"Valid", res.Valid})
	t.AppendRow(table.Row{"Imported", res.Imported})
	t.Render()

	if len(res.Errors) == 0 {
		return
	}
	errs := newTable(w, "Rejected entries")
	errs.AppendHeader(table.Row{"#", "Error"})
	for i, e := range res.Errors {
		errs.AppendRow(table.Row{i + 1, e})
	}
	errs.Render()
}

func renderStats(w io.Writer, r statsReport) {
	content := newTable(w, "Content records")
	content.AppendHeader(table.Row{"Origin", "Records"})
	origins := make([]string, 0, len(r.Content))
	for o := range r.Content {
		origins = append(origins, o)
	}
	sort.Strings(origins)
	for _, o := range origins {
		content.AppendRow(table.Row{o, r.Content[o]})
	}
	content.Render()

	links := newTable(w, "Links")
	links.AppendHeader(table.Row{"Status", "Count"})
	for _, s := range linkStatusOrder {
		links.AppendRow(table.Row{s, r.Links[s]})
	}
	links.Render()

	h := r.Health
	health := newTable(w, "Link health")
	health.AppendHeader(table.Row{"Total", "Checked", "Pending", "OK", "Broken", "Redirect", "Noindex", "Internal", "External", "Nofollow"})
	health.AppendRow(table.Row{h.Total, h.Checked, h.Pending, h.OK, h.Broken, h.Redirect, h.Noindex, h.Internal, h.External, h.Nofollow})
	health.Render()
}
