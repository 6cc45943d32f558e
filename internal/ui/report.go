package ui

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"

	"starload/internal/pipeline"
)

func newTable(w io.Writer, header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetBorder(false)
	table.SetAutoWrapText(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	return table
}

// RenderReport writes one row per statement followed by the run outcome
func RenderReport(w io.Writer, r *pipeline.Report) {
	table := newTable(w, "#", "Stage", "Statement", "Rows", "Time", "Status")
	for _, res := range r.Statements {
		status := color.GreenString("ok")
		switch {
		case res.Err != nil:
			status = color.RedString("failed")
		case res.DryRun:
			status = color.CyanString("rendered")
		}
		rows, took := FormatRows(res.Rows), formatDuration(res.Duration)
		if res.DryRun {
			rows, took = "-", "-"
		}
		table.Append([]string{strconv.Itoa(res.Order), string(res.Stage), res.Name, rows, took, status})
	}
	table.Render()

	fmt.Fprintf(w, "\nRun %s on %s (tx=%s): %s in %s\n",
		r.RunID, r.Dialect, r.TxMode, FormatState(r.State), formatDuration(r.Duration))
	if r.JoinMisses > 0 {
		fmt.Fprintf(w, "%s %d NextSong events matched no staged song and were not loaded\n",
			ColorWarning("!"), r.JoinMisses)
	}
}

// RenderChecks writes the data-quality check results
func RenderChecks(w io.Writer, r *pipeline.CheckReport) {
	table := newTable(w, "Check", "Violations", "Result")
	for _, res := range r.Results {
		result := color.GreenString("pass")
		if !res.Passed() {
			result = color.RedString("FAIL")
		}
		table.Append([]string{res.Check.Name, FormatRows(res.Violations), result})
	}
	table.Render()

	failed := len(r.Failed())
	fmt.Fprintf(w, "\n%d/%d checks passed, %d join misses\n", len(r.Results)-failed, len(r.Results), r.JoinMisses)
}

// RenderCounts writes table row counts in the given order
func RenderCounts(w io.Writer, counts map[string]int64, order []string) {
	table := newTable(w, "Table", "Rows")
	table.SetColumnAlignment([]int{tablewriter.ALIGN_LEFT, tablewriter.ALIGN_RIGHT})
	for _, name := range order {
		n, ok := counts[name]
		if !ok {
			continue
		}
		table.Append([]string{name, FormatRows(n)})
	}
	table.Render()
}

// SourceSummary describes one listed source location
type SourceSummary struct {
	Name     string
	Location string
	Objects  int
	Bytes    int64
	Detail   string
	Err      error
}

// RenderSources writes what was found at each source location
func RenderSources(w io.Writer, sources []SourceSummary) {
	table := newTable(w, "Source", "Location", "Objects", "Bytes", "Detail")
	for _, s := range sources {
		detail := s.Detail
		objects, size := strconv.Itoa(s.Objects), FormatRows(s.Bytes)
		if s.Err != nil {
			detail = color.RedString(firstLine(s.Err.Error()))
			objects, size = "-", "-"
		}
		table.Append([]string{s.Name, s.Location, objects, size, detail})
	}
	table.Render()
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
