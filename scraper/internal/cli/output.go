package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"gopkg.in/yaml.v3"

	"github.com/bborgeswq/eproc-scraper-2.0/scraper/internal/audit"
	"github.com/bborgeswq/eproc-scraper-2.0/scraper/internal/engine"
	"github.com/bborgeswq/eproc-scraper-2.0/scraper/internal/models"
)

// Output formats.
const (
	FormatTable = "table"
	FormatJSON  = "json"
	FormatYAML  = "yaml"
)

var (
	successColor = text.Colors{text.FgGreen, text.Bold}
	errorColor   = text.Colors{text.FgRed, text.Bold}
	infoColor    = text.Colors{text.FgCyan}
	warnColor    = text.Colors{text.FgYellow}
)

func validFormat(f string) error {
	switch f {
	case FormatTable, FormatJSON, FormatYAML:
		return nil
	}
	return fmt.Errorf("unknown output format %q (want table, json or yaml)", f)
}

func success(w io.Writer, format string, a ...any) {
	fmt.Fprintln(w, successColor.Sprint("✓ "+fmt.Sprintf(format, a...)))
}

func failure(w io.Writer, format string, a ...any) {
	fmt.Fprintln(w, errorColor.Sprint("✗ "+fmt.Sprintf(format, a...)))
}

func info(w io.Writer, format string, a ...any) {
	fmt.Fprintln(w, infoColor.Sprint(fmt.Sprintf(format, a...)))
}

func warn(w io.Writer, format string, a ...any) {
	fmt.Fprintln(w, warnColor.Sprint("⚠ "+fmt.Sprintf(format, a...)))
}

// encode writes v as JSON or YAML. It reports false for the table format.
func encode(w io.Writer, format string, v any) (bool, error) {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return true, enc.Encode(v)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return true, err
		}
		return true, enc.Close()
	}
	return false, nil
}

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	return t
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}

func renderRuns(w io.Writer, format string, runs []*models.RunLog) error {
	if ok, err := encode(w, format, runs); ok {
		return err
	}
	if len(runs) == 0 {
		info(w, "No sync runs recorded")
		return nil
	}

	t := newTable(w)
	t.AppendHeader(table.Row{"ID", "Started", "Finished", "Status", "Added", "Removed", "Updated", "Errors", "Docs", "Pending"})
	for _, r := range runs {
		pending := ""
		if r.HasPending {
			pending = "yes"
		}
		t.AppendRow(table.Row{
			r.ID, formatTime(&r.StartedAt), formatTime(r.FinishedAt), statusText(r.Status),
			r.Added, r.Removed, r.Updated, r.Errors, r.DocumentsUploaded, pending,
		})
	}
	t.Render()
	return nil
}

func statusText(s models.RunStatus) string {
	switch s {
	case models.RunSuccess:
		return text.FgGreen.Sprint(s)
	case models.RunPartial:
		return text.FgYellow.Sprint(s)
	case models.RunError:
		return text.FgRed.Sprint(s)
	}
	return string(s)
}

func renderResult(w io.Writer, format string, res *engine.Result) error {
	if ok, err := encode(w, format, res); ok {
		return err
	}
	st := res.Stats
	switch res.Status {
	case models.RunSuccess:
		success(w, "Sync %s finished in %s", res.RunID, res.Duration.Round(time.Second))
	case models.RunPartial:
		warn(w, "Sync %s finished with %d errors in %s", res.RunID, st.Errors, res.Duration.Round(time.Second))
	default:
		failure(w, "Sync %s failed: %v", res.RunID, res.Err)
	}

	t := newTable(w)
	t.AppendHeader(table.Row{"Added", "Removed", "Updated", "Errors", "Events", "Docs uploaded", "Docs skipped", "Doc errors"})
	t.AppendRow(table.Row{st.Added, st.Removed, st.Updated, st.Errors, st.EventsStored, st.DocumentsUploaded, st.DocumentsSkipped, st.DocumentErrors})
	t.Render()

	if res.HasPending {
		info(w, "Process limit reached; remaining cases are picked up by the next run")
	}
	if res.RemovalsSuppressed {
		warn(w, "Listing came back empty; removals were skipped")
	}
	return nil
}

func renderAudit(w io.Writer, format string, rep *audit.Report) error {
	if ok, err := encode(w, format, rep); ok {
		return err
	}

	info(w, "Cases: %d  Events: %d  Documents: %d (%s)",
		rep.Totals.Cases, rep.Totals.Events, rep.Totals.Documents, humanize.Bytes(uint64(rep.Totals.Bytes)))

	sides := newTable(w)
	sides.AppendHeader(table.Row{"Side", "Cases"})
	for _, s := range []models.Side{models.SideActive, models.SidePassive, models.SideOther, models.SideUnknown} {
		sides.AppendRow(table.Row{s, rep.Sides[s]})
	}
	sides.Render()

	if len(rep.Cases) > 0 {
		t := newTable(w)
		t.AppendHeader(table.Row{"Case", "Side", "Class", "Parties", "Events", "Last event", "Docs", "Size", "No URL", "Missing"})
		for _, c := range rep.Cases {
			last := "-"
			if c.Events.Last != nil {
				last = strconv.Itoa(c.Events.Last.Seq) + " " + c.Events.Last.Description
			}
			missing := ""
			if n := len(c.MissingFields); n > 0 {
				missing = warnColor.Sprint(n)
			}
			t.AppendRow(table.Row{
				c.CaseID, c.Side, c.Class, c.Parties, c.Events.Total, last,
				c.Documents.Total, humanize.Bytes(uint64(c.Documents.Bytes)), c.Documents.WithoutStorageURL, missing,
			})
		}
		t.Render()
	}

	if len(rep.Runs) > 0 {
		info(w, "Recent runs:")
		return renderRuns(w, FormatTable, rep.Runs)
	}
	return nil
}
