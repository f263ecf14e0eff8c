package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"gopkg.in/yaml.v3"

	"github.com/xkilldash9x/refintel/api/schemas"
	"github.com/xkilldash9x/refintel/internal/charts"
)

// Output formats accepted by --format.
const (
	FormatTable    = "table"
	FormatMarkdown = "markdown"
	FormatJSON     = "json"
	FormatYAML     = "yaml"
)

func validFormat(f string) error {
	switch f {
	case FormatTable, FormatMarkdown, FormatJSON, FormatYAML:
		return nil
	}
	return fmt.Errorf("unknown output format %q (want table, markdown, json or yaml)", f)
}

// reportDoc is the serialized shape of one run for json and yaml output.
type reportDoc struct {
	RunID         string               `json:"run_id" yaml:"run_id"`
	Source        string               `json:"source,omitempty" yaml:"source,omitempty"`
	ConfigVersion string               `json:"config_version,omitempty" yaml:"config_version,omitempty"`
	AsOf          *time.Time           `json:"as_of,omitempty" yaml:"as_of,omitempty"`
	Stats         *schemas.IngestStats `json:"stats,omitempty" yaml:"stats,omitempty"`
	Artifacts     []schemas.Artifact   `json:"artifacts" yaml:"artifacts"`
	Charts        []charts.ChartSpec   `json:"charts,omitempty" yaml:"charts,omitempty"`
	Warnings      []schemas.Warning    `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

func docFromResult(r *schemas.RunResult) reportDoc {
	asOf, stats := r.AsOf, r.Stats
	return reportDoc{
		RunID:         r.RunID,
		Source:        r.Source,
		ConfigVersion: r.ConfigVersion,
		AsOf:          &asOf,
		Stats:         &stats,
		Artifacts:     r.Artifacts,
		Warnings:      r.Warnings,
	}
}

// renderDoc writes one run in the requested format.
func renderDoc(w io.Writer, doc reportDoc, format string) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(doc)
	case FormatTable, FormatMarkdown:
		return renderTables(w, doc, format == FormatMarkdown)
	default:
		return validFormat(format)
	}
}

func renderTables(w io.Writer, doc reportDoc, markdown bool) error {
	header := fmt.Sprintf("Run %s", doc.RunID)
	if doc.Source != "" {
		header += " (" + doc.Source + ")"
	}
	if _, err := fmt.Fprintln(w, header); err != nil {
		return err
	}
	if doc.Stats != nil {
		fmt.Fprintf(w, "records: %d raw, %d invalid, %d unresolved, %d duplicate, %d valid\n",
			doc.Stats.RawRecords, doc.Stats.InvalidRecords, doc.Stats.UnresolvedRecords,
			doc.Stats.DuplicateRecords, doc.Stats.ValidRecords())
	}

	for _, a := range doc.Artifacts {
		fmt.Fprintln(w)
		fmt.Fprintln(w, renderTable(fmt.Sprintf("%s %s", a.ID, a.Title), a.Main, markdown))
		for _, extra := range a.Extras {
			fmt.Fprintln(w, renderTable(extra.Name, extra, markdown))
		}
		if len(a.Summary) > 0 {
			fmt.Fprintln(w, summaryLine(a.Summary))
		}
	}

	if len(doc.Warnings) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, renderWarnings(doc.Warnings, markdown))
	}
	return nil
}

func renderTable(title string, t schemas.Table, markdown bool) string {
	tw := table.NewWriter()
	if !markdown {
		tw.SetStyle(table.StyleLight)
		tw.SetTitle(title)
	}

	head := make(table.Row, len(t.Columns))
	configs := make([]table.ColumnConfig, 0, len(t.Columns))
	for i, c := range t.Columns {
		head[i] = c.Name
		switch c.Type {
		case schemas.ColumnInt, schemas.ColumnFloat:
			configs = append(configs, table.ColumnConfig{Number: i + 1, Align: text.AlignRight})
		}
	}
	tw.AppendHeader(head)
	tw.SetColumnConfigs(configs)

	for _, r := range t.Rows {
		row := make(table.Row, len(r))
		for i, cell := range r {
			row[i] = formatCell(cell)
		}
		tw.AppendRow(row)
	}

	if markdown {
		return "### " + title + "\n\n" + tw.RenderMarkdown()
	}
	return tw.Render()
}

func formatCell(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case float64:
		return fmt.Sprintf("%.2f", x)
	case time.Time:
		return x.Format("2006-01-02")
	default:
		return fmt.Sprint(x)
	}
}

func summaryLine(summary map[string]float64) string {
	keys := make([]string, 0, len(summary))
	for k := range summary {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%.4g", k, summary[k])
	}
	return "summary: " + strings.Join(parts, " ")
}

func renderWarnings(warnings []schemas.Warning, markdown bool) string {
	t := schemas.NewTable("warnings",
		schemas.Column{Name: "kind", Type: schemas.ColumnString},
		schemas.Column{Name: "record", Type: schemas.ColumnInt},
		schemas.Column{Name: "field", Type: schemas.ColumnString},
		schemas.Column{Name: "raw", Type: schemas.ColumnString},
		schemas.Column{Name: "message", Type: schemas.ColumnString},
	)
	for _, wn := range warnings {
		t.MustAddRow(string(wn.Kind), wn.RecordIndex, wn.Field, wn.Raw, wn.Message)
	}
	return renderTable(fmt.Sprintf("Warnings (%d)", len(warnings)), t, markdown)
}
