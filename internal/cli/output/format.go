package output

import (
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var titleCaser = cases.Title(language.English)

// Title capitalizes every word, e.g. "test case execution records" becomes
// "Test Case Execution Records".
func Title(s string) string {
	return titleCaser.String(s)
}

// FormatHeader returns a markdown heading.
func FormatHeader(level int, text string) string {
	if level < 1 {
		level = 1
	}
	return strings.Repeat("#", level) + " " + text
}

// FormatKeyValue returns a markdown list item with a bold key.
func FormatKeyValue(key, value string) string {
	return "- **" + key + "**: " + value
}

// Table is a header and rows of cells.
type Table struct {
	Header []string
	Rows   [][]string
	// Footer is shown under the rows in text and markdown modes.
	Footer []string
}

// Table writes t in the style of the effective mode: a boxed table for text,
// a pipe table for markdown and plain CSV for csv. In JSON and YAML modes
// commands encode their own values instead.
func (r *Renderer) Table(t Table) {
	tw := table.NewWriter()
	tw.SetOutputMirror(r.out)
	tw.AppendHeader(toRow(t.Header))
	for _, row := range t.Rows {
		tw.AppendRow(toRow(row))
	}

	switch r.EffectiveMode() {
	case ModeCSV:
		tw.RenderCSV()
	case ModeMarkdown:
		if len(t.Footer) > 0 {
			tw.AppendFooter(toRow(t.Footer))
		}
		tw.RenderMarkdown()
		r.Println("")
	default:
		if len(t.Footer) > 0 {
			tw.AppendFooter(toRow(t.Footer))
		}
		tw.SetStyle(table.StyleLight)
		tw.Render()
	}
}

func toRow(cells []string) table.Row {
	row := make(table.Row, len(cells))
	for i, c := range cells {
		row[i] = c
	}
	return row
}
