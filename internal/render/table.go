package render

import (
	"html"
	"strings"

	"github.com/getmentor/confluence-alert-action/internal/models"
)

const (
	// NoResultsHTML is rendered in place of a table when there are no rows
	NoResultsHTML = "<p><em>No results</em></p>"

	headerRowStyle = "background-color:#0052cc;color:white;"
	evenRowColor   = "#f4f5f7"
	oddRowColor    = "white"
)

// Escaper decides how cell and header text is written into the page
type Escaper interface {
	Escape(s string) string
}

// HTMLEscaper escapes markup characters so result values render as text
type HTMLEscaper struct{}

func (HTMLEscaper) Escape(s string) string {
	return html.EscapeString(s)
}

// RawEscaper writes values untouched. Values containing markup become part
// of the page.
type RawEscaper struct{}

func (RawEscaper) Escape(s string) string {
	return s
}

// EscaperFor returns the escaper for the HTML_ESCAPE_VALUES setting
func EscaperFor(escapeValues bool) Escaper {
	if escapeValues {
		return HTMLEscaper{}
	}
	return RawEscaper{}
}

// NormalizeRows builds a rectangular table. The first row's columns become
// the headers; later rows are projected onto them, with missing columns empty
// and extra columns dropped.
func NormalizeRows(rows []models.Row) models.Table {
	if len(rows) == 0 {
		return models.Table{}
	}

	headers := rows[0].Columns()
	table := models.Table{
		Headers: headers,
		Rows:    make([][]string, 0, len(rows)),
	}

	for _, row := range rows {
		cells := make([]string, len(headers))
		for i, header := range headers {
			cells[i], _ = row.Get(header)
		}
		table.Rows = append(table.Rows, cells)
	}

	return table
}

// RowColor returns the background of the data row at 1-based index i
func RowColor(i int) string {
	if i%2 == 0 {
		return evenRowColor
	}
	return oddRowColor
}

// RenderTable renders the table as a self-contained storage-format table
func (r *Renderer) RenderTable(table models.Table) string {
	if table.IsEmpty() {
		return NoResultsHTML
	}

	var b strings.Builder
	b.WriteString(`<table data-layout="wide" style="border-collapse:collapse;width:100%">`)
	b.WriteString("\n  <thead>\n    <tr style=\"" + headerRowStyle + "\">")
	for _, header := range table.Headers {
		b.WriteString("<th>")
		b.WriteString(r.escaper.Escape(header))
		b.WriteString("</th>")
	}
	b.WriteString("</tr>\n  </thead>\n  <tbody>")

	for i, row := range table.Rows {
		b.WriteString("\n    <tr style=\"background-color:")
		b.WriteString(RowColor(i + 1))
		b.WriteString("\">")
		for _, cell := range row {
			b.WriteString("<td>")
			b.WriteString(r.escaper.Escape(cell))
			b.WriteString("</td>")
		}
		b.WriteString("</tr>")
	}

	b.WriteString("\n  </tbody>\n</table>")
	return b.String()
}
