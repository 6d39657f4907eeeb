package main

import (
	"github.com/jedib0t/go-pretty/v6/table"
)

// renderTable renders headers and string rows in the shared CLI style.
// Short rows are padded with empty cells.
func renderTable(headers []string, rows [][]string) string {
	if len(headers) == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, len(headers))
	for i, h := range headers {
		header[i] = h
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, len(headers))
		for i := range r {
			r[i] = ""
			if i < len(row) {
				r[i] = row[i]
			}
		}
		tw.AppendRow(r)
	}

	return tw.Render()
}

// fieldTable is the two-column layout shared by the status-style commands.
func fieldTable(rows [][]string) string {
	return renderTable([]string{"Field", "Value"}, rows)
}
