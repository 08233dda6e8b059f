package main

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// column describes one column of tabular CLI output. A zero widthMax leaves
// the column unconstrained; error and path columns set one so a single noisy
// job cannot blow out the terminal width.
type column struct {
	title    string
	align    text.Align
	widthMax int
}

func jobColumns() []column {
	return []column{
		{title: "ID", align: text.AlignRight},
		{title: "File", widthMax: 40},
		{title: "Status"},
		{title: "Retries", align: text.AlignRight},
		{title: "Created"},
		{title: "Last Error", widthMax: 48},
	}
}

func renderTable(columns []column, rows [][]string) string {
	if len(columns) == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, len(columns))
	for i, col := range columns {
		header[i] = col.title
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, len(columns))
		for i := range columns {
			r[i] = ""
			if i < len(row) {
				r[i] = row[i]
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, len(columns))
	for i, col := range columns {
		configs = append(configs, table.ColumnConfig{
			Number:      i + 1,
			Align:       col.align,
			AlignHeader: text.AlignLeft,
			WidthMax:    col.widthMax,
		})
	}
	tw.SetColumnConfigs(configs)

	return tw.Render()
}
