package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"go.yaml.in/yaml/v3"

	"github.com/koustreak/ExprDB/internal/catalog"
	"github.com/koustreak/ExprDB/internal/errs"
	"github.com/koustreak/ExprDB/internal/query"
	"github.com/koustreak/ExprDB/internal/replicate"
)

const nullText = "NULL"

func renderSchema(w io.Writer, snap catalog.Snapshot, format string) error {
	switch format {
	case "json":
		return renderJSON(w, snap)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(snap); err != nil {
			return err
		}
		return enc.Close()
	case "table", "":
	default:
		return unknownFormat(format, "table", "json", "yaml")
	}

	fmt.Fprintf(w, "dataset %s (created %s)\n", snap.DatasetID, snap.CreatedAt.Format("2006-01-02 15:04:05Z07:00"))

	t := newTable(w)
	t.AppendHeader(table.Row{"table", "kind", "category", "columns"})
	for _, tbl := range snap.Tables {
		cols := make([]string, len(tbl.Columns))
		for i, c := range tbl.Columns {
			cols[i] = c.Name + ":" + c.Type.String()
		}
		t.AppendRow(table.Row{tbl.Name, tbl.Kind.String(), tbl.Category, strings.Join(cols, ", ")})
	}
	t.Render()
	return nil
}

func renderTableData(w io.Writer, td *query.TableData, format string) error {
	switch format {
	case "json":
		return renderJSON(w, td)
	case "text":
		return renderJSON(w, td.Text())
	case "table", "":
	default:
		return unknownFormat(format, "table", "json", "text")
	}

	if len(td.Columns) == 0 {
		_, _ = fmt.Fprintln(w, "(0 rows)")
		return nil
	}

	rows := td.Text()
	t := newTable(w)

	header := make(table.Row, len(rows.Columns))
	for i, c := range rows.Columns {
		header[i] = c
	}
	t.AppendHeader(header)

	for _, row := range rows.Rows {
		r := make(table.Row, len(row))
		for i, v := range row {
			if v == nil {
				r[i] = nullText
				continue
			}
			r[i] = *v
		}
		t.AppendRow(r)
	}
	t.AppendFooter(table.Row{fmt.Sprintf("%d rows", len(rows.Rows))})
	t.Render()
	return nil
}

func renderGroups(w io.Writer, groups []replicate.Group, format string) error {
	switch format {
	case "json":
		return renderJSON(w, groups)
	case "table", "":
	default:
		return unknownFormat(format, "table", "json")
	}

	t := newTable(w)
	t.AppendHeader(table.Row{"key", "samples", "values"})
	for _, g := range groups {
		vals := make([]string, len(g.Values))
		for i, v := range g.Values {
			vals[i] = catalog.RealValue(v).String()
		}
		t.AppendRow(table.Row{g.Key.String(), strings.Join(g.Samples, ", "), strings.Join(vals, ", ")})
	}
	t.Render()
	return nil
}

// newTable keeps header text as written; column names are case-sensitive.
func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.Style().Format.Header = text.FormatDefault
	t.Style().Format.Footer = text.FormatDefault
	return t
}

func renderJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func unknownFormat(got string, want ...string) error {
	return errs.Newf(errs.ErrKindInvalidInput, "unknown format %q (want %s)", got, strings.Join(want, "|"))
}
