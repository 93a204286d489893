package output

import (
	"io"

	"github.com/olekukonko/tablewriter"
)

// TableRenderer is anything printable as a table.
type TableRenderer interface {
	Headers() []string
	Rows() [][]string
}

// plainTable renders aligned columns without borders or rules.
func plainTable(w io.Writer, sep string, upperHeaders bool) *tablewriter.Table {
	t := tablewriter.NewWriter(w)
	t.SetAutoWrapText(false)
	t.SetAutoFormatHeaders(upperHeaders)
	t.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	t.SetAlignment(tablewriter.ALIGN_LEFT)
	t.SetBorder(false)
	t.SetHeaderLine(false)
	t.SetCenterSeparator("")
	t.SetRowSeparator("")
	t.SetColumnSeparator(sep)
	t.SetTablePadding("  ")
	t.SetNoWhiteSpace(true)
	return t
}

// PrintTable writes data with upper-cased headers.
func PrintTable(w io.Writer, data TableRenderer) error {
	t := plainTable(w, "", true)
	t.SetHeader(data.Headers())
	t.AppendBulk(data.Rows())
	t.Render()
	return nil
}

// PrintKeyValues writes one "key: value" line per pair, values aligned.
func PrintKeyValues(w io.Writer, pairs [][2]string) error {
	t := plainTable(w, ":", false)
	for _, kv := range pairs {
		t.Append(kv[:])
	}
	t.Render()
	return nil
}

// TableData is a TableRenderer built row by row.
type TableData struct {
	headers []string
	rows    [][]string
}

func NewTableData(headers ...string) *TableData {
	return &TableData{headers: headers}
}

func (t *TableData) AddRow(row ...string) { t.rows = append(t.rows, row) }
func (t *TableData) Headers() []string { return t.headers }
func (t *TableData) Rows() [][]string { return t.rows }
