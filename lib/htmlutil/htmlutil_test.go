package htmlutil

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, body string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	require.NoError(t, err)
	return doc
}

func TestTableRowsWithThead(t *testing.T) {
	doc := parse(t, `<table>
		<thead><tr><th>Name</th><th>Amount</th></tr></thead>
		<tbody>
			<tr><td>Asha</td><td> 1,00,000 </td></tr>
			<tr><td>Ravi</td><td>50,000</td></tr>
		</tbody>
	</table>`)

	want := []map[string]string{
		{"Name": "Asha", "Amount": "1,00,000"},
		{"Name": "Ravi", "Amount": "50,000"},
	}
	if diff := cmp.Diff(want, TableRows(doc)); diff != "" {
		t.Fatal(diff)
	}
}

func TestTableRowsHeaderRowWithoutThead(t *testing.T) {
	doc := parse(t, `<table>
		<tr><th>Date</th><th>Branch</th></tr>
		<tr><td>01-02-2026</td><td>Jaipur</td></tr>
	</table>`)

	want := []map[string]string{
		{"Date": "01-02-2026", "Branch": "Jaipur"},
	}
	if diff := cmp.Diff(want, TableRows(doc)); diff != "" {
		t.Fatal(diff)
	}
}

func TestTableRowsPositionalWhenCountMismatch(t *testing.T) {
	doc := parse(t, `<table>
		<thead><tr><th>A</th><th>B</th></tr></thead>
		<tbody><tr><td>1</td><td>2</td><td>3</td></tr></tbody>
	</table>`)

	want := []map[string]string{
		{"col_1": "1", "col_2": "2", "col_3": "3"},
	}
	if diff := cmp.Diff(want, TableRows(doc)); diff != "" {
		t.Fatal(diff)
	}
}

func TestTableRowsNoTable(t *testing.T) {
	doc := parse(t, `<div>no report generated</div>`)
	require.Nil(t, TableRows(doc))
}

func TestTableRowsEmptyBody(t *testing.T) {
	doc := parse(t, `<table>
		<thead><tr><th>Name</th></tr></thead>
		<tbody></tbody>
	</table>`)
	require.Empty(t, TableRows(doc))
}
