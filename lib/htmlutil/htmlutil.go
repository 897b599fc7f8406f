package htmlutil

import (
	"bytes"
	"fmt"

	"lenddash-backend/lib/textutil"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

func GetText(node *html.Node) string {
	var buffer bytes.Buffer
	getTextRecursive(node, &buffer)
	return buffer.String()
}

func getTextRecursive(node *html.Node, buffer *bytes.Buffer) {
	if node == nil {
		return
	}
	if node.Type == html.TextNode {
		buffer.WriteString(node.Data)
		return
	}
	child := node.FirstChild
	for child != nil {
		getTextRecursive(child, buffer)
		child = child.NextSibling
	}
}

// cellText renders a table cell to normalized text.
func cellText(sel *goquery.Selection) string {
	var buffer bytes.Buffer
	for _, node := range sel.Nodes {
		buffer.WriteString(GetText(node))
	}
	return textutil.CollapseWhitespace(buffer.String())
}

// TableRows extracts the first <table> of a document as a list of
// field name -> cell text maps. Header cell texts (from <thead>, or
// the first row's <th> cells) become the field names; a row whose
// cell count differs from the header count, or any row when the
// table has no header, gets positional names col_1, col_2, ...
//
// Returns nil when the document has no table. An empty table is not
// an error, a source with no activity legitimately renders one.
func TableRows(doc *goquery.Document) []map[string]string {
	table := doc.Find("table").First()
	if table.Length() == 0 {
		return nil
	}

	var header []string
	headerTr := table.Find("thead tr").First()
	if headerTr.Length() == 0 {
		headerTr = table.Find("tr").First()
	}
	headerTr.Find("th").Each(func(_ int, th *goquery.Selection) {
		header = append(header, cellText(th))
	})

	body := table.Find("tbody").First()
	if body.Length() == 0 {
		body = table
	}

	var rows []map[string]string
	body.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		var cells []string
		tr.Find("td, th").Each(func(_ int, td *goquery.Selection) {
			cells = append(cells, cellText(td))
		})
		if len(cells) == 0 {
			return
		}
		// skip the header row when there is no tbody to separate it
		if len(header) > 0 && tr.Find("th").Length() == len(cells) && tr.Find("td").Length() == 0 {
			return
		}

		row := make(map[string]string, len(cells))
		if len(header) > 0 && len(header) == len(cells) {
			for i, name := range header {
				row[name] = cells[i]
			}
		} else {
			for i, v := range cells {
				row[fmt.Sprintf("col_%d", i+1)] = v
			}
		}
		rows = append(rows, row)
	})

	return rows
}
