package profiler

import (
	"bufio"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/sujanshetty01/OMD/pkg/dataset"
	"github.com/sujanshetty01/OMD/pkg/errors"
)

// readHTML extracts the first <table> of the page. A header row is the
// first row made of <th> cells, or the first row when there is none.
func readHTML(ctx context.Context, path, name string) (*dataset.Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	doc, err := goquery.NewDocumentFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse html: %w", err)
	}

	table := doc.Find("table").First()
	if table.Length() == 0 {
		return nil, errors.NoTabularData(path)
	}

	var grid [][]string
	headerRow := -1
	table.Find("tr").Each(func(i int, tr *goquery.Selection) {
		var cells []string
		tr.Find("th, td").Each(func(_ int, cell *goquery.Selection) {
			cells = append(cells, strings.TrimSpace(cell.Text()))
		})
		if len(cells) == 0 {
			return
		}
		if headerRow < 0 && tr.Find("td").Length() == 0 {
			headerRow = len(grid)
		}
		grid = append(grid, cells)
	})
	if len(grid) == 0 {
		return nil, errors.NoTabularData(path)
	}
	if headerRow < 0 {
		headerRow = 0
	}

	header := normalizeHeader(grid[headerRow])
	rows := append(grid[:headerRow:headerRow], grid[headerRow+1:]...)
	return dataset.FromStrings(name, header, rows), nil
}

// xmlElement is a minimal element tree.
type xmlElement struct {
	name     string
	attrs    []xml.Attr
	children []*xmlElement
	text     strings.Builder
}

// readXML treats each child element of the document root as a record.
// Attributes and leaf child elements become columns.
func readXML(ctx context.Context, path, name string) (*dataset.Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	root, err := parseXML(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("failed to parse xml: %w", err)
	}
	if root == nil || len(root.children) == 0 {
		return nil, errors.NoTabularData(path)
	}

	items := make([]any, 0, len(root.children))
	for _, rec := range root.children {
		obj := newObject()
		for _, a := range rec.attrs {
			obj.set(a.Name.Local, a.Value)
		}
		for _, field := range rec.children {
			if len(field.children) > 0 {
				continue
			}
			obj.set(field.name, strings.TrimSpace(field.text.String()))
		}
		if len(obj.keys) == 0 {
			if text := strings.TrimSpace(rec.text.String()); text != "" {
				obj.set(rec.name, text)
			}
		}
		items = append(items, obj)
	}

	ds := tabulate(name, items)
	return retypeText(ds), nil
}

func parseXML(r io.Reader) (*xmlElement, error) {
	dec := xml.NewDecoder(r)
	var stack []*xmlElement
	var root *xmlElement

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			el := &xmlElement{name: t.Name.Local, attrs: t.Attr}
			if len(stack) > 0 {
				parent := stack[len(stack)-1]
				parent.children = append(parent.children, el)
			} else if root == nil {
				root = el
			}
			stack = append(stack, el)
		case xml.EndElement:
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		case xml.CharData:
			if len(stack) > 0 {
				stack[len(stack)-1].text.Write(t)
			}
		}
	}
	return root, nil
}

// retypeText re-infers column types for datasets whose cells are all text,
// so numeric XML fields profile as numbers.
func retypeText(ds *dataset.Dataset) *dataset.Dataset {
	rows := make([][]string, len(ds.Rows))
	for i, row := range ds.Rows {
		out := make([]string, len(row))
		for j, v := range row {
			out[j] = dataset.Format(v)
		}
		rows[i] = out
	}
	return dataset.FromStrings(ds.Name, ds.ColumnNames(), rows)
}
