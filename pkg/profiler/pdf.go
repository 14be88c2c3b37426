package profiler

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/sujanshetty01/OMD/pkg/dataset"
	"github.com/sujanshetty01/OMD/pkg/errors"
)

// minCellGap is the horizontal gap, in points, that separates two cells.
const minCellGap = 4.0

// readPDF returns the first table found in the document. A table is a run
// of at least two consecutive text rows that split into the same number
// (two or more) of cells; its first row is the header.
func readPDF(ctx context.Context, path, name string) (*dataset.Dataset, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open pdf: %w", err)
	}
	defer f.Close()

	for i := 1; i <= r.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		rows, err := page.GetTextByRow()
		if err != nil {
			return nil, fmt.Errorf("failed to read page %d: %w", i, err)
		}

		lines := make([][]string, 0, len(rows))
		for _, row := range rows {
			lines = append(lines, splitCells(row.Content))
		}
		if table := firstTable(lines); table != nil {
			return dataset.FromStrings(name, normalizeHeader(table[0]), table[1:]), nil
		}
	}

	return nil, errors.NoTabularData(path)
}

// splitCells joins the text runs of one row, starting a new cell at every
// horizontal gap wider than minCellGap (or the font size when larger).
func splitCells(texts pdf.TextHorizontal) []string {
	if len(texts) == 0 {
		return nil
	}
	sorted := make([]pdf.Text, len(texts))
	copy(sorted, texts)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].X < sorted[j].X })

	var cells []string
	var cur strings.Builder
	end := sorted[0].X
	for i, t := range sorted {
		gap := math.Max(minCellGap, t.FontSize*0.8)
		if i > 0 && t.X-end > gap {
			cells = append(cells, strings.TrimSpace(cur.String()))
			cur.Reset()
		}
		cur.WriteString(t.S)
		end = t.X + t.W
	}
	cells = append(cells, strings.TrimSpace(cur.String()))

	out := cells[:0]
	for _, c := range cells {
		if c != "" {
			out = append(out, c)
		}
	}
	return out
}

func firstTable(lines [][]string) [][]string {
	for start := 0; start < len(lines); start++ {
		width := len(lines[start])
		if width < 2 {
			continue
		}
		end := start + 1
		for end < len(lines) && len(lines[end]) == width {
			end++
		}
		if end-start >= 2 {
			return lines[start:end]
		}
	}
	return nil
}
