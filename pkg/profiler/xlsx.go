package profiler

import (
	"context"
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/sujanshetty01/OMD/pkg/dataset"
)

// readXLSX reads the first sheet; the first row is the header.
func readXLSX(ctx context.Context, path, name string) (*dataset.Dataset, error) {
	xlFile, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open spreadsheet: %w", err)
	}
	defer xlFile.Close()

	sheetName := xlFile.GetSheetName(0)
	if sheetName == "" {
		sheetList := xlFile.GetSheetList()
		if len(sheetList) == 0 {
			return nil, fmt.Errorf("no sheets found in spreadsheet")
		}
		sheetName = sheetList[0]
	}

	rows, err := xlFile.Rows(sheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return &dataset.Dataset{Name: name}, nil
	}
	header, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	header = normalizeHeader(header)

	var records [][]string
	for rows.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		cols, err := rows.Columns()
		if err != nil {
			return nil, fmt.Errorf("failed to read row %d: %w", len(records)+2, err)
		}
		if len(cols) == 0 {
			continue
		}
		records = append(records, cols)
	}

	return dataset.FromStrings(name, header, records), nil
}
