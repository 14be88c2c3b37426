// Package dataset defines the in-memory tabular payload that flows through
// profiling, classification, archival and indexing.
package dataset

import (
	"fmt"
	"strconv"

	"github.com/apache/arrow/go/v14/arrow"
)

// Column describes one dataset column.
type Column struct {
	Name string
	Type arrow.DataType
}

// Dataset is a named table of rows. Cell values are nil (null), int64,
// float64, bool or string, matching the column type.
type Dataset struct {
	Name    string
	Columns []Column
	Rows    [][]any
}

// ColumnProfile is the per-column descriptor produced by profiling.
type ColumnProfile struct {
	Name     string   `json:"name"`
	Datatype string   `json:"datatype"`
	Samples  []string `json:"sample_values"`
}

// NumRows returns the row count.
func (d *Dataset) NumRows() int {
	if d == nil {
		return 0
	}
	return len(d.Rows)
}

// NumCols returns the column count.
func (d *Dataset) NumCols() int {
	if d == nil {
		return 0
	}
	return len(d.Columns)
}

// Empty reports whether the dataset has no rows or no columns.
func (d *Dataset) Empty() bool {
	return d.NumRows() == 0 || d.NumCols() == 0
}

// ColumnNames returns the column names in order.
func (d *Dataset) ColumnNames() []string {
	names := make([]string, len(d.Columns))
	for i, c := range d.Columns {
		names[i] = c.Name
	}
	return names
}

// NonNull returns up to limit non-null values of column i, in row order.
// limit <= 0 means no limit.
func (d *Dataset) NonNull(i, limit int) []any {
	var out []any
	for _, row := range d.Rows {
		if i >= len(row) || row[i] == nil {
			continue
		}
		out = append(out, row[i])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// Head returns a dataset sharing columns with d and holding at most n rows.
func (d *Dataset) Head(n int) *Dataset {
	if n >= len(d.Rows) {
		return d
	}
	return &Dataset{Name: d.Name, Columns: d.Columns, Rows: d.Rows[:n]}
}

// Profile builds the column descriptors with up to sampleSize non-null samples each.
func (d *Dataset) Profile(sampleSize int) []ColumnProfile {
	profiles := make([]ColumnProfile, len(d.Columns))
	for i, col := range d.Columns {
		values := d.NonNull(i, sampleSize)
		samples := make([]string, len(values))
		for j, v := range values {
			samples[j] = Format(v)
		}
		profiles[i] = ColumnProfile{
			Name:     col.Name,
			Datatype: TypeName(col.Type),
			Samples:  samples,
		}
	}
	return profiles
}

// TypeName returns the datatype label recorded for a column.
func TypeName(t arrow.DataType) string {
	if t == nil {
		return arrow.BinaryTypes.String.Name()
	}
	return t.Name()
}

// Format renders a cell value the way it appears in samples and documents.
func Format(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}
