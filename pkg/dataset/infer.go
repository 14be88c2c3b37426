package dataset

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/apache/arrow/go/v14/arrow"
)

// FromStrings builds a dataset from text cells (CSV, spreadsheets, markup,
// documents). Empty cells become null and column types are inferred from
// the remaining values.
func FromStrings(name string, header []string, rows [][]string) *Dataset {
	values := make([][]any, len(rows))
	for i, row := range rows {
		out := make([]any, len(header))
		for j := range header {
			if j < len(row) {
				if s := strings.TrimSpace(row[j]); s != "" {
					out[j] = s
				}
			}
		}
		values[i] = out
	}

	d := &Dataset{Name: name, Columns: make([]Column, len(header)), Rows: values}
	for j, h := range header {
		t := inferTextType(values, j)
		d.Columns[j] = Column{Name: h, Type: t}
		for _, row := range values {
			if row[j] != nil {
				row[j] = parseAs(row[j].(string), t)
			}
		}
	}
	return d
}

// FromValues builds a dataset from decoded values (JSON, YAML, columnar
// files, SQL rows). Values are normalized to int64, float64, bool or string.
func FromValues(name string, header []string, rows [][]any) *Dataset {
	values := make([][]any, len(rows))
	for i, row := range rows {
		out := make([]any, len(header))
		for j := range header {
			if j < len(row) {
				out[j] = normalize(row[j])
			}
		}
		values[i] = out
	}

	d := &Dataset{Name: name, Columns: make([]Column, len(header)), Rows: values}
	for j, h := range header {
		counts := make(map[arrow.Type]int)
		for _, row := range values {
			counts[inferGoType(row[j])]++
		}
		t := selectBestType(counts)
		d.Columns[j] = Column{Name: h, Type: t}
		for _, row := range values {
			row[j] = coerce(row[j], t)
		}
	}
	return d
}

func inferTextType(rows [][]any, col int) arrow.DataType {
	isInt, isFloat, isBool, seen := true, true, true, false
	for _, row := range rows {
		if row[col] == nil {
			continue
		}
		seen = true
		s := row[col].(string)
		if isInt {
			if _, err := strconv.ParseInt(s, 10, 64); err != nil {
				isInt = false
			}
		}
		if isFloat {
			if _, err := strconv.ParseFloat(s, 64); err != nil {
				isFloat = false
			}
		}
		if isBool {
			if _, ok := parseBool(s); !ok {
				isBool = false
			}
		}
		if !isInt && !isFloat && !isBool {
			break
		}
	}

	switch {
	case !seen:
		return arrow.BinaryTypes.String
	case isInt:
		return arrow.PrimitiveTypes.Int64
	case isFloat:
		return arrow.PrimitiveTypes.Float64
	case isBool:
		return arrow.FixedWidthTypes.Boolean
	default:
		return arrow.BinaryTypes.String
	}
}

func parseAs(s string, t arrow.DataType) any {
	switch t.ID() {
	case arrow.INT64:
		v, _ := strconv.ParseInt(s, 10, 64)
		return v
	case arrow.FLOAT64:
		v, _ := strconv.ParseFloat(s, 64)
		return v
	case arrow.BOOL:
		v, _ := parseBool(s)
		return v
	default:
		return s
	}
}

// parseBool accepts only spelled-out booleans so 0/1 columns stay numeric.
func parseBool(s string) (bool, bool) {
	switch strings.ToLower(s) {
	case "true":
		return true, true
	case "false":
		return false, true
	default:
		return false, false
	}
}

// unsigned keeps values above MaxInt64 as float64 rather than wrapping.
func unsigned(x uint64) any {
	if x > math.MaxInt64 {
		return float64(x)
	}
	return int64(x)
}

func normalize(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case string, bool, int64, float64:
		return x
	case int:
		return int64(x)
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case uint:
		return unsigned(uint64(x))
	case uint8:
		return int64(x)
	case uint16:
		return int64(x)
	case uint32:
		return int64(x)
	case uint64:
		return unsigned(x)
	case float32:
		return float64(x)
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i
		}
		if f, err := x.Float64(); err == nil {
			return f
		}
		return x.String()
	case []byte:
		return string(x)
	case time.Time:
		return x.Format(time.RFC3339)
	case map[string]any, []any:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	default:
		return fmt.Sprint(x)
	}
}

func inferGoType(value any) arrow.Type {
	switch value.(type) {
	case nil:
		return arrow.NULL
	case bool:
		return arrow.BOOL
	case int64:
		return arrow.INT64
	case float64:
		return arrow.FLOAT64
	default:
		return arrow.STRING
	}
}

// selectBestType picks the narrowest type that holds every non-null value.
func selectBestType(types map[arrow.Type]int) arrow.DataType {
	if types[arrow.STRING] > 0 {
		return arrow.BinaryTypes.String
	}
	if types[arrow.BOOL] > 0 {
		if types[arrow.INT64] > 0 || types[arrow.FLOAT64] > 0 {
			return arrow.BinaryTypes.String
		}
		return arrow.FixedWidthTypes.Boolean
	}
	if types[arrow.FLOAT64] > 0 {
		return arrow.PrimitiveTypes.Float64
	}
	if types[arrow.INT64] > 0 {
		return arrow.PrimitiveTypes.Int64
	}
	return arrow.BinaryTypes.String
}

func coerce(v any, t arrow.DataType) any {
	if v == nil {
		return nil
	}
	switch t.ID() {
	case arrow.FLOAT64:
		if i, ok := v.(int64); ok {
			return float64(i)
		}
		return v
	case arrow.STRING:
		if _, ok := v.(string); ok {
			return v
		}
		return Format(v)
	default:
		return v
	}
}
