package profiler

import (
	"github.com/sujanshetty01/OMD/pkg/dataset"
)

// object is a decoded mapping that keeps its keys in document order.
type object struct {
	keys   []string
	values map[string]any
}

func newObject() *object {
	return &object{values: make(map[string]any)}
}

func (o *object) set(key string, v any) {
	if _, exists := o.values[key]; !exists {
		o.keys = append(o.keys, key)
	}
	o.values[key] = v
}

// tabulateDocument applies the semi-structured policy to a decoded
// JSON or YAML document:
//
//   - a top-level sequence is used as the records;
//   - for a top-level mapping, the first key (in document order) whose value
//     is a non-empty sequence starting with a mapping is used as the records;
//   - otherwise the whole document is flattened into a single row whose
//     columns are dotted key paths.
func tabulateDocument(name string, root any) *dataset.Dataset {
	switch v := root.(type) {
	case []any:
		return tabulate(name, v)
	case *object:
		for _, k := range v.keys {
			if items, ok := v.values[k].([]any); ok && len(items) > 0 {
				if _, isRecord := items[0].(*object); isRecord {
					return tabulate(name, items)
				}
			}
		}
		flat := newObject()
		flatten(flat, "", v)
		return dataset.FromValues(name, flat.keys, [][]any{valuesOf(flat)})
	case nil:
		return &dataset.Dataset{Name: name}
	default:
		return dataset.FromValues(name, []string{"value"}, [][]any{{v}})
	}
}

// tabulate turns a sequence into rows. Mappings contribute their keys as
// columns in first-seen order; scalar items land in a "value" column.
func tabulate(name string, items []any) *dataset.Dataset {
	var header []string
	index := make(map[string]int)
	addColumn := func(k string) int {
		if i, ok := index[k]; ok {
			return i
		}
		index[k] = len(header)
		header = append(header, k)
		return index[k]
	}

	type cell struct {
		col int
		val any
	}
	records := make([][]cell, 0, len(items))
	for _, item := range items {
		var rec []cell
		if obj, ok := item.(*object); ok {
			for _, k := range obj.keys {
				rec = append(rec, cell{addColumn(k), plain(obj.values[k])})
			}
		} else {
			rec = append(rec, cell{addColumn("value"), plain(item)})
		}
		records = append(records, rec)
	}

	rows := make([][]any, len(records))
	for i, rec := range records {
		row := make([]any, len(header))
		for _, c := range rec {
			row[c.col] = c.val
		}
		rows[i] = row
	}
	return dataset.FromValues(name, header, rows)
}

func flatten(dst *object, prefix string, v any) {
	obj, ok := v.(*object)
	if !ok {
		dst.set(prefix, plain(v))
		return
	}
	for _, k := range obj.keys {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		flatten(dst, key, obj.values[k])
	}
}

func valuesOf(o *object) []any {
	out := make([]any, len(o.keys))
	for i, k := range o.keys {
		out[i] = o.values[k]
	}
	return out
}

// plain converts ordered objects back into ordinary maps for cell storage.
func plain(v any) any {
	switch x := v.(type) {
	case *object:
		m := make(map[string]any, len(x.keys))
		for _, k := range x.keys {
			m[k] = plain(x.values[k])
		}
		return m
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = plain(item)
		}
		return out
	default:
		return v
	}
}
