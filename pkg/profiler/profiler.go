// Package profiler reads source files of the supported formats into a
// dataset and describes each of its columns.
package profiler

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/sujanshetty01/OMD/pkg/dataset"
	"github.com/sujanshetty01/OMD/pkg/errors"
)

// DefaultSampleSize is the number of non-null samples kept per column.
const DefaultSampleSize = 5

// ReadFunc decodes the file at path into a dataset named name.
type ReadFunc func(ctx context.Context, path, name string) (*dataset.Dataset, error)

// Result is the outcome of profiling one file.
type Result struct {
	RowCount int                     `json:"row_count"`
	Columns  []dataset.ColumnProfile `json:"columns"`
	Dataset  *dataset.Dataset        `json:"-"`
}

// Profiler dispatches on file extension to a registered reader.
type Profiler struct {
	mu         sync.RWMutex
	readers    map[string]ReadFunc
	SampleSize int
}

// New returns a profiler with every built-in format registered.
func New() *Profiler {
	p := &Profiler{
		readers:    make(map[string]ReadFunc),
		SampleSize: DefaultSampleSize,
	}
	p.Register(readCSV, ".csv")
	p.Register(readJSON, ".json")
	p.Register(readXLSX, ".xlsx", ".xls")
	p.Register(readParquet, ".parquet")
	p.Register(readXML, ".xml")
	p.Register(readHTML, ".html", ".htm")
	p.Register(readYAML, ".yaml", ".yml")
	p.Register(readPDF, ".pdf")
	return p
}

// Register binds a reader to one or more extensions (with leading dot).
func (p *Profiler) Register(fn ReadFunc, exts ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, ext := range exts {
		p.readers[strings.ToLower(ext)] = fn
	}
}

// Extensions returns the supported extensions, sorted.
func (p *Profiler) Extensions() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	exts := make([]string, 0, len(p.readers))
	for ext := range p.readers {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// Supports reports whether path has a registered extension.
func (p *Profiler) Supports(path string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.readers[strings.ToLower(filepath.Ext(path))]
	return ok
}

// Profile reads path and describes its columns. The dataset is named name,
// or the file's base name when name is empty.
func (p *Profiler) Profile(ctx context.Context, path, name string) (*Result, error) {
	if name == "" {
		name = filepath.Base(path)
	}

	p.mu.RLock()
	read, ok := p.readers[strings.ToLower(filepath.Ext(path))]
	p.mu.RUnlock()
	if !ok {
		return nil, errors.UnsupportedFormat(path)
	}

	ds, err := read(ctx, path, name)
	if err != nil {
		if errors.IsCode(err, errors.CodeNoTabularDataFound) {
			return nil, err
		}
		return nil, fmt.Errorf("profile %s: %w", filepath.Base(path), err)
	}

	return &Result{
		RowCount: ds.NumRows(),
		Columns:  ds.Profile(p.SampleSize),
		Dataset:  ds,
	}, nil
}

// normalizeHeader trims names and fills blanks or duplicates so every
// column has a unique, non-empty name.
func normalizeHeader(header []string) []string {
	out := make([]string, len(header))
	seen := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.TrimSpace(h)
		if h == "" {
			h = fmt.Sprintf("column_%d", i)
		}
		if n, dup := seen[h]; dup {
			seen[h] = n + 1
			h = fmt.Sprintf("%s_%d", h, n+1)
		} else {
			seen[h] = 0
		}
		out[i] = h
	}
	return out
}
