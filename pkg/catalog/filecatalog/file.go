// Package filecatalog provides a catalog.Catalog persisted as one JSON
// document on the local filesystem. It serves single-node deployments and
// development without an OpenMetadata server.
package filecatalog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sujanshetty01/OMD/pkg/catalog"
)

// FileCatalog implements catalog.Catalog using the local filesystem.
type FileCatalog struct {
	root   string
	mu     sync.RWMutex
	tables map[string]*catalog.Table // by FQN
	now    func() time.Time
}

var _ catalog.Catalog = (*FileCatalog)(nil)

// New creates a file-based catalog rooted at root.
func New(root string) (*FileCatalog, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root: %w", err)
	}

	if err := os.MkdirAll(absRoot, 0755); err != nil {
		return nil, fmt.Errorf("failed to create catalog directory: %w", err)
	}

	cat := &FileCatalog{
		root:   absRoot,
		tables: make(map[string]*catalog.Table),
		now:    time.Now,
	}

	if err := cat.load(); err != nil {
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}

	return cat, nil
}

func (c *FileCatalog) path() string {
	return filepath.Join(c.root, "catalog.json")
}

func (c *FileCatalog) load() error {
	data, err := os.ReadFile(c.path())
	if os.IsNotExist(err) {
		return nil // New catalog
	}
	if err != nil {
		return err
	}

	return json.Unmarshal(data, &c.tables)
}

func (c *FileCatalog) save() error {
	data, err := json.MarshalIndent(c.tables, "", "  ")
	if err != nil {
		return err
	}
	tmp := c.path() + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, c.path())
}

// Put stores t as-is, keyed by its FQN. Used to seed tables registered by
// other tools, e.g. ones carrying sample data.
func (c *FileCatalog) Put(t catalog.Table) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.UpdatedAt == 0 {
		t.UpdatedAt = c.now().UnixMilli()
	}
	c.tables[t.FQN()] = &t
	return c.save()
}

// RegisterTable creates or replaces the table for fileName under the
// default service, database and schema. A replaced table keeps its ID,
// table tags, sample data and every Manual column tag.
func (c *FileCatalog) RegisterTable(ctx context.Context, fileName string, columns []catalog.ColumnSpec) (*catalog.Table, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	name := catalog.TableName(fileName)
	fqn := catalog.DefaultService + "." + catalog.DefaultDatabase + "." + catalog.DefaultSchema + "." + name

	t := &catalog.Table{
		ID:                 uuid.NewString(),
		Name:               name,
		FullyQualifiedName: fqn,
		Columns:            catalog.BuildColumns(fileName, columns),
		UpdatedAt:          c.now().UnixMilli(),
	}
	if existing, ok := c.tables[fqn]; ok {
		t.ID = existing.ID
		t.Tags = existing.Tags
		t.SampleData = existing.SampleData
		keepManualTags(t.Columns, existing.Columns)
	}
	c.tables[fqn] = t

	if err := c.save(); err != nil {
		return nil, fmt.Errorf("failed to persist table %s: %w", fqn, err)
	}

	out := *t
	return &out, nil
}

// keepManualTags puts the Manual tags of prev ahead of the new tags of the
// column with the same name. A Manual tag wins over a re-classified one.
func keepManualTags(cols, prev []catalog.Column) {
	manual := make(map[string][]catalog.TagLabel)
	for _, pc := range prev {
		for _, tag := range pc.Tags {
			if tag.LabelType == catalog.LabelManual {
				manual[pc.Name] = append(manual[pc.Name], tag)
			}
		}
	}
	for i := range cols {
		kept, ok := manual[cols[i].Name]
		if !ok {
			continue
		}
		cols[i].Tags = append(append([]catalog.TagLabel(nil), kept...), catalog.MissingTags(kept, cols[i].Tags)...)
	}
}

func (c *FileCatalog) lookup(fqnOrID string) *catalog.Table {
	if t, ok := c.tables[fqnOrID]; ok {
		return t
	}
	for _, t := range c.tables {
		if t.ID == fqnOrID {
			return t
		}
	}
	return nil
}

// GetTable retrieves a table by FQN, then by ID.
func (c *FileCatalog) GetTable(ctx context.Context, fqnOrID string) (*catalog.Table, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	t := c.lookup(fqnOrID)
	if t == nil {
		return nil, nil
	}
	out := *t
	out.SampleData = nil
	return &out, nil
}

// ListTables returns all tables sorted by FQN. Sample data is included
// only when requested.
func (c *FileCatalog) ListTables(ctx context.Context, fields ...string) ([]catalog.Table, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	withSample := false
	for _, f := range fields {
		if f == catalog.FieldSampleData {
			withSample = true
		}
	}

	out := make([]catalog.Table, 0, len(c.tables))
	for _, t := range c.tables {
		cp := *t
		if !withSample {
			cp.SampleData = nil
		}
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FQN() < out[j].FQN() })
	return out, nil
}

// ApplyColumnTags appends the missing tags to column.
func (c *FileCatalog) ApplyColumnTags(ctx context.Context, fqnOrID, column string, tags []catalog.TagLabel) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := c.lookup(fqnOrID)
	if t == nil {
		return nil
	}

	for i := range t.Columns {
		col := &t.Columns[i]
		if col.Name != column {
			continue
		}
		missing := catalog.MissingTags(col.Tags, tags)
		if len(missing) == 0 {
			return nil
		}
		col.Tags = append(col.Tags, missing...)
		t.UpdatedAt = c.now().UnixMilli()
		return c.save()
	}
	return nil
}
