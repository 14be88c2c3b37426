// Package catalog defines the metadata catalog that records tables,
// columns and their classification tags.
package catalog

import (
	"context"
	"fmt"
	"strings"
)

// LabelType distinguishes machine-applied tags from human-curated ones.
type LabelType string

const (
	LabelAutomated LabelType = "Automated"
	LabelManual    LabelType = "Manual"
)

// Tag sources and states as the catalog spells them.
const (
	TagSourceClassification = "Classification"
	TagStateConfirmed       = "Confirmed"
)

// Default placement of tables registered from ingested files.
const (
	DefaultService  = "local_files"
	DefaultDatabase = "uploads"
	DefaultSchema   = "default"
)

// Catalog column data types.
const (
	DataTypeInt     = "INT"
	DataTypeFloat   = "FLOAT"
	DataTypeBoolean = "BOOLEAN"
	DataTypeString  = "STRING"
)

// TagLabel attaches a tag to a table or column.
type TagLabel struct {
	TagFQN    string    `json:"tagFQN"`
	LabelType LabelType `json:"labelType"`
	Source    string    `json:"source,omitempty"`
	State     string    `json:"state,omitempty"`
}

// NewTag returns a confirmed classification tag.
func NewTag(fqn string, lt LabelType) TagLabel {
	return TagLabel{TagFQN: fqn, LabelType: lt, Source: TagSourceClassification, State: TagStateConfirmed}
}

// Column of a catalog table.
type Column struct {
	Name        string     `json:"name"`
	DataType    string     `json:"dataType"`
	Description string     `json:"description,omitempty"`
	Tags        []TagLabel `json:"tags,omitempty"`
}

// SampleData is the row sample a catalog may hold for a table.
type SampleData struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

// Table is a catalog table entity.
type Table struct {
	ID                 string      `json:"id"`
	Name               string      `json:"name"`
	FullyQualifiedName string      `json:"fullyQualifiedName"`
	Columns            []Column    `json:"columns,omitempty"`
	Tags               []TagLabel  `json:"tags,omitempty"`
	SampleData         *SampleData `json:"sampleData,omitempty"`
	// UpdatedAt is epoch milliseconds.
	UpdatedAt int64 `json:"updatedAt,omitempty"`
}

// FQN returns the fully qualified name, falling back to the name.
func (t *Table) FQN() string {
	if t.FullyQualifiedName != "" {
		return t.FullyQualifiedName
	}
	return t.Name
}

// HasSampleRows reports whether the table carries sample rows.
func (t *Table) HasSampleRows() bool {
	return t.SampleData != nil && len(t.SampleData.Rows) > 0
}

// AllTags returns the table's tags followed by every column tag.
func (t *Table) AllTags() []string {
	var out []string
	for _, tag := range t.Tags {
		out = append(out, tag.TagFQN)
	}
	for _, col := range t.Columns {
		for _, tag := range col.Tags {
			out = append(out, tag.TagFQN)
		}
	}
	return out
}

// ColumnSpec describes a column to register.
type ColumnSpec struct {
	Name     string
	Datatype string // profiler type name
	Tags     []TagLabel
}

// Catalog is the metadata catalog.
type Catalog interface {
	// RegisterTable creates or replaces the table for an ingested file,
	// with every column and tag in one call.
	RegisterTable(ctx context.Context, fileName string, columns []ColumnSpec) (*Table, error)

	// GetTable looks a table up by FQN, then by ID. It returns nil, nil
	// when neither matches.
	GetTable(ctx context.Context, fqnOrID string) (*Table, error)

	// ListTables returns every table across all services, populating the
	// requested fields (columns, tags, sampleData).
	ListTables(ctx context.Context, fields ...string) ([]Table, error)

	// ApplyColumnTags adds tags missing from the column. Existing tags,
	// including Manual ones, are left untouched.
	ApplyColumnTags(ctx context.Context, fqnOrID, column string, tags []TagLabel) error
}

// Fields accepted by ListTables.
const (
	FieldColumns    = "columns"
	FieldTags       = "tags"
	FieldSampleData = "sampleData"
)

// TableName derives the catalog table name from a file name.
func TableName(fileName string) string {
	return strings.NewReplacer(".", "_", "-", "_").Replace(fileName)
}

// MapDataType maps a profiler type name onto a catalog data type.
func MapDataType(datatype string) string {
	t := strings.ToLower(datatype)
	switch {
	case strings.Contains(t, "int"):
		return DataTypeInt
	case strings.Contains(t, "float"), strings.Contains(t, "double"):
		return DataTypeFloat
	case strings.Contains(t, "bool"):
		return DataTypeBoolean
	default:
		return DataTypeString
	}
}

// BuildColumns converts column specs into catalog columns for fileName.
func BuildColumns(fileName string, specs []ColumnSpec) []Column {
	cols := make([]Column, len(specs))
	for i, s := range specs {
		cols[i] = Column{
			Name:        s.Name,
			DataType:    MapDataType(s.Datatype),
			Description: "Imported from " + fileName,
			Tags:        s.Tags,
		}
	}
	return cols
}

// MissingTags returns the tags in add whose FQN is not already present.
func MissingTags(existing, add []TagLabel) []TagLabel {
	seen := make(map[string]bool, len(existing))
	for _, t := range existing {
		seen[t.TagFQN] = true
	}
	var out []TagLabel
	for _, t := range add {
		if !seen[t.TagFQN] {
			seen[t.TagFQN] = true
			out = append(out, t)
		}
	}
	return out
}

// SplitFQN splits a fully qualified name into its segments. A segment that
// contains dots is double-quoted by the catalog ("people.csv"); quotes are
// removed from the result. Empty segments and unbalanced quotes are errors.
func SplitFQN(fqn string) ([]string, error) {
	if fqn == "" {
		return nil, fmt.Errorf("empty fqn")
	}

	var (
		parts   []string
		cur     strings.Builder
		quoted  bool
		wrapped bool
	)
	flush := func() error {
		if cur.Len() == 0 && !wrapped {
			return fmt.Errorf("empty segment in fqn %q", fqn)
		}
		parts = append(parts, cur.String())
		cur.Reset()
		wrapped = false
		return nil
	}

	for _, r := range fqn {
		switch {
		case r == '"':
			quoted = !quoted
			wrapped = true
		case r == '.' && !quoted:
			if err := flush(); err != nil {
				return nil, err
			}
		default:
			cur.WriteRune(r)
		}
	}
	if quoted {
		return nil, fmt.Errorf("unbalanced quote in fqn %q", fqn)
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return parts, nil
}
