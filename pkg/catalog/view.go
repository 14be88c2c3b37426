package catalog

import "time"

// TagView is a column tag as shown to clients.
type TagView struct {
	TagFQN        string  `json:"tag_fqn"`
	Confidence    float64 `json:"confidence"`
	Source        string  `json:"source"`
	IsAutoApplied bool    `json:"is_auto_applied"`
}

// ColumnView is a column as shown to clients.
type ColumnView struct {
	Name     string    `json:"name"`
	Datatype string    `json:"datatype"`
	Tags     []TagView `json:"tags"`
}

// DatasetView is a catalog table as shown to clients.
type DatasetView struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	FQN       string       `json:"fqn"`
	CreatedAt *time.Time   `json:"created_at"`
	RowCount  int          `json:"row_count"`
	Columns   []ColumnView `json:"columns"`
}

// ViewOf renders t. Catalog tags carry no confidence; they are shown as 1.
func ViewOf(t *Table) *DatasetView {
	v := &DatasetView{
		ID:      t.ID,
		Name:    t.Name,
		FQN:     t.FQN(),
		Columns: make([]ColumnView, len(t.Columns)),
	}
	if t.UpdatedAt > 0 {
		ts := time.UnixMilli(t.UpdatedAt).UTC()
		v.CreatedAt = &ts
	}

	for i, c := range t.Columns {
		cv := ColumnView{Name: c.Name, Datatype: c.DataType, Tags: make([]TagView, len(c.Tags))}
		for j, tag := range c.Tags {
			source := tag.Source
			if source == "" {
				source = "UNKNOWN"
			}
			cv.Tags[j] = TagView{
				TagFQN:        tag.TagFQN,
				Confidence:    1.0,
				Source:        source,
				IsAutoApplied: tag.LabelType == "" || tag.LabelType == LabelAutomated,
			}
		}
		v.Columns[i] = cv
	}
	return v
}

// SummaryOf renders t for listings, without columns.
func SummaryOf(t *Table) *DatasetView {
	v := ViewOf(t)
	v.Columns = []ColumnView{}
	return v
}
