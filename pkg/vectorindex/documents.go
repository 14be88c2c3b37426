package vectorindex

import (
	"strconv"
	"strings"

	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"

	"github.com/sujanshetty01/OMD/pkg/dataset"
)

// DefaultMaxRows bounds the rows indexed per dataset.
const DefaultMaxRows = 100

// idNamespace scopes the deterministic object IDs.
var idNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/sujanshetty01/OMD/vectorindex"))

// Row is one dataset row rendered for indexing.
type Row struct {
	ID       strfmt.UUID
	Content  string
	Source   string
	RowIndex int
	Tags     []string
}

// ObjectID returns the stable ID of row i of dataset name. Re-indexing a
// dataset overwrites its previous rows.
func ObjectID(name string, i int) strfmt.UUID {
	return strfmt.UUID(uuid.NewSHA1(idNamespace, []byte(name+"_"+strconv.Itoa(i))).String())
}

// RenderRows turns the first maxRows rows of ds into documents of the form
//
//	Dataset: {name} [Tags: a, b] | col: val | col: val
//
// The tag segment is omitted when tags is empty.
func RenderRows(name string, ds *dataset.Dataset, tags []string, maxRows int) []Row {
	if maxRows <= 0 {
		maxRows = DefaultMaxRows
	}
	if ds.Empty() {
		return nil
	}
	head := ds.Head(maxRows)

	prefix := "Dataset: " + name
	if len(tags) > 0 {
		prefix += " [Tags: " + strings.Join(tags, ", ") + "]"
	}

	rows := make([]Row, head.NumRows())
	for i, values := range head.Rows {
		var sb strings.Builder
		sb.WriteString(prefix)
		for j, col := range head.Columns {
			sb.WriteString(" | ")
			sb.WriteString(col.Name)
			sb.WriteString(": ")
			if j < len(values) {
				sb.WriteString(dataset.Format(values[j]))
			}
		}
		rows[i] = Row{
			ID:       ObjectID(name, i),
			Content:  sb.String(),
			Source:   name,
			RowIndex: i,
			Tags:     tags,
		}
	}
	return rows
}
