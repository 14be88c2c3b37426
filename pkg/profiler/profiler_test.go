package profiler

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/ledongthuc/pdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/sujanshetty01/OMD/pkg/dataset"
	"github.com/sujanshetty01/OMD/pkg/errors"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestProfile_CSV(t *testing.T) {
	path := writeFile(t, "people.csv", "id,ssn,email\n1,123-45-6789,a@x.com\n2,,b@x.com\n3,987-65-4321,\n")

	res, err := New().Profile(context.Background(), path, "")
	require.NoError(t, err)

	assert.Equal(t, 3, res.RowCount)
	require.Len(t, res.Columns, 3)
	assert.Equal(t, "people.csv", res.Dataset.Name)
	assert.Equal(t, "int64", res.Columns[0].Datatype)
	assert.Equal(t, []string{"123-45-6789", "987-65-4321"}, res.Columns[1].Samples)
	assert.Equal(t, "utf8", res.Columns[2].Datatype)
}

func TestProfile_SamplesCappedAtFive(t *testing.T) {
	path := writeFile(t, "n.csv", "n\n1\n2\n3\n4\n5\n6\n7\n")

	res, err := New().Profile(context.Background(), path, "numbers")
	require.NoError(t, err)
	assert.Equal(t, "numbers", res.Dataset.Name)
	assert.Len(t, res.Columns[0].Samples, 5)
	assert.Equal(t, 7, res.RowCount)
}

func TestProfile_UnsupportedFormat(t *testing.T) {
	path := writeFile(t, "notes.txt", "hello")

	_, err := New().Profile(context.Background(), path, "")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeUnsupportedFormat))
}

func TestProfile_JSONArrayKeepsKeyOrder(t *testing.T) {
	path := writeFile(t, "users.json", `[{"name":"a","age":30},{"name":"b","age":41,"city":"Oslo"}]`)

	res, err := New().Profile(context.Background(), path, "")
	require.NoError(t, err)

	assert.Equal(t, []string{"name", "age", "city"}, res.Dataset.ColumnNames())
	assert.Equal(t, arrow.INT64, res.Dataset.Columns[1].Type.ID())
	assert.Nil(t, res.Dataset.Rows[0][2])
}

func TestProfile_JSONPicksFirstRecordList(t *testing.T) {
	path := writeFile(t, "wrapped.json", `{
		"meta": {"source": "crm"},
		"tags": ["x", "y"],
		"customers": [{"id": 1, "email": "a@x.com"}, {"id": 2, "email": "b@x.com"}],
		"orders": [{"id": 9}]
	}`)

	res, err := New().Profile(context.Background(), path, "")
	require.NoError(t, err)

	assert.Equal(t, 2, res.RowCount)
	assert.Equal(t, []string{"id", "email"}, res.Dataset.ColumnNames())
}

func TestProfile_YAMLFlattensWithoutRecordList(t *testing.T) {
	path := writeFile(t, "settings.yaml", "service:\n  name: crm\n  port: 8080\nowner: data-team\nempty: []\n")

	res, err := New().Profile(context.Background(), path, "")
	require.NoError(t, err)

	assert.Equal(t, 1, res.RowCount)
	assert.Equal(t, []string{"service.name", "service.port", "owner", "empty"}, res.Dataset.ColumnNames())
	assert.Equal(t, int64(8080), res.Dataset.Rows[0][1])
}

func TestProfile_YAMLRecordList(t *testing.T) {
	path := writeFile(t, "staff.yml", "version: 2\nstaff:\n  - first_name: Ada\n    phone: 555-123-4567\n  - first_name: Alan\n    phone: 555-987-6543\n")

	res, err := New().Profile(context.Background(), path, "")
	require.NoError(t, err)

	assert.Equal(t, 2, res.RowCount)
	assert.Equal(t, []string{"first_name", "phone"}, res.Dataset.ColumnNames())
}

func TestProfile_HTMLFirstTable(t *testing.T) {
	path := writeFile(t, "report.html", `<html><body>
		<table><tr><th>email</th><th>score</th></tr>
		<tr><td>a@x.com</td><td>1</td></tr>
		<tr><td>b@x.com</td><td>2</td></tr></table>
		<table><tr><td>ignored</td></tr></table>
	</body></html>`)

	res, err := New().Profile(context.Background(), path, "")
	require.NoError(t, err)

	assert.Equal(t, []string{"email", "score"}, res.Dataset.ColumnNames())
	assert.Equal(t, 2, res.RowCount)
	assert.Equal(t, "int64", res.Columns[1].Datatype)
}

func TestProfile_HTMLWithoutTable(t *testing.T) {
	path := writeFile(t, "blank.html", "<html><body><p>nothing</p></body></html>")

	_, err := New().Profile(context.Background(), path, "")
	assert.True(t, errors.IsCode(err, errors.CodeNoTabularDataFound))
}

func TestProfile_XML(t *testing.T) {
	path := writeFile(t, "people.xml", `<?xml version="1.0"?>
<people>
  <person id="1"><name>Ada</name><zip_code>12345</zip_code></person>
  <person id="2"><name>Alan</name><zip_code>54321</zip_code></person>
</people>`)

	res, err := New().Profile(context.Background(), path, "")
	require.NoError(t, err)

	assert.Equal(t, []string{"id", "name", "zip_code"}, res.Dataset.ColumnNames())
	assert.Equal(t, "int64", res.Columns[0].Datatype)
	assert.Equal(t, 2, res.RowCount)
}

func TestProfile_XMLEmptyRoot(t *testing.T) {
	path := writeFile(t, "empty.xml", `<root></root>`)

	_, err := New().Profile(context.Background(), path, "")
	assert.True(t, errors.IsCode(err, errors.CodeNoTabularDataFound))
}

func TestProfile_XLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "book.xlsx")
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheet, "A1", &[]string{"last_name", "balance"}))
	require.NoError(t, f.SetSheetRow(sheet, "A2", &[]interface{}{"Lovelace", 10.5}))
	require.NoError(t, f.SetSheetRow(sheet, "A3", &[]interface{}{"Turing", 3}))
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	res, err := New().Profile(context.Background(), path, "")
	require.NoError(t, err)

	assert.Equal(t, []string{"last_name", "balance"}, res.Dataset.ColumnNames())
	assert.Equal(t, 2, res.RowCount)
	assert.Equal(t, "float64", res.Columns[1].Datatype)
}

func TestProfile_Parquet(t *testing.T) {
	src := dataset.FromStrings("src", []string{"id", "name"}, [][]string{{"1", "a"}, {"2", "b"}})
	path := filepath.Join(t.TempDir(), "data.parquet")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, dataset.WriteParquet(f, src))
	require.NoError(t, f.Close())

	res, err := New().Profile(context.Background(), path, "")
	require.NoError(t, err)
	assert.Equal(t, 2, res.RowCount)
	assert.Equal(t, src.Rows, res.Dataset.Rows)
}

func TestSupportsAndExtensions(t *testing.T) {
	p := New()
	assert.True(t, p.Supports("a.CSV"))
	assert.True(t, p.Supports("/tmp/x.yml"))
	assert.False(t, p.Supports("a.docx"))
	assert.Contains(t, p.Extensions(), ".pdf")
}

func TestNormalizeHeader(t *testing.T) {
	assert.Equal(t,
		[]string{"id", "column_1", "id_1", "name"},
		normalizeHeader([]string{" id", "", "id", "name"}))
}

func TestFirstTable(t *testing.T) {
	lines := [][]string{
		{"Quarterly report"},
		{"name", "email"},
		{"Ada", "ada@x.com"},
		{"Alan", "alan@x.com"},
		{"Total", "2", "rows"},
	}

	table := firstTable(lines)
	require.Len(t, table, 3)
	assert.Equal(t, []string{"name", "email"}, table[0])

	assert.Nil(t, firstTable([][]string{{"just text"}, {"a", "b"}}))
}

func TestSplitCells(t *testing.T) {
	texts := pdf.TextHorizontal{
		{X: 60, W: 5, S: "x", FontSize: 10},
		{X: 10, W: 5, S: "A", FontSize: 10},
		{X: 15, W: 5, S: "da", FontSize: 10},
	}
	assert.Equal(t, []string{"Ada", "x"}, splitCells(texts))
}
