package dataset

import (
	"bytes"
	"context"
	"testing"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParquet_PreservesTypesAndNulls(t *testing.T) {
	src := FromStrings("customers", []string{"id", "name", "balance", "vip"}, [][]string{
		{"1", "Ada", "10.5", "true"},
		{"2", "", "", "false"},
		{"3", "Linus", "7.25", ""},
	})

	var buf bytes.Buffer
	require.NoError(t, WriteParquet(&buf, src))
	require.NotZero(t, buf.Len())

	got, err := ReadParquet(context.Background(), bytes.NewReader(buf.Bytes()), "customers")
	require.NoError(t, err)

	assert.Equal(t, src.ColumnNames(), got.ColumnNames())
	assert.Equal(t, arrow.INT64, got.Columns[0].Type.ID())
	assert.Equal(t, arrow.FLOAT64, got.Columns[2].Type.ID())
	assert.Equal(t, arrow.BOOL, got.Columns[3].Type.ID())
	assert.Equal(t, src.Rows, got.Rows)
}
