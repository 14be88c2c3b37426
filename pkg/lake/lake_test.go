package lake

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sujanshetty01/OMD/pkg/dataset"
	omderrors "github.com/sujanshetty01/OMD/pkg/errors"
	"github.com/sujanshetty01/OMD/pkg/logging"
	"github.com/sujanshetty01/OMD/pkg/objectstore"
)

var fixedTime = time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC)

func newTestLake(store objectstore.Store) *Synchronizer {
	return New(store, "", WithLogger(logging.Discard()), WithClock(func() time.Time { return fixedTime }))
}

func customers() *dataset.Dataset {
	return dataset.FromStrings("customers", []string{"id", "email"}, [][]string{
		{"1", "a@example.com"},
		{"2", "b@example.com"},
		{"3", ""},
	})
}

func TestStore_WritesCurrentAndSnapshot(t *testing.T) {
	mem := objectstore.NewMemory()
	lk := newTestLake(mem)

	res, err := lk.Store(context.Background(), "postgres", "customers_db", "customers", customers())
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.Equal(t, "s3://data-lake/sources/postgres/customers_db/customers.parquet", res.Current)
	assert.Equal(t, "s3://data-lake/snapshots/postgres/customers_db/customers_20240309_140507.parquet", res.Snapshot)
	assert.Equal(t, 3, res.Rows)
	assert.Equal(t, 2, res.Columns)
	assert.Equal(t, "20240309_140507", res.Timestamp)
	assert.Positive(t, res.SizeBytes)
	assert.InDelta(t, float64(res.SizeBytes)/(1024*1024), res.SizeMB, 1e-12)

	assert.Equal(t, []string{
		"snapshots/postgres/customers_db/customers_20240309_140507.parquet",
		"sources/postgres/customers_db/customers.parquet",
	}, mem.Keys("data-lake"))
}

func TestStore_EmptyDatasetWritesNothing(t *testing.T) {
	mem := objectstore.NewMemory()
	lk := newTestLake(mem)

	empty := dataset.FromStrings("e", []string{"a"}, nil)
	res, err := lk.Store(context.Background(), "mysql", "db", "t", empty)
	require.NoError(t, err)
	assert.Nil(t, res)

	res, err = lk.Store(context.Background(), "mysql", "db", "t", nil)
	require.NoError(t, err)
	assert.Nil(t, res)

	buckets, _ := mem.ListBuckets(context.Background())
	assert.Empty(t, buckets, "bucket is not even created")
}

func TestStore_RewriteKeepsOneCurrentAndAddsSnapshot(t *testing.T) {
	mem := objectstore.NewMemory()
	now := fixedTime
	lk := New(mem, "data-lake", WithLogger(logging.Discard()), WithClock(func() time.Time { return now }))
	ctx := context.Background()

	_, err := lk.Store(ctx, "postgres", "db", "t", customers())
	require.NoError(t, err)
	now = now.Add(time.Minute)
	_, err = lk.Store(ctx, "postgres", "db", "t", customers())
	require.NoError(t, err)

	objs, err := mem.ListObjects(ctx, "data-lake", "snapshots/")
	require.NoError(t, err)
	assert.Len(t, objs, 2)
	objs, err = mem.ListObjects(ctx, "data-lake", "sources/")
	require.NoError(t, err)
	assert.Len(t, objs, 1)
}

func TestReadRoundTrip(t *testing.T) {
	mem := objectstore.NewMemory()
	lk := newTestLake(mem)
	ctx := context.Background()

	_, err := lk.Store(ctx, "postgres", "customers_db", "customers", customers())
	require.NoError(t, err)

	got := lk.Read(ctx, "postgres", "customers_db", "customers")
	require.NotNil(t, got)
	assert.Equal(t, 3, got.NumRows())
	assert.Equal(t, []string{"id", "email"}, got.ColumnNames())
	assert.Equal(t, int64(2), got.Rows[1][0])
	assert.Nil(t, got.Rows[2][1])

	assert.Nil(t, lk.Read(ctx, "postgres", "customers_db", "absent"))
}

type failingStore struct {
	*objectstore.Memory
	putErr    error
	ensureErr error
	ensures   int
}

func (f *failingStore) EnsureBucket(ctx context.Context, bucket string) error {
	f.ensures++
	if f.ensureErr != nil {
		return f.ensureErr
	}
	return f.Memory.EnsureBucket(ctx, bucket)
}

func (f *failingStore) PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64, ct string) error {
	if f.putErr != nil {
		return f.putErr
	}
	return f.Memory.PutObject(ctx, bucket, key, r, size, ct)
}

func TestStore_FailurePropagates(t *testing.T) {
	fs := &failingStore{Memory: objectstore.NewMemory(), putErr: errors.New("disk full")}
	lk := newTestLake(fs)

	res, err := lk.Store(context.Background(), "sap", "erp", "orders", customers())
	assert.Nil(t, res)
	assert.ErrorContains(t, err, "disk full")
}

func TestEnsureBucket_OnceAndRetriesAfterFailure(t *testing.T) {
	fs := &failingStore{Memory: objectstore.NewMemory(), ensureErr: errors.New("unreachable")}
	lk := newTestLake(fs)
	ctx := context.Background()

	_, err := lk.ListTables(ctx)
	require.Error(t, err)

	fs.ensureErr = nil
	_, err = lk.ListTables(ctx)
	require.NoError(t, err)
	_, err = lk.Store(ctx, "a", "b", "c", customers())
	require.NoError(t, err)

	assert.Equal(t, 2, fs.ensures)
}

func TestListTables_ParsesCurrentKeys(t *testing.T) {
	mem := objectstore.NewMemory()
	ctx := context.Background()
	require.NoError(t, mem.EnsureBucket(ctx, "data-lake"))
	put := func(key string, size int) {
		require.NoError(t, mem.PutObject(ctx, "data-lake", key, io.LimitReader(zeros{}, int64(size)), int64(size), ""))
	}
	put("sources/postgres/customers_db/customers.parquet", 1024*1024)
	put("sources/mysql/products_db/products.parquet", 512*1024)
	put("sources/too/short.parquet", 10)
	put("sources/postgres/customers_db/notes.txt", 10)
	put("snapshots/postgres/customers_db/customers_20240101_000000.parquet", 10)

	lk := newTestLake(mem)
	tables, err := lk.ListTables(ctx)
	require.NoError(t, err)
	require.Len(t, tables, 2)

	byTable := map[string]TableInfo{}
	for _, tb := range tables {
		byTable[tb.Table] = tb
	}
	c := byTable["customers"]
	assert.Equal(t, "postgres", c.SourceType)
	assert.Equal(t, "customers_db", c.Database)
	assert.Equal(t, 1.0, c.SizeMB)
	assert.Equal(t, "sources/postgres/customers_db/customers.parquet", c.Path)

	stats, err := lk.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalTables)
	assert.InDelta(t, 1.5, stats.TotalSizeMB, 1e-9)
	assert.Equal(t, &GroupStats{Count: 1, SizeMB: 0.5}, stats.Sources["mysql"])
	assert.Equal(t, 1, stats.Databases["customers_db"].Count)
}

func TestStore_TablesRoundTripThroughListTables(t *testing.T) {
	mem := objectstore.NewMemory()
	lk := newTestLake(mem)
	ctx := context.Background()

	for _, name := range []string{"customers", "orders.2024", "v1..archive"} {
		_, err := lk.Store(ctx, "postgres", "customers_db", name, customers())
		require.NoError(t, err, name)
	}

	tables, err := lk.ListTables(ctx)
	require.NoError(t, err)
	var names []string
	for _, tb := range tables {
		assert.Equal(t, "postgres", tb.SourceType)
		assert.Equal(t, "customers_db", tb.Database)
		assert.Equal(t, CurrentKey(tb.SourceType, tb.Database, tb.Table), tb.Path)
		names = append(names, tb.Table)
	}
	assert.ElementsMatch(t, []string{"customers", "orders.2024", "v1..archive"}, names)
}

func TestStore_RejectsUnsafeSegments(t *testing.T) {
	tests := []struct {
		name                      string
		sourceType, database, tbl string
	}{
		{"empty table", "postgres", "db", ""},
		{"empty database", "postgres", "", "t"},
		{"dot source", ".", "db", "t"},
		{"parent database", "postgres", "..", "t"},
		{"slash in table", "postgres", "db", "a/b"},
		{"backslash in database", "postgres", `x\y`, "t"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mem := objectstore.NewMemory()
			lk := newTestLake(mem)

			res, err := lk.Store(context.Background(), tt.sourceType, tt.database, tt.tbl, customers())
			require.Error(t, err)
			assert.Nil(t, res)
			assert.True(t, omderrors.IsCode(err, omderrors.CodeInvalidInput))
			assert.Empty(t, mem.Keys("data-lake"))
			assert.Nil(t, lk.Read(context.Background(), tt.sourceType, tt.database, tt.tbl))
		})
	}
}

type zeros struct{}

func (zeros) Read(p []byte) (int, error) {
	clear(p)
	return len(p), nil
}

func TestAggregate_SumsMatchTotals(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	sources := []string{"postgres", "mysql", "sap", "unknown"}

	for round := 0; round < 50; round++ {
		n := r.Intn(20)
		tables := make([]TableInfo, n)
		for i := range tables {
			size := r.Int63n(50 << 20)
			tables[i] = TableInfo{
				SourceType: sources[r.Intn(len(sources))],
				Database:   fmt.Sprintf("db%d", r.Intn(4)),
				SizeBytes:  size,
				SizeMB:     float64(size) / (1024 * 1024),
			}
		}

		st := Aggregate(tables)
		count, size := 0, 0.0
		for _, g := range st.Sources {
			count += g.Count
			size += g.SizeMB
		}
		assert.Equal(t, st.TotalTables, count)
		assert.InDelta(t, st.TotalSizeMB, size, 1e-6)

		count = 0
		for _, g := range st.Databases {
			count += g.Count
		}
		assert.Equal(t, st.TotalTables, count)
	}
}
