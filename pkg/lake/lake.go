// Package lake keeps a columnar, versioned copy of every dataset in an
// object-store bucket.
//
// Each write produces two parquet objects:
//
//	sources/{type}/{db}/{table}.parquet                     current, overwritten
//	snapshots/{type}/{db}/{table}_{YYYYMMDD_HHMMSS}.parquet immutable
package lake

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/sujanshetty01/OMD/pkg/dataset"
	"github.com/sujanshetty01/OMD/pkg/errors"
	"github.com/sujanshetty01/OMD/pkg/logging"
	"github.com/sujanshetty01/OMD/pkg/objectstore"
	"github.com/sujanshetty01/OMD/pkg/telemetry"
)

// DefaultBucket is the lake bucket name.
const DefaultBucket = "data-lake"

const (
	currentPrefix   = "sources/"
	snapshotPrefix  = "snapshots/"
	parquetExt      = ".parquet"
	timestampLayout = "20060102_150405"
	bytesPerMB      = 1024 * 1024
)

// StoreResult describes one successful write.
type StoreResult struct {
	Current   string  `json:"current"`
	Snapshot  string  `json:"snapshot"`
	Rows      int     `json:"rows"`
	Columns   int     `json:"columns"`
	SizeBytes int64   `json:"size_bytes"`
	SizeMB    float64 `json:"size_mb"`
	Timestamp string  `json:"timestamp"`
}

// TableInfo describes one current object.
type TableInfo struct {
	SourceType   string    `json:"source_type"`
	Database     string    `json:"database"`
	Table        string    `json:"table"`
	SizeBytes    int64     `json:"size_bytes"`
	SizeMB       float64   `json:"size_mb"`
	LastModified time.Time `json:"last_modified"`
	Path         string    `json:"path"`
}

// GroupStats aggregates tables sharing a source type or database.
type GroupStats struct {
	Count  int     `json:"count"`
	SizeMB float64 `json:"size_mb"`
}

// Stats aggregates the lake contents.
type Stats struct {
	TotalTables int                    `json:"total_tables"`
	TotalSizeMB float64                `json:"total_size_mb"`
	TotalSizeGB float64                `json:"total_size_gb"`
	Sources     map[string]*GroupStats `json:"sources"`
	Databases   map[string]*GroupStats `json:"databases"`
}

// Synchronizer writes datasets to the lake and reports on its contents.
type Synchronizer struct {
	store  objectstore.Store
	bucket string
	logger *slog.Logger
	now    func() time.Time

	bucketMu    sync.Mutex
	bucketReady bool
}

// Option configures a Synchronizer.
type Option func(*Synchronizer)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Synchronizer) { s.logger = l }
}

// WithClock replaces time.Now for snapshot timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Synchronizer) { s.now = now }
}

// New returns a synchronizer writing to bucket on store.
func New(store objectstore.Store, bucket string, opts ...Option) *Synchronizer {
	if bucket == "" {
		bucket = DefaultBucket
	}
	s := &Synchronizer{store: store, bucket: bucket, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.Or(s.logger).With("component", "lake", "bucket", bucket)
	return s
}

// Bucket returns the lake bucket name.
func (s *Synchronizer) Bucket() string { return s.bucket }

// ensureBucket runs once successfully per synchronizer; failures retry on
// the next call.
func (s *Synchronizer) ensureBucket(ctx context.Context) error {
	s.bucketMu.Lock()
	defer s.bucketMu.Unlock()
	if s.bucketReady {
		return nil
	}
	if err := s.store.EnsureBucket(ctx, s.bucket); err != nil {
		return err
	}
	s.bucketReady = true
	return nil
}

// ValidateSegments rejects key segments that would not survive the
// sources/{type}/{db}/{table} layout unchanged.
func ValidateSegments(sourceType, database, table string) error {
	for _, seg := range []struct{ name, value string }{
		{"source type", sourceType},
		{"database", database},
		{"table", table},
	} {
		switch {
		case seg.value == "", seg.value == ".", seg.value == "..":
			return errors.InvalidInput(fmt.Sprintf("invalid lake %s %q", seg.name, seg.value))
		case strings.ContainsAny(seg.value, "/\\"):
			return errors.InvalidInput(fmt.Sprintf("lake %s %q contains a path separator", seg.name, seg.value))
		}
	}
	return nil
}

// CurrentKey returns the object key of the current copy. Segments are
// used verbatim; see ValidateSegments.
func CurrentKey(sourceType, database, table string) string {
	return strings.Join([]string{"sources", sourceType, database, table + parquetExt}, "/")
}

// SnapshotKey returns the object key of a snapshot taken at ts.
func SnapshotKey(sourceType, database, table string, ts time.Time) string {
	return strings.Join([]string{"snapshots", sourceType, database, table + "_" + ts.Format(timestampLayout) + parquetExt}, "/")
}

func (s *Synchronizer) uri(key string) string {
	return "s3://" + s.bucket + "/" + key
}

// Store writes ds as the current copy and a new snapshot. An empty dataset
// is skipped: nothing is written and the result is nil.
func (s *Synchronizer) Store(ctx context.Context, sourceType, database, table string, ds *dataset.Dataset) (*StoreResult, error) {
	if ds.Empty() {
		s.logger.Info("skipping empty dataset", "source_type", sourceType, "database", database, "table", table)
		telemetry.RecordLakeWrite(telemetry.OutcomeSkipped, 0)
		return nil, nil
	}

	result, err := s.write(ctx, sourceType, database, table, ds)
	if err != nil {
		s.logger.Error("lake store failed", "source_type", sourceType, "database", database, "table", table, "error", err)
		telemetry.RecordLakeWrite(telemetry.OutcomeFailed, 0)
		return nil, err
	}

	telemetry.RecordLakeWrite(telemetry.OutcomeOK, result.SizeBytes)
	s.logger.Info("stored dataset",
		"path", result.Current, "rows", result.Rows, "columns", result.Columns,
		"size_mb", fmt.Sprintf("%.2f", result.SizeMB))
	return result, nil
}

func (s *Synchronizer) write(ctx context.Context, sourceType, database, table string, ds *dataset.Dataset) (*StoreResult, error) {
	if err := ValidateSegments(sourceType, database, table); err != nil {
		return nil, err
	}
	if err := s.ensureBucket(ctx); err != nil {
		return nil, fmt.Errorf("ensure bucket %s: %w", s.bucket, err)
	}

	var buf bytes.Buffer
	if err := dataset.WriteParquet(&buf, ds); err != nil {
		return nil, fmt.Errorf("encode parquet: %w", err)
	}
	data := buf.Bytes()

	ts := s.now()
	current := CurrentKey(sourceType, database, table)
	snapshot := SnapshotKey(sourceType, database, table, ts)

	for _, key := range []string{current, snapshot} {
		if err := s.store.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), objectstore.ContentTypeParquet); err != nil {
			return nil, fmt.Errorf("write %s: %w", key, err)
		}
	}

	return &StoreResult{
		Current:   s.uri(current),
		Snapshot:  s.uri(snapshot),
		Rows:      ds.NumRows(),
		Columns:   ds.NumCols(),
		SizeBytes: int64(len(data)),
		SizeMB:    float64(len(data)) / bytesPerMB,
		Timestamp: ts.Format(timestampLayout),
	}, nil
}

// Read returns the current copy, or nil if it cannot be read.
func (s *Synchronizer) Read(ctx context.Context, sourceType, database, table string) *dataset.Dataset {
	if err := ValidateSegments(sourceType, database, table); err != nil {
		s.logger.Warn("lake read rejected", "error", err)
		return nil
	}
	key := CurrentKey(sourceType, database, table)

	body, err := s.store.GetObject(ctx, s.bucket, key)
	if err != nil {
		s.logger.Warn("lake read failed", "path", key, "error", err)
		return nil
	}
	defer body.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(body); err != nil {
		s.logger.Warn("lake read failed", "path", key, "error", err)
		return nil
	}

	ds, err := dataset.ReadParquet(ctx, bytes.NewReader(buf.Bytes()), table)
	if err != nil {
		s.logger.Warn("lake decode failed", "path", key, "error", err)
		return nil
	}
	s.logger.Debug("read dataset", "path", key, "rows", ds.NumRows())
	return ds
}

// ListTables lists every current copy.
func (s *Synchronizer) ListTables(ctx context.Context) ([]TableInfo, error) {
	if err := s.ensureBucket(ctx); err != nil {
		return nil, fmt.Errorf("ensure bucket %s: %w", s.bucket, err)
	}

	objs, err := s.store.ListObjects(ctx, s.bucket, currentPrefix)
	if err != nil {
		return nil, err
	}

	tables := make([]TableInfo, 0, len(objs))
	for _, obj := range objs {
		info, ok := parseCurrentKey(obj.Key)
		if !ok {
			continue
		}
		info.SizeBytes = obj.Size
		info.SizeMB = float64(obj.Size) / bytesPerMB
		info.LastModified = obj.LastModified
		tables = append(tables, info)
	}
	s.logger.Debug("listed lake tables", "count", len(tables))
	return tables, nil
}

func parseCurrentKey(key string) (TableInfo, bool) {
	if !strings.HasSuffix(key, parquetExt) {
		return TableInfo{}, false
	}
	parts := strings.Split(key, "/")
	if len(parts) != 4 {
		return TableInfo{}, false
	}
	return TableInfo{
		SourceType: parts[1],
		Database:   parts[2],
		Table:      strings.TrimSuffix(parts[3], parquetExt),
		Path:       key,
	}, true
}

// Stats aggregates ListTables by source type and database.
func (s *Synchronizer) Stats(ctx context.Context) (*Stats, error) {
	tables, err := s.ListTables(ctx)
	if err != nil {
		return nil, err
	}
	return Aggregate(tables), nil
}

// Aggregate computes Stats from a table listing.
func Aggregate(tables []TableInfo) *Stats {
	st := &Stats{
		TotalTables: len(tables),
		Sources:     make(map[string]*GroupStats),
		Databases:   make(map[string]*GroupStats),
	}

	var total int64
	for _, t := range tables {
		total += t.SizeBytes
		add(st.Sources, t.SourceType, t.SizeMB)
		add(st.Databases, t.Database, t.SizeMB)
	}
	st.TotalSizeMB = float64(total) / bytesPerMB
	st.TotalSizeGB = float64(total) / (bytesPerMB * 1024)
	return st
}

func add(groups map[string]*GroupStats, key string, sizeMB float64) {
	g, ok := groups[key]
	if !ok {
		g = &GroupStats{}
		groups[key] = g
	}
	g.Count++
	g.SizeMB += sizeMB
}
