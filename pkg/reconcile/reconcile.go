// Package reconcile walks every catalog table and brings the lake and the
// semantic index up to date with the rows the catalog knows about.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/sujanshetty01/OMD/pkg/catalog"
	"github.com/sujanshetty01/OMD/pkg/dataset"
	"github.com/sujanshetty01/OMD/pkg/errors"
	"github.com/sujanshetty01/OMD/pkg/lake"
	"github.com/sujanshetty01/OMD/pkg/logging"
	"github.com/sujanshetty01/OMD/pkg/telemetry"
)

// DefaultRowLimit bounds rows fetched directly from a source.
const DefaultRowLimit = 50

// Source fetches rows for a table straight from its database. ok is false
// when no connector serves fqn.
type Source interface {
	Fetch(ctx context.Context, fqn string, limit int) (cols []string, rows [][]any, ok bool, err error)
}

// Lake stores table snapshots.
type Lake interface {
	Store(ctx context.Context, sourceType, database, table string, ds *dataset.Dataset) (*lake.StoreResult, error)
	Stats(ctx context.Context) (*lake.Stats, error)
}

// Indexer writes dataset rows to the semantic index.
type Indexer interface {
	IndexDataset(ctx context.Context, name string, ds *dataset.Dataset, tags []string) (int, error)
}

// Summary reports one reconciliation pass.
type Summary struct {
	Status          string      `json:"status"`
	IndexedCount    int         `json:"indexed_count"`
	LakeStoredCount int         `json:"lake_stored_count"`
	TotalScanned    int         `json:"total_scanned"`
	LakeStats       *lake.Stats `json:"lake_stats"`

	// Failures holds one error per table that could not be fully
	// reconciled.
	Failures []error `json:"-"`
}

// Reconciler runs reconciliation passes.
type Reconciler struct {
	catalog  catalog.Catalog
	lake     Lake
	index    Indexer
	sources  Source
	rowLimit int
	logger   *slog.Logger
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithSource enables the direct-source fallback.
func WithSource(s Source) Option {
	return func(r *Reconciler) { r.sources = s }
}

// WithRowLimit sets the direct-source row limit.
func WithRowLimit(n int) Option {
	return func(r *Reconciler) {
		if n > 0 {
			r.rowLimit = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Reconciler) { r.logger = logging.Or(l) }
}

// New creates a reconciler. index may be nil, in which case nothing is
// indexed.
func New(cat catalog.Catalog, lk Lake, index Indexer, opts ...Option) *Reconciler {
	r := &Reconciler{
		catalog:  cat,
		lake:     lk,
		index:    index,
		rowLimit: DefaultRowLimit,
		logger:   logging.Discard(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run performs one pass over every catalog table. Per-table failures are
// collected in the summary and skipped; only a failed catalog listing
// aborts the pass.
func (r *Reconciler) Run(ctx context.Context) (sum *Summary, err error) {
	ctx, span := telemetry.StartSpan(ctx, "reconcile.run")
	defer func() { telemetry.EndSpan(span, err) }()

	tables, err := r.catalog.ListTables(ctx, catalog.FieldColumns, catalog.FieldTags, catalog.FieldSampleData)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeCatalogSyncFailure, "list catalog tables")
	}
	r.logger.Info("starting reconciliation", "tables", len(tables))

	sum = &Summary{Status: "success", TotalScanned: len(tables)}
	var failures errors.MultiError
	for i := range tables {
		stored, indexed, err := r.reconcile(ctx, &tables[i])
		if stored {
			sum.LakeStoredCount++
		}
		if indexed {
			sum.IndexedCount++
		}
		if err != nil {
			failures.Add(fmt.Errorf("%s: %w", tables[i].FQN(), err))
		}
	}
	sum.Failures = failures.Errors
	if failures.HasErrors() {
		r.logger.Warn("some tables failed to reconcile",
			"failed", len(failures.Errors), "error", failures.Combined())
	}

	stats, err := r.lake.Stats(ctx)
	if err != nil {
		r.logger.Warn("could not read lake stats", "error", err)
		stats = lake.Aggregate(nil)
	}
	sum.LakeStats = stats

	span.SetAttributes(
		attribute.Int("tables.scanned", sum.TotalScanned),
		attribute.Int("tables.stored", sum.LakeStoredCount),
		attribute.Int("tables.indexed", sum.IndexedCount),
		attribute.Int("tables.failed", len(sum.Failures)),
	)
	r.logger.Info("reconciliation complete",
		"scanned", sum.TotalScanned, "lake_stored", sum.LakeStoredCount, "indexed", sum.IndexedCount,
		"lake_tables", stats.TotalTables, "lake_size_mb", fmt.Sprintf("%.2f", stats.TotalSizeMB))
	return sum, nil
}

// reconcile stores and indexes one table. err combines every stage that
// failed for it.
func (r *Reconciler) reconcile(ctx context.Context, t *catalog.Table) (stored, indexed bool, err error) {
	fqn := t.FQN()
	logger := r.logger.With("fqn", fqn)
	var failures errors.MultiError

	ds, err := r.rows(ctx, t)
	if err != nil {
		logger.Warn("direct source fetch failed", "error", err)
		failures.Add(err)
	}
	if ds.Empty() {
		logger.Info("no sample rows, skipping")
		telemetry.RecordReconciledTable(telemetry.OutcomeSkipped)
		return false, false, failures.Combined()
	}
	logger.Info("found sample rows", "rows", ds.NumRows())

	loc := ParseFQN(fqn)
	res, err := r.lake.Store(ctx, loc.SourceType, loc.Database, loc.Table, ds)
	if err != nil {
		logger.Warn("lake store failed", "error", err)
		failures.Add(errors.Wrap(err, errors.CodeArchivalFailure, "store snapshot"))
	}
	stored = res != nil

	if r.index != nil {
		tags := uniqueSorted(t.AllTags())
		n, err := r.index.IndexDataset(ctx, fqn, ds, tags)
		if err != nil {
			err = errors.Wrap(err, errors.CodeIndexingFailure, "index table")
			logger.Warn("indexing failed", "error", err)
			failures.Add(err)
		} else {
			logger.Info("indexed table", "documents", n, "tags", tags)
			indexed = true
		}
	}

	result := telemetry.OutcomeOK
	if !stored && !indexed {
		result = telemetry.OutcomeFailed
	}
	telemetry.RecordReconciledTable(result)
	return stored, indexed, failures.Combined()
}

// rows returns the catalog's sample rows, or rows fetched directly from
// the source when the catalog has none.
func (r *Reconciler) rows(ctx context.Context, t *catalog.Table) (*dataset.Dataset, error) {
	if t.HasSampleRows() {
		return dataset.FromValues(t.FQN(), header(t.SampleData.Columns, t.SampleData.Rows), t.SampleData.Rows), nil
	}
	if r.sources == nil {
		return nil, nil
	}

	cols, rows, ok, err := r.sources.Fetch(ctx, t.FQN(), r.rowLimit)
	if !ok {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeSourceFetchFailure, "fetch rows")
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return dataset.FromValues(t.FQN(), header(cols, rows), rows), nil
}

// header pads missing column names with their positions.
func header(cols []string, rows [][]any) []string {
	width := len(cols)
	for _, row := range rows {
		if len(row) > width {
			width = len(row)
		}
	}
	out := make([]string, width)
	for i := range out {
		if i < len(cols) && cols[i] != "" {
			out[i] = cols[i]
		} else {
			out[i] = strconv.Itoa(i)
		}
	}
	return out
}

func uniqueSorted(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Location is where a catalog table lands in the lake.
type Location struct {
	SourceType string `json:"type"`
	Database   string `json:"database"`
	Schema     string `json:"schema"`
	Table      string `json:"table"`
}

var serviceTypes = []struct {
	markers    []string
	sourceType string
}{
	{[]string{"Postgres"}, "postgres"},
	{[]string{"MySQL", "Inventory"}, "mysql"},
	{[]string{"SAP"}, "sap"},
	{[]string{"BigQuery"}, "bigquery"},
}

// ParseFQN splits service.database.schema.table, sniffing the source type
// from the service name. Quoted segments are unquoted. Missing parts get
// placeholder values; a malformed FQN is taken as a bare table name.
func ParseFQN(fqn string) Location {
	parts, err := catalog.SplitFQN(fqn)
	if err != nil {
		parts = []string{fqn}
	}

	loc := Location{SourceType: "unknown", Database: "unknown", Schema: "default", Table: parts[len(parts)-1]}
	for _, st := range serviceTypes {
		if containsAny(parts[0], st.markers) {
			loc.SourceType = st.sourceType
			break
		}
	}
	if len(parts) > 1 {
		loc.Database = parts[1]
	}
	if len(parts) > 2 {
		loc.Schema = parts[2]
	}
	if len(parts) > 3 {
		loc.Table = parts[3]
	}
	return loc
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
