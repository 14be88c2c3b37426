// Package ingest runs the classified ingestion pipeline: profile a file,
// classify its columns, register it in the catalog, then archive and index
// it in the background.
package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/sujanshetty01/OMD/pkg/catalog"
	"github.com/sujanshetty01/OMD/pkg/classifier"
	"github.com/sujanshetty01/OMD/pkg/dataset"
	"github.com/sujanshetty01/OMD/pkg/errors"
	"github.com/sujanshetty01/OMD/pkg/logging"
	"github.com/sujanshetty01/OMD/pkg/objectstore"
	"github.com/sujanshetty01/OMD/pkg/profiler"
	"github.com/sujanshetty01/OMD/pkg/progress"
	"github.com/sujanshetty01/OMD/pkg/tagmap"
	"github.com/sujanshetty01/OMD/pkg/telemetry"
)

// Progress messages.
const (
	MsgInitializing = "Initializing Secure Ingestion..."
	MsgProfiling    = "Profiling dataset structure..."
	MsgClassifying  = "Analyzing columns with AI Classifier..."
	MsgCatalogSync  = "Syncing metadata to OpenMetadata Governance..."
	MsgSyncFailed   = "Governance sync failed, but continuing..."
	MsgArchiving    = "Archiving raw data in the lake (as Parquet)..."
	MsgIndexing     = "Building semantic index..."
	MsgDone         = "Success! Dataset fully ingested."
	MsgBucketEmpty  = "Bucket is empty."
)

// AutoApplyThreshold is the confidence above which a primary tag is
// applied as Automated.
const AutoApplyThreshold = 0.8

// Entry point names used for metrics.
const (
	EntryFile    = "file"
	EntryObject  = "object"
	EntryBucket  = "bucket"
	EntryCatalog = "catalog"
)

// Config controls where files land and how source locations resolve.
type Config struct {
	UploadDir      string
	RawBucket      string
	FallbackBucket string
}

// DefaultConfig returns the default placement.
func DefaultConfig() Config {
	return Config{
		UploadDir:      "uploads",
		RawBucket:      "raw-data",
		FallbackBucket: "omd-1",
	}
}

// Profiler reads a file into a profiled dataset.
type Profiler interface {
	Profile(ctx context.Context, path, name string) (*profiler.Result, error)
}

// ColumnClassifier assigns at most one tag to a dataset column.
type ColumnClassifier interface {
	ClassifyColumn(ctx context.Context, ds *dataset.Dataset, i int) *classifier.Classification
}

// Indexer writes dataset rows to the semantic index.
type Indexer interface {
	IndexDataset(ctx context.Context, name string, ds *dataset.Dataset, tags []string) (int, error)
}

// Deps are the collaborators of an Orchestrator. Profiler, Classifier and
// Catalog are required.
type Deps struct {
	Profiler   Profiler
	Classifier ColumnClassifier
	Catalog    catalog.Catalog

	// Sources is the external object store read by the S3 entry points.
	Sources objectstore.Store
	// Archive receives the raw parquet copy of every ingested dataset.
	Archive objectstore.Store
	// Index is optional; without it the indexing step is a no-op.
	Index Indexer

	Progress progress.Publisher
	Pool     *Pool
	Logger   *slog.Logger
}

// Result is what an ingestion run returns to its caller: the registered
// catalog view, or a bare acknowledgment when the catalog sync failed.
type Result struct {
	Registered bool
	Dataset    *catalog.DatasetView
	Message    string
}

// MarshalJSON renders the view itself, or {"message": ...}.
func (r *Result) MarshalJSON() ([]byte, error) {
	if r.Registered && r.Dataset != nil {
		return json.Marshal(r.Dataset)
	}
	return json.Marshal(map[string]string{"message": r.Message})
}

func acknowledged() *Result {
	return &Result{Message: "Success"}
}

// BatchSummary is the outcome of IngestBucket.
type BatchSummary struct {
	Status    string `json:"status"`
	Processed int    `json:"processed"`
}

// Orchestrator sequences the ingestion stages.
type Orchestrator struct {
	cfg        Config
	profiler   Profiler
	classifier ColumnClassifier
	catalog    catalog.Catalog
	sources    objectstore.Store
	archive    objectstore.Store
	index      Indexer
	progress   progress.Publisher
	pool       *Pool
	logger     *slog.Logger

	supervised chan struct{}
}

// New creates an orchestrator and starts its supervisor.
func New(cfg Config, deps Deps) (*Orchestrator, error) {
	if deps.Profiler == nil || deps.Classifier == nil || deps.Catalog == nil {
		return nil, errors.New(errors.CodeInvalidInput, "ingest: profiler, classifier and catalog are required")
	}

	def := DefaultConfig()
	if cfg.UploadDir == "" {
		cfg.UploadDir = def.UploadDir
	}
	if cfg.RawBucket == "" {
		cfg.RawBucket = def.RawBucket
	}
	if cfg.FallbackBucket == "" {
		cfg.FallbackBucket = def.FallbackBucket
	}

	logger := logging.Or(deps.Logger)
	o := &Orchestrator{
		cfg:        cfg,
		profiler:   deps.Profiler,
		classifier: deps.Classifier,
		catalog:    deps.Catalog,
		sources:    deps.Sources,
		archive:    deps.Archive,
		index:      deps.Index,
		progress:   deps.Progress,
		pool:       deps.Pool,
		logger:     logger,
		supervised: make(chan struct{}),
	}
	if o.progress == nil {
		o.progress = progress.Discard
	}
	if o.pool == nil {
		o.pool = NewPool(0, logger)
	}

	go o.supervise()
	return o, nil
}

// supervise logs detached failures and surfaces them as warnings.
func (o *Orchestrator) supervise() {
	defer close(o.supervised)
	for te := range o.pool.Errors() {
		o.logger.Error("background ingestion step failed",
			"task", te.Task, "session", te.Session, "error", te.Err)
		o.publish(te.Session, progress.StatusWarning, fmt.Sprintf("%s failed: %v", te.Task, te.Err))
	}
}

// Wait blocks until every detached stage submitted so far has finished.
func (o *Orchestrator) Wait() {
	o.pool.Wait()
}

// Close waits for detached stages, stops the pool and the supervisor.
func (o *Orchestrator) Close() {
	o.pool.Close()
	<-o.supervised
}

// UploadDir is where received and downloaded files are written.
func (o *Orchestrator) UploadDir() string {
	return o.cfg.UploadDir
}

func (o *Orchestrator) publish(session string, status progress.Status, step string) {
	o.progress.Publish(session, progress.Event{Step: step, Status: status})
}

// Upload stores r in the upload directory as name and ingests it.
func (o *Orchestrator) Upload(ctx context.Context, session, name string, r io.Reader) (*Result, error) {
	name = filepath.Base(name)
	o.publish(session, progress.StatusProcessing, MsgInitializing)

	local := filepath.Join(o.cfg.UploadDir, name)
	if err := saveFile(local, r); err != nil {
		telemetry.RecordIngest(EntryFile, err)
		o.publish(session, progress.StatusError, "Error: "+err.Error())
		return nil, err
	}

	res, err := o.process(ctx, session, local, name)
	telemetry.RecordIngest(EntryFile, err)
	return res, err
}

// IngestFile ingests a file already on local disk. name is the dataset
// name registered in the catalog; the base name of path when empty.
func (o *Orchestrator) IngestFile(ctx context.Context, session, path, name string) (*Result, error) {
	if name == "" {
		name = filepath.Base(path)
	}
	o.publish(session, progress.StatusProcessing, MsgInitializing)

	res, err := o.process(ctx, session, path, name)
	telemetry.RecordIngest(EntryFile, err)
	return res, err
}

// IngestObject downloads bucket/key from the source store and ingests it.
func (o *Orchestrator) IngestObject(ctx context.Context, session, bucket, key string) (*Result, error) {
	o.publish(session, progress.StatusProcessing, fmt.Sprintf("Connecting to S3 bucket: %s...", bucket))

	res, err := o.ingestObject(ctx, session, bucket, key)
	if err != nil {
		o.publish(session, progress.StatusError, fmt.Sprintf("S3 Ingestion Error: %v", err))
	}
	telemetry.RecordIngest(EntryObject, err)
	return res, err
}

func (o *Orchestrator) ingestObject(ctx context.Context, session, bucket, key string) (*Result, error) {
	if o.sources == nil {
		return nil, errors.New(errors.CodeInternal, "no source object store configured")
	}

	file := path.Base(key)
	local := filepath.Join(o.cfg.UploadDir, "s3_"+file)

	o.publish(session, progress.StatusProcessing, fmt.Sprintf("Downloading %s from S3...", file))
	if err := objectstore.Download(ctx, o.sources, bucket, key, local); err != nil {
		return nil, errors.Wrapf(err, errors.CodeSourceFetchFailure, "download %s/%s", bucket, key)
	}
	return o.process(ctx, session, local, file)
}

// IngestBucket ingests every object of bucket, one at a time. A failing
// object is skipped with a warning.
func (o *Orchestrator) IngestBucket(ctx context.Context, session, bucket string) (*BatchSummary, error) {
	o.publish(session, progress.StatusProcessing, fmt.Sprintf("Scanning bucket %s for batch ingestion...", bucket))

	summary, err := o.ingestBucket(ctx, session, bucket)
	if err != nil {
		o.publish(session, progress.StatusError, fmt.Sprintf("Batch Error: %v", err))
	}
	telemetry.RecordIngest(EntryBucket, err)
	return summary, err
}

func (o *Orchestrator) ingestBucket(ctx context.Context, session, bucket string) (*BatchSummary, error) {
	if o.sources == nil {
		return nil, errors.New(errors.CodeInternal, "no source object store configured")
	}

	objects, err := o.sources.ListObjects(ctx, bucket, "")
	if err != nil {
		return nil, errors.Wrapf(err, errors.CodeSourceFetchFailure, "list bucket %s", bucket)
	}
	if len(objects) == 0 {
		o.publish(session, progress.StatusWarning, MsgBucketEmpty)
		return &BatchSummary{Status: "empty"}, nil
	}

	total := len(objects)
	o.publish(session, progress.StatusProcessing, fmt.Sprintf("Found %d files. Starting batch processing...", total))

	count := 0
	for _, obj := range objects {
		if strings.HasSuffix(obj.Key, "/") {
			continue
		}
		file := path.Base(obj.Key)
		local := filepath.Join(o.cfg.UploadDir, "s3_batch_"+file)

		o.publish(session, progress.StatusProcessing, fmt.Sprintf("Processing %d/%d: %s...", count+1, total, file))

		err := objectstore.Download(ctx, o.sources, bucket, obj.Key, local)
		if err == nil {
			_, err = o.process(ctx, session, local, file)
		}
		if err != nil {
			o.logger.Warn("skipping object", "bucket", bucket, "key", obj.Key, "error", err)
			o.publish(session, progress.StatusWarning, fmt.Sprintf("Skipped %s (Error)", file))
			continue
		}
		count++
	}

	o.publish(session, progress.StatusComplete, fmt.Sprintf("Batch Complete! Processed %d files.", count))
	return &BatchSummary{Status: "success", Processed: count}, nil
}

// IngestCatalogEntity re-ingests the source file behind a catalog entity.
func (o *Orchestrator) IngestCatalogEntity(ctx context.Context, session, fqn string) (*Result, error) {
	res, err := o.ingestCatalogEntity(ctx, session, fqn)
	telemetry.RecordIngest(EntryCatalog, err)
	return res, err
}

func (o *Orchestrator) ingestCatalogEntity(ctx context.Context, session, fqn string) (*Result, error) {
	table, err := o.catalog.GetTable(ctx, fqn)
	if err != nil {
		return nil, errors.Wrapf(err, errors.CodeCatalogSyncFailure, "look up %s", fqn)
	}
	if table == nil {
		return nil, errors.NotFound("dataset", fqn)
	}

	loc, err := ResolveSourceLocation(fqn, o.cfg.FallbackBucket)
	if err != nil {
		return nil, err
	}
	if o.sources == nil {
		return nil, errors.New(errors.CodeInternal, "no source object store configured")
	}

	o.publish(session, progress.StatusProcessing,
		fmt.Sprintf("Found Metadata. Fetching content from S3 (%s/%s)...", loc.Bucket, loc.Key))

	local := filepath.Join(o.cfg.UploadDir, "om_sync_"+path.Base(loc.Key))
	if err := objectstore.Download(ctx, o.sources, loc.Bucket, loc.Key, local); err != nil {
		o.publish(session, progress.StatusError, fmt.Sprintf("Failed to download from S3: %v", err))
		return nil, errors.Wrapf(err, errors.CodeSourceFetchFailure, "download %s/%s", loc.Bucket, loc.Key)
	}
	return o.process(ctx, session, local, path.Base(loc.Key))
}

// process runs the awaited stages, then hands the dataset to the
// detached archive and index stage.
func (o *Orchestrator) process(ctx context.Context, session, localPath, name string) (res *Result, err error) {
	// A started run is not cancelled by its caller.
	ctx = context.WithoutCancel(ctx)
	ctx, span := telemetry.StartSpan(ctx, "ingest.process",
		attribute.String("dataset", name), attribute.String("session", session))
	defer func() { telemetry.EndSpan(span, err) }()

	o.publish(session, progress.StatusProcessing, MsgProfiling)
	start := time.Now()
	prof, err := Do(o.pool, func() (*profiler.Result, error) {
		return o.profiler.Profile(ctx, localPath, name)
	})
	telemetry.ObserveStage("profile", start, err)
	if err != nil {
		o.publish(session, progress.StatusError, "Error: "+err.Error())
		if errors.IsFatal(err) {
			o.logger.Warn("dataset rejected", "dataset", name, "error", err)
			return nil, err
		}
		err = errors.Wrap(err, errors.CodeInternal, "profile dataset")
		o.logger.Error("profiling failed", "dataset", name, "error", err, "stack", errors.Stack(err))
		return nil, err
	}
	ds := prof.Dataset
	telemetry.AddSpanEvent(ctx, "profiled",
		attribute.Int("rows", prof.RowCount), attribute.Int("columns", ds.NumCols()))

	o.publish(session, progress.StatusProcessing, MsgClassifying)
	start = time.Now()
	columns, _ := Do(o.pool, func() ([]catalog.ColumnSpec, error) {
		return o.classifyColumns(ctx, ds), nil
	})
	telemetry.ObserveStage("classify", start, nil)
	telemetry.AddSpanEvent(ctx, "classified", attribute.Int("tagged_columns", taggedColumns(columns)))

	o.publish(session, progress.StatusProcessing, MsgCatalogSync)
	start = time.Now()
	table, syncErr := Do(o.pool, func() (*catalog.Table, error) {
		return o.catalog.RegisterTable(ctx, name, columns)
	})
	telemetry.ObserveStage("catalog_sync", start, syncErr)
	if syncErr != nil {
		o.logger.Warn("catalog sync failed", "dataset", name,
			"error", errors.Wrap(syncErr, errors.CodeCatalogSyncFailure, "register table"))
		o.publish(session, progress.StatusWarning, MsgSyncFailed)
		telemetry.AddSpanEvent(ctx, "catalog_sync_failed")
		table = nil
	} else {
		telemetry.AddSpanEvent(ctx, "registered", attribute.String("fqn", table.FQN()))
	}

	tags := datasetTags(columns)
	if err := o.pool.Go("archive_and_index", session, func() error {
		o.archiveAndIndex(ctx, session, name, ds, tags)
		return nil
	}); err != nil {
		o.logger.Error("could not schedule archive and index", "dataset", name, "error", err)
	}

	if table == nil {
		return acknowledged(), nil
	}
	return &Result{Registered: true, Dataset: o.view(ctx, table)}, nil
}

// view re-reads the registered table, falling back to what registration
// returned.
func (o *Orchestrator) view(ctx context.Context, registered *catalog.Table) *catalog.DatasetView {
	fetched, err := o.catalog.GetTable(ctx, registered.FQN())
	if err != nil {
		o.logger.Warn("could not re-read registered table", "fqn", registered.FQN(), "error", err)
	}
	if err != nil || fetched == nil {
		return catalog.ViewOf(registered)
	}
	return catalog.ViewOf(fetched)
}

// classifyColumns builds the catalog columns with their primary and
// derived tags.
func (o *Orchestrator) classifyColumns(ctx context.Context, ds *dataset.Dataset) []catalog.ColumnSpec {
	out := make([]catalog.ColumnSpec, len(ds.Columns))
	for i, col := range ds.Columns {
		out[i] = catalog.ColumnSpec{
			Name:     col.Name,
			Datatype: dataset.TypeName(col.Type),
			Tags:     TagsFor(o.classifier.ClassifyColumn(ctx, ds, i)),
		}
	}
	return out
}

// TagsFor turns a classification into catalog tags: the primary tag,
// Automated only above AutoApplyThreshold, then every derived tag as
// Automated.
func TagsFor(c *classifier.Classification) []catalog.TagLabel {
	if c == nil {
		return nil
	}
	lt := catalog.LabelManual
	if c.Confidence > AutoApplyThreshold {
		lt = catalog.LabelAutomated
	}
	tags := []catalog.TagLabel{catalog.NewTag(c.Tag, lt)}
	for _, derived := range tagmap.Map([]string{c.Tag}) {
		tags = append(tags, catalog.NewTag(derived, catalog.LabelAutomated))
	}
	return tags
}

// datasetTags is the sorted union of every column tag.
func datasetTags(columns []catalog.ColumnSpec) []string {
	seen := make(map[string]struct{})
	for _, col := range columns {
		for _, t := range col.Tags {
			seen[t.TagFQN] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func taggedColumns(columns []catalog.ColumnSpec) int {
	n := 0
	for _, col := range columns {
		if len(col.Tags) > 0 {
			n++
		}
	}
	return n
}

// archiveAndIndex runs after the caller has its result. Archive and index
// failures are independent and go to the supervisor.
func (o *Orchestrator) archiveAndIndex(ctx context.Context, session, name string, ds *dataset.Dataset, tags []string) {
	o.publish(session, progress.StatusProcessing, MsgArchiving)
	start := time.Now()
	err := o.archiveRaw(ctx, name, ds)
	telemetry.ObserveStage("archive", start, err)
	if err != nil {
		o.pool.report(TaskError{Task: "archive", Session: session,
			Err: errors.Wrap(err, errors.CodeArchivalFailure, "archive raw dataset")})
	}

	o.publish(session, progress.StatusProcessing, MsgIndexing)
	start = time.Now()
	err = o.indexRows(ctx, name, ds, tags)
	telemetry.ObserveStage("index", start, err)
	if err != nil {
		o.pool.report(TaskError{Task: "index", Session: session,
			Err: errors.Wrap(err, errors.CodeIndexingFailure, "index dataset")})
	}

	o.publish(session, progress.StatusComplete, MsgDone)
}

// RawKey is the archive key for a file: its stem with a parquet extension.
func RawKey(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name)) + ".parquet"
}

func (o *Orchestrator) archiveRaw(ctx context.Context, name string, ds *dataset.Dataset) error {
	if o.archive == nil {
		o.logger.Debug("no archive store configured, skipping", "dataset", name)
		return nil
	}

	var buf bytes.Buffer
	if err := dataset.WriteParquet(&buf, ds); err != nil {
		return fmt.Errorf("encode parquet: %w", err)
	}
	if err := o.archive.EnsureBucket(ctx, o.cfg.RawBucket); err != nil {
		return fmt.Errorf("ensure bucket %s: %w", o.cfg.RawBucket, err)
	}

	key := RawKey(name)
	if err := o.archive.PutObject(ctx, o.cfg.RawBucket, key, bytes.NewReader(buf.Bytes()), int64(buf.Len()), objectstore.ContentTypeParquet); err != nil {
		return fmt.Errorf("write %s/%s: %w", o.cfg.RawBucket, key, err)
	}
	o.logger.Info("archived raw dataset", "bucket", o.cfg.RawBucket, "key", key, "bytes", buf.Len())
	return nil
}

func (o *Orchestrator) indexRows(ctx context.Context, name string, ds *dataset.Dataset, tags []string) error {
	if o.index == nil {
		o.logger.Debug("no semantic index configured, skipping", "dataset", name)
		return nil
	}
	n, err := o.index.IndexDataset(ctx, name, ds, tags)
	if err != nil {
		return err
	}
	o.logger.Info("indexed dataset", "dataset", name, "documents", n)
	return nil
}

func saveFile(dst string, r io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("failed to create upload directory: %w", err)
	}
	f, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(dst)
		return fmt.Errorf("failed to write %s: %w", dst, err)
	}
	return f.Close()
}
