package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sujanshetty01/OMD/pkg/catalog"
	"github.com/sujanshetty01/OMD/pkg/catalog/filecatalog"
	"github.com/sujanshetty01/OMD/pkg/catalog/openmetadata"
	"github.com/sujanshetty01/OMD/pkg/classifier"
	"github.com/sujanshetty01/OMD/pkg/config"
	"github.com/sujanshetty01/OMD/pkg/embedding"
	"github.com/sujanshetty01/OMD/pkg/ingest"
	"github.com/sujanshetty01/OMD/pkg/lake"
	"github.com/sujanshetty01/OMD/pkg/objectstore"
	"github.com/sujanshetty01/OMD/pkg/objectstore/minio"
	"github.com/sujanshetty01/OMD/pkg/objectstore/s3"
	"github.com/sujanshetty01/OMD/pkg/profiler"
	"github.com/sujanshetty01/OMD/pkg/progress"
	"github.com/sujanshetty01/OMD/pkg/reconcile"
	"github.com/sujanshetty01/OMD/pkg/sources"
	"github.com/sujanshetty01/OMD/pkg/telemetry"
	"github.com/sujanshetty01/OMD/pkg/vectorindex"
)

// app holds every component built from the configuration.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	hub     *progress.Hub
	relay   *progress.RedisRelay
	catalog catalog.Catalog
	sources objectstore.Store
	lake    *lake.Synchronizer
	index   *vectorindex.Index
	conns   *sources.Registry
	pool    *ingest.Pool

	profiler   *profiler.Profiler
	orch       *ingest.Orchestrator
	reconciler *reconcile.Reconciler

	shutdownTracing func(context.Context) error
}

type appOptions struct {
	// relay publishes progress through redis so every server replica
	// reaches its own websocket clients.
	relay bool
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts appOptions) (a *app, err error) {
	a = &app{cfg: cfg, logger: logger, hub: progress.NewHub(logger)}
	defer func() {
		if err != nil {
			a.close(context.Background())
		}
	}()
	a.hub.OnDrop = telemetry.RecordProgressDrop

	if cfg.Telemetry.Enabled {
		tc := telemetry.DefaultOTLPConfig("omd")
		tc.ServiceVersion = version
		if cfg.Telemetry.Endpoint != "" {
			tc.Endpoint = cfg.Telemetry.Endpoint
		}
		tc.InsecureTLS = cfg.Telemetry.Insecure
		tc.SamplingRatio = cfg.Telemetry.SampleRatio
		if a.shutdownTracing, err = telemetry.InitOTLP(ctx, tc); err != nil {
			return nil, fmt.Errorf("init tracing: %w", err)
		}
	}

	if a.catalog, err = newCatalog(cfg.Catalog, logger); err != nil {
		return nil, err
	}

	sc := s3.DefaultConfig(cfg.SourceStore.Region)
	sc.Endpoint = cfg.SourceStore.Endpoint
	sc.UsePathStyle = cfg.SourceStore.UsePathStyle
	sc.AccessKeyID = cfg.SourceStore.AccessKeyID
	sc.SecretAccessKey = cfg.SourceStore.SecretAccessKey
	if a.sources, err = s3.NewClient(ctx, sc); err != nil {
		return nil, fmt.Errorf("source store: %w", err)
	}

	lakeStore, err := newLakeStore(cfg.LakeStore, logger)
	if err != nil {
		return nil, err
	}
	a.lake = lake.New(lakeStore, cfg.Lake.Bucket, lake.WithLogger(logger))

	var embedder *embedding.OpenAIEmbedder
	if cfg.Embedding.Model != "" {
		embedder, err = embedding.NewOpenAIEmbedder(embedding.Config{
			BaseURL: cfg.Embedding.BaseURL,
			APIKey:  cfg.Embedding.APIKey,
			Model:   cfg.Embedding.Model,
		}, logger)
		if err != nil {
			return nil, err
		}
	}

	classifierOpts := []classifier.Option{classifier.WithLogger(logger)}
	if cfg.Embedding.Similarity && embedder != nil {
		classifierOpts = append(classifierOpts, classifier.WithSimilarity(classifier.NewEmbeddingSimilarityWithCache(embedder, cfg.Embedding.CacheSize)))
	}

	if cfg.Vector.Enabled {
		if embedder == nil {
			return nil, fmt.Errorf("vector index requires an embedding model")
		}
		a.index, err = vectorindex.New(vectorindex.Config{
			URL:       cfg.Vector.Scheme + "://" + cfg.Vector.Host,
			ClassName: cfg.Vector.ClassName,
			MaxRows:   cfg.Vector.MaxRows,
		}, embedder, logger)
		if err != nil {
			return nil, err
		}
	}

	specs := make([]sources.Spec, len(cfg.Reconcile.Connectors))
	for i, c := range cfg.Reconcile.Connectors {
		specs[i] = sources.Spec{Match: c.Match, Driver: c.Driver, DSN: c.DSN, Tables: c.Tables}
	}
	if a.conns, err = sources.NewRegistry(specs, logger); err != nil {
		return nil, fmt.Errorf("source connectors: %w", err)
	}

	var publisher progress.Publisher = a.hub
	if opts.relay && cfg.Redis.Addr != "" {
		rc := progress.DefaultRedisConfig(cfg.Redis.Addr)
		rc.Password = cfg.Redis.Password
		rc.Database = cfg.Redis.DB
		if a.relay, err = progress.NewRedisRelay(ctx, rc, a.hub, logger); err != nil {
			return nil, err
		}
		publisher = a.relay
	}

	a.profiler = profiler.New()
	a.pool = ingest.NewPool(cfg.Ingest.Workers, logger)

	deps := ingest.Deps{
		Profiler:   a.profiler,
		Classifier: classifier.New(classifierOpts...),
		Catalog:    a.catalog,
		Sources:    a.sources,
		Archive:    lakeStore,
		Progress:   publisher,
		Pool:       a.pool,
		Logger:     logger,
	}
	recOpts := []reconcile.Option{
		reconcile.WithSource(a.conns),
		reconcile.WithRowLimit(cfg.Reconcile.RowLimit),
		reconcile.WithLogger(logger),
	}
	var recIndex reconcile.Indexer
	if a.index != nil {
		deps.Index = a.index
		recIndex = a.index
	}

	a.orch, err = ingest.New(ingest.Config{
		UploadDir:      cfg.Ingest.UploadDir,
		RawBucket:      cfg.Lake.RawBucket,
		FallbackBucket: cfg.Ingest.FallbackBucket,
	}, deps)
	if err != nil {
		return nil, err
	}
	a.reconciler = reconcile.New(a.catalog, a.lake, recIndex, recOpts...)
	return a, nil
}

func newCatalog(cfg config.CatalogConfig, logger *slog.Logger) (catalog.Catalog, error) {
	switch cfg.Driver {
	case "file":
		path := cfg.Path
		if path == "" {
			path = ".omd/catalog"
		}
		return filecatalog.New(path)
	case "openmetadata", "":
		return openmetadata.NewClient(openmetadata.Config{
			Endpoint: cfg.Endpoint,
			Token:    cfg.Token,
			Timeout:  cfg.Timeout,
		}, logger)
	default:
		return nil, fmt.Errorf("unknown catalog driver %q", cfg.Driver)
	}
}

// newLakeStore connects to MinIO, or keeps the lake in memory when no
// endpoint is configured.
func newLakeStore(cfg config.LakeStoreConfig, logger *slog.Logger) (objectstore.Store, error) {
	if cfg.Endpoint == "" {
		logger.Warn("no lake store endpoint configured, lake and raw archive are kept in memory and lost on exit")
		return objectstore.NewMemory(), nil
	}
	store, err := minio.NewClient(minio.Config{
		Endpoint:  cfg.Endpoint,
		AccessKey: cfg.AccessKey,
		SecretKey: cfg.SecretKey,
		Region:    cfg.Region,
		Secure:    cfg.Secure,
	})
	if err != nil {
		return nil, fmt.Errorf("lake store: %w", err)
	}
	return store, nil
}

// close waits for background archival, then releases connections.
func (a *app) close(ctx context.Context) {
	if a.orch != nil {
		a.orch.Close()
	}
	if a.pool != nil {
		a.pool.Close()
	}
	if a.conns != nil {
		a.conns.Close()
	}
	if a.relay != nil {
		a.relay.Close()
	}
	if a.shutdownTracing != nil {
		if err := a.shutdownTracing(ctx); err != nil {
			a.logger.Warn("tracing shutdown failed", "error", err)
		}
	}
}
