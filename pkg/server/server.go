// Package server provides the HTTP API for ingestion, catalog browsing,
// lake inspection and semantic search.
package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/sujanshetty01/OMD/pkg/catalog"
	"github.com/sujanshetty01/OMD/pkg/errors"
	"github.com/sujanshetty01/OMD/pkg/ingest"
	"github.com/sujanshetty01/OMD/pkg/lake"
	"github.com/sujanshetty01/OMD/pkg/logging"
	"github.com/sujanshetty01/OMD/pkg/objectstore"
	"github.com/sujanshetty01/OMD/pkg/progress"
	"github.com/sujanshetty01/OMD/pkg/reconcile"
	"github.com/sujanshetty01/OMD/pkg/telemetry"
	"github.com/sujanshetty01/OMD/pkg/vectorindex"
)

// Ingestor runs the ingestion pipeline.
type Ingestor interface {
	Upload(ctx context.Context, session, name string, r io.Reader) (*ingest.Result, error)
	IngestObject(ctx context.Context, session, bucket, key string) (*ingest.Result, error)
	IngestBucket(ctx context.Context, session, bucket string) (*ingest.BatchSummary, error)
	IngestCatalogEntity(ctx context.Context, session, fqn string) (*ingest.Result, error)
}

// Reconciler runs a catalog reconciliation pass.
type Reconciler interface {
	Run(ctx context.Context) (*reconcile.Summary, error)
}

// Lake reports on the data lake.
type Lake interface {
	Stats(ctx context.Context) (*lake.Stats, error)
	ListTables(ctx context.Context) ([]lake.TableInfo, error)
}

// Searcher queries the semantic index.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]vectorindex.Document, error)
}

// Deps are the collaborators the API exposes. Sources and Search are
// optional; their routes answer with an error when absent.
type Deps struct {
	Ingest     Ingestor
	Catalog    catalog.Catalog
	Sources    objectstore.Store
	Lake       Lake
	Reconciler Reconciler
	Search     Searcher
	Hub        *progress.Hub
	Logger     *slog.Logger
	Version    string
}

// Server handles HTTP requests.
type Server struct {
	deps   Deps
	engine *gin.Engine
	logger *slog.Logger
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("labeltype", func(fl validator.FieldLevel) bool {
			switch catalog.LabelType(fl.Field().String()) {
			case catalog.LabelManual, catalog.LabelAutomated:
				return true
			}
			return false
		})
	}
}

// New creates a server.
func New(deps Deps) *Server {
	if deps.Hub == nil {
		deps.Hub = progress.NewHub(deps.Logger)
	}
	s := &Server{
		deps:   deps,
		engine: gin.New(),
		logger: logging.Or(deps.Logger),
	}
	s.engine.Use(gin.Recovery(), s.requestLogger(), cors())
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.engine.Group("/api/v1")
	api.GET("/health", s.handleHealth)

	api.POST("/datasets/upload", s.handleUpload)
	api.GET("/datasets", s.handleListDatasets)
	api.GET("/datasets/:fqn", s.handleGetDataset)
	api.GET("/datasets/:fqn/columns", s.handleGetColumns)
	api.POST("/datasets/:fqn/columns/:column/tags", s.handleApplyTag)

	api.GET("/sources/s3/buckets", s.handleListBuckets)
	api.GET("/sources/s3/buckets/:bucket/objects", s.handleListObjects)
	api.POST("/sources/s3/ingest", s.handleIngestObject)
	api.POST("/sources/s3/ingest-all", s.handleIngestBucket)
	api.POST("/sources/om-sync", s.handleCatalogSync)

	api.POST("/system/sync", s.handleSystemSync)
	api.GET("/data-lake/stats", s.handleLakeStats)
	api.GET("/data-lake/tables", s.handleLakeTables)
	api.GET("/search", s.handleSearch)
	api.GET("/progress/:client_id", s.handleProgressStream)

	s.engine.GET("/ws/ingestion/:client_id", s.handleWebsocket)
	s.engine.GET("/metrics", gin.WrapH(telemetry.Handler()))
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.logger.Info("shutting down http server")
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}

// cors allows the browser UI to call the API from another origin.
func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// fail writes err with the status its code maps to.
func (s *Server) fail(c *gin.Context, err error) {
	status := errors.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "path", c.Request.URL.Path, "error", err)
		if stack := errors.Stack(err); stack != "" {
			s.logger.Debug("request failure stack", "path", c.Request.URL.Path, "stack", stack)
		}
	}
	c.JSON(status, ErrorResponse{Error: err.Error(), Code: string(errors.GetCode(err))})
}

func (s *Server) badRequest(c *gin.Context, err error) {
	s.fail(c, errors.Wrap(err, errors.CodeInvalidInput, "invalid request"))
}
