package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sujanshetty01/OMD/pkg/catalog"
	"github.com/sujanshetty01/OMD/pkg/errors"
)

// Request bodies.
type (
	uploadForm struct {
		ClientID string `form:"client_id" binding:"required"`
	}

	tagRequest struct {
		TagFQN    string `json:"tag_fqn" binding:"required"`
		LabelType string `json:"label_type" binding:"omitempty,labeltype"`
	}

	objectIngestRequest struct {
		Bucket   string `json:"bucket" binding:"required"`
		Key      string `json:"key" binding:"required"`
		ClientID string `json:"client_id" binding:"required"`
	}

	bucketIngestRequest struct {
		Bucket   string `json:"bucket" binding:"required"`
		ClientID string `json:"client_id" binding:"required"`
	}

	catalogSyncRequest struct {
		DatasetFQN string `json:"dataset_fqn" binding:"required"`
		ClientID   string `json:"client_id" binding:"required"`
	}

	searchQuery struct {
		Q     string `form:"q" binding:"required"`
		Limit int    `form:"limit" binding:"omitempty,min=1,max=100"`
	}
)

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "version": s.deps.Version})
}

func (s *Server) handleUpload(c *gin.Context) {
	var form uploadForm
	if err := c.ShouldBind(&form); err != nil {
		s.badRequest(c, err)
		return
	}
	header, err := c.FormFile("file")
	if err != nil {
		s.badRequest(c, err)
		return
	}
	f, err := header.Open()
	if err != nil {
		s.badRequest(c, err)
		return
	}
	defer f.Close()

	res, err := s.deps.Ingest.Upload(c.Request.Context(), form.ClientID, header.Filename, f)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handleListDatasets(c *gin.Context) {
	tables, err := s.deps.Catalog.ListTables(c.Request.Context(), catalog.FieldColumns, catalog.FieldTags)
	if err != nil {
		s.fail(c, errors.Wrap(err, errors.CodeCatalogSyncFailure, "list datasets"))
		return
	}
	out := make([]*catalog.DatasetView, len(tables))
	for i := range tables {
		out[i] = catalog.SummaryOf(&tables[i])
	}
	c.JSON(http.StatusOK, out)
}

// lookup answers 404 itself when the table is absent.
func (s *Server) lookup(c *gin.Context, fqnOrID string) (*catalog.Table, bool) {
	t, err := s.deps.Catalog.GetTable(c.Request.Context(), fqnOrID)
	if err != nil {
		s.fail(c, errors.Wrap(err, errors.CodeCatalogSyncFailure, "get dataset"))
		return nil, false
	}
	if t == nil {
		s.fail(c, errors.NotFound("dataset", fqnOrID))
		return nil, false
	}
	return t, true
}

func (s *Server) handleGetDataset(c *gin.Context) {
	t, ok := s.lookup(c, c.Param("fqn"))
	if !ok {
		return
	}
	c.JSON(http.StatusOK, catalog.ViewOf(t))
}

func (s *Server) handleGetColumns(c *gin.Context) {
	t, ok := s.lookup(c, c.Param("fqn"))
	if !ok {
		return
	}
	c.JSON(http.StatusOK, catalog.ViewOf(t).Columns)
}

func (s *Server) handleApplyTag(c *gin.Context) {
	var req tagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}
	lt := catalog.LabelManual
	if req.LabelType != "" {
		lt = catalog.LabelType(req.LabelType)
	}

	t, ok := s.lookup(c, c.Param("fqn"))
	if !ok {
		return
	}
	column := c.Param("column")
	if err := s.deps.Catalog.ApplyColumnTags(c.Request.Context(), t.ID, column, []catalog.TagLabel{catalog.NewTag(req.TagFQN, lt)}); err != nil {
		s.fail(c, errors.Wrap(err, errors.CodeCatalogSyncFailure, "apply tag"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

func (s *Server) sourcesConfigured(c *gin.Context) bool {
	if s.deps.Sources == nil {
		s.fail(c, errors.New(errors.CodeInternal, "no source object store configured"))
		return false
	}
	return true
}

func (s *Server) handleListBuckets(c *gin.Context) {
	if !s.sourcesConfigured(c) {
		return
	}
	buckets, err := s.deps.Sources.ListBuckets(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"buckets": buckets})
}

func (s *Server) handleListObjects(c *gin.Context) {
	if !s.sourcesConfigured(c) {
		return
	}
	objects, err := s.deps.Sources.ListObjects(c.Request.Context(), c.Param("bucket"), c.Query("prefix"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"objects": objects})
}

func (s *Server) handleIngestObject(c *gin.Context) {
	var req objectIngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}
	res, err := s.deps.Ingest.IngestObject(c.Request.Context(), req.ClientID, req.Bucket, req.Key)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handleIngestBucket(c *gin.Context) {
	var req bucketIngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}
	summary, err := s.deps.Ingest.IngestBucket(c.Request.Context(), req.ClientID, req.Bucket)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (s *Server) handleCatalogSync(c *gin.Context) {
	var req catalogSyncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}
	res, err := s.deps.Ingest.IngestCatalogEntity(c.Request.Context(), req.ClientID, req.DatasetFQN)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handleSystemSync(c *gin.Context) {
	sum, err := s.deps.Reconciler.Run(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

func (s *Server) handleLakeStats(c *gin.Context) {
	stats, err := s.deps.Lake.Stats(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) handleLakeTables(c *gin.Context) {
	tables, err := s.deps.Lake.ListTables(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tables": tables, "count": len(tables)})
}

func (s *Server) handleSearch(c *gin.Context) {
	var q searchQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		s.badRequest(c, err)
		return
	}
	if q.Limit == 0 {
		q.Limit = 5
	}
	if s.deps.Search == nil {
		s.fail(c, errors.New(errors.CodeInternal, "semantic index is disabled"))
		return
	}

	docs, err := s.deps.Search.Search(c.Request.Context(), q.Q, q.Limit)
	if err != nil {
		s.fail(c, errors.Wrap(err, errors.CodeIndexingFailure, "search"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"query": q.Q, "results": docs, "count": len(docs)})
}

func (s *Server) handleWebsocket(c *gin.Context) {
	s.deps.Hub.ServeWS(c.Writer, c.Request, c.Param("client_id"))
}

func (s *Server) handleProgressStream(c *gin.Context) {
	s.deps.Hub.ServeSSE(c.Writer, c.Request, c.Param("client_id"))
}
