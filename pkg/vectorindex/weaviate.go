// Package vectorindex makes dataset rows searchable by meaning. Rows are
// rendered to text, embedded, and stored in Weaviate with explicit vectors.
package vectorindex

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"github.com/sujanshetty01/OMD/pkg/dataset"
	"github.com/sujanshetty01/OMD/pkg/logging"
	"github.com/sujanshetty01/OMD/pkg/telemetry"
)

// DefaultClassName is the Weaviate class holding dataset rows.
const DefaultClassName = "DatasetRow"

// Embedder turns texts into vectors.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Document is one search hit.
type Document struct {
	Content  string   `json:"content"`
	Source   string   `json:"source"`
	RowIndex int      `json:"row_index"`
	Tags     []string `json:"tags"`
	Distance float64  `json:"distance"`
}

// Config for the index.
type Config struct {
	// URL of the Weaviate server, e.g. "http://localhost:8080".
	URL       string
	ClassName string
	MaxRows   int
	BatchSize int
}

// Index is a Weaviate-backed vector index.
type Index struct {
	client   *weaviate.Client
	embedder Embedder
	cfg      Config
	logger   *slog.Logger

	schemaMu    sync.Mutex
	schemaReady bool
}

// New creates an index client. No request is made.
func New(cfg Config, embedder Embedder, logger *slog.Logger) (*Index, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("invalid weaviate url %q", cfg.URL)
	}
	if cfg.ClassName == "" {
		cfg.ClassName = DefaultClassName
	}
	if cfg.MaxRows <= 0 {
		cfg.MaxRows = DefaultMaxRows
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}

	client, err := weaviate.NewClient(weaviate.Config{Host: u.Host, Scheme: u.Scheme})
	if err != nil {
		return nil, fmt.Errorf("failed to create weaviate client: %w", err)
	}

	return &Index{
		client:   client,
		embedder: embedder,
		cfg:      cfg,
		logger:   logging.Or(logger).With("component", "vectorindex", "class", cfg.ClassName),
	}, nil
}

// Schema returns the class definition.
func Schema(className string) *models.Class {
	filterable := true
	return &models.Class{
		Class:       className,
		Description: "One row of an ingested dataset rendered as text.",
		Vectorizer:  "none",
		Properties: []*models.Property{
			{
				Name:         "content",
				DataType:     []string{"text"},
				Description:  "Row text including dataset name and tags.",
				Tokenization: "word",
			},
			{
				Name:            "source",
				DataType:        []string{"text"},
				Description:     "Dataset name or catalog FQN.",
				IndexFilterable: &filterable,
				Tokenization:    "field",
			},
			{
				Name:            "rowIndex",
				DataType:        []string{"int"},
				IndexFilterable: &filterable,
			},
			{
				Name:            "tags",
				DataType:        []string{"text[]"},
				IndexFilterable: &filterable,
				Tokenization:    "field",
			},
		},
	}
}

// EnsureSchema creates the class if it is missing. It succeeds once per
// index; failures are retried on the next call.
func (x *Index) EnsureSchema(ctx context.Context) error {
	x.schemaMu.Lock()
	defer x.schemaMu.Unlock()
	if x.schemaReady {
		return nil
	}

	exists, err := x.client.Schema().ClassExistenceChecker().WithClassName(x.cfg.ClassName).Do(ctx)
	if err != nil {
		return fmt.Errorf("check class %s: %w", x.cfg.ClassName, err)
	}
	if !exists {
		x.logger.Info("creating vector index class")
		if err := x.client.Schema().ClassCreator().WithClass(Schema(x.cfg.ClassName)).Do(ctx); err != nil {
			return fmt.Errorf("create class %s: %w", x.cfg.ClassName, err)
		}
	}
	x.schemaReady = true
	return nil
}

// IndexDataset embeds and stores the first rows of ds under name. It
// returns the number of documents written.
func (x *Index) IndexDataset(ctx context.Context, name string, ds *dataset.Dataset, tags []string) (int, error) {
	rows := RenderRows(name, ds, tags, x.cfg.MaxRows)
	if len(rows) == 0 {
		return 0, nil
	}
	if err := x.EnsureSchema(ctx); err != nil {
		return 0, err
	}

	written := 0
	for start := 0; start < len(rows); start += x.cfg.BatchSize {
		batch := rows[start:min(start+x.cfg.BatchSize, len(rows))]

		texts := make([]string, len(batch))
		for i, r := range batch {
			texts[i] = r.Content
		}
		vectors, err := x.embedder.Embed(ctx, texts)
		if err != nil {
			return written, fmt.Errorf("embed rows of %s: %w", name, err)
		}

		objects := make([]*models.Object, len(batch))
		for i, r := range batch {
			objects[i] = &models.Object{
				Class: x.cfg.ClassName,
				ID:    r.ID,
				Properties: map[string]interface{}{
					"content":  r.Content,
					"source":   r.Source,
					"rowIndex": r.RowIndex,
					"tags":     tagsOrEmpty(r.Tags),
				},
				Vector: vectors[i],
			}
		}

		result, err := x.client.Batch().ObjectsBatcher().WithObjects(objects...).Do(ctx)
		if err != nil {
			return written, fmt.Errorf("batch import failed: %w", err)
		}
		for _, obj := range result {
			if obj.Result != nil && obj.Result.Errors != nil && len(obj.Result.Errors.Error) > 0 {
				return written, fmt.Errorf("index object %s: %s", obj.ID, obj.Result.Errors.Error[0].Message)
			}
			written++
		}
	}

	telemetry.RecordIndexed(written)
	x.logger.Info("indexed dataset", "source", name, "documents", written)
	return written, nil
}

func tagsOrEmpty(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}

// Search embeds query and returns the nearest rows.
func (x *Index) Search(ctx context.Context, query string, limit int) ([]Document, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("query is empty")
	}
	if limit <= 0 {
		limit = 5
	}

	vectors, err := x.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	nearVector := x.client.GraphQL().NearVectorArgBuilder().WithVector(vectors[0])
	fields := []graphql.Field{
		{Name: "content"},
		{Name: "source"},
		{Name: "rowIndex"},
		{Name: "tags"},
		{Name: "_additional", Fields: []graphql.Field{{Name: "distance"}}},
	}

	result, err := x.client.GraphQL().Get().
		WithClassName(x.cfg.ClassName).
		WithFields(fields...).
		WithNearVector(nearVector).
		WithLimit(limit).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("weaviate search failed: %w", err)
	}
	if len(result.Errors) > 0 {
		return nil, fmt.Errorf("search error: %s", result.Errors[0].Message)
	}

	return parseResults(result, x.cfg.ClassName), nil
}

func parseResults(result *models.GraphQLResponse, className string) []Document {
	get, ok := result.Data["Get"].(map[string]interface{})
	if !ok {
		return []Document{}
	}
	objects, ok := get[className].([]interface{})
	if !ok {
		return []Document{}
	}

	docs := make([]Document, 0, len(objects))
	for _, obj := range objects {
		m, ok := obj.(map[string]interface{})
		if !ok {
			continue
		}
		doc := Document{
			Content: stringField(m, "content"),
			Source:  stringField(m, "source"),
			Tags:    []string{},
		}
		if f, ok := m["rowIndex"].(float64); ok {
			doc.RowIndex = int(f)
		}
		if tags, ok := m["tags"].([]interface{}); ok {
			for _, t := range tags {
				if s, ok := t.(string); ok {
					doc.Tags = append(doc.Tags, s)
				}
			}
		}
		if add, ok := m["_additional"].(map[string]interface{}); ok {
			if d, ok := add["distance"].(float64); ok {
				doc.Distance = d
			}
		}
		docs = append(docs, doc)
	}
	return docs
}

func stringField(m map[string]interface{}, key string) string {
	s, _ := m[key].(string)
	return s
}
