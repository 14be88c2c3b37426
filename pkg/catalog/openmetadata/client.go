// Package openmetadata implements catalog.Catalog against the OpenMetadata
// REST API (v1).
package openmetadata

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/sujanshetty01/OMD/pkg/catalog"
	"github.com/sujanshetty01/OMD/pkg/logging"
)

// DefaultTimeout bounds each API request.
const DefaultTimeout = 30 * time.Second

const pageSize = 100

// Config for the client.
type Config struct {
	// Endpoint is the API root, e.g. "http://localhost:8585/api".
	Endpoint string
	// Token is a bot JWT sent as a bearer token.
	Token   string
	Timeout time.Duration
}

// Client talks to OpenMetadata.
//
// The service/database/schema hierarchy for uploaded files is created on
// first registration; a failed attempt is retried on the next one.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger

	structureMu sync.Mutex
	structured  bool
}

var _ catalog.Catalog = (*Client)(nil)

// NewClient creates a client. No request is made.
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("openmetadata endpoint is required")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.Endpoint, "/"),
		token:      cfg.Token,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logging.Or(logger),
	}, nil
}

// apiError is a non-2xx response.
type apiError struct {
	Status int
	Body   string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("openmetadata returned status %d: %s", e.Status, e.Body)
}

func isNotFound(err error) bool {
	ae, ok := err.(*apiError)
	return ok && ae.Status == http.StatusNotFound
}

func (c *Client) do(ctx context.Context, method, path string, body any, contentType string, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		if contentType == "" {
			contentType = "application/json"
		}
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &apiError{Status: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

type createServiceRequest struct {
	Name        string         `json:"name"`
	ServiceType string         `json:"serviceType"`
	Connection  map[string]any `json:"connection"`
}

type createDatabaseRequest struct {
	Name    string `json:"name"`
	Service string `json:"service"`
}

type createSchemaRequest struct {
	Name     string `json:"name"`
	Database string `json:"database"`
}

type createTableRequest struct {
	Name           string           `json:"name"`
	DatabaseSchema string           `json:"databaseSchema"`
	Columns        []catalog.Column `json:"columns"`
}

func (c *Client) ensureStructure(ctx context.Context) error {
	c.structureMu.Lock()
	defer c.structureMu.Unlock()
	if c.structured {
		return nil
	}

	c.logger.Info("initializing catalog structure",
		"service", catalog.DefaultService, "database", catalog.DefaultDatabase, "schema", catalog.DefaultSchema)

	svc := createServiceRequest{
		Name:        catalog.DefaultService,
		ServiceType: "CustomDatabase",
		Connection:  map[string]any{"config": map[string]any{"type": "CustomDatabase"}},
	}
	if err := c.do(ctx, http.MethodPut, "/v1/services/databaseServices", svc, "", nil); err != nil {
		return fmt.Errorf("create database service: %w", err)
	}

	db := createDatabaseRequest{Name: catalog.DefaultDatabase, Service: catalog.DefaultService}
	if err := c.do(ctx, http.MethodPut, "/v1/databases", db, "", nil); err != nil {
		return fmt.Errorf("create database: %w", err)
	}

	schema := createSchemaRequest{
		Name:     catalog.DefaultSchema,
		Database: catalog.DefaultService + "." + catalog.DefaultDatabase,
	}
	if err := c.do(ctx, http.MethodPut, "/v1/databaseSchemas", schema, "", nil); err != nil {
		return fmt.Errorf("create database schema: %w", err)
	}

	c.structured = true
	return nil
}

// RegisterTable creates or replaces the table for fileName.
func (c *Client) RegisterTable(ctx context.Context, fileName string, columns []catalog.ColumnSpec) (*catalog.Table, error) {
	if err := c.ensureStructure(ctx); err != nil {
		return nil, err
	}

	req := createTableRequest{
		Name:           catalog.TableName(fileName),
		DatabaseSchema: catalog.DefaultService + "." + catalog.DefaultDatabase + "." + catalog.DefaultSchema,
		Columns:        catalog.BuildColumns(fileName, columns),
	}

	var table catalog.Table
	if err := c.do(ctx, http.MethodPut, "/v1/tables", req, "", &table); err != nil {
		return nil, fmt.Errorf("create table %s: %w", req.Name, err)
	}
	return &table, nil
}

// GetTable looks a table up by FQN, then by ID.
func (c *Client) GetTable(ctx context.Context, fqnOrID string) (*catalog.Table, error) {
	fields := url.Values{"fields": {catalog.FieldColumns + "," + catalog.FieldTags}}.Encode()

	var table catalog.Table
	err := c.do(ctx, http.MethodGet, "/v1/tables/name/"+url.PathEscape(fqnOrID)+"?"+fields, nil, "", &table)
	if err == nil {
		return &table, nil
	}
	if !isNotFound(err) {
		return nil, err
	}

	err = c.do(ctx, http.MethodGet, "/v1/tables/"+url.PathEscape(fqnOrID)+"?"+fields, nil, "", &table)
	switch {
	case err == nil:
		return &table, nil
	case isNotFound(err), isBadRequest(err):
		// Not a UUID, or no such table.
		return nil, nil
	default:
		return nil, err
	}
}

func isBadRequest(err error) bool {
	ae, ok := err.(*apiError)
	return ok && ae.Status == http.StatusBadRequest
}

type tableList struct {
	Data   []catalog.Table `json:"data"`
	Paging struct {
		After string `json:"after"`
		Total int    `json:"total"`
	} `json:"paging"`
}

// ListTables pages through every table.
func (c *Client) ListTables(ctx context.Context, fields ...string) ([]catalog.Table, error) {
	var out []catalog.Table
	after := ""
	for {
		q := url.Values{"limit": {fmt.Sprint(pageSize)}}
		if len(fields) > 0 {
			q.Set("fields", strings.Join(fields, ","))
		}
		if after != "" {
			q.Set("after", after)
		}

		var page tableList
		if err := c.do(ctx, http.MethodGet, "/v1/tables?"+q.Encode(), nil, "", &page); err != nil {
			return nil, fmt.Errorf("list tables: %w", err)
		}
		out = append(out, page.Data...)

		if page.Paging.After == "" || len(page.Data) == 0 {
			return out, nil
		}
		after = page.Paging.After
	}
}

type patchOp struct {
	Op    string `json:"op"`
	Path  string `json:"path"`
	Value any    `json:"value"`
}

// ApplyColumnTags adds the missing tags to column with a JSON patch.
func (c *Client) ApplyColumnTags(ctx context.Context, fqnOrID, column string, tags []catalog.TagLabel) error {
	table, err := c.GetTable(ctx, fqnOrID)
	if err != nil {
		return err
	}
	if table == nil {
		return nil
	}

	for i, col := range table.Columns {
		if col.Name != column {
			continue
		}

		missing := catalog.MissingTags(col.Tags, tags)
		if len(missing) == 0 {
			return nil
		}

		var ops []patchOp
		if len(col.Tags) == 0 {
			ops = append(ops, patchOp{Op: "add", Path: fmt.Sprintf("/columns/%d/tags", i), Value: missing})
		} else {
			for _, tag := range missing {
				ops = append(ops, patchOp{Op: "add", Path: fmt.Sprintf("/columns/%d/tags/-", i), Value: tag})
			}
		}

		if err := c.do(ctx, http.MethodPatch, "/v1/tables/"+url.PathEscape(table.ID), ops, "application/json-patch+json", nil); err != nil {
			return fmt.Errorf("tag column %s.%s: %w", table.FQN(), column, err)
		}
		c.logger.Debug("applied column tags", "table", table.FQN(), "column", column, "count", len(missing))
		return nil
	}
	return nil
}
