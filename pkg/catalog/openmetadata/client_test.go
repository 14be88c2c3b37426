package openmetadata

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sujanshetty01/OMD/pkg/catalog"
	"github.com/sujanshetty01/OMD/pkg/logging"
)

type recorded struct {
	Method string
	Path   string
	Body   string
}

type fakeOM struct {
	mu       sync.Mutex
	requests []recorded
	tables   map[string]catalog.Table // by FQN
}

func (f *fakeOM) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, recorded{r.Method, r.URL.Path, string(body)})

	if r.Header.Get("Authorization") != "Bearer tok" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/api")
	switch {
	case r.Method == http.MethodPut && path == "/v1/tables":
		var req createTableRequest
		json.Unmarshal(body, &req)
		fqn := req.DatabaseSchema + "." + req.Name
		t := catalog.Table{ID: "id-" + req.Name, Name: req.Name, FullyQualifiedName: fqn, Columns: req.Columns}
		f.tables[fqn] = t
		json.NewEncoder(w).Encode(t)

	case r.Method == http.MethodPut:
		w.Write([]byte(`{}`))

	case r.Method == http.MethodGet && strings.HasPrefix(path, "/v1/tables/name/"):
		t, ok := f.tables[strings.TrimPrefix(path, "/v1/tables/name/")]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(t)

	case r.Method == http.MethodGet && path == "/v1/tables":
		var all []catalog.Table
		for _, t := range f.tables {
			all = append(all, t)
		}
		sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
		page := map[string]any{"data": all, "paging": map[string]any{}}
		if r.URL.Query().Get("after") == "" && len(all) > 0 {
			page["data"] = all[:1]
			if len(all) > 1 {
				page["paging"] = map[string]any{"after": "cursor"}
			}
		} else {
			page["data"] = all[1:]
		}
		json.NewEncoder(w).Encode(page)

	case r.Method == http.MethodGet && strings.HasPrefix(path, "/v1/tables/"):
		id := strings.TrimPrefix(path, "/v1/tables/")
		for _, t := range f.tables {
			if t.ID == id {
				json.NewEncoder(w).Encode(t)
				return
			}
		}
		w.WriteHeader(http.StatusNotFound)

	case r.Method == http.MethodPatch:
		if r.Header.Get("Content-Type") != "application/json-patch+json" {
			w.WriteHeader(http.StatusUnsupportedMediaType)
			return
		}
		w.Write([]byte(`{}`))

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newTestClient(t *testing.T) (*Client, *fakeOM) {
	fake := &fakeOM{tables: make(map[string]catalog.Table)}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	c, err := NewClient(Config{Endpoint: srv.URL + "/api/", Token: "tok"}, logging.Discard())
	require.NoError(t, err)
	return c, fake
}

func TestRegisterTable_CreatesStructureOnce(t *testing.T) {
	c, fake := newTestClient(t)
	ctx := context.Background()

	specs := []catalog.ColumnSpec{
		{Name: "ssn", Datatype: "utf8", Tags: []catalog.TagLabel{catalog.NewTag("PII.Sensitive.SSN", catalog.LabelAutomated)}},
		{Name: "age", Datatype: "int64"},
	}

	table, err := c.RegisterTable(ctx, "people-2024.csv", specs)
	require.NoError(t, err)
	assert.Equal(t, "people_2024_csv", table.Name)
	assert.Equal(t, "local_files.uploads.default.people_2024_csv", table.FQN())
	require.Len(t, table.Columns, 2)
	assert.Equal(t, "STRING", table.Columns[0].DataType)
	assert.Equal(t, "INT", table.Columns[1].DataType)
	assert.Equal(t, "Imported from people-2024.csv", table.Columns[1].Description)

	_, err = c.RegisterTable(ctx, "other.csv", specs)
	require.NoError(t, err)

	var puts []string
	for _, r := range fake.requests {
		if r.Method == http.MethodPut {
			puts = append(puts, r.Path)
		}
	}
	assert.Equal(t, []string{
		"/api/v1/services/databaseServices",
		"/api/v1/databases",
		"/api/v1/databaseSchemas",
		"/api/v1/tables",
		"/api/v1/tables",
	}, puts)
}

func TestGetTable_FallsBackToID(t *testing.T) {
	c, fake := newTestClient(t)
	fake.tables["svc.db.s.t"] = catalog.Table{ID: "abc", Name: "t", FullyQualifiedName: "svc.db.s.t"}
	ctx := context.Background()

	byName, err := c.GetTable(ctx, "svc.db.s.t")
	require.NoError(t, err)
	assert.Equal(t, "abc", byName.ID)

	byID, err := c.GetTable(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, "svc.db.s.t", byID.FQN())

	missing, err := c.GetTable(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestListTables_Pages(t *testing.T) {
	c, fake := newTestClient(t)
	fake.tables["a"] = catalog.Table{ID: "1", Name: "a"}
	fake.tables["b"] = catalog.Table{ID: "2", Name: "b"}

	tables, err := c.ListTables(context.Background(), catalog.FieldColumns, catalog.FieldTags, catalog.FieldSampleData)
	require.NoError(t, err)
	assert.Len(t, tables, 2)
}

func TestApplyColumnTags_PatchesOnlyMissing(t *testing.T) {
	c, fake := newTestClient(t)
	fake.tables["svc.db.s.t"] = catalog.Table{
		ID: "abc", Name: "t", FullyQualifiedName: "svc.db.s.t",
		Columns: []catalog.Column{
			{Name: "email", Tags: []catalog.TagLabel{catalog.NewTag("PII.Contact", catalog.LabelManual)}},
		},
	}
	ctx := context.Background()

	err := c.ApplyColumnTags(ctx, "svc.db.s.t", "email", []catalog.TagLabel{
		catalog.NewTag("PII.Contact", catalog.LabelAutomated),
		catalog.NewTag("DataClassification.Personal", catalog.LabelAutomated),
	})
	require.NoError(t, err)

	var patches []recorded
	for _, r := range fake.requests {
		if r.Method == http.MethodPatch {
			patches = append(patches, r)
		}
	}
	require.Len(t, patches, 1)
	assert.Equal(t, "/api/v1/tables/abc", patches[0].Path)

	var ops []patchOp
	require.NoError(t, json.Unmarshal([]byte(patches[0].Body), &ops))
	require.Len(t, ops, 1)
	assert.Equal(t, "/columns/0/tags/-", ops[0].Path)
	assert.Contains(t, patches[0].Body, "DataClassification.Personal")

	// nothing missing: no patch
	err = c.ApplyColumnTags(ctx, "svc.db.s.t", "email", []catalog.TagLabel{catalog.NewTag("PII.Contact", catalog.LabelAutomated)})
	require.NoError(t, err)
	count := 0
	for _, r := range fake.requests {
		if r.Method == http.MethodPatch {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestAPIErrorsSurface(t *testing.T) {
	c, err := NewClient(Config{Endpoint: "http://127.0.0.1:1/api", Token: "tok"}, nil)
	require.NoError(t, err)
	_, err = c.RegisterTable(context.Background(), "x.csv", nil)
	assert.Error(t, err)
}
