package sources

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sujanshetty01/OMD/pkg/logging"
)

func seedSQLite(t *testing.T) string {
	dsn := filepath.Join(t.TempDir(), "customers.db")
	db, err := sql.Open("sqlite", dsn)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`CREATE TABLE customers (id INTEGER, email TEXT, vip BOOLEAN)`)
	require.NoError(t, err)
	for i := 1; i <= 60; i++ {
		_, err = db.Exec(`INSERT INTO customers VALUES (?, ?, ?)`, i, "user@example.com", i%2 == 0)
		require.NoError(t, err)
	}
	_, err = db.Exec(`CREATE TABLE secrets (v TEXT)`)
	require.NoError(t, err)
	return dsn
}

func TestRegistry_FetchesAllowedTable(t *testing.T) {
	reg, err := NewRegistry([]Spec{{
		Match:  "customers_db",
		Driver: "sqlite",
		DSN:    seedSQLite(t),
		Tables: []string{"customers", "orders"},
	}}, logging.Discard())
	require.NoError(t, err)
	defer reg.Close()

	cols, rows, ok, err := reg.Fetch(context.Background(), "Postgres.customers_db.public.customers", 50)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"id", "email", "vip"}, cols)
	assert.Len(t, rows, 50)
	assert.Equal(t, int64(1), rows[0][0])
	assert.Equal(t, "user@example.com", rows[0][1])
}

func TestRegistry_SkipsUnknownSourceAndTable(t *testing.T) {
	reg, err := NewRegistry([]Spec{{Match: "customers_db", Driver: "sqlite", DSN: seedSQLite(t), Tables: []string{"customers"}}}, nil)
	require.NoError(t, err)
	defer reg.Close()
	ctx := context.Background()

	_, _, ok, err := reg.Fetch(ctx, "Snowflake.analytics.public.events", 50)
	assert.NoError(t, err)
	assert.False(t, ok)

	_, _, ok, err = reg.Fetch(ctx, "Postgres.customers_db.public.secrets", 50)
	assert.NoError(t, err)
	assert.False(t, ok)

	c, found := reg.Lookup("x.customers_db.y")
	require.True(t, found)
	_, _, err = c.Query(ctx, "secrets", 1)
	assert.ErrorIs(t, err, ErrNotAllowed)
}

func TestRegistry_QueryFailureIsReported(t *testing.T) {
	reg, err := NewRegistry([]Spec{{Match: "customers_db", Driver: "sqlite", DSN: seedSQLite(t), Tables: []string{"orders"}}}, nil)
	require.NoError(t, err)
	defer reg.Close()

	_, _, ok, err := reg.Fetch(context.Background(), "Postgres.customers_db.public.orders", 50)
	assert.True(t, ok)
	assert.Error(t, err)
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(Spec{Driver: "oracle"})
	assert.Error(t, err)
}

func TestSelectLimit(t *testing.T) {
	assert.Equal(t, `SELECT * FROM "customers" LIMIT 50`, dialects["postgres"].selectLimit("customers", 50))
	assert.Equal(t, "SELECT * FROM `products` LIMIT 5", dialects["mysql"].selectLimit("products", 5))
	assert.Equal(t, "SELECT TOP 5 * FROM [odd]]name]", dialects["sqlserver"].selectLimit("odd]name", 5))
}

func TestNilRegistryLookup(t *testing.T) {
	var reg *Registry
	_, ok := reg.Lookup("anything")
	assert.False(t, ok)
}
