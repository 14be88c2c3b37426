// Package sources queries source databases directly. The reconciler uses it
// when the catalog holds a table but no sample rows for it.
//
// Connectors are read-only and restricted to an allow-list of table names,
// which also keeps table identifiers out of reach of injection.
package sources

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/sujanshetty01/OMD/pkg/logging"
)

// ErrNotAllowed is returned for tables outside a connector's allow-list.
var ErrNotAllowed = errors.New("table not on connector allow-list")

// Spec describes one connector.
type Spec struct {
	// Match is the database-name substring looked for in a table FQN.
	Match  string
	Driver string // postgres | mysql | sqlserver | sqlite
	DSN    string
	Tables []string
}

// Connector reads rows from one source database.
type Connector struct {
	spec    Spec
	dialect dialect
	db      *sql.DB
}

// Open prepares a connector. No connection is made until the first query.
func Open(spec Spec) (*Connector, error) {
	d, ok := dialects[strings.ToLower(spec.Driver)]
	if !ok {
		return nil, fmt.Errorf("unsupported source driver %q", spec.Driver)
	}

	db, err := sql.Open(d.driverName, spec.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s source: %w", spec.Driver, err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &Connector{spec: spec, dialect: d, db: db}, nil
}

// Match returns the FQN substring selecting this connector.
func (c *Connector) Match() string { return c.spec.Match }

// Allowed reports whether table may be queried.
func (c *Connector) Allowed(table string) bool {
	return slices.Contains(c.spec.Tables, table)
}

// Query returns up to limit rows of table, with column names.
func (c *Connector) Query(ctx context.Context, table string, limit int) ([]string, [][]any, error) {
	if !c.Allowed(table) {
		return nil, nil, fmt.Errorf("%w: %s", ErrNotAllowed, table)
	}

	rows, err := c.db.QueryContext(ctx, c.dialect.selectLimit(table, limit))
	if err != nil {
		return nil, nil, fmt.Errorf("query %s: %w", table, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, nil, err
	}

	var out [][]any
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, nil, fmt.Errorf("scan %s: %w", table, err)
		}
		for i, v := range vals {
			vals[i] = normalize(v)
		}
		out = append(out, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("read %s: %w", table, err)
	}
	return cols, out, nil
}

// Close releases the connection pool.
func (c *Connector) Close() error {
	return c.db.Close()
}

func normalize(v any) any {
	switch x := v.(type) {
	case []byte:
		return string(x)
	case time.Time:
		return x.Format(time.RFC3339)
	default:
		return v
	}
}

// Registry holds the configured connectors in priority order.
type Registry struct {
	connectors []*Connector
	logger     *slog.Logger
}

// NewRegistry opens every spec. On error, connectors opened so far are closed.
func NewRegistry(specs []Spec, logger *slog.Logger) (*Registry, error) {
	r := &Registry{logger: logging.Or(logger)}
	for _, s := range specs {
		c, err := Open(s)
		if err != nil {
			r.Close()
			return nil, err
		}
		r.connectors = append(r.connectors, c)
	}
	return r, nil
}

// Lookup returns the first connector whose match string occurs in fqn.
func (r *Registry) Lookup(fqn string) (*Connector, bool) {
	if r == nil {
		return nil, false
	}
	for _, c := range r.connectors {
		if c.spec.Match != "" && strings.Contains(fqn, c.spec.Match) {
			return c, true
		}
	}
	return nil, false
}

// Fetch queries the table named by the last FQN segment from the connector
// matching fqn. ok is false when no connector applies or the table is not
// allowed; err reports a failed query.
func (r *Registry) Fetch(ctx context.Context, fqn string, limit int) (cols []string, rows [][]any, ok bool, err error) {
	c, found := r.Lookup(fqn)
	if !found {
		return nil, nil, false, nil
	}

	parts := strings.Split(fqn, ".")
	table := parts[len(parts)-1]
	if !c.Allowed(table) {
		r.logger.Debug("table not on allow-list", "fqn", fqn, "source", c.spec.Match)
		return nil, nil, false, nil
	}

	r.logger.Info("fetching rows directly from source", "fqn", fqn, "source", c.spec.Match, "limit", limit)
	cols, rows, err = c.Query(ctx, table, limit)
	if err != nil {
		return nil, nil, true, err
	}
	return cols, rows, true, nil
}

// Close closes every connector.
func (r *Registry) Close() error {
	var errs []error
	for _, c := range r.connectors {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
