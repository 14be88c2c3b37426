package sources

import (
	"fmt"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/microsoft/go-mssqldb"
	_ "modernc.org/sqlite"
)

type dialect struct {
	driverName string
	quote      func(string) string
	top        bool // SELECT TOP n instead of LIMIT n
}

func quoteWith(open, close string) func(string) string {
	return func(ident string) string {
		return open + strings.ReplaceAll(ident, close, close+close) + close
	}
}

var dialects = map[string]dialect{
	"postgres":  {driverName: "pgx", quote: quoteWith(`"`, `"`)},
	"pgx":       {driverName: "pgx", quote: quoteWith(`"`, `"`)},
	"mysql":     {driverName: "mysql", quote: quoteWith("`", "`")},
	"sqlserver": {driverName: "sqlserver", quote: quoteWith("[", "]"), top: true},
	"mssql":     {driverName: "sqlserver", quote: quoteWith("[", "]"), top: true},
	"sqlite":    {driverName: "sqlite", quote: quoteWith(`"`, `"`)},
}

func (d dialect) selectLimit(table string, limit int) string {
	if d.top {
		return fmt.Sprintf("SELECT TOP %d * FROM %s", limit, d.quote(table))
	}
	return fmt.Sprintf("SELECT * FROM %s LIMIT %d", d.quote(table), limit)
}
