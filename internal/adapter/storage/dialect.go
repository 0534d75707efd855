package storage

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"strconv"
	"strings"
)

//go:embed schema/*.sql
var schemaFS embed.FS

// Dialect captures the few differences between the SQL backends: driver
// name, placeholder syntax and schema.
type Dialect struct {
	Name   string
	Driver string
	dollar bool
}

var (
	MySQL    = Dialect{Name: "mysql", Driver: "mysql"}
	Postgres = Dialect{Name: "postgres", Driver: "postgres", dollar: true}
	SQLite   = Dialect{Name: "sqlite3", Driver: "sqlite3"}
)

func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case MySQL.Driver:
		return MySQL, nil
	case Postgres.Driver, "pq", "postgresql":
		return Postgres, nil
	case SQLite.Driver, "sqlite":
		return SQLite, nil
	}
	return Dialect{}, fmt.Errorf("unsupported sql driver %q", driver)
}

// Rebind rewrites '?' placeholders into the dialect's native form.
func (d Dialect) Rebind(query string) string {
	if !d.dollar {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (d Dialect) Schema() (string, error) {
	data, err := schemaFS.ReadFile("schema/" + d.Name + ".sql")
	if err != nil {
		return "", fmt.Errorf("read %s schema: %w", d.Name, err)
	}
	return string(data), nil
}

// Statements splits the schema into single statements; the MySQL driver
// rejects multi-statement execs by default.
func (d Dialect) Statements() ([]string, error) {
	schema, err := d.Schema()
	if err != nil {
		return nil, err
	}

	var out []string
	for _, stmt := range strings.Split(schema, ";") {
		if stmt = strings.TrimSpace(stmt); stmt != "" {
			out = append(out, stmt)
		}
	}
	return out, nil
}

// Migrate applies the embedded schema. Every statement is idempotent.
func Migrate(ctx context.Context, db *sql.DB, d Dialect) error {
	stmts, err := d.Statements()
	if err != nil {
		return err
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate %s: %w", d.Name, err)
		}
	}
	return nil
}
