package sqlstore

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
)

const (
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

//go:embed schema/*.sql
var schemaFS embed.FS

// Dialect carries the per-driver differences the store cares about.
type Dialect struct {
	Driver      string
	Placeholder sq.PlaceholderFormat
}

var (
	Postgres = Dialect{Driver: DriverPostgres, Placeholder: sq.Dollar}
	MySQL    = Dialect{Driver: DriverMySQL, Placeholder: sq.Question}
)

// DialectFor maps a driver name to its Dialect. "postgresql" and "pg" are
// accepted as aliases.
func DialectFor(driver string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "postgres", "postgresql", "pg":
		return Postgres, nil
	case "mysql":
		return MySQL, nil
	default:
		return Dialect{}, fmt.Errorf("unsupported database driver %q (allowed: postgres, mysql)", driver)
	}
}

// Open connects to the database and verifies the connection with a ping.
func Open(ctx context.Context, d Dialect, dsn string) (*sql.DB, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("%s: empty dsn", d.Driver)
	}
	if d.Driver == DriverMySQL {
		normalized, err := normalizeMySQLDSN(dsn)
		if err != nil {
			return nil, err
		}
		dsn = normalized
	}

	db, err := sql.Open(d.Driver, dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", d.Driver, err)
	}
	return db, nil
}

// normalizeMySQLDSN forces parseTime and UTC so DATETIME columns scan into
// time.Time.
func normalizeMySQLDSN(dsn string) (string, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("parse mysql dsn: %w", err)
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	return cfg.FormatDSN(), nil
}

// Migrate applies the embedded schema for the dialect. Every statement is
// idempotent.
func Migrate(ctx context.Context, db *sql.DB, d Dialect) error {
	stmts, err := schemaStatements(d)
	if err != nil {
		return err
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate %s: %w", d.Driver, err)
		}
	}
	return nil
}

func schemaStatements(d Dialect) ([]string, error) {
	raw, err := schemaFS.ReadFile("schema/" + d.Driver + ".sql")
	if err != nil {
		return nil, fmt.Errorf("no schema for driver %q: %w", d.Driver, err)
	}
	var out []string
	for _, part := range strings.Split(string(raw), ";") {
		if stmt := strings.TrimSpace(part); stmt != "" {
			out = append(out, stmt)
		}
	}
	return out, nil
}
