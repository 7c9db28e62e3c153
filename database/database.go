package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"  // PostgreSQL driver
	_ "modernc.org/sqlite" // SQLite driver
)

const (
	// DriverPostgres is the lib/pq driver name
	DriverPostgres = "postgres"
	// DriverSQLite is the modernc driver name
	DriverSQLite = "sqlite"

	pingTimeout = 5 * time.Second
)

// DriverFor picks the driver for a DATABASE_URL. Postgres URLs go to lib/pq,
// everything else is treated as a SQLite path or file: URI.
func DriverFor(url string) string {
	if strings.HasPrefix(url, "postgres://") || strings.HasPrefix(url, "postgresql://") {
		return DriverPostgres
	}
	return DriverSQLite
}

// Open connects to the cache store and verifies the connection
func Open(ctx context.Context, url string) (*sqlx.DB, error) {
	driver := DriverFor(url)
	dsn := url
	if driver == DriverSQLite {
		dsn = sqliteDSN(url)
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if driver == DriverSQLite {
		// one writer; also keeps a :memory: database alive across queries
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if driver == DriverSQLite {
		if _, err := db.ExecContext(ctx, `PRAGMA foreign_keys = ON`); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
		}
	}

	return db, nil
}

func sqliteDSN(url string) string {
	path := strings.TrimPrefix(strings.TrimPrefix(url, "sqlite://"), "sqlite:")
	if path == "" || path == ":memory:" {
		path = "file::memory:"
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_time_format=sqlite"
}

// CreateTables creates the products and prices tables if they don't exist
func CreateTables(ctx context.Context, db *sqlx.DB) error {
	for _, query := range schema(db.DriverName()) {
		if _, err := db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}
	return nil
}

func schema(driver string) []string {
	id, ts, float := "INTEGER PRIMARY KEY AUTOINCREMENT", "DATETIME", "REAL"
	if driver == DriverPostgres {
		id, ts, float = "BIGSERIAL PRIMARY KEY", "TIMESTAMPTZ", "DOUBLE PRECISION"
	}
	fk := "INTEGER"
	if driver == DriverPostgres {
		fk = "BIGINT"
	}

	return []string{
		`CREATE TABLE IF NOT EXISTS products (
			id ` + id + `,
			name TEXT NOT NULL,
			name_key TEXT NOT NULL UNIQUE,
			category TEXT NOT NULL DEFAULT '',
			image_url TEXT,
			created_at ` + ts + ` NOT NULL,
			updated_at ` + ts + ` NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS prices (
			id ` + id + `,
			product_id ` + fk + ` NOT NULL REFERENCES products(id) ON DELETE CASCADE,
			platform TEXT NOT NULL,
			price ` + float + ` NOT NULL,
			original_price ` + float + `,
			url TEXT NOT NULL DEFAULT '',
			in_stock BOOLEAN NOT NULL DEFAULT TRUE,
			delivery_fee TEXT NOT NULL DEFAULT '',
			delivery_time TEXT NOT NULL DEFAULT '',
			scraped_at ` + ts + ` NOT NULL,
			UNIQUE (product_id, platform)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_products_name ON products (name)`,
		`CREATE INDEX IF NOT EXISTS idx_products_category ON products (category)`,
		`CREATE INDEX IF NOT EXISTS idx_prices_product_id ON prices (product_id)`,
		`CREATE INDEX IF NOT EXISTS idx_prices_platform ON prices (platform)`,
		`CREATE INDEX IF NOT EXISTS idx_prices_scraped_at ON prices (scraped_at)`,
	}
}
