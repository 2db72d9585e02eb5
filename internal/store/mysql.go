package store

import (
	"context"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
)

// MySQL is the shared mirror backend. The pipeline treats it as
// best-effort: Recorder logs and continues when a mirror write fails.
type MySQL struct {
	sqlBackend
}

// OpenMySQL connects with a go-sql-driver DSN
// (user:password@tcp(host:port)/dbname) and ensures the record tables
// exist.
func OpenMySQL(ctx context.Context, dsn string) (*MySQL, error) {
	db, err := sqlx.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to reach MySQL database: %w", err)
	}

	m := &MySQL{sqlBackend: sqlBackend{db: db}}
	if err := m.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return m, nil
}
