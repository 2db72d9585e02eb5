package sink

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vdavid/mailvault/internal/mail"
)

const archiveSchema = `CREATE TABLE IF NOT EXISTS mail_artifacts (
	fogname       TEXT NOT NULL,
	source        TEXT NOT NULL,
	mail_user     TEXT NOT NULL,
	box           TEXT NOT NULL,
	uid           BIGINT NOT NULL,
	original_name TEXT,
	data          BYTEA NOT NULL,
	stored_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (source, fogname)
);`

const archiveUpsert = `INSERT INTO mail_artifacts
	(fogname, source, mail_user, box, uid, original_name, data)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (source, fogname) DO UPDATE SET
		mail_user = EXCLUDED.mail_user,
		box = EXCLUDED.box,
		uid = EXCLUDED.uid,
		original_name = EXCLUDED.original_name,
		data = EXCLUDED.data,
		stored_at = now();`

// Archive writes artifacts into a PostgreSQL table, tagged with a source
// label that doubles as the storage point. It backs deployments where the
// artifact consumer lives next to the database rather than a file share.
type Archive struct {
	pool   *pgxpool.Pool
	source string
}

// NewArchive connects to PostgreSQL at dbURL and ensures the artifact
// table exists. source tags every row written through this sink.
func NewArchive(ctx context.Context, dbURL, source string) (*Archive, error) {
	poolConfig, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse archive database URL: %w", err)
	}
	poolConfig.MaxConns = 10
	poolConfig.MaxConnLifetime = time.Hour

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create archive connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping archive database: %w", err)
	}
	if _, err := pool.Exec(ctx, archiveSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create artifact table: %w", err)
	}

	return &Archive{pool: pool, source: source}, nil
}

func (a *Archive) Name() string {
	return "extended_store"
}

func (a *Archive) Write(ctx context.Context, id mail.Identity, artifact mail.Artifact, _ time.Time) (string, error) {
	_, err := a.pool.Exec(ctx, archiveUpsert,
		artifact.Fogname, a.source, id.User, id.Box, int64(id.UID), artifact.OriginalName, artifact.Data)
	if err != nil {
		return "", fmt.Errorf("failed to archive %s: %w", artifact.Fogname, err)
	}
	return a.source, nil
}

// Close releases the connection pool.
func (a *Archive) Close() {
	a.pool.Close()
}
