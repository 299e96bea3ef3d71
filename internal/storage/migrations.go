package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Tables names the relations owned by one grid deployment.
type Tables struct {
	Pixels  string
	History string
}

// DefaultTables are the production table names.
var DefaultTables = TablesWithPrefix("")

// TablesWithPrefix namespaces both tables, mostly so tests can run side by side.
func TablesWithPrefix(prefix string) Tables {
	return Tables{
		Pixels:  prefix + "pixels",
		History: prefix + "pixel_history",
	}
}

// RunMigrations creates the grid and history tables if they do not exist.
// The two tables share nothing beyond the database; the history log never
// joins a grid transaction.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool, t Tables) error {
	ddl := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			x          SMALLINT    NOT NULL,
			y          SMALLINT    NOT NULL,
			color      CHAR(7)     NOT NULL DEFAULT '#FFFFFF',
			writer_id  TEXT,
			version    BIGINT      NOT NULL DEFAULT 0,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),

			PRIMARY KEY (x, y)
		);
	`, t.Pixels)
	if _, err := pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("migrate %s: %w", t.Pixels, err)
	}

	ddl = fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id        UUID        PRIMARY KEY,
			x         SMALLINT    NOT NULL,
			y         SMALLINT    NOT NULL,
			color     CHAR(7)     NOT NULL,
			writer_id TEXT        NOT NULL,
			placed_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);

		CREATE INDEX IF NOT EXISTS idx_%s_placed_at
			ON %s (placed_at DESC);
	`, t.History, t.History, t.History)
	if _, err := pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("migrate %s: %w", t.History, err)
	}

	return nil
}
