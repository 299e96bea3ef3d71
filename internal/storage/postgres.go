package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ryanbastic/go-pixelgrid/internal/pixel"
)

// PostgresStore implements GridStore on a single PostgreSQL table.
type PostgresStore struct {
	pool         *pgxpool.Pool
	table        string
	queryTimeout time.Duration
}

// NewPostgresStore creates a GridStore backed by the given pixels table.
// queryTimeout sets the per-query context deadline; zero means no timeout.
func NewPostgresStore(pool *pgxpool.Pool, table string, queryTimeout time.Duration) *PostgresStore {
	return &PostgresStore{
		pool:         pool,
		table:        table,
		queryTimeout: queryTimeout,
	}
}

func (s *PostgresStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.queryTimeout > 0 {
		return context.WithTimeout(ctx, s.queryTimeout)
	}
	return ctx, func() {}
}

func (s *PostgresStore) ReadAll(ctx context.Context) ([]pixel.Cell, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	query := fmt.Sprintf(`
		SELECT x, y, color, writer_id, version, updated_at
		FROM %s
	`, s.table)

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("read grid: %w", err)
	}
	defer rows.Close()

	var cells []pixel.Cell
	for rows.Next() {
		c, err := scanCell(rows)
		if err != nil {
			return nil, fmt.Errorf("read grid scan: %w", err)
		}
		cells = append(cells, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read grid rows: %w", err)
	}
	return cells, nil
}

func (s *PostgresStore) Upsert(ctx context.Context, x, y int, color pixel.Color, writerID string) (pixel.Cell, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	// The row lock taken by ON CONFLICT serializes same-coordinate writers;
	// version is read and bumped inside that lock.
	query := fmt.Sprintf(`
		INSERT INTO %[1]s (x, y, color, writer_id, version, updated_at)
		VALUES ($1, $2, $3, $4, 1, now())
		ON CONFLICT (x, y) DO UPDATE
		SET color      = EXCLUDED.color,
		    writer_id  = EXCLUDED.writer_id,
		    version    = %[1]s.version + 1,
		    updated_at = EXCLUDED.updated_at
		RETURNING x, y, color, writer_id, version, updated_at
	`, s.table)

	c, err := scanCell(s.pool.QueryRow(ctx, query, x, y, string(color), writerID))
	if err != nil {
		return pixel.Cell{}, fmt.Errorf("upsert pixel %d,%d: %w", x, y, err)
	}
	return c, nil
}

func (s *PostgresStore) Prefill(ctx context.Context, size int) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	query := fmt.Sprintf(`
		INSERT INTO %s (x, y)
		SELECT gx, gy
		FROM generate_series(1, $1) AS gx, generate_series(1, $1) AS gy
		ON CONFLICT (x, y) DO NOTHING
	`, s.table)

	if _, err := s.pool.Exec(ctx, query, size); err != nil {
		return fmt.Errorf("prefill grid: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCell(row rowScanner) (pixel.Cell, error) {
	var (
		c      pixel.Cell
		color  string
		writer *string
	)
	if err := row.Scan(&c.X, &c.Y, &color, &writer, &c.Version, &c.UpdatedAt); err != nil {
		return pixel.Cell{}, err
	}
	c.Color = pixel.Color(color)
	if writer != nil {
		c.WriterID = *writer
	}
	return c, nil
}
