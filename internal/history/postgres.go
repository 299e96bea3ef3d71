package history

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ryanbastic/go-pixelgrid/internal/pixel"
)

// PostgresLog stores events in the history table created by storage.RunMigrations.
type PostgresLog struct {
	pool  *pgxpool.Pool
	table string
}

func NewPostgresLog(pool *pgxpool.Pool, table string) *PostgresLog {
	return &PostgresLog{pool: pool, table: table}
}

// Append inserts ev. Re-appending an event with the same ID is a no-op.
func (l *PostgresLog) Append(ctx context.Context, ev pixel.PlacementEvent) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (id, x, y, color, writer_id, placed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING
	`, l.table)

	_, err := l.pool.Exec(ctx, query, ev.ID, ev.X, ev.Y, string(ev.Color), ev.WriterID, ev.PlacedAt)
	if err != nil {
		return fmt.Errorf("append history %s: %w", ev.ID, err)
	}
	return nil
}

func (l *PostgresLog) Recent(ctx context.Context, limit int) ([]pixel.PlacementEvent, error) {
	events := []pixel.PlacementEvent{}
	if limit <= 0 {
		return events, nil
	}

	query := fmt.Sprintf(`
		SELECT id, x, y, color, writer_id, placed_at
		FROM %s
		ORDER BY placed_at DESC, id
		LIMIT $1
	`, l.table)

	rows, err := l.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("recent history: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			ev    pixel.PlacementEvent
			color string
		)
		if err := rows.Scan(&ev.ID, &ev.X, &ev.Y, &color, &ev.WriterID, &ev.PlacedAt); err != nil {
			return nil, fmt.Errorf("recent history scan: %w", err)
		}
		ev.Color = pixel.Color(color)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("recent history rows: %w", err)
	}
	return events, nil
}
