package history

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/ryanbastic/go-pixelgrid/internal/pixel"
)

// DefaultStreamMaxLen caps the stream length. Trimming is approximate.
const DefaultStreamMaxLen = 100_000

// RedisLog stores events as entries of a Redis stream.
type RedisLog struct {
	rdb    redis.Cmdable
	stream string
	maxLen int64
}

// NewRedisLog creates a log on the given stream key. maxLen <= 0 selects
// DefaultStreamMaxLen.
func NewRedisLog(rdb redis.Cmdable, stream string, maxLen int64) *RedisLog {
	if maxLen <= 0 {
		maxLen = DefaultStreamMaxLen
	}
	return &RedisLog{rdb: rdb, stream: stream, maxLen: maxLen}
}

func (l *RedisLog) Append(ctx context.Context, ev pixel.PlacementEvent) error {
	err := l.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: l.stream,
		MaxLen: l.maxLen,
		Approx: true,
		Values: map[string]any{
			"id":        ev.ID,
			"x":         ev.X,
			"y":         ev.Y,
			"color":     string(ev.Color),
			"writer_id": ev.WriterID,
			"placed_at": ev.PlacedAt.UTC().Format(time.RFC3339Nano),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("xadd %s: %w", l.stream, err)
	}
	return nil
}

func (l *RedisLog) Recent(ctx context.Context, limit int) ([]pixel.PlacementEvent, error) {
	events := []pixel.PlacementEvent{}
	if limit <= 0 {
		return events, nil
	}

	msgs, err := l.rdb.XRevRangeN(ctx, l.stream, "+", "-", int64(limit)).Result()
	if err != nil {
		return nil, fmt.Errorf("xrevrange %s: %w", l.stream, err)
	}
	for _, msg := range msgs {
		ev, err := decodeEvent(msg.Values)
		if err != nil {
			return nil, fmt.Errorf("decode stream entry %s: %w", msg.ID, err)
		}
		events = append(events, ev)
	}
	return events, nil
}

func decodeEvent(values map[string]any) (pixel.PlacementEvent, error) {
	field := func(name string) string {
		s, _ := values[name].(string)
		return s
	}

	x, err := strconv.Atoi(field("x"))
	if err != nil {
		return pixel.PlacementEvent{}, fmt.Errorf("field x: %w", err)
	}
	y, err := strconv.Atoi(field("y"))
	if err != nil {
		return pixel.PlacementEvent{}, fmt.Errorf("field y: %w", err)
	}
	placedAt, err := time.Parse(time.RFC3339Nano, field("placed_at"))
	if err != nil {
		return pixel.PlacementEvent{}, fmt.Errorf("field placed_at: %w", err)
	}

	return pixel.PlacementEvent{
		ID:       field("id"),
		X:        x,
		Y:        y,
		Color:    pixel.Color(field("color")),
		WriterID: field("writer_id"),
		PlacedAt: placedAt,
	}, nil
}
