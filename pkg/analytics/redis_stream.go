package analytics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// StreamClient is the part of go-redis used by RedisStreamEmitter.
type StreamClient interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// DefaultStreamMaxLen caps the stream with approximate trimming.
const DefaultStreamMaxLen = 100_000

// RedisStreamEmitter appends events to a Redis stream with XADD.
type RedisStreamEmitter struct {
	client StreamClient
	stream string
	maxLen int64
}

// StreamOption configures a RedisStreamEmitter.
type StreamOption func(*RedisStreamEmitter)

// WithMaxLen sets the approximate stream cap. Zero disables trimming.
func WithMaxLen(n int64) StreamOption {
	return func(e *RedisStreamEmitter) {
		if n >= 0 {
			e.maxLen = n
		}
	}
}

// NewRedisStreamEmitter panics when client is nil or stream is empty.
func NewRedisStreamEmitter(client StreamClient, stream string, opts ...StreamOption) *RedisStreamEmitter {
	if client == nil {
		panic("analytics: redis client is required")
	}
	if stream == "" {
		panic("analytics: stream name is required")
	}
	e := &RedisStreamEmitter{client: client, stream: stream, maxLen: DefaultStreamMaxLen}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *RedisStreamEmitter) Emit(ctx context.Context, ev Event) error {
	values := make(map[string]any, len(ev.Properties)+3)
	for k, v := range ev.Properties {
		values[k] = fmt.Sprint(v)
	}
	values["event"] = ev.Name
	values["user_id"] = ev.UserID.String()
	values["occurred_at"] = ev.OccurredAt.UTC().Format(time.RFC3339Nano)

	args := &redis.XAddArgs{Stream: e.stream, Values: values}
	if e.maxLen > 0 {
		args.MaxLen = e.maxLen
		args.Approx = true
	}
	if err := e.client.XAdd(ctx, args).Err(); err != nil {
		return errors.Join(ErrEmitFailed, err)
	}
	return nil
}
