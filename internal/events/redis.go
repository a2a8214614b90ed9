package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultStream = "canopy:events"

// RedisRecorder appends events to a Redis stream so downstream consumers can
// replay the audit trail.
type RedisRecorder struct {
	client *redis.Client
	stream string
}

// NewRedisRecorder builds a recorder writing to the given stream; an empty
// stream name selects the default.
func NewRedisRecorder(client *redis.Client, stream string) *RedisRecorder {
	if stream == "" {
		stream = defaultStream
	}
	return &RedisRecorder{client: client, stream: stream}
}

// Record appends the event to the stream.
func (r *RedisRecorder) Record(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return err
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	return r.client.XAdd(ctx, &redis.XAddArgs{
		Stream: r.stream,
		Values: map[string]any{
			"wallet_id":   event.WalletID,
			"type":        event.Type,
			"payload":     string(payload),
			"occurred_at": event.OccurredAt.Format(time.RFC3339Nano),
		},
	}).Err()
}
