package redisclient

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// StreamPublisher appends messages to a Redis stream at most once per dedupe id.
type StreamPublisher struct {
	client *redis.Client
	stream string
	ttl    time.Duration
}

// NewStreamPublisher creates a publisher. ttl bounds how long a dedupe marker is kept.
func NewStreamPublisher(client *redis.Client, stream string, ttl time.Duration) *StreamPublisher {
	return &StreamPublisher{client: client, stream: stream, ttl: ttl}
}

// PublishOnce adds fields to the stream unless id was already published. It reports whether a
// message was written.
func (p *StreamPublisher) PublishOnce(ctx context.Context, id string, fields map[string]any) (bool, error) {
	key := fmt.Sprintf("%s:sent:%s", p.stream, id)

	ok, err := p.client.SetNX(ctx, key, time.Now().Unix(), p.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("mark %s: %w", id, err)
	}
	if !ok {
		return false, nil
	}

	if err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: fields,
	}).Err(); err != nil {
		// let the next run retry
		_ = p.client.Del(ctx, key).Err()
		return false, fmt.Errorf("xadd %s: %w", p.stream, err)
	}
	return true, nil
}
