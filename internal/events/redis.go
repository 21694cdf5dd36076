package events

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStreamNotifier appends each event to a Redis stream chosen by topic.
// Entries carry the topic in "pattern" and the JSON body in "data".
type RedisStreamNotifier struct {
	client  redis.UniversalClient
	streams map[string]string
	maxLen  int64
}

// NewRedisStreamNotifier creates a notifier routing topics to streams. Topics
// missing from streams are published to a stream named after the topic.
func NewRedisStreamNotifier(client redis.UniversalClient, streams map[string]string) *RedisStreamNotifier {
	routes := make(map[string]string, len(streams))
	for topic, stream := range streams {
		routes[topic] = stream
	}
	return &RedisStreamNotifier{client: client, streams: routes, maxLen: 10000}
}

var _ Notifier = (*RedisStreamNotifier)(nil)

// StreamFor returns the stream a topic is published to.
func (n *RedisStreamNotifier) StreamFor(topic string) string {
	if s, ok := n.streams[topic]; ok && s != "" {
		return s
	}
	return topic
}

func (n *RedisStreamNotifier) Emit(ctx context.Context, topic string, payload []byte) error {
	stream := n.StreamFor(topic)
	err := n.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		MaxLen: n.maxLen,
		Approx: true,
		Values: map[string]any{
			"pattern": topic,
			"data":    string(payload),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("xadd %s: %w", stream, err)
	}
	return nil
}
