package stream

import (
	"context"
	"fmt"
	"regexp"

	"github.com/redis/go-redis/v9"

	"github.com/nymstr/nymstr-groupd/internal/groupd/models"
)

// StreamKey is the single group stream.
const StreamKey = "group:stream"

// messageField holds the ciphertext inside a stream entry.
const messageField = "message"

type RedisBroker struct {
	client *redis.Client
}

// NewRedisBroker wraps an already-connected client.
func NewRedisBroker(client *redis.Client) *RedisBroker {
	return &RedisBroker{client: client}
}

// Connect parses redisURL, connects, and verifies the broker is reachable.
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

func (b *RedisBroker) Append(ctx context.Context, ciphertext string) (string, error) {
	id, err := b.client.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamKey,
		Values: map[string]any{messageField: ciphertext},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("xadd: %w", err)
	}
	return id, nil
}

// entryIDRe matches a stream entry id: "<ms>" or "<ms>-<seq>".
var entryIDRe = regexp.MustCompile(`^\d+(-\d+)?$`)

func (b *RedisBroker) ReadAfter(ctx context.Context, lastSeenID string) ([]models.StreamEntry, error) {
	// An empty or non-id cursor reads from the stream start rather than
	// turning into an XRANGE syntax error.
	start := "-"
	if entryIDRe.MatchString(lastSeenID) {
		// "(" makes the range exclusive of lastSeenID.
		start = "(" + lastSeenID
	}

	msgs, err := b.client.XRange(ctx, StreamKey, start, "+").Result()
	if err != nil {
		return nil, fmt.Errorf("xrange: %w", err)
	}

	entries := make([]models.StreamEntry, 0, len(msgs))
	for _, m := range msgs {
		ct, ok := m.Values[messageField].(string)
		if !ok {
			// Foreign entries in the stream are skipped, not fatal.
			continue
		}
		entries = append(entries, models.StreamEntry{ID: m.ID, Ciphertext: ct})
	}
	return entries, nil
}
