package stream

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestBroker(t *testing.T) *RedisBroker {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisBroker(client)
}

func TestAppend_ReturnsIncreasingIDs(t *testing.T) {
	b := newTestBroker(t)
	ctx := context.Background()

	id1, err := b.Append(ctx, "Q0lQSEVS")
	require.NoError(t, err)
	require.NotEmpty(t, id1)

	id2, err := b.Append(ctx, "U0VDT05E")
	require.NoError(t, err)
	require.Less(t, id1, id2, "entry IDs must increase in append order")
}

func TestReadAfter_EmptyIDReadsFromStart(t *testing.T) {
	b := newTestBroker(t)
	ctx := context.Background()

	id1, err := b.Append(ctx, "one")
	require.NoError(t, err)
	id2, err := b.Append(ctx, "two")
	require.NoError(t, err)

	entries, err := b.ReadAfter(ctx, "")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, id1, entries[0].ID)
	require.Equal(t, "one", entries[0].Ciphertext)
	require.Equal(t, id2, entries[1].ID)
	require.Equal(t, "two", entries[1].Ciphertext)
}

func TestReadAfter_ExclusiveOfLastSeen(t *testing.T) {
	b := newTestBroker(t)
	ctx := context.Background()

	id1, err := b.Append(ctx, "one")
	require.NoError(t, err)
	id2, err := b.Append(ctx, "two")
	require.NoError(t, err)

	entries, err := b.ReadAfter(ctx, id1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, id2, entries[0].ID)
}

func TestReadAfter_BeyondHeadIsEmpty(t *testing.T) {
	b := newTestBroker(t)
	ctx := context.Background()

	_, err := b.Append(ctx, "one")
	require.NoError(t, err)
	_, err = b.Append(ctx, "two")
	require.NoError(t, err)

	entries, err := b.ReadAfter(ctx, "99999999999999-0")
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestReadAfter_GarbageCursorReadsFromStart(t *testing.T) {
	b := newTestBroker(t)
	ctx := context.Background()

	id1, err := b.Append(ctx, "one")
	require.NoError(t, err)
	_, err = b.Append(ctx, "two")
	require.NoError(t, err)

	for _, cursor := range []string{"abc", "1-", "-1", "1-2-3", "1 2"} {
		entries, err := b.ReadAfter(ctx, cursor)
		require.NoError(t, err, "cursor %q", cursor)
		require.Len(t, entries, 2, "cursor %q", cursor)
		require.Equal(t, id1, entries[0].ID)
	}
}

func TestReadAfter_EmptyStream(t *testing.T) {
	b := newTestBroker(t)

	entries, err := b.ReadAfter(context.Background(), "")
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestConnect_BadURL(t *testing.T) {
	_, err := Connect(context.Background(), "not-a-url")
	require.Error(t, err)
}

func TestConnect_OK(t *testing.T) {
	srv := miniredis.RunT(t)

	client, err := Connect(context.Background(), "redis://"+srv.Addr())
	require.NoError(t, err)
	defer client.Close()
}
