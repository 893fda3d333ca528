package pubsub

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codecrow/codecrow-server/internal/model"
)

func setupTestRedis(t *testing.T) (*redis.Client, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	cleanup := func() {
		client.Close()
		mr.Close()
	}

	return client, cleanup
}

func TestPubSub_LogRoundTrip(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan *JobEvent, 1)
	sub := NewSubscriber(client)
	go func() {
		_ = sub.Subscribe(ctx, func(ev *JobEvent) {
			received <- ev
		})
	}()

	// 等订阅建立
	time.Sleep(50 * time.Millisecond)

	pub := NewPublisher(client, "test-origin")
	entry := &model.JobLogEntry{
		JobID:   7,
		Seq:     3,
		Level:   model.LogLevelInfo,
		Step:    "fetch_diff",
		Message: "fetching pull request diff",
	}
	require.NoError(t, pub.PublishLog(ctx, 7, "ext-7", entry))

	select {
	case ev := <-received:
		assert.Equal(t, TypeJobLog, ev.Type)
		assert.Equal(t, int64(7), ev.JobID)
		assert.Equal(t, "ext-7", ev.ExternalID)
		require.NotNil(t, ev.Entry)
		assert.Equal(t, int64(3), ev.Entry.Seq)
		assert.Equal(t, "fetch_diff", ev.Entry.Step)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for published log event")
	}
}

func TestPubSub_CompletedEvent(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan *JobEvent, 1)
	sub := NewSubscriber(client)
	go func() {
		_ = sub.Subscribe(ctx, func(ev *JobEvent) {
			received <- ev
		})
	}()

	time.Sleep(50 * time.Millisecond)

	pub := NewPublisher(client, "test-origin")
	require.NoError(t, pub.PublishCompleted(ctx, 9, "ext-9", model.JobStatusFailed, "upstream error"))

	select {
	case ev := <-received:
		assert.Equal(t, TypeJobCompleted, ev.Type)
		assert.Equal(t, model.JobStatusFailed, ev.FinalStatus)
		assert.Equal(t, "upstream error", ev.ErrorMessage)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for completed event")
	}
}
