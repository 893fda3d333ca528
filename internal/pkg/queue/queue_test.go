package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
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

func TestQueue_PushPop(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	q := NewQueue(client, "test_queue")
	ctx := context.Background()

	pr := 42
	msg := &JobMessage{
		JobID:         1,
		ExternalID:    "4f7a1c2e",
		ProjectID:     100,
		Type:          "PR_ANALYSIS",
		TriggerSource: "webhook",
		Branch:        "main",
		SourceBranch:  "feature/x",
		PRNumber:      &pr,
		CommitHash:    "abc123",
	}

	require.NoError(t, q.Push(ctx, msg))

	length, err := q.Length(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), length)

	got, err := q.Pop(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, msg.JobID, got.JobID)
	assert.Equal(t, msg.Type, got.Type)
	require.NotNil(t, got.PRNumber)
	assert.Equal(t, 42, *got.PRNumber)
}

func TestQueue_FIFOOrder(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	q := NewQueue(client, "test_queue")
	ctx := context.Background()

	for i := int64(1); i <= 3; i++ {
		require.NoError(t, q.Push(ctx, &JobMessage{JobID: i, Type: "BRANCH_ANALYSIS"}))
	}

	for i := int64(1); i <= 3; i++ {
		msg, err := q.Pop(ctx, time.Second)
		require.NoError(t, err)
		require.NotNil(t, msg)
		assert.Equal(t, i, msg.JobID)
	}
}

func TestQueue_PopTimeout(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	q := NewQueue(client, "empty_queue")
	ctx := context.Background()

	msg, err := q.Pop(ctx, 50*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, msg)
}
