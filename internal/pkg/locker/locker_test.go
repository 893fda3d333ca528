package locker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codecrow/codecrow-server/config"
)

func setupTestLocker(t *testing.T) (*Locker, *miniredis.Miniredis, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	cfg := config.LockConfig{
		PollInterval:         10 * time.Millisecond,
		WaitTimeoutPR:        100 * time.Millisecond,
		WaitTimeoutBranch:    100 * time.Millisecond,
		WaitTimeoutReconcile: 30 * time.Millisecond,
		LeaseTTL:             time.Minute,
	}

	cleanup := func() {
		client.Close()
		mr.Close()
	}

	return New(client, cfg), mr, cleanup
}

func TestLocker_AcquireRelease(t *testing.T) {
	l, _, cleanup := setupTestLocker(t)
	defer cleanup()
	ctx := context.Background()

	lock, err := l.Acquire(ctx, 1, PRKey(42), KindPRAnalysis, Holder{CommitHash: "abc123"}, nil)
	require.NoError(t, err)
	require.NotNil(t, lock)
	assert.NotEmpty(t, lock.Token())

	lock.Release(ctx)

	// 释放后可以重新获取
	again, err := l.Acquire(ctx, 1, PRKey(42), KindPRAnalysis, Holder{CommitHash: "def456"}, nil)
	require.NoError(t, err)
	require.NotNil(t, again)
	again.Release(ctx)
}

func TestLocker_MutualExclusion(t *testing.T) {
	l, _, cleanup := setupTestLocker(t)
	defer cleanup()
	ctx := context.Background()

	first, err := l.Acquire(ctx, 1, BranchKey("main"), KindBranchAnalysis, Holder{CommitHash: "abc"}, nil)
	require.NoError(t, err)
	require.NotNil(t, first)
	defer first.Release(ctx)

	// 同键第二次获取应等待直到超时
	var waited bool
	second, err := l.Acquire(ctx, 1, BranchKey("main"), KindBranchAnalysis, Holder{CommitHash: "def"}, func(msg string) {
		waited = true
	})
	require.NoError(t, err)
	assert.Nil(t, second, "second acquire must time out while the lock is held")
	assert.True(t, waited, "caller must be told it is waiting")
}

func TestLocker_ConcurrentAcquire_SingleWinner(t *testing.T) {
	l, _, cleanup := setupTestLocker(t)
	defer cleanup()
	ctx := context.Background()

	var mu sync.Mutex
	var locks []*Lock
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lock, err := l.Acquire(ctx, 7, PRKey(1), KindPRAnalysis, Holder{CommitHash: "race"}, nil)
			assert.NoError(t, err)
			if lock != nil {
				mu.Lock()
				locks = append(locks, lock)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, locks, 1, "exactly one concurrent acquire may win")
	for _, lock := range locks {
		lock.Release(ctx)
	}
}

func TestLocker_DifferentKindsIndependent(t *testing.T) {
	l, _, cleanup := setupTestLocker(t)
	defer cleanup()
	ctx := context.Background()

	pr, err := l.Acquire(ctx, 1, BranchKey("main"), KindPRAnalysis, Holder{}, nil)
	require.NoError(t, err)
	require.NotNil(t, pr)
	defer pr.Release(ctx)

	// 同分支不同 kind 不互斥
	rec, err := l.Acquire(ctx, 1, BranchKey("main"), KindReconciliation, Holder{}, nil)
	require.NoError(t, err)
	require.NotNil(t, rec)
	rec.Release(ctx)
}

func TestLocker_DoubleReleaseIsNoop(t *testing.T) {
	l, _, cleanup := setupTestLocker(t)
	defer cleanup()
	ctx := context.Background()

	lock, err := l.Acquire(ctx, 1, PRKey(5), KindPRAnalysis, Holder{}, nil)
	require.NoError(t, err)
	require.NotNil(t, lock)

	lock.Release(ctx)
	lock.Release(ctx) // 第二次释放无副作用

	// 后续第三方获取不受影响
	other, err := l.Acquire(ctx, 1, PRKey(5), KindPRAnalysis, Holder{}, nil)
	require.NoError(t, err)
	require.NotNil(t, other)

	// 旧锁再释放也不能偷掉新持有者的锁
	lock.Release(ctx)
	stillHeld, err := l.Acquire(ctx, 1, PRKey(5), KindReconciliation, Holder{}, nil)
	require.NoError(t, err)
	require.NotNil(t, stillHeld)
	stillHeld.Release(ctx)
	other.Release(ctx)
}

func TestLocker_LeaseExpiryRecovers(t *testing.T) {
	l, mr, cleanup := setupTestLocker(t)
	defer cleanup()
	ctx := context.Background()

	crashed, err := l.Acquire(ctx, 1, BranchKey("develop"), KindBranchAnalysis, Holder{CommitHash: "dead"}, nil)
	require.NoError(t, err)
	require.NotNil(t, crashed)

	// 模拟持有方崩溃：不释放，直接快进超过租约
	mr.FastForward(2 * time.Minute)

	recovered, err := l.Acquire(ctx, 1, BranchKey("develop"), KindBranchAnalysis, Holder{CommitHash: "alive"}, nil)
	require.NoError(t, err)
	require.NotNil(t, recovered, "expired lease must be acquirable again")
	recovered.Release(ctx)
}

func TestLocker_WaitsThenAcquires(t *testing.T) {
	l, _, cleanup := setupTestLocker(t)
	defer cleanup()
	ctx := context.Background()

	first, err := l.Acquire(ctx, 1, PRKey(9), KindPRAnalysis, Holder{}, nil)
	require.NoError(t, err)
	require.NotNil(t, first)

	go func() {
		time.Sleep(30 * time.Millisecond)
		first.Release(ctx)
	}()

	second, err := l.Acquire(ctx, 1, PRKey(9), KindPRAnalysis, Holder{}, nil)
	require.NoError(t, err)
	require.NotNil(t, second, "waiter should win once the holder releases within the window")
	second.Release(ctx)
}

func TestLocker_HolderInfo(t *testing.T) {
	l, _, cleanup := setupTestLocker(t)
	defer cleanup()
	ctx := context.Background()

	pr := 42
	lock, err := l.Acquire(ctx, 3, PRKey(42), KindPRAnalysis, Holder{CommitHash: "abc123", PRNumber: &pr}, nil)
	require.NoError(t, err)
	require.NotNil(t, lock)
	defer lock.Release(ctx)

	h, err := l.HolderInfo(ctx, 3, PRKey(42), KindPRAnalysis)
	require.NoError(t, err)
	require.NotNil(t, h)
	assert.Equal(t, "abc123", h.CommitHash)
	require.NotNil(t, h.PRNumber)
	assert.Equal(t, 42, *h.PRNumber)
}
