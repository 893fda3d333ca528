// Package locker 基于 Redis 租约实现分支级互斥锁。
//
// 锁的身份是 (project, branch-or-PR key, kind) 三元组；不同 kind 之间
// 互不阻塞，同一目标分支上 PR 分析与 reconciliation 可以并行。
// 持有方崩溃时依靠租约过期恢复，不会永久卡死分支。
package locker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/codecrow/codecrow-server/config"
)

// 锁类型，与任务类型同名
const (
	KindPRAnalysis     = "PR_ANALYSIS"
	KindBranchAnalysis = "BRANCH_ANALYSIS"
	KindReconciliation = "PR_RECONCILIATION"
)

// ProgressSink 等锁期间向调用方汇报进度，保证等待不静默
type ProgressSink func(message string)

// Holder 持有方标识，写入 Redis 便于排查锁冲突
type Holder struct {
	CommitHash string `json:"commit_hash"`
	PRNumber   *int   `json:"pr_number,omitempty"`
	AcquiredAt int64  `json:"acquired_at"`
}

// Lock 成功获取的锁；Release 幂等，重复调用是 no-op
type Lock struct {
	key    string
	token  string
	client *redis.Client
}

// Token 返回锁令牌
func (l *Lock) Token() string {
	return l.token
}

// releaseScript 比对令牌后删除，保证只有持有者能释放，且重复释放无害
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	redis.call("DEL", KEYS[2])
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Release 释放锁；令牌不匹配（已过期或已释放）时静默返回
func (l *Lock) Release(ctx context.Context) {
	if l == nil {
		return
	}
	if err := releaseScript.Run(ctx, l.client, []string{l.key, l.key + ":holder"}, l.token).Err(); err != nil && err != redis.Nil {
		log.Printf("locker: release %s failed: %v", l.key, err)
	}
}

// Locker 锁管理器
type Locker struct {
	client *redis.Client
	cfg    config.LockConfig
}

func New(client *redis.Client, cfg config.LockConfig) *Locker {
	return &Locker{client: client, cfg: cfg}
}

// PRKey PR 维度的锁键
func PRKey(prNumber int) string {
	return fmt.Sprintf("pr-%d", prNumber)
}

// BranchKey 分支维度的锁键
func BranchKey(branch string) string {
	return "branch-" + branch
}

// Acquire 尝试获取锁
//
// 先立即尝试，冲突时按 poll_interval 轮询直到该 kind 的等待超时。
// 首次冲突会通过 sink 发出 "waiting" 事件。超时返回 (nil, nil)；
// 拿不到锁由调用方决定是硬失败（PR 分析）还是软跳过（reconciliation）。
func (l *Locker) Acquire(ctx context.Context, projectID int64, branchKey, kind string, holder Holder, sink ProgressSink) (*Lock, error) {
	key := fmt.Sprintf("codecrow:lock:%d:%s:%s", projectID, branchKey, kind)
	token := uuid.NewString()

	ok, err := l.tryOnce(ctx, key, token, holder)
	if err != nil {
		return nil, err
	}
	if ok {
		return &Lock{key: key, token: token, client: l.client}, nil
	}

	if sink != nil {
		sink(fmt.Sprintf("等待分支锁释放（%s）", kind))
	}

	deadline := time.Now().Add(l.cfg.WaitTimeout(kind))
	ticker := time.NewTicker(l.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			if time.Now().After(deadline) {
				log.Printf("locker: wait timeout on %s", key)
				return nil, nil
			}
			ok, err := l.tryOnce(ctx, key, token, holder)
			if err != nil {
				return nil, err
			}
			if ok {
				return &Lock{key: key, token: token, client: l.client}, nil
			}
		}
	}
}

// tryOnce SET NX PX，原子的 check-and-grant
func (l *Locker) tryOnce(ctx context.Context, key, token string, holder Holder) (bool, error) {
	ok, err := l.client.SetNX(ctx, key, token, l.cfg.LeaseTTL).Result()
	if err != nil {
		return false, fmt.Errorf("locker: setnx failed: %w", err)
	}
	if !ok {
		return false, nil
	}

	holder.AcquiredAt = time.Now().Unix()
	if data, err := json.Marshal(holder); err == nil {
		// holder 信息仅用于诊断，写失败不影响锁语义
		l.client.Set(ctx, key+":holder", data, l.cfg.LeaseTTL)
	}
	return true, nil
}

// HolderInfo 读取当前持有方信息，仅用于诊断
func (l *Locker) HolderInfo(ctx context.Context, projectID int64, branchKey, kind string) (*Holder, error) {
	key := fmt.Sprintf("codecrow:lock:%d:%s:%s:holder", projectID, branchKey, kind)
	data, err := l.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var h Holder
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, err
	}
	return &h, nil
}
