// Package ledger 任务账本：状态机 + 有序日志流的唯一事实来源。
//
// 状态机 PENDING → RUNNING → {COMPLETED, FAILED, CANCELLED}，终态吸收。
// 每个任务的日志序号在任务级互斥下分配，保证严格递增且无空洞；
// 订阅与补读以同一把互斥排序，先 LogsAfter 再订阅不会漏也不会重。
package ledger

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/codecrow/codecrow-server/internal/model"
	"github.com/codecrow/codecrow-server/internal/pkg/pubsub"
	"github.com/codecrow/codecrow-server/internal/repository"
)

// 订阅 channel 缓冲大小；满了直接丢，生产方不等消费方
const subscriberBuffer = 256

// Ledger 任务账本
type Ledger struct {
	db        *gorm.DB
	jobs      *repository.JobRepository
	logs      *repository.JobLogRepository
	hub       *hub
	publisher *pubsub.Publisher // 可为 nil（单进程 / 测试）
	origin    string            // 本进程标识，用于过滤 pubsub 回环

	mu      sync.Mutex
	jobMus  map[int64]*sync.Mutex
	nextSeq map[int64]int64
}

// New 创建账本；rdb 为 nil 时不做跨进程转发（单进程 / 测试）
func New(db *gorm.DB, rdb *redis.Client) *Ledger {
	origin := uuid.NewString()
	l := &Ledger{
		db:      db,
		jobs:    repository.NewJobRepository(db),
		logs:    repository.NewJobLogRepository(db),
		hub:     newHub(),
		origin:  origin,
		jobMus:  make(map[int64]*sync.Mutex),
		nextSeq: make(map[int64]int64),
	}
	if rdb != nil {
		l.publisher = pubsub.NewPublisher(rdb, origin)
	}
	return l
}

// jobMu 任务级互斥：seq 分配、订阅/补读、终态广播都经过它
func (l *Ledger) jobMu(jobID int64) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	mu, ok := l.jobMus[jobID]
	if !ok {
		mu = &sync.Mutex{}
		l.jobMus[jobID] = mu
	}
	return mu
}

func (l *Ledger) dropJobState(jobID int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.jobMus, jobID)
	delete(l.nextSeq, jobID)
}

// Create 创建 PENDING 任务并分配对外 ID
func (l *Ledger) Create(job *model.Job) error {
	if job.ExternalID == "" {
		job.ExternalID = uuid.NewString()
	}
	job.Status = model.JobStatusPending
	return l.jobs.Create(job)
}

// Start PENDING → RUNNING
func (l *Ledger) Start(jobID int64) (*model.Job, error) {
	now := time.Now()
	err := l.db.Model(&model.Job{}).
		Where("id = ? AND status = ?", jobID, model.JobStatusPending).
		Updates(map[string]interface{}{
			"status":     model.JobStatusRunning,
			"started_at": now,
		}).Error
	if err != nil {
		return nil, err
	}
	return l.jobs.GetByID(jobID)
}

// UpdateProgress 更新进度和当前步骤；终态任务静默跳过
func (l *Ledger) UpdateProgress(jobID int64, progress int, step string) error {
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	return l.jobs.UpdateFieldsIfRunning(jobID, map[string]interface{}{
		"progress":     progress,
		"current_step": step,
	})
}

// SetTarget 运行期补齐分析目标；评论触发的任务建单时没有分支信息
func (l *Ledger) SetTarget(jobID int64, branch, commitHash string) error {
	return l.jobs.UpdateFieldsIfRunning(jobID, map[string]interface{}{
		"branch":      branch,
		"commit_hash": commitHash,
	})
}

// Complete RUNNING → COMPLETED
func (l *Ledger) Complete(ctx context.Context, jobID int64, codeAnalysisID *int64) error {
	fields := map[string]interface{}{
		"status":       model.JobStatusCompleted,
		"progress":     100,
		"completed_at": time.Now(),
	}
	if codeAnalysisID != nil {
		fields["code_analysis_id"] = *codeAnalysisID
	}
	return l.finish(ctx, jobID, model.JobStatusCompleted, "", fields)
}

// Fail 任意非终态 → FAILED
//
// 用独立的 DB 会话提交，调用方的事务坏掉也不能吞掉失败记录
func (l *Ledger) Fail(ctx context.Context, jobID int64, errMsg string) error {
	fields := map[string]interface{}{
		"status":        model.JobStatusFailed,
		"error_message": errMsg,
		"completed_at":  time.Now(),
	}
	return l.finish(ctx, jobID, model.JobStatusFailed, errMsg, fields)
}

// Cancel 协作式取消：记录 CANCELLED 并停止接受后续进度，
// 已发出的外部调用由 processor 自行发现后放弃结果
func (l *Ledger) Cancel(ctx context.Context, jobID int64) error {
	fields := map[string]interface{}{
		"status":       model.JobStatusCancelled,
		"completed_at": time.Now(),
	}
	return l.finish(ctx, jobID, model.JobStatusCancelled, "", fields)
}

// finish 终态迁移的公共路径；fresh session 独立于任何调用方事务
func (l *Ledger) finish(ctx context.Context, jobID int64, status, errMsg string, fields map[string]interface{}) error {
	session := l.db.Session(&gorm.Session{NewDB: true})

	res := session.Model(&model.Job{}).
		Where("id = ? AND status IN ?", jobID,
			[]string{model.JobStatusPending, model.JobStatusRunning}).
		Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		// 已是终态，终态不可再迁移
		return nil
	}

	job, err := l.jobs.GetByID(jobID)
	if err != nil {
		log.Printf("ledger: job %d finished but reload failed: %v", jobID, err)
		job = &model.Job{ID: jobID}
	}

	final := Event{Type: EventCompleted, FinalStatus: status, ErrorMessage: errMsg}

	mu := l.jobMu(jobID)
	mu.Lock()
	l.hub.closeJob(jobID, final)
	mu.Unlock()
	l.dropJobState(jobID)

	if l.publisher != nil {
		if err := l.publisher.PublishCompleted(ctx, jobID, job.ExternalID, status, errMsg); err != nil {
			log.Printf("ledger: publish completed for job %d failed: %v", jobID, err)
		}
	}
	return nil
}

// AppendLog 追加一条日志行
//
// seq 在任务级互斥下分配并落库，并发生产者也不会产生空洞或乱序。
// 终态任务上的调用静默丢弃（异步竞态不应导致报错或脏数据）。
// 终态判断也在互斥内做，finish 的终态广播之后不会再落日志行。
func (l *Ledger) AppendLog(ctx context.Context, jobID int64, level, step, message string, metadata model.JSONMap) (*model.JobLogEntry, error) {
	mu := l.jobMu(jobID)
	mu.Lock()
	defer mu.Unlock()

	job, err := l.jobs.GetByID(jobID)
	if err != nil {
		return nil, err
	}
	if job.IsTerminal() {
		return nil, nil
	}

	seq, ok := l.peekSeq(jobID)
	if !ok {
		maxSeq, err := l.logs.MaxSeq(jobID)
		if err != nil {
			return nil, err
		}
		seq = maxSeq + 1
	}

	entry := &model.JobLogEntry{
		JobID:    jobID,
		Seq:      seq,
		Level:    level,
		Step:     step,
		Message:  message,
		Metadata: metadata,
	}
	if err := l.logs.Append(entry); err != nil {
		return nil, fmt.Errorf("append log for job %d: %w", jobID, err)
	}
	l.storeSeq(jobID, seq+1)

	l.hub.publish(jobID, Event{Type: EventLog, Entry: entry})

	if l.publisher != nil {
		if err := l.publisher.PublishLog(ctx, jobID, job.ExternalID, entry); err != nil {
			log.Printf("ledger: publish log for job %d failed: %v", jobID, err)
		}
	}
	return entry, nil
}

func (l *Ledger) peekSeq(jobID int64) (int64, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	seq, ok := l.nextSeq[jobID]
	return seq, ok
}

func (l *Ledger) storeSeq(jobID, next int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextSeq[jobID] = next
}

// LogsAfter 返回 seq 之后的全部日志（续传）
func (l *Ledger) LogsAfter(jobID, afterSeq int64) ([]*model.JobLogEntry, error) {
	return l.logs.ListAfter(jobID, afterSeq)
}

// Subscribe 订阅任务的后续日志
//
// 返回 afterSeq 之后的补读结果和实时订阅，两者对同一追加流有序：
// 补读查询和注册在同一把任务互斥下完成，不漏不重。
// 任务已是终态时订阅立即带终态事件关闭。
func (l *Ledger) Subscribe(jobID, afterSeq int64) ([]*model.JobLogEntry, *Subscription, error) {
	mu := l.jobMu(jobID)
	mu.Lock()
	defer mu.Unlock()

	backfill, err := l.logs.ListAfter(jobID, afterSeq)
	if err != nil {
		return nil, nil, err
	}

	sub := newSubscription(jobID, subscriberBuffer)
	l.hub.add(sub)

	job, err := l.jobs.GetByID(jobID)
	if err == nil && job.IsTerminal() {
		// 终态任务：订阅者收到终态事件后立即结束
		l.hub.remove(sub)
		sub = newSubscription(jobID, 1)
		sub.deliver(Event{Type: EventCompleted, FinalStatus: job.Status, ErrorMessage: job.ErrorMessage})
		sub.close()
	}

	return backfill, sub, nil
}

// Unsubscribe 注销订阅
func (l *Ledger) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	l.hub.remove(sub)
}

// DeliverRemote 把其他进程经 Redis 转发来的事件投递给本地订阅者
func (l *Ledger) DeliverRemote(ev *pubsub.JobEvent) {
	if ev.Origin == l.origin {
		return // 本进程发出的事件已在本地投递过
	}

	switch ev.Type {
	case pubsub.TypeJobLog:
		if ev.Entry != nil {
			l.hub.publish(ev.JobID, Event{Type: EventLog, Entry: ev.Entry})
		}
	case pubsub.TypeJobCompleted:
		mu := l.jobMu(ev.JobID)
		mu.Lock()
		l.hub.closeJob(ev.JobID, Event{
			Type:         EventCompleted,
			FinalStatus:  ev.FinalStatus,
			ErrorMessage: ev.ErrorMessage,
		})
		mu.Unlock()
		l.dropJobState(ev.JobID)
	}
}

// GetJob 按内部 ID 取任务
func (l *Ledger) GetJob(jobID int64) (*model.Job, error) {
	return l.jobs.GetByID(jobID)
}

// IsCancelled processor 协作式取消检查点
func (l *Ledger) IsCancelled(jobID int64) bool {
	job, err := l.jobs.GetByID(jobID)
	if err != nil {
		return false
	}
	return job.Status == model.JobStatusCancelled
}
