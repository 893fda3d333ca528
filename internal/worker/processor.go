// Package worker 分析任务的执行侧。
//
// Processor 按任务类型分派到各处理流程，公共骨架：拿锁 → Start →
// 取 diff → 指纹短路 → AI → 落库 → 质量门 → Complete，锁在
// defer 中释放，任何错误都走账本的失败路径。
package worker

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/codecrow/codecrow-server/config"
	"github.com/codecrow/codecrow-server/internal/ai"
	"github.com/codecrow/codecrow-server/internal/ledger"
	"github.com/codecrow/codecrow-server/internal/model"
	"github.com/codecrow/codecrow-server/internal/pkg/locker"
	"github.com/codecrow/codecrow-server/internal/pkg/queue"
	"github.com/codecrow/codecrow-server/internal/repository"
	"github.com/codecrow/codecrow-server/internal/vcs"
)

var (
	// ErrLockContention 等锁超时，任务失败并提示稍后重试
	ErrLockContention = errors.New("analysis lock wait timeout")
	// ErrDiffTooLarge diff 超过配置上限，直接失败避免浪费 AI 调用
	ErrDiffTooLarge = errors.New("diff exceeds size limit")
)

// Processor 任务处理器
type Processor struct {
	cfg          *config.Config
	ledger       *ledger.Ledger
	locker       *locker.Locker
	vcs          *vcs.Registry
	analyzer     ai.Analyzer
	projects     *repository.ProjectRepository
	analyses     *repository.AnalysisRepository
	branchIssues *repository.BranchIssueRepository
	gates        *repository.GateRepository
}

func NewProcessor(
	cfg *config.Config,
	l *ledger.Ledger,
	lk *locker.Locker,
	registry *vcs.Registry,
	analyzer ai.Analyzer,
	projects *repository.ProjectRepository,
	analyses *repository.AnalysisRepository,
	branchIssues *repository.BranchIssueRepository,
	gates *repository.GateRepository,
) *Processor {
	return &Processor{
		cfg:          cfg,
		ledger:       l,
		locker:       lk,
		vcs:          registry,
		analyzer:     analyzer,
		projects:     projects,
		analyses:     analyses,
		branchIssues: branchIssues,
		gates:        gates,
	}
}

// Process 执行一条队列消息
//
// 任务一旦存在，任何失败（包括 panic）都必须到达账本的失败路径
func (p *Processor) Process(ctx context.Context, msg *queue.JobMessage) error {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("worker: job %d panicked: %v", msg.JobID, r)
			_ = p.ledger.Fail(ctx, msg.JobID, fmt.Sprintf("internal error: %v", r))
		}
	}()

	job, err := p.ledger.Start(msg.JobID)
	if err != nil {
		return fmt.Errorf("failed to start job %d: %w", msg.JobID, err)
	}
	if job.Status != model.JobStatusRunning {
		// 受理后被取消的任务直接跳过
		log.Printf("worker: job %d not runnable (status=%s), skipping", job.ID, job.Status)
		return nil
	}

	log.Printf("worker: job %d started (type=%s project=%d)", job.ID, job.Type, job.ProjectID)

	switch job.Type {
	case model.JobTypePRAnalysis:
		err = p.processPRAnalysis(ctx, job, msg)
	case model.JobTypeBranchAnalysis:
		err = p.processBranchAnalysis(ctx, job, msg)
	case model.JobTypePRReconciliation:
		err = p.processReconciliation(ctx, job, msg)
	case model.JobTypeAskCommand:
		err = p.processAskCommand(ctx, job, msg)
	case model.JobTypeReviewCommand:
		err = p.processReviewCommand(ctx, job, msg)
	default:
		err = fmt.Errorf("unknown job type: %s", job.Type)
	}

	if err != nil {
		log.Printf("worker: job %d failed: %v", job.ID, err)
		if failErr := p.ledger.Fail(ctx, job.ID, err.Error()); failErr != nil {
			log.Printf("worker: recording failure for job %d failed: %v", job.ID, failErr)
		}
		return err
	}

	log.Printf("worker: job %d done", job.ID)
	return nil
}

// step 更新进度并留一条任务日志
func (p *Processor) step(ctx context.Context, jobID int64, progress int, step, message string) {
	if err := p.ledger.UpdateProgress(jobID, progress, step); err != nil {
		log.Printf("worker: update progress for job %d failed: %v", jobID, err)
	}
	if _, err := p.ledger.AppendLog(ctx, jobID, model.LogLevelInfo, step, message, nil); err != nil {
		log.Printf("worker: append log for job %d failed: %v", jobID, err)
	}
}

// lockSink 等锁事件转写进任务日志
func (p *Processor) lockSink(ctx context.Context, jobID int64) locker.ProgressSink {
	return func(message string) {
		if _, err := p.ledger.AppendLog(ctx, jobID, model.LogLevelInfo, "acquire_lock", message, nil); err != nil {
			log.Printf("worker: append lock log for job %d failed: %v", jobID, err)
		}
	}
}

// aiProgress 引擎进度事件原样落进任务日志，键值不做裁剪
func (p *Processor) aiProgress(ctx context.Context, jobID int64) ai.ProgressFunc {
	return func(ev ai.ProgressEvent) {
		if percent := ev.Percent(); percent >= 0 {
			if err := p.ledger.UpdateProgress(jobID, percent, ev.Step()); err != nil {
				log.Printf("worker: update progress for job %d failed: %v", jobID, err)
			}
		}
		if _, err := p.ledger.AppendLog(ctx, jobID, model.LogLevelInfo, ev.Step(),
			"AI 分析进行中", model.JSONMap(ev)); err != nil {
			log.Printf("worker: append log for job %d failed: %v", jobID, err)
		}
	}
}

func (p *Processor) loadProject(projectID int64) (*model.Project, vcs.Client, error) {
	project, err := p.projects.GetByID(projectID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load project %d: %w", projectID, err)
	}
	client, err := p.vcs.ForProvider(project.Provider)
	if err != nil {
		return nil, nil, err
	}
	return project, client, nil
}

// fetchDiff 取 diff 并做大小上限检查
func (p *Processor) fetchDiff(ctx context.Context, client vcs.Client, project *model.Project, msg *queue.JobMessage) (string, error) {
	var diff string
	var err error
	if msg.PRNumber != nil {
		diff, err = client.GetPullRequestDiff(ctx, project.ExternalRepoID, *msg.PRNumber)
	} else {
		diff, err = client.GetCommitDiff(ctx, project.ExternalRepoID, msg.CommitHash)
	}
	if err != nil {
		return "", fmt.Errorf("failed to fetch diff: %w", err)
	}

	if p.cfg.Analysis.MaxDiffBytes > 0 && len(diff) > p.cfg.Analysis.MaxDiffBytes {
		return "", fmt.Errorf("%w: %d bytes (limit %d)", ErrDiffTooLarge, len(diff), p.cfg.Analysis.MaxDiffBytes)
	}
	return diff, nil
}
