package webhook

import (
	"context"
	"errors"
	"fmt"
	"log"

	"golang.org/x/crypto/bcrypt"

	"github.com/codecrow/codecrow-server/internal/ledger"
	"github.com/codecrow/codecrow-server/internal/model"
	"github.com/codecrow/codecrow-server/internal/model/dto"
	"github.com/codecrow/codecrow-server/internal/pkg/queue"
	"github.com/codecrow/codecrow-server/internal/pkg/slashcmd"
	"github.com/codecrow/codecrow-server/internal/repository"
)

var (
	ErrUnknownProject = errors.New("no active project for repository")
	ErrInvalidToken   = errors.New("invalid webhook token")
)

// Dispatcher 入站事件 → 任务
//
// 只负责受理：创建 PENDING 任务并入队，实际执行在 worker 进程，
// 与入站请求不共享任何事务或连接
type Dispatcher struct {
	projects  *repository.ProjectRepository
	ledger    *ledger.Ledger
	queue     *queue.Queue
	publicURL string
}

func NewDispatcher(projects *repository.ProjectRepository, l *ledger.Ledger, q *queue.Queue, publicURL string) *Dispatcher {
	return &Dispatcher{
		projects:  projects,
		ledger:    l,
		queue:     q,
		publicURL: publicURL,
	}
}

// ResolveProject 按 (provider, 外部仓库 ID) 找归属项目
// 未接入的仓库返回 ErrUnknownProject，调用方决定 404 还是静默忽略
func (d *Dispatcher) ResolveProject(provider, externalRepoID string) (*model.Project, error) {
	project, err := d.projects.GetByProviderRepo(provider, externalRepoID)
	if err != nil {
		return nil, err
	}
	if project == nil {
		return nil, ErrUnknownProject
	}
	return project, nil
}

// VerifyToken 校验项目绑定的 webhook token
func (d *Dispatcher) VerifyToken(project *model.Project, token string) error {
	if token == "" {
		return ErrInvalidToken
	}
	if err := bcrypt.CompareHashAndPassword([]byte(project.WebhookTokenHash), []byte(token)); err != nil {
		return ErrInvalidToken
	}
	return nil
}

// Dispatch 按事件类型路由
//
// 不产生任务的事件（普通评论、未合并的 PR 关闭）返回 ignored 受理，
// 不算错误。PR 打开/更新除主分析任务外还会附带一个对账任务。
func (d *Dispatcher) Dispatch(ctx context.Context, project *model.Project, ev *Event) (*dto.WebhookAccepted, error) {
	switch ev.Kind {
	case KindPROpened, KindPRUpdated:
		accepted, err := d.createAndEnqueue(ctx, project, &model.Job{
			ProjectID:     project.ID,
			Type:          model.JobTypePRAnalysis,
			TriggerSource: model.TriggerWebhook,
			Branch:        ev.TargetBranch,
			PRNumber:      ev.PRNumber,
			CommitHash:    ev.CommitHash,
		}, ev, "")
		if err != nil {
			return nil, err
		}

		// 对账任务：检查这个 PR 是否修复了目标分支上的已知问题。
		// 附属任务失败不影响主任务的受理。
		_, recErr := d.createAndEnqueue(ctx, project, &model.Job{
			ProjectID:     project.ID,
			Type:          model.JobTypePRReconciliation,
			TriggerSource: model.TriggerWebhook,
			Branch:        ev.TargetBranch,
			PRNumber:      ev.PRNumber,
			CommitHash:    ev.CommitHash,
		}, ev, "")
		if recErr != nil {
			log.Printf("webhook: failed to enqueue reconciliation for project %d pr %v: %v",
				project.ID, ev.PRNumber, recErr)
		}
		return accepted, nil

	case KindPRClosed:
		// 合并改变的是目标分支的状态，按分支分析处理；未合并的关闭直接忽略
		if !ev.Merged {
			return ignored(project, ev), nil
		}
		return d.createAndEnqueue(ctx, project, &model.Job{
			ProjectID:     project.ID,
			Type:          model.JobTypeBranchAnalysis,
			TriggerSource: model.TriggerWebhook,
			Branch:        ev.TargetBranch,
			PRNumber:      ev.PRNumber,
			CommitHash:    ev.CommitHash,
		}, ev, "")

	case KindPush:
		return d.createAndEnqueue(ctx, project, &model.Job{
			ProjectID:     project.ID,
			Type:          model.JobTypeBranchAnalysis,
			TriggerSource: model.TriggerWebhook,
			Branch:        ev.Branch,
			CommitHash:    ev.CommitHash,
		}, ev, "")

	case KindComment:
		cmd, ok := slashcmd.Parse(ev.CommentBody)
		if !ok {
			// 不是命令的评论不留任务记录
			return ignored(project, ev), nil
		}

		jobType := model.JobTypeAskCommand
		if cmd.Type == slashcmd.CommandReview {
			jobType = model.JobTypeReviewCommand
		}
		return d.createAndEnqueue(ctx, project, &model.Job{
			ProjectID:     project.ID,
			Type:          jobType,
			TriggerSource: model.TriggerWebhook,
			PRNumber:      ev.PRNumber,
		}, ev, cmd.Argument)
	}

	return ignored(project, ev), nil
}

func (d *Dispatcher) createAndEnqueue(ctx context.Context, project *model.Project, job *model.Job, ev *Event, commandArg string) (*dto.WebhookAccepted, error) {
	if err := d.ledger.Create(job); err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	msg := &queue.JobMessage{
		JobID:         job.ID,
		ExternalID:    job.ExternalID,
		ProjectID:     job.ProjectID,
		Type:          job.Type,
		TriggerSource: job.TriggerSource,
		Branch:        job.Branch,
		SourceBranch:  ev.SourceBranch,
		PRNumber:      job.PRNumber,
		CommitHash:    job.CommitHash,
		CommandArg:    commandArg,
	}
	if err := d.queue.Push(ctx, msg); err != nil {
		// 入队失败的任务直接标失败，不留永远 PENDING 的僵尸
		_ = d.ledger.Fail(ctx, job.ID, "failed to enqueue job: "+err.Error())
		return nil, fmt.Errorf("failed to enqueue job: %w", err)
	}

	return &dto.WebhookAccepted{
		Status:        "accepted",
		JobID:         job.ExternalID,
		JobURL:        fmt.Sprintf("%s/api/v1/jobs/%s", d.publicURL, job.ExternalID),
		LogsStreamURL: fmt.Sprintf("%s/api/v1/jobs/%s/logs/stream", d.publicURL, job.ExternalID),
		ProjectID:     project.ID,
		EventType:     ev.Kind,
	}, nil
}

func ignored(project *model.Project, ev *Event) *dto.WebhookAccepted {
	return &dto.WebhookAccepted{
		Status:    "ignored",
		ProjectID: project.ID,
		EventType: ev.Kind,
	}
}
