package worker

import (
	"context"
	"fmt"

	"github.com/codecrow/codecrow-server/internal/ai"
	"github.com/codecrow/codecrow-server/internal/model"
	"github.com/codecrow/codecrow-server/internal/pkg/queue"
)

// processAskCommand /codecrow ask：带 PR 上下文问答，答案以评论发回
// 不做写操作，不需要分支锁
func (p *Processor) processAskCommand(ctx context.Context, job *model.Job, msg *queue.JobMessage) error {
	if msg.PRNumber == nil {
		return fmt.Errorf("ask command job %d has no pr number", job.ID)
	}
	if msg.CommandArg == "" {
		return fmt.Errorf("ask command job %d has no question", job.ID)
	}

	project, client, err := p.loadProject(job.ProjectID)
	if err != nil {
		return err
	}

	p.step(ctx, job.ID, 20, "fetch_diff", "正在获取 PR 上下文")
	diff, err := client.GetPullRequestDiff(ctx, project.ExternalRepoID, *msg.PRNumber)
	if err != nil {
		return fmt.Errorf("failed to fetch diff: %w", err)
	}

	p.step(ctx, job.ID, 50, "answer", "正在生成回答")
	answer, err := p.analyzer.Answer(ctx, &ai.Question{
		ProjectID: project.ID,
		PRNumber:  msg.PRNumber,
		Diff:      diff,
		Text:      msg.CommandArg,
		Model:     project.ModelName,
	})
	if err != nil {
		return fmt.Errorf("ai answer failed: %w", err)
	}

	comment := fmt.Sprintf("## CodeCrow\n\n> %s\n\n%s", msg.CommandArg, answer)
	if err := client.PostComment(ctx, project.ExternalRepoID, *msg.PRNumber, comment); err != nil {
		return fmt.Errorf("failed to post answer: %w", err)
	}

	p.step(ctx, job.ID, 95, "done", "回答已发布")
	return p.ledger.Complete(ctx, job.ID, nil)
}

// processReviewCommand /codecrow review：人工触发的 PR 重分析
//
// 评论事件不携带分支信息，先查 PR 补齐目标分支和最新提交再走
// PR 分析主流程，否则指纹和新问题基线会算在空分支上
func (p *Processor) processReviewCommand(ctx context.Context, job *model.Job, msg *queue.JobMessage) error {
	if msg.PRNumber == nil {
		return fmt.Errorf("review command job %d has no pr number", job.ID)
	}

	project, client, err := p.loadProject(job.ProjectID)
	if err != nil {
		return err
	}

	pr, err := client.GetPullRequest(ctx, project.ExternalRepoID, *msg.PRNumber)
	if err != nil {
		return fmt.Errorf("failed to fetch pr %d: %w", *msg.PRNumber, err)
	}

	job.Branch = pr.TargetBranch
	job.CommitHash = pr.CommitHash
	msg.Branch = pr.TargetBranch
	msg.CommitHash = pr.CommitHash
	if err := p.ledger.SetTarget(job.ID, pr.TargetBranch, pr.CommitHash); err != nil {
		return fmt.Errorf("failed to record analysis target: %w", err)
	}

	return p.processPRAnalysis(ctx, job, msg)
}
