package worker

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/codecrow/codecrow-server/internal/ai"
	"github.com/codecrow/codecrow-server/internal/model"
	"github.com/codecrow/codecrow-server/internal/pkg/locker"
	"github.com/codecrow/codecrow-server/internal/pkg/queue"
)

// processReconciliation 对账：这个 PR 可能修复了目标分支上的哪些已知问题
//
// 结论只是提示（发一条 PR 评论），绝不修改 BranchIssue.Resolved；
// 权威的解决状态变更只发生在合并后的分支分析里。
// 没有候选时整个流程短路，不拿锁也不调 AI。
func (p *Processor) processReconciliation(ctx context.Context, job *model.Job, msg *queue.JobMessage) error {
	if msg.PRNumber == nil {
		return fmt.Errorf("reconciliation job %d has no pr number", job.ID)
	}

	unresolved, err := p.branchIssues.ListUnresolved(job.ProjectID, job.Branch)
	if err != nil {
		return fmt.Errorf("failed to list unresolved issues: %w", err)
	}
	if len(unresolved) == 0 {
		p.step(ctx, job.ID, 100, "reconcile", "目标分支无未解决问题，跳过对账")
		return p.ledger.Complete(ctx, job.ID, nil)
	}

	project, client, err := p.loadProject(job.ProjectID)
	if err != nil {
		return err
	}

	p.step(ctx, job.ID, 10, "fetch_diff", "正在获取代码变更")
	diff, err := p.fetchDiff(ctx, client, project, msg)
	if err != nil {
		return err
	}

	// 候选 = 未解决问题 ∩ 本次改动的文件
	changed := ChangedFiles(diff)
	candidates := make([]ai.Candidate, 0, len(unresolved))
	for _, issue := range unresolved {
		if _, ok := changed[issue.FilePath]; !ok {
			continue
		}
		candidates = append(candidates, ai.Candidate{
			ID:       issue.ID,
			FilePath: issue.FilePath,
			Line:     issue.Line,
			Severity: issue.Severity,
			Title:    issue.Title,
		})
	}
	if len(candidates) == 0 {
		p.step(ctx, job.ID, 100, "reconcile", "改动未触及任何已知问题文件，跳过对账")
		return p.ledger.Complete(ctx, job.ID, nil)
	}

	// 对账允许等待的时间很短，拿不到锁就软跳过，不算失败
	lock, err := p.locker.Acquire(ctx, project.ID, locker.BranchKey(job.Branch), locker.KindReconciliation,
		locker.Holder{CommitHash: msg.CommitHash, PRNumber: msg.PRNumber}, p.lockSink(ctx, job.ID))
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	if lock == nil {
		p.step(ctx, job.ID, 100, "reconcile", "分支忙，本次对账跳过")
		return p.ledger.Complete(ctx, job.ID, nil)
	}
	defer lock.Release(ctx)

	p.step(ctx, job.ID, 40, "reconcile", fmt.Sprintf("正在核对 %d 个候选问题", len(candidates)))
	hints, err := p.analyzer.CheckResolved(ctx, &ai.ResolveCheckRequest{
		ProjectID:  project.ID,
		Branch:     job.Branch,
		CommitHash: msg.CommitHash,
		Diff:       diff,
		Candidates: candidates,
	})
	if err != nil {
		return fmt.Errorf("ai reconciliation failed: %w", err)
	}

	if len(hints) > 0 {
		comment := buildReconcileComment(unresolved, hints)
		if err := client.PostComment(ctx, project.ExternalRepoID, *msg.PRNumber, comment); err != nil {
			log.Printf("worker: job %d post reconcile comment failed: %v", job.ID, err)
			_, _ = p.ledger.AppendLog(ctx, job.ID, model.LogLevelWarn, "comment",
				"对账评论发布失败: "+err.Error(), nil)
		}
	}

	p.step(ctx, job.ID, 95, "done", fmt.Sprintf("对账完成：%d 个问题可能已修复", len(hints)))
	return p.ledger.Complete(ctx, job.ID, nil)
}

func buildReconcileComment(unresolved []*model.BranchIssue, hints []ai.ResolveHint) string {
	byID := make(map[int64]*model.BranchIssue, len(unresolved))
	for _, issue := range unresolved {
		byID[issue.ID] = issue
	}

	var sb strings.Builder
	sb.WriteString("## CodeCrow 问题对账\n\n此 PR 可能修复了以下已知问题（合并后确认）：\n\n")
	for _, hint := range hints {
		issue, ok := byID[hint.CandidateID]
		if !ok {
			continue
		}
		sb.WriteString(fmt.Sprintf("- **%s** `%s`", issue.Title, issue.FilePath))
		if hint.Note != "" {
			sb.WriteString("：" + hint.Note)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
