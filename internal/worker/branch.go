package worker

import (
	"context"
	"fmt"

	"github.com/codecrow/codecrow-server/internal/ai"
	"github.com/codecrow/codecrow-server/internal/model"
	"github.com/codecrow/codecrow-server/internal/pkg/fingerprint"
	"github.com/codecrow/codecrow-server/internal/pkg/locker"
	"github.com/codecrow/codecrow-server/internal/pkg/queue"
	"github.com/codecrow/codecrow-server/internal/repository"
)

// processBranchAnalysis 分支分析：push 或 PR 合并后触发
//
// 与 PR 分析的关键差别是这里做权威的分支问题同步：
// 被改动文件中不再出现的问题在这里（且只在这里）标记为已解决
func (p *Processor) processBranchAnalysis(ctx context.Context, job *model.Job, msg *queue.JobMessage) error {
	project, client, err := p.loadProject(job.ProjectID)
	if err != nil {
		return err
	}

	lock, err := p.locker.Acquire(ctx, project.ID, locker.BranchKey(job.Branch), locker.KindBranchAnalysis,
		locker.Holder{CommitHash: msg.CommitHash, PRNumber: msg.PRNumber}, p.lockSink(ctx, job.ID))
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	if lock == nil {
		return fmt.Errorf("%w: branch %s is being analyzed, try again later", ErrLockContention, job.Branch)
	}
	defer lock.Release(ctx)

	p.step(ctx, job.ID, 10, "fetch_diff", "正在获取代码变更")
	diff, err := p.fetchDiff(ctx, client, project, msg)
	if err != nil {
		return err
	}

	fp := fingerprint.Compute(diff)
	if fp == "" {
		p.step(ctx, job.ID, 100, "fingerprint", "变更不含代码增删，无需分析")
		return p.ledger.Complete(ctx, job.ID, nil)
	}
	if prior, err := p.analyses.FindByFingerprint(project.ID, job.Branch, msg.CommitHash, fp); err != nil {
		return fmt.Errorf("fingerprint lookup failed: %w", err)
	} else if prior != nil {
		p.step(ctx, job.ID, 100, "fingerprint", "变更与上次分析一致，复用历史结果")
		return p.ledger.Complete(ctx, job.ID, &prior.ID)
	}

	if p.ledger.IsCancelled(job.ID) {
		return nil
	}

	p.step(ctx, job.ID, 20, "ai_review", "正在进行 AI 分析")
	result, err := p.analyzer.Analyze(ctx, &ai.Request{
		ProjectID:  project.ID,
		Branch:     job.Branch,
		PRNumber:   msg.PRNumber,
		CommitHash: msg.CommitHash,
		Diff:       diff,
		Model:      project.ModelName,
	}, p.aiProgress(ctx, job.ID))
	if err != nil {
		return fmt.Errorf("ai analysis failed: %w", err)
	}

	p.step(ctx, job.ID, 75, "persist", "正在保存分析结果")
	analysis, err := p.persistAnalysis(project, job, msg, fp, result)
	if err != nil {
		return err
	}

	// 权威同步：新问题入账，被改动文件中消失的问题带出处标记解决
	p.step(ctx, job.ID, 85, "sync_issues", "正在同步分支问题状态")
	found := make([]*model.BranchIssue, 0, len(result.Issues))
	for _, issue := range result.Issues {
		found = append(found, &model.BranchIssue{
			FilePath:    issue.FilePath,
			Line:        issue.Line,
			Severity:    issue.Severity,
			Title:       issue.Title,
			Description: issue.Description,
			ContentHash: model.IssueContentHash(issue.FilePath, issue.Title),
			FirstSeenPR: msg.PRNumber,
		})
	}

	syncResult, err := p.branchIssues.Sync(project.ID, job.Branch, found, ChangedFiles(diff), repository.Resolution{
		PRNumber:   msg.PRNumber,
		CommitHash: msg.CommitHash,
		Actor:      "codecrow",
		Note:       "issue no longer reported after branch update",
	})
	if err != nil {
		return fmt.Errorf("failed to sync branch issues: %w", err)
	}

	analysis.ResolvedIssueCount = syncResult.ResolvedCount
	analysis.NewIssueCount = syncResult.NewCount
	if err := p.analyses.Update(analysis); err != nil {
		return fmt.Errorf("failed to update analysis counts: %w", err)
	}

	// 解决状态变了，质量门必须用同步后的计数重新评估
	if _, err := p.evaluateGate(project, analysis); err != nil {
		return err
	}

	p.step(ctx, job.ID, 95, "done", fmt.Sprintf("分析完成：新问题 %d，已解决 %d",
		syncResult.NewCount, syncResult.ResolvedCount))
	return p.ledger.Complete(ctx, job.ID, &analysis.ID)
}
