package worker

import (
	"context"
	"fmt"
	"log"

	"github.com/codecrow/codecrow-server/internal/ai"
	"github.com/codecrow/codecrow-server/internal/gate"
	"github.com/codecrow/codecrow-server/internal/model"
	"github.com/codecrow/codecrow-server/internal/pkg/fingerprint"
	"github.com/codecrow/codecrow-server/internal/pkg/locker"
	"github.com/codecrow/codecrow-server/internal/pkg/queue"
)

// processPRAnalysis PR 分析主流程
func (p *Processor) processPRAnalysis(ctx context.Context, job *model.Job, msg *queue.JobMessage) error {
	if msg.PRNumber == nil {
		return fmt.Errorf("pr analysis job %d has no pr number", job.ID)
	}

	project, client, err := p.loadProject(job.ProjectID)
	if err != nil {
		return err
	}

	lock, err := p.locker.Acquire(ctx, project.ID, locker.PRKey(*msg.PRNumber), locker.KindPRAnalysis,
		locker.Holder{CommitHash: msg.CommitHash, PRNumber: msg.PRNumber}, p.lockSink(ctx, job.ID))
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	if lock == nil {
		// 同一 PR 已有分析在跑且等待超时，硬失败并提示重试
		return fmt.Errorf("%w: pr %d is being analyzed, try again later", ErrLockContention, *msg.PRNumber)
	}
	defer lock.Release(ctx)

	p.step(ctx, job.ID, 10, "fetch_diff", "正在获取代码变更")
	diff, err := p.fetchDiff(ctx, client, project, msg)
	if err != nil {
		return err
	}

	// 空指纹表示 diff 不含任何增删行，没有可分析的内容
	fp := fingerprint.Compute(diff)
	if fp == "" {
		p.step(ctx, job.ID, 100, "fingerprint", "变更不含代码增删，无需分析")
		return p.ledger.Complete(ctx, job.ID, nil)
	}

	// 指纹短路：同目标、同指纹的已完成运行直接复用
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

	p.step(ctx, job.ID, 80, "persist", "正在保存分析结果")
	analysis, err := p.persistAnalysis(project, job, msg, fp, result)
	if err != nil {
		return err
	}

	gateResult, err := p.evaluateGate(project, analysis)
	if err != nil {
		return err
	}

	comment := buildPRComment(analysis, result, gateResult)
	if err := client.PostComment(ctx, project.ExternalRepoID, *msg.PRNumber, comment); err != nil {
		// 评论失败不推翻已完成的分析，只记录
		log.Printf("worker: job %d post comment failed: %v", job.ID, err)
		_, _ = p.ledger.AppendLog(ctx, job.ID, model.LogLevelWarn, "comment",
			"PR 评论发布失败: "+err.Error(), nil)
	}

	p.step(ctx, job.ID, 95, "done", fmt.Sprintf("分析完成，共 %d 个问题", analysis.TotalIssues()))
	return p.ledger.Complete(ctx, job.ID, &analysis.ID)
}

// persistAnalysis 结果 + 问题单事务落库；NewIssueCount 相对分支已跟踪问题计算
func (p *Processor) persistAnalysis(project *model.Project, job *model.Job, msg *queue.JobMessage, fp string, result *ai.Result) (*model.CodeAnalysis, error) {
	existing, err := p.branchIssues.ListAll(project.ID, job.Branch)
	if err != nil {
		return nil, fmt.Errorf("failed to list branch issues: %w", err)
	}
	known := make(map[string]struct{}, len(existing))
	for _, issue := range existing {
		known[issue.ContentHash] = struct{}{}
	}

	analysis := &model.CodeAnalysis{
		ProjectID:   project.ID,
		Branch:      job.Branch,
		PRNumber:    msg.PRNumber,
		CommitHash:  msg.CommitHash,
		Fingerprint: fp,
	}

	issues := make([]*model.CodeAnalysisIssue, 0, len(result.Issues))
	for _, found := range result.Issues {
		issues = append(issues, &model.CodeAnalysisIssue{
			FilePath:    found.FilePath,
			Line:        found.Line,
			Severity:    found.Severity,
			Category:    found.Category,
			Title:       found.Title,
			Description: found.Description,
			Suggestion:  found.Suggestion,
		})

		switch found.Severity {
		case model.SeverityCritical:
			analysis.CriticalCount++
		case model.SeverityHigh:
			analysis.HighCount++
		case model.SeverityMedium:
			analysis.MediumCount++
		case model.SeverityLow:
			analysis.LowCount++
		}
		if _, ok := known[model.IssueContentHash(found.FilePath, found.Title)]; !ok {
			analysis.NewIssueCount++
		}
	}

	if err := p.analyses.CreateWithIssues(analysis, issues); err != nil {
		return nil, fmt.Errorf("failed to persist analysis: %w", err)
	}
	return analysis, nil
}

// evaluateGate 用最新计数评估质量门并写回 GatePassed
// 未配置质量门时 GatePassed 保持 nil，不等于通过
func (p *Processor) evaluateGate(project *model.Project, analysis *model.CodeAnalysis) (*gate.Result, error) {
	g, err := p.gates.GetActiveForProject(project.WorkspaceID, project.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load quality gate: %w", err)
	}

	result := gate.Evaluate(g, gate.MetricsFromAnalysis(analysis))
	if result == nil {
		return nil, nil
	}

	analysis.GatePassed = &result.Passed
	if err := p.analyses.Update(analysis); err != nil {
		return nil, fmt.Errorf("failed to record gate verdict: %w", err)
	}
	return result, nil
}

func buildPRComment(analysis *model.CodeAnalysis, result *ai.Result, gateResult *gate.Result) string {
	comment := fmt.Sprintf("## CodeCrow 代码审查\n\n%s\n\n", result.Summary)
	comment += fmt.Sprintf("| 级别 | 数量 |\n|---|---|\n| CRITICAL | %d |\n| HIGH | %d |\n| MEDIUM | %d |\n| LOW | %d |\n",
		analysis.CriticalCount, analysis.HighCount, analysis.MediumCount, analysis.LowCount)

	if gateResult != nil {
		if gateResult.Passed {
			comment += "\n✅ 质量门通过"
		} else {
			comment += "\n❌ " + gateResult.FailureSummary()
		}
	}
	return comment
}
