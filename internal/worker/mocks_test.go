package worker

import (
	"context"

	"github.com/codecrow/codecrow-server/internal/ai"
	"github.com/codecrow/codecrow-server/internal/vcs"
)

// mockVCS 可编程的 VCS 端口
type mockVCS struct {
	diff      string
	diffErr   error
	pr        *vcs.PullRequest
	comments  []string
	diffCalls int
}

func (m *mockVCS) GetPullRequestDiff(ctx context.Context, repoID string, prNumber int) (string, error) {
	m.diffCalls++
	return m.diff, m.diffErr
}

func (m *mockVCS) GetCommitDiff(ctx context.Context, repoID, commitHash string) (string, error) {
	m.diffCalls++
	return m.diff, m.diffErr
}

func (m *mockVCS) GetCommitRangeDiff(ctx context.Context, repoID, fromHash, toHash string) (string, error) {
	m.diffCalls++
	return m.diff, m.diffErr
}

func (m *mockVCS) GetPullRequest(ctx context.Context, repoID string, prNumber int) (*vcs.PullRequest, error) {
	if m.pr != nil {
		return m.pr, nil
	}
	return &vcs.PullRequest{Number: prNumber, TargetBranch: "main", CommitHash: "abc123", State: "open"}, nil
}

func (m *mockVCS) FindPullRequestForCommit(ctx context.Context, repoID, commitHash string) (*vcs.PullRequest, error) {
	return m.pr, nil
}

func (m *mockVCS) PostComment(ctx context.Context, repoID string, prNumber int, body string) error {
	m.comments = append(m.comments, body)
	return nil
}

// mockAI 可编程的分析引擎端口
type mockAI struct {
	result       *ai.Result
	analyzeErr   error
	hints        []ai.ResolveHint
	checkErr     error
	answer       string
	analyzeCalls int
	checkCalls   int
	answerCalls  int
}

func (m *mockAI) Analyze(ctx context.Context, req *ai.Request, progress ai.ProgressFunc) (*ai.Result, error) {
	m.analyzeCalls++
	if progress != nil {
		progress(ai.ProgressEvent{"percent": 50, "step": "ai_review", "tokens_used": 321})
	}
	if m.analyzeErr != nil {
		return nil, m.analyzeErr
	}
	if m.result != nil {
		return m.result, nil
	}
	return &ai.Result{Summary: "no issues"}, nil
}

func (m *mockAI) CheckResolved(ctx context.Context, req *ai.ResolveCheckRequest) ([]ai.ResolveHint, error) {
	m.checkCalls++
	if m.checkErr != nil {
		return nil, m.checkErr
	}
	return m.hints, nil
}

func (m *mockAI) Answer(ctx context.Context, q *ai.Question) (string, error) {
	m.answerCalls++
	return m.answer, nil
}
