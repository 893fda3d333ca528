// Package ai 分析引擎端口。
//
// 引擎是独立部署的服务，这里只定义端口接口和 HTTP client；
// processor 通过 ProgressFunc 把引擎侧的阶段进展转写进任务日志。
package ai

import (
	"context"
	"errors"
)

// ErrUpstream 引擎侧错误（超时、非 2xx、返回不可解析）
// processor 捕获后任务转 FAILED 并在日志中留下原因
var ErrUpstream = errors.New("ai engine error")

// Issue 引擎返回的单个问题
type Issue struct {
	FilePath    string `json:"file_path"`
	Line        int    `json:"line"`
	Severity    string `json:"severity"`
	Category    string `json:"category,omitempty"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Suggestion  string `json:"suggestion,omitempty"`
}

// Request 一次代码审查请求
type Request struct {
	ProjectID  int64  `json:"project_id"`
	Branch     string `json:"branch"`
	PRNumber   *int   `json:"pr_number,omitempty"`
	CommitHash string `json:"commit_hash"`
	Diff       string `json:"diff"`
	Model      string `json:"model,omitempty"`
}

// Result 审查结果
type Result struct {
	Summary string  `json:"summary"`
	Issues  []Issue `json:"issues"`
}

// Candidate 对账候选：分支上尚未解决、且文件被本次提交改动的问题
type Candidate struct {
	ID       int64  `json:"id"`
	FilePath string `json:"file_path"`
	Line     int    `json:"line"`
	Severity string `json:"severity"`
	Title    string `json:"title"`
}

// ResolveCheckRequest 问引擎：这个 diff 可能修复了哪些候选问题
type ResolveCheckRequest struct {
	ProjectID  int64       `json:"project_id"`
	Branch     string      `json:"branch"`
	CommitHash string      `json:"commit_hash"`
	Diff       string      `json:"diff"`
	Candidates []Candidate `json:"candidates"`
}

// ResolveHint 引擎判断"可能已修复"的提示，不等于权威解决
type ResolveHint struct {
	CandidateID int64  `json:"candidate_id"`
	Note        string `json:"note,omitempty"`
}

// Question /codecrow ask 的问答请求
type Question struct {
	ProjectID int64  `json:"project_id"`
	PRNumber  *int   `json:"pr_number,omitempty"`
	Diff      string `json:"diff,omitempty"`
	Text      string `json:"text"`
	Model     string `json:"model,omitempty"`
}

// ProgressEvent 引擎侧进度事件
//
// 键值由引擎定义、随引擎演进，这里不做约束，原样转写进任务日志；
// percent 和 step 是约定俗成的两个键，取不到不算错。
type ProgressEvent map[string]interface{}

// Percent 取 percent 键，缺失或类型不符返回 -1
func (e ProgressEvent) Percent() int {
	switch v := e["percent"].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return -1
}

// Step 取 step 键
func (e ProgressEvent) Step() string {
	if s, ok := e["step"].(string); ok {
		return s
	}
	return ""
}

// ProgressFunc 进度回调，事件按引擎发出的原样传递
type ProgressFunc func(ev ProgressEvent)

// Analyzer 分析引擎端口
type Analyzer interface {
	// Analyze 审查 diff，progress 可为 nil
	Analyze(ctx context.Context, req *Request, progress ProgressFunc) (*Result, error)
	// CheckResolved 对账：返回可能已修复的候选
	CheckResolved(ctx context.Context, req *ResolveCheckRequest) ([]ResolveHint, error)
	// Answer 回答 PR 上下文中的自由提问
	Answer(ctx context.Context, q *Question) (string, error)
}
