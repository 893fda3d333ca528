// Package webhook 入站事件的解析与分发。
//
// 各平台的 payload 先归一化成 Event，再由 Dispatcher 决定
// 创建什么任务（或者直接忽略）。
package webhook

// 归一化事件类型
const (
	KindPROpened  = "pr_opened"
	KindPRUpdated = "pr_updated"
	KindPRClosed  = "pr_closed"
	KindPush      = "push"
	KindComment   = "comment"
)

// Event 平台无关的归一化事件
type Event struct {
	Provider       string `json:"provider"`
	ExternalRepoID string `json:"external_repo_id"`
	Kind           string `json:"kind"`
	PRNumber       *int   `json:"pr_number,omitempty"`
	SourceBranch   string `json:"source_branch,omitempty"`
	TargetBranch   string `json:"target_branch,omitempty"`
	Branch         string `json:"branch,omitempty"` // push 事件的目标分支
	CommitHash     string `json:"commit_hash,omitempty"`
	Merged         bool   `json:"merged,omitempty"` // pr_closed 时有效
	CommentBody    string `json:"comment_body,omitempty"`
}
