package model

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// BranchIssue 按分支跟踪的去重问题
// Resolved 只由合并触发的分支分析权威修改；reconciliation 只做
// "可能已修复" 的提示，不动这里的状态
type BranchIssue struct {
	ID             int64      `gorm:"primaryKey" json:"id"`
	ProjectID      int64      `gorm:"not null;index:idx_branch_issue" json:"project_id"`
	Branch         string     `gorm:"size:200;not null;index:idx_branch_issue" json:"branch"`
	FilePath       string     `gorm:"size:500;not null" json:"file_path"`
	Line           int        `json:"line"`
	Severity       string     `gorm:"size:20;not null;index" json:"severity"`
	Title          string     `gorm:"size:500;not null" json:"title"`
	Description    string     `gorm:"type:text" json:"description,omitempty"`
	ContentHash    string     `gorm:"size:64;not null;index" json:"-"` // 去重键：file+title 摘要
	Resolved       bool       `gorm:"default:false;index:idx_branch_issue" json:"resolved"`
	FirstSeenPR    *int       `json:"first_seen_pr,omitempty"`
	ResolvedByPR   *int       `json:"resolved_by_pr,omitempty"`
	ResolvedCommit string     `gorm:"size:64" json:"resolved_commit,omitempty"`
	ResolvedBy     string     `gorm:"size:100" json:"resolved_by,omitempty"`
	ResolutionNote string     `gorm:"type:text" json:"resolution_note,omitempty"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func (BranchIssue) TableName() string {
	return "branch_issues"
}

// IssueContentHash 跨运行去重键：同文件同标题视为同一问题
// 行号不参与，代码移动不应产生新问题
func IssueContentHash(filePath, title string) string {
	h := sha256.Sum256([]byte(filePath + "\x00" + title))
	return hex.EncodeToString(h[:])
}
