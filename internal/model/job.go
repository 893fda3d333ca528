package model

import (
	"time"
)

// 任务状态机：PENDING → RUNNING → {COMPLETED, FAILED, CANCELLED}
// 终态不可再转移
const (
	JobStatusPending   = "PENDING"
	JobStatusRunning   = "RUNNING"
	JobStatusCompleted = "COMPLETED"
	JobStatusFailed    = "FAILED"
	JobStatusCancelled = "CANCELLED"
)

// 任务类型
const (
	JobTypePRAnalysis       = "PR_ANALYSIS"
	JobTypeBranchAnalysis   = "BRANCH_ANALYSIS"
	JobTypePRReconciliation = "PR_RECONCILIATION"
	JobTypeAskCommand       = "ASK_COMMAND"
	JobTypeReviewCommand    = "REVIEW_COMMAND"
	JobTypeRagIndexFull     = "RAG_INDEX_FULL"
	JobTypeRagIndexUpdate   = "RAG_INDEX_UPDATE"
)

// 触发来源
const (
	TriggerWebhook  = "webhook"
	TriggerManual   = "manual"
	TriggerSchedule = "schedule"
)

// Job 可追踪的后台工作单元
type Job struct {
	ID             int64      `gorm:"primaryKey" json:"-"`
	ExternalID     string     `gorm:"size:36;not null;uniqueIndex" json:"id"` // 对外暴露的不透明 ID
	ProjectID      int64      `gorm:"not null;index" json:"project_id"`
	Type           string     `gorm:"size:30;not null;index" json:"type"`
	TriggerSource  string     `gorm:"size:20;not null" json:"trigger_source"`
	Branch         string     `gorm:"size:200" json:"branch,omitempty"`
	PRNumber       *int       `json:"pr_number,omitempty"`
	CommitHash     string     `gorm:"size:64" json:"commit_hash,omitempty"`
	Status         string     `gorm:"size:20;default:PENDING;index" json:"status"`
	Progress       int        `gorm:"default:0" json:"progress"` // 0-100
	CurrentStep    string     `gorm:"size:200" json:"current_step,omitempty"`
	ErrorMessage   string     `gorm:"type:text" json:"error_message,omitempty"`
	CodeAnalysisID *int64     `gorm:"index" json:"code_analysis_id,omitempty"`
	CreatedAt      time.Time  `gorm:"index" json:"created_at"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}

func (Job) TableName() string {
	return "jobs"
}

// IsTerminal 是否处于终态
func (j *Job) IsTerminal() bool {
	return JobStatusTerminal(j.Status)
}

func JobStatusTerminal(status string) bool {
	switch status {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}
