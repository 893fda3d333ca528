package model

import (
	"time"
)

// 问题严重级别
const (
	SeverityCritical = "CRITICAL"
	SeverityHigh     = "HIGH"
	SeverityMedium   = "MEDIUM"
	SeverityLow      = "LOW"
)

// CodeAnalysis 单次分析运行的结果
// Fingerprint 用于幂等判断：同 (project, branch, commit) 且指纹相同的
// 已完成运行存在时，新触发直接短路完成
type CodeAnalysis struct {
	ID                 int64     `gorm:"primaryKey" json:"id"`
	ProjectID          int64     `gorm:"not null;index:idx_analysis_target" json:"project_id"`
	Branch             string    `gorm:"size:200;not null;index:idx_analysis_target" json:"branch"`
	PRNumber           *int      `json:"pr_number,omitempty"`
	CommitHash         string    `gorm:"size:64;index:idx_analysis_target" json:"commit_hash"`
	Fingerprint        string    `gorm:"size:64;index" json:"fingerprint,omitempty"`
	CriticalCount      int       `gorm:"default:0" json:"critical_count"`
	HighCount          int       `gorm:"default:0" json:"high_count"`
	MediumCount        int       `gorm:"default:0" json:"medium_count"`
	LowCount           int       `gorm:"default:0" json:"low_count"`
	NewIssueCount      int       `gorm:"default:0" json:"new_issue_count"`
	ResolvedIssueCount int       `gorm:"default:0" json:"resolved_issue_count"`
	GatePassed         *bool     `json:"gate_passed,omitempty"` // nil = 未配置质量门
	CreatedAt          time.Time `gorm:"index" json:"created_at"`
}

func (CodeAnalysis) TableName() string {
	return "code_analyses"
}

// TotalIssues 各级别问题总数
func (a *CodeAnalysis) TotalIssues() int {
	return a.CriticalCount + a.HighCount + a.MediumCount + a.LowCount
}

// SeverityCount 按级别取计数
func (a *CodeAnalysis) SeverityCount(severity string) int {
	switch severity {
	case SeverityCritical:
		return a.CriticalCount
	case SeverityHigh:
		return a.HighCount
	case SeverityMedium:
		return a.MediumCount
	case SeverityLow:
		return a.LowCount
	}
	return 0
}

// CodeAnalysisIssue 单次运行产出的问题（与跨运行去重的 BranchIssue 区分）
type CodeAnalysisIssue struct {
	ID             int64     `gorm:"primaryKey" json:"id"`
	CodeAnalysisID int64     `gorm:"not null;index" json:"code_analysis_id"`
	FilePath       string    `gorm:"size:500;not null" json:"file_path"`
	Line           int       `json:"line"`
	Severity       string    `gorm:"size:20;not null;index" json:"severity"`
	Category       string    `gorm:"size:50" json:"category,omitempty"`
	Title          string    `gorm:"size:500;not null" json:"title"`
	Description    string    `gorm:"type:text" json:"description,omitempty"`
	Suggestion     string    `gorm:"type:text" json:"suggestion,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

func (CodeAnalysisIssue) TableName() string {
	return "code_analysis_issues"
}
