package model

import (
	"time"
)

// 质量门指标
const (
	MetricTotalIssues      = "TOTAL_ISSUES"
	MetricNewIssues        = "NEW_ISSUES"
	MetricIssuesBySeverity = "ISSUES_BY_SEVERITY"
	MetricResolvedIssues   = "RESOLVED_ISSUES"
)

// 比较运算符
const (
	ComparatorGT  = "GREATER_THAN"
	ComparatorGTE = "GREATER_THAN_OR_EQUAL"
	ComparatorLT  = "LESS_THAN"
	ComparatorLTE = "LESS_THAN_OR_EQUAL"
	ComparatorEQ  = "EQUAL"
	ComparatorNEQ = "NOT_EQUAL"
)

// QualityGate 命名规则集；可以是 workspace 默认，也可以绑定到具体项目
type QualityGate struct {
	ID          int64                  `gorm:"primaryKey" json:"id"`
	WorkspaceID int64                  `gorm:"not null;index" json:"workspace_id"`
	Name        string                 `gorm:"size:200;not null" json:"name"`
	Active      bool                   `gorm:"default:true;index" json:"active"`
	IsDefault   bool                   `gorm:"default:false" json:"is_default"`
	ProjectID   *int64                 `gorm:"index" json:"project_id,omitempty"` // nil = workspace 级
	Conditions  []QualityGateCondition `gorm:"foreignKey:GateID" json:"conditions,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
}

func (QualityGate) TableName() string {
	return "quality_gates"
}

// QualityGateCondition 单条规则：指标 + 可选级别过滤 + 比较符 + 阈值
// 条件失败 = 指标值与阈值的比较成立（如 NEW_ISSUES GREATER_THAN 0）
type QualityGateCondition struct {
	ID             int64   `gorm:"primaryKey" json:"id"`
	GateID         int64   `gorm:"not null;index" json:"gate_id"`
	Metric         string  `gorm:"size:30;not null" json:"metric"`
	SeverityFilter *string `gorm:"size:20" json:"severity_filter,omitempty"`
	Comparator     string  `gorm:"size:30;not null" json:"comparator"`
	Threshold      int     `gorm:"not null" json:"threshold"`
	Enabled        bool    `gorm:"default:true" json:"enabled"`
}

func (QualityGateCondition) TableName() string {
	return "quality_gate_conditions"
}
