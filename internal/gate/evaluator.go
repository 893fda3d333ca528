// Package gate 质量门评估：对一次分析运行的指标集应用规则集。
package gate

import (
	"fmt"

	"github.com/codecrow/codecrow-server/internal/model"
)

// Metrics 一次分析运行的可评估指标
type Metrics struct {
	TotalIssues    int
	NewIssues      int
	ResolvedIssues int
	BySeverity     map[string]int
}

// MetricsFromAnalysis 从分析结果提取指标
func MetricsFromAnalysis(a *model.CodeAnalysis) Metrics {
	return Metrics{
		TotalIssues:    a.TotalIssues(),
		NewIssues:      a.NewIssueCount,
		ResolvedIssues: a.ResolvedIssueCount,
		BySeverity: map[string]int{
			model.SeverityCritical: a.CriticalCount,
			model.SeverityHigh:     a.HighCount,
			model.SeverityMedium:   a.MediumCount,
			model.SeverityLow:      a.LowCount,
		},
	}
}

// ConditionResult 单条规则的评估结果
type ConditionResult struct {
	Condition model.QualityGateCondition `json:"condition"`
	Value     int                        `json:"value"`
	Passed    bool                       `json:"passed"`
}

// Result 整体评估结果：所有启用条件都通过才算通过
type Result struct {
	GateID     int64             `json:"gate_id"`
	GateName   string            `json:"gate_name"`
	Passed     bool              `json:"passed"`
	Conditions []ConditionResult `json:"conditions"`
}

// FailureSummary 拼一条人类可读的失败说明，供 PR 评论用
func (r *Result) FailureSummary() string {
	if r.Passed {
		return ""
	}
	summary := fmt.Sprintf("质量门 %q 未通过:", r.GateName)
	for _, c := range r.Conditions {
		if c.Passed {
			continue
		}
		metric := c.Condition.Metric
		if c.Condition.SeverityFilter != nil {
			metric = fmt.Sprintf("%s(%s)", metric, *c.Condition.SeverityFilter)
		}
		summary += fmt.Sprintf("\n- %s = %d (%s %d)", metric, c.Value, c.Condition.Comparator, c.Condition.Threshold)
	}
	return summary
}

// Evaluate 评估质量门
//
// 条件失败 = 比较成立（NEW_ISSUES GREATER_THAN 0 且新问题 1 个 → 失败）。
// 禁用的条件跳过；全部条件都禁用或为空时门通过。
// gate 为 nil 表示项目未配置质量门，调用方应保持 GatePassed 为 nil 而不是当作通过。
func Evaluate(gate *model.QualityGate, metrics Metrics) *Result {
	if gate == nil {
		return nil
	}

	result := &Result{
		GateID:   gate.ID,
		GateName: gate.Name,
		Passed:   true,
	}

	for _, cond := range gate.Conditions {
		if !cond.Enabled {
			continue
		}

		value := metricValue(cond, metrics)
		passed := !compare(value, cond.Comparator, cond.Threshold)
		if !passed {
			result.Passed = false
		}
		result.Conditions = append(result.Conditions, ConditionResult{
			Condition: cond,
			Value:     value,
			Passed:    passed,
		})
	}
	return result
}

func metricValue(cond model.QualityGateCondition, m Metrics) int {
	switch cond.Metric {
	case model.MetricTotalIssues:
		return m.TotalIssues
	case model.MetricNewIssues:
		return m.NewIssues
	case model.MetricResolvedIssues:
		return m.ResolvedIssues
	case model.MetricIssuesBySeverity:
		if cond.SeverityFilter == nil {
			return 0
		}
		return m.BySeverity[*cond.SeverityFilter]
	}
	return 0
}

func compare(value int, comparator string, threshold int) bool {
	switch comparator {
	case model.ComparatorGT:
		return value > threshold
	case model.ComparatorGTE:
		return value >= threshold
	case model.ComparatorLT:
		return value < threshold
	case model.ComparatorLTE:
		return value <= threshold
	case model.ComparatorEQ:
		return value == threshold
	case model.ComparatorNEQ:
		return value != threshold
	}
	return false
}
