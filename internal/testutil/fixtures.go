package testutil

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/codecrow/codecrow-server/internal/model"
)

// TestWebhookToken 测试项目统一使用的明文 webhook token
const TestWebhookToken = "test-webhook-token"

// TestProject 创建测试项目
func TestProject(t *testing.T, db *gorm.DB, opts ...func(*model.Project)) *model.Project {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(TestWebhookToken), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("Failed to hash webhook token: %v", err)
	}

	project := &model.Project{
		WorkspaceID:      1,
		Name:             fmt.Sprintf("Test Project %d", time.Now().UnixNano()%10000),
		Provider:         model.ProviderBitbucket,
		ExternalRepoID:   fmt.Sprintf("repo-%d", time.Now().UnixNano()),
		WebhookTokenHash: string(hash),
		DefaultBranch:    "main",
		Active:           true,
	}

	for _, opt := range opts {
		opt(project)
	}

	if err := db.Create(project).Error; err != nil {
		t.Fatalf("Failed to create test project: %v", err)
	}

	return project
}

// WithProvider 设置平台
func WithProvider(provider string) func(*model.Project) {
	return func(p *model.Project) {
		p.Provider = provider
	}
}

// WithExternalRepoID 设置外部仓库 ID
func WithExternalRepoID(repoID string) func(*model.Project) {
	return func(p *model.Project) {
		p.ExternalRepoID = repoID
	}
}

// WithWorkspace 设置 workspace
func WithWorkspace(workspaceID int64) func(*model.Project) {
	return func(p *model.Project) {
		p.WorkspaceID = workspaceID
	}
}

// TestJob 创建测试任务
func TestJob(t *testing.T, db *gorm.DB, projectID int64, jobType, status string) *model.Job {
	t.Helper()

	job := &model.Job{
		ExternalID:    uuid.NewString(),
		ProjectID:     projectID,
		Type:          jobType,
		TriggerSource: model.TriggerWebhook,
		Branch:        "main",
		CommitHash:    "abc123",
		Status:        status,
	}

	if err := db.Create(job).Error; err != nil {
		t.Fatalf("Failed to create test job: %v", err)
	}

	return job
}

// TestBranchIssue 创建测试分支问题
func TestBranchIssue(t *testing.T, db *gorm.DB, projectID int64, branch, filePath, title string, opts ...func(*model.BranchIssue)) *model.BranchIssue {
	t.Helper()

	issue := &model.BranchIssue{
		ProjectID:   projectID,
		Branch:      branch,
		FilePath:    filePath,
		Line:        10,
		Severity:    model.SeverityHigh,
		Title:       title,
		ContentHash: model.IssueContentHash(filePath, title),
	}

	for _, opt := range opts {
		opt(issue)
	}

	if err := db.Create(issue).Error; err != nil {
		t.Fatalf("Failed to create test branch issue: %v", err)
	}

	return issue
}

// WithSeverity 设置问题级别
func WithSeverity(severity string) func(*model.BranchIssue) {
	return func(i *model.BranchIssue) {
		i.Severity = severity
	}
}

// WithResolved 标记为已解决
func WithResolved() func(*model.BranchIssue) {
	return func(i *model.BranchIssue) {
		now := time.Now()
		i.Resolved = true
		i.ResolvedAt = &now
	}
}

// TestGate 创建测试质量门
func TestGate(t *testing.T, db *gorm.DB, workspaceID int64, conditions []model.QualityGateCondition, opts ...func(*model.QualityGate)) *model.QualityGate {
	t.Helper()

	gate := &model.QualityGate{
		WorkspaceID: workspaceID,
		Name:        fmt.Sprintf("Test Gate %d", time.Now().UnixNano()%10000),
		Active:      true,
		IsDefault:   true,
		Conditions:  conditions,
	}

	for _, opt := range opts {
		opt(gate)
	}

	if err := db.Create(gate).Error; err != nil {
		t.Fatalf("Failed to create test gate: %v", err)
	}

	return gate
}

// WithProjectBinding 绑定到具体项目
func WithProjectBinding(projectID int64) func(*model.QualityGate) {
	return func(g *model.QualityGate) {
		g.ProjectID = &projectID
		g.IsDefault = false
	}
}
