package model

import (
	"time"
)

// VCS 平台标识
const (
	ProviderBitbucket = "bitbucket"
	ProviderGithub    = "github"
	ProviderGitlab    = "gitlab"
)

// Project 接入的仓库项目
// CRUD 由 web 层负责，这里只承担 webhook 归属解析和 token 校验
type Project struct {
	ID               int64     `gorm:"primaryKey" json:"id"`
	WorkspaceID      int64     `gorm:"not null;index" json:"workspace_id"`
	Name             string    `gorm:"size:200;not null" json:"name"`
	Provider         string    `gorm:"size:20;not null;index:idx_provider_repo" json:"provider"`
	ExternalRepoID   string    `gorm:"size:200;not null;index:idx_provider_repo" json:"external_repo_id"`
	WebhookTokenHash string    `gorm:"size:100;not null" json:"-"` // bcrypt 哈希，不下发
	DefaultBranch    string    `gorm:"size:200;default:main" json:"default_branch"`
	ModelName        string    `gorm:"size:50" json:"model_name,omitempty"`
	Active           bool      `gorm:"default:true;index" json:"active"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func (Project) TableName() string {
	return "projects"
}
