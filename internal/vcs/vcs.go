// Package vcs 各代码托管平台的统一访问端口。
//
// 平台差异（路径、认证头、diff 的拿法）收在各自的 client 里，
// 上层只看 Client 接口和统一的 unified diff 文本。
package vcs

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/codecrow/codecrow-server/config"
	"github.com/codecrow/codecrow-server/internal/model"
)

var (
	// ErrProviderNotConfigured 项目指向的平台没有可用的 client
	ErrProviderNotConfigured = errors.New("vcs provider not configured")
)

// PullRequest 平台无关的 PR 摘要
type PullRequest struct {
	Number       int    `json:"number"`
	Title        string `json:"title"`
	SourceBranch string `json:"source_branch"`
	TargetBranch string `json:"target_branch"`
	CommitHash   string `json:"commit_hash"` // 源分支最新提交
	State        string `json:"state"`
	Merged       bool   `json:"merged"`
}

// Client 单个平台的访问端口
//
// 所有 diff 方法返回 unified diff 文本；repoID 为平台侧仓库标识
// （github/bitbucket 是 owner/repo，gitlab 是数字项目 ID）
type Client interface {
	// GetPullRequestDiff 取 PR 当前的完整 diff
	GetPullRequestDiff(ctx context.Context, repoID string, prNumber int) (string, error)
	// GetCommitDiff 取单个提交的 diff
	GetCommitDiff(ctx context.Context, repoID, commitHash string) (string, error)
	// GetCommitRangeDiff 取 from..to 区间的累计 diff
	GetCommitRangeDiff(ctx context.Context, repoID, fromHash, toHash string) (string, error)
	// GetPullRequest 按编号取 PR 摘要
	GetPullRequest(ctx context.Context, repoID string, prNumber int) (*PullRequest, error)
	// FindPullRequestForCommit 查提交关联的 PR，找不到时返回 (nil, nil)
	FindPullRequestForCommit(ctx context.Context, repoID, commitHash string) (*PullRequest, error)
	// PostComment 在 PR 下发表评论
	PostComment(ctx context.Context, repoID string, prNumber int, body string) error
}

// Registry 按 provider 取 client
type Registry struct {
	clients map[string]Client
}

// NewRegistry 根据配置构建各平台 client；access_token 为空的平台不注册
func NewRegistry(cfg config.ProvidersConfig) *Registry {
	r := &Registry{clients: make(map[string]Client)}
	if cfg.Bitbucket.AccessToken != "" {
		r.clients[model.ProviderBitbucket] = NewBitbucketClient(cfg.Bitbucket)
	}
	if cfg.Github.AccessToken != "" {
		r.clients[model.ProviderGithub] = NewGithubClient(cfg.Github)
	}
	if cfg.Gitlab.AccessToken != "" {
		r.clients[model.ProviderGitlab] = NewGitlabClient(cfg.Gitlab)
	}
	return r
}

// Register 覆盖指定平台的 client，测试用
func (r *Registry) Register(provider string, client Client) {
	r.clients[provider] = client
}

// ForProvider 取平台 client；未配置的平台必须报错而不是静默跳过
func (r *Registry) ForProvider(provider string) (Client, error) {
	client, ok := r.clients[provider]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotConfigured, provider)
	}
	return client, nil
}

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: 30 * time.Second}
}
