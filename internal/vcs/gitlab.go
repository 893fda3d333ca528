package vcs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/codecrow/codecrow-server/config"
)

// GitlabClient GitLab REST API v4
//
// GitLab 的 diff 接口返回结构化 JSON 而不是原始 diff 文本，
// 这里拼回 unified diff 供指纹计算和 AI 分析统一处理
type GitlabClient struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewGitlabClient(cfg config.ProviderConfig) *GitlabClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://gitlab.com/api/v4"
	}
	return &GitlabClient{
		baseURL: baseURL,
		token:   cfg.AccessToken,
		client:  newHTTPClient(),
	}
}

// gitlabDiff 单个文件的变更
type gitlabDiff struct {
	OldPath     string `json:"old_path"`
	NewPath     string `json:"new_path"`
	Diff        string `json:"diff"`
	NewFile     bool   `json:"new_file"`
	DeletedFile bool   `json:"deleted_file"`
}

func (g *GitlabClient) GetPullRequestDiff(ctx context.Context, repoID string, prNumber int) (string, error) {
	endpoint := fmt.Sprintf("%s/projects/%s/merge_requests/%d/changes",
		g.baseURL, url.PathEscape(repoID), prNumber)

	body, err := g.get(ctx, endpoint)
	if err != nil {
		return "", err
	}

	var result struct {
		Changes []gitlabDiff `json:"changes"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("failed to decode merge request changes: %w", err)
	}
	return assembleDiff(result.Changes), nil
}

func (g *GitlabClient) GetCommitDiff(ctx context.Context, repoID, commitHash string) (string, error) {
	endpoint := fmt.Sprintf("%s/projects/%s/repository/commits/%s/diff",
		g.baseURL, url.PathEscape(repoID), commitHash)

	body, err := g.get(ctx, endpoint)
	if err != nil {
		return "", err
	}

	var diffs []gitlabDiff
	if err := json.Unmarshal(body, &diffs); err != nil {
		return "", fmt.Errorf("failed to decode commit diff: %w", err)
	}
	return assembleDiff(diffs), nil
}

func (g *GitlabClient) GetCommitRangeDiff(ctx context.Context, repoID, fromHash, toHash string) (string, error) {
	endpoint := fmt.Sprintf("%s/projects/%s/repository/compare?from=%s&to=%s",
		g.baseURL, url.PathEscape(repoID), url.QueryEscape(fromHash), url.QueryEscape(toHash))

	body, err := g.get(ctx, endpoint)
	if err != nil {
		return "", err
	}

	var result struct {
		Diffs []gitlabDiff `json:"diffs"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("failed to decode compare result: %w", err)
	}
	return assembleDiff(result.Diffs), nil
}

// gitlabMR merge request 接口的公共字段
type gitlabMR struct {
	IID          int    `json:"iid"`
	Title        string `json:"title"`
	State        string `json:"state"`
	Sha          string `json:"sha"`
	SourceBranch string `json:"source_branch"`
	TargetBranch string `json:"target_branch"`
}

func (mr *gitlabMR) toPullRequest() *PullRequest {
	return &PullRequest{
		Number:       mr.IID,
		Title:        mr.Title,
		SourceBranch: mr.SourceBranch,
		TargetBranch: mr.TargetBranch,
		CommitHash:   mr.Sha,
		State:        mr.State,
		Merged:       mr.State == "merged",
	}
}

func (g *GitlabClient) GetPullRequest(ctx context.Context, repoID string, prNumber int) (*PullRequest, error) {
	endpoint := fmt.Sprintf("%s/projects/%s/merge_requests/%d",
		g.baseURL, url.PathEscape(repoID), prNumber)

	body, err := g.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	var mr gitlabMR
	if err := json.Unmarshal(body, &mr); err != nil {
		return nil, fmt.Errorf("failed to decode merge request: %w", err)
	}
	return mr.toPullRequest(), nil
}

func (g *GitlabClient) FindPullRequestForCommit(ctx context.Context, repoID, commitHash string) (*PullRequest, error) {
	endpoint := fmt.Sprintf("%s/projects/%s/repository/commits/%s/merge_requests",
		g.baseURL, url.PathEscape(repoID), commitHash)

	body, err := g.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	var mrs []gitlabMR
	if err := json.Unmarshal(body, &mrs); err != nil {
		return nil, fmt.Errorf("failed to decode merge request list: %w", err)
	}
	if len(mrs) == 0 {
		return nil, nil
	}
	return mrs[0].toPullRequest(), nil
}

func (g *GitlabClient) PostComment(ctx context.Context, repoID string, prNumber int, body string) error {
	endpoint := fmt.Sprintf("%s/projects/%s/merge_requests/%d/notes",
		g.baseURL, url.PathEscape(repoID), prNumber)

	payload, err := json.Marshal(map[string]string{"body": body})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("PRIVATE-TOKEN", g.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to post note: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("gitlab api error (%d): %s", resp.StatusCode, string(respBody))
	}
	return nil
}

func (g *GitlabClient) get(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("PRIVATE-TOKEN", g.token)

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call gitlab api: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("gitlab api error (%d): %s", resp.StatusCode, string(body))
	}
	return body, nil
}

// assembleDiff 把结构化变更拼回 unified diff 文本
func assembleDiff(diffs []gitlabDiff) string {
	var sb strings.Builder
	for _, d := range diffs {
		sb.WriteString(fmt.Sprintf("diff --git a/%s b/%s\n", d.OldPath, d.NewPath))
		if d.NewFile {
			sb.WriteString(fmt.Sprintf("--- /dev/null\n+++ b/%s\n", d.NewPath))
		} else if d.DeletedFile {
			sb.WriteString(fmt.Sprintf("--- a/%s\n+++ /dev/null\n", d.OldPath))
		} else {
			sb.WriteString(fmt.Sprintf("--- a/%s\n+++ b/%s\n", d.OldPath, d.NewPath))
		}
		sb.WriteString(d.Diff)
		if !strings.HasSuffix(d.Diff, "\n") {
			sb.WriteString("\n")
		}
	}
	return sb.String()
}
