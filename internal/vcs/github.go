package vcs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/codecrow/codecrow-server/config"
)

const githubDiffMediaType = "application/vnd.github.v3.diff"

// GithubClient GitHub REST API v3
type GithubClient struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewGithubClient(cfg config.ProviderConfig) *GithubClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.github.com"
	}
	return &GithubClient{
		baseURL: baseURL,
		token:   cfg.AccessToken,
		client:  newHTTPClient(),
	}
}

// GetPullRequestDiff diff 媒体类型直接拿原始 diff 文本
func (g *GithubClient) GetPullRequestDiff(ctx context.Context, repoID string, prNumber int) (string, error) {
	url := fmt.Sprintf("%s/repos/%s/pulls/%d", g.baseURL, repoID, prNumber)
	return g.getRaw(ctx, url, githubDiffMediaType)
}

func (g *GithubClient) GetCommitDiff(ctx context.Context, repoID, commitHash string) (string, error) {
	url := fmt.Sprintf("%s/repos/%s/commits/%s", g.baseURL, repoID, commitHash)
	return g.getRaw(ctx, url, githubDiffMediaType)
}

func (g *GithubClient) GetCommitRangeDiff(ctx context.Context, repoID, fromHash, toHash string) (string, error) {
	url := fmt.Sprintf("%s/repos/%s/compare/%s...%s", g.baseURL, repoID, fromHash, toHash)
	return g.getRaw(ctx, url, githubDiffMediaType)
}

// githubPR pulls 接口的公共字段
type githubPR struct {
	Number int    `json:"number"`
	Title  string `json:"title"`
	State  string `json:"state"`
	Merged bool   `json:"merged"`
	Head   struct {
		Ref string `json:"ref"`
		Sha string `json:"sha"`
	} `json:"head"`
	Base struct {
		Ref string `json:"ref"`
	} `json:"base"`
	MergedAt *string `json:"merged_at"`
}

func (pr *githubPR) toPullRequest() *PullRequest {
	return &PullRequest{
		Number:       pr.Number,
		Title:        pr.Title,
		SourceBranch: pr.Head.Ref,
		TargetBranch: pr.Base.Ref,
		CommitHash:   pr.Head.Sha,
		State:        pr.State,
		Merged:       pr.Merged || pr.MergedAt != nil,
	}
}

func (g *GithubClient) GetPullRequest(ctx context.Context, repoID string, prNumber int) (*PullRequest, error) {
	url := fmt.Sprintf("%s/repos/%s/pulls/%d", g.baseURL, repoID, prNumber)

	body, err := g.getRaw(ctx, url, "application/vnd.github+json")
	if err != nil {
		return nil, err
	}

	var pr githubPR
	if err := json.Unmarshal([]byte(body), &pr); err != nil {
		return nil, fmt.Errorf("failed to decode pull request: %w", err)
	}
	return pr.toPullRequest(), nil
}

func (g *GithubClient) FindPullRequestForCommit(ctx context.Context, repoID, commitHash string) (*PullRequest, error) {
	url := fmt.Sprintf("%s/repos/%s/commits/%s/pulls", g.baseURL, repoID, commitHash)

	body, err := g.getRaw(ctx, url, "application/vnd.github+json")
	if err != nil {
		return nil, err
	}

	var prs []githubPR
	if err := json.Unmarshal([]byte(body), &prs); err != nil {
		return nil, fmt.Errorf("failed to decode pull request list: %w", err)
	}
	if len(prs) == 0 {
		return nil, nil
	}
	return prs[0].toPullRequest(), nil
}

func (g *GithubClient) PostComment(ctx context.Context, repoID string, prNumber int, body string) error {
	url := fmt.Sprintf("%s/repos/%s/issues/%d/comments", g.baseURL, repoID, prNumber)

	payload, err := json.Marshal(map[string]string{"body": body})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+g.token)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to post comment: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("github api error (%d): %s", resp.StatusCode, string(respBody))
	}
	return nil
}

func (g *GithubClient) getRaw(ctx context.Context, url, accept string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+g.token)
	req.Header.Set("Accept", accept)

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to call github api: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("github api error (%d): %s", resp.StatusCode, string(body))
	}
	return string(body), nil
}
