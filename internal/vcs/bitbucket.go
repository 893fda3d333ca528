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

// BitbucketClient Bitbucket Cloud REST API 2.0
type BitbucketClient struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewBitbucketClient(cfg config.ProviderConfig) *BitbucketClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.bitbucket.org/2.0"
	}
	return &BitbucketClient{
		baseURL: baseURL,
		token:   cfg.AccessToken,
		client:  newHTTPClient(),
	}
}

// GetPullRequestDiff diff 端点直接返回原始 diff 文本
func (b *BitbucketClient) GetPullRequestDiff(ctx context.Context, repoID string, prNumber int) (string, error) {
	url := fmt.Sprintf("%s/repositories/%s/pullrequests/%d/diff", b.baseURL, repoID, prNumber)
	return b.getRaw(ctx, url)
}

func (b *BitbucketClient) GetCommitDiff(ctx context.Context, repoID, commitHash string) (string, error) {
	url := fmt.Sprintf("%s/repositories/%s/diff/%s", b.baseURL, repoID, commitHash)
	return b.getRaw(ctx, url)
}

func (b *BitbucketClient) GetCommitRangeDiff(ctx context.Context, repoID, fromHash, toHash string) (string, error) {
	// diffspec 为 to..from：比较 from 到 to 的累计变更
	url := fmt.Sprintf("%s/repositories/%s/diff/%s..%s", b.baseURL, repoID, toHash, fromHash)
	return b.getRaw(ctx, url)
}

// bitbucketPR pullrequests 接口的公共字段
type bitbucketPR struct {
	ID     int    `json:"id"`
	Title  string `json:"title"`
	State  string `json:"state"`
	Source struct {
		Branch struct {
			Name string `json:"name"`
		} `json:"branch"`
		Commit struct {
			Hash string `json:"hash"`
		} `json:"commit"`
	} `json:"source"`
	Destination struct {
		Branch struct {
			Name string `json:"name"`
		} `json:"branch"`
	} `json:"destination"`
}

func (pr *bitbucketPR) toPullRequest() *PullRequest {
	return &PullRequest{
		Number:       pr.ID,
		Title:        pr.Title,
		SourceBranch: pr.Source.Branch.Name,
		TargetBranch: pr.Destination.Branch.Name,
		CommitHash:   pr.Source.Commit.Hash,
		State:        pr.State,
		Merged:       pr.State == "MERGED",
	}
}

func (b *BitbucketClient) GetPullRequest(ctx context.Context, repoID string, prNumber int) (*PullRequest, error) {
	url := fmt.Sprintf("%s/repositories/%s/pullrequests/%d", b.baseURL, repoID, prNumber)

	body, err := b.getRaw(ctx, url)
	if err != nil {
		return nil, err
	}

	var pr bitbucketPR
	if err := json.Unmarshal([]byte(body), &pr); err != nil {
		return nil, fmt.Errorf("failed to decode pull request: %w", err)
	}
	return pr.toPullRequest(), nil
}

func (b *BitbucketClient) FindPullRequestForCommit(ctx context.Context, repoID, commitHash string) (*PullRequest, error) {
	url := fmt.Sprintf("%s/repositories/%s/commit/%s/pullrequests", b.baseURL, repoID, commitHash)

	body, err := b.getRaw(ctx, url)
	if err != nil {
		return nil, err
	}

	var result struct {
		Values []bitbucketPR `json:"values"`
	}
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		return nil, fmt.Errorf("failed to decode pull request list: %w", err)
	}
	if len(result.Values) == 0 {
		return nil, nil
	}
	return result.Values[0].toPullRequest(), nil
}

func (b *BitbucketClient) PostComment(ctx context.Context, repoID string, prNumber int, body string) error {
	url := fmt.Sprintf("%s/repositories/%s/pullrequests/%d/comments", b.baseURL, repoID, prNumber)

	payload, err := json.Marshal(map[string]interface{}{
		"content": map[string]string{"raw": body},
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+b.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to post comment: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("bitbucket api error (%d): %s", resp.StatusCode, string(respBody))
	}
	return nil
}

func (b *BitbucketClient) getRaw(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+b.token)

	resp, err := b.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to call bitbucket api: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("bitbucket api error (%d): %s", resp.StatusCode, string(body))
	}
	return string(body), nil
}
