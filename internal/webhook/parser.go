package webhook

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/codecrow/codecrow-server/internal/model"
)

// Parse 把平台 payload 归一化成 Event
//
// eventName 取自各平台的事件头（X-GitHub-Event / X-Gitlab-Event /
// X-Event-Key）。不关心的事件类型返回 (nil, nil)，表示确认但忽略。
func Parse(provider, eventName string, body []byte) (*Event, error) {
	switch provider {
	case model.ProviderGithub:
		return parseGithub(eventName, body)
	case model.ProviderGitlab:
		return parseGitlab(eventName, body)
	case model.ProviderBitbucket:
		return parseBitbucket(eventName, body)
	}
	return nil, fmt.Errorf("unsupported provider: %s", provider)
}

func parseGithub(eventName string, body []byte) (*Event, error) {
	switch eventName {
	case "pull_request":
		var p struct {
			Action      string `json:"action"`
			Number      int    `json:"number"`
			PullRequest struct {
				Merged bool `json:"merged"`
				Head   struct {
					Ref string `json:"ref"`
					SHA string `json:"sha"`
				} `json:"head"`
				Base struct {
					Ref string `json:"ref"`
				} `json:"base"`
			} `json:"pull_request"`
			Repository struct {
				FullName string `json:"full_name"`
			} `json:"repository"`
		}
		if err := json.Unmarshal(body, &p); err != nil {
			return nil, fmt.Errorf("failed to parse github pull_request payload: %w", err)
		}

		ev := &Event{
			Provider:       model.ProviderGithub,
			ExternalRepoID: p.Repository.FullName,
			PRNumber:       &p.Number,
			SourceBranch:   p.PullRequest.Head.Ref,
			TargetBranch:   p.PullRequest.Base.Ref,
			CommitHash:     p.PullRequest.Head.SHA,
			Merged:         p.PullRequest.Merged,
		}
		switch p.Action {
		case "opened", "reopened":
			ev.Kind = KindPROpened
		case "synchronize":
			ev.Kind = KindPRUpdated
		case "closed":
			ev.Kind = KindPRClosed
		default:
			return nil, nil
		}
		return ev, nil

	case "push":
		var p struct {
			Ref        string `json:"ref"`
			After      string `json:"after"`
			Repository struct {
				FullName string `json:"full_name"`
			} `json:"repository"`
		}
		if err := json.Unmarshal(body, &p); err != nil {
			return nil, fmt.Errorf("failed to parse github push payload: %w", err)
		}
		return &Event{
			Provider:       model.ProviderGithub,
			ExternalRepoID: p.Repository.FullName,
			Kind:           KindPush,
			Branch:         strings.TrimPrefix(p.Ref, "refs/heads/"),
			CommitHash:     p.After,
		}, nil

	case "issue_comment":
		var p struct {
			Action string `json:"action"`
			Issue  struct {
				Number      int              `json:"number"`
				PullRequest *json.RawMessage `json:"pull_request"`
			} `json:"issue"`
			Comment struct {
				Body string `json:"body"`
			} `json:"comment"`
			Repository struct {
				FullName string `json:"full_name"`
			} `json:"repository"`
		}
		if err := json.Unmarshal(body, &p); err != nil {
			return nil, fmt.Errorf("failed to parse github issue_comment payload: %w", err)
		}
		// 只关心 PR 上新建的评论
		if p.Action != "created" || p.Issue.PullRequest == nil {
			return nil, nil
		}
		return &Event{
			Provider:       model.ProviderGithub,
			ExternalRepoID: p.Repository.FullName,
			Kind:           KindComment,
			PRNumber:       &p.Issue.Number,
			CommentBody:    p.Comment.Body,
		}, nil
	}
	return nil, nil
}

func parseGitlab(eventName string, body []byte) (*Event, error) {
	switch eventName {
	case "Merge Request Hook":
		var p struct {
			Project struct {
				ID int64 `json:"id"`
			} `json:"project"`
			ObjectAttributes struct {
				Action       string `json:"action"`
				IID          int    `json:"iid"`
				SourceBranch string `json:"source_branch"`
				TargetBranch string `json:"target_branch"`
				LastCommit   struct {
					ID string `json:"id"`
				} `json:"last_commit"`
			} `json:"object_attributes"`
		}
		if err := json.Unmarshal(body, &p); err != nil {
			return nil, fmt.Errorf("failed to parse gitlab merge request payload: %w", err)
		}

		attrs := p.ObjectAttributes
		ev := &Event{
			Provider:       model.ProviderGitlab,
			ExternalRepoID: strconv.FormatInt(p.Project.ID, 10),
			PRNumber:       &attrs.IID,
			SourceBranch:   attrs.SourceBranch,
			TargetBranch:   attrs.TargetBranch,
			CommitHash:     attrs.LastCommit.ID,
		}
		switch attrs.Action {
		case "open", "reopen":
			ev.Kind = KindPROpened
		case "update":
			ev.Kind = KindPRUpdated
		case "merge":
			ev.Kind = KindPRClosed
			ev.Merged = true
		case "close":
			ev.Kind = KindPRClosed
		default:
			return nil, nil
		}
		return ev, nil

	case "Push Hook":
		var p struct {
			Ref       string `json:"ref"`
			After     string `json:"after"`
			ProjectID int64  `json:"project_id"`
		}
		if err := json.Unmarshal(body, &p); err != nil {
			return nil, fmt.Errorf("failed to parse gitlab push payload: %w", err)
		}
		return &Event{
			Provider:       model.ProviderGitlab,
			ExternalRepoID: strconv.FormatInt(p.ProjectID, 10),
			Kind:           KindPush,
			Branch:         strings.TrimPrefix(p.Ref, "refs/heads/"),
			CommitHash:     p.After,
		}, nil

	case "Note Hook":
		var p struct {
			Project struct {
				ID int64 `json:"id"`
			} `json:"project"`
			ObjectAttributes struct {
				Note         string `json:"note"`
				NoteableType string `json:"noteable_type"`
			} `json:"object_attributes"`
			MergeRequest struct {
				IID int `json:"iid"`
			} `json:"merge_request"`
		}
		if err := json.Unmarshal(body, &p); err != nil {
			return nil, fmt.Errorf("failed to parse gitlab note payload: %w", err)
		}
		if p.ObjectAttributes.NoteableType != "MergeRequest" {
			return nil, nil
		}
		return &Event{
			Provider:       model.ProviderGitlab,
			ExternalRepoID: strconv.FormatInt(p.Project.ID, 10),
			Kind:           KindComment,
			PRNumber:       &p.MergeRequest.IID,
			CommentBody:    p.ObjectAttributes.Note,
		}, nil
	}
	return nil, nil
}

func parseBitbucket(eventName string, body []byte) (*Event, error) {
	type bbRepo struct {
		FullName string `json:"full_name"`
	}
	type bbPR struct {
		ID     int    `json:"id"`
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

	switch eventName {
	case "pullrequest:created", "pullrequest:updated", "pullrequest:fulfilled", "pullrequest:rejected":
		var p struct {
			Repository  bbRepo `json:"repository"`
			PullRequest bbPR   `json:"pullrequest"`
		}
		if err := json.Unmarshal(body, &p); err != nil {
			return nil, fmt.Errorf("failed to parse bitbucket pullrequest payload: %w", err)
		}

		pr := p.PullRequest
		ev := &Event{
			Provider:       model.ProviderBitbucket,
			ExternalRepoID: p.Repository.FullName,
			PRNumber:       &pr.ID,
			SourceBranch:   pr.Source.Branch.Name,
			TargetBranch:   pr.Destination.Branch.Name,
			CommitHash:     pr.Source.Commit.Hash,
		}
		switch eventName {
		case "pullrequest:created":
			ev.Kind = KindPROpened
		case "pullrequest:updated":
			ev.Kind = KindPRUpdated
		case "pullrequest:fulfilled":
			ev.Kind = KindPRClosed
			ev.Merged = true
		case "pullrequest:rejected":
			ev.Kind = KindPRClosed
		}
		return ev, nil

	case "repo:push":
		var p struct {
			Repository bbRepo `json:"repository"`
			Push       struct {
				Changes []struct {
					New struct {
						Name   string `json:"name"`
						Type   string `json:"type"`
						Target struct {
							Hash string `json:"hash"`
						} `json:"target"`
					} `json:"new"`
				} `json:"changes"`
			} `json:"push"`
		}
		if err := json.Unmarshal(body, &p); err != nil {
			return nil, fmt.Errorf("failed to parse bitbucket push payload: %w", err)
		}
		if len(p.Push.Changes) == 0 || p.Push.Changes[0].New.Type != "branch" {
			return nil, nil
		}
		change := p.Push.Changes[0].New
		return &Event{
			Provider:       model.ProviderBitbucket,
			ExternalRepoID: p.Repository.FullName,
			Kind:           KindPush,
			Branch:         change.Name,
			CommitHash:     change.Target.Hash,
		}, nil

	case "pullrequest:comment_created":
		var p struct {
			Repository  bbRepo `json:"repository"`
			PullRequest bbPR   `json:"pullrequest"`
			Comment     struct {
				Content struct {
					Raw string `json:"raw"`
				} `json:"content"`
			} `json:"comment"`
		}
		if err := json.Unmarshal(body, &p); err != nil {
			return nil, fmt.Errorf("failed to parse bitbucket comment payload: %w", err)
		}
		return &Event{
			Provider:       model.ProviderBitbucket,
			ExternalRepoID: p.Repository.FullName,
			Kind:           KindComment,
			PRNumber:       &p.PullRequest.ID,
			CommentBody:    p.Comment.Content.Raw,
		}, nil
	}
	return nil, nil
}
