package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/codecrow/codecrow-server/config"
)

// Client 分析引擎的 HTTP client
type Client struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

func NewClient(cfg config.AnalysisConfig) *Client {
	timeout := cfg.AITimeout
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &Client{
		endpoint: cfg.AIEndpoint,
		apiKey:   cfg.AIAPIKey,
		client:   &http.Client{Timeout: timeout},
	}
}

// Analyze 提交审查请求并消费引擎的事件流
//
// 引擎按 JSON 流逐帧推送：{"type":"progress",...} 帧原样转发给回调，
// {"type":"result","result":{...}} 帧收尾。无 type 字段的帧按整个
// Result 处理，兼容不分帧的旧引擎。
func (c *Client) Analyze(ctx context.Context, req *Request, progress ProgressFunc) (*Result, error) {
	resp, err := c.do(ctx, "/v1/analyze", req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var result *Result
	dec := json.NewDecoder(resp.Body)
	for {
		var raw json.RawMessage
		if err := dec.Decode(&raw); err == io.EOF {
			break
		} else if err != nil {
			return nil, fmt.Errorf("%w: failed to decode stream: %v", ErrUpstream, err)
		}

		var frame struct {
			Type   string          `json:"type"`
			Result json.RawMessage `json:"result"`
		}
		if err := json.Unmarshal(raw, &frame); err != nil {
			return nil, fmt.Errorf("%w: failed to decode frame: %v", ErrUpstream, err)
		}

		switch frame.Type {
		case "progress":
			if progress != nil {
				var ev ProgressEvent
				if err := json.Unmarshal(raw, &ev); err == nil {
					progress(ev)
				}
			}
		case "result":
			result = &Result{}
			if err := json.Unmarshal(frame.Result, result); err != nil {
				return nil, fmt.Errorf("%w: failed to decode result: %v", ErrUpstream, err)
			}
		case "":
			result = &Result{}
			if err := json.Unmarshal(raw, result); err != nil {
				return nil, fmt.Errorf("%w: failed to decode response: %v", ErrUpstream, err)
			}
		default:
			// 未知帧类型跳过，引擎新增帧不破坏旧 server
		}
	}

	if result == nil {
		return nil, fmt.Errorf("%w: stream ended without a result", ErrUpstream)
	}
	return result, nil
}

func (c *Client) CheckResolved(ctx context.Context, req *ResolveCheckRequest) ([]ResolveHint, error) {
	var result struct {
		Hints []ResolveHint `json:"hints"`
	}
	if err := c.post(ctx, "/v1/reconcile", req, &result); err != nil {
		return nil, err
	}
	return result.Hints, nil
}

func (c *Client) Answer(ctx context.Context, q *Question) (string, error) {
	var result struct {
		Answer string `json:"answer"`
	}
	if err := c.post(ctx, "/v1/answer", q, &result); err != nil {
		return "", err
	}
	return result.Answer, nil
}

func (c *Client) post(ctx context.Context, path string, payload, out interface{}) error {
	resp, err := c.do(ctx, path, payload)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: failed to decode response: %v", ErrUpstream, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, path string, payload interface{}) (*http.Response, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("%w: status %d: %s", ErrUpstream, resp.StatusCode, string(body))
	}
	return resp, nil
}
