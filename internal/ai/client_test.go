package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codecrow/codecrow-server/config"
)

func newTestClient(url string) *Client {
	return NewClient(config.AnalysisConfig{
		AIEndpoint: url,
		AIAPIKey:   "test-key",
		AITimeout:  5 * time.Second,
	})
}

func TestClient_Analyze(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/analyze", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req Request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "feature/x", req.Branch)

		// 引擎按 JSON 流推送：progress 帧 + result 收尾帧
		fmt.Fprintln(w, `{"type":"progress","percent":30,"step":"embedding","model":"cc-review-large"}`)
		fmt.Fprintln(w, `{"type":"progress","percent":70,"step":"review"}`)
		fmt.Fprintln(w, `{"type":"result","result":{"summary":"1 issue found","issues":[{"file_path":"main.go","line":10,"severity":"HIGH","title":"nil deref"}]}}`)
	}))
	defer server.Close()

	var events []ProgressEvent
	result, err := newTestClient(server.URL).Analyze(context.Background(), &Request{
		ProjectID:  1,
		Branch:     "feature/x",
		CommitHash: "abc",
		Diff:       "+x := y\n",
	}, func(ev ProgressEvent) {
		events = append(events, ev)
	})

	require.NoError(t, err)
	require.Len(t, result.Issues, 1)
	assert.Equal(t, "nil deref", result.Issues[0].Title)

	// 进度事件原样转发，引擎私有键不丢
	require.Len(t, events, 2)
	assert.Equal(t, 30, events[0].Percent())
	assert.Equal(t, "embedding", events[0].Step())
	assert.Equal(t, "cc-review-large", events[0]["model"])
	assert.Equal(t, 70, events[1].Percent())
}

func TestClient_Analyze_UnframedResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// 不分帧的引擎：整个响应就是一个 Result
		json.NewEncoder(w).Encode(Result{Summary: "clean"})
	}))
	defer server.Close()

	result, err := newTestClient(server.URL).Analyze(context.Background(), &Request{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "clean", result.Summary)
}

func TestClient_Analyze_StreamWithoutResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"type":"progress","percent":10,"step":"embedding"}`)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).Analyze(context.Background(), &Request{}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUpstream)
}

func TestClient_AnalyzeUpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("engine overloaded"))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).Analyze(context.Background(), &Request{}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUpstream)
	assert.Contains(t, err.Error(), "502")
	assert.Contains(t, err.Error(), "engine overloaded")
}

func TestClient_CheckResolved(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/reconcile", r.URL.Path)

		var req ResolveCheckRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Candidates, 2)

		json.NewEncoder(w).Encode(map[string]interface{}{
			"hints": []ResolveHint{{CandidateID: req.Candidates[0].ID, Note: "null check added"}},
		})
	}))
	defer server.Close()

	hints, err := newTestClient(server.URL).CheckResolved(context.Background(), &ResolveCheckRequest{
		Diff: "+if x != nil {\n",
		Candidates: []Candidate{
			{ID: 101, FilePath: "main.go", Title: "nil deref"},
			{ID: 102, FilePath: "util.go", Title: "unchecked error"},
		},
	})
	require.NoError(t, err)
	require.Len(t, hints, 1)
	assert.Equal(t, int64(101), hints[0].CandidateID)
}

func TestClient_Answer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/answer", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]string{"answer": "it parses the config"})
	}))
	defer server.Close()

	answer, err := newTestClient(server.URL).Answer(context.Background(), &Question{
		Text: "what does this function do?",
	})
	require.NoError(t, err)
	assert.Equal(t, "it parses the config", answer)
}
