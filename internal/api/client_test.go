package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Zacy-Sokach/RoboDash/internal/utils"
)

func testRetryConfig() *utils.RetryConfig {
	cfg := utils.DefaultRetryConfig()
	cfg.InitialDelay = 5 * time.Millisecond
	cfg.MaxDelay = 20 * time.Millisecond
	return cfg
}

func newTestClient(url string) *Client {
	return NewClient(url, "secret", WithHTTPClient(&http.Client{Timeout: 5 * time.Second}), WithRetryConfig(testRetryConfig()))
}

func sseHandler(t *testing.T, lines ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("Authorization = %q", got)
		}
		var req ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if !req.Stream {
			t.Error("request should be streaming")
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, l := range lines {
			fmt.Fprintf(w, "%s\n\n", l)
			if f, ok := w.(http.Flusher); ok {
				f.Flush()
			}
		}
	}
}

func TestStreamChat(t *testing.T) {
	server := httptest.NewServer(sseHandler(t,
		`data: {"id":"1","choices":[{"index":0,"delta":{"role":"assistant"}}]}`,
		`data: {"id":"1","choices":[{"index":0,"delta":{"content":"Hello"}}]}`,
		`data: not-json`,
		`: keep-alive comment`,
		`data: {"id":"1","choices":[{"index":0,"delta":{"content":", world"}}]}`,
		`data: {"id":"1","choices":[{"index":0,"delta":{},"finish_reason":"stop"}],"usage":{"prompt_tokens":3,"completion_tokens":4,"total_tokens":7}}`,
		`data: [DONE]`,
		`data: {"id":"1","choices":[{"index":0,"delta":{"content":"ignored"}}]}`,
	))
	defer server.Close()

	var content strings.Builder
	var finish string
	var usage *Usage
	err := newTestClient(server.URL).StreamChat(context.Background(), NewChatRequest("anthropic.claude-3-haiku", "hi"), func(ev StreamEvent) {
		content.WriteString(ev.Content)
		if ev.FinishReason != "" {
			finish = ev.FinishReason
		}
		if ev.Usage != nil {
			usage = ev.Usage
		}
	})
	if err != nil {
		t.Fatalf("StreamChat failed: %v", err)
	}
	if content.String() != "Hello, world" {
		t.Errorf("content = %q", content.String())
	}
	if finish != "stop" {
		t.Errorf("finish reason = %q", finish)
	}
	if usage == nil || usage.CompletionTokens != 4 {
		t.Errorf("usage = %+v", usage)
	}
}

func TestStreamChatAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"model not found"}`))
	}))
	defer server.Close()

	err := newTestClient(server.URL).StreamChat(context.Background(), NewChatRequest("nope", "hi"), func(StreamEvent) {})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusBadRequest || !strings.Contains(apiErr.Message, "model not found") {
		t.Errorf("unexpected APIError %+v", apiErr)
	}
}

func TestStreamChatRetriesThrottling(t *testing.T) {
	var calls int32
	ok := sseHandler(t, `data: {"choices":[{"delta":{"content":"ok"}}]}`, `data: [DONE]`)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		ok(w, r)
	}))
	defer server.Close()

	var got string
	err := newTestClient(server.URL).StreamChat(context.Background(), NewChatRequest("m", "hi"), func(ev StreamEvent) { got += ev.Content })
	if err != nil {
		t.Fatalf("StreamChat failed: %v", err)
	}
	if got != "ok" || atomic.LoadInt32(&calls) != 2 {
		t.Errorf("got %q after %d calls", got, calls)
	}
}

func TestStreamChatWithChannel(t *testing.T) {
	server := httptest.NewServer(sseHandler(t,
		`data: {"choices":[{"delta":{"content":"a"}}]}`,
		`data: {"choices":[{"delta":{"content":"b"}}]}`,
		`data: [DONE]`,
	))
	defer server.Close()

	events, errs := newTestClient(server.URL).StreamChatWithChannel(context.Background(), NewChatRequest("m", "hi"))
	var got string
	for ev := range events {
		got += ev.Content
	}
	if err := <-errs; err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "ab" {
		t.Errorf("got %q, want ab", got)
	}
}

func TestStreamChatCancelled(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"first\"}}]}\n\n")
		w.(http.Flusher).Flush()
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	err := newTestClient(server.URL).StreamChat(ctx, NewChatRequest("m", "hi"), func(ev StreamEvent) {
		if ev.Content == "first" {
			cancel()
		}
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestListModels(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models" || r.Method != http.MethodGet {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		json.NewEncoder(w).Encode(ModelList{Object: "list", Data: []Model{
			{ID: "anthropic.claude-3-haiku-20240307-v1:0", OwnedBy: "bedrock"},
			{ID: "amazon.titan-text-express-v1", OwnedBy: "bedrock"},
		}})
	}))
	defer server.Close()

	models, err := newTestClient(server.URL + "/").ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels failed: %v", err)
	}
	if len(models) != 2 || models[1].ID != "amazon.titan-text-express-v1" {
		t.Errorf("unexpected models %+v", models)
	}
}
