package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/Zacy-Sokach/RoboDash/internal/utils"
)

const (
	defaultMaxTokens   = 1024
	defaultTemperature = 0.5
	maxErrorBodyBytes  = 4096
)

// APIError 表示 API 请求错误，包含状态码和错误信息
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API请求失败 (状态码: %d): %s", e.StatusCode, e.Message)
}

// 全局共享的HTTP客户端，实现连接池化
var (
	sharedHTTPClient *http.Client
	httpClientOnce   sync.Once
)

// getSharedHTTPClient 返回共享的HTTP客户端实例。
// 流式响应可能持续很久，所以不设置整体超时，只限制响应头等待时间。
func getSharedHTTPClient() *http.Client {
	httpClientOnce.Do(func() {
		sharedHTTPClient = &http.Client{
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				MaxIdleConns:          100,
				MaxIdleConnsPerHost:   20,
				IdleConnTimeout:       90 * time.Second,
				MaxConnsPerHost:       50,
				ResponseHeaderTimeout: 60 * time.Second,
				TLSHandshakeTimeout:   10 * time.Second,
			},
		}
	})
	return sharedHTTPClient
}

// ClientOption 客户端配置项
type ClientOption func(*Client)

// WithHTTPClient 替换底层 HTTP 客户端
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithRetryConfig 设置重试策略
func WithRetryConfig(cfg *utils.RetryConfig) ClientOption {
	return func(c *Client) {
		if cfg != nil {
			c.retryConfig = cfg
		}
	}
}

// Client OpenAI 兼容网关客户端（例如 Bedrock Access Gateway）
type Client struct {
	baseURL     string
	apiKey      string
	httpClient  *http.Client
	retryConfig *utils.RetryConfig
	retry       *utils.RetryableHTTPClient
}

// NewClient 创建新的 API 客户端
// baseURL: 网关地址，例如 http://localhost:8080/api/v1
// apiKey: 网关密钥，可为空
func NewClient(baseURL, apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		apiKey:      apiKey,
		httpClient:  getSharedHTTPClient(),
		retryConfig: utils.DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.retry = utils.NewRetryableHTTPClient(c.httpClient, c.retryConfig)
	return c
}

// ListModels 获取网关可用的模型列表
func (c *Client) ListModels(ctx context.Context) ([]Model, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return nil, fmt.Errorf("创建请求失败: %w", err)
	}
	c.setHeaders(httpReq)

	resp, err := c.retry.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("请求失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, readAPIError(resp)
	}

	var list ModelList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("解析响应失败: %w", err)
	}
	return list.Data, nil
}

// NewChatRequest 用默认参数构造单轮请求
func NewChatRequest(model, prompt string) ChatRequest {
	return ChatRequest{
		Model:       model,
		Messages:    []Message{TextMessage("user", prompt)},
		Stream:      true,
		MaxTokens:   defaultMaxTokens,
		Temperature: defaultTemperature,
	}
}

// StreamChat 执行流式聊天请求，每收到一块数据调用一次 onEvent。
// 重试只发生在建立连接阶段，流开始后出错直接返回。
func (c *Client) StreamChat(ctx context.Context, req ChatRequest, onEvent func(StreamEvent)) error {
	req.Stream = true

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("序列化请求失败: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("创建请求失败: %w", err)
	}
	c.setHeaders(httpReq)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Cache-Control", "no-cache")

	resp, err := c.retry.Do(httpReq)
	if err != nil {
		return fmt.Errorf("请求失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return readAPIError(resp)
	}

	return readSSE(ctx, resp.Body, onEvent)
}

// readSSE 解析 "data: " 行，遇到 [DONE] 结束，无法解析的块跳过
func readSSE(ctx context.Context, r io.Reader, onEvent func(StreamEvent)) error {
	reader := bufio.NewReader(r)
	for {
		line, err := reader.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("reading stream response failed: %w", err)
		}

		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "data:") {
			data := strings.TrimSpace(strings.TrimPrefix(trimmed, "data:"))
			if data == "[DONE]" {
				return nil
			}

			var chunk StreamChunk
			if jsonErr := json.Unmarshal([]byte(data), &chunk); jsonErr == nil {
				ev := StreamEvent{Usage: chunk.Usage}
				if len(chunk.Choices) > 0 {
					if delta := chunk.Choices[0].Delta; delta != nil {
						ev.Content = delta.Content
						ev.Reasoning = delta.ReasoningContent
					}
					ev.FinishReason = chunk.Choices[0].FinishReason
				}
				if ev.Content != "" || ev.Reasoning != "" || ev.FinishReason != "" || ev.Usage != nil {
					onEvent(ev)
				}
			}
		}

		if errors.Is(err, io.EOF) {
			return nil
		}
	}
}

// StreamChatWithChannel 执行流式聊天请求并返回通道。
// 事件通道在流结束后关闭，错误通道最多收到一个错误。
func (c *Client) StreamChatWithChannel(ctx context.Context, req ChatRequest) (<-chan StreamEvent, <-chan error) {
	eventCh := make(chan StreamEvent, 16)
	errCh := make(chan error, 1)

	go func() {
		defer close(errCh)
		defer close(eventCh)

		err := c.StreamChat(ctx, req, func(ev StreamEvent) {
			select {
			case eventCh <- ev:
			case <-ctx.Done():
			}
		})
		if err != nil {
			errCh <- err
		}
	}()

	return eventCh, errCh
}

func (c *Client) setHeaders(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

func readAPIError(resp *http.Response) error {
	bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	return &APIError{
		StatusCode: resp.StatusCode,
		Message:    strings.TrimSpace(string(bodyBytes)),
	}
}
