package utils

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"
)

// RetryConfig 配置重试参数
type RetryConfig struct {
	// MaxRetries 最大重试次数（不含第一次请求）
	MaxRetries int
	// InitialDelay 初始延迟时间
	InitialDelay time.Duration
	// MaxDelay 最大延迟时间
	MaxDelay time.Duration
	// BackoffMultiplier 退避倍数
	BackoffMultiplier float64
	// RetryableStatusCodes 需要重试的HTTP状态码
	RetryableStatusCodes []int
	// RetryableErrors 需要重试的错误类型判断函数
	RetryableErrors func(error) bool
}

// DefaultRetryConfig 返回默认的重试配置
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries:        3,
		InitialDelay:      1 * time.Second,
		MaxDelay:          30 * time.Second,
		BackoffMultiplier: 2.0,
		RetryableStatusCodes: []int{
			http.StatusRequestTimeout,      // 408
			http.StatusTooManyRequests,     // 429
			http.StatusInternalServerError, // 500
			http.StatusBadGateway,          // 502
			http.StatusServiceUnavailable,  // 503
			http.StatusGatewayTimeout,      // 504
		},
		RetryableErrors: func(err error) bool {
			// 取消和超时不重试，其余网络错误都重试
			return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
		},
	}
}

// Backoff 第 attempt 次重试前的等待时间（attempt 从 1 开始）：
// initialDelay * multiplier^(attempt-1)，不超过 MaxDelay
func (c *RetryConfig) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		return 0
	}
	multiplier := c.BackoffMultiplier
	if multiplier < 1 {
		multiplier = 1
	}
	delay := float64(c.InitialDelay) * math.Pow(multiplier, float64(attempt-1))
	if c.MaxDelay > 0 && delay > float64(c.MaxDelay) {
		delay = float64(c.MaxDelay)
	}
	return time.Duration(delay)
}

// RetryableHTTPClient 带重试机制的HTTP客户端
type RetryableHTTPClient struct {
	client *http.Client
	config *RetryConfig
}

// NewRetryableHTTPClient 创建新的带重试机制的HTTP客户端
func NewRetryableHTTPClient(client *http.Client, config *RetryConfig) *RetryableHTTPClient {
	if client == nil {
		client = http.DefaultClient
	}
	if config == nil {
		config = DefaultRetryConfig()
	}
	return &RetryableHTTPClient{
		client: client,
		config: config,
	}
}

// Do 执行HTTP请求，支持重试。
// 只对建立连接和响应头阶段重试，返回的响应体由调用方读取。
func (r *RetryableHTTPClient) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	var bodyBytes []byte
	if req.Body != nil && req.Body != http.NoBody {
		var err error
		bodyBytes, err = io.ReadAll(req.Body)
		req.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("读取请求体失败: %w", err)
		}
	}

	var lastErr error
	for attempt := 0; attempt <= r.config.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := sleepContext(ctx, r.config.Backoff(attempt)); err != nil {
				return nil, err
			}
		}

		// 每次重试都需要克隆请求，因为请求体只能读取一次
		clonedReq := req.Clone(ctx)
		if bodyBytes != nil {
			clonedReq.Body = io.NopCloser(bytes.NewReader(bodyBytes))
			clonedReq.ContentLength = int64(len(bodyBytes))
		}

		resp, err := r.client.Do(clonedReq)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			if !r.shouldRetryError(err) {
				break
			}
			continue
		}

		if !r.ShouldRetryStatus(resp.StatusCode) {
			return resp, nil
		}

		// 需要重试，关闭响应体
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		lastErr = fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	return nil, fmt.Errorf("after %d retries: %w", r.config.MaxRetries, lastErr)
}

// ShouldRetryStatus 判断是否应该重试某个状态码
func (r *RetryableHTTPClient) ShouldRetryStatus(statusCode int) bool {
	for _, code := range r.config.RetryableStatusCodes {
		if statusCode == code {
			return true
		}
	}
	return false
}

func (r *RetryableHTTPClient) shouldRetryError(err error) bool {
	if r.config.RetryableErrors == nil {
		return false
	}
	return r.config.RetryableErrors(err)
}

// WithRetry 为函数添加重试机制
func WithRetry(fn func() error, config *RetryConfig) error {
	return WithRetryContext(context.Background(), func(context.Context) error { return fn() }, config)
}

// WithRetryContext 带上下文的重试，ctx 取消后立即返回
func WithRetryContext(ctx context.Context, fn func(context.Context) error, config *RetryConfig) error {
	if config == nil {
		config = DefaultRetryConfig()
	}

	var lastErr error
	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := sleepContext(ctx, config.Backoff(attempt)); err != nil {
				return fmt.Errorf("after %d retries: %w", attempt-1, err)
			}
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}

		lastErr = err
		if config.RetryableErrors != nil && !config.RetryableErrors(err) {
			break
		}
	}

	return fmt.Errorf("after %d retries: %w", config.MaxRetries, lastErr)
}

// sleepContext 可被取消的等待
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
