package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/Zacy-Sokach/RoboDash/internal/api"
	"github.com/Zacy-Sokach/RoboDash/internal/events"
	"github.com/Zacy-Sokach/RoboDash/internal/robot"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrBusy 已有对比在运行
	ErrBusy = errors.New("已有对比任务在运行")
	// ErrNoModels 没有选择模型
	ErrNoModels = errors.New("没有选择任何模型")
	// ErrEmptyPrompt 提示词为空
	ErrEmptyPrompt = errors.New("提示词不能为空")
)

// Sink 接收 AppState 快照，*robot.Engine 实现了该接口
type Sink interface {
	Update(robot.AppState)
}

// Gateway 模型网关，*api.Client 实现了该接口
type Gateway interface {
	StreamChat(ctx context.Context, req api.ChatRequest, onEvent func(api.StreamEvent)) error
	ListModels(ctx context.Context) ([]api.Model, error)
}

// Option 配置项
type Option func(*Tracker)

func WithBus(bus events.Bus) Option {
	return func(t *Tracker) {
		if bus != nil {
			t.bus = bus
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(t *Tracker) {
		if l != nil {
			t.logger = l
		}
	}
}

// WithNow 替换时间源，用于测试指标
func WithNow(now func() time.Time) Option {
	return func(t *Tracker) {
		if now != nil {
			t.now = now
		}
	}
}

// Tracker 持有 AppState，在每个请求/流式事件上修改它并推送给 Sink
type Tracker struct {
	mu      sync.Mutex
	state   robot.AppState
	running bool
	runID   string

	gateway Gateway
	sink    Sink
	bus     events.Bus
	logger  *zap.Logger
	now     func() time.Time
}

// NewTracker 创建会话跟踪器
func NewTracker(gateway Gateway, sink Sink, opts ...Option) *Tracker {
	t := &Tracker{
		gateway: gateway,
		sink:    sink,
		bus:     events.NewMemoryBus(),
		logger:  zap.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// State 当前快照副本
func (t *Tracker) State() robot.AppState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state.Clone()
}

// Running 是否有对比在运行
func (t *Tracker) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

// Reset 清空状态，回到 idle。运行中的对比不受影响。
func (t *Tracker) Reset() {
	t.mutate(func(s *robot.AppState) { *s = robot.AppState{} })
}

// ListModels 获取模型列表，期间标记为 loading
func (t *Tracker) ListModels(ctx context.Context) ([]api.Model, error) {
	t.mutate(func(s *robot.AppState) {
		s.IsLoading = true
		s.Error = ""
	})

	models, err := t.gateway.ListModels(ctx)
	if err != nil {
		t.mutate(func(s *robot.AppState) {
			s.IsLoading = false
			s.Error = err.Error()
		})
		return nil, fmt.Errorf("获取模型列表失败: %w", err)
	}

	t.mutate(func(s *robot.AppState) { s.IsLoading = false })
	t.publish(events.TypeModelsListed, "", map[string]any{"count": len(models)})
	return models, nil
}

// Compare 依次把同一提示词发给每个模型，返回已完成的结果。
// 任一模型失败时停止并返回错误，已完成的结果仍然返回。
func (t *Tracker) Compare(ctx context.Context, prompt string, models []string) ([]robot.ModelResult, error) {
	if prompt == "" {
		return nil, ErrEmptyPrompt
	}
	if len(models) == 0 {
		return nil, ErrNoModels
	}

	t.mu.Lock()
	if t.running {
		t.mu.Unlock()
		return nil, ErrBusy
	}
	t.running = true
	t.runID = uuid.NewString()
	runID := t.runID
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		t.running = false
		t.mu.Unlock()
	}()

	t.mutate(func(s *robot.AppState) {
		*s = robot.AppState{IsLoading: true, ProgressStatus: "running"}
	})
	t.publish(events.TypeSessionStarted, runID, map[string]any{"models": models})
	t.logger.Info("comparison started", zap.String("run_id", runID), zap.Strings("models", models))

	var results []robot.ModelResult
	for i, model := range models {
		result, err := t.streamModel(ctx, runID, model, prompt)
		if err != nil {
			if ctx.Err() != nil {
				t.mutate(func(s *robot.AppState) { *s = robot.AppState{} })
				t.publish(events.TypeSessionFinished, runID, map[string]any{"cancelled": true})
				return results, ctx.Err()
			}
			t.mutate(func(s *robot.AppState) {
				s.IsLoading = false
				s.IsRequestPending = false
				s.IsStreaming = false
				s.StreamingError = err.Error()
				s.ProgressStatus = "failed"
			})
			t.publish(events.TypeStreamError, runID, map[string]any{"model": model, "error": err.Error()})
			return results, fmt.Errorf("模型 %s 调用失败: %w", model, err)
		}

		results = append(results, result)
		progress := float64(i+1) / float64(len(models)) * 100
		t.mutate(func(s *robot.AppState) {
			s.IsStreaming = false
			s.IsRequestPending = false
			s.TestResults = append(s.TestResults, result)
			s.ProgressValue = progress
		})
		t.publish(events.TypeStreamFinished, runID, map[string]any{
			"model":               model,
			"first_token_latency": result.Metrics.FirstTokenLatency.String(),
			"duration":            result.Metrics.Duration.String(),
			"tokens":              result.Metrics.Tokens,
			"tokens_per_second":   result.Metrics.TokensPerSecond(),
		})
	}

	t.mutate(func(s *robot.AppState) {
		s.IsLoading = false
		s.ProgressStatus = "complete"
		s.ProgressValue = 100
	})
	t.publish(events.TypeSessionFinished, runID, map[string]any{"results": len(results)})
	t.logger.Info("comparison finished", zap.String("run_id", runID), zap.Int("results", len(results)))
	return results, nil
}

func (t *Tracker) streamModel(ctx context.Context, runID, model, prompt string) (robot.ModelResult, error) {
	t.mutate(func(s *robot.AppState) {
		s.IsRequestPending = true
		s.IsStreaming = false
		s.StreamingContent = ""
		s.StreamingError = ""
	})
	t.publish(events.TypeStreamStarted, runID, map[string]any{"model": model})

	meter := newMeter(t.now)
	var usage *api.Usage
	err := t.gateway.StreamChat(ctx, api.NewChatRequest(model, prompt), func(ev api.StreamEvent) {
		if ev.Usage != nil {
			usage = ev.Usage
		}
		if ev.Content == "" {
			return
		}
		meter.chunk()
		t.mutate(func(s *robot.AppState) {
			s.IsRequestPending = false
			s.IsStreaming = true
			s.StreamingContent += ev.Content
		})
		t.publish(events.TypeStreamChunk, runID, map[string]any{"model": model, "bytes": len(ev.Content)})
	})
	if err != nil {
		return robot.ModelResult{}, err
	}

	output := t.State().StreamingContent
	tokens := estimateTokens(output)
	if usage != nil && usage.CompletionTokens > 0 {
		tokens = usage.CompletionTokens
	}
	return robot.ModelResult{
		ModelID: model,
		Output:  output,
		Metrics: meter.finish(tokens),
	}, nil
}

// mutate 在锁内修改状态并把副本推给 Sink，保证推送顺序与修改顺序一致
func (t *Tracker) mutate(fn func(*robot.AppState)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fn(&t.state)
	if t.sink != nil {
		t.sink.Update(t.state.Clone())
	}
}

func (t *Tracker) publish(eventType, runID string, data map[string]any) {
	t.bus.Publish(events.New(eventType, runID, data))
}

// estimateTokens 没有用量统计时按 4 个字符一个 token 估算
func estimateTokens(s string) int {
	n := utf8.RuneCountInString(s)
	if n == 0 {
		return 0
	}
	return (n + 3) / 4
}
