package robot

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrUnknownState 表示无法识别的机器人状态
var ErrUnknownState = errors.New("未知的机器人状态")

// State 机器人表情状态，由 AppState 推导而来，不单独存储
type State string

const (
	StateIdle     State = "idle"
	StateThinking State = "thinking"
	StateTalking  State = "talking"
	StateError    State = "error"
)

// AllStates 按声明顺序返回全部状态
func AllStates() []State {
	return []State{StateIdle, StateThinking, StateTalking, StateError}
}

func (s State) String() string {
	return string(s)
}

// Valid 检查状态是否为四个合法值之一
func (s State) Valid() bool {
	switch s {
	case StateIdle, StateThinking, StateTalking, StateError:
		return true
	}
	return false
}

// ParseState 解析状态字符串（忽略大小写和首尾空白）
func ParseState(s string) (State, error) {
	st := State(strings.ToLower(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownState, s)
	}
	return st, nil
}

// StreamMetrics 单个模型流式响应的客户端测量值
type StreamMetrics struct {
	FirstTokenLatency time.Duration `yaml:"first_token_latency" json:"first_token_latency"`
	Duration          time.Duration `yaml:"duration" json:"duration"`
	Chunks            int           `yaml:"chunks" json:"chunks"`
	Tokens            int           `yaml:"tokens" json:"tokens"`
}

// TokensPerSecond 计算生成速率，时长为零时返回 0
func (m StreamMetrics) TokensPerSecond() float64 {
	if m.Duration <= 0 {
		return 0
	}
	return float64(m.Tokens) / m.Duration.Seconds()
}

// ModelResult 一个模型的对比结果
type ModelResult struct {
	ModelID string        `yaml:"model_id" json:"model_id"`
	Output  string        `yaml:"output" json:"output"`
	Metrics StreamMetrics `yaml:"metrics,omitempty" json:"metrics"`
}

// AppState 顶层容器持有的请求/流式状态快照
type AppState struct {
	IsLoading        bool          `yaml:"is_loading,omitempty" json:"is_loading"`
	Error            string        `yaml:"error,omitempty" json:"error,omitempty"`
	ProgressStatus   string        `yaml:"progress_status,omitempty" json:"progress_status,omitempty"`
	ProgressValue    float64       `yaml:"progress_value,omitempty" json:"progress_value"`
	TestResults      []ModelResult `yaml:"test_results,omitempty" json:"test_results,omitempty"`
	IsStreaming      bool          `yaml:"is_streaming,omitempty" json:"is_streaming"`
	StreamingContent string        `yaml:"streaming_content,omitempty" json:"streaming_content,omitempty"`
	IsRequestPending bool          `yaml:"is_request_pending,omitempty" json:"is_request_pending"`
	StreamingError   string        `yaml:"streaming_error,omitempty" json:"streaming_error,omitempty"`
}

// Equal 逐字段比较两个快照，结果只比较模型和输出
func (a AppState) Equal(b AppState) bool {
	if a.IsLoading != b.IsLoading ||
		a.Error != b.Error ||
		a.ProgressStatus != b.ProgressStatus ||
		a.ProgressValue != b.ProgressValue ||
		a.IsStreaming != b.IsStreaming ||
		a.StreamingContent != b.StreamingContent ||
		a.IsRequestPending != b.IsRequestPending ||
		a.StreamingError != b.StreamingError {
		return false
	}
	if len(a.TestResults) != len(b.TestResults) {
		return false
	}
	for i := range a.TestResults {
		if a.TestResults[i].ModelID != b.TestResults[i].ModelID ||
			a.TestResults[i].Output != b.TestResults[i].Output {
			return false
		}
	}
	return true
}

// Clone 返回不共享结果切片的副本
func (a AppState) Clone() AppState {
	if a.TestResults != nil {
		results := make([]ModelResult, len(a.TestResults))
		copy(results, a.TestResults)
		a.TestResults = results
	}
	return a
}

// Transition 一次状态切换，同时作为历史记录条目
type Transition struct {
	Timestamp time.Time `json:"timestamp"`
	From      State     `json:"from"`
	To        State     `json:"to"`
	Reason    string    `json:"reason"`
}

// Announcement 生成给读屏软件播报的文本
func (t Transition) Announcement() string {
	var phrase string
	switch t.To {
	case StateThinking:
		phrase = "Robot is thinking"
	case StateTalking:
		phrase = "Robot is responding"
	case StateError:
		phrase = "Robot encountered an error"
	default:
		phrase = "Robot is idle"
	}
	if t.Reason == "" {
		return phrase + "."
	}
	return phrase + ": " + t.Reason + "."
}

// Timings 引擎的时间参数
type Timings struct {
	// Debounce 快照静默多久后才计算新状态
	Debounce time.Duration
	// MinStateDuration 进入某状态后至少保持的时长
	MinStateDuration time.Duration
	// TalkingDuration 完成后 talking 保持多久回到 idle
	TalkingDuration time.Duration
	// HistorySize 历史环形缓冲容量
	HistorySize int
}

// DefaultTimings 返回默认时间参数
func DefaultTimings() Timings {
	return Timings{
		Debounce:         150 * time.Millisecond,
		MinStateDuration: 300 * time.Millisecond,
		TalkingDuration:  2 * time.Second,
		HistorySize:      DefaultHistorySize,
	}
}

func (t Timings) normalized() Timings {
	def := DefaultTimings()
	if t.Debounce < 0 {
		t.Debounce = 0
	}
	if t.MinStateDuration < 0 {
		t.MinStateDuration = 0
	}
	if t.TalkingDuration <= 0 {
		t.TalkingDuration = def.TalkingDuration
	}
	if t.HistorySize <= 0 {
		t.HistorySize = def.HistorySize
	}
	return t
}
