package robot

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Option 引擎配置项
type Option func(*Engine)

// WithTimings 设置时间参数
func WithTimings(t Timings) Option {
	return func(e *Engine) {
		e.timings = t.normalized()
	}
}

// WithClock 替换时间源
func WithClock(c Clock) Option {
	return func(e *Engine) {
		if c != nil {
			e.clock = c
		}
	}
}

// WithLogger 设置日志
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithInitialState 设置初始状态，非法值忽略
func WithInitialState(s State) Option {
	return func(e *Engine) {
		if s.Valid() {
			e.state = s
		}
	}
}

// Engine 把不断变化的 AppState 转换成离散的机器人状态。
// 负责防抖、最短停留、talking 定时回到 idle 以及切换原因记录。
type Engine struct {
	mu sync.Mutex
	// updateMu 串行化 Update，保证快照记录与防抖提交顺序一致
	updateMu sync.Mutex
	clock    Clock
	logger   *zap.Logger
	timings  Timings

	debouncer *Debouncer[AppState]
	history   *History

	state     State
	enteredAt time.Time
	// enteredWith 是进入当前状态时生效的快照，延迟切换的原因基于它计算
	enteredWith AppState

	// snapshot 是最近一次 Update 收到的快照，applied 是最近一次参与计算的快照
	snapshot   AppState
	applied    AppState
	hasApplied bool
	// talking 定时结束后锁定当前快照，直到快照变化
	latched bool

	holdTimer Timer
	holdGen   uint64

	talkTimer Timer
	talkGen   uint64

	subs   map[int]chan Transition
	nextID int
	closed bool
}

// NewEngine 创建引擎，初始状态为 idle
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		clock:   SystemClock{},
		logger:  zap.NewNop(),
		timings: DefaultTimings(),
		state:   StateIdle,
		subs:    make(map[int]chan Transition),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.history = NewHistory(e.timings.HistorySize)
	e.debouncer = NewDebouncer(e.timings.Debounce, AppState.Equal, e.evaluate, e.clock)
	e.debouncer.SetMaxWait(maxDebounceWait(e.timings.Debounce))
	return e
}

// Update 提交新快照，不阻塞。错误状态绕过防抖立即生效。
func (e *Engine) Update(s AppState) {
	s = s.Clone()

	e.updateMu.Lock()
	defer e.updateMu.Unlock()

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.snapshot = s
	e.mu.Unlock()

	if Decide(s).State == StateError {
		e.debouncer.MarkDelivered(s)
		e.evaluate(s)
		return
	}
	e.debouncer.Trigger(s)
}

// Flush 立即处理防抖中挂起的快照
func (e *Engine) Flush() {
	e.debouncer.Flush()
}

// State 当前机器人状态
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Snapshot 最近收到的快照
func (e *Engine) Snapshot() AppState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshot.Clone()
}

// History 从旧到新的切换记录
func (e *Engine) History() []Transition {
	return e.history.Entries()
}

// Timings 当前时间参数
func (e *Engine) Timings() Timings {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.timings
}

// Reconfigure 运行时修改时间参数，已经在计时的定时器不受影响
func (e *Engine) Reconfigure(t Timings) {
	t = t.normalized()

	e.mu.Lock()
	e.timings = t
	e.mu.Unlock()

	e.debouncer.SetDelay(t.Debounce)
	e.debouncer.SetMaxWait(maxDebounceWait(t.Debounce))
	e.history.Resize(t.HistorySize)
	e.logger.Info("robot timings reconfigured",
		zap.Duration("debounce", t.Debounce),
		zap.Duration("min_state", t.MinStateDuration),
		zap.Duration("talking", t.TalkingDuration),
		zap.Int("history_size", t.HistorySize))
}

// Subscribe 订阅状态切换。订阅者缓冲满时丢弃切换，不阻塞引擎。
// 返回的函数用于取消订阅并关闭通道。
func (e *Engine) Subscribe(buffer int) (<-chan Transition, func()) {
	if buffer < 0 {
		buffer = 0
	}
	ch := make(chan Transition, buffer)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		close(ch)
		return ch, func() {}
	}
	id := e.nextID
	e.nextID++
	e.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			e.mu.Lock()
			defer e.mu.Unlock()
			if c, ok := e.subs[id]; ok {
				delete(e.subs, id)
				close(c)
			}
		})
	}
}

// Close 停止所有定时器并关闭订阅通道，可重复调用
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.stopHoldLocked()
	e.stopTalkLocked()
	for id, ch := range e.subs {
		close(ch)
		delete(e.subs, id)
	}
	e.mu.Unlock()

	e.debouncer.Stop()
}

// evaluate 是防抖器的消费者
func (e *Engine) evaluate(s AppState) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	// 交付途中又有新快照到来时，旧值作废
	if !e.snapshot.Equal(s) {
		return
	}
	if e.hasApplied && e.applied.Equal(s) {
		return
	}

	prev := e.applied
	e.applied = s
	e.hasApplied = true
	e.latched = false

	e.applyLocked(Decide(s), DescribeChange(prev, s))
}

func (e *Engine) applyLocked(dec Decision, reason string) {
	target := dec.State
	if e.latched && target == StateTalking && dec.Cause == CauseCompletion {
		target = StateIdle
	}

	if target == e.state {
		e.stopHoldLocked()
		if target == StateTalking && dec.Cause == CauseCompletion {
			if e.talkTimer == nil {
				e.startTalkLocked()
			}
		} else {
			e.stopTalkLocked()
		}
		return
	}

	now := e.clock.Now()
	if target != StateError && !e.enteredAt.IsZero() {
		if held := now.Sub(e.enteredAt); held < e.timings.MinStateDuration {
			e.deferLocked(e.timings.MinStateDuration - held)
			return
		}
	}

	e.transitionLocked(target, reason, dec.Cause)
}

func (e *Engine) transitionLocked(to State, reason string, cause Cause) {
	from := e.state
	now := e.clock.Now()

	e.state = to
	e.enteredAt = now
	e.enteredWith = e.applied
	e.stopHoldLocked()
	e.stopTalkLocked()
	if to == StateTalking && cause == CauseCompletion {
		e.startTalkLocked()
	}

	t := Transition{Timestamp: now, From: from, To: to, Reason: reason}
	e.history.Add(t)
	e.logger.Debug("robot state transition",
		zap.String("from", from.String()),
		zap.String("to", to.String()),
		zap.String("cause", string(cause)),
		zap.String("reason", reason))

	for id, ch := range e.subs {
		select {
		case ch <- t:
		default:
			e.logger.Warn("transition dropped, subscriber is full",
				zap.Int("subscriber", id),
				zap.String("to", to.String()))
		}
	}
}

// deferLocked 最短停留未满，到期后按最新快照重新计算，
// 原因取进入当前状态时的快照与最新快照之差
func (e *Engine) deferLocked(wait time.Duration) {
	if e.holdTimer != nil {
		return
	}
	e.holdGen++
	gen := e.holdGen
	e.holdTimer = e.clock.AfterFunc(wait, func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if e.closed || gen != e.holdGen {
			return
		}
		e.holdTimer = nil
		e.applyLocked(Decide(e.applied), DescribeChange(e.enteredWith, e.applied))
	})
}

// maxDebounceWait 流式分块持续到来时，最迟两个防抖周期交付一次
func maxDebounceWait(debounce time.Duration) time.Duration {
	return 2 * debounce
}

func (e *Engine) startTalkLocked() {
	e.talkGen++
	gen := e.talkGen
	e.talkTimer = e.clock.AfterFunc(e.timings.TalkingDuration, func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if e.closed || gen != e.talkGen || e.state != StateTalking {
			return
		}
		e.talkTimer = nil
		e.latched = true
		e.transitionLocked(StateIdle, ReasonTalkingElapsed, CauseIdle)
	})
}

func (e *Engine) stopHoldLocked() {
	if e.holdTimer != nil {
		e.holdTimer.Stop()
		e.holdTimer = nil
	}
	e.holdGen++
}

func (e *Engine) stopTalkLocked() {
	if e.talkTimer != nil {
		e.talkTimer.Stop()
		e.talkTimer = nil
	}
	e.talkGen++
}
