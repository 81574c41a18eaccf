package robot

import (
	"sync"
	"time"
)

// Debouncer 防抖包装：值静默 delay 后才交给唯一的消费者，
// 与上次交付值相同的值会被丢弃。设置 maxWait 后，持续到来的值
// 最迟在第一个未交付值之后 maxWait 交付一次。
type Debouncer[T any] struct {
	mu        sync.Mutex
	delay     time.Duration
	maxWait   time.Duration
	since     time.Time
	equal     func(a, b T) bool
	fn        func(T)
	clock     Clock
	timer     Timer
	pending   T
	hasValue  bool
	last      T
	delivered bool
	stopped   bool
	gen       uint64
}

// NewDebouncer 创建防抖器，clock 为 nil 时使用系统时钟
func NewDebouncer[T any](delay time.Duration, equal func(a, b T) bool, fn func(T), clock Clock) *Debouncer[T] {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Debouncer[T]{
		delay: delay,
		equal: equal,
		fn:    fn,
		clock: clock,
	}
}

// Trigger 提交新值并重新计时
func (d *Debouncer[T]) Trigger(v T) {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	now := d.clock.Now()
	if !d.hasValue {
		d.since = now
	}
	d.pending = v
	d.hasValue = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}

	wait := d.delay
	if d.maxWait > 0 {
		if left := d.maxWait - now.Sub(d.since); left < wait {
			wait = left
		}
	}
	d.gen++
	gen := d.gen
	if wait <= 0 {
		d.mu.Unlock()
		d.fire(gen)
		return
	}
	d.timer = d.clock.AfterFunc(wait, func() { d.fire(gen) })
	d.mu.Unlock()
}

// Flush 立即交付挂起的值
func (d *Debouncer[T]) Flush() {
	d.mu.Lock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	gen := d.gen
	d.mu.Unlock()
	d.fire(gen)
}

// Stop 丢弃挂起的值，之后的 Trigger 不再生效
func (d *Debouncer[T]) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	d.hasValue = false
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

// MarkDelivered 把 v 记为已交付并丢弃挂起值，用于调用方绕过防抖直接处理的情况
func (d *Debouncer[T]) MarkDelivered(v T) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.gen++
	d.hasValue = false
	d.last = v
	d.delivered = true
}

// SetDelay 修改延迟，对下一次 Trigger 生效
func (d *Debouncer[T]) SetDelay(delay time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.delay = delay
}

// SetMaxWait 设置持续触发时的最长等待，<= 0 表示不限制
func (d *Debouncer[T]) SetMaxWait(maxWait time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.maxWait = maxWait
}

// Pending 是否有尚未交付的值
func (d *Debouncer[T]) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.hasValue
}

func (d *Debouncer[T]) fire(gen uint64) {
	d.mu.Lock()
	// 过期定时器：之后又有 Trigger
	if gen != d.gen || !d.hasValue || d.stopped {
		d.mu.Unlock()
		return
	}
	v := d.pending
	d.hasValue = false
	d.timer = nil
	if d.delivered && d.equal != nil && d.equal(d.last, v) {
		d.mu.Unlock()
		return
	}
	d.last = v
	d.delivered = true
	d.mu.Unlock()

	d.fn(v)
}
