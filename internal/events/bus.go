package events

import (
	"sort"
	"sync"
	"time"
)

// Event 事件
type Event struct {
	Type      string
	RunID     string
	Data      map[string]any
	Timestamp time.Time
}

// New 创建事件，时间戳取当前时间
func New(eventType, runID string, data map[string]any) Event {
	return Event{
		Type:      eventType,
		RunID:     runID,
		Data:      data,
		Timestamp: time.Now(),
	}
}

// Handler 事件处理器接口
type Handler interface {
	// Handle 处理事件
	Handle(event Event)
	// Priority 处理优先级，数值越小优先级越高
	Priority() int
}

// HandlerFunc 把普通函数适配为优先级 0 的处理器
type HandlerFunc func(Event)

func (f HandlerFunc) Handle(event Event) { f(event) }
func (f HandlerFunc) Priority() int      { return 0 }

// Bus 事件总线接口
type Bus interface {
	Subscribe(eventType string, handler Handler) (unsubscribe func())
	Publish(event Event)
	PublishAsync(event Event)
	Clear()
}

type subscription struct {
	id      uint64
	handler Handler
}

// MemoryBus 内存事件总线实现。eventType 为 "*" 的订阅接收所有事件。
type MemoryBus struct {
	mu       sync.RWMutex
	handlers map[string][]subscription
	nextID   uint64
	wg       sync.WaitGroup
}

// Wildcard 订阅全部事件
const Wildcard = "*"

// NewMemoryBus 创建内存事件总线
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{
		handlers: make(map[string][]subscription),
	}
}

// Subscribe 订阅事件，返回取消订阅函数
func (bus *MemoryBus) Subscribe(eventType string, handler Handler) func() {
	bus.mu.Lock()
	defer bus.mu.Unlock()

	bus.nextID++
	id := bus.nextID
	subs := append(bus.handlers[eventType], subscription{id: id, handler: handler})
	// 按优先级排序，同优先级保持订阅顺序
	sort.SliceStable(subs, func(i, j int) bool {
		return subs[i].handler.Priority() < subs[j].handler.Priority()
	})
	bus.handlers[eventType] = subs

	return func() {
		bus.mu.Lock()
		defer bus.mu.Unlock()
		current := bus.handlers[eventType]
		for i, s := range current {
			if s.id == id {
				bus.handlers[eventType] = append(current[:i:i], current[i+1:]...)
				return
			}
		}
	}
}

// Publish 同步发布事件
func (bus *MemoryBus) Publish(event Event) {
	bus.mu.RLock()
	handlers := make([]subscription, 0, len(bus.handlers[event.Type])+len(bus.handlers[Wildcard]))
	handlers = append(handlers, bus.handlers[event.Type]...)
	if event.Type != Wildcard {
		handlers = append(handlers, bus.handlers[Wildcard]...)
	}
	bus.mu.RUnlock()

	sort.SliceStable(handlers, func(i, j int) bool {
		return handlers[i].handler.Priority() < handlers[j].handler.Priority()
	})
	for _, s := range handlers {
		s.handler.Handle(event)
	}
}

// PublishAsync 异步发布事件
func (bus *MemoryBus) PublishAsync(event Event) {
	bus.wg.Add(1)
	go func() {
		defer bus.wg.Done()
		bus.Publish(event)
	}()
}

// Wait 等待所有异步发布完成
func (bus *MemoryBus) Wait() {
	bus.wg.Wait()
}

// Clear 清空所有订阅
func (bus *MemoryBus) Clear() {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	bus.handlers = make(map[string][]subscription)
}

// 事件类型常量
const (
	TypeSessionStarted  = "session.started"
	TypeSessionFinished = "session.finished"
	TypeModelsListed    = "models.listed"

	TypeStreamStarted  = "stream.started"
	TypeStreamChunk    = "stream.chunk"
	TypeStreamFinished = "stream.finished"
	TypeStreamError    = "stream.error"
)
