package robot

import "sync"

// DefaultHistorySize 历史记录默认容量
const DefaultHistorySize = 10

// History 固定容量的状态切换环形缓冲，只用于调试面板
type History struct {
	mu      sync.RWMutex
	entries []Transition
	start   int
	size    int
}

// NewHistory 创建历史记录，容量不合法时使用默认值
func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = DefaultHistorySize
	}
	return &History{entries: make([]Transition, capacity)}
}

// Add 追加一条记录，满了覆盖最旧的
func (h *History) Add(t Transition) {
	h.mu.Lock()
	defer h.mu.Unlock()

	idx := (h.start + h.size) % len(h.entries)
	h.entries[idx] = t
	if h.size < len(h.entries) {
		h.size++
	} else {
		h.start = (h.start + 1) % len(h.entries)
	}
}

// Entries 从旧到新返回副本
func (h *History) Entries() []Transition {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]Transition, h.size)
	for i := 0; i < h.size; i++ {
		out[i] = h.entries[(h.start+i)%len(h.entries)]
	}
	return out
}

// Last 返回最新一条记录
func (h *History) Last() (Transition, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.size == 0 {
		return Transition{}, false
	}
	return h.entries[(h.start+h.size-1)%len(h.entries)], true
}

// Len 当前记录数
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.size
}

// Cap 容量
func (h *History) Cap() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.entries)
}

// Clear 清空记录
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = make([]Transition, len(h.entries))
	h.start = 0
	h.size = 0
}

// Resize 调整容量，保留最新的记录
func (h *History) Resize(capacity int) {
	if capacity <= 0 {
		capacity = DefaultHistorySize
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	keep := h.size
	if keep > capacity {
		keep = capacity
	}
	entries := make([]Transition, capacity)
	for i := 0; i < keep; i++ {
		entries[i] = h.entries[(h.start+h.size-keep+i)%len(h.entries)]
	}
	h.entries = entries
	h.start = 0
	h.size = keep
}
