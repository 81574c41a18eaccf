package session

import (
	"time"

	"github.com/Zacy-Sokach/RoboDash/internal/robot"
)

// meter 记录单个模型一次流式调用的耗时
type meter struct {
	now        func() time.Time
	start      time.Time
	firstToken time.Time
	chunks     int
}

func newMeter(now func() time.Time) *meter {
	return &meter{now: now, start: now()}
}

func (m *meter) chunk() {
	if m.chunks == 0 {
		m.firstToken = m.now()
	}
	m.chunks++
}

func (m *meter) finish(tokens int) robot.StreamMetrics {
	metrics := robot.StreamMetrics{
		Duration: m.now().Sub(m.start),
		Chunks:   m.chunks,
		Tokens:   tokens,
	}
	if m.chunks > 0 {
		metrics.FirstTokenLatency = m.firstToken.Sub(m.start)
	}
	return metrics
}
