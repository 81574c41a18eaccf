package tui

import (
	"time"

	"github.com/Zacy-Sokach/RoboDash/internal/events"
	"github.com/Zacy-Sokach/RoboDash/internal/robot"
)

// TransitionMsg 引擎产生了一次状态切换
type TransitionMsg struct {
	Transition robot.Transition
}

// SessionEventMsg 会话事件总线上的事件
type SessionEventMsg struct {
	Event events.Event
}

// CompareDoneMsg 一次对比结束
type CompareDoneMsg struct {
	Results []robot.ModelResult
	Err     error
}

// DemoDoneMsg 演示剧本播放结束
type DemoDoneMsg struct {
	Err error
}

// ExportDoneMsg 历史导出结束
type ExportDoneMsg struct {
	Path string
	Err  error
}

// AnimateMsg 表情动画节拍
type AnimateMsg struct {
	Time time.Time
}
