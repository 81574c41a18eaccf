package robot

import "time"

// Timer 可停止的定时器
type Timer interface {
	Stop() bool
}

// Clock 引擎使用的时间源，测试中替换为手动时钟
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// SystemClock 基于 time 包的真实时钟
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now()
}

func (SystemClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
