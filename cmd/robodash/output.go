package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/Zacy-Sokach/RoboDash/internal/robot"
)

const transitionBuffer = 64

// printTransitions 打印每次切换和对应的播报文本，通道关闭时返回
func printTransitions(out io.Writer, ch <-chan robot.Transition) error {
	for t := range ch {
		if _, err := fmt.Fprintf(out, "%s  %-8s → %-8s  %s\n  » %s\n",
			t.Timestamp.Format("15:04:05.000"), t.From, t.To, t.Reason, t.Announcement()); err != nil {
			return fmt.Errorf("输出失败: %w", err)
		}
	}
	return nil
}

// settle 立即处理挂起的快照，并等到最短停留结束，让延后的切换落地
func settle(ctx context.Context, engine *robot.Engine) error {
	engine.Flush()
	wait := engine.Timings().MinStateDuration
	if wait <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(wait):
		return nil
	}
}

func printResult(out io.Writer, r robot.ModelResult) {
	fmt.Fprintf(out, "\n== %s ==\n%s\n", r.ModelID, r.Output)
	fmt.Fprintf(out, "首字 %s · 用时 %s · %d chunks · %d tokens · %.1f tok/s\n",
		r.Metrics.FirstTokenLatency.Round(time.Millisecond),
		r.Metrics.Duration.Round(time.Millisecond),
		r.Metrics.Chunks,
		r.Metrics.Tokens,
		r.Metrics.TokensPerSecond())
}
