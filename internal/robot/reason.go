package robot

import (
	"fmt"
	"strings"
)

// 定时器触发的切换原因
const (
	ReasonInitial        = "Initial state"
	ReasonTalkingElapsed = "Response complete"
	ReasonFallback       = "State updated"
)

const maxReasonDetailLength = 80

// DescribeChange 找出两个快照之间优先级最高的字段变化，生成可读原因。
// 检查顺序与 Decide 的规则顺序一致。
func DescribeChange(prev, next AppState) string {
	switch {
	case prev.Error != next.Error:
		if next.Error == "" {
			return "Error cleared"
		}
		return "Error occurred: " + truncate(next.Error)
	case prev.StreamingError != next.StreamingError:
		if next.StreamingError == "" {
			return "Streaming error cleared"
		}
		return "Streaming failed: " + truncate(next.StreamingError)
	case prev.IsStreaming != next.IsStreaming:
		if next.IsStreaming {
			return "Streaming started"
		}
		return "Streaming finished"
	case prev.IsRequestPending != next.IsRequestPending:
		if next.IsRequestPending {
			return "Request sent"
		}
		return "Request resolved"
	case prev.IsLoading != next.IsLoading:
		if next.IsLoading {
			return "Loading started"
		}
		return "Loading finished"
	case !strings.EqualFold(strings.TrimSpace(prev.ProgressStatus), strings.TrimSpace(next.ProgressStatus)):
		from := strings.TrimSpace(prev.ProgressStatus)
		if from == "" {
			from = "none"
		}
		to := strings.TrimSpace(next.ProgressStatus)
		if to == "" {
			to = "none"
		}
		return fmt.Sprintf("Progress %s → %s", from, to)
	case prev.ProgressValue != next.ProgressValue:
		return fmt.Sprintf("Progress at %.0f%%", next.ProgressValue)
	case len(prev.TestResults) != len(next.TestResults):
		if len(next.TestResults) == 0 {
			return "Results cleared"
		}
		if len(next.TestResults) == 1 {
			return "Result received from " + next.TestResults[0].ModelID
		}
		return fmt.Sprintf("%d results received", len(next.TestResults))
	case prev.StreamingContent != next.StreamingContent:
		if next.StreamingContent == "" {
			return "Content cleared"
		}
		return "Content received"
	}
	return ReasonFallback
}

func truncate(s string) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= maxReasonDetailLength {
		return s
	}
	return string(r[:maxReasonDetailLength-1]) + "…"
}
