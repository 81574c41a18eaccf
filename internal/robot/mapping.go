package robot

import "strings"

// Cause 记录是哪条映射规则决定了状态
type Cause string

const (
	CauseError          Cause = "error"
	CauseStreaming      Cause = "streaming"
	CauseRequestPending Cause = "request_pending"
	CauseLoading        Cause = "loading"
	CauseProgress       Cause = "progress"
	CauseCompletion     Cause = "completion"
	CauseIdle           Cause = "idle"
)

// Decision 映射结果
type Decision struct {
	State State
	Cause Cause
}

var (
	failedStatuses   = []string{"error", "failed"}
	activeStatuses   = []string{"loading", "pending", "processing", "running"}
	finishedStatuses = []string{"complete", "completed", "success", "done"}
)

// Decide 按优先级把快照映射到机器人状态：
// error > streaming > request pending > loading > 旧版进度阈值 > 完成 > idle
func Decide(s AppState) Decision {
	status := strings.ToLower(strings.TrimSpace(s.ProgressStatus))

	switch {
	case s.Error != "" || s.StreamingError != "" || statusIn(status, failedStatuses):
		return Decision{StateError, CauseError}
	case s.IsStreaming:
		return Decision{StateTalking, CauseStreaming}
	case s.IsRequestPending:
		return Decision{StateThinking, CauseRequestPending}
	case s.IsLoading:
		return Decision{StateThinking, CauseLoading}
	case statusIn(status, activeStatuses):
		return Decision{StateThinking, CauseProgress}
	case !statusIn(status, finishedStatuses) && s.ProgressValue > 0 && s.ProgressValue < 100:
		return Decision{StateThinking, CauseProgress}
	case statusIn(status, finishedStatuses),
		s.ProgressValue >= 100,
		len(s.TestResults) > 0,
		s.StreamingContent != "":
		return Decision{StateTalking, CauseCompletion}
	}
	return Decision{StateIdle, CauseIdle}
}

// Map 只返回状态
func Map(s AppState) State {
	return Decide(s).State
}

func statusIn(status string, set []string) bool {
	for _, v := range set {
		if status == v {
			return true
		}
	}
	return false
}
