package robot

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

var testTimings = Timings{
	Debounce:         100 * time.Millisecond,
	MinStateDuration: 300 * time.Millisecond,
	TalkingDuration:  time.Second,
	HistorySize:      10,
}

func newTestEngine(t *testing.T, opts ...Option) (*Engine, *manualClock) {
	t.Helper()
	clock := newManualClock()
	e := NewEngine(append([]Option{WithTimings(testTimings), WithClock(clock)}, opts...)...)
	t.Cleanup(e.Close)
	return e, clock
}

func results(ids ...string) []ModelResult {
	out := make([]ModelResult, 0, len(ids))
	for _, id := range ids {
		out = append(out, ModelResult{ModelID: id, Output: "answer from " + id})
	}
	return out
}

func TestEngineDebouncesSnapshots(t *testing.T) {
	e, clock := newTestEngine(t)

	e.Update(AppState{IsRequestPending: true})
	clock.Advance(50 * time.Millisecond)
	e.Update(AppState{IsStreaming: true, StreamingContent: "Hel"})
	clock.Advance(50 * time.Millisecond)
	assert.Equal(t, StateIdle, e.State(), "still inside the debounce window")

	clock.Advance(50 * time.Millisecond)
	require.Equal(t, StateTalking, e.State())

	hist := e.History()
	require.Len(t, hist, 1)
	assert.Equal(t, StateIdle, hist[0].From)
	assert.Equal(t, StateTalking, hist[0].To)
	assert.Equal(t, "Streaming started", hist[0].Reason)
}

func TestEngineErrorBypassesDebounceAndHold(t *testing.T) {
	e, clock := newTestEngine(t)

	e.Update(AppState{IsRequestPending: true})
	clock.Advance(100 * time.Millisecond)
	require.Equal(t, StateThinking, e.State())

	e.Update(AppState{Error: "throttled"})
	assert.Equal(t, StateError, e.State(), "error must apply without waiting")

	last := e.History()[len(e.History())-1]
	assert.Equal(t, "Error occurred: throttled", last.Reason)

	// 相同的错误快照再次到来不应产生切换
	e.Update(AppState{Error: "throttled"})
	clock.Advance(time.Second)
	assert.Len(t, e.History(), 2)
}

func TestEngineMinimumHoldDefersChange(t *testing.T) {
	e, clock := newTestEngine(t)

	e.Update(AppState{IsRequestPending: true})
	clock.Advance(100 * time.Millisecond)
	require.Equal(t, StateThinking, e.State())

	e.Update(AppState{IsStreaming: true})
	clock.Advance(100 * time.Millisecond)
	assert.Equal(t, StateThinking, e.State(), "thinking is held for the minimum duration")

	clock.Advance(199 * time.Millisecond)
	assert.Equal(t, StateThinking, e.State())

	clock.Advance(time.Millisecond)
	require.Equal(t, StateTalking, e.State())
	last := e.History()[len(e.History())-1]
	assert.Equal(t, "Streaming started", last.Reason)
}

func TestEngineDeferredReasonDescribesStateChange(t *testing.T) {
	e, clock := newTestEngine(t)

	e.Update(AppState{IsRequestPending: true})
	clock.Advance(100 * time.Millisecond)
	require.Equal(t, StateThinking, e.State())

	e.Update(AppState{IsStreaming: true})
	clock.Advance(100 * time.Millisecond)
	e.Update(AppState{IsStreaming: true, StreamingContent: "Hel"})
	clock.Advance(100 * time.Millisecond)
	assert.Equal(t, StateThinking, e.State(), "still inside the minimum hold")

	clock.Advance(100 * time.Millisecond)
	require.Equal(t, StateTalking, e.State())
	last := e.History()[len(e.History())-1]
	assert.Equal(t, "Streaming started", last.Reason, "reason compares against the snapshot that entered thinking")
}

func TestEngineDropsSnapshotSupersededDuringDelivery(t *testing.T) {
	e, clock := newTestEngine(t, WithTimings(Timings{Debounce: 100 * time.Millisecond, TalkingDuration: time.Second, HistorySize: 10}))

	e.Update(AppState{IsRequestPending: true})
	clock.Advance(100 * time.Millisecond)
	require.Equal(t, StateThinking, e.State())

	// 防抖器已取出旧快照、尚未交给引擎时，错误快照抢先到达
	paused := make(chan struct{})
	resume := make(chan struct{})
	deliver := e.debouncer.fn
	e.debouncer.fn = func(s AppState) {
		close(paused)
		<-resume
		deliver(s)
	}

	e.Update(AppState{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		clock.Advance(100 * time.Millisecond)
	}()
	<-paused

	e.Update(AppState{Error: "boom"})
	require.Equal(t, StateError, e.State())

	close(resume)
	<-done

	assert.Equal(t, StateError, e.State(), "an older snapshot must not leave the error state")
	hist := e.History()
	require.Len(t, hist, 2)
	assert.Equal(t, "Error occurred: boom", hist[1].Reason)
}

func TestEngineStreamingChunksReachTalkingWithinMaxWait(t *testing.T) {
	e, clock := newTestEngine(t)

	content := ""
	for i := 0; i < 5; i++ {
		content += "x"
		e.Update(AppState{IsStreaming: true, StreamingContent: content})
		clock.Advance(50 * time.Millisecond)
	}

	require.Equal(t, StateTalking, e.State(), "continuous chunks must not hold the debounce forever")
	assert.Equal(t, "Streaming started", e.History()[0].Reason)
}

func TestEngineDeferredChangeCancelledWhenStateReturns(t *testing.T) {
	e, clock := newTestEngine(t)

	e.Update(AppState{IsLoading: true})
	clock.Advance(100 * time.Millisecond)
	require.Equal(t, StateThinking, e.State())

	e.Update(AppState{})
	clock.Advance(100 * time.Millisecond)
	e.Update(AppState{IsRequestPending: true})
	clock.Advance(100 * time.Millisecond)
	clock.Advance(time.Second)

	assert.Equal(t, StateThinking, e.State())
	assert.Len(t, e.History(), 1, "the idle flicker must not be recorded")
}

func TestEngineTalkingReturnsToIdleAfterDuration(t *testing.T) {
	e, clock := newTestEngine(t)

	done := AppState{ProgressStatus: "complete", ProgressValue: 100, TestResults: results("amazon.titan-text-lite")}
	e.Update(done)
	clock.Advance(100 * time.Millisecond)
	require.Equal(t, StateTalking, e.State())

	clock.Advance(999 * time.Millisecond)
	assert.Equal(t, StateTalking, e.State())
	clock.Advance(time.Millisecond)
	require.Equal(t, StateIdle, e.State())
	last := e.History()[len(e.History())-1]
	assert.Equal(t, ReasonTalkingElapsed, last.Reason)

	// 同一快照被锁定，不会重新进入 talking
	e.Update(done)
	clock.Advance(time.Second)
	assert.Equal(t, StateIdle, e.State())

	// 新结果到来后解除锁定
	more := done
	more.TestResults = results("amazon.titan-text-lite", "mistral.mistral-7b")
	e.Update(more)
	clock.Advance(100 * time.Millisecond)
	clock.Advance(200 * time.Millisecond)
	require.Equal(t, StateTalking, e.State())
	assert.Equal(t, "2 results received", e.History()[len(e.History())-1].Reason)
}

func TestEngineStreamingTalkingHasNoTimer(t *testing.T) {
	e, clock := newTestEngine(t)

	e.Update(AppState{IsStreaming: true, StreamingContent: "..."})
	clock.Advance(100 * time.Millisecond)
	require.Equal(t, StateTalking, e.State())

	clock.Advance(10 * time.Second)
	assert.Equal(t, StateTalking, e.State())

	// 流结束后进入完成阶段，开始计时
	e.Update(AppState{StreamingContent: "...", TestResults: results("cohere.command-r")})
	clock.Advance(100 * time.Millisecond)
	assert.Equal(t, StateTalking, e.State())
	clock.Advance(time.Second)
	assert.Equal(t, StateIdle, e.State())
}

func TestEngineIdenticalSnapshotsDoNotTransition(t *testing.T) {
	e, clock := newTestEngine(t)

	for i := 0; i < 5; i++ {
		e.Update(AppState{IsLoading: true})
		clock.Advance(time.Second)
	}
	assert.Len(t, e.History(), 1)
}

func TestEngineHistoryIsBounded(t *testing.T) {
	e := NewEngine(WithTimings(Timings{HistorySize: 10}), WithClock(newManualClock()))
	defer e.Close()

	for i := 0; i < 12; i++ {
		e.Update(AppState{Error: "x"})
		e.Update(AppState{})
	}

	hist := e.History()
	require.Len(t, hist, 10)
	for _, tr := range hist {
		assert.NotEqual(t, tr.From, tr.To)
	}
	assert.Equal(t, StateIdle, e.State())
}

func TestEngineSubscribers(t *testing.T) {
	e, clock := newTestEngine(t)
	ch, cancel := e.Subscribe(4)

	e.Update(AppState{IsRequestPending: true})
	clock.Advance(100 * time.Millisecond)

	select {
	case tr := <-ch:
		assert.Equal(t, StateThinking, tr.To)
		assert.Equal(t, "Robot is thinking: Request sent.", tr.Announcement())
	default:
		t.Fatal("expected a transition")
	}

	cancel()
	cancel()
	_, open := <-ch
	assert.False(t, open, "channel closed after cancel")
}

func TestEngineFullSubscriberDropsAndLogs(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	e, _ := newTestEngine(t, WithLogger(zap.New(core)), WithTimings(Timings{HistorySize: 10}))
	ch, _ := e.Subscribe(0)

	e.Update(AppState{Error: "a"})
	e.Update(AppState{})

	select {
	case <-ch:
		t.Fatal("unbuffered subscriber without reader should not receive")
	default:
	}
	assert.Equal(t, 2, logs.FilterMessage("transition dropped, subscriber is full").Len())
	assert.Equal(t, StateIdle, e.State())
}

func TestEngineCloseStopsEverything(t *testing.T) {
	e, clock := newTestEngine(t)
	ch, _ := e.Subscribe(1)

	e.Update(AppState{TestResults: results("a")})
	clock.Advance(100 * time.Millisecond)
	require.Equal(t, StateTalking, e.State())
	<-ch

	e.Close()
	e.Close()

	_, open := <-ch
	assert.False(t, open)
	assert.Zero(t, clock.pending(), "no timer may survive Close")

	e.Update(AppState{Error: "late"})
	assert.Equal(t, StateTalking, e.State())

	late, cancel := e.Subscribe(1)
	cancel()
	_, open = <-late
	assert.False(t, open)
}

func TestEngineReconfigure(t *testing.T) {
	e, clock := newTestEngine(t)

	e.Reconfigure(Timings{Debounce: 10 * time.Millisecond, MinStateDuration: 0, TalkingDuration: 50 * time.Millisecond, HistorySize: 3})
	assert.Equal(t, 10*time.Millisecond, e.Timings().Debounce)

	e.Update(AppState{IsLoading: true})
	clock.Advance(10 * time.Millisecond)
	assert.Equal(t, StateThinking, e.State())

	e.Update(AppState{TestResults: results("a")})
	clock.Advance(10 * time.Millisecond)
	assert.Equal(t, StateTalking, e.State())
	clock.Advance(50 * time.Millisecond)
	assert.Equal(t, StateIdle, e.State())
	assert.Len(t, e.History(), 3)
}

func TestEngineFlushAndSnapshot(t *testing.T) {
	e, _ := newTestEngine(t)
	s := AppState{IsLoading: true, ProgressStatus: "loading"}
	e.Update(s)
	assert.True(t, e.Snapshot().Equal(s))
	assert.Equal(t, StateIdle, e.State())

	e.Flush()
	assert.Equal(t, StateThinking, e.State())
}

func TestEngineInitialState(t *testing.T) {
	e := NewEngine(WithInitialState(StateError), WithInitialState("bogus"))
	defer e.Close()
	assert.Equal(t, StateError, e.State())
}

func TestEngineWithSystemClockLeaksNoGoroutines(t *testing.T) {
	defer goleak.VerifyNone(t)

	e := NewEngine(WithTimings(Timings{Debounce: 5 * time.Millisecond, MinStateDuration: 0, TalkingDuration: 20 * time.Millisecond}))
	ch, _ := e.Subscribe(8)
	e.Update(AppState{TestResults: results("a")})

	select {
	case tr := <-ch:
		assert.Equal(t, StateTalking, tr.To)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for talking")
	}
	select {
	case tr := <-ch:
		assert.Equal(t, StateIdle, tr.To)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for idle")
	}

	e.Update(AppState{IsRequestPending: true})
	e.Close()
}
