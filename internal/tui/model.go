package tui

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/Zacy-Sokach/RoboDash/internal/events"
	"github.com/Zacy-Sokach/RoboDash/internal/report"
	"github.com/Zacy-Sokach/RoboDash/internal/robot"
	"github.com/Zacy-Sokach/RoboDash/internal/scenario"
	"github.com/Zacy-Sokach/RoboDash/internal/session"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"
)

// Version 是当前的 RoboDash 版本，由 main 包设置
var Version string

const (
	animateInterval  = 600 * time.Millisecond
	transitionBuffer = 16
	eventBuffer      = 64
	// 表情、播报、输入框、帮助等固定区域占用的行数
	chromeHeight = 14
)

// Config 界面依赖
type Config struct {
	Engine    *robot.Engine
	Tracker   *session.Tracker
	Bus       events.Bus
	Models    []string
	ExportDir string
	Logger    *zap.Logger
}

type Model struct {
	engine    *robot.Engine
	tracker   *session.Tracker
	models    []string
	exportDir string
	logger    *zap.Logger

	textarea textarea.Model
	viewport viewport.Model
	spinner  spinner.Model
	help     help.Model
	keys     keyMap

	transitions   <-chan robot.Transition
	sessionEvents <-chan events.Event
	done          <-chan struct{}
	cleanup       func()

	state        robot.State
	announcement string
	results      []robot.ModelResult
	status       string
	frame        int
	showDebug    bool
	running      bool
	cancel       context.CancelFunc
	ready        bool
}

// New 创建界面模型并订阅引擎和事件总线
func New(cfg Config) Model {
	ta := textarea.New()
	ta.Placeholder = "输入提示词，回车发送给所有模型..."
	ta.Focus()
	ta.CharLimit = 0
	ta.SetWidth(80)
	ta.SetHeight(3)
	ta.ShowLineNumbers = false
	ta.KeyMap.InsertNewline.SetEnabled(false)

	vp := viewport.New(80, 10)
	vp.SetContent(mutedStyle.Render("模型输出会显示在这里。"))

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = announcementStyle(robot.StateThinking)

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	exportDir := cfg.ExportDir
	if exportDir == "" {
		exportDir = "."
	}

	transitions, unsubscribe := cfg.Engine.Subscribe(transitionBuffer)

	done := make(chan struct{})
	evCh := make(chan events.Event, eventBuffer)
	unsubscribeBus := func() {}
	if cfg.Bus != nil {
		unsubscribeBus = cfg.Bus.Subscribe(events.Wildcard, events.HandlerFunc(func(e events.Event) {
			select {
			case evCh <- e:
			default:
			}
		}))
	}

	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			unsubscribeBus()
			unsubscribe()
			close(done)
		})
	}

	state := cfg.Engine.State()
	return Model{
		engine:        cfg.Engine,
		tracker:       cfg.Tracker,
		models:        cfg.Models,
		exportDir:     exportDir,
		logger:        logger,
		textarea:      ta,
		viewport:      vp,
		spinner:       sp,
		help:          help.New(),
		keys:          defaultKeyMap(),
		transitions:   transitions,
		sessionEvents: evCh,
		done:          done,
		cleanup:       cleanup,
		state:         state,
		announcement:  robot.Transition{To: state}.Announcement(),
	}
}

// Run 启动全屏界面，退出时释放订阅
func Run(cfg Config) error {
	m := New(cfg)
	defer m.cleanup()

	p := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("界面运行失败: %w", err)
	}
	return nil
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		textarea.Blink,
		m.spinner.Tick,
		waitForTransition(m.transitions),
		waitForEvent(m.sessionEvents, m.done),
		animate(),
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		cmd  tea.Cmd
		cmds []tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			m.shutdown()
			return m, tea.Quit
		case key.Matches(msg, m.keys.Cancel):
			if m.cancel != nil {
				m.cancel()
				m.cancel = nil
				m.status = "正在取消..."
			}
			return m, nil
		case key.Matches(msg, m.keys.Compare):
			prompt := strings.TrimSpace(m.textarea.Value())
			if prompt == "" {
				return m, nil
			}
			if m.running {
				m.status = "已有任务在运行，Esc 取消"
				return m, nil
			}
			m.textarea.Reset()
			return m, m.startCompare(prompt)
		case key.Matches(msg, m.keys.Demo):
			if m.running {
				m.status = "已有任务在运行，Esc 取消"
				return m, nil
			}
			return m, m.startDemo()
		case key.Matches(msg, m.keys.Debug):
			m.showDebug = !m.showDebug
			return m, nil
		case key.Matches(msg, m.keys.Export):
			return m, m.export()
		}

	case tea.WindowSizeMsg:
		height := msg.Height - chromeHeight - len(m.models)
		if height < 3 {
			height = 3
		}
		m.viewport.Width = msg.Width
		m.viewport.Height = height
		m.textarea.SetWidth(msg.Width)
		m.help.Width = msg.Width
		m.ready = true
		return m, nil

	case TransitionMsg:
		m.state = msg.Transition.To
		m.announcement = msg.Transition.Announcement()
		return m, waitForTransition(m.transitions)

	case SessionEventMsg:
		switch msg.Event.Type {
		case events.TypeStreamStarted, events.TypeStreamChunk:
			m.showStreaming()
		case events.TypeStreamFinished:
			if model, ok := msg.Event.Data["model"].(string); ok {
				m.status = fmt.Sprintf("%s 完成", model)
			}
		}
		return m, waitForEvent(m.sessionEvents, m.done)

	case CompareDoneMsg:
		m.running = false
		m.cancel = nil
		m.results = msg.Results
		switch {
		case errors.Is(msg.Err, context.Canceled):
			m.status = "已取消"
		case msg.Err != nil:
			m.status = errorStyle.Render("对比失败: " + msg.Err.Error())
		default:
			m.status = fmt.Sprintf("完成，共 %d 个模型", len(msg.Results))
		}
		m.showResults()
		return m, nil

	case DemoDoneMsg:
		m.running = false
		m.cancel = nil
		switch {
		case errors.Is(msg.Err, context.Canceled):
			m.status = "演示已停止"
		case msg.Err != nil:
			m.status = errorStyle.Render("演示失败: " + msg.Err.Error())
		default:
			m.status = "演示结束"
		}
		return m, nil

	case ExportDoneMsg:
		if msg.Err != nil {
			m.status = errorStyle.Render("导出失败: " + msg.Err.Error())
			m.logger.Warn("export history failed", zap.Error(msg.Err))
		} else {
			m.status = "历史已导出到 " + msg.Path
		}
		return m, nil

	case AnimateMsg:
		m.frame++
		return m, animate()

	case spinner.TickMsg:
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	m.textarea, cmd = m.textarea.Update(msg)
	cmds = append(cmds, cmd)

	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m Model) View() string {
	if !m.ready {
		return "初始化中..."
	}

	var sb strings.Builder
	sb.WriteString(titleStyle.Render("RoboDash"))
	if Version != "" {
		sb.WriteString(mutedStyle.Render(" " + Version))
	}
	sb.WriteString("\n")

	face := faceStyle(m.state).Render(Face(m.state, m.frame))
	sb.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, face, "  ", m.sideView()))
	sb.WriteString("\n")

	sb.WriteString(m.viewport.View())
	sb.WriteString("\n")
	sb.WriteString(m.textarea.View())
	sb.WriteString("\n")

	if m.showDebug {
		sb.WriteString(debugBoxStyle.Render(historyView(m.engine.History())))
		sb.WriteString("\n")
	}
	sb.WriteString(m.help.View(m.keys))
	return sb.String()
}

// sideView 表情右侧：播报文本、状态和每个模型的指标摘要
func (m Model) sideView() string {
	var lines []string

	announcement := announcementStyle(m.state).Render(m.announcement)
	if m.state == robot.StateThinking {
		announcement = m.spinner.View() + " " + announcement
	}
	lines = append(lines, announcement)

	if m.status != "" {
		lines = append(lines, m.status)
	} else {
		lines = append(lines, mutedStyle.Render(fmt.Sprintf("模型: %s", strings.Join(m.models, ", "))))
	}

	for _, r := range m.results {
		lines = append(lines, metricsSummary(r))
	}
	return strings.Join(lines, "\n")
}

func (m *Model) startCompare(prompt string) tea.Cmd {
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.running = true
	m.results = nil
	m.status = fmt.Sprintf("正在对比 %d 个模型...", len(m.models))
	m.viewport.SetContent("")

	tracker, models := m.tracker, m.models
	return func() tea.Msg {
		defer cancel()
		results, err := tracker.Compare(ctx, prompt, models)
		return CompareDoneMsg{Results: results, Err: err}
	}
}

func (m *Model) startDemo() tea.Cmd {
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.running = true
	m.status = "正在播放演示剧本，Esc 停止"

	engine, logger := m.engine, m.logger
	player := scenario.NewPlayer(scenario.Demo(), scenario.WithStepHook(func(_ int, step scenario.Step) {
		logger.Debug("demo step", zap.String("note", step.Note))
	}))
	return func() tea.Msg {
		defer cancel()
		return DemoDoneMsg{Err: player.Play(ctx, engine)}
	}
}

func (m Model) export() tea.Cmd {
	history := m.engine.History()
	path := filepath.Join(m.exportDir, report.DefaultFileName(time.Now(), ".md"))
	return func() tea.Msg {
		return ExportDoneMsg{Path: path, Err: report.Save(path, history)}
	}
}

func (m *Model) showStreaming() {
	if m.tracker == nil {
		return
	}
	m.viewport.SetContent(m.tracker.State().StreamingContent)
	m.viewport.GotoBottom()
}

func (m *Model) showResults() {
	var sb strings.Builder
	for _, r := range m.results {
		sb.WriteString(modelStyle.Render(r.ModelID))
		sb.WriteString("\n")
		sb.WriteString(r.Output)
		sb.WriteString("\n\n")
	}
	m.viewport.SetContent(sb.String())
	m.viewport.GotoTop()
}

func (m *Model) shutdown() {
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.cleanup()
}

func metricsSummary(r robot.ModelResult) string {
	return fmt.Sprintf("%s  首字 %s · 用时 %s · %d tokens · %.1f tok/s",
		modelStyle.Render(r.ModelID),
		r.Metrics.FirstTokenLatency.Round(time.Millisecond),
		r.Metrics.Duration.Round(time.Millisecond),
		r.Metrics.Tokens,
		r.Metrics.TokensPerSecond())
}

func historyView(entries []robot.Transition) string {
	if len(entries) == 0 {
		return mutedStyle.Render("暂无切换记录")
	}
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, fmt.Sprintf("%s  %s → %s  %s",
			e.Timestamp.Format("15:04:05.000"), e.From, e.To, e.Reason))
	}
	return strings.Join(lines, "\n")
}

func waitForTransition(ch <-chan robot.Transition) tea.Cmd {
	return func() tea.Msg {
		t, ok := <-ch
		if !ok {
			return nil
		}
		return TransitionMsg{Transition: t}
	}
}

func waitForEvent(ch <-chan events.Event, done <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		select {
		case e := <-ch:
			return SessionEventMsg{Event: e}
		case <-done:
			return nil
		}
	}
}

func animate() tea.Cmd {
	return tea.Tick(animateInterval, func(t time.Time) tea.Msg {
		return AnimateMsg{Time: t}
	})
}
