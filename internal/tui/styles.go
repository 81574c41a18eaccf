package tui

import (
	"github.com/Zacy-Sokach/RoboDash/internal/robot"
	"github.com/charmbracelet/lipgloss"
)

// 每个状态对应的终端颜色
var stateColors = map[robot.State]lipgloss.Color{
	robot.StateIdle:     lipgloss.Color("8"),
	robot.StateThinking: lipgloss.Color("11"),
	robot.StateTalking:  lipgloss.Color("10"),
	robot.StateError:    lipgloss.Color("9"),
}

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	mutedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	modelStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	debugBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("8")).
			Padding(0, 1)
)

func faceStyle(s robot.State) lipgloss.Style {
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(stateColors[s]).
		Foreground(stateColors[s]).
		Padding(0, 2)
}

func announcementStyle(s robot.State) lipgloss.Style {
	return lipgloss.NewStyle().Bold(true).Foreground(stateColors[s])
}
