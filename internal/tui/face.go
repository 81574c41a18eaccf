package tui

import (
	"strings"

	"github.com/Zacy-Sokach/RoboDash/internal/robot"
)

// 机器人表情，每个状态两帧：睁眼 / 动画帧
var faces = map[robot.State][2][]string{
	robot.StateIdle: {
		{"  [■]  ", " (o o) ", "  ___  "},
		{"  [■]  ", " (- -) ", "  ___  "},
	},
	robot.StateThinking: {
		{"  [?]  ", " (o O) ", "  ...  "},
		{"  [?]  ", " (O o) ", "   ..  "},
	},
	robot.StateTalking: {
		{"  [!]  ", " (^ ^) ", "  \\O/  "},
		{"  [!]  ", " (^ ^) ", "  \\o/  "},
	},
	robot.StateError: {
		{"  [x]  ", " (x x) ", "  /~\\  "},
		{"  [x]  ", " (x x) ", "  /^\\  "},
	},
}

// Face 返回某状态的表情文本，frame 为奇数时使用第二帧
func Face(s robot.State, frame int) string {
	f, ok := faces[s]
	if !ok {
		f = faces[robot.StateIdle]
	}
	return strings.Join(f[frame%2], "\n")
}
