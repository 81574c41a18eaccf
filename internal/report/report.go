package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Zacy-Sokach/RoboDash/internal/robot"
	"github.com/russross/blackfriday/v2"
)

// ErrUnsupportedFormat 无法根据扩展名确定导出格式
var ErrUnsupportedFormat = errors.New("不支持的导出格式")

const timeLayout = "15:04:05.000"

// Markdown 生成状态切换历史的 Markdown 报告
func Markdown(entries []robot.Transition) string {
	var sb strings.Builder

	sb.WriteString("# Robot state history\n\n")
	if len(entries) == 0 {
		sb.WriteString("_No transitions recorded._\n")
		return sb.String()
	}

	sb.WriteString("| # | Time | From | To | Reason |\n")
	sb.WriteString("|---|------|------|----|--------|\n")
	for i, e := range entries {
		fmt.Fprintf(&sb, "| %d | %s | %s | %s | %s |\n",
			i+1, e.Timestamp.Format(timeLayout), e.From, e.To, escapeCell(e.Reason))
	}

	sb.WriteString("\n## Time in state\n\n")
	sb.WriteString("| State | Entered | Time |\n")
	sb.WriteString("|-------|---------|------|\n")
	counts, spent := summarize(entries)
	for _, s := range robot.AllStates() {
		if counts[s] == 0 {
			continue
		}
		fmt.Fprintf(&sb, "| %s | %d | %s |\n", s, counts[s], spent[s].Round(time.Millisecond))
	}
	return sb.String()
}

// HTML 把 Markdown 报告渲染成完整的 HTML 页面
func HTML(entries []robot.Transition) []byte {
	body := blackfriday.Run([]byte(Markdown(entries)),
		blackfriday.WithExtensions(blackfriday.CommonExtensions|blackfriday.Tables))

	var sb strings.Builder
	sb.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n")
	sb.WriteString("<title>Robot state history</title>\n</head>\n<body>\n")
	sb.Write(body)
	sb.WriteString("</body>\n</html>\n")
	return []byte(sb.String())
}

// WriteJSON 以缩进 JSON 写出历史
func WriteJSON(w io.Writer, entries []robot.Transition) error {
	if entries == nil {
		entries = []robot.Transition{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(entries); err != nil {
		return fmt.Errorf("序列化历史失败: %w", err)
	}
	return nil
}

// ReadJSON 读取 WriteJSON 写出的历史
func ReadJSON(r io.Reader) ([]robot.Transition, error) {
	var entries []robot.Transition
	if err := json.NewDecoder(r).Decode(&entries); err != nil {
		return nil, fmt.Errorf("解析历史失败: %w", err)
	}
	for i, e := range entries {
		if !e.From.Valid() || !e.To.Valid() {
			return nil, fmt.Errorf("第 %d 条记录: %w", i+1, robot.ErrUnknownState)
		}
	}
	return entries, nil
}

// Save 按扩展名选择格式写入文件：.md/.markdown、.html/.htm、.json
func Save(path string, entries []robot.Transition) error {
	var data []byte
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown":
		data = []byte(Markdown(entries))
	case ".html", ".htm":
		data = HTML(entries)
	case ".json":
		var sb strings.Builder
		if err := WriteJSON(&sb, entries); err != nil {
			return err
		}
		data = []byte(sb.String())
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(path))
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("创建导出目录失败: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("写入报告失败: %w", err)
	}
	return nil
}

// Load 读取 JSON 历史文件
func Load(path string) ([]robot.Transition, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开历史文件失败: %w", err)
	}
	defer f.Close()
	return ReadJSON(f)
}

// DefaultFileName 按时间生成导出文件名
func DefaultFileName(now time.Time, ext string) string {
	return "robot-history-" + now.Format("20060102-150405") + ext
}

// summarize 统计每个状态的进入次数和停留时间，最后一个状态不计时
func summarize(entries []robot.Transition) (map[robot.State]int, map[robot.State]time.Duration) {
	counts := make(map[robot.State]int)
	spent := make(map[robot.State]time.Duration)
	for i, e := range entries {
		counts[e.To]++
		if i+1 < len(entries) {
			spent[e.To] += entries[i+1].Timestamp.Sub(e.Timestamp)
		}
	}
	return counts, spent
}

func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", " ")
}
