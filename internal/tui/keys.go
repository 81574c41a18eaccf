package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Compare key.Binding
	Demo    key.Binding
	Debug   key.Binding
	Export  key.Binding
	Cancel  key.Binding
	Quit    key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Compare: key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "对比")),
		Demo:    key.NewBinding(key.WithKeys("ctrl+d"), key.WithHelp("ctrl+d", "演示")),
		Debug:   key.NewBinding(key.WithKeys("ctrl+t"), key.WithHelp("ctrl+t", "调试面板")),
		Export:  key.NewBinding(key.WithKeys("ctrl+e"), key.WithHelp("ctrl+e", "导出历史")),
		Cancel:  key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "取消")),
		Quit:    key.NewBinding(key.WithKeys("ctrl+c"), key.WithHelp("ctrl+c", "退出")),
	}
}

// ShortHelp 实现 help.KeyMap
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Compare, k.Demo, k.Debug, k.Export, k.Cancel, k.Quit}
}

// FullHelp 实现 help.KeyMap
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}
