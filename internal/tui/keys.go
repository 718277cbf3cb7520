package tui

import "github.com/charmbracelet/bubbles/key"

type KeyMap struct {
	Up     key.Binding
	Down   key.Binding
	Left   key.Binding
	Right  key.Binding
	Field  key.Binding // toggle pickup/destination
	Submit key.Binding
	Back   key.Binding
	Quit   key.Binding
}

var DefaultKeyMap = KeyMap{
	Up:     key.NewBinding(key.WithKeys("up"), key.WithHelp("↑", "up")),
	Down:   key.NewBinding(key.WithKeys("down"), key.WithHelp("↓", "down")),
	Left:   key.NewBinding(key.WithKeys("left"), key.WithHelp("←", "prev vehicle")),
	Right:  key.NewBinding(key.WithKeys("right"), key.WithHelp("→", "next vehicle")),
	Field:  key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "switch field")),
	Submit: key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "select")),
	Back:   key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back")),
	Quit:   key.NewBinding(key.WithKeys("ctrl+c"), key.WithHelp("ctrl+c", "quit")),
}

func (k KeyMap) help(bindings ...key.Binding) string {
	parts := make([]string, 0, len(bindings))
	for _, b := range bindings {
		h := b.Help()
		parts = append(parts, h.Key+" "+h.Desc)
	}
	return joinDots(parts)
}
