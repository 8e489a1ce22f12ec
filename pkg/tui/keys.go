package tui

import "github.com/charmbracelet/bubbles/key"

// paletteKeys maps the home row onto the ten palette keys, low register first
const paletteKeys = "asdfghjkl;"

type keyMap struct {
	Play           key.Binding
	Loop           key.Binding
	Faster         key.Binding
	Slower         key.Binding
	Rest           key.Binding
	Undo           key.Binding
	NewTimeline    key.Binding
	RemoveTimeline key.Binding
	Clear          key.Binding
	Mute           key.Binding
	Next           key.Binding
	Preset         key.Binding
	Help           key.Binding
	Quit           key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Play: key.NewBinding(
			key.WithKeys("p", "enter"),
			key.WithHelp("p", "play/stop"),
		),
		Loop: key.NewBinding(
			key.WithKeys("L"),
			key.WithHelp("L", "loop"),
		),
		Faster: key.NewBinding(
			key.WithKeys("+", "="),
			key.WithHelp("+", "tempo up"),
		),
		Slower: key.NewBinding(
			key.WithKeys("-", "_"),
			key.WithHelp("-", "tempo down"),
		),
		Rest: key.NewBinding(
			key.WithKeys(" "),
			key.WithHelp("space", "rest"),
		),
		Undo: key.NewBinding(
			key.WithKeys("backspace", "delete"),
			key.WithHelp("⌫", "remove last"),
		),
		NewTimeline: key.NewBinding(
			key.WithKeys("n"),
			key.WithHelp("n", "new timeline"),
		),
		RemoveTimeline: key.NewBinding(
			key.WithKeys("x"),
			key.WithHelp("x", "remove timeline"),
		),
		Clear: key.NewBinding(
			key.WithKeys("c"),
			key.WithHelp("c", "clear"),
		),
		Mute: key.NewBinding(
			key.WithKeys("m"),
			key.WithHelp("m", "mute"),
		),
		Next: key.NewBinding(
			key.WithKeys("tab"),
			key.WithHelp("tab", "next timeline"),
		),
		Preset: key.NewBinding(
			key.WithKeys("1", "2", "3"),
			key.WithHelp("1-3", "preset"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "more"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

// ShortHelp implements help.KeyMap
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Play, k.Rest, k.Undo, k.Loop, k.Help, k.Quit}
}

// FullHelp implements help.KeyMap
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Play, k.Loop, k.Faster, k.Slower},
		{k.Rest, k.Undo, k.Clear, k.Preset},
		{k.NewTimeline, k.RemoveTimeline, k.Mute, k.Next},
		{k.Help, k.Quit},
	}
}
