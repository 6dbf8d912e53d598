package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	freelan "github.com/wippyai/freelan-binding"
	"github.com/wippyai/freelan-binding/memtrace"
	"github.com/wippyai/freelan-binding/native"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	typeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	partStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	statsStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#AAAAAA")).
			BorderStyle(lipgloss.NormalBorder()).
			BorderTop(true).
			BorderForeground(lipgloss.Color("#444444"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type interactiveModel struct {
	err      error
	binding  *freelan.Binding
	cfg      *freelan.Config
	report   *memtrace.Report
	types    []typeInfo
	history  []description
	input    textinput.Model
	selected int
	state    modelState
}

type typeInfo struct {
	name  string
	parts []string
}

type modelState int

const (
	stateSelectType modelState = iota
	stateInputValue
	stateShowResult
)

type openedMsg struct {
	err     error
	binding *freelan.Binding
	types   []typeInfo
}

type parsedMsg struct {
	desc   description
	report *memtrace.Report
}

func newInteractiveModel(cfg *freelan.Config, typeName string) *interactiveModel {
	ti := textinput.New()
	ti.Width = 48
	ti.Placeholder = "value"
	return &interactiveModel{
		cfg:   cfg,
		input: ti,
		types: []typeInfo{{name: typeName}},
		state: stateSelectType,
	}
}

func (m *interactiveModel) Init() tea.Cmd {
	return m.open
}

func (m *interactiveModel) open() tea.Msg {
	b, err := freelan.Open(context.Background(), m.cfg)
	if err != nil {
		return openedMsg{err: err}
	}

	var types []typeInfo
	for _, name := range b.Values().TypeNames() {
		typ, err := b.Values().Type(name)
		if err != nil {
			b.Close(context.Background())
			return openedMsg{err: err}
		}
		types = append(types, typeInfo{name: name, parts: typ.Parts()})
	}
	return openedMsg{binding: b, types: types}
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			m.close()
			return m, tea.Quit

		case "q":
			if m.state != stateInputValue {
				m.close()
				return m, tea.Quit
			}

		case "up", "k":
			if m.state == stateSelectType && m.selected > 0 {
				m.selected--
			}

		case "down", "j":
			if m.state == stateSelectType && m.selected < len(m.types)-1 {
				m.selected++
			}

		case "enter":
			switch m.state {
			case stateSelectType:
				if m.binding == nil {
					return m, nil
				}
				m.input.Reset()
				m.input.Prompt = m.types[m.selected].name + ": "
				m.input.Focus()
				m.state = stateInputValue
				return m, textinput.Blink

			case stateInputValue:
				return m, m.parse(m.types[m.selected].name, m.input.Value())

			case stateShowResult:
				m.input.Reset()
				m.input.Focus()
				m.state = stateInputValue
				return m, textinput.Blink
			}

		case "esc":
			switch m.state {
			case stateInputValue, stateShowResult:
				m.input.Blur()
				m.state = stateSelectType
			}
		}

	case openedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.binding = msg.binding
		want := m.types[0].name
		m.types = msg.types
		m.selected = 0
		for i, t := range m.types {
			if t.name == want {
				m.selected = i
			}
		}

	case parsedMsg:
		m.history = append([]description{msg.desc}, m.history...)
		if len(m.history) > 8 {
			m.history = m.history[:8]
		}
		m.report = msg.report
		m.input.Blur()
		m.state = stateShowResult
	}

	if m.state == stateInputValue {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
	return m, nil
}

// parse describes text inside a ledger window, so the result screen shows
// what the parse allocated and whether anything survived it.
func (m *interactiveModel) parse(typeName, text string) tea.Cmd {
	b := m.binding
	return func() tea.Msg {
		var d description
		report, _ := b.Ledger().Check(func() error {
			d, _ = describe(b.Values(), typeName, text)
			b.Quiesce()
			return nil
		})
		return parsedMsg{desc: d, report: report}
	}
}

func (m *interactiveModel) close() {
	if m.binding != nil {
		m.binding.Close(context.Background())
		m.binding = nil
	}
}

func (m *interactiveModel) View() string {
	if m.err != nil {
		return errorStyle.Render(fmt.Sprintf("Error: %v\n\nPress q to quit.", m.err))
	}
	if m.binding == nil {
		return "Opening binding..."
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("freelan values"))
	b.WriteString("\n\n")

	switch m.state {
	case stateSelectType:
		b.WriteString("Select a value type:\n\n")
		for i, t := range m.types {
			if i == m.selected {
				b.WriteString(selectedStyle.Render("> " + t.name))
			} else {
				b.WriteString("  " + typeStyle.Render(t.name))
			}
			b.WriteString(m.formatParts(t))
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ select • enter parse • q quit"))

	case stateInputValue:
		b.WriteString(m.input.View())
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter parse • esc back"))

	case stateShowResult:
		for i, d := range m.history {
			m.writeDescription(&b, d, i == 0)
		}
		if m.report != nil && len(m.report.Leaks) > 0 {
			b.WriteString(errorStyle.Render(m.report.String()))
			b.WriteString("\n")
		}
		b.WriteString(helpStyle.Render("enter parse another • esc types • q quit"))
	}

	b.WriteString("\n")
	b.WriteString(statsStyle.Render(m.formatStats()))
	return b.String()
}

func (m *interactiveModel) writeDescription(b *strings.Builder, d description, latest bool) {
	style := helpStyle
	if latest {
		style = resultStyle
	}
	b.WriteString(typeStyle.Render(d.typeName))
	fmt.Fprintf(b, " %q\n", d.input)
	if d.err != nil {
		b.WriteString("  " + errorStyle.Render(d.err.Error()) + "\n\n")
		return
	}
	b.WriteString("  " + style.Render(d.canonical))
	b.WriteString(helpStyle.Render(fmt.Sprintf("  %#016x", d.hash)))
	b.WriteString("\n")
	for _, p := range d.parts {
		b.WriteString("    " + typeStyle.Render(p.typeName) + " " + partStyle.Render(p.canonical) + "\n")
	}
	b.WriteString("\n")
}

func (m *interactiveModel) formatParts(t typeInfo) string {
	if len(t.parts) == 0 {
		return ""
	}
	parts := make([]string, len(t.parts))
	for i, p := range t.parts {
		parts[i] = partStyle.Render(p)
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

func (m *interactiveModel) formatStats() string {
	ledger := m.binding.Ledger()
	if ledger == nil {
		return "memory tracking disabled"
	}
	s := ledger.Stats()
	line := fmt.Sprintf("live %d B (max %d) • allocs %d • reallocs %d • frees %d • failed %d",
		s.Current, s.Max, s.Allocations, s.Reallocations, s.Frees, s.Failed)
	if m.report != nil {
		line += fmt.Sprintf(" • last parse: %d event(s), %d leak(s)", len(m.report.Events), len(m.report.Leaks))
	}
	return line
}

func runInteractive(cfg *freelan.Config, typeName string) error {
	if typeName == "" {
		typeName = native.IPv4Address
	}
	m := newInteractiveModel(cfg, typeName)
	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err := p.Run()
	m.close()
	return err
}
