// Package picker implements a terminal device selection dialog. The dialog
// is presentational: it renders the offered devices, highlights the active
// one and resolves to the user's choice (or to no choice on dismissal)
// without switching anything itself.
package picker

import (
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/companyzero/audioroute/route"
	"github.com/mattn/go-runewidth"
	"github.com/muesli/reflow/wordwrap"
)

const defaultTitle = "Select audio output"

type styles struct {
	title    lipgloss.Style
	item     lipgloss.Style
	cursor   lipgloss.Style
	active   lipgloss.Style
	deviceID lipgloss.Style
	help     lipgloss.Style
}

func defaultStyles() styles {
	return styles{
		title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")),
		item: lipgloss.NewStyle(),
		cursor: lipgloss.NewStyle().
			Foreground(lipgloss.Color("6")).
			Bold(true),
		active: lipgloss.NewStyle().
			Foreground(lipgloss.Color("2")),
		deviceID: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6b6b6b")),
		help: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6b6b6b")),
	}
}

// DevicesMsg replaces the offered device list while the dialog is open. This
// keeps the dialog live when devices appear or vanish mid-selection.
type DevicesMsg []route.Device

// Model is the bubbletea model of the dialog.
type Model struct {
	devices   []route.Device
	names     map[route.DeviceType]string
	title     string
	currentID string

	cursor int
	width  int

	scanning spinner.Model

	choice    *route.Device
	dismissed bool

	styles styles
}

// Option configures the dialog.
type Option func(*Model)

// WithTitle overrides the dialog title.
func WithTitle(title string) Option {
	return func(m *Model) {
		if title != "" {
			m.title = title
		}
	}
}

// WithDisplayNames overrides the per-type device display names.
func WithDisplayNames(names map[route.DeviceType]string) Option {
	return func(m *Model) {
		m.names = names
	}
}

// WithWidth sets the initial render width. The dialog follows terminal
// resizes afterwards.
func WithWidth(w int) Option {
	return func(m *Model) {
		m.width = w
	}
}

// New creates a dialog offering devices, highlighting currentID as the
// active device when present in the list.
func New(devices []route.Device, currentID string, opts ...Option) Model {
	scanning := spinner.New()
	scanning.Spinner = spinner.Dot

	m := Model{
		devices:   devices,
		title:     defaultTitle,
		currentID: currentID,
		width:     80,
		scanning:  scanning,
		styles:    defaultStyles(),
	}
	for _, opt := range opts {
		opt(&m)
	}

	// Start with the cursor on the active device.
	for i, d := range m.devices {
		if d.ID == m.currentID {
			m.cursor = i
			break
		}
	}
	return m
}

// displayName resolves the label shown for a device.
func (m Model) displayName(d route.Device) string {
	if name, ok := m.names[d.Type]; ok && name != "" {
		return name
	}
	return d.Type.DisplayName()
}

// Choice returns the device the user picked. The bool is false when the
// dialog was dismissed without a selection.
func (m Model) Choice() (route.Device, bool) {
	if m.choice == nil {
		return route.Device{}, false
	}
	return *m.choice, true
}

func (m Model) Init() tea.Cmd {
	return m.scanning.Tick
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width

	case DevicesMsg:
		m.devices = []route.Device(msg)
		if m.cursor >= len(m.devices) {
			m.cursor = max(0, len(m.devices)-1)
		}

	case tea.KeyMsg:
		switch msg.String() {
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}
		case "down", "j":
			if m.cursor < len(m.devices)-1 {
				m.cursor++
			}
		case "enter":
			if m.cursor < len(m.devices) {
				d := m.devices[m.cursor]
				m.choice = &d
				return m, tea.Quit
			}
		case "esc", "q", "ctrl+c":
			m.dismissed = true
			return m, tea.Quit
		}

	case spinner.TickMsg:
		m.scanning, cmd = m.scanning.Update(msg)
	}

	return m, cmd
}

func (m Model) View() string {
	b := new(strings.Builder)

	b.WriteString(m.styles.title.Render(m.title))
	b.WriteString("\n\n")

	if len(m.devices) == 0 {
		b.WriteString(m.scanning.View())
		b.WriteString(" Scanning for devices...\n")
	}

	for i, d := range m.devices {
		cursor := "  "
		if i == m.cursor {
			cursor = m.styles.cursor.Render("> ")
		}

		label := m.displayName(d)
		if d.ID == m.currentID {
			label += " (active)"
		}

		// Truncate the raw id to the width left over after the label.
		idAvail := m.width - 3 - runewidth.StringWidth(label)
		if idAvail < 0 {
			idAvail = 0
		}
		id := runewidth.Truncate(d.ID, idAvail, "...")

		if d.ID == m.currentID {
			label = m.styles.active.Render(label)
		} else {
			label = m.styles.item.Render(label)
		}

		b.WriteString(cursor + label + " " + m.styles.deviceID.Render(id))
		b.WriteRune('\n')
	}

	help := "up/down: navigate - enter: select - esc: cancel"
	b.WriteString("\n")
	b.WriteString(m.styles.help.Render(wordwrap.String(help, m.width)))
	b.WriteString("\n")

	return b.String()
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
