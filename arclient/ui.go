package main

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/companyzero/audioroute/client"
	"github.com/companyzero/audioroute/internal/namestore"
	"github.com/companyzero/audioroute/route"
	"github.com/mattn/go-runewidth"
)

const feedLines = 8

// Messages delivered into the watch UI from outside bubbletea.
type (
	stateMsg route.State
	logMsg   string

	// showPickerMsg puts the UI into pick mode. The reply channel
	// resolves the in-flight PickerFunc call.
	showPickerMsg struct {
		opts  client.PickerOpts
		reply chan pickReply
	}

	cmdErrMsg error
)

type pickReply struct {
	dev    route.Device
	chosen bool
}

type watchStyles struct {
	header lipgloss.Style
	active lipgloss.Style
	cursor lipgloss.Style
	dim    lipgloss.Style
	err    lipgloss.Style
}

func newWatchStyles() watchStyles {
	return watchStyles{
		header: lipgloss.NewStyle().Bold(true),
		active: lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
		cursor: lipgloss.NewStyle().Foreground(lipgloss.Color("6")).Bold(true),
		dim:    lipgloss.NewStyle().Foreground(lipgloss.Color("#6b6b6b")),
		err:    lipgloss.NewStyle().Foreground(lipgloss.Color("1")),
	}
}

// watchModel is the live status UI: current route header, device list with a
// cursor, a log feed and keys for the routing intents.
type watchModel struct {
	ctx   context.Context
	c     *client.Client
	names *namestore.Store

	state  route.State
	cursor int
	feed   []string
	width  int

	// Pick mode, entered when a smart route change needs user choice.
	picking   bool
	pickOpts  client.PickerOpts
	pickReply chan pickReply
	pickIdx   int

	styles watchStyles
}

func (m watchModel) Init() tea.Cmd {
	// Seed the view with a direct query; afterwards the event stream
	// keeps it fresh.
	return m.refreshCmd()
}

func (m watchModel) refreshCmd() tea.Cmd {
	return func() tea.Msg {
		st := route.State{
			Devices:  m.c.AvailableDevices(m.ctx),
			Selected: m.c.CurrentDevice(m.ctx),
		}
		return stateMsg(st)
	}
}

func (m *watchModel) pushFeed(line string) {
	m.feed = append(m.feed, line)
	if len(m.feed) > feedLines {
		m.feed = m.feed[len(m.feed)-feedLines:]
	}
}

func (m *watchModel) resolvePick(reply pickReply) {
	if m.pickReply != nil {
		m.pickReply <- reply
	}
	m.picking = false
	m.pickReply = nil
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width

	case stateMsg:
		m.state = route.State(msg)
		if m.cursor >= len(m.state.Devices) {
			m.cursor = maxInt(0, len(m.state.Devices)-1)
		}

	case logMsg:
		m.pushFeed(string(msg))

	case cmdErrMsg:
		if msg != nil {
			m.pushFeed(m.styles.err.Render(fmt.Sprintf("error: %v", msg)))
		}

	case showPickerMsg:
		m.picking = true
		m.pickOpts = msg.opts
		m.pickReply = msg.reply
		m.pickIdx = 0
		for i, d := range msg.opts.Devices {
			if d.ID == msg.opts.SelectedID {
				m.pickIdx = i
				break
			}
		}

	case tea.KeyMsg:
		if m.picking {
			return m.updatePickKey(msg)
		}
		return m.updateKey(msg)
	}

	return m, nil
}

func (m watchModel) updateKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.state.Devices)-1 {
			m.cursor++
		}
	case "enter":
		if m.cursor < len(m.state.Devices) {
			id := m.state.Devices[m.cursor].ID
			return m, func() tea.Msg {
				m.c.SetAudioDevice(m.ctx, id)
				return nil
			}
		}
	case "t":
		return m, func() tea.Msg {
			m.c.ToggleSpeakerReceiver(m.ctx)
			return nil
		}
	case "c":
		return m, func() tea.Msg {
			return cmdErrMsg(m.c.ChangeRoute(m.ctx))
		}
	case "p":
		return m, func() tea.Msg {
			return cmdErrMsg(m.c.ShowRoutePicker(m.ctx))
		}
	case "r":
		return m, m.refreshCmd()
	case "q", "ctrl+c":
		return m, tea.Quit
	}
	return m, nil
}

func (m watchModel) updatePickKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "up", "k":
		if m.pickIdx > 0 {
			m.pickIdx--
		}
	case "down", "j":
		if m.pickIdx < len(m.pickOpts.Devices)-1 {
			m.pickIdx++
		}
	case "enter":
		if m.pickIdx < len(m.pickOpts.Devices) {
			m.resolvePick(pickReply{
				dev:    m.pickOpts.Devices[m.pickIdx],
				chosen: true,
			})
		}
	case "esc", "q":
		m.resolvePick(pickReply{})
	case "ctrl+c":
		m.resolvePick(pickReply{})
		return m, tea.Quit
	}
	return m, nil
}

func (m watchModel) displayName(d route.Device) string {
	if name := m.names.Names()[d.Type]; name != "" {
		return name
	}
	return d.Type.DisplayName()
}

func (m watchModel) viewDeviceList(devs []route.Device, cursor int, activeID string) string {
	b := new(strings.Builder)
	for i, d := range devs {
		prefix := "  "
		if i == cursor {
			prefix = m.styles.cursor.Render("> ")
		}
		label := m.displayName(d)
		if d.ID == activeID {
			label = m.styles.active.Render(label + " (active)")
		}
		id := runewidth.Truncate(d.ID, maxInt(0, m.width-20), "...")
		fmt.Fprintf(b, "%s%s %s\n", prefix, label, m.styles.dim.Render(id))
	}
	return b.String()
}

func (m watchModel) View() string {
	b := new(strings.Builder)

	if m.picking {
		title := m.pickOpts.Title
		if title == "" {
			title = "Select audio output"
		}
		b.WriteString(m.styles.header.Render(title))
		b.WriteString("\n\n")
		b.WriteString(m.viewDeviceList(m.pickOpts.Devices, m.pickIdx,
			m.pickOpts.SelectedID))
		b.WriteString("\n")
		b.WriteString(m.styles.dim.Render("enter: select - esc: cancel"))
		b.WriteString("\n")
		return b.String()
	}

	cur := "undetermined"
	var activeID string
	if m.state.Selected != nil {
		cur = fmt.Sprintf("%s (%s)", m.displayName(*m.state.Selected),
			m.state.Selected.ID)
		activeID = m.state.Selected.ID
	}
	b.WriteString(m.styles.header.Render("Audio route: " + cur))
	b.WriteString("\n\n")

	if len(m.state.Devices) == 0 {
		b.WriteString(m.styles.dim.Render("  no output devices\n"))
	} else {
		b.WriteString(m.viewDeviceList(m.state.Devices, m.cursor, activeID))
	}

	if len(m.feed) > 0 {
		b.WriteString("\n")
		for _, line := range m.feed {
			b.WriteString(m.styles.dim.Render(line))
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(m.styles.dim.Render(
		"enter: switch - t: toggle - c: change route - p: picker - r: refresh - q: quit"))
	b.WriteString("\n")
	return b.String()
}

// runWatchUI runs the live status UI until the user quits or ctx is
// canceled.
func runWatchUI(ctx context.Context, c *client.Client, names *namestore.Store,
	logBknd *logBackend) error {

	m := watchModel{
		ctx:    ctx,
		c:      c,
		names:  names,
		width:  80,
		styles: newWatchStyles(),
	}

	p := tea.NewProgram(m, tea.WithContext(ctx))

	// While the UI is up it owns device selection, so smart route
	// changes resolve through its pick mode instead of a standalone
	// dialog program.
	prevPicker := c.SetPicker(uiPickerFunc(p))
	defer c.SetPicker(prevPicker)

	// Route state changes and log lines into the UI.
	reg := c.Notifications().Register(client.OnRouteChangedNtfn(func(st route.State) {
		p.Send(stateMsg(st))
	}))
	defer reg.Unregister()

	logBknd.logCb = func(line string) { p.Send(logMsg(line)) }
	defer func() { logBknd.logCb = nil }()

	_, err := p.Run()
	return err
}

// uiPickerFunc returns a PickerFunc that resolves selections through the
// watch UI instead of a standalone dialog program.
func uiPickerFunc(p *tea.Program) client.PickerFunc {
	return func(ctx context.Context, opts client.PickerOpts) (route.Device, bool, error) {
		reply := make(chan pickReply, 1)
		p.Send(showPickerMsg{opts: opts, reply: reply})
		select {
		case r := <-reply:
			return r.dev, r.chosen, nil
		case <-ctx.Done():
			return route.Device{}, false, ctx.Err()
		}
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
