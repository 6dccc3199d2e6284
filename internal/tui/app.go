package tui

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/KaramelBytes/datachat-cli/internal/flow"
	"github.com/KaramelBytes/datachat-cli/internal/session"
)

// stateChangedMsg tells the model to re-read the store. It carries no
// state: notifications may arrive out of order, the snapshot never does.
type stateChangedMsg struct{}

type uploadDoneMsg struct{ err error }

type queryDoneMsg struct {
	msg session.Message
	err error
}

type chartsWrittenMsg struct {
	paths []string
	err   error
}

// Options configure the chat program.
type Options struct {
	BackendURL  string
	ChartDir    string // PNGs are written here after each charted answer; empty disables
	InitialFile string
}

type Model struct {
	ctx  context.Context
	ctrl *flow.Controller
	opts Options

	state    session.State
	width    int
	height   int
	pending  string // file being uploaded
	status   string
	rejected bool

	pathInput     textinput.Model
	questionInput textinput.Model
	spin          spinner.Model

	lines    []string
	cache    map[string][]string
	cacheW   int
	offset   int
	follow   bool
	quitting bool
}

func NewModel(ctx context.Context, ctrl *flow.Controller, opts Options) Model {
	pi := textinput.New()
	pi.Placeholder = "path/to/data.csv (drop a file here)"
	pi.CharLimit = 1024
	pi.Focus()
	if opts.InitialFile != "" {
		pi.SetValue(opts.InitialFile)
	}

	qi := textinput.New()
	qi.Placeholder = "Ask a question about your data..."
	qi.CharLimit = 2000

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = statusStyle

	return Model{
		ctx:           ctx,
		ctrl:          ctrl,
		opts:          opts,
		state:         ctrl.Store().Snapshot(),
		pending:       opts.InitialFile,
		width:         100,
		height:        30,
		pathInput:     pi,
		questionInput: qi,
		spin:          sp,
		cache:         make(map[string][]string),
		follow:        true,
	}
}

// Subscribe forwards store transitions to p. Sends run on their own
// goroutine so a transition made from inside Update never blocks on the
// program's message loop.
func Subscribe(store *session.Store, p *tea.Program) {
	store.Subscribe(func(session.State) {
		go p.Send(stateChangedMsg{})
	})
}

func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{textinput.Blink, m.spin.Tick}
	if m.opts.InitialFile != "" {
		cmds = append(cmds, m.startUpload(m.opts.InitialFile))
	}
	return tea.Batch(cmds...)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.questionInput.Width = max(10, msg.Width-6)
		m.pathInput.Width = max(10, msg.Width-12)
		m.relayout()
		return m, nil

	case stateChangedMsg:
		prev := m.state.Screen
		m.state = m.ctrl.Store().Snapshot()
		if prev != session.ScreenChat && m.state.Screen == session.ScreenChat {
			m.pathInput.Blur()
			m.questionInput.Focus()
		}
		m.relayout()
		return m, nil

	case uploadDoneMsg:
		m.pending = ""
		switch {
		case msg.err == nil:
			m.status = ""
		case errors.Is(msg.err, flow.ErrRejected):
			m.rejected = true
			m.status = "Only .csv, .xls and .xlsx files are accepted."
		case errors.Is(msg.err, flow.ErrStale):
			m.status = "Upload cancelled."
		case errors.Is(msg.err, flow.ErrNotUploadScreen):
			// another upload owns the session
		default:
			m.status = "Upload failed. Details are in the log file."
		}
		return m, nil

	case queryDoneMsg:
		if msg.err == nil && msg.msg.Chart != nil && m.opts.ChartDir != "" {
			return m, writeCharts(m.opts.ChartDir, msg.msg)
		}
		return m, nil

	case chartsWrittenMsg:
		switch {
		case msg.err != nil:
			m.status = "Could not save chart: " + msg.err.Error()
		case len(msg.paths) > 0:
			m.status = "Chart saved to " + strings.Join(msg.paths, ", ")
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			m.ctrl.Close()
			m.quitting = true
			return m, tea.Quit
		case "esc":
			if m.state.Screen == session.ScreenLoading || m.state.Busy {
				m.ctrl.Cancel()
			}
			return m, nil
		}
		switch m.state.Screen {
		case session.ScreenUpload:
			return m.updateUpload(msg)
		case session.ScreenChat:
			return m.updateChat(msg)
		}
	}
	return m, nil
}

func (m Model) updateUpload(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "enter" {
		if m.pending != "" {
			return m, nil
		}
		paths := SplitPaths(m.pathInput.Value())
		if len(paths) == 0 {
			return m, nil
		}
		// The drop zone rejects non-spreadsheets without touching state.
		if _, err := flow.Accept(paths[0], ""); err != nil {
			m.rejected = true
			m.status = "Only .csv, .xls and .xlsx files are accepted."
			return m, nil
		}
		m.rejected = false
		m.status = ""
		m.pending = paths[0]
		return m, m.startUpload(paths...)
	}
	var cmd tea.Cmd
	m.pathInput, cmd = m.pathInput.Update(msg)
	if m.rejected {
		m.rejected = false
		m.status = ""
	}
	return m, cmd
}

func (m Model) startUpload(paths ...string) tea.Cmd {
	ctx, ctrl := m.ctx, m.ctrl
	return func() tea.Msg {
		_, err := ctrl.Upload(ctx, paths...)
		return uploadDoneMsg{err: err}
	}
}

func (m Model) updateChat(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		q := strings.TrimSpace(m.questionInput.Value())
		if q == "" || m.state.Busy {
			return m, nil
		}
		m.questionInput.SetValue("")
		m.follow = true
		m.status = ""
		ctx, ctrl := m.ctx, m.ctrl
		return m, func() tea.Msg {
			reply, err := ctrl.Ask(ctx, q)
			return queryDoneMsg{msg: reply, err: err}
		}
	case "ctrl+l":
		m.ctrl.Store().ClearMessages()
		m.offset = 0
		return m, nil
	case "up":
		m.scroll(-1)
		return m, nil
	case "down":
		m.scroll(1)
		return m, nil
	case "pgup":
		m.scroll(-m.logRows())
		return m, nil
	case "pgdown":
		m.scroll(m.logRows())
		return m, nil
	case "end":
		m.follow = true
		m.relayout()
		return m, nil
	}
	var cmd tea.Cmd
	m.questionInput, cmd = m.questionInput.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}
	switch m.state.Screen {
	case session.ScreenLoading:
		return m.viewLoading()
	case session.ScreenChat:
		return m.viewChat()
	default:
		return m.viewUpload()
	}
}

func (m Model) header() string {
	parts := []string{"datachat"}
	if m.state.FileName != "" {
		parts = append(parts, m.state.FileName)
	}
	if m.opts.BackendURL != "" {
		parts = append(parts, m.opts.BackendURL)
	}
	return titleStyle.Render(strings.Join(parts, " · "))
}

func (m Model) viewUpload() string {
	var b strings.Builder
	b.WriteString(m.header())
	b.WriteString("\n\n")
	zone := dropZoneStyle
	if m.rejected {
		zone = rejectZoneStyle
	}
	body := "Drop a spreadsheet here or type its path.\n" +
		dimStyle.Render("Accepted: .csv, .xls, .xlsx") + "\n\n" +
		inputStyle.Render(m.pathInput.View())
	b.WriteString(zone.Render(body))
	b.WriteString("\n")
	if m.status != "" {
		style := statusStyle
		if m.rejected {
			style = rejectStyle
		}
		b.WriteString("\n" + style.Render(m.status) + "\n")
	}
	b.WriteString("\n" + helpStyle.Render("  Enter: upload  Ctrl+C: quit"))
	return b.String()
}

func (m Model) viewLoading() string {
	var b strings.Builder
	b.WriteString(m.header())
	b.WriteString("\n\n  ")
	b.WriteString(m.spin.View())
	name := m.pending
	if name == "" {
		name = "file"
	}
	b.WriteString(fmt.Sprintf(" Uploading %s and preparing your data...\n", name))
	b.WriteString("\n" + helpStyle.Render("  Esc: cancel  Ctrl+C: quit"))
	return b.String()
}

func (m Model) viewChat() string {
	var b strings.Builder
	b.WriteString(m.header())
	b.WriteString("\n")
	b.WriteString(dimStyle.Render(schemaLine(m.state.Schema)))
	b.WriteString("\n")

	visible := m.logRows()
	end := min(m.offset+visible, len(m.lines))
	for i := m.offset; i < end; i++ {
		b.WriteString(m.lines[i])
		b.WriteString("\n")
	}
	for i := end - m.offset; i < visible; i++ {
		b.WriteString("\n")
	}

	switch {
	case m.state.Busy:
		b.WriteString(m.spin.View() + " Thinking... " + dimStyle.Render("(Esc to cancel)"))
	case m.status != "":
		b.WriteString(statusStyle.Render(m.status))
	}
	b.WriteString("\n")
	b.WriteString(inputStyle.Render(m.questionInput.View()))
	b.WriteString("\n")
	b.WriteString(helpStyle.Render("  Enter: ask  ↑/↓ PgUp/PgDn: scroll  Ctrl+L: clear  Esc: cancel  Ctrl+C: quit"))
	return b.String()
}

func schemaLine(schema map[string][]session.Column) string {
	if len(schema) == 0 {
		return ""
	}
	tables := make([]string, 0, len(schema))
	for name := range schema {
		tables = append(tables, name)
	}
	sort.Strings(tables)
	parts := make([]string, len(tables))
	for i, name := range tables {
		parts[i] = fmt.Sprintf("%s (%d columns)", name, len(schema[name]))
	}
	return "  tables: " + strings.Join(parts, ", ")
}

// logRows is the height of the message log: header, schema line, status,
// input and help take five lines.
func (m Model) logRows() int {
	return max(1, m.height-5)
}

func (m *Model) scroll(n int) {
	maxOffset := max(0, len(m.lines)-m.logRows())
	m.offset = min(max(0, m.offset+n), maxOffset)
	m.follow = m.offset == maxOffset
}

// relayout rebuilds the log lines from the cached per-message rendering.
func (m *Model) relayout() {
	width := max(40, m.width-2)
	if width != m.cacheW {
		m.cache = make(map[string][]string)
		m.cacheW = width
	}
	live := make(map[string]bool, len(m.state.Messages))
	m.lines = make([]string, 0, len(m.lines))
	for _, msg := range m.state.Messages {
		live[msg.ID] = true
		rendered, ok := m.cache[msg.ID]
		if !ok {
			rendered = renderMessage(msg, width)
			m.cache[msg.ID] = rendered
		}
		m.lines = append(m.lines, rendered...)
	}
	for id := range m.cache {
		if !live[id] {
			delete(m.cache, id)
		}
	}
	maxOffset := max(0, len(m.lines)-m.logRows())
	if m.follow || m.offset > maxOffset {
		m.offset = maxOffset
	}
}

// SplitPaths parses a pasted or dropped list of paths. Terminals quote
// paths with spaces or escape the spaces with backslashes.
func SplitPaths(s string) []string {
	var (
		out   []string
		cur   strings.Builder
		quote rune
		esc   bool
	)
	flush := func() {
		if cur.Len() > 0 {
			out = append(out, cur.String())
			cur.Reset()
		}
	}
	for _, r := range strings.TrimSpace(s) {
		switch {
		case esc:
			cur.WriteRune(r)
			esc = false
		case r == '\\' && quote != '\'':
			esc = true
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				cur.WriteRune(r)
			}
		case r == '\'' || r == '"':
			quote = r
		case r == ' ' || r == '\t' || r == '\n':
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return out
}
