package tui

import (
	"bytes"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/KaramelBytes/datachat-cli/internal/session"
	"github.com/KaramelBytes/datachat-cli/internal/viz"
)

// renderMessage turns one message into display lines. Messages never
// change after they are appended, so the result is cached by id.
func renderMessage(msg session.Message, width int) []string {
	var lines []string
	stamp := timeStyle.Render(msg.Timestamp.Format("15:04"))
	switch msg.Role {
	case session.RoleUser:
		lines = append(lines, userRoleStyle.Render(" YOU ")+" "+stamp)
	default:
		lines = append(lines, assistantRoleStyle.Render(" ASSISTANT ")+" "+stamp)
	}

	style := answerStyle
	if msg.Role == session.RoleUser {
		style = style.UnsetForeground()
	}
	for _, wl := range wrapText(msg.Text, width-2) {
		lines = append(lines, " "+style.Render(wl))
	}

	if msg.Chart != nil {
		var buf bytes.Buffer
		tr := viz.NewTerminalRenderer(&buf)
		tr.BarWidth = max(10, min(40, width-30))
		tr.MaxRows = 20
		if err := viz.Dispatch(msg.Chart, tr); err != nil {
			lines = append(lines, " "+dimStyle.Render("chart unavailable: "+err.Error()))
		}
		for _, l := range strings.Split(strings.TrimRight(buf.String(), "\n"), "\n") {
			if l != "" {
				lines = append(lines, " "+l)
			}
		}
	}
	return append(lines, "")
}

// wrapText splits text into lines that fit within maxWidth.
func wrapText(text string, maxWidth int) []string {
	if maxWidth < 1 {
		maxWidth = 1
	}
	var result []string
	for _, line := range strings.Split(text, "\n") {
		if line == "" {
			result = append(result, "")
			continue
		}
		var cur []rune
		for _, word := range strings.Fields(line) {
			w := []rune(word)
			if len(cur) > 0 && len(cur)+1+len(w) > maxWidth {
				result = append(result, string(cur))
				cur = cur[:0]
			}
			for len(w) > maxWidth {
				result = append(result, string(w[:maxWidth]))
				w = w[maxWidth:]
			}
			if len(cur) > 0 {
				cur = append(cur, ' ')
			}
			cur = append(cur, w...)
		}
		result = append(result, string(cur))
	}
	return result
}

func writeCharts(dir string, msg session.Message) tea.Cmd {
	spec := msg.Chart
	base := fmt.Sprintf("%s-%s", msg.Timestamp.Format("20060102-150405"), shortID(msg.ID))
	return func() tea.Msg {
		r := viz.NewPNGRenderer(dir, base)
		err := viz.Dispatch(spec, r)
		return chartsWrittenMsg{paths: r.Written, err: err}
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
