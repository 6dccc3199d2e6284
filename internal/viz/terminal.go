package viz

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true)
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	sparkRunes  = []rune("▁▂▃▄▅▆▇█")
)

// TerminalRenderer draws charts as styled text.
type TerminalRenderer struct {
	w io.Writer
	// BarWidth is the width of the longest bar in cells.
	BarWidth int
	// MaxRows caps table output; 0 means no cap.
	MaxRows int
}

func NewTerminalRenderer(w io.Writer) *TerminalRenderer {
	return &TerminalRenderer{w: w, BarWidth: 40, MaxRows: 50}
}

func (t *TerminalRenderer) title(s string) {
	if s != "" {
		fmt.Fprintln(t.w, titleStyle.Render(s))
	}
}

func (t *TerminalRenderer) Empty(title string) error {
	t.title(title)
	_, err := fmt.Fprintln(t.w, dimStyle.Render("No data to display."))
	return err
}

func (t *TerminalRenderer) Unsupported(kind Kind) error {
	_, err := fmt.Fprintf(t.w, "Chart type %q is not supported.\n", string(kind))
	return err
}

func (t *TerminalRenderer) legend(series []Series) {
	parts := make([]string, 0, len(series))
	for _, s := range series {
		sw := lipgloss.NewStyle().Foreground(lipgloss.Color(s.Color)).Render("■")
		parts = append(parts, sw+" "+s.Name)
	}
	if len(parts) > 0 {
		fmt.Fprintln(t.w, strings.Join(parts, "  "))
	}
}

func (t *TerminalRenderer) Bar(c Cartesian) error {
	t.title(c.Title)
	t.legend(c.Series)
	maxAbs := 0.0
	for _, s := range c.Series {
		for _, v := range s.Values {
			if f, ok := v.Float(); ok && math.Abs(f) > maxAbs {
				maxAbs = math.Abs(f)
			}
		}
	}
	lw := labelWidth(c.Labels)
	width := t.BarWidth
	if width <= 0 {
		width = 40
	}
	for i, label := range c.Labels {
		for j, s := range c.Series {
			name := ""
			if j == 0 {
				name = label
			}
			cell := padRight(truncate(name, lw), lw)
			f, ok := s.Values[i].Float()
			if !ok {
				fmt.Fprintf(t.w, "%s │ %s\n", cell, dimStyle.Render("n/a"))
				continue
			}
			n := 0
			if maxAbs > 0 {
				n = int(math.Round(math.Abs(f) / maxAbs * float64(width)))
			}
			bar := lipgloss.NewStyle().Foreground(lipgloss.Color(s.Color)).Render(strings.Repeat("█", n))
			fmt.Fprintf(t.w, "%s │ %s %s\n", cell, bar, FormatNumber(f))
		}
	}
	return nil
}

func (t *TerminalRenderer) Line(c Cartesian) error {
	t.title(c.Title)
	nw := 0
	for _, s := range c.Series {
		if len(s.Name) > nw {
			nw = len(s.Name)
		}
	}
	for _, s := range c.Series {
		lo, hi := math.Inf(1), math.Inf(-1)
		for _, v := range s.Values {
			if f, ok := v.Float(); ok {
				lo = math.Min(lo, f)
				hi = math.Max(hi, f)
			}
		}
		var b strings.Builder
		for _, v := range s.Values {
			f, ok := v.Float()
			if !ok {
				b.WriteRune(' ')
				continue
			}
			idx := 0
			if hi > lo {
				idx = int(math.Round((f - lo) / (hi - lo) * float64(len(sparkRunes)-1)))
			}
			b.WriteRune(sparkRunes[idx])
		}
		line := lipgloss.NewStyle().Foreground(lipgloss.Color(s.Color)).Render(b.String())
		rng := dimStyle.Render("no values")
		if !math.IsInf(lo, 1) {
			rng = dimStyle.Render(fmt.Sprintf("min %s  max %s", FormatNumber(lo), FormatNumber(hi)))
		}
		fmt.Fprintf(t.w, "%s %s  %s\n", padRight(s.Name, nw), line, rng)
	}
	if n := len(c.Labels); n > 0 {
		fmt.Fprintln(t.w, dimStyle.Render(fmt.Sprintf("%s: %s … %s (%d points)", Humanize(c.XKey), c.Labels[0], c.Labels[n-1], n)))
	}
	return nil
}

func (t *TerminalRenderer) Pie(p PieChart) error {
	t.title(p.Title)
	labels := make([]string, len(p.Slices))
	for i, s := range p.Slices {
		labels[i] = s.Label
	}
	lw := labelWidth(labels)
	for _, s := range p.Slices {
		dot := lipgloss.NewStyle().Foreground(lipgloss.Color(s.Color)).Render("●")
		fmt.Fprintf(t.w, "%s %s %4d%%  %s\n", dot, padRight(truncate(s.Label, lw), lw), s.Percent, FormatNumber(s.Value))
	}
	fmt.Fprintln(t.w, dimStyle.Render(fmt.Sprintf("%s by %s, total %s", Humanize(p.ValueKey), Humanize(p.LabelKey), FormatNumber(p.Total))))
	return nil
}

func (t *TerminalRenderer) Table(v TableView) error {
	t.title(v.Title)
	headers := make([]string, len(v.Columns))
	for i, c := range v.Columns {
		headers[i] = c.Header
	}
	rows := v.Rows
	more := 0
	if t.MaxRows > 0 && len(rows) > t.MaxRows {
		more = len(rows) - t.MaxRows
		rows = rows[:t.MaxRows]
	}
	tbl := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(borderStyle).
		Headers(headers...).
		Rows(rows...)
	fmt.Fprintln(t.w, tbl.Render())
	if more > 0 {
		fmt.Fprintln(t.w, dimStyle.Render(fmt.Sprintf("… %d more rows", more)))
	}
	return nil
}

// FormatNumber prints integers without decimals and other values with at
// most two.
func FormatNumber(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatFloat(f, 'f', 0, 64)
	}
	s := strconv.FormatFloat(f, 'f', 2, 64)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}

func labelWidth(labels []string) int {
	w := 1
	for _, l := range labels {
		if n := len([]rune(l)); n > w {
			w = n
		}
	}
	if w > 24 {
		w = 24
	}
	return w
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}

func padRight(s string, n int) string {
	r := []rune(s)
	if len(r) >= n {
		return s
	}
	return s + strings.Repeat(" ", n-len(r))
}
