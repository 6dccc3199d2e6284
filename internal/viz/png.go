package viz

import (
	"bytes"
	"fmt"
	"math"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/KaramelBytes/datachat-cli/internal/utils"
	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

// PNGRenderer writes bar, line and pie charts as PNG files under Dir.
// Tables, empty results and unsupported kinds produce no file.
type PNGRenderer struct {
	Dir    string
	Base   string
	Width  int
	Height int
	// Written collects the paths of files produced so far.
	Written []string
}

func NewPNGRenderer(dir, base string) *PNGRenderer {
	return &PNGRenderer{Dir: dir, Base: sanitizeBase(base), Width: 1024, Height: 512}
}

var unsafeName = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

func sanitizeBase(s string) string {
	s = strings.Trim(unsafeName.ReplaceAllString(s, "_"), "_")
	if s == "" {
		return "chart"
	}
	return s
}

func hexColor(s string) drawing.Color {
	return drawing.ColorFromHex(strings.TrimPrefix(s, "#"))
}

func (p *PNGRenderer) Empty(string) error     { return nil }
func (p *PNGRenderer) Unsupported(Kind) error { return nil }
func (p *PNGRenderer) Table(TableView) error  { return nil }

func (p *PNGRenderer) write(kind Kind, render func(*bytes.Buffer) error) error {
	var buf bytes.Buffer
	if err := render(&buf); err != nil {
		return fmt.Errorf("render %s chart: %w", kind, err)
	}
	if err := utils.EnsureDir(p.Dir); err != nil {
		return fmt.Errorf("ensure chart dir: %w", err)
	}
	path := filepath.Join(p.Dir, fmt.Sprintf("%s-%s.png", p.Base, kind))
	if err := utils.SafeWriteFile(path, buf.Bytes()); err != nil {
		return err
	}
	p.Written = append(p.Written, path)
	return nil
}

// valueRange returns a non-degenerate y range that includes zero.
func valueRange(vals []float64) *chart.ContinuousRange {
	lo, hi := 0.0, 0.0
	for _, v := range vals {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if hi == lo {
		hi = lo + 1
	}
	return &chart.ContinuousRange{Min: lo, Max: hi}
}

func (p *PNGRenderer) Bar(c Cartesian) error {
	var bars []chart.Value
	var vals []float64
	for i, label := range c.Labels {
		for _, s := range c.Series {
			f, ok := s.Values[i].Float()
			if !ok {
				continue
			}
			name := label
			if len(c.Series) > 1 {
				name = label + " · " + s.Name
			}
			bars = append(bars, chart.Value{
				Label: name,
				Value: f,
				Style: chart.Style{FillColor: hexColor(s.Color), StrokeColor: hexColor(s.Color)},
			})
			vals = append(vals, f)
		}
	}
	if len(bars) == 0 {
		return nil
	}
	bc := chart.BarChart{
		Title:      c.Title,
		Background: chart.Style{Padding: chart.Box{Top: 40}},
		Width:      p.Width,
		Height:     p.Height,
		BarWidth:   barWidth(p.Width, len(bars)),
		YAxis:      chart.YAxis{Range: valueRange(vals)},
		Bars:       bars,
	}
	return p.write(Bar, func(buf *bytes.Buffer) error { return bc.Render(chart.PNG, buf) })
}

func barWidth(width, n int) int {
	w := width / (2 * n)
	if w < 4 {
		return 4
	}
	if w > 60 {
		return 60
	}
	return w
}

func (p *PNGRenderer) Line(c Cartesian) error {
	var series []chart.Series
	var vals []float64
	for _, s := range c.Series {
		var xs, ys []float64
		for i, v := range s.Values {
			if f, ok := v.Float(); ok {
				xs = append(xs, float64(i))
				ys = append(ys, f)
			}
		}
		if len(xs) < 2 {
			continue
		}
		vals = append(vals, ys...)
		series = append(series, chart.ContinuousSeries{
			Name:    s.Name,
			XValues: xs,
			YValues: ys,
			Style:   chart.Style{StrokeColor: hexColor(s.Color), StrokeWidth: 2},
		})
	}
	if len(series) == 0 {
		return nil
	}
	ticks := make([]chart.Tick, len(c.Labels))
	for i, l := range c.Labels {
		ticks[i] = chart.Tick{Value: float64(i), Label: truncate(l, 12)}
	}
	ch := chart.Chart{
		Title:      c.Title,
		Width:      p.Width,
		Height:     p.Height,
		Background: chart.Style{Padding: chart.Box{Top: 40, Left: 16, Right: 12, Bottom: 16}},
		XAxis:      chart.XAxis{Name: Humanize(c.XKey), Ticks: ticks, Range: &chart.ContinuousRange{Min: 0, Max: math.Max(1, float64(len(c.Labels)-1))}},
		YAxis:      chart.YAxis{Range: valueRange(vals)},
		Series:     series,
	}
	ch.Elements = []chart.Renderable{chart.Legend(&ch)}
	return p.write(Line, func(buf *bytes.Buffer) error { return ch.Render(chart.PNG, buf) })
}

func (p *PNGRenderer) Pie(pc PieChart) error {
	if pc.Total <= 0 {
		return nil
	}
	var vals []chart.Value
	for _, s := range pc.Slices {
		if s.Value <= 0 {
			continue
		}
		vals = append(vals, chart.Value{
			Label: fmt.Sprintf("%s (%d%%)", s.Label, s.Percent),
			Value: s.Value,
			Style: chart.Style{FillColor: hexColor(s.Color)},
		})
	}
	side := p.Height
	pie := chart.PieChart{
		Title:  pc.Title,
		Width:  side,
		Height: side,
		Values: vals,
	}
	return p.write(Pie, func(buf *bytes.Buffer) error { return pie.Render(chart.PNG, buf) })
}
