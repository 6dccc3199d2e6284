package viz

import (
	"math"

	"github.com/KaramelBytes/datachat-cli/internal/record"
)

// Palette is the fixed series palette, cycled by series index.
var Palette = []string{
	"#8884d8",
	"#82ca9d",
	"#ffc658",
	"#ff7300",
	"#0088fe",
	"#00c49f",
	"#ffbb28",
	"#ff8042",
}

// Color returns the palette entry for series i.
func Color(i int) string {
	if i < 0 {
		i = -i
	}
	return Palette[i%len(Palette)]
}

// Series is one y-field of a bar or line chart. Values are numbers or null.
type Series struct {
	Key    string
	Name   string
	Color  string
	Values []record.Value
}

// Cartesian is the input of the bar and line renderers.
type Cartesian struct {
	Title  string
	XKey   string
	Labels []string
	Series []Series
}

// Slice is one pie wedge. Percent is the whole-percent share of the total.
type Slice struct {
	Label   string
	Value   float64
	Percent int
	Color   string
}

// PieChart is the input of the pie renderer.
type PieChart struct {
	Title    string
	LabelKey string
	ValueKey string
	Total    float64
	Slices   []Slice
}

// Column is one table column.
type Column struct {
	Key    string
	Header string
}

// TableView is the input of the table renderer.
type TableView struct {
	Title   string
	Columns []Column
	Rows    [][]string
}

// Renderer draws a resolved chart. Implementations must tolerate null values.
type Renderer interface {
	Empty(title string) error
	Unsupported(kind Kind) error
	Bar(c Cartesian) error
	Line(c Cartesian) error
	Pie(p PieChart) error
	Table(t TableView) error
}

// Dispatch resolves spec and routes it to the matching renderer branch.
// Empty data short-circuits before key resolution runs.
func Dispatch(spec *Spec, r Renderer) error {
	if spec == nil || len(spec.Data) == 0 {
		title := ""
		if spec != nil {
			title = spec.Label
		}
		return r.Empty(title)
	}
	switch spec.Kind {
	case Bar, Line, Pie, Table:
	default:
		return r.Unsupported(spec.Kind)
	}
	res := Resolve(spec)
	switch res.Kind {
	case Bar:
		return r.Bar(CartesianOf(res))
	case Line:
		return r.Line(CartesianOf(res))
	case Pie:
		p, ok := PieOf(res)
		if !ok {
			return r.Table(TableOf(res))
		}
		return r.Pie(p)
	default:
		return r.Table(TableOf(res))
	}
}

// CartesianOf builds one series per resolved y-key.
func CartesianOf(res Resolved) Cartesian {
	c := Cartesian{Title: res.Title, XKey: res.XKey, Labels: make([]string, len(res.Rows))}
	for i, row := range res.Raw {
		c.Labels[i] = row.Get(res.XKey).String()
	}
	for i, k := range res.YKeys {
		s := Series{Key: k, Name: Humanize(k), Color: Color(i), Values: make([]record.Value, len(res.Rows))}
		for j, row := range res.Rows {
			s.Values[j] = row.Get(k)
		}
		c.Series = append(c.Series, s)
	}
	return c
}

// PieValueKey picks the value field of a pie: the first resolved y-key that
// differs from the label key, else the first other numeric-like field. The
// label key doubles as value only when the rows have a single field. An
// empty result means no usable value field.
func PieValueKey(res Resolved) string {
	for _, k := range res.YKeys {
		if k != res.XKey {
			return k
		}
	}
	for _, k := range res.Keys {
		if k != res.XKey && anyNumeric(res.Raw, k) {
			return k
		}
	}
	if len(res.Keys) == 1 && anyNumeric(res.Raw, res.Keys[0]) {
		return res.Keys[0]
	}
	return ""
}

// PieOf builds pie slices from the raw snapshot. Null and negative values
// count as zero. ok is false when no value field could be chosen.
func PieOf(res Resolved) (PieChart, bool) {
	vk := PieValueKey(res)
	if vk == "" {
		return PieChart{}, false
	}
	p := PieChart{Title: res.Title, LabelKey: res.XKey, ValueKey: vk}
	for i, row := range res.Raw {
		v, ok := row.Get(vk).Float()
		if !ok || v < 0 {
			v = 0
		}
		p.Total += v
		p.Slices = append(p.Slices, Slice{
			Label: row.Get(res.XKey).String(),
			Value: v,
			Color: Color(i),
		})
	}
	if p.Total > 0 {
		for i := range p.Slices {
			p.Slices[i].Percent = int(math.Round(p.Slices[i].Value / p.Total * 100))
		}
	}
	return p, true
}

// TableOf builds one column per field of the first row, with humanized
// headers. Cells come from the raw snapshot.
func TableOf(res Resolved) TableView {
	t := TableView{Title: res.Title}
	for _, k := range res.Keys {
		t.Columns = append(t.Columns, Column{Key: k, Header: Humanize(k)})
	}
	for _, row := range res.Raw {
		cells := make([]string, len(t.Columns))
		for i, c := range t.Columns {
			cells[i] = row.Get(c.Key).String()
		}
		t.Rows = append(t.Rows, cells)
	}
	return t
}
