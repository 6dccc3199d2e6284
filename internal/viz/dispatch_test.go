package viz

import (
	"bytes"
	"os"
	"strings"
	"testing"

	"github.com/KaramelBytes/datachat-cli/internal/record"
)

type recordingRenderer struct {
	calls []string
	bar   Cartesian
	line  Cartesian
	pie   PieChart
	table TableView
	kind  Kind
}

func (r *recordingRenderer) Empty(string) error { r.calls = append(r.calls, "empty"); return nil }
func (r *recordingRenderer) Unsupported(k Kind) error {
	r.calls = append(r.calls, "unsupported")
	r.kind = k
	return nil
}
func (r *recordingRenderer) Bar(c Cartesian) error  { r.calls = append(r.calls, "bar"); r.bar = c; return nil }
func (r *recordingRenderer) Line(c Cartesian) error { r.calls = append(r.calls, "line"); r.line = c; return nil }
func (r *recordingRenderer) Pie(p PieChart) error   { r.calls = append(r.calls, "pie"); r.pie = p; return nil }
func (r *recordingRenderer) Table(t TableView) error {
	r.calls = append(r.calls, "table")
	r.table = t
	return nil
}

func TestDispatchEmptyShortCircuits(t *testing.T) {
	r := &recordingRenderer{}
	if err := Dispatch(&Spec{Kind: Bar, Data: []record.Record{}}, r); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if len(r.calls) != 1 || r.calls[0] != "empty" {
		t.Fatalf("expected empty placeholder, got %v", r.calls)
	}
}

func TestDispatchUnsupportedKind(t *testing.T) {
	r := &recordingRenderer{}
	spec := &Spec{Kind: Kind("scatter"), Data: []record.Record{record.Of("a", 1)}}
	if err := Dispatch(spec, r); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if len(r.calls) != 1 || r.calls[0] != "unsupported" || r.kind != "scatter" {
		t.Fatalf("unexpected calls %v kind %q", r.calls, r.kind)
	}
}

func TestDispatchBarAssignsPaletteByIndex(t *testing.T) {
	row := record.Record{}
	row.Set("label", record.StringValue("x"))
	for _, k := range []string{"a", "b", "c", "d", "e", "f", "g", "h", "i"} {
		row.Set(k, record.NumberValue(1))
	}
	r := &recordingRenderer{}
	if err := Dispatch(Build([]record.Record{row}, Hint{ChartType: "bar"}), r); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if len(r.bar.Series) != 9 {
		t.Fatalf("expected 9 series, got %d", len(r.bar.Series))
	}
	if r.bar.Series[0].Color != Palette[0] || r.bar.Series[8].Color != Palette[0] || r.bar.Series[1].Color != Palette[1] {
		t.Fatalf("palette not cycled: %v %v", r.bar.Series[0].Color, r.bar.Series[8].Color)
	}
}

func TestDispatchPieScenario(t *testing.T) {
	data := []record.Record{
		record.Of("region", "North", "total", 10),
		record.Of("region", "South", "total", "20"),
		record.Of("region", "East", "total", 3),
		record.Of("region", "West", "total", "oops"),
	}
	r := &recordingRenderer{}
	spec := Build(data, Hint{ChartType: "Pie", XAxis: "region", YAxis: []string{"total"}})
	if err := Dispatch(spec, r); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if len(r.calls) != 1 || r.calls[0] != "pie" {
		t.Fatalf("expected pie, got %v", r.calls)
	}
	if r.pie.LabelKey != "region" || r.pie.ValueKey != "total" {
		t.Fatalf("unexpected pie keys: %+v", r.pie)
	}
	sum := 0
	for _, s := range r.pie.Slices {
		sum += s.Percent
	}
	if sum < 100-len(r.pie.Slices) || sum > 100+len(r.pie.Slices) {
		t.Fatalf("percentages sum to %d", sum)
	}
	if r.pie.Slices[1].Percent != 61 || r.pie.Slices[3].Percent != 0 {
		t.Fatalf("unexpected slices: %+v", r.pie.Slices)
	}
}

func TestPieNeverUsesLabelAsValueWithOtherKeys(t *testing.T) {
	data := []record.Record{
		record.Of("region", "N", "amount", 4),
		record.Of("region", "S", "amount", 6),
	}
	r := &recordingRenderer{}
	spec := Build(data, Hint{ChartType: "pie", XAxis: "region", YAxis: []string{"region"}})
	if err := Dispatch(spec, r); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if r.pie.ValueKey == r.pie.LabelKey {
		t.Fatalf("label and value share key %q", r.pie.ValueKey)
	}
	if r.pie.ValueKey != "amount" {
		t.Fatalf("expected amount as value, got %q", r.pie.ValueKey)
	}
}

func TestPieSingleKeyUsesItForBoth(t *testing.T) {
	data := []record.Record{record.Of("n", 1), record.Of("n", 3)}
	r := &recordingRenderer{}
	if err := Dispatch(Build(data, Hint{ChartType: "pie"}), r); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if r.pie.ValueKey != "n" || r.pie.LabelKey != "n" {
		t.Fatalf("unexpected pie: %+v", r.pie)
	}
	if r.pie.Slices[0].Label != "1" || r.pie.Slices[1].Percent != 75 {
		t.Fatalf("unexpected slices: %+v", r.pie.Slices)
	}
}

func TestPieWithoutNumbersFallsBackToTable(t *testing.T) {
	data := []record.Record{record.Of("a", "x", "b", "y")}
	r := &recordingRenderer{}
	if err := Dispatch(Build(data, Hint{ChartType: "pie"}), r); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if len(r.calls) != 1 || r.calls[0] != "table" {
		t.Fatalf("expected table fallback, got %v", r.calls)
	}
}

func TestDispatchTableHumanizesHeaders(t *testing.T) {
	data := []record.Record{record.Of("first_name", "Ada", "total_sales", "bad")}
	r := &recordingRenderer{}
	if err := Dispatch(Build(data, Hint{}), r); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if r.table.Columns[0].Header != "first name" || r.table.Columns[1].Header != "total sales" {
		t.Fatalf("unexpected headers: %+v", r.table.Columns)
	}
	// raw cells survive coercion
	if r.table.Rows[0][1] != "bad" {
		t.Fatalf("table cell coerced: %q", r.table.Rows[0][1])
	}
}

func TestTerminalRendererOutputs(t *testing.T) {
	data := []record.Record{
		record.Of("category", "A", "sales", "100"),
		record.Of("category", "B", "sales", "bad"),
	}
	var buf bytes.Buffer
	tr := NewTerminalRenderer(&buf)
	if err := Dispatch(Build(data, Hint{ChartType: "bar", Title: "Sales"}), tr); err != nil {
		t.Fatalf("bar: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"Sales", "A", "100", "n/a"} {
		if !strings.Contains(out, want) {
			t.Fatalf("bar output missing %q:\n%s", want, out)
		}
	}

	buf.Reset()
	if err := Dispatch(&Spec{Kind: Table}, tr); err != nil {
		t.Fatalf("empty: %v", err)
	}
	if !strings.Contains(buf.String(), "No data") {
		t.Fatalf("expected placeholder, got %q", buf.String())
	}

	buf.Reset()
	if err := Dispatch(Build(data, Hint{}), tr); err != nil {
		t.Fatalf("table: %v", err)
	}
	if !strings.Contains(buf.String(), "category") || !strings.Contains(buf.String(), "bad") {
		t.Fatalf("unexpected table output:\n%s", buf.String())
	}
}

func TestPNGRendererWritesCharts(t *testing.T) {
	dir := t.TempDir()
	data := []record.Record{
		record.Of("month", "Jan", "a", 1, "b", "4"),
		record.Of("month", "Feb", "a", 3, "b", "bad"),
		record.Of("month", "Mar", "a", 2, "b", 5),
	}
	for _, kind := range []string{"bar", "line", "pie", "table"} {
		pr := NewPNGRenderer(dir, "msg/1 "+kind)
		if err := Dispatch(Build(data, Hint{ChartType: kind, Title: kind}), pr); err != nil {
			t.Fatalf("%s: %v", kind, err)
		}
		if kind == "table" {
			if len(pr.Written) != 0 {
				t.Fatalf("table should not produce files: %v", pr.Written)
			}
			continue
		}
		if len(pr.Written) != 1 {
			t.Fatalf("%s: expected one file, got %v", kind, pr.Written)
		}
		info, err := os.Stat(pr.Written[0])
		if err != nil || info.Size() == 0 {
			t.Fatalf("%s: missing or empty png: %v", kind, err)
		}
	}
}
