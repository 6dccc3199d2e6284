package viz

import (
	"strings"

	"github.com/KaramelBytes/datachat-cli/internal/record"
)

// Kind is a concrete rendering branch.
type Kind string

const (
	Bar   Kind = "bar"
	Line  Kind = "line"
	Pie   Kind = "pie"
	Table Kind = "table"
)

// NormalizeKind maps a free-form chart type ("Bar Chart", "horizontal bar",
// "PIE") onto a Kind by case-insensitive substring match. Anything else,
// including the empty string, is a table.
func NormalizeKind(s string) Kind {
	lower := strings.ToLower(s)
	for _, k := range []Kind{Bar, Line, Pie} {
		if strings.Contains(lower, string(k)) {
			return k
		}
	}
	return Table
}

// Hint is the backend's partial visualization suggestion.
type Hint struct {
	ChartType string
	XAxis     string
	YAxis     []string
	Title     string
}

// Spec is the chart description attached to an assistant message. Data is
// a snapshot of the result rows at response time and is never mutated.
type Spec struct {
	Kind  Kind
	Data  []record.Record
	XKey  string
	YKeys []string
	Label string
}

// Build derives a Spec from a result set and a suggestion. Axis names are
// kept as hints; concrete keys are chosen by Resolve at render time.
func Build(rows []record.Record, hint Hint) *Spec {
	data := make([]record.Record, len(rows))
	for i, r := range rows {
		data[i] = r.Clone()
	}
	var y []string
	if len(hint.YAxis) > 0 {
		y = append(y, hint.YAxis...)
	}
	return &Spec{
		Kind:  NormalizeKind(hint.ChartType),
		Data:  data,
		XKey:  strings.TrimSpace(hint.XAxis),
		YKeys: y,
		Label: hint.Title,
	}
}

// ResolveXKey picks the category field: the hint when given, else the first
// key whose first-row value is text, else the first key.
func ResolveXKey(data []record.Record, hint string) string {
	if hint != "" {
		return hint
	}
	if len(data) == 0 {
		return ""
	}
	keys := data[0].Keys()
	for _, k := range keys {
		if data[0].Get(k).IsText() {
			return k
		}
	}
	if len(keys) > 0 {
		return keys[0]
	}
	return ""
}

// ResolveYKeys picks the value fields. Hinted names are intersected with the
// keys present in the data; unknown names are dropped. Without a hint, every
// key other than xKey with at least one numeric-like value is selected.
func ResolveYKeys(data []record.Record, xKey string, hint []string) []string {
	if len(data) == 0 {
		return nil
	}
	keys := data[0].Keys()
	if len(hint) > 0 {
		present := make(map[string]bool, len(keys))
		for _, k := range keys {
			present[k] = true
		}
		var out []string
		seen := make(map[string]bool, len(hint))
		for _, h := range hint {
			if present[h] && !seen[h] {
				out = append(out, h)
				seen[h] = true
			}
		}
		return out
	}
	var out []string
	for _, k := range keys {
		if k == xKey {
			continue
		}
		if anyNumeric(data, k) {
			out = append(out, k)
		}
	}
	return out
}

func anyNumeric(data []record.Record, key string) bool {
	for _, r := range data {
		if _, ok := r.Get(key).Float(); ok {
			return true
		}
	}
	return false
}

// Coerce returns copies of data where every yKey holds its parsed number or
// the null marker. The input rows are left untouched.
func Coerce(data []record.Record, yKeys []string) []record.Record {
	out := make([]record.Record, len(data))
	for i, r := range data {
		c := r.Clone()
		for _, k := range yKeys {
			if f, ok := r.Get(k).Float(); ok {
				c.Set(k, record.NumberValue(f))
			} else {
				c.Set(k, record.NullValue())
			}
		}
		out[i] = c
	}
	return out
}

// Resolved is a Spec with concrete keys and coerced rows.
type Resolved struct {
	Kind  Kind
	Title string
	XKey  string
	YKeys []string
	// Keys lists every field of the first row in order.
	Keys []string
	// Rows holds coerced values for YKeys; Raw is the original snapshot.
	Rows []record.Record
	Raw  []record.Record
}

// Resolve runs key resolution and value coercion. It is deterministic and
// does not modify spec.
func Resolve(spec *Spec) Resolved {
	res := Resolved{Kind: spec.Kind, Title: spec.Label, Raw: spec.Data}
	if len(spec.Data) == 0 {
		return res
	}
	res.Keys = spec.Data[0].Keys()
	res.XKey = ResolveXKey(spec.Data, spec.XKey)
	res.YKeys = ResolveYKeys(spec.Data, res.XKey, spec.YKeys)
	res.Rows = Coerce(spec.Data, res.YKeys)
	return res
}

// Humanize turns a field name into a column header.
func Humanize(key string) string {
	return strings.ReplaceAll(key, "_", " ")
}
