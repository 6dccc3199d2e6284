package api

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/KaramelBytes/datachat-cli/internal/record"
)

// Column is one column of an uploaded table as reported by the backend.
type Column struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// UploadResponse is the body returned by POST /upload.
type UploadResponse struct {
	UploadID string              `json:"upload_id"`
	Message  string              `json:"message,omitempty"`
	FileName string              `json:"file_name,omitempty"`
	Schema   map[string][]Column `json:"schema,omitempty"`
}

// QueryRequest is the body sent to POST /query.
type QueryRequest struct {
	Question string `json:"question"`
	UploadID string `json:"upload_id"`
}

// StringList accepts either a single string or an array of strings.
type StringList []string

func (l *StringList) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*l = nil
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return fmt.Errorf("decode string list: %w", err)
		}
		if s == "" {
			*l = nil
			return nil
		}
		*l = StringList{s}
		return nil
	}
	var raw []any
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("decode string list: %w", err)
	}
	out := make(StringList, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	*l = out
	return nil
}

// Suggestion is the backend's optional visualization hint. Every field may
// be missing.
type Suggestion struct {
	ChartType string     `json:"chart_type,omitempty"`
	XAxis     string     `json:"x_axis,omitempty"`
	YAxis     StringList `json:"y_axis,omitempty"`
	Title     string     `json:"title,omitempty"`
}

// QueryResponse is the body returned by POST /query. Rows is nil when the
// field is absent and empty when the backend sent an empty array.
type QueryResponse struct {
	Answer     string          `json:"natural_language_answer"`
	Rows       []record.Record `json:"query_result_data,omitempty"`
	Suggestion *Suggestion     `json:"visualization_suggestion,omitempty"`
}

// suggestionWire tolerates null for string fields.
type suggestionWire struct {
	ChartType *string    `json:"chart_type"`
	XAxis     *string    `json:"x_axis"`
	YAxis     StringList `json:"y_axis"`
	Title     *string    `json:"title"`
}

func (s *Suggestion) UnmarshalJSON(b []byte) error {
	var w suggestionWire
	if err := json.Unmarshal(b, &w); err != nil {
		return fmt.Errorf("decode visualization suggestion: %w", err)
	}
	*s = Suggestion{YAxis: w.YAxis}
	if w.ChartType != nil {
		s.ChartType = *w.ChartType
	}
	if w.XAxis != nil {
		s.XAxis = *w.XAxis
	}
	if w.Title != nil {
		s.Title = *w.Title
	}
	return nil
}
