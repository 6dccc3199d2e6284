package session

import (
	"time"

	"github.com/KaramelBytes/datachat-cli/internal/viz"
)

// Screen is the top-level view of the client.
type Screen int

const (
	ScreenUpload Screen = iota
	ScreenLoading
	ScreenChat
)

func (s Screen) String() string {
	switch s {
	case ScreenUpload:
		return "upload"
	case ScreenLoading:
		return "loading"
	case ScreenChat:
		return "chat"
	default:
		return "unknown"
	}
}

// CanTransition reports whether the screen machine allows from -> to.
// Chat is terminal for the session.
func CanTransition(from, to Screen) bool {
	switch {
	case from == ScreenUpload && to == ScreenLoading:
		return true
	case from == ScreenLoading && (to == ScreenChat || to == ScreenUpload):
		return true
	default:
		return false
	}
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of the conversation log. Messages are never mutated
// after they are appended.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	Chart     *viz.Spec `json:"-"`
}

// Column describes one column of an uploaded table.
type Column struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// State is the whole client state.
type State struct {
	Screen   Screen
	UploadID string
	FileName string
	Schema   map[string][]Column
	Messages []Message
	Busy     bool
}

// Clone returns a copy that shares no slices or maps with s. Chart specs
// are immutable and shared.
func (s State) Clone() State {
	out := s
	if s.Messages != nil {
		out.Messages = make([]Message, len(s.Messages))
		copy(out.Messages, s.Messages)
	}
	if s.Schema != nil {
		out.Schema = make(map[string][]Column, len(s.Schema))
		for k, cols := range s.Schema {
			out.Schema[k] = append([]Column(nil), cols...)
		}
	}
	return out
}
