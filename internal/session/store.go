package session

import (
	"strings"
	"sync"
	"time"

	"github.com/KaramelBytes/datachat-cli/internal/viz"
	"github.com/google/uuid"
)

// ActionType names a state transition.
type ActionType int

const (
	ActionSetScreen ActionType = iota
	ActionSetSessionID
	ActionSetUploadInfo
	ActionAppendMessage
	ActionSetBusy
	ActionClearMessages
	ActionBeginQuery
	ActionBeginUpload
	ActionCompleteUpload
)

// Action carries the payload of one transition. Only the fields relevant
// to Type are read.
type Action struct {
	Type     ActionType
	Screen   Screen
	UploadID string
	FileName string
	Schema   map[string][]Column
	Message  Message
	Busy     bool
}

// Reduce applies a to s and returns the next state. It is pure: ids and
// timestamps are assigned before an action reaches it.
func Reduce(s State, a Action) State {
	switch a.Type {
	case ActionSetScreen:
		if s.Screen != a.Screen && CanTransition(s.Screen, a.Screen) {
			s.Screen = a.Screen
		}
	case ActionSetSessionID:
		s.UploadID = a.UploadID
	case ActionSetUploadInfo:
		s.FileName = a.FileName
		s.Schema = a.Schema
	case ActionAppendMessage:
		s.Messages = append(s.Messages[:len(s.Messages):len(s.Messages)], a.Message)
	case ActionSetBusy:
		s.Busy = a.Busy
	case ActionClearMessages:
		s.Messages = nil
	case ActionBeginQuery:
		if s.Busy || s.UploadID == "" {
			return s
		}
		s.Messages = append(s.Messages[:len(s.Messages):len(s.Messages)], a.Message)
		s.Busy = true
	case ActionBeginUpload:
		if s.Screen == ScreenUpload {
			s.Screen = ScreenLoading
		}
	case ActionCompleteUpload:
		if s.Screen != ScreenLoading {
			return s
		}
		s.UploadID = a.UploadID
		s.FileName = a.FileName
		s.Schema = a.Schema
		s.Screen = ScreenChat
	}
	return s
}

// Store is the single owner of client state. Every mutation goes through
// Dispatch, which applies one action at a time.
type Store struct {
	mu    sync.Mutex
	state State
	subs  []func(State)
	newID func() string
	now   func() time.Time
}

// Option customizes a Store.
type Option func(*Store)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option { return func(s *Store) { s.now = now } }

// WithIDs overrides the message id source.
func WithIDs(newID func() string) Option { return func(s *Store) { s.newID = newID } }

func NewStore(opts ...Option) *Store {
	s := &Store{
		state: State{Screen: ScreenUpload},
		newID: uuid.NewString,
		now:   time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Dispatch applies a and notifies subscribers with the resulting state.
func (s *Store) Dispatch(a Action) State {
	_, next := s.apply(a)
	return next
}

func (s *Store) apply(a Action) (prev, next State) {
	s.mu.Lock()
	prev = s.state
	s.state = Reduce(s.state, a)
	next = s.state.Clone()
	subs := append([](func(State))(nil), s.subs...)
	s.mu.Unlock()
	for _, fn := range subs {
		fn(next.Clone())
	}
	return prev, next
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// Subscribe registers fn to run after every transition. Subscribers run
// outside the store lock and must not block.
func (s *Store) Subscribe(fn func(State)) {
	s.mu.Lock()
	s.subs = append(s.subs, fn)
	s.mu.Unlock()
}

func (s *Store) SetScreen(sc Screen) State {
	return s.Dispatch(Action{Type: ActionSetScreen, Screen: sc})
}

func (s *Store) SetSessionID(id string) State {
	return s.Dispatch(Action{Type: ActionSetSessionID, UploadID: id})
}

func (s *Store) SetUploadInfo(fileName string, schema map[string][]Column) State {
	return s.Dispatch(Action{Type: ActionSetUploadInfo, FileName: fileName, Schema: schema})
}

func (s *Store) SetBusy(b bool) State {
	return s.Dispatch(Action{Type: ActionSetBusy, Busy: b})
}

func (s *Store) ClearMessages() State {
	return s.Dispatch(Action{Type: ActionClearMessages})
}

func (s *Store) newMessage(role Role, text string, chart *viz.Spec) Message {
	return Message{ID: s.newID(), Role: role, Text: text, Timestamp: s.now(), Chart: chart}
}

// AppendMessage stamps a new message with an id and time and appends it.
func (s *Store) AppendMessage(role Role, text string, chart *viz.Spec) Message {
	m := s.newMessage(role, text, chart)
	s.Dispatch(Action{Type: ActionAppendMessage, Message: m})
	return m
}

// BeginQuery appends the user's question and raises the busy flag in one
// transition. It reports false, leaving the state unchanged, when the text
// is blank, no upload is active, or a query is already in flight.
func (s *Store) BeginQuery(text string) (Message, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Message{}, false
	}
	m := s.newMessage(RoleUser, text, nil)
	prev, next := s.apply(Action{Type: ActionBeginQuery, Message: m})
	if prev.Busy || !next.Busy {
		return Message{}, false
	}
	return m, true
}

// BeginUpload moves the upload screen to loading. It reports false when
// the screen was anything else, so only one upload can be pending.
func (s *Store) BeginUpload() bool {
	prev, next := s.apply(Action{Type: ActionBeginUpload})
	return prev.Screen == ScreenUpload && next.Screen == ScreenLoading
}

// CompleteUpload records the upload id and table info and enters chat in
// one transition. Nothing changes unless an upload is pending.
func (s *Store) CompleteUpload(id, fileName string, schema map[string][]Column) bool {
	prev, next := s.apply(Action{Type: ActionCompleteUpload, UploadID: id, FileName: fileName, Schema: schema})
	return prev.Screen == ScreenLoading && next.Screen == ScreenChat
}
