package flow

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/KaramelBytes/datachat-cli/internal/api"
	"github.com/KaramelBytes/datachat-cli/internal/record"
	"github.com/KaramelBytes/datachat-cli/internal/session"
	"github.com/KaramelBytes/datachat-cli/internal/viz"
)

type fakeBackend struct {
	mu       sync.Mutex
	uploads  []string
	queries  []api.QueryRequest
	body     string
	upResp   *api.UploadResponse
	upErr    error
	qResp    *api.QueryResponse
	qErr     error
	block    chan struct{}
	started  chan struct{}
	ctxAware bool
}

func (f *fakeBackend) wait(ctx context.Context) error {
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.block == nil {
		return nil
	}
	if f.ctxAware {
		select {
		case <-f.block:
		case <-ctx.Done():
			return ctx.Err()
		}
		return nil
	}
	<-f.block
	return nil
}

func (f *fakeBackend) Upload(ctx context.Context, name, contentType string, r io.Reader) (*api.UploadResponse, error) {
	b, _ := io.ReadAll(r)
	f.mu.Lock()
	f.uploads = append(f.uploads, name+"|"+contentType)
	f.body = string(b)
	f.mu.Unlock()
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	return f.upResp, f.upErr
}

func (f *fakeBackend) Query(ctx context.Context, req api.QueryRequest) (*api.QueryResponse, error) {
	f.mu.Lock()
	f.queries = append(f.queries, req)
	f.mu.Unlock()
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	return f.qResp, f.qErr
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func chatController(t *testing.T, fb *fakeBackend) *Controller {
	t.Helper()
	st := session.NewStore()
	st.SetScreen(session.ScreenLoading)
	st.SetSessionID("u1")
	st.SetScreen(session.ScreenChat)
	return NewController(st, fb, WithLogger(quietLogger()))
}

func TestAcceptFilter(t *testing.T) {
	cases := []struct {
		name, mime string
		want       string
		ok         bool
	}{
		{"sales.csv", "", "text/csv", true},
		{"Report.XLSX", "", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", true},
		{"old.xls", "", "application/vnd.ms-excel", true},
		{"export", "text/csv; charset=utf-8", "text/csv", true},
		{"notes.pdf", "", "", false},
		{"notes.pdf", "application/pdf", "", false},
		{"archive.csv.zip", "", "", false},
	}
	for _, tc := range cases {
		got, err := Accept(tc.name, tc.mime)
		if tc.ok != (err == nil) {
			t.Fatalf("%s: unexpected err %v", tc.name, err)
		}
		if !tc.ok && !errors.Is(err, ErrRejected) {
			t.Fatalf("%s: expected ErrRejected, got %v", tc.name, err)
		}
		if got != tc.want {
			t.Fatalf("%s: content type %q want %q", tc.name, got, tc.want)
		}
	}
}

func TestUploadRejectsPDFWithoutNetwork(t *testing.T) {
	fb := &fakeBackend{}
	c := NewController(session.NewStore(), fb, WithLogger(quietLogger()))
	_, err := c.Upload(context.Background(), writeFile(t, "doc.pdf", "%PDF"))
	if !errors.Is(err, ErrRejected) {
		t.Fatalf("expected ErrRejected, got %v", err)
	}
	if len(fb.uploads) != 0 {
		t.Fatalf("network call issued for rejected file")
	}
	st := c.Store().Snapshot()
	if st.Screen != session.ScreenUpload || len(st.Messages) != 0 {
		t.Fatalf("state changed on rejection: %+v", st)
	}
}

func TestUploadUsesFirstFileOnly(t *testing.T) {
	fb := &fakeBackend{upResp: &api.UploadResponse{
		UploadID: "u-1",
		FileName: "a.csv",
		Schema:   map[string][]api.Column{"data_a": {{Name: "x", Type: "BIGINT"}}},
	}}
	c := NewController(session.NewStore(), fb, WithLogger(quietLogger()))
	first := writeFile(t, "a.csv", "x\n1\n")
	second := writeFile(t, "b.pdf", "nope")
	if _, err := c.Upload(context.Background(), first, second); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if len(fb.uploads) != 1 || fb.uploads[0] != "a.csv|text/csv" || fb.body != "x\n1\n" {
		t.Fatalf("unexpected uploads: %v body=%q", fb.uploads, fb.body)
	}
	st := c.Store().Snapshot()
	if st.Screen != session.ScreenChat || st.UploadID != "u-1" || st.FileName != "a.csv" {
		t.Fatalf("unexpected state: %+v", st)
	}
	if cols := st.Schema["data_a"]; len(cols) != 1 || cols[0].Name != "x" {
		t.Fatalf("schema not stored: %+v", st.Schema)
	}
}

func TestUploadFailureRevertsScreen(t *testing.T) {
	fb := &fakeBackend{upErr: errors.New("connection refused")}
	c := NewController(session.NewStore(), fb, WithLogger(quietLogger()))
	_, err := c.Upload(context.Background(), writeFile(t, "a.xlsx", "PK"))
	if err == nil {
		t.Fatalf("expected error")
	}
	st := c.Store().Snapshot()
	if st.Screen != session.ScreenUpload || st.UploadID != "" || len(st.Messages) != 0 {
		t.Fatalf("unexpected state after failure: %+v", st)
	}
}

func TestUploadAfterChatRefused(t *testing.T) {
	fb := &fakeBackend{}
	c := chatController(t, fb)
	if _, err := c.Upload(context.Background(), writeFile(t, "a.csv", "x")); !errors.Is(err, ErrNotUploadScreen) {
		t.Fatalf("expected ErrNotUploadScreen, got %v", err)
	}
	if len(fb.uploads) != 0 {
		t.Fatalf("network call issued from chat screen")
	}
}

func TestAskAppendsAnswerWithChart(t *testing.T) {
	fb := &fakeBackend{qResp: &api.QueryResponse{
		Answer: "A leads.",
		Rows: []record.Record{
			record.Of("category", "A", "sales", 100),
			record.Of("category", "B", "sales", "bad"),
		},
		Suggestion: &api.Suggestion{ChartType: "Bar Chart"},
	}}
	c := chatController(t, fb)
	msg, err := c.Ask(context.Background(), "  who leads?  ")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if msg.Role != session.RoleAssistant || msg.Text != "A leads." || msg.Chart == nil || msg.Chart.Kind != viz.Bar {
		t.Fatalf("unexpected reply: %+v", msg)
	}
	if len(fb.queries) != 1 || fb.queries[0].Question != "who leads?" || fb.queries[0].UploadID != "u1" {
		t.Fatalf("unexpected request: %+v", fb.queries)
	}
	st := c.Store().Snapshot()
	if st.Busy || len(st.Messages) != 2 || st.Messages[0].Role != session.RoleUser {
		t.Fatalf("unexpected state: %+v", st)
	}
}

func TestAskChartNeedsRowsAndSuggestion(t *testing.T) {
	rows := []record.Record{record.Of("a", 1)}
	cases := []struct {
		name string
		resp *api.QueryResponse
		want bool
	}{
		{"both", &api.QueryResponse{Rows: rows, Suggestion: &api.Suggestion{}}, true},
		{"empty rows", &api.QueryResponse{Rows: []record.Record{}, Suggestion: &api.Suggestion{}}, true},
		{"no suggestion", &api.QueryResponse{Rows: rows}, false},
		{"no rows", &api.QueryResponse{Suggestion: &api.Suggestion{ChartType: "bar"}}, false},
	}
	for _, tc := range cases {
		if got := ChartFor(tc.resp) != nil; got != tc.want {
			t.Fatalf("%s: chart present = %v", tc.name, got)
		}
	}
}

func TestAskFailureAppendsApology(t *testing.T) {
	fb := &fakeBackend{qErr: errors.New("500")}
	c := chatController(t, fb)
	msg, err := c.Ask(context.Background(), "q")
	if err == nil {
		t.Fatalf("expected error")
	}
	if msg.Text != Apology || msg.Role != session.RoleAssistant {
		t.Fatalf("unexpected reply: %+v", msg)
	}
	st := c.Store().Snapshot()
	if st.Busy || len(st.Messages) != 2 {
		t.Fatalf("busy not cleared or log wrong: %+v", st)
	}
}

func TestAskIgnoredCases(t *testing.T) {
	fb := &fakeBackend{}
	c := NewController(session.NewStore(), fb, WithLogger(quietLogger()))
	if _, err := c.Ask(context.Background(), "q"); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
	c = chatController(t, fb)
	if _, err := c.Ask(context.Background(), "   "); !errors.Is(err, ErrEmptyQuestion) || !errors.Is(err, ErrIgnored) {
		t.Fatalf("expected ErrEmptyQuestion, got %v", err)
	}
	if len(fb.queries) != 0 || len(c.Store().Snapshot().Messages) != 0 {
		t.Fatalf("ignored question had effects")
	}
}

func TestAskWhileBusyIsNoop(t *testing.T) {
	fb := &fakeBackend{
		qResp:   &api.QueryResponse{Answer: "done"},
		block:   make(chan struct{}),
		started: make(chan struct{}, 1),
	}
	c := chatController(t, fb)
	errc := make(chan error, 1)
	go func() {
		_, err := c.Ask(context.Background(), "first")
		errc <- err
	}()
	<-fb.started

	before := len(c.Store().Snapshot().Messages)
	if _, err := c.Ask(context.Background(), "second"); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
	if after := len(c.Store().Snapshot().Messages); after != before {
		t.Fatalf("message log changed while busy: %d -> %d", before, after)
	}
	close(fb.block)
	if err := <-errc; err != nil {
		t.Fatalf("first Ask: %v", err)
	}
	if n := len(fb.queries); n != 1 {
		t.Fatalf("expected 1 query, got %d", n)
	}
}

func TestCancelDropsStaleUpload(t *testing.T) {
	fb := &fakeBackend{
		upResp:  &api.UploadResponse{UploadID: "late"},
		block:   make(chan struct{}),
		started: make(chan struct{}, 1),
	}
	c := NewController(session.NewStore(), fb, WithLogger(quietLogger()))
	errc := make(chan error, 1)
	go func() {
		_, err := c.Upload(context.Background(), writeFile(t, "a.csv", "x"))
		errc <- err
	}()
	<-fb.started
	if got := c.Store().Snapshot().Screen; got != session.ScreenLoading {
		t.Fatalf("expected loading, got %s", got)
	}
	c.Cancel()
	close(fb.block)

	select {
	case err := <-errc:
		if !errors.Is(err, ErrStale) {
			t.Fatalf("expected ErrStale, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("upload did not return")
	}
	st := c.Store().Snapshot()
	if st.Screen != session.ScreenUpload || st.UploadID != "" {
		t.Fatalf("stale response applied: %+v", st)
	}
}

func TestCancelAbortsQueryContext(t *testing.T) {
	fb := &fakeBackend{
		block:    make(chan struct{}),
		started:  make(chan struct{}, 1),
		ctxAware: true,
	}
	c := chatController(t, fb)
	errc := make(chan error, 1)
	go func() {
		_, err := c.Ask(context.Background(), "slow")
		errc <- err
	}()
	<-fb.started
	c.Cancel()

	select {
	case err := <-errc:
		if !errors.Is(err, ErrStale) {
			t.Fatalf("expected ErrStale, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("query was not cancelled")
	}
	st := c.Store().Snapshot()
	if st.Busy {
		t.Fatalf("busy flag left set")
	}
	if len(st.Messages) != 1 || st.Messages[0].Text != "slow" {
		t.Fatalf("unexpected log after cancel: %+v", st.Messages)
	}
}

func TestConcurrentUploadsSendOneRequest(t *testing.T) {
	fb := &fakeBackend{
		upResp:  &api.UploadResponse{UploadID: "u1"},
		block:   make(chan struct{}),
		started: make(chan struct{}, 2),
	}
	c := NewController(session.NewStore(), fb, WithLogger(quietLogger()))
	path := writeFile(t, "a.csv", "region,total\nNorth,1\n")

	errc := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := c.Upload(context.Background(), path)
			errc <- err
		}()
	}
	// One upload is refused at once; the other is held by the backend.
	select {
	case err := <-errc:
		if !errors.Is(err, ErrNotUploadScreen) {
			t.Fatalf("expected ErrNotUploadScreen, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("second upload was not refused")
	}
	close(fb.block)
	select {
	case err := <-errc:
		if err != nil {
			t.Fatalf("upload: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("upload did not return")
	}

	fb.mu.Lock()
	hits := len(fb.uploads)
	fb.mu.Unlock()
	if hits != 1 {
		t.Fatalf("expected 1 backend upload, got %d", hits)
	}
	if st := c.Store().Snapshot(); st.Screen != session.ScreenChat || st.UploadID != "u1" {
		t.Fatalf("unexpected state: %+v", st)
	}
}

func TestCancelThenNewUploadKeepsNewerResult(t *testing.T) {
	fb := &fakeBackend{
		upResp:  &api.UploadResponse{UploadID: "u1"},
		block:   make(chan struct{}),
		started: make(chan struct{}, 2),
	}
	c := NewController(session.NewStore(), fb, WithLogger(quietLogger()))
	path := writeFile(t, "a.csv", "x")

	first := make(chan error, 1)
	go func() {
		_, err := c.Upload(context.Background(), path)
		first <- err
	}()
	<-fb.started
	c.Cancel()

	second := make(chan error, 1)
	go func() {
		_, err := c.Upload(context.Background(), path)
		second <- err
	}()
	<-fb.started
	close(fb.block)

	for name, ch := range map[string]chan error{"first": first, "second": second} {
		select {
		case err := <-ch:
			if name == "first" && !errors.Is(err, ErrStale) {
				t.Fatalf("first upload: expected ErrStale, got %v", err)
			}
			if name == "second" && err != nil {
				t.Fatalf("second upload: %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("%s upload did not return", name)
		}
	}
	if st := c.Store().Snapshot(); st.Screen != session.ScreenChat || st.UploadID != "u1" {
		t.Fatalf("unexpected state: %+v", st)
	}
}
