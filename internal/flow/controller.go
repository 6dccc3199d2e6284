package flow

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/KaramelBytes/datachat-cli/internal/api"
	"github.com/KaramelBytes/datachat-cli/internal/session"
	"github.com/KaramelBytes/datachat-cli/internal/telemetry"
)

// ErrStale is returned when a response arrived after the request was
// superseded by Cancel. Its result has been dropped.
var ErrStale = errors.New("response superseded")

// Backend is the query service as seen by the flows.
type Backend interface {
	Upload(ctx context.Context, name, contentType string, r io.Reader) (*api.UploadResponse, error)
	Query(ctx context.Context, req api.QueryRequest) (*api.QueryResponse, error)
}

// Controller drives the upload and query flows against a store.
type Controller struct {
	store    *session.Store
	backend  Backend
	logger   *slog.Logger
	recorder *telemetry.Recorder

	mu     sync.Mutex
	gen    uint64
	epoch  context.Context
	cancel context.CancelFunc
}

// Option customizes a Controller.
type Option func(*Controller)

// WithLogger sets the developer log. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option { return func(c *Controller) { c.logger = l } }

// WithRecorder sets the telemetry recorder.
func WithRecorder(r *telemetry.Recorder) Option { return func(c *Controller) { c.recorder = r } }

func NewController(store *session.Store, backend Backend, opts ...Option) *Controller {
	c := &Controller{store: store, backend: backend, logger: slog.Default()}
	for _, o := range opts {
		o(c)
	}
	c.epoch, c.cancel = context.WithCancel(context.Background())
	return c
}

// Store returns the state container the controller mutates.
func (c *Controller) Store() *session.Store { return c.store }

// begin ties ctx to the current epoch and returns the generation it was
// issued under. A non-nil claim runs under the controller lock and can
// refuse the request by returning false.
func (c *Controller) begin(ctx context.Context, claim func() bool) (context.Context, uint64, func(), bool) {
	c.mu.Lock()
	if claim != nil && !claim() {
		c.mu.Unlock()
		return ctx, 0, func() {}, false
	}
	gen, epoch := c.gen, c.epoch
	c.mu.Unlock()
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(epoch, cancel)
	return ctx, gen, func() {
		stop()
		cancel()
	}, true
}

func (c *Controller) current(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen == gen
}

// commit runs apply if gen is still current. Cancel cannot interleave
// with apply.
func (c *Controller) commit(gen uint64, apply func()) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return false
	}
	apply()
	return true
}

// Cancel invalidates every in-flight request. Late responses are dropped,
// a pending upload returns to the upload screen and the busy flag clears.
func (c *Controller) Cancel() {
	c.mu.Lock()
	c.gen++
	c.cancel()
	c.epoch, c.cancel = context.WithCancel(context.Background())
	st := c.store.Snapshot()
	if st.Screen == session.ScreenLoading {
		c.store.SetScreen(session.ScreenUpload)
	}
	if st.Busy {
		c.store.SetBusy(false)
	}
	c.mu.Unlock()
	c.logger.Debug("in-flight requests cancelled")
}

// Close cancels in-flight work for good.
func (c *Controller) Close() {
	c.mu.Lock()
	c.gen++
	c.cancel()
	c.mu.Unlock()
}
