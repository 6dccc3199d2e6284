package flow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/KaramelBytes/datachat-cli/internal/api"
	"github.com/KaramelBytes/datachat-cli/internal/session"
	"github.com/KaramelBytes/datachat-cli/internal/viz"
)

// Apology is appended in place of an answer when a query fails.
const Apology = "Sorry, I ran into an error processing your request. Please try again."

var (
	// ErrIgnored is returned when a question is dropped without effect.
	ErrIgnored = errors.New("question ignored")
	// ErrBusy marks a question submitted while another is in flight.
	ErrBusy = fmt.Errorf("%w: a query is already in progress", ErrIgnored)
	// ErrNoSession marks a question submitted before any upload.
	ErrNoSession = fmt.Errorf("%w: no active upload", ErrIgnored)
	// ErrEmptyQuestion marks a blank question.
	ErrEmptyQuestion = fmt.Errorf("%w: question is empty", ErrIgnored)
)

// Ask submits a question about the active upload. The user message is
// appended before the request; the assistant reply (answer or apology)
// after it. The busy flag is always cleared before Ask returns.
func (c *Controller) Ask(ctx context.Context, question string) (session.Message, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return session.Message{}, ErrEmptyQuestion
	}
	ctx, gen, done, ok := c.begin(ctx, func() bool {
		_, ok := c.store.BeginQuery(question)
		return ok
	})
	if !ok {
		if c.store.Snapshot().UploadID == "" {
			return session.Message{}, ErrNoSession
		}
		return session.Message{}, ErrBusy
	}
	defer done()
	// A cancelled request already released the flag; a newer query may own it now.
	defer c.commit(gen, func() { c.store.SetBusy(false) })

	uploadID := c.store.Snapshot().UploadID
	ctx, end := c.recorder.Start(ctx, "query")
	resp, err := c.backend.Query(ctx, api.QueryRequest{Question: question, UploadID: uploadID})
	end(err)

	if !c.current(gen) {
		c.logger.Info("dropping stale query response", "upload_id", uploadID)
		return session.Message{}, ErrStale
	}
	if err != nil {
		c.logger.Error("query failed", "upload_id", uploadID, "error", err)
		return c.store.AppendMessage(session.RoleAssistant, Apology, nil), err
	}

	chart := ChartFor(resp)
	c.logger.Debug("query answered", "upload_id", uploadID, "rows", len(resp.Rows), "chart", chart != nil)
	return c.store.AppendMessage(session.RoleAssistant, resp.Answer, chart), nil
}

// ChartFor derives a chart spec when the response carries both a result
// set and a suggestion. An empty result set still yields a spec so the
// no-data placeholder is shown.
func ChartFor(resp *api.QueryResponse) *viz.Spec {
	if resp == nil || resp.Rows == nil || resp.Suggestion == nil {
		return nil
	}
	s := resp.Suggestion
	return viz.Build(resp.Rows, viz.Hint{
		ChartType: s.ChartType,
		XAxis:     s.XAxis,
		YAxis:     []string(s.YAxis),
		Title:     s.Title,
	})
}
