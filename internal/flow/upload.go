package flow

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/KaramelBytes/datachat-cli/internal/api"
	"github.com/KaramelBytes/datachat-cli/internal/session"
	"go.opentelemetry.io/otel/attribute"
)

// ErrNotUploadScreen is returned when an upload is attempted after a
// session has started or while another upload is pending.
var ErrNotUploadScreen = errors.New("uploads are only accepted on the upload screen")

// Upload sends the first of paths to the backend. Rejected files leave the
// state untouched and never reach the network. On failure the screen
// reverts to upload and the error is only logged.
func (c *Controller) Upload(ctx context.Context, paths ...string) (*api.UploadResponse, error) {
	path, ignored, err := FirstFile(paths)
	if err != nil {
		return nil, err
	}
	if ignored > 0 {
		c.logger.Debug("extra files ignored", "count", ignored)
	}
	contentType, err := Accept(path, "")
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	ctx, gen, done, ok := c.begin(ctx, c.store.BeginUpload)
	if !ok {
		return nil, ErrNotUploadScreen
	}
	defer done()

	name := filepath.Base(path)
	ctx, end := c.recorder.Start(ctx, "upload", attribute.String("file.name", name))
	resp, err := c.backend.Upload(ctx, name, contentType, f)
	end(err)

	completed := false
	fresh := c.commit(gen, func() {
		if err != nil {
			c.store.SetScreen(session.ScreenUpload)
			return
		}
		completed = c.store.CompleteUpload(resp.UploadID, displayName(resp.FileName, name), schemaOf(resp.Schema))
	})
	if !fresh || (err == nil && !completed) {
		c.logger.Info("dropping stale upload response", "file", name)
		return nil, ErrStale
	}
	if err != nil {
		c.logger.Error("upload failed", "file", name, "error", err)
		return nil, err
	}
	c.logger.Info("upload complete", "file", name, "upload_id", resp.UploadID, "tables", len(resp.Schema))
	return resp, nil
}

func displayName(fromBackend, local string) string {
	if fromBackend != "" {
		return fromBackend
	}
	return local
}

func schemaOf(in map[string][]api.Column) map[string][]session.Column {
	if in == nil {
		return nil
	}
	out := make(map[string][]session.Column, len(in))
	for table, cols := range in {
		sc := make([]session.Column, len(cols))
		for i, col := range cols {
			sc[i] = session.Column{Name: col.Name, Type: col.Type}
		}
		out[table] = sc
	}
	return out
}
