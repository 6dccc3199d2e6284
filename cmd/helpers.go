package cmd

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/KaramelBytes/datachat-cli/internal/api"
	cfgpkg "github.com/KaramelBytes/datachat-cli/internal/config"
	"github.com/KaramelBytes/datachat-cli/internal/session"
	"github.com/KaramelBytes/datachat-cli/internal/viz"
)

// explainError adds a hint for common backend failures.
func explainError(op string, err error) error {
	var (
		brErr   *api.BadRequestError
		sErr    *api.ServerError
		unreach *api.UnreachableError
	)
	switch {
	case errors.As(err, &unreach):
		return fmt.Errorf("query service not reachable at %s. Check base_url or start the backend (use --dev for %s): %w", unreach.Host, cfgpkg.DevBaseURL, err)
	case errors.As(err, &brErr):
		if op == "upload" {
			return fmt.Errorf("upload rejected by the service. Check that the file is a valid CSV or Excel workbook: %w", err)
		}
		return fmt.Errorf("query rejected. The upload id may be unknown or the question could not be answered: %w", err)
	case errors.As(err, &sErr):
		return fmt.Errorf("query service error. Please retry later: %w", err)
	case errors.Is(err, api.ErrMalformedResponse):
		return fmt.Errorf("unexpected response from the query service: %w", err)
	default:
		return fmt.Errorf("%s failed: %w", op, err)
	}
}

type renderOptions struct {
	Writer io.Writer
	PNGDir string
	Base   string
}

// renderAnswer prints an assistant message and its chart. Chart PNGs are
// written when opts.PNGDir is set; the written paths are returned.
func renderAnswer(msg session.Message, opts renderOptions) ([]string, error) {
	w := opts.Writer
	fmt.Fprintln(w, msg.Text)
	if msg.Chart == nil {
		return nil, nil
	}
	fmt.Fprintln(w)
	if err := viz.Dispatch(msg.Chart, viz.NewTerminalRenderer(w)); err != nil {
		return nil, fmt.Errorf("render chart: %w", err)
	}
	if opts.PNGDir == "" {
		return nil, nil
	}
	base := opts.Base
	if base == "" {
		base = "chart"
	}
	pr := viz.NewPNGRenderer(opts.PNGDir, base)
	if err := viz.Dispatch(msg.Chart, pr); err != nil {
		return nil, fmt.Errorf("write chart png: %w", err)
	}
	return pr.Written, nil
}

// printSchema lists the tables the backend created from an upload.
func printSchema(w io.Writer, schema map[string][]api.Column) {
	names := make([]string, 0, len(schema))
	for name := range schema {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "Table %s\n", name)
		for _, c := range schema[name] {
			fmt.Fprintf(w, "  - %s %s\n", c.Name, strings.ToUpper(c.Type))
		}
	}
}
