package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/textproto"
	"net/url"
	"path/filepath"
	"strings"
	"time"
)

// Client talks to the query service. It never retries: retry and
// self-correction belong to the backend.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient returns a client for baseURL. A zero timeout leaves requests
// bounded only by their context.
func NewClient(baseURL string, httpTimeout time.Duration) *Client {
	if httpTimeout < 0 {
		httpTimeout = 0
	}
	return &Client{
		httpClient: &http.Client{Timeout: httpTimeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

// BaseURL returns the configured service address.
func (c *Client) BaseURL() string { return c.baseURL }

// Upload posts a spreadsheet as multipart field "file".
func (c *Client) Upload(ctx context.Context, name, contentType string, r io.Reader) (*UploadResponse, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, escapeQuotes(filepath.Base(name))))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("build multipart: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("build multipart: %w", err)
	}
	var out UploadResponse
	if err := c.do(ctx, "/upload", mw.FormDataContentType(), &body, &out); err != nil {
		return nil, err
	}
	if strings.TrimSpace(out.UploadID) == "" {
		return nil, fmt.Errorf("%w: missing upload_id", ErrMalformedResponse)
	}
	return &out, nil
}

// Query sends a question about an upload.
func (c *Client) Query(ctx context.Context, req QueryRequest) (*QueryResponse, error) {
	if req.UploadID == "" {
		return nil, errors.New("upload id cannot be empty")
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	var out QueryResponse
	if err := c.do(ctx, "/query", "application/json", bytes.NewReader(payload), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, path, contentType string, body io.Reader, out any) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if isDialErr(err) {
			return &UnreachableError{Host: c.baseURL, Err: err}
		}
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
		apiErr := &APIError{StatusCode: resp.StatusCode, RequestID: extractRequestID(resp), Detail: extractDetail(b)}
		return classifyAPIError(apiErr)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrMalformedResponse, err)
	}
	return nil
}

// extractDetail pulls a message out of a FastAPI-style error body. The
// detail field may be a string or a list of validation errors.
func extractDetail(body []byte) string {
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return strings.TrimSpace(string(body))
	}
	switch d := raw["detail"].(type) {
	case string:
		return d
	case nil:
	default:
		b, _ := json.Marshal(d)
		return string(b)
	}
	if msg, ok := raw["message"].(string); ok {
		return msg
	}
	return ""
}

func classifyAPIError(apiErr *APIError) error {
	sc := apiErr.StatusCode
	switch {
	case sc >= 400 && sc <= 499:
		return &BadRequestError{APIError: apiErr}
	case sc >= 500 && sc <= 599:
		return &ServerError{APIError: apiErr}
	default:
		return apiErr
	}
}

func isDialErr(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		var inner *net.OpError
		return errors.As(urlErr.Err, &inner) && inner.Op == "dial"
	}
	return false
}

// extractRequestID pulls a best-effort request ID from common headers.
func extractRequestID(resp *http.Response) string {
	if resp == nil {
		return ""
	}
	for _, k := range []string{"X-Request-Id", "X-Request-ID", "X-Correlation-Id", "X-Amzn-Requestid"} {
		if v := resp.Header.Get(k); v != "" {
			return v
		}
	}
	return ""
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string { return quoteEscaper.Replace(s) }
