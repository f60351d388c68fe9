// Package report publishes detected issues to the external tracker,
// deduplicating against already-open reports.
package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// TrackerIssue is one open issue as listed by the tracker.
type TrackerIssue struct {
	Ref    string   `json:"ref"`
	Title  string   `json:"title"`
	Labels []string `json:"labels"`
}

// Tracker is the remote issue tracker surface the gateway consumes.
type Tracker interface {
	ListOpen(ctx context.Context, label string) ([]TrackerIssue, error)
	Create(ctx context.Context, title, body string, labels []string) (string, error)
	Comment(ctx context.Context, ref, body string) error
}

// HTTPTracker talks to the tracker's JSON API.
type HTTPTracker struct {
	baseURL    string
	token      string
	httpClient *http.Client
	log        *zap.Logger
}

// NewHTTPTracker creates a tracker client.
func NewHTTPTracker(baseURL, token string, log *zap.Logger) *HTTPTracker {
	if log == nil {
		log = zap.NewNop()
	}
	return &HTTPTracker{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{Timeout: 20 * time.Second},
		log:        log.Named("tracker"),
	}
}

type createIssueRequest struct {
	Title  string   `json:"title"`
	Body   string   `json:"body"`
	Labels []string `json:"labels"`
}

type createIssueResponse struct {
	Ref string `json:"ref"`
}

type commentRequest struct {
	Body string `json:"body"`
}

type listIssuesResponse struct {
	Issues []TrackerIssue `json:"issues"`
}

func (t *HTTPTracker) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal tracker request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, t.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build tracker request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if t.token != "" {
		req.Header.Set("Authorization", "Bearer "+t.token)
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("tracker request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read tracker response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("tracker %s %s: HTTP %d", method, path, resp.StatusCode)
	}
	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("decode tracker response: %w", err)
		}
	}
	return nil
}

// ListOpen returns open issues carrying the marker label.
func (t *HTTPTracker) ListOpen(ctx context.Context, label string) ([]TrackerIssue, error) {
	var out listIssuesResponse
	if err := t.do(ctx, http.MethodGet, "/api/issues?state=open&label="+label, nil, &out); err != nil {
		return nil, err
	}
	return out.Issues, nil
}

// Create opens a new issue and returns its reference.
func (t *HTTPTracker) Create(ctx context.Context, title, body string, labels []string) (string, error) {
	var out createIssueResponse
	err := t.do(ctx, http.MethodPost, "/api/issues", createIssueRequest{
		Title: title, Body: body, Labels: labels,
	}, &out)
	if err != nil {
		return "", err
	}
	return out.Ref, nil
}

// Comment appends a comment to an existing issue.
func (t *HTTPTracker) Comment(ctx context.Context, ref, body string) error {
	return t.do(ctx, http.MethodPost, "/api/issues/"+ref+"/comments", commentRequest{Body: body}, nil)
}
