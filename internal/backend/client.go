// Package backend talks to the asynchronous generation backend: asset
// uploads, job submission, status polling and output downloads.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"studio/internal/domain"
	"studio/internal/infra"
	"studio/internal/workflow"
)

// ErrMissingBaseURL indicates that the client was configured without a backend.
var ErrMissingBaseURL = errors.New("backend: base url is required")

// Remote job states reported by GET /jobs/{id}.
const (
	RemoteQueued    = "queued"
	RemoteRunning   = "running"
	RemoteCompleted = "completed"
	RemoteError     = "error"
)

// Options configures the backend client.
type Options struct {
	BaseURL        string
	APIKey         string
	HTTPClient     *http.Client
	Logger         *infra.Logger
	RequestTimeout time.Duration
}

// Client performs HTTP calls against the generation backend.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *infra.Logger
}

// Output is one produced image reference in backend order.
type Output struct {
	NodeID   string `json:"node_id"`
	AssetRef string `json:"asset_ref"`
}

// JobStatus is the decoded body of a status poll.
type JobStatus struct {
	Status    string   `json:"status"`
	Outputs   []Output `json:"outputs"`
	ErrorText string   `json:"error_text"`
}

type uploadResponse struct {
	AssetRef string `json:"asset_ref"`
}

type submitRequest struct {
	Graph       *workflow.Graph `json:"graph"`
	ClientToken string          `json:"client_token"`
}

type submitResponse struct {
	JobID string `json:"job_id"`
}

// NewClient constructs a client with defaults for the HTTP client and logger.
func NewClient(opts Options) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		return nil, ErrMissingBaseURL
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     strings.TrimSpace(opts.APIKey),
		httpClient: httpClient,
		logger:     infra.LoggerOrDiscard(opts.Logger),
	}, nil
}

// BaseURL returns the normalized backend root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Upload pushes raw bytes to the asset store and returns the asset reference.
// It does not retry; callers decide whether a failure aborts or degrades.
func (c *Client) Upload(ctx context.Context, data []byte, kind domain.AssetKind, filename string) (string, error) {
	if len(data) == 0 {
		return "", &domain.UploadError{Kind: kind, Err: errors.New("empty payload")}
	}
	if filename == "" {
		filename = string(kind) + ".png"
	}
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("kind", string(kind)); err != nil {
		return "", &domain.UploadError{Kind: kind, Err: err}
	}
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return "", &domain.UploadError{Kind: kind, Err: err}
	}
	if _, err := part.Write(data); err != nil {
		return "", &domain.UploadError{Kind: kind, Err: err}
	}
	if err := mw.Close(); err != nil {
		return "", &domain.UploadError{Kind: kind, Err: err}
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/assets", &body)
	if err != nil {
		return "", &domain.UploadError{Kind: kind, Err: err}
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	raw, status, err := c.do(req)
	if err != nil {
		return "", &domain.UploadError{Kind: kind, Err: err}
	}
	if status < 200 || status >= 300 {
		return "", &domain.UploadError{Kind: kind, StatusCode: status, Body: strings.TrimSpace(string(raw))}
	}
	var decoded uploadResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", &domain.UploadError{Kind: kind, StatusCode: status, Err: fmt.Errorf("decode response: %w", err)}
	}
	ref := strings.TrimSpace(decoded.AssetRef)
	if ref == "" {
		return "", &domain.UploadError{Kind: kind, StatusCode: status, Err: errors.New("empty asset_ref")}
	}
	c.logger.Debug().
		Str("kind", string(kind)).
		Str("asset_ref", ref).
		Int("bytes", len(data)).
		Msg("backend: uploaded asset")
	return ref, nil
}

// Submit posts a frozen graph and returns the backend job id.
func (c *Client) Submit(ctx context.Context, graph *workflow.Graph, clientToken string) (string, error) {
	if graph == nil || !graph.Frozen() {
		return "", &domain.SubmissionError{Err: errors.New("graph must be built before submission")}
	}
	payload, err := json.Marshal(submitRequest{Graph: graph, ClientToken: clientToken})
	if err != nil {
		return "", &domain.SubmissionError{Err: fmt.Errorf("encode request: %w", err)}
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/jobs", bytes.NewReader(payload))
	if err != nil {
		return "", &domain.SubmissionError{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	raw, status, err := c.do(req)
	if err != nil {
		return "", &domain.SubmissionError{Err: err}
	}
	if status < 200 || status >= 300 {
		return "", &domain.SubmissionError{
			StatusCode: status,
			Status:     http.StatusText(status),
			Body:       strings.TrimSpace(string(raw)),
		}
	}
	var decoded submitResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", &domain.SubmissionError{StatusCode: status, Err: fmt.Errorf("decode response: %w", err)}
	}
	if strings.TrimSpace(decoded.JobID) == "" {
		return "", &domain.SubmissionError{StatusCode: status, Err: errors.New("empty job_id")}
	}
	c.logger.Info().
		Str("job_id", decoded.JobID).
		Int("nodes", graph.Len()).
		Msg("backend: job submitted")
	return decoded.JobID, nil
}

// Poll fetches the current status of jobID once. Failures are plain errors;
// the job runner decides how to classify them.
func (c *Client) Poll(ctx context.Context, jobID string) (JobStatus, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/jobs/"+url.PathEscape(jobID), nil)
	if err != nil {
		return JobStatus{}, err
	}
	raw, status, err := c.do(req)
	if err != nil {
		return JobStatus{}, err
	}
	if status < 200 || status >= 300 {
		return JobStatus{}, fmt.Errorf("backend: status %d: %s", status, strings.TrimSpace(string(raw)))
	}
	var decoded JobStatus
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return JobStatus{}, fmt.Errorf("backend: decode status: %w", err)
	}
	switch decoded.Status {
	case RemoteQueued, RemoteRunning, RemoteCompleted, RemoteError:
	default:
		return JobStatus{}, fmt.Errorf("backend: unknown job status %q", decoded.Status)
	}
	return decoded, nil
}

// AssetURL resolves an output reference to its download URL.
func (c *Client) AssetURL(ref string) string {
	return c.baseURL + "/assets/" + url.PathEscape(ref)
}

// FetchAsset downloads the bytes behind an asset reference or URL.
func (c *Client) FetchAsset(ctx context.Context, refOrURL string) ([]byte, string, error) {
	target := refOrURL
	if !strings.HasPrefix(target, "http://") && !strings.HasPrefix(target, "https://") {
		target = c.AssetURL(refOrURL)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, "", fmt.Errorf("backend: build download request: %w", err)
	}
	c.authorize(req)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("backend: download asset: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, "", fmt.Errorf("backend: download status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("backend: read asset: %w", err)
	}
	format := resp.Header.Get("Content-Type")
	if format == "" {
		format = "image/png"
	}
	return data, format, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("backend: build request: %w", err)
	}
	c.authorize(req)
	return req, nil
}

func (c *Client) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

func (c *Client) do(req *http.Request) ([]byte, int, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("backend: http request: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("backend: read response: %w", err)
	}
	return raw, resp.StatusCode, nil
}
