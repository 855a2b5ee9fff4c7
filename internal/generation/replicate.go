package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const maxErrorBody = 4 << 10

// ReplicateClient talks to the Replicate predictions API.
type ReplicateClient struct {
	baseURL string
	token   string
	version string
	http    *http.Client
}

func NewReplicateClient(cfg Config, hc *http.Client) *ReplicateClient {
	if hc == nil {
		timeout := cfg.HTTPTimeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	base := cfg.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	version := cfg.ModelVersion
	if version == "" {
		version = DefaultModelVersion
	}
	return &ReplicateClient{baseURL: base, token: cfg.APIToken, version: version, http: hc}
}

type createPredictionRequest struct {
	Version string         `json:"version"`
	Input   map[string]any `json:"input"`
}

// Create submits the prompt. Transport failures and non-2xx responses are
// reported as ErrSubmission.
func (c *ReplicateClient) Create(ctx context.Context, prompt string) (*Job, error) {
	if c.token == "" {
		return nil, &UpstreamError{Kind: ErrSubmission, Err: errors.New("missing replicate api token")}
	}
	body, err := json.Marshal(createPredictionRequest{
		Version: c.version,
		Input:   map[string]any{"prompt": prompt},
	})
	if err != nil {
		return nil, &UpstreamError{Kind: ErrSubmission, Err: err}
	}
	job, err := c.do(ctx, http.MethodPost, c.baseURL+"/v1/predictions", body)
	if err != nil {
		return nil, wrapKind(ErrSubmission, err)
	}
	if job.ID == "" {
		return nil, &UpstreamError{Kind: ErrSubmission, Err: errors.New("prediction id missing in response")}
	}
	return job, nil
}

// Get queries a prediction by id. Any failure is reported as ErrPoll.
func (c *ReplicateClient) Get(ctx context.Context, id string) (*Job, error) {
	job, err := c.do(ctx, http.MethodGet, c.baseURL+"/v1/predictions/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, wrapKind(ErrPoll, err)
	}
	return job, nil
}

type httpStatusError struct {
	code int
	body string
}

func (e *httpStatusError) Error() string { return fmt.Sprintf("unexpected status %d", e.code) }

func (c *ReplicateClient) do(ctx context.Context, method, endpoint string, body []byte) (*Job, error) {
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, rdr)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Token "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &httpStatusError{code: resp.StatusCode, body: string(b)}
	}
	var job Job
	if err := json.NewDecoder(resp.Body).Decode(&job); err != nil {
		return nil, fmt.Errorf("decode prediction: %w", err)
	}
	return &job, nil
}

func wrapKind(kind error, err error) error {
	var se *httpStatusError
	if errors.As(err, &se) {
		return &UpstreamError{Kind: kind, StatusCode: se.code, Body: se.body}
	}
	return &UpstreamError{Kind: kind, Err: err}
}
