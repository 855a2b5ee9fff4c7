// Package generation drives asynchronous third-party image generation jobs.
package generation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Status is the upstream job state as reported by the inference service.
type Status string

const (
	StatusStarting   Status = "starting"
	StatusProcessing Status = "processing"
	StatusSucceeded  Status = "succeeded"
	StatusFailed     Status = "failed"
	StatusCanceled   Status = "canceled"
)

// Pending reports whether polling continues. Only the success and failure
// sentinels end the loop; any other status, canceled included, is polled
// until the bound.
func (s Status) Pending() bool {
	return s != StatusSucceeded && s != StatusFailed
}

// Job is the ephemeral view of one upstream prediction. It is never persisted.
type Job struct {
	ID      string          `json:"id"`
	Status  Status          `json:"status"`
	Output  json.RawMessage `json:"output,omitempty"`
	Error   json.RawMessage `json:"error,omitempty"`
	Version string          `json:"version,omitempty"`
}

// OutputReference returns the first output reference of the job. The service
// reports output either as a single string or as a list of strings.
func (j *Job) OutputReference() (string, bool) {
	if j == nil || len(j.Output) == 0 {
		return "", false
	}
	var single string
	if err := json.Unmarshal(j.Output, &single); err == nil {
		return single, single != ""
	}
	var many []any
	if err := json.Unmarshal(j.Output, &many); err == nil && len(many) > 0 {
		if s, ok := many[0].(string); ok && s != "" {
			return s, true
		}
	}
	return "", false
}

// JobService is the narrow interface of the inference endpoint.
type JobService interface {
	Create(ctx context.Context, prompt string) (*Job, error)
	Get(ctx context.Context, id string) (*Job, error)
}

var (
	ErrSubmission       = errors.New("generation: failed to start prediction")
	ErrPoll             = errors.New("generation: failed to poll prediction")
	ErrTimeoutOrFailure = errors.New("generation: thumbnail generation failed or timed out")
)

// UpstreamError carries the upstream response for diagnostics. Kind is one of
// ErrSubmission or ErrPoll.
type UpstreamError struct {
	Kind       error
	StatusCode int
	Body       string
	Err        error
}

func (e *UpstreamError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("%v: %v", e.Kind, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("%v: status %d", e.Kind, e.StatusCode)
	}
	return e.Kind.Error()
}

func (e *UpstreamError) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

// Details returns the diagnostic text suitable for non-production responses.
func Details(err error) string {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		if ue.Body != "" {
			return ue.Body
		}
		if ue.Err != nil {
			return ue.Err.Error()
		}
	}
	if err != nil {
		return err.Error()
	}
	return ""
}
