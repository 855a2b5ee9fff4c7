package billing

import (
	"errors"
	"fmt"

	"github.com/ovaphlow/pitchfork/service-credits-go/internal/generation"
)

var (
	ErrUnauthorized        = errors.New("billing: unauthorized")
	ErrNoSubscription      = errors.New("billing: no active subscription")
	ErrInsufficientCredits = errors.New("billing: insufficient credits")
	ErrInvalidInput        = errors.New("billing: invalid input")
	ErrInvalidSignature    = errors.New("billing: invalid signature")
	ErrMissingCorrelation  = errors.New("billing: missing user correlation")
	ErrNotFound            = errors.New("billing: not found")
)

type DenialReason string

const (
	DenialNoSubscription      DenialReason = "no_subscription"
	DenialInsufficientCredits DenialReason = "insufficient_credits"
)

// DeniedError is returned when the entitlement gate refuses a metered action.
type DeniedError struct {
	Reason DenialReason
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("billing: entitlement denied: %s", e.Reason)
}

func (e *DeniedError) Is(target error) bool {
	switch e.Reason {
	case DenialNoSubscription:
		return target == ErrNoSubscription
	case DenialInsufficientCredits:
		return target == ErrInsufficientCredits
	}
	return false
}

// Classify maps an error onto the taxonomy name used in logs and metric labels.
func Classify(err error) string {
	if err == nil {
		return "ok"
	}
	switch {
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrNoSubscription):
		return "no_subscription"
	case errors.Is(err, ErrInsufficientCredits):
		return "insufficient_credits"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrInvalidSignature):
		return "invalid_signature"
	case errors.Is(err, ErrMissingCorrelation):
		return "missing_correlation"
	case errors.Is(err, generation.ErrSubmission):
		return "upstream_submission_error"
	case errors.Is(err, generation.ErrPoll):
		return "upstream_poll_error"
	case errors.Is(err, generation.ErrTimeoutOrFailure):
		return "generation_timeout_or_failure"
	default:
		return "internal_error"
	}
}
