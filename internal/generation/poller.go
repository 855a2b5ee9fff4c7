package generation

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-credits-go/internal/metrics"
)

// Poller submits a job and polls it on a fixed interval until it reaches a
// terminal state or the attempt bound is exhausted. The bound counts polls,
// not wall time.
type Poller struct {
	jobs     JobService
	clock    clockwork.Clock
	interval time.Duration
	maxPolls int
	logger   *zap.SugaredLogger
}

type PollerOption func(*Poller)

func WithClock(c clockwork.Clock) PollerOption {
	return func(p *Poller) { p.clock = c }
}

func WithInterval(d time.Duration) PollerOption {
	return func(p *Poller) { p.interval = d }
}

func WithMaxPolls(n int) PollerOption {
	return func(p *Poller) { p.maxPolls = n }
}

func WithLogger(l *zap.SugaredLogger) PollerOption {
	return func(p *Poller) { p.logger = l }
}

func NewPoller(jobs JobService, opts ...PollerOption) *Poller {
	p := &Poller{
		jobs:     jobs,
		clock:    clockwork.NewRealClock(),
		interval: DefaultPollInterval,
		maxPolls: DefaultMaxPolls,
		logger:   zap.NewNop().Sugar(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Generate runs one job to completion and returns its first output reference.
func (p *Poller) Generate(ctx context.Context, prompt string) (string, error) {
	job, err := p.jobs.Create(ctx, prompt)
	if err != nil {
		metrics.GenerationsTotal.WithLabelValues("submission_error").Inc()
		return "", err
	}
	p.logger.Debugw("prediction started", "job_id", job.ID, "status", job.Status)

	polls := 0
	defer func() { metrics.GenerationPolls.Observe(float64(polls)) }()

	for job.Status.Pending() && polls < p.maxPolls {
		if err := p.wait(ctx); err != nil {
			metrics.GenerationsTotal.WithLabelValues("aborted").Inc()
			return "", fmt.Errorf("%w: %w", ErrTimeoutOrFailure, err)
		}
		next, err := p.jobs.Get(ctx, job.ID)
		if err != nil {
			metrics.GenerationsTotal.WithLabelValues("poll_error").Inc()
			p.logger.Warnw("prediction poll failed", "job_id", job.ID, "poll", polls+1, "err", err)
			return "", err
		}
		if next.ID == "" {
			next.ID = job.ID
		}
		job = next
		polls++
	}

	if job.Status == StatusSucceeded {
		if ref, ok := job.OutputReference(); ok {
			metrics.GenerationsTotal.WithLabelValues("succeeded").Inc()
			p.logger.Debugw("prediction succeeded", "job_id", job.ID, "polls", polls)
			return ref, nil
		}
	}

	outcome := "timeout"
	if !job.Status.Pending() {
		outcome = string(job.Status)
	}
	metrics.GenerationsTotal.WithLabelValues(outcome).Inc()
	p.logger.Warnw("prediction did not produce output", "job_id", job.ID, "status", job.Status, "polls", polls)
	return "", ErrTimeoutOrFailure
}

func (p *Poller) wait(ctx context.Context) error {
	t := p.clock.NewTimer(p.interval)
	defer t.Stop()
	select {
	case <-t.Chan():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
