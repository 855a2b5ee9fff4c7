package generation_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ovaphlow/pitchfork/service-credits-go/internal/generation"
)

// scriptedJobs replays a fixed sequence of poll responses.
type scriptedJobs struct {
	mu        sync.Mutex
	created   *generation.Job
	createErr error
	polls     []*generation.Job
	pollErr   error
	pollErrAt int
	gets      int
}

func (s *scriptedJobs) Create(context.Context, string) (*generation.Job, error) {
	if s.createErr != nil {
		return nil, s.createErr
	}
	return s.created, nil
}

func (s *scriptedJobs) Get(_ context.Context, id string) (*generation.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gets++
	if s.pollErr != nil && s.gets == s.pollErrAt {
		return nil, s.pollErr
	}
	if len(s.polls) == 0 {
		return &generation.Job{ID: id, Status: generation.StatusProcessing}, nil
	}
	next := s.polls[0]
	if len(s.polls) > 1 {
		s.polls = s.polls[1:]
	}
	return next, nil
}

func (s *scriptedJobs) getCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gets
}

func raw(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func fastPoller(jobs generation.JobService) *generation.Poller {
	return generation.NewPoller(jobs, generation.WithInterval(time.Millisecond))
}

func TestPoller_FirstOutputOfMany(t *testing.T) {
	t.Parallel()
	jobs := &scriptedJobs{
		created: &generation.Job{ID: "p1", Status: generation.StatusStarting},
		polls: []*generation.Job{
			{ID: "p1", Status: generation.StatusProcessing},
			{ID: "p1", Status: generation.StatusSucceeded, Output: raw(t, []string{"url-1", "url-2"})},
		},
	}
	ref, err := fastPoller(jobs).Generate(context.Background(), "a cat")
	require.NoError(t, err)
	assert.Equal(t, "url-1", ref)
	assert.Equal(t, 2, jobs.getCount())
}

func TestPoller_SingleStringOutput(t *testing.T) {
	t.Parallel()
	jobs := &scriptedJobs{
		created: &generation.Job{ID: "p1", Status: generation.StatusStarting},
		polls:   []*generation.Job{{ID: "p1", Status: generation.StatusSucceeded, Output: raw(t, "url-only")}},
	}
	ref, err := fastPoller(jobs).Generate(context.Background(), "a cat")
	require.NoError(t, err)
	assert.Equal(t, "url-only", ref)
}

func TestPoller_SucceededOnCreate(t *testing.T) {
	t.Parallel()
	jobs := &scriptedJobs{
		created: &generation.Job{ID: "p1", Status: generation.StatusSucceeded, Output: raw(t, []string{"fast"})},
	}
	ref, err := fastPoller(jobs).Generate(context.Background(), "a cat")
	require.NoError(t, err)
	assert.Equal(t, "fast", ref)
	assert.Zero(t, jobs.getCount())
}

func TestPoller_PendingBeyondBoundTimesOut(t *testing.T) {
	t.Parallel()
	jobs := &scriptedJobs{created: &generation.Job{ID: "p1", Status: generation.StatusStarting}}
	_, err := fastPoller(jobs).Generate(context.Background(), "a cat")
	require.ErrorIs(t, err, generation.ErrTimeoutOrFailure)
	assert.Equal(t, generation.DefaultMaxPolls, jobs.getCount())
}

func TestPoller_FailedStatus(t *testing.T) {
	t.Parallel()
	jobs := &scriptedJobs{
		created: &generation.Job{ID: "p1", Status: generation.StatusStarting},
		polls:   []*generation.Job{{ID: "p1", Status: generation.StatusFailed}},
	}
	_, err := fastPoller(jobs).Generate(context.Background(), "a cat")
	require.ErrorIs(t, err, generation.ErrTimeoutOrFailure)
	assert.Equal(t, 1, jobs.getCount())
}

func TestPoller_CanceledKeepsPollingUntilBound(t *testing.T) {
	t.Parallel()
	assert.True(t, generation.StatusCanceled.Pending())
	jobs := &scriptedJobs{
		created: &generation.Job{ID: "p1", Status: generation.StatusStarting},
		polls:   []*generation.Job{{ID: "p1", Status: generation.StatusCanceled}},
	}
	_, err := fastPoller(jobs).Generate(context.Background(), "a cat")
	require.ErrorIs(t, err, generation.ErrTimeoutOrFailure)
	assert.Equal(t, generation.DefaultMaxPolls, jobs.getCount())
}

func TestPoller_SucceededWithoutOutputIsFailure(t *testing.T) {
	t.Parallel()
	jobs := &scriptedJobs{
		created: &generation.Job{ID: "p1", Status: generation.StatusStarting},
		polls:   []*generation.Job{{ID: "p1", Status: generation.StatusSucceeded, Output: json.RawMessage("null")}},
	}
	_, err := fastPoller(jobs).Generate(context.Background(), "a cat")
	require.ErrorIs(t, err, generation.ErrTimeoutOrFailure)
}

func TestPoller_PollErrorAbortsWithoutRetry(t *testing.T) {
	t.Parallel()
	pollErr := &generation.UpstreamError{Kind: generation.ErrPoll, StatusCode: 502, Body: "bad gateway"}
	jobs := &scriptedJobs{
		created:   &generation.Job{ID: "p1", Status: generation.StatusStarting},
		pollErr:   pollErr,
		pollErrAt: 3,
	}
	_, err := fastPoller(jobs).Generate(context.Background(), "a cat")
	require.ErrorIs(t, err, generation.ErrPoll)
	assert.Equal(t, 3, jobs.getCount())
	assert.Equal(t, "bad gateway", generation.Details(err))
}

func TestPoller_SubmissionErrorPropagates(t *testing.T) {
	t.Parallel()
	jobs := &scriptedJobs{createErr: &generation.UpstreamError{Kind: generation.ErrSubmission, StatusCode: 422}}
	_, err := fastPoller(jobs).Generate(context.Background(), "a cat")
	require.ErrorIs(t, err, generation.ErrSubmission)
	assert.Zero(t, jobs.getCount())
}

func TestPoller_FakeClockDrivesInterval(t *testing.T) {
	t.Parallel()
	fc := clockwork.NewFakeClock()
	jobs := &scriptedJobs{
		created: &generation.Job{ID: "p1", Status: generation.StatusStarting},
		polls: []*generation.Job{
			{ID: "p1", Status: generation.StatusProcessing},
			{ID: "p1", Status: generation.StatusProcessing},
			{ID: "p1", Status: generation.StatusSucceeded, Output: raw(t, []string{"late"})},
		},
	}
	p := generation.NewPoller(jobs, generation.WithClock(fc), generation.WithInterval(2*time.Second))

	type result struct {
		ref string
		err error
	}
	done := make(chan result, 1)
	start := fc.Now()
	go func() {
		ref, err := p.Generate(context.Background(), "a cat")
		done <- result{ref, err}
	}()

	res := advanceUntilDone(t, fc, 2*time.Second, done)
	require.NoError(t, res.err)
	assert.Equal(t, "late", res.ref)
	assert.Equal(t, 3, jobs.getCount())
	assert.Equal(t, 6*time.Second, fc.Since(start))
}

func advanceUntilDone[T any](t *testing.T, fc *clockwork.FakeClock, step time.Duration, done <-chan T) T {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case v := <-done:
			return v
		case <-deadline:
			t.Fatal("poller did not finish")
		default:
		}
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		err := fc.BlockUntilContext(ctx, 1)
		cancel()
		if err == nil {
			fc.Advance(step)
		}
	}
}

func TestPoller_ContextCancelledWhileWaiting(t *testing.T) {
	t.Parallel()
	jobs := &scriptedJobs{created: &generation.Job{ID: "p1", Status: generation.StatusStarting}}
	p := generation.NewPoller(jobs, generation.WithClock(clockwork.NewFakeClock()))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Generate(ctx, "a cat")
	require.ErrorIs(t, err, generation.ErrTimeoutOrFailure)
	assert.ErrorIs(t, err, context.Canceled)
}
