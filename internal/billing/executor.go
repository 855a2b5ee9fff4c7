package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-credits-go/internal/metrics"
)

// MaxPromptLength bounds prompts accepted by metered actions, in runes.
const MaxPromptLength = 2000

// Generator runs the billable external job and returns its output reference.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, prompt string) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// ValidatePrompt trims the prompt and rejects empty or oversized input.
func ValidatePrompt(prompt string) (string, error) {
	p := strings.TrimSpace(prompt)
	if p == "" {
		return "", fmt.Errorf("%w: missing or invalid prompt", ErrInvalidInput)
	}
	if utf8.RuneCountInString(p) > MaxPromptLength {
		return "", fmt.Errorf("%w: prompt exceeds %d characters", ErrInvalidInput, MaxPromptLength)
	}
	return p, nil
}

// Result is the outcome of a metered generation.
type Result struct {
	ImageURL string
	Balance  int64
}

// Executor debits credits and then runs the external job. Credits are not
// restored when the job fails or times out.
type Executor struct {
	gate   *Gate
	store  Store
	gen    Generator
	clock  clockwork.Clock
	logger *zap.SugaredLogger
	cost   int64
}

func NewExecutor(gate *Gate, store Store, gen Generator, clock clockwork.Clock, logger *zap.SugaredLogger) *Executor {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Executor{gate: gate, store: store, gen: gen, clock: clock, logger: logger, cost: GenerationCost}
}

// Debit passes the gate and removes the action cost in one conditional write.
// It returns the remaining balance.
func (e *Executor) Debit(ctx context.Context, userID string) (int64, error) {
	ent, err := e.gate.Check(ctx, userID, e.cost)
	if err != nil {
		return 0, err
	}
	if !ent.Allowed {
		return ent.Balance, ent.Err()
	}
	remaining, err := e.store.DecrementIfAtLeast(ctx, userID, e.cost, e.clock.Now())
	if err != nil {
		if errors.Is(err, ErrInsufficientCredits) {
			// a concurrent debit won the race after the gate read
			metrics.EntitlementDenialsTotal.WithLabelValues(string(DenialInsufficientCredits)).Inc()
			return 0, &DeniedError{Reason: DenialInsufficientCredits}
		}
		return 0, fmt.Errorf("debit credits: %w", err)
	}
	metrics.CreditsDebitedTotal.Add(float64(e.cost))
	e.logger.Debugw("credits debited", "user_id", userID, "cost", e.cost, "balance", remaining)
	return remaining, nil
}

// Execute validates the prompt, debits and runs the generator. The request
// context is detached before the debit so a client disconnect neither skips
// the charge nor stops the job.
func (e *Executor) Execute(ctx context.Context, userID, prompt string) (*Result, error) {
	p, err := ValidatePrompt(prompt)
	if err != nil {
		return nil, err
	}
	ctx = context.WithoutCancel(ctx)

	remaining, err := e.Debit(ctx, userID)
	if err != nil {
		return nil, err
	}

	ref, err := e.gen.Generate(ctx, p)
	if err != nil {
		e.logger.Warnw("generation failed after debit",
			"user_id", userID,
			"balance", remaining,
			"kind", Classify(err),
			"err", err,
		)
		return nil, err
	}
	return &Result{ImageURL: ref, Balance: remaining}, nil
}
