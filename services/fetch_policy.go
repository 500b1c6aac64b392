package services

import (
	"context"
	"fmt"
	"time"
)

// FetchState is a step of the bounded retry policy used for upstream list fetches.
type FetchState int

const (
	StateFetching FetchState = iota
	StateSuccess
	StateFellBackToStatic
)

func (s FetchState) String() string {
	switch s {
	case StateFetching:
		return "fetching"
	case StateSuccess:
		return "success"
	case StateFellBackToStatic:
		return "fell_back_to_static"
	}
	return fmt.Sprintf("FetchState(%d)", int(s))
}

// FetchPolicy bounds how many times a fetch is tried and how long to wait in between.
type FetchPolicy struct {
	MaxAttempts int
	Delay       time.Duration
	// Sleep waits for d or until ctx is done. Defaults to a timer; tests replace it.
	Sleep func(ctx context.Context, d time.Duration) error
}

// FetchOutcome is the terminal state of a policy run.
type FetchOutcome[T any] struct {
	State    FetchState
	Value    T
	Attempts int
	Errors   []error
}

// Transition moves the machine one step given the result of attempt.
// Fetching(n) -> Success on ok, Fetching(n+1) while attempts remain, else FellBackToStatic.
func (p FetchPolicy) Transition(attempt int, ok bool) (FetchState, int) {
	if ok {
		return StateSuccess, attempt
	}
	if attempt < p.maxAttempts() {
		return StateFetching, attempt + 1
	}
	return StateFellBackToStatic, attempt
}

// RunFetch drives fetch through the policy. A fetch succeeds when it returns a nil error.
// On fallback the outcome carries static(). A cancelled ctx is returned as an error.
func RunFetch[T any](ctx context.Context, p FetchPolicy, fetch func(ctx context.Context, attempt int) (T, error), static func() T) (FetchOutcome[T], error) {
	out := FetchOutcome[T]{State: StateFetching}
	attempt := 1
	for out.State == StateFetching {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		out.Attempts = attempt

		v, err := fetch(ctx, attempt)
		if err != nil {
			out.Errors = append(out.Errors, fmt.Errorf("attempt %d: %w", attempt, err))
		}

		next, nextAttempt := p.Transition(attempt, err == nil)
		switch next {
		case StateSuccess:
			out.Value = v
		case StateFellBackToStatic:
			out.Value = static()
		case StateFetching:
			if err := p.sleep(ctx); err != nil {
				return out, err
			}
		}
		out.State, attempt = next, nextAttempt
	}
	return out, nil
}

func (p FetchPolicy) maxAttempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

func (p FetchPolicy) sleep(ctx context.Context) error {
	if p.Sleep != nil {
		return p.Sleep(ctx, p.Delay)
	}
	return sleepCtx(ctx, p.Delay)
}

// sleepCtx waits for d or returns ctx.Err() if ctx finishes first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
