// Package tasks runs named generation tasks with bounded concurrency,
// inter-completion pacing, and a fixed retry budget per task.
package tasks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"postforge/internal/logger"
)

// Task is one unit of work in a batch.
type Task struct {
	Name string
	// Op produces the task's value. It is retried on failure.
	Op func(ctx context.Context) (any, error)
	// Fallback, when non-nil, synthesizes a stand-in value after the
	// retry budget is spent.
	Fallback func() any
	// RetryDelay is slept between attempts when non-zero.
	RetryDelay time.Duration
}

// Outcome describes how a task's value was obtained.
type Outcome int

const (
	Succeeded Outcome = iota
	FallbackApplied
)

// Result is the terminal state of one task.
type Result struct {
	Name     string
	Value    any
	Outcome  Outcome
	Attempts int
}

// ExhaustedRetriesError is returned when a task fails every attempt and
// has no fallback.
type ExhaustedRetriesError struct {
	TaskName string
	Attempts int
	LastErr  error
}

func (e *ExhaustedRetriesError) Error() string {
	return fmt.Sprintf("task %s failed after %d attempts: %v", e.TaskName, e.Attempts, e.LastErr)
}

func (e *ExhaustedRetriesError) Unwrap() error { return e.LastErr }

// Invoker retries a task's operation up to MaxAttempts before consulting
// its fallback.
type Invoker struct {
	MaxAttempts int
}

// Invoke runs the task until it succeeds, the attempt budget runs out, or
// the context is cancelled. A task with a fallback never returns an error
// from retry exhaustion.
func (inv Invoker) Invoke(ctx context.Context, t Task) (Result, error) {
	attempts := inv.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	log := logger.With("tasks")
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return Result{}, &ExhaustedRetriesError{TaskName: t.Name, Attempts: attempt - 1, LastErr: err}
		}

		value, err := t.Op(ctx)
		if err == nil {
			return Result{Name: t.Name, Value: value, Outcome: Succeeded, Attempts: attempt}, nil
		}
		lastErr = err
		log.Warn().Str("task", t.Name).Int("attempt", attempt).Err(err).Msg("task attempt failed")

		if attempt < attempts && t.RetryDelay > 0 {
			select {
			case <-time.After(t.RetryDelay):
			case <-ctx.Done():
				return Result{}, &ExhaustedRetriesError{TaskName: t.Name, Attempts: attempt, LastErr: ctx.Err()}
			}
		}
	}

	if t.Fallback != nil {
		log.Warn().Str("task", t.Name).Msg("applying fallback value")
		return Result{Name: t.Name, Value: t.Fallback(), Outcome: FallbackApplied, Attempts: attempts}, nil
	}
	return Result{}, &ExhaustedRetriesError{TaskName: t.Name, Attempts: attempts, LastErr: lastErr}
}

// Scheduler runs batches of tasks.
type Scheduler struct {
	Invoker Invoker
	// CompletionDelay paces result collection so downstream services see
	// a gap between completions.
	CompletionDelay time.Duration
}

type outcome struct {
	result Result
	err    error
}

// RunBatch runs tasks with at most maxConcurrency in flight and returns
// results keyed by task name. The first terminal failure aborts the batch:
// remaining results are discarded, though in-flight operations run to
// completion.
func (s Scheduler) RunBatch(ctx context.Context, batch []Task, maxConcurrency int) (map[string]Result, error) {
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}

	sem := make(chan struct{}, maxConcurrency)
	out := make(chan outcome, len(batch))
	var wg sync.WaitGroup

	for _, t := range batch {
		wg.Add(1)
		go func(t Task) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			res, err := s.Invoker.Invoke(ctx, t)
			out <- outcome{result: res, err: err}
		}(t)
	}
	go func() {
		wg.Wait()
		close(out)
	}()

	results := make(map[string]Result, len(batch))
	for i := 0; i < len(batch); i++ {
		o := <-out
		if o.err != nil {
			return nil, o.err
		}
		results[o.result.Name] = o.result

		if s.CompletionDelay > 0 && i < len(batch)-1 {
			select {
			case <-time.After(s.CompletionDelay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	return results, nil
}
