package saga

import (
	"context"
	"errors"
	"fmt"
)

// Step represents a single step in a saga with an execute and compensate function.
type Step struct {
	Name    string
	Execute func(ctx context.Context) error
	// Compensate receives the error that aborted the saga.
	Compensate func(ctx context.Context, cause error) error
	// CompensateOnFailure also compensates this step when its own Execute fails,
	// for steps whose side effect may have happened before the error was seen.
	CompensateOnFailure bool
}

// Error is returned by Execute when a step fails. It unwraps to the step error;
// compensation failures are reported separately and never replace it.
type Error struct {
	Saga            string
	Step            string
	Err             error
	CompensationErr error
}

func (e *Error) Error() string {
	if e.CompensationErr != nil {
		return fmt.Sprintf("saga %s: step %q failed (%v), compensation also failed: %v", e.Saga, e.Step, e.Err, e.CompensationErr)
	}
	return fmt.Sprintf("saga %s: step %q failed: %v", e.Saga, e.Step, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Saga orchestrates a series of steps with automatic compensation on failure.
type Saga struct {
	name  string
	steps []Step
}

// New creates a new saga with the given name.
func New(name string) *Saga {
	return &Saga{name: name}
}

// AddStep adds a step to the saga.
func (s *Saga) AddStep(step Step) *Saga {
	s.steps = append(s.steps, step)
	return s
}

// Execute runs all saga steps sequentially.
// If any step fails, it compensates all previously completed steps in reverse order.
// Returns the index of the failed step and a *Error, or -1 and nil on success.
func (s *Saga) Execute(ctx context.Context) (failedStep int, err error) {
	completed := make([]int, 0, len(s.steps))

	for i, step := range s.steps {
		if err := step.Execute(ctx); err != nil {
			toCompensate := completed
			if step.CompensateOnFailure {
				toCompensate = append(toCompensate, i)
			}
			return i, &Error{
				Saga:            s.name,
				Step:            step.Name,
				Err:             err,
				CompensationErr: s.compensate(ctx, toCompensate, err),
			}
		}
		completed = append(completed, i)
	}

	return -1, nil
}

func (s *Saga) compensate(ctx context.Context, indexes []int, cause error) error {
	var errs []error
	// Compensate in reverse order
	for i := len(indexes) - 1; i >= 0; i-- {
		step := s.steps[indexes[i]]
		if step.Compensate == nil {
			continue
		}
		if err := step.Compensate(ctx, cause); err != nil {
			errs = append(errs, fmt.Errorf("compensate step %q: %w", step.Name, err))
		}
	}
	return errors.Join(errs...)
}
