// Package saga coordinates multi-store operations through ordered steps
// with compensating rollback. It is the substitute for a distributed
// transaction across the primary store, the tuple store, the audit log and
// outbound notifications.
package saga

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// State describes where an execution is in its lifecycle.
type State string

const (
	// StateIdle means execution has not started.
	StateIdle State = "idle"
	// StateRunning means forward actions are executing.
	StateRunning State = "running"
	// StateCompleted means every forward action succeeded.
	StateCompleted State = "completed"
	// StateCompensating means rollback is in progress.
	StateCompensating State = "compensating"
	// StateCompensated means rollback finished with every compensation succeeding.
	StateCompensated State = "compensated"
	// StateCompensationFailed means rollback finished but at least one
	// compensation failed and was recorded.
	StateCompensationFailed State = "compensation_failed"
)

// Context is the mutable bag shared by all actions of one execution. Steps
// thread identifiers through it, e.g. a created resource id consumed by a
// later step and by its own compensation.
type Context map[string]any

// String returns the value under key if it is a string.
func (c Context) String(key string) (string, bool) {
	v, ok := c[key].(string)
	return v, ok
}

// Action is a forward or compensating effect of a step.
type Action func(ctx context.Context, sc Context) error

// Step pairs a forward action with an optional compensation. A nil
// Compensate marks a step with nothing to undo; rollback skips it.
type Step struct {
	Name       string
	Run        Action
	Compensate Action
}

// StepError reports which forward action failed. Unwrap exposes the cause,
// so callers can classify it through errors.Is.
type StepError struct {
	Saga string
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("saga %s: step %s: %v", e.Saga, e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// Monitor receives execution outcomes for observability. Implementations
// must not block; compensation failures reach operators only through here
// and the log.
type Monitor interface {
	ExecutionFinished(saga string, state State)
	CompensationFailed(saga, step string)
}

type nopMonitor struct{}

func (nopMonitor) ExecutionFinished(string, State) {}
func (nopMonitor) CompensationFailed(string, string) {}

// Orchestrator runs sagas. Steps within one execution are strictly
// sequential; independent executions may run concurrently.
type Orchestrator struct {
	logger  *slog.Logger
	monitor Monitor
}

// New constructs an Orchestrator. A nil monitor disables outcome reporting.
func New(logger *slog.Logger, monitor Monitor) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if monitor == nil {
		monitor = nopMonitor{}
	}
	return &Orchestrator{logger: logger, monitor: monitor}
}

// Execute runs the steps in declaration order. On a forward failure it
// compensates every previously completed step in reverse completion order
// and returns the original failure; compensation outcomes never replace
// it. Cancellation between steps also triggers compensation before the
// context error is returned. Execute never retries anything.
func (o *Orchestrator) Execute(ctx context.Context, name string, sc Context, steps []Step) error {
	if sc == nil {
		sc = make(Context)
	}
	completed := make([]Step, 0, len(steps))
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			o.compensate(ctx, name, sc, completed)
			return err
		}
		if step.Run == nil {
			o.compensate(ctx, name, sc, completed)
			return &StepError{Saga: name, Step: step.Name, Err: errors.New("saga: step has no forward action")}
		}
		if err := step.Run(ctx, sc); err != nil {
			o.logger.Error("saga step failed",
				slog.String("saga", name),
				slog.String("step", step.Name),
				slog.Any("error", err))
			o.compensate(ctx, name, sc, completed)
			return &StepError{Saga: name, Step: step.Name, Err: err}
		}
		completed = append(completed, step)
	}
	o.monitor.ExecutionFinished(name, StateCompleted)
	return nil
}

// compensate unwinds completed steps in reverse completion order. Each
// compensation is attempted independently: a failure is recorded and the
// loop continues, so every remaining compensation still runs. Compensation
// runs on a context detached from the caller's cancellation, otherwise a
// cancelled saga could never restore state.
func (o *Orchestrator) compensate(ctx context.Context, name string, sc Context, completed []Step) {
	state := StateCompensated
	rollbackCtx := context.WithoutCancel(ctx)
	for i := len(completed) - 1; i >= 0; i-- {
		step := completed[i]
		if step.Compensate == nil {
			continue
		}
		if err := step.Compensate(rollbackCtx, sc); err != nil {
			state = StateCompensationFailed
			o.monitor.CompensationFailed(name, step.Name)
			o.logger.Error("saga compensation failed",
				slog.String("saga", name),
				slog.String("step", step.Name),
				slog.Any("error", err))
		}
	}
	o.monitor.ExecutionFinished(name, state)
}
