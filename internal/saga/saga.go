// Package saga runs an ordered list of steps where each step declares how its
// failure affects the rest of the run.
package saga

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// Kind classifies how a step failure is handled.
type Kind int

const (
	// Fatal failures skip every later step and abort the saga.
	Fatal Kind = iota
	// BestEffort failures are recorded and otherwise ignored.
	BestEffort
	// Recoverable failures are recorded, later steps still run, and the saga
	// ends partial.
	Recoverable
)

// Outcome is the result of one step.
type Outcome string

const (
	OutcomeOK                Outcome = "ok"
	OutcomeFailedFatal       Outcome = "failed-fatal"
	OutcomeFailedRecoverable Outcome = "failed-recoverable"
	OutcomeSkipped           Outcome = "skipped"
)

// Status is the combined result of a run.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusAborted   Status = "aborted"
	StatusPartial   Status = "partial"
)

// Step is one unit of work.
type Step struct {
	Name string
	Kind Kind
	Run  func(ctx context.Context) error
}

// StepResult records what happened to a step.
type StepResult struct {
	Name     string        `json:"name"`
	Outcome  Outcome       `json:"outcome"`
	Err      error         `json:"-"`
	Duration time.Duration `json:"duration"`
}

// Report is the result of a run.
type Report struct {
	Status Status       `json:"status"`
	Steps  []StepResult `json:"steps"`
}

// Step returns the result for name.
func (r Report) Step(name string) (StepResult, bool) {
	for _, s := range r.Steps {
		if s.Name == name {
			return s, true
		}
	}
	return StepResult{}, false
}

// Err joins every step error, or returns nil when all steps succeeded.
func (r Report) Err() error {
	var errs []error
	for _, s := range r.Steps {
		if s.Err != nil {
			errs = append(errs, s.Err)
		}
	}
	return errors.Join(errs...)
}

// Run executes steps in order. A step whose Run is nil counts as ok.
func Run(ctx context.Context, logger *zap.Logger, steps ...Step) Report {
	report := Report{Status: StatusCompleted, Steps: make([]StepResult, 0, len(steps))}
	aborted := false

	for _, step := range steps {
		if aborted {
			report.Steps = append(report.Steps, StepResult{Name: step.Name, Outcome: OutcomeSkipped})
			continue
		}

		start := time.Now()
		var err error
		if step.Run != nil {
			err = step.Run(ctx)
		}
		res := StepResult{Name: step.Name, Outcome: OutcomeOK, Err: err, Duration: time.Since(start)}

		if err != nil {
			switch step.Kind {
			case Fatal:
				res.Outcome = OutcomeFailedFatal
				report.Status = StatusAborted
				aborted = true
			case Recoverable:
				res.Outcome = OutcomeFailedRecoverable
				report.Status = StatusPartial
			case BestEffort:
				res.Outcome = OutcomeFailedRecoverable
			}
			logger.Warn("saga step failed",
				zap.String("step", step.Name),
				zap.String("outcome", string(res.Outcome)),
				zap.Error(err),
			)
		} else {
			logger.Debug("saga step ok", zap.String("step", step.Name), zap.Duration("took", res.Duration))
		}
		report.Steps = append(report.Steps, res)
	}
	return report
}
