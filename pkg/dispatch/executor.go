package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/meshailabs-org/meshai-mcp/pkg/agent"
	"github.com/meshailabs-org/meshai-mcp/pkg/auth"
	gwerr "github.com/meshailabs-org/meshai-mcp/pkg/errors"
	"github.com/meshailabs-org/meshai-mcp/pkg/logger"
	"github.com/meshailabs-org/meshai-mcp/pkg/workflow"
)

const (
	// maxStepAttempts allows one retry per step on transient failure.
	maxStepAttempts = 2

	// stepRetryInterval is the initial backoff before the retry.
	stepRetryInterval = 500 * time.Millisecond
)

// Step outcome states.
const (
	stepSucceeded = "succeeded"
	stepFailed    = "failed"
	stepSkipped   = "skipped"
)

// StepResult is the outcome of one workflow step.
type StepResult struct {
	Role   string `json:"role"`
	Agent  string `json:"agent"`
	Status string `json:"status"`
	Output any    `json:"output,omitempty"`
	Error  string `json:"error,omitempty"`
}

// RunResult is the aggregate outcome of a workflow run. Partial is set when
// any step failed or was skipped; the gathered outputs are returned anyway.
type RunResult struct {
	Workflow string       `json:"workflow"`
	RunID    string       `json:"run_id"`
	Partial  bool         `json:"partial"`
	Steps    []StepResult `json:"steps"`
	Failed   []string     `json:"failed"`
	Skipped  []string     `json:"skipped"`
}

// execute runs the workflow's steps in dependency waves. Steps within a wave
// run concurrently; a step whose dependency did not succeed is skipped
// without an agent call.
func (d *Dispatcher) execute(ctx context.Context, def *workflow.Definition, params map[string]any, user *auth.UserContext) (any, error) {
	runID := uuid.New().String()
	logger.Infow("Executing workflow",
		"workflow", def.Name,
		"run_id", runID,
		"user_id", user.UserID,
		"steps", len(def.Steps))

	run := &workflowRun{
		def:     def,
		params:  params,
		runID:   runID,
		results: make(map[string]*StepResult, len(def.Steps)),
	}

	for {
		wave, skipped := run.nextWave()
		for _, step := range skipped {
			run.results[step.Role] = &StepResult{
				Role:   step.Role,
				Agent:  step.AgentHint,
				Status: stepSkipped,
				Error:  "dependency did not succeed",
			}
		}
		if len(wave) == 0 {
			if len(skipped) == 0 {
				break
			}
			// Skips can cascade; resolve the next level before giving up.
			continue
		}

		group, groupCtx := errgroup.WithContext(ctx)
		group.SetLimit(d.maxConcurrent)
		var mu sync.Mutex
		for _, step := range wave {
			// Dependencies are complete before the wave starts, so the
			// inputs are snapshotted here rather than read from the shared
			// results map while sibling goroutines write to it.
			inputs := run.inputsFor(step)
			group.Go(func() error {
				result := d.invokeStep(groupCtx, run, step, inputs)
				mu.Lock()
				run.results[step.Role] = result
				mu.Unlock()
				// Failures are recorded, not propagated, so sibling
				// steps keep running.
				return nil
			})
		}
		_ = group.Wait()

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	return run.finish()
}

// invokeStep performs one agent call with a bounded timeout and at most one
// retry. Only transient failures are retried; an agent rejection is final.
func (d *Dispatcher) invokeStep(ctx context.Context, run *workflowRun, step workflow.AgentStep, inputs map[string]any) *StepResult {
	operation := func() (*agent.InvokeResult, error) {
		callCtx, cancel := context.WithTimeout(ctx, d.stepTimeout)
		defer cancel()

		result, err := d.agents.Invoke(callCtx, &agent.InvokeRequest{
			AgentID:  step.AgentHint,
			Role:     step.Role,
			Workflow: run.def.Name,
			RunID:    run.runID,
			Params:   run.params,
			Inputs:   inputs,
		})
		if err != nil && !agent.IsTransient(err) {
			return nil, backoff.Permanent(err)
		}
		return result, err
	}

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = stepRetryInterval

	result, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(expBackoff),
		backoff.WithMaxTries(maxStepAttempts),
		backoff.WithNotify(func(err error, duration time.Duration) {
			logger.Debugw("Retrying workflow step",
				"run_id", run.runID,
				"role", step.Role,
				"delay", duration,
				"error", err)
		}),
	)
	if err != nil {
		logger.Warnw("Workflow step failed",
			"run_id", run.runID,
			"role", step.Role,
			"agent", step.AgentHint,
			"error", err)
		return &StepResult{
			Role:   step.Role,
			Agent:  step.AgentHint,
			Status: stepFailed,
			Error:  err.Error(),
		}
	}

	return &StepResult{
		Role:   step.Role,
		Agent:  result.AgentID,
		Status: stepSucceeded,
		Output: result.Output,
	}
}

// workflowRun tracks per-step outcomes while the waves execute. Wave
// boundaries are the only synchronization points: results is written under
// the executor's mutex during a wave and only read between waves.
type workflowRun struct {
	def     *workflow.Definition
	params  map[string]any
	runID   string
	results map[string]*StepResult
}

// nextWave returns the steps whose dependencies have all succeeded, plus the
// steps that can never run because a dependency failed or was skipped.
func (r *workflowRun) nextWave() (ready, skipped []workflow.AgentStep) {
	for _, step := range r.def.Steps {
		if _, done := r.results[step.Role]; done {
			continue
		}
		runnable := true
		for _, dep := range step.DependsOn {
			result, done := r.results[dep]
			if !done {
				runnable = false
				break
			}
			if result.Status != stepSucceeded {
				skipped = append(skipped, step)
				runnable = false
				break
			}
		}
		if runnable {
			ready = append(ready, step)
		}
	}
	return ready, skipped
}

// inputsFor gathers the outputs of the step's succeeded dependencies. It
// must only be called between waves, while no goroutine is writing results.
func (r *workflowRun) inputsFor(step workflow.AgentStep) map[string]any {
	if len(step.DependsOn) == 0 {
		return nil
	}
	inputs := make(map[string]any, len(step.DependsOn))
	for _, dep := range step.DependsOn {
		if result, ok := r.results[dep]; ok && result.Status == stepSucceeded {
			inputs[dep] = result.Output
		}
	}
	return inputs
}

// finish aggregates the run. A run where nothing succeeded is an upstream
// failure; anything else returns the gathered results, flagged partial when
// incomplete.
func (r *workflowRun) finish() (*RunResult, error) {
	result := &RunResult{
		Workflow: r.def.Name,
		RunID:    r.runID,
		Steps:    make([]StepResult, 0, len(r.def.Steps)),
		Failed:   []string{},
		Skipped:  []string{},
	}

	succeeded := 0
	for _, step := range r.def.Steps {
		stepResult, ok := r.results[step.Role]
		if !ok {
			// Unreachable dependency declaration; treat as skipped.
			stepResult = &StepResult{
				Role:   step.Role,
				Agent:  step.AgentHint,
				Status: stepSkipped,
				Error:  "unsatisfiable dependencies",
			}
		}
		result.Steps = append(result.Steps, *stepResult)
		switch stepResult.Status {
		case stepSucceeded:
			succeeded++
		case stepFailed:
			result.Failed = append(result.Failed, step.Role)
		case stepSkipped:
			result.Skipped = append(result.Skipped, step.Role)
		}
	}

	if succeeded == 0 && len(r.def.Steps) > 0 {
		return nil, gwerr.NewUpstreamAgentError(
			fmt.Sprintf("workflow %s produced no results: all steps failed", r.def.Name), nil)
	}

	result.Partial = len(result.Failed) > 0 || len(result.Skipped) > 0
	if result.Partial {
		logger.Warnw("Workflow completed partially",
			"workflow", r.def.Name,
			"run_id", r.runID,
			"failed", result.Failed,
			"skipped", result.Skipped)
	}
	return result, nil
}
