// Package pipeline orchestrates the due-diligence stages: strict sequential
// execution, progress banding, stage-level retry, and the partial-failure
// policy.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/diligence-engine/internal/observability"
	"github.com/jonathan/diligence-engine/internal/stages"
	"github.com/jonathan/diligence-engine/internal/types"
)

// preCheckShare is the head slice of total progress reserved for synchronous
// pre-checks when any are configured.
const preCheckShare = 5.0

// Options configure a pipeline run.
type Options struct {
	// Stages execute strictly in slice order. Defaults to stages.DefaultStages.
	Stages []stages.Descriptor
	// PreChecks run synchronously before the stage loop; a failure aborts
	// the run before any generator call is made.
	PreChecks []stages.PreCheck
	// SkipStageIDs removes stages from the run without reordering the rest.
	SkipStageIDs []string
	// ContinueOnError keeps the loop going past a failed stage. When false
	// the run stops at the first exhausted stage with status failed.
	ContinueOnError bool
	// MaxRetries is the number of extra attempts per stage on any error.
	MaxRetries int
	// RunID identifies the run in result metadata. Callers that persist run
	// records pass the recorder's id here so both carry the same one; empty
	// mints a fresh id.
	RunID string
}

// Runner executes pipelines against a fixed environment.
type Runner struct {
	env  *stages.Env
	opts Options
}

// NewRunner builds a runner. A nil stage list selects the default pipeline.
func NewRunner(env *stages.Env, opts Options) *Runner {
	if opts.Stages == nil {
		opts.Stages = stages.DefaultStages()
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	return &Runner{env: env, opts: opts}
}

// Run executes the pipeline, reporting coarse progress to the sink.
func (r *Runner) Run(ctx context.Context, input *types.PipelineInput, sink ProgressSink) *types.PipelineResult {
	return r.runLoop(ctx, input, progressObserver(sink))
}

// RunStream executes the pipeline, emitting discrete events to the observer.
// Sequencing and failure semantics are identical to Run; only the observer
// differs.
func (r *Runner) RunStream(ctx context.Context, input *types.PipelineInput, observer Observer) *types.PipelineResult {
	if observer == nil {
		observer = func(Event) {}
	}
	return r.runLoop(ctx, input, observer)
}

func (r *Runner) runLoop(ctx context.Context, input *types.PipelineInput, observer Observer) *types.PipelineResult {
	runID := r.opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	startedAt := time.Now()
	emit := r.emitter(observer)

	emit(Event{Type: EventStart, Message: fmt.Sprintf("assessing %s", input.Name)})

	outputs := make(map[string]*types.StageOutput)
	var stageErrors []types.StageError
	aborted := false

	active := r.activeStages()
	head := 0.0
	if len(r.opts.PreChecks) > 0 {
		head = preCheckShare
	}

	if err := r.runPreChecks(input, emit, head); err != nil {
		stageErrors = append(stageErrors, types.StageError{StageID: "prescreen", Error: err.Error()})
		result := Aggregate(r.env, nil, outputs, stageErrors, true, runID, startedAt)
		emit(Event{Type: EventError, StageID: "prescreen", Error: err.Error()})
		r.finish(emit, result)
		return result
	}

	totalWeight := 0.0
	for _, stage := range active {
		totalWeight += stage.Weight
	}

	base := head
	order := make([]string, 0, len(active))
	for _, stage := range active {
		order = append(order, stage.ID)
		band := (100 - head) * stage.Weight / totalWeight

		if err := ctx.Err(); err != nil {
			stageErrors = append(stageErrors, types.StageError{StageID: stage.ID, Error: err.Error()})
			aborted = true
			break
		}

		emit(Event{Type: EventStageStart, StageID: stage.ID, Message: stage.Title, Progress: base})

		output, err := r.runStage(ctx, stage, input, outputs, emit, base, band)
		if err != nil {
			stageErrors = append(stageErrors, types.StageError{StageID: stage.ID, Error: err.Error()})
			emit(Event{Type: EventStageError, StageID: stage.ID, Error: err.Error(), Progress: base + band})
			if r.env.Recorder != nil {
				r.env.Recorder.StageFinished(stage.ID, observability.StageStats{Status: types.StageStatusError})
			}
			if !r.opts.ContinueOnError {
				aborted = true
				break
			}
			base += band
			continue
		}

		outputs[stage.ID] = output
		emit(Event{Type: EventStageComplete, StageID: stage.ID, Message: stage.Title, Progress: base + band})
		base += band
		emit(Event{Type: EventOverallProgress, Progress: base, Message: fmt.Sprintf("%s complete", stage.Title)})
	}

	result := Aggregate(r.env, order, outputs, stageErrors, aborted, runID, startedAt)
	r.finish(emit, result)
	return result
}

// runStage executes one stage with panic recovery and up to MaxRetries extra
// attempts on any error.
func (r *Runner) runStage(ctx context.Context, stage stages.Descriptor, input *types.PipelineInput, outputs map[string]*types.StageOutput, emit Observer, base, band float64) (*types.StageOutput, error) {
	report := func(sub float64, message string) {
		if sub < 0 {
			sub = 0
		}
		if sub > 100 {
			sub = 100
		}
		emit(Event{
			Type:     EventStageProgress,
			StageID:  stage.ID,
			Message:  message,
			Progress: base + band*sub/100,
		})
	}

	var lastErr error
	for attempt := 0; attempt <= r.opts.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if attempt > 0 {
			r.env.Logger.Warn("retrying stage", "stage", stage.ID, "attempt", attempt+1, "error", lastErr)
		}

		started := time.Now()
		output, err := r.invoke(ctx, stage, input, outputs, report)
		if err == nil {
			output.Duration = time.Since(started)
			if r.env.Recorder != nil {
				r.env.Recorder.StageDuration(stage.ID, output.Duration)
			}
			return output, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

// invoke calls the stage handler, converting a panic into an error so one
// misbehaving stage cannot take down the run.
func (r *Runner) invoke(ctx context.Context, stage stages.Descriptor, input *types.PipelineInput, outputs map[string]*types.StageOutput, report stages.ProgressFunc) (output *types.StageOutput, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("stage %s panicked: %v", stage.ID, rec)
		}
	}()
	output, err = stage.Handler(ctx, r.env, input, types.NewOutputView(outputs), report)
	if err == nil && !output.Complete() {
		err = fmt.Errorf("stage %s returned status %s without usable content", stage.ID, output.Status)
	}
	return output, err
}

// runPreChecks executes the synchronous screen, spreading its progress across
// the reserved head slice.
func (r *Runner) runPreChecks(input *types.PipelineInput, emit Observer, head float64) error {
	for i, check := range r.opts.PreChecks {
		if err := check.Run(r.env, input); err != nil {
			return fmt.Errorf("pre-check %s: %w", check.Name, err)
		}
		emit(Event{
			Type:     EventOverallProgress,
			Progress: head * float64(i+1) / float64(len(r.opts.PreChecks)),
			Message:  fmt.Sprintf("pre-check %s passed", check.Name),
		})
	}
	return nil
}

// activeStages filters out skipped stages, preserving declaration order.
func (r *Runner) activeStages() []stages.Descriptor {
	if len(r.opts.SkipStageIDs) == 0 {
		return r.opts.Stages
	}
	skip := make(map[string]bool, len(r.opts.SkipStageIDs))
	for _, id := range r.opts.SkipStageIDs {
		skip[id] = true
	}
	active := make([]stages.Descriptor, 0, len(r.opts.Stages))
	for _, stage := range r.opts.Stages {
		if !skip[stage.ID] {
			active = append(active, stage)
		}
	}
	return active
}

// emitter wraps the observer so every event is also timestamped and captured
// by the debug recorder.
func (r *Runner) emitter(observer Observer) Observer {
	return func(event Event) {
		event.At = time.Now()
		if r.env.Recorder != nil {
			r.env.Recorder.Event(string(event.Type), event.StageID, event.Message, event.Progress)
		}
		observer(event)
	}
}

func (r *Runner) finish(emit Observer, result *types.PipelineResult) {
	if r.env.Recorder != nil {
		r.env.Recorder.Finish()
	}
	if result.Status == types.StatusFailed {
		emit(Event{Type: EventError, Progress: 100, Error: "assessment failed", Result: result})
		return
	}
	emit(Event{Type: EventComplete, Progress: 100, Message: "assessment complete", Result: result})
}
