// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package workflow orchestrates pipeline runs. Each run is a single worker
// goroutine bridged to the caller through a FIFO event channel; the bridge
// clamps progress to its high-water mark, injects heartbeats while the
// worker is quiet, and guarantees exactly one terminal event per stage.
package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teradata-labs/spindle/pkg/agents"
	"github.com/teradata-labs/spindle/pkg/metrics"
	"github.com/teradata-labs/spindle/pkg/types"
)

// defaultHeartbeat is the quiet interval before a heartbeat frame.
const defaultHeartbeat = time.Second

// handoffBuffer sizes the worker-to-bridge channel. Event production is
// slower than consumer drain in practice; the buffer only absorbs bursts.
const handoffBuffer = 128

// Generator runs the four-agent generation pipeline.
type Generator interface {
	Run(ctx context.Context, req agents.Request) (*agents.Result, error)
}

// Executor provisions the runner image and executes scripts.
type Executor interface {
	Provision(ctx context.Context, force bool, onLog func(string)) error
	RunScript(ctx context.Context, runID, robotScript string, onLog func(string)) (*types.ExecutionResult, error)
}

// Learner records (query, script) keyword patterns from passing runs.
type Learner interface {
	Learn(ctx context.Context, query, script string) error
}

// Orchestrator sequences generation and execution and owns all Event
// emission. Components below it return structured results, never events.
type Orchestrator struct {
	generator Generator
	executor  Executor
	learner   Learner
	journal   *metrics.Journal
	heartbeat time.Duration
	logger    *zap.Logger
}

// Config configures an Orchestrator.
type Config struct {
	// Generator is the agent pipeline (required for Generate paths).
	Generator Generator

	// Executor is the container engine. Nil means execution endpoints
	// report Docker as unavailable.
	Executor Executor

	// Learner receives passing (query, script) pairs. May be nil.
	Learner Learner

	// Journal receives one merged metrics record per completed run. May be
	// nil.
	Journal *metrics.Journal

	// Heartbeat is the quiet interval before heartbeat frames, default 1s.
	Heartbeat time.Duration

	// Logger defaults to a no-op logger.
	Logger *zap.Logger
}

// New creates an Orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Generator == nil {
		return nil, fmt.Errorf("orchestrator requires a generator")
	}
	if cfg.Heartbeat == 0 {
		cfg.Heartbeat = defaultHeartbeat
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Orchestrator{
		generator: cfg.Generator,
		executor:  cfg.Executor,
		learner:   cfg.Learner,
		journal:   cfg.Journal,
		heartbeat: cfg.Heartbeat,
		logger:    cfg.Logger,
	}, nil
}

// GenerateRequest asks for script generation from a natural-language
// query.
type GenerateRequest struct {
	// Query is the natural-language test description (required).
	Query string

	// RunID is assigned when empty.
	RunID string

	// Model optionally overrides the provider's configured model for this
	// run. Empty keeps the default.
	Model string
}

// ExecuteRequest asks for containerized execution of a script.
type ExecuteRequest struct {
	// RobotCode is the script to run (required).
	RobotCode string

	// UserQuery, when non-empty and the test passes, triggers pattern
	// learning.
	UserQuery string

	// RunID is assigned when empty.
	RunID string
}

// Generate runs the generation pipeline and streams its events. The
// channel closes after the terminal generation event or when ctx is
// canceled.
func (o *Orchestrator) Generate(ctx context.Context, req GenerateRequest) <-chan types.Event {
	req.RunID = ensureRunID(req.RunID)
	return o.stream(ctx, func(ctx context.Context, emit emitFunc) {
		o.generate(ctx, req, emit, true)
	})
}

// Execute runs one script in a container and streams its events.
func (o *Orchestrator) Execute(ctx context.Context, req ExecuteRequest) <-chan types.Event {
	req.RunID = ensureRunID(req.RunID)
	return o.stream(ctx, func(ctx context.Context, emit emitFunc) {
		o.execute(ctx, req, nil, emit)
	})
}

// GenerateAndRun concatenates generation and execution over one stream.
// Execution starts only after a successful generation terminal event.
func (o *Orchestrator) GenerateAndRun(ctx context.Context, req GenerateRequest) <-chan types.Event {
	req.RunID = ensureRunID(req.RunID)
	return o.stream(ctx, func(ctx context.Context, emit emitFunc) {
		result := o.generate(ctx, req, emit, false)
		if result == nil {
			return
		}
		o.execute(ctx, ExecuteRequest{
			RobotCode: result.Script,
			UserQuery: req.Query,
			RunID:     req.RunID,
		}, result, emit)
	})
}

// ============================================================================
// Workers
// ============================================================================

// generate runs the agent pipeline. It returns the runner result on
// success and nil after emitting a terminal error. journalAlone appends
// the metrics record for generation-only runs; combined runs journal once
// after execution instead.
func (o *Orchestrator) generate(ctx context.Context, req GenerateRequest, emit emitFunc, journalAlone bool) *agents.Result {
	defer o.recoverToError(types.StageGeneration, emit)

	if req.Query == "" {
		emit(types.Event{
			Stage:   types.StageGeneration,
			Status:  types.StatusError,
			Message: "query is required",
		})
		return nil
	}

	o.logger.Info("generation started",
		zap.String("run_id", req.RunID),
		zap.Int("query_len", len(req.Query)))

	result, err := o.generator.Run(ctx, agents.Request{
		RunID:  req.RunID,
		Query:  req.Query,
		Model:  req.Model,
		Notify: notifierFor(emit),
	})
	if err != nil {
		o.logger.Error("generation failed",
			zap.String("run_id", req.RunID),
			zap.Error(err))
		emit(types.Event{
			Stage:   types.StageGeneration,
			Status:  types.StatusError,
			Message: fmt.Sprintf("Script generation failed: %v", err),
		})
		return nil
	}

	if !result.Verdict.Valid {
		reason := result.Verdict.Reason
		if reason == "" {
			reason = "the generated script did not pass structural validation"
		}
		emit(types.Event{
			Stage:   types.StageGeneration,
			Status:  types.StatusError,
			Message: reason,
		})
		return nil
	}

	emit(types.Event{
		Stage:    types.StageGeneration,
		Status:   types.StatusRunning,
		Message:  "Finalizing script",
		Progress: types.ProgressFor(types.PhaseFinalizing),
	})

	metrics.ObserveUsage(result.Usage)
	if journalAlone {
		o.appendJournal(req.RunID, result, nil)
	}

	emit(types.Event{
		Stage:     types.StageGeneration,
		Status:    types.StatusComplete,
		Message:   "Script generated",
		Progress:  types.ProgressFor(types.PhaseDone),
		RobotCode: result.Script,
	})
	return result
}

// execute provisions the image, runs the script, classifies the result,
// and triggers learning and the metrics journal. generated is non-nil on
// the combined path and carries agent-side usage for the journal.
func (o *Orchestrator) execute(ctx context.Context, req ExecuteRequest, generated *agents.Result, emit emitFunc) {
	defer o.recoverToError(types.StageExecution, emit)

	if req.RobotCode == "" {
		emit(types.Event{
			Stage:   types.StageExecution,
			Status:  types.StatusError,
			Message: "robot_code is required",
		})
		return
	}
	if o.executor == nil {
		emit(types.Event{
			Stage:   types.StageExecution,
			Status:  types.StatusError,
			Message: "Docker is not available; script execution is disabled",
		})
		return
	}

	onLog := func(line string) {
		emit(types.Event{
			Stage:  types.StageExecution,
			Status: types.StatusRunning,
			Log:    line,
		})
	}

	if err := o.executor.Provision(ctx, false, onLog); err != nil {
		o.logger.Error("image provisioning failed",
			zap.String("run_id", req.RunID),
			zap.Error(err))
		emit(types.Event{
			Stage:   types.StageExecution,
			Status:  types.StatusError,
			Message: fmt.Sprintf("Image provisioning failed: %v", err),
		})
		return
	}

	result, err := o.executor.RunScript(ctx, req.RunID, req.RobotCode, onLog)
	if err != nil {
		o.logger.Error("script execution failed",
			zap.String("run_id", req.RunID),
			zap.Error(err))
		emit(types.Event{
			Stage:   types.StageExecution,
			Status:  types.StatusError,
			Message: fmt.Sprintf("Script execution failed: %v", err),
		})
		return
	}

	metrics.ObserveTestResult(result.TestStatus)
	o.learnIfPassed(ctx, req, result)
	o.appendJournal(req.RunID, generated, result)

	emit(types.Event{
		Stage:    types.StageExecution,
		Status:   types.StatusComplete,
		Message:  fmt.Sprintf("Test %s", result.TestStatus),
		Progress: 100,
		Result:   result,
	})
}

// learnIfPassed invokes the learn hook exactly once per run, only when
// the caller supplied the original query and the test passed. Learning
// failures never affect the run outcome.
func (o *Orchestrator) learnIfPassed(ctx context.Context, req ExecuteRequest, result *types.ExecutionResult) {
	if o.learner == nil || req.UserQuery == "" || result.TestStatus != types.TestPassed {
		return
	}
	if err := o.learner.Learn(ctx, req.UserQuery, req.RobotCode); err != nil {
		o.logger.Warn("pattern learning failed",
			zap.String("run_id", req.RunID),
			zap.Error(err))
		return
	}
	o.logger.Info("learned pattern from passing run", zap.String("run_id", req.RunID))
}

// appendJournal merges agent-side usage and the browser sidecar into one
// journal record. Journal problems are logged, never surfaced.
func (o *Orchestrator) appendJournal(runID string, generated *agents.Result, execResult *types.ExecutionResult) {
	if o.journal == nil {
		return
	}

	browser, err := metrics.CollectSidecar(runID, o.logger)
	if err != nil {
		o.logger.Warn("browser metrics sidecar rejected",
			zap.String("run_id", runID),
			zap.Error(err))
	}

	record := metrics.RunRecord{WorkflowID: runID, Browser: browser}
	if generated != nil {
		record.Agent = generated.Usage
		record.URL = generated.URL
	}
	if execResult != nil {
		record.TestStatus = string(execResult.TestStatus)
	}
	if browser != nil {
		record.ExecutionTime = browser.ExecutionTime
	}
	if err := o.journal.Append(record); err != nil {
		o.logger.Warn("failed to append metrics journal",
			zap.String("run_id", runID),
			zap.Error(err))
	}
}

// recoverToError turns a worker panic into the stage's single terminal
// error event. The stack reaches the server log only.
func (o *Orchestrator) recoverToError(stage types.Stage, emit emitFunc) {
	if r := recover(); r != nil {
		o.logger.Error("worker panicked",
			zap.String("stage", string(stage)),
			zap.Any("panic", r),
			zap.Stack("stack"))
		emit(types.Event{
			Stage:   stage,
			Status:  types.StatusError,
			Message: "internal error; see server logs",
		})
	}
}

// notifierFor adapts agent runner notifications to generation events:
// phase transitions become running events at the phase's progress
// checkpoint, advisory notifications become info events.
func notifierFor(emit emitFunc) agents.Notifier {
	return func(n agents.Notification) {
		if n.Info != nil {
			emit(types.Event{
				Stage:   types.StageGeneration,
				Status:  types.StatusInfo,
				Message: n.Message,
				Info:    n.Info,
			})
			return
		}
		emit(types.Event{
			Stage:    types.StageGeneration,
			Status:   types.StatusRunning,
			Message:  n.Message,
			Progress: types.ProgressFor(n.Phase),
		})
	}
}

func ensureRunID(runID string) string {
	if runID != "" {
		return runID
	}
	return uuid.NewString()
}

// ============================================================================
// Worker / stream bridge
// ============================================================================

type emitFunc func(types.Event)

// stream starts the worker goroutine and the bridge that owns the output
// channel. The bridge forwards worker events FIFO, clamps progress to its
// high-water mark, drops anything after a stage's terminal event, and
// emits a heartbeat frame after every quiet interval. When the worker
// finishes, remaining events drain before the channel closes; when ctx is
// canceled, the stream stops within one heartbeat interval.
func (o *Orchestrator) stream(ctx context.Context, work func(context.Context, emitFunc)) <-chan types.Event {
	out := make(chan types.Event)
	handoff := make(chan types.Event, handoffBuffer)

	emit := func(ev types.Event) {
		select {
		case handoff <- ev:
		case <-ctx.Done():
		}
	}

	go func() {
		defer close(handoff)
		work(ctx, emit)
	}()

	go func() {
		defer close(out)

		stageStart := make(map[types.Stage]time.Time)
		terminal := make(map[types.Stage]bool)
		highWater := 0

		ticker := time.NewTicker(o.heartbeat)
		defer ticker.Stop()

		for {
			select {
			case ev, ok := <-handoff:
				if !ok {
					return
				}
				if terminal[ev.Stage] {
					o.logger.Warn("dropping event after terminal",
						zap.String("stage", string(ev.Stage)),
						zap.String("status", string(ev.Status)))
					continue
				}
				if _, seen := stageStart[ev.Stage]; !seen {
					stageStart[ev.Stage] = time.Now()
				}
				if ev.Progress > 0 {
					if ev.Progress < highWater {
						ev.Progress = highWater
					}
					highWater = ev.Progress
				}
				if ev.Terminal() {
					terminal[ev.Stage] = true
					metrics.ObserveStage(ev.Stage, ev.Status,
						time.Since(stageStart[ev.Stage]).Seconds())
				}
				select {
				case out <- ev:
					ticker.Reset(o.heartbeat)
				case <-ctx.Done():
					return
				}

			case <-ticker.C:
				select {
				case out <- types.Event{Status: types.StatusHeartbeat}:
				case <-ctx.Done():
					return
				}

			case <-ctx.Done():
				return
			}
		}
	}()

	return out
}
