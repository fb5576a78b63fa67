// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package types contains shared types used across the spindle pipeline.
// This package breaks import cycles by providing common types that the
// orchestrator, agent runner, and LLM provider packages all depend on.
package types

import (
	"context"
	"time"
)

// ============================================================================
// Event Stream Types
// ============================================================================

// Stage identifies which half of the pipeline an event belongs to.
type Stage string

const (
	// StageGeneration covers planning through validation of the script.
	StageGeneration Stage = "generation"

	// StageExecution covers image provisioning and the container run.
	StageExecution Stage = "execution"
)

// Status is the event status within a stage.
type Status string

const (
	// StatusRunning marks a non-terminal progress or log event.
	StatusRunning Status = "running"

	// StatusInfo marks an advisory event; progress is unchanged.
	StatusInfo Status = "info"

	// StatusComplete is the single successful terminal event of a stage.
	StatusComplete Status = "complete"

	// StatusError is the single failing terminal event of a stage.
	StatusError Status = "error"

	// StatusHeartbeat is an internal marker. The SSE writer renders it as
	// the `: heartbeat` comment frame; it is never serialized as a data
	// payload and never reaches JSON consumers.
	StatusHeartbeat Status = "heartbeat"
)

// Phase is the orchestrator's position within the generation stage.
type Phase string

const (
	PhasePlanning    Phase = "planning"
	PhaseIdentifying Phase = "identifying"
	PhaseGenerating  Phase = "generating"
	PhaseValidating  Phase = "validating"
	PhaseFinalizing  Phase = "finalizing"
	PhaseDone        Phase = "done"
)

// phaseProgress is the fixed progress checkpoint per generation phase.
var phaseProgress = map[Phase]int{
	PhasePlanning:    10,
	PhaseIdentifying: 30,
	PhaseGenerating:  60,
	PhaseValidating:  85,
	PhaseFinalizing:  95,
	PhaseDone:        100,
}

// ProgressFor returns the progress checkpoint for a generation phase.
// Unknown phases return 0 so a high-water clamp leaves progress untouched.
func ProgressFor(p Phase) int {
	return phaseProgress[p]
}

// Event is a tagged record emitted to the caller. Events are the only
// external view of a run's state; ordering is per-run FIFO.
type Event struct {
	// Stage is "generation" or "execution".
	Stage Stage `json:"stage"`

	// Status is one of running, info, complete, error.
	Status Status `json:"status"`

	// Message is a human-readable description of current activity.
	Message string `json:"message,omitempty"`

	// Progress is the completion percentage in [0,100]. Zero means the
	// event carries no progress update.
	Progress int `json:"progress,omitempty"`

	// Log carries provisioning or execution output lines.
	Log string `json:"log,omitempty"`

	// RobotCode is the post-processed script. Present only on the
	// generation-stage terminal complete event.
	RobotCode string `json:"robot_code,omitempty"`

	// Result is the classified execution outcome. Present only on the
	// execution-stage terminal complete event.
	Result *ExecutionResult `json:"result,omitempty"`

	// Info carries structured advisory data (tier selection, pruning
	// stats) on status=info events.
	Info map[string]interface{} `json:"info,omitempty"`
}

// Terminal reports whether the event ends its stage.
func (e Event) Terminal() bool {
	return e.Status == StatusComplete || e.Status == StatusError
}

// ============================================================================
// Token Accounting
// ============================================================================

// Usage tracks LLM token consumption for one request or one aggregate.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Add accumulates another usage sample into u.
func (u *Usage) Add(other Usage) {
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	u.TotalTokens += other.TotalTokens
}

// TaskUsage is the per-task token breakdown keyed by stable names.
type TaskUsage struct {
	Agent string `json:"agent"`
	Task  string `json:"task"`
	Usage Usage  `json:"usage"`
}

// RunUsage aggregates token metrics at run, agent, and task granularity.
// Absence of the breakdown never fails a run; consumers must treat the
// maps as best-effort.
type RunUsage struct {
	Usage              Usage            `json:"usage"`
	SuccessfulRequests int              `json:"successful_requests"`
	PerAgent           map[string]Usage `json:"per_agent,omitempty"`
	PerTask            []TaskUsage      `json:"per_task,omitempty"`
}

// Record accumulates one completed request into the run totals and the
// per-agent / per-task breakdowns.
func (r *RunUsage) Record(agent, task string, u Usage) {
	r.Usage.Add(u)
	r.SuccessfulRequests++
	if r.PerAgent == nil {
		r.PerAgent = make(map[string]Usage)
	}
	agg := r.PerAgent[agent]
	agg.Add(u)
	r.PerAgent[agent] = agg
	r.PerTask = append(r.PerTask, TaskUsage{Agent: agent, Task: task, Usage: u})
}

// ============================================================================
// Verdict and Execution Results
// ============================================================================

// ValidatorVerdict is the validator agent's structural decision.
type ValidatorVerdict struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason"`
}

// TestStatus classifies the containerized run outcome.
type TestStatus string

const (
	TestPassed      TestStatus = "passed"
	TestFailed      TestStatus = "failed"
	TestSystemError TestStatus = "system_error"
)

// ExecutionStats mirrors the statistics/total/stat element of the
// structured XML report.
type ExecutionStats struct {
	Passed int `json:"passed"`
	Failed int `json:"failed"`
	Total  int `json:"total"`
}

// ExecutionResult is the classified outcome of one container run.
type ExecutionResult struct {
	// TestStatus is passed, failed, or system_error.
	TestStatus TestStatus `json:"test_status"`

	// Stats holds the pass/fail counts parsed from output.xml.
	Stats ExecutionStats `json:"stats"`

	// Logs is a readable timeline reconstructed from output.xml. Never
	// sourced from container stdout/stderr.
	Logs string `json:"logs,omitempty"`

	// Message carries a helpful explanation on failure or system_error.
	Message string `json:"message,omitempty"`

	// RunID names the per-run artifact directory.
	RunID string `json:"run_id,omitempty"`

	// ReportURL and LogURL point at the HTML artifacts served under
	// /reports/<run-id>/.
	ReportURL string `json:"report_url,omitempty"`
	LogURL    string `json:"log_url,omitempty"`

	// ExitCode is the container's exit status, used as a classification
	// fallback when XML parsing fails.
	ExitCode int64 `json:"exit_code"`
}

// ============================================================================
// LLM Types
// ============================================================================

// Role identifies the sender of a chat message.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single message in an LLM conversation.
type Message struct {
	// Role is system, user, or assistant.
	Role string

	// Content is the message text.
	Content string
}

// Response is a completion returned by an LLM provider.
type Response struct {
	// Content is the text response.
	Content string

	// StopReason indicates why the model stopped.
	StopReason string

	// Usage tracks token consumption for this request.
	Usage Usage
}

// Provider defines the interface for LLM providers. This allows pluggable
// backends (OpenAI-compatible, Anthropic, local Ollama).
type Provider interface {
	// Chat sends a conversation to the LLM and returns the response.
	Chat(ctx context.Context, messages []Message) (*Response, error)

	// Name returns the provider name.
	Name() string

	// Model returns the model identifier.
	Model() string
}

// ModelSwitcher is implemented by providers that can serve a single run
// with a different model than their configured default. Requests carrying
// a model hint are served through WithModel.
type ModelSwitcher interface {
	// WithModel returns a provider equivalent to this one answering with
	// the given model. The receiver is left unchanged.
	WithModel(model string) Provider
}

// ============================================================================
// Run Metadata
// ============================================================================

// RunInfo carries identity and timing for one pipeline run.
type RunInfo struct {
	// ID is the unique run identifier.
	ID string `json:"id"`

	// Query is the opaque user text that started the run.
	Query string `json:"query,omitempty"`

	// URL is the target site extracted from the query.
	URL string `json:"url,omitempty"`

	// StartedAt is when the run was created.
	StartedAt time.Time `json:"started_at"`
}
