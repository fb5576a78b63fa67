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

// Package agents runs the four-agent generation pipeline: planner,
// identifier, assembler, validator. Each agent is one system prompt plus a
// role-specific optimizer context over a shared LLM provider; the runner
// sequences them and accounts for every token they spend.
package agents

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/teradata-labs/spindle/embedded"
	"github.com/teradata-labs/spindle/pkg/optimizer"
	"github.com/teradata-labs/spindle/pkg/probe"
	"github.com/teradata-labs/spindle/pkg/script"
	"github.com/teradata-labs/spindle/pkg/types"
)

// Agent names, used as token-accounting keys and prompt identifiers.
const (
	AgentPlanner    = "planner"
	AgentIdentifier = "identifier"
	AgentAssembler  = "assembler"
	AgentValidator  = "validator"
)

// searchLookupLimit caps the assembler's on-demand keyword lookups per
// draft, matching the limit stated in the rules bundle.
const searchLookupLimit = 3

// searchDirective is the line an agent emits to request keyword docs.
const searchDirective = "SEARCH_KEYWORDS:"

// ContextBuilder is the slice of the optimizer the runner consumes.
type ContextBuilder interface {
	BuildContext(ctx context.Context, query, role string) optimizer.ContextResult
	SearchTool() *optimizer.SearchTool
}

// Prober is the slice of the probe client the runner consumes.
type Prober interface {
	Probe(ctx context.Context, req probe.Request, onProgress func(probe.Progress)) (*probe.Result, error)
}

// Notification is one progress callback from the runner. Info carries
// structured advisory data such as the selected context tier.
type Notification struct {
	Phase   types.Phase
	Message string
	Info    map[string]interface{}
}

// Notifier receives runner progress. May be nil.
type Notifier func(Notification)

// Request is one generation run.
type Request struct {
	// RunID keys collaborator sidecars and artifacts to this run.
	RunID string

	// Query is the natural-language test description.
	Query string

	// Model optionally overrides the provider's configured model for this
	// run. Empty means the default.
	Model string

	// Notify receives phase transitions and advisory info. May be nil.
	Notify Notifier
}

// Result is the outcome of one complete generation run.
type Result struct {
	// Plan is the planner's numbered step list.
	Plan string

	// URL is the target site extracted from the query.
	URL string

	// Script is the extracted, runnable Robot Framework script.
	Script string

	// Verdict is the validator's structural decision on Script.
	Verdict types.ValidatorVerdict

	// SessionID is the collaborator's browser session, empty when probing
	// was skipped or failed.
	SessionID string

	// Usage is the run's token accounting across all agents.
	Usage types.RunUsage
}

// Runner sequences the four generation agents.
type Runner struct {
	provider      types.Provider
	optimizer     ContextBuilder
	prober        Prober
	maxIterations int
	maxStrategies int
	customActions bool
	actionTimeout int
	logger        *zap.Logger
}

// Config configures a Runner.
type Config struct {
	// Provider is the LLM backend shared by all four agents (required).
	Provider types.Provider

	// Optimizer builds the per-role contexts (required).
	Optimizer ContextBuilder

	// Prober is the browser-probing collaborator client. Nil skips probing;
	// the assembler then derives locators from the plan alone.
	Prober Prober

	// MaxIterations bounds retries per delegating agent, clamped to [1,5].
	// Zero means the default of 3. The validator is never retried.
	MaxIterations int

	// MaxLocatorStrategies bounds the collaborator's locator search.
	MaxLocatorStrategies int

	// EnableCustomActions permits collaborator-side custom actions.
	EnableCustomActions bool

	// CustomActionTimeout is the per-action timeout in seconds.
	CustomActionTimeout int

	// Logger defaults to a no-op logger.
	Logger *zap.Logger
}

// NewRunner creates an agent runner.
func NewRunner(cfg Config) (*Runner, error) {
	if cfg.Provider == nil {
		return nil, fmt.Errorf("agent runner requires an LLM provider")
	}
	if cfg.Optimizer == nil {
		return nil, fmt.Errorf("agent runner requires a context optimizer")
	}
	if cfg.MaxIterations == 0 {
		cfg.MaxIterations = 3
	}
	if cfg.MaxIterations < 1 {
		cfg.MaxIterations = 1
	}
	if cfg.MaxIterations > 5 {
		cfg.MaxIterations = 5
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Runner{
		provider:      cfg.Provider,
		optimizer:     cfg.Optimizer,
		prober:        cfg.Prober,
		maxIterations: cfg.MaxIterations,
		maxStrategies: cfg.MaxLocatorStrategies,
		customActions: cfg.EnableCustomActions,
		actionTimeout: cfg.CustomActionTimeout,
		logger:        cfg.Logger,
	}, nil
}

// Run executes planner, identifier, assembler, and validator in sequence
// and returns the extracted script with its verdict. Run fails only on
// provider errors that survive the retry budget or on an assembler that
// never produces an extractable script; a failed probe and an unparseable
// verdict both degrade instead.
func (r *Runner) Run(ctx context.Context, req Request) (*Result, error) {
	provider := r.providerFor(req.Model)
	result := &Result{URL: ExtractURL(req.Query)}

	plan, err := r.runPlanner(ctx, provider, req, result)
	if err != nil {
		return nil, err
	}
	result.Plan = plan

	locators := r.runIdentifier(ctx, provider, req, result)

	if err := r.runAssembler(ctx, provider, req, result, locators); err != nil {
		return nil, err
	}

	if err := r.runValidator(ctx, provider, req, result); err != nil {
		return nil, err
	}
	return result, nil
}

// providerFor resolves the provider serving one run. A model hint selects
// it through the provider's per-run switching; providers without switching
// keep their default, with a warning so the dropped hint is visible.
func (r *Runner) providerFor(model string) types.Provider {
	if model == "" || strings.EqualFold(model, r.provider.Model()) {
		return r.provider
	}
	if sw, ok := r.provider.(types.ModelSwitcher); ok {
		return sw.WithModel(model)
	}
	r.logger.Warn("provider cannot switch models, using its default",
		zap.String("requested", model),
		zap.String("model", r.provider.Model()))
	return r.provider
}

func (r *Runner) runPlanner(ctx context.Context, provider types.Provider, req Request, result *Result) (string, error) {
	notify(req.Notify, types.PhasePlanning, "Planning test steps", nil)

	cr := r.optimizer.BuildContext(ctx, req.Query, AgentPlanner)
	r.notifyTier(req.Notify, types.PhasePlanning, AgentPlanner, cr)

	prompt, err := embedded.Prompt(AgentPlanner)
	if err != nil {
		return "", err
	}
	resp, err := r.chatWithRetry(ctx, provider, AgentPlanner, "plan", []types.Message{
		{Role: types.RoleSystem, Content: string(prompt)},
		{Role: types.RoleUser, Content: composeUser(cr.Context, "Request", req.Query)},
	}, &result.Usage)
	if err != nil {
		return "", fmt.Errorf("planner failed: %w", err)
	}
	return strings.TrimSpace(resp.Content), nil
}

// runIdentifier extracts element descriptions from the plan and probes the
// live page for validated locators. Probing is best-effort: any failure
// downgrades to plan-derived locators and the pipeline continues.
func (r *Runner) runIdentifier(ctx context.Context, provider types.Provider, req Request, result *Result) string {
	notify(req.Notify, types.PhaseIdentifying, "Identifying page elements", nil)

	prompt, err := embedded.Prompt(AgentIdentifier)
	if err != nil {
		r.logger.Error("identifier prompt missing", zap.Error(err))
		return noLocators()
	}
	resp, err := r.chatWithRetry(ctx, provider, AgentIdentifier, "elements", []types.Message{
		{Role: types.RoleSystem, Content: string(prompt)},
		{Role: types.RoleUser, Content: composeUser("", "Test plan", result.Plan)},
	}, &result.Usage)
	if err != nil {
		r.logger.Warn("identifier failed, assembling without probed locators",
			zap.String("run_id", req.RunID),
			zap.Error(err))
		return noLocators()
	}

	elements := splitElementLines(resp.Content)
	if r.prober == nil || len(elements) == 0 {
		return noLocators()
	}

	probed, err := r.prober.Probe(ctx, probe.Request{
		RunID:                req.RunID,
		URL:                  result.URL,
		Query:                req.Query,
		Plan:                 result.Plan,
		Elements:             elements,
		MaxLocatorStrategies: r.maxStrategies,
		EnableCustomActions:  r.customActions,
		CustomActionTimeout:  r.actionTimeout,
	}, func(p probe.Progress) {
		notify(req.Notify, types.PhaseIdentifying, p.Message, nil)
	})
	if err != nil {
		r.logger.Warn("element probing failed, assembling without probed locators",
			zap.String("run_id", req.RunID),
			zap.Error(err))
		notify(req.Notify, types.PhaseIdentifying,
			"Element probing unavailable, deriving locators from the plan", nil)
		return noLocators()
	}

	result.SessionID = probed.SessionID
	r.logger.Info("probed page elements",
		zap.String("run_id", req.RunID),
		zap.Int("requested", len(elements)),
		zap.Int("located", len(probed.Elements)))
	return probed.FormatForAgent()
}

// runAssembler drafts the script, serving SEARCH_KEYWORDS lookups along the
// way, and retries with a corrective message when no script section can be
// extracted from a draft.
func (r *Runner) runAssembler(ctx context.Context, provider types.Provider, req Request, result *Result, locators string) error {
	notify(req.Notify, types.PhaseGenerating, "Generating Robot Framework script", nil)

	cr := r.optimizer.BuildContext(ctx, req.Query, AgentAssembler)
	r.notifyTier(req.Notify, types.PhaseGenerating, AgentAssembler, cr)

	prompt, err := embedded.Prompt(AgentAssembler)
	if err != nil {
		return err
	}

	task := fmt.Sprintf("# Test plan\n\n%s\n\n# Target URL\n\n%s\n\n# Element locators\n\n%s",
		result.Plan, result.URL, locators)
	messages := []types.Message{
		{Role: types.RoleSystem, Content: string(prompt)},
		{Role: types.RoleUser, Content: composeUser(cr.Context, "Task", task)},
	}

	var lastErr error
	for attempt := 1; attempt <= r.maxIterations; attempt++ {
		resp, err := r.chatWithSearch(ctx, provider, messages, &result.Usage)
		if err != nil {
			return fmt.Errorf("assembler failed: %w", err)
		}

		extracted, err := script.Extract(resp.Content, r.logger)
		if err == nil {
			result.Script = extracted
			return nil
		}
		lastErr = err
		r.logger.Warn("assembler draft had no extractable script, retrying",
			zap.String("run_id", req.RunID),
			zap.Int("attempt", attempt),
			zap.Error(err))
		messages = append(messages,
			types.Message{Role: types.RoleAssistant, Content: resp.Content},
			types.Message{Role: types.RoleUser, Content: "Your reply contained no Robot Framework script. " +
				"Reply with only the complete script, starting at *** Settings ***."})
	}
	return fmt.Errorf("assembler produced no extractable script after %d attempts: %w",
		r.maxIterations, lastErr)
}

// chatWithSearch runs one assembler exchange, answering up to
// searchLookupLimit SEARCH_KEYWORDS directives with keyword documentation
// before returning the final draft.
func (r *Runner) chatWithSearch(ctx context.Context, provider types.Provider, messages []types.Message, usage *types.RunUsage) (*types.Response, error) {
	resp, err := r.chatWithRetry(ctx, provider, AgentAssembler, "draft", messages, usage)
	if err != nil {
		return nil, err
	}

	for lookups := 0; lookups < searchLookupLimit; lookups++ {
		query, ok := searchQuery(resp.Content)
		if !ok {
			return resp, nil
		}

		entries := r.optimizer.SearchTool().Search(ctx, query, 0)
		var docs []string
		for _, e := range entries {
			docs = append(docs, e.Document())
		}
		answer := "No matching keywords were found. Use your best judgement."
		if len(docs) > 0 {
			answer = "Matching keyword documentation:\n\n" + strings.Join(docs, "\n\n")
		}
		r.logger.Debug("served assembler keyword lookup",
			zap.String("query", query),
			zap.Int("matches", len(docs)))

		messages = append(messages,
			types.Message{Role: types.RoleAssistant, Content: resp.Content},
			types.Message{Role: types.RoleUser, Content: answer + "\n\nNow produce the final script."})
		resp, err = r.chatWithRetry(ctx, provider, AgentAssembler, "keyword-lookup", messages, usage)
		if err != nil {
			return nil, err
		}
	}
	return resp, nil
}

// runValidator asks for a structural verdict on the extracted script. The
// validator gets exactly one request; an unparseable answer degrades to an
// invalid verdict rather than failing the run.
func (r *Runner) runValidator(ctx context.Context, provider types.Provider, req Request, result *Result) error {
	notify(req.Notify, types.PhaseValidating, "Validating script structure", nil)

	cr := r.optimizer.BuildContext(ctx, req.Query, AgentValidator)
	r.notifyTier(req.Notify, types.PhaseValidating, AgentValidator, cr)

	prompt, err := embedded.Prompt(AgentValidator)
	if err != nil {
		return err
	}
	resp, err := provider.Chat(ctx, []types.Message{
		{Role: types.RoleSystem, Content: string(prompt)},
		{Role: types.RoleUser, Content: composeUser(cr.Context, "Script", result.Script)},
	})
	if err != nil {
		return fmt.Errorf("validator failed: %w", err)
	}
	result.Usage.Record(AgentValidator, "verdict", resp.Usage)

	verdict, err := script.ParseVerdict(resp.Content)
	if err != nil {
		if !errors.Is(err, script.ErrVerdictUnparseable) {
			return err
		}
		r.logger.Warn("validator verdict unparseable, treating as invalid",
			zap.String("run_id", req.RunID))
		verdict = types.ValidatorVerdict{
			Valid:  false,
			Reason: "validator response could not be parsed",
		}
	}
	result.Verdict = verdict
	return nil
}

// chatWithRetry sends one conversation, retrying provider errors and empty
// completions up to the iteration budget. Every successful request is
// recorded against the (agent, task) pair.
func (r *Runner) chatWithRetry(ctx context.Context, provider types.Provider, agent, task string, messages []types.Message, usage *types.RunUsage) (*types.Response, error) {
	var lastErr error
	for attempt := 1; attempt <= r.maxIterations; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		resp, err := provider.Chat(ctx, messages)
		if err != nil {
			lastErr = err
			r.logger.Warn("agent request failed",
				zap.String("agent", agent),
				zap.String("task", task),
				zap.Int("attempt", attempt),
				zap.Error(err))
			continue
		}
		usage.Record(agent, task, resp.Usage)
		if strings.TrimSpace(resp.Content) == "" {
			lastErr = fmt.Errorf("empty completion")
			continue
		}
		return resp, nil
	}
	return nil, fmt.Errorf("%s exhausted %d attempts: %w", agent, r.maxIterations, lastErr)
}

// notifyTier surfaces the optimizer's tier choice as advisory info.
func (r *Runner) notifyTier(n Notifier, phase types.Phase, role string, cr optimizer.ContextResult) {
	info := map[string]interface{}{
		"role": role,
		"tier": string(cr.Tier),
	}
	if cr.Degraded {
		info["degraded"] = true
	}
	if cr.Pruning != nil {
		info["pruning"] = cr.Pruning
	}
	notify(n, phase, fmt.Sprintf("Context tier %s for %s", cr.Tier, role), info)
}

func notify(n Notifier, phase types.Phase, message string, info map[string]interface{}) {
	if n != nil {
		n(Notification{Phase: phase, Message: message, Info: info})
	}
}

// composeUser builds a user message from an optional optimizer context and
// one titled section.
func composeUser(optimizerContext, title, body string) string {
	var b strings.Builder
	if optimizerContext != "" {
		b.WriteString(optimizerContext)
		b.WriteString("\n\n")
	}
	fmt.Fprintf(&b, "# %s\n\n%s", title, body)
	return b.String()
}

// searchQuery returns the lookup terms when content is a lone
// SEARCH_KEYWORDS directive.
func searchQuery(content string) (string, bool) {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, searchDirective) {
		return "", false
	}
	// Only honor the directive when it is the whole reply; a draft that
	// merely mentions the marker is a final answer.
	if strings.ContainsRune(trimmed, '\n') {
		return "", false
	}
	query := strings.TrimSpace(strings.TrimPrefix(trimmed, searchDirective))
	return query, query != ""
}

// splitElementLines turns identifier output into clean element
// descriptions, dropping blanks and list markers.
func splitElementLines(content string) []string {
	var elements []string
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimPrefix(line, "- ")
		line = strings.TrimPrefix(line, "* ")
		if line == "" {
			continue
		}
		elements = append(elements, line)
	}
	return elements
}

func noLocators() string {
	return "No validated locators were found; derive locators from the plan."
}
