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
package agents

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teradata-labs/spindle/pkg/keywords"
	"github.com/teradata-labs/spindle/pkg/optimizer"
	"github.com/teradata-labs/spindle/pkg/probe"
	"github.com/teradata-labs/spindle/pkg/types"
)

const testScript = `*** Settings ***
Library    SeleniumLibrary

*** Variables ***
${URL}    https://www.google.com

*** Test Cases ***
Search For Robot Framework
    Open Browser    ${URL}    headlesschrome
    Input Text    name=q    robot framework
    Close Browser`

// step is one scripted provider turn: a canned completion or an error.
type step struct {
	content string
	err     error
}

type scriptedProvider struct {
	steps []step
	calls [][]types.Message
}

func (p *scriptedProvider) Chat(_ context.Context, messages []types.Message) (*types.Response, error) {
	i := len(p.calls)
	p.calls = append(p.calls, messages)
	if i >= len(p.steps) {
		return nil, fmt.Errorf("unexpected request %d", i)
	}
	s := p.steps[i]
	if s.err != nil {
		return nil, s.err
	}
	return &types.Response{
		Content: s.content,
		Usage:   types.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}, nil
}

func (p *scriptedProvider) Name() string  { return "scripted" }
func (p *scriptedProvider) Model() string { return "scripted-1" }

// lastUserMessage returns the final user-role message of call i.
func (p *scriptedProvider) lastUserMessage(i int) string {
	msgs := p.calls[i]
	for j := len(msgs) - 1; j >= 0; j-- {
		if msgs[j].Role == types.RoleUser {
			return msgs[j].Content
		}
	}
	return ""
}

// switchingProvider serves scripted turns under a per-run model and
// records which model answered each call.
type switchingProvider struct {
	inner  *scriptedProvider
	model  string
	served *[]string
}

func (p *switchingProvider) Chat(ctx context.Context, messages []types.Message) (*types.Response, error) {
	*p.served = append(*p.served, p.model)
	return p.inner.Chat(ctx, messages)
}

func (p *switchingProvider) Name() string  { return "scripted" }
func (p *switchingProvider) Model() string { return p.model }

func (p *switchingProvider) WithModel(model string) types.Provider {
	clone := *p
	clone.model = model
	return &clone
}

type fakeKeywordSource struct{}

func (fakeKeywordSource) Search(_ context.Context, _ string, _ int, _ float64) ([]keywords.SearchResult, error) {
	return []keywords.SearchResult{{
		Entry: keywords.KeywordEntry{
			Name:          "Input Text",
			Args:          []string{"locator", "text"},
			Documentation: "Types the given text into the text field.",
		},
		Score: 0.9,
	}}, nil
}

func (fakeKeywordSource) Get(_ context.Context, name string) (*keywords.KeywordEntry, error) {
	return nil, fmt.Errorf("keyword %q not found", name)
}

type fakeOptimizer struct {
	tool *optimizer.SearchTool
}

func newFakeOptimizer() *fakeOptimizer {
	return &fakeOptimizer{tool: optimizer.NewSearchTool(fakeKeywordSource{}, nil)}
}

func (f *fakeOptimizer) BuildContext(_ context.Context, _, role string) optimizer.ContextResult {
	return optimizer.ContextResult{
		Context: "## Library rules for " + role,
		Tier:    optimizer.TierZeroContext,
	}
}

func (f *fakeOptimizer) SearchTool() *optimizer.SearchTool { return f.tool }

type fakeProber struct {
	req    probe.Request
	result *probe.Result
	err    error
}

func (f *fakeProber) Probe(_ context.Context, req probe.Request, _ func(probe.Progress)) (*probe.Result, error) {
	f.req = req
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func newRunner(t *testing.T, provider types.Provider, prober Prober) *Runner {
	t.Helper()
	runner, err := NewRunner(Config{
		Provider:             provider,
		Optimizer:            newFakeOptimizer(),
		Prober:               prober,
		MaxLocatorStrategies: 21,
	})
	require.NoError(t, err)
	return runner
}

func TestRunner_HappyPath(t *testing.T) {
	provider := &scriptedProvider{steps: []step{
		{content: "1. Open https://www.google.com in a browser.\n2. Type \"robot framework\" into the search field.\n3. Close the browser."},
		{content: "search input field\nsearch button"},
		{content: "```robotframework\n" + testScript + "\n```"},
		{content: `{"valid": true, "reason": "ok"}`},
	}}
	prober := &fakeProber{result: &probe.Result{
		SessionID: "sess-1",
		Elements: []probe.Element{
			{Description: "search input field", Locator: "name=q", Validated: true},
		},
	}}
	runner := newRunner(t, provider, prober)

	var phases []types.Phase
	result, err := runner.Run(context.Background(), Request{
		RunID: "run-1",
		Query: "search for robot framework on https://www.google.com",
		Notify: func(n Notification) {
			phases = append(phases, n.Phase)
		},
	})
	require.NoError(t, err)

	assert.Equal(t, testScript, result.Script)
	assert.True(t, result.Verdict.Valid)
	assert.Equal(t, "https://www.google.com", result.URL)
	assert.Equal(t, "sess-1", result.SessionID)
	assert.Contains(t, result.Plan, "1. Open")

	// The identifier's elements reach the collaborator along with the plan.
	assert.Equal(t, []string{"search input field", "search button"}, prober.req.Elements)
	assert.Equal(t, result.Plan, prober.req.Plan)
	assert.Equal(t, 21, prober.req.MaxLocatorStrategies)

	// The probed locators reach the assembler.
	assert.Contains(t, provider.lastUserMessage(2), "search input field: name=q")
	// The validator sees the extracted script, not the fenced draft.
	assert.Contains(t, provider.lastUserMessage(3), "*** Settings ***")
	assert.NotContains(t, provider.lastUserMessage(3), "```")

	// One recorded request per agent.
	assert.Equal(t, 4, result.Usage.SuccessfulRequests)
	assert.Equal(t, 60, result.Usage.Usage.TotalTokens)

	// Phases advance in pipeline order.
	var order []types.Phase
	for _, p := range phases {
		if len(order) == 0 || order[len(order)-1] != p {
			order = append(order, p)
		}
	}
	assert.Equal(t, []types.Phase{
		types.PhasePlanning, types.PhaseIdentifying,
		types.PhaseGenerating, types.PhaseValidating,
	}, order)
}

func TestRunner_KeywordLookupLoop(t *testing.T) {
	provider := &scriptedProvider{steps: []step{
		{content: "1. Open the page.\n2. Close the browser."},
		{content: "search input field"},
		{content: "SEARCH_KEYWORDS: type text into a field"},
		{content: testScript},
		{content: `{"valid": true, "reason": "ok"}`},
	}}
	runner := newRunner(t, provider, nil)

	result, err := runner.Run(context.Background(), Request{RunID: "run-2", Query: "type into the field on google.com"})
	require.NoError(t, err)
	assert.Equal(t, testScript, result.Script)

	// The lookup answer carries the keyword documentation.
	followup := provider.lastUserMessage(3)
	assert.Contains(t, followup, "Input Text")
	assert.Contains(t, followup, "Types the given text")

	agent := result.Usage.PerAgent[AgentAssembler]
	assert.Equal(t, 30, agent.TotalTokens)
}

func TestRunner_AssemblerRetriesOnUnextractableDraft(t *testing.T) {
	provider := &scriptedProvider{steps: []step{
		{content: "1. Open the page."},
		{content: "search input field"},
		{content: "Sorry, I cannot write that script."},
		{content: testScript},
		{content: `{"valid": true, "reason": "ok"}`},
	}}
	runner := newRunner(t, provider, nil)

	result, err := runner.Run(context.Background(), Request{RunID: "run-3", Query: "open google.com"})
	require.NoError(t, err)
	assert.Equal(t, testScript, result.Script)

	// The retry carries a corrective instruction.
	assert.Contains(t, provider.lastUserMessage(3), "contained no Robot Framework script")
}

func TestRunner_AssemblerGivesUpAfterBudget(t *testing.T) {
	provider := &scriptedProvider{steps: []step{
		{content: "1. Open the page."},
		{content: "search input field"},
		{content: "no script here"},
		{content: "still no script"},
		{content: "nope"},
	}}
	runner := newRunner(t, provider, nil)

	_, err := runner.Run(context.Background(), Request{RunID: "run-4", Query: "open google.com"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no extractable script")
}

func TestRunner_ProbeFailureDegrades(t *testing.T) {
	provider := &scriptedProvider{steps: []step{
		{content: "1. Open the page."},
		{content: "search input field"},
		{content: testScript},
		{content: `{"valid": true, "reason": "ok"}`},
	}}
	prober := &fakeProber{err: fmt.Errorf("browser pool exhausted")}
	runner := newRunner(t, provider, prober)

	result, err := runner.Run(context.Background(), Request{RunID: "run-5", Query: "open google.com"})
	require.NoError(t, err)
	assert.Empty(t, result.SessionID)
	assert.Contains(t, provider.lastUserMessage(2), "No validated locators")
}

func TestRunner_ProviderErrorRetried(t *testing.T) {
	provider := &scriptedProvider{steps: []step{
		{err: fmt.Errorf("rate limited")},
		{content: "1. Open the page."},
		{content: "search input field"},
		{content: testScript},
		{content: `{"valid": true, "reason": "ok"}`},
	}}
	runner := newRunner(t, provider, nil)

	result, err := runner.Run(context.Background(), Request{RunID: "run-6", Query: "open google.com"})
	require.NoError(t, err)
	assert.True(t, result.Verdict.Valid)
	// The failed request is not counted as successful.
	assert.Equal(t, 4, result.Usage.SuccessfulRequests)
}

func TestRunner_UnparseableVerdictIsInvalid(t *testing.T) {
	provider := &scriptedProvider{steps: []step{
		{content: "1. Open the page."},
		{content: "search input field"},
		{content: testScript},
		{content: "I have no opinion on this script."},
	}}
	runner := newRunner(t, provider, nil)

	result, err := runner.Run(context.Background(), Request{RunID: "run-7", Query: "open google.com"})
	require.NoError(t, err)
	assert.False(t, result.Verdict.Valid)
	assert.Contains(t, result.Verdict.Reason, "could not be parsed")
}

func TestRunner_InvalidVerdictSurvives(t *testing.T) {
	provider := &scriptedProvider{steps: []step{
		{content: "1. Open the page."},
		{content: "search input field"},
		{content: testScript},
		{content: `{"valid": false, "reason": "Variables section missing"}`},
	}}
	runner := newRunner(t, provider, nil)

	result, err := runner.Run(context.Background(), Request{RunID: "run-8", Query: "open google.com"})
	require.NoError(t, err)
	assert.False(t, result.Verdict.Valid)
	assert.Equal(t, "Variables section missing", result.Verdict.Reason)
}

func TestRunner_ModelHintServesAllAgents(t *testing.T) {
	inner := &scriptedProvider{steps: []step{
		{content: "1. Open the page."},
		{content: "search input field"},
		{content: testScript},
		{content: `{"valid": true, "reason": "ok"}`},
	}}
	var served []string
	provider := &switchingProvider{inner: inner, model: "scripted-1", served: &served}
	runner := newRunner(t, provider, nil)

	result, err := runner.Run(context.Background(), Request{
		RunID: "run-9",
		Query: "open google.com",
		Model: "scripted-pro",
	})
	require.NoError(t, err)
	assert.Equal(t, testScript, result.Script)

	// Every agent call is answered under the requested model, and the
	// configured provider keeps its default afterwards.
	assert.Equal(t, []string{"scripted-pro", "scripted-pro", "scripted-pro", "scripted-pro"}, served)
	assert.Equal(t, "scripted-1", provider.Model())
}

func TestRunner_EmptyOrDefaultModelKeepsProvider(t *testing.T) {
	for _, hint := range []string{"", "SCRIPTED-1"} {
		inner := &scriptedProvider{steps: []step{
			{content: "1. Open the page."},
			{content: "search input field"},
			{content: testScript},
			{content: `{"valid": true, "reason": "ok"}`},
		}}
		var served []string
		provider := &switchingProvider{inner: inner, model: "scripted-1", served: &served}
		runner := newRunner(t, provider, nil)

		_, err := runner.Run(context.Background(), Request{
			RunID: "run-10",
			Query: "open google.com",
			Model: hint,
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"scripted-1", "scripted-1", "scripted-1", "scripted-1"}, served,
			"hint %q", hint)
	}
}

func TestRunner_ModelHintWithoutSwitchingFallsBack(t *testing.T) {
	provider := &scriptedProvider{steps: []step{
		{content: "1. Open the page."},
		{content: "search input field"},
		{content: testScript},
		{content: `{"valid": true, "reason": "ok"}`},
	}}
	runner := newRunner(t, provider, nil)

	result, err := runner.Run(context.Background(), Request{
		RunID: "run-11",
		Query: "open google.com",
		Model: "some-other-model",
	})
	require.NoError(t, err)
	assert.Equal(t, testScript, result.Script)
}

func TestNewRunner_ClampsIterations(t *testing.T) {
	base := Config{Provider: &scriptedProvider{}, Optimizer: newFakeOptimizer()}

	cfg := base
	cfg.MaxIterations = 9
	runner, err := NewRunner(cfg)
	require.NoError(t, err)
	assert.Equal(t, 5, runner.maxIterations)

	cfg = base
	cfg.MaxIterations = -1
	runner, err = NewRunner(cfg)
	require.NoError(t, err)
	assert.Equal(t, 1, runner.maxIterations)

	runner, err = NewRunner(base)
	require.NoError(t, err)
	assert.Equal(t, 3, runner.maxIterations)
}

func TestSearchQuery(t *testing.T) {
	q, ok := searchQuery("SEARCH_KEYWORDS: type text")
	assert.True(t, ok)
	assert.Equal(t, "type text", q)

	_, ok = searchQuery("SEARCH_KEYWORDS: type text\n*** Settings ***")
	assert.False(t, ok)

	_, ok = searchQuery("The script mentions SEARCH_KEYWORDS: somewhere")
	assert.False(t, ok)

	_, ok = searchQuery("SEARCH_KEYWORDS:")
	assert.False(t, ok)
}

func TestSplitElementLines(t *testing.T) {
	got := splitElementLines("- search input field\n\n* login button\nresults list\n")
	assert.Equal(t, []string{"search input field", "login button", "results list"}, got)
}

func TestComposeUser(t *testing.T) {
	msg := composeUser("rules", "Request", "open google.com")
	assert.True(t, strings.HasPrefix(msg, "rules\n\n# Request\n\n"))

	msg = composeUser("", "Request", "open google.com")
	assert.True(t, strings.HasPrefix(msg, "# Request\n\n"))
}
