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

// Package probe is the typed HTTP client for the browser-probing
// collaborator: given a plan and a target URL it returns candidate element
// locators that were validated against the live page up front.
//
// The collaborator also writes a per-run metrics sidecar that the
// orchestrator ingests after execution; see pkg/metrics.
package probe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/r3labs/sse/v2"
	"go.uber.org/zap"
)

// Request asks the collaborator to probe one page for the elements a plan
// needs.
type Request struct {
	// RunID keys the collaborator's metrics sidecar to this pipeline run.
	RunID string `json:"run_id"`

	// URL is the page to probe. May be the extraction placeholder, in
	// which case the collaborator searches Query for a target itself.
	URL string `json:"url"`

	// Query is the original user text.
	Query string `json:"query"`

	// Plan is the planner agent's step list.
	Plan string `json:"plan"`

	// Elements are the identifier agent's element descriptions, one per
	// entry, in plan order.
	Elements []string `json:"elements,omitempty"`

	// MaxLocatorStrategies bounds the locator search per element.
	MaxLocatorStrategies int `json:"max_locator_strategies"`

	// EnableCustomActions permits collaborator-side custom actions.
	EnableCustomActions bool `json:"enable_custom_actions"`

	// CustomActionTimeout is the per-action timeout in seconds.
	CustomActionTimeout int `json:"custom_action_timeout"`
}

// Element is one probed page element with its validated locator.
type Element struct {
	// Description is the plan step or element role this locator serves.
	Description string `json:"description"`

	// Locator is the best validated locator (strategy-prefixed).
	Locator string `json:"locator"`

	// Alternates are fallback locators, best first.
	Alternates []string `json:"alternates,omitempty"`

	// Validated reports that the collaborator confirmed the locator
	// resolves uniquely on the live page.
	Validated bool `json:"validated"`
}

// Result is the collaborator's answer for one probing request.
type Result struct {
	Elements  []Element `json:"elements"`
	SessionID string    `json:"session_id"`
	PageTitle string    `json:"page_title,omitempty"`
}

// FormatForAgent renders the probed locators as the text block handed to
// the assembler agent.
func (r *Result) FormatForAgent() string {
	if len(r.Elements) == 0 {
		return "No validated locators were found; derive locators from the plan."
	}
	var b strings.Builder
	b.WriteString("Validated element locators:\n")
	for _, e := range r.Elements {
		fmt.Fprintf(&b, "- %s: %s", e.Description, e.Locator)
		if len(e.Alternates) > 0 {
			fmt.Fprintf(&b, " (alternates: %s)", strings.Join(e.Alternates, ", "))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// Progress is one collaborator progress update streamed while probing.
type Progress struct {
	Message string `json:"message"`
	Current int    `json:"current"`
	Total   int    `json:"total"`
}

// Client talks to the browser-probing collaborator.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// Config configures the probe client.
type Config struct {
	// URL is the collaborator base URL (required).
	URL string

	// Timeout bounds one probing request end to end. Probing drives a real
	// browser, so the default is generous: 300s.
	Timeout time.Duration

	// Logger defaults to a no-op logger.
	Logger *zap.Logger
}

// NewClient creates a probe client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("probe client requires a collaborator URL")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 300 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     cfg.Logger,
	}, nil
}

// Probe sends one probing request and blocks until the collaborator
// answers. onProgress, when non-nil, receives streamed progress updates
// for the same run; progress failures never fail the probe.
func (c *Client) Probe(ctx context.Context, req Request, onProgress func(Progress)) (*Result, error) {
	if onProgress != nil {
		stop := c.subscribeProgress(ctx, req.RunID, onProgress)
		defer stop()
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal probe request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/probe", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create probe request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("probe service unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("probe service returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode probe response: %w", err)
	}

	c.logger.Debug("probe completed",
		zap.String("run_id", req.RunID),
		zap.Int("elements", len(result.Elements)),
		zap.String("session_id", result.SessionID))
	return &result, nil
}

// subscribeProgress streams the collaborator's per-run progress events in
// the background. Subscription failures are logged and swallowed; the
// probe request itself is the source of truth.
func (c *Client) subscribeProgress(ctx context.Context, runID string, onProgress func(Progress)) (stop func()) {
	subCtx, cancel := context.WithCancel(ctx)
	sseClient := sse.NewClient(fmt.Sprintf("%s/progress/%s", c.baseURL, runID))

	go func() {
		err := sseClient.SubscribeWithContext(subCtx, "message", func(msg *sse.Event) {
			var p Progress
			if err := json.Unmarshal(msg.Data, &p); err != nil {
				c.logger.Debug("unparseable probe progress event", zap.Error(err))
				return
			}
			onProgress(p)
		})
		if err != nil && subCtx.Err() == nil {
			c.logger.Debug("probe progress subscription ended",
				zap.String("run_id", runID),
				zap.Error(err))
		}
	}()
	return cancel
}
