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
package openai

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	gopenai "github.com/sashabaranov/go-openai"

	"github.com/teradata-labs/spindle/pkg/llm"
	"github.com/teradata-labs/spindle/pkg/types"
)

// Global singleton rate limiter shared across all OpenAI clients
var (
	globalRateLimiter     *llm.RateLimiter
	globalRateLimiterOnce sync.Once
)

// Client implements the types.Provider interface for the OpenAI chat
// completions API and OpenAI-compatible gateways.
type Client struct {
	client      *gopenai.Client
	model       string
	maxTokens   int
	temperature float64
	rateLimiter *llm.RateLimiter
}

// Config holds configuration for the OpenAI client.
type Config struct {
	APIKey            string        // Required
	Model             string        // Default: gpt-4o
	BaseURL           string        // Optional override for proxies and compatible endpoints
	MaxTokens         int           // Default: 4096
	Temperature       float64       // Default: 0.2
	Timeout           time.Duration // Default: 120s
	RateLimiterConfig llm.RateLimiterConfig
}

// NewClient creates a new OpenAI client.
func NewClient(cfg Config) *Client {
	if cfg.Model == "" {
		cfg.Model = "gpt-4o"
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 4096
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.2
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}

	apiConfig := gopenai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		apiConfig.BaseURL = cfg.BaseURL
	}
	apiConfig.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	var rateLimiter *llm.RateLimiter
	if cfg.RateLimiterConfig.Enabled {
		rateLimiter = getOrCreateGlobalRateLimiter(cfg.RateLimiterConfig)
	}

	return &Client{
		client:      gopenai.NewClientWithConfig(apiConfig),
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		rateLimiter: rateLimiter,
	}
}

// getOrCreateGlobalRateLimiter returns the global rate limiter, creating it if necessary.
func getOrCreateGlobalRateLimiter(config llm.RateLimiterConfig) *llm.RateLimiter {
	globalRateLimiterOnce.Do(func() {
		globalRateLimiter = llm.NewRateLimiter(config)
	})
	return globalRateLimiter
}

// Name returns the provider name.
func (c *Client) Name() string {
	return "openai"
}

// Model returns the model identifier.
func (c *Client) Model() string {
	return c.model
}

// WithModel returns a copy of the client answering with a different model.
// The connection, limits, and rate limiter are shared with the receiver.
func (c *Client) WithModel(model string) types.Provider {
	clone := *c
	clone.model = model
	return &clone
}

// Chat sends a conversation to OpenAI and returns the response.
func (c *Client) Chat(ctx context.Context, messages []types.Message) (*types.Response, error) {
	req := gopenai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    convertMessages(messages),
		MaxTokens:   c.maxTokens,
		Temperature: float32(c.temperature),
	}

	var resp gopenai.ChatCompletionResponse
	if c.rateLimiter != nil {
		result, err := c.rateLimiter.Do(ctx, func(ctx context.Context) (interface{}, error) {
			return c.client.CreateChatCompletion(ctx, req)
		})
		if err != nil {
			return nil, fmt.Errorf("openai chat completion failed: %w", err)
		}
		resp = result.(gopenai.ChatCompletionResponse)
	} else {
		var err error
		resp, err = c.client.CreateChatCompletion(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("openai chat completion failed: %w", err)
		}
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai returned no choices")
	}
	choice := resp.Choices[0]

	return &types.Response{
		Content:    choice.Message.Content,
		StopReason: string(choice.FinishReason),
		Usage: types.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}

// convertMessages converts pipeline messages to the OpenAI wire format.
func convertMessages(messages []types.Message) []gopenai.ChatCompletionMessage {
	apiMessages := make([]gopenai.ChatCompletionMessage, 0, len(messages))
	for _, msg := range messages {
		role := msg.Role
		switch msg.Role {
		case types.RoleSystem:
			role = gopenai.ChatMessageRoleSystem
		case types.RoleUser:
			role = gopenai.ChatMessageRoleUser
		case types.RoleAssistant:
			role = gopenai.ChatMessageRoleAssistant
		}
		apiMessages = append(apiMessages, gopenai.ChatCompletionMessage{
			Role:    role,
			Content: msg.Content,
		})
	}
	return apiMessages
}

// Ensure Client implements the Provider interfaces.
var (
	_ types.Provider      = (*Client)(nil)
	_ types.ModelSwitcher = (*Client)(nil)
)
