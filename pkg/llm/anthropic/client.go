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
package anthropic

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/teradata-labs/spindle/pkg/llm"
	"github.com/teradata-labs/spindle/pkg/types"
)

// Global singleton rate limiter shared across all Anthropic clients
var (
	globalRateLimiter     *llm.RateLimiter
	globalRateLimiterOnce sync.Once
)

// Client implements the types.Provider interface for the Anthropic
// Messages API using the official SDK.
type Client struct {
	client      sdk.Client
	model       string
	maxTokens   int
	temperature float64
	rateLimiter *llm.RateLimiter
}

// Config holds configuration for the Anthropic client.
type Config struct {
	APIKey            string        // Required
	Model             string        // Default: claude-sonnet-4-5-20250929
	BaseURL           string        // Optional override for proxies
	MaxTokens         int           // Default: 4096
	Temperature       float64       // Default: 0.2
	Timeout           time.Duration // Default: 120s
	RateLimiterConfig llm.RateLimiterConfig
}

// NewClient creates a new Anthropic client.
func NewClient(cfg Config) *Client {
	if cfg.Model == "" {
		cfg.Model = "claude-sonnet-4-5-20250929"
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

	options := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithRequestTimeout(cfg.Timeout),
	}
	if cfg.BaseURL != "" {
		options = append(options, option.WithBaseURL(cfg.BaseURL))
	}

	var rateLimiter *llm.RateLimiter
	if cfg.RateLimiterConfig.Enabled {
		rateLimiter = getOrCreateGlobalRateLimiter(cfg.RateLimiterConfig)
	}

	return &Client{
		client:      sdk.NewClient(options...),
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
	return "anthropic"
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

// Chat sends a conversation to the Anthropic Messages API and returns
// the response. System messages are lifted into the dedicated system
// parameter; the Messages API rejects them inline.
func (c *Client) Chat(ctx context.Context, messages []types.Message) (*types.Response, error) {
	params := sdk.MessageNewParams{
		Model:       sdk.Model(c.model),
		MaxTokens:   int64(c.maxTokens),
		Temperature: sdk.Float(c.temperature),
	}

	var systemParts []string
	sdkMessages := make([]sdk.MessageParam, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case types.RoleSystem:
			systemParts = append(systemParts, msg.Content)
		case types.RoleAssistant:
			sdkMessages = append(sdkMessages, sdk.NewAssistantMessage(sdk.NewTextBlock(msg.Content)))
		default:
			sdkMessages = append(sdkMessages, sdk.NewUserMessage(sdk.NewTextBlock(msg.Content)))
		}
	}
	if len(systemParts) > 0 {
		params.System = []sdk.TextBlockParam{{Text: strings.Join(systemParts, "\n\n")}}
	}
	params.Messages = sdkMessages

	var message *sdk.Message
	if c.rateLimiter != nil {
		result, err := c.rateLimiter.Do(ctx, func(ctx context.Context) (interface{}, error) {
			return c.client.Messages.New(ctx, params)
		})
		if err != nil {
			return nil, fmt.Errorf("anthropic message failed: %w", err)
		}
		message = result.(*sdk.Message)
	} else {
		var err error
		message, err = c.client.Messages.New(ctx, params)
		if err != nil {
			return nil, fmt.Errorf("anthropic message failed: %w", err)
		}
	}

	var content strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			content.WriteString(block.Text)
		}
	}

	inputTokens := int(message.Usage.InputTokens)
	outputTokens := int(message.Usage.OutputTokens)

	return &types.Response{
		Content:    content.String(),
		StopReason: string(message.StopReason),
		Usage: types.Usage{
			PromptTokens:     inputTokens,
			CompletionTokens: outputTokens,
			TotalTokens:      inputTokens + outputTokens,
		},
	}, nil
}

// Ensure Client implements the Provider interfaces.
var (
	_ types.Provider      = (*Client)(nil)
	_ types.ModelSwitcher = (*Client)(nil)
)
