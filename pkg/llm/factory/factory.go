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

// Package factory creates LLM providers from configuration.
package factory

import (
	"fmt"
	"os"
	"time"

	"github.com/teradata-labs/spindle/pkg/config"
	"github.com/teradata-labs/spindle/pkg/llm"
	"github.com/teradata-labs/spindle/pkg/llm/anthropic"
	"github.com/teradata-labs/spindle/pkg/llm/ollama"
	"github.com/teradata-labs/spindle/pkg/llm/openai"
	"github.com/teradata-labs/spindle/pkg/types"
)

// NewProvider creates the chat provider selected by MODEL_PROVIDER.
// Online providers share a process-wide rate limiter; the local Ollama
// daemon is not throttled.
func NewProvider(cfg config.LLMConfig) (types.Provider, error) {
	switch cfg.ModelProvider {
	case config.ProviderOnline:
		return newOnlineProvider(cfg)
	case config.ProviderLocal:
		return newLocalProvider(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported MODEL_PROVIDER: %s (must be online or local)", cfg.ModelProvider)
	}
}

func newOnlineProvider(cfg config.LLMConfig) (types.Provider, error) {
	model := cfg.OnlineModel
	timeout := time.Duration(cfg.Timeout) * time.Second

	switch cfg.OnlineProvider {
	case "openai", "":
		apiKey := cfg.OpenAIAPIKey
		if apiKey == "" {
			apiKey = os.Getenv("OPENAI_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("openai API key not configured (set llm.openai_api_key or OPENAI_API_KEY)")
		}
		return openai.NewClient(openai.Config{
			APIKey:            apiKey,
			Model:             model,
			BaseURL:           cfg.OpenAIBaseURL,
			MaxTokens:         cfg.MaxTokens,
			Temperature:       cfg.Temperature,
			Timeout:           timeout,
			RateLimiterConfig: llm.DefaultRateLimiterConfig(),
		}), nil

	case "anthropic":
		apiKey := cfg.AnthropicAPIKey
		if apiKey == "" {
			apiKey = os.Getenv("ANTHROPIC_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("anthropic API key not configured (set llm.anthropic_api_key or ANTHROPIC_API_KEY)")
		}
		return anthropic.NewClient(anthropic.Config{
			APIKey:            apiKey,
			Model:             model,
			MaxTokens:         cfg.MaxTokens,
			Temperature:       cfg.Temperature,
			Timeout:           timeout,
			RateLimiterConfig: llm.DefaultRateLimiterConfig(),
		}), nil

	default:
		return nil, fmt.Errorf("unsupported online provider: %s (must be openai or anthropic)", cfg.OnlineProvider)
	}
}

func newLocalProvider(cfg config.LLMConfig) types.Provider {
	return ollama.NewClient(ollama.Config{
		Endpoint:    cfg.OllamaEndpoint,
		Model:       cfg.LocalModel,
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
		Timeout:     time.Duration(cfg.Timeout) * time.Second,
	})
}
