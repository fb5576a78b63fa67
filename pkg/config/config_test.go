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

package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// validConfig returns a configuration that passes Validate.
func validConfig() *Config {
	return &Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: 5001},
		LLM: LLMConfig{
			ModelProvider:  ProviderOnline,
			OnlineProvider: "openai",
			OnlineModel:    "gpt-4o",
			OpenAIAPIKey:   "sk-test",
			LocalModel:     "qwen2.5-coder:14b",
			OllamaEndpoint: "http://localhost:11434",
		},
		Robot: RobotConfig{Library: LibraryBrowser, TestsRoot: "/tmp/spindle-tests"},
		Agents: AgentsConfig{
			MaxIterations:        3,
			EnableCustomActions:  true,
			CustomActionTimeout:  5,
			MaxLocatorStrategies: 21,
		},
		Docker: DockerConfig{
			Image:             "spindle-robot-runner:latest",
			PreferRemoteImage: true,
			RemoteImage:       "ghcr.io/teradata-labs/spindle-robot-runner:latest",
			BuildContext:      "./docker/robot-runner",
		},
		Optimizer: OptimizerConfig{
			Enabled:             true,
			PredictionThreshold: 0.7,
			PruningEnabled:      false,
			CategoryThreshold:   0.8,
		},
		Probe: ProbeConfig{URL: "http://localhost:8000", TimeoutSeconds: 300},
	}
}

func TestConfig_Validate(t *testing.T) {
	t.Run("valid config passes", func(t *testing.T) {
		require.NoError(t, validConfig().Validate())
	})

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantMsg string
	}{
		{
			name:    "unknown model provider",
			mutate:  func(c *Config) { c.LLM.ModelProvider = "cloud" },
			wantMsg: "invalid MODEL_PROVIDER",
		},
		{
			name:    "online without openai key",
			mutate:  func(c *Config) { c.LLM.OpenAIAPIKey = "" },
			wantMsg: "openai API key is required",
		},
		{
			name: "online anthropic without key",
			mutate: func(c *Config) {
				c.LLM.OnlineProvider = "anthropic"
				c.LLM.AnthropicAPIKey = ""
			},
			wantMsg: "anthropic API key is required",
		},
		{
			name:    "unknown online provider",
			mutate:  func(c *Config) { c.LLM.OnlineProvider = "gemini" },
			wantMsg: "unsupported online provider",
		},
		{
			name: "local without model",
			mutate: func(c *Config) {
				c.LLM.ModelProvider = ProviderLocal
				c.LLM.LocalModel = ""
			},
			wantMsg: "LOCAL_MODEL is required",
		},
		{
			name:    "unknown robot library",
			mutate:  func(c *Config) { c.Robot.Library = "playwright" },
			wantMsg: "invalid ROBOT_LIBRARY",
		},
		{
			name:    "iterations below range",
			mutate:  func(c *Config) { c.Agents.MaxIterations = 0 },
			wantMsg: "invalid MAX_AGENT_ITERATIONS",
		},
		{
			name:    "iterations above range",
			mutate:  func(c *Config) { c.Agents.MaxIterations = 6 },
			wantMsg: "invalid MAX_AGENT_ITERATIONS",
		},
		{
			name:    "non-positive custom action timeout",
			mutate:  func(c *Config) { c.Agents.CustomActionTimeout = 0 },
			wantMsg: "invalid CUSTOM_ACTION_TIMEOUT",
		},
		{
			name:    "locator strategies above range",
			mutate:  func(c *Config) { c.Agents.MaxLocatorStrategies = 51 },
			wantMsg: "invalid MAX_LOCATOR_STRATEGIES",
		},
		{
			name:    "remote pull without remote image",
			mutate:  func(c *Config) { c.Docker.RemoteImage = "" },
			wantMsg: "REMOTE_DOCKER_IMAGE is required",
		},
		{
			name:    "prediction threshold above range",
			mutate:  func(c *Config) { c.Optimizer.PredictionThreshold = 1.3 },
			wantMsg: "invalid PREDICTION_THRESHOLD",
		},
		{
			name:    "category threshold below range",
			mutate:  func(c *Config) { c.Optimizer.CategoryThreshold = -0.1 },
			wantMsg: "invalid CATEGORY_THRESHOLD",
		},
		{
			name:    "bad port",
			mutate:  func(c *Config) { c.Server.Port = 0 },
			wantMsg: "invalid server port",
		},
		{
			name:    "missing probe url",
			mutate:  func(c *Config) { c.Probe.URL = "" },
			wantMsg: "probe.url is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestConfig_EmbeddingsProvider(t *testing.T) {
	cfg := validConfig()

	// Follows the model provider by default.
	assert.Equal(t, "openai", cfg.EmbeddingsProvider())

	cfg.LLM.ModelProvider = ProviderLocal
	assert.Equal(t, "ollama", cfg.EmbeddingsProvider())

	// Explicit setting wins.
	cfg.Embeddings.Provider = "openai"
	assert.Equal(t, "openai", cfg.EmbeddingsProvider())
}

func TestConfig_EmbeddingsEndpoint(t *testing.T) {
	cfg := validConfig()
	assert.Equal(t, "http://localhost:11434", cfg.EmbeddingsEndpoint())

	cfg.Embeddings.OllamaEndpoint = "http://embedder:11434"
	assert.Equal(t, "http://embedder:11434", cfg.EmbeddingsEndpoint())
}
