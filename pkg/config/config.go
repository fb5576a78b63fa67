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

// Package config loads and validates spindle configuration.
//
// Priority: CLI flags > config file > environment variables > defaults.
// The pipeline contract fixes a set of bare environment variable names
// (MODEL_PROVIDER, ROBOT_LIBRARY, MAX_AGENT_ITERATIONS, ...); those are
// bound explicitly in addition to the SPINDLE_* prefixed forms.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
	"github.com/zalando/go-keyring"
)

const (
	// ServiceName for keyring storage
	ServiceName = "spindle"
	// DefaultConfigFileName is the name of the config file
	DefaultConfigFileName = "spindle"
)

// Provider modes for MODEL_PROVIDER.
const (
	ProviderOnline = "online"
	ProviderLocal  = "local"
)

// Robot Framework library bundles for ROBOT_LIBRARY.
const (
	LibrarySelenium = "selenium"
	LibraryBrowser  = "browser"
)

// Config holds all configuration for the spindle server.
type Config struct {
	// DataDir is the spindle data directory (from SPINDLE_DATA_DIR or
	// ~/.spindle). Set during config initialization; read-only afterwards.
	DataDir string `mapstructure:"-"`

	// Server configuration
	Server ServerConfig `mapstructure:"server"`

	// LLM provider configuration
	LLM LLMConfig `mapstructure:"llm"`

	// Embeddings provider configuration
	Embeddings EmbeddingsConfig `mapstructure:"embeddings"`

	// Robot Framework target library and test artifact layout
	Robot RobotConfig `mapstructure:"robot"`

	// Agent pipeline configuration
	Agents AgentsConfig `mapstructure:"agents"`

	// Docker execution configuration
	Docker DockerConfig `mapstructure:"docker"`

	// Context optimizer configuration
	Optimizer OptimizerConfig `mapstructure:"optimizer"`

	// Probe is the browser-probing collaborator endpoint
	Probe ProbeConfig `mapstructure:"probe"`

	// Maintenance sweeper configuration
	Sweeper SweeperConfig `mapstructure:"sweeper"`

	// Logging configuration
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig holds the HTTP/SSE shell configuration.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LLMConfig holds LLM provider configuration.
//
// ModelProvider selects between the online provider (OpenAI-compatible or
// Anthropic, per OnlineProvider) and the local Ollama daemon.
type LLMConfig struct {
	// ModelProvider is "online" or "local" (MODEL_PROVIDER).
	ModelProvider string `mapstructure:"model_provider"`

	// OnlineModel is the provider-specific model id used when
	// ModelProvider is online (ONLINE_MODEL).
	OnlineModel string `mapstructure:"online_model"`

	// LocalModel is the Ollama model id used when ModelProvider is local
	// (LOCAL_MODEL).
	LocalModel string `mapstructure:"local_model"`

	// OnlineProvider selects the online backend: "openai" or "anthropic".
	OnlineProvider string `mapstructure:"online_provider"`

	// OpenAIAPIKey authenticates the OpenAI-compatible backend.
	// From CLI/env/keyring only.
	OpenAIAPIKey string `mapstructure:"openai_api_key"`

	// OpenAIBaseURL overrides the OpenAI API endpoint (proxies,
	// self-hosted gateways). Empty means the public endpoint.
	OpenAIBaseURL string `mapstructure:"openai_base_url"`

	// AnthropicAPIKey authenticates the Anthropic backend.
	// From CLI/env/keyring only.
	AnthropicAPIKey string `mapstructure:"anthropic_api_key"`

	// OllamaEndpoint is the local daemon URL.
	OllamaEndpoint string `mapstructure:"ollama_endpoint"`

	// Common generation parameters
	Temperature float64 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	Timeout     int     `mapstructure:"timeout_seconds"`
}

// EmbeddingsConfig holds embedding provider configuration for the vector
// keyword store. The provider follows ModelProvider unless overridden.
type EmbeddingsConfig struct {
	// Provider is "openai" or "ollama". Empty means: openai when
	// llm.model_provider is online, ollama when local.
	Provider string `mapstructure:"provider"`

	// Model is the embedding model id.
	Model string `mapstructure:"model"`

	// OllamaEndpoint overrides llm.ollama_endpoint for embeddings.
	OllamaEndpoint string `mapstructure:"ollama_endpoint"`
}

// RobotConfig holds the target library selection and artifact layout.
type RobotConfig struct {
	// Library selects the rules bundle: "selenium" or "browser"
	// (ROBOT_LIBRARY).
	Library string `mapstructure:"library"`

	// TestsRoot is the directory holding per-run artifact directories.
	// Default: <data-dir>/tests.
	TestsRoot string `mapstructure:"tests_root"`

	// CorpusDir optionally overrides the embedded keyword corpus bundles
	// with `<CorpusDir>/<library>.yaml`.
	CorpusDir string `mapstructure:"corpus_dir"`
}

// AgentsConfig holds agent pipeline configuration.
type AgentsConfig struct {
	// MaxIterations bounds retries for delegating agents, in [1,5]
	// (MAX_AGENT_ITERATIONS). The validator is never retried.
	MaxIterations int `mapstructure:"max_iterations"`

	// EnableCustomActions toggles collaborator custom actions
	// (ENABLE_CUSTOM_ACTIONS).
	EnableCustomActions bool `mapstructure:"enable_custom_actions"`

	// CustomActionTimeout is the per-action timeout in seconds, > 0
	// (CUSTOM_ACTION_TIMEOUT).
	CustomActionTimeout int `mapstructure:"custom_action_timeout"`

	// MaxLocatorStrategies bounds the collaborator's locator search,
	// in [1,50] (MAX_LOCATOR_STRATEGIES).
	MaxLocatorStrategies int `mapstructure:"max_locator_strategies"`
}

// DockerConfig holds container execution configuration.
type DockerConfig struct {
	// Image is the local tag the runner uses.
	Image string `mapstructure:"image"`

	// PreferRemoteImage enables pull-then-retag before building locally
	// (PREFER_REMOTE_DOCKER_IMAGE).
	PreferRemoteImage bool `mapstructure:"prefer_remote_image"`

	// RemoteImage is the pre-published image reference pulled when
	// PreferRemoteImage is set (REMOTE_DOCKER_IMAGE).
	RemoteImage string `mapstructure:"remote_image"`

	// BuildContext is the local build context path used when the pull
	// fails or is disabled.
	BuildContext string `mapstructure:"build_context"`

	// Host is the Docker daemon host (default: auto-detect).
	Host string `mapstructure:"host"`
}

// OptimizerConfig holds context optimizer configuration.
type OptimizerConfig struct {
	// Enabled toggles tiers 1 and 2 (OPTIMIZATION_ENABLED).
	Enabled bool `mapstructure:"enabled"`

	// PredictionThreshold is the minimum top-pattern similarity for the
	// predicted-keywords tier, in [0,1] (PREDICTION_THRESHOLD).
	PredictionThreshold float64 `mapstructure:"prediction_threshold"`

	// PruningEnabled toggles category-based keyword pruning
	// (PRUNING_ENABLED).
	PruningEnabled bool `mapstructure:"pruning_enabled"`

	// CategoryThreshold is the minimum category similarity for pruning,
	// in [0,1] (CATEGORY_THRESHOLD).
	CategoryThreshold float64 `mapstructure:"category_threshold"`

	// RulesDir optionally overrides the embedded rules bundles; watched
	// for changes.
	RulesDir string `mapstructure:"rules_dir"`
}

// ProbeConfig holds the browser-probing collaborator endpoint.
type ProbeConfig struct {
	// URL is the collaborator base URL.
	URL string `mapstructure:"url"`

	// TimeoutSeconds bounds one probing request.
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// SweeperConfig holds the maintenance sweeper configuration.
type SweeperConfig struct {
	// Enabled starts the cron sweeper with the server.
	Enabled bool `mapstructure:"enabled"`

	// Schedule is a cron expression for the sweep cadence.
	Schedule string `mapstructure:"schedule"`

	// RunDirTTLHours is the age after which a per-run directory is
	// archived and removed.
	RunDirTTLHours int `mapstructure:"run_dir_ttl_hours"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // text, json
}

// contractEnvBindings maps viper keys to the bare environment variable
// names fixed by the external contract.
var contractEnvBindings = map[string]string{
	"llm.model_provider":             "MODEL_PROVIDER",
	"llm.online_model":               "ONLINE_MODEL",
	"llm.local_model":                "LOCAL_MODEL",
	"robot.library":                  "ROBOT_LIBRARY",
	"agents.max_iterations":          "MAX_AGENT_ITERATIONS",
	"agents.enable_custom_actions":   "ENABLE_CUSTOM_ACTIONS",
	"agents.custom_action_timeout":   "CUSTOM_ACTION_TIMEOUT",
	"agents.max_locator_strategies":  "MAX_LOCATOR_STRATEGIES",
	"docker.prefer_remote_image":     "PREFER_REMOTE_DOCKER_IMAGE",
	"docker.remote_image":            "REMOTE_DOCKER_IMAGE",
	"optimizer.enabled":              "OPTIMIZATION_ENABLED",
	"optimizer.prediction_threshold": "PREDICTION_THRESHOLD",
	"optimizer.pruning_enabled":      "PRUNING_ENABLED",
	"optimizer.category_threshold":   "CATEGORY_THRESHOLD",
}

// LoadConfig loads configuration from multiple sources with proper priority:
// 1. Command line flags (highest priority)
// 2. Config file
// 3. Environment variables
// 4. Defaults (lowest priority)
func LoadConfig(cfgFile string) (*Config, error) {
	setDefaults()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		// Config search paths (in order of priority)
		viper.AddConfigPath(GetSpindleDataDir())
		viper.AddConfigPath(".")
		viper.AddConfigPath("/etc/spindle/")
		viper.SetConfigName(DefaultConfigFileName) // spindle.yaml
		viper.SetConfigType("yaml")
	}

	// Read config file (if it exists)
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file %s: %w", viper.ConfigFileUsed(), err)
		}
		// Config file not found; using defaults + env vars + flags
	}

	// Bind environment variables: SPINDLE_* prefixed forms plus the bare
	// names fixed by the external contract.
	viper.SetEnvPrefix("SPINDLE")
	viper.AutomaticEnv()
	for key, env := range contractEnvBindings {
		if err := viper.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// DataDir is not loaded from the config file; it locates the file.
	config.DataDir = GetSpindleDataDir()
	if config.Robot.TestsRoot == "" {
		config.Robot.TestsRoot = filepath.Join(config.DataDir, "tests")
	}

	// Load secrets from keyring if not provided via CLI/env.
	// Non-fatal: keyring might not be available.
	_ = loadSecretsFromKeyring(&config)

	return &config, nil
}

// setDefaults sets default configuration values.
func setDefaults() {
	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 5001)

	// LLM defaults
	viper.SetDefault("llm.model_provider", ProviderOnline)
	viper.SetDefault("llm.online_provider", "openai")
	viper.SetDefault("llm.online_model", "gpt-4o")
	viper.SetDefault("llm.local_model", "qwen2.5-coder:14b")
	viper.SetDefault("llm.ollama_endpoint", "http://localhost:11434")
	viper.SetDefault("llm.temperature", 0.2)
	viper.SetDefault("llm.max_tokens", 4096)
	viper.SetDefault("llm.timeout_seconds", 120)

	// Embeddings defaults (provider follows llm.model_provider when empty)
	viper.SetDefault("embeddings.provider", "")
	viper.SetDefault("embeddings.model", "")

	// Robot defaults
	viper.SetDefault("robot.library", LibraryBrowser)
	viper.SetDefault("robot.tests_root", "")

	// Agent pipeline defaults
	viper.SetDefault("agents.max_iterations", 3)
	viper.SetDefault("agents.enable_custom_actions", true)
	viper.SetDefault("agents.custom_action_timeout", 5)
	viper.SetDefault("agents.max_locator_strategies", 21)

	// Docker defaults
	viper.SetDefault("docker.image", "spindle-robot-runner:latest")
	viper.SetDefault("docker.prefer_remote_image", true)
	viper.SetDefault("docker.remote_image", "ghcr.io/teradata-labs/spindle-robot-runner:latest")
	viper.SetDefault("docker.build_context", "./docker/robot-runner")

	// Optimizer defaults
	viper.SetDefault("optimizer.enabled", true)
	viper.SetDefault("optimizer.prediction_threshold", 0.7)
	viper.SetDefault("optimizer.pruning_enabled", false)
	viper.SetDefault("optimizer.category_threshold", 0.8)

	// Probe defaults
	viper.SetDefault("probe.url", "http://localhost:8000")
	viper.SetDefault("probe.timeout_seconds", 300)

	// Sweeper defaults
	viper.SetDefault("sweeper.enabled", true)
	viper.SetDefault("sweeper.schedule", "@every 30m")
	viper.SetDefault("sweeper.run_dir_ttl_hours", 72)

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "text")
}

// SecretMapping defines how to load a secret from keyring into the config.
type SecretMapping struct {
	KeyringKey string
	Setter     func(*Config, string)
	IsSet      func(*Config) bool // Returns true if the value is already set (skip keyring lookup)
}

// GetSecretMappings returns all secret mappings for the application.
func GetSecretMappings() []SecretMapping {
	return []SecretMapping{
		{
			KeyringKey: "openai_api_key",
			Setter:     func(c *Config, val string) { c.LLM.OpenAIAPIKey = val },
			IsSet:      func(c *Config) bool { return c.LLM.OpenAIAPIKey != "" },
		},
		{
			KeyringKey: "anthropic_api_key",
			Setter:     func(c *Config, val string) { c.LLM.AnthropicAPIKey = val },
			IsSet:      func(c *Config) bool { return c.LLM.AnthropicAPIKey != "" },
		},
	}
}

// loadSecretsFromKeyring loads API keys from the system keyring using the
// secret mappings.
func loadSecretsFromKeyring(config *Config) error {
	for _, mapping := range GetSecretMappings() {
		if mapping.IsSet(config) {
			continue
		}
		value, err := GetSecretFromKeyring(mapping.KeyringKey)
		if err == nil && value != "" {
			mapping.Setter(config, value)
		}
		// Non-fatal: if keyring doesn't have the key, just continue
	}
	return nil
}

// GetSecretFromKeyring retrieves a secret from the system keyring.
func GetSecretFromKeyring(key string) (string, error) {
	return keyring.Get(ServiceName, key)
}

// SaveSecretToKeyring saves a secret to the system keyring.
func SaveSecretToKeyring(key, value string) error {
	return keyring.Set(ServiceName, key, value)
}

// DeleteSecretFromKeyring removes a secret from the system keyring.
func DeleteSecretFromKeyring(key string) error {
	return keyring.Delete(ServiceName, key)
}

// ListAvailableSecretKeys returns all known secret keys that can be stored
// in the keyring.
func ListAvailableSecretKeys() []string {
	mappings := GetSecretMappings()
	keys := make([]string, len(mappings))
	for i, mapping := range mappings {
		keys[i] = mapping.KeyringKey
	}
	return keys
}

// EmbeddingsProvider resolves the effective embeddings provider, following
// the model provider when not set explicitly.
func (c *Config) EmbeddingsProvider() string {
	if c.Embeddings.Provider != "" {
		return c.Embeddings.Provider
	}
	if c.LLM.ModelProvider == ProviderLocal {
		return "ollama"
	}
	return "openai"
}

// EmbeddingsEndpoint resolves the Ollama endpoint used for embeddings.
func (c *Config) EmbeddingsEndpoint() string {
	if c.Embeddings.OllamaEndpoint != "" {
		return c.Embeddings.OllamaEndpoint
	}
	return c.LLM.OllamaEndpoint
}

// Validate validates the configuration. Each invalid value yields a specific
// message so startup failures are actionable.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}

	switch c.LLM.ModelProvider {
	case ProviderOnline:
		switch c.LLM.OnlineProvider {
		case "openai":
			if c.LLM.OpenAIAPIKey == "" {
				return fmt.Errorf("openai API key is required for MODEL_PROVIDER=online (set SPINDLE_LLM_OPENAI_API_KEY or save to keyring with 'spindle config set-key openai_api_key')")
			}
		case "anthropic":
			if c.LLM.AnthropicAPIKey == "" {
				return fmt.Errorf("anthropic API key is required for MODEL_PROVIDER=online (set SPINDLE_LLM_ANTHROPIC_API_KEY or save to keyring with 'spindle config set-key anthropic_api_key')")
			}
		default:
			return fmt.Errorf("unsupported online provider: %s (must be openai or anthropic)", c.LLM.OnlineProvider)
		}
		if c.LLM.OnlineModel == "" {
			return fmt.Errorf("ONLINE_MODEL is required when MODEL_PROVIDER=online")
		}
	case ProviderLocal:
		if c.LLM.OllamaEndpoint == "" {
			return fmt.Errorf("ollama endpoint is required when MODEL_PROVIDER=local (set llm.ollama_endpoint in config)")
		}
		if c.LLM.LocalModel == "" {
			return fmt.Errorf("LOCAL_MODEL is required when MODEL_PROVIDER=local")
		}
	default:
		return fmt.Errorf("invalid MODEL_PROVIDER: %s (must be online or local)", c.LLM.ModelProvider)
	}

	if c.Robot.Library != LibrarySelenium && c.Robot.Library != LibraryBrowser {
		return fmt.Errorf("invalid ROBOT_LIBRARY: %s (must be selenium or browser)", c.Robot.Library)
	}

	if c.Agents.MaxIterations < 1 || c.Agents.MaxIterations > 5 {
		return fmt.Errorf("invalid MAX_AGENT_ITERATIONS: %d (must be in [1,5])", c.Agents.MaxIterations)
	}
	if c.Agents.CustomActionTimeout <= 0 {
		return fmt.Errorf("invalid CUSTOM_ACTION_TIMEOUT: %d (must be a positive number of seconds)", c.Agents.CustomActionTimeout)
	}
	if c.Agents.MaxLocatorStrategies < 1 || c.Agents.MaxLocatorStrategies > 50 {
		return fmt.Errorf("invalid MAX_LOCATOR_STRATEGIES: %d (must be in [1,50])", c.Agents.MaxLocatorStrategies)
	}

	if c.Docker.Image == "" {
		return fmt.Errorf("docker.image is required")
	}
	if c.Docker.PreferRemoteImage && c.Docker.RemoteImage == "" {
		return fmt.Errorf("REMOTE_DOCKER_IMAGE is required when PREFER_REMOTE_DOCKER_IMAGE is enabled")
	}

	if c.Optimizer.PredictionThreshold < 0 || c.Optimizer.PredictionThreshold > 1 {
		return fmt.Errorf("invalid PREDICTION_THRESHOLD: %g (must be in [0,1])", c.Optimizer.PredictionThreshold)
	}
	if c.Optimizer.CategoryThreshold < 0 || c.Optimizer.CategoryThreshold > 1 {
		return fmt.Errorf("invalid CATEGORY_THRESHOLD: %g (must be in [0,1])", c.Optimizer.CategoryThreshold)
	}

	if c.Probe.URL == "" {
		return fmt.Errorf("probe.url is required")
	}

	return nil
}

// EnsureDataDirs creates the data directory layout on startup.
func (c *Config) EnsureDataDirs() error {
	for _, dir := range []string{c.DataDir, c.Robot.TestsRoot} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}

// GenerateExampleConfig generates an example configuration file.
func GenerateExampleConfig() string {
	return `# Spindle Server Configuration
# Priority: CLI flags > config file > environment variables > defaults
#
# The external contract also honors these bare environment variables:
#   MODEL_PROVIDER, ONLINE_MODEL, LOCAL_MODEL, ROBOT_LIBRARY,
#   MAX_AGENT_ITERATIONS, ENABLE_CUSTOM_ACTIONS, CUSTOM_ACTION_TIMEOUT,
#   MAX_LOCATOR_STRATEGIES, PREFER_REMOTE_DOCKER_IMAGE, REMOTE_DOCKER_IMAGE,
#   OPTIMIZATION_ENABLED, PRUNING_ENABLED, CATEGORY_THRESHOLD,
#   PREDICTION_THRESHOLD

server:
  host: 0.0.0.0
  port: 5001

llm:
  # online (OpenAI-compatible or Anthropic) or local (Ollama)
  model_provider: online
  online_provider: openai
  online_model: gpt-4o
  # openai_api_key: set via keyring (spindle config set-key openai_api_key)
  # anthropic_api_key: set via keyring (spindle config set-key anthropic_api_key)

  local_model: qwen2.5-coder:14b
  ollama_endpoint: http://localhost:11434

  temperature: 0.2
  max_tokens: 4096
  timeout_seconds: 120

robot:
  # selenium or browser
  library: browser
  # tests_root defaults to <data-dir>/tests

agents:
  max_iterations: 3          # [1,5]
  enable_custom_actions: true
  custom_action_timeout: 5   # seconds
  max_locator_strategies: 21 # [1,50]

docker:
  image: spindle-robot-runner:latest
  prefer_remote_image: true
  remote_image: ghcr.io/teradata-labs/spindle-robot-runner:latest
  build_context: ./docker/robot-runner

optimizer:
  enabled: true
  prediction_threshold: 0.7
  pruning_enabled: false
  category_threshold: 0.8
  # rules_dir: ./rules  # optional override, hot-reloaded

probe:
  url: http://localhost:8000
  timeout_seconds: 300

sweeper:
  enabled: true
  schedule: "@every 30m"
  run_dir_ttl_hours: 72

logging:
  level: info  # debug, info, warn, error
  format: text # text, json

# Note: Secrets should NEVER be committed to config files.
# Use the keyring for secure storage:
#   spindle config set-key openai_api_key
#   spindle config set-key anthropic_api_key
`
}
