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
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/teradata-labs/spindle/pkg/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage Spindle configuration",
	Long:  `Manage configuration files and secrets for Spindle.`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate example configuration file",
	Long:  `Generate an example spindle.yaml configuration file in the data directory.`,
	Run:   runConfigInit,
}

var configSetKeyCmd = &cobra.Command{
	Use:   "set-key [key-name]",
	Short: "Save API key to system keyring",
	Long: `Save an API key to the system keyring securely.

The key will be stored in your system's secure credential storage
(Keychain on macOS, Credential Manager on Windows, Secret Service on Linux).

Run 'spindle config list-keys' to see available key names.`,
	Args: cobra.ExactArgs(1),
	Run:  runConfigSetKey,
}

var configGetKeyCmd = &cobra.Command{
	Use:   "get-key [key-name]",
	Short: "Retrieve API key from system keyring",
	Long:  `Retrieve an API key from the system keyring (for verification).`,
	Args:  cobra.ExactArgs(1),
	Run:   runConfigGetKey,
}

var configDeleteKeyCmd = &cobra.Command{
	Use:   "delete-key [key-name]",
	Short: "Delete API key from system keyring",
	Long:  `Remove an API key from the system keyring.`,
	Args:  cobra.ExactArgs(1),
	Run:   runConfigDeleteKey,
}

var configListKeysCmd = &cobra.Command{
	Use:   "list-keys",
	Short: "List available secret keys",
	Long:  `List all available secret keys that can be stored in the keyring.`,
	Run:   runConfigListKeys,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  `Display the current configuration (merged from all sources).`,
	Run:   runConfigShow,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configSetKeyCmd)
	configCmd.AddCommand(configGetKeyCmd)
	configCmd.AddCommand(configDeleteKeyCmd)
	configCmd.AddCommand(configListKeysCmd)
	configCmd.AddCommand(configShowCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) {
	dir := config.GetSpindleDataDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "Error creating %s: %v\n", dir, err)
		os.Exit(1)
	}

	path := filepath.Join(dir, config.DefaultConfigFileName+".yaml")
	if _, err := os.Stat(path); err == nil {
		fmt.Fprintf(os.Stderr, "Config file already exists: %s\n", path)
		os.Exit(1)
	}

	if err := os.WriteFile(path, []byte(config.GenerateExampleConfig()), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing config: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✓ Created %s\n", path)
}

func runConfigSetKey(cmd *cobra.Command, args []string) {
	keyName := args[0]

	if !isValidSecretKey(keyName) {
		fmt.Fprintf(os.Stderr, "Invalid key name: %s\n", keyName)
		fmt.Fprintf(os.Stderr, "Available keys:\n")
		for _, k := range config.ListAvailableSecretKeys() {
			fmt.Fprintf(os.Stderr, "  - %s\n", k)
		}
		os.Exit(1)
	}

	// Read secret from stdin (without echo)
	fmt.Printf("Enter %s (input hidden): ", keyName)
	secretBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println() // New line after hidden input
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading input: %v\n", err)
		os.Exit(1)
	}

	secret := string(secretBytes)
	if secret == "" {
		fmt.Fprintf(os.Stderr, "Secret cannot be empty\n")
		os.Exit(1)
	}

	if err := config.SaveSecretToKeyring(keyName, secret); err != nil {
		fmt.Fprintf(os.Stderr, "Error saving to keyring: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✓ Saved %s to system keyring\n", keyName)
}

func runConfigGetKey(cmd *cobra.Command, args []string) {
	keyName := args[0]

	secret, err := config.GetSecretFromKeyring(keyName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error retrieving key: %v\n", err)
		fmt.Fprintf(os.Stderr, "Key not found in keyring. Set it with: spindle config set-key %s\n", keyName)
		os.Exit(1)
	}
	fmt.Printf("%s: %s\n", keyName, maskSecret(secret))
}

func runConfigDeleteKey(cmd *cobra.Command, args []string) {
	keyName := args[0]

	if err := config.DeleteSecretFromKeyring(keyName); err != nil {
		fmt.Fprintf(os.Stderr, "Error deleting key: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✓ Deleted %s from system keyring\n", keyName)
}

func runConfigListKeys(cmd *cobra.Command, args []string) {
	fmt.Println("Available secret keys:")
	for _, k := range config.ListAvailableSecretKeys() {
		fmt.Printf("  - %s\n", k)
	}
	fmt.Println()
	fmt.Println("Set a key with: spindle config set-key <key-name>")
}

func runConfigShow(cmd *cobra.Command, args []string) {
	fmt.Println("Current Configuration:")
	fmt.Println("======================")
	fmt.Println()

	fmt.Println("Server:")
	fmt.Printf("  Host: %s\n", cfg.Server.Host)
	fmt.Printf("  Port: %d\n", cfg.Server.Port)
	fmt.Println()

	fmt.Println("LLM:")
	fmt.Printf("  Provider mode: %s\n", cfg.LLM.ModelProvider)
	if cfg.LLM.ModelProvider == config.ProviderOnline {
		fmt.Printf("  Backend: %s\n", cfg.LLM.OnlineProvider)
		fmt.Printf("  Model: %s\n", cfg.LLM.OnlineModel)
		switch cfg.LLM.OnlineProvider {
		case "openai":
			fmt.Printf("  API Key: %s\n", maskedOrUnset(cfg.LLM.OpenAIAPIKey))
		case "anthropic":
			fmt.Printf("  API Key: %s\n", maskedOrUnset(cfg.LLM.AnthropicAPIKey))
		}
	} else {
		fmt.Printf("  Model: %s\n", cfg.LLM.LocalModel)
		fmt.Printf("  Ollama: %s\n", cfg.LLM.OllamaEndpoint)
	}
	fmt.Printf("  Temperature: %.1f\n", cfg.LLM.Temperature)
	fmt.Printf("  Max Tokens: %d\n", cfg.LLM.MaxTokens)
	fmt.Println()

	fmt.Println("Robot:")
	fmt.Printf("  Library: %s\n", cfg.Robot.Library)
	fmt.Printf("  Tests root: %s\n", cfg.Robot.TestsRoot)
	fmt.Println()

	fmt.Println("Agents:")
	fmt.Printf("  Max iterations: %d\n", cfg.Agents.MaxIterations)
	fmt.Printf("  Custom actions: %t (timeout %ds)\n", cfg.Agents.EnableCustomActions, cfg.Agents.CustomActionTimeout)
	fmt.Printf("  Max locator strategies: %d\n", cfg.Agents.MaxLocatorStrategies)
	fmt.Println()

	fmt.Println("Docker:")
	fmt.Printf("  Image: %s\n", cfg.Docker.Image)
	fmt.Printf("  Prefer remote: %t (%s)\n", cfg.Docker.PreferRemoteImage, cfg.Docker.RemoteImage)
	fmt.Println()

	fmt.Println("Optimizer:")
	fmt.Printf("  Enabled: %t\n", cfg.Optimizer.Enabled)
	fmt.Printf("  Prediction threshold: %.2f\n", cfg.Optimizer.PredictionThreshold)
	fmt.Printf("  Pruning: %t (threshold %.2f)\n", cfg.Optimizer.PruningEnabled, cfg.Optimizer.CategoryThreshold)
	fmt.Println()

	fmt.Println("Probe:")
	fmt.Printf("  URL: %s\n", cfg.Probe.URL)
}

func isValidSecretKey(name string) bool {
	for _, k := range config.ListAvailableSecretKeys() {
		if k == name {
			return true
		}
	}
	return false
}

func maskedOrUnset(secret string) string {
	if secret == "" {
		return "(not set)"
	}
	return maskSecret(secret)
}

// maskSecret shows the first and last four characters of a secret.
func maskSecret(secret string) string {
	if len(secret) <= 8 {
		return "********"
	}
	return secret[:4] + "..." + secret[len(secret)-4:]
}
