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
	"log"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	spindlelog "github.com/teradata-labs/spindle/internal/log"
	"github.com/teradata-labs/spindle/internal/version"
	"github.com/teradata-labs/spindle/pkg/config"
)

var (
	cfgFile string
	cfg     *config.Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:     "spindle",
	Short:   "Spindle - natural language to Robot Framework test pipeline",
	Long:    `Spindle turns plain-English web test descriptions into executable Robot Framework scripts through a multi-agent LLM pipeline, and runs them in disposable Docker containers.`,
	Version: version.Get(),
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $SPINDLE_DATA_DIR/spindle.yaml)")

	// Server flags
	rootCmd.PersistentFlags().Int("port", 5001, "HTTP server port")
	rootCmd.PersistentFlags().String("host", "0.0.0.0", "HTTP server host")

	// LLM flags
	rootCmd.PersistentFlags().String("model-provider", "", "LLM provider mode (online, local)")
	rootCmd.PersistentFlags().String("online-model", "", "online model id")
	rootCmd.PersistentFlags().String("local-model", "", "local Ollama model id")

	// Robot flags
	rootCmd.PersistentFlags().String("robot-library", "", "Robot Framework library (selenium, browser)")

	// Docker flags
	rootCmd.PersistentFlags().String("docker-image", "", "runner image tag")
	rootCmd.PersistentFlags().String("docker-host", "", "Docker daemon host (default: auto-detect)")

	// Probe flags
	rootCmd.PersistentFlags().String("probe-url", "", "browser-probing collaborator URL")

	// Logging flags
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "Log format (text, json)")

	// Bind flags to viper
	_ = viper.BindPFlag("server.port", rootCmd.PersistentFlags().Lookup("port"))
	_ = viper.BindPFlag("server.host", rootCmd.PersistentFlags().Lookup("host"))

	_ = viper.BindPFlag("llm.model_provider", rootCmd.PersistentFlags().Lookup("model-provider"))
	_ = viper.BindPFlag("llm.online_model", rootCmd.PersistentFlags().Lookup("online-model"))
	_ = viper.BindPFlag("llm.local_model", rootCmd.PersistentFlags().Lookup("local-model"))

	_ = viper.BindPFlag("robot.library", rootCmd.PersistentFlags().Lookup("robot-library"))

	_ = viper.BindPFlag("docker.image", rootCmd.PersistentFlags().Lookup("docker-image"))
	_ = viper.BindPFlag("docker.host", rootCmd.PersistentFlags().Lookup("docker-host"))

	_ = viper.BindPFlag("probe.url", rootCmd.PersistentFlags().Lookup("probe-url"))

	_ = viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("logging.format", rootCmd.PersistentFlags().Lookup("log-format"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	var err error
	cfg, err = config.LoadConfig(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
}

// buildLogger creates the process logger from the logging config and
// installs it as the global logger.
func buildLogger() *zap.Logger {
	logger, err := spindlelog.Setup(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	return logger
}
