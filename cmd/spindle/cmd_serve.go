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
	"context"
	"log"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/MakeNowJust/heredoc"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/teradata-labs/spindle/pkg/docker"
	"github.com/teradata-labs/spindle/pkg/metrics"
	"github.com/teradata-labs/spindle/pkg/server"
	"github.com/teradata-labs/spindle/pkg/workflow"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Spindle HTTP server",
	Long: heredoc.Doc(`
		Start the Spindle server with the SSE streaming API.

		The server will:
		- Index the Robot Framework keyword corpus into the vector store
		- Initialize the four-agent generation pipeline
		- Connect to Docker and provision the runner image in the background
		- Stream generation and execution progress over Server-Sent Events

		Press Ctrl+C to gracefully shutdown.`),
	Run: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) {
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}
	if err := cfg.EnsureDataDirs(); err != nil {
		log.Fatalf("Failed to create data directories: %v", err)
	}

	logger := buildLogger()
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting Spindle server", zap.String("version", rootCmd.Version))
	if used := viper.ConfigFileUsed(); used != "" {
		logger.Info("Config file loaded", zap.String("path", used))
	} else {
		logger.Info("No config file found, using defaults + environment variables")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	gen, err := buildGenerator(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize generation pipeline", zap.Error(err))
	}
	defer gen.Close()

	journal, err := metrics.NewJournal(filepath.Join(cfg.DataDir, "metrics", "runs.jsonl"), logger)
	if err != nil {
		logger.Fatal("Failed to open metrics journal", zap.Error(err))
	}

	// Docker is optional at startup: without it the generation endpoints
	// still work and execution reports the daemon as unavailable.
	var engine *docker.Engine
	if e, err := buildEngine(ctx, cfg, logger); err != nil {
		logger.Warn("Docker unavailable, execution endpoints disabled", zap.Error(err))
	} else {
		engine = e
		go func() {
			if err := engine.Provision(ctx, false, func(line string) {
				logger.Info("image provisioning", zap.String("status", line))
			}); err != nil {
				logger.Warn("runner image provisioning failed", zap.Error(err))
			}
		}()
	}

	orchCfg := workflow.Config{
		Generator: gen.runner,
		Learner:   gen.opt,
		Journal:   journal,
		Logger:    logger,
	}
	if engine != nil {
		orchCfg.Executor = engine
	}
	orch, err := workflow.New(orchCfg)
	if err != nil {
		logger.Fatal("Failed to build orchestrator", zap.Error(err))
	}

	if cfg.Sweeper.Enabled && engine != nil {
		sweeper, err := docker.NewSweeper(docker.SweeperConfig{
			Engine:    engine,
			TestsRoot: cfg.Robot.TestsRoot,
			Retention: time.Duration(cfg.Sweeper.RunDirTTLHours) * time.Hour,
			Schedule:  cfg.Sweeper.Schedule,
			Logger:    logger,
		})
		if err != nil {
			logger.Fatal("Failed to build maintenance sweeper", zap.Error(err))
		}
		if err := sweeper.Start(); err != nil {
			logger.Fatal("Failed to start maintenance sweeper", zap.Error(err))
		}
		defer sweeper.Stop()
	}

	srvCfg := server.Config{
		Addr:        cfg.Server.Addr(),
		Pipeline:    orch,
		TestsRoot:   cfg.Robot.TestsRoot,
		KnownModels: []string{cfg.LLM.OnlineModel, cfg.LLM.LocalModel},
		Logger:      logger,
	}
	if engine != nil {
		srvCfg.Admin = engine
	}
	srv, err := server.New(srvCfg)
	if err != nil {
		logger.Fatal("Failed to build HTTP server", zap.Error(err))
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	case <-ctx.Done():
		logger.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Shutdown did not drain cleanly", zap.Error(err))
		}
	}
}
