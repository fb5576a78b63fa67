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
	"time"

	"github.com/spf13/cobra"

	"github.com/teradata-labs/spindle/pkg/docker"
)

var cleanupRunDirs bool

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove leftover test containers",
	Long: `Remove leftover robot-test containers.

With --run-dirs, expired per-run artifact directories are also archived
and removed, the same sweep the server schedules periodically.`,
	Run: runCleanup,
}

func init() {
	cleanupCmd.Flags().BoolVar(&cleanupRunDirs, "run-dirs", false, "also archive expired run directories")
	rootCmd.AddCommand(cleanupCmd)
}

func runCleanup(cmd *cobra.Command, args []string) {
	logger := buildLogger()
	defer func() { _ = logger.Sync() }()

	ctx := cmd.Context()
	engine, err := buildEngine(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("Docker unavailable: %v", err)
	}

	if cleanupRunDirs {
		sweeper, err := docker.NewSweeper(docker.SweeperConfig{
			Engine:    engine,
			TestsRoot: cfg.Robot.TestsRoot,
			Retention: time.Duration(cfg.Sweeper.RunDirTTLHours) * time.Hour,
			Logger:    logger,
		})
		if err != nil {
			log.Fatalf("Failed to build sweeper: %v", err)
		}
		sweeper.Sweep()
		fmt.Println("✓ Sweep complete")
		return
	}

	cleaned, err := engine.CleanupTestContainers(ctx)
	if err != nil {
		log.Fatalf("Container cleanup failed: %v", err)
	}
	fmt.Printf("✓ Removed %d test container(s)\n", cleaned)
}
