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

	"github.com/MakeNowJust/heredoc"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/teradata-labs/spindle/pkg/types"
)

var execCmd = &cobra.Command{
	Use:   "exec <script.robot>",
	Short: "Run a Robot Framework script in the Docker runner",
	Long: heredoc.Doc(`
		Run an existing Robot Framework script in a one-shot container.

		The runner image is provisioned first if missing. Artifacts (output.xml,
		log.html, report.html) land in a fresh run directory under the tests root,
		and the pass/fail verdict comes from the XML statistics.`),
	Args: cobra.ExactArgs(1),
	Run:  runExec,
}

func init() {
	rootCmd.AddCommand(execCmd)
}

func runExec(cmd *cobra.Command, args []string) {
	if err := cfg.EnsureDataDirs(); err != nil {
		log.Fatalf("Failed to create data directories: %v", err)
	}

	logger := buildLogger()
	defer func() { _ = logger.Sync() }()

	script, err := os.ReadFile(args[0])
	if err != nil {
		log.Fatalf("Failed to read %s: %v", args[0], err)
	}

	ctx := cmd.Context()
	engine, err := buildEngine(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("Docker unavailable: %v", err)
	}

	onLog := func(line string) { fmt.Fprintln(os.Stderr, line) }
	if err := engine.Provision(ctx, false, onLog); err != nil {
		log.Fatalf("Image provisioning failed: %v", err)
	}

	runID := uuid.NewString()
	result, err := engine.RunScript(ctx, runID, string(script), onLog)
	if err != nil {
		log.Fatalf("Script execution failed: %v", err)
	}

	fmt.Printf("run:    %s\n", result.RunID)
	fmt.Printf("status: %s\n", result.TestStatus)
	if result.Message != "" {
		fmt.Printf("note:   %s\n", result.Message)
	}
	fmt.Printf("report: %s\n", result.ReportURL)
	if result.Logs != "" {
		fmt.Println()
		fmt.Println(result.Logs)
	}

	if result.TestStatus != types.TestPassed {
		os.Exit(1)
	}
}
