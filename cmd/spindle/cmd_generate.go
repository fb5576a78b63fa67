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
	"strings"

	"github.com/MakeNowJust/heredoc"
	"github.com/spf13/cobra"

	"github.com/teradata-labs/spindle/pkg/types"
	"github.com/teradata-labs/spindle/pkg/workflow"
)

var generateOutput string

var generateCmd = &cobra.Command{
	Use:   "generate \"<test description>\"",
	Short: "Generate a Robot Framework script from a natural language description",
	Long: heredoc.Doc(`
		Generate a Robot Framework script without starting the server.

		The description goes through the full agent pipeline: planning, element
		identification, script assembly, and structural validation. Progress is
		printed to stderr; the finished script goes to stdout or --output.

		Examples:
		  spindle generate "open google.com and search for teradata"
		  spindle generate --output login.robot "log in to github.com with valid credentials"`),
	Args: cobra.ExactArgs(1),
	Run:  runGenerate,
}

func init() {
	generateCmd.Flags().StringVarP(&generateOutput, "output", "o", "", "write the script to a file instead of stdout")
	rootCmd.AddCommand(generateCmd)
}

func runGenerate(cmd *cobra.Command, args []string) {
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}
	if err := cfg.EnsureDataDirs(); err != nil {
		log.Fatalf("Failed to create data directories: %v", err)
	}

	logger := buildLogger()
	defer func() { _ = logger.Sync() }()

	ctx := cmd.Context()
	gen, err := buildGenerator(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("Failed to initialize generation pipeline: %v", err)
	}
	defer gen.Close()

	orch, err := workflow.New(workflow.Config{
		Generator: gen.runner,
		Learner:   gen.opt,
		Logger:    logger,
	})
	if err != nil {
		log.Fatalf("Failed to build orchestrator: %v", err)
	}

	var script string
	for ev := range orch.Generate(ctx, workflow.GenerateRequest{Query: args[0]}) {
		switch ev.Status {
		case types.StatusHeartbeat:
			// Keepalive frames only matter on the wire.
		case types.StatusError:
			fmt.Fprintf(os.Stderr, "error: %s\n", ev.Message)
			os.Exit(1)
		case types.StatusComplete:
			script = ev.RobotCode
		default:
			if ev.Message != "" {
				fmt.Fprintf(os.Stderr, "[%3d%%] %s\n", ev.Progress, ev.Message)
			}
		}
	}

	if script == "" {
		fmt.Fprintln(os.Stderr, "error: pipeline produced no script")
		os.Exit(1)
	}

	if generateOutput != "" {
		if err := os.WriteFile(generateOutput, []byte(script), 0o644); err != nil {
			log.Fatalf("Failed to write %s: %v", generateOutput, err)
		}
		fmt.Fprintf(os.Stderr, "wrote %s\n", generateOutput)
		return
	}
	fmt.Println(strings.TrimRight(script, "\n"))
}
