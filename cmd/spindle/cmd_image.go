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
)

var imageCmd = &cobra.Command{
	Use:   "image",
	Short: "Manage the Robot Framework runner image",
}

var imageStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon reachability and runner image presence",
	Run:   runImageStatus,
}

var imageRebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Force re-provisioning of the runner image",
	Long: `Force re-provisioning of the runner image.

The local tag is refreshed even if it already exists: the remote image is
pulled and re-tagged when configured, otherwise the image is rebuilt from
the local build context.`,
	Run: runImageRebuild,
}

func init() {
	imageCmd.AddCommand(imageStatusCmd)
	imageCmd.AddCommand(imageRebuildCmd)
	rootCmd.AddCommand(imageCmd)
}

func runImageStatus(cmd *cobra.Command, args []string) {
	logger := buildLogger()
	defer func() { _ = logger.Sync() }()

	ctx := cmd.Context()
	engine, err := buildEngine(ctx, cfg, logger)
	if err != nil {
		fmt.Printf("docker:  unreachable (%v)\n", err)
		os.Exit(1)
	}

	status := engine.Status(ctx)
	fmt.Printf("docker:  available=%t\n", status.DockerAvailable)
	fmt.Printf("image:   %s\n", cfg.Docker.Image)
	fmt.Printf("exists:  %t\n", status.Image.Exists)
	if status.Image.ID != "" {
		fmt.Printf("id:      %s\n", status.Image.ID)
	}
}

func runImageRebuild(cmd *cobra.Command, args []string) {
	logger := buildLogger()
	defer func() { _ = logger.Sync() }()

	ctx := cmd.Context()
	engine, err := buildEngine(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("Docker unavailable: %v", err)
	}

	err = engine.Provision(ctx, true, func(line string) {
		fmt.Fprintln(os.Stderr, line)
	})
	if err != nil {
		log.Fatalf("Image rebuild failed: %v", err)
	}
	fmt.Printf("✓ Runner image %s is ready\n", cfg.Docker.Image)
}
