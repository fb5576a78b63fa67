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
package docker

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	dockertypes "github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/errdefs"
	"github.com/docker/docker/pkg/archive"
	"go.uber.org/zap"

	"github.com/teradata-labs/spindle/pkg/types"
)

const (
	// containerNamePrefix is shared by every spindle test container, so
	// cleanup can find orphans by name alone.
	containerNamePrefix = "robot-test-"

	// containerWorkDir is the stable in-container mount point for the
	// per-run directory.
	containerWorkDir = "/tests"

	// scriptFileName is the script file written into the per-run dir.
	scriptFileName = "test.robot"
)

// ContainerName returns the deterministic container name for a run.
func ContainerName(runID string) string {
	return containerNamePrefix + runID
}

// Engine provisions the runner image and executes scripts as one-shot
// containers. At most one container exists per run id; name collisions
// with earlier runs are resolved by forced removal.
type Engine struct {
	client       Client
	imageTag     string
	remoteImage  string
	preferRemote bool
	buildContext string
	testsRoot    string
	logger       *zap.Logger
}

// EngineConfig configures an Engine.
type EngineConfig struct {
	// Client is the Docker API (required).
	Client Client

	// ImageTag is the local tag the runner image lives under (required).
	ImageTag string

	// RemoteImage is the pre-published image pulled and re-tagged when
	// PreferRemote is set.
	RemoteImage string

	// PreferRemote pulls RemoteImage before falling back to a local build.
	PreferRemote bool

	// BuildContext is the directory holding the runner Dockerfile.
	BuildContext string

	// TestsRoot is the directory receiving one subdirectory per run
	// (required).
	TestsRoot string

	// Logger defaults to a no-op logger.
	Logger *zap.Logger
}

// NewEngine creates an execution engine.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.Client == nil {
		return nil, fmt.Errorf("engine requires a Docker client")
	}
	if cfg.ImageTag == "" {
		return nil, fmt.Errorf("engine requires an image tag")
	}
	if cfg.TestsRoot == "" {
		return nil, fmt.Errorf("engine requires a tests root directory")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Engine{
		client:       cfg.Client,
		imageTag:     cfg.ImageTag,
		remoteImage:  cfg.RemoteImage,
		preferRemote: cfg.PreferRemote,
		buildContext: cfg.BuildContext,
		testsRoot:    cfg.TestsRoot,
		logger:       cfg.Logger,
	}, nil
}

// Provision makes sure the runner image exists under the local tag:
// existing local image, then remote pull with a re-tag, then a local
// build. force skips the local-image shortcut. Pull and build status lines
// stream through onLog. The local tag is only ever applied to a fully
// pulled or built image.
func (e *Engine) Provision(ctx context.Context, force bool, onLog func(string)) error {
	if onLog == nil {
		onLog = func(string) {}
	}

	if !force {
		exists, err := e.imageExists(ctx, e.imageTag)
		if err != nil {
			return fmt.Errorf("failed to check for local image: %w", err)
		}
		if exists {
			e.logger.Debug("runner image present", zap.String("image", e.imageTag))
			return nil
		}
	}

	if e.preferRemote && e.remoteImage != "" {
		err := e.pullAndTag(ctx, onLog)
		if err == nil {
			return nil
		}
		e.logger.Warn("remote image pull failed, falling back to local build",
			zap.String("image", e.remoteImage),
			zap.Error(err))
		onLog(fmt.Sprintf("Pull of %s failed, building locally", e.remoteImage))
	}

	return e.buildImage(ctx, onLog)
}

func (e *Engine) imageExists(ctx context.Context, tag string) (bool, error) {
	summaries, err := e.client.ImageList(ctx, image.ListOptions{
		Filters: filters.NewArgs(filters.Arg("reference", tag)),
	})
	if err != nil {
		return false, err
	}
	return len(summaries) > 0, nil
}

// pullAndTag pulls the remote image and re-tags it locally. The tag is
// applied only after the pull completes.
func (e *Engine) pullAndTag(ctx context.Context, onLog func(string)) error {
	e.logger.Info("pulling runner image",
		zap.String("remote", e.remoteImage),
		zap.String("tag", e.imageTag))
	onLog("Pulling runner image " + e.remoteImage)

	reader, err := e.client.ImagePull(ctx, e.remoteImage, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("pull failed: %w", err)
	}
	defer reader.Close()
	if err := streamDockerStatus(reader, onLog); err != nil {
		return fmt.Errorf("pull stream failed: %w", err)
	}

	if err := e.client.ImageTag(ctx, e.remoteImage, e.imageTag); err != nil {
		return fmt.Errorf("failed to tag pulled image: %w", err)
	}
	e.logger.Info("runner image pulled and tagged", zap.String("tag", e.imageTag))
	onLog("Runner image ready")
	return nil
}

// buildImage builds the runner image from the configured context path.
func (e *Engine) buildImage(ctx context.Context, onLog func(string)) error {
	if e.buildContext == "" {
		return fmt.Errorf("no build context configured and no usable image")
	}
	e.logger.Info("building runner image",
		zap.String("context", e.buildContext),
		zap.String("tag", e.imageTag))
	onLog("Building runner image from " + e.buildContext)

	buildCtx, err := archive.TarWithOptions(e.buildContext, &archive.TarOptions{})
	if err != nil {
		return fmt.Errorf("failed to tar build context: %w", err)
	}
	defer buildCtx.Close()

	resp, err := e.client.ImageBuild(ctx, buildCtx, dockertypes.ImageBuildOptions{
		Tags:       []string{e.imageTag},
		Dockerfile: "Dockerfile",
		Remove:     true,
	})
	if err != nil {
		return fmt.Errorf("build failed: %w", err)
	}
	defer resp.Body.Close()
	if err := streamDockerStatus(resp.Body, onLog); err != nil {
		return fmt.Errorf("build stream failed: %w", err)
	}

	e.logger.Info("runner image built", zap.String("tag", e.imageTag))
	onLog("Runner image ready")
	return nil
}

// RunScript executes one script in a fresh one-shot container and returns
// the classified result. The container is always removed best-effort
// before reporting; artifacts stay in the per-run directory.
func (e *Engine) RunScript(ctx context.Context, runID, robotScript string, onLog func(string)) (*types.ExecutionResult, error) {
	runDir, err := e.prepareRunDir(runID, robotScript)
	if err != nil {
		return nil, err
	}

	name := ContainerName(runID)
	e.removeCollision(ctx, name)

	created, err := e.client.ContainerCreate(ctx,
		&container.Config{
			Image:      e.imageTag,
			WorkingDir: containerWorkDir,
			Cmd: []string{
				"robot",
				"--outputdir", containerWorkDir,
				containerWorkDir + "/" + scriptFileName,
			},
		},
		&container.HostConfig{
			Binds: []string{runDir + ":" + containerWorkDir},
		},
		nil, nil, name)
	if err != nil {
		return nil, fmt.Errorf("failed to create container: %w", err)
	}

	handle := newHandle(e.client, created.ID, name)
	defer func() {
		removeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		if err := handle.Remove(removeCtx); err != nil {
			e.logger.Warn("failed to remove test container",
				zap.String("container", name),
				zap.Error(err))
		}
	}()

	if err := e.client.ContainerStart(ctx, handle.ID(), container.StartOptions{}); err != nil {
		return nil, fmt.Errorf("failed to start container: %w", err)
	}
	e.logger.Info("test container started",
		zap.String("run_id", runID),
		zap.String("container", name))
	onLogSafe(onLog, "Running Robot Framework test")

	exitCode, err := handle.Wait(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed waiting for container: %w", err)
	}
	e.logger.Info("test container exited",
		zap.String("run_id", runID),
		zap.Int64("exit_code", exitCode))

	result := Classify(runDir, runID, exitCode)
	return result, nil
}

// prepareRunDir creates the per-run directory and writes the script into
// it, returning the absolute host path for the bind mount.
func (e *Engine) prepareRunDir(runID, robotScript string) (string, error) {
	runDir := filepath.Join(e.testsRoot, runID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create run directory: %w", err)
	}
	scriptPath := filepath.Join(runDir, scriptFileName)
	if err := os.WriteFile(scriptPath, []byte(robotScript), 0o644); err != nil {
		return "", fmt.Errorf("failed to write script: %w", err)
	}
	abs, err := filepath.Abs(runDir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve run directory: %w", err)
	}
	return abs, nil
}

// removeCollision force-removes a container left over under the target
// name. When the targeted removal fails, the general cleanup runs and the
// engine continues regardless.
func (e *Engine) removeCollision(ctx context.Context, name string) {
	err := e.client.ContainerRemove(ctx, name, container.RemoveOptions{Force: true})
	if err == nil {
		e.logger.Info("removed colliding test container", zap.String("container", name))
		return
	}
	if isNotFound(err) {
		return
	}
	e.logger.Warn("failed to remove colliding container, running general cleanup",
		zap.String("container", name),
		zap.Error(err))
	if _, cleanupErr := e.CleanupTestContainers(ctx); cleanupErr != nil {
		e.logger.Warn("test container cleanup failed", zap.Error(cleanupErr))
	}
}

// ImageStatus describes the runner image for the status endpoint.
type ImageStatus struct {
	Exists  bool   `json:"exists"`
	ID      string `json:"id,omitempty"`
	Created string `json:"created,omitempty"`
	Size    int64  `json:"size,omitempty"`
}

// EngineStatus is the daemon and image view for the status endpoint.
type EngineStatus struct {
	DockerAvailable bool        `json:"docker_available"`
	Image           ImageStatus `json:"image"`
}

// Status reports daemon reachability and the runner image state.
func (e *Engine) Status(ctx context.Context) *EngineStatus {
	status := &EngineStatus{}
	if _, err := e.client.Ping(ctx); err != nil {
		e.logger.Warn("Docker daemon unreachable", zap.Error(err))
		return status
	}
	status.DockerAvailable = true

	summaries, err := e.client.ImageList(ctx, image.ListOptions{
		Filters: filters.NewArgs(filters.Arg("reference", e.imageTag)),
	})
	if err != nil || len(summaries) == 0 {
		return status
	}
	s := summaries[0]
	status.Image = ImageStatus{
		Exists:  true,
		ID:      s.ID,
		Created: time.Unix(s.Created, 0).UTC().Format(time.RFC3339),
		Size:    s.Size,
	}
	return status
}

// CleanupTestContainers force-removes every container whose name carries
// the test prefix and returns how many were removed.
func (e *Engine) CleanupTestContainers(ctx context.Context) (int, error) {
	containers, err := e.client.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("name", containerNamePrefix)),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to list test containers: %w", err)
	}

	removed := 0
	for _, c := range containers {
		if err := e.client.ContainerRemove(ctx, c.ID, container.RemoveOptions{Force: true}); err != nil {
			e.logger.Warn("failed to remove orphaned test container",
				zap.String("container_id", c.ID),
				zap.Error(err))
			continue
		}
		removed++
	}
	if removed > 0 {
		e.logger.Info("removed orphaned test containers", zap.Int("count", removed))
	}
	return removed, nil
}

// streamDockerStatus decodes the daemon's JSON status stream and forwards
// readable lines.
func streamDockerStatus(r io.Reader, onLog func(string)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		var msg struct {
			Stream string `json:"stream"`
			Status string `json:"status"`
			Error  string `json:"error"`
		}
		if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil {
			continue
		}
		if msg.Error != "" {
			return fmt.Errorf("%s", msg.Error)
		}
		line := msg.Status
		if line == "" {
			line = strings.TrimSpace(msg.Stream)
		}
		if line != "" {
			onLog(line)
		}
	}
	return scanner.Err()
}

func onLogSafe(onLog func(string), line string) {
	if onLog != nil {
		onLog(line)
	}
}

func isNotFound(err error) bool {
	return errdefs.IsNotFound(err) ||
		(err != nil && strings.Contains(strings.ToLower(err.Error()), "no such container"))
}
