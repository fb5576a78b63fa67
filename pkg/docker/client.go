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

// Package docker provisions the Robot Framework runner image and executes
// generated scripts as one-shot containers.
//
// Everything talks to the daemon through the narrow Client interface so
// the provisioning and run protocols are testable without a daemon.
package docker

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"go.uber.org/zap"
)

// Client is the slice of the Docker API the engine consumes.
type Client interface {
	Ping(ctx context.Context) (types.Ping, error)
	ImageList(ctx context.Context, options image.ListOptions) ([]image.Summary, error)
	ImagePull(ctx context.Context, refStr string, options image.PullOptions) (io.ReadCloser, error)
	ImageTag(ctx context.Context, source, target string) error
	ImageBuild(ctx context.Context, buildContext io.Reader, options types.ImageBuildOptions) (types.ImageBuildResponse, error)
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerWait(ctx context.Context, containerID string, condition container.WaitCondition) (<-chan container.WaitResponse, <-chan error)
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
	ContainerList(ctx context.Context, options container.ListOptions) ([]types.Container, error)
	Close() error
}

// Connect creates a Docker client and verifies the daemon is reachable.
// An empty host is auto-detected from DOCKER_HOST and the usual socket
// locations.
func Connect(ctx context.Context, host string, logger *zap.Logger) (Client, error) {
	if host == "" {
		host = detectDockerHost()
	}
	logger.Info("connecting to Docker daemon", zap.String("docker_host", host))

	dockerClient, err := client.NewClientWithOpts(
		client.WithHost(host),
		client.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create Docker client: %w", err)
	}

	if _, err := dockerClient.Ping(ctx); err != nil {
		dockerClient.Close()
		return nil, fmt.Errorf("failed to ping Docker daemon: %w", err)
	}
	logger.Debug("Docker daemon is reachable")
	return dockerClient, nil
}

// defaultDockerSocketPaths are the socket locations probed in order when
// DOCKER_HOST is unset: rootless, Colima, Docker Desktop, then the
// standard system socket.
func defaultDockerSocketPaths() []string {
	home, _ := os.UserHomeDir()
	return []string{
		fmt.Sprintf("%s/.docker/run/docker.sock", home),
		fmt.Sprintf("%s/.colima/default/docker.sock", home),
		fmt.Sprintf("/run/user/%d/docker.sock", os.Getuid()),
		"/var/run/docker.sock",
	}
}

func detectDockerHost() string {
	return detectDockerHostWithPaths(nil)
}

func detectDockerHostWithPaths(socketPaths []string) string {
	if host := os.Getenv("DOCKER_HOST"); host != "" {
		return host
	}

	paths := socketPaths
	if len(paths) == 0 {
		paths = defaultDockerSocketPaths()
	}
	for _, sock := range paths {
		if _, err := os.Stat(sock); err == nil {
			return "unix://" + sock
		}
	}
	return "unix:///var/run/docker.sock"
}
