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
	"context"
	"fmt"

	"github.com/docker/docker/api/types/container"
)

// Handle is the engine's view of one test container. It deliberately
// exposes only identity, wait, and removal. User-visible logs must come
// from the structured XML report; Logs exists solely to turn an accidental
// stdout/stderr read into an immediate, loud failure.
type Handle struct {
	client Client
	id     string
	name   string
}

func newHandle(client Client, id, name string) *Handle {
	return &Handle{client: client, id: id, name: name}
}

// ID returns the Docker container id.
func (h *Handle) ID() string { return h.id }

// Name returns the deterministic robot-test-<run-id> name.
func (h *Handle) Name() string { return h.name }

// Wait blocks until the container stops and returns its exit code.
func (h *Handle) Wait(ctx context.Context) (int64, error) {
	statusCh, errCh := h.client.ContainerWait(ctx, h.id, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		return 0, fmt.Errorf("container wait failed: %w", err)
	case status := <-statusCh:
		if status.Error != nil {
			return status.StatusCode, fmt.Errorf("container exited with error: %s", status.Error.Message)
		}
		return status.StatusCode, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Remove force-removes the container.
func (h *Handle) Remove(ctx context.Context) error {
	err := h.client.ContainerRemove(ctx, h.id, container.RemoveOptions{Force: true})
	if err != nil && !isNotFound(err) {
		return err
	}
	return nil
}

// Logs panics. Results are read from output.xml in the per-run directory,
// never from the container's output streams.
func (h *Handle) Logs(context.Context) (string, error) {
	panic("container stdout/stderr must not be read; use the XML report in the run directory")
}
