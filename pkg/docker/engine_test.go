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
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	dockertypes "github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teradata-labs/spindle/pkg/types"
)

// fakeClient is an in-memory stand-in for the Docker daemon.
type fakeClient struct {
	pingErr  error
	images   []image.Summary
	listErr  error
	pullErr  error
	pulled   []string
	tagged   [][2]string
	buildErr error
	built    bool

	createdName string
	createdCfg  *container.Config
	createdHost *container.HostConfig
	createErr   error
	started     []string
	waitCode    int64
	waitErr     error
	onWait      func()

	removed    []string
	removeErr  map[string]error
	containers []dockertypes.Container
}

func (f *fakeClient) Ping(context.Context) (dockertypes.Ping, error) {
	return dockertypes.Ping{}, f.pingErr
}

func (f *fakeClient) ImageList(context.Context, image.ListOptions) ([]image.Summary, error) {
	return f.images, f.listErr
}

func (f *fakeClient) ImagePull(_ context.Context, ref string, _ image.PullOptions) (io.ReadCloser, error) {
	if f.pullErr != nil {
		return nil, f.pullErr
	}
	f.pulled = append(f.pulled, ref)
	return io.NopCloser(strings.NewReader(
		`{"status":"Pulling from spindle/robot-runner"}` + "\n" +
			`{"status":"Download complete"}` + "\n")), nil
}

func (f *fakeClient) ImageTag(_ context.Context, source, target string) error {
	f.tagged = append(f.tagged, [2]string{source, target})
	return nil
}

func (f *fakeClient) ImageBuild(_ context.Context, buildContext io.Reader, _ dockertypes.ImageBuildOptions) (dockertypes.ImageBuildResponse, error) {
	if f.buildErr != nil {
		return dockertypes.ImageBuildResponse{}, f.buildErr
	}
	io.Copy(io.Discard, buildContext)
	f.built = true
	return dockertypes.ImageBuildResponse{Body: io.NopCloser(strings.NewReader(
		`{"stream":"Step 1/4 : FROM python:3.12"}` + "\n" +
			`{"stream":"Successfully built abc123"}` + "\n"))}, nil
}

func (f *fakeClient) ContainerCreate(_ context.Context, cfg *container.Config, host *container.HostConfig, _ *network.NetworkingConfig, _ *ocispec.Platform, name string) (container.CreateResponse, error) {
	if f.createErr != nil {
		return container.CreateResponse{}, f.createErr
	}
	f.createdName = name
	f.createdCfg = cfg
	f.createdHost = host
	return container.CreateResponse{ID: "cid-" + name}, nil
}

func (f *fakeClient) ContainerStart(_ context.Context, id string, _ container.StartOptions) error {
	f.started = append(f.started, id)
	return nil
}

func (f *fakeClient) ContainerWait(_ context.Context, _ string, _ container.WaitCondition) (<-chan container.WaitResponse, <-chan error) {
	statusCh := make(chan container.WaitResponse, 1)
	errCh := make(chan error, 1)
	if f.onWait != nil {
		f.onWait()
	}
	if f.waitErr != nil {
		errCh <- f.waitErr
	} else {
		statusCh <- container.WaitResponse{StatusCode: f.waitCode}
	}
	return statusCh, errCh
}

func (f *fakeClient) ContainerRemove(_ context.Context, id string, _ container.RemoveOptions) error {
	if err, ok := f.removeErr[id]; ok {
		return err
	}
	f.removed = append(f.removed, id)
	return nil
}

func (f *fakeClient) ContainerList(context.Context, container.ListOptions) ([]dockertypes.Container, error) {
	return f.containers, f.listErr
}

func (f *fakeClient) Close() error { return nil }

func newEngine(t *testing.T, client *fakeClient) *Engine {
	t.Helper()
	engine, err := NewEngine(EngineConfig{
		Client:       client,
		ImageTag:     "spindle-robot-runner:latest",
		RemoteImage:  "ghcr.io/teradata-labs/robot-runner:latest",
		PreferRemote: true,
		BuildContext: t.TempDir(),
		TestsRoot:    t.TempDir(),
	})
	require.NoError(t, err)
	return engine
}

func TestProvision_LocalImageShortCircuits(t *testing.T) {
	client := &fakeClient{images: []image.Summary{{ID: "sha256:abc"}}}
	engine := newEngine(t, client)

	require.NoError(t, engine.Provision(context.Background(), false, nil))
	assert.Empty(t, client.pulled)
	assert.False(t, client.built)
}

func TestProvision_PullsAndRetags(t *testing.T) {
	client := &fakeClient{}
	engine := newEngine(t, client)

	var logs []string
	require.NoError(t, engine.Provision(context.Background(), false, func(line string) {
		logs = append(logs, line)
	}))

	require.Len(t, client.pulled, 1)
	assert.Equal(t, "ghcr.io/teradata-labs/robot-runner:latest", client.pulled[0])
	require.Len(t, client.tagged, 1)
	assert.Equal(t, [2]string{
		"ghcr.io/teradata-labs/robot-runner:latest",
		"spindle-robot-runner:latest",
	}, client.tagged[0])
	assert.False(t, client.built)
	assert.Contains(t, strings.Join(logs, "\n"), "Download complete")
}

func TestProvision_PullFailureFallsBackToBuild(t *testing.T) {
	client := &fakeClient{pullErr: fmt.Errorf("registry unreachable")}
	engine := newEngine(t, client)

	require.NoError(t, engine.Provision(context.Background(), false, nil))
	assert.True(t, client.built)
	// No tag from the failed pull path.
	assert.Empty(t, client.tagged)
}

func TestProvision_ForceSkipsLocalCheck(t *testing.T) {
	client := &fakeClient{images: []image.Summary{{ID: "sha256:abc"}}}
	engine := newEngine(t, client)

	require.NoError(t, engine.Provision(context.Background(), true, nil))
	assert.Len(t, client.pulled, 1)
}

func TestProvision_NoImageNoContextFails(t *testing.T) {
	client := &fakeClient{pullErr: fmt.Errorf("registry unreachable")}
	engine := newEngine(t, client)
	engine.buildContext = ""

	err := engine.Provision(context.Background(), false, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no build context")
}

const passingOutputXML = `<?xml version="1.0" encoding="UTF-8"?>
<robot generator="Robot 7.0">
<suite name="Test">
<test name="Search For Robot Framework">
<kw name="Open Browser" library="SeleniumLibrary"><status status="PASS"/></kw>
<kw name="Close Browser" library="SeleniumLibrary"><status status="PASS"/></kw>
<status status="PASS"/>
</test>
<status status="PASS"/>
</suite>
<statistics><total><stat pass="1" fail="0">All Tests</stat></total></statistics>
</robot>`

func TestRunScript_Passed(t *testing.T) {
	client := &fakeClient{waitCode: 0}
	engine := newEngine(t, client)

	runDir := filepath.Join(engine.testsRoot, "run-1")
	client.onWait = func() {
		require.NoError(t, os.WriteFile(filepath.Join(runDir, OutputXMLName), []byte(passingOutputXML), 0o644))
	}

	result, err := engine.RunScript(context.Background(), "run-1", "*** Settings ***\n", nil)
	require.NoError(t, err)

	assert.Equal(t, types.TestPassed, result.TestStatus)
	assert.Equal(t, 1, result.Stats.Passed)
	assert.Equal(t, "run-1", result.RunID)

	// One-shot protocol: named container, bind-mounted run dir, robot argv.
	assert.Equal(t, "robot-test-run-1", client.createdName)
	require.Len(t, client.createdHost.Binds, 1)
	assert.True(t, strings.HasSuffix(client.createdHost.Binds[0], ":"+containerWorkDir))
	assert.Equal(t, []string{"robot", "--outputdir", "/tests", "/tests/test.robot"}, []string(client.createdCfg.Cmd))

	// Script written before the run, container removed after.
	script, err := os.ReadFile(filepath.Join(runDir, scriptFileName))
	require.NoError(t, err)
	assert.Contains(t, string(script), "*** Settings ***")
	assert.Contains(t, client.removed, "cid-robot-test-run-1")
}

func TestRunScript_NoArtifactsNonZeroExitIsSystemError(t *testing.T) {
	client := &fakeClient{waitCode: 252}
	engine := newEngine(t, client)

	result, err := engine.RunScript(context.Background(), "run-2", "*** Settings ***\n", nil)
	require.NoError(t, err)
	assert.Equal(t, types.TestSystemError, result.TestStatus)
	assert.Equal(t, int64(252), result.ExitCode)
	assert.NotEmpty(t, result.Message)
}

func TestRunScript_CollisionRemovedFirst(t *testing.T) {
	client := &fakeClient{waitCode: 0}
	engine := newEngine(t, client)

	_, err := engine.RunScript(context.Background(), "run-3", "*** Settings ***\n", nil)
	require.NoError(t, err)
	// First removal targets the name, before creation.
	require.NotEmpty(t, client.removed)
	assert.Equal(t, "robot-test-run-3", client.removed[0])
}

func TestStatus(t *testing.T) {
	client := &fakeClient{images: []image.Summary{{ID: "sha256:abc", Created: 1700000000, Size: 1234}}}
	engine := newEngine(t, client)

	status := engine.Status(context.Background())
	assert.True(t, status.DockerAvailable)
	assert.True(t, status.Image.Exists)
	assert.Equal(t, "sha256:abc", status.Image.ID)
	assert.Equal(t, int64(1234), status.Image.Size)
}

func TestStatus_DaemonUnreachable(t *testing.T) {
	client := &fakeClient{pingErr: fmt.Errorf("connection refused")}
	engine := newEngine(t, client)

	status := engine.Status(context.Background())
	assert.False(t, status.DockerAvailable)
	assert.False(t, status.Image.Exists)
}

func TestCleanupTestContainers(t *testing.T) {
	client := &fakeClient{
		containers: []dockertypes.Container{
			{ID: "c1", Names: []string{"/robot-test-a"}},
			{ID: "c2", Names: []string{"/robot-test-b"}},
		},
		removeErr: map[string]error{"c2": fmt.Errorf("in use")},
	}
	engine := newEngine(t, client)

	removed, err := engine.CleanupTestContainers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
}

func TestHandle_LogsPanics(t *testing.T) {
	h := newHandle(&fakeClient{}, "cid", "robot-test-x")
	assert.Panics(t, func() {
		h.Logs(context.Background()) //nolint:errcheck
	})
}

func TestDetectDockerHost_EnvWins(t *testing.T) {
	t.Setenv("DOCKER_HOST", "tcp://10.0.0.5:2376")
	assert.Equal(t, "tcp://10.0.0.5:2376", detectDockerHost())
}

func TestDetectDockerHost_SocketProbe(t *testing.T) {
	t.Setenv("DOCKER_HOST", "")
	dir := t.TempDir()
	sock := filepath.Join(dir, "docker.sock")
	require.NoError(t, os.WriteFile(sock, nil, 0o644))

	got := detectDockerHostWithPaths([]string{filepath.Join(dir, "missing.sock"), sock})
	assert.Equal(t, "unix://"+sock, got)
}
