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

// Package server is the HTTP shell around the orchestrator: SSE streaming
// endpoints for pipeline runs, image and container administration, and
// read-only artifact serving.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/teradata-labs/spindle/pkg/docker"
	"github.com/teradata-labs/spindle/pkg/types"
	"github.com/teradata-labs/spindle/pkg/workflow"
)

// Pipeline is the slice of the orchestrator the server consumes.
type Pipeline interface {
	Generate(ctx context.Context, req workflow.GenerateRequest) <-chan types.Event
	Execute(ctx context.Context, req workflow.ExecuteRequest) <-chan types.Event
	GenerateAndRun(ctx context.Context, req workflow.GenerateRequest) <-chan types.Event
}

// ContainerAdmin is the slice of the container engine behind the
// administration endpoints.
type ContainerAdmin interface {
	Provision(ctx context.Context, force bool, onLog func(string)) error
	Status(ctx context.Context) *docker.EngineStatus
	CleanupTestContainers(ctx context.Context) (int, error)
}

// Server is the spindle HTTP API.
type Server struct {
	pipeline    Pipeline
	admin       ContainerAdmin
	testsRoot   string
	knownModels []string
	logger      *zap.Logger
	httpServer  *http.Server
}

// Config configures a Server.
type Config struct {
	// Addr is the listen address, default ":8080".
	Addr string

	// Pipeline is the run orchestrator (required).
	Pipeline Pipeline

	// Admin backs the docker administration endpoints. Nil reports Docker
	// as unavailable.
	Admin ContainerAdmin

	// TestsRoot is the artifact directory served under /reports/.
	TestsRoot string

	// KnownModels, when non-empty, restricts the per-request model
	// override.
	KnownModels []string

	// Logger defaults to a no-op logger.
	Logger *zap.Logger
}

// New creates a Server.
func New(cfg Config) (*Server, error) {
	if cfg.Pipeline == nil {
		return nil, fmt.Errorf("server requires a pipeline")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	s := &Server{
		pipeline:    cfg.Pipeline,
		admin:       cfg.Admin,
		testsRoot:   cfg.TestsRoot,
		knownModels: cfg.KnownModels,
		logger:      cfg.Logger,
	}
	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /generate-test", s.handleGenerateTest)
	mux.HandleFunc("POST /execute-test", s.handleExecuteTest)
	mux.HandleFunc("POST /generate-and-run", s.handleGenerateAndRun)
	mux.HandleFunc("POST /rebuild-docker-image", s.handleRebuildImage)
	mux.HandleFunc("GET /docker-status", s.handleDockerStatus)
	mux.HandleFunc("DELETE /test/containers/cleanup", s.handleCleanup)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())
	if s.testsRoot != "" {
		mux.Handle("GET /reports/",
			http.StripPrefix("/reports/", http.FileServer(http.Dir(s.testsRoot))))
	}
	return mux
}

// ListenAndServe blocks serving the API.
func (s *Server) ListenAndServe() error {
	s.logger.Info("http server listening", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ============================================================================
// Streaming endpoints
// ============================================================================

type generateBody struct {
	Query string `json:"query"`
	Model string `json:"model,omitempty"`
}

type executeBody struct {
	RobotCode string `json:"robot_code"`
	UserQuery string `json:"user_query,omitempty"`
}

func (s *Server) handleGenerateTest(w http.ResponseWriter, r *http.Request) {
	var body generateBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !s.modelAllowed(body.Model) {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown model %q", body.Model))
		return
	}
	s.streamEvents(w, r, s.pipeline.Generate(r.Context(), workflow.GenerateRequest{Query: body.Query, Model: body.Model}))
}

func (s *Server) handleExecuteTest(w http.ResponseWriter, r *http.Request) {
	var body executeBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.streamEvents(w, r, s.pipeline.Execute(r.Context(), workflow.ExecuteRequest{
		RobotCode: body.RobotCode,
		UserQuery: body.UserQuery,
	}))
}

func (s *Server) handleGenerateAndRun(w http.ResponseWriter, r *http.Request) {
	var body generateBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !s.modelAllowed(body.Model) {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown model %q", body.Model))
		return
	}
	s.streamEvents(w, r, s.pipeline.GenerateAndRun(r.Context(), workflow.GenerateRequest{Query: body.Query, Model: body.Model}))
}

// streamEvents writes the event channel as an SSE stream: data frames for
// events, comment frames for heartbeats. The channel closing ends the
// response; the client disconnecting cancels the run via r.Context().
func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request, events <-chan types.Event) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering
	flusher.Flush()

	for ev := range events {
		if ev.Status == types.StatusHeartbeat {
			if _, err := fmt.Fprint(w, ": heartbeat\n\n"); err != nil {
				return
			}
			flusher.Flush()
			continue
		}
		data, err := json.Marshal(ev)
		if err != nil {
			s.logger.Error("failed to marshal event", zap.Error(err))
			continue
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return
		}
		flusher.Flush()
	}
}

func (s *Server) modelAllowed(model string) bool {
	if model == "" || len(s.knownModels) == 0 {
		return true
	}
	for _, known := range s.knownModels {
		if strings.EqualFold(known, model) {
			return true
		}
	}
	return false
}

// ============================================================================
// Administration endpoints
// ============================================================================

func (s *Server) handleRebuildImage(w http.ResponseWriter, r *http.Request) {
	if s.admin == nil {
		s.writeError(w, http.StatusServiceUnavailable, "Docker is not available")
		return
	}
	var lines []string
	err := s.admin.Provision(r.Context(), true, func(line string) {
		lines = append(lines, line)
	})
	if err != nil {
		s.logger.Error("image rebuild failed", zap.Error(err))
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{
			"status":  "error",
			"message": err.Error(),
		})
		return
	}
	message := "image rebuilt"
	if len(lines) > 0 {
		message = lines[len(lines)-1]
	}
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"message": message,
	})
}

func (s *Server) handleDockerStatus(w http.ResponseWriter, r *http.Request) {
	if s.admin == nil {
		s.writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":           "ok",
			"docker_available": false,
			"image":            docker.ImageStatus{},
		})
		return
	}
	status := s.admin.Status(r.Context())
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":           "ok",
		"docker_available": status.DockerAvailable,
		"image":            status.Image,
	})
}

func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	if s.admin == nil {
		s.writeError(w, http.StatusServiceUnavailable, "Docker is not available")
		return
	}
	cleaned, err := s.admin.CleanupTestContainers(r.Context())
	if err != nil {
		s.logger.Error("container cleanup failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":             "ok",
		"containers_cleaned": cleaned,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ============================================================================
// Helpers
// ============================================================================

func (s *Server) writeJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to write response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, code int, message string) {
	s.writeJSON(w, code, map[string]string{"status": "error", "message": message})
}
