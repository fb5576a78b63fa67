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
	"time"

	"github.com/docker/docker/pkg/archive"
	"github.com/klauspost/compress/zstd"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Sweeper periodically removes orphaned test containers and archives
// expired per-run directories to zstd-compressed tarballs.
type Sweeper struct {
	engine    *Engine
	testsRoot string
	retention time.Duration
	schedule  string
	cron      *cron.Cron
	logger    *zap.Logger
}

// SweeperConfig configures a Sweeper.
type SweeperConfig struct {
	// Engine provides container cleanup (required).
	Engine *Engine

	// TestsRoot is the directory holding per-run directories (required).
	TestsRoot string

	// Retention is how long run directories stay unarchived. Default 24h.
	Retention time.Duration

	// Schedule is a cron spec. Default "@every 1h".
	Schedule string

	// Logger defaults to a no-op logger.
	Logger *zap.Logger
}

// NewSweeper creates a sweeper.
func NewSweeper(cfg SweeperConfig) (*Sweeper, error) {
	if cfg.Engine == nil {
		return nil, fmt.Errorf("sweeper requires an engine")
	}
	if cfg.TestsRoot == "" {
		return nil, fmt.Errorf("sweeper requires a tests root directory")
	}
	if cfg.Retention == 0 {
		cfg.Retention = 24 * time.Hour
	}
	if cfg.Schedule == "" {
		cfg.Schedule = "@every 1h"
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Sweeper{
		engine:    cfg.Engine,
		testsRoot: cfg.TestsRoot,
		retention: cfg.Retention,
		schedule:  cfg.Schedule,
		cron:      cron.New(),
		logger:    cfg.Logger,
	}, nil
}

// Start schedules the periodic sweep.
func (s *Sweeper) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, s.Sweep); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", s.schedule, err)
	}
	s.cron.Start()
	s.logger.Info("artifact sweeper started",
		zap.String("schedule", s.schedule),
		zap.Duration("retention", s.retention))
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// Sweep runs one cleanup pass: orphaned containers first, then expired
// run directories.
func (s *Sweeper) Sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if _, err := s.engine.CleanupTestContainers(ctx); err != nil {
		s.logger.Warn("container sweep failed", zap.Error(err))
	}
	s.archiveExpired()
}

// archiveExpired compresses run directories older than the retention
// window into <run-id>.tar.zst and deletes the originals.
func (s *Sweeper) archiveExpired() {
	entries, err := os.ReadDir(s.testsRoot)
	if err != nil {
		s.logger.Warn("failed to read tests root", zap.Error(err))
		return
	}

	cutoff := time.Now().Add(-s.retention)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		dir := filepath.Join(s.testsRoot, entry.Name())
		if err := s.archiveDir(dir); err != nil {
			s.logger.Warn("failed to archive run directory",
				zap.String("dir", dir),
				zap.Error(err))
			continue
		}
		if err := os.RemoveAll(dir); err != nil {
			s.logger.Warn("failed to remove archived run directory",
				zap.String("dir", dir),
				zap.Error(err))
			continue
		}
		s.logger.Info("archived expired run directory", zap.String("run_id", entry.Name()))
	}
}

func (s *Sweeper) archiveDir(dir string) error {
	tarStream, err := archive.TarWithOptions(dir, &archive.TarOptions{})
	if err != nil {
		return fmt.Errorf("failed to tar directory: %w", err)
	}
	defer tarStream.Close()

	out, err := os.Create(dir + ".tar.zst")
	if err != nil {
		return fmt.Errorf("failed to create archive: %w", err)
	}
	defer out.Close()

	zw, err := zstd.NewWriter(out)
	if err != nil {
		return fmt.Errorf("failed to create zstd writer: %w", err)
	}
	if _, err := io.Copy(zw, tarStream); err != nil {
		zw.Close()
		return fmt.Errorf("failed to write archive: %w", err)
	}
	return zw.Close()
}
