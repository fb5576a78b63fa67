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
package optimizer

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/teradata-labs/spindle/embedded"
)

// rulesReloadDebounce settles rapid editor writes before a reload.
const rulesReloadDebounce = 500 * time.Millisecond

// RulesBundle is one automation library's context blocks.
type RulesBundle struct {
	Library string `yaml:"library"`

	// Core is the rules block every context starts with.
	Core string `yaml:"core"`

	// SearchTool is the instruction block for on-demand keyword lookup,
	// appended when no past pattern matches the query.
	SearchTool string `yaml:"search_tool"`

	// Full holds per-role static fallback contexts, with a "default" entry
	// for roles without their own.
	Full map[string]string `yaml:"full"`
}

// FullFor returns the role's static fallback context, falling back to the
// bundle's default entry and finally to the core rules.
func (b *RulesBundle) FullFor(role string) string {
	if full, ok := b.Full[role]; ok && strings.TrimSpace(full) != "" {
		return full
	}
	if full, ok := b.Full["default"]; ok && strings.TrimSpace(full) != "" {
		return full
	}
	return b.Core
}

// ParseRulesBundle parses and validates a rules bundle file.
func ParseRulesBundle(data []byte) (*RulesBundle, error) {
	var bundle RulesBundle
	if err := yaml.Unmarshal(data, &bundle); err != nil {
		return nil, fmt.Errorf("failed to parse rules bundle: %w", err)
	}
	if bundle.Library == "" {
		return nil, fmt.Errorf("rules bundle has no library field")
	}
	if strings.TrimSpace(bundle.Core) == "" {
		return nil, fmt.Errorf("rules bundle %s has no core block", bundle.Library)
	}
	return &bundle, nil
}

// RulesLibrary serves rules bundles from an override directory or the
// embedded defaults, caching parsed bundles. Watch drops cache entries when
// override files change so edits take effect without a restart.
type RulesLibrary struct {
	overrideDir string
	logger      *zap.Logger

	mu    sync.RWMutex
	cache map[string]*RulesBundle

	watcher        *fsnotify.Watcher
	debounceTimers map[string]*time.Timer
	debounceMu     sync.Mutex
	stopCh         chan struct{}
	doneCh         chan struct{}
	stopOnce       sync.Once
}

// NewRulesLibrary creates a rules library. An empty overrideDir serves only
// the embedded bundles.
func NewRulesLibrary(overrideDir string, logger *zap.Logger) *RulesLibrary {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RulesLibrary{
		overrideDir:    overrideDir,
		logger:         logger,
		cache:          make(map[string]*RulesBundle),
		debounceTimers: make(map[string]*time.Timer),
		stopCh:         make(chan struct{}),
		doneCh:         make(chan struct{}),
	}
}

// Bundle returns the rules for a library: cache, then override directory,
// then the embedded default.
func (rl *RulesLibrary) Bundle(library string) (*RulesBundle, error) {
	rl.mu.RLock()
	cached, ok := rl.cache[library]
	rl.mu.RUnlock()
	if ok {
		return cached, nil
	}

	bundle, err := rl.load(library)
	if err != nil {
		return nil, err
	}

	rl.mu.Lock()
	rl.cache[library] = bundle
	rl.mu.Unlock()
	return bundle, nil
}

func (rl *RulesLibrary) load(library string) (*RulesBundle, error) {
	if rl.overrideDir != "" {
		path := filepath.Join(rl.overrideDir, library+".yaml")
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			bundle, perr := ParseRulesBundle(data)
			if perr == nil {
				rl.logger.Info("loaded override rules bundle", zap.String("path", path))
				return bundle, nil
			}
			// A broken override must not take context building down.
			rl.logger.Error("override rules bundle is invalid, using embedded rules",
				zap.String("path", path),
				zap.Error(perr))
		case !os.IsNotExist(err):
			rl.logger.Warn("failed to read override rules bundle",
				zap.String("path", path),
				zap.Error(err))
		}
	}

	data, err := embedded.RulesBundle(library)
	if err != nil {
		return nil, err
	}
	return ParseRulesBundle(data)
}

// Watch starts invalidating cached bundles when override files change.
// No-op without an override directory.
func (rl *RulesLibrary) Watch() error {
	if rl.overrideDir == "" {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create rules watcher: %w", err)
	}
	if err := watcher.Add(rl.overrideDir); err != nil {
		watcher.Close() //nolint:errcheck
		return fmt.Errorf("failed to watch rules directory %s: %w", rl.overrideDir, err)
	}
	rl.watcher = watcher

	rl.logger.Info("watching rules override directory", zap.String("dir", rl.overrideDir))
	go rl.watchLoop()
	return nil
}

func (rl *RulesLibrary) watchLoop() {
	defer close(rl.doneCh)
	for {
		select {
		case event, ok := <-rl.watcher.Events:
			if !ok {
				return
			}
			rl.handleEvent(event)
		case err, ok := <-rl.watcher.Errors:
			if !ok {
				return
			}
			rl.logger.Error("rules watcher error", zap.Error(err))
		case <-rl.stopCh:
			return
		}
	}
}

func (rl *RulesLibrary) handleEvent(event fsnotify.Event) {
	name := filepath.Base(event.Name)
	if !strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml") {
		return
	}
	// Editors write temp files alongside the real one.
	if strings.HasPrefix(name, ".") || strings.Contains(name, ".tmp") || strings.Contains(name, "~") {
		return
	}
	library := strings.TrimSuffix(name, filepath.Ext(name))
	rl.debounce(library, func() {
		rl.mu.Lock()
		delete(rl.cache, library)
		rl.mu.Unlock()
		rl.logger.Info("rules bundle changed, reloading on next use",
			zap.String("library", library),
			zap.String("op", event.Op.String()))
	})
}

// debounce delays fn until changes to the same library settle.
func (rl *RulesLibrary) debounce(key string, fn func()) {
	rl.debounceMu.Lock()
	defer rl.debounceMu.Unlock()

	if timer, ok := rl.debounceTimers[key]; ok {
		timer.Stop()
	}
	rl.debounceTimers[key] = time.AfterFunc(rulesReloadDebounce, func() {
		fn()
		rl.debounceMu.Lock()
		delete(rl.debounceTimers, key)
		rl.debounceMu.Unlock()
	})
}

// Close stops the watcher. Safe to call repeatedly and without Watch.
func (rl *RulesLibrary) Close() error {
	var err error
	rl.stopOnce.Do(func() {
		close(rl.stopCh)
		if rl.watcher == nil {
			return
		}
		select {
		case <-rl.doneCh:
		case <-time.After(2 * time.Second):
			rl.logger.Warn("rules watcher stop timed out")
		}
		err = rl.watcher.Close()
	})
	return err
}
