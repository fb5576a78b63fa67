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
	"context"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/spindle/pkg/agents"
	"github.com/teradata-labs/spindle/pkg/config"
	"github.com/teradata-labs/spindle/pkg/docker"
	"github.com/teradata-labs/spindle/pkg/keywords"
	"github.com/teradata-labs/spindle/pkg/keywords/embeddings"
	"github.com/teradata-labs/spindle/pkg/llm/factory"
	"github.com/teradata-labs/spindle/pkg/optimizer"
	"github.com/teradata-labs/spindle/pkg/patterns"
	"github.com/teradata-labs/spindle/pkg/probe"
)

// generator bundles the script-generation side of the pipeline: the vector
// keyword store, the pattern journal, the context optimizer, and the agent
// runner on top of them.
type generator struct {
	store    *keywords.Store
	patterns *patterns.Journal
	opt      *optimizer.Optimizer
	runner   *agents.Runner
}

// Close releases the SQLite stores.
func (g *generator) Close() {
	if g.patterns != nil {
		_ = g.patterns.Close()
	}
	if g.store != nil {
		_ = g.store.Close()
	}
}

// buildEmbedder creates the embedding provider for the keyword store,
// following llm.model_provider unless embeddings.provider overrides it.
func buildEmbedder(cfg *config.Config) (embeddings.Provider, error) {
	switch cfg.EmbeddingsProvider() {
	case "openai":
		return embeddings.NewOpenAI(embeddings.OpenAIConfig{
			APIKey:  cfg.LLM.OpenAIAPIKey,
			BaseURL: cfg.LLM.OpenAIBaseURL,
			Model:   cfg.Embeddings.Model,
		})
	case "ollama":
		return embeddings.NewOllama(embeddings.OllamaConfig{
			Endpoint: cfg.EmbeddingsEndpoint(),
			Model:    cfg.Embeddings.Model,
		}), nil
	default:
		return nil, fmt.Errorf("unsupported embeddings provider: %s", cfg.EmbeddingsProvider())
	}
}

// buildGenerator wires the generation pipeline. The keyword corpus is
// verified (and embedded on first run) before the runner is handed out.
func buildGenerator(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*generator, error) {
	embedder, err := buildEmbedder(cfg)
	if err != nil {
		return nil, err
	}

	store, err := keywords.Open(keywords.Config{
		Path:      filepath.Join(cfg.DataDir, "keywords.db"),
		Embedder:  embedder,
		Library:   cfg.Robot.Library,
		CorpusDir: cfg.Robot.CorpusDir,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open keyword store: %w", err)
	}
	if err := store.EnsureCorpus(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to index keyword corpus: %w", err)
	}

	journal, err := patterns.Open(patterns.Config{
		Path:                filepath.Join(cfg.DataDir, "patterns.db"),
		Index:               store,
		PredictionThreshold: cfg.Optimizer.PredictionThreshold,
		Logger:              logger,
	})
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to open pattern journal: %w", err)
	}

	// The category classifier needs embeddings up front; a failure only
	// disables pruning, never the pipeline.
	var classifier *optimizer.Classifier
	if cfg.Optimizer.PruningEnabled {
		classifier, err = optimizer.NewClassifier(ctx, embedder, cfg.Optimizer.CategoryThreshold, logger)
		if err != nil {
			logger.Warn("category classifier unavailable, pruning disabled", zap.Error(err))
			classifier = nil
		}
	}

	opt, err := optimizer.New(optimizer.Config{
		Rules:      optimizer.NewRulesLibrary(cfg.Optimizer.RulesDir, logger),
		Source:     store,
		Predictor:  journal,
		Classifier: classifier,
		Library:    cfg.Robot.Library,
		Enabled:    cfg.Optimizer.Enabled,
		Pruning:    cfg.Optimizer.PruningEnabled,
		Logger:     logger,
	})
	if err != nil {
		journal.Close()
		store.Close()
		return nil, err
	}

	provider, err := factory.NewProvider(cfg.LLM)
	if err != nil {
		journal.Close()
		store.Close()
		return nil, err
	}

	runnerCfg := agents.Config{
		Provider:             provider,
		Optimizer:            opt,
		MaxIterations:        cfg.Agents.MaxIterations,
		MaxLocatorStrategies: cfg.Agents.MaxLocatorStrategies,
		EnableCustomActions:  cfg.Agents.EnableCustomActions,
		CustomActionTimeout:  cfg.Agents.CustomActionTimeout,
		Logger:               logger,
	}
	if cfg.Probe.URL != "" {
		prober, err := probe.NewClient(probe.Config{
			URL:     cfg.Probe.URL,
			Timeout: time.Duration(cfg.Probe.TimeoutSeconds) * time.Second,
			Logger:  logger,
		})
		if err != nil {
			journal.Close()
			store.Close()
			return nil, err
		}
		runnerCfg.Prober = prober
	}

	runner, err := agents.NewRunner(runnerCfg)
	if err != nil {
		journal.Close()
		store.Close()
		return nil, err
	}

	return &generator{store: store, patterns: journal, opt: opt, runner: runner}, nil
}

// buildEngine connects to the Docker daemon and wraps it in the run engine.
func buildEngine(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*docker.Engine, error) {
	client, err := docker.Connect(ctx, cfg.Docker.Host, logger)
	if err != nil {
		return nil, err
	}
	engine, err := docker.NewEngine(docker.EngineConfig{
		Client:       client,
		ImageTag:     cfg.Docker.Image,
		RemoteImage:  cfg.Docker.RemoteImage,
		PreferRemote: cfg.Docker.PreferRemoteImage,
		BuildContext: cfg.Docker.BuildContext,
		TestsRoot:    cfg.Robot.TestsRoot,
		Logger:       logger,
	})
	if err != nil {
		client.Close()
		return nil, err
	}
	return engine, nil
}
