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

// Package optimizer builds compact, role-specific context strings for the
// pipeline agents.
//
// Three tiers, best first:
//
//  1. Predicted: core rules plus the documentation of keywords that similar
//     past queries actually used.
//  2. Zero-context: core rules plus instructions for the on-demand keyword
//     search tool.
//  3. Full fallback: a larger static per-role context.
//
// Every failure degrades to a lower tier. BuildContext never returns an
// error; the orchestrator only ever sees a context string and a tier marker.
package optimizer

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/teradata-labs/spindle/pkg/keywords"
	"github.com/teradata-labs/spindle/pkg/patterns"
)

// Token budgets per context section, approximate by design: a keyword doc is
// either in or out, never truncated mid-sentence.
const (
	keywordDocsBudget = 500
	maxPredictedDocs  = 12
)

// Tier identifies which context strategy produced a result.
type Tier string

const (
	TierPredicted   Tier = "predicted"
	TierZeroContext Tier = "zero_context"
	TierFull        Tier = "full_fallback"
)

// KeywordSource is the slice of the vector keyword store the optimizer
// consumes: semantic search plus tolerant name lookup.
type KeywordSource interface {
	Search(ctx context.Context, query string, k int, threshold float64) ([]keywords.SearchResult, error)
	Get(ctx context.Context, name string) (*keywords.KeywordEntry, error)
}

// Predictor is the slice of the pattern journal the optimizer consumes.
type Predictor interface {
	Predict(ctx context.Context, query string) (*patterns.Prediction, error)
	Learn(ctx context.Context, query string, used []string) error
}

// PruningStats records what category pruning did to one prediction.
type PruningStats struct {
	Categories []string `json:"categories"`
	Total      int      `json:"total_keywords"`
	Retained   int      `json:"retained_keywords"`
	Pruned     int      `json:"pruned_keywords"`
	Degraded   bool     `json:"degraded"`
}

// ContextResult is what BuildContext hands the agent runner. It always
// carries a usable context string; Degraded marks that a higher tier failed
// on the way here.
type ContextResult struct {
	Context string
	Tier    Tier
	// Keywords are the predicted keyword names included in the context,
	// empty below the predicted tier.
	Keywords []string
	// Pruning is set when category pruning ran.
	Pruning *PruningStats
	// Degraded reports that an error forced a lower tier.
	Degraded bool
}

// Optimizer builds per-agent context strings from the rules library, the
// pattern journal, and the vector keyword store.
type Optimizer struct {
	rules      *RulesLibrary
	source     KeywordSource
	predictor  Predictor
	classifier *Classifier
	searchTool *SearchTool
	library    string
	enabled    bool
	pruning    bool
	logger     *zap.Logger
}

// Config configures an Optimizer.
type Config struct {
	// Rules serves the per-library rules bundles (required).
	Rules *RulesLibrary

	// Source is the vector keyword store (required).
	Source KeywordSource

	// Predictor is the pattern journal. Nil disables the predicted tier.
	Predictor Predictor

	// Classifier enables category pruning when Pruning is set. Nil means
	// pruning is unavailable and predictions pass through unpruned.
	Classifier *Classifier

	// Library selects the rules bundle: "selenium" or "browser".
	Library string

	// Enabled toggles tiers 1 and 2 (OPTIMIZATION_ENABLED). When false,
	// every role gets the full fallback context.
	Enabled bool

	// Pruning toggles category-based keyword pruning.
	Pruning bool

	// Logger defaults to a no-op logger.
	Logger *zap.Logger
}

// New creates an Optimizer.
func New(cfg Config) (*Optimizer, error) {
	if cfg.Rules == nil {
		return nil, fmt.Errorf("optimizer requires a rules library")
	}
	if cfg.Source == nil {
		return nil, fmt.Errorf("optimizer requires a keyword source")
	}
	if cfg.Library == "" {
		return nil, fmt.Errorf("optimizer requires a library")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Optimizer{
		rules:      cfg.Rules,
		source:     cfg.Source,
		predictor:  cfg.Predictor,
		classifier: cfg.Classifier,
		searchTool: NewSearchTool(cfg.Source, cfg.Logger),
		library:    cfg.Library,
		enabled:    cfg.Enabled,
		pruning:    cfg.Pruning,
		logger:     cfg.Logger,
	}, nil
}

// SearchTool returns the cached on-demand keyword lookup exposed to agents.
func (o *Optimizer) SearchTool() *SearchTool {
	return o.searchTool
}

// BuildContext produces the context string for one (query, role) pair.
// It never returns an error: every internal failure is logged and degrades
// the result to a lower tier, ending at the static full-fallback context.
func (o *Optimizer) BuildContext(ctx context.Context, query, role string) ContextResult {
	bundle, err := o.rules.Bundle(o.library)
	if err != nil {
		// No bundle at all. The embedded defaults make this unreachable in
		// practice; degrade to an empty-context marker rather than failing.
		o.logger.Error("no rules bundle available, returning empty context",
			zap.String("library", o.library),
			zap.Error(err))
		return ContextResult{Tier: TierFull, Degraded: true}
	}

	if !o.enabled {
		return ContextResult{Context: bundle.FullFor(role), Tier: TierFull}
	}

	if o.predictor != nil {
		if result, ok := o.buildPredicted(ctx, query, bundle); ok {
			return result
		}
	}

	if result, ok := o.buildZeroContext(bundle); ok {
		result.Degraded = o.predictor != nil
		return result
	}

	o.logger.Warn("zero-context tier unavailable, using full fallback",
		zap.String("role", role))
	return ContextResult{Context: bundle.FullFor(role), Tier: TierFull, Degraded: true}
}

// buildPredicted attempts tier 1. ok=false means the caller should fall
// through to the zero-context tier.
func (o *Optimizer) buildPredicted(ctx context.Context, query string, bundle *RulesBundle) (ContextResult, bool) {
	pred, err := o.predictor.Predict(ctx, query)
	if err != nil {
		o.logger.Warn("pattern prediction failed, degrading to zero-context tier", zap.Error(err))
		return ContextResult{}, false
	}
	if len(pred.Keywords) == 0 {
		o.logger.Debug("no past pattern cleared the prediction threshold",
			zap.Float64("top_similarity", pred.TopSimilarity))
		return ContextResult{}, false
	}

	names := pred.Keywords
	var stats *PruningStats
	if o.pruning && o.classifier != nil {
		names, stats = o.prune(ctx, query, names)
	}
	if len(names) > maxPredictedDocs {
		names = names[:maxPredictedDocs]
	}

	counter := GetTokenCounter()
	var docs []string
	var included []string
	budget := keywordDocsBudget
	for _, name := range names {
		entry, err := o.source.Get(ctx, name)
		if err != nil {
			// Predicted names come from old scripts; a keyword that left the
			// corpus is expected, not an error.
			o.logger.Debug("predicted keyword not in corpus, skipping",
				zap.String("keyword", name))
			continue
		}
		doc := entry.Document()
		cost := counter.CountTokens(doc)
		if cost > budget && len(docs) > 0 {
			break
		}
		budget -= cost
		docs = append(docs, doc)
		included = append(included, entry.Name)
	}
	if len(docs) == 0 {
		o.logger.Debug("no predicted keyword survived doc lookup, degrading")
		return ContextResult{}, false
	}

	var b strings.Builder
	b.WriteString(bundle.Core)
	b.WriteString("\n\n## Keywords used by similar tests\n\n")
	b.WriteString(strings.Join(docs, "\n\n"))

	return ContextResult{
		Context:  b.String(),
		Tier:     TierPredicted,
		Keywords: included,
		Pruning:  stats,
	}, true
}

// prune drops predicted keywords whose categories miss the query's
// classification. Degraded classification keeps everything.
func (o *Optimizer) prune(ctx context.Context, query string, names []string) ([]string, *PruningStats) {
	selected, degraded := o.classifier.Classify(ctx, query)
	stats := &PruningStats{
		Categories: selected,
		Total:      len(names),
		Degraded:   degraded,
	}
	if degraded {
		stats.Retained = len(names)
		return names, stats
	}

	var kept []string
	for _, name := range names {
		entry, err := o.source.Get(ctx, name)
		if err != nil || entry.HasCategory(selected) {
			kept = append(kept, name)
		}
	}
	stats.Retained = len(kept)
	stats.Pruned = stats.Total - stats.Retained

	o.logger.Debug("pruned predicted keywords",
		zap.Strings("categories", selected),
		zap.Int("total", stats.Total),
		zap.Int("retained", stats.Retained))
	return kept, stats
}

// buildZeroContext attempts tier 2: core rules plus search-tool
// instructions.
func (o *Optimizer) buildZeroContext(bundle *RulesBundle) (ContextResult, bool) {
	if strings.TrimSpace(bundle.SearchTool) == "" {
		return ContextResult{}, false
	}
	var b strings.Builder
	b.WriteString(bundle.Core)
	b.WriteString("\n\n")
	b.WriteString(bundle.SearchTool)
	return ContextResult{Context: b.String(), Tier: TierZeroContext}, true
}

// Learn extracts the keywords a successful script actually used and records
// the (query, keywords) pattern in the journal.
func (o *Optimizer) Learn(ctx context.Context, query, script string) error {
	if o.predictor == nil {
		return nil
	}
	used := ExtractKeywords(script)
	if len(used) == 0 {
		o.logger.Warn("script has no extractable keywords, nothing to learn")
		return nil
	}
	if err := o.predictor.Learn(ctx, query, used); err != nil {
		return err
	}
	o.logger.Info("learned keyword pattern from passing run",
		zap.Int("keywords", len(used)))
	return nil
}
