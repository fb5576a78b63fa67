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
	"context"
	"fmt"
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/teradata-labs/spindle/pkg/keywords/embeddings"
)

// DefaultCategoryThreshold is the minimum similarity a category reference
// needs before keyword pruning keeps it.
const DefaultCategoryThreshold = 0.8

// categoryDescriptions are the reference texts embedded once at startup.
// The keys match the category vocabulary used in the keyword corpora.
var categoryDescriptions = map[string]string{
	"navigation": "Navigate to pages and URLs, open and close browsers and tabs, " +
		"go back and forward, reload pages, switch windows and frames",
	"input": "Type text into fields, fill in forms, enter values, clear inputs, " +
		"select options from dropdowns, choose files to upload",
	"interaction": "Click buttons and links, press keys, hover over elements, " +
		"drag and drop, scroll the page, check and uncheck boxes",
	"extraction": "Get text and attributes from elements, read field values, " +
		"capture screenshots, retrieve page titles, URLs and element counts",
	"assertion": "Verify the page contains text, check elements are visible or " +
		"enabled, assert values and titles match the expected state",
	"wait": "Wait for elements to appear, become visible or clickable, wait for " +
		"pages to load, pause until a condition holds",
}

type categoryRef struct {
	name   string
	vector []float32
}

// Classifier assigns a query to action categories by comparing its embedding
// against fixed reference descriptions.
type Classifier struct {
	embedder  embeddings.Provider
	threshold float64
	refs      []categoryRef
	logger    *zap.Logger
}

// NewClassifier embeds the category reference descriptions and returns a
// ready classifier. Construction fails when the embedding provider does;
// callers treat that as pruning being unavailable, not as a fatal error.
func NewClassifier(ctx context.Context, embedder embeddings.Provider, threshold float64, logger *zap.Logger) (*Classifier, error) {
	if threshold <= 0 {
		threshold = DefaultCategoryThreshold
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	names := make([]string, 0, len(categoryDescriptions))
	for name := range categoryDescriptions {
		names = append(names, name)
	}
	sort.Strings(names)

	texts := make([]string, len(names))
	for i, name := range names {
		texts[i] = categoryDescriptions[name]
	}
	vectors, err := embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to embed category descriptions: %w", err)
	}
	if len(vectors) != len(names) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d categories", len(vectors), len(names))
	}

	refs := make([]categoryRef, len(names))
	for i, name := range names {
		refs[i] = categoryRef{name: name, vector: vectors[i]}
	}
	return &Classifier{
		embedder:  embedder,
		threshold: threshold,
		refs:      refs,
		logger:    logger,
	}, nil
}

// Categories returns the full category vocabulary in stable order.
func (c *Classifier) Categories() []string {
	names := make([]string, len(c.refs))
	for i, ref := range c.refs {
		names[i] = ref.name
	}
	return names
}

// Classify returns the categories the query falls into, best match first.
// When embedding fails or nothing clears the threshold it returns every
// category and reports degraded=true, so pruning keeps all keywords.
func (c *Classifier) Classify(ctx context.Context, query string) (selected []string, degraded bool) {
	vector, err := c.embedder.Embed(ctx, query)
	if err != nil {
		c.logger.Warn("query classification failed, keeping all categories", zap.Error(err))
		return c.Categories(), true
	}

	type scored struct {
		name  string
		score float64
	}
	var hits []scored
	for _, ref := range c.refs {
		if score := cosine(vector, ref.vector); score >= c.threshold {
			hits = append(hits, scored{name: ref.name, score: score})
		}
	}
	if len(hits) == 0 {
		c.logger.Debug("no category cleared the threshold, keeping all",
			zap.String("query", query))
		return c.Categories(), true
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].name < hits[j].name
	})
	selected = make([]string, len(hits))
	for i, h := range hits {
		selected[i] = h.name
	}
	return selected, false
}

// cosine computes cosine similarity; mismatched or empty vectors score 0.
func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
