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

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/teradata-labs/spindle/pkg/keywords"
)

const (
	searchToolCacheSize = 100
	defaultSearchK      = 3
)

type searchKey struct {
	query string
	k     int
}

// SearchTool is the on-demand keyword lookup exposed to agents: a thin,
// cached wrapper over the vector store.
type SearchTool struct {
	source KeywordSource
	cache  *lru.Cache[searchKey, []keywords.KeywordEntry]
	logger *zap.Logger
}

// NewSearchTool creates a search tool over the given keyword source.
func NewSearchTool(source KeywordSource, logger *zap.Logger) *SearchTool {
	if logger == nil {
		logger = zap.NewNop()
	}
	cache, _ := lru.New[searchKey, []keywords.KeywordEntry](searchToolCacheSize)
	return &SearchTool{
		source: source,
		cache:  cache,
		logger: logger,
	}
}

// Search returns up to k keyword entries matching the query, k=3 when
// unset. It never fails: backend errors are logged and yield an empty
// slice, and successful lookups are cached per (query, k).
func (st *SearchTool) Search(ctx context.Context, query string, k int) []keywords.KeywordEntry {
	if k <= 0 {
		k = defaultSearchK
	}
	key := searchKey{query: query, k: k}
	if entries, ok := st.cache.Get(key); ok {
		return entries
	}

	results, err := st.source.Search(ctx, query, k, 0)
	if err != nil {
		st.logger.Warn("keyword search tool failed",
			zap.String("query", query),
			zap.Error(err))
		return []keywords.KeywordEntry{}
	}

	entries := make([]keywords.KeywordEntry, len(results))
	for i, r := range results {
		entries[i] = r.Entry
	}
	st.cache.Add(key, entries)
	return entries
}
