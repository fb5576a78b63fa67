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

// Package patterns records which keywords past queries actually used and
// predicts keywords for new queries by embedding similarity.
//
// The journal is append-only: each successful run adds one pattern row and
// bumps per-keyword usage counters. Rows are never updated or deleted.
package patterns

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	_ "github.com/teradata-labs/spindle/internal/sqlitedriver"
	"github.com/teradata-labs/spindle/pkg/keywords"
)

// DefaultPredictionThreshold is the minimum similarity a past pattern needs
// before its keywords are suggested for a new query.
const DefaultPredictionThreshold = 0.7

// defaultMaxMatches bounds how many similar past queries Predict considers.
const defaultMaxMatches = 5

// QueryIndex is the slice of the keyword store the journal needs: the
// query-embedding collection. Embedding writes go through it so the journal
// itself never talks to an embedding provider.
type QueryIndex interface {
	IndexQuery(ctx context.Context, patternID int64, query string) error
	SearchQueries(ctx context.Context, query string, k int) ([]keywords.QueryMatch, error)
}

// Journal persists (query, keywords-used) associations to SQLite and answers
// similarity lookups against them.
type Journal struct {
	db        *sql.DB
	index     QueryIndex
	logger    *zap.Logger
	threshold float64
	maxMatch  int

	// mu serializes counter upserts; reads go straight to the database.
	mu sync.Mutex
}

// Config configures a pattern journal.
type Config struct {
	// Path is the SQLite file backing the journal. Empty means in-memory.
	Path string
	// Index hosts the query-embedding collection, normally the keyword store.
	Index QueryIndex
	// PredictionThreshold is the minimum similarity for a past pattern to
	// contribute keywords. Zero means DefaultPredictionThreshold.
	PredictionThreshold float64
	// MaxMatches bounds how many similar patterns Predict considers.
	// Zero means 5.
	MaxMatches int
	// Logger defaults to a no-op logger.
	Logger *zap.Logger
}

// Prediction is the result of a similarity lookup over past patterns.
type Prediction struct {
	// Keywords is the union of keyword names used by patterns at or above
	// the threshold, ordered by the similarity of the pattern that first
	// contributed them.
	Keywords []string
	// TopSimilarity is the best match score, 0 when no patterns exist.
	TopSimilarity float64
	// Matches is the number of patterns at or above the threshold.
	Matches int
}

// Open opens (creating if necessary) a pattern journal.
func Open(cfg Config) (*Journal, error) {
	if cfg.Index == nil {
		return nil, fmt.Errorf("pattern journal requires a query index")
	}
	if cfg.PredictionThreshold == 0 {
		cfg.PredictionThreshold = DefaultPredictionThreshold
	}
	if cfg.MaxMatches <= 0 {
		cfg.MaxMatches = defaultMaxMatches
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	path := cfg.Path
	if path == "" {
		path = ":memory:"
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open pattern journal: %w", err)
	}
	// A single connection keeps every pool handle on the same in-memory
	// database and sidesteps table-lock errors on files.
	db.SetMaxOpenConns(1)

	j := &Journal{
		db:        db,
		index:     cfg.Index,
		logger:    cfg.Logger,
		threshold: cfg.PredictionThreshold,
		maxMatch:  cfg.MaxMatches,
	}
	if err := j.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize journal schema: %w", err)
	}
	return j, nil
}

func (j *Journal) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS patterns (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		query_text TEXT NOT NULL,
		keywords_used TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS keyword_usage (
		keyword TEXT PRIMARY KEY,
		usage_count INTEGER NOT NULL,
		last_used INTEGER NOT NULL
	);
	`
	_, err := j.db.Exec(schema)
	return err
}

// Learn appends one pattern row, bumps usage counters for every keyword, and
// indexes the query embedding so future Predict calls can find it.
func (j *Journal) Learn(ctx context.Context, query string, used []string) error {
	if strings.TrimSpace(query) == "" {
		return fmt.Errorf("cannot learn from an empty query")
	}
	if len(used) == 0 {
		return fmt.Errorf("cannot learn a pattern with no keywords")
	}

	data, err := json.Marshal(used)
	if err != nil {
		return fmt.Errorf("failed to marshal keyword list: %w", err)
	}

	j.mu.Lock()
	patternID, err := j.appendPattern(ctx, query, string(data), used)
	j.mu.Unlock()
	if err != nil {
		return err
	}

	// The embedding lives in the keyword store's query collection. If this
	// fails the pattern row still feeds the usage counters; it just never
	// matches a similarity lookup.
	if err := j.index.IndexQuery(ctx, patternID, query); err != nil {
		return fmt.Errorf("failed to index pattern query: %w", err)
	}

	j.logger.Debug("learned pattern",
		zap.Int64("pattern_id", patternID),
		zap.Int("keywords", len(used)))
	return nil
}

func (j *Journal) appendPattern(ctx context.Context, query, keywordsJSON string, used []string) (int64, error) {
	now := time.Now().Unix()

	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	res, err := tx.ExecContext(ctx,
		`INSERT INTO patterns (query_text, keywords_used, created_at) VALUES (?, ?, ?)`,
		query, keywordsJSON, now)
	if err != nil {
		return 0, fmt.Errorf("failed to append pattern: %w", err)
	}
	patternID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read pattern id: %w", err)
	}

	for _, kw := range used {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO keyword_usage (keyword, usage_count, last_used) VALUES (?, 1, ?)
			ON CONFLICT(keyword) DO UPDATE SET
				usage_count = usage_count + 1,
				last_used = excluded.last_used`,
			kw, now)
		if err != nil {
			return 0, fmt.Errorf("failed to update usage counter for %q: %w", kw, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit pattern: %w", err)
	}
	return patternID, nil
}

// Predict returns the keywords historically used by queries similar to this
// one. Keywords come only from patterns at or above the prediction threshold;
// TopSimilarity is reported even when nothing clears it.
func (j *Journal) Predict(ctx context.Context, query string) (*Prediction, error) {
	matches, err := j.index.SearchQueries(ctx, query, j.maxMatch)
	if err != nil {
		return nil, fmt.Errorf("failed to search past queries: %w", err)
	}

	pred := &Prediction{}
	if len(matches) == 0 {
		return pred, nil
	}
	pred.TopSimilarity = matches[0].Score

	seen := make(map[string]bool)
	for _, m := range matches {
		if m.Score < j.threshold {
			continue
		}
		used, err := j.keywordsFor(ctx, m.PatternID)
		if err != nil {
			return nil, err
		}
		if used == nil {
			// Stale embedding row with no journal entry behind it.
			continue
		}
		pred.Matches++
		for _, kw := range used {
			if !seen[kw] {
				seen[kw] = true
				pred.Keywords = append(pred.Keywords, kw)
			}
		}
	}

	j.logger.Debug("predicted keywords from past patterns",
		zap.Float64("top_similarity", pred.TopSimilarity),
		zap.Int("matches", pred.Matches),
		zap.Int("keywords", len(pred.Keywords)))
	return pred, nil
}

func (j *Journal) keywordsFor(ctx context.Context, patternID int64) ([]string, error) {
	var data string
	err := j.db.QueryRowContext(ctx,
		`SELECT keywords_used FROM patterns WHERE id = ?`, patternID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read pattern %d: %w", patternID, err)
	}

	var used []string
	if err := json.Unmarshal([]byte(data), &used); err != nil {
		j.logger.Warn("pattern has unparseable keyword list, skipping",
			zap.Int64("pattern_id", patternID),
			zap.Error(err))
		return nil, nil
	}
	return used, nil
}

// Usage returns the aggregate counter for one keyword. A keyword that was
// never learned reports a zero count.
func (j *Journal) Usage(ctx context.Context, keyword string) (int, time.Time, error) {
	var count int
	var lastUsed int64
	err := j.db.QueryRowContext(ctx,
		`SELECT usage_count, last_used FROM keyword_usage WHERE keyword = ?`,
		keyword).Scan(&count, &lastUsed)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, time.Time{}, nil
	}
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("failed to read usage for %q: %w", keyword, err)
	}
	return count, time.Unix(lastUsed, 0), nil
}

// PatternCount returns the number of recorded patterns.
func (j *Journal) PatternCount(ctx context.Context) (int, error) {
	var count int
	err := j.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM patterns`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count patterns: %w", err)
	}
	return count, nil
}

// Close releases the underlying database handle.
func (j *Journal) Close() error {
	return j.db.Close()
}
