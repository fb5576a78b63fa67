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
package keywords

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/sahilm/fuzzy"
	"go.uber.org/zap"
	"golang.org/x/mod/semver"

	"github.com/teradata-labs/spindle/internal/log"
	_ "github.com/teradata-labs/spindle/internal/sqlitedriver"
	"github.com/teradata-labs/spindle/pkg/keywords/embeddings"
)

// Store is the process-wide vector keyword store. Reads run concurrently;
// writes (corpus rebuilds, query indexing) are serialized, so a search that
// starts before a rebuild sees the pre-rebuild collection consistently.
type Store struct {
	db        *sql.DB
	embedder  embeddings.Provider
	library   string
	corpusDir string

	mu sync.RWMutex
}

// Config holds configuration for the keyword store.
type Config struct {
	// Path is the SQLite database file. Empty means in-memory.
	Path string

	// Embedder generates vectors for keyword documents and queries.
	Embedder embeddings.Provider

	// Library selects the corpus bundle: "selenium" or "browser".
	Library string

	// CorpusDir optionally overrides the embedded bundles with
	// `<CorpusDir>/<library>.yaml`.
	CorpusDir string
}

// SearchResult is one keyword search hit.
type SearchResult struct {
	Entry KeywordEntry
	Score float64
}

// QueryMatch is one past-query search hit from the pattern collection.
type QueryMatch struct {
	PatternID int64
	Query     string
	Score     float64
}

// Open opens the store and creates its schema. Call EnsureCorpus before
// searching.
func Open(cfg Config) (*Store, error) {
	if cfg.Embedder == nil {
		return nil, fmt.Errorf("keyword store requires an embedder")
	}
	if cfg.Library == "" {
		return nil, fmt.Errorf("keyword store requires a library")
	}
	path := cfg.Path
	if path == "" {
		path = ":memory:"
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open keyword store: %w", err)
	}
	// modernc/sqlite serializes at the driver level; a single connection
	// avoids table-lock errors between concurrent readers and the rebuild
	// writer.
	db.SetMaxOpenConns(1)

	s := &Store{
		db:        db,
		embedder:  cfg.Embedder,
		library:   cfg.Library,
		corpusDir: cfg.CorpusDir,
	}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS collections (
			name TEXT PRIMARY KEY,
			version TEXT NOT NULL,
			embedder TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS keywords (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			collection TEXT NOT NULL,
			name TEXT NOT NULL,
			args TEXT,
			documentation TEXT,
			library TEXT NOT NULL,
			categories TEXT,
			embedding BLOB,
			UNIQUE(collection, name)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_keywords_collection ON keywords(collection)`,
		`CREATE TABLE IF NOT EXISTS query_embeddings (
			pattern_id INTEGER PRIMARY KEY,
			query_text TEXT NOT NULL,
			embedding BLOB
		)`,
	}
	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("create keyword store schema: %w", err)
		}
	}
	return nil
}

// Library returns the library this store serves.
func (s *Store) Library() string {
	return s.library
}

// EnsureCorpus ingests the corpus bundle for the configured library,
// rebuilding the collection when the bundle version or the embedding space
// differs from what is stored. Safe to call at every startup.
func (s *Store) EnsureCorpus(ctx context.Context) error {
	bundle, err := LoadBundle(s.library, s.corpusDir)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var storedVersion, storedEmbedder string
	err = s.db.QueryRowContext(ctx,
		`SELECT version, embedder FROM collections WHERE name = ?`, s.library,
	).Scan(&storedVersion, &storedEmbedder)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// first ingest
	case err != nil:
		return fmt.Errorf("read collection version: %w", err)
	default:
		if !versionMismatch(storedVersion, bundle.Version) && storedEmbedder == embeddings.ID(s.embedder) {
			log.Debug("keyword collection up to date",
				zap.String("library", s.library),
				zap.String("version", storedVersion))
			return nil
		}
		log.Info("keyword collection version mismatch, rebuilding",
			zap.String("library", s.library),
			zap.String("stored", storedVersion),
			zap.String("bundle", bundle.Version))
	}

	return s.rebuild(ctx, bundle)
}

// versionMismatch compares bundle versions as semver when both parse, and
// as plain strings otherwise. Any difference triggers a rebuild.
func versionMismatch(stored, bundled string) bool {
	v := "v" + strings.TrimPrefix(stored, "v")
	w := "v" + strings.TrimPrefix(bundled, "v")
	if semver.IsValid(v) && semver.IsValid(w) {
		return semver.Compare(v, w) != 0
	}
	return stored != bundled
}

// rebuild replaces the collection contents. Caller holds the write lock.
func (s *Store) rebuild(ctx context.Context, bundle *Bundle) error {
	docs := make([]string, len(bundle.Keywords))
	for i, entry := range bundle.Keywords {
		docs[i] = entry.Document()
	}
	vectors, err := s.embedder.EmbedBatch(ctx, docs)
	if err != nil {
		return fmt.Errorf("embed keyword corpus: %w", err)
	}
	if len(vectors) != len(bundle.Keywords) {
		return fmt.Errorf("embedder returned %d vectors for %d keywords", len(vectors), len(bundle.Keywords))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin corpus rebuild: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, `DELETE FROM keywords WHERE collection = ?`, s.library); err != nil {
		return fmt.Errorf("clear keyword collection: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO keywords (collection, name, args, documentation, library, categories, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare keyword insert: %w", err)
	}
	defer stmt.Close()

	for i, entry := range bundle.Keywords {
		args, err := json.Marshal(entry.Args)
		if err != nil {
			return fmt.Errorf("marshal args for %q: %w", entry.Name, err)
		}
		categories, err := json.Marshal(entry.Categories)
		if err != nil {
			return fmt.Errorf("marshal categories for %q: %w", entry.Name, err)
		}
		if _, err := stmt.ExecContext(ctx,
			s.library, entry.Name, string(args), entry.Documentation,
			entry.Library, string(categories), encodeVector(vectors[i]),
		); err != nil {
			return fmt.Errorf("insert keyword %q: %w", entry.Name, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO collections (name, version, embedder, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(name) DO UPDATE SET
			version = excluded.version,
			embedder = excluded.embedder,
			updated_at = CURRENT_TIMESTAMP
	`, s.library, bundle.Version, embeddings.ID(s.embedder)); err != nil {
		return fmt.Errorf("update collection version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit corpus rebuild: %w", err)
	}

	log.Info("keyword collection built",
		zap.String("library", s.library),
		zap.String("version", bundle.Version),
		zap.Int("keywords", len(bundle.Keywords)))
	return nil
}

// Search returns the top-k keywords semantically closest to query with
// similarity of at least threshold.
func (s *Store) Search(ctx context.Context, query string, k int, threshold float64) ([]SearchResult, error) {
	if k <= 0 {
		k = 3
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	queryVector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed search query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT name, args, documentation, library, categories, embedding
		FROM keywords WHERE collection = ?
	`, s.library)
	if err != nil {
		return nil, fmt.Errorf("query keywords: %w", err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		entry, blob, err := scanKeyword(rows)
		if err != nil {
			return nil, err
		}
		score := cosineSimilarity(queryVector, decodeVector(blob))
		if score < threshold {
			continue
		}
		results = append(results, SearchResult{Entry: entry, Score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scan keywords: %w", err)
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// Get returns a keyword entry by name. The lookup is case-insensitive and
// falls back to fuzzy matching, tolerating the spacing and casing drift in
// model-predicted keyword names.
func (s *Store) Get(ctx context.Context, name string) (*KeywordEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, err := s.getExact(ctx, name)
	if err == nil {
		return entry, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	names, err := s.names(ctx)
	if err != nil {
		return nil, err
	}
	matches := fuzzy.Find(name, names)
	if len(matches) == 0 {
		return nil, fmt.Errorf("keyword %q not found in %s collection", name, s.library)
	}
	return s.getExact(ctx, matches[0].Str)
}

func (s *Store) getExact(ctx context.Context, name string) (*KeywordEntry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT name, args, documentation, library, categories, embedding
		FROM keywords WHERE collection = ? AND name = ? COLLATE NOCASE
	`, s.library, name)

	entry, _, err := scanKeyword(row)
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (s *Store) names(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name FROM keywords WHERE collection = ?`, s.library)
	if err != nil {
		return nil, fmt.Errorf("query keyword names: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Count returns the number of keywords in the collection.
func (s *Store) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM keywords WHERE collection = ?`, s.library,
	).Scan(&count)
	return count, err
}

// IndexQuery stores the embedding for a learned pattern's query text. The
// pattern journal owns pattern rows; their embeddings live here so all
// vector state shares one database.
func (s *Store) IndexQuery(ctx context.Context, patternID int64, query string) error {
	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return fmt.Errorf("embed pattern query: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO query_embeddings (pattern_id, query_text, embedding)
		VALUES (?, ?, ?)
		ON CONFLICT(pattern_id) DO UPDATE SET
			query_text = excluded.query_text,
			embedding = excluded.embedding
	`, patternID, query, encodeVector(vector))
	if err != nil {
		return fmt.Errorf("index pattern query: %w", err)
	}
	return nil
}

// SearchQueries returns the top-k past queries closest to query.
func (s *Store) SearchQueries(ctx context.Context, query string, k int) ([]QueryMatch, error) {
	if k <= 0 {
		k = 3
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	queryVector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed search query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT pattern_id, query_text, embedding FROM query_embeddings`)
	if err != nil {
		return nil, fmt.Errorf("query pattern embeddings: %w", err)
	}
	defer rows.Close()

	var matches []QueryMatch
	for rows.Next() {
		var id int64
		var text string
		var blob []byte
		if err := rows.Scan(&id, &text, &blob); err != nil {
			return nil, err
		}
		matches = append(matches, QueryMatch{
			PatternID: id,
			Query:     text,
			Score:     cosineSimilarity(queryVector, decodeVector(blob)),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scan pattern embeddings: %w", err)
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// scanKeyword reads one keyword row from either *sql.Rows or *sql.Row.
func scanKeyword(row interface{ Scan(...any) error }) (KeywordEntry, []byte, error) {
	var entry KeywordEntry
	var argsJSON, categoriesJSON sql.NullString
	var blob []byte

	err := row.Scan(&entry.Name, &argsJSON, &entry.Documentation, &entry.Library, &categoriesJSON, &blob)
	if err != nil {
		return entry, nil, err
	}
	if argsJSON.Valid && argsJSON.String != "" {
		if err := json.Unmarshal([]byte(argsJSON.String), &entry.Args); err != nil {
			return entry, nil, fmt.Errorf("unmarshal args for %q: %w", entry.Name, err)
		}
	}
	if categoriesJSON.Valid && categoriesJSON.String != "" {
		if err := json.Unmarshal([]byte(categoriesJSON.String), &entry.Categories); err != nil {
			return entry, nil, fmt.Errorf("unmarshal categories for %q: %w", entry.Name, err)
		}
	}
	return entry, blob, nil
}
