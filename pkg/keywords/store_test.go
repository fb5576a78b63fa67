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
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEmbedder derives tiny deterministic vectors from word counts so
// cosine ranking behaves like a real embedding space without network calls.
type fakeEmbedder struct{}

func (fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	t := strings.ToLower(text)
	return []float32{
		float32(strings.Count(t, "click")),
		float32(strings.Count(t, "text") + strings.Count(t, "type") + strings.Count(t, "fill")),
		float32(strings.Count(t, "wait")),
		float32(strings.Count(t, "search")),
		0.1, // small bias so no vector is zero
	}, nil
}

func (f fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := f.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		vectors[i] = v
	}
	return vectors, nil
}

func (fakeEmbedder) Name() string   { return "fake" }
func (fakeEmbedder) Model() string  { return "wordcount" }
func (fakeEmbedder) Dimension() int { return 5 }

const testBundleV1 = `
library: selenium
version: 1.0.0
keywords:
  - name: Click Element
    args: ["locator"]
    doc: Clicks the element identified by locator.
    categories: [interaction]
  - name: Input Text
    args: ["locator", "text"]
    doc: Types the given text into the text field.
    categories: [input]
  - name: Wait Until Element Is Visible
    args: ["locator", "timeout=None"]
    doc: Waits until the element is visible.
    categories: [wait]
`

const testBundleV2 = `
library: selenium
version: 1.1.0
keywords:
  - name: Click Element
    args: ["locator"]
    doc: Clicks the element identified by locator.
    categories: [interaction]
  - name: Input Text
    args: ["locator", "text"]
    doc: Types the given text into the text field.
    categories: [input]
  - name: Wait Until Element Is Visible
    args: ["locator", "timeout=None"]
    doc: Waits until the element is visible.
    categories: [wait]
  - name: Click Button
    args: ["locator"]
    doc: Clicks the button identified by locator.
    categories: [interaction]
`

// newTestStore opens a store over a corpus override dir seeded with the
// given bundle text.
func newTestStore(t *testing.T, bundle string) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "selenium.yaml"), []byte(bundle), 0o644))

	store, err := Open(Config{
		Path:      filepath.Join(dir, "keywords.db"),
		Embedder:  fakeEmbedder{},
		Library:   "selenium",
		CorpusDir: dir,
	})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store, dir
}

func TestStore_EnsureCorpus(t *testing.T) {
	store, _ := newTestStore(t, testBundleV1)
	ctx := context.Background()

	require.NoError(t, store.EnsureCorpus(ctx))
	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	// Second call with an unchanged bundle is a no-op.
	require.NoError(t, store.EnsureCorpus(ctx))
	count, err = store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestStore_EnsureCorpus_RebuildsOnVersionChange(t *testing.T) {
	store, dir := newTestStore(t, testBundleV1)
	ctx := context.Background()

	require.NoError(t, store.EnsureCorpus(ctx))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "selenium.yaml"), []byte(testBundleV2), 0o644))
	require.NoError(t, store.EnsureCorpus(ctx))

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, count, "collection should match the new bundle exactly")
}

func TestStore_Search(t *testing.T) {
	store, _ := newTestStore(t, testBundleV1)
	ctx := context.Background()
	require.NoError(t, store.EnsureCorpus(ctx))

	results, err := store.Search(ctx, "click the login button", 3, 0.1)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "Click Element", results[0].Entry.Name)
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score, "results should be ordered by score")
	}
}

func TestStore_Search_ThresholdFilters(t *testing.T) {
	store, _ := newTestStore(t, testBundleV1)
	ctx := context.Background()
	require.NoError(t, store.EnsureCorpus(ctx))

	results, err := store.Search(ctx, "click the login button", 10, 0.999)
	require.NoError(t, err)
	for _, r := range results {
		assert.GreaterOrEqual(t, r.Score, 0.999)
	}
}

func TestStore_Search_TopK(t *testing.T) {
	store, _ := newTestStore(t, testBundleV1)
	ctx := context.Background()
	require.NoError(t, store.EnsureCorpus(ctx))

	results, err := store.Search(ctx, "click and type and wait", 2, 0)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(results), 2)
}

func TestStore_Get(t *testing.T) {
	store, _ := newTestStore(t, testBundleV1)
	ctx := context.Background()
	require.NoError(t, store.EnsureCorpus(ctx))

	t.Run("exact", func(t *testing.T) {
		entry, err := store.Get(ctx, "Input Text")
		require.NoError(t, err)
		assert.Equal(t, "Input Text", entry.Name)
		assert.Equal(t, []string{"locator", "text"}, entry.Args)
	})

	t.Run("case insensitive", func(t *testing.T) {
		entry, err := store.Get(ctx, "input text")
		require.NoError(t, err)
		assert.Equal(t, "Input Text", entry.Name)
	})

	t.Run("fuzzy", func(t *testing.T) {
		entry, err := store.Get(ctx, "InputText")
		require.NoError(t, err)
		assert.Equal(t, "Input Text", entry.Name)
	})

	t.Run("not found", func(t *testing.T) {
		_, err := store.Get(ctx, "zzzzzz")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not found")
	})
}

func TestStore_QueryCollection(t *testing.T) {
	store, _ := newTestStore(t, testBundleV1)
	ctx := context.Background()

	require.NoError(t, store.IndexQuery(ctx, 1, "click the submit button"))
	require.NoError(t, store.IndexQuery(ctx, 2, "wait for the page to load"))

	matches, err := store.SearchQueries(ctx, "click the login button", 2)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, int64(1), matches[0].PatternID)
	assert.Equal(t, "click the submit button", matches[0].Query)
	assert.Greater(t, matches[0].Score, matches[1].Score)

	// Re-indexing the same pattern id replaces, not duplicates.
	require.NoError(t, store.IndexQuery(ctx, 1, "click the submit button twice"))
	matches, err = store.SearchQueries(ctx, "click", 10)
	require.NoError(t, err)
	assert.Len(t, matches, 2)
}

func TestStore_RebuildUnderConcurrentReads(t *testing.T) {
	store, dir := newTestStore(t, testBundleV1)
	ctx := context.Background()
	require.NoError(t, store.EnsureCorpus(ctx))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "selenium.yaml"), []byte(testBundleV2), 0o644))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			count, err := store.Count(ctx)
			assert.NoError(t, err)
			// Either the pre-rebuild or post-rebuild collection, never torn.
			assert.Contains(t, []int{3, 4}, count)
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		assert.NoError(t, store.EnsureCorpus(ctx))
	}()
	wg.Wait()

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, count)
}

func TestVersionMismatch(t *testing.T) {
	tests := []struct {
		stored, bundled string
		mismatch        bool
	}{
		{"1.0.0", "1.0.0", false},
		{"1.0", "1.0.0", false}, // semver treats these as equal
		{"1.0.0", "1.1.0", true},
		{"2.0.0", "1.0.0", true}, // downgrade is also a mismatch
		{"garbage", "1.0.0", true},
		{"abc", "abc", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.mismatch, versionMismatch(tt.stored, tt.bundled),
			"stored=%s bundled=%s", tt.stored, tt.bundled)
	}
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, cosineSimilarity([]float32{1, 0}, []float32{2, 0}), 1e-9)
	assert.InDelta(t, 0.0, cosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, cosineSimilarity([]float32{1, 0}, []float32{-1, 0}), 1e-9)
	assert.Zero(t, cosineSimilarity([]float32{1, 0}, []float32{1, 0, 0}), "length mismatch scores zero")
	assert.Zero(t, cosineSimilarity(nil, nil))
}

func TestVectorRoundTrip(t *testing.T) {
	original := []float32{0.5, -1.25, 3.75, 0}
	decoded := decodeVector(encodeVector(original))
	assert.Equal(t, original, decoded)

	assert.Nil(t, encodeVector(nil))
	assert.Nil(t, decodeVector(nil))
	assert.Nil(t, decodeVector([]byte{1, 2, 3}), "non-multiple-of-4 blobs decode to nil")
}
