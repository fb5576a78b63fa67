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

// Package embeddings provides embedding providers for the vector keyword
// store.
package embeddings

import (
	"context"
	"fmt"
)

// Provider generates dense vector embeddings for text.
type Provider interface {
	// Embed generates an embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts in one call
	// where the backend supports it.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Name returns the provider name.
	Name() string

	// Model returns the embedding model identifier.
	Model() string

	// Dimension returns the embedding dimension.
	Dimension() int
}

// ID returns a stable identity string for a provider+model pair. Collections
// record it so a provider or model switch forces a rebuild instead of
// comparing vectors from different spaces.
func ID(p Provider) string {
	return fmt.Sprintf("%s/%s/%d", p.Name(), p.Model(), p.Dimension())
}
