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

// Package keywords implements the vector keyword store: persistent
// embeddings of Robot Framework keywords and past queries with semantic
// search over them.
package keywords

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/teradata-labs/spindle/embedded"
)

// KeywordEntry is one framework keyword in a library collection. Entries
// are immutable once ingested; the collection is rebuilt when the corpus
// bundle version changes.
type KeywordEntry struct {
	Name          string   `yaml:"name" json:"name"`
	Args          []string `yaml:"args" json:"args"`
	Documentation string   `yaml:"doc" json:"documentation"`
	Library       string   `yaml:"-" json:"library"`
	Categories    []string `yaml:"categories" json:"categories,omitempty"`
}

// Document renders the entry as the text that is embedded and the text
// handed to agents as keyword documentation.
func (e KeywordEntry) Document() string {
	var b strings.Builder
	b.WriteString(e.Name)
	if len(e.Args) > 0 {
		b.WriteString("\nArguments: ")
		b.WriteString(strings.Join(e.Args, ", "))
	}
	if e.Documentation != "" {
		b.WriteString("\n")
		b.WriteString(e.Documentation)
	}
	return b.String()
}

// HasCategory reports whether the entry belongs to any of the given
// categories. Entries without category metadata match everything, so
// pruning never drops an unclassified keyword.
func (e KeywordEntry) HasCategory(categories []string) bool {
	if len(e.Categories) == 0 || len(categories) == 0 {
		return true
	}
	for _, have := range e.Categories {
		for _, want := range categories {
			if strings.EqualFold(have, want) {
				return true
			}
		}
	}
	return false
}

// Bundle is a keyword corpus for one automation library.
type Bundle struct {
	Library  string         `yaml:"library"`
	Version  string         `yaml:"version"`
	Keywords []KeywordEntry `yaml:"keywords"`
}

// ParseBundle parses a YAML corpus bundle and stamps the library onto each
// entry.
func ParseBundle(data []byte) (*Bundle, error) {
	var bundle Bundle
	if err := yaml.Unmarshal(data, &bundle); err != nil {
		return nil, fmt.Errorf("parse keyword bundle: %w", err)
	}
	if bundle.Library == "" {
		return nil, fmt.Errorf("keyword bundle has no library field")
	}
	if bundle.Version == "" {
		return nil, fmt.Errorf("keyword bundle %q has no version field", bundle.Library)
	}
	if len(bundle.Keywords) == 0 {
		return nil, fmt.Errorf("keyword bundle %q has no keywords", bundle.Library)
	}
	for i := range bundle.Keywords {
		bundle.Keywords[i].Library = bundle.Library
		if bundle.Keywords[i].Name == "" {
			return nil, fmt.Errorf("keyword bundle %q: entry %d has no name", bundle.Library, i)
		}
	}
	return &bundle, nil
}

// LoadBundle returns the corpus bundle for a library. When overrideDir is
// set, `<overrideDir>/<library>.yaml` replaces the embedded bundle; a
// missing override file is an error, not a silent fallback.
func LoadBundle(library, overrideDir string) (*Bundle, error) {
	var data []byte
	var err error
	if overrideDir != "" {
		data, err = os.ReadFile(filepath.Join(overrideDir, library+".yaml"))
		if err != nil {
			return nil, fmt.Errorf("read keyword bundle override: %w", err)
		}
	} else {
		data, err = embedded.KeywordBundle(library)
		if err != nil {
			return nil, err
		}
	}

	bundle, err := ParseBundle(data)
	if err != nil {
		return nil, err
	}
	if bundle.Library != library {
		return nil, fmt.Errorf("keyword bundle declares library %q, expected %q", bundle.Library, library)
	}
	return bundle, nil
}
