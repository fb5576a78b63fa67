// Package embedded provides access to files embedded into the spindle
// binary. This ensures corpora, prompts, and rules are always available,
// even when the binary is distributed separately from the source tree.
package embedded

import (
	"embed"
	"fmt"
)

// keywordFS holds the keyword corpus bundles, one per automation library.
//
//go:embed keywords/*.yaml
var keywordFS embed.FS

// rulesFS holds the optimizer rules bundles, one per automation library.
//
//go:embed rules/*.yaml
var rulesFS embed.FS

// promptFS holds the agent system prompts.
//
//go:embed prompts/*.md
var promptFS embed.FS

// KeywordBundle returns the embedded keyword corpus for the given library
// ("selenium" or "browser").
func KeywordBundle(library string) ([]byte, error) {
	data, err := keywordFS.ReadFile(fmt.Sprintf("keywords/%s.yaml", library))
	if err != nil {
		return nil, fmt.Errorf("no embedded keyword bundle for library %q: %w", library, err)
	}
	return data, nil
}

// RulesBundle returns the embedded optimizer rules for the given library.
func RulesBundle(library string) ([]byte, error) {
	data, err := rulesFS.ReadFile(fmt.Sprintf("rules/%s.yaml", library))
	if err != nil {
		return nil, fmt.Errorf("no embedded rules bundle for library %q: %w", library, err)
	}
	return data, nil
}

// Prompt returns the embedded system prompt for the given agent
// ("planner", "identifier", "assembler", or "validator").
func Prompt(agent string) ([]byte, error) {
	data, err := promptFS.ReadFile(fmt.Sprintf("prompts/%s.md", agent))
	if err != nil {
		return nil, fmt.Errorf("no embedded prompt for agent %q: %w", agent, err)
	}
	return data, nil
}
