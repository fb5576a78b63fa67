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

// Package script turns noisy LLM output into a clean Robot Framework
// artifact: script extraction on the assembler side, verdict parsing on the
// validator side.
package script

import (
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

var (
	openFence  = regexp.MustCompile("(?m)^```[a-zA-Z0-9_-]*[ \t]*\r?\n")
	closeFence = regexp.MustCompile("(?m)^```[ \t]*$")

	settingsHeader  = regexp.MustCompile(`(?i)\*\*\*\s*Settings\s*\*\*\*`)
	variablesHeader = regexp.MustCompile(`(?i)\*\*\*\s*Variables\s*\*\*\*`)
	testCasesHeader = regexp.MustCompile(`(?i)\*\*\*\s*Test Cases?\s*\*\*\*`)
)

// Extract pulls the Robot Framework script out of raw assembler output.
//
// Models wrap scripts in prose and markdown fences, and frequently emit the
// whole block twice. Extraction strips fences, then keeps the text from the
// last `*** Settings ***` occurrence onward; the last copy is empirically
// the cleanest. Missing Settings falls back to the first `*** Variables ***`
// and then the first `*** Test Cases ***`. Indentation is preserved exactly;
// only trailing blank lines are dropped.
func Extract(raw string, logger *zap.Logger) (string, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if strings.TrimSpace(raw) == "" {
		return "", fmt.Errorf("assembler output is empty")
	}

	text := openFence.ReplaceAllString(raw, "")
	text = closeFence.ReplaceAllString(text, "")

	start := -1
	if locs := settingsHeader.FindAllStringIndex(text, -1); len(locs) > 0 {
		start = locs[len(locs)-1][0]
		if len(locs) > 1 {
			logger.Debug("multiple Settings blocks in model output, keeping the last",
				zap.Int("discarded", len(locs)-1))
		}
	} else if loc := variablesHeader.FindStringIndex(text); loc != nil {
		start = loc[0]
		logger.Warn("script has no Settings section, starting at Variables")
	} else if loc := testCasesHeader.FindStringIndex(text); loc != nil {
		start = loc[0]
		logger.Warn("script has no Settings or Variables section, starting at Test Cases")
	}
	if start < 0 {
		return "", fmt.Errorf("no Robot Framework section header found in model output")
	}

	script := strings.TrimRight(text[start:], " \t\r\n")
	return script, nil
}
