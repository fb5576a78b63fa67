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
	"regexp"
	"strings"
)

var (
	testCasesHeader = regexp.MustCompile(`(?i)^\*\*\*\s*test cases?\s*\*\*\*`)
	sectionHeader   = regexp.MustCompile(`^\*\*\*.*\*\*\*`)
	columnSep       = regexp.MustCompile(`[ \t]{2,}|\t`)
)

// ExtractKeywords returns the deduplicated keyword names a script's test
// cases actually call, in first-use order.
//
// Test case bodies are indented lines whose columns are separated by runs of
// two or more spaces. The first column is the keyword, unless the line
// assigns a variable (`${x} =    Keyword    arg`), in which case the keyword
// is the second column. Bracketed settings lines, continuation lines, and
// bare variable references are skipped.
func ExtractKeywords(script string) []string {
	inTestCases := false
	seen := make(map[string]bool)
	var found []string

	for _, line := range strings.Split(script, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}

		if sectionHeader.MatchString(trimmed) {
			inTestCases = testCasesHeader.MatchString(trimmed)
			continue
		}
		if !inTestCases {
			continue
		}

		// Unindented lines are test case names, not steps.
		if !strings.HasPrefix(line, " ") && !strings.HasPrefix(line, "\t") {
			continue
		}

		columns := columnSep.Split(trimmed, -1)
		if len(columns) == 0 || columns[0] == "" {
			continue
		}
		first := columns[0]
		if strings.HasPrefix(first, "[") || first == "..." {
			continue
		}

		keyword := first
		if isVariableAssignment(first) {
			if len(columns) < 2 {
				continue
			}
			keyword = columns[1]
		}
		if isVariableReference(keyword) {
			continue
		}

		if !seen[keyword] {
			seen[keyword] = true
			found = append(found, keyword)
		}
	}
	return found
}

// isVariableReference reports whether a token is a variable like ${URL},
// @{items} or &{opts} rather than a keyword name.
func isVariableReference(token string) bool {
	if len(token) < 2 {
		return false
	}
	return (token[0] == '$' || token[0] == '@' || token[0] == '&') && token[1] == '{'
}

// isVariableAssignment reports whether a first column like "${result} =" or
// "${result}=" captures the row's return value.
func isVariableAssignment(token string) bool {
	return isVariableReference(token) && strings.Contains(token, "=")
}
