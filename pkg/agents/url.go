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
package agents

import (
	"regexp"
	"strings"
)

// PlaceholderURL is handed to the element identifier when no URL-like token
// appears in the query. The probing collaborator then searches the query
// text for a target itself.
const PlaceholderURL = "about:blank"

var (
	fullURL = regexp.MustCompile(`https?://[^\s"'<>)]+`)

	// Bare domains like google.com or shop.example.co.uk. The TLD list is
	// deliberately short: common TLDs only, so prose like "robot.framework"
	// is not mistaken for a site.
	bareDomain = regexp.MustCompile(`(?i)\b([a-z0-9][a-z0-9-]*(?:\.[a-z0-9][a-z0-9-]*)*\.(?:com|org|net|io|dev|app|ai|co|edu|gov)(?:\.[a-z]{2})?)\b`)

	// "on google", "visit amazon", "go to github".
	prepositionSite = regexp.MustCompile(`(?i)\b(?:on|at|from|visit|go to|open)\s+([a-z0-9][a-z0-9-]{1,62})\b`)
)

// stopwords are words that follow a preposition without naming a site.
var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "this": true, "that": true,
	"page": true, "site": true, "website": true, "browser": true,
	"it": true, "there": true, "top": true, "bottom": true,
}

// ExtractURL finds the target site in a query. It tries, in order: a full
// http(s) URL, a bare domain with a recognized TLD, and a site name after a
// preposition (synthesized to https://www.<name>.com). Queries with no
// URL-like token get PlaceholderURL; callers must tolerate it.
func ExtractURL(query string) string {
	if m := fullURL.FindString(query); m != "" {
		return strings.TrimRight(m, ".,;:!?")
	}

	if m := bareDomain.FindString(query); m != "" {
		return "https://" + strings.TrimRight(m, ".")
	}

	for _, m := range prepositionSite.FindAllStringSubmatch(query, -1) {
		word := strings.ToLower(m[1])
		if stopwords[word] {
			continue
		}
		return "https://www." + word + ".com"
	}

	return PlaceholderURL
}
