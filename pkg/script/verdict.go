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
package script

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/teradata-labs/spindle/pkg/types"
)

// ErrVerdictUnparseable is returned when no strategy recognizes the
// validator output. The orchestrator surfaces a generic message; raw model
// text never reaches the user.
var ErrVerdictUnparseable = fmt.Errorf("validator output is not parseable")

var (
	jsonFence    = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")
	jsonObject   = regexp.MustCompile(`(?s)\{[^{}]*"valid"[^{}]*"reason"[^{}]*\}|\{[^{}]*"reason"[^{}]*"valid"[^{}]*\}`)
	validField   = regexp.MustCompile(`(?i)"valid"\s*:\s*(true|false)`)
	reasonField  = regexp.MustCompile(`(?i)"reason"\s*:\s*"((?:[^"\\]|\\.)*)"`)
	invalidToken = regexp.MustCompile(`(?i)\bINVALID\b`)
	validToken   = regexp.MustCompile(`(?i)\bVALID\b`)
)

// verdictStrategy attempts one parse form; ok=false means not matched and
// the chain moves on.
type verdictStrategy func(raw string) (types.ValidatorVerdict, bool)

// verdictChain is ordered most-structured first. First match wins.
var verdictChain = []verdictStrategy{
	parseFencedJSON,
	parseBareJSON,
	parseEmbeddedJSON,
	parseFieldRegex,
	parsePlainTokens,
}

// ParseVerdict extracts the validator's {valid, reason} decision from raw
// task output. It tolerates fenced JSON, bare JSON, a JSON fragment buried
// in prose, loose "valid"/"reason" fields, and plain VALID/INVALID text.
func ParseVerdict(raw string) (types.ValidatorVerdict, error) {
	for _, strategy := range verdictChain {
		if verdict, ok := strategy(raw); ok {
			return verdict, nil
		}
	}
	return types.ValidatorVerdict{}, ErrVerdictUnparseable
}

func parseFencedJSON(raw string) (types.ValidatorVerdict, bool) {
	m := jsonFence.FindStringSubmatch(raw)
	if m == nil {
		return types.ValidatorVerdict{}, false
	}
	return unmarshalVerdict(m[1])
}

func parseBareJSON(raw string) (types.ValidatorVerdict, bool) {
	return unmarshalVerdict(strings.TrimSpace(raw))
}

func parseEmbeddedJSON(raw string) (types.ValidatorVerdict, bool) {
	m := jsonObject.FindString(raw)
	if m == "" {
		return types.ValidatorVerdict{}, false
	}
	return unmarshalVerdict(m)
}

func parseFieldRegex(raw string) (types.ValidatorVerdict, bool) {
	vm := validField.FindStringSubmatch(raw)
	if vm == nil {
		return types.ValidatorVerdict{}, false
	}
	verdict := types.ValidatorVerdict{Valid: strings.EqualFold(vm[1], "true")}
	if rm := reasonField.FindStringSubmatch(raw); rm != nil {
		var reason string
		if err := json.Unmarshal([]byte(`"`+rm[1]+`"`), &reason); err == nil {
			verdict.Reason = reason
		} else {
			verdict.Reason = rm[1]
		}
	}
	return verdict, true
}

// parsePlainTokens is the last resort: a bare VALID or INVALID somewhere in
// the text. INVALID outranks VALID because "invalid" contains "valid".
func parsePlainTokens(raw string) (types.ValidatorVerdict, bool) {
	switch {
	case invalidToken.MatchString(raw):
		return types.ValidatorVerdict{Valid: false, Reason: "validator marked the script invalid"}, true
	case validToken.MatchString(raw):
		return types.ValidatorVerdict{Valid: true, Reason: "validator marked the script valid"}, true
	default:
		return types.ValidatorVerdict{}, false
	}
}

func unmarshalVerdict(text string) (types.ValidatorVerdict, bool) {
	var probe struct {
		Valid  *bool  `json:"valid"`
		Reason string `json:"reason"`
	}
	if err := json.Unmarshal([]byte(text), &probe); err != nil || probe.Valid == nil {
		return types.ValidatorVerdict{}, false
	}
	return types.ValidatorVerdict{Valid: *probe.Valid, Reason: probe.Reason}, true
}
