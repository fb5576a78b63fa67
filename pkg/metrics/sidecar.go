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

// Package metrics ingests the browser collaborator's per-run sidecar,
// keeps the merged run journal, and exports prometheus series.
package metrics

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"go.uber.org/zap"
)

// sidecarPrefix keys the collaborator's metrics file to a run id inside
// the shared temp directory.
const sidecarPrefix = "spindle_browser_metrics_"

// BrowserMetrics is the collaborator's per-run metrics sidecar.
type BrowserMetrics struct {
	ElementsProcessed      int     `json:"elements_processed"`
	SuccessfulElements     int     `json:"successful_elements"`
	FailedElements         int     `json:"failed_elements"`
	SuccessRate            float64 `json:"success_rate"`
	LLMCalls               int     `json:"llm_calls"`
	Cost                   float64 `json:"cost"`
	Tokens                 int     `json:"tokens"`
	ExecutionTime          float64 `json:"execution_time"`
	CustomActionsEnabled   bool    `json:"custom_actions_enabled"`
	CustomActionUsageCount int     `json:"custom_action_usage_count"`
	SessionID              string  `json:"session_id"`
}

// sidecarSchema validates a sidecar before it is trusted. The
// collaborator is a separate process; a malformed file must never poison
// the journal.
var sidecarSchema = gojsonschema.NewStringLoader(`{
	"type": "object",
	"required": [
		"elements_processed", "successful_elements", "failed_elements",
		"success_rate", "llm_calls", "tokens", "execution_time"
	],
	"properties": {
		"elements_processed":        {"type": "integer", "minimum": 0},
		"successful_elements":       {"type": "integer", "minimum": 0},
		"failed_elements":           {"type": "integer", "minimum": 0},
		"success_rate":              {"type": "number", "minimum": 0, "maximum": 1},
		"llm_calls":                 {"type": "integer", "minimum": 0},
		"cost":                      {"type": "number", "minimum": 0},
		"tokens":                    {"type": "integer", "minimum": 0},
		"execution_time":            {"type": "number", "minimum": 0},
		"custom_actions_enabled":    {"type": "boolean"},
		"custom_action_usage_count": {"type": "integer", "minimum": 0},
		"session_id":                {"type": "string"}
	}
}`)

// SidecarPath returns the conventional sidecar location for a run.
func SidecarPath(runID string) string {
	return filepath.Join(os.TempDir(), sidecarPrefix+runID+".json")
}

// CollectSidecar reads, validates, and deletes the sidecar for a run. The
// file is deleted even when validation fails; a stale sidecar must not
// leak into a later run with the same id. A missing sidecar returns
// (nil, nil): the collaborator may legitimately not have run.
func CollectSidecar(runID string, logger *zap.Logger) (*BrowserMetrics, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	path := SidecarPath(runID)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		logger.Debug("no browser metrics sidecar", zap.String("run_id", runID))
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read metrics sidecar: %w", err)
	}
	defer func() {
		if err := os.Remove(path); err != nil {
			logger.Warn("failed to delete metrics sidecar",
				zap.String("path", path),
				zap.Error(err))
		}
	}()

	validation, err := gojsonschema.Validate(sidecarSchema, gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to validate metrics sidecar: %w", err)
	}
	if !validation.Valid() {
		var problems []string
		for _, desc := range validation.Errors() {
			problems = append(problems, desc.String())
		}
		return nil, fmt.Errorf("metrics sidecar failed schema validation: %s",
			strings.Join(problems, "; "))
	}

	var metrics BrowserMetrics
	if err := json.Unmarshal(data, &metrics); err != nil {
		return nil, fmt.Errorf("failed to decode metrics sidecar: %w", err)
	}
	logger.Debug("collected browser metrics sidecar",
		zap.String("run_id", runID),
		zap.Int("elements", metrics.ElementsProcessed),
		zap.Int("tokens", metrics.Tokens))
	return &metrics, nil
}
