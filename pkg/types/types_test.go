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

package types

import (
	"encoding/json"
	"testing"
)

func TestProgressFor(t *testing.T) {
	tests := []struct {
		phase Phase
		want  int
	}{
		{PhasePlanning, 10},
		{PhaseIdentifying, 30},
		{PhaseGenerating, 60},
		{PhaseValidating, 85},
		{PhaseFinalizing, 95},
		{PhaseDone, 100},
		{Phase("unknown"), 0},
	}

	for _, tt := range tests {
		t.Run(string(tt.phase), func(t *testing.T) {
			if got := ProgressFor(tt.phase); got != tt.want {
				t.Errorf("ProgressFor(%q) = %d, want %d", tt.phase, got, tt.want)
			}
		})
	}

	// Checkpoints must be strictly increasing in pipeline order so the
	// high-water clamp never suppresses a legitimate stage transition.
	order := []Phase{PhasePlanning, PhaseIdentifying, PhaseGenerating, PhaseValidating, PhaseFinalizing, PhaseDone}
	for i := 1; i < len(order); i++ {
		if ProgressFor(order[i]) <= ProgressFor(order[i-1]) {
			t.Errorf("progress for %s (%d) not greater than %s (%d)",
				order[i], ProgressFor(order[i]), order[i-1], ProgressFor(order[i-1]))
		}
	}
}

func TestEvent_Terminal(t *testing.T) {
	tests := []struct {
		status Status
		want   bool
	}{
		{StatusRunning, false},
		{StatusInfo, false},
		{StatusHeartbeat, false},
		{StatusComplete, true},
		{StatusError, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			e := Event{Stage: StageGeneration, Status: tt.status}
			if got := e.Terminal(); got != tt.want {
				t.Errorf("Terminal() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEvent_OptionalFieldsOmitted(t *testing.T) {
	e := Event{Stage: StageGeneration, Status: StatusRunning, Message: "Planning test steps", Progress: 10}

	data, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	for _, absent := range []string{"robot_code", "result", "log", "info"} {
		if _, ok := raw[absent]; ok {
			t.Errorf("field %q should be omitted when empty", absent)
		}
	}
	if raw["stage"] != "generation" || raw["status"] != "running" {
		t.Errorf("unexpected stage/status: %v / %v", raw["stage"], raw["status"])
	}
}

func TestRunUsage_Record(t *testing.T) {
	var r RunUsage

	r.Record("planner", "plan_steps", Usage{PromptTokens: 100, CompletionTokens: 50, TotalTokens: 150})
	r.Record("planner", "plan_retry", Usage{PromptTokens: 20, CompletionTokens: 10, TotalTokens: 30})
	r.Record("assembler", "assemble_script", Usage{PromptTokens: 300, CompletionTokens: 200, TotalTokens: 500})

	if r.Usage.TotalTokens != 680 {
		t.Errorf("total tokens = %d, want 680", r.Usage.TotalTokens)
	}
	if r.SuccessfulRequests != 3 {
		t.Errorf("successful requests = %d, want 3", r.SuccessfulRequests)
	}
	if r.PerAgent["planner"].TotalTokens != 180 {
		t.Errorf("planner tokens = %d, want 180", r.PerAgent["planner"].TotalTokens)
	}
	if len(r.PerTask) != 3 {
		t.Errorf("per-task entries = %d, want 3", len(r.PerTask))
	}
	if r.PerTask[2].Task != "assemble_script" {
		t.Errorf("per-task order not preserved: %v", r.PerTask[2])
	}
}
