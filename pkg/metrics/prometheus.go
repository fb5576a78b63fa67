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
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/teradata-labs/spindle/pkg/types"
)

var (
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "spindle",
		Name:      "runs_total",
		Help:      "Completed pipeline stages by terminal status.",
	}, []string{"stage", "status"})

	runDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "spindle",
		Name:      "run_duration_seconds",
		Help:      "Wall-clock duration of completed pipeline stages.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
	}, []string{"stage"})

	agentTokens = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "spindle",
		Name:      "agent_tokens_total",
		Help:      "LLM tokens consumed, by agent.",
	}, []string{"agent"})

	testResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "spindle",
		Name:      "test_results_total",
		Help:      "Classified container run outcomes.",
	}, []string{"test_status"})
)

// ObserveStage records a finished stage with its terminal status and
// duration in seconds.
func ObserveStage(stage types.Stage, status types.Status, seconds float64) {
	runsTotal.WithLabelValues(string(stage), string(status)).Inc()
	runDuration.WithLabelValues(string(stage)).Observe(seconds)
}

// ObserveUsage records per-agent token consumption for one run.
func ObserveUsage(usage types.RunUsage) {
	for agent, u := range usage.PerAgent {
		agentTokens.WithLabelValues(agent).Add(float64(u.TotalTokens))
	}
}

// ObserveTestResult records one classified container run outcome.
func ObserveTestResult(status types.TestStatus) {
	testResults.WithLabelValues(string(status)).Inc()
}
