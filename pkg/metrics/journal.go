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
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/spindle/pkg/types"
)

// RunRecord is one line of the merged metrics journal: agent-side and
// browser-side numbers for one completed run.
type RunRecord struct {
	WorkflowID    string          `json:"workflow_id"`
	URL           string          `json:"url,omitempty"`
	TestStatus    string          `json:"test_status,omitempty"`
	Agent         types.RunUsage  `json:"agent"`
	Browser       *BrowserMetrics `json:"browser,omitempty"`
	ExecutionTime float64         `json:"execution_time,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Journal is the append-only line-delimited JSON run log. Appends are
// serialized; readers take the file as-is.
type Journal struct {
	mu     sync.Mutex
	path   string
	logger *zap.Logger
}

// NewJournal creates a journal at path, creating parent directories as
// needed.
func NewJournal(path string, logger *zap.Logger) (*Journal, error) {
	if path == "" {
		return nil, fmt.Errorf("journal requires a path")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}
	return &Journal{path: path, logger: logger}, nil
}

// Append writes one record as a single JSON line.
func (j *Journal) Append(record RunRecord) error {
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	line, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode journal record: %w", err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	f, err := os.OpenFile(j.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open journal: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to append journal record: %w", err)
	}
	j.logger.Debug("journal record appended",
		zap.String("workflow_id", record.WorkflowID),
		zap.String("test_status", record.TestStatus))
	return nil
}

// Records reads every journal line, skipping unparseable ones.
func (j *Journal) Records() ([]RunRecord, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	f, err := os.Open(j.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	defer f.Close()

	var records []RunRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		var record RunRecord
		if err := json.Unmarshal(scanner.Bytes(), &record); err != nil {
			j.logger.Warn("skipping unparseable journal line", zap.Error(err))
			continue
		}
		records = append(records, record)
	}
	return records, scanner.Err()
}
