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
package docker

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teradata-labs/spindle/pkg/types"
)

const failingOutputXML = `<?xml version="1.0" encoding="UTF-8"?>
<robot generator="Robot 7.0">
<suite name="Test">
<test name="Login Works">
<kw name="Open Browser" library="SeleniumLibrary"><status status="PASS"/></kw>
<kw name="Input Text" library="SeleniumLibrary">
<msg level="FAIL">Element with locator 'name=user' not found.</msg>
<status status="FAIL"/>
</kw>
<status status="FAIL"/>
</test>
<status status="FAIL"/>
</suite>
<statistics><total><stat pass="0" fail="1">All Tests</stat></total></statistics>
</robot>`

func writeRunDir(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return dir
}

func TestClassify_Passed(t *testing.T) {
	dir := writeRunDir(t, map[string]string{OutputXMLName: passingOutputXML})

	result := Classify(dir, "run-1", 0)
	assert.Equal(t, types.TestPassed, result.TestStatus)
	assert.Equal(t, types.ExecutionStats{Passed: 1, Failed: 0, Total: 1}, result.Stats)
	assert.Equal(t, "/reports/run-1/report.html", result.ReportURL)
	assert.Equal(t, "/reports/run-1/log.html", result.LogURL)
}

func TestClassify_FailedBeatsExitCode(t *testing.T) {
	// XML statistics win even when the container exits 0.
	dir := writeRunDir(t, map[string]string{OutputXMLName: failingOutputXML})

	result := Classify(dir, "run-2", 0)
	assert.Equal(t, types.TestFailed, result.TestStatus)
	assert.Equal(t, 1, result.Stats.Failed)
}

func TestClassify_TimelineFromXMLOnly(t *testing.T) {
	dir := writeRunDir(t, map[string]string{OutputXMLName: failingOutputXML})

	result := Classify(dir, "run-3", 1)
	assert.Contains(t, result.Logs, "Suite: Test")
	assert.Contains(t, result.Logs, "Test: Login Works  [FAIL]")
	assert.Contains(t, result.Logs, "SeleniumLibrary.Input Text  [FAIL]")
	assert.Contains(t, result.Logs, "FAIL: Element with locator 'name=user' not found.")
	assert.Contains(t, result.Logs, "HTML report: /reports/run-3/report.html")
}

func TestClassify_NoXMLExitZeroIsPassed(t *testing.T) {
	dir := writeRunDir(t, nil)

	result := Classify(dir, "run-4", 0)
	assert.Equal(t, types.TestPassed, result.TestStatus)
	assert.Contains(t, result.Message, "exit code")
}

func TestClassify_NoXMLWithReportIsFailed(t *testing.T) {
	dir := writeRunDir(t, map[string]string{ReportHTMLName: "<html></html>"})

	result := Classify(dir, "run-5", 1)
	assert.Equal(t, types.TestFailed, result.TestStatus)
}

func TestClassify_NoArtifactsIsSystemError(t *testing.T) {
	dir := writeRunDir(t, nil)

	result := Classify(dir, "run-6", 137)
	assert.Equal(t, types.TestSystemError, result.TestStatus)
	assert.Equal(t, int64(137), result.ExitCode)
}

func TestClassify_MalformedXMLFallsBack(t *testing.T) {
	dir := writeRunDir(t, map[string]string{OutputXMLName: "<robot><statistics"})

	result := Classify(dir, "run-7", 0)
	assert.Equal(t, types.TestPassed, result.TestStatus)
}

func TestClassify_ZeroTestsIsFailed(t *testing.T) {
	const emptyXML = `<robot><suite name="Empty"><status status="PASS"/></suite>
<statistics><total><stat pass="0" fail="0">All Tests</stat></total></statistics></robot>`
	dir := writeRunDir(t, map[string]string{OutputXMLName: emptyXML})

	result := Classify(dir, "run-8", 0)
	assert.Equal(t, types.TestFailed, result.TestStatus)
}
