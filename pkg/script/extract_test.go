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
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const cleanScript = `*** Settings ***
Library    SeleniumLibrary

*** Variables ***
${URL}    https://www.google.com

*** Test Cases ***
Search For Robot Framework
    Open Browser    ${URL}    headlesschrome
    Input Text    name=q    robot framework
    Close Browser`

func TestExtract_StripsFencesAndProse(t *testing.T) {
	raw := "Here is the test you asked for:\n\n```robotframework\n" + cleanScript + "\n```\n"

	got, err := Extract(raw, nil)
	require.NoError(t, err)
	assert.Equal(t, cleanScript, got)
	assert.True(t, strings.HasPrefix(got, "*** Settings ***"))
	assert.NotContains(t, got, "```")
}

func TestExtract_LastSettingsBlockWins(t *testing.T) {
	first := "*** Settings ***\nLibrary    Broken\n"
	raw := "Draft:\n" + first + "\nCorrected version:\n\n" + cleanScript + "\n\n"

	got, err := Extract(raw, nil)
	require.NoError(t, err)
	assert.Equal(t, cleanScript, got)
	assert.NotContains(t, got, "Broken")
}

func TestExtract_PreservesIndentation(t *testing.T) {
	got, err := Extract(cleanScript, nil)
	require.NoError(t, err)
	assert.Contains(t, got, "\n    Open Browser    ${URL}    headlesschrome")
}

func TestExtract_FallsBackToVariables(t *testing.T) {
	raw := "prose before\n*** Variables ***\n${URL}    https://x.test\n\n*** Test Cases ***\nCase\n    Log    hi\n"

	got, err := Extract(raw, nil)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(got, "*** Variables ***"))
}

func TestExtract_FallsBackToTestCases(t *testing.T) {
	raw := "prose\n*** Test Cases ***\nCase\n    Log    hi\n"

	got, err := Extract(raw, nil)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(got, "*** Test Cases ***"))
}

func TestExtract_CaseInsensitiveHeaders(t *testing.T) {
	raw := "*** settings ***\nLibrary    Browser\n"
	got, err := Extract(raw, nil)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(got, "*** settings ***"))
}

func TestExtract_NoHeaders(t *testing.T) {
	_, err := Extract("I could not produce a script, sorry.", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no Robot Framework section header")
}

func TestExtract_Empty(t *testing.T) {
	_, err := Extract("   \n\t", nil)
	require.Error(t, err)
}

func TestExtract_StripsTrailingBlankLines(t *testing.T) {
	got, err := Extract(cleanScript+"\n\n\n   \n", nil)
	require.NoError(t, err)
	assert.Equal(t, cleanScript, got)
}
