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
package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teradata-labs/spindle/pkg/types"
)

func TestNewClient_Defaults(t *testing.T) {
	client := NewClient(Config{APIKey: "sk-ant-test"})
	assert.Equal(t, "claude-sonnet-4-5-20250929", client.model)
	assert.Equal(t, 4096, client.maxTokens)
	assert.Equal(t, 0.2, client.temperature)
	assert.Nil(t, client.rateLimiter)
}

func TestClient_NameAndModel(t *testing.T) {
	client := NewClient(Config{APIKey: "sk-ant-test", Model: "claude-3-5-haiku-20241022"})
	assert.Equal(t, "anthropic", client.Name())
	assert.Equal(t, "claude-3-5-haiku-20241022", client.Model())
}

func TestClient_WithModel(t *testing.T) {
	base := NewClient(Config{APIKey: "sk-ant-test"})
	switched := base.WithModel("claude-3-5-haiku-20241022")
	assert.Equal(t, "claude-3-5-haiku-20241022", switched.Model())
	// The original client keeps its configured model.
	assert.Equal(t, "claude-sonnet-4-5-20250929", base.Model())
}

func TestClient_Chat(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "sk-ant-test", r.Header.Get("X-Api-Key"))

		// System messages must be lifted out of the messages array.
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "claude-sonnet-4-5-20250929", body["model"])
		assert.Equal(t, float64(4096), body["max_tokens"])

		system, ok := body["system"].([]interface{})
		require.True(t, ok, "system prompt should be a top-level block list")
		require.Len(t, system, 1)
		sysBlock := system[0].(map[string]interface{})
		assert.Equal(t, "You are a validator.", sysBlock["text"])

		msgs := body["messages"].([]interface{})
		require.Len(t, msgs, 2)
		first := msgs[0].(map[string]interface{})
		assert.Equal(t, "user", first["role"])
		second := msgs[1].(map[string]interface{})
		assert.Equal(t, "assistant", second["role"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "msg_01",
			"type": "message",
			"role": "assistant",
			"model": "claude-sonnet-4-5-20250929",
			"content": [{"type": "text", "text": "VALID"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 30, "output_tokens": 2}
		}`))
	}))
	defer server.Close()

	client := NewClient(Config{
		APIKey:  "sk-ant-test",
		BaseURL: server.URL,
		Timeout: 5 * time.Second,
	})

	resp, err := client.Chat(context.Background(), []types.Message{
		{Role: types.RoleSystem, Content: "You are a validator."},
		{Role: types.RoleUser, Content: "Check this script"},
		{Role: types.RoleAssistant, Content: "Working on it"},
	})
	require.NoError(t, err)
	assert.Equal(t, "VALID", resp.Content)
	assert.Equal(t, "end_turn", resp.StopReason)
	assert.Equal(t, 30, resp.Usage.PromptTokens)
	assert.Equal(t, 2, resp.Usage.CompletionTokens)
	assert.Equal(t, 32, resp.Usage.TotalTokens)
}

func TestClient_Chat_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"invalid_request_error","message":"bad model"}}`))
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "sk-ant-test", BaseURL: server.URL})
	_, err := client.Chat(context.Background(), []types.Message{
		{Role: types.RoleUser, Content: "hello"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "anthropic message failed")
}
