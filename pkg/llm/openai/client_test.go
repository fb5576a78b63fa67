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
package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	gopenai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teradata-labs/spindle/pkg/types"
)

func TestNewClient_Defaults(t *testing.T) {
	client := NewClient(Config{APIKey: "sk-test"})
	assert.Equal(t, "gpt-4o", client.model)
	assert.Equal(t, 4096, client.maxTokens)
	assert.Equal(t, 0.2, client.temperature)
	assert.Nil(t, client.rateLimiter)
}

func TestClient_NameAndModel(t *testing.T) {
	client := NewClient(Config{APIKey: "sk-test", Model: "gpt-4o-mini"})
	assert.Equal(t, "openai", client.Name())
	assert.Equal(t, "gpt-4o-mini", client.Model())
}

func TestClient_WithModel(t *testing.T) {
	base := NewClient(Config{APIKey: "sk-test", Model: "gpt-4o"})
	switched := base.WithModel("gpt-4o-mini")
	assert.Equal(t, "gpt-4o-mini", switched.Model())
	// The original client keeps its configured model.
	assert.Equal(t, "gpt-4o", base.Model())
}

func TestClient_Chat(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req gopenai.ChatCompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-4o", req.Model)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)
		assert.Equal(t, "user", req.Messages[1].Role)
		assert.Equal(t, "Generate a plan", req.Messages[1].Content)

		resp := gopenai.ChatCompletionResponse{
			ID:    "chatcmpl-1",
			Model: "gpt-4o",
			Choices: []gopenai.ChatCompletionChoice{
				{
					Message:      gopenai.ChatCompletionMessage{Role: "assistant", Content: "1. Open the page"},
					FinishReason: gopenai.FinishReasonStop,
				},
			},
			Usage: gopenai.Usage{PromptTokens: 42, CompletionTokens: 12, TotalTokens: 54},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := NewClient(Config{
		APIKey:  "sk-test",
		BaseURL: server.URL + "/v1",
		Timeout: 5 * time.Second,
	})

	resp, err := client.Chat(context.Background(), []types.Message{
		{Role: types.RoleSystem, Content: "You are a test planner."},
		{Role: types.RoleUser, Content: "Generate a plan"},
	})
	require.NoError(t, err)
	assert.Equal(t, "1. Open the page", resp.Content)
	assert.Equal(t, "stop", resp.StopReason)
	assert.Equal(t, 42, resp.Usage.PromptTokens)
	assert.Equal(t, 12, resp.Usage.CompletionTokens)
	assert.Equal(t, 54, resp.Usage.TotalTokens)
}

func TestClient_Chat_NoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(gopenai.ChatCompletionResponse{ID: "chatcmpl-2"})
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "sk-test", BaseURL: server.URL + "/v1"})
	_, err := client.Chat(context.Background(), []types.Message{
		{Role: types.RoleUser, Content: "hello"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no choices")
}

func TestClient_Chat_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"invalid api key","type":"invalid_request_error"}}`))
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "sk-bad", BaseURL: server.URL + "/v1"})
	_, err := client.Chat(context.Background(), []types.Message{
		{Role: types.RoleUser, Content: "hello"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat completion failed")
}

func TestConvertMessages(t *testing.T) {
	messages := []types.Message{
		{Role: types.RoleSystem, Content: "sys"},
		{Role: types.RoleUser, Content: "usr"},
		{Role: types.RoleAssistant, Content: "asst"},
	}
	converted := convertMessages(messages)
	require.Len(t, converted, 3)
	assert.Equal(t, gopenai.ChatMessageRoleSystem, converted[0].Role)
	assert.Equal(t, gopenai.ChatMessageRoleUser, converted[1].Role)
	assert.Equal(t, gopenai.ChatMessageRoleAssistant, converted[2].Role)
}
