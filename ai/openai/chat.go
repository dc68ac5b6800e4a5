// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
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
	"fmt"
	"log/slog"
	"strings"

	"github.com/poiesic/attestor/ai"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// chatClient issues JSON-mode chat completions and decodes the answers.
type chatClient struct {
	model    llms.Model
	attempts int
	logger   *slog.Logger
}

func newChatClient(config *ai.Config) (*chatClient, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	// Local OpenAI-compatible services accept any token
	client, err := openai.New(
		openai.WithBaseURL(config.ChatHost),
		openai.WithToken(config.Token),
		openai.WithModel(config.ChatModel),
	)
	if err != nil {
		return nil, err
	}

	return &chatClient{
		model:    client,
		attempts: config.MaxAttempts,
		logger:   slog.Default(),
	}, nil
}

// with returns a copy of the client logging under the given component name.
func (c *chatClient) with(component string) *chatClient {
	return &chatClient{
		model:    c.model,
		attempts: c.attempts,
		logger:   c.logger.With("component", component),
	}
}

// generateJSON sends the prompts and decodes the JSON answer into out.
// Malformed answers are retried; transport errors are returned immediately.
func (c *chatClient) generateJSON(ctx context.Context, systemPrompt, userPrompt string, out any) error {
	content := []llms.MessageContent{
		{
			Role:  llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextPart(systemPrompt)},
		},
		{
			Role:  llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{llms.TextPart(userPrompt)},
		},
	}

	attempts := max(1, c.attempts)
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		response, err := c.model.GenerateContent(ctx, content, llms.WithTemperature(0.0), llms.WithJSONMode())
		if err != nil {
			c.logger.Error("failed to generate content", "attempt", attempt+1, "err", err)
			return err
		}

		if len(response.Choices) < 1 {
			c.logger.Debug("no choices returned from model")
			return ai.ErrEmptyResponse
		}

		responseText := cleanResponse(response.Choices[0].Content)
		if err := json.Unmarshal([]byte(responseText), out); err != nil {
			lastErr = err
			c.logger.Warn("error parsing model response",
				"attempt", attempt+1,
				"response", responseText,
				"err", err)
			continue
		}
		return nil
	}

	c.logger.Error("failed to parse model response after retries", "err", lastErr)
	return fmt.Errorf("%w: %w", ai.ErrMalformedResponse, lastErr)
}

// cleanResponse strips markdown code fences and repairs common JSON issues.
func cleanResponse(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return repairJSON(strings.TrimSpace(s))
}

// numberedPassages renders passages as a numbered list for prompts.
func numberedPassages(passages []string) string {
	var sb strings.Builder
	for i, p := range passages {
		fmt.Fprintf(&sb, "[%d] %s\n", i+1, strings.Join(strings.Fields(p), " "))
	}
	return sb.String()
}
