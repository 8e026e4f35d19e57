package completion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/maruel/conclave/internal/models"
)

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

func (c *Client) anthropicMessages(ctx context.Context, s models.AISettings, history []Turn, systemPrompt string) (string, error) {
	req := anthropicRequest{Model: s.Model, MaxTokens: maxTokens, System: systemPrompt}
	for _, t := range history {
		req.Messages = append(req.Messages, anthropicMessage{Role: chatRole(t.Role), Content: t.Content})
	}
	body, err := json.Marshal(&req)
	if err != nil {
		return "", fmt.Errorf("anthropic: failed to marshal request: %w", err)
	}
	hr, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimSuffix(c.anthropic, "/")+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("anthropic: failed to create request: %w", err)
	}
	hr.Header.Set("Content-Type", "application/json")
	hr.Header.Set("x-api-key", s.APIKey)
	hr.Header.Set("anthropic-version", "2023-06-01")
	resp, err := c.hc.Do(hr)
	if err != nil {
		return "", fmt.Errorf("anthropic: request failed: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("anthropic: failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", newError(models.ProviderAnthropic, resp.StatusCode, string(raw))
	}
	var out anthropicResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("anthropic: failed to decode response: %w", err)
	}
	var b strings.Builder
	for _, block := range out.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	if b.Len() == 0 {
		return "", errors.New("anthropic: empty response")
	}
	return b.String(), nil
}
