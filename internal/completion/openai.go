package completion

import (
	"context"
	"errors"
	"fmt"

	"github.com/maruel/conclave/internal/models"
	openai "github.com/meguminnnnnnnnn/go-openai"
)

func (c *Client) openai(ctx context.Context, s models.AISettings, history []Turn, systemPrompt string) (string, error) {
	config := openai.DefaultConfig(s.APIKey)
	config.HTTPClient = c.hc
	if c.openAI != "" {
		config.BaseURL = c.openAI
	}
	return chat(ctx, models.ProviderOpenAI, config, s.Model, history, systemPrompt)
}

// chat runs one chat completion against an OpenAI-compatible endpoint.
func chat(ctx context.Context, p models.Provider, config openai.ClientConfig, model string, history []Turn, systemPrompt string) (string, error) {
	client := openai.NewClientWithConfig(config)
	messages := make([]openai.ChatCompletionMessage, 0, len(history)+1)
	if systemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: systemPrompt})
	}
	for _, t := range history {
		messages = append(messages, openai.ChatCompletionMessage{Role: chatRole(t.Role), Content: t.Content})
	}
	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{Model: model, Messages: messages})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return "", newError(p, apiErr.HTTPStatusCode, apiErr.Message)
		}
		var reqErr *openai.RequestError
		if errors.As(err, &reqErr) {
			// Non-JSON error bodies land here; keep the raw body.
			body := string(reqErr.Body)
			if body == "" && reqErr.Err != nil {
				body = reqErr.Err.Error()
			}
			return "", newError(p, reqErr.HTTPStatusCode, body)
		}
		return "", fmt.Errorf("%s: %w", p, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%s: no choices in response", p)
	}
	return resp.Choices[0].Message.Content, nil
}
