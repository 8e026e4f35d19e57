package completion

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/maruel/conclave/internal/models"
	olla "github.com/ollama/ollama/api"
)

const defaultOllamaURL = "http://localhost:11434"

func (c *Client) ollama(ctx context.Context, s models.AISettings, history []Turn, systemPrompt string) (string, error) {
	base := s.CustomBaseURL
	if base == "" {
		base = defaultOllamaURL
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("ollama: invalid base URL: %w", err)
	}
	client := olla.NewClient(u, c.hc)

	messages := make([]olla.Message, 0, len(history)+1)
	if systemPrompt != "" {
		messages = append(messages, olla.Message{Role: "system", Content: systemPrompt})
	}
	for _, t := range history {
		messages = append(messages, olla.Message{Role: chatRole(t.Role), Content: t.Content})
	}
	var b strings.Builder
	err = client.Chat(ctx, &olla.ChatRequest{
		Model:    s.Model,
		Messages: messages,
		Stream:   &[]bool{false}[0],
	}, func(resp olla.ChatResponse) error {
		b.WriteString(resp.Message.Content)
		return nil
	})
	if err != nil {
		var serr olla.StatusError
		if errors.As(err, &serr) {
			body := serr.ErrorMessage
			if body == "" {
				body = serr.Status
			}
			return "", newError(models.ProviderOllama, serr.StatusCode, body)
		}
		return "", fmt.Errorf("ollama: %w", err)
	}
	return b.String(), nil
}
