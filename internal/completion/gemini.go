package completion

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/maruel/conclave/internal/models"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

func (c *Client) gemini(ctx context.Context, s models.AISettings, history []Turn, systemPrompt string) (string, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(s.APIKey))
	if err != nil {
		return "", fmt.Errorf("gemini: failed to create client: %w", err)
	}
	defer client.Close()

	model := client.GenerativeModel(s.Model)
	if systemPrompt != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(systemPrompt)}}
	}
	cs := model.StartChat()
	last := ""
	if n := len(history); n > 0 {
		for _, t := range history[:n-1] {
			cs.History = append(cs.History, &genai.Content{Role: string(t.Role), Parts: []genai.Part{genai.Text(t.Content)}})
		}
		last = history[n-1].Content
	}
	resp, err := cs.SendMessage(ctx, genai.Text(last))
	if err != nil {
		var gerr *googleapi.Error
		if errors.As(err, &gerr) {
			body := gerr.Body
			if body == "" {
				body = gerr.Message
			}
			return "", newError(models.ProviderGemini, gerr.Code, body)
		}
		return "", fmt.Errorf("gemini: %w", err)
	}
	var b strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, p := range cand.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				b.WriteString(string(t))
			}
		}
		break
	}
	if b.Len() == 0 {
		return "", errors.New("gemini: empty response")
	}
	return b.String(), nil
}
