package completion

import (
	"context"

	"github.com/maruel/conclave/internal/models"
	openai "github.com/meguminnnnnnnnn/go-openai"
	"golang.org/x/oauth2"
)

// custom calls an OpenAI-compatible chat completions endpoint. The bearer
// token is attached by the oauth2 transport rather than the client.
func (c *Client) custom(ctx context.Context, s models.AISettings, history []Turn, systemPrompt string) (string, error) {
	config := openai.DefaultConfig("")
	config.BaseURL = s.CustomBaseURL
	config.HTTPClient = oauth2.NewClient(context.WithValue(ctx, oauth2.HTTPClient, c.hc), oauth2.StaticTokenSource(&oauth2.Token{AccessToken: s.APIKey}))
	return chat(ctx, models.ProviderCustom, config, s.Model, history, systemPrompt)
}
