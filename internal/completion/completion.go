// Package completion turns a conversation into one reply from the provider
// selected in the settings.
//
// Configuration problems (no API key, no endpoint, unknown provider) are not
// errors: Generate returns a warning text meant to be shown in the chat.
// Provider failures are errors; HTTP failures are *Error.
package completion

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/maruel/conclave/internal/models"
	"golang.org/x/time/rate"
)

// maxErrorBody bounds the provider response echoed in an Error.
const maxErrorBody = 300

// maxTokens is the reply budget requested from providers that need one.
const maxTokens = 4096

// Turn is one entry of the conversation sent to a provider.
type Turn struct {
	Role    models.Role
	Content string
}

// Generator produces a reply for a conversation.
type Generator interface {
	Generate(ctx context.Context, settings models.AISettings, history []Turn, systemPrompt string) (string, error)
}

// Error is a non-success HTTP response from a provider.
type Error struct {
	Provider models.Provider
	Status   int
	// Body is the response body, truncated.
	Body string
}

func newError(p models.Provider, status int, body string) *Error {
	return &Error{Provider: p, Status: status, Body: truncate(body, maxErrorBody)}
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s API error %d: %s", e.Provider, e.Status, e.Body)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// Warnings returned in place of a reply.
const (
	WarnMissingKey     = "⚠️ No API key is configured for %s. Add one in the settings."
	WarnMissingBaseURL = "⚠️ The custom provider needs a base URL. Add one in the settings."
	WarnUnknown        = "⚠️ Unknown AI provider %q."
)

// Options configures a Client.
type Options struct {
	// HTTPClient is used for every provider except gemini. Defaults to
	// http.DefaultClient.
	HTTPClient *http.Client
	// RequestsPerMinute paces outbound calls. Zero means unlimited.
	RequestsPerMinute int
	// Timeout bounds each call. Zero means no bound beyond ctx.
	Timeout time.Duration

	// Endpoint overrides, used by tests.
	OpenAIBaseURL    string
	AnthropicBaseURL string
}

// Client dispatches to the provider named in the settings.
type Client struct {
	hc        *http.Client
	limiter   *rate.Limiter
	timeout   time.Duration
	openAI    string
	anthropic string
}

// New returns a Client.
func New(opts *Options) *Client {
	if opts == nil {
		opts = &Options{}
	}
	c := &Client{
		hc:        opts.HTTPClient,
		limiter:   rate.NewLimiter(rate.Inf, 1),
		timeout:   opts.Timeout,
		openAI:    opts.OpenAIBaseURL,
		anthropic: opts.AnthropicBaseURL,
	}
	if c.hc == nil {
		c.hc = http.DefaultClient
	}
	if c.anthropic == "" {
		c.anthropic = "https://api.anthropic.com"
	}
	if opts.RequestsPerMinute > 0 {
		c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.RequestsPerMinute)), 1)
	}
	return c
}

// Generate implements Generator.
func (c *Client) Generate(ctx context.Context, s models.AISettings, history []Turn, systemPrompt string) (string, error) {
	var call func(context.Context, models.AISettings, []Turn, string) (string, error)
	switch s.Provider {
	case models.ProviderGemini:
		call = c.gemini
	case models.ProviderOpenAI:
		call = c.openai
	case models.ProviderAnthropic:
		call = c.anthropicMessages
	case models.ProviderOllama:
		call = c.ollama
	case models.ProviderCustom:
		call = c.custom
	default:
		slog.WarnContext(ctx, "Unknown provider", "provider", s.Provider)
		return fmt.Sprintf(WarnUnknown, s.Provider), nil
	}
	if s.APIKey == "" && s.Provider != models.ProviderOllama {
		slog.WarnContext(ctx, "Missing API key", "provider", s.Provider)
		return fmt.Sprintf(WarnMissingKey, s.Provider), nil
	}
	if s.Provider == models.ProviderCustom && s.CustomBaseURL == "" {
		slog.WarnContext(ctx, "Missing custom base URL")
		return WarnMissingBaseURL, nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	start := time.Now()
	out, err := call(ctx, s, history, systemPrompt)
	if err != nil {
		slog.WarnContext(ctx, "Completion failed", "provider", s.Provider, "model", s.Model, "dur", time.Since(start), "err", err)
		return "", err
	}
	slog.DebugContext(ctx, "Completion", "provider", s.Provider, "model", s.Model, "turns", len(history), "dur", time.Since(start))
	return out, nil
}

// chatRole maps a turn role to the user/assistant vocabulary shared by the
// OpenAI, Anthropic and Ollama APIs.
func chatRole(r models.Role) string {
	if r == models.RoleModel {
		return "assistant"
	}
	return "user"
}
