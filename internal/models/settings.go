package models

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Provider selects the completion backend.
type Provider string

const (
	// ProviderGemini is Google's Gemini API.
	ProviderGemini Provider = "gemini"
	// ProviderOpenAI is OpenAI's chat completions API.
	ProviderOpenAI Provider = "openai"
	// ProviderAnthropic is Anthropic's messages API.
	ProviderAnthropic Provider = "anthropic"
	// ProviderOllama is a local Ollama server.
	ProviderOllama Provider = "ollama"
	// ProviderCustom is any OpenAI-compatible endpoint at CustomBaseURL.
	ProviderCustom Provider = "custom"
)

// Providers lists every supported provider.
var Providers = []Provider{ProviderGemini, ProviderOpenAI, ProviderAnthropic, ProviderOllama, ProviderCustom}

// AISettings is the singleton completion configuration.
type AISettings struct {
	Provider      Provider `json:"provider" jsonschema:"enum=gemini,enum=openai,enum=anthropic,enum=ollama,enum=custom"`
	APIKey        string   `json:"apiKey" jsonschema:"description=Provider credential"`
	Model         string   `json:"model" jsonschema:"description=Model name"`
	CustomBaseURL string   `json:"customBaseUrl" jsonschema:"description=Endpoint for the custom and ollama providers"`
}

// DefaultAISettings returns the settings used before anything is saved.
func DefaultAISettings() AISettings {
	return AISettings{
		Provider: ProviderGemini,
		Model:    "gemini-2.0-flash",
	}
}

// Validate checks that the settings are valid.
func (s *AISettings) Validate() error {
	providers := make([]any, len(Providers))
	for i, p := range Providers {
		providers[i] = p
	}
	return validation.ValidateStruct(s,
		validation.Field(&s.Provider, validation.Required, validation.In(providers...)),
	)
}

// Redacted returns a copy safe to log or return over the API.
func (s AISettings) Redacted() AISettings {
	if s.APIKey != "" {
		s.APIKey = RedactedKey
	}
	return s
}
