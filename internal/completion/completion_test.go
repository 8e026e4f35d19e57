package completion

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/maruel/conclave/internal/models"
)

var history = []Turn{
	{Role: models.RoleUser, Content: "User: hi"},
	{Role: models.RoleModel, Content: "Sam: hello"},
	{Role: models.RoleUser, Content: "User: what's next"},
}

// recorder captures the last request seen by a fake provider.
type recorder struct {
	path   string
	header http.Header
	body   map[string]any
}

func fakeServer(t *testing.T, status int, reply string) (*httptest.Server, *recorder) {
	t.Helper()
	rec := &recorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.path = r.URL.Path
		rec.header = r.Header.Clone()
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &rec.body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, reply)
	}))
	t.Cleanup(srv.Close)
	return srv, rec
}

func messages(t *testing.T, rec *recorder) []map[string]any {
	t.Helper()
	raw, _ := rec.body["messages"].([]any)
	out := make([]map[string]any, len(raw))
	for i, m := range raw {
		out[i], _ = m.(map[string]any)
	}
	return out
}

func TestWarnings(t *testing.T) {
	c := New(nil)
	tests := []struct {
		name string
		s    models.AISettings
		want string
	}{
		{"gemini no key", models.AISettings{Provider: models.ProviderGemini}, "No API key"},
		{"openai no key", models.AISettings{Provider: models.ProviderOpenAI}, "No API key"},
		{"anthropic no key", models.AISettings{Provider: models.ProviderAnthropic}, "No API key"},
		{"custom no key", models.AISettings{Provider: models.ProviderCustom, CustomBaseURL: "http://x"}, "No API key"},
		{"custom no url", models.AISettings{Provider: models.ProviderCustom, APIKey: "k"}, "base URL"},
		{"unknown", models.AISettings{Provider: "skynet", APIKey: "k"}, "Unknown AI provider"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.Generate(context.Background(), tt.s, history, "sys")
			if err != nil {
				t.Fatalf("Generate() error = %v, want nil", err)
			}
			if !strings.Contains(got, tt.want) {
				t.Errorf("Generate() = %q, want it to contain %q", got, tt.want)
			}
		})
	}
}

func TestCustom(t *testing.T) {
	srv, rec := fakeServer(t, http.StatusOK, `{"choices":[{"message":{"role":"assistant","content":"Ship it."}}]}`)
	c := New(&Options{HTTPClient: srv.Client()})
	s := models.AISettings{Provider: models.ProviderCustom, APIKey: "tok", Model: "local", CustomBaseURL: srv.URL + "/v1/"}
	got, err := c.Generate(context.Background(), s, history, "You are Sam.")
	if err != nil {
		t.Fatal(err)
	}
	if got != "Ship it." {
		t.Errorf("Generate() = %q", got)
	}
	if rec.path != "/v1/chat/completions" {
		t.Errorf("path = %q", rec.path)
	}
	if auth := rec.header.Get("Authorization"); auth != "Bearer tok" {
		t.Errorf("Authorization = %q", auth)
	}
	msgs := messages(t, rec)
	if len(msgs) != 4 || msgs[0]["role"] != "system" || msgs[2]["role"] != "assistant" || msgs[3]["content"] != "User: what's next" {
		t.Errorf("messages = %v", msgs)
	}
}

func TestCustomErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		reply  string
		want   string
	}{
		{"json error", http.StatusServiceUnavailable, `{"error":{"message":"model not loaded","type":"server_error"}}`, "model not loaded"},
		{"plain body", http.StatusBadGateway, "upstream down", "upstream down"},
		{"empty object", http.StatusBadRequest, `{}`, "{}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, rec := fakeServer(t, tt.status, tt.reply)
			c := New(&Options{HTTPClient: srv.Client()})
			s := models.AISettings{Provider: models.ProviderCustom, APIKey: "tok", Model: "local", CustomBaseURL: srv.URL}
			_, err := c.Generate(context.Background(), s, history, "")
			var e *Error
			if !errors.As(err, &e) {
				t.Fatalf("Generate() error = %v, want *Error", err)
			}
			if e.Status != tt.status || e.Provider != models.ProviderCustom || e.Body != tt.want {
				t.Errorf("Error = %d %s %q", e.Status, e.Provider, e.Body)
			}
			if got := rec.header.Values("Authorization"); len(got) != 1 || got[0] != "Bearer tok" {
				t.Errorf("Authorization = %q", got)
			}
		})
	}
}

func TestAnthropic(t *testing.T) {
	srv, rec := fakeServer(t, http.StatusOK, `{"content":[{"type":"text","text":"Hello "},{"type":"text","text":"there"}]}`)
	c := New(&Options{HTTPClient: srv.Client(), AnthropicBaseURL: srv.URL})
	s := models.AISettings{Provider: models.ProviderAnthropic, APIKey: "ak", Model: "claude"}
	got, err := c.Generate(context.Background(), s, history, "sys")
	if err != nil {
		t.Fatal(err)
	}
	if got != "Hello there" {
		t.Errorf("Generate() = %q", got)
	}
	if rec.path != "/v1/messages" || rec.header.Get("x-api-key") != "ak" || rec.header.Get("anthropic-version") == "" {
		t.Errorf("request = %s %v", rec.path, rec.header)
	}
	if rec.body["system"] != "sys" || len(messages(t, rec)) != 3 {
		t.Errorf("body = %v", rec.body)
	}
}

func TestHTTPError(t *testing.T) {
	long := strings.Repeat("x", 1000)
	srv, _ := fakeServer(t, http.StatusUnauthorized, long)
	c := New(&Options{HTTPClient: srv.Client(), AnthropicBaseURL: srv.URL})
	for _, s := range []models.AISettings{
		{Provider: models.ProviderAnthropic, APIKey: "bad", Model: "m"},
		{Provider: models.ProviderCustom, APIKey: "bad", Model: "m", CustomBaseURL: srv.URL},
	} {
		t.Run(string(s.Provider), func(t *testing.T) {
			_, err := c.Generate(context.Background(), s, history, "")
			var e *Error
			if !errors.As(err, &e) {
				t.Fatalf("Generate() error = %v, want *Error", err)
			}
			if e.Status != http.StatusUnauthorized || e.Provider != s.Provider {
				t.Errorf("Error = %d %s", e.Status, e.Provider)
			}
			if len(e.Body) != maxErrorBody {
				t.Errorf("len(Body) = %d, want %d", len(e.Body), maxErrorBody)
			}
			if !strings.Contains(e.Error(), "401") {
				t.Errorf("Error() = %q", e.Error())
			}
		})
	}
}

func TestOpenAI(t *testing.T) {
	srv, rec := fakeServer(t, http.StatusOK, `{"id":"x","object":"chat.completion","model":"gpt","choices":[{"index":0,"message":{"role":"assistant","content":"Sure."},"finish_reason":"stop"}]}`)
	c := New(&Options{HTTPClient: srv.Client(), OpenAIBaseURL: srv.URL + "/v1"})
	s := models.AISettings{Provider: models.ProviderOpenAI, APIKey: "sk", Model: "gpt"}
	got, err := c.Generate(context.Background(), s, history, "sys")
	if err != nil {
		t.Fatal(err)
	}
	if got != "Sure." {
		t.Errorf("Generate() = %q", got)
	}
	if rec.path != "/v1/chat/completions" || rec.header.Get("Authorization") != "Bearer sk" {
		t.Errorf("request = %s %v", rec.path, rec.header)
	}
}

func TestOllama(t *testing.T) {
	srv, rec := fakeServer(t, http.StatusOK, `{"model":"llama3","message":{"role":"assistant","content":"Local reply"},"done":true}`)
	c := New(&Options{HTTPClient: srv.Client()})
	// No key needed.
	s := models.AISettings{Provider: models.ProviderOllama, Model: "llama3", CustomBaseURL: srv.URL}
	got, err := c.Generate(context.Background(), s, history, "sys")
	if err != nil {
		t.Fatal(err)
	}
	if got != "Local reply" {
		t.Errorf("Generate() = %q", got)
	}
	if rec.path != "/api/chat" {
		t.Errorf("path = %q", rec.path)
	}
	if msgs := messages(t, rec); len(msgs) != 4 || msgs[0]["role"] != "system" {
		t.Errorf("messages = %v", msgs)
	}
}

func TestNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	c := New(nil)
	_, err := c.Generate(context.Background(), models.AISettings{Provider: models.ProviderCustom, APIKey: "k", CustomBaseURL: url}, history, "")
	if err == nil {
		t.Fatal("Generate() succeeded against a closed server")
	}
	var e *Error
	if errors.As(err, &e) {
		t.Errorf("network failure reported as HTTP error: %v", e)
	}
}
