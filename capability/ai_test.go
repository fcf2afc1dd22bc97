package capability

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func aiConfig(endpoint string) map[string]any {
	return map[string]any{
		"model":    "gpt-4o-mini",
		"prompt":   "Summarize: {{.input}}",
		"endpoint": endpoint,
	}
}

func TestAIProcessor_Completion(t *testing.T) {
	var gotBody chatRequest
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": "a summary"}},
			},
		})
	}))
	defer srv.Close()

	a := NewAIProcessor(srv.Client())
	config := aiConfig(srv.URL)
	config["api_key"] = "sk-test"
	config["temperature"] = 0.2
	config["max_tokens"] = 100

	out, err := a.Execute(context.Background(), config, "long report text")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if out != "a summary" {
		t.Errorf("output = %q", out)
	}

	if gotAuth != "Bearer sk-test" {
		t.Errorf("auth header = %q", gotAuth)
	}
	if gotBody.Model != "gpt-4o-mini" {
		t.Errorf("model = %q", gotBody.Model)
	}
	if len(gotBody.Messages) != 1 || gotBody.Messages[0].Content != "Summarize: long report text" {
		t.Errorf("messages = %v, want rendered prompt", gotBody.Messages)
	}
	if gotBody.Temperature == nil || *gotBody.Temperature != 0.2 {
		t.Errorf("temperature = %v", gotBody.Temperature)
	}
	if gotBody.MaxTokens != 100 {
		t.Errorf("max_tokens = %d", gotBody.MaxTokens)
	}
}

func TestAIProcessor_SystemPrompt(t *testing.T) {
	var gotBody chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]any{"content": "ok"}}},
		})
	}))
	defer srv.Close()

	a := NewAIProcessor(srv.Client())
	config := aiConfig(srv.URL)
	config["system_prompt"] = "You are terse."

	if _, err := a.Execute(context.Background(), config, "x"); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(gotBody.Messages) != 2 || gotBody.Messages[0].Role != "system" {
		t.Errorf("messages = %v, want system message first", gotBody.Messages)
	}
}

func TestAIProcessor_PromptInterpolatesMapKeys(t *testing.T) {
	var gotBody chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]any{"content": "ok"}}},
		})
	}))
	defer srv.Close()

	a := NewAIProcessor(srv.Client())
	config := map[string]any{
		"model":    "m",
		"prompt":   "Rate {{.title}} by {{.author}}",
		"endpoint": srv.URL,
	}
	input := map[string]any{"title": "Dune", "author": "Herbert"}

	if _, err := a.Execute(context.Background(), config, input); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if gotBody.Messages[0].Content != "Rate Dune by Herbert" {
		t.Errorf("prompt = %q", gotBody.Messages[0].Content)
	}
}

func TestAIProcessor_ProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"message": "rate limited"},
		})
	}))
	defer srv.Close()

	a := NewAIProcessor(srv.Client())
	_, err := a.Execute(context.Background(), aiConfig(srv.URL), "x")
	if err == nil || !strings.Contains(err.Error(), "rate limited") {
		t.Errorf("error = %v, want provider message", err)
	}
}

func TestAIProcessor_NonJSONErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("<html><body>502 Bad Gateway</body></html>"))
	}))
	defer srv.Close()

	a := NewAIProcessor(srv.Client())
	_, err := a.Execute(context.Background(), aiConfig(srv.URL), "x")
	if err == nil || !strings.Contains(err.Error(), "unexpected status code: 502") {
		t.Errorf("error = %v, want the status code", err)
	}
}

func TestAIProcessor_ConfigErrors(t *testing.T) {
	a := NewAIProcessor(nil)
	cases := []struct {
		name   string
		config map[string]any
	}{
		{"missing model", map[string]any{"prompt": "p", "endpoint": "http://x"}},
		{"missing prompt", map[string]any{"model": "m", "endpoint": "http://x"}},
		{"missing endpoint", map[string]any{"model": "m", "prompt": "p"}},
		{"temperature too high", map[string]any{"model": "m", "prompt": "p", "endpoint": "http://x", "temperature": 1.5}},
		{"max_tokens zero", map[string]any{"model": "m", "prompt": "p", "endpoint": "http://x", "max_tokens": 0}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := a.Execute(context.Background(), tc.config, nil); err == nil {
				t.Error("expected error")
			}
		})
	}
}
