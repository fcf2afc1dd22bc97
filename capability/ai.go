package capability

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"text/template"
	"time"
)

// HTTPClient abstracts outbound HTTP execution so tests can substitute
// a recording client.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// defaultAITimeout bounds a single completion request when the step
// config does not set one.
const defaultAITimeout = 2 * time.Minute

// AIProcessor sends prompts to an OpenAI-compatible chat completion
// endpoint. The prompt is a Go text template rendered against the step
// input, so upstream step outputs can be interpolated into it.
type AIProcessor struct {
	client HTTPClient
}

// NewAIProcessor creates the AI capability using the given HTTP client,
// or http.DefaultClient when nil.
func NewAIProcessor(client HTTPClient) *AIProcessor {
	if client == nil {
		client = http.DefaultClient
	}
	return &AIProcessor{client: client}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Execute renders the prompt and performs one completion request.
// The output is the assistant message content as a string.
func (a *AIProcessor) Execute(ctx context.Context, config map[string]any, input any) (any, error) {
	model := cfgString(config, "model")
	promptTmpl := cfgString(config, "prompt")
	endpoint := cfgString(config, "endpoint")
	if model == "" {
		return nil, fmt.Errorf("ai: model is required")
	}
	if promptTmpl == "" {
		return nil, fmt.Errorf("ai: prompt is required")
	}
	if endpoint == "" {
		return nil, fmt.Errorf("ai: endpoint is required")
	}

	prompt, err := renderPrompt(promptTmpl, input)
	if err != nil {
		return nil, err
	}

	reqBody := chatRequest{
		Model:    model,
		Messages: []chatMessage{{Role: "user", Content: prompt}},
	}
	if system := cfgString(config, "system_prompt"); system != "" {
		reqBody.Messages = append([]chatMessage{{Role: "system", Content: system}}, reqBody.Messages...)
	}
	if temp, ok := cfgNumber(config, "temperature"); ok {
		if temp < 0 || temp > 1 {
			return nil, fmt.Errorf("ai: temperature %v is outside [0, 1]", temp)
		}
		reqBody.Temperature = &temp
	}
	if maxTokens, ok := cfgNumber(config, "max_tokens"); ok {
		if maxTokens < 1 {
			return nil, fmt.Errorf("ai: max_tokens must be at least 1")
		}
		reqBody.MaxTokens = int(maxTokens)
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("ai: marshal request: %w", err)
	}

	timeout := cfgDuration(config, "timeout")
	if timeout <= 0 {
		timeout = defaultAITimeout
	}
	requestCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(requestCtx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ai: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey := cfgString(config, "api_key"); apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ai: request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("ai: read response: %w", err)
	}

	// A non-2xx body may be anything (an HTML error page, a proxy
	// message); only prefer the provider's own error when it parses.
	var parsed chatResponse
	decodeErr := json.Unmarshal(respBody, &parsed)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if decodeErr == nil && parsed.Error != nil && parsed.Error.Message != "" {
			return nil, fmt.Errorf("ai: provider error: %s", parsed.Error.Message)
		}
		return nil, fmt.Errorf("ai: unexpected status code: %d", resp.StatusCode)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("ai: decode response: %w", decodeErr)
	}
	if parsed.Error != nil && parsed.Error.Message != "" {
		return nil, fmt.Errorf("ai: provider error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("ai: response contains no choices")
	}

	return parsed.Choices[0].Message.Content, nil
}

// renderPrompt renders the prompt template against the step input. The
// input is reachable as {{.input}}; map inputs also expose their keys
// at the top level.
func renderPrompt(text string, input any) (string, error) {
	tmpl, err := template.New("prompt").Funcs(transformTemplateFuncs()).Parse(text)
	if err != nil {
		return "", fmt.Errorf("ai: invalid prompt template: %w", err)
	}

	data := map[string]any{"input": input}
	if m, ok := toMap(input); ok {
		for k, v := range m {
			data[k] = v
		}
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("ai: render prompt: %w", err)
	}
	return buf.String(), nil
}
