package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/packlate/packlate/credential"
)

// ---------------------------------------------------------------------------
// HTTP backend
// ---------------------------------------------------------------------------

// Default endpoints per provider. A credential's BaseURL overrides.
var defaultBaseURLs = map[string]string{
	"google": "https://generativelanguage.googleapis.com",
	"gemini": "https://generativelanguage.googleapis.com",
	"groq":   "https://api.groq.com/openai/v1",
	"openai": "https://api.openai.com/v1",
	"ollama": "http://localhost:11434/v1",
}

// HTTPBackend talks to Gemini-native and OpenAI-compatible HTTP APIs.
// Per-call deadlines come from the caller's context; the client itself
// carries no timeout.
type HTTPBackend struct {
	client *http.Client
}

// NewHTTPBackend returns a backend using the environment's proxy
// settings.
func NewHTTPBackend() *HTTPBackend {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = http.ProxyFromEnvironment
	return &HTTPBackend{client: &http.Client{Transport: transport}}
}

// Invoke performs one structured call. 429 responses come back as
// *RateLimitError carrying the server's retry hint.
func (b *HTTPBackend) Invoke(ctx context.Context, cred credential.Credential, req Request) (*Response, error) {
	endpoint, headers, body, err := buildHTTPRequest(cred, req)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("backend request failed: %w", err)
	}
	respBody, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &RateLimitError{RetryAfter: parseRetryDelay(respBody)}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("backend returned status %d: %s", resp.StatusCode, truncate(string(respBody), 500))
	}

	text, err := extractResponseText(respBody)
	if err != nil {
		return nil, err
	}
	return ParseStructured(text, req.Schema)
}

// buildHTTPRequest constructs the endpoint, headers and body for one
// call based on the credential's provider.
func buildHTTPRequest(cred credential.Credential, req Request) (string, map[string]string, []byte, error) {
	headers := map[string]string{
		"Content-Type": "application/json",
	}

	baseURL := cred.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURLs[cred.Provider]
	}
	if baseURL == "" {
		baseURL = defaultBaseURLs["openai"]
	}
	baseURL = strings.TrimRight(baseURL, "/")

	var endpoint string
	var body []byte
	var err error

	switch cred.Provider {
	case "google", "gemini":
		// Google AI: POST /v1beta/models/{model}:generateContent
		endpoint = fmt.Sprintf("%s/v1beta/models/%s:generateContent", baseURL, cred.Model)
		if cred.Key != "" {
			headers["x-goog-api-key"] = cred.Key
		}
		body, err = buildGeminiRequest(req.System, req.User, req.Temperature)

	default: // OpenAI-compatible chat/completions
		if strings.HasSuffix(baseURL, "/chat/completions") {
			endpoint = baseURL
		} else {
			endpoint = baseURL + "/chat/completions"
		}
		if cred.Key != "" {
			headers["Authorization"] = "Bearer " + cred.Key
		}
		body, err = buildOpenAIChatRequest(cred.Model, req.System, req.User, req.Temperature)
	}

	if err != nil {
		return "", nil, nil, err
	}
	return endpoint, headers, body, nil
}

// ---------------------------------------------------------------------------
// Request builders
// ---------------------------------------------------------------------------

func buildOpenAIChatRequest(model, systemPrompt, userPrompt string, temperature float64) ([]byte, error) {
	type msg struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}
	req := struct {
		Model       string  `json:"model"`
		Messages    []msg   `json:"messages"`
		Temperature float64 `json:"temperature"`
		Stream      bool    `json:"stream"`
	}{
		Model: model,
		Messages: []msg{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature: temperature,
		Stream:      false,
	}
	return json.Marshal(req)
}

func buildGeminiRequest(systemPrompt, userPrompt string, temperature float64) ([]byte, error) {
	type part struct {
		Text string `json:"text"`
	}
	type content struct {
		Role  string `json:"role,omitempty"`
		Parts []part `json:"parts"`
	}
	type genConfig struct {
		Temperature      float64 `json:"temperature"`
		ResponseMimeType string  `json:"responseMimeType"`
	}
	req := struct {
		Contents          []content `json:"contents"`
		GenerationConfig  genConfig `json:"generationConfig"`
		SystemInstruction *content  `json:"systemInstruction,omitempty"`
	}{
		Contents: []content{
			{Role: "user", Parts: []part{{Text: userPrompt}}},
		},
		GenerationConfig: genConfig{
			Temperature:      temperature,
			ResponseMimeType: "application/json",
		},
	}
	if systemPrompt != "" {
		req.SystemInstruction = &content{Parts: []part{{Text: systemPrompt}}}
	}
	return json.Marshal(req)
}

// ---------------------------------------------------------------------------
// Response parsing
// ---------------------------------------------------------------------------

// extractResponseText tries all known response formats and returns the
// raw text payload.
func extractResponseText(body []byte) (string, error) {
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return "", fmt.Errorf("invalid JSON response: %w", err)
	}

	if errObj, ok := raw["error"]; ok {
		if errMap, ok := errObj.(map[string]any); ok {
			if msg, ok := errMap["message"].(string); ok {
				return "", fmt.Errorf("API error: %s", msg)
			}
		}
		return "", fmt.Errorf("API error: %v", errObj)
	}

	// OpenAI chat format: choices[0].message.content
	if choices, ok := raw["choices"].([]any); ok && len(choices) > 0 {
		if choice, ok := choices[0].(map[string]any); ok {
			if message, ok := choice["message"].(map[string]any); ok {
				if content, ok := message["content"].(string); ok {
					return content, nil
				}
			}
		}
	}

	// Gemini format: candidates[0].content.parts[0].text
	if candidates, ok := raw["candidates"].([]any); ok && len(candidates) > 0 {
		if candidate, ok := candidates[0].(map[string]any); ok {
			if content, ok := candidate["content"].(map[string]any); ok {
				if parts, ok := content["parts"].([]any); ok && len(parts) > 0 {
					if part, ok := parts[0].(map[string]any); ok {
						if text, ok := part["text"].(string); ok {
							return text, nil
						}
					}
				}
			}
		}
	}

	// Simple response field (normalized proxies)
	if resp, ok := raw["response"].(string); ok {
		return resp, nil
	}

	return "", fmt.Errorf("could not extract text from response: %s", truncate(string(body), 500))
}

var markdownCodeBlock = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")

// ParseStructured decodes the record list for schema out of raw model
// text. Markdown fences are stripped and the outermost JSON array is
// located before decoding, since models routinely wrap their output.
func ParseStructured(text string, schema Schema) (*Response, error) {
	if m := markdownCodeBlock.FindStringSubmatch(text); len(m) > 1 {
		text = m[1]
	}
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON array in response: %s", truncate(text, 200))
	}
	payload := []byte(text[start : end+1])

	resp := &Response{}
	var err error
	switch schema {
	case SchemaTranslations:
		err = json.Unmarshal(payload, &resp.Translations)
	case SchemaTerms:
		err = json.Unmarshal(payload, &resp.Terms)
	case SchemaIssues:
		err = json.Unmarshal(payload, &resp.Issues)
	default:
		err = fmt.Errorf("unknown schema %d", schema)
	}
	if err != nil {
		return nil, fmt.Errorf("malformed structured response: %w", err)
	}
	return resp, nil
}

// parseRetryDelay extracts the retry delay from a 429 response body.
// Looks for Google's RetryInfo detail with retryDelay field.
// Returns the delay to wait, defaulting to 60s + 5s buffer.
func parseRetryDelay(body []byte) time.Duration {
	const defaultDelay = 65 * time.Second

	var errResp struct {
		Error struct {
			Details []struct {
				Type       string `json:"@type"`
				RetryDelay string `json:"retryDelay"`
			} `json:"details"`
		} `json:"error"`
	}

	if err := json.Unmarshal(body, &errResp); err != nil {
		return defaultDelay
	}

	for _, detail := range errResp.Error.Details {
		if strings.Contains(detail.Type, "RetryInfo") && detail.RetryDelay != "" {
			d := strings.TrimSuffix(detail.RetryDelay, "s")
			if secs, err := strconv.ParseFloat(d, 64); err == nil {
				return time.Duration(secs*1000)*time.Millisecond + 5*time.Second
			}
		}
	}

	return defaultDelay
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
