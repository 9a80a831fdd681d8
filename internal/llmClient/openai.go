package llmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// OpenAIClient calls an OpenAI-compatible Chat Completions endpoint.
// DeepSeek and Hyperbolic both speak this protocol.
type OpenAIClient struct {
	http     *http.Client
	provider string
	apiKey   string
	baseURL  string
}

// NewOpenAIClient creates a client for provider rooted at baseURL
// (for example https://api.deepseek.com/v1).
func NewOpenAIClient(provider, apiKey, baseURL string) *OpenAIClient {
	return &OpenAIClient{
		http:     &http.Client{Timeout: 120 * time.Second},
		provider: provider,
		apiKey:   strings.TrimSpace(apiKey),
		baseURL:  strings.TrimRight(strings.TrimSpace(baseURL), "/"),
	}
}

func (c *OpenAIClient) Name() string { return c.provider }

type chatReq struct {
	Model            string    `json:"model"`
	Messages         []Message `json:"messages"`
	MaxTokens        int       `json:"max_tokens,omitempty"`
	Temperature      float64   `json:"temperature"`
	TopP             float64   `json:"top_p,omitempty"`
	FrequencyPenalty float64   `json:"frequency_penalty"`
	PresencePenalty  float64   `json:"presence_penalty"`
	Stream           bool      `json:"stream"`
}

type chatResp struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (c *OpenAIClient) endpoint() string {
	if strings.HasSuffix(c.baseURL, "/chat/completions") {
		return c.baseURL
	}
	return c.baseURL + "/chat/completions"
}

func (c *OpenAIClient) Invoke(ctx context.Context, messages []Message, cfg GenerationConfig) (string, error) {
	if c.apiKey == "" {
		return "", &AuthError{Provider: c.provider}
	}
	body, err := json.Marshal(chatReq{
		Model:            cfg.Model,
		Messages:         messages,
		MaxTokens:        cfg.MaxTokens,
		Temperature:      cfg.Temperature,
		TopP:             cfg.TopP,
		FrequencyPenalty: cfg.FrequencyPenalty,
		PresencePenalty:  cfg.PresencePenalty,
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(), bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", &NetworkError{Provider: c.provider, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		const max = 2048
		if len(raw) > max {
			raw = raw[:max]
		}
		text := string(raw)
		switch {
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return "", &AuthError{Provider: c.provider, Status: resp.StatusCode, Body: text}
		case resp.StatusCode == http.StatusBadRequest && strings.Contains(text, "context_length_exceeded"):
			return "", NewPermanentError(&ProviderError{Provider: c.provider, Status: resp.StatusCode, Body: text})
		}
		return "", &ProviderError{
			Provider:   c.provider,
			Status:     resp.StatusCode,
			Body:       text,
			RetryAfter: retryAfter(resp.Header),
		}
	}

	var out chatResp
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", &ProviderError{Provider: c.provider, Status: resp.StatusCode, Body: fmt.Sprintf("decode response: %v", err)}
	}
	if len(out.Choices) == 0 || out.Choices[0].Message.Content == "" {
		return "", &ProviderError{Provider: c.provider, Status: resp.StatusCode, Body: ErrEmptyReply.Error()}
	}
	return out.Choices[0].Message.Content, nil
}

// retryAfter reads the Retry-After header in its delay-seconds form.
func retryAfter(h http.Header) time.Duration {
	v := strings.TrimSpace(h.Get("Retry-After"))
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second
}
