package llmclient

import (
	"context"
	"strings"

	genai "google.golang.org/genai"
)

// GeminiClient is a thin wrapper around the official genai client.
type GeminiClient struct {
	cli *genai.Client
}

func NewGeminiClient(ctx context.Context, apiKey string) (*GeminiClient, error) {
	cli, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  strings.TrimSpace(apiKey),
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, err
	}
	return &GeminiClient{cli: cli}, nil
}

func (g *GeminiClient) Name() string { return ProviderGemini }

func (g *GeminiClient) Invoke(ctx context.Context, messages []Message, cfg GenerationConfig) (string, error) {
	var (
		system   []string
		contents []*genai.Content
	)
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			system = append(system, m.Content)
		case RoleAssistant:
			contents = append(contents, &genai.Content{Role: "model", Parts: []*genai.Part{{Text: m.Content}}})
		default:
			contents = append(contents, &genai.Content{Role: "user", Parts: []*genai.Part{{Text: m.Content}}})
		}
	}

	gc := &genai.GenerateContentConfig{}
	if len(system) > 0 {
		gc.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: strings.Join(system, "\n\n")}}}
	}
	if cfg.MaxTokens > 0 {
		gc.MaxOutputTokens = int32(cfg.MaxTokens)
	}
	temp := float32(cfg.Temperature)
	gc.Temperature = &temp
	if cfg.TopP > 0 {
		topP := float32(cfg.TopP)
		gc.TopP = &topP
	}

	resp, err := g.cli.Models.GenerateContent(ctx, cfg.Model, contents, gc)
	if err != nil {
		if ctx.Err() != nil {
			return "", &NetworkError{Provider: ProviderGemini, Err: err}
		}
		return "", &ProviderError{Provider: ProviderGemini, Body: err.Error()}
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", &ProviderError{Provider: ProviderGemini, Body: ErrEmptyReply.Error()}
	}
	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		b.WriteString(p.Text)
	}
	if b.Len() == 0 {
		return "", &ProviderError{Provider: ProviderGemini, Body: ErrEmptyReply.Error()}
	}
	return b.String(), nil
}
