package providers

import "context"

type ProviderInfo struct {
	Name      string `json:"name"`
	Model     string `json:"model"`
	Key       string `json:"key"`
	RequestID string `json:"request_id,omitempty"`
}

type GenerateRequest struct {
	Operation string   `json:"operation"`
	System    string   `json:"system,omitempty"`
	Prompt    string   `json:"prompt"`
	Context   []string `json:"context"`
	MaxTokens int      `json:"max_tokens,omitempty"`
}

type GenerateResponse struct {
	Text string `json:"text"`
}

type EmbedRequest struct {
	Operation string   `json:"operation"`
	Inputs    []string `json:"inputs"`
	Dimension int      `json:"dimension"`
}

type LLMProvider interface {
	Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, ProviderInfo, error)
}

// EmbeddingProvider returns one vector per input, in input order. Model is
// known before any call because it is part of the embedding dedup key.
type EmbeddingProvider interface {
	Embed(ctx context.Context, req EmbedRequest) ([][]float32, ProviderInfo, error)
	Model() string
}

const defaultSystemPrompt = "You are a legal intelligence analyst. Use only the supplied evidence, cite it, and say INSUFFICIENT_EVIDENCE when it does not support a claim."

func userPrompt(req GenerateRequest) string {
	prompt := req.Prompt
	if len(req.Context) > 0 {
		prompt += "\n\nContext:\n"
		for i, c := range req.Context {
			if i > 0 {
				prompt += "\n\n"
			}
			prompt += c
		}
	}
	return prompt
}

func systemPrompt(req GenerateRequest) string {
	if req.System != "" {
		return req.System
	}
	return defaultSystemPrompt
}
