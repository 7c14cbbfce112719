package providers

import (
	"context"
	"fmt"
	"os"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIProvider serves chat and embeddings from any OpenAI-compatible API.
type OpenAIProvider struct {
	name       string
	keyName    string
	apiKey     string
	chatModel  string
	embedModel string
	client     *openai.Client
}

func NewOpenAIProvider(keyName string) *OpenAIProvider {
	return newOpenAICompatible("openai", keyName, resolveOpenAIKey(keyName),
		envOr("LEADSCOUT_OPENAI_BASE_URL", "https://api.openai.com/v1"),
		envOr("LEADSCOUT_OPENAI_CHAT_MODEL", "gpt-4o-mini"),
		envOr("LEADSCOUT_OPENAI_EMBED_MODEL", "text-embedding-3-small"))
}

func newOpenAICompatible(name, keyName, apiKey, baseURL, chatModel, embedModel string) *OpenAIProvider {
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = strings.TrimRight(baseURL, "/")
	return &OpenAIProvider{
		name:       name,
		keyName:    keyName,
		apiKey:     apiKey,
		chatModel:  chatModel,
		embedModel: embedModel,
		client:     openai.NewClientWithConfig(cfg),
	}
}

func (o *OpenAIProvider) Model() string { return o.embedModel }

func (o *OpenAIProvider) Embed(ctx context.Context, req EmbedRequest) ([][]float32, ProviderInfo, error) {
	info := ProviderInfo{Name: o.name, Model: o.embedModel, Key: o.keyName}
	if o.apiKey == "" {
		return nil, info, fmt.Errorf("%s key missing for alias %q", o.name, o.keyName)
	}
	if len(req.Inputs) == 0 {
		return nil, info, fmt.Errorf("no embedding inputs")
	}
	ereq := openai.EmbeddingRequest{
		Input:          req.Inputs,
		Model:          openai.EmbeddingModel(o.embedModel),
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
	}
	if req.Dimension > 0 {
		ereq.Dimensions = req.Dimension
	}
	resp, err := o.client.CreateEmbeddings(ctx, ereq)
	if err != nil {
		return nil, info, fmt.Errorf("%s embedding request failed: %w", o.name, err)
	}
	if len(resp.Data) != len(req.Inputs) {
		return nil, info, fmt.Errorf("%s returned %d embeddings for %d inputs", o.name, len(resp.Data), len(req.Inputs))
	}
	out := make([][]float32, len(req.Inputs))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, info, fmt.Errorf("%s returned embedding index %d out of range", o.name, d.Index)
		}
		out[d.Index] = matchDimension(d.Embedding, req.Dimension)
	}
	return out, info, nil
}

func (o *OpenAIProvider) Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, ProviderInfo, error) {
	info := ProviderInfo{Name: o.name, Model: o.chatModel, Key: o.keyName}
	if o.apiKey == "" {
		return GenerateResponse{}, info, fmt.Errorf("%s key missing for alias %q", o.name, o.keyName)
	}
	creq := openai.ChatCompletionRequest{
		Model: o.chatModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt(req)},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt(req)},
		},
		Temperature: 0,
	}
	if req.MaxTokens > 0 {
		creq.MaxTokens = req.MaxTokens
	}
	resp, err := o.client.CreateChatCompletion(ctx, creq)
	if err != nil {
		return GenerateResponse{}, info, fmt.Errorf("%s generate request failed: %w", o.name, err)
	}
	info.RequestID = resp.ID
	if len(resp.Choices) == 0 {
		return GenerateResponse{}, info, fmt.Errorf("%s returned empty choices", o.name)
	}
	return GenerateResponse{Text: resp.Choices[0].Message.Content}, info, nil
}

func resolveOpenAIKey(alias string) string {
	if alias != "" {
		if k := os.Getenv("LEADSCOUT_OPENAI_KEY_" + sanitizeEnvToken(alias)); k != "" {
			return k
		}
	}
	return os.Getenv("OPENAI_API_KEY")
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
