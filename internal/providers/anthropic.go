package providers

import (
	"context"
	"fmt"
	"os"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicMessager is the slice of the SDK client used here, so tests can
// substitute it.
type AnthropicMessager interface {
	New(ctx context.Context, params anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

type AnthropicProvider struct {
	keyName  string
	apiKey   string
	model    string
	messages AnthropicMessager
}

func NewAnthropicProvider(keyName string) *AnthropicProvider {
	apiKey := resolveAnthropicKey(keyName)
	c := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &AnthropicProvider{
		keyName:  keyName,
		apiKey:   apiKey,
		model:    envOr("LEADSCOUT_ANTHROPIC_MODEL", string(anthropic.ModelClaudeSonnet4_20250514)),
		messages: &c.Messages,
	}
}

func (a *AnthropicProvider) Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, ProviderInfo, error) {
	info := ProviderInfo{Name: "anthropic", Model: a.model, Key: a.keyName}
	if a.apiKey == "" {
		return GenerateResponse{}, info, fmt.Errorf("anthropic key missing for alias %q", a.keyName)
	}
	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 2048
	}
	resp, err := a.messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(a.model),
		MaxTokens:   maxTokens,
		System:      []anthropic.TextBlockParam{{Text: systemPrompt(req)}},
		Messages:    []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt(req)))},
		Temperature: anthropic.Float(0),
	})
	if err != nil {
		return GenerateResponse{}, info, fmt.Errorf("anthropic generate request failed: %w", err)
	}
	info.RequestID = resp.ID
	var sb strings.Builder
	for _, b := range resp.Content {
		if b.Type == "text" {
			sb.WriteString(b.Text)
		}
	}
	if strings.TrimSpace(sb.String()) == "" {
		return GenerateResponse{}, info, fmt.Errorf("anthropic returned no text content")
	}
	return GenerateResponse{Text: sb.String()}, info, nil
}

func resolveAnthropicKey(alias string) string {
	if alias != "" {
		if v := os.Getenv("LEADSCOUT_ANTHROPIC_KEY_" + sanitizeEnvToken(alias)); v != "" {
			return v
		}
	}
	return os.Getenv("ANTHROPIC_API_KEY")
}
