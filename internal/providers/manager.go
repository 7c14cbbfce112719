package providers

import (
	"fmt"
	"strings"

	"leadscout/internal/config"
)

// capability records which chains a provider name may appear in.
type capability struct {
	llm, embed bool
}

var capabilities = map[string]capability{
	"mock":      {llm: true, embed: true},
	"openai":    {llm: true, embed: true},
	"groq":      {llm: true},
	"anthropic": {llm: true},
	"ollama":    {embed: true},
}

type entry[T any] struct {
	ref      ProviderRef
	provider T
}

// chain is an ordered failover list. Index 0 is the primary; workflows walk
// the indices in order when a provider is disabled.
type chain[T any] []entry[T]

func (c chain[T]) at(i int) (T, ProviderRef) {
	if i < 0 || i >= len(c) {
		i = 0
	}
	return c[i].provider, c[i].ref
}

// Manager holds the configured brief (LLM) and embedding provider chains.
// Both chains always have at least one entry; an empty list means mock.
type Manager struct {
	llm   chain[LLMProvider]
	embed chain[EmbeddingProvider]
}

func NewManager(cfg config.Config) (*Manager, error) {
	m := &Manager{}
	for _, ref := range ParseProviderList(cfg.LLMProviders) {
		p, err := buildProvider(ref, cfg.EmbedDim, func(c capability) bool { return c.llm }, "llm")
		if err != nil {
			return nil, err
		}
		m.llm = append(m.llm, entry[LLMProvider]{ref: ref, provider: p.(LLMProvider)})
	}
	for _, ref := range ParseProviderList(cfg.EmbedProviders) {
		p, err := buildProvider(ref, cfg.EmbedDim, func(c capability) bool { return c.embed }, "embeddings")
		if err != nil {
			return nil, err
		}
		m.embed = append(m.embed, entry[EmbeddingProvider]{ref: ref, provider: p.(EmbeddingProvider)})
	}
	return m, nil
}

// EmbedProviderByIndex clamps out-of-range indices to the primary provider.
func (m *Manager) EmbedProviderByIndex(i int) (EmbeddingProvider, ProviderRef) {
	return m.embed.at(i)
}

func (m *Manager) LLMProviderByIndex(i int) (LLMProvider, ProviderRef) {
	return m.llm.at(i)
}

func (m *Manager) EmbedCount() int { return len(m.embed) }

func (m *Manager) LLMCount() int { return len(m.llm) }

func buildProvider(ref ProviderRef, dim int, allowed func(capability) bool, role string) (any, error) {
	name := strings.ToLower(ref.Name)
	c, known := capabilities[name]
	if !known {
		return nil, fmt.Errorf("unsupported provider: %s", ref.Name)
	}
	if !allowed(c) {
		return nil, fmt.Errorf("provider %s does not support %s", ref.Raw, role)
	}
	switch name {
	case "openai":
		return NewOpenAIProvider(ref.KeyAlias), nil
	case "groq":
		return NewGroqProvider(ref.KeyAlias), nil
	case "anthropic":
		return NewAnthropicProvider(ref.KeyAlias), nil
	case "ollama":
		return NewOllamaEmbeddingProvider(ref.KeyAlias), nil
	default:
		return NewMockProvider(dim), nil
	}
}
