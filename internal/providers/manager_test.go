package providers

import (
	"testing"

	"github.com/stretchr/testify/require"

	"leadscout/internal/config"
)

func TestNewManagerDefaultsToMock(t *testing.T) {
	m, err := NewManager(config.Config{EmbedDim: 8})
	require.NoError(t, err)
	require.Equal(t, 1, m.EmbedCount())
	require.Equal(t, 1, m.LLMCount())

	p, ref := m.EmbedProviderByIndex(0)
	require.Equal(t, "mock", ref.Name)
	require.Equal(t, "mock-embed-8", p.Model())
}

func TestNewManagerChains(t *testing.T) {
	m, err := NewManager(config.Config{
		EmbedDim:       8,
		LLMProviders:   "mock|anthropic:legal|openai",
		EmbedProviders: "mock|openai:primary",
	})
	require.NoError(t, err)
	require.Equal(t, 3, m.LLMCount())
	require.Equal(t, 2, m.EmbedCount())

	_, ref := m.LLMProviderByIndex(1)
	require.Equal(t, "anthropic", ref.Name)
	require.Equal(t, "legal", ref.KeyAlias)

	_, ref = m.LLMProviderByIndex(99)
	require.Equal(t, "mock", ref.Name, "out of range clamps to the first provider")
}

func TestNewManagerRejectsChatOnlyEmbedders(t *testing.T) {
	for _, chain := range []string{"groq", "anthropic:x"} {
		_, err := NewManager(config.Config{EmbedProviders: chain})
		require.Error(t, err, chain)
	}
}

func TestNewManagerRejectsUnknown(t *testing.T) {
	_, err := NewManager(config.Config{LLMProviders: "watson"})
	require.ErrorContains(t, err, "unsupported provider")
}

func TestNewManagerRejectsEmbedOnlyLLM(t *testing.T) {
	_, err := NewManager(config.Config{LLMProviders: "ollama"})
	require.ErrorContains(t, err, "does not support llm")
}
