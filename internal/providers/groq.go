package providers

import "os"

// NewGroqProvider talks to Groq's OpenAI-compatible endpoint. Groq serves chat
// only, so it is only registered as an LLM provider.
func NewGroqProvider(keyName string) *OpenAIProvider {
	return newOpenAICompatible("groq", keyName, resolveGroqKey(keyName),
		envOr("LEADSCOUT_GROQ_BASE_URL", "https://api.groq.com/openai/v1"),
		envOr("LEADSCOUT_GROQ_MODEL", "llama-3.1-8b-instant"),
		"")
}

func resolveGroqKey(alias string) string {
	if alias != "" {
		if v := os.Getenv("LEADSCOUT_GROQ_KEY_" + sanitizeEnvToken(alias)); v != "" {
			return v
		}
	}
	return os.Getenv("GROQ_API_KEY")
}
