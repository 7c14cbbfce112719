package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

const (
	defaultOllamaURL   = "http://localhost:11434"
	defaultOllamaModel = "nomic-embed-text"
)

// ollamaModels maps short aliases used in LEADSCOUT_EMBED_PROVIDERS to pulled
// model names.
var ollamaModels = map[string]string{
	"nomic": "nomic-embed-text",
	"bge":   "bge-small-en-v1.5",
	"mxbai": "mxbai-embed-large",
}

// OllamaEmbeddingProvider calls a local Ollama server's batch /api/embed
// endpoint. It has no chat support and is only valid in the embed chain.
type OllamaEmbeddingProvider struct {
	alias   string
	baseURL string
	model   string
	client  *http.Client
}

func NewOllamaEmbeddingProvider(alias string) *OllamaEmbeddingProvider {
	baseURL := strings.TrimSpace(os.Getenv("LEADSCOUT_OLLAMA_BASE_URL"))
	if baseURL == "" {
		baseURL = defaultOllamaURL
	}
	return &OllamaEmbeddingProvider{
		alias:   alias,
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   resolveOllamaEmbedModel(alias),
		client:  &http.Client{Timeout: 90 * time.Second},
	}
}

func (o *OllamaEmbeddingProvider) Model() string { return o.model }

func (o *OllamaEmbeddingProvider) info() ProviderInfo {
	return ProviderInfo{Name: "ollama", Model: o.model, Key: o.alias}
}

type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaEmbedResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float32 `json:"embeddings"`
}

func (o *OllamaEmbeddingProvider) Embed(ctx context.Context, req EmbedRequest) ([][]float32, ProviderInfo, error) {
	if len(req.Inputs) == 0 {
		return nil, o.info(), fmt.Errorf("no embedding inputs")
	}
	payload, err := json.Marshal(ollamaEmbedRequest{Model: o.model, Input: req.Inputs})
	if err != nil {
		return nil, o.info(), fmt.Errorf("encode ollama request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/embed", bytes.NewReader(payload))
	if err != nil {
		return nil, o.info(), fmt.Errorf("build ollama request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(httpReq)
	if err != nil {
		return nil, o.info(), fmt.Errorf("ollama embed: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return nil, o.info(), fmt.Errorf("read ollama response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, o.info(), &HTTPStatusError{Provider: "ollama", StatusCode: resp.StatusCode, Body: string(body)}
	}

	var parsed ollamaEmbedResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, o.info(), fmt.Errorf("decode ollama response: %w", err)
	}
	if len(parsed.Embeddings) != len(req.Inputs) {
		return nil, o.info(), fmt.Errorf("ollama returned %d embeddings for %d inputs", len(parsed.Embeddings), len(req.Inputs))
	}
	out := make([][]float32, len(parsed.Embeddings))
	for i, v := range parsed.Embeddings {
		if len(v) == 0 {
			return nil, o.info(), fmt.Errorf("ollama returned an empty vector at %d", i)
		}
		out[i] = matchDimension(v, req.Dimension)
	}
	return out, o.info(), nil
}

// resolveOllamaEmbedModel picks the model for an alias: a per-alias env
// override, then the alias table, then the alias itself when it already looks
// like a model name, then LEADSCOUT_OLLAMA_EMBED_MODEL.
func resolveOllamaEmbedModel(alias string) string {
	alias = strings.TrimSpace(alias)
	if alias != "" {
		if v := strings.TrimSpace(os.Getenv("LEADSCOUT_OLLAMA_EMBED_MODEL_" + sanitizeEnvToken(alias))); v != "" {
			return v
		}
		if m, ok := ollamaModels[strings.ToLower(alias)]; ok {
			return m
		}
		if strings.ContainsAny(alias, "-/.") {
			return alias
		}
	}
	if v := strings.TrimSpace(os.Getenv("LEADSCOUT_OLLAMA_EMBED_MODEL")); v != "" {
		return v
	}
	return defaultOllamaModel
}

var envTokenReplacer = strings.NewReplacer("-", "_", ".", "_", "/", "_")

func sanitizeEnvToken(s string) string {
	return envTokenReplacer.Replace(strings.ToUpper(s))
}

// matchDimension truncates or zero-pads v so every stored vector of a model
// has the configured column width.
func matchDimension(v []float32, target int) []float32 {
	switch {
	case target <= 0 || len(v) == target:
		return v
	case len(v) > target:
		return v[:target]
	}
	out := make([]float32, target)
	copy(out, v)
	return out
}
