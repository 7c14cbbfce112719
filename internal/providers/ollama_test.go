package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveOllamaEmbedModel(t *testing.T) {
	t.Setenv("LEADSCOUT_OLLAMA_EMBED_MODEL", "")
	require.Equal(t, "nomic-embed-text", resolveOllamaEmbedModel(""))
	require.Equal(t, "bge-small-en-v1.5", resolveOllamaEmbedModel("bge"))
	require.Equal(t, "mxbai-embed-large", resolveOllamaEmbedModel("mxbai-embed-large"))

	require.Equal(t, "mxbai-embed-large", resolveOllamaEmbedModel("mxbai"))

	t.Setenv("LEADSCOUT_OLLAMA_EMBED_MODEL_LEGAL", "legal-embed")
	require.Equal(t, "legal-embed", resolveOllamaEmbedModel("legal"))
}

func TestMatchDimension(t *testing.T) {
	src := []float32{1, 2, 3}
	require.Equal(t, []float32{1, 2}, matchDimension(src, 2))
	require.Equal(t, []float32{1, 2, 3, 0, 0}, matchDimension(src, 5))
	require.Equal(t, src, matchDimension(src, 0))
}

func TestOllamaEmbed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/embed", r.URL.Path)
		var body ollamaEmbedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "nomic-embed-text", body.Model)
		if len(body.Input) == 1 && body.Input[0] == "fail" {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("loading model"))
			return
		}
		out := ollamaEmbedResponse{Model: body.Model}
		for _, in := range body.Input {
			out.Embeddings = append(out.Embeddings, []float32{float32(len(in)), 1})
		}
		_ = json.NewEncoder(w).Encode(out)
	}))
	defer srv.Close()
	t.Setenv("LEADSCOUT_OLLAMA_BASE_URL", srv.URL)
	t.Setenv("LEADSCOUT_OLLAMA_EMBED_MODEL", "")

	p := NewOllamaEmbeddingProvider("")
	vecs, info, err := p.Embed(context.Background(), EmbedRequest{Inputs: []string{"ab", "abcd"}, Dimension: 3})
	require.NoError(t, err)
	require.Equal(t, "ollama", info.Name)
	require.Equal(t, [][]float32{{2, 1, 0}, {4, 1, 0}}, vecs)

	_, _, err = p.Embed(context.Background(), EmbedRequest{Inputs: []string{"fail"}})
	require.Error(t, err)
	require.True(t, Retryable(err))
}

func TestOllamaEmbedCountMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(ollamaEmbedResponse{Embeddings: [][]float32{{1}}})
	}))
	defer srv.Close()
	t.Setenv("LEADSCOUT_OLLAMA_BASE_URL", srv.URL)

	_, _, err := NewOllamaEmbeddingProvider("bge").Embed(context.Background(), EmbedRequest{Inputs: []string{"a", "b"}})
	require.ErrorContains(t, err, "1 embeddings for 2 inputs")
}
