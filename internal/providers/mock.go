package providers

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// MockProvider is deterministic and offline. It backs tests and local runs
// without API keys.
type MockProvider struct {
	dim int
}

func NewMockProvider(dim int) *MockProvider {
	if dim <= 0 {
		dim = 1536
	}
	return &MockProvider{dim: dim}
}

func (m *MockProvider) Model() string { return fmt.Sprintf("mock-embed-%d", m.dim) }

func (m *MockProvider) Embed(ctx context.Context, req EmbedRequest) ([][]float32, ProviderInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, ProviderInfo{Name: "mock", Model: m.Model(), Key: "mock"}, err
	}
	dim := req.Dimension
	if dim <= 0 {
		dim = m.dim
	}
	vectors := make([][]float32, 0, len(req.Inputs))
	for _, input := range req.Inputs {
		vectors = append(vectors, deterministicVector(input, dim))
	}
	return vectors, ProviderInfo{Name: "mock", Model: m.Model(), Key: "mock"}, nil
}

var mockBriefSections = []string{"what_happened", "parties_statutes", "jurisdiction_timing", "tenant_fit", "next_steps"}

func (m *MockProvider) Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, ProviderInfo, error) {
	info := ProviderInfo{Name: "mock", Model: "mock-llm-v1", Key: "mock"}
	if err := ctx.Err(); err != nil {
		return GenerateResponse{}, info, err
	}
	text := "Mock response."
	if strings.Contains(strings.ToLower(req.Operation), "brief") {
		text = mockBrief(len(req.Context))
	}
	return GenerateResponse{Text: text}, info, nil
}

// mockBrief cites the first evidence block for every section, or abstains
// everywhere when there is no evidence.
func mockBrief(evidence int) string {
	type bullet struct {
		Section   string   `json:"section"`
		Text      string   `json:"text"`
		Citations []string `json:"citations"`
	}
	out := struct {
		Bullets []bullet `json:"bullets"`
	}{}
	for _, s := range mockBriefSections {
		b := bullet{Section: s, Citations: []string{}}
		if evidence > 0 {
			b.Text = "Deterministic summary for " + strings.ReplaceAll(s, "_", " ") + "."
			b.Citations = []string{"C1"}
		} else {
			b.Text = "INSUFFICIENT_EVIDENCE"
		}
		out.Bullets = append(out.Bullets, b)
	}
	body, _ := json.Marshal(out)
	return string(body)
}

func deterministicVector(input string, dim int) []float32 {
	vec := make([]float32, dim)
	seed := []byte(input)
	if len(seed) == 0 {
		seed = []byte("empty")
	}
	for i := 0; i < dim; i++ {
		h := sha256.Sum256(append(seed, byte(i%251), byte(i/251)))
		u := binary.BigEndian.Uint32(h[:4])
		vec[i] = float32(u%2000)/1000.0 - 1.0
	}
	return normalize(vec)
}

func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	inv := float32(1 / math.Sqrt(sum))
	for i := range v {
		v[i] *= inv
	}
	return v
}
