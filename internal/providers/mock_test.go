package providers

import (
	"context"
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMockEmbedDeterministicUnitVectors(t *testing.T) {
	m := NewMockProvider(16)
	a, info, err := m.Embed(context.Background(), EmbedRequest{Inputs: []string{"alpha", "beta"}})
	require.NoError(t, err)
	require.Equal(t, "mock-embed-16", info.Model)
	require.Equal(t, m.Model(), info.Model)
	b, _, err := m.Embed(context.Background(), EmbedRequest{Inputs: []string{"alpha"}})
	require.NoError(t, err)
	require.Equal(t, a[0], b[0])
	require.NotEqual(t, a[0], a[1])

	var norm float64
	for _, x := range a[0] {
		norm += float64(x) * float64(x)
	}
	require.InDelta(t, 1.0, math.Sqrt(norm), 1e-5)
}

func TestMockBriefOutput(t *testing.T) {
	m := NewMockProvider(8)
	resp, _, err := m.Generate(context.Background(), GenerateRequest{Operation: "brief", Context: []string{"[C1] evidence"}})
	require.NoError(t, err)
	var parsed struct {
		Bullets []struct {
			Section   string   `json:"section"`
			Citations []string `json:"citations"`
		} `json:"bullets"`
	}
	require.NoError(t, json.Unmarshal([]byte(resp.Text), &parsed))
	require.Len(t, parsed.Bullets, 5)
	for _, b := range parsed.Bullets {
		require.Equal(t, []string{"C1"}, b.Citations)
	}

	resp, _, err = m.Generate(context.Background(), GenerateRequest{Operation: "brief"})
	require.NoError(t, err)
	require.Contains(t, resp.Text, "INSUFFICIENT_EVIDENCE")
}
