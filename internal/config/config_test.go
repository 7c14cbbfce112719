package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"leadscout/internal/models"
)

func TestLoadDefaultsAndOverrides(t *testing.T) {
	t.Setenv("LEADSCOUT_CHUNK_MAX_TOKENS", "")
	t.Setenv("LEADSCOUT_EMBED_MAX_BACKOFF", "3s")
	t.Setenv("LEADSCOUT_BRIEFS_ENABLED", "false")
	t.Setenv("LEADSCOUT_REDIS_ADDRS", "r1:6379, r2:6379,")
	t.Setenv("LEADSCOUT_EMBED_BATCH_SIZE", "not-a-number")

	cfg := Load()
	require.Equal(t, 2048, cfg.ChunkMaxTokens)
	require.Equal(t, 3*time.Second, cfg.EmbedMaxBackoff)
	require.False(t, cfg.BriefsEnabled)
	require.Equal(t, []string{"r1:6379", "r2:6379"}, cfg.RedisAddrs)
	require.Equal(t, 64, cfg.EmbedBatchSize)
	require.NoError(t, cfg.Validate())

	cfg.RunMaxConcurrent = 0
	require.ErrorIs(t, cfg.Validate(), models.ErrConfig)
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("LS_TEST_SET", "value")
	t.Setenv("LS_TEST_EMPTY", "")
	out := expandEnvVars([]byte("a: ${LS_TEST_SET}\nb: ${LS_TEST_EMPTY:-fallback}\nc: ${LS_TEST_MISSING}"))
	require.Equal(t, "a: value\nb: fallback\nc: ", string(out))
}

func writeFile(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "rubric.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestLoadRubricOverlay(t *testing.T) {
	t.Setenv("LS_MIN", "0.35")
	p := writeFile(t, `
weights:
  practice_area: 0.5
  jurisdiction: 0.2
  keyword: 0.2
  recency: 0.1
min_confidence: ${LS_MIN}
regional_synonyms:
  New York: [manhattan, brooklyn]
`)
	r, err := LoadRubric(p)
	require.NoError(t, err)
	require.Equal(t, 0.5, r.Weights.PracticeArea)
	require.Equal(t, 0.35, r.MinConfidence)
	require.Equal(t, []string{"manhattan", "brooklyn"}, r.RegionalSynonyms["new york"])
	require.Contains(t, r.PracticeAreas, "ada_accessibility")
}

func TestLoadRubricReplacesAreas(t *testing.T) {
	p := writeFile(t, `
practice_areas:
  Maritime:
    patterns: ['\bvessel\b', 'jones act']
    keywords: [vessel]
`)
	r, err := LoadRubric(p)
	require.NoError(t, err)
	require.Len(t, r.PracticeAreas, 1)
	require.Equal(t, "maritime", r.PracticeAreas["maritime"].Name)
}

func TestLoadRubricErrors(t *testing.T) {
	_, err := LoadRubric(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorIs(t, err, models.ErrConfig)

	p := writeFile(t, "weights:\n  practice_area: 0.9\n  jurisdiction: 0.9\n")
	_, err = LoadRubric(p)
	require.ErrorIs(t, err, models.ErrConfig)

	r, err := LoadRubric("")
	require.NoError(t, err)
	require.Equal(t, 0.4, r.Weights.PracticeArea)
}

func TestShippedRubricLoads(t *testing.T) {
	r, err := LoadRubric(filepath.Join("..", "..", "configs", "rubric.yaml"))
	require.NoError(t, err)
	require.Len(t, r.PracticeAreas, 3)
	require.Equal(t, "ADA and digital accessibility", r.PracticeAreas["ada_accessibility"].Label)
	require.Contains(t, r.RegionalSynonyms["new york"], "s.d.n.y.")
	require.InDelta(t, 0.35, r.MinConfidence, 1e-9)
}
