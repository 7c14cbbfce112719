package brief

import (
	"encoding/json"
	"fmt"
	"strings"

	"leadscout/internal/models"
)

// Parse decodes the model output. Verification happens separately; Parse only
// rejects output that is not the expected JSON shape.
func Parse(raw string) ([]models.BriefBullet, error) {
	raw = stripCodeFence(strings.TrimSpace(raw))
	if raw == "" {
		return nil, fmt.Errorf("empty brief output")
	}
	var payload struct {
		Bullets []models.BriefBullet `json:"bullets"`
	}
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, fmt.Errorf("decode brief: %w", err)
	}
	return payload.Bullets, nil
}

func stripCodeFence(s string) string {
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(s, "```")
	}
	return strings.TrimSpace(s)
}
