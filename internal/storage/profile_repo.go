package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"leadscout/internal/models"
)

type ProfileRepo struct {
	db *DB
}

func NewProfileRepo(db *DB) *ProfileRepo {
	return &ProfileRepo{db: db}
}

func (r *ProfileRepo) Profile(ctx context.Context, tenantID string) (models.TenantProfile, error) {
	p := models.TenantProfile{TenantID: tenantID}
	var synonyms []byte
	err := r.db.InTenant(ctx, tenantID, func(tx pgx.Tx) error {
		return tx.QueryRow(ctx, `
SELECT practice_areas, jurisdictions, keywords_include, keywords_exclude, min_confidence, regional_synonyms
FROM tenant_profiles WHERE tenant_id=$1`, tenantID).Scan(
			&p.PracticeAreas, &p.Jurisdictions, &p.KeywordsInclude, &p.KeywordsExclude, &p.MinConfidence, &synonyms)
	})
	if err != nil {
		return models.TenantProfile{}, notFound(err, "tenant profile", tenantID)
	}
	if len(synonyms) > 0 {
		if err := json.Unmarshal(synonyms, &p.RegionalSynonyms); err != nil {
			return models.TenantProfile{}, fmt.Errorf("decode regional synonyms: %w", err)
		}
	}
	return p, nil
}

func (r *ProfileRepo) SaveProfile(ctx context.Context, p models.TenantProfile) error {
	synonyms, err := json.Marshal(p.RegionalSynonyms)
	if err != nil {
		return fmt.Errorf("encode regional synonyms: %w", err)
	}
	if p.RegionalSynonyms == nil {
		synonyms = []byte("{}")
	}
	return r.db.InTenant(ctx, p.TenantID, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
INSERT INTO tenant_profiles (tenant_id, practice_areas, jurisdictions, keywords_include, keywords_exclude, min_confidence, regional_synonyms)
VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb)
ON CONFLICT (tenant_id)
DO UPDATE SET
  practice_areas = EXCLUDED.practice_areas,
  jurisdictions = EXCLUDED.jurisdictions,
  keywords_include = EXCLUDED.keywords_include,
  keywords_exclude = EXCLUDED.keywords_exclude,
  min_confidence = EXCLUDED.min_confidence,
  regional_synonyms = EXCLUDED.regional_synonyms,
  updated_at = NOW()`,
			p.TenantID, nonNil(p.PracticeAreas), nonNil(p.Jurisdictions), nonNil(p.KeywordsInclude), nonNil(p.KeywordsExclude),
			p.MinConfidence, string(synonyms))
		if err != nil {
			return fmt.Errorf("save tenant profile: %w", err)
		}
		return nil
	})
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
