package tenant

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"leadscout/internal/config"
	"leadscout/internal/models"
)

// Provider resolves a tenant's profile. Callers never mutate what it returns.
type Provider interface {
	Profile(ctx context.Context, tenantID string) (models.TenantProfile, error)
}

type tenantsFile struct {
	Tenants map[string]models.TenantProfile `yaml:"tenants"`
}

// FileProvider serves profiles from a YAML file keyed by tenant id.
type FileProvider struct {
	mu       sync.RWMutex
	path     string
	profiles map[string]models.TenantProfile
}

func LoadFile(path string) (*FileProvider, error) {
	p := &FileProvider{path: path}
	if err := p.Reload(); err != nil {
		return nil, err
	}
	return p, nil
}

// Reload re-reads the file; on error the previous profiles stay in place.
func (p *FileProvider) Reload() error {
	var f tenantsFile
	if err := config.ReadYAML(p.path, &f); err != nil {
		return &models.ConfigError{Field: "tenants", Reason: err.Error()}
	}
	profiles := make(map[string]models.TenantProfile, len(f.Tenants))
	for id, prof := range f.Tenants {
		id = strings.TrimSpace(id)
		if id == "" {
			return &models.ConfigError{Field: "tenants", Reason: "blank tenant id"}
		}
		prof.TenantID = id
		profiles[id] = prof
	}
	p.mu.Lock()
	p.profiles = profiles
	p.mu.Unlock()
	return nil
}

func (p *FileProvider) Profile(_ context.Context, tenantID string) (models.TenantProfile, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	prof, ok := p.profiles[tenantID]
	if !ok {
		return models.TenantProfile{}, fmt.Errorf("tenant profile %s: %w", tenantID, models.ErrNotFound)
	}
	return clone(prof), nil
}

func (p *FileProvider) Tenants() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]string, 0, len(p.profiles))
	for id := range p.profiles {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Static is a fixed in-memory provider.
type Static map[string]models.TenantProfile

func (s Static) Profile(_ context.Context, tenantID string) (models.TenantProfile, error) {
	prof, ok := s[tenantID]
	if !ok {
		return models.TenantProfile{}, fmt.Errorf("tenant profile %s: %w", tenantID, models.ErrNotFound)
	}
	prof.TenantID = tenantID
	return clone(prof), nil
}

func clone(p models.TenantProfile) models.TenantProfile {
	p.PracticeAreas = append([]string(nil), p.PracticeAreas...)
	p.Jurisdictions = append([]string(nil), p.Jurisdictions...)
	p.KeywordsInclude = append([]string(nil), p.KeywordsInclude...)
	p.KeywordsExclude = append([]string(nil), p.KeywordsExclude...)
	if p.MinConfidence != nil {
		v := *p.MinConfidence
		p.MinConfidence = &v
	}
	if p.RegionalSynonyms != nil {
		syn := make(map[string][]string, len(p.RegionalSynonyms))
		for k, v := range p.RegionalSynonyms {
			syn[k] = append([]string(nil), v...)
		}
		p.RegionalSynonyms = syn
	}
	return p
}
