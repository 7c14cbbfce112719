// Package dropdir reads items dropped into <root>/<tenant>/ as JSON records
// or raw PDF uploads.
package dropdir

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"leadscout/internal/models"
	"leadscout/internal/sources"
	"leadscout/internal/util"
)

const UploadSource = "upload"

type Adapter struct {
	root     string
	tenantID string
}

func New(root, tenantID string) *Adapter {
	return &Adapter{root: root, tenantID: tenantID}
}

func (a *Adapter) Name() string { return "dropdir" }

func (a *Adapter) Dir() string {
	return util.SafeJoin(a.root, a.tenantID)
}

func (a *Adapter) Fetch(ctx context.Context, since, until time.Time) (sources.Batch, error) {
	dir := a.Dir()
	paths, err := util.ListFiles(dir, ".json", ".pdf")
	if err != nil {
		return sources.Batch{}, err
	}
	var b sources.Batch
	var skipped []string
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return sources.Batch{}, err
		}
		var items []models.IngestedItem
		switch strings.ToLower(filepath.Ext(path)) {
		case ".json":
			items, err = readJSON(path)
		case ".pdf":
			items, err = readPDF(path)
		}
		if err != nil {
			skipped = append(skipped, fmt.Sprintf("%s (%v)", filepath.Base(path), err))
			continue
		}
		for _, it := range items {
			if it.ObjectKey == "" {
				it.ObjectKey = filepath.Join(a.tenantID, filepath.Base(path))
			}
			if sources.InWindow(it.PublishedAt, since, until) {
				b.Items = append(b.Items, it)
			}
		}
	}
	if len(skipped) > 0 {
		b.Note = "unreadable files: " + strings.Join(skipped, ", ")
	}
	return b, nil
}

// readJSON accepts a single item or an array of items.
func readJSON(path string) ([]models.IngestedItem, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '[' {
		var items []models.IngestedItem
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, fmt.Errorf("decode items: %w", err)
		}
		return items, nil
	}
	var it models.IngestedItem
	if err := json.Unmarshal(raw, &it); err != nil {
		return nil, fmt.Errorf("decode item: %w", err)
	}
	return []models.IngestedItem{it}, nil
}

func readPDF(path string) ([]models.IngestedItem, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	mod := info.ModTime().UTC()
	name := filepath.Base(path)
	return []models.IngestedItem{{
		Source:      UploadSource,
		SourceRef:   name,
		Title:       strings.TrimSuffix(name, filepath.Ext(name)),
		PublishedAt: &mod,
		MIMEType:    "application/pdf",
		RawPayload:  raw,
	}}, nil
}
