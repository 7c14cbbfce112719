package sources

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"leadscout/internal/models"
)

// Batch is what one adapter returns for a window. Zero items is not an error
// and carries no note; Note is for partial problems such as skipped files.
type Batch struct {
	Items []models.IngestedItem `json:"items"`
	Note  string                `json:"note,omitempty"`
}

type Adapter interface {
	Name() string
	Fetch(ctx context.Context, since, until time.Time) (Batch, error)
}

// Fetched is the settled result of every adapter.
type Fetched struct {
	Items []models.IngestedItem `json:"items"`
	// Notes are failures and partial problems, reported as run errors.
	Notes []string `json:"notes,omitempty"`
	// Failed lists adapters that returned an error.
	Failed []string `json:"failed,omitempty"`
}

type outcome struct {
	name  string
	batch Batch
	err   error
}

// FetchAll runs every adapter with at most limit in flight and waits for all
// of them. A failing or panicking adapter becomes a note and never cancels
// its siblings. Results are ordered by adapter name.
func FetchAll(ctx context.Context, adapters []Adapter, window models.RunWindow, limit int, log *zap.Logger) Fetched {
	if log == nil {
		log = zap.NewNop()
	}
	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}
	var mu sync.Mutex
	outcomes := make([]outcome, 0, len(adapters))
	for _, a := range adapters {
		g.Go(func() error {
			o := fetchOne(ctx, a, window)
			mu.Lock()
			outcomes = append(outcomes, o)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	sort.SliceStable(outcomes, func(i, j int) bool { return outcomes[i].name < outcomes[j].name })
	var out Fetched
	for _, o := range outcomes {
		if o.err != nil {
			log.Warn("source fetch failed", zap.String("source", o.name), zap.Error(o.err))
			out.Notes = append(out.Notes, fmt.Sprintf("%s: %v", o.name, o.err))
			out.Failed = append(out.Failed, o.name)
			continue
		}
		if o.batch.Note != "" {
			log.Warn("source fetched with problems", zap.String("source", o.name), zap.String("note", o.batch.Note))
			out.Notes = append(out.Notes, fmt.Sprintf("%s: %s", o.name, o.batch.Note))
		}
		for _, it := range o.batch.Items {
			if it.Source == "" {
				it.Source = o.name
			}
			out.Items = append(out.Items, it)
		}
		log.Info("source fetched", zap.String("source", o.name), zap.Int("items", len(o.batch.Items)))
	}
	return out
}

func fetchOne(ctx context.Context, a Adapter, window models.RunWindow) (o outcome) {
	o.name = a.Name()
	defer func() {
		if r := recover(); r != nil {
			o.err = fmt.Errorf("adapter panicked: %v", r)
		}
	}()
	o.batch, o.err = a.Fetch(ctx, window.Since, window.Until)
	return o
}

// InWindow reports whether t falls in [since, until). Unknown dates are kept.
func InWindow(t *time.Time, since, until time.Time) bool {
	if t == nil {
		return true
	}
	if !since.IsZero() && t.Before(since) {
		return false
	}
	if !until.IsZero() && !t.Before(until) {
		return false
	}
	return true
}

// Static serves a fixed list of items, filtered by window.
type Static struct {
	SourceName string
	Items      []models.IngestedItem
	Err        error
}

func (s *Static) Name() string { return s.SourceName }

func (s *Static) Fetch(ctx context.Context, since, until time.Time) (Batch, error) {
	if err := ctx.Err(); err != nil {
		return Batch{}, err
	}
	if s.Err != nil {
		return Batch{}, s.Err
	}
	var b Batch
	for _, it := range s.Items {
		if InWindow(it.PublishedAt, since, until) {
			b.Items = append(b.Items, it)
		}
	}
	return b, nil
}
