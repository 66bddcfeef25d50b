// Package catalog loads and caches the canonical ingredient reference list.
package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/tallyprep/tallyprep/internal/common"
	"github.com/tallyprep/tallyprep/internal/matching"
	"github.com/tallyprep/tallyprep/internal/model"
)

// Source fetches catalog entries from a backing reference store.
type Source interface {
	Fetch(ctx context.Context) ([]model.CatalogEntry, error)
}

// Snapshot is an immutable view of the catalog. Once built it is safe to
// share across sessions without locking.
type Snapshot struct {
	byID    map[string]model.CatalogEntry
	entries []model.CatalogEntry
}

// Entries returns all catalog entries in insertion order.
func (s *Snapshot) Entries() []model.CatalogEntry {
	return s.entries
}

// Lookup finds an entry by ID.
func (s *Snapshot) Lookup(id string) (model.CatalogEntry, bool) {
	entry, ok := s.byID[id]
	return entry, ok
}

// Len returns the number of entries.
func (s *Snapshot) Len() int {
	return len(s.entries)
}

// Provider serves a cached catalog snapshot. The first load is exclusive so
// concurrent first requests trigger exactly one fetch; later calls are
// served from cache until Refresh.
type Provider struct {
	source   Source
	logger   *slog.Logger
	snapshot *Snapshot
	mu       sync.Mutex
}

// NewProvider creates a catalog provider over the given source.
func NewProvider(source Source, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{source: source, logger: logger}
}

// Snapshot returns the cached snapshot, fetching it on first use. A fetch
// failure is reported as CatalogUnavailable; callers degrade to no
// auto-matching rather than failing the session.
func (p *Provider) Snapshot(ctx context.Context) (*Snapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.snapshot != nil {
		return p.snapshot, nil
	}
	return p.loadLocked(ctx)
}

// Refresh bypasses the cache and re-fetches from the source. The previous
// snapshot keeps serving if the fetch fails.
func (p *Provider) Refresh(ctx context.Context) (*Snapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	snapshot, err := p.loadLocked(ctx)
	if err != nil && p.snapshot != nil {
		return p.snapshot, err
	}
	return snapshot, err
}

// Lookup finds a catalog entry by ID in the cached snapshot.
func (p *Provider) Lookup(ctx context.Context, id string) (model.CatalogEntry, error) {
	snapshot, err := p.Snapshot(ctx)
	if err != nil {
		return model.CatalogEntry{}, err
	}
	entry, ok := snapshot.Lookup(id)
	if !ok {
		return model.CatalogEntry{}, fmt.Errorf("catalog entry %q: %w", id, common.ErrItemNotFound)
	}
	return entry, nil
}

func (p *Provider) loadLocked(ctx context.Context) (*Snapshot, error) {
	entries, err := p.source.Fetch(ctx)
	if err != nil {
		p.logger.Error("catalog fetch failed", "error", err)
		return nil, fmt.Errorf("%w: %v", common.ErrCatalogUnavailable, err)
	}

	snapshot := buildSnapshot(entries)
	p.snapshot = snapshot
	p.logger.Info("catalog loaded", "entries", snapshot.Len())
	return snapshot, nil
}

func buildSnapshot(entries []model.CatalogEntry) *Snapshot {
	snapshot := &Snapshot{
		entries: make([]model.CatalogEntry, len(entries)),
		byID:    make(map[string]model.CatalogEntry, len(entries)),
	}
	for i, entry := range entries {
		entry.Seq = i
		if entry.NormalizedTokens == nil {
			entry.NormalizedTokens = matching.Tokenize(entry.CanonicalName)
		}
		snapshot.entries[i] = entry
		snapshot.byID[entry.ID] = entry
	}
	return snapshot
}
