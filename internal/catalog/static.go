package catalog

import (
	"context"

	"github.com/tallyprep/tallyprep/internal/model"
)

// StaticSource serves a fixed entry list. Useful for fixtures and tests.
type StaticSource struct {
	Err     error
	Entries []model.CatalogEntry
}

// Fetch returns the configured entries or error.
func (s *StaticSource) Fetch(_ context.Context) ([]model.CatalogEntry, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	return s.Entries, nil
}
