package model

// CatalogEntry represents one canonical ingredient in the reference catalog.
// Entries are immutable once loaded; receipts reference them by ID only.
type CatalogEntry struct {
	ID               string
	CanonicalName    string
	Unit             string
	Category         string
	NormalizedTokens []string
	Priority         int
	Seq              int
}

// MatchCandidate is a transient ranked match for one query. It is recomputed
// per query and never persisted.
type MatchCandidate struct {
	CatalogID string
	Score     float64
	Rank      int
}
