// Package matching maps free-text line item names to catalog entries using
// normalized fuzzy comparison.
package matching

import (
	"sort"

	"github.com/tallyprep/tallyprep/internal/model"
)

// Classification buckets a top candidate by confidence.
type Classification string

// Classification results.
const (
	AutoMatched       Classification = "AUTO_MATCHED"
	NeedsManualReview Classification = "NEEDS_MANUAL_REVIEW"
	Unmatched         Classification = "UNMATCHED"
)

// Config holds the tunable scoring policy. Weights and thresholds are
// policy values, not correctness invariants.
type Config struct {
	TokenWeight     float64
	EditWeight      float64
	AutoThreshold   float64
	ReviewThreshold float64
	MaxCandidates   int
}

// DefaultConfig returns the default scoring policy.
func DefaultConfig() Config {
	return Config{
		TokenWeight:     0.6,
		EditWeight:      0.4,
		AutoThreshold:   0.85,
		ReviewThreshold: 0.40,
		MaxCandidates:   5,
	}
}

// Engine scores receipt item names against a catalog.
type Engine struct {
	cfg Config
}

// NewEngine creates a matching engine with the given policy.
func NewEngine(cfg Config) *Engine {
	if cfg.MaxCandidates <= 0 {
		cfg.MaxCandidates = DefaultConfig().MaxCandidates
	}
	return &Engine{cfg: cfg}
}

// Match scores rawName against every catalog entry and returns ranked
// candidates, best first. Ranking is deterministic: score descending, then
// higher entry priority, then shorter canonical name, then insertion order.
func (e *Engine) Match(rawName string, entries []model.CatalogEntry) []model.MatchCandidate {
	query := Normalize(rawName)
	queryTokens := Tokenize(rawName)
	if query == "" || len(entries) == 0 {
		return nil
	}

	type scored struct {
		entry model.CatalogEntry
		score float64
	}

	results := make([]scored, 0, len(entries))
	for _, entry := range entries {
		tokens := entry.NormalizedTokens
		if tokens == nil {
			tokens = Tokenize(entry.CanonicalName)
		}
		overlap := tokenOverlap(queryTokens, tokens)
		edit := editSimilarity(query, Normalize(entry.CanonicalName))
		score := e.cfg.TokenWeight*overlap + e.cfg.EditWeight*edit
		results = append(results, scored{entry: entry, score: score})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].score != results[j].score {
			return results[i].score > results[j].score
		}
		if results[i].entry.Priority != results[j].entry.Priority {
			return results[i].entry.Priority > results[j].entry.Priority
		}
		if li, lj := len(results[i].entry.CanonicalName), len(results[j].entry.CanonicalName); li != lj {
			return li < lj
		}
		return results[i].entry.Seq < results[j].entry.Seq
	})

	limit := e.cfg.MaxCandidates
	if limit > len(results) {
		limit = len(results)
	}

	candidates := make([]model.MatchCandidate, 0, limit)
	for i := 0; i < limit; i++ {
		candidates = append(candidates, model.MatchCandidate{
			CatalogID: results[i].entry.ID,
			Score:     results[i].score,
			Rank:      i,
		})
	}
	return candidates
}

// Classify buckets the top candidate of a query. A nil candidate means the
// query produced no candidates at all.
func (e *Engine) Classify(top *model.MatchCandidate) Classification {
	if top == nil {
		return Unmatched
	}
	switch {
	case top.Score >= e.cfg.AutoThreshold:
		return AutoMatched
	case top.Score >= e.cfg.ReviewThreshold:
		return NeedsManualReview
	default:
		return Unmatched
	}
}

// MatchItem runs Match and Classify for one line item, recording an auto
// match or clearing a stale one. Sticky manual decisions are left alone.
// Items classified NeedsManualReview keep their candidate surfaced via
// MatchScore but stay unmatched until the user confirms.
func (e *Engine) MatchItem(item *model.LineItem, entries []model.CatalogEntry) {
	if item.MatchStatus.Manual() {
		return
	}

	candidates := e.Match(item.RawName, entries)
	if len(candidates) == 0 {
		item.MatchStatus = model.StatusUnmatched
		item.MatchedCatalogID = ""
		item.MatchScore = 0
		return
	}

	top := candidates[0]
	item.MatchScore = top.Score
	if e.Classify(&top) == AutoMatched {
		item.MatchStatus = model.StatusAutoMatched
		item.MatchedCatalogID = top.CatalogID
	} else {
		item.MatchStatus = model.StatusUnmatched
		item.MatchedCatalogID = ""
	}
}

// MatchAll applies MatchItem to every line item on the receipt.
func (e *Engine) MatchAll(r *model.Receipt, entries []model.CatalogEntry) {
	for i := range r.Items {
		e.MatchItem(&r.Items[i], entries)
	}
}
