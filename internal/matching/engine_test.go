package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tallyprep/tallyprep/internal/model"
)

func testCatalog() []model.CatalogEntry {
	names := []string{"Tomato", "Cherry Tomato", "Milk", "Bread", "Butter"}
	entries := make([]model.CatalogEntry, len(names))
	for i, name := range names {
		entries[i] = model.CatalogEntry{
			ID:               string(rune('a' + i)),
			CanonicalName:    name,
			NormalizedTokens: Tokenize(name),
			Seq:              i,
		}
	}
	return entries
}

func TestEngine_Match(t *testing.T) {
	engine := NewEngine(DefaultConfig())

	t.Run("exact name ranks first with full score", func(t *testing.T) {
		candidates := engine.Match("Tomato", testCatalog())
		require.NotEmpty(t, candidates)
		assert.Equal(t, "a", candidates[0].CatalogID)
		assert.InDelta(t, 1.0, candidates[0].Score, 0.0001)
		assert.Equal(t, 0, candidates[0].Rank)
	})

	t.Run("normalization invariance", func(t *testing.T) {
		clean := engine.Match("Tomato", testCatalog())
		noisy := engine.Match("  tomato  ", testCatalog())
		assert.Equal(t, clean, noisy)
	})

	t.Run("empty query yields no candidates", func(t *testing.T) {
		assert.Nil(t, engine.Match("   ", testCatalog()))
	})

	t.Run("empty catalog yields no candidates", func(t *testing.T) {
		assert.Nil(t, engine.Match("Tomato", nil))
	})

	t.Run("caps candidates at configured maximum", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.MaxCandidates = 2
		capped := NewEngine(cfg)
		assert.Len(t, capped.Match("Tomato", testCatalog()), 2)
	})

	t.Run("ranks assigned in order", func(t *testing.T) {
		candidates := engine.Match("Tomato", testCatalog())
		for i, c := range candidates {
			assert.Equal(t, i, c.Rank)
		}
	})
}

func TestEngine_Match_TieBreaks(t *testing.T) {
	engine := NewEngine(DefaultConfig())

	t.Run("higher priority wins on equal score", func(t *testing.T) {
		entries := []model.CatalogEntry{
			{ID: "low", CanonicalName: "Salt", Priority: 0, Seq: 0},
			{ID: "high", CanonicalName: "Salt", Priority: 5, Seq: 1},
		}
		candidates := engine.Match("Salt", entries)
		require.Len(t, candidates, 2)
		assert.Equal(t, "high", candidates[0].CatalogID)
	})

	t.Run("shorter canonical name wins next", func(t *testing.T) {
		// Same token overlap for the single-token query; the edit-distance
		// component already favors the shorter name, and the explicit length
		// tie-break keeps the order deterministic when scores match too.
		entries := []model.CatalogEntry{
			{ID: "long", CanonicalName: "Carrot Sticks", Seq: 0},
			{ID: "short", CanonicalName: "Carrot", Seq: 1},
		}
		candidates := engine.Match("Carrot", entries)
		require.Len(t, candidates, 2)
		assert.Equal(t, "short", candidates[0].CatalogID)
	})

	t.Run("insertion order breaks remaining ties", func(t *testing.T) {
		entries := []model.CatalogEntry{
			{ID: "first", CanonicalName: "Rice", Seq: 0},
			{ID: "second", CanonicalName: "Rice", Seq: 1},
		}
		candidates := engine.Match("Rice", entries)
		require.Len(t, candidates, 2)
		assert.Equal(t, "first", candidates[0].CatalogID)
	})
}

func TestEngine_Classify(t *testing.T) {
	engine := NewEngine(DefaultConfig())

	tests := []struct {
		name string
		top  *model.MatchCandidate
		want Classification
	}{
		{
			name: "nil candidate is unmatched",
			top:  nil,
			want: Unmatched,
		},
		{
			name: "exactly at auto threshold",
			top:  &model.MatchCandidate{Score: 0.85},
			want: AutoMatched,
		},
		{
			name: "just below auto threshold",
			top:  &model.MatchCandidate{Score: 0.8499},
			want: NeedsManualReview,
		},
		{
			name: "exactly at review threshold",
			top:  &model.MatchCandidate{Score: 0.40},
			want: NeedsManualReview,
		},
		{
			name: "just below review threshold",
			top:  &model.MatchCandidate{Score: 0.3999},
			want: Unmatched,
		},
		{
			name: "perfect score",
			top:  &model.MatchCandidate{Score: 1.0},
			want: AutoMatched,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, engine.Classify(tt.top))
		})
	}
}

func TestEngine_MatchAll(t *testing.T) {
	engine := NewEngine(DefaultConfig())

	t.Run("auto matches exact items and leaves junk unmatched", func(t *testing.T) {
		rec := model.NewReceipt()
		rec.Items = []model.LineItem{
			{ID: rec.AssignID(), RawName: "Milk", MatchStatus: model.StatusUnmatched},
			{ID: rec.AssignID(), RawName: "zzzqqq", MatchStatus: model.StatusUnmatched},
		}

		engine.MatchAll(rec, testCatalog())

		assert.Equal(t, model.StatusAutoMatched, rec.Items[0].MatchStatus)
		assert.Equal(t, "c", rec.Items[0].MatchedCatalogID)
		assert.Equal(t, model.StatusUnmatched, rec.Items[1].MatchStatus)
		assert.Empty(t, rec.Items[1].MatchedCatalogID)
	})

	t.Run("manual decisions are sticky", func(t *testing.T) {
		rec := model.NewReceipt()
		rec.Items = []model.LineItem{
			{
				ID:               rec.AssignID(),
				RawName:          "Milk",
				MatchStatus:      model.StatusManuallyMatched,
				MatchedCatalogID: "d",
			},
			{
				ID:          rec.AssignID(),
				RawName:     "Milk",
				MatchStatus: model.StatusRejected,
			},
		}

		engine.MatchAll(rec, testCatalog())

		assert.Equal(t, model.StatusManuallyMatched, rec.Items[0].MatchStatus)
		assert.Equal(t, "d", rec.Items[0].MatchedCatalogID)
		assert.Equal(t, model.StatusRejected, rec.Items[1].MatchStatus)
	})

	t.Run("empty catalog clears stale auto matches", func(t *testing.T) {
		rec := model.NewReceipt()
		rec.Items = []model.LineItem{
			{
				ID:               rec.AssignID(),
				RawName:          "Milk",
				MatchStatus:      model.StatusAutoMatched,
				MatchedCatalogID: "c",
				MatchScore:       1.0,
			},
		}

		engine.MatchAll(rec, nil)

		assert.Equal(t, model.StatusUnmatched, rec.Items[0].MatchStatus)
		assert.Empty(t, rec.Items[0].MatchedCatalogID)
		assert.Zero(t, rec.Items[0].MatchScore)
	})
}
