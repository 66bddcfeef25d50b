package dispatch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tallyprep/tallyprep/internal/catalog"
	"github.com/tallyprep/tallyprep/internal/common"
	"github.com/tallyprep/tallyprep/internal/export"
	"github.com/tallyprep/tallyprep/internal/matching"
	"github.com/tallyprep/tallyprep/internal/model"
	"github.com/tallyprep/tallyprep/internal/session"
)

// fakeExporter records export calls and fails on demand.
type fakeExporter struct {
	mu      sync.Mutex
	err     error
	rows    []export.Row
	summary export.Summary
	calls   int
}

func (f *fakeExporter) Export(_ context.Context, rows []export.Row, summary export.Summary) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return f.err
	}
	f.rows = rows
	f.summary = summary
	return nil
}

func testCatalogSource() *catalog.StaticSource {
	return &catalog.StaticSource{Entries: []model.CatalogEntry{
		{ID: "tomato", CanonicalName: "Tomato"},
		{ID: "cherry", CanonicalName: "Cherry Tomato"},
		{ID: "milk", CanonicalName: "Milk"},
		{ID: "bread", CanonicalName: "Bread"},
		{ID: "butter", CanonicalName: "Butter"},
	}}
}

type fixture struct {
	dispatcher *Dispatcher
	store      *session.Store
	exporter   *fakeExporter
}

func newFixture(t *testing.T, source catalog.Source, pageSize int) *fixture {
	t.Helper()

	store := session.NewStore(session.DefaultStoreConfig())
	t.Cleanup(store.Stop)

	exporter := &fakeExporter{}
	provider := catalog.NewProvider(source, nil)
	matcher := matching.NewEngine(matching.DefaultConfig())

	return &fixture{
		dispatcher: New(store, provider, matcher, exporter, pageSize, nil),
		store:      store,
		exporter:   exporter,
	}
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// balancedReceipt is milk plus an unrecognizable tomato line summing to the
// declared total.
func balancedReceipt() *model.Receipt {
	rec := model.NewReceipt()
	rec.Items = []model.LineItem{
		{ID: rec.AssignID(), RawName: "Milk", Quantity: dec("2"), UnitPrice: dec("1.50")},
		{ID: rec.AssignID(), RawName: "Tomatoes", Quantity: dec("1"), UnitPrice: dec("2.00")},
	}
	rec.DeclaredTotal = dec("5.00")
	return rec
}

func (f *fixture) start(t *testing.T, key string, rec *model.Receipt) *session.Session {
	t.Helper()
	resp, err := f.dispatcher.StartSession(context.Background(), key, rec)
	require.NoError(t, err)
	require.Equal(t, session.StateReviewing, resp.NewState)

	sess, err := f.store.Get(key)
	require.NoError(t, err)
	return sess
}

func (f *fixture) do(t *testing.T, key string, action Action, payload map[string]string) *Response {
	t.Helper()
	resp, err := f.dispatcher.Dispatch(context.Background(), Request{
		SessionKey: key,
		Action:     action,
		Payload:    payload,
	})
	require.NoError(t, err)
	return resp
}

func (f *fixture) fail(t *testing.T, key string, action Action, payload map[string]string) (*Response, error) {
	t.Helper()
	resp, err := f.dispatcher.Dispatch(context.Background(), Request{
		SessionKey: key,
		Action:     action,
		Payload:    payload,
	})
	require.Error(t, err)
	return resp, err
}

func TestDispatcher_StartSession(t *testing.T) {
	f := newFixture(t, testCatalogSource(), 0)

	resp, err := f.dispatcher.StartSession(context.Background(), "user-1", balancedReceipt())
	require.NoError(t, err)

	assert.Equal(t, session.StateReviewing, resp.NewState)
	require.NotNil(t, resp.Render)
	assert.Equal(t, RenderOverview, resp.Render.Kind)
	assert.Len(t, resp.Render.Items, 2)
	assert.True(t, resp.Render.Balanced)
}

func TestDispatcher_UnknownSession(t *testing.T) {
	f := newFixture(t, testCatalogSource(), 0)

	resp, err := f.fail(t, "ghost", ActionAddRow, nil)
	assert.ErrorIs(t, err, common.ErrSessionNotFound)
	assert.Equal(t, "SessionNotFound", resp.ErrorKind)
}

func TestDispatcher_SessionBusy(t *testing.T) {
	f := newFixture(t, testCatalogSource(), 0)
	sess := f.start(t, "user-1", balancedReceipt())

	require.True(t, sess.TryLock())
	defer sess.Unlock()

	resp, err := f.fail(t, "user-1", ActionAddRow, nil)
	assert.ErrorIs(t, err, common.ErrSessionBusy)
	assert.Equal(t, "SessionBusy", resp.ErrorKind)
	assert.Empty(t, resp.NewState)
}

func TestDispatcher_InvalidTransition(t *testing.T) {
	f := newFixture(t, testCatalogSource(), 0)
	f.start(t, "user-1", balancedReceipt())

	// edit_field is only legal while editing an item.
	resp, err := f.fail(t, "user-1", ActionEditField, map[string]string{
		PayloadField: "quantity",
		PayloadValue: "3",
	})
	assert.ErrorIs(t, err, common.ErrInvalidTransition)
	assert.Equal(t, session.StateReviewing, resp.NewState)

	// Terminal sessions accept nothing, cancel included.
	f.do(t, "user-1", ActionCancel, nil)
	_, err = f.fail(t, "user-1", ActionCancel, nil)
	assert.ErrorIs(t, err, common.ErrSessionNotFound)
}

func TestDispatcher_RowEditing(t *testing.T) {
	f := newFixture(t, testCatalogSource(), 0)
	sess := f.start(t, "user-1", balancedReceipt())

	t.Run("add and delete rows", func(t *testing.T) {
		resp := f.do(t, "user-1", ActionAddRow, nil)
		assert.Len(t, resp.Render.Items, 3)
		newID := resp.Render.Items[2].ID

		resp = f.do(t, "user-1", ActionDeleteRow, map[string]string{PayloadItem: "3"})
		assert.Len(t, resp.Render.Items, 2)

		// IDs are never reused.
		resp = f.do(t, "user-1", ActionAddRow, nil)
		assert.Greater(t, resp.Render.Items[2].ID, newID)
		f.do(t, "user-1", ActionDeleteRow, map[string]string{PayloadItem: "4"})
	})

	t.Run("delete missing row keeps state", func(t *testing.T) {
		resp, err := f.fail(t, "user-1", ActionDeleteRow, map[string]string{PayloadItem: "99"})
		assert.ErrorIs(t, err, common.ErrItemNotFound)
		assert.Equal(t, session.StateReviewing, resp.NewState)
		assert.Len(t, sess.Receipt.Items, 2)
	})

	t.Run("edit field round trip", func(t *testing.T) {
		resp := f.do(t, "user-1", ActionBeginEdit, map[string]string{PayloadItem: "1"})
		assert.Equal(t, session.StateEditingItem, resp.NewState)
		assert.Equal(t, RenderEditPrompt, resp.Render.Kind)
		assert.Equal(t, "Milk", resp.Render.ItemName)

		resp = f.do(t, "user-1", ActionEditField, map[string]string{
			PayloadField: "quantity",
			PayloadValue: "3",
		})
		assert.Equal(t, session.StateReviewing, resp.NewState)
		assert.True(t, dec("4.50").Equal(sess.Receipt.Items[0].LineTotal))
		assert.False(t, resp.Render.Balanced)
	})

	t.Run("bad edit value stays in editing state", func(t *testing.T) {
		f.do(t, "user-1", ActionBeginEdit, map[string]string{PayloadItem: "1"})
		resp, err := f.fail(t, "user-1", ActionEditField, map[string]string{
			PayloadField: "quantity",
			PayloadValue: "minus one",
		})
		assert.ErrorIs(t, err, common.ErrInvalidValue)
		assert.Equal(t, session.StateEditingItem, resp.NewState)

		// A corrected value still applies.
		resp = f.do(t, "user-1", ActionEditField, map[string]string{
			PayloadField: "quantity",
			PayloadValue: "2",
		})
		assert.Equal(t, session.StateReviewing, resp.NewState)
		assert.True(t, resp.Render.Balanced)
	})

	t.Run("declared total actions", func(t *testing.T) {
		resp := f.do(t, "user-1", ActionSetDeclaredTotal, map[string]string{PayloadValue: "10.00"})
		assert.False(t, resp.Render.Balanced)

		resp = f.do(t, "user-1", ActionAutoCalculateTotal, nil)
		assert.True(t, resp.Render.Balanced)
	})
}

func TestDispatcher_MatchingFlow(t *testing.T) {
	f := newFixture(t, testCatalogSource(), 0)
	sess := f.start(t, "user-1", balancedReceipt())

	// Milk auto-matches; Tomatoes needs a manual decision.
	resp := f.do(t, "user-1", ActionStartMatching, nil)
	assert.Equal(t, session.StateSelectingMatch, resp.NewState)
	assert.Equal(t, RenderCandidatePage, resp.Render.Kind)
	assert.Equal(t, 2, resp.Render.ItemID)
	assert.Equal(t, "Tomatoes", resp.Render.ItemName)
	require.NotEmpty(t, resp.Render.Candidates)
	assert.Equal(t, "tomato", resp.Render.Candidates[0].CatalogID)
	assert.Equal(t, "Tomato", resp.Render.Candidates[0].Name)

	assert.Equal(t, model.StatusAutoMatched, sess.Receipt.Items[0].MatchStatus)
	assert.Equal(t, "milk", sess.Receipt.Items[0].MatchedCatalogID)

	// Pick, back out once, pick again, confirm.
	resp = f.do(t, "user-1", ActionSelectCandidate, map[string]string{PayloadCandidate: "tomato"})
	assert.Equal(t, session.StateManualMatchConfirm, resp.NewState)
	assert.Equal(t, RenderConfirmMatch, resp.Render.Kind)
	assert.Equal(t, "Tomato", resp.Render.CandidateName)

	resp = f.do(t, "user-1", ActionRejectAndRetry, nil)
	assert.Equal(t, session.StateSelectingMatch, resp.NewState)
	assert.Equal(t, RenderCandidatePage, resp.Render.Kind)

	f.do(t, "user-1", ActionSelectCandidate, map[string]string{PayloadCandidate: "tomato"})
	resp = f.do(t, "user-1", ActionConfirmMatch, nil)
	assert.Equal(t, session.StateReviewingMatches, resp.NewState)
	assert.Equal(t, RenderMatchSummary, resp.Render.Kind)

	item := sess.Receipt.Item(2)
	assert.Equal(t, model.StatusManuallyMatched, item.MatchStatus)
	assert.Equal(t, "tomato", item.MatchedCatalogID)
	assert.Equal(t, 1, resp.Render.Summary.AutoMatched)
	assert.Equal(t, 1, resp.Render.Summary.ManuallyMatched)
}

func TestDispatcher_SkipItem(t *testing.T) {
	f := newFixture(t, testCatalogSource(), 0)
	sess := f.start(t, "user-1", balancedReceipt())

	f.do(t, "user-1", ActionStartMatching, nil)
	resp := f.do(t, "user-1", ActionSkipItem, nil)
	assert.Equal(t, session.StateReviewingMatches, resp.NewState)

	item := sess.Receipt.Item(2)
	assert.Equal(t, model.StatusRejected, item.MatchStatus)
	assert.Empty(t, item.MatchedCatalogID)

	// Re-running auto match leaves the rejection alone.
	f.do(t, "user-1", ActionAutoMatchAll, nil)
	assert.Equal(t, model.StatusRejected, item.MatchStatus)
}

func TestDispatcher_Pagination(t *testing.T) {
	f := newFixture(t, testCatalogSource(), 1)
	f.start(t, "user-1", balancedReceipt())

	resp := f.do(t, "user-1", ActionStartMatching, nil)
	require.Len(t, resp.Render.Candidates, 1)
	assert.Equal(t, 0, resp.Render.Page)
	assert.Equal(t, 4, resp.Render.MaxPage)
	firstPageID := resp.Render.Candidates[0].CatalogID

	resp = f.do(t, "user-1", ActionPaginate, map[string]string{PayloadDirection: "next"})
	assert.Equal(t, 1, resp.Render.Page)
	require.Len(t, resp.Render.Candidates, 1)
	assert.NotEqual(t, firstPageID, resp.Render.Candidates[0].CatalogID)

	t.Run("stale candidate from a previous page is rejected", func(t *testing.T) {
		resp, err := f.fail(t, "user-1", ActionSelectCandidate, map[string]string{
			PayloadCandidate: firstPageID,
		})
		assert.ErrorIs(t, err, common.ErrInvalidValue)
		assert.Equal(t, session.StateSelectingMatch, resp.NewState)
		assert.Equal(t, "that choice is no longer on the current page, pick again", resp.UserMessage)
	})

	t.Run("paging past the end clamps", func(t *testing.T) {
		for i := 0; i < 10; i++ {
			resp = f.do(t, "user-1", ActionPaginate, map[string]string{PayloadDirection: "next"})
		}
		assert.Equal(t, 4, resp.Render.Page)

		for i := 0; i < 10; i++ {
			resp = f.do(t, "user-1", ActionPaginate, map[string]string{PayloadDirection: "prev"})
		}
		assert.Equal(t, 0, resp.Render.Page)
	})

	t.Run("unknown direction fails", func(t *testing.T) {
		_, err := f.fail(t, "user-1", ActionPaginate, map[string]string{PayloadDirection: "sideways"})
		assert.ErrorIs(t, err, common.ErrInvalidValue)
	})

	t.Run("candidate on the current page is selectable", func(t *testing.T) {
		resp := f.do(t, "user-1", ActionSelectCandidate, map[string]string{
			PayloadCandidate: firstPageID,
		})
		assert.Equal(t, session.StateManualMatchConfirm, resp.NewState)
	})
}

func TestDispatcher_Export(t *testing.T) {
	t.Run("unbalanced receipt is blocked without force", func(t *testing.T) {
		f := newFixture(t, testCatalogSource(), 0)
		rec := balancedReceipt()
		rec.DeclaredTotal = dec("10.00")
		f.start(t, "user-1", rec)

		f.do(t, "user-1", ActionStartMatching, nil)
		f.do(t, "user-1", ActionSkipItem, nil)

		resp, err := f.fail(t, "user-1", ActionConfirmExport, nil)
		assert.ErrorIs(t, err, common.ErrUnbalancedReceipt)
		assert.Equal(t, session.StateReviewingMatches, resp.NewState)
		assert.Equal(t, "declared and computed totals do not agree, fix the receipt or force the export", resp.UserMessage)
		assert.Zero(t, f.exporter.calls)

		resp2 := f.do(t, "user-1", ActionConfirmExport, map[string]string{PayloadForce: "true"})
		assert.Equal(t, session.StateDone, resp2.NewState)
		assert.Equal(t, RenderExportResult, resp2.Render.Kind)
		assert.Len(t, f.exporter.rows, 2)
	})

	t.Run("export failure is retryable", func(t *testing.T) {
		f := newFixture(t, testCatalogSource(), 0)
		f.start(t, "user-1", balancedReceipt())
		f.do(t, "user-1", ActionStartMatching, nil)
		f.do(t, "user-1", ActionSkipItem, nil)

		f.exporter.err = errors.New("quota exceeded")
		resp, err := f.fail(t, "user-1", ActionConfirmExport, nil)
		assert.ErrorIs(t, err, common.ErrExportFailed)
		assert.Equal(t, session.StateReviewingMatches, resp.NewState)

		f.exporter.err = nil
		resp2 := f.do(t, "user-1", ActionConfirmExport, nil)
		assert.Equal(t, session.StateDone, resp2.NewState)
		assert.Equal(t, 2, f.exporter.calls)
		assert.Equal(t, 1, f.exporter.summary.Rejected)
	})

	t.Run("no exporter configured", func(t *testing.T) {
		store := session.NewStore(session.DefaultStoreConfig())
		t.Cleanup(store.Stop)
		provider := catalog.NewProvider(testCatalogSource(), nil)
		d := New(store, provider, matching.NewEngine(matching.DefaultConfig()), nil, 0, nil)

		_, err := d.StartSession(context.Background(), "user-1", balancedReceipt())
		require.NoError(t, err)
		_, err = d.Dispatch(context.Background(), Request{SessionKey: "user-1", Action: ActionStartMatching})
		require.NoError(t, err)
		_, err = d.Dispatch(context.Background(), Request{SessionKey: "user-1", Action: ActionSkipItem})
		require.NoError(t, err)

		_, err = d.Dispatch(context.Background(), Request{SessionKey: "user-1", Action: ActionConfirmExport})
		assert.ErrorIs(t, err, common.ErrExportFailed)
	})
}

func TestDispatcher_CatalogUnavailable(t *testing.T) {
	f := newFixture(t, &catalog.StaticSource{Err: errors.New("connection refused")}, 0)
	sess := f.start(t, "user-1", balancedReceipt())

	// Matching degrades: everything stays unmatched for manual review.
	resp := f.do(t, "user-1", ActionStartMatching, nil)
	assert.Equal(t, session.StateReviewingMatches, resp.NewState)
	for _, item := range sess.Receipt.Items {
		assert.Equal(t, model.StatusUnmatched, item.MatchStatus)
	}
	assert.Equal(t, 2, resp.Render.Summary.Unmatched)
}

func TestDispatcher_StartMatchingEmptyReceipt(t *testing.T) {
	f := newFixture(t, testCatalogSource(), 0)
	f.start(t, "user-1", model.NewReceipt())

	resp, err := f.fail(t, "user-1", ActionStartMatching, nil)
	assert.ErrorIs(t, err, common.ErrInvalidTransition)
	assert.Equal(t, "add at least one line item first", resp.UserMessage)
}

func TestDispatcher_Cancel(t *testing.T) {
	f := newFixture(t, testCatalogSource(), 0)
	f.start(t, "user-1", balancedReceipt())

	resp := f.do(t, "user-1", ActionCancel, nil)
	assert.Equal(t, session.StateCancelled, resp.NewState)
	assert.Equal(t, RenderClosed, resp.Render.Kind)

	_, err := f.store.Get("user-1")
	assert.ErrorIs(t, err, common.ErrSessionNotFound)
}

// Concurrent actions on one session either apply fully or are rejected busy;
// the item count must equal the number of accepted add_row actions. Session
// lookups run alongside to contend with in-flight transitions the way the
// serve loop and sweep do.
func TestDispatcher_ConcurrentActionsNoLostUpdates(t *testing.T) {
	f := newFixture(t, testCatalogSource(), 0)
	sess := f.start(t, "user-1", balancedReceipt())
	before := len(sess.Receipt.Items)

	const workers = 16
	var accepted, busy atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = f.store.Get("user-1")
			_, err := f.dispatcher.Dispatch(context.Background(), Request{
				SessionKey: "user-1",
				Action:     ActionAddRow,
			})
			_, _ = f.store.Get("user-1")
			switch {
			case err == nil:
				accepted.Add(1)
			case errors.Is(err, common.ErrSessionBusy):
				busy.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, workers, accepted.Load()+busy.Load())
	assert.Equal(t, before+int(accepted.Load()), len(sess.Receipt.Items))
}
