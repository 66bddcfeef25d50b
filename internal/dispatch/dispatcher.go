// Package dispatch validates discrete user actions against the session state
// machine and applies them to the receipt under edit.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/tallyprep/tallyprep/internal/catalog"
	"github.com/tallyprep/tallyprep/internal/common"
	"github.com/tallyprep/tallyprep/internal/export"
	"github.com/tallyprep/tallyprep/internal/matching"
	"github.com/tallyprep/tallyprep/internal/model"
	"github.com/tallyprep/tallyprep/internal/receipt"
	"github.com/tallyprep/tallyprep/internal/session"
)

// Request is one incoming action from the transport layer.
type Request struct {
	Payload    map[string]string
	SessionKey string
	Action     Action
}

// Response describes the outcome of one action. On failure, UserMessage
// carries text the transport layer may show the user as-is.
type Response struct {
	Render      *RenderModel
	NewState    session.State
	ErrorKind   string
	UserMessage string
}

// Dispatcher routes actions to their handlers. It owns no state itself; the
// session store, catalog provider, matcher, and exporter are injected.
type Dispatcher struct {
	sessions *session.Store
	provider *catalog.Provider
	matcher  *matching.Engine
	exporter export.Exporter
	logger   *slog.Logger
	pageSize int
}

// New creates a dispatcher over the given collaborators. The exporter may be
// nil, in which case confirm_export fails as ExportFailed until one is set.
func New(sessions *session.Store, provider *catalog.Provider, matcher *matching.Engine, exporter export.Exporter, pageSize int, logger *slog.Logger) *Dispatcher {
	if pageSize <= 0 {
		pageSize = 5
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		sessions: sessions,
		provider: provider,
		matcher:  matcher,
		exporter: exporter,
		pageSize: pageSize,
		logger:   logger,
	}
}

// StartSession begins a fresh editing session for the user with the receipt
// produced by the recognition boundary. Any prior session for the user is
// discarded.
func (d *Dispatcher) StartSession(ctx context.Context, key string, rec *model.Receipt) (*Response, error) {
	sess, err := d.sessions.Create(key)
	if err != nil {
		return nil, err
	}
	// Create hands the session over with its transition lock held.
	defer sess.Unlock()

	if rec == nil {
		rec = model.NewReceipt()
	}
	receipt.Recompute(rec)
	sess.Receipt = rec
	sess.State = session.StateReviewing

	d.logger.Info("session started", "session", key, "items", len(rec.Items))

	snapshot := d.snapshot(ctx)
	return &Response{
		NewState: sess.State,
		Render:   overviewRender("receipt loaded", rec, snapshot, receipt.IsBalanced(rec)),
	}, nil
}

// Dispatch validates and applies one action. Transitions on the same session
// are serialized by the session's transition lock, acquired together with the
// lookup; a second action arriving while one is in flight is rejected as
// SessionBusy. Action-level failures leave the session state unchanged and
// are reported via ErrorKind and UserMessage.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (*Response, error) {
	sess, err := d.sessions.Acquire(req.SessionKey)
	if err != nil {
		return failure(err, ""), err
	}
	defer sess.Unlock()

	if !legalIn(req.Action, sess.State) {
		err := fmt.Errorf("action %q not legal in state %q: %w", req.Action, sess.State, common.ErrInvalidTransition)
		return failure(err, sess.State), err
	}

	render, err := d.apply(ctx, sess, req)
	if err != nil {
		d.logger.Warn("action failed",
			"session", req.SessionKey,
			"action", req.Action,
			"state", sess.State,
			"error", err)
		return failure(err, sess.State), err
	}

	sess.Touch()
	return &Response{NewState: sess.State, Render: render}, nil
}

// apply runs the handler for one legal action. Handlers mutate the session
// and receipt, recompute derived fields synchronously, and return the render
// model; on error they must leave both unchanged.
func (d *Dispatcher) apply(ctx context.Context, sess *session.Session, req Request) (*RenderModel, error) {
	rec := sess.Receipt

	switch req.Action {
	case ActionAddRow:
		id := receipt.AddItem(rec)
		return d.overview(ctx, sess, fmt.Sprintf("row %d added", id)), nil

	case ActionDeleteRow:
		id, err := itemID(req.Payload)
		if err != nil {
			return nil, err
		}
		if err := receipt.RemoveItem(rec, id); err != nil {
			return nil, err
		}
		return d.overview(ctx, sess, fmt.Sprintf("row %d deleted", id)), nil

	case ActionBeginEdit:
		id, err := itemID(req.Payload)
		if err != nil {
			return nil, err
		}
		item := rec.Item(id)
		if item == nil {
			return nil, fmt.Errorf("line item %d: %w", id, common.ErrItemNotFound)
		}
		sess.PendingItemID = id
		sess.State = session.StateEditingItem
		return &RenderModel{
			Kind:     RenderEditPrompt,
			Message:  "choose a field and value",
			ItemID:   id,
			ItemName: item.RawName,
		}, nil

	case ActionEditField:
		field := receipt.Field(req.Payload[PayloadField])
		value := req.Payload[PayloadValue]
		if err := receipt.UpdateField(rec, sess.PendingItemID, field, value); err != nil {
			return nil, err
		}
		sess.State = session.StateReviewing
		return d.overview(ctx, sess, fmt.Sprintf("row %d updated", sess.PendingItemID)), nil

	case ActionResetLineTotal:
		id, err := itemID(req.Payload)
		if err != nil {
			return nil, err
		}
		if err := receipt.ResetLineTotal(rec, id); err != nil {
			return nil, err
		}
		return d.overview(ctx, sess, fmt.Sprintf("row %d total recalculated", id)), nil

	case ActionSetDeclaredTotal:
		if err := receipt.SetDeclaredTotal(rec, req.Payload[PayloadValue]); err != nil {
			return nil, err
		}
		return d.overview(ctx, sess, "declared total updated"), nil

	case ActionAutoCalculateTotal:
		receipt.AutoCalculateTotal(rec)
		return d.overview(ctx, sess, "declared total set to computed total"), nil

	case ActionStartMatching:
		return d.startMatching(ctx, sess)

	case ActionAutoMatchAll:
		return d.autoMatchAll(ctx, sess)

	case ActionSelectCandidate:
		return d.selectCandidate(ctx, sess, req.Payload[PayloadCandidate])

	case ActionConfirmMatch:
		return d.confirmMatch(ctx, sess)

	case ActionRejectAndRetry:
		sess.PendingCandidateID = ""
		sess.State = session.StateSelectingMatch
		return d.enterSelecting(ctx, sess, sess.PendingItemID, 0)

	case ActionSkipItem:
		return d.skipItem(ctx, sess)

	case ActionPaginate:
		return d.paginate(ctx, sess, req.Payload[PayloadDirection])

	case ActionBackToReview:
		sess.State = session.StateReviewing
		return d.overview(ctx, sess, "back to receipt"), nil

	case ActionConfirmExport:
		return d.confirmExport(ctx, sess, req.Payload[PayloadForce] == "true")

	case ActionCancel:
		sess.State = session.StateCancelled
		d.sessions.Destroy(sess.Key)
		return &RenderModel{Kind: RenderClosed, Message: "session cancelled"}, nil
	}

	return nil, fmt.Errorf("unknown action %q: %w", req.Action, common.ErrInvalidTransition)
}

// snapshot returns the cached catalog snapshot, or nil when the catalog is
// unavailable. Callers degrade to no matching rather than failing.
func (d *Dispatcher) snapshot(ctx context.Context) *catalog.Snapshot {
	if d.provider == nil {
		return nil
	}
	snapshot, err := d.provider.Snapshot(ctx)
	if err != nil {
		return nil
	}
	return snapshot
}

func (d *Dispatcher) overview(ctx context.Context, sess *session.Session, msg string) *RenderModel {
	return overviewRender(msg, sess.Receipt, d.snapshot(ctx), receipt.IsBalanced(sess.Receipt))
}

func (d *Dispatcher) startMatching(ctx context.Context, sess *session.Session) (*RenderModel, error) {
	rec := sess.Receipt
	if len(rec.Items) == 0 {
		return nil, common.NewUserError("add at least one line item first",
			fmt.Errorf("receipt has no line items: %w", common.ErrInvalidTransition))
	}

	snapshot := d.snapshot(ctx)
	if snapshot == nil || snapshot.Len() == 0 {
		// No auto-matching possible; the user reviews everything unmatched.
		for i := range rec.Items {
			if !rec.Items[i].MatchStatus.Manual() {
				rec.Items[i].MatchStatus = model.StatusUnmatched
				rec.Items[i].MatchedCatalogID = ""
				rec.Items[i].MatchScore = 0
			}
		}
		sess.State = session.StateReviewingMatches
		return summaryRender("catalog unavailable, no automatic matching", rec, nil, receipt.IsBalanced(rec)), nil
	}

	d.matcher.MatchAll(rec, snapshot.Entries())

	next := firstUnmatched(rec)
	if next == nil {
		sess.State = session.StateReviewingMatches
		return summaryRender("all items matched", rec, snapshot, receipt.IsBalanced(rec)), nil
	}

	sess.State = session.StateSelectingMatch
	return d.enterSelecting(ctx, sess, next.ID, 0)
}

func (d *Dispatcher) autoMatchAll(ctx context.Context, sess *session.Session) (*RenderModel, error) {
	rec := sess.Receipt
	snapshot := d.snapshot(ctx)
	if snapshot != nil {
		d.matcher.MatchAll(rec, snapshot.Entries())
	}
	sess.State = session.StateReviewingMatches
	return summaryRender("automatic matching finished", rec, snapshot, receipt.IsBalanced(rec)), nil
}

// enterSelecting recomputes candidates for the item and shows one page.
// PendingCandidates records exactly the page shown, so stale button payloads
// from an earlier page no longer validate.
func (d *Dispatcher) enterSelecting(ctx context.Context, sess *session.Session, id, page int) (*RenderModel, error) {
	rec := sess.Receipt
	item := rec.Item(id)
	if item == nil {
		return nil, fmt.Errorf("line item %d: %w", id, common.ErrItemNotFound)
	}

	snapshot := d.snapshot(ctx)
	var all []model.MatchCandidate
	if snapshot != nil {
		all = d.matcher.Match(item.RawName, snapshot.Entries())
	}

	maxPage := 0
	if len(all) > 0 {
		maxPage = (len(all) - 1) / d.pageSize
	}
	if page < 0 {
		page = 0
	}
	if page > maxPage {
		page = maxPage
	}

	start := page * d.pageSize
	end := start + d.pageSize
	if end > len(all) {
		end = len(all)
	}
	pageCandidates := all[start:end]

	sess.PendingItemID = id
	sess.PageCursor = page
	sess.PendingCandidates = pageCandidates

	views := make([]CandidateView, 0, len(pageCandidates))
	for _, c := range pageCandidates {
		view := CandidateView{CatalogID: c.CatalogID, Score: c.Score, Rank: c.Rank}
		if snapshot != nil {
			if entry, ok := snapshot.Lookup(c.CatalogID); ok {
				view.Name = entry.CanonicalName
			}
		}
		views = append(views, view)
	}

	return &RenderModel{
		Kind:       RenderCandidatePage,
		Message:    "pick the matching ingredient",
		ItemID:     id,
		ItemName:   item.RawName,
		Candidates: views,
		Page:       page,
		MaxPage:    maxPage,
	}, nil
}

func (d *Dispatcher) selectCandidate(ctx context.Context, sess *session.Session, candidateID string) (*RenderModel, error) {
	if candidateID == "" {
		return nil, fmt.Errorf("missing candidate: %w", common.ErrInvalidValue)
	}

	var chosen *model.MatchCandidate
	for i := range sess.PendingCandidates {
		if sess.PendingCandidates[i].CatalogID == candidateID {
			chosen = &sess.PendingCandidates[i]
			break
		}
	}
	if chosen == nil {
		// Stale button payload: the candidate set changed since it was shown.
		return nil, common.NewUserError("that choice is no longer on the current page, pick again",
			fmt.Errorf("candidate %q is not in the current set: %w", candidateID, common.ErrInvalidValue))
	}

	sess.PendingCandidateID = candidateID
	sess.State = session.StateManualMatchConfirm

	name := candidateID
	if snapshot := d.snapshot(ctx); snapshot != nil {
		if entry, ok := snapshot.Lookup(candidateID); ok {
			name = entry.CanonicalName
		}
	}

	item := sess.Receipt.Item(sess.PendingItemID)
	itemName := ""
	if item != nil {
		itemName = item.RawName
	}

	return &RenderModel{
		Kind:          RenderConfirmMatch,
		Message:       "confirm this match?",
		ItemID:        sess.PendingItemID,
		ItemName:      itemName,
		CandidateID:   candidateID,
		CandidateName: name,
	}, nil
}

func (d *Dispatcher) confirmMatch(ctx context.Context, sess *session.Session) (*RenderModel, error) {
	rec := sess.Receipt
	item := rec.Item(sess.PendingItemID)
	if item == nil {
		return nil, fmt.Errorf("line item %d: %w", sess.PendingItemID, common.ErrItemNotFound)
	}

	item.MatchStatus = model.StatusManuallyMatched
	item.MatchedCatalogID = sess.PendingCandidateID
	for _, c := range sess.PendingCandidates {
		if c.CatalogID == sess.PendingCandidateID {
			item.MatchScore = c.Score
			break
		}
	}
	sess.PendingCandidateID = ""

	return d.advance(ctx, sess, "match confirmed")
}

func (d *Dispatcher) skipItem(ctx context.Context, sess *session.Session) (*RenderModel, error) {
	rec := sess.Receipt
	item := rec.Item(sess.PendingItemID)
	if item == nil {
		return nil, fmt.Errorf("line item %d: %w", sess.PendingItemID, common.ErrItemNotFound)
	}

	item.MatchStatus = model.StatusRejected
	item.MatchedCatalogID = ""
	item.MatchScore = 0

	return d.advance(ctx, sess, "item skipped")
}

// advance moves to the next unresolved item's selection, or to the match
// review when none remain.
func (d *Dispatcher) advance(ctx context.Context, sess *session.Session, msg string) (*RenderModel, error) {
	rec := sess.Receipt
	next := firstUnmatched(rec)
	if next == nil {
		sess.State = session.StateReviewingMatches
		sess.PendingCandidates = nil
		return summaryRender(msg, rec, d.snapshot(ctx), receipt.IsBalanced(rec)), nil
	}

	sess.State = session.StateSelectingMatch
	return d.enterSelecting(ctx, sess, next.ID, 0)
}

func (d *Dispatcher) paginate(ctx context.Context, sess *session.Session, direction string) (*RenderModel, error) {
	page := sess.PageCursor
	switch direction {
	case "next":
		page++
	case "prev":
		page--
	default:
		return nil, fmt.Errorf("direction %q: %w", direction, common.ErrInvalidValue)
	}

	// Out-of-range requests clamp to a no-op rather than failing.
	return d.enterSelecting(ctx, sess, sess.PendingItemID, page)
}

func (d *Dispatcher) confirmExport(ctx context.Context, sess *session.Session, force bool) (*RenderModel, error) {
	rec := sess.Receipt

	if !receipt.IsBalanced(rec) && !force {
		return nil, common.NewUserError("declared and computed totals do not agree, fix the receipt or force the export",
			fmt.Errorf("delta %s: %w", rec.ReconciliationDelta.String(), common.ErrUnbalancedReceipt))
	}

	if d.exporter == nil {
		return nil, fmt.Errorf("no export destination configured: %w", common.ErrExportFailed)
	}

	sess.State = session.StateExporting
	snapshot := d.snapshot(ctx)
	rows, summary := export.BuildRows(rec, snapshot)

	if err := d.exporter.Export(ctx, rows, summary); err != nil {
		// Retryable: the receipt is untouched and confirm_export may be
		// re-issued from ReviewingMatches.
		sess.State = session.StateReviewingMatches
		if common.ErrorKind(err) != "ExportFailed" {
			err = fmt.Errorf("%w: %v", common.ErrExportFailed, err)
		}
		return nil, err
	}

	sess.State = session.StateDone
	d.logger.Info("receipt exported", "session", sess.Key, "rows", len(rows))

	m := summaryRender("export complete", rec, snapshot, receipt.IsBalanced(rec))
	m.Kind = RenderExportResult
	return m, nil
}

// failure builds the error response for a rejected action.
func failure(err error, state session.State) *Response {
	return &Response{
		NewState:    state,
		ErrorKind:   common.ErrorKind(err),
		UserMessage: common.UserMessage(err),
	}
}

// firstUnmatched returns the first item, in display order, still awaiting a
// match decision.
func firstUnmatched(rec *model.Receipt) *model.LineItem {
	for i := range rec.Items {
		if rec.Items[i].MatchStatus == model.StatusUnmatched {
			return &rec.Items[i]
		}
	}
	return nil
}

// itemID extracts the target line item ID from an action payload.
func itemID(payload map[string]string) (int, error) {
	raw, ok := payload[PayloadItem]
	if !ok || raw == "" {
		return 0, fmt.Errorf("missing item: %w", common.ErrInvalidValue)
	}
	id, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("item %q is not a number: %w", raw, common.ErrInvalidValue)
	}
	return id, nil
}
