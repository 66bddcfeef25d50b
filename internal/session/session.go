// Package session tracks one mutable editing context per user across a
// sequence of discrete actions.
package session

import (
	"sync"
	"time"

	"github.com/tallyprep/tallyprep/internal/model"
)

// State is the wizard position of an editing session.
type State string

// Session states. Cancelled and Expired are terminal.
const (
	StateAwaitingInput      State = "AWAITING_INPUT"
	StateReviewing          State = "REVIEWING"
	StateEditingItem        State = "EDITING_ITEM"
	StateSelectingMatch     State = "SELECTING_MATCH"
	StateManualMatchConfirm State = "MANUAL_MATCH_CONFIRM"
	StateReviewingMatches   State = "REVIEWING_MATCHES"
	StateExporting          State = "EXPORTING"
	StateDone               State = "DONE"
	StateCancelled          State = "CANCELLED"
	StateExpired            State = "EXPIRED"
)

// Terminal reports whether no further actions are accepted in this state.
func (s State) Terminal() bool {
	return s == StateDone || s == StateCancelled || s == StateExpired
}

// Session is the editing context for one (user, receipt) pair. A user has at
// most one live session; creating a new one destroys the old. All mutable
// fields are guarded by the transition lock: handlers hold it across a
// transition, and the store takes it for expiry checks and sweeps.
type Session struct {
	LastActive time.Time
	Receipt    *model.Receipt
	Key        string
	State      State

	// PendingItemID is the line item under manual-match review.
	PendingItemID int
	// PageCursor pages through PendingCandidates.
	PageCursor int
	// PendingCandidates is the last candidate set computed for the pending
	// item. select_candidate payloads are validated against it so stale
	// buttons from a previous page cannot apply.
	PendingCandidates []model.MatchCandidate
	// PendingCandidateID is the candidate awaiting confirmation.
	PendingCandidateID string

	mu sync.Mutex
}

// TryLock attempts to acquire the session's exclusive transition lock
// without blocking. The dispatcher holds it for the duration of one state
// transition; a second concurrent action is rejected as busy.
func (s *Session) TryLock() bool {
	return s.mu.TryLock()
}

// Unlock releases the transition lock.
func (s *Session) Unlock() {
	s.mu.Unlock()
}

// Touch resets the inactivity clock.
func (s *Session) Touch() {
	s.LastActive = time.Now()
}
