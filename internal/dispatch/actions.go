package dispatch

import "github.com/tallyprep/tallyprep/internal/session"

// Action names one discrete user operation on a session.
type Action string

// Actions accepted by the dispatcher.
const (
	ActionAddRow             Action = "add_row"
	ActionDeleteRow          Action = "delete_row"
	ActionBeginEdit          Action = "begin_edit"
	ActionEditField          Action = "edit_field"
	ActionResetLineTotal     Action = "reset_line_total"
	ActionSetDeclaredTotal   Action = "set_declared_total"
	ActionAutoCalculateTotal Action = "auto_calculate_total"
	ActionStartMatching      Action = "start_matching"
	ActionAutoMatchAll       Action = "auto_match_all"
	ActionSelectCandidate    Action = "select_candidate"
	ActionConfirmMatch       Action = "confirm_match"
	ActionRejectAndRetry     Action = "reject_and_retry"
	ActionSkipItem           Action = "skip_item"
	ActionPaginate           Action = "paginate"
	ActionBackToReview       Action = "back_to_review"
	ActionConfirmExport      Action = "confirm_export"
	ActionCancel             Action = "cancel"
)

// Payload keys.
const (
	PayloadItem      = "item"
	PayloadField     = "field"
	PayloadValue     = "value"
	PayloadCandidate = "candidate"
	PayloadDirection = "direction"
	PayloadForce     = "force"
)

// legalStates is the per-state legality table: an action is valid only in
// the listed states. Cancel is handled separately since it is legal in any
// non-terminal state.
var legalStates = map[Action][]session.State{
	ActionAddRow:             {session.StateReviewing},
	ActionDeleteRow:          {session.StateReviewing},
	ActionBeginEdit:          {session.StateReviewing},
	ActionEditField:          {session.StateEditingItem},
	ActionResetLineTotal:     {session.StateReviewing},
	ActionSetDeclaredTotal:   {session.StateReviewing},
	ActionAutoCalculateTotal: {session.StateReviewing},
	ActionStartMatching:      {session.StateReviewing},
	ActionAutoMatchAll:       {session.StateReviewing, session.StateReviewingMatches},
	ActionSelectCandidate:    {session.StateSelectingMatch},
	ActionConfirmMatch:       {session.StateManualMatchConfirm},
	ActionRejectAndRetry:     {session.StateManualMatchConfirm},
	ActionSkipItem:           {session.StateSelectingMatch},
	ActionPaginate:           {session.StateSelectingMatch},
	ActionBackToReview:       {session.StateSelectingMatch, session.StateReviewingMatches},
	ActionConfirmExport:      {session.StateReviewingMatches},
}

// legalIn reports whether the action may run in the given state.
func legalIn(action Action, state session.State) bool {
	if state.Terminal() {
		return false
	}
	if action == ActionCancel {
		return true
	}
	for _, s := range legalStates[action] {
		if s == state {
			return true
		}
	}
	return false
}
