package dispatch

import (
	"github.com/tallyprep/tallyprep/internal/catalog"
	"github.com/tallyprep/tallyprep/internal/export"
	"github.com/tallyprep/tallyprep/internal/model"
)

// RenderKind identifies what the transport layer must display next.
type RenderKind string

// Render kinds.
const (
	RenderOverview      RenderKind = "overview"
	RenderEditPrompt    RenderKind = "edit_prompt"
	RenderCandidatePage RenderKind = "candidate_page"
	RenderConfirmMatch  RenderKind = "confirm_match"
	RenderMatchSummary  RenderKind = "match_summary"
	RenderExportResult  RenderKind = "export_result"
	RenderClosed        RenderKind = "closed"
)

// CandidateView is one selectable match option.
type CandidateView struct {
	CatalogID string
	Name      string
	Score     float64
	Rank      int
}

// RenderModel tells the transport layer what to display. Only the fields
// relevant to the Kind are populated.
type RenderModel struct {
	Kind    RenderKind
	Message string

	// Receipt overview.
	Items    []model.LineItem
	Summary  export.Summary
	Balanced bool

	// Candidate selection.
	ItemID     int
	ItemName   string
	Candidates []CandidateView
	Page       int
	MaxPage    int

	// Pending confirmation.
	CandidateID   string
	CandidateName string
}

func overviewRender(msg string, r *model.Receipt, snapshot *catalog.Snapshot, balanced bool) *RenderModel {
	_, summary := export.BuildRows(r, snapshot)
	return &RenderModel{
		Kind:     RenderOverview,
		Message:  msg,
		Items:    r.Items,
		Summary:  summary,
		Balanced: balanced,
	}
}

func summaryRender(msg string, r *model.Receipt, snapshot *catalog.Snapshot, balanced bool) *RenderModel {
	m := overviewRender(msg, r, snapshot, balanced)
	m.Kind = RenderMatchSummary
	return m
}
