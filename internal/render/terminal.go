package render

import (
	"fmt"
	"strings"

	"github.com/tallyprep/tallyprep/internal/dispatch"
	"github.com/tallyprep/tallyprep/internal/model"
)

// Terminal renders dispatcher render models as styled terminal text.
func Terminal(m *dispatch.RenderModel) string {
	if m == nil {
		return ""
	}

	var b strings.Builder

	switch m.Kind {
	case dispatch.RenderOverview, dispatch.RenderMatchSummary, dispatch.RenderExportResult:
		b.WriteString(TitleStyle.Render(m.Message))
		b.WriteString("\n")
		writeItems(&b, m.Items)
		writeTotals(&b, m)
		if m.Kind != dispatch.RenderOverview {
			writeMatchCounts(&b, m)
		}

	case dispatch.RenderEditPrompt:
		b.WriteString(TitleStyle.Render(fmt.Sprintf("editing row %d (%s)", m.ItemID, m.ItemName)))
		b.WriteString("\n")
		b.WriteString(SubtleStyle.Render("fields: name, quantity, price, total"))
		b.WriteString("\n")

	case dispatch.RenderCandidatePage:
		b.WriteString(TitleStyle.Render(fmt.Sprintf("matches for %q (row %d)", m.ItemName, m.ItemID)))
		b.WriteString("\n")
		if len(m.Candidates) == 0 {
			b.WriteString(SubtleStyle.Render("no candidates, skip or go back"))
			b.WriteString("\n")
		}
		for i, c := range m.Candidates {
			b.WriteString(fmt.Sprintf("  %d. %s %s\n", i+1, c.Name,
				SubtleStyle.Render(fmt.Sprintf("(%.2f)", c.Score))))
		}
		b.WriteString(SubtleStyle.Render(fmt.Sprintf("page %d/%d", m.Page+1, m.MaxPage+1)))
		b.WriteString("\n")

	case dispatch.RenderConfirmMatch:
		b.WriteString(fmt.Sprintf("match %q to %s?\n", m.ItemName,
			SuccessStyle.Render(m.CandidateName)))

	case dispatch.RenderClosed:
		b.WriteString(SubtleStyle.Render(m.Message))
		b.WriteString("\n")
	}

	return b.String()
}

func writeItems(b *strings.Builder, items []model.LineItem) {
	for i := range items {
		item := &items[i]
		line := fmt.Sprintf("%s %2d. %-24s %8s x %8s = %8s",
			statusMarker(item.MatchStatus),
			item.ID,
			item.RawName,
			item.Quantity.String(),
			item.UnitPrice.String(),
			item.LineTotal.String())
		b.WriteString(line)
		b.WriteString("\n")
	}
}

func writeTotals(b *strings.Builder, m *dispatch.RenderModel) {
	style := SuccessStyle
	if !m.Balanced {
		style = ErrorStyle
	}
	b.WriteString(fmt.Sprintf("declared %s, computed %s, delta %s\n",
		m.Summary.DeclaredTotal.String(),
		m.Summary.ComputedTotal.String(),
		style.Render(m.Summary.ReconciliationDelta.String())))
}

func writeMatchCounts(b *strings.Builder, m *dispatch.RenderModel) {
	b.WriteString(fmt.Sprintf("%s auto  %s manual  %s rejected  %s unmatched\n",
		SuccessStyle.Render(fmt.Sprintf("%d", m.Summary.AutoMatched)),
		SuccessStyle.Render(fmt.Sprintf("%d", m.Summary.ManuallyMatched)),
		WarningStyle.Render(fmt.Sprintf("%d", m.Summary.Rejected)),
		ErrorStyle.Render(fmt.Sprintf("%d", m.Summary.Unmatched))))
}

func statusMarker(status model.MatchStatus) string {
	switch status {
	case model.StatusAutoMatched, model.StatusManuallyMatched:
		return SuccessStyle.Render("●")
	case model.StatusRejected:
		return WarningStyle.Render("●")
	default:
		return ErrorStyle.Render("●")
	}
}
