package presenter

import (
	"time"

	"github.com/park285/chess-duet/internal/msgcat"
	"github.com/park285/chess-duet/pkg/chessdto"
)

// StatusLine summarizes doc for a status bar. Elapsed time runs from creation.
func StatusLine(catalog *msgcat.Catalog, doc *chessdto.GameSession, now time.Time) string {
	if doc == nil {
		return ""
	}
	elapsed := time.Duration(0)
	if !doc.CreatedAt.IsZero() {
		end := now
		if doc.Status == chessdto.StatusComplete && !doc.UpdatedAt.IsZero() {
			end = doc.UpdatedAt
		}
		elapsed = end.Sub(doc.CreatedAt)
	}
	data := map[string]any{
		"Turn":    sideName(doc.Turn),
		"Moves":   len(doc.MoveHistory),
		"Elapsed": FormatTotalTime(elapsed),
		"Recent":  formatRecentMoves(doc.MoveHistory),
		"Outcome": doc.Outcome,
	}
	switch doc.Status {
	case chessdto.StatusWaiting:
		return catalog.Text("presenter.waiting", data)
	case chessdto.StatusComplete:
		return catalog.Text("presenter.complete", data)
	default:
		return catalog.Text("presenter.status", data)
	}
}

// View decorates doc with its numbered move list and status line.
func View(catalog *msgcat.Catalog, doc *chessdto.GameSession, now time.Time) chessdto.SessionView {
	return chessdto.SessionView{
		Session: doc,
		Moves:   NumberedMoves(doc.MoveHistory),
		Status:  StatusLine(catalog, doc, now),
	}
}

func sideName(s chessdto.Side) string {
	if s == chessdto.SideBlack {
		return "Black"
	}
	return "White"
}
