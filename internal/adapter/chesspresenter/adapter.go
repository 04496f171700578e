package chesspresenter

import (
	"github.com/park285/chess-duet/internal/match"
	"github.com/park285/chess-duet/pkg/chessdto"
)

// ToEventView converts a session event into its wire form with the rendered notice.
func ToEventView(ev match.Event, text string) chessdto.EventView {
	view := chessdto.EventView{
		ID:        ev.ID,
		Kind:      string(ev.Kind),
		SessionID: ev.SessionID,
		Version:   ev.Version,
		Side:      ev.Side,
		Outcome:   ev.Outcome,
		Method:    ev.Method,
		Text:      text,
		At:        ev.At,
	}
	if ev.Move != nil {
		mv := *ev.Move
		view.Move = &mv
	}
	if ev.Feedback != nil {
		fb := *ev.Feedback
		view.Feedback = &fb
	}
	if ev.Analysis != nil {
		a := *ev.Analysis
		view.Analysis = &a
	}
	if ev.Err != nil {
		de := match.ToDomainError(ev.Err)
		view.Error = &de
	}
	return view
}
