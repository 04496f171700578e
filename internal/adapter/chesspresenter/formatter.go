package chesspresenter

import (
	"errors"
	"fmt"
	"strings"

	"github.com/park285/chess-duet/internal/match"
	"github.com/park285/chess-duet/internal/msgcat"
	"github.com/park285/chess-duet/internal/rules"
	"github.com/park285/chess-duet/pkg/chessdto"
)

// Formatter renders session events and rejections into short notices.
type Formatter struct {
	catalog *msgcat.Catalog
}

func NewFormatter(catalog *msgcat.Catalog) *Formatter {
	if catalog == nil {
		catalog = msgcat.Default()
	}
	return &Formatter{catalog: catalog}
}

// Event returns the notice for ev, or "" when the event only refreshes the board.
func (f *Formatter) Event(ev match.Event) string {
	switch ev.Kind {
	case match.EventMoveApplied:
		return f.Move(ev.Move)
	case match.EventCheck:
		return f.catalog.Text("notice.check", map[string]any{"Side": sideName(ev.Side)})
	case match.EventTerminal:
		return f.Outcome(ev.Outcome, ev.Method)
	case match.EventAIFallback:
		var ai *match.AiUnavailableError
		move := ""
		if errors.As(ev.Err, &ai) {
			move = ai.Move
		}
		return f.catalog.Text("notice.ai_unavailable", map[string]any{"Move": move})
	case match.EventPersistRetry:
		var pe *match.PersistenceError
		attempt := 0
		if errors.As(ev.Err, &pe) {
			attempt = pe.Attempt
		}
		return f.catalog.Text("notice.persistence_retry", map[string]any{"Attempt": attempt})
	case match.EventSyncConflict:
		return f.catalog.Text("notice.sync_conflict", nil)
	case match.EventFeedback:
		if ev.Feedback == nil {
			return ""
		}
		return strings.TrimSpace(ev.Feedback.Feedback)
	case match.EventAnalysis:
		return f.Analysis(ev.Analysis)
	case match.EventRestarted:
		return f.catalog.Text("notice.restarted", nil)
	default:
		return ""
	}
}

// Move renders one ply the way a score sheet does: "3. Bb5" or "3... a6".
func (f *Formatter) Move(sum *chessdto.MoveSummary) string {
	if sum == nil || sum.SAN == "" {
		return ""
	}
	number := (sum.MoveCount + 1) / 2
	text := fmt.Sprintf("%d. %s", number, sum.SAN)
	if sum.Actor == chessdto.SideBlack {
		text = fmt.Sprintf("%d... %s", number, sum.SAN)
	}
	if sum.Fallback {
		text += " (auto)"
	}
	return text
}

func (f *Formatter) Outcome(outcome, method string) string {
	data := map[string]any{"Outcome": outcome, "Method": strings.ReplaceAll(method, "_", " ")}
	switch {
	case method == "checkmate" && (outcome == "1-0" || outcome == "0-1"):
		data["Winner"] = "White"
		if outcome == "0-1" {
			data["Winner"] = "Black"
		}
		return f.catalog.Text("outcome.checkmate", data)
	case outcome == "1/2-1/2":
		return f.catalog.Text("outcome.draw", data)
	default:
		return f.catalog.Text("outcome.other", data)
	}
}

func (f *Formatter) Analysis(a *chessdto.Analysis) string {
	if a == nil {
		return ""
	}
	return f.catalog.Text("analysis.summary", map[string]any{
		"Strengths":  a.Strengths,
		"Weaknesses": a.Weaknesses,
		"Overall":    a.OverallAssessment,
	})
}

// Rejection explains why a move or command was refused. turn is the side to
// move when the request was made.
func (f *Formatter) Rejection(err error, turn chessdto.Side) string {
	var (
		ill  *match.IllegalMoveError
		term *match.TerminalStateViolation
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &ill) && ill.Feedback != nil && ill.Feedback.Feedback != "":
		return ill.Feedback.Feedback
	case errors.Is(err, match.ErrNotYourTurn):
		return f.catalog.Text("notice.not_your_turn", map[string]any{"Turn": sideName(turn)})
	case errors.As(err, &ill) && errors.Is(err, rules.ErrKingCapture):
		return f.catalog.Text("notice.king_capture", map[string]any{"Move": ill.Move})
	case errors.As(err, &ill):
		return f.catalog.Text("notice.illegal_move", map[string]any{"Move": ill.Move})
	case errors.As(err, &term):
		return f.catalog.Text("notice.terminal", map[string]any{"Outcome": term.Outcome})
	case errors.Is(err, match.ErrWaitingForOpponent):
		return f.catalog.Text("notice.waiting", nil)
	default:
		return match.ToDomainError(err).Message
	}
}

func sideName(s chessdto.Side) string {
	if s == chessdto.SideBlack {
		return "Black"
	}
	return "White"
}
