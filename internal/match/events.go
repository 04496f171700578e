package match

import (
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/park285/chess-duet/pkg/chessdto"
)

type EventKind string

const (
	EventMoveApplied   EventKind = "move_applied"
	EventRemoteApplied EventKind = "remote_applied"
	EventCheck         EventKind = "check"
	EventTerminal      EventKind = "terminal"
	EventAIFallback    EventKind = "ai_fallback"
	EventPersistRetry  EventKind = "persist_retry"
	EventSyncConflict  EventKind = "sync_conflict"
	EventFeedback      EventKind = "feedback"
	EventAnalysis      EventKind = "analysis"
	EventRestarted     EventKind = "restarted"
)

// Event is a notification for the presentation layer. Fields beyond Kind are
// set only when they apply.
type Event struct {
	ID        string
	Kind      EventKind
	SessionID string
	Version   uint64
	Move      *chessdto.MoveSummary
	Side      chessdto.Side
	Outcome   string
	Method    string
	Feedback  *chessdto.MoveFeedback
	Analysis  *chessdto.Analysis
	Err       error
	At        time.Time
}

// emit never blocks. A slow consumer loses the oldest pending event.
func (s *Session) emit(ev Event) {
	ev.ID = ulid.Make().String()
	ev.SessionID = s.id
	if ev.At.IsZero() {
		ev.At = s.now().UTC()
	}

	s.evMu.Lock()
	defer s.evMu.Unlock()
	if s.eventsClosed {
		return
	}
	select {
	case s.events <- ev:
		return
	default:
	}
	select {
	case dropped := <-s.events:
		s.logger.Warn("event_dropped", zap.String("kind", string(dropped.Kind)))
	default:
	}
	select {
	case s.events <- ev:
	default:
	}
}

func (s *Session) closeEvents() {
	s.evMu.Lock()
	defer s.evMu.Unlock()
	if !s.eventsClosed {
		s.eventsClosed = true
		close(s.events)
	}
}
