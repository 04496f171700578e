package chessdto

import "time"

// SessionView is a session document decorated for display.
type SessionView struct {
	Session *GameSession `json:"session"`
	Moves   string       `json:"moves"`
	Status  string       `json:"status"`
}

// EventView is the wire form of a session notice.
type EventView struct {
	ID        string        `json:"id"`
	Kind      string        `json:"kind"`
	SessionID string        `json:"sessionId"`
	Version   uint64        `json:"version"`
	Side      Side          `json:"side,omitempty"`
	Move      *MoveSummary  `json:"move,omitempty"`
	Outcome   string        `json:"outcome,omitempty"`
	Method    string        `json:"method,omitempty"`
	Feedback  *MoveFeedback `json:"feedback,omitempty"`
	Analysis  *Analysis     `json:"analysis,omitempty"`
	Error     *DomainError  `json:"error,omitempty"`
	Text      string        `json:"text,omitempty"`
	At        time.Time     `json:"at"`
}
