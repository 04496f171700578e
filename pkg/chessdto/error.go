package chessdto

// Error codes carried by DomainError.
const (
	CodeIllegalMove   = "illegal_move"
	CodeTerminal      = "terminal_state"
	CodeNotYourTurn   = "not_your_turn"
	CodeNotFound      = "session_not_found"
	CodeConflict      = "sync_conflict"
	CodePersistence   = "persistence"
	CodeAIUnavailable = "ai_unavailable"
	CodeInternal      = "internal"
)

type DomainError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

func (e DomainError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Code != "" {
		return e.Code
	}
	return "chess session error"
}
