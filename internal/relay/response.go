package relay

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/park285/chess-duet/internal/lobby"
	"github.com/park285/chess-duet/internal/match"
	"github.com/park285/chess-duet/pkg/chessdto"
)

// Response is the envelope of every JSON reply.
type Response struct {
	Success bool                  `json:"success"`
	Data    any                   `json:"data,omitempty"`
	Error   *chessdto.DomainError `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Response{Success: status >= 200 && status < 300, Data: data})
}

func writeError(w http.ResponseWriter, status int, de chessdto.DomainError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Response{Error: &de})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeError(w, http.StatusBadRequest, chessdto.DomainError{Code: "bad_request", Message: msg})
}

// writeFailure maps an engine error onto an HTTP status and its domain form.
func writeFailure(w http.ResponseWriter, err error, text string) {
	de := match.ToDomainError(err)
	if text != "" {
		de.Message = text
	}
	var term *match.TerminalStateViolation
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, match.ErrNotParticipant):
		status = http.StatusForbidden
		de.Code = "not_participant"
	case errors.Is(err, match.ErrNotYourTurn), errors.Is(err, match.ErrWaitingForOpponent), errors.As(err, &term):
		status = http.StatusConflict
	case errors.Is(err, match.ErrSharedRestart):
		status = http.StatusConflict
		de.Code = "shared_session"
	case errors.Is(err, match.ErrModeSwitch):
		status = http.StatusBadRequest
		de.Code = "bad_request"
	case de.Code == chessdto.CodeIllegalMove:
		status = http.StatusUnprocessableEntity
	case de.Code == chessdto.CodeNotFound, errors.Is(err, lobby.ErrCodeGone):
		status = http.StatusNotFound
		de.Code = chessdto.CodeNotFound
	case errors.Is(err, lobby.ErrFull), errors.Is(err, lobby.ErrSelfJoin), errors.Is(err, lobby.ErrCreatorHasLobby):
		status = http.StatusConflict
		de.Code = "lobby"
	case errors.Is(err, lobby.ErrInvalidArgs):
		status = http.StatusBadRequest
		de.Code = "bad_request"
	}
	writeError(w, status, de)
}
