package chessdto

import (
	"strings"
	"time"
)

// Side is the side to move, encoded the way FEN encodes it.
type Side string

const (
	SideWhite Side = "w"
	SideBlack Side = "b"
)

func (s Side) Opponent() Side {
	if s == SideWhite {
		return SideBlack
	}
	return SideWhite
}

func (s Side) String() string { return string(s) }

// Mode selects who controls the second seat.
type Mode string

const (
	ModeAI       Mode = "AI"
	ModePvP      Mode = "PvP"
	ModeLearning Mode = "Learning"
)

// Local reports whether the mode runs without a second remote party.
func (m Mode) Local() bool { return m == ModeAI || m == ModeLearning }

// Status is the session lifecycle state.
type Status string

const (
	StatusWaiting    Status = "WaitingForOpponent"
	StatusInProgress Status = "InProgress"
	StatusComplete   Status = "Complete"
)

// Difficulty is the requested AI strength.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// ParseDifficulty accepts case-insensitive names and defaults to medium.
func ParseDifficulty(s string) Difficulty {
	switch Difficulty(strings.ToLower(strings.TrimSpace(s))) {
	case DifficultyEasy:
		return DifficultyEasy
	case DifficultyHard:
		return DifficultyHard
	default:
		return DifficultyMedium
	}
}

// StandardStart is the FEN of the standard initial position.
const StandardStart = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

// Participants holds one identity per color slot. Player1 plays white.
type Participants struct {
	Player1ID string `json:"player1Id" validate:"required"`
	Player2ID string `json:"player2Id,omitempty"`
}

// GameSession is the replicated session document.
type GameSession struct {
	ID              string       `json:"id" validate:"required"`
	Position        string       `json:"position" validate:"required"`
	InitialPosition string       `json:"initialPosition,omitempty"`
	Turn            Side         `json:"turn" validate:"required,oneof=w b"`
	MoveHistory     []string     `json:"moveHistory"`
	Participants    Participants `json:"participants"`
	Mode            Mode         `json:"mode" validate:"required,oneof=AI PvP Learning"`
	Difficulty      Difficulty   `json:"difficulty,omitempty" validate:"omitempty,oneof=easy medium hard"`
	Status          Status       `json:"status" validate:"required,oneof=WaitingForOpponent InProgress Complete"`
	Outcome         string       `json:"outcome,omitempty"`
	Method          string       `json:"method,omitempty"`
	Version         uint64       `json:"version"`
	CreatedAt       time.Time    `json:"createdAt"`
	UpdatedAt       time.Time    `json:"updatedAt"`
}

// Clone returns a deep copy.
func (g *GameSession) Clone() *GameSession {
	if g == nil {
		return nil
	}
	cp := *g
	cp.MoveHistory = append([]string(nil), g.MoveHistory...)
	return &cp
}

// Start returns the position the history is replayed from.
func (g *GameSession) Start() string {
	if strings.TrimSpace(g.InitialPosition) != "" {
		return g.InitialPosition
	}
	return StandardStart
}

// SideOf returns the color owned by participantID.
func (g *GameSession) SideOf(participantID string) (Side, bool) {
	switch {
	case participantID == "":
		return "", false
	case participantID == g.Participants.Player1ID:
		return SideWhite, true
	case participantID == g.Participants.Player2ID:
		return SideBlack, true
	}
	return "", false
}

// SameState reports whether two documents describe the same game state,
// ignoring version and timestamps.
func (g *GameSession) SameState(o *GameSession) bool {
	if g == nil || o == nil {
		return g == o
	}
	if g.Position != o.Position || g.Turn != o.Turn || g.Status != o.Status || len(g.MoveHistory) != len(o.MoveHistory) {
		return false
	}
	for i := range g.MoveHistory {
		if g.MoveHistory[i] != o.MoveHistory[i] {
			return false
		}
	}
	return g.Participants == o.Participants && g.Mode == o.Mode && g.Outcome == o.Outcome
}

// HistoryExtends reports whether g's history starts with every move of prefix.
func (g *GameSession) HistoryExtends(prefix []string) bool {
	if len(prefix) > len(g.MoveHistory) {
		return false
	}
	for i := range prefix {
		if g.MoveHistory[i] != prefix[i] {
			return false
		}
	}
	return true
}
