package chessdto

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Validate checks field constraints and the structural invariants of the document.
func (g *GameSession) Validate() error {
	if g == nil {
		return fmt.Errorf("nil session")
	}
	if err := validate.Struct(g); err != nil {
		return fmt.Errorf("invalid session %s: %w", g.ID, err)
	}
	if side := fenSide(g.Position); side != "" && side != g.Turn {
		return fmt.Errorf("invalid session %s: turn %s does not match position side %s", g.ID, g.Turn, side)
	}
	if start := fenSide(g.Start()); start != "" {
		expected := start
		if len(g.MoveHistory)%2 == 1 {
			expected = start.Opponent()
		}
		if expected != g.Turn {
			return fmt.Errorf("invalid session %s: %d moves but %s to move", g.ID, len(g.MoveHistory), g.Turn)
		}
	}
	if g.Status == StatusWaiting && g.Participants.Player2ID != "" {
		return fmt.Errorf("invalid session %s: player2 present while waiting for opponent", g.ID)
	}
	if g.Participants.Player2ID != "" && g.Participants.Player2ID == g.Participants.Player1ID {
		return fmt.Errorf("invalid session %s: one identity in both color slots", g.ID)
	}
	return nil
}

func fenSide(fen string) Side {
	fields := strings.Fields(fen)
	if len(fields) < 2 {
		return ""
	}
	switch fields[1] {
	case "w":
		return SideWhite
	case "b":
		return SideBlack
	}
	return ""
}
