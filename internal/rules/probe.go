package rules

import (
	"fmt"

	"laptudirm.com/x/mess/pkg/board"
	"laptudirm.com/x/mess/pkg/formats/fen"
)

// probeCheck reports whether the side to move is in check. corentings/chess only
// exposes check as a move tag, so positions loaded from FEN go through mess.
func probeCheck(position string) (inCheck bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrInvalidPosition, r)
		}
	}()
	b := board.New(board.FEN(fen.FromString(position)))
	return b.IsInCheck(b.SideToMove), nil
}
