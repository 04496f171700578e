// Package rules adapts chess libraries into the rules oracle the session engine
// consumes. Positions are FEN strings; moves are addressed by square names.
package rules

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/park285/chess-duet/pkg/chessdto"
)

var (
	ErrInvalidPosition = errors.New("invalid position")
	ErrInvalidSquare   = errors.New("invalid square")
	ErrIllegalMove     = errors.New("illegal move")
	ErrKingCapture     = errors.New("move targets the king square")
	ErrGameOver        = errors.New("game is over")
)

// Square is a board coordinate such as "e4".
type Square string

// Applied is the result of a legal move.
type Applied struct {
	Position string
	SAN      string
	UCI      string
	Turn     chessdto.Side
	Check    bool
}

// Status is the terminal/check verdict for a position.
type Status struct {
	Check     bool
	Checkmate bool
	Draw      bool
	GameOver  bool
	Outcome   string // "1-0", "0-1", "1/2-1/2" or "*"
	Method    string
}

// Oracle is the rules capability used by the session engine.
type Oracle interface {
	FromNotation(fen string) (string, error)
	ToNotation(position string) string
	SideToMove(position string) (chessdto.Side, error)
	LegalMoves(position string, from Square) ([]Square, error)
	AllMoves(position string) ([]string, error)
	ApplyMove(position string, from, to Square, promotion string) (Applied, error)
	Status(position string) (Status, error)
	Evaluate(initial string, history []string) (Status, error)
	Replay(initial string, history []string) (string, error)
	KingCount(position string) (white, black int, err error)
}

var uciPattern = regexp.MustCompile(`^([a-h][1-8])([a-h][1-8])([qrbn])?$`)

// ParseUCI splits a coordinate move like "e7e8q".
func ParseUCI(s string) (from, to Square, promotion string, err error) {
	m := uciPattern.FindStringSubmatch(strings.ToLower(strings.TrimSpace(s)))
	if m == nil {
		return "", "", "", fmt.Errorf("%w: not a coordinate move %q", ErrIllegalMove, s)
	}
	return Square(m[1]), Square(m[2]), m[3], nil
}

// FindUCI extracts the first coordinate move found in free text.
func FindUCI(text string) (string, bool) {
	for _, tok := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	}) {
		if uciPattern.MatchString(tok) {
			return tok, true
		}
	}
	return "", false
}
