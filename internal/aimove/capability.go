// Package aimove asks an external capability for the AI side's move and
// guarantees a legal answer.
package aimove

import (
	"context"
	"errors"

	"github.com/park285/chess-duet/pkg/chessdto"
)

var (
	ErrRateLimited = errors.New("ai capability rate limited")
	ErrUnavailable = errors.New("ai capability unavailable")
	ErrMalformed   = errors.New("ai capability returned malformed output")
	// ErrIllegalSuggestion is a well-formed move the oracle rejects.
	ErrIllegalSuggestion = errors.New("ai capability suggested an illegal move")
	ErrNoLegalMoves      = errors.New("no legal moves in position")
)

type MoveRequest struct {
	Position   string              `json:"fen"`
	Difficulty chessdto.Difficulty `json:"difficulty"`
}

type MoveResponse struct {
	Move string `json:"move"`
}

// MoveCapability proposes a move in UCI notation for the side to move.
type MoveCapability interface {
	Name() string
	SuggestMove(ctx context.Context, req MoveRequest) (MoveResponse, error)
}

// TextModel is a prompt-in, text-out language model.
type TextModel interface {
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error)
}

type GenerateOptions struct {
	Temperature float32
	JSON        bool
}
