package aimove

import (
	"context"
	"fmt"

	"github.com/park285/chess-duet/internal/aimove/uci"
	"github.com/park285/chess-duet/pkg/chessdto"
)

// Stockfish answers from a local engine pool.
type Stockfish struct {
	pool *uci.Pool
}

func NewStockfish(pool *uci.Pool) *Stockfish { return &Stockfish{pool: pool} }

func (s *Stockfish) Name() string { return "stockfish" }

func (s *Stockfish) Close() error { return s.pool.Close() }

func (s *Stockfish) SuggestMove(ctx context.Context, req MoveRequest) (MoveResponse, error) {
	opt, limits := stockfishPreset(chessdto.ParseDifficulty(string(req.Difficulty)))
	session, err := s.pool.Acquire(ctx, opt)
	if err != nil {
		return MoveResponse{}, fmt.Errorf("%w: acquire engine: %w", ErrUnavailable, err)
	}
	res, err := session.BestMove(ctx, req.Position, limits)
	s.pool.Release(session, err)
	if err != nil {
		return MoveResponse{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if res.BestMove == "" {
		return MoveResponse{}, fmt.Errorf("%w: engine returned no move", ErrMalformed)
	}
	return MoveResponse{Move: res.BestMove}, nil
}

func stockfishPreset(d chessdto.Difficulty) (uci.Options, uci.Limits) {
	switch d {
	case chessdto.DifficultyEasy:
		return uci.Options{Threads: 1, HashMB: 16, SkillLevel: 1, Elo: 1320}, uci.Limits{Depth: 4, MoveTimeMillis: 100}
	case chessdto.DifficultyHard:
		return uci.Options{Threads: 2, HashMB: 64, SkillLevel: 20}, uci.Limits{MoveTimeMillis: 1200}
	default:
		return uci.Options{Threads: 1, HashMB: 32, SkillLevel: 8, Elo: 1700}, uci.Limits{Depth: 10, MoveTimeMillis: 300}
	}
}
