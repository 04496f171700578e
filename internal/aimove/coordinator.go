package aimove

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/park285/chess-duet/internal/rules"
	"github.com/park285/chess-duet/pkg/chessdto"
)

const DefaultTimeout = 8 * time.Second

// Decision is the move chosen for the AI side.
type Decision struct {
	UCI      string
	Fallback bool
	// Cause is why the capability's answer was not used. Nil unless Fallback.
	Cause    error
	Provider string
	Elapsed  time.Duration
}

type Coordinator struct {
	capability MoveCapability
	oracle     rules.Oracle
	timeout    time.Duration
	logger     *zap.Logger
}

type Option func(*Coordinator)

func WithTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewCoordinator wires capability (may be nil) to oracle.
func NewCoordinator(capability MoveCapability, oracle rules.Oracle, opts ...Option) *Coordinator {
	c := &Coordinator{
		capability: capability,
		oracle:     oracle,
		timeout:    DefaultTimeout,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Coordinator) Timeout() time.Duration { return c.timeout }

// Decide returns a legal move for the side to move in position. Capability
// failures never surface as errors: they produce a fallback decision with
// Cause set. Only an unusable position is an error.
func (c *Coordinator) Decide(ctx context.Context, position string, difficulty chessdto.Difficulty) (Decision, error) {
	legal, err := c.oracle.AllMoves(position)
	if err != nil {
		return Decision{}, err
	}
	if len(legal) == 0 {
		return Decision{}, ErrNoLegalMoves
	}

	start := time.Now()
	mv, provider, cause := c.ask(ctx, position, difficulty, legal)
	d := Decision{UCI: mv, Provider: provider, Elapsed: time.Since(start)}
	if cause != nil {
		d.UCI = Fallback(legal)
		d.Fallback = true
		d.Cause = cause
		c.logger.Warn("ai_fallback",
			zap.String("provider", provider),
			zap.String("move", d.UCI),
			zap.Duration("elapsed", d.Elapsed),
			zap.Error(cause))
		return d, nil
	}
	c.logger.Debug("ai_move", zap.String("provider", provider), zap.String("move", mv), zap.Duration("elapsed", d.Elapsed))
	return d, nil
}

func (c *Coordinator) ask(ctx context.Context, position string, difficulty chessdto.Difficulty, legal []string) (string, string, error) {
	if c.capability == nil {
		return "", "none", fmt.Errorf("%w: no capability configured", ErrUnavailable)
	}
	name := c.capability.Name()

	askCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	resp, err := c.capability.SuggestMove(askCtx, MoveRequest{
		Position:   position,
		Difficulty: chessdto.ParseDifficulty(string(difficulty)),
	})
	if err != nil {
		return "", name, classify(err)
	}
	mv, err := sanitize(resp.Move, legal)
	if err != nil {
		return "", name, err
	}
	return mv, name, nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, ErrRateLimited), errors.Is(err, ErrUnavailable), errors.Is(err, ErrMalformed):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: deadline exceeded", ErrUnavailable)
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	default:
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
}

// sanitize extracts a coordinate move from raw output and checks it against
// the legal set. A bare pawn move onto the last rank is read as a queen promotion.
func sanitize(raw string, legal []string) (string, error) {
	mv, ok := rules.FindUCI(raw)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrMalformed, truncate(raw, 64))
	}
	if slices.Contains(legal, mv) {
		return mv, nil
	}
	if len(mv) == 4 && slices.Contains(legal, mv+"q") {
		return mv + "q", nil
	}
	return "", fmt.Errorf("%w: %s", ErrIllegalSuggestion, mv)
}

// Fallback is the first move of the sorted legal list.
func Fallback(legal []string) string {
	if len(legal) == 0 {
		return ""
	}
	if slices.IsSorted(legal) {
		return legal[0]
	}
	return slices.Min(legal)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
