package match

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/park285/chess-duet/internal/rules"
	"github.com/park285/chess-duet/pkg/chessdto"
)

// ExecuteMove validates and applies a move for actorID. The local document is
// updated before returning; replication happens in the background. Only
// *IllegalMoveError, *TerminalStateViolation and precondition sentinels are returned.
func (s *Session) ExecuteMove(ctx context.Context, actorID string, from, to rules.Square, promotion string) (chessdto.MoveSummary, error) {
	s.mu.Lock()
	before := s.state.Position
	tutoring := s.state.Mode == chessdto.ModeLearning && s.deps.Tutor != nil
	summary, err := s.executeLocked(actorID, from, to, promotion)
	if tutoring && err == nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			fb := s.deps.Tutor.Feedback(s.ctx, before, from, to, promotion)
			s.emit(Event{Kind: EventFeedback, Feedback: &fb, Move: &summary})
		}()
	}
	s.mu.Unlock()

	var ill *IllegalMoveError
	if tutoring && errors.As(err, &ill) && !errors.Is(err, ErrNotYourTurn) {
		fb := s.deps.Tutor.Feedback(ctx, before, from, to, promotion)
		ill.Feedback = &fb
	}
	return summary, err
}

// ExecuteUCI is ExecuteMove for a coordinate move such as "e7e8q".
func (s *Session) ExecuteUCI(ctx context.Context, actorID, move string) (chessdto.MoveSummary, error) {
	from, to, promo, err := rules.ParseUCI(move)
	if err != nil {
		return chessdto.MoveSummary{}, &IllegalMoveError{Move: move, Reason: err}
	}
	return s.ExecuteMove(ctx, actorID, from, to, promo)
}

func (s *Session) executeLocked(actorID string, from, to rules.Square, promotion string) (chessdto.MoveSummary, error) {
	if s.closed {
		return chessdto.MoveSummary{}, ErrClosed
	}
	side, err := s.checkTurnLocked(actorID)
	if err != nil {
		if errors.Is(err, ErrNotYourTurn) {
			return chessdto.MoveSummary{}, &IllegalMoveError{Move: moveText(from, to, promotion), Reason: err}
		}
		return chessdto.MoveSummary{}, err
	}
	s.phase = PhaseValidating
	defer func() { s.phase = PhaseIdle }()
	return s.commitLocked(side, from, to, promotion, false)
}

// checkTurnLocked returns the side actorID may move now.
func (s *Session) checkTurnLocked(actorID string) (chessdto.Side, error) {
	doc := s.state
	switch doc.Status {
	case chessdto.StatusComplete:
		return "", &TerminalStateViolation{Outcome: doc.Outcome, Method: doc.Method}
	case chessdto.StatusWaiting:
		return "", ErrWaitingForOpponent
	}

	var side chessdto.Side
	switch doc.Mode {
	case chessdto.ModePvP:
		owned, ok := doc.SideOf(actorID)
		if !ok {
			return "", ErrNotParticipant
		}
		side = owned
	case chessdto.ModeAI:
		if actorID != doc.Participants.Player1ID {
			return "", ErrNotParticipant
		}
		side = aiSide.Opponent()
	default:
		// learning: one local player moves both sides
		if actorID != doc.Participants.Player1ID {
			return "", ErrNotParticipant
		}
		side = doc.Turn
	}
	if side != doc.Turn {
		return "", ErrNotYourTurn
	}
	return side, nil
}

// commitLocked applies the move optimistically and queues replication.
func (s *Session) commitLocked(side chessdto.Side, from, to rules.Square, promotion string, fallback bool) (chessdto.MoveSummary, error) {
	doc := s.state
	move := moveText(from, to, promotion)

	applied, err := s.deps.Oracle.ApplyMove(doc.Position, from, to, promotion)
	if err != nil {
		return chessdto.MoveSummary{}, &IllegalMoveError{Move: move, Reason: err}
	}
	if w, b, kerr := s.deps.Oracle.KingCount(applied.Position); kerr != nil || w != 1 || b != 1 {
		s.logger.Error("king_count_violation", zap.String("move", move), zap.Int("white", w), zap.Int("black", b), zap.Error(kerr))
		return chessdto.MoveSummary{}, &IllegalMoveError{Move: move, Reason: fmt.Errorf("%w: kings %d/%d", rules.ErrKingCapture, w, b)}
	}

	s.phase = PhaseCommitting
	next := doc.Clone()
	next.Position = applied.Position
	next.Turn = applied.Turn
	next.MoveHistory = append(next.MoveHistory, applied.SAN)
	next.UpdatedAt = s.now().UTC()
	s.state = next
	s.localRev++

	verdict := s.detector.Observe(next)
	s.applyVerdictLocked(verdict)

	summary := chessdto.MoveSummary{
		SAN:       applied.SAN,
		UCI:       applied.UCI,
		Actor:     side,
		Position:  next.Position,
		Turn:      next.Turn,
		Check:     applied.Check,
		Fallback:  fallback,
		Finished:  next.Status == chessdto.StatusComplete,
		Outcome:   next.Outcome,
		Method:    next.Method,
		MoveCount: len(next.MoveHistory),
	}
	s.logger.Debug("move_applied",
		zap.String("san", applied.SAN),
		zap.String("actor", string(side)),
		zap.Int("ply", summary.MoveCount),
		zap.Bool("fallback", fallback))
	s.emit(Event{Kind: EventMoveApplied, Version: s.confirmed, Move: &summary, Side: side})
	s.emitVerdictLocked(verdict)

	s.requestFlush()
	s.scheduleAILocked()
	return summary, nil
}

// applyVerdictLocked completes the local document when the game is over.
func (s *Session) applyVerdictLocked(v Verdict) bool {
	if v.Err != nil {
		s.logger.Warn("outcome_check_failed", zap.Error(v.Err))
		return false
	}
	if !v.Over || s.state.Status == chessdto.StatusComplete {
		return false
	}
	s.state.Status = chessdto.StatusComplete
	s.state.Outcome = v.Outcome
	s.state.Method = v.Method
	return true
}

func (s *Session) emitVerdictLocked(v Verdict) {
	if v.CheckSide != "" {
		s.emit(Event{Kind: EventCheck, Version: s.confirmed, Side: v.CheckSide})
	}
	if !v.Terminal {
		return
	}
	s.logger.Info("session_complete", zap.String("outcome", v.Outcome), zap.String("method", v.Method))
	s.emit(Event{Kind: EventTerminal, Version: s.confirmed, Outcome: v.Outcome, Method: v.Method})
	s.analyzeAsyncLocked()
}

// LegalTargets lists destination squares for the piece on from, entering the
// selecting phase.
func (s *Session) LegalTargets(actorID string, from rules.Square) ([]rules.Square, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	if _, err := s.checkTurnLocked(actorID); err != nil {
		return nil, err
	}
	targets, err := s.deps.Oracle.LegalMoves(s.state.Position, from)
	if err != nil {
		return nil, err
	}
	s.phase = PhaseSelecting
	return targets, nil
}

// CancelSelection leaves the selecting phase.
func (s *Session) CancelSelection() {
	s.mu.Lock()
	if s.phase == PhaseSelecting {
		s.phase = PhaseIdle
	}
	s.mu.Unlock()
}

// Restart resets the board to the initial position. In-flight AI requests are
// discarded. Shared sessions keep their history and are never restarted.
func (s *Session) Restart(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if !s.state.Mode.Local() {
		return ErrSharedRestart
	}
	s.resetLocked()
	return nil
}

// SwitchMode changes between the local modes and restarts the game.
func (s *Session) SwitchMode(ctx context.Context, mode chessdto.Mode, difficulty chessdto.Difficulty) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if !mode.Local() || !s.state.Mode.Local() {
		return ErrModeSwitch
	}
	s.state.Mode = mode
	s.state.Difficulty = ""
	if mode == chessdto.ModeAI {
		s.state.Difficulty = chessdto.ParseDifficulty(string(difficulty))
	}
	s.resetLocked()
	return nil
}

func (s *Session) resetLocked() {
	start := s.state.Start()
	turn, err := s.deps.Oracle.SideToMove(start)
	if err != nil {
		turn = chessdto.SideWhite
	}
	next := s.state.Clone()
	next.Position = start
	next.Turn = turn
	next.MoveHistory = []string{}
	next.Outcome, next.Method = "", ""
	next.Status = chessdto.StatusInProgress
	if next.Mode == chessdto.ModePvP && next.Participants.Player2ID == "" {
		next.Status = chessdto.StatusWaiting
	}
	next.UpdatedAt = s.now().UTC()

	s.state = next
	s.localRev++
	s.epoch++
	s.archived = false
	s.phase = PhaseIdle
	s.detector.Reset()
	s.logger.Info("session_restarted", zap.String("mode", string(next.Mode)), zap.Uint64("epoch", s.epoch))
	s.emit(Event{Kind: EventRestarted, Version: s.confirmed})

	s.requestFlush()
	s.scheduleAILocked()
}

func moveText(from, to rules.Square, promotion string) string {
	return strings.ToLower(string(from) + string(to) + promotion)
}
