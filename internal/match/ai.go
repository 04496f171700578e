package match

import (
	"go.uber.org/zap"

	"github.com/park285/chess-duet/internal/aimove"
	"github.com/park285/chess-duet/internal/rules"
	"github.com/park285/chess-duet/pkg/chessdto"
)

// scheduleAILocked starts an AI request when the AI is to move and none is outstanding.
func (s *Session) scheduleAILocked() {
	doc := s.state
	if s.closed || s.aiInFlight || doc.Mode != chessdto.ModeAI || doc.Status != chessdto.StatusInProgress || doc.Turn != aiSide {
		return
	}
	s.aiInFlight = true
	epoch, position, difficulty := s.epoch, doc.Position, doc.Difficulty

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runAI(epoch, position, difficulty)
	}()
}

func (s *Session) runAI(epoch uint64, position string, difficulty chessdto.Difficulty) {
	decision, err := s.deps.AI.Decide(s.ctx, position, difficulty)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.aiInFlight = false

	if s.closed {
		return
	}
	if s.epoch != epoch || s.state.Position != position {
		s.logger.Debug("ai_response_discarded", zap.Uint64("epoch", epoch), zap.Uint64("current_epoch", s.epoch))
		s.scheduleAILocked()
		return
	}
	if err == nil {
		if decision.Fallback {
			s.emitFallbackLocked(decision.UCI, decision.Cause)
		}
		err = s.commitAILocked(decision.UCI, decision.Fallback)
	}
	if err != nil && !decision.Fallback {
		s.logger.Warn("ai_move_failed", zap.String("move", decision.UCI), zap.Error(err))
		cause := err
		var mv string
		if mv, err = s.fallbackMoveLocked(); err == nil {
			s.emitFallbackLocked(mv, cause)
			err = s.commitAILocked(mv, true)
		}
	}
	if err != nil {
		s.logger.Error("ai_turn_failed", zap.Int("failures", s.aiFailures+1), zap.Error(err))
		s.retryAILocked()
		return
	}
	s.aiFailures = 0
	s.phase = PhaseIdle
}

func (s *Session) commitAILocked(move string, fallback bool) error {
	from, to, promo, err := rules.ParseUCI(move)
	if err != nil {
		return err
	}
	_, err = s.commitLocked(aiSide, from, to, promo, fallback)
	return err
}

// fallbackMoveLocked picks the deterministic fallback from a fresh legal list.
func (s *Session) fallbackMoveLocked() (string, error) {
	legal, err := s.deps.Oracle.AllMoves(s.state.Position)
	if err != nil {
		return "", err
	}
	if len(legal) == 0 {
		return "", aimove.ErrNoLegalMoves
	}
	return aimove.Fallback(legal), nil
}

func (s *Session) emitFallbackLocked(move string, cause error) {
	s.emit(Event{
		Kind:    EventAIFallback,
		Version: s.confirmed,
		Side:    aiSide,
		Err:     &AiUnavailableError{Move: move, Cause: cause},
	})
}

// retryAILocked schedules another AI attempt after a backoff, as long as the
// position has not moved on.
func (s *Session) retryAILocked() {
	s.aiFailures++
	delay := backoffDuration(s.aiFailures)
	epoch := s.epoch
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if sleepWithContext(s.ctx, delay) != nil {
			return
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.epoch == epoch {
			s.scheduleAILocked()
		}
	}()
}
