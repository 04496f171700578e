package match

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/park285/chess-duet/internal/store"
	"github.com/park285/chess-duet/pkg/chessdto"
)

// requestFlush wakes the persister. Repeated requests coalesce.
func (s *Session) requestFlush() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

func (s *Session) persistLoop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.kick:
			s.flush(s.ctx)
		}
	}
}

// flush writes the latest local document, preconditioned on the confirmed
// version, until nothing is pending or attempts run out.
func (s *Session) flush(ctx context.Context) {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	attempt := 0
	for {
		s.mu.Lock()
		if s.localRev == s.persistedRev {
			s.mu.Unlock()
			return
		}
		snap := s.state.Clone()
		rev, expect := s.localRev, s.confirmed
		s.lastSubmitted = snap
		s.mu.Unlock()

		res, err := s.deps.Store.Update(ctx, s.id, expect, store.FullPatch(snap))
		switch {
		case err == nil:
			s.mu.Lock()
			if res.Version > s.confirmed {
				s.confirmed = res.Version
				s.state.Version = res.Version
			}
			if rev > s.persistedRev {
				s.persistedRev = rev
			}
			archive := res.Status == chessdto.StatusComplete && !s.archived
			if archive {
				s.archived = true
			}
			s.mu.Unlock()
			s.logger.Debug("persisted", zap.Uint64("version", res.Version))
			if archive {
				s.archiveAsync(res)
			}
			attempt = 0

		case errors.Is(err, store.ErrVersionConflict):
			attempt++
			s.logger.Info("persist_conflict", zap.Uint64("expected", expect), zap.Error(err))
			if perr := s.pull(ctx); perr != nil {
				s.logger.Warn("persist_pull_failed", zap.Error(perr))
				return
			}
			if attempt >= s.cfg.PersistMaxAttempts {
				return
			}

		case ctx.Err() != nil:
			return

		default:
			attempt++
			perr := &PersistenceError{Attempt: attempt, Err: err}
			s.emit(Event{Kind: EventPersistRetry, Err: perr})
			if attempt >= s.cfg.PersistMaxAttempts {
				s.logger.Error("persist_give_up", zap.Int("attempts", attempt), zap.Error(err))
				return
			}
			s.logger.Warn("persist_retry", zap.Int("attempt", attempt), zap.Error(err))
			if sleepWithContext(ctx, backoffDuration(attempt)) != nil {
				return
			}
		}
	}
}

func (s *Session) archiveAsync(doc *chessdto.GameSession) {
	if s.deps.Archive == nil {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.deps.Archive.SaveResult(ctx, doc); err != nil {
			s.logger.Warn("archive_failed", zap.Error(err))
			return
		}
		s.logger.Info("archived", zap.Uint64("version", doc.Version))
	}()
}

// analyzeAsyncLocked requests the post-game analysis. Failures only log.
func (s *Session) analyzeAsyncLocked() {
	if s.deps.Analyst == nil || len(s.state.MoveHistory) == 0 {
		return
	}
	history := append([]string(nil), s.state.MoveHistory...)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		analysis, err := s.deps.Analyst.Analyze(s.ctx, history)
		if err != nil {
			s.logger.Info("analysis_unavailable", zap.Error(err))
			return
		}
		s.emit(Event{Kind: EventAnalysis, Analysis: &analysis})
	}()
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func backoffDuration(attempt int) time.Duration {
	attempt = min(max(attempt, 1), 6)
	return time.Duration(1<<uint(attempt-1)) * 100 * time.Millisecond
}
