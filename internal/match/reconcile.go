package match

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/park285/chess-duet/pkg/chessdto"
)

func (s *Session) reconcileLoop() {
	defer s.wg.Done()
	for doc := range s.sub.C {
		s.applyRemote(doc, "feed")
	}
}

// Resync forces a one-shot read, used when the client regains focus, and
// retries any pending write.
func (s *Session) Resync(ctx context.Context) error {
	doc, err := s.deps.Store.Get(ctx, s.id)
	if err != nil {
		return fmt.Errorf("resync %s: %w", s.id, err)
	}
	s.applyRemote(doc, "resync")
	s.requestFlush()
	return nil
}

func (s *Session) pull(ctx context.Context) error {
	doc, err := s.deps.Store.Get(ctx, s.id)
	if err != nil {
		return err
	}
	s.applyRemote(doc, "pull")
	return nil
}

// applyRemote is the single reducer for remote documents. Only documents with
// a version newer than the confirmed one are considered, so delivering the same
// document twice is a no-op.
func (s *Session) applyRemote(remote *chessdto.GameSession, source string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || remote == nil || remote.ID != s.id || remote.Version <= s.confirmed {
		return false
	}
	prev := s.phase
	s.phase = PhaseReconciling
	defer func() { s.phase = prev }()

	localVersion := s.confirmed
	s.confirmed = remote.Version

	switch {
	case remote.SameState(s.state):
		s.state.Version = remote.Version
		s.persistedRev = s.localRev
		s.logger.Debug("reconcile_confirmed", zap.String("source", source), zap.Uint64("version", remote.Version))
		return true
	case s.lastSubmitted != nil && remote.SameState(s.lastSubmitted):
		// echo of our own write; newer local moves are still pending
		s.state.Version = remote.Version
		s.logger.Debug("reconcile_echo", zap.String("source", source), zap.Uint64("version", remote.Version))
		s.requestFlush()
		return true
	}

	local := s.state
	fastForward := remote.Start() == local.Start() && remote.HistoryExtends(local.MoveHistory)
	dropped := s.localRev != s.persistedRev

	s.state = remote.Clone()
	s.persistedRev = s.localRev
	s.lastSubmitted = nil
	s.epoch++
	if !fastForward && remote.Status != chessdto.StatusComplete {
		s.detector.Reset()
	}

	s.logger.Info("reconcile_applied",
		zap.String("source", source),
		zap.Uint64("local_version", localVersion),
		zap.Uint64("remote_version", remote.Version),
		zap.Bool("fast_forward", fastForward),
		zap.Bool("dropped_local", dropped))
	if !fastForward || dropped {
		s.emit(Event{Kind: EventSyncConflict, Version: remote.Version, Err: &SyncConflictError{Local: localVersion, Remote: remote.Version}})
	}
	s.emit(Event{Kind: EventRemoteApplied, Version: remote.Version, Side: remote.Turn.Opponent()})

	verdict := s.detector.Observe(s.state)
	if s.applyVerdictLocked(verdict) {
		s.localRev++
		s.requestFlush()
	}
	s.emitVerdictLocked(verdict)
	s.scheduleAILocked()
	return true
}

// Offer hands the reconciler a document that arrived outside the store feed,
// for example from a relay connection.
func (s *Session) Offer(doc *chessdto.GameSession) bool {
	return s.applyRemote(doc.Clone(), "offer")
}
