// Package store persists session documents with version-preconditioned writes
// and exposes a push feed of remote changes.
package store

import (
	"context"
	"errors"
	"sync"

	"github.com/park285/chess-duet/pkg/chessdto"
)

var (
	ErrNotFound        = errors.New("session not found")
	ErrExists          = errors.New("session already exists")
	ErrVersionConflict = errors.New("session version conflict")
)

// Store is the session store capability.
type Store interface {
	// Create stores a new document at version 1 unless a version is set.
	Create(ctx context.Context, doc *chessdto.GameSession) (*chessdto.GameSession, error)
	// Get is a one-shot read.
	Get(ctx context.Context, id string) (*chessdto.GameSession, error)
	// Update applies patch only if the stored version equals expect, and bumps
	// the version by one. A mismatch returns ErrVersionConflict.
	Update(ctx context.Context, id string, expect uint64, patch Patch) (*chessdto.GameSession, error)
	// Subscribe delivers every committed document for id until closed.
	Subscribe(ctx context.Context, id string) (*Subscription, error)
	Close() error
}

// Patch is a partial update. Nil fields are left untouched.
type Patch struct {
	Position        *string
	InitialPosition *string
	Turn            *chessdto.Side
	MoveHistory     *[]string
	Participants    *chessdto.Participants
	Mode            *chessdto.Mode
	Difficulty      *chessdto.Difficulty
	Status          *chessdto.Status
	Outcome         *string
	Method          *string
}

// FullPatch replaces every game-state field with the values in doc.
func FullPatch(doc *chessdto.GameSession) Patch {
	history := append([]string(nil), doc.MoveHistory...)
	if history == nil {
		history = []string{}
	}
	return Patch{
		Position:        &doc.Position,
		InitialPosition: &doc.InitialPosition,
		Turn:            &doc.Turn,
		MoveHistory:     &history,
		Participants:    &doc.Participants,
		Mode:            &doc.Mode,
		Difficulty:      &doc.Difficulty,
		Status:          &doc.Status,
		Outcome:         &doc.Outcome,
		Method:          &doc.Method,
	}
}

// Apply writes the set fields of p into doc.
func (p Patch) Apply(doc *chessdto.GameSession) {
	if p.Position != nil {
		doc.Position = *p.Position
	}
	if p.InitialPosition != nil {
		doc.InitialPosition = *p.InitialPosition
	}
	if p.Turn != nil {
		doc.Turn = *p.Turn
	}
	if p.MoveHistory != nil {
		doc.MoveHistory = append([]string{}, (*p.MoveHistory)...)
	}
	if p.Participants != nil {
		doc.Participants = *p.Participants
	}
	if p.Mode != nil {
		doc.Mode = *p.Mode
	}
	if p.Difficulty != nil {
		doc.Difficulty = *p.Difficulty
	}
	if p.Status != nil {
		doc.Status = *p.Status
	}
	if p.Outcome != nil {
		doc.Outcome = *p.Outcome
	}
	if p.Method != nil {
		doc.Method = *p.Method
	}
}

// Subscription is a bounded push feed. When the consumer falls behind the
// oldest pending document is dropped; only the newest state matters.
type Subscription struct {
	C <-chan *chessdto.GameSession

	feed    *feed
	closeFn func() error
	once    sync.Once
}

func (s *Subscription) Close() error {
	var err error
	s.once.Do(func() {
		if s.closeFn != nil {
			err = s.closeFn()
		}
		s.feed.close()
	})
	return err
}

type feed struct {
	mu     sync.Mutex
	ch     chan *chessdto.GameSession
	closed bool
}

func newFeed(size int) *feed {
	if size <= 0 {
		size = 16
	}
	return &feed{ch: make(chan *chessdto.GameSession, size)}
}

func (f *feed) push(doc *chessdto.GameSession) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	select {
	case f.ch <- doc:
		return
	default:
	}
	select {
	case <-f.ch:
	default:
	}
	select {
	case f.ch <- doc:
	default:
	}
}

func (f *feed) close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.ch)
	}
}

func newSubscription(f *feed, closeFn func() error) *Subscription {
	return &Subscription{C: f.ch, feed: f, closeFn: closeFn}
}
