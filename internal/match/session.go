// Package match runs one chess session: local moves are applied at once and
// replicated to the session store with version-preconditioned writes, remote
// documents are reconciled by version, and the AI side is driven when it is to move.
package match

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/park285/chess-duet/internal/aimove"
	"github.com/park285/chess-duet/internal/rules"
	"github.com/park285/chess-duet/internal/store"
	"github.com/park285/chess-duet/pkg/chessdto"
)

// Tutor explains an attempted move in learning mode.
type Tutor interface {
	Feedback(ctx context.Context, position string, from, to rules.Square, promotion string) chessdto.MoveFeedback
}

// Analyst summarizes a finished game.
type Analyst interface {
	Analyze(ctx context.Context, history []string) (chessdto.Analysis, error)
}

// Archiver keeps completed sessions.
type Archiver interface {
	SaveResult(ctx context.Context, doc *chessdto.GameSession) error
}

// Deps are the capabilities a session uses. Store and Oracle are required.
type Deps struct {
	Store   store.Store
	Oracle  rules.Oracle
	AI      *aimove.Coordinator
	Tutor   Tutor
	Analyst Analyst
	Archive Archiver
	Logger  *zap.Logger
}

type Config struct {
	PersistMaxAttempts int
	EventBuffer        int
	Now                func() time.Time
}

func (c Config) withDefaults() Config {
	if c.PersistMaxAttempts <= 0 {
		c.PersistMaxAttempts = 5
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = 64
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// aiSide is the seat the AI occupies in AI mode. The human is player1 and plays white.
const aiSide = chessdto.SideBlack

type Phase int

const (
	PhaseIdle Phase = iota
	PhaseSelecting
	PhaseValidating
	PhaseCommitting
	PhaseReconciling
)

func (p Phase) String() string {
	switch p {
	case PhaseSelecting:
		return "selecting"
	case PhaseValidating:
		return "validating"
	case PhaseCommitting:
		return "committing"
	case PhaseReconciling:
		return "reconciling"
	default:
		return "idle"
	}
}

// Session is the session-scoped context: every store, oracle and AI call for
// one game goes through it.
type Session struct {
	id     string
	deps   Deps
	cfg    Config
	logger *zap.Logger
	now    func() time.Time

	mu    sync.Mutex
	state *chessdto.GameSession
	// confirmed is the last version the store acknowledged or pushed.
	confirmed uint64
	// localRev counts local mutations; persistedRev is the last one the store holds.
	localRev      uint64
	persistedRev  uint64
	lastSubmitted *chessdto.GameSession
	phase         Phase
	epoch         uint64
	aiInFlight    bool
	aiFailures    int
	archived      bool
	detector      *Detector
	closed        bool

	flushMu sync.Mutex
	kick    chan struct{}

	evMu         sync.Mutex
	events       chan Event
	eventsClosed bool

	sub    *store.Subscription
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewDocument builds a fresh session document. player2 may be empty for a PvP
// game that is still waiting for an opponent.
func NewDocument(mode chessdto.Mode, player1, player2 string, difficulty chessdto.Difficulty, initial string) *chessdto.GameSession {
	doc := &chessdto.GameSession{
		ID:              uuid.NewString(),
		InitialPosition: strings.TrimSpace(initial),
		MoveHistory:     []string{},
		Participants:    chessdto.Participants{Player1ID: strings.TrimSpace(player1), Player2ID: strings.TrimSpace(player2)},
		Mode:            mode,
		Status:          chessdto.StatusInProgress,
	}
	doc.Position = doc.Start()
	doc.Turn = chessdto.SideWhite
	if f := strings.Fields(doc.Position); len(f) > 1 && f[1] == "b" {
		doc.Turn = chessdto.SideBlack
	}
	if mode == chessdto.ModeAI {
		doc.Difficulty = chessdto.ParseDifficulty(string(difficulty))
	}
	if mode == chessdto.ModePvP && doc.Participants.Player2ID == "" {
		doc.Status = chessdto.StatusWaiting
	}
	return doc
}

// Start stores doc and opens a session on it.
func Start(ctx context.Context, deps Deps, cfg Config, doc *chessdto.GameSession) (*Session, error) {
	if err := checkDeps(deps); err != nil {
		return nil, err
	}
	if _, err := deps.Oracle.FromNotation(doc.Position); err != nil {
		return nil, err
	}
	created, err := deps.Store.Create(ctx, doc)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return attach(ctx, deps, cfg, created)
}

// Open attaches to an existing session document.
func Open(ctx context.Context, deps Deps, cfg Config, id string) (*Session, error) {
	if err := checkDeps(deps); err != nil {
		return nil, err
	}
	doc, err := deps.Store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return attach(ctx, deps, cfg, doc)
}

func checkDeps(deps Deps) error {
	if deps.Store == nil || deps.Oracle == nil {
		return fmt.Errorf("session requires a store and a rules oracle")
	}
	return nil
}

func attach(ctx context.Context, deps Deps, cfg Config, doc *chessdto.GameSession) (*Session, error) {
	cfg = cfg.withDefaults()
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.AI == nil {
		deps.AI = aimove.NewCoordinator(nil, deps.Oracle)
	}
	sub, err := deps.Store.Subscribe(ctx, doc.ID)
	if err != nil {
		return nil, err
	}

	s := &Session{
		id:        doc.ID,
		deps:      deps,
		cfg:       cfg,
		logger:    deps.Logger.Named("match").With(zap.String("session_id", doc.ID)),
		now:       cfg.Now,
		state:     doc.Clone(),
		confirmed: doc.Version,
		detector:  NewDetector(deps.Oracle),
		kick:      make(chan struct{}, 1),
		events:    make(chan Event, cfg.EventBuffer),
		sub:       sub,
	}
	s.detector.Seed(s.state)
	s.ctx, s.cancel = context.WithCancel(context.Background())

	s.wg.Add(2)
	go s.reconcileLoop()
	go s.persistLoop()

	// a write between the read and the subscription would otherwise be missed
	if latest, err := deps.Store.Get(ctx, doc.ID); err == nil {
		s.applyRemote(latest, "open")
	}

	s.mu.Lock()
	s.scheduleAILocked()
	s.mu.Unlock()

	s.logger.Info("session_opened",
		zap.String("mode", string(doc.Mode)),
		zap.String("status", string(doc.Status)),
		zap.Uint64("version", doc.Version))
	return s, nil
}

func (s *Session) ID() string { return s.id }

// Events delivers notices until Close.
func (s *Session) Events() <-chan Event { return s.events }

// Snapshot returns a copy of the local authoritative document.
func (s *Session) Snapshot() *chessdto.GameSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Pending reports whether local changes are not yet acknowledged by the store.
func (s *Session) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.localRev != s.persistedRev
}

// Close stops background work, makes a last attempt to persist pending
// changes and closes the event channel.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.epoch++
	s.mu.Unlock()

	s.cancel()
	err := s.sub.Close()
	s.wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	s.flush(ctx)
	cancel()
	s.wg.Wait()

	s.closeEvents()
	s.logger.Info("session_closed")
	return err
}
