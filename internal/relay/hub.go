package relay

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/park285/chess-duet/internal/adapter/chesspresenter"
	"github.com/park285/chess-duet/internal/match"
	"github.com/park285/chess-duet/pkg/chessdto"
)

var ErrHubClosed = errors.New("relay hub closed")

// Hub hosts sessions on behalf of thin clients and fans their events out to
// feed listeners.
type Hub struct {
	deps      match.Deps
	cfg       match.Config
	presenter *chesspresenter.Presenter
	logger    *zap.Logger

	mu        sync.Mutex
	sessions  map[string]*match.Session
	listeners map[string]map[chan chessdto.EventView]struct{}
	closed    bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewHub(deps match.Deps, cfg match.Config, formatter *chesspresenter.Formatter) *Hub {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Hub{
		deps:      deps,
		cfg:       cfg,
		logger:    logger.Named("relay.hub"),
		sessions:  make(map[string]*match.Session),
		listeners: make(map[string]map[chan chessdto.EventView]struct{}),
	}
	h.presenter = chesspresenter.NewPresenter(h.broadcast, formatter, h.logger)
	h.ctx, h.cancel = context.WithCancel(context.Background())
	return h
}

// Start creates doc in the store and hosts it.
func (h *Hub) Start(ctx context.Context, doc *chessdto.GameSession) (*match.Session, error) {
	if h.isClosed() {
		return nil, ErrHubClosed
	}
	s, err := match.Start(ctx, h.deps, h.cfg, doc)
	if err != nil {
		return nil, err
	}
	return h.host(s)
}

// Session returns the hosted session for id, attaching to the stored document
// on first use.
func (h *Hub) Session(ctx context.Context, id string) (*match.Session, error) {
	h.mu.Lock()
	s, ok := h.sessions[id]
	h.mu.Unlock()
	if ok {
		return s, nil
	}
	if h.isClosed() {
		return nil, ErrHubClosed
	}
	s, err := match.Open(ctx, h.deps, h.cfg, id)
	if err != nil {
		return nil, err
	}
	return h.host(s)
}

func (h *Hub) host(s *match.Session) (*match.Session, error) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = s.Close()
		return nil, ErrHubClosed
	}
	if existing, ok := h.sessions[s.ID()]; ok {
		// lost a race with a concurrent attach
		h.mu.Unlock()
		_ = s.Close()
		return existing, nil
	}
	h.sessions[s.ID()] = s
	h.wg.Add(1)
	h.mu.Unlock()

	go func() {
		defer h.wg.Done()
		h.presenter.Run(h.ctx, s.ID(), s.Events())
	}()
	h.logger.Info("session_hosted", zap.String("session_id", s.ID()))
	return s, nil
}

// Listen registers for event views of session id until cancel is called.
func (h *Hub) Listen(id string) (<-chan chessdto.EventView, func()) {
	ch := make(chan chessdto.EventView, 32)
	h.mu.Lock()
	set, ok := h.listeners[id]
	if !ok {
		set = make(map[chan chessdto.EventView]struct{})
		h.listeners[id] = set
	}
	set[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if set, ok := h.listeners[id]; ok {
				delete(set, ch)
				if len(set) == 0 {
					delete(h.listeners, id)
				}
			}
		})
	}
}

func (h *Hub) broadcast(room string, view chessdto.EventView) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.listeners[room] {
		select {
		case ch <- view:
		default:
			h.logger.Warn("feed_listener_lagging", zap.String("session_id", room), zap.String("kind", view.Kind))
		}
	}
	return nil
}

// Release closes and forgets the hosted session id.
func (h *Hub) Release(id string) error {
	h.mu.Lock()
	s, ok := h.sessions[id]
	delete(h.sessions, id)
	h.mu.Unlock()
	if !ok {
		return nil
	}
	return s.Close()
}

func (h *Hub) isClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

// Close closes every hosted session, letting each flush its pending moves.
func (h *Hub) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	sessions := make([]*match.Session, 0, len(h.sessions))
	for id, s := range h.sessions {
		sessions = append(sessions, s)
		delete(h.sessions, id)
	}
	h.mu.Unlock()

	var errs []error
	for _, s := range sessions {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	h.cancel()
	h.wg.Wait()
	return errors.Join(errs...)
}
