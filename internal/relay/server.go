// Package relay exposes sessions over HTTP: one-shot reads, hosted move
// execution and a WebSocket feed of documents and notices.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/chess-duet/internal/adapter/chesspresenter"
	"github.com/park285/chess-duet/internal/lobby"
	"github.com/park285/chess-duet/internal/match"
	"github.com/park285/chess-duet/internal/msgcat"
	"github.com/park285/chess-duet/internal/presenter"
	"github.com/park285/chess-duet/internal/rules"
	"github.com/park285/chess-duet/internal/store"
	"github.com/park285/chess-duet/pkg/chessdto"
)

// FeedMessage is one frame of the session feed.
type FeedMessage struct {
	Type    string                `json:"type"`
	Session *chessdto.SessionView `json:"session,omitempty"`
	Event   *chessdto.EventView   `json:"event,omitempty"`
}

const (
	FrameSession = "session"
	FrameEvent   = "event"
)

type Options struct {
	Store     store.Store
	Hub       *Hub
	Lobby     *lobby.Lobby
	Catalog   *msgcat.Catalog
	Formatter *chesspresenter.Formatter
	Logger    *zap.Logger
	// OriginPatterns are accepted for cross-origin feed connections.
	OriginPatterns []string
	PingInterval   time.Duration
}

type Server struct {
	opt      Options
	validate *validator.Validate
	logger   *zap.Logger
	now      func() time.Time
}

func NewServer(opt Options) *Server {
	if opt.Catalog == nil {
		opt.Catalog = msgcat.Default()
	}
	if opt.Formatter == nil {
		opt.Formatter = chesspresenter.NewFormatter(opt.Catalog)
	}
	if opt.Logger == nil {
		opt.Logger = zap.NewNop()
	}
	if opt.PingInterval <= 0 {
		opt.PingInterval = 30 * time.Second
	}
	return &Server{opt: opt, validate: validator.New(), logger: opt.Logger.Named("relay"), now: time.Now}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/sessions", func(r chi.Router) {
		r.Post("/", s.createSession)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.getSession)
			r.Post("/moves", s.postMove)
			r.Get("/targets/{square}", s.getTargets)
			r.Post("/restart", s.restart)
			r.Post("/mode", s.switchMode)
			r.Post("/resync", s.resync)
			r.Get("/feed", s.feed)
		})
	})

	if s.opt.Lobby != nil {
		r.Route("/lobby", func(r chi.Router) {
			r.Get("/", s.listLobby)
			r.Post("/", s.openLobby)
			r.Post("/{code}/join", s.joinLobby)
		})
	}
	return r
}

// ListenAndServe serves until ctx ends, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Routes(), ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.logger.Info("relay_listening", zap.String("addr", addr))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type createRequest struct {
	Mode            chessdto.Mode `json:"mode" validate:"required,oneof=AI PvP Learning"`
	Player1         string        `json:"player1" validate:"required"`
	Player2         string        `json:"player2" validate:"omitempty,nefield=Player1"`
	Difficulty      string        `json:"difficulty" validate:"omitempty,oneof=easy medium hard"`
	InitialPosition string        `json:"initialPosition"`
}

type moveRequest struct {
	Player string `json:"player" validate:"required"`
	Move   string `json:"move" validate:"required,min=4,max=5"`
}

type playerRequest struct {
	Player string `json:"player" validate:"required"`
}

type modeRequest struct {
	Player     string        `json:"player" validate:"required"`
	Mode       chessdto.Mode `json:"mode" validate:"required,oneof=AI Learning"`
	Difficulty string        `json:"difficulty" validate:"omitempty,oneof=easy medium hard"`
}

type lobbyRequest struct {
	Player          string `json:"player" validate:"required"`
	InitialPosition string `json:"initialPosition"`
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		badRequest(w, "invalid JSON body")
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		badRequest(w, err.Error())
		return false
	}
	return true
}

func (s *Server) view(doc *chessdto.GameSession) chessdto.SessionView {
	return presenter.View(s.opt.Catalog, doc, s.now())
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Mode != chessdto.ModePvP && req.Player2 != "" {
		badRequest(w, "player2 is only used in PvP")
		return
	}
	doc := match.NewDocument(req.Mode, req.Player1, req.Player2, chessdto.Difficulty(req.Difficulty), req.InitialPosition)
	sess, err := s.opt.Hub.Start(r.Context(), doc)
	if err != nil {
		s.logger.Warn("session_create_failed", zap.Error(err))
		writeFailure(w, err, "")
		return
	}
	writeJSON(w, http.StatusCreated, s.view(sess.Snapshot()))
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	doc, err := s.opt.Store.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeFailure(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, s.view(doc))
}

func (s *Server) hosted(w http.ResponseWriter, r *http.Request) (*match.Session, bool) {
	sess, err := s.opt.Hub.Session(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeFailure(w, err, "")
		return nil, false
	}
	return sess, true
}

func (s *Server) postMove(w http.ResponseWriter, r *http.Request) {
	var req moveRequest
	if !s.decode(w, r, &req) {
		return
	}
	sess, ok := s.hosted(w, r)
	if !ok {
		return
	}
	turn := sess.Snapshot().Turn
	sum, err := sess.ExecuteUCI(r.Context(), req.Player, strings.TrimSpace(req.Move))
	if err != nil {
		writeFailure(w, err, s.opt.Formatter.Rejection(err, turn))
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) getTargets(w http.ResponseWriter, r *http.Request) {
	player := r.URL.Query().Get("player")
	if player == "" {
		badRequest(w, "player query parameter required")
		return
	}
	sess, ok := s.hosted(w, r)
	if !ok {
		return
	}
	targets, err := sess.LegalTargets(player, chessSquare(chi.URLParam(r, "square")))
	if err != nil {
		writeFailure(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, targets)
}

func (s *Server) restart(w http.ResponseWriter, r *http.Request) {
	var req playerRequest
	if !s.decode(w, r, &req) {
		return
	}
	sess, ok := s.participant(w, r, req.Player)
	if !ok {
		return
	}
	if err := sess.Restart(r.Context()); err != nil {
		writeFailure(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, s.view(sess.Snapshot()))
}

func (s *Server) switchMode(w http.ResponseWriter, r *http.Request) {
	var req modeRequest
	if !s.decode(w, r, &req) {
		return
	}
	sess, ok := s.participant(w, r, req.Player)
	if !ok {
		return
	}
	if err := sess.SwitchMode(r.Context(), req.Mode, chessdto.Difficulty(req.Difficulty)); err != nil {
		writeFailure(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, s.view(sess.Snapshot()))
}

func (s *Server) resync(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.hosted(w, r)
	if !ok {
		return
	}
	if err := sess.Resync(r.Context()); err != nil {
		writeFailure(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, s.view(sess.Snapshot()))
}

func (s *Server) participant(w http.ResponseWriter, r *http.Request, player string) (*match.Session, bool) {
	sess, ok := s.hosted(w, r)
	if !ok {
		return nil, false
	}
	if _, seated := sess.Snapshot().SideOf(player); !seated {
		writeFailure(w, match.ErrNotParticipant, "")
		return nil, false
	}
	return sess, true
}

func (s *Server) listLobby(w http.ResponseWriter, r *http.Request) {
	list, err := s.opt.Lobby.List(r.Context())
	if err != nil {
		writeFailure(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) openLobby(w http.ResponseWriter, r *http.Request) {
	var req lobbyRequest
	if !s.decode(w, r, &req) {
		return
	}
	code, doc, err := s.opt.Lobby.Open(r.Context(), req.Player, req.InitialPosition)
	if err != nil {
		writeFailure(w, err, "")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"code": code, "session": s.view(doc)})
}

func (s *Server) joinLobby(w http.ResponseWriter, r *http.Request) {
	var req playerRequest
	if !s.decode(w, r, &req) {
		return
	}
	doc, err := s.opt.Lobby.Join(r.Context(), chi.URLParam(r, "code"), req.Player)
	if err != nil {
		writeFailure(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, s.view(doc))
}

// feed streams every committed document of the session plus the notices of
// the hosted session, if any.
func (s *Server) feed(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	doc, err := s.opt.Store.Get(r.Context(), id)
	if err != nil {
		writeFailure(w, err, "")
		return
	}
	sub, err := s.opt.Store.Subscribe(r.Context(), id)
	if err != nil {
		writeFailure(w, err, "")
		return
	}
	defer sub.Close()
	events, stop := s.opt.Hub.Listen(id)
	defer stop()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:  s.opt.OriginPatterns,
		CompressionMode: websocket.CompressionNoContextTakeover,
	})
	if err != nil {
		s.logger.Warn("feed_accept_error", zap.String("session_id", id), zap.Error(err))
		return
	}
	defer conn.Close(websocket.StatusInternalError, "feed ended")
	s.logger.Info("feed_open", zap.String("session_id", id))

	// clients only listen; CloseRead handles control frames and reports the close
	ctx := conn.CloseRead(r.Context())
	ticker := time.NewTicker(s.opt.PingInterval)
	defer ticker.Stop()

	write := func(msg FeedMessage) error {
		wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return wsjson.Write(wctx, conn, msg)
	}
	view := s.view(doc)
	if err := write(FeedMessage{Type: FrameSession, Session: &view}); err != nil {
		return
	}
	for {
		var err error
		select {
		case <-ctx.Done():
			s.logger.Info("feed_closed", zap.String("session_id", id))
			return
		case doc, ok := <-sub.C:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "store feed closed")
				return
			}
			view := s.view(doc)
			err = write(FeedMessage{Type: FrameSession, Session: &view})
		case ev := <-events:
			err = write(FeedMessage{Type: FrameEvent, Event: &ev})
		case <-ticker.C:
			pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err = conn.Ping(pctx)
			cancel()
		}
		if err != nil {
			s.logger.Info("feed_write_error", zap.String("session_id", id), zap.Error(err))
			return
		}
	}
}

func chessSquare(raw string) rules.Square {
	return rules.Square(strings.ToLower(strings.TrimSpace(raw)))
}
