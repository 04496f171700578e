package relay

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/chess-duet/internal/match"
	"github.com/park285/chess-duet/pkg/chessdto"
)

type FeedState string

const (
	FeedDisconnected FeedState = "disconnected"
	FeedConnecting   FeedState = "connecting"
	FeedConnected    FeedState = "connected"
	FeedReconnecting FeedState = "reconnecting"
	FeedFailed       FeedState = "failed"
)

// Feed is a client of a relay session feed. It reconnects with backoff after
// read or ping failures.
type Feed struct {
	url    string
	header http.Header
	logger *zap.Logger

	state  FeedState
	stateM sync.RWMutex

	sessionCbs []func(*chessdto.SessionView)
	eventCbs   []func(*chessdto.EventView)
	stateCbs   []func(FeedState)
	cbM        sync.RWMutex

	maxReconnectAttempts int
	pingInterval         time.Duration

	conn  *websocket.Conn
	connM sync.Mutex

	stopCh     chan struct{}
	stopOnce   sync.Once
	wg         sync.WaitGroup
	rootCtx    context.Context
	rootCancel context.CancelFunc
}

// FeedURL turns a relay base URL into the feed address of session id.
func FeedURL(baseURL, id string) string {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + "/sessions/" + url.PathEscape(id) + "/feed"
}

func NewFeed(feedURL string, maxReconnectAttempts int, logger *zap.Logger) *Feed {
	if logger == nil {
		logger = zap.NewNop()
	}
	f := &Feed{
		url:                  feedURL,
		header:               http.Header{},
		logger:               logger.Named("relay.feed"),
		state:                FeedDisconnected,
		maxReconnectAttempts: maxReconnectAttempts,
		pingInterval:         30 * time.Second,
		stopCh:               make(chan struct{}),
	}
	f.rootCtx, f.rootCancel = context.WithCancel(context.Background())
	return f
}

// SetHeader adds a handshake header.
func (f *Feed) SetHeader(key, value string) {
	if strings.TrimSpace(key) == "" || strings.TrimSpace(value) == "" {
		return
	}
	f.header.Set(key, value)
}

func (f *Feed) OnSession(cb func(*chessdto.SessionView)) {
	f.cbM.Lock()
	defer f.cbM.Unlock()
	f.sessionCbs = append(f.sessionCbs, cb)
}

func (f *Feed) OnEvent(cb func(*chessdto.EventView)) {
	f.cbM.Lock()
	defer f.cbM.Unlock()
	f.eventCbs = append(f.eventCbs, cb)
}

func (f *Feed) OnStateChange(cb func(FeedState)) {
	f.cbM.Lock()
	defer f.cbM.Unlock()
	f.stateCbs = append(f.stateCbs, cb)
}

// Attach hands every received document to the session's reconciler.
func (f *Feed) Attach(s *match.Session) {
	f.OnSession(func(v *chessdto.SessionView) {
		if v != nil && v.Session != nil {
			s.Offer(v.Session)
		}
	})
}

func (f *Feed) State() FeedState {
	f.stateM.RLock()
	defer f.stateM.RUnlock()
	return f.state
}

// Connect dials once; later failures are handled by the reconnect loop.
func (f *Feed) Connect(ctx context.Context) error {
	switch f.State() {
	case FeedConnected, FeedConnecting, FeedReconnecting:
		return nil
	}
	f.setState(FeedConnecting)
	conn, err := f.dial(ctx)
	if err != nil {
		f.setState(FeedFailed)
		return err
	}
	f.setState(FeedConnected)
	f.wg.Add(1)
	go f.run(conn)
	return nil
}

func (f *Feed) dial(ctx context.Context) (*websocket.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(dialCtx, f.url, &websocket.DialOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
		HTTPHeader:      f.header.Clone(),
	})
	if err != nil {
		return nil, err
	}
	conn.SetReadLimit(1 << 20)
	f.connM.Lock()
	f.conn = conn
	f.connM.Unlock()
	return conn, nil
}

func (f *Feed) run(conn *websocket.Conn) {
	defer f.wg.Done()
	for {
		f.listen(conn)
		if f.isStopping() {
			return
		}
		f.setState(FeedReconnecting)
		conn = f.reconnect()
		if conn == nil {
			if !f.isStopping() {
				f.setState(FeedFailed)
			}
			return
		}
		f.setState(FeedConnected)
	}
}

// listen reads frames until the connection fails.
func (f *Feed) listen(conn *websocket.Conn) {
	ctx, cancel := context.WithCancel(f.rootCtx)
	defer cancel()
	go f.pingLoop(ctx, conn)

	for {
		var msg FeedMessage
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			if !f.isStopping() {
				f.logger.Info("feed_read_error", zap.String("url", f.url), zap.Error(err))
			}
			_ = conn.Close(websocket.StatusGoingAway, "reconnect")
			return
		}
		f.dispatch(&msg)
	}
}

func (f *Feed) dispatch(msg *FeedMessage) {
	f.cbM.RLock()
	sessionCbs := append([]func(*chessdto.SessionView){}, f.sessionCbs...)
	eventCbs := append([]func(*chessdto.EventView){}, f.eventCbs...)
	f.cbM.RUnlock()

	switch msg.Type {
	case FrameSession:
		for _, cb := range sessionCbs {
			cb(msg.Session)
		}
	case FrameEvent:
		for _, cb := range eventCbs {
			cb(msg.Event)
		}
	default:
		f.logger.Debug("feed_unknown_frame", zap.String("type", msg.Type))
	}
}

func (f *Feed) pingLoop(ctx context.Context, conn *websocket.Conn) {
	t := time.NewTicker(f.pingInterval)
	defer t.Stop()
	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
			err := conn.Ping(pctx)
			cancel()
			if err == nil {
				failures = 0
				continue
			}
			failures++
			if failures >= 2 {
				// unblocks the reader, which triggers a reconnect
				_ = conn.Close(websocket.StatusGoingAway, "ping failure")
				return
			}
		}
	}
}

func (f *Feed) reconnect() *websocket.Conn {
	for attempt := 1; attempt <= f.maxReconnectAttempts; attempt++ {
		select {
		case <-f.stopCh:
			return nil
		case <-time.After(backoffDuration(attempt)):
		}
		conn, err := f.dial(f.rootCtx)
		if err != nil {
			f.logger.Info("feed_reconnect_failed", zap.Int("attempt", attempt), zap.Error(err))
			continue
		}
		return conn
	}
	return nil
}

func (f *Feed) setState(state FeedState) {
	f.stateM.Lock()
	f.state = state
	f.stateM.Unlock()

	f.cbM.RLock()
	callbacks := append([]func(FeedState){}, f.stateCbs...)
	f.cbM.RUnlock()
	for _, cb := range callbacks {
		cb(state)
	}
}

func (f *Feed) isStopping() bool {
	select {
	case <-f.stopCh:
		return true
	default:
		return false
	}
}

func (f *Feed) Close(ctx context.Context) error {
	f.stopOnce.Do(func() { close(f.stopCh) })
	// a canceled read closes the connection
	f.rootCancel()
	f.connM.Lock()
	if f.conn != nil {
		_ = f.conn.Close(websocket.StatusNormalClosure, "close")
	}
	f.connM.Unlock()

	done := make(chan struct{})
	go func() {
		f.wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		f.setState(FeedDisconnected)
		return nil
	}
}

func backoffDuration(attempt int) time.Duration {
	attempt = min(max(attempt, 1), 5)
	return time.Duration(1<<uint(attempt-1)) * 250 * time.Millisecond
}
