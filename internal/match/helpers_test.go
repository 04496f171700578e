package match

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/park285/chess-duet/internal/aimove"
	"github.com/park285/chess-duet/internal/rules"
	"github.com/park285/chess-duet/internal/store"
	"github.com/park285/chess-duet/pkg/chessdto"
)

const waitFor = 3 * time.Second

func newRedisStore(t *testing.T) *store.Redis {
	t.Helper()
	mr := miniredis.RunT(t)
	st, err := store.NewRedis("redis://" + mr.Addr() + "/0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func newLocalStore(t *testing.T) *store.Local {
	t.Helper()
	st, err := store.OpenLocal(filepath.Join(t.TempDir(), "sessions.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func startSession(t *testing.T, deps Deps, doc *chessdto.GameSession) *Session {
	t.Helper()
	if deps.Oracle == nil {
		deps.Oracle = rules.NewStandard()
	}
	s, err := Start(context.Background(), deps, Config{}, doc)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// nextEvent reads events until one of kind arrives.
func nextEvent(t *testing.T, s *Session, kind EventKind) Event {
	t.Helper()
	timeout := time.After(waitFor)
	for {
		select {
		case ev, ok := <-s.Events():
			require.True(t, ok, "event channel closed while waiting for %s", kind)
			if ev.Kind == kind {
				return ev
			}
		case <-timeout:
			t.Fatalf("no %s event within %v", kind, waitFor)
		}
	}
}

// drainEvents collects events until none arrives for quiet.
func drainEvents(s *Session, quiet time.Duration) []Event {
	var out []Event
	for {
		select {
		case ev, ok := <-s.Events():
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-time.After(quiet):
			return out
		}
	}
}

func countKind(events []Event, kind EventKind) int {
	n := 0
	for _, ev := range events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

type mockCapability struct {
	mock.Mock
}

func (m *mockCapability) Name() string { return "mock" }

func (m *mockCapability) SuggestMove(ctx context.Context, req aimove.MoveRequest) (aimove.MoveResponse, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(aimove.MoveResponse), args.Error(1)
}

// laggingStore never delivers pushes, like a device whose feed is behind.
type laggingStore struct {
	store.Store
}

func (l laggingStore) Subscribe(ctx context.Context, id string) (*store.Subscription, error) {
	return l.Store.Subscribe(ctx, "lagging:"+id)
}

// flakyStore fails the next n updates with a transport error.
type flakyStore struct {
	store.Store
	failures atomic.Int32
}

func (f *flakyStore) Update(ctx context.Context, id string, expect uint64, patch store.Patch) (*chessdto.GameSession, error) {
	if f.failures.Add(-1) >= 0 {
		return nil, errors.New("connection reset by peer")
	}
	return f.Store.Update(ctx, id, expect, patch)
}

// advance commits moves through the store directly, as another client would.
func advance(t *testing.T, st store.Store, oracle rules.Oracle, id string, moves ...string) *chessdto.GameSession {
	t.Helper()
	ctx := context.Background()
	doc, err := st.Get(ctx, id)
	require.NoError(t, err)
	for _, mv := range moves {
		from, to, promo, err := rules.ParseUCI(mv)
		require.NoError(t, err)
		applied, err := oracle.ApplyMove(doc.Position, from, to, promo)
		require.NoError(t, err)
		history := append(append([]string{}, doc.MoveHistory...), applied.SAN)
		doc, err = st.Update(ctx, id, doc.Version, store.Patch{Position: &applied.Position, Turn: &applied.Turn, MoveHistory: &history})
		require.NoError(t, err)
	}
	return doc
}

// flakyOracle fails the next n AllMoves calls.
type flakyOracle struct {
	rules.Oracle
	failures atomic.Int32
}

func (f *flakyOracle) AllMoves(position string) ([]string, error) {
	if f.failures.Add(-1) >= 0 {
		return nil, errors.New("move generator unavailable")
	}
	return f.Oracle.AllMoves(position)
}
