package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/adrg/xdg"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/park285/chess-duet/pkg/chessdto"
)

const localSchema = `
CREATE TABLE IF NOT EXISTS sessions (
	id         TEXT PRIMARY KEY,
	version    INTEGER NOT NULL,
	doc        TEXT NOT NULL,
	updated_at TEXT NOT NULL
)`

// Local is a single-process store for AI and Learning sessions, backed by a
// SQLite file. The feed is an in-process fan-out.
type Local struct {
	db       *sql.DB
	logger   *zap.Logger
	feedSize int
	now      func() time.Time

	mu   sync.Mutex
	subs map[string]map[*feed]struct{}
}

// DefaultLocalPath returns the per-user data file location.
func DefaultLocalPath() (string, error) {
	return xdg.DataFile("chess-duet/sessions.db")
}

// OpenLocal opens (or creates) the database at path; an empty path uses
// DefaultLocalPath.
func OpenLocal(path string, logger *zap.Logger) (*Local, error) {
	if strings.TrimSpace(path) == "" {
		p, err := DefaultLocalPath()
		if err != nil {
			return nil, fmt.Errorf("resolve local store path: %w", err)
		}
		path = p
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open local store: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect local store: %w", err)
	}
	// one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("execute %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(localSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply local schema: %w", err)
	}
	return &Local{
		db:       db,
		logger:   logger,
		feedSize: 16,
		now:      time.Now,
		subs:     make(map[string]map[*feed]struct{}),
	}, nil
}

func (l *Local) Close() error {
	l.mu.Lock()
	for id, set := range l.subs {
		for f := range set {
			f.close()
		}
		delete(l.subs, id)
	}
	l.mu.Unlock()
	return l.db.Close()
}

func (l *Local) Create(ctx context.Context, doc *chessdto.GameSession) (*chessdto.GameSession, error) {
	next := doc.Clone()
	stamp(next, l.now())
	if err := next.Validate(); err != nil {
		return nil, err
	}
	raw, err := json.Marshal(next)
	if err != nil {
		return nil, fmt.Errorf("encode session: %w", err)
	}
	res, err := l.db.ExecContext(ctx,
		`INSERT INTO sessions (id, version, doc, updated_at) VALUES (?, ?, ?, ?) ON CONFLICT(id) DO NOTHING`,
		next.ID, next.Version, string(raw), next.UpdatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("%w: %s", ErrExists, next.ID)
	}
	l.broadcast(next)
	return next, nil
}

func (l *Local) Get(ctx context.Context, id string) (*chessdto.GameSession, error) {
	var raw string
	err := l.db.QueryRowContext(ctx, `SELECT doc FROM sessions WHERE id = ?`, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return decode([]byte(raw))
}

func (l *Local) Update(ctx context.Context, id string, expect uint64, patch Patch) (*chessdto.GameSession, error) {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var raw string
	err = tx.QueryRowContext(ctx, `SELECT doc FROM sessions WHERE id = ?`, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	doc, err := decode([]byte(raw))
	if err != nil {
		return nil, err
	}
	if doc.Version != expect {
		return nil, fmt.Errorf("%w: stored %d, expected %d", ErrVersionConflict, doc.Version, expect)
	}
	patch.Apply(doc)
	doc.Version = expect + 1
	doc.UpdatedAt = l.now().UTC()
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	next, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode session: %w", err)
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE sessions SET doc = ?, version = ?, updated_at = ? WHERE id = ? AND version = ?`,
		string(next), doc.Version, doc.UpdatedAt.Format(time.RFC3339Nano), id, expect)
	if err != nil {
		return nil, fmt.Errorf("update session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("%w: concurrent write on %s", ErrVersionConflict, id)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	l.broadcast(doc)
	return doc, nil
}

func (l *Local) Subscribe(_ context.Context, id string) (*Subscription, error) {
	f := newFeed(l.feedSize)
	l.mu.Lock()
	set, ok := l.subs[id]
	if !ok {
		set = make(map[*feed]struct{})
		l.subs[id] = set
	}
	set[f] = struct{}{}
	l.mu.Unlock()

	return newSubscription(f, func() error {
		l.mu.Lock()
		defer l.mu.Unlock()
		if set, ok := l.subs[id]; ok {
			delete(set, f)
			if len(set) == 0 {
				delete(l.subs, id)
			}
		}
		return nil
	}), nil
}

func (l *Local) broadcast(doc *chessdto.GameSession) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for f := range l.subs[doc.ID] {
		f.push(doc.Clone())
	}
}
