// Package lobby pairs two players into a PvP session through short join codes.
package lobby

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/park285/chess-duet/internal/match"
	"github.com/park285/chess-duet/internal/store"
	"github.com/park285/chess-duet/pkg/chessdto"
)

const defaultTTL = 24 * time.Hour

type Lobby struct {
	rdb      *redis.Client
	sessions store.Store
	ttl      time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

func New(rdb *redis.Client, sessions store.Store, ttl time.Duration, logger *zap.Logger) *Lobby {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Lobby{rdb: rdb, sessions: sessions, ttl: ttl, logger: logger.Named("lobby"), now: time.Now}
}

func keyCode(code string) string   { return "duet:lobby:code:" + strings.ToUpper(strings.TrimSpace(code)) }
func keyUser(userID string) string { return "duet:lobby:user:" + strings.TrimSpace(userID) }
func keyOpen() string              { return "duet:lobby:open" }

// Open creates a session waiting for an opponent and returns its join code.
func (l *Lobby) Open(ctx context.Context, playerID, initialPosition string) (string, *chessdto.GameSession, error) {
	playerID = strings.TrimSpace(playerID)
	if playerID == "" {
		return "", nil, ErrInvalidArgs
	}
	if code, err := l.rdb.Get(ctx, keyUser(playerID)).Result(); err == nil {
		if l.stillWaiting(ctx, code) {
			return "", nil, ErrCreatorHasLobby
		}
	} else if !errors.Is(err, redis.Nil) {
		return "", nil, err
	}

	doc, err := l.sessions.Create(ctx, match.NewDocument(chessdto.ModePvP, playerID, "", "", initialPosition))
	if err != nil {
		return "", nil, err
	}

	for i := 0; i < 5; i++ {
		code, err := codeGen()
		if err != nil {
			return "", nil, err
		}
		entry, err := json.Marshal(Listing{Code: code, SessionID: doc.ID, CreatorID: playerID, CreatedAt: l.now().UTC()})
		if err != nil {
			return "", nil, err
		}
		ok, err := l.rdb.SetNX(ctx, keyCode(code), entry, l.ttl).Result()
		if err != nil {
			return "", nil, err
		}
		if !ok {
			continue
		}
		pipe := l.rdb.TxPipeline()
		pipe.SAdd(ctx, keyOpen(), code)
		pipe.Expire(ctx, keyOpen(), l.ttl)
		pipe.Set(ctx, keyUser(playerID), code, l.ttl)
		if _, err := pipe.Exec(ctx); err != nil {
			return "", nil, err
		}
		l.logger.Info("lobby_open", zap.String("code", code), zap.String("session_id", doc.ID), zap.String("creator_id", playerID))
		return code, doc, nil
	}
	return "", nil, fmt.Errorf("failed to allocate join code")
}

// Join seats playerID as black. The write is conditional on the version read,
// so two concurrent joins cannot both succeed.
func (l *Lobby) Join(ctx context.Context, code, playerID string) (*chessdto.GameSession, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	playerID = strings.TrimSpace(playerID)
	if code == "" || playerID == "" {
		return nil, ErrInvalidArgs
	}
	entry, err := l.lookup(ctx, code)
	if err != nil {
		return nil, err
	}
	doc, err := l.sessions.Get(ctx, entry.SessionID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrCodeGone
	}
	if err != nil {
		return nil, err
	}

	switch {
	case doc.Participants.Player1ID == playerID:
		return nil, ErrSelfJoin
	case doc.Participants.Player2ID == playerID:
		return doc, nil
	case doc.Status != chessdto.StatusWaiting:
		return nil, ErrFull
	}

	participants := chessdto.Participants{Player1ID: doc.Participants.Player1ID, Player2ID: playerID}
	status := chessdto.StatusInProgress
	next, err := l.sessions.Update(ctx, doc.ID, doc.Version, store.Patch{Participants: &participants, Status: &status})
	if errors.Is(err, store.ErrVersionConflict) {
		l.logger.Warn("lobby_join_conflict", zap.String("code", code), zap.String("user_id", playerID))
		return nil, ErrFull
	}
	if err != nil {
		return nil, err
	}

	pipe := l.rdb.TxPipeline()
	pipe.SRem(ctx, keyOpen(), code)
	pipe.Del(ctx, keyCode(code), keyUser(entry.CreatorID))
	if _, err := pipe.Exec(ctx); err != nil {
		l.logger.Warn("lobby_cleanup_error", zap.String("code", code), zap.Error(err))
	}
	l.logger.Info("lobby_join", zap.String("code", code), zap.String("session_id", doc.ID), zap.String("user_id", playerID))
	return next, nil
}

// List returns lobbies still waiting for an opponent.
func (l *Lobby) List(ctx context.Context) ([]Listing, error) {
	codes, err := l.rdb.SMembers(ctx, keyOpen()).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Listing, 0, len(codes))
	for _, code := range codes {
		entry, err := l.lookup(ctx, code)
		if err != nil {
			// expired code; drop it from the index
			_ = l.rdb.SRem(ctx, keyOpen(), code).Err()
			continue
		}
		out = append(out, *entry)
	}
	return out, nil
}

func (l *Lobby) lookup(ctx context.Context, code string) (*Listing, error) {
	raw, err := l.rdb.Get(ctx, keyCode(code)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCodeGone
	}
	if err != nil {
		return nil, err
	}
	var entry Listing
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, fmt.Errorf("decode lobby entry: %w", err)
	}
	return &entry, nil
}

func (l *Lobby) stillWaiting(ctx context.Context, code string) bool {
	entry, err := l.lookup(ctx, code)
	if err != nil {
		return false
	}
	doc, err := l.sessions.Get(ctx, entry.SessionID)
	return err == nil && doc.Status == chessdto.StatusWaiting
}

// codeGen returns "DU-" followed by six upper-case alphanumerics.
func codeGen() (string, error) {
	const letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	alphabet := big.NewInt(int64(len(letters)))
	b := make([]byte, 6)
	for i := range b {
		n, err := rand.Int(rand.Reader, alphabet)
		if err != nil {
			return "", err
		}
		b[i] = letters[n.Int64()]
	}
	return "DU-" + string(b), nil
}
