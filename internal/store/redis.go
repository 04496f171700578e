package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/park285/chess-duet/pkg/chessdto"
)

// Redis keeps session documents as JSON strings and fans out commits over
// Pub/Sub. Writes are guarded with WATCH so a concurrent writer aborts the
// transaction instead of overwriting.
type Redis struct {
	rdb      *redis.Client
	ttl      time.Duration
	feedSize int
	logger   *zap.Logger
	now      func() time.Time
}

type RedisOption func(*Redis)

func WithTTL(d time.Duration) RedisOption {
	return func(r *Redis) {
		if d > 0 {
			r.ttl = d
		}
	}
}

func WithFeedBuffer(n int) RedisOption { return func(r *Redis) { r.feedSize = n } }

func WithLogger(l *zap.Logger) RedisOption {
	return func(r *Redis) {
		if l != nil {
			r.logger = l
		}
	}
}

func NewRedis(redisURL string, opts ...RedisOption) (*Redis, error) {
	if strings.TrimSpace(redisURL) == "" {
		return nil, fmt.Errorf("REDIS_URL required for session store")
	}
	ropts, err := parseRedisURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(ropts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedisFromClient(rdb, opts...), nil
}

func NewRedisFromClient(rdb *redis.Client, opts ...RedisOption) *Redis {
	r := &Redis{
		rdb:      rdb,
		ttl:      24 * time.Hour,
		feedSize: 16,
		logger:   zap.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Client exposes the underlying connection for components sharing it.
func (r *Redis) Client() *redis.Client { return r.rdb }

func (r *Redis) Close() error {
	if r == nil || r.rdb == nil {
		return nil
	}
	return r.rdb.Close()
}

func (r *Redis) Create(ctx context.Context, doc *chessdto.GameSession) (*chessdto.GameSession, error) {
	next := doc.Clone()
	stamp(next, r.now())
	if err := next.Validate(); err != nil {
		return nil, err
	}
	raw, err := json.Marshal(next)
	if err != nil {
		return nil, fmt.Errorf("encode session: %w", err)
	}
	ok, err := r.rdb.SetNX(ctx, sessionKey(next.ID), raw, r.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrExists, next.ID)
	}
	r.publish(ctx, next.ID, raw)
	r.logger.Info("session_created", zap.String("session_id", next.ID), zap.String("mode", string(next.Mode)))
	return next, nil
}

func (r *Redis) Get(ctx context.Context, id string) (*chessdto.GameSession, error) {
	raw, err := r.rdb.Get(ctx, sessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return decode(raw)
}

func (r *Redis) Update(ctx context.Context, id string, expect uint64, patch Patch) (*chessdto.GameSession, error) {
	key := sessionKey(id)
	var (
		out *chessdto.GameSession
		raw []byte
	)
	err := r.rdb.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		if err != nil {
			return err
		}
		doc, err := decode(cur)
		if err != nil {
			return err
		}
		if doc.Version != expect {
			return fmt.Errorf("%w: stored %d, expected %d", ErrVersionConflict, doc.Version, expect)
		}
		patch.Apply(doc)
		doc.Version = expect + 1
		doc.UpdatedAt = r.now().UTC()
		if err := doc.Validate(); err != nil {
			return err
		}
		raw, err = json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("encode session: %w", err)
		}
		pipe := tx.TxPipeline()
		pipe.Set(ctx, key, raw, r.ttl)
		if _, err := pipe.Exec(ctx); err != nil {
			return err
		}
		out = doc
		return nil
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		return nil, fmt.Errorf("%w: concurrent write on %s", ErrVersionConflict, id)
	}
	if err != nil {
		return nil, err
	}
	r.publish(ctx, id, raw)
	r.logger.Debug("session_updated", zap.String("session_id", id), zap.Uint64("version", out.Version))
	return out, nil
}

func (r *Redis) Subscribe(ctx context.Context, id string) (*Subscription, error) {
	ps := r.rdb.Subscribe(ctx, feedChannel(id))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe session %s: %w", id, err)
	}
	f := newFeed(r.feedSize)
	msgs := ps.Channel()
	go func() {
		defer f.close()
		for msg := range msgs {
			doc, err := decode([]byte(msg.Payload))
			if err != nil {
				r.logger.Warn("session_feed_decode_error", zap.String("session_id", id), zap.Error(err))
				continue
			}
			f.push(doc)
		}
	}()
	return newSubscription(f, ps.Close), nil
}

func (r *Redis) publish(ctx context.Context, id string, raw []byte) {
	if err := r.rdb.Publish(ctx, feedChannel(id), raw).Err(); err != nil {
		// subscribers recover through a forced pull
		r.logger.Warn("session_publish_error", zap.String("session_id", id), zap.Error(err))
	}
}

func decode(raw []byte) (*chessdto.GameSession, error) {
	var doc chessdto.GameSession
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &doc, nil
}

func stamp(doc *chessdto.GameSession, now time.Time) {
	if doc.Version == 0 {
		doc.Version = 1
	}
	if doc.MoveHistory == nil {
		doc.MoveHistory = []string{}
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now.UTC()
	}
	doc.UpdatedAt = now.UTC()
}

func sessionKey(id string) string  { return "duet:session:" + strings.TrimSpace(id) }
func feedChannel(id string) string { return "duet:feed:" + strings.TrimSpace(id) }

func parseRedisURL(raw string) (*redis.Options, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	db := 0
	if p := strings.TrimPrefix(u.Path, "/"); p != "" {
		if n, err := strconv.Atoi(p); err == nil {
			db = n
		}
	}
	pass, _ := u.User.Password()
	return &redis.Options{Addr: u.Host, Password: pass, DB: db}, nil
}
