package presence

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultTTL is how long a socket counts as live without a heartbeat.
const DefaultTTL = 90 * time.Second

// Tracker records which users hold at least one live socket. Each user owns a
// sorted set of socket ids scored by their expiry in unix milliseconds.
type Tracker struct {
	rdb    redis.UniversalClient
	ttl    time.Duration
	now    func() time.Time
	logger *zap.Logger
}

// Option customizes a Tracker.
type Option func(*Tracker)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// NewTracker builds a Tracker. A zero ttl selects DefaultTTL.
func NewTracker(rdb redis.UniversalClient, ttl time.Duration, logger *zap.Logger, opts ...Option) *Tracker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &Tracker{rdb: rdb, ttl: ttl, now: time.Now, logger: logger}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func presenceKey(userID string) string {
	return "presence:" + userID
}

func score(at time.Time) string {
	return strconv.FormatInt(at.UnixMilli(), 10)
}

// Connect records a live socket. It reports true when the user just came online.
func (t *Tracker) Connect(ctx context.Context, userID, connID string) (bool, error) {
	return t.touch(ctx, userID, connID)
}

// Heartbeat extends the socket's lease. It reports true when the user had
// lapsed offline and is back.
func (t *Tracker) Heartbeat(ctx context.Context, userID, connID string) (bool, error) {
	return t.touch(ctx, userID, connID)
}

func (t *Tracker) touch(ctx context.Context, userID, connID string) (bool, error) {
	key := presenceKey(userID)
	now := t.now()
	var before *redis.IntCmd
	_, err := t.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, key, "-inf", score(now))
		before = pipe.ZCard(ctx, key)
		pipe.ZAdd(ctx, key, redis.Z{Score: float64(now.Add(t.ttl).UnixMilli()), Member: connID})
		pipe.PExpire(ctx, key, t.ttl)
		return nil
	})
	if err != nil {
		return false, err
	}
	return before.Val() == 0, nil
}

// Disconnect drops a socket. It reports true when the user's last live socket
// went away.
func (t *Tracker) Disconnect(ctx context.Context, userID, connID string) (bool, error) {
	key := presenceKey(userID)
	var removed, after *redis.IntCmd
	_, err := t.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		removed = pipe.ZRem(ctx, key, connID)
		pipe.ZRemRangeByScore(ctx, key, "-inf", score(t.now()))
		after = pipe.ZCard(ctx, key)
		return nil
	})
	if err != nil {
		return false, err
	}
	return removed.Val() > 0 && after.Val() == 0, nil
}

// IsOnline reports whether userID holds a live socket. Lookup failures read as
// offline.
func (t *Tracker) IsOnline(ctx context.Context, userID string) bool {
	n, err := t.rdb.ZCount(ctx, presenceKey(userID), "("+score(t.now()), "+inf").Result()
	if err != nil {
		t.logger.Warn("presence lookup failed", zap.String("user_id", userID), zap.Error(err))
		return false
	}
	return n > 0
}

// OnlineSet resolves presence for many users in one round trip.
func (t *Tracker) OnlineSet(ctx context.Context, userIDs []string) map[string]bool {
	result := make(map[string]bool, len(userIDs))
	if len(userIDs) == 0 {
		return result
	}
	floor := "(" + score(t.now())
	cmds := make([]*redis.IntCmd, len(userIDs))
	_, err := t.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range userIDs {
			cmds[i] = pipe.ZCount(ctx, presenceKey(id), floor, "+inf")
		}
		return nil
	})
	if err != nil {
		t.logger.Warn("presence batch lookup failed", zap.Int("users", len(userIDs)), zap.Error(err))
	}
	for i, id := range userIDs {
		result[id] = err == nil && cmds[i].Val() > 0
	}
	return result
}
