package coordinator

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// setIfLowerScript atomically overwrites key with value only if value is
// lower than whatever is currently stored (or nothing is stored yet). This
// is the MIN-reduce analogue of a versioned-set script that instead keeps
// a value only if its version is greater; the comparison direction is
// flipped, the atomicity guarantee is the same.
const setIfLowerScript = `
local current = redis.call("GET", KEYS[1])
if (not current) or (tonumber(ARGV[1]) < tonumber(current)) then
    redis.call("SET", KEYS[1], ARGV[1])
    return 1
end
return 0
`

// RedisBoundStore shares the running best-cost bound across OS processes
// through a single Redis key, using a preload-SHA-then-EvalSha pattern
// that reloads the script on NOSCRIPT, so a Redis restart that drops the
// script cache self-heals on the next publish.
type RedisBoundStore struct {
	client     *redis.Client
	key        string
	exhaustKey string
	ranks      int
	setSHA     string
	limiter    *rate.Limiter
}

// NewRedisBoundStore connects to addr and preloads the reduce script.
func NewRedisBoundStore(ctx context.Context, addr, runID string, ranks int) (*RedisBoundStore, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("coordinator: connect to redis at %s: %w", addr, err)
	}
	sha, err := client.ScriptLoad(ctx, setIfLowerScript).Result()
	if err != nil {
		return nil, fmt.Errorf("coordinator: preload reduce script: %w", err)
	}
	return &RedisBoundStore{
		client:     client,
		key:        "bb:" + runID + ":best_cost",
		exhaustKey: "bb:" + runID + ":exhausted",
		ranks:      ranks,
		setSHA:     sha,
		// At most one publish every 200ms per rank, matching the "pace
		// the non-blocking reduce, don't flood it" requirement without
		// blocking the search loop on every single constraint check.
		limiter: rate.NewLimiter(rate.Every(200*time.Millisecond), 1),
	}, nil
}

// PublishLocal is a best-effort, rate-limited attempt to lower the shared
// bound; a denied token simply skips this publish rather than blocking
// the caller.
func (s *RedisBoundStore) PublishLocal(cost float64) {
	if !s.limiter.Allow() {
		return
	}
	ctx := context.Background()
	_, err := s.client.EvalSha(ctx, s.setSHA, []string{s.key}, strconv.FormatFloat(cost, 'g', -1, 64)).Result()
	if err != nil && isNoScript(err) {
		sha, reloadErr := s.client.ScriptLoad(ctx, setIfLowerScript).Result()
		if reloadErr == nil {
			s.setSHA = sha
			s.client.EvalSha(ctx, s.setSHA, []string{s.key}, strconv.FormatFloat(cost, 'g', -1, 64))
		}
	}
}

// Global polls the shared bound without blocking. A miss (no rank has
// published yet) reports +Inf.
func (s *RedisBoundStore) Global() float64 {
	val, err := s.client.Get(context.Background(), s.key).Result()
	if err != nil {
		return posInf
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return posInf
	}
	return f
}

// MarkExhausted increments the shared exhausted-rank counter.
func (s *RedisBoundStore) MarkExhausted(_ int) {
	s.client.Incr(context.Background(), s.exhaustKey)
}

// AllExhausted reports whether every rank has reported EXHAUSTED.
func (s *RedisBoundStore) AllExhausted() bool {
	n, err := s.client.Get(context.Background(), s.exhaustKey).Int()
	if err != nil {
		return false
	}
	return n >= s.ranks
}

// Close releases the underlying Redis client.
func (s *RedisBoundStore) Close() error {
	return s.client.Close()
}

func isNoScript(err error) bool {
	return err != nil && len(err.Error()) >= 8 && err.Error()[:8] == "NOSCRIPT"
}
