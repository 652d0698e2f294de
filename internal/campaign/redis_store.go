package campaign

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"waf-sentinel/internal/config"
)

const (
	counterPrefix = "waf:cnt:"
	windowPrefix  = "waf:win:"
	statePrefix   = "waf:state:"
)

// incrScript increments the window counter and stamps the window start
// in one round trip. Counter and window-start keys share the window
// TTL so an idle window expires as a unit.
var incrScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
  redis.call("SET", KEYS[2], ARGV[2], "PX", ARGV[1])
end
local start = redis.call("GET", KEYS[2])
if not start then
  start = ARGV[2]
  redis.call("SET", KEYS[2], start, "PX", ARGV[1])
end
return {count, start}
`)

// mergeScript folds a detection delta into the stored state in one
// atomic step: count max, severity max, attack-type union and OR of
// the campaign flags. A stored state from a different window is
// replaced. Returns the merged state and whether the campaign flag
// transitioned false to true.
var mergeScript = redis.NewScript(`
local rank = {low = 1, medium = 2, high = 3, critical = 4}
local delta = cjson.decode(ARGV[1])
local raw = redis.call("GET", KEYS[1])
local state = nil
if raw then
  state = cjson.decode(raw)
end
local was = false
if state and state.first_seen == delta.first_seen then
  was = state.is_campaign == true
  if delta.event_count > (state.event_count or 0) then
    state.event_count = delta.event_count
  end
  state.last_seen = delta.last_seen
  local types = state.attack_types or {}
  for _, t in ipairs(delta.attack_types or {}) do
    local seen = false
    for _, existing in ipairs(types) do
      if existing == t then
        seen = true
        break
      end
    end
    if not seen then
      table.insert(types, t)
    end
  end
  state.attack_types = types
  if (rank[delta.severity] or 0) > (rank[state.severity] or 0) then
    state.severity = delta.severity
  end
  state.is_campaign = was or delta.is_campaign == true
  if state.is_campaign and (state.campaign_id == nil or state.campaign_id == "") then
    state.campaign_id = delta.campaign_id
  end
else
  state = delta
end
local encoded = cjson.encode(state)
redis.call("SET", KEYS[1], encoded, "PX", ARGV[2])
local new = 0
if state.is_campaign and not was then
  new = 1
end
return {encoded, new}
`)

// RedisStore is the production StateStore, shared and atomically
// updatable across concurrent analyzer invocations.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(cfg config.RedisConfig) (*RedisStore, error) {
	opts := &redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolSize:     cfg.PoolSize,
	}

	if cfg.TLSEnabled {
		opts.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisStore{client: client}, nil
}

// NewRedisStoreFromClient wraps an existing client, for tests against
// a shared instance.
func NewRedisStoreFromClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (r *RedisStore) Increment(ctx context.Context, key string, window time.Duration) (int64, time.Time, error) {
	now := time.Now()
	res, err := incrScript.Run(ctx, r.client,
		[]string{counterPrefix + key, windowPrefix + key},
		window.Milliseconds(),
		now.UnixMilli(),
	).Slice()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("campaign counter increment failed: %w", err)
	}
	if len(res) != 2 {
		return 0, time.Time{}, fmt.Errorf("campaign counter increment returned %d values", len(res))
	}

	count, ok := res[0].(int64)
	if !ok {
		return 0, time.Time{}, fmt.Errorf("unexpected counter type %T", res[0])
	}

	startMs, err := toInt64(res[1])
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("unexpected window start: %w", err)
	}

	// UTC so window starts marshal to identical strings regardless of
	// the process time zone; the merge script compares them verbatim.
	return count, time.UnixMilli(startMs).UTC(), nil
}

func toInt64(v any) (int64, error) {
	switch x := v.(type) {
	case int64:
		return x, nil
	case string:
		return strconv.ParseInt(x, 10, 64)
	default:
		return 0, fmt.Errorf("type %T", v)
	}
}

func (r *RedisStore) GetState(ctx context.Context, key string) (*State, error) {
	data, err := r.client.Get(ctx, statePrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("campaign state read failed: %w", err)
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("campaign state corrupt: %w", err)
	}
	return &state, nil
}

func (r *RedisStore) PutState(ctx context.Context, key string, state *State, ttl time.Duration) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("campaign state marshal failed: %w", err)
	}

	if err := r.client.Set(ctx, statePrefix+key, data, ttl).Err(); err != nil {
		return fmt.Errorf("campaign state write failed: %w", err)
	}
	return nil
}

func (r *RedisStore) MergeState(ctx context.Context, key string, delta *State, ttl time.Duration) (*State, bool, error) {
	data, err := json.Marshal(delta)
	if err != nil {
		return nil, false, fmt.Errorf("campaign state marshal failed: %w", err)
	}

	res, err := mergeScript.Run(ctx, r.client,
		[]string{statePrefix + key},
		data,
		ttl.Milliseconds(),
	).Slice()
	if err != nil {
		return nil, false, fmt.Errorf("campaign state merge failed: %w", err)
	}
	if len(res) != 2 {
		return nil, false, fmt.Errorf("campaign state merge returned %d values", len(res))
	}

	encoded, ok := res[0].(string)
	if !ok {
		return nil, false, fmt.Errorf("unexpected merged state type %T", res[0])
	}
	var state State
	if err := json.Unmarshal([]byte(encoded), &state); err != nil {
		return nil, false, fmt.Errorf("campaign state corrupt: %w", err)
	}

	isNew, err := toInt64(res[1])
	if err != nil {
		return nil, false, fmt.Errorf("unexpected merge flag: %w", err)
	}

	return &state, isNew == 1, nil
}

func (r *RedisStore) ListStates(ctx context.Context, prefix string) (map[string]*State, error) {
	result := make(map[string]*State)

	iter := r.client.Scan(ctx, 0, statePrefix+prefix+"*", 256).Iterator()
	for iter.Next(ctx) {
		fullKey := iter.Val()
		data, err := r.client.Get(ctx, fullKey).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue // expired between SCAN and GET
			}
			return nil, fmt.Errorf("campaign state read failed: %w", err)
		}

		var state State
		if err := json.Unmarshal(data, &state); err != nil {
			continue
		}
		result[fullKey[len(statePrefix):]] = &state
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("campaign state scan failed: %w", err)
	}

	return result, nil
}

func (r *RedisStore) DeleteStates(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	full := make([]string, 0, len(keys)*3)
	for _, key := range keys {
		full = append(full, statePrefix+key, counterPrefix+key, windowPrefix+key)
	}

	if err := r.client.Del(ctx, full...).Err(); err != nil {
		return fmt.Errorf("campaign state delete failed: %w", err)
	}
	return nil
}

// Close closes the underlying Redis connection.
func (r *RedisStore) Close() error {
	return r.client.Close()
}
