package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"SignalScanner/internal/model"
)

// RedisOptions configures a RedisCache.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string // namespace prepended to every key

	RecentMax int

	DialTimeout  time.Duration
	OpTimeout    time.Duration // read/write timeout per command
	MaxFailures  int           // consecutive failures before the breaker opens
	ResetTimeout time.Duration // how long the breaker stays open
}

// ApplyURL fills Addr, Password and DB from a redis:// or rediss:// URL.
// A value without a scheme is taken as a bare host:port.
func (o *RedisOptions) ApplyURL(raw string) error {
	if !strings.Contains(raw, "://") {
		o.Addr = raw
		return nil
	}
	u, err := goredis.ParseURL(raw)
	if err != nil {
		return fmt.Errorf("parse redis url: %w", err)
	}
	o.Addr, o.Password, o.DB = u.Addr, u.Password, u.DB
	return nil
}

// RedisCache implements Cache on Redis. Every command goes through a circuit
// breaker so an unreachable server costs one timeout per reset period instead
// of one per symbol.
type RedisCache struct {
	client    *goredis.Client
	breaker   *Breaker
	prefix    string
	recentMax int64
}

// NewRedisCache creates a Redis-backed cache. It does not dial; use Ping to check
// connectivity.
func NewRedisCache(opts RedisOptions) *RedisCache {
	if opts.RecentMax <= 0 {
		opts.RecentMax = DefaultRecentMax
	}
	if opts.OpTimeout <= 0 {
		opts.OpTimeout = 2 * time.Second
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 2 * time.Second
	}
	if opts.MaxFailures <= 0 {
		opts.MaxFailures = 5
	}
	if opts.ResetTimeout <= 0 {
		opts.ResetTimeout = 30 * time.Second
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  opts.DialTimeout,
		ReadTimeout:  opts.OpTimeout,
		WriteTimeout: opts.OpTimeout,
		MaxRetries:   1,
	})
	return &RedisCache{
		client:    client,
		breaker:   NewBreaker(opts.MaxFailures, opts.ResetTimeout),
		prefix:    opts.Prefix,
		recentMax: int64(opts.RecentMax),
	}
}

// Breaker exposes the circuit breaker so callers can observe its state.
func (r *RedisCache) Breaker() *Breaker { return r.breaker }

func (r *RedisCache) key(k string) string { return r.prefix + k }

// do runs fn through the breaker. redis.Nil is a miss, not a failure.
func (r *RedisCache) do(fn func() error) error {
	err := r.breaker.Execute(func() error {
		if err := fn(); err != nil && !errors.Is(err, goredis.Nil) {
			return err
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	return nil
}

// Ping checks that the server answers.
func (r *RedisCache) Ping(ctx context.Context) error {
	return r.do(func() error { return r.client.Ping(ctx).Err() })
}

func (r *RedisCache) GetSeries(ctx context.Context, key string) (*model.Series, bool, error) {
	var raw []byte
	err := r.do(func() error {
		b, err := r.client.Get(ctx, r.key(key)).Bytes()
		raw = b
		return err
	})
	if err != nil {
		return nil, false, err
	}
	if raw == nil {
		return nil, false, nil
	}
	var s model.Series
	if err := json.Unmarshal(raw, &s); err != nil {
		// corrupt entry: drop it and report a miss
		_ = r.do(func() error { return r.client.Del(ctx, r.key(key)).Err() })
		return nil, false, nil
	}
	return &s, true, nil
}

func (r *RedisCache) SetSeries(ctx context.Context, key string, series *model.Series, ttl time.Duration) error {
	raw, err := json.Marshal(series)
	if err != nil {
		return fmt.Errorf("encode series: %w", err)
	}
	return r.do(func() error { return r.client.Set(ctx, r.key(key), raw, ttl).Err() })
}

func (r *RedisCache) ClaimCooldown(ctx context.Context, symbol string, ttl time.Duration) (bool, error) {
	var claimed bool
	err := r.do(func() error {
		ok, err := r.client.SetNX(ctx, r.key(cooldownKey(symbol)), time.Now().UTC().Format(time.RFC3339), ttl).Result()
		claimed = ok
		return err
	})
	return claimed, err
}

func (r *RedisCache) ReleaseCooldown(ctx context.Context, symbol string) error {
	return r.do(func() error { return r.client.Del(ctx, r.key(cooldownKey(symbol))).Err() })
}

func (r *RedisCache) PushRecent(ctx context.Context, sig model.Signal) error {
	raw, err := json.Marshal(sig)
	if err != nil {
		return fmt.Errorf("encode signal: %w", err)
	}
	return r.do(func() error {
		pipe := r.client.TxPipeline()
		pipe.LPush(ctx, r.key(recentKey), raw)
		pipe.LTrim(ctx, r.key(recentKey), 0, r.recentMax-1)
		_, err := pipe.Exec(ctx)
		return err
	})
}

func (r *RedisCache) Recent(ctx context.Context, n int) ([]model.Signal, error) {
	if n <= 0 || int64(n) > r.recentMax {
		n = int(r.recentMax)
	}
	var rows []string
	err := r.do(func() error {
		res, err := r.client.LRange(ctx, r.key(recentKey), 0, int64(n-1)).Result()
		rows = res
		return err
	})
	if err != nil {
		return nil, err
	}
	out := make([]model.Signal, 0, len(rows))
	for _, row := range rows {
		var sig model.Signal
		if err := json.Unmarshal([]byte(row), &sig); err != nil {
			continue
		}
		out = append(out, sig)
	}
	return out, nil
}

func (r *RedisCache) Close() error {
	return r.client.Close()
}
