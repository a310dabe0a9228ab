// Package redis implements the entity locker on Redis so that several
// estatecore processes sharing one store serialise work on the same rows.
package redis

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"pkt.systems/pslog"

	"estatecore/pkg/domain"
)

const (
	defaultPrefix = "estatecore:lock:"
	defaultTTL    = 30 * time.Second
	defaultRetry  = 50 * time.Millisecond
)

// releaseScript deletes a lock only while it still holds our token.
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// extendScript pushes the expiry of a lock forward while it still holds our token.
var extendScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// Connect initializes a Redis client from a redis:// URL or host:port.
func Connect(ctx context.Context, redisURL string) (*goredis.Client, error) {
	var client *goredis.Client
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, err := goredis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		client = goredis.NewClient(opt)
	} else {
		client = goredis.NewClient(&goredis.Options{Addr: redisURL})
	}
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// Locker takes one SET NX PX key per live entity. Keys expire after the TTL
// so a crashed holder cannot wedge an entity forever; a live holder renews
// them every third of the TTL until it releases.
type Locker struct {
	client goredis.Cmdable
	prefix string
	ttl    time.Duration
	retry  time.Duration
	wait   bool
	logger pslog.Logger
}

// Option customises a Locker.
type Option func(*Locker)

// WithPrefix sets the key namespace.
func WithPrefix(prefix string) Option {
	return func(l *Locker) {
		if prefix != "" {
			l.prefix = prefix
		}
	}
}

// WithTTL bounds how long an abandoned lock survives.
func WithTTL(ttl time.Duration) Option {
	return func(l *Locker) {
		if ttl > 0 {
			l.ttl = ttl
		}
	}
}

// WithWait makes Acquire poll every retry interval until the context ends
// instead of failing on the first contended key.
func WithWait(retry time.Duration) Option {
	return func(l *Locker) {
		l.wait = true
		if retry > 0 {
			l.retry = retry
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger pslog.Logger) Option {
	return func(l *Locker) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// New constructs a Locker over client.
func New(client goredis.Cmdable, opts ...Option) *Locker {
	l := &Locker{
		client: client,
		prefix: defaultPrefix,
		ttl:    defaultTTL,
		retry:  defaultRetry,
		logger: pslog.NoopLogger(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Acquire takes every key or none. Keys are taken in sorted order and are
// renewed in the background until the returned release runs.
func (l *Locker) Acquire(ctx context.Context, keys []string) (func(), error) {
	keys = normalize(keys)
	token := uuid.NewString()
	acquired := make([]string, 0, len(keys))
	unlock := func() {
		// Release must run even when the caller's context is already done.
		rctx := context.WithoutCancel(ctx)
		for _, key := range acquired {
			if err := releaseScript.Run(rctx, l.client, []string{l.prefix + key}, token).Err(); err != nil {
				l.logger.Warn("lock.release.error", "key", key, "error", err)
			}
		}
		acquired = nil
	}
	for _, key := range keys {
		if err := l.lockOne(ctx, key, token); err != nil {
			unlock()
			return func() {}, err
		}
		acquired = append(acquired, key)
	}
	l.logger.Debug("lock.acquired", "keys", len(keys))
	if len(acquired) == 0 {
		return func() {}, nil
	}

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		l.renew(context.WithoutCancel(ctx), append([]string(nil), acquired...), token, stop)
	}()
	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			wg.Wait()
			unlock()
		})
	}, nil
}

// renew extends every held key until stop closes. A key that no longer holds
// our token has expired or been taken over and is only reported.
func (l *Locker) renew(ctx context.Context, keys []string, token string, stop <-chan struct{}) {
	ticker := time.NewTicker(renewInterval(l.ttl))
	defer ticker.Stop()
	ttl := l.ttl.Milliseconds()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
		for _, key := range keys {
			n, err := extendScript.Run(ctx, l.client, []string{l.prefix + key}, token, ttl).Int64()
			switch {
			case err != nil:
				l.logger.Warn("lock.renew.error", "key", key, "error", err)
			case n == 0:
				l.logger.Warn("lock.renew.lost", "key", key)
			}
		}
	}
}

func renewInterval(ttl time.Duration) time.Duration {
	if d := ttl / 3; d > 0 {
		return d
	}
	return time.Millisecond
}

func (l *Locker) lockOne(ctx context.Context, key, token string) error {
	for {
		ok, err := l.client.SetNX(ctx, l.prefix+key, token, l.ttl).Result()
		if err != nil {
			return fmt.Errorf("lock %s: %w", key, err)
		}
		if ok {
			return nil
		}
		if !l.wait {
			return domain.ConflictError{Key: key}
		}
		timer := time.NewTimer(l.retry)
		select {
		case <-ctx.Done():
			timer.Stop()
			return domain.ConflictError{Key: key}
		case <-timer.C:
		}
	}
}

func normalize(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, key := range keys {
		if _, dup := seen[key]; dup || key == "" {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}
