package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// RedisStore implements Store against a Redis-compatible server using
// go-redis. Subscription handling follows the same receive-and-forward
// pattern used elsewhere in the wider codebase for Redis pub/sub: a
// goroutine drains the client's message channel into a plain Go channel
// so callers never touch go-redis types directly.
type RedisStore struct {
	rdb *goredis.Client
}

// NewRedisStore wraps an already-configured go-redis client.
func NewRedisStore(rdb *goredis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

// Open is a convenience constructor that dials addr with sane defaults.
func Open(addr string) *RedisStore {
	return NewRedisStore(goredis.NewClient(&goredis.Options{Addr: addr}))
}

func (s *RedisStore) PushLeft(ctx context.Context, key string, value []byte) error {
	return s.rdb.LPush(ctx, key, value).Err()
}

func (s *RedisStore) PushRight(ctx context.Context, key string, value []byte) error {
	return s.rdb.RPush(ctx, key, value).Err()
}

func (s *RedisStore) BRPopLPush(ctx context.Context, src, dst string, timeout time.Duration) ([]byte, error) {
	val, err := s.rdb.BRPopLPush(ctx, src, dst, timeout).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, ErrNil
		}
		return nil, err
	}
	return val, nil
}

func (s *RedisStore) LRange(ctx context.Context, key string, start, stop int64) ([][]byte, error) {
	vals, err := s.rdb.LRange(ctx, key, start, stop).Result()
	if err != nil {
		return nil, err
	}
	out := make([][]byte, len(vals))
	for i, v := range vals {
		out[i] = []byte(v)
	}
	return out, nil
}

func (s *RedisStore) LRem(ctx context.Context, key string, count int64, value []byte) error {
	return s.rdb.LRem(ctx, key, count, value).Err()
}

func (s *RedisStore) LLen(ctx context.Context, key string) (int64, error) {
	return s.rdb.LLen(ctx, key).Result()
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, ErrNil
		}
		return nil, err
	}
	return val, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.rdb.Set(ctx, key, value, ttl).Err()
}

func (s *RedisStore) Incr(ctx context.Context, key string) (int64, error) {
	return s.rdb.Incr(ctx, key).Result()
}

func (s *RedisStore) Pipeline(ctx context.Context, fn func(Pipeline) error) error {
	_, err := s.rdb.TxPipelined(ctx, func(tx goredis.Pipeliner) error {
		return fn(&redisPipeline{tx: tx, ctx: ctx})
	})
	return err
}

func (s *RedisStore) Publish(ctx context.Context, channel string, payload []byte) error {
	return s.rdb.Publish(ctx, channel, payload).Err()
}

func (s *RedisStore) Subscribe(ctx context.Context, channel string) (Subscription, error) {
	sub := s.rdb.Subscribe(ctx, channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("store: subscribe %s: %w", channel, err)
	}
	out := make(chan []byte, 1)
	go func() {
		defer close(out)
		for msg := range sub.Channel() {
			out <- []byte(msg.Payload)
		}
	}()
	return &redisSubscription{sub: sub, out: out}, nil
}

func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

type redisPipeline struct {
	tx  goredis.Pipeliner
	ctx context.Context
}

func (p *redisPipeline) PushLeft(key string, value []byte)  { p.tx.LPush(p.ctx, key, value) }
func (p *redisPipeline) PushRight(key string, value []byte) { p.tx.RPush(p.ctx, key, value) }
func (p *redisPipeline) LRem(key string, count int64, value []byte) {
	p.tx.LRem(p.ctx, key, count, value)
}
func (p *redisPipeline) Set(key string, value []byte, ttl time.Duration) {
	p.tx.Set(p.ctx, key, value, ttl)
}

type redisSubscription struct {
	sub *goredis.PubSub
	out chan []byte
}

func (s *redisSubscription) Channel() <-chan []byte { return s.out }

func (s *redisSubscription) Close() error { return s.sub.Close() }
