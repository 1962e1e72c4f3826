// Package store defines the minimal shared-storage surface the engine
// needs: list operations for the pending/processing/jobsrefs/deadletter
// queues, a string keyspace for per-job records, an atomic counter for
// id allocation, a pipelined transaction for multi-step writes, and
// pub/sub for one-shot completion notification.
//
// The interface is intentionally narrow and Redis-shaped rather than a
// generic KV abstraction, because every operation it exposes maps
// directly onto a single Redis command; that is what the original
// engine was built against, and what every invariant in the data model
// assumes.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNil is returned by read operations when the key or element
// requested does not exist, mirroring redis.Nil without leaking the
// go-redis package into callers that only need the Store interface.
var ErrNil = errors.New("store: nil")

// Store is the shared-storage surface the engine depends on.
type Store interface {
	// PushLeft prepends value to the list at key (LPUSH).
	PushLeft(ctx context.Context, key string, value []byte) error

	// PushRight appends value to the list at key (RPUSH).
	PushRight(ctx context.Context, key string, value []byte) error

	// BRPopLPush atomically pops the rightmost element of src and pushes
	// it onto the left of dst, blocking up to timeout for an element to
	// become available. timeout == 0 means block indefinitely.
	// Returns ErrNil if timeout elapses with nothing to pop.
	BRPopLPush(ctx context.Context, src, dst string, timeout time.Duration) ([]byte, error)

	// LRange returns list elements in [start, stop], inclusive, using
	// Redis's negative-index convention (-1 is the last element).
	LRange(ctx context.Context, key string, start, stop int64) ([][]byte, error)

	// LRem removes up to count occurrences of value from the list at
	// key. count == 0 removes all occurrences.
	LRem(ctx context.Context, key string, count int64, value []byte) error

	// LLen returns the length of the list at key.
	LLen(ctx context.Context, key string) (int64, error)

	// Get returns the value at key, or ErrNil if it does not exist.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set writes value at key. ttl == 0 means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Incr atomically increments the integer at key by 1 and returns
	// the new value, creating the key at 0 first if absent. This is
	// always issued as its own round trip, never inside Pipeline: the
	// id it returns is needed to build the record that the pipelined
	// writes then persist.
	Incr(ctx context.Context, key string) (int64, error)

	// Pipeline runs fn against a batched, atomically-applied set of
	// writes (a Redis MULTI/EXEC transaction pipeline). Either every
	// queued operation lands or none do.
	Pipeline(ctx context.Context, fn func(Pipeline) error) error

	// Publish sends payload to every current subscriber of channel.
	// Publishing to a channel with no subscribers silently drops the
	// message, matching Redis pub/sub semantics.
	Publish(ctx context.Context, channel string, payload []byte) error

	// Subscribe opens a subscription to channel. Callers must Close it
	// when done.
	Subscribe(ctx context.Context, channel string) (Subscription, error)

	// Close releases any underlying connection resources.
	Close() error
}

// Pipeline is the subset of Store operations that may be queued inside
// a Store.Pipeline transaction.
type Pipeline interface {
	PushLeft(key string, value []byte)
	PushRight(key string, value []byte)
	LRem(key string, count int64, value []byte)
	Set(key string, value []byte, ttl time.Duration)
}

// Subscription is a live pub/sub subscription.
type Subscription interface {
	// Channel yields incoming message payloads. It is closed when the
	// subscription is closed or the underlying connection is lost.
	Channel() <-chan []byte

	// Close ends the subscription.
	Close() error
}
