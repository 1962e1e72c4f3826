package rqjobs

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/avarga/rqjobs/job"
	"github.com/avarga/rqjobs/store"
)

// progressPollInterval is the fallback poll period BlockUntilResult
// uses against the progress key, in case a completion publish was
// missed (store restart, dropped subscriber connection) rather than
// merely delayed.
const progressPollInterval = 200 * time.Millisecond

// Context is the utility context a handler receives for the duration
// of one invocation (spec §4.4.1). It is valid only for that
// invocation; handlers must not retain it past their own return.
type Context struct {
	store store.Store
	keys  job.Keys
	id    string

	// FullMessage is the full decoded job record as claimed, before
	// this invocation's own writes.
	FullMessage *job.Record
}

// UpdateProgress overwrites the job's progress field. It races with
// the reaper (spec §5): whichever write lands last wins, which is
// acceptable under at-least-once semantics.
func (c *Context) UpdateProgress(ctx context.Context, p int) error {
	rec, err := getRecord(ctx, c.store, c.keys, c.id)
	if err != nil {
		return err
	}
	if rec == nil {
		return ErrOrphanJobRef
	}
	rec.Progress = &p
	_, err = putRecord(ctx, c.store, c.keys, rec)
	return err
}

// StoreData writes data under key, namespaced under the queue so
// ancillary keys never collide with another namespace's keys (spec §9,
// "Ancillary data key collisions"). If key is nil, a fresh id is
// generated. ttl == 0 means no expiry. Returns the fully namespaced key,
// which must be passed to FetchData unchanged.
func (c *Context) StoreData(ctx context.Context, data any, key *string, ttl time.Duration) (string, error) {
	name := uuid.NewString()
	if key != nil {
		name = *key
	}
	full := c.keys.Namespace + "_data_" + name
	raw, err := msgpack.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("rqjobs: store_data: encode: %w", err)
	}
	if err := c.store.Set(ctx, full, raw, ttl); err != nil {
		return "", fmt.Errorf("rqjobs: store_data: %w", err)
	}
	return full, nil
}

// FetchData reads the value written by StoreData, or returns (nil,
// nil) if key is absent or expired.
func (c *Context) FetchData(ctx context.Context, key string) (any, error) {
	raw, err := c.store.Get(ctx, key)
	if err != nil {
		if err == store.ErrNil {
			return nil, nil
		}
		return nil, err
	}
	var v any
	if err := msgpack.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("rqjobs: fetch_data: decode: %w", err)
	}
	return v, nil
}

// Post enqueues a new job from within a handler, exactly like
// Producer.Post.
func (c *Context) Post(ctx context.Context, msg any, callback *string, functions []string) (string, error) {
	return post(ctx, c.store, c.keys, msg, callback, functions)
}

// BlockUntilResult subscribes to id's completion channel and blocks
// until a result is published or ctx is canceled, with a progress-key
// poll fallback in case the publish was missed. Use this for an id that
// already exists (posted by another producer); for the nested
// post-then-block pattern (spec §8 scenario 6), prefer PostAndBlock,
// which closes the race window this method cannot on its own (spec §9,
// "Publish-before-subscribe race").
func (c *Context) BlockUntilResult(ctx context.Context, id string) (any, error) {
	return blockUntilResult(ctx, c.store, c.keys, id, nil)
}

// PostAndBlock posts a new job and blocks until it completes,
// subscribing to the result channel before the job is made visible on
// the pending list rather than after posting it. This eliminates the
// lost-publish race a naive Post-then-BlockUntilResult sequence has: no
// worker can claim and complete the job before the subscription is
// confirmed active, because the job isn't claimable yet.
func (c *Context) PostAndBlock(ctx context.Context, msg any, callback *string, functions []string) (string, any, error) {
	n, err := c.store.Incr(ctx, c.keys.MaxID())
	if err != nil {
		return "", nil, fmt.Errorf("rqjobs: post_and_block: %w", err)
	}
	id := fmt.Sprintf("%d", n)
	result, err := blockUntilResult(ctx, c.store, c.keys, id, func() error {
		return finishPost(ctx, c.store, c.keys, id, msg, callback, functions)
	})
	if err != nil {
		return "", nil, err
	}
	return id, result, nil
}

// blockUntilResult subscribes to id's pub/sub channel, optionally runs
// trigger once the subscription is confirmed active, then waits for
// either a published short_result or a progress-key poll observing a
// terminal state.
func blockUntilResult(ctx context.Context, s store.Store, keys job.Keys, id string, trigger func() error) (any, error) {
	sub, err := s.Subscribe(ctx, keys.Pub(id))
	if err != nil {
		return nil, fmt.Errorf("rqjobs: block_until_result: subscribe: %w", err)
	}
	defer sub.Close()

	if trigger != nil {
		if err := trigger(); err != nil {
			return nil, err
		}
	}

	ticker := time.NewTicker(progressPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case payload, ok := <-sub.Channel():
			if !ok {
				return nil, fmt.Errorf("rqjobs: block_until_result: subscription closed for %s", id)
			}
			return string(payload), nil
		case <-ticker.C:
			rec, err := getRecord(ctx, s, keys, id)
			if err != nil || rec == nil {
				continue
			}
			if rec.Terminal() {
				if rec.ShortResult != nil {
					return *rec.ShortResult, nil
				}
				return nil, nil
			}
		}
	}
}
