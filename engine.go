package rqjobs

import (
	"context"
	"fmt"
	"strconv"

	"github.com/avarga/rqjobs/codec"
	"github.com/avarga/rqjobs/job"
	"github.com/avarga/rqjobs/store"
)

// getRecord reads and decodes the progress record for id, returning
// (nil, nil) if it does not exist (the orphan-reference case the
// reaper must tolerate).
func getRecord(ctx context.Context, s store.Store, keys job.Keys, id string) (*job.Record, error) {
	data, err := s.Get(ctx, keys.Progress(id))
	if err != nil {
		if err == store.ErrNil {
			return nil, nil
		}
		return nil, err
	}
	rec, err := codec.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: record %s: %v", ErrDecodeFailed, id, err)
	}
	return rec, nil
}

// putRecord encodes and writes rec to its progress key, returning the
// encoded bytes so a caller that also needs them need not re-encode.
func putRecord(ctx context.Context, s store.Store, keys job.Keys, rec *job.Record) ([]byte, error) {
	data, err := codec.Encode(rec)
	if err != nil {
		return nil, fmt.Errorf("rqjobs: encode record %s: %w", rec.ID, err)
	}
	if err := s.Set(ctx, keys.Progress(rec.ID), data, 0); err != nil {
		return nil, fmt.Errorf("rqjobs: write record %s: %w", rec.ID, err)
	}
	return data, nil
}

// post implements the producer's post operation (spec §4.3): allocate
// the next id, then register the job on the jobsrefs list, the pending
// list and its progress key as a single pipelined transaction.
func post(ctx context.Context, s store.Store, keys job.Keys, msg any, callback *string, functions []string) (string, error) {
	n, err := s.Incr(ctx, keys.MaxID())
	if err != nil {
		return "", fmt.Errorf("rqjobs: post: %w", err)
	}
	id := strconv.FormatInt(n, 10)
	if err := finishPost(ctx, s, keys, id, msg, callback, functions); err != nil {
		return "", err
	}
	return id, nil
}

// finishPost is the pipelined portion of post, split out so
// Context.PostAndBlock can subscribe to the result channel between id
// allocation and this step, eliminating the publish-before-subscribe
// race described in spec.md §9.
func finishPost(ctx context.Context, s store.Store, keys job.Keys, id string, msg any, callback *string, functions []string) error {
	rec := &job.Record{
		ID:        id,
		Timestamp: job.Now(),
		Callback:  callback,
		Functions: functions,
		Msg:       msg,
	}
	data, err := codec.Encode(rec)
	if err != nil {
		return fmt.Errorf("rqjobs: post: encode: %w", err)
	}
	err = s.Pipeline(ctx, func(p store.Pipeline) error {
		p.PushRight(keys.JobsRefs(), []byte(id))
		p.PushLeft(keys.Pending(), data)
		p.Set(keys.Progress(id), data, 0)
		return nil
	})
	if err != nil {
		return fmt.Errorf("rqjobs: post: pipeline: %w", err)
	}
	return nil
}
