package rqjobs

import (
	"context"

	"github.com/avarga/rqjobs/job"
	"github.com/avarga/rqjobs/store"
)

// Producer is the write-side entry point of a queue namespace.
type Producer struct {
	store store.Store
	keys  job.Keys
}

// NewProducer returns a Producer posting into namespace over s.
func NewProducer(s store.Store, namespace string) *Producer {
	return &Producer{store: s, keys: job.NewKeys(namespace)}
}

// Post allocates the next job id and atomically registers the job on
// the pending list, the jobsrefs list and its progress key (spec
// §4.3). callback and functions may be nil.
//
// Post fails only if the store is unreachable; a failed Incr leaves no
// trace, and a failed pipeline after a successful Incr only leaves a
// gap in the id sequence (permitted by invariant I5), never a
// half-registered job.
func (p *Producer) Post(ctx context.Context, msg any, callback *string, functions []string) (string, error) {
	return post(ctx, p.store, p.keys, msg, callback, functions)
}
