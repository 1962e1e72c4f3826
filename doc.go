// Package rqjobs provides a distributed job queue runtime over a
// shared Redis-compatible store.
//
// # Overview
//
// rqjobs models a durable job queue with explicit state transitions.
// Producers post jobs carrying an arbitrary payload, an optional HTTP
// callback and an optional list of target handler names (Producer).
// Workers claim jobs atomically, dispatch them to registered handlers
// and track progress and results (Worker). A Reaper rescues jobs that
// stall in a crashed or wedged worker, requeueing them up to a retry
// budget before dead-lettering.
//
// Unlike the teacher this package started from, storage is not
// pluggable across fundamentally different backends: the protocol
// depends on the exact primitives a Redis-compatible server provides
// (atomic blocking list pop-push, pipelined transactions, pub/sub).
// The store package abstracts only the client, not the data model.
//
// # Delivery semantics
//
// rqjobs provides at-least-once processing guarantees. A job may be
// delivered more than once if a worker crashes before completing it or
// the reaper's timeout elapses before completion. Handlers must
// therefore be idempotent.
//
// # Claim model
//
// A job moves through the pending list (unclaimed), the processing
// list (claimed) and a progress key (authoritative latest state).
// Claiming is a single atomic blocking pop-right-push-left: the only
// primitive that guarantees no two workers observe the same job.
//
// # State machine
//
// A job's progress field follows:
//
//	null (queued) -> 0 (started) -> 1..99 (in progress) -> 100 (completed)
//	                                                     -> -1 (failed)
//
// Terminal states (100, -1) are written once and never mutated again,
// by either a worker or the reaper.
//
// # Retry policy
//
// A stuck job (claimed longer than JobTimeout with no terminal
// progress) is rescued by the Reaper: requeued with retries
// incremented, or dead-lettered once retries reach MaxRetries.
//
// # Components
//
//	Producer — enqueue jobs (package root)
//	Worker   — claim, dispatch, finalize jobs; owns a Registry of handlers
//	Reaper   — detect and rescue stalled jobs
//	Context  — the per-invocation utility surface a Handler receives
//
// These are backed by:
//
//	job   — the wire record type and namespaced key schema
//	codec — the dual-mode (text-key / byte-key) binary encoding
//	store — the shared-storage client interface and its Redis implementation
//
// # Concurrency model
//
// A single Worker runs exactly one claim loop and processes at most
// one job at a time; horizontal scaling means running more Worker
// instances, not widening one worker's own concurrency. Shutdown is
// graceful: Stop cancels the claim loop and waits, subject to a
// timeout, for any in-flight dispatch to finish.
package rqjobs
