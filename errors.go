package rqjobs

import "errors"

var (
	// ErrStoreUnavailable names the store-failure case. Store I/O
	// errors are not wrapped in it: producers return the store client's
	// error as is, the worker claim loop logs it and keeps claiming, and
	// the reaper logs it and ends the current tick.
	ErrStoreUnavailable = errors.New("rqjobs: store unavailable")

	// ErrHandlerFailed wraps a panic recovered from a registered
	// handler; an error a handler returns is recorded as is. Either way
	// the job is marked failed, dead-lettered, and (if set) its
	// callback is invoked with success=0.
	ErrHandlerFailed = errors.New("rqjobs: handler failed")

	// ErrOrphanJobRef is returned when an id appears in the jobsrefs
	// list with no corresponding progress record.
	ErrOrphanJobRef = errors.New("rqjobs: orphan job reference")

	// ErrRetriesExhausted names the case of a job whose retries have
	// reached the configured maximum; it is dead-lettered instead of
	// requeued. The reaper handles that case by logging it and does not
	// return this error.
	ErrRetriesExhausted = errors.New("rqjobs: retries exhausted")

	// ErrDecodeFailed is returned when both the text-keyed and
	// byte-keyed decode attempts fail for a stored record.
	ErrDecodeFailed = errors.New("rqjobs: decode failed")
)
