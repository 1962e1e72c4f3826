package job

import "time"

// Record is the single serialized blob that represents a job throughout
// its lifecycle. The same encoded form is stored under a job's progress
// key and used as the list element in the pending and processing lists
// (I1/I2 invariants of the queue layout).
//
// Record intentionally carries both the producer-supplied payload (Msg)
// and the engine's own delivery/state bookkeeping; spec-wise these are
// two concerns (message vs. state), but they share one wire form, so
// they share one Go type.
//
// Field names mirror the wire schema exactly (lower_snake on the wire,
// via the codec package's struct tags) because records must be
// byte-identical across languages/producers using the same codec.
type Record struct {
	// ID is the decimal string form of the monotonic counter value
	// that allocated this job.
	ID string

	// Timestamp is the job's creation time, seconds since the Unix
	// epoch, as a float so sub-second precision survives serialization.
	Timestamp float64

	// Worker is the UUID of the claiming worker, or nil if unclaimed.
	Worker *string

	// ProcessingStarted is the epoch-seconds time the job was claimed,
	// or nil before it is claimed.
	ProcessingStarted *float64

	// ProcessingFinished is the epoch-seconds time the job was
	// finalized (success or failure), or nil until then.
	ProcessingFinished *float64

	// Progress is nil (queued), 0 (started), 1..99 (in progress),
	// 100 (completed) or -1 (failed). See Phase/PhaseOf.
	Progress *int

	// ShortResult is a short textual summary of the outcome, or nil.
	ShortResult *string

	// Result is the arbitrary (possibly binary) outcome payload, or nil.
	Result any

	// Callback is a URL to GET on completion/failure, or nil.
	Callback *string

	// Retries counts reaper rescues applied to this job. It is never
	// decremented.
	Retries uint32

	// Functions lists the handler names that should process this job.
	// Nil means "every registered handler".
	Functions []string

	// Msg is the producer-supplied payload. Opaque to the engine.
	Msg any
}

// Now returns the current time as the float64 epoch-seconds form used
// throughout Record, matching the wire format's precision.
func Now() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}

func f64(t float64) *float64 { return &t }

// MarkClaimed mutates r in place to reflect a worker claiming the job:
// worker is set, processing_started is stamped, and progress moves to
// started (0). Callers write the record back to storage after calling
// this; MarkClaimed performs no I/O.
func (r *Record) MarkClaimed(workerID string) {
	r.Worker = &workerID
	started := Now()
	r.ProcessingStarted = f64(started)
	p := 0
	r.Progress = &p
}

// Terminal reports whether the job has reached a terminal progress
// value (100 = completed, -1 = failed). Terminal jobs are never
// mutated by the reaper (invariant I4).
func (r *Record) Terminal() bool {
	return r.Progress != nil && (*r.Progress == 100 || *r.Progress == -1)
}
