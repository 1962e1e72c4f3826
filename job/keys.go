package job

// Keys derives the namespaced key schema described for a queue namespace.
//
// A single namespace N fans out into five logical collections plus a
// counter and a family of one-shot pub/sub channels:
//
//	N              pending list
//	N_processing   processing list
//	N_jobsrefs     reaper scan index
//	N_deadletter   dead-letter list
//	N_progress_<id> per-job record
//	N_max_id       id allocator counter
//	pub_<id>       one-shot completion channel
//
// Keys is a pure value type; it holds no connection state and performs
// no I/O. It exists so the key layout is defined exactly once and reused
// by the producer, worker, reaper and control surface alike.
type Keys struct {
	Namespace string
}

// NewKeys returns a Keys helper for the given namespace.
func NewKeys(namespace string) Keys {
	return Keys{Namespace: namespace}
}

// Pending returns the key of the pending-jobs list.
func (k Keys) Pending() string { return k.Namespace }

// Processing returns the key of the in-flight jobs list.
func (k Keys) Processing() string { return k.Namespace + "_processing" }

// JobsRefs returns the key of the reaper's scan index.
func (k Keys) JobsRefs() string { return k.Namespace + "_jobsrefs" }

// DeadLetter returns the key of the dead-letter list.
func (k Keys) DeadLetter() string { return k.Namespace + "_deadletter" }

// MaxID returns the key of the monotonic id counter.
func (k Keys) MaxID() string { return k.Namespace + "_max_id" }

// Progress returns the per-job record key for the given id.
func (k Keys) Progress(id string) string { return k.Namespace + "_progress_" + id }

// Pub returns the pub/sub channel name used to publish a job's
// short_result exactly once on completion.
func (k Keys) Pub(id string) string { return "pub_" + id }
