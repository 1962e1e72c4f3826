// Package job defines the wire representation of a queued job and the
// namespaced key schema used to locate it in the shared store.
//
// Record is the single blob, encoded by package codec, that represents
// a job through its whole lifecycle: the same bytes live as a list
// element in the pending/processing lists and as the value at a job's
// progress key. Keys derives every key name for a namespace from one
// string, so the producer, worker, reaper and control surface agree on
// the layout without repeating string concatenation.
package job
