package job

import "fmt"

// Phase is a presentation-only projection of Record.Progress, used by
// the control surface and observability code. The wire record never
// stores a Phase directly; it is always derived from Progress via
// PhaseOf, the same way a dashboard derives "healthy"/"degraded" from a
// raw metric rather than storing the label itself.
type Phase uint8

const (
	// Unknown is the zero value, used when Progress cannot be classified.
	Unknown Phase = iota

	// Queued means the job has not yet been claimed (Progress == nil).
	Queued

	// Started means a worker claimed the job but has not reported
	// further progress (Progress == 0).
	Started

	// InProgress means a worker reported partial progress (1..99).
	InProgress

	// Completed is terminal success (Progress == 100).
	Completed

	// Failed is terminal failure (Progress == -1).
	Failed
)

func phaseToString(p Phase) string {
	switch p {
	case Queued:
		return "queued"
	case Started:
		return "started"
	case InProgress:
		return "in_progress"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// String returns the canonical lowercase name of the phase.
func (p Phase) String() string {
	return phaseToString(p)
}

// PhaseOf classifies a raw progress value into a Phase. A nil progress
// is Queued; 0 is Started; 1..99 is InProgress; 100 is Completed; -1 is
// Failed. Any other value is Unknown.
func PhaseOf(progress *int) Phase {
	if progress == nil {
		return Queued
	}
	switch v := *progress; {
	case v == 0:
		return Started
	case v == 100:
		return Completed
	case v == -1:
		return Failed
	case v >= 1 && v <= 99:
		return InProgress
	default:
		return Unknown
	}
}

// ProgressText renders the control surface's textual progress response:
// "queued", "started", the numeric percent as a string, "completed" or
// "failed" — matching the original controller's /jobs/<id>/progress
// endpoint exactly.
func ProgressText(progress *int) string {
	switch PhaseOf(progress) {
	case Queued:
		return "queued"
	case Started:
		return "started"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	case InProgress:
		return fmt.Sprintf("%d", *progress)
	default:
		return "unknown"
	}
}
