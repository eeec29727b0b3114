package models

// TaskKind classifies the outcome of processing one frontier entry
type TaskKind int

const (
	TaskAccepted TaskKind = iota // Page fetched, extracted and validated
	TaskSkipped                  // Page dropped by policy or validation; discovered links may still propagate
	TaskFailed                   // Fetch or parse failure; nothing propagates
)

// Skip reasons carried in TaskResult.Reason
const (
	SkipReasonValidation = "validation"
	SkipReasonRobots     = "robots"
)

// String implements fmt.Stringer for logging
func (k TaskKind) String() string {
	switch k {
	case TaskAccepted:
		return "accepted"
	case TaskSkipped:
		return "skipped"
	case TaskFailed:
		return "failed"
	}
	return "unknown"
}

// Diagnostic reports whether the result belongs in the run's error list
func (r TaskResult) Diagnostic() bool {
	return r.Err != nil && r.Kind != TaskAccepted
}

// PropagatesLinks reports whether the result's followable links feed the next frontier
func (r TaskResult) PropagatesLinks() bool {
	switch r.Kind {
	case TaskAccepted:
		return true
	case TaskSkipped:
		return r.Reason == SkipReasonValidation
	}
	return false
}
