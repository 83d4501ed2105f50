package pipeline

// State is a pipeline run's position in the state machine:
// Idle → Grounding → RetrievingComparables → Synthesizing → Complete,
// with Failed reachable from any non-terminal state.
type State int

const (
	StateIdle State = iota
	StateGrounding
	StateRetrievingComparables
	StateSynthesizing
	StateComplete
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateGrounding:
		return "grounding"
	case StateRetrievingComparables:
		return "retrieving_comparables"
	case StateSynthesizing:
		return "synthesizing"
	case StateComplete:
		return "complete"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Terminal reports whether no further transitions happen from s.
func (s State) Terminal() bool {
	return s == StateComplete || s == StateFailed
}

// stageName is the human-readable name of the stage running in state s,
// used in error messages.
func (s State) stageName() string {
	switch s {
	case StateGrounding:
		return "market research"
	case StateRetrievingComparables:
		return "comparables search"
	case StateSynthesizing:
		return "draft synthesis"
	case StateComplete:
		return "draft persistence"
	}
	return s.String()
}
