package engine

import "fmt"

// State is a pipeline lifecycle state.
type State string

// Pipeline states in the order a run visits them.
const (
	StateIdle        State = "idle"
	StateResolving   State = "resolving"
	StateCollecting  State = "collecting"
	StateAggregating State = "aggregating"
	StateTruncating  State = "truncating"
	StateExtracting  State = "extracting"
	StateSucceeded   State = "succeeded"
	StateFailed      State = "failed"
)

var transitions = map[State][]State{
	StateIdle:        {StateResolving},
	StateResolving:   {StateCollecting},
	StateCollecting:  {StateAggregating},
	StateAggregating: {StateTruncating},
	StateTruncating:  {StateExtracting},
	StateExtracting:  {StateSucceeded, StateFailed},
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// CanTransition reports whether next may follow s.
func (s State) CanTransition(next State) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// advance moves the report to next and records it.
func (r *Report) advance(next State) error {
	if !r.State.CanTransition(next) {
		return fmt.Errorf("invalid transition %s -> %s", r.State, next)
	}
	r.State = next
	r.States = append(r.States, next)
	return nil
}
