package triage

import "fmt"

// State is a step of the per-item state machine
type State string

const (
	StateNew         State = "NEW"
	StateCacheLookup State = "CACHE_LOOKUP"
	StateExtract     State = "EXTRACT"
	StateDedupeCheck State = "DEDUPE_CHECK"
	StateRulesEval   State = "RULES_EVAL"
	StateDecided     State = "DECIDED"
	StateStoreCache  State = "STORE_CACHE"
	StateTerminal    State = "TERMINAL"
	StateFailed      State = "FAILED"
)

// transitions lists every legal edge. Retries of EXTRACT happen inside the
// state and are counted on the outcome rather than traced as self-edges.
var transitions = map[State][]State{
	StateNew:         {StateCacheLookup, StateFailed},
	StateCacheLookup: {StateDecided, StateExtract, StateFailed},
	StateExtract:     {StateDedupeCheck, StateFailed},
	StateDedupeCheck: {StateDecided, StateRulesEval, StateFailed},
	StateRulesEval:   {StateDecided},
	StateDecided:     {StateStoreCache},
	StateStoreCache:  {StateTerminal, StateFailed},
}

// IsFinal reports whether no transition leaves s
func (s State) IsFinal() bool {
	return s == StateTerminal || s == StateFailed
}

// CanTransition reports whether from -> to is a legal edge
func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// trace records the states an item passes through
type trace struct {
	states []State
}

func newTrace() *trace {
	return &trace{states: []State{StateNew}}
}

func (t *trace) current() State {
	return t.states[len(t.states)-1]
}

// advance moves to the next state. An illegal edge is a programming error.
func (t *trace) advance(to State) {
	from := t.current()
	if !CanTransition(from, to) {
		panic(fmt.Sprintf("triage: illegal transition %s -> %s", from, to))
	}
	t.states = append(t.states, to)
}

func (t *trace) snapshot() []State {
	out := make([]State, len(t.states))
	copy(out, t.states)
	return out
}
