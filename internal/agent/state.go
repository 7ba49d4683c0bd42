package agent

import (
	"github.com/leapstack-labs/leapinsight/internal/fault"
	"github.com/leapstack-labs/leapinsight/internal/sandbox"
)

// State is a reasoning loop state.
type State string

// Loop states. FinalAnswerReceived and Aborted are terminal.
const (
	StateAwaitingModel       State = "AWAITING_MODEL"
	StateToolRequested       State = "TOOL_REQUESTED"
	StateObservationReady    State = "OBSERVATION_READY"
	StateFinalAnswerReceived State = "FINAL_ANSWER_RECEIVED"
	StateAborted             State = "ABORTED"
)

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return s == StateFinalAnswerReceived || s == StateAborted
}

// Turn is one completed reasoning cycle.
type Turn struct {
	Thought string
	Tool    string
	Input   string
	// Observation is the text fed back to the model.
	Observation string
	// Repeated is set when the input repeated the previous cycle and the
	// earlier Observation was reused.
	Repeated bool
	// Corrective is set for cycles that produced a format reminder instead
	// of running a tool.
	Corrective bool
}

// Result is the outcome of one Run.
type Result struct {
	State State
	// Reason classifies an aborted run.
	Reason fault.Kind
	Turns  []Turn
	// Final is the completion that ended the run. For a run aborted on
	// unparsable output it holds that output so any answer markup in it can
	// still be recovered.
	Final string
	// Transcript is the scratchpad appended to the prompt, in wire format.
	Transcript string
	// Observation is the last tool result, nil when no tool ran.
	Observation *sandbox.Observation
	// Cycles counts the non-terminal model steps.
	Cycles int
	// Calls counts model calls.
	Calls int
}

// Answered reports whether the run ended with a final answer.
func (r Result) Answered() bool { return r.State == StateFinalAnswerReceived }
