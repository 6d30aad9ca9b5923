package rag

import "fmt"

// State is a step of the answering protocol.
type State int

const (
	AwaitingEvidence State = iota
	HasEvidence
	NoEvidence
	Answered
	DeclinedToAnswer
	Failed
)

func (s State) String() string {
	switch s {
	case AwaitingEvidence:
		return "AwaitingEvidence"
	case HasEvidence:
		return "HasEvidence"
	case NoEvidence:
		return "NoEvidence"
	case Answered:
		return "Answered"
	case DeclinedToAnswer:
		return "DeclinedToAnswer"
	case Failed:
		return "Failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

var transitions = map[State][]State{
	AwaitingEvidence: {HasEvidence, NoEvidence, Failed},
	HasEvidence:      {Answered, DeclinedToAnswer, Failed},
	NoEvidence:       {DeclinedToAnswer},
}

func (s State) Terminal() bool {
	return s == Answered || s == DeclinedToAnswer || s == Failed
}

func canTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
