package engine

import "fmt"

// Transitions lists the phases each phase may move to. Finished is terminal.
var Transitions = map[Phase][]Phase{
	PhaseWaiting:  {PhasePlaying},
	PhasePlaying:  {PhaseFinished},
	PhaseFinished: {},
}

func CanTransition(from, to Phase) bool {
	for _, next := range Transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func (s *Session) transition(to Phase) error {
	if !CanTransition(s.Phase, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInternal, s.Phase, to)
	}
	s.Phase = to
	return nil
}
