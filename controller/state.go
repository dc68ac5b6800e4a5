package controller

// State is a step of the per-clause state machine.
type State int

const (
	StateInit State = iota
	StatePlanning
	StateRetrieving
	StateVerifying
	StateAccepted
	StateRevise
	StateAbandoned
	StateDone
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StatePlanning:
		return "PLANNING"
	case StateRetrieving:
		return "RETRIEVING"
	case StateVerifying:
		return "VERIFYING"
	case StateAccepted:
		return "ACCEPTED"
	case StateRevise:
		return "REVISE"
	case StateAbandoned:
		return "ABANDONED"
	case StateDone:
		return "DONE"
	default:
		return "UNKNOWN"
	}
}
