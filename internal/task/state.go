package task

// State is the lifecycle position of a task.
type State string

const (
	StateIdle       State = "idle"
	StateRunning    State = "running"
	StatePaused     State = "paused"
	StateCancelling State = "cancelling"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
	StateCancelled  State = "cancelled"
)

// Terminal reports whether the state admits no further transitions.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateCancelled:
		return true
	default:
		return false
	}
}

var transitions = map[State][]State{
	StateIdle:       {StateRunning},
	StateRunning:    {StatePaused, StateCancelling, StateCompleted, StateFailed},
	StatePaused:     {StateRunning, StateCancelling, StateCompleted, StateFailed},
	StateCancelling: {StateCancelled, StateFailed},
}

func canTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
