package coordinator

// State is a coordinator invocation's lifecycle state.
//
//	Idle ──launch ok──> Launched ──drainers+waiter started──> DrainingWaiting
//	  │                                                              │
//	  └──spawn error──> Done <──cleanup── Joined <──all returned─────┘
type State int

const (
	Idle State = iota
	Launched
	DrainingWaiting
	Joined
	Done
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Launched:
		return "launched"
	case DrainingWaiting:
		return "draining_waiting"
	case Joined:
		return "joined"
	case Done:
		return "done"
	default:
		return "unknown"
	}
}

// validTransitions lists the only edges an invocation may take.
var validTransitions = map[State][]State{
	Idle:            {Launched, Done},
	Launched:        {DrainingWaiting},
	DrainingWaiting: {Joined},
	Joined:          {Done},
}

// CanTransition reports whether from -> to is a legal edge.
func CanTransition(from, to State) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
