package state

// validTransitions lists the permitted moves of a conversation turn.
//
// Idle -> Recording covers answers to a prompt sent before a restart.
// Recording -> Recording is missing on purpose: a second answer arriving while the first is
// being stored is rejected.
var validTransitions = map[State][]State{
	StateIdle: {
		StatePromptSent,
		StateRecording,
	},
	StatePromptSent: {
		StatePromptSent,
		StateRecording,
	},
	StateRecording: {
		StatePromptSent,
	},
}

// IsTransitionAllowed reports whether moving from one state to another is valid.
func IsTransitionAllowed(from, to State) bool {
	if to == StateIdle {
		return true
	}

	allowed, ok := validTransitions[from]
	if !ok {
		return false
	}

	for _, state := range allowed {
		if state == to {
			return true
		}
	}

	return false
}
