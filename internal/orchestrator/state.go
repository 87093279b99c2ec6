package orchestrator

// State is the single interaction mode of the appliance. Exactly one
// value is active at a time and only the orchestrator mutates it.
type State int

const (
	// StateIdle: passively waiting for a wake phrase.
	StateIdle State = iota
	// StateListening: a recording session is open, waiting for an
	// utterance to finalize.
	StateListening
	// StateProcessing: a finalized utterance is in flight to the
	// conversation backend.
	StateProcessing
	// StateResponding: the reply is being spoken.
	StateResponding
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StateProcessing:
		return "processing"
	case StateResponding:
		return "responding"
	default:
		return "unknown"
	}
}
