package orchestrator

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one role-tagged message in the dialogue.
type Turn struct {
	Role Role
	Text string
}

// History is the bounded dialogue memory: an append-only sequence of
// turns, pruned oldest-pair-first so it never holds more than
// 2 × maxTurns entries. Not safe for concurrent use; the orchestrator
// serializes access under its own mutex.
type History struct {
	maxTurns int
	turns    []Turn
}

func NewHistory(maxTurns int) *History {
	if maxTurns < 1 {
		maxTurns = 1
	}
	return &History{maxTurns: maxTurns}
}

// Append records a turn, dropping the oldest user/assistant pair when the
// bound is exceeded.
func (h *History) Append(role Role, text string) {
	h.turns = append(h.turns, Turn{Role: role, Text: text})
	for len(h.turns) > 2*h.maxTurns {
		h.turns = h.turns[2:]
	}
}

// Turns returns a snapshot of the current dialogue.
func (h *History) Turns() []Turn {
	return append([]Turn(nil), h.turns...)
}

func (h *History) Len() int { return len(h.turns) }
