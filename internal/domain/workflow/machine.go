package workflow

// StateMachine answers transition questions for one transition table.
// Implementations are immutable after Build and safe for concurrent use.
type StateMachine interface {
	// Name identifies the table, usually the kind family it serves
	Name() string

	// Start returns the state every new item enters
	Start() State

	// States returns all configured states in configuration order
	States() []State

	// CanTransition reports whether target is an allowed successor of current.
	// An unknown current state is an error; an unknown target is simply not allowed.
	CanTransition(current, target State) (bool, error)

	// AllowedTransitions returns the successors of current, empty for unknown or terminal states
	AllowedTransitions(current State) []State

	// IsTerminal reports whether the state is configured and has no successors
	IsTerminal(state State) bool

	// TerminalStates returns the states with no successors
	TerminalStates() []State
}

type stateMachine struct {
	name   string
	start  State
	order  []State
	edges  map[State][]State
	lookup map[State]map[State]struct{}
}

func (m *stateMachine) Name() string {
	return m.name
}

func (m *stateMachine) Start() State {
	return m.start
}

func (m *stateMachine) States() []State {
	return append([]State(nil), m.order...)
}

func (m *stateMachine) CanTransition(current, target State) (bool, error) {
	successors, ok := m.lookup[current]
	if !ok {
		return false, ErrUnknownState
	}
	_, allowed := successors[target]
	return allowed, nil
}

func (m *stateMachine) AllowedTransitions(current State) []State {
	return append([]State{}, m.edges[current]...)
}

func (m *stateMachine) IsTerminal(state State) bool {
	successors, ok := m.edges[state]
	return ok && len(successors) == 0
}

func (m *stateMachine) TerminalStates() []State {
	var out []State
	for _, s := range m.order {
		if len(m.edges[s]) == 0 {
			out = append(out, s)
		}
	}
	return out
}
