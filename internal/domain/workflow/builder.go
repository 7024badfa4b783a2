package workflow

import (
	"fmt"
)

// StateMachineBuilder builds an immutable transition table
type StateMachineBuilder interface {
	// Configure returns a state configuration for the given state.
	// A state configured without Permit calls is terminal.
	Configure(state State) StateConfiguration

	// Build validates the table and creates a state machine starting at start
	Build(start State) (StateMachine, error)
}

// StateConfiguration configures the successors of a specific state
type StateConfiguration interface {
	// Permit allows transitions to the given target states
	Permit(targets ...State) StateConfiguration
}

type stateConfig struct {
	fromState State
	targets   []State
}

type stateMachineBuilder struct {
	name           string
	order          []State
	configurations map[State]*stateConfig
}

// NewBuilder creates a new transition table builder
func NewBuilder(name string) StateMachineBuilder {
	return &stateMachineBuilder{
		name:           name,
		configurations: make(map[State]*stateConfig),
	}
}

// Configure returns a state configuration for the given state
func (b *stateMachineBuilder) Configure(state State) StateConfiguration {
	if !state.IsValid() {
		panic(fmt.Sprintf("invalid state: %q", state))
	}

	config, exists := b.configurations[state]
	if !exists {
		config = &stateConfig{fromState: state}
		b.configurations[state] = config
		b.order = append(b.order, state)
	}

	return config
}

// Permit allows transitions to the target states, ignoring duplicates
func (c *stateConfig) Permit(targets ...State) StateConfiguration {
	for _, target := range targets {
		if !target.IsValid() {
			panic(fmt.Sprintf("invalid target state: %q", target))
		}
		if containsState(c.targets, target) {
			continue
		}
		c.targets = append(c.targets, target)
	}
	return c
}

// Build validates and freezes the table.
// The start state must be configured, every target must be configured,
// at least one state must be terminal and every state must be reachable from start.
func (b *stateMachineBuilder) Build(start State) (StateMachine, error) {
	if _, ok := b.configurations[start]; !ok {
		return nil, fmt.Errorf("%w: %s: start state %q is not configured", ErrInvalidTable, b.name, start)
	}

	edges := make(map[State][]State, len(b.configurations))
	lookup := make(map[State]map[State]struct{}, len(b.configurations))
	terminal := 0

	for _, state := range b.order {
		config := b.configurations[state]
		set := make(map[State]struct{}, len(config.targets))
		for _, target := range config.targets {
			if _, ok := b.configurations[target]; !ok {
				return nil, fmt.Errorf("%w: %s: %s -> %s targets an unconfigured state", ErrInvalidTable, b.name, state, target)
			}
			set[target] = struct{}{}
		}
		if len(config.targets) == 0 {
			terminal++
		}
		edges[state] = append([]State{}, config.targets...)
		lookup[state] = set
	}

	if terminal == 0 {
		return nil, fmt.Errorf("%w: %s: no terminal state", ErrInvalidTable, b.name)
	}

	reached := reachable(start, edges)
	for _, state := range b.order {
		if !reached[state] {
			return nil, fmt.Errorf("%w: %s: state %q is unreachable from %q", ErrInvalidTable, b.name, state, start)
		}
	}

	return &stateMachine{
		name:   b.name,
		start:  start,
		order:  append([]State{}, b.order...),
		edges:  edges,
		lookup: lookup,
	}, nil
}

// MustBuild is Build for package-level tables known to be valid
func MustBuild(b StateMachineBuilder, start State) StateMachine {
	m, err := b.Build(start)
	if err != nil {
		panic(err)
	}
	return m
}

func reachable(start State, edges map[State][]State) map[State]bool {
	seen := map[State]bool{start: true}
	queue := []State{start}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, next := range edges[current] {
			if !seen[next] {
				seen[next] = true
				queue = append(queue, next)
			}
		}
	}
	return seen
}

func containsState(states []State, s State) bool {
	for _, existing := range states {
		if existing == s {
			return true
		}
	}
	return false
}
