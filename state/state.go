package state

import (
	"errors"
	"fmt"
)

// Phase 是对局所处的阶段
type Phase string

const (
	WaitingForOpponent Phase = "waiting_for_opponent"
	InProgress         Phase = "in_progress"
	RoundOver          Phase = "round_over"
	Abandoned          Phase = "abandoned"
	Closed             Phase = "closed"
)

// ErrTransitionNotAllowed is returned when a state transition is not allowed.
var ErrTransitionNotAllowed = errors.New("state transition not allowed")

// Machine 有限状态机，只允许在已声明的转换之间切换。
// Machine is not safe for concurrent use; the owner serializes access.
type Machine struct {
	current     Phase
	transitions map[Phase]map[Phase]struct{} // fromPhase -> toPhase
	terminal    map[Phase]struct{}

	// OnChange is called after every accepted transition.
	OnChange func(from, to Phase)
}

// NewMachine creates a machine in the initial phase with no transitions.
func NewMachine(initial Phase) *Machine {
	return &Machine{
		current:     initial,
		transitions: make(map[Phase]map[Phase]struct{}),
		terminal:    make(map[Phase]struct{}),
	}
}

// NewGameMachine 返回对局使用的状态机：
//
//	waiting_for_opponent → in_progress → round_over → in_progress ...
//	任何非终止状态 → abandoned | closed
func NewGameMachine() *Machine {
	m := NewMachine(WaitingForOpponent)
	m.AddTransition(WaitingForOpponent, InProgress)
	m.AddTransition(InProgress, RoundOver)
	m.AddTransition(RoundOver, InProgress)
	m.SetTerminal(Abandoned, Closed)
	return m
}

// AddTransition declares that from may move to to.
func (m *Machine) AddTransition(from, to Phase) {
	if _, exists := m.transitions[from]; !exists {
		m.transitions[from] = make(map[Phase]struct{})
	}
	m.transitions[from][to] = struct{}{}
}

// SetTerminal marks phases that every non-terminal phase may enter and that
// can never be left.
func (m *Machine) SetTerminal(phases ...Phase) {
	for _, p := range phases {
		m.terminal[p] = struct{}{}
	}
}

// Transition 切换到新状态
func (m *Machine) Transition(to Phase) error {
	from := m.current
	if !m.CanTransition(to) {
		return fmt.Errorf("%w: %s -> %s", ErrTransitionNotAllowed, from, to)
	}

	m.current = to
	if m.OnChange != nil {
		m.OnChange(from, to)
	}
	return nil
}

// CanTransition reports whether Transition(to) would succeed.
func (m *Machine) CanTransition(to Phase) bool {
	if m.IsTerminal() {
		return false
	}
	if _, ok := m.terminal[to]; ok {
		return true
	}
	_, ok := m.transitions[m.current][to]
	return ok
}

// Current 当前状态
func (m *Machine) Current() Phase {
	return m.current
}

// Is reports whether the current phase is one of phases.
func (m *Machine) Is(phases ...Phase) bool {
	for _, p := range phases {
		if m.current == p {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the machine reached a terminal phase.
func (m *Machine) IsTerminal() bool {
	_, ok := m.terminal[m.current]
	return ok
}
