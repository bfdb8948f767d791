package process

import (
	"errors"
	"time"
)

// State transition errors.
var (
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrProcessNotFound   = errors.New("process not found")
)

// StateTransition represents a valid state transition.
type StateTransition struct {
	From ProcessState
	To   ProcessState
}

// ValidTransitions defines all valid state transitions.
var ValidTransitions = []StateTransition{
	// Program loaded: Ready -> Running
	{From: StateReady, To: StateRunning},
	// Load failed: Ready -> Zombie
	{From: StateReady, To: StateZombie},
	// Blocked in exec or wait: Running -> Waiting
	{From: StateRunning, To: StateWaiting},
	// Child loaded or exited: Waiting -> Running
	{From: StateWaiting, To: StateRunning},
	// Normal exit or kill: Running -> Zombie
	{From: StateRunning, To: StateZombie},
	// Machine powered off while blocked: Waiting -> Zombie
	{From: StateWaiting, To: StateZombie},
}

// IsValidTransition checks if a state transition is valid.
func IsValidTransition(from, to ProcessState) bool {
	for _, t := range ValidTransitions {
		if t.From == from && t.To == to {
			return true
		}
	}
	return false
}

// TransitionTo attempts to transition the process to a new state.
func (p *Process) TransitionTo(to ProcessState) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !IsValidTransition(p.state, to) {
		return ErrInvalidTransition
	}

	p.state = to

	switch to {
	case StateRunning:
		if p.StartedAt.IsZero() {
			p.StartedAt = time.Now()
		}
	case StateZombie:
		p.FinishedAt = time.Now()
	}

	return nil
}

// Start transitions a loaded process from Ready to Running.
func (p *Process) Start() error {
	return p.TransitionTo(StateRunning)
}

// Block marks a running process as waiting.
func (p *Process) Block() error {
	return p.TransitionTo(StateWaiting)
}

// Unblock returns a waiting process to Running.
func (p *Process) Unblock() error {
	return p.TransitionTo(StateRunning)
}

// terminate moves the process to Zombie and records its status.
func (p *Process) terminate(status int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.state = StateZombie
	p.exitStatus = status
	p.FinishedAt = time.Now()
}

// IsAlive returns true if the process has not exited.
func (p *Process) IsAlive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state != StateZombie
}

// IsTerminated returns true if the process has exited.
func (p *Process) IsTerminated() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state == StateZombie
}
