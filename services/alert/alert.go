// Package alert holds the single shared "drive the indicator" flag.
//
// Samplers write it, the actuator reads it. Writers are not reconciled:
// whichever sampler wrote last decides the value.
package alert

import "sync"

type State struct {
	mu sync.Mutex
	on bool
}

func New() *State { return &State{} }

func (s *State) Set(v bool) {
	s.mu.Lock()
	s.on = v
	s.mu.Unlock()
}

func (s *State) Get() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.on
}

// Swap stores v and returns the previous value.
func (s *State) Swap(v bool) bool {
	s.mu.Lock()
	prev := s.on
	s.on = v
	s.mu.Unlock()
	return prev
}
