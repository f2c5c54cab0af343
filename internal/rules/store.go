// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package rules

import (
	"sync"
	"sync/atomic"
)

// Store is the filter rule store. The active rule list is published as an
// immutable slice behind an atomic pointer: readers snapshot it without
// locks, a reload swaps the whole list or nothing.
type Store struct {
	rules         atomic.Pointer[[]Rule]
	defaultAction atomic.Int32

	mu   sync.Mutex
	path string
}

// NewStore creates an empty Store with the given default action.
func NewStore(def Action) *Store {
	s := &Store{}
	empty := []Rule{}
	s.rules.Store(&empty)
	s.defaultAction.Store(int32(def))
	return s
}

// Snapshot returns the current immutable rule list. Callers must not
// mutate it.
func (s *Store) Snapshot() []Rule {
	return *s.rules.Load()
}

// Replace atomically publishes a new rule list. In-flight traversals keep
// the snapshot they already took.
func (s *Store) Replace(rules []Rule) {
	rs := make([]Rule, len(rules))
	copy(rs, rules)
	s.rules.Store(&rs)
}

// DefaultAction returns the action applied to unmatched packets.
func (s *Store) DefaultAction() Action {
	return Action(s.defaultAction.Load())
}

// SetDefaultAction changes the default action.
func (s *Store) SetDefaultAction(a Action) {
	s.defaultAction.Store(int32(a))
}

// ToggleDefaultAction flips the default action and returns the new value.
func (s *Store) ToggleDefaultAction() Action {
	for {
		old := s.defaultAction.Load()
		next := int32(ActionDrop)
		if Action(old) == ActionDrop {
			next = int32(ActionAccept)
		}
		if s.defaultAction.CompareAndSwap(old, next) {
			return Action(next)
		}
	}
}

// Path returns the configured rule file path.
func (s *Store) Path() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.path
}

// SetPath changes the rule file path used by the next reload.
func (s *Store) SetPath(path string) {
	s.mu.Lock()
	s.path = path
	s.mu.Unlock()
}

// NATStore is the NAT rule store. Same publication contract as Store,
// separate instance.
type NATStore struct {
	rules atomic.Pointer[[]NATRule]

	mu   sync.Mutex
	path string
}

// NewNATStore creates an empty NATStore.
func NewNATStore() *NATStore {
	s := &NATStore{}
	empty := []NATRule{}
	s.rules.Store(&empty)
	return s
}

// Snapshot returns the current immutable NAT rule list.
func (s *NATStore) Snapshot() []NATRule {
	return *s.rules.Load()
}

// Replace atomically publishes a new NAT rule list.
func (s *NATStore) Replace(rules []NATRule) {
	rs := make([]NATRule, len(rules))
	copy(rs, rules)
	s.rules.Store(&rs)
}

// Path returns the configured NAT rule file path.
func (s *NATStore) Path() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.path
}

// SetPath changes the NAT rule file path used by the next reload.
func (s *NATStore) SetPath(path string) {
	s.mu.Lock()
	s.path = path
	s.mu.Unlock()
}
