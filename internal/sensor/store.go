// Package sensor holds the last broadcast sensor state and computes the
// minimal update that brings attached peers in line with new readings.
package sensor

import (
	"sort"
	"sync"

	"github.com/danmuck/rsensor/internal/protocol"
)

// Store is the SensorTable. Keys are only ever added or overwritten.
type Store struct {
	mu     sync.Mutex
	values map[string]protocol.Value
}

func NewStore() *Store {
	return &Store{values: make(map[string]protocol.Value)}
}

// DiffUpdate records incoming readings and returns a sensor-update carrying
// every key that is new, changed, or all keys when forceAll is set. ok is
// false when nothing qualifies.
func (s *Store) DiffUpdate(incoming map[string]protocol.Value, forceAll bool) (protocol.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.diffLocked(incoming, forceAll)
}

// FullSnapshot returns the whole table as one sensor-update, for resyncing a
// newly attached peer.
func (s *Store) FullSnapshot() (protocol.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.diffLocked(s.values, true)
}

// Snapshot returns a copy of the table.
func (s *Store) Snapshot() map[string]protocol.Value {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]protocol.Value, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

func (s *Store) Get(name string) (protocol.Value, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[name]
	return v, ok
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.values)
}

// Reset drops all known state, for controller detach.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values = make(map[string]protocol.Value)
}

func (s *Store) diffLocked(incoming map[string]protocol.Value, forceAll bool) (protocol.Message, bool) {
	keys := make([]string, 0, len(incoming))
	for k := range incoming {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var args []protocol.Value
	for _, k := range keys {
		v := incoming[k]
		prev, known := s.values[k]
		if !known || !prev.Equal(v) || forceAll {
			args = append(args, protocol.StringValue(k), v)
		}
		s.values[k] = v
	}
	if len(args) == 0 {
		return protocol.Message{}, false
	}
	return protocol.Message{Command: protocol.CommandSensorUpdate, Args: args}, true
}
