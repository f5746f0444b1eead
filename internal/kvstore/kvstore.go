// Package kvstore is the private, per-replica application state that
// internal/execution applies committed Set commands to. Section 5 of the
// specification makes every replica a single-threaded, message-driven
// task whose Execution Engine is the only mutator of this state, so -
// unlike the teacher's src/store/store.go, which serializes access with a
// mutex for a goroutine-per-connection server - this store needs no
// locking at all.
package kvstore

import "github.com/kboxdb/epaxoskv/internal/command"

// Store is a flat key-value map private to one replica.
type Store struct {
	values map[command.Key]string
}

// New builds an empty store.
func New() *Store {
	return &Store{values: make(map[command.Key]string)}
}

// Set writes a value, overwriting any prior one.
func (s *Store) Set(key command.Key, value string) {
	s.values[key] = value
}

// Get returns the current value for key and whether it has ever been set.
func (s *Store) Get(key command.Key) (string, bool) {
	v, ok := s.values[key]
	return v, ok
}
