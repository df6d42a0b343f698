package types

import (
	"sync"

	"golang.org/x/exp/constraints"
)

// Map[T,V] is a generic thread safe map of key type [T] and value type [V]
type Map[T constraints.Ordered, V any] struct {
	m    map[T]V
	lock *sync.Mutex
}

// NewMap[T,V] creates an empty Map
func NewMap[T constraints.Ordered, V any]() *Map[T, V] {
	return &Map[T, V]{
		m:    make(map[T]V),
		lock: new(sync.Mutex),
	}
}

func (s *Map[T, V]) Get(key T) (V, bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	val, ok := s.m[key]
	return val, ok
}

func (s *Map[T, V]) Add(key T, val V) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.m[key] = val
}

func (s *Map[T, V]) Remove(key T) {
	s.lock.Lock()
	defer s.lock.Unlock()
	delete(s.m, key)
}

func (s *Map[T, V]) Size() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return len(s.m)
}

// IterValues returns a snapshot of the values in no particular order
func (s *Map[T, V]) IterValues() []V {
	s.lock.Lock()
	defer s.lock.Unlock()
	vals := make([]V, 0, len(s.m))
	for _, v := range s.m {
		vals = append(vals, v)
	}
	return vals
}
