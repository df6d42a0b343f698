package util

import (
	"sync"
	"time"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

// RandomSource produces uniform draws in [0,1)
type RandomSource interface {
	Float64() float64
}

// UniformSource draws from a gonum uniform distribution over [0,1)
// backed by a seeded source. Safe for concurrent use.
type UniformSource struct {
	dist distuv.Uniform
	lock *sync.Mutex
}

var _ RandomSource = &UniformSource{}

// NewRandomSource creates a UniformSource with the given seed
func NewRandomSource(seed uint64) *UniformSource {
	return &UniformSource{
		dist: distuv.Uniform{
			Min: 0,
			Max: 1,
			Src: rand.NewSource(seed),
		},
		lock: new(sync.Mutex),
	}
}

// NewTimeSeededSource seeds a UniformSource from the wall clock
func NewTimeSeededSource() *UniformSource {
	return NewRandomSource(uint64(time.Now().UnixNano()))
}

// Float64 implements RandomSource
func (u *UniformSource) Float64() float64 {
	u.lock.Lock()
	defer u.lock.Unlock()
	v := u.dist.Rand()
	if v >= 1 {
		// guard against rounding at the upper bound
		v = 0
	}
	return v
}

// SequenceSource replays a fixed list of draws, cycling when exhausted.
// Used to drive deterministic branches.
type SequenceSource struct {
	values []float64
	next   int
	lock   *sync.Mutex
}

// NewSequenceSource creates a SequenceSource over values
func NewSequenceSource(values ...float64) *SequenceSource {
	return &SequenceSource{
		values: values,
		lock:   new(sync.Mutex),
	}
}

// Float64 implements RandomSource
func (s *SequenceSource) Float64() float64 {
	s.lock.Lock()
	defer s.lock.Unlock()
	if len(s.values) == 0 {
		return 0
	}
	v := s.values[s.next%len(s.values)]
	s.next++
	return v
}

// Draws returns how many values have been consumed
func (s *SequenceSource) Draws() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.next
}
