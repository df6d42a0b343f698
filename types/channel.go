package types

import (
	"errors"
	"sync"
)

var (
	// ErrChannelFull is returned by Channel.Add when the channel is at capacity
	ErrChannelFull = errors.New("channel is full")
	// ErrChannelClosed is returned by Channel.Add after Close
	ErrChannelClosed = errors.New("channel is closed")
)

// Channel[V] is a capacity bounded channel that never blocks the producer.
/*
Add either places the element or reports ErrChannelFull immediately.
Consumers can poll with Pop or select on Ch.

Example:
	ch := NewChannel[*SubmitSM](100)

	go func() {
		for m := range ch.Ch() {
			//...
		}
	}()

	if err := ch.Add(msg); errors.Is(err, ErrChannelFull) {
		// try again later
	}
*/
type Channel[V any] struct {
	curChan chan V
	open    bool
	lock    *sync.Mutex
}

// NewChannel[V] creates a Channel[V] holding at most size elements.
func NewChannel[V any](size int) *Channel[V] {
	if size < 1 {
		size = 1
	}
	return &Channel[V]{
		curChan: make(chan V, size),
		open:    true,
		lock:    new(sync.Mutex),
	}
}

// Add adds the element if the underlying channel is not full
func (c *Channel[V]) Add(element V) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	if !c.open {
		return ErrChannelClosed
	}
	select {
	case c.curChan <- element:
		return nil
	default:
		return ErrChannelFull
	}
}

// Pop removes and returns the element at the head without blocking
func (c *Channel[V]) Pop() (V, bool) {
	var result V
	select {
	case e, ok := <-c.Ch():
		if !ok {
			return result, false
		}
		return e, true
	default:
		return result, false
	}
}

// Drain removes and returns everything currently buffered
func (c *Channel[V]) Drain() []V {
	result := make([]V, 0)
	for {
		e, ok := c.Pop()
		if !ok {
			return result
		}
		result = append(result, e)
	}
}

// Ch returns the underlying channel that can be used to poll
func (c *Channel[V]) Ch() <-chan V {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.curChan
}

// Len returns the number of buffered elements
func (c *Channel[V]) Len() int {
	return len(c.Ch())
}

// Close closes the channel. Buffered elements can still be read.
func (c *Channel[V]) Close() {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.open {
		close(c.curChan)
		c.open = false
	}
}
