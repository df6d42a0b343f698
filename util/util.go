package util

import (
	"sync"
)

// MaxSequenceNumber is the largest sequence_number allowed by SMPP
const MaxSequenceNumber = 0x7FFFFFFF

// Counter is a thread safe generator of SMPP sequence numbers.
// Values run from 1 to MaxSequenceNumber and then wrap back to 1.
type Counter struct {
	counter uint32
	mtx     *sync.Mutex
}

// NewCounter instantiates Counter starting at start
func NewCounter(start uint32) *Counter {
	if start == 0 || start > MaxSequenceNumber {
		start = 1
	}
	return &Counter{
		counter: start,
		mtx:     new(sync.Mutex),
	}
}

// Next returns the next sequence number
func (id *Counter) Next() uint32 {
	id.mtx.Lock()
	defer id.mtx.Unlock()

	cur := id.counter
	if id.counter == MaxSequenceNumber {
		id.counter = 1
	} else {
		id.counter++
	}
	return cur
}

