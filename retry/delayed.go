// Package retry holds MO messages that could not be delivered and
// periodically offers them back to the inbound queue.
package retry

import (
	"errors"
	"sync"
	"time"

	"github.com/netrixframework/smscsim/config"
	"github.com/netrixframework/smscsim/log"
	"github.com/netrixframework/smscsim/types"
)

// InboundChannel is the bounded queue messages are resubmitted to.
// Add must not block and must return types.ErrChannelFull when at capacity.
type InboundChannel interface {
	Add(*types.SubmitSM) error
}

// Stats counts the outcomes of the retry cycle
type Stats struct {
	Held         int `json:"held"`
	Tracked      int `json:"tracked"`
	Resubmitted  int `json:"resubmitted"`
	ChannelFull  int `json:"channel_full"`
	Exhausted    int `json:"exhausted"`
	Inconsistent int `json:"inconsistent"`
	Delivered    int `json:"delivered"`
	Replaced     int `json:"replaced"`
}

var _ types.Service = (*DelayedQueue)(nil)

// DelayedQueue buffers messages awaiting resubmission together with the
// number of attempts made for each sequence number.
//
// held and attempts are guarded by lock and always updated together.
// The retry cycle holds lock for its whole scan.
type DelayedQueue struct {
	inbound     InboundChannel
	period      time.Duration
	maxAttempts int

	held     []*types.SubmitSM
	attempts map[uint32]int
	stats    Stats
	lock     *sync.Mutex

	done chan struct{}
	*types.BaseService
}

// NewDelayedQueue creates a DelayedQueue resubmitting to inbound
func NewDelayedQueue(c config.RetryConfig, inbound InboundChannel, logger *log.Logger) *DelayedQueue {
	return &DelayedQueue{
		inbound:     inbound,
		period:      c.Period.Duration,
		maxAttempts: c.MaxAttempts,
		held:        make([]*types.SubmitSM, 0),
		attempts:    make(map[uint32]int),
		lock:        new(sync.Mutex),
		done:        make(chan struct{}),
		BaseService: types.NewBaseService("DelayedQueue", logger),
	}
}

// RetryLater registers msg for a later resubmission. The attempt count for
// its sequence number starts at 1 and grows by one on every call. A message
// already held under the same sequence number is replaced, not duplicated,
// and a distinct message replaced this way is counted in Stats.Replaced.
func (q *DelayedQueue) RetryLater(msg *types.SubmitSM) {
	q.lock.Lock()
	defer q.lock.Unlock()

	q.attempts[msg.SeqNo]++

	if i := q.indexOf(msg.SeqNo); i >= 0 {
		if q.held[i] != msg {
			q.stats.Replaced++
			q.Logger.With(log.LogParams{"seq_no": msg.SeqNo}).
				Warn("Another message held under the same sequence number, replacing it")
		}
		q.held[i] = msg
	} else {
		q.held = append(q.held, msg)
	}
	q.Logger.With(log.LogParams{
		"seq_no":   msg.SeqNo,
		"attempts": q.attempts[msg.SeqNo],
		"held":     len(q.held),
	}).Info("Added message to delayed queue for retry")
}

// DeliveredOK is called once a retried message has been delivered. It drops
// the attempt record and any held copy. Unknown sequence numbers are ignored.
func (q *DelayedQueue) DeliveredOK(msg *types.SubmitSM) {
	q.lock.Lock()
	defer q.lock.Unlock()

	if _, ok := q.attempts[msg.SeqNo]; !ok {
		return
	}
	delete(q.attempts, msg.SeqNo)
	q.removeHeld(msg.SeqNo)
	q.stats.Delivered++
	q.Logger.With(log.LogParams{"seq_no": msg.SeqNo}).Info("Retried message successfully delivered")
}

// Attempts returns the attempt count recorded for seqNo
func (q *DelayedQueue) Attempts(seqNo uint32) (int, bool) {
	q.lock.Lock()
	defer q.lock.Unlock()
	a, ok := q.attempts[seqNo]
	return a, ok
}

// IsHeld returns true if a message with seqNo is waiting for resubmission
func (q *DelayedQueue) IsHeld(seqNo uint32) bool {
	q.lock.Lock()
	defer q.lock.Unlock()
	return q.indexOf(seqNo) >= 0
}

// Held returns a snapshot of the messages waiting for resubmission
func (q *DelayedQueue) Held() []*types.SubmitSM {
	q.lock.Lock()
	defer q.lock.Unlock()
	res := make([]*types.SubmitSM, len(q.held))
	copy(res, q.held)
	return res
}

// Stats returns a snapshot of the counters
func (q *DelayedQueue) Stats() Stats {
	q.lock.Lock()
	defer q.lock.Unlock()
	s := q.stats
	s.Held = len(q.held)
	s.Tracked = len(q.attempts)
	return s
}

// Start implements Service and starts the periodic retry cycle
func (q *DelayedQueue) Start() error {
	if !q.StartRunning() {
		return types.ErrServiceStarted
	}
	go q.loop()
	return nil
}

// Stop implements Service. A tick in progress completes before Stop returns.
func (q *DelayedQueue) Stop() error {
	if !q.StopRunning() {
		return nil
	}
	<-q.done
	q.Logger.Info("Delayed queue is exiting")
	return nil
}

func (q *DelayedQueue) loop() {
	defer close(q.done)
	q.Logger.With(log.LogParams{
		"period":       q.period.String(),
		"max_attempts": q.maxAttempts,
	}).Info("Starting delayed queue")

	ticker := time.NewTicker(q.period)
	defer ticker.Stop()

	for {
		select {
		case <-q.QuitCh():
			return
		case <-ticker.C:
		}
		if !q.Running() {
			return
		}
		q.Tick()
	}
}

// Tick runs one retry cycle over a snapshot of the held messages:
//   - no attempt record: warn and drop the message from the held set
//   - attempts below the maximum: offer it to the inbound channel; on success
//     count the attempt and stop holding it, when full keep it for the next tick
//   - attempts at the maximum: give up and forget the message
func (q *DelayedQueue) Tick() {
	q.lock.Lock()
	defer q.lock.Unlock()

	if len(q.held) == 0 {
		return
	}
	q.Logger.With(log.LogParams{"count": len(q.held)}).Debug("Processing messages in the delayed queue")

	snapshot := make([]*types.SubmitSM, len(q.held))
	copy(snapshot, q.held)

	for _, msg := range snapshot {
		logger := q.Logger.With(log.LogParams{"seq_no": msg.SeqNo})

		attempts, ok := q.attempts[msg.SeqNo]
		if !ok {
			q.stats.Inconsistent++
			q.removeHeld(msg.SeqNo)
			logger.Warn("No record of retry attempts for message, dropping it")
			continue
		}

		if attempts >= q.maxAttempts {
			q.stats.Exhausted++
			delete(q.attempts, msg.SeqNo)
			q.removeHeld(msg.SeqNo)
			logger.With(log.LogParams{"max_attempts": q.maxAttempts}).
				Info("Message not delivered after max allowed attempts, giving up")
			continue
		}

		if err := q.inbound.Add(msg); err != nil {
			if errors.Is(err, types.ErrChannelFull) {
				q.stats.ChannelFull++
				logger.Debug("Inbound queue full, will retry next time around")
			} else {
				logger.WithError(err).Warn("Could not resubmit message")
			}
			continue
		}
		q.attempts[msg.SeqNo] = attempts + 1
		q.removeHeld(msg.SeqNo)
		q.stats.Resubmitted++
		logger.With(log.LogParams{"attempts": attempts + 1}).Debug("Message resubmitted to inbound queue")
	}
}

// indexOf and removeHeld expect lock to be held
func (q *DelayedQueue) indexOf(seqNo uint32) int {
	for i, m := range q.held {
		if m.SeqNo == seqNo {
			return i
		}
	}
	return -1
}

func (q *DelayedQueue) removeHeld(seqNo uint32) {
	i := q.indexOf(seqNo)
	if i < 0 {
		return
	}
	q.held = append(q.held[:i], q.held[i+1:]...)
}
