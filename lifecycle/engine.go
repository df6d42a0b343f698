// Package lifecycle decides how a submitted message moves through its
// delivery states and when a delivery receipt is owed.
package lifecycle

import (
	"time"

	"github.com/netrixframework/smscsim/config"
	"github.com/netrixframework/smscsim/log"
	"github.com/netrixframework/smscsim/types"
	"github.com/netrixframework/smscsim/util"
)

// DeliveryNotifier prepares and queues delivery receipts
type DeliveryNotifier interface {
	PrepareReceipt(orig *types.SubmitSM, messageID string, state types.DeliveryState, submitted, delivered, errCode int)
}

// Thresholds are the cumulative probability boundaries derived from the
// configured percentages
type Thresholds struct {
	Transition    float64
	Delivered     float64
	Undeliverable float64
	Accepted      float64
	Rejected      float64
}

// NewThresholds turns percentages into cumulative thresholds in [0,1].
// The transition floor is (percent+1)/100.
func NewThresholds(c config.LifecycleConfig) Thresholds {
	t := Thresholds{}
	t.Transition = (float64(c.PercentTransition) + 1.0) / 100
	t.Delivered = float64(c.PercentDelivered) / 100
	t.Undeliverable = t.Delivered + float64(c.PercentUndeliverable)/100
	t.Accepted = t.Undeliverable + float64(c.PercentAccepted)/100
	t.Rejected = t.Accepted + float64(c.PercentRejected)/100
	return t
}

// Choose selects the outcome for a draw r in [0,1).
// Draws at or above the accepted threshold select REJECTED, which also
// absorbs any residual space when the percentages sum to less than 100.
func (t Thresholds) Choose(r float64) types.DeliveryState {
	switch {
	case r < t.Delivered:
		return types.Delivered
	case r < t.Undeliverable:
		return types.Undeliverable
	case r < t.Accepted:
		return types.Accepted
	default:
		return types.Rejected
	}
}

// Engine advances message states. The configuration is fixed at
// construction; Evaluate needs no locking across distinct MessageStates.
// Callers serialize evaluations of the same MessageState.
type Engine struct {
	thresholds     Thresholds
	maxTimeEnroute time.Duration
	discardAfter   time.Duration

	rand     util.RandomSource
	clock    util.Clock
	notifier DeliveryNotifier
	logger   *log.Logger
}

// Option customizes an Engine
type Option func(*Engine)

// WithRandomSource replaces the random source
func WithRandomSource(r util.RandomSource) Option {
	return func(e *Engine) {
		e.rand = r
	}
}

// WithClock replaces the wall clock
func WithClock(c util.Clock) Option {
	return func(e *Engine) {
		e.clock = c
	}
}

// NewEngine creates an Engine from the lifecycle configuration.
// notifier may be nil, in which case receipts are only logged.
func NewEngine(c config.LifecycleConfig, notifier DeliveryNotifier, logger *log.Logger, opts ...Option) *Engine {
	e := &Engine{
		thresholds:     NewThresholds(c),
		maxTimeEnroute: c.MaxTimeEnroute.Duration,
		discardAfter:   c.DiscardAfter.Duration,
		rand:           util.NewTimeSeededSource(),
		clock:          util.SystemClock{},
		notifier:       notifier,
		logger:         logger.With(log.LogParams{"service": "Lifecycle"}),
	}
	for _, o := range opts {
		o(e)
	}
	e.logger.With(log.LogParams{
		"transition":    e.thresholds.Transition,
		"delivered":     e.thresholds.Delivered,
		"undeliverable": e.thresholds.Undeliverable,
		"accepted":      e.thresholds.Accepted,
		"rejected":      e.thresholds.Rejected,
	}).Debug("Lifecycle thresholds")
	return e
}

// Evaluate possibly advances m and returns it. Terminal states are left
// untouched. A transition happens when the first draw falls below the
// transition threshold or the message has been enroute longer than the
// maximum; a second draw then picks the outcome.
func (e *Engine) Evaluate(m *types.MessageState) *types.MessageState {
	if IsTerminalState(m.State) {
		return m
	}
	previous := m.State
	now := e.clock.Now()

	transition := e.rand.Float64()
	if transition >= e.thresholds.Transition && now.Sub(m.SubmitTime) <= e.maxTimeEnroute {
		return m
	}

	m.State = e.thresholds.Choose(e.rand.Float64())
	e.logger.With(log.LogParams{
		"message_id": m.MessageID,
		"state":      m.State.String(),
	}).Debug("State transition")

	if !IsTerminalState(m.State) {
		return m
	}
	m.FinalTime = now
	if previous != m.State && receiptRequested(m) {
		e.prepareReceipt(m)
	}
	return m
}

// Finalize moves a non-terminal message straight to the terminal state
// target, as a cancel does. The receipt rules of Evaluate apply. Returns
// false if m is already terminal or target is not terminal.
func (e *Engine) Finalize(m *types.MessageState, target types.DeliveryState) bool {
	if IsTerminalState(m.State) || !IsTerminalState(target) {
		return false
	}
	m.State = target
	m.FinalTime = e.clock.Now()
	if receiptRequested(m) {
		e.prepareReceipt(m)
	}
	return true
}

func receiptRequested(m *types.MessageState) bool {
	if m.Pdu == nil {
		return false
	}
	switch m.Pdu.RegisteredDelivery {
	case types.RegisteredDeliveryAny:
		return true
	case types.RegisteredDeliveryFailure:
		return m.State.IsFailure()
	default:
		return false
	}
}

func (e *Engine) prepareReceipt(m *types.MessageState) {
	e.logger.With(log.LogParams{
		"message_id": m.MessageID,
		"seq_no":     m.Pdu.SeqNo,
		"state":      m.State.String(),
	}).Info("Delivery receipt requested")
	if e.notifier == nil {
		return
	}
	e.notifier.PrepareReceipt(m.Pdu, m.MessageID, m.State, 1, 1, m.Err)
}

// IsTerminalState is true for DELIVERED, EXPIRED, DELETED, UNDELIVERABLE,
// ACCEPTED and REJECTED
func IsTerminalState(s types.DeliveryState) bool {
	return s.IsTerminal()
}

// ShouldDiscard reports whether m is terminal and older than the discard
// threshold. Age is measured from submission, not from the final transition.
func (e *Engine) ShouldDiscard(m *types.MessageState) bool {
	if !IsTerminalState(m.State) {
		return false
	}
	return e.clock.Now().Sub(m.SubmitTime) > e.discardAfter
}
