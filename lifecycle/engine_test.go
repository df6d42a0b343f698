package lifecycle

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/netrixframework/smscsim/config"
	"github.com/netrixframework/smscsim/log"
	"github.com/netrixframework/smscsim/types"
	"github.com/netrixframework/smscsim/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type receiptCall struct {
	seqNo     uint32
	messageID string
	state     types.DeliveryState
	submitted int
	delivered int
	errCode   int
}

type recordingNotifier struct {
	lock  sync.Mutex
	calls []receiptCall
}

func (r *recordingNotifier) PrepareReceipt(orig *types.SubmitSM, messageID string, state types.DeliveryState, submitted, delivered, errCode int) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.calls = append(r.calls, receiptCall{orig.SeqNo, messageID, state, submitted, delivered, errCode})
}

func (r *recordingNotifier) count() int {
	r.lock.Lock()
	defer r.lock.Unlock()
	return len(r.calls)
}

var epoch = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func testConfig() config.LifecycleConfig {
	return config.LifecycleConfig{
		PercentTransition:    75,
		PercentDelivered:     90,
		PercentUndeliverable: 6,
		PercentAccepted:      2,
		PercentRejected:      2,
		MaxTimeEnroute:       config.NewDuration(10 * time.Second),
		DiscardAfter:         config.NewDuration(500 * time.Millisecond),
		SweepPeriod:          config.NewDuration(time.Second),
	}
}

func newTestEngine(t *testing.T, c config.LifecycleConfig, draws ...float64) (*Engine, *recordingNotifier, *util.ManualClock, *util.SequenceSource) {
	t.Helper()
	notifier := &recordingNotifier{}
	clock := util.NewManualClock(epoch)
	src := util.NewSequenceSource(draws...)
	e := NewEngine(c, notifier, log.NewDiscardLogger(), WithRandomSource(src), WithClock(clock))
	return e, notifier, clock, src
}

func newState(flag uint8) *types.MessageState {
	return types.NewMessageState("msg-1", &types.SubmitSM{SeqNo: 7, RegisteredDelivery: flag}, epoch)
}

func TestThresholds(t *testing.T) {
	th := NewThresholds(testConfig())
	assert.InDelta(t, 0.76, th.Transition, 1e-9)
	assert.InDelta(t, 0.90, th.Delivered, 1e-9)
	assert.InDelta(t, 0.96, th.Undeliverable, 1e-9)
	assert.InDelta(t, 0.98, th.Accepted, 1e-9)
	assert.InDelta(t, 1.00, th.Rejected, 1e-9)
	assert.True(t, th.Delivered <= th.Undeliverable && th.Undeliverable <= th.Accepted && th.Accepted <= th.Rejected)
}

func TestNoTransitionAboveFloor(t *testing.T) {
	e, notifier, _, src := newTestEngine(t, testConfig(), 0.99)
	m := newState(types.RegisteredDeliveryAny)

	e.Evaluate(m)
	assert.Equal(t, types.Enroute, m.State)
	assert.True(t, m.FinalTime.IsZero())
	assert.Equal(t, 1, src.Draws())
	assert.Equal(t, 0, notifier.count())
}

func TestTransitionBelowFloor(t *testing.T) {
	e, _, clock, _ := newTestEngine(t, testConfig(), 0.10, 0.50)
	clock.Advance(time.Second)
	m := newState(types.RegisteredDeliveryNone)

	e.Evaluate(m)
	assert.Equal(t, types.Delivered, m.State)
	assert.Equal(t, epoch.Add(time.Second), m.FinalTime)
}

func TestTimeForcedTransition(t *testing.T) {
	e, _, clock, _ := newTestEngine(t, testConfig(), 0.99, 0.99, 0.97)
	m := newState(types.RegisteredDeliveryNone)

	clock.Advance(10 * time.Second)
	e.Evaluate(m)
	assert.Equal(t, types.Enroute, m.State, "exactly max time enroute is not past it")

	clock.Advance(time.Millisecond)
	e.Evaluate(m)
	assert.Equal(t, types.Accepted, m.State)
}

func TestDistributionBoundaries(t *testing.T) {
	th := NewThresholds(testConfig())
	below := func(v float64) float64 { return math.Nextafter(v, 0) }
	cases := []struct {
		draw float64
		want types.DeliveryState
	}{
		{0, types.Delivered},
		{below(th.Delivered), types.Delivered},
		{th.Delivered, types.Undeliverable},
		{below(th.Undeliverable), types.Undeliverable},
		{th.Undeliverable, types.Accepted},
		{below(th.Accepted), types.Accepted},
		{th.Accepted, types.Rejected},
		{below(1), types.Rejected},
	}
	for _, c := range cases {
		e, _, _, _ := newTestEngine(t, testConfig(), 0, c.draw)
		m := newState(types.RegisteredDeliveryNone)
		e.Evaluate(m)
		assert.Equal(t, c.want, m.State, "draw %v", c.draw)
	}
}

func TestResidualSpaceSelectsRejected(t *testing.T) {
	c := testConfig()
	c.PercentDelivered = 50
	c.PercentUndeliverable = 10
	c.PercentAccepted = 10
	c.PercentRejected = 10
	e, _, _, _ := newTestEngine(t, c, 0, 0.95)
	m := newState(types.RegisteredDeliveryNone)
	e.Evaluate(m)
	assert.Equal(t, types.Rejected, m.State)
}

func TestTerminalIdempotence(t *testing.T) {
	e, notifier, clock, src := newTestEngine(t, testConfig(), 0, 0.5)
	m := newState(types.RegisteredDeliveryAny)

	e.Evaluate(m)
	require.Equal(t, types.Delivered, m.State)
	final := m.FinalTime
	draws := src.Draws()

	clock.Advance(time.Hour)
	for i := 0; i < 5; i++ {
		e.Evaluate(m)
	}
	assert.Equal(t, types.Delivered, m.State)
	assert.Equal(t, final, m.FinalTime)
	assert.Equal(t, draws, src.Draws(), "terminal evaluation draws nothing")
	assert.Equal(t, 1, notifier.count())
}

func TestTerminalStatesUntouched(t *testing.T) {
	for _, s := range []types.DeliveryState{types.Expired, types.Deleted} {
		e, notifier, _, _ := newTestEngine(t, testConfig(), 0, 0)
		m := newState(types.RegisteredDeliveryAny)
		m.State = s
		e.Evaluate(m)
		assert.Equal(t, s, m.State)
		assert.True(t, m.FinalTime.IsZero())
		assert.Equal(t, 0, notifier.count())
	}
}

func TestReceiptMatrix(t *testing.T) {
	th := NewThresholds(testConfig())
	outcomes := map[types.DeliveryState]float64{
		types.Delivered:     0,
		types.Undeliverable: th.Delivered,
		types.Accepted:      th.Undeliverable,
		types.Rejected:      th.Accepted,
	}
	expect := map[uint8]map[types.DeliveryState]int{
		types.RegisteredDeliveryAny: {
			types.Delivered: 1, types.Undeliverable: 1, types.Accepted: 1, types.Rejected: 1,
		},
		types.RegisteredDeliveryFailure: {
			types.Delivered: 0, types.Undeliverable: 1, types.Accepted: 0, types.Rejected: 1,
		},
		types.RegisteredDeliveryNone: {
			types.Delivered: 0, types.Undeliverable: 0, types.Accepted: 0, types.Rejected: 0,
		},
		4: {
			types.Delivered: 0, types.Undeliverable: 0, types.Accepted: 0, types.Rejected: 0,
		},
	}
	for flag, byState := range expect {
		for state, draw := range outcomes {
			e, notifier, _, _ := newTestEngine(t, testConfig(), 0, draw)
			m := newState(flag)
			m.Err = 11
			e.Evaluate(m)
			require.Equal(t, state, m.State)
			assert.Equal(t, byState[state], notifier.count(), "flag %d state %s", flag, state)
			if notifier.count() == 1 {
				call := notifier.calls[0]
				assert.Equal(t, uint32(7), call.seqNo)
				assert.Equal(t, "msg-1", call.messageID)
				assert.Equal(t, state, call.state)
				assert.Equal(t, 1, call.submitted)
				assert.Equal(t, 1, call.delivered)
				assert.Equal(t, 11, call.errCode)
			}
		}
	}
}

func TestFailureStates(t *testing.T) {
	for _, s := range []types.DeliveryState{types.Undeliverable, types.Rejected, types.Expired, types.Deleted} {
		assert.True(t, s.IsFailure(), s.String())
	}
	for _, s := range []types.DeliveryState{types.Delivered, types.Accepted} {
		assert.False(t, s.IsFailure(), s.String())
	}
}

func TestIsTerminalState(t *testing.T) {
	for _, s := range []types.DeliveryState{types.Delivered, types.Expired, types.Deleted, types.Undeliverable, types.Accepted, types.Rejected} {
		assert.True(t, IsTerminalState(s), s.String())
	}
	assert.False(t, IsTerminalState(types.Enroute))
	assert.False(t, IsTerminalState(types.Unknown))
}

func TestShouldDiscard(t *testing.T) {
	c := testConfig()
	c.DiscardAfter = config.NewDuration(500 * time.Millisecond)
	e, _, clock, _ := newTestEngine(t, c)

	m := newState(types.RegisteredDeliveryNone)
	m.State = types.Delivered
	clock.Advance(1000 * time.Millisecond)
	assert.True(t, e.ShouldDiscard(m))

	c.DiscardAfter = config.NewDuration(2000 * time.Millisecond)
	e2, _, clock2, _ := newTestEngine(t, c)
	clock2.Advance(1000 * time.Millisecond)
	assert.False(t, e2.ShouldDiscard(m))

	enroute := newState(types.RegisteredDeliveryNone)
	clock.Advance(24 * time.Hour)
	assert.False(t, e.ShouldDiscard(enroute))
}

func TestNilNotifier(t *testing.T) {
	e := NewEngine(testConfig(), nil, log.NewDiscardLogger(),
		WithRandomSource(util.NewSequenceSource(0, 0)), WithClock(util.NewManualClock(epoch)))
	m := newState(types.RegisteredDeliveryAny)
	assert.NotPanics(t, func() { e.Evaluate(m) })
	assert.Equal(t, types.Delivered, m.State)
}

func TestFinalize(t *testing.T) {
	e, notifier, clock, _ := newTestEngine(t, testConfig())
	clock.Advance(time.Minute)
	m := newState(types.RegisteredDeliveryFailure)

	assert.False(t, e.Finalize(m, types.Enroute))
	assert.True(t, e.Finalize(m, types.Deleted))
	assert.Equal(t, types.Deleted, m.State)
	assert.Equal(t, epoch.Add(time.Minute), m.FinalTime)
	assert.Equal(t, 1, notifier.count(), "DELETED is a failure")

	assert.False(t, e.Finalize(m, types.Expired))
	assert.Equal(t, types.Deleted, m.State)
}
