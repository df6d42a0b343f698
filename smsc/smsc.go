// Package smsc is the simulated SMS centre. It tracks submitted messages
// through their lifecycle, forwards MO messages to the receiver and retries
// the ones that could not be delivered.
package smsc

import (
	goctx "context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/netrixframework/smscsim/context"
	"github.com/netrixframework/smscsim/lifecycle"
	"github.com/netrixframework/smscsim/log"
	"github.com/netrixframework/smscsim/receipt"
	"github.com/netrixframework/smscsim/retry"
	"github.com/netrixframework/smscsim/types"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

var (
	// ErrThrottled is returned by Submit when the submission rate is exceeded
	ErrThrottled = errors.New("submission throttled")
	// ErrNotRunning is returned when the SMSC is not started
	ErrNotRunning = errors.New("smsc is not running")
	// ErrUnknownMessage is returned when no message has the requested id
	ErrUnknownMessage = errors.New("unknown message id")
	// ErrNotCancellable is returned when cancelling a message that already reached a final state
	ErrNotCancellable = errors.New("message already in a final state")
)

// Deliverer forwards an MO message to the receiving ESME
type Deliverer interface {
	Deliver(ctx goctx.Context, msg *types.SubmitSM) error
}

// Stats is a snapshot of the SMSC counters
type Stats struct {
	Submitted      int            `json:"submitted"`
	Throttled      int            `json:"throttled"`
	Tracked        int            `json:"tracked"`
	States         map[string]int `json:"states"`
	Discarded      int            `json:"discarded"`
	MODelivered    int            `json:"mo_delivered"`
	MOFailed       int            `json:"mo_failed"`
	InboundQueued  int            `json:"inbound_queued"`
	OutboundQueued int            `json:"outbound_queued"`
	ReceiptsQueued int            `json:"receipts_queued"`
	ReceiptsLost   int            `json:"receipts_dropped"`
	Delayed        retry.Stats    `json:"delayed"`
	Uptime         string         `json:"uptime"`
}

var _ types.Service = (*Smsc)(nil)

// Smsc owns the running flag, the queues and the lifecycle machinery
type Smsc struct {
	ctx       *context.RootContext
	engine    *lifecycle.Engine
	delayed   *retry.DelayedQueue
	notifier  *receipt.Notifier
	deliverer Deliverer
	limiter   *rate.Limiter

	// evalLock serializes evaluations so a message is never advanced
	// concurrently by the sweep and a query
	evalLock *sync.Mutex

	statsLock *sync.Mutex
	stats     Stats

	cancel goctx.CancelFunc
	group  *errgroup.Group

	*types.BaseService
}

// New creates an Smsc from the root context. deliverer receives the MO
// messages taken from the inbound queue.
func New(ctx *context.RootContext, deliverer Deliverer) *Smsc {
	conf := ctx.Config
	notifier := receipt.NewNotifier(ctx.Outbound, ctx.MessageStore, ctx.Counter, ctx.Clock, ctx.Logger)
	s := &Smsc{
		ctx: ctx,
		engine: lifecycle.NewEngine(conf.Lifecycle, notifier, ctx.Logger,
			lifecycle.WithRandomSource(ctx.Rand),
			lifecycle.WithClock(ctx.Clock),
		),
		delayed:     retry.NewDelayedQueue(conf.Retry, ctx.Inbound, ctx.Logger),
		notifier:    notifier,
		deliverer:   deliverer,
		evalLock:    new(sync.Mutex),
		statsLock:   new(sync.Mutex),
		BaseService: types.NewBaseService("SMSC", ctx.Logger),
	}
	if conf.Submit.RatePerSecond > 0 {
		burst := conf.Submit.Burst
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(conf.Submit.RatePerSecond), burst)
	}
	return s
}

// Delayed returns the delayed retry queue
func (s *Smsc) Delayed() *retry.DelayedQueue {
	return s.delayed
}

// Start implements Service. It starts the delayed queue, the lifecycle
// sweep and the inbound delivery loop.
func (s *Smsc) Start() error {
	if !s.StartRunning() {
		return types.ErrServiceStarted
	}
	if err := s.delayed.Start(); err != nil {
		return err
	}
	runCtx, cancel := goctx.WithCancel(goctx.Background())
	group, gctx := errgroup.WithContext(runCtx)
	s.cancel = cancel
	s.group = group

	group.Go(func() error {
		s.sweepLoop(gctx)
		return nil
	})
	group.Go(func() error {
		s.inboundLoop(gctx)
		return nil
	})
	s.Logger.Info("SMSC started")
	return nil
}

// Stop implements Service. Loops finish their current iteration first.
func (s *Smsc) Stop() error {
	if !s.StopRunning() {
		return nil
	}
	if s.cancel != nil {
		s.cancel()
		s.group.Wait()
	}
	s.delayed.Stop()
	s.Logger.Info("SMSC stopped")
	return nil
}

// Submit starts tracking a submit_sm and returns the assigned message id
func (s *Smsc) Submit(pdu *types.SubmitSM) (string, error) {
	if !s.Running() {
		return "", ErrNotRunning
	}
	if err := pdu.Validate(); err != nil {
		return "", err
	}
	if s.limiter != nil && !s.limiter.Allow() {
		s.incr(func(st *Stats) { st.Throttled++ })
		return "", ErrThrottled
	}
	if pdu.SeqNo == 0 {
		pdu.SeqNo = s.ctx.Counter.Next()
	}
	id := uuid.New().String()
	m := types.NewMessageState(id, pdu, s.ctx.Clock.Now())
	s.ctx.MessageStore.Add(id, m)
	s.incr(func(st *Stats) { st.Submitted++ })

	s.Logger.With(log.LogParams{
		"message_id":          id,
		"seq_no":              pdu.SeqNo,
		"registered_delivery": pdu.RegisteredDelivery,
	}).Debug("Accepted submission")
	return id, nil
}

// Query evaluates the message and returns a snapshot of its state.
// Messages that were already discarded are looked up in the archive.
func (s *Smsc) Query(messageID string) (*types.MessageState, error) {
	m, ok := s.ctx.MessageStore.Get(messageID)
	if !ok {
		archived, err := s.ctx.Archive.Get(messageID)
		if err != nil {
			return nil, ErrUnknownMessage
		}
		return archived, nil
	}
	s.evalLock.Lock()
	defer s.evalLock.Unlock()
	s.engine.Evaluate(m)
	return m.Clone(), nil
}

// Cancel moves an enroute message to DELETED
func (s *Smsc) Cancel(messageID string) (*types.MessageState, error) {
	m, ok := s.ctx.MessageStore.Get(messageID)
	if !ok {
		return nil, ErrUnknownMessage
	}
	s.evalLock.Lock()
	defer s.evalLock.Unlock()
	if !s.engine.Finalize(m, types.Deleted) {
		return m.Clone(), ErrNotCancellable
	}
	return m.Clone(), nil
}

// InjectMO queues a mobile originated message for delivery to the receiver.
// The SMSC numbers MO messages itself: any sequence number set by the caller
// is replaced, since the retry queue tracks attempts by sequence number.
// Returns types.ErrChannelFull when the inbound queue is at capacity.
func (s *Smsc) InjectMO(msg *types.SubmitSM) error {
	if !s.Running() {
		return ErrNotRunning
	}
	msg.SeqNo = s.ctx.Counter.Next()
	return s.ctx.Inbound.Add(msg)
}

// Sweep evaluates every tracked message once and archives the ones old
// enough to be discarded
func (s *Smsc) Sweep() {
	for _, m := range s.ctx.MessageStore.IterValues() {
		s.evalLock.Lock()
		s.engine.Evaluate(m)
		discard := s.engine.ShouldDiscard(m)
		snapshot := m.Clone()
		s.evalLock.Unlock()

		if !discard {
			continue
		}
		if err := s.ctx.Archive.Put(snapshot); err != nil {
			s.Logger.WithError(err).Warn("Failed to archive message, keeping it")
			continue
		}
		s.ctx.MessageStore.Remove(snapshot.MessageID)
		s.incr(func(st *Stats) { st.Discarded++ })
	}
}

func (s *Smsc) sweepLoop(ctx goctx.Context) {
	ticker := time.NewTicker(s.ctx.Config.Lifecycle.SweepPeriod.Duration)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

func (s *Smsc) inboundLoop(ctx goctx.Context) {
	inbound := s.ctx.Inbound.Ch()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-inbound:
			if !ok {
				return
			}
			s.deliverMO(ctx, msg)
		}
	}
}

func (s *Smsc) deliverMO(ctx goctx.Context, msg *types.SubmitSM) {
	logger := s.Logger.With(log.LogParams{"seq_no": msg.SeqNo})
	if err := s.deliverer.Deliver(ctx, msg); err != nil {
		s.incr(func(st *Stats) { st.MOFailed++ })
		logger.WithError(err).Debug("MO delivery failed, retrying later")
		s.delayed.RetryLater(msg)
		return
	}
	s.incr(func(st *Stats) { st.MODelivered++ })
	s.delayed.DeliveredOK(msg)
	logger.Debug("MO message delivered")
}

func (s *Smsc) incr(f func(*Stats)) {
	s.statsLock.Lock()
	defer s.statsLock.Unlock()
	f(&s.stats)
}

// Stats returns a snapshot of the counters
func (s *Smsc) Stats() Stats {
	s.statsLock.Lock()
	st := s.stats
	s.statsLock.Unlock()

	st.States = make(map[string]int)
	s.evalLock.Lock()
	for _, m := range s.ctx.MessageStore.IterValues() {
		st.States[m.State.String()]++
		st.Tracked++
	}
	s.evalLock.Unlock()

	st.InboundQueued = s.ctx.Inbound.Len()
	st.OutboundQueued = s.ctx.Outbound.Len()
	st.ReceiptsQueued, st.ReceiptsLost = s.notifier.Counts()
	st.Delayed = s.delayed.Stats()
	st.Uptime = s.Uptime().Round(time.Second).String()
	return st
}
