package context

import (
	"fmt"

	"github.com/netrixframework/smscsim/archive"
	"github.com/netrixframework/smscsim/config"
	"github.com/netrixframework/smscsim/log"
	"github.com/netrixframework/smscsim/types"
	"github.com/netrixframework/smscsim/util"
)

// RootContext stores the shared state of the simulator. Every component
// receives what it needs from here instead of reaching for globals.
type RootContext struct {
	// Config and instance of the configuration object
	Config *config.Config
	// MessageStore holds the lifecycle state of every submitted message
	MessageStore *types.MessageStore
	// Inbound is the bounded queue of MO messages waiting for delivery
	Inbound *types.Channel[*types.SubmitSM]
	// Outbound is the bounded queue of delivery receipts
	Outbound *types.Channel[*types.DeliverSM]
	// Archive stores discarded terminal messages
	Archive *archive.Store
	// Counter generates sequence numbers for messages created by the simulator
	Counter *util.Counter
	// Clock is the time source used by every component
	Clock util.Clock
	// Rand is the random source driving state transitions
	Rand util.RandomSource
	// Logger for logging purposes
	Logger *log.Logger
}

// Option customizes a RootContext
type Option func(*RootContext)

// WithClock replaces the system clock
func WithClock(c util.Clock) Option {
	return func(r *RootContext) {
		r.Clock = c
	}
}

// WithRandomSource replaces the time seeded random source
func WithRandomSource(src util.RandomSource) Option {
	return func(r *RootContext) {
		r.Rand = src
	}
}

// NewRootContext validates the configuration and creates an instance of the RootContext from it
func NewRootContext(conf *config.Config, logger *log.Logger, opts ...Option) (*RootContext, error) {
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	store, err := archive.Open(conf.Archive, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize context: %w", err)
	}
	c := &RootContext{
		Config:       conf,
		MessageStore: types.NewMessageStore(),
		Inbound:      types.NewChannel[*types.SubmitSM](conf.Inbound.Capacity),
		Outbound:     types.NewChannel[*types.DeliverSM](conf.Outbound.Capacity),
		Archive:      store,
		Counter:      util.NewCounter(1),
		Clock:        util.SystemClock{},
		Rand:         util.NewTimeSeededSource(),
		Logger:       logger,
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Stop releases the resources held by the context
func (c *RootContext) Stop() {
	c.Inbound.Close()
	c.Outbound.Close()
	if err := c.Archive.Close(); err != nil {
		c.Logger.WithError(err).Error("Failed to close archive")
	}
}
