package dispatcher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/netrixframework/smscsim/config"
	"github.com/netrixframework/smscsim/log"
	"github.com/netrixframework/smscsim/types"
	"github.com/sony/gobreaker"
)

var (
	// ErrNoReceiver is returned when no receiver is registered to take MO messages
	ErrNoReceiver = errors.New("no receiver registered")
	// ErrFailedMarshal is returned when the message could not be marshalled
	ErrFailedMarshal = errors.New("failed to marshal data")
	// ErrSendFailed is returned when the request could not be created or sent
	ErrSendFailed = errors.New("sending failed")
	// ErrBadResponse is returned when the request did not receive a 2** response
	ErrBadResponse = errors.New("bad response")
)

// Dispatcher forwards MO messages to the receiving ESME over HTTP.
// Delivery goes through a circuit breaker so an unreachable receiver fails fast.
type Dispatcher struct {
	client   *http.Client
	breaker  *gobreaker.CircuitBreaker
	logger   *log.Logger
	receiver string
	lock     *sync.Mutex
}

// NewDispatcher instantiates a new instance of Dispatcher
func NewDispatcher(c config.DeliveryConfig, logger *log.Logger) *Dispatcher {
	logger = logger.With(log.LogParams{"service": "Dispatcher"})
	failures := c.BreakerFailures
	if failures <= 0 {
		failures = 1
	}
	d := &Dispatcher{
		client: &http.Client{
			Timeout: c.Timeout.Duration,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 2,
			},
		},
		logger:   logger,
		receiver: c.ReceiverAddr,
		lock:     new(sync.Mutex),
	}
	d.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "receiver",
		MaxRequests: 1,
		Timeout:     c.BreakerReset.Duration,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(failures)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.With(log.LogParams{
				"from": from.String(),
				"to":   to.String(),
			}).Warn("Receiver circuit breaker changed state")
		},
	})
	return d
}

// SetReceiver registers (or replaces) the address MO messages are sent to
func (d *Dispatcher) SetReceiver(addr string) {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.receiver = addr
	d.logger.With(log.LogParams{"addr": addr}).Info("Registered receiver")
}

// Receiver returns the registered receiver address
func (d *Dispatcher) Receiver() string {
	d.lock.Lock()
	defer d.lock.Unlock()
	return d.receiver
}

// BreakerState returns the state of the receiver circuit breaker
func (d *Dispatcher) BreakerState() string {
	return d.breaker.State().String()
}

// Deliver POSTs the MO message to the receiver's /deliver route
func (d *Dispatcher) Deliver(ctx context.Context, msg *types.SubmitSM) error {
	addr := d.Receiver()
	if addr == "" {
		return ErrNoReceiver
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return ErrFailedMarshal
	}
	d.logger.With(log.LogParams{
		"seq_no": msg.SeqNo,
		"addr":   addr,
	}).Debug("Delivering MO message")

	_, err = d.breaker.Execute(func() (interface{}, error) {
		return nil, d.sendReq(ctx, addr, "/deliver", body)
	})
	return err
}

func (d *Dispatcher) sendReq(ctx context.Context, addr, path string, msg []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "http://"+addr+path, bytes.NewBuffer(msg))
	if err != nil {
		return ErrSendFailed
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrSendFailed, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: status %d", ErrBadResponse, resp.StatusCode)
	}
	return nil
}
