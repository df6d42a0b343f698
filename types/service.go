package types

import (
	"errors"
	"sync"
	"time"

	"github.com/netrixframework/smscsim/log"
)

// ErrServiceStarted is returned when starting a service twice or after it stopped
var ErrServiceStarted = errors.New("service already started")

// Service is a long running component of the simulator
type Service interface {
	// Name of the service
	Name() string
	// Start launches the goroutines of the service
	Start() error
	// Running is true between Start and Stop
	Running() bool
	// Stop waits for the goroutines of the service to exit
	Stop() error
	// QuitCh is closed once the service stops running
	QuitCh() <-chan struct{}
}

// BaseService carries the running flag and quit channel of a service.
// A service runs at most once: after StopRunning it cannot be started again.
type BaseService struct {
	name      string
	running   bool
	stopped   bool
	startedAt time.Time
	lock      *sync.Mutex
	quit      chan struct{}
	Logger    *log.Logger
}

// NewBaseService instantiates BaseService with a logger tagged by name
func NewBaseService(name string, parentLogger *log.Logger) *BaseService {
	return &BaseService{
		name:   name,
		lock:   new(sync.Mutex),
		quit:   make(chan struct{}),
		Logger: parentLogger.With(log.LogParams{"service": name}),
	}
}

// StartRunning sets the running flag. Returns false if the service is
// already running or was stopped.
func (b *BaseService) StartRunning() bool {
	b.lock.Lock()
	defer b.lock.Unlock()
	if b.running || b.stopped {
		return false
	}
	b.running = true
	b.startedAt = time.Now()
	b.Logger.Debug("Starting service")
	return true
}

// StopRunning unsets the running flag and closes the quit channel.
// Returns false if the service was not running.
func (b *BaseService) StopRunning() bool {
	b.lock.Lock()
	defer b.lock.Unlock()
	if b.stopped {
		return false
	}
	wasRunning := b.running
	b.running = false
	b.stopped = true
	close(b.quit)
	b.Logger.Debug("Stopping service")
	return wasRunning
}

// Name returns the name of the service
func (b *BaseService) Name() string {
	return b.name
}

// Running returns the flag
func (b *BaseService) Running() bool {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.running
}

// Uptime is the time elapsed since StartRunning, zero when not running
func (b *BaseService) Uptime() time.Duration {
	b.lock.Lock()
	defer b.lock.Unlock()
	if !b.running {
		return 0
	}
	return time.Since(b.startedAt)
}

// QuitCh returns the quit channel which will be closed when the service stops running
func (b *BaseService) QuitCh() <-chan struct{} {
	return b.quit
}
