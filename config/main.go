package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

var (
	// ConfigPath is the variable which stores the config path command line parameter
	ConfigPath string

	// ErrBadPercentages is returned when the lifecycle percentages cannot form a distribution
	ErrBadPercentages = errors.New("invalid lifecycle percentages")
	// ErrBadConfig is returned for any other out of range value
	ErrBadConfig = errors.New("invalid config")
)

// DefaultAPIServerAddr is the default address of the APIServer
const DefaultAPIServerAddr = "0.0.0.0:8088"

// Config stores the config for the simulator
type Config struct {
	// APIServerAddr address of the APIServer
	APIServerAddr string `json:"api_server_addr" yaml:"api_server_addr"`
	// LogConfig configuration for logging
	LogConfig LogConfig `json:"log" yaml:"log"`
	// Lifecycle configures how submitted messages move through delivery states
	Lifecycle LifecycleConfig `json:"lifecycle" yaml:"lifecycle"`
	// Retry configures the delayed inbound queue
	Retry RetryConfig `json:"retry" yaml:"retry"`
	// Inbound capacity of the inbound (MO) queue
	Inbound QueueConfig `json:"inbound" yaml:"inbound"`
	// Outbound capacity of the outbound (receipt) queue
	Outbound QueueConfig `json:"outbound" yaml:"outbound"`
	// Submit throttling of submissions
	Submit SubmitConfig `json:"submit" yaml:"submit"`
	// Delivery configures forwarding of MO messages to the receiver
	Delivery DeliveryConfig `json:"delivery" yaml:"delivery"`
	// Archive configures storage of discarded messages
	Archive ArchiveConfig `json:"archive" yaml:"archive"`
}

// LogConfig stores the config for logging purpose
type LogConfig struct {
	// Path of the log file
	Path string `json:"path" yaml:"path"`
	// Format to log. `json` or `text`
	Format string `json:"format" yaml:"format"`
	// Level log level, one of panic|fatal|error|warn|warning|info|debug|trace
	Level string `json:"level" yaml:"level"`
}

// LifecycleConfig holds the transition percentages and time limits
type LifecycleConfig struct {
	PercentTransition    int      `json:"percent_transition" yaml:"percent_transition"`
	PercentDelivered     int      `json:"percent_delivered" yaml:"percent_delivered"`
	PercentUndeliverable int      `json:"percent_undeliverable" yaml:"percent_undeliverable"`
	PercentAccepted      int      `json:"percent_accepted" yaml:"percent_accepted"`
	PercentRejected      int      `json:"percent_rejected" yaml:"percent_rejected"`
	MaxTimeEnroute       Duration `json:"max_time_enroute" yaml:"max_time_enroute"`
	DiscardAfter         Duration `json:"discard_after" yaml:"discard_after"`
	// SweepPeriod is how often every stored message is re-evaluated
	SweepPeriod Duration `json:"sweep_period" yaml:"sweep_period"`
}

// RetryConfig configures the delayed inbound queue
type RetryConfig struct {
	Period      Duration `json:"period" yaml:"period"`
	MaxAttempts int      `json:"max_attempts" yaml:"max_attempts"`
}

// QueueConfig sets the capacity of a bounded queue
type QueueConfig struct {
	Capacity int `json:"capacity" yaml:"capacity"`
}

// SubmitConfig throttles submit requests. A zero rate disables throttling.
type SubmitConfig struct {
	RatePerSecond float64 `json:"rate_per_second" yaml:"rate_per_second"`
	Burst         int     `json:"burst" yaml:"burst"`
}

// DeliveryConfig configures the MO dispatcher
type DeliveryConfig struct {
	ReceiverAddr    string   `json:"receiver_addr" yaml:"receiver_addr"`
	Timeout         Duration `json:"timeout" yaml:"timeout"`
	BreakerFailures int      `json:"breaker_failures" yaml:"breaker_failures"`
	BreakerReset    Duration `json:"breaker_reset" yaml:"breaker_reset"`
}

// ArchiveConfig configures the badger archive. An empty path keeps it in memory.
type ArchiveConfig struct {
	Path     string `json:"path" yaml:"path"`
	InMemory bool   `json:"in_memory" yaml:"in_memory"`
}

// Default returns the configuration used when no file overrides a value
func Default() *Config {
	return &Config{
		APIServerAddr: DefaultAPIServerAddr,
		LogConfig: LogConfig{
			Path:   "",
			Format: "json",
			Level:  "info",
		},
		Lifecycle: LifecycleConfig{
			PercentTransition:    75,
			PercentDelivered:     90,
			PercentUndeliverable: 6,
			PercentAccepted:      2,
			PercentRejected:      2,
			MaxTimeEnroute:       NewDuration(10 * time.Second),
			DiscardAfter:         NewDuration(60 * time.Second),
			SweepPeriod:          NewDuration(5 * time.Second),
		},
		Retry: RetryConfig{
			Period:      NewDuration(60 * time.Second),
			MaxAttempts: 100,
		},
		Inbound:  QueueConfig{Capacity: 1000},
		Outbound: QueueConfig{Capacity: 1000},
		Submit:   SubmitConfig{},
		Delivery: DeliveryConfig{
			Timeout:         NewDuration(5 * time.Second),
			BreakerFailures: 5,
			BreakerReset:    NewDuration(30 * time.Second),
		},
		Archive: ArchiveConfig{InMemory: true},
	}
}

// ParseConfig parses config from the specified file. Files ending in
// .yaml or .yml are decoded as YAML, anything else as JSON.
func ParseConfig(path string) (*Config, error) {
	bytes, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}
	conf := Default()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(bytes, conf)
	default:
		err = json.Unmarshal(bytes, conf)
	}
	if err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

// Validate checks that the values can drive the simulator
func (c *Config) Validate() error {
	if err := c.Lifecycle.Validate(); err != nil {
		return err
	}
	if c.Retry.MaxAttempts < 0 {
		return fmt.Errorf("%w: retry.max_attempts must be >= 0", ErrBadConfig)
	}
	if c.Retry.Period.Duration <= 0 {
		return fmt.Errorf("%w: retry.period must be positive", ErrBadConfig)
	}
	if c.Inbound.Capacity <= 0 || c.Outbound.Capacity <= 0 {
		return fmt.Errorf("%w: queue capacities must be positive", ErrBadConfig)
	}
	if c.Submit.RatePerSecond < 0 {
		return fmt.Errorf("%w: submit.rate_per_second must be >= 0", ErrBadConfig)
	}
	return nil
}

// Validate checks that every percentage is non-negative and that the
// outcome percentages do not exceed 100 in total
func (l LifecycleConfig) Validate() error {
	for name, p := range map[string]int{
		"percent_transition":    l.PercentTransition,
		"percent_delivered":     l.PercentDelivered,
		"percent_undeliverable": l.PercentUndeliverable,
		"percent_accepted":      l.PercentAccepted,
		"percent_rejected":      l.PercentRejected,
	} {
		if p < 0 || p > 100 {
			return fmt.Errorf("%w: %s=%d out of range", ErrBadPercentages, name, p)
		}
	}
	sum := l.PercentDelivered + l.PercentUndeliverable + l.PercentAccepted + l.PercentRejected
	if sum > 100 {
		return fmt.Errorf("%w: outcome percentages sum to %d", ErrBadPercentages, sum)
	}
	if l.MaxTimeEnroute.Duration < 0 || l.DiscardAfter.Duration < 0 {
		return fmt.Errorf("%w: negative lifecycle duration", ErrBadConfig)
	}
	if l.SweepPeriod.Duration <= 0 {
		return fmt.Errorf("%w: lifecycle.sweep_period must be positive", ErrBadConfig)
	}
	return nil
}
