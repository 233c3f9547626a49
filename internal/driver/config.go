// internal/driver/config.go
package driver

import (
	"errors"
	"fmt"
	"time"
)

const (
	DefaultInterval        = 60 * time.Second
	DefaultResponseTimeout = time.Second
	DefaultAttempts        = 3
	DefaultRetryDelay      = 100 * time.Millisecond
	DefaultFaultThreshold  = 5
)

// Config is the driver runtime config.
// Immutable after New. Zero values take the defaults above.
type Config struct {
	ID       string
	Interval time.Duration
	Address  byte

	// WarmUp delays the first poll after Initialize.
	WarmUp time.Duration

	ResponseTimeout time.Duration
	Attempts        int // per cycle, including the first
	RetryDelay      time.Duration

	// FaultThreshold is the number of consecutive failed cycles that enter Faulted.
	FaultThreshold int
}

func (c Config) withDefaults() Config {
	if c.Interval == 0 {
		c.Interval = DefaultInterval
	}
	if c.ResponseTimeout == 0 {
		c.ResponseTimeout = DefaultResponseTimeout
	}
	if c.Attempts == 0 {
		c.Attempts = DefaultAttempts
	}
	if c.FaultThreshold == 0 {
		c.FaultThreshold = DefaultFaultThreshold
	}
	return c
}

func (c Config) validate() error {
	if c.ID == "" {
		return errors.New("driver: sensor id required")
	}
	if c.Interval < 0 {
		return errors.New("driver: interval must be > 0")
	}
	if c.WarmUp < 0 {
		return errors.New("driver: warm-up must be >= 0")
	}
	if c.ResponseTimeout < 0 {
		return errors.New("driver: response timeout must be > 0")
	}
	if c.Attempts < 0 || c.Attempts > 10 {
		return fmt.Errorf("driver: attempts %d out of range 1..10", c.Attempts)
	}
	if c.RetryDelay < 0 {
		return errors.New("driver: retry delay must be >= 0")
	}
	if c.FaultThreshold < 0 {
		return errors.New("driver: fault threshold must be > 0")
	}
	if c.ResponseTimeout >= c.Interval {
		return fmt.Errorf("driver: response timeout %s must be shorter than interval %s", c.ResponseTimeout, c.Interval)
	}
	return nil
}
