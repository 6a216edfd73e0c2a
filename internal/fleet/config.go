package fleet

import (
	"time"

	"fleetd/pkg/types"
)

// Defaults applied when corresponding Config fields are unset.
const (
	defaultGPULimit         = 1
	defaultIdleTimeout      = 30 * time.Minute
	defaultSweepInterval    = time.Minute
	defaultHealthInterval   = 5 * time.Second
	defaultHealthTimeout    = 5 * time.Second
	defaultFailureThreshold = 3
	defaultStartTimeout     = 60 * time.Second
	defaultStopTimeout      = 30 * time.Second
	defaultPollInterval     = 500 * time.Millisecond
	defaultHealthParallel   = 4

	minIdleTimeout = 5 * time.Minute
	maxIdleTimeout = 2 * time.Hour
)

// Config encapsulates all tunables for Orchestrator construction.
type Config struct {
	Services []types.ServiceSpec

	// GPULimit caps how many gpu_intensive services may occupy the GPU
	// at once (running or starting). Zero selects the default of 1.
	GPULimit int

	// IdleTimeout is the inactivity window after which a running
	// gpu_intensive service becomes eligible for the idle sweep.
	// Clamped to [5m, 2h].
	IdleTimeout   time.Duration
	SweepInterval time.Duration

	HealthInterval   time.Duration
	HealthTimeout    time.Duration
	FailureThreshold int
	// HealthParallel bounds how many health probes run at once across
	// all services.
	HealthParallel int

	StartTimeout time.Duration
	StopTimeout  time.Duration
	PollInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.GPULimit <= 0 {
		c.GPULimit = defaultGPULimit
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = defaultIdleTimeout
	}
	if c.IdleTimeout < minIdleTimeout {
		c.IdleTimeout = minIdleTimeout
	}
	if c.IdleTimeout > maxIdleTimeout {
		c.IdleTimeout = maxIdleTimeout
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = defaultSweepInterval
	}
	if c.HealthInterval <= 0 {
		c.HealthInterval = defaultHealthInterval
	}
	if c.HealthTimeout <= 0 {
		c.HealthTimeout = defaultHealthTimeout
	}
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = defaultFailureThreshold
	}
	if c.HealthParallel <= 0 {
		c.HealthParallel = defaultHealthParallel
	}
	if c.StartTimeout <= 0 {
		c.StartTimeout = defaultStartTimeout
	}
	if c.StopTimeout <= 0 {
		c.StopTimeout = defaultStopTimeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	return c
}
