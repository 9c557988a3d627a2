package config

import "time"

// WorkerConfig drives the poll loop and the retry policy.
type WorkerConfig struct {
	PollIntervalSeconds int `env:"POLL_INTERVAL_SECONDS" envDefault:"5"`
	MaxAttempts         int `env:"MAX_ATTEMPTS" envDefault:"3"`
	StaleLockSeconds    int `env:"STALE_LOCK_SECONDS" envDefault:"300"`
}

func (c WorkerConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

func (c WorkerConfig) StaleLock() time.Duration {
	return time.Duration(c.StaleLockSeconds) * time.Second
}
