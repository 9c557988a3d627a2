package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// Processor runs one claim-and-process cycle and reports whether a job was handled.
type Processor interface {
	ProcessOne(ctx context.Context) (bool, error)
}

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration)

type Option func(*PollLoop)

func WithSleeper(s Sleeper) Option {
	return func(l *PollLoop) {
		l.sleep = s
	}
}

// PollLoop drives a Processor until its context is cancelled. It sleeps only
// when there was no work or a cycle failed.
type PollLoop struct {
	proc     Processor
	interval time.Duration
	log      logrus.FieldLogger
	sleep    Sleeper
}

func NewPollLoop(proc Processor, interval time.Duration, log logrus.FieldLogger, opts ...Option) *PollLoop {
	l := &PollLoop{
		proc:     proc,
		interval: interval,
		log:      log,
		sleep:    sleepContext,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Run returns nil once ctx is cancelled.
func (l *PollLoop) Run(ctx context.Context) error {
	l.log.WithField("poll_interval", l.interval.String()).Info("worker_starting")
	for {
		if ctx.Err() != nil {
			l.log.WithField("status", "graceful").Info("shutdown")
			return nil
		}

		processed, err := l.cycle(ctx)
		if err != nil && ctx.Err() != nil {
			continue
		}
		if err != nil {
			l.log.WithFields(logrus.Fields{
				"error":      err.Error(),
				"error_type": fmt.Sprintf("%T", err),
			}).Error("loop_error")
			l.sleep(ctx, l.interval)
			continue
		}
		if !processed {
			l.sleep(ctx, l.interval)
		}
	}
}

func (l *PollLoop) cycle(ctx context.Context) (processed bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r}
		}
	}()
	return l.proc.ProcessOne(ctx)
}

// PanicError wraps a value recovered from a panicking cycle.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

func sleepContext(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
