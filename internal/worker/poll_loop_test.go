package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type step struct {
	processed bool
	err       error
	panic     bool
	cancel    bool
}

// scriptedProcessor replays steps and cancels the loop once they run out.
type scriptedProcessor struct {
	steps  []step
	cancel context.CancelFunc
	calls  int
}

func (p *scriptedProcessor) ProcessOne(context.Context) (bool, error) {
	p.calls++
	if p.calls > len(p.steps) {
		p.cancel()
		return true, nil
	}
	s := p.steps[p.calls-1]
	if s.cancel {
		p.cancel()
	}
	if s.panic {
		panic("driver exploded")
	}
	return s.processed, s.err
}

type sleepRecorder struct {
	calls []time.Duration
}

func (r *sleepRecorder) sleep(_ context.Context, d time.Duration) {
	r.calls = append(r.calls, d)
}

func runScript(t *testing.T, steps ...step) (*scriptedProcessor, *sleepRecorder, *test.Hook) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log, hook := test.NewNullLogger()
	log.SetOutput(io.Discard)
	proc := &scriptedProcessor{steps: steps, cancel: cancel}
	rec := &sleepRecorder{}

	loop := NewPollLoop(proc, 5*time.Second, log, WithSleeper(rec.sleep))
	require.NoError(t, loop.Run(ctx))
	return proc, rec, hook
}

func TestPollLoopSleepsOnceWhenNoWork(t *testing.T) {
	proc, rec, _ := runScript(t, step{processed: false})

	assert.Equal(t, []time.Duration{5 * time.Second}, rec.calls)
	assert.Equal(t, 2, proc.calls)
}

func TestPollLoopDoesNotSleepAfterWork(t *testing.T) {
	proc, rec, _ := runScript(t, step{processed: true}, step{processed: true})

	assert.Empty(t, rec.calls)
	assert.Equal(t, 3, proc.calls)
}

func TestPollLoopSurvivesErrors(t *testing.T) {
	proc, rec, hook := runScript(t, step{err: errors.New("connection refused")}, step{processed: true})

	assert.Equal(t, []time.Duration{5 * time.Second}, rec.calls)
	assert.Equal(t, 3, proc.calls)

	var loopErrors int
	for _, entry := range hook.AllEntries() {
		if entry.Message == "loop_error" {
			loopErrors++
			assert.Equal(t, "connection refused", entry.Data["error"])
		}
	}
	assert.Equal(t, 1, loopErrors)
}

func TestPollLoopRecoversPanics(t *testing.T) {
	proc, rec, hook := runScript(t, step{panic: true})

	assert.Len(t, rec.calls, 1)
	assert.Equal(t, 2, proc.calls)
	var found bool
	for _, entry := range hook.AllEntries() {
		if entry.Message == "loop_error" {
			found = true
			assert.Equal(t, "*worker.PanicError", entry.Data["error_type"])
		}
	}
	assert.True(t, found)
}

func TestPollLoopLogsGracefulShutdown(t *testing.T) {
	_, _, hook := runScript(t)

	last := hook.LastEntry()
	require.NotNil(t, last)
	assert.Equal(t, "shutdown", last.Message)
	assert.Equal(t, "graceful", last.Data["status"])
	assert.Equal(t, logrus.InfoLevel, last.Level)
}

func TestPollLoopShutdownDuringClaimLogsOnlyShutdown(t *testing.T) {
	proc, rec, hook := runScript(t, step{cancel: true, err: fmt.Errorf("claim job: %w", context.Canceled)})

	assert.Equal(t, 1, proc.calls)
	assert.Empty(t, rec.calls)
	for _, entry := range hook.AllEntries() {
		assert.NotEqual(t, "loop_error", entry.Message)
	}
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "shutdown", hook.LastEntry().Message)
}

func TestPollLoopStopsBeforeFirstCycleWhenCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	log, _ := test.NewNullLogger()
	proc := &scriptedProcessor{cancel: cancel}
	loop := NewPollLoop(proc, time.Second, log)

	require.NoError(t, loop.Run(ctx))
	assert.Zero(t, proc.calls)
}

func TestSleepContextReturnsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	sleepContext(ctx, time.Minute)
	assert.Less(t, time.Since(start), time.Second)
}
