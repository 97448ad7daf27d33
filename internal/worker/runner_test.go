package worker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/thefall/sessionserver/internal/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestRunnerTicksJobs(t *testing.T) {
	var fast, slow atomic.Int32
	runner := New(testutil.NopLogger(),
		Job{Name: "fast", Interval: 5 * time.Millisecond, Run: func(context.Context) { fast.Add(1) }},
		Job{Name: "slow", Interval: time.Hour, Run: func(context.Context) { slow.Add(1) }},
	)

	runner.Start(context.Background())
	require.Eventually(t, func() bool { return fast.Load() >= 3 }, time.Second, time.Millisecond)
	runner.Stop()

	assert.Zero(t, slow.Load())
}

func TestRunnerStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var ticks atomic.Int32
	runner := New(testutil.NopLogger(),
		Job{Name: "tick", Interval: time.Millisecond, Run: func(context.Context) { ticks.Add(1) }},
	)

	runner.Start(ctx)
	require.Eventually(t, func() bool { return ticks.Load() > 0 }, time.Second, time.Millisecond)
	cancel()
	runner.Stop()

	after := ticks.Load()
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, after, ticks.Load())
}

func TestRunnerSurvivesPanics(t *testing.T) {
	var ok atomic.Int32
	runner := New(testutil.NopLogger(),
		Job{Name: "boom", Interval: time.Millisecond, Run: func(context.Context) { panic("boom") }},
		Job{Name: "ok", Interval: time.Millisecond, Run: func(context.Context) { ok.Add(1) }},
	)

	runner.Start(context.Background())
	require.Eventually(t, func() bool { return ok.Load() >= 2 }, time.Second, time.Millisecond)
	runner.Stop()
}

func TestRunOnceRunsEachJob(t *testing.T) {
	var order []string
	runner := New(testutil.NopLogger(),
		Job{Name: "a", Interval: time.Hour, Run: func(context.Context) { order = append(order, "a") }},
		Job{Name: "b", Interval: time.Hour, Run: func(context.Context) { order = append(order, "b") }},
	)

	runner.RunOnce(context.Background())
	assert.Equal(t, []string{"a", "b"}, order)
}

func TestStopWithoutStart(t *testing.T) {
	runner := New(testutil.NopLogger())
	runner.Stop()
}
