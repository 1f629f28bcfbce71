package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"streamline/internal/engine"
)

type countingJob struct {
	runs atomic.Int32
	err  error
}

func (j *countingJob) Name() string { return "counting" }

func (j *countingJob) Run(ctx context.Context) error {
	j.runs.Add(1)
	return j.err
}

func TestSchedulerRunsAndLogsFailures(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	s := New(time.UTC, zap.New(core))
	job := &countingJob{err: errors.New("store unavailable")}
	require.NoError(t, s.Add("@every 1s", job))
	require.Len(t, s.Entries(), 1)

	s.Start()
	require.Eventually(t, func() bool { return job.runs.Load() >= 1 }, 3*time.Second, 20*time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))

	assert.NotZero(t, logs.FilterMessage("job failed").Len())
}

func TestSchedulerRejectsBadSpec(t *testing.T) {
	s := New(nil, nil)
	assert.Error(t, s.Add("every tuesday", &countingJob{}))
	assert.NoError(t, s.Add("", &countingJob{}), "empty spec disables")
	assert.Empty(t, s.Entries())
}

type fakeEngine struct {
	reminded int
	swept    []engine.SweepOptions
	evicted  int
}

func (f *fakeEngine) RemindDueTomorrow(ctx context.Context) (engine.ReminderReport, error) {
	f.reminded++
	return engine.ReminderReport{}, nil
}

func (f *fakeEngine) RetentionSweep(ctx context.Context, opts engine.SweepOptions) (engine.SweepResult, error) {
	f.swept = append(f.swept, opts)
	return engine.SweepResult{}, nil
}

func (f *fakeEngine) EvictGuard() int {
	f.evicted++
	return 2
}

func TestJobsCallEngine(t *testing.T) {
	f := &fakeEngine{}
	ctx := context.Background()
	require.NoError(t, ReminderJob{Engine: f}.Run(ctx))
	require.NoError(t, SweepJob{Engine: f}.Run(ctx))
	require.NoError(t, GuardEvictJob{Engine: f, Log: zap.NewNop()}.Run(ctx))

	assert.Equal(t, 1, f.reminded)
	require.Len(t, f.swept, 1)
	assert.Equal(t, "", f.swept[0].Scope, "scheduled sweep is unscoped")
	assert.Equal(t, 1, f.evicted)
}
