// Package scheduler drives the recurring stream jobs on cron specs.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Job is one recurring task. Run is invoked directly by tests.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Scheduler owns a cron runner. Overlapping runs of the same job are
// skipped and a panicking job is recovered.
type Scheduler struct {
	cron    *cron.Cron
	log     *zap.Logger
	timeout time.Duration
	ctx     context.Context
	cancel  context.CancelFunc
}

var Parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

func New(loc *time.Location, log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	if loc == nil {
		loc = time.UTC
	}
	cl := cronLogger{log: log.Sugar()}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithParser(Parser),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		log:     log,
		timeout: 10 * time.Minute,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Add registers job on spec. An empty spec disables the job.
func (s *Scheduler) Add(spec string, job Job) error {
	if spec == "" {
		s.log.Info("job disabled", zap.String("job", job.Name()))
		return nil
	}
	_, err := s.cron.AddFunc(spec, func() { s.runOnce(job) })
	if err != nil {
		return fmt.Errorf("schedule %s: %w", job.Name(), err)
	}
	s.log.Info("job scheduled", zap.String("job", job.Name()), zap.String("spec", spec))
	return nil
}

func (s *Scheduler) runOnce(job Job) {
	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()
	start := time.Now()
	if err := job.Run(ctx); err != nil {
		s.log.Error("job failed", zap.String("job", job.Name()), zap.Error(err))
		return
	}
	s.log.Debug("job finished", zap.String("job", job.Name()), zap.Duration("took", time.Since(start)))
}

// Entries lists the next run time per registered job.
func (s *Scheduler) Entries() []time.Time {
	var out []time.Time
	for _, e := range s.cron.Entries() {
		out = append(out, e.Next)
	}
	return out
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts new runs and waits for running jobs until ctx ends, then
// cancels them.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	defer s.cancel()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type cronLogger struct {
	log *zap.SugaredLogger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.log.Debugw("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.log.Errorw("cron: "+msg, append(keysAndValues, "error", err)...)
}
