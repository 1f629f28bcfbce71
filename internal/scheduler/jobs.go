package scheduler

import (
	"context"

	"go.uber.org/zap"

	"streamline/internal/engine"
)

type reminder interface {
	RemindDueTomorrow(ctx context.Context) (engine.ReminderReport, error)
}

type sweeper interface {
	RetentionSweep(ctx context.Context, opts engine.SweepOptions) (engine.SweepResult, error)
}

type guardEvicter interface {
	EvictGuard() int
}

// ReminderJob notifies owners of streams due tomorrow.
type ReminderJob struct {
	Engine reminder
}

func (ReminderJob) Name() string { return "reminder" }

func (j ReminderJob) Run(ctx context.Context) error {
	_, err := j.Engine.RemindDueTomorrow(ctx)
	return err
}

// SweepJob removes streams past the retention window in every scope.
type SweepJob struct {
	Engine sweeper
}

func (SweepJob) Name() string { return "retention-sweep" }

func (j SweepJob) Run(ctx context.Context) error {
	_, err := j.Engine.RetentionSweep(ctx, engine.SweepOptions{})
	return err
}

// GuardEvictJob trims expired in-flight markers between creates.
type GuardEvictJob struct {
	Engine guardEvicter
	Log    *zap.Logger
}

func (GuardEvictJob) Name() string { return "guard-evict" }

func (j GuardEvictJob) Run(ctx context.Context) error {
	if n := j.Engine.EvictGuard(); n > 0 && j.Log != nil {
		j.Log.Debug("in-flight markers evicted", zap.Int("count", n))
	}
	return nil
}
