package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"streamline/internal/config"
	"streamline/internal/engine"
	"streamline/internal/notify"
	"streamline/internal/scheduler"
)

// App wires the engine to its notification sink and scheduled jobs.
type App struct {
	Config     *config.Config
	Log        *zap.Logger
	DB         *sql.DB
	Engine     engine.Engine
	Dispatcher *notify.Dispatcher
	Scheduler  *scheduler.Scheduler
}

// New builds the application around an open database. sink may be nil, in
// which case one is chosen from the config.
func New(cfg *config.Config, log *zap.Logger, conn *sql.DB, sink notify.Sink) (*App, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if log == nil {
		log = zap.NewNop()
	}
	if sink == nil {
		var err error
		if sink, err = SinkFor(cfg, log); err != nil {
			return nil, err
		}
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	disp := notify.NewDispatcher(sink, log.Named("notify"), notify.DispatcherOptions{
		RatePerSecond: cfg.Notify.RatePerSecond,
		Burst:         cfg.Notify.Burst,
		Timeout:       cfg.Notify.Timeout,
	})
	e := engine.New(conn, cfg, disp, log.Named("engine"))

	sched := scheduler.New(loc, log.Named("scheduler"))
	jobs := []struct {
		spec string
		job  scheduler.Job
	}{
		{cfg.Schedule.Reminder, scheduler.ReminderJob{Engine: e}},
		{cfg.Schedule.Sweep, scheduler.SweepJob{Engine: e}},
		{cfg.Schedule.GuardEvict, scheduler.GuardEvictJob{Engine: e, Log: log.Named("guard")}},
	}
	for _, j := range jobs {
		if err := sched.Add(j.spec, j.job); err != nil {
			return nil, err
		}
	}
	return &App{
		Config:     cfg,
		Log:        log,
		DB:         conn,
		Engine:     e,
		Dispatcher: disp,
		Scheduler:  sched,
	}, nil
}

// SinkFor picks the delivery channel: the bot when a token is set, then
// incoming webhooks, then the log.
func SinkFor(cfg *config.Config, log *zap.Logger) (notify.Sink, error) {
	switch {
	case cfg.Discord.Token != "":
		s, err := notify.NewDiscordSink(cfg.Discord.Token)
		if err != nil {
			return nil, fmt.Errorf("discord: %w", err)
		}
		log.Info("notifications via discord bot")
		return s, nil
	case len(cfg.Webhooks) > 0:
		log.Info("notifications via webhooks", zap.Int("scopes", len(cfg.Webhooks)))
		return notify.NewWebhookSink(cfg.Webhooks), nil
	default:
		log.Info("notifications logged only")
		return notify.LogSink{Log: log.Named("sink")}, nil
	}
}

// Start runs the scheduled jobs.
func (a *App) Start() {
	a.Scheduler.Start()
	for i, next := range a.Scheduler.Entries() {
		a.Log.Info("job scheduled", zap.Int("entry", i), zap.Time("next", next))
	}
}

// Shutdown stops the scheduler and waits for queued notifications.
func (a *App) Shutdown(ctx context.Context) error {
	err := a.Scheduler.Stop(ctx)
	if derr := a.Dispatcher.Drain(ctx); derr != nil {
		err = errors.Join(err, fmt.Errorf("drain notifications: %w", derr))
	}
	return err
}
