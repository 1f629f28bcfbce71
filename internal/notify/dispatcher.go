package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const defaultSendTimeout = 10 * time.Second

type DispatcherOptions struct {
	// RatePerSecond caps outbound sends; zero disables pacing.
	RatePerSecond float64
	Burst         int
	Timeout       time.Duration
}

// Dispatcher paces sends to a Sink. Detached sends run on their own
// goroutine with a fresh context so the caller's return never waits on
// delivery; their failures are only logged.
type Dispatcher struct {
	sink    Sink
	log     *zap.Logger
	limiter *rate.Limiter
	timeout time.Duration
	wg      sync.WaitGroup
}

func NewDispatcher(sink Sink, log *zap.Logger, opts DispatcherOptions) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.RatePerSecond > 0 {
		burst := opts.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RatePerSecond), burst)
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultSendTimeout
	}
	return &Dispatcher{sink: sink, log: log, limiter: limiter, timeout: timeout}
}

// SendToDestination delivers synchronously, waiting for a rate slot.
func (d *Dispatcher) SendToDestination(ctx context.Context, scope, destination string, msg Message) error {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	if err := d.limiter.Wait(ctx); err != nil {
		return err
	}
	return d.sink.SendToDestination(ctx, scope, destination, msg)
}

// SendDirect delivers synchronously, waiting for a rate slot.
func (d *Dispatcher) SendDirect(ctx context.Context, userID string, msg Message) error {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	if err := d.limiter.Wait(ctx); err != nil {
		return err
	}
	return d.sink.SendDirect(ctx, userID, msg)
}

// Broadcast launches a detached SendToDestination.
func (d *Dispatcher) Broadcast(scope, destination string, msg Message, fields ...zap.Field) {
	d.detach(func(ctx context.Context) error {
		return d.SendToDestination(ctx, scope, destination, msg)
	}, append(fields, zap.String("scope", scope), zap.String("destination", destination), zap.String("title", msg.Title))...)
}

// Direct launches a detached SendDirect.
func (d *Dispatcher) Direct(userID string, msg Message, fields ...zap.Field) {
	d.detach(func(ctx context.Context) error {
		return d.SendDirect(ctx, userID, msg)
	}, append(fields, zap.String("user", userID), zap.String("title", msg.Title))...)
}

func (d *Dispatcher) detach(send func(context.Context) error, fields ...zap.Field) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := send(context.Background()); err != nil {
			level := d.log.Warn
			if errors.Is(err, ErrDestinationNotFound) || errors.Is(err, ErrDirectUnsupported) {
				level = d.log.Info
			}
			level("notification not delivered", append(fields, zap.Error(err))...)
			return
		}
		d.log.Debug("notification delivered", fields...)
	}()
}

// Wait blocks until every detached send has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Drain waits for detached sends or gives up when ctx ends.
func (d *Dispatcher) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
