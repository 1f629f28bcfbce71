package notify_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"streamline/internal/notify"
	"streamline/internal/testutil"
)

func TestDispatcherDetachedFailureIsLogged(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	sink := testutil.NewRecordingSink()
	sink.FailDirect["U1"] = true
	sink.DirectErr = errors.New("cannot send messages to this user")
	d := notify.NewDispatcher(sink, zap.New(core), notify.DispatcherOptions{})

	d.Direct("U1", notify.Message{Title: "hello"})
	d.Broadcast("G1", "stream-tracker", notify.Message{Title: "hello"})
	d.Wait()

	assert.Empty(t, sink.Direct("U1"))
	assert.Len(t, sink.Broadcasts("G1"), 1)
	failed := logs.FilterMessage("notification not delivered").All()
	require.Len(t, failed, 1)
	assert.Equal(t, "U1", failed[0].ContextMap()["user"])
}

func TestDispatcherSynchronousSendReturnsError(t *testing.T) {
	sink := testutil.NewRecordingSink()
	sink.DestinationErr = notify.ErrDestinationNotFound
	d := notify.NewDispatcher(sink, zap.NewNop(), notify.DispatcherOptions{RatePerSecond: 100, Burst: 1})

	err := d.SendToDestination(context.Background(), "G1", "missing", notify.Message{})
	assert.ErrorIs(t, err, notify.ErrDestinationNotFound)
}

func TestDispatcherDrainHonoursContext(t *testing.T) {
	block := make(chan struct{})
	d := notify.NewDispatcher(blockingSink{release: block}, zap.NewNop(), notify.DispatcherOptions{Timeout: time.Minute})
	d.Broadcast("G1", "", notify.Message{})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, d.Drain(ctx), context.DeadlineExceeded)

	close(block)
	require.NoError(t, d.Drain(context.Background()))
}

type blockingSink struct {
	release chan struct{}
}

func (b blockingSink) SendToDestination(ctx context.Context, scope, destination string, msg notify.Message) error {
	<-b.release
	return nil
}

func (b blockingSink) SendDirect(ctx context.Context, userID string, msg notify.Message) error {
	<-b.release
	return nil
}
