package engine_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"streamline/internal/domain"
	"streamline/internal/engine"
	"streamline/internal/notify"
)

func reminders(msgs []notify.Message) []notify.Message {
	var out []notify.Message
	for _, m := range msgs {
		if m.Title == "Gentle Reminder" {
			out = append(out, m)
		}
	}
	return out
}

func TestRemindDueTomorrow(t *testing.T) {
	env := newTestEnv(t)
	a := env.create(t, engine.CreateInput{Subject: "a", CallerID: "U1", DueInDays: 1})
	env.create(t, engine.CreateInput{Subject: "b", CallerID: "U2", DueInDays: 1})
	env.create(t, engine.CreateInput{Subject: "c", CallerID: "U3", DueInDays: 1, Scope: "G2"})
	done := env.create(t, engine.CreateInput{Subject: "e", CallerID: "U4", DueInDays: 1})
	env.Clock.Advance(time.Minute)
	env.create(t, engine.CreateInput{Subject: "d", CallerID: "U1", DueInDays: 3})
	_, err := env.Engine.Complete(env.Ctx, engine.CompleteInput{Scope: "G1", PublicID: done.PublicID, CallerID: "U4"})
	require.NoError(t, err)
	env.Dispatcher.Wait()

	env.Sink.FailDirect["U1"] = true
	report, err := env.Engine.RemindDueTomorrow(env.Ctx)
	require.NoError(t, err)

	assert.Equal(t, 3, report.Items)
	assert.Equal(t, 2, report.Scopes)
	assert.Equal(t, 2, report.BatchesSent)
	assert.Equal(t, 2, report.DirectSent)
	assert.Equal(t, 1, report.DirectFailed)
	assert.Equal(t, time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC), report.WindowStart)

	g1 := reminders(env.Sink.Broadcasts("G1"))
	require.Len(t, g1, 1)
	assert.Contains(t, g1[0].Body, a.PublicID)
	assert.Equal(t, []string{"U1", "U2"}, g1[0].Mentions)
	assert.Len(t, reminders(env.Sink.Broadcasts("G2")), 1)
	assert.Len(t, reminders(env.Sink.Direct("U2")), 1)
	assert.Len(t, reminders(env.Sink.Direct("U3")), 1)
	assert.Empty(t, reminders(env.Sink.Direct("U4")))

	active, err := env.Engine.List(env.Ctx, engine.ListFilter{Scope: "G1", Status: domain.StatusActive})
	require.NoError(t, err)
	assert.Len(t, active, 3, "the scan never mutates rows")
}

func TestRemindDueTomorrowWithoutDestination(t *testing.T) {
	env := newTestEnv(t)
	env.create(t, engine.CreateInput{Subject: "a", CallerID: "U1", DueInDays: 1})
	env.Dispatcher.Wait()
	env.Sink.DestinationErr = notify.ErrDestinationNotFound

	report, err := env.Engine.RemindDueTomorrow(env.Ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.BatchesSent)
	assert.Equal(t, 1, report.DirectSent)
}

func TestRemindDueTomorrowNothingDue(t *testing.T) {
	env := newTestEnv(t)
	env.create(t, engine.CreateInput{Subject: "a", CallerID: "U1", DueInDays: 7})
	report, err := env.Engine.RemindDueTomorrow(env.Ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Items)
}
