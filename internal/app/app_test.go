package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"streamline/internal/config"
	"streamline/internal/engine"
	"streamline/internal/notify"
	"streamline/internal/testutil"
)

func TestResolveConfigFallsBackToDefaults(t *testing.T) {
	cfg, err := ResolveConfig(t.TempDir(), "")
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Streams.DefaultDueDays)

	_, err = ResolveConfig(t.TempDir(), filepath.Join(t.TempDir(), "missing.yml"))
	require.Error(t, err)
}

func TestSinkForPrefersWebhooksOverLog(t *testing.T) {
	cfg := config.Default()
	s, err := SinkFor(cfg, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, notify.LogSink{}, s)

	cfg.Webhooks = map[string]string{"G1": "http://127.0.0.1:1/hook"}
	s, err = SinkFor(cfg, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &notify.WebhookSink{}, s)
}

func TestAppWiresEngineAndJobs(t *testing.T) {
	workspace := t.TempDir()
	conn, err := OpenStore(workspace, "")
	require.NoError(t, err)
	defer conn.Close()

	sink := testutil.NewRecordingSink()
	a, err := New(config.Default(), zap.NewNop(), conn, sink)
	require.NoError(t, err)

	_, err = a.Engine.Create(context.Background(), engine.CreateInput{
		Subject: "Gown A", OwnerID: "U1", CallerID: "U1", DueInDays: 3, Scope: "G1",
	})
	require.NoError(t, err)

	a.Start()
	assert.Len(t, a.Scheduler.Entries(), 3)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, a.Shutdown(ctx))
	assert.Len(t, sink.Broadcasts("G1"), 1)
	assert.Len(t, sink.Direct("U1"), 1)
}

func TestNewRejectsBadSchedule(t *testing.T) {
	conn, err := OpenStore(t.TempDir(), "")
	require.NoError(t, err)
	defer conn.Close()
	cfg := config.Default()
	cfg.Schedule.Sweep = "not a spec"
	_, err = New(cfg, nil, conn, testutil.NewRecordingSink())
	require.Error(t, err)
}
