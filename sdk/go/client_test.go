package streamlinesdk

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"streamline/internal/config"
	"streamline/internal/db"
	"streamline/internal/engine"
	"streamline/internal/migrate"
	"streamline/internal/notify"
	"streamline/internal/server"
	"streamline/internal/testutil"
)

func newTestClient(t *testing.T, subject string, perms ...string) *Client {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	require.NoError(t, migrate.Migrate(conn))
	disp := notify.NewDispatcher(testutil.NewRecordingSink(), zap.NewNop(), notify.DispatcherOptions{})
	e := engine.New(conn, config.Default(), disp, zap.NewNop())
	handler, err := server.New(server.Config{Engine: e, Auth: server.AuthConfig{JWTSecret: "sdk-secret"}})
	require.NoError(t, err)
	srv := httptest.NewServer(handler)
	t.Cleanup(func() {
		srv.Close()
		disp.Wait()
		conn.Close()
	})
	token, err := server.SignToken("sdk-secret", subject, perms, time.Hour)
	require.NoError(t, err)
	return New(srv.URL, "G1", token)
}

func TestClientStreamRoundTrip(t *testing.T) {
	c := newTestClient(t, "U1")
	ctx := context.Background()

	s, err := c.CreateStream(ctx, CreateStream{Subject: "Gown A", DueInDays: 5, Link: "https://example.com/a"})
	require.NoError(t, err)
	assert.Len(t, s.PublicID, 8)
	assert.Equal(t, "G1", s.GuildID)
	assert.Equal(t, "https://example.com/a", s.Link)

	_, err = c.CreateStream(ctx, CreateStream{Subject: "Gown A", DueInDays: 5})
	id, dup := IsDuplicate(err)
	require.True(t, dup, "err=%v", err)
	assert.Equal(t, s.PublicID, id)

	got, err := c.GetStream(ctx, s.PublicID)
	require.NoError(t, err)
	assert.Equal(t, "active", got.Status)

	items, err := c.ListStreams(ctx, "active", "U1")
	require.NoError(t, err)
	require.Len(t, items, 1)

	done, err := c.CompleteStream(ctx, s.PublicID)
	require.NoError(t, err)
	assert.Equal(t, "completed", done.Status)

	evts, err := c.Events(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, evts, 2)
}

func TestClientAPIErrors(t *testing.T) {
	c := newTestClient(t, "U1")
	_, err := c.WipeStreams(context.Background())
	var ae *APIError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, 403, ae.StatusCode)
	assert.Equal(t, "forbidden", ae.Code)

	_, err = c.Sweep(context.Background(), "", nil)
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, 403, ae.StatusCode)

	_, err = c.GetStream(context.Background(), "ZZZZ9999")
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, 404, ae.StatusCode)
	assert.Equal(t, "not_found", ae.Code)
}

func TestClientMaintenanceAsAdmin(t *testing.T) {
	c := newTestClient(t, "ops", server.PermAdmin)
	window := 0
	res, err := c.Sweep(context.Background(), "G1", &window)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Count)

	report, err := c.Remind(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, report.Items)
}
