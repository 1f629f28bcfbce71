package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
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
	"streamline/internal/testutil"
)

const testSecret = "test-secret"

type testServer struct {
	URL    string
	client *http.Client
	clock  *testutil.Clock
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	_, err := db.EnsureWorkspace(workspace)
	require.NoError(t, err)
	conn, err := db.Open(db.Config{Workspace: workspace})
	require.NoError(t, err)
	require.NoError(t, migrate.Migrate(conn))

	disp := notify.NewDispatcher(testutil.NewRecordingSink(), zap.NewNop(), notify.DispatcherOptions{})
	clock := testutil.NewClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	e := engine.New(conn, config.Default(), disp, zap.NewNop())
	e.Now = clock.Now
	handler, err := New(Config{Engine: e, BasePath: "/v0", Auth: AuthConfig{JWTSecret: testSecret}})
	require.NoError(t, err)
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		client: &http.Client{},
		clock:  clock,
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			disp.Wait()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func bearer(t *testing.T, subject string, perms ...string) map[string]string {
	t.Helper()
	token, err := SignToken(testSecret, subject, perms, time.Hour)
	require.NoError(t, err)
	return map[string]string{"Authorization": "Bearer " + token}
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return res, data
}

type errorEnvelope struct {
	Error apiErrorBody `json:"error"`
}

func TestHealthNeedsNoAuth(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	res, _ := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/health", nil, nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.NotEmpty(t, res.Header.Get("X-Request-Id"))

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/guilds/G1/streams", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode, string(data))
	res, _ = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/guilds/G1/streams", nil, map[string]string{"Authorization": "Bearer nope"})
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
}

func TestStreamLifecycleOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	owner := bearer(t, "U1")

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/guilds/G1/streams", map[string]any{
		"subject":     "Gown A",
		"due_in_days": 3,
	}, owner)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	var created StreamResponse
	require.NoError(t, json.Unmarshal(data, &created))
	assert.Equal(t, "U1", created.OwnerID)
	assert.Equal(t, 3, created.DaysRemaining)
	assert.Equal(t, "active", created.Badge)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/guilds/G1/streams", map[string]any{
		"subject":     "Gown A",
		"due_in_days": 3,
	}, owner)
	require.Equal(t, http.StatusConflict, res.StatusCode, string(data))
	var env errorEnvelope
	require.NoError(t, json.Unmarshal(data, &env))
	assert.Equal(t, "duplicate_submission", env.Error.Code)
	assert.Equal(t, created.PublicID, env.Error.Details["conflict_public_id"])

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/guilds/G1/streams?status=active", nil, owner)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var list StreamListResponse
	require.NoError(t, json.Unmarshal(data, &list))
	require.Len(t, list.Items, 1)

	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v0/guilds/G2/streams/"+created.PublicID, nil, owner)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/guilds/G1/streams/"+created.PublicID+"/complete", nil, bearer(t, "U9"))
	require.Equal(t, http.StatusForbidden, res.StatusCode, string(data))

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/guilds/G1/streams/"+created.PublicID+"/complete", nil, bearer(t, "U9", PermModerate))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var done StreamResponse
	require.NoError(t, json.Unmarshal(data, &done))
	assert.Equal(t, "completed", done.Status)
	require.NotNil(t, done.CompletedAt)

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/guilds/G1/events", nil, owner)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var evts EventListResponse
	require.NoError(t, json.Unmarshal(data, &evts))
	require.Len(t, evts.Items, 2)
	assert.Equal(t, "stream.completed", evts.Items[0].Type)
}

func TestCreateValidationMapsToBadRequest(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/guilds/G1/streams", map[string]any{
		"subject":     "Gown A",
		"due_in_days": 2,
	}, bearer(t, "U1"))
	require.Equal(t, http.StatusBadRequest, res.StatusCode, string(data))
	var env errorEnvelope
	require.NoError(t, json.Unmarshal(data, &env))
	assert.Equal(t, "validation_failed", env.Error.Code)
	assert.Equal(t, "due_in_days", env.Error.Details["field"])
}

func TestCreateUsesDefaultDueDays(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/guilds/G1/streams", map[string]any{
		"subject": "Gown A",
	}, bearer(t, "U1"))
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	var created StreamResponse
	require.NoError(t, json.Unmarshal(data, &created))
	assert.Equal(t, 7, created.DaysRemaining)
}

func TestMaintenanceRequiresAdmin(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, _ := doJSON(t, client, http.MethodPost, srv.URL+"/v0/maintenance/sweep", nil, bearer(t, "U1", PermModerate))
	assert.Equal(t, http.StatusForbidden, res.StatusCode)

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/maintenance/sweep", map[string]any{"window_hours": 0}, bearer(t, "ops", PermAdmin))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var removed RemovedResponse
	require.NoError(t, json.Unmarshal(data, &removed))
	assert.Equal(t, 0, removed.Count)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/maintenance/remind", nil, bearer(t, "ops", PermAdmin))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var report engine.ReminderReport
	require.NoError(t, json.Unmarshal(data, &report))
	assert.Equal(t, 0, report.Items)
}

func TestWipeOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/guilds/G1/streams", map[string]any{"subject": "a", "due_in_days": 1}, bearer(t, "U1"))
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))

	res, _ = doJSON(t, client, http.MethodDelete, srv.URL+"/v0/guilds/G1/streams", nil, bearer(t, "U1"))
	assert.Equal(t, http.StatusForbidden, res.StatusCode)

	res, data = doJSON(t, client, http.MethodDelete, srv.URL+"/v0/guilds/G1/streams", nil, bearer(t, "MOD", PermModerate))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var removed RemovedResponse
	require.NoError(t, json.Unmarshal(data, &removed))
	assert.Equal(t, 1, removed.Count)
}

func TestOpenAPIDeclaresBearerAuth(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/openapi.json", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var doc struct {
		Components struct {
			SecuritySchemes map[string]any `json:"securitySchemes"`
		} `json:"components"`
		Paths map[string]map[string]struct {
			Security []map[string][]string `json:"security"`
		} `json:"paths"`
	}
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Contains(t, doc.Components.SecuritySchemes, "bearerAuth")
	assert.Empty(t, doc.Paths["/v0/health"]["get"].Security)
	assert.NotEmpty(t, doc.Paths["/v0/guilds/{guild_id}/streams"]["post"].Security)
}
