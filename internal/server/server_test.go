package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"stageline/internal/config"
	"stageline/internal/db"
	"stageline/internal/domain"
	"stageline/internal/engine"
	"stageline/internal/migrate"
	"stageline/internal/repo"
)

type testServer struct {
	*httptest.Server
	engine engine.Engine
	logs   *observer.ObservedLogs
}

func newTestServer(t *testing.T, auth AuthConfig) *testServer {
	t.Helper()
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	require.NoError(t, err)
	require.NoError(t, migrate.Migrate(conn))

	core, logs := observer.New(zapcore.InfoLevel)
	logger := zap.New(core)
	e := engine.New(conn, config.Default(), logger)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	e.Now = func() time.Time { return now }

	handler, err := New(Config{Engine: e, BasePath: "/v0", Auth: auth, Logger: logger})
	require.NoError(t, err)
	srv := httptest.NewServer(handler)
	t.Cleanup(func() {
		srv.Close()
		conn.Close()
	})
	return &testServer{Server: srv, engine: e, logs: logs}
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader = bytes.NewReader(nil)
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
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

func (s *testServer) createItem(t *testing.T, name string) domain.WorkItem {
	t.Helper()
	res, data := doJSON(t, s.Client(), http.MethodPost, s.URL+"/v0/items", map[string]any{"name": name}, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var it domain.WorkItem
	require.NoError(t, json.Unmarshal(data, &it))
	return it
}

func errorCode(t *testing.T, data []byte) string {
	t.Helper()
	var env struct {
		Error apiErrorBody `json:"error"`
	}
	require.NoError(t, json.Unmarshal(data, &env), string(data))
	return env.Error.Code
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, AuthConfig{RequireAuth: true})
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/health", nil, nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, string(data))
}

func TestItemLifecycle(t *testing.T) {
	srv := newTestServer(t, AuthConfig{AllowActorHeader: true})
	client := srv.Client()
	it := srv.createItem(t, "Checkout")
	assert.Equal(t, domain.StageBacklog, it.Stage)

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/items/"+it.ID+"/stage",
		map[string]any{"stage": "in_development", "position": 0}, map[string]string{"X-Actor-Id": "dana"})
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var moved domain.WorkItem
	require.NoError(t, json.Unmarshal(data, &moved))
	assert.Equal(t, domain.StageInDevelopment, moved.Stage)

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/items/"+it.ID+"/history", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	var hist HistoryList
	require.NoError(t, json.Unmarshal(data, &hist))
	assert.Len(t, hist.Items, 2)

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/items/"+it.ID, nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	var detail ItemDetail
	require.NoError(t, json.Unmarshal(data, &detail))
	assert.Equal(t, 0, detail.DaysInStage)
	assert.Equal(t, "NONE", string(detail.Level))

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/events?item_id="+it.ID+"&action=stage_changed", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	var evs EventList
	require.NoError(t, json.Unmarshal(data, &evs))
	require.Len(t, evs.Items, 1)
	assert.Equal(t, "dana", evs.Items[0].ActorID)

	res, _ = doJSON(t, client, http.MethodDelete, srv.URL+"/v0/items/"+it.ID, nil, nil)
	assert.Equal(t, http.StatusNoContent, res.StatusCode)
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/items/"+it.ID, nil, nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.Equal(t, "not_found", errorCode(t, data))
}

func TestErrorMapping(t *testing.T) {
	srv := newTestServer(t, AuthConfig{})
	client := srv.Client()
	it := srv.createItem(t, "Search")

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/items/"+it.ID+"/stage", map[string]any{"stage": "SHIPPING", "position": 0}, nil)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Equal(t, "validation_failed", errorCode(t, data))

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/items/"+it.ID+"/entries", map[string]any{"duration_minutes": -5}, nil)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode, string(data))

	res, _ = doJSON(t, client, http.MethodPost, srv.URL+"/v0/items/missing/hold", map[string]any{"on_hold": true}, nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/items/"+it.ID+"/timer", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var entry domain.TimeEntry
	require.NoError(t, json.Unmarshal(data, &entry))

	res, _ = doJSON(t, client, http.MethodPost, srv.URL+"/v0/entries/"+entry.ID+"/stop", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/entries/"+entry.ID+"/stop", nil, nil)
	assert.Equal(t, http.StatusConflict, res.StatusCode)
	assert.Equal(t, "already_stopped", errorCode(t, data))
}

func TestTimerEndpoints(t *testing.T) {
	srv := newTestServer(t, AuthConfig{})
	client := srv.Client()
	a := srv.createItem(t, "A")
	b := srv.createItem(t, "B")

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/timer", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	var running RunningTimer
	require.NoError(t, json.Unmarshal(data, &running))
	assert.False(t, running.Running)

	res, _ = doJSON(t, client, http.MethodPost, srv.URL+"/v0/items/"+a.ID+"/timer", map[string]any{"description": "build"}, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/items/"+b.ID+"/timer", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	var second domain.TimeEntry
	require.NoError(t, json.Unmarshal(data, &second))

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/timer", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.NoError(t, json.Unmarshal(data, &running))
	require.True(t, running.Running)
	assert.Equal(t, second.ID, running.Entry.ID)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/items/"+a.ID+"/entries", map[string]any{"duration_minutes": 90}, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/items/"+a.ID+"/stats", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	var stats domain.TimeStats
	require.NoError(t, json.Unmarshal(data, &stats))
	assert.Equal(t, 90, stats.TotalMinutes)
	assert.Equal(t, 2, stats.ActualHours)
	assert.Equal(t, 2, stats.EntriesCount)
}

func TestUpdateItemClearsRateWithNull(t *testing.T) {
	srv := newTestServer(t, AuthConfig{})
	client := srv.Client()
	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/items", map[string]any{"name": "Rates", "hourly_rate": 80}, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var it domain.WorkItem
	require.NoError(t, json.Unmarshal(data, &it))
	require.NotNil(t, it.HourlyRate)

	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v0/items/"+it.ID, map[string]any{"hourly_rate": nil, "description": "no rate"}, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var updated domain.WorkItem
	require.NoError(t, json.Unmarshal(data, &updated))
	assert.Nil(t, updated.HourlyRate)
	assert.Equal(t, "no rate", updated.Description)
}

func TestAuthAttribution(t *testing.T) {
	secret := "s3cret"
	srv := newTestServer(t, AuthConfig{JWTSecret: secret, RequireAuth: true})
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/items", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	assert.Equal(t, "unauthorized", errorCode(t, data))

	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v0/items", nil, map[string]string{"Authorization": "Bearer nope"})
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "robin"}).SignedString([]byte(secret))
	require.NoError(t, err)
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/clients", map[string]any{"name": "Acme"}, map[string]string{"Authorization": "Bearer " + token})
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))

	_, plain, err := srv.engine.CreateAPIKey(t.Context(), "ci-bot", "ci")
	require.NoError(t, err)
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/clients", map[string]any{"name": "Globex"}, map[string]string{"X-Api-Key": plain})
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))

	evs, err := srv.engine.Repo.ListEvents(t.Context(), repo.EventFilters{Action: domain.ActionClientCreated})
	require.NoError(t, err)
	require.Len(t, evs, 2)
	assert.Equal(t, "ci-bot", evs[0].ActorID)
	assert.Equal(t, "robin", evs[1].ActorID)
}

func TestRequestsAreLogged(t *testing.T) {
	srv := newTestServer(t, AuthConfig{})
	// serve in-process so the log line is written before we look for it
	rec := httptest.NewRecorder()
	srv.Config.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v0/attention", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	entries := srv.logs.FilterMessage("http request").All()
	require.NotEmpty(t, entries)
	last := entries[len(entries)-1].ContextMap()
	assert.Equal(t, "/v0/attention", last["path"])
	assert.EqualValues(t, http.StatusOK, last["status"])
}

func TestOpenAPISpec(t *testing.T) {
	srv := newTestServer(t, AuthConfig{RequireAuth: true})
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/openapi.json", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	var spec map[string]any
	require.NoError(t, json.Unmarshal(data, &spec))
	paths, ok := spec["paths"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, paths, "/v0/items/{item_id}/stage")
	assert.Contains(t, paths, "/v0/timer")
}

func TestNotesAndTags(t *testing.T) {
	srv := newTestServer(t, AuthConfig{})
	client := srv.Client()
	it := srv.createItem(t, "Checkout")

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/items/"+it.ID+"/notes", map[string]any{"content": "needs copy review"}, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/items/"+it.ID+"/notes", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	var notes NoteList
	require.NoError(t, json.Unmarshal(data, &notes))
	require.Len(t, notes.Items, 1)
	assert.Equal(t, "needs copy review", notes.Items[0].Content)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/tags", map[string]any{"name": "frontend", "color": "#22C55E"}, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var tag domain.Tag
	require.NoError(t, json.Unmarshal(data, &tag))
	assert.Equal(t, "#22c55e", tag.Color)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/tags", map[string]any{"name": "Frontend"}, nil)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Equal(t, "validation_failed", errorCode(t, data))

	res, _ = doJSON(t, client, http.MethodPut, srv.URL+"/v0/items/"+it.ID+"/tags/"+tag.ID, nil, nil)
	assert.Equal(t, http.StatusNoContent, res.StatusCode)
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/items/"+it.ID+"/tags", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	var tags TagList
	require.NoError(t, json.Unmarshal(data, &tags))
	require.Len(t, tags.Items, 1)
	assert.Equal(t, tag.ID, tags.Items[0].ID)

	res, _ = doJSON(t, client, http.MethodDelete, srv.URL+"/v0/items/"+it.ID+"/tags/"+tag.ID, nil, nil)
	assert.Equal(t, http.StatusNoContent, res.StatusCode)
	res, data = doJSON(t, client, http.MethodDelete, srv.URL+"/v0/items/"+it.ID+"/tags/"+tag.ID, nil, nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.Equal(t, "not_found", errorCode(t, data))
}
