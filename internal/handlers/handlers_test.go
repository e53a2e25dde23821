package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pulse-engine/internal/config"
	"pulse-engine/internal/engine"
	"pulse-engine/internal/locks"
	"pulse-engine/internal/models"
	"pulse-engine/internal/notify"
	"pulse-engine/internal/storage/sqlite"
)

type recordingInvoker struct {
	mu       sync.Mutex
	handles  []string
	payloads []interface{}
}

func (r *recordingInvoker) Invoke(ctx context.Context, handle string, payload interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handles = append(r.handles, handle)
	r.payloads = append(r.payloads, payload)
	return nil
}

type testEnv struct {
	handlers *Handlers
	invoker  *recordingInvoker
	store    *sqlite.Adapter
	router   *mux.Router
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store, err := sqlite.NewAdapter(&sqlite.Config{Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	invoker := &recordingInvoker{}
	eng := engine.New(store, invoker, notify.NoopNotifier{}, locks.NewMemoryManager(), false)
	cfg := &config.Config{AdhocWorkerHandle: "adhoc-fn"}
	h := New(store, eng, invoker, cfg)

	r := mux.NewRouter()
	r.HandleFunc("/health", h.HealthCheck).Methods("GET")
	r.HandleFunc("/playlists", h.HandleTrigger).Methods("POST")
	r.HandleFunc("/playlists/update", h.HandleSegue).Methods("POST")
	r.HandleFunc("/playlists/adhoc", h.HandleAdhoc).Methods("POST")
	r.HandleFunc("/playlists", h.ListPlaylists).Methods("GET")
	r.HandleFunc("/playlists/{slug}", h.GetPlaylist).Methods("GET")
	r.HandleFunc("/plugins", h.ListPlugins).Methods("GET")
	r.HandleFunc("/plugins/{slug}", h.GetPlugin).Methods("GET")

	return &testEnv{handlers: h, invoker: invoker, store: store, router: r}
}

// seedStrategy creates an audit plugin and a single-slot strategy for it.
func (env *testEnv) seedStrategy(t *testing.T) *models.Strategy {
	t.Helper()

	audit := &models.Plugin{
		Name: "Audit", Key: "audit-key", Slug: "audit",
		Type: models.PluginTypeProvider, Handle: "audit-fn",
	}
	require.NoError(t, env.store.CreatePlugin(audit))

	strategy := &models.Strategy{Name: "Page Audit", Slug: "page-audit"}
	require.NoError(t, env.store.CreateStrategy(strategy))
	require.NoError(t, env.store.CreateSlot(&models.Slot{
		StrategyID: strategy.ID, PluginID: audit.ID, MinOutputs: 1,
	}))

	loaded, err := env.store.GetStrategyBySlug("page-audit")
	require.NoError(t, err)
	return loaded
}

func (env *testEnv) post(t *testing.T, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest("POST", path, bytes.NewReader(raw))
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)
	return rr
}

func (env *testEnv) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("GET", path, nil)
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)
	return rr
}

func TestHandleTrigger(t *testing.T) {
	t.Run("BareMessage", func(t *testing.T) {
		env := newTestEnv(t)
		env.seedStrategy(t)

		rr := env.post(t, "/playlists", map[string]interface{}{
			"url": "https://example.com", "strategy": "page-audit", "isBeta": false,
		})

		require.Equal(t, http.StatusCreated, rr.Code)
		var playlist models.Playlist
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &playlist))
		assert.NotEmpty(t, playlist.Slug)
		assert.Equal(t, []string{"audit-fn"}, env.invoker.handles)
	})

	t.Run("EnvelopedNotification", func(t *testing.T) {
		env := newTestEnv(t)
		env.seedStrategy(t)

		message, _ := json.Marshal(map[string]interface{}{
			"url": "https://example.com", "strategy": "page-audit", "isBeta": false,
		})
		rr := env.post(t, "/playlists", map[string]interface{}{
			"Type":    "Notification",
			"Message": string(message),
		})

		require.Equal(t, http.StatusCreated, rr.Code)
		assert.Equal(t, []string{"audit-fn"}, env.invoker.handles)
	})

	t.Run("OtherModeDiscarded", func(t *testing.T) {
		env := newTestEnv(t)
		env.seedStrategy(t)

		rr := env.post(t, "/playlists", map[string]interface{}{
			"strategy": "page-audit", "isBeta": true,
		})

		require.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Body.String(), "discarded")
		assert.Empty(t, env.invoker.handles)
	})

	t.Run("UnknownStrategy", func(t *testing.T) {
		env := newTestEnv(t)

		rr := env.post(t, "/playlists", map[string]interface{}{
			"strategy": "missing", "isBeta": false,
		})

		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("InvalidJSON", func(t *testing.T) {
		env := newTestEnv(t)

		req := httptest.NewRequest("POST", "/playlists", bytes.NewReader([]byte("{not json")))
		rr := httptest.NewRecorder()
		env.router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestSubscriptionConfirmation(t *testing.T) {
	env := newTestEnv(t)

	var confirmed bool
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		confirmed = true
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	rr := env.post(t, "/playlists", map[string]interface{}{
		"Type":         "SubscriptionConfirmation",
		"TopicArn":     "arn:aws:sns:eu-west-1:123456789012:refresh",
		"SubscribeURL": upstream.URL,
	})

	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, confirmed)
	assert.Contains(t, rr.Body.String(), "confirmed")
}

func TestHandleSegue(t *testing.T) {
	env := newTestEnv(t)
	strategy := env.seedStrategy(t)

	playlist, err := env.handlers.engine.Start(context.Background(), strategy,
		map[string]interface{}{"isBeta": false}, nil, nil)
	require.NoError(t, err)

	t.Run("CompletesStep", func(t *testing.T) {
		rr := env.post(t, "/playlists/update", map[string]interface{}{
			"id":     playlist.ID,
			"key":    "audit-key",
			"output": map[string]interface{}{"score": 97},
			"failed": false,
		})

		require.Equal(t, http.StatusOK, rr.Code)

		current, err := env.store.GetPlaylist(playlist.ID)
		require.NoError(t, err)
		assert.Equal(t, models.PlaylistStatusComplete, current.Status)
		assert.Len(t, current.Manifest.Outputs("audit-fn"), 1)
	})

	t.Run("UnknownPlaylist", func(t *testing.T) {
		rr := env.post(t, "/playlists/update", map[string]interface{}{
			"id": 9999, "key": "audit-key",
		})
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("UnknownKey", func(t *testing.T) {
		rr := env.post(t, "/playlists/update", map[string]interface{}{
			"id": playlist.ID, "key": "bogus",
		})
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}

func TestHandleAdhoc(t *testing.T) {
	t.Run("InvokesAdhocWorker", func(t *testing.T) {
		env := newTestEnv(t)

		rr := env.post(t, "/playlists/adhoc", map[string]interface{}{
			"url": "https://example.com", "membership_id": 7,
		})

		require.Equal(t, http.StatusAccepted, rr.Code)
		require.Equal(t, []string{"adhoc-fn"}, env.invoker.handles)

		payload, ok := env.invoker.payloads[0].(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, "https://example.com", payload["url"])
		assert.Equal(t, false, payload["isBeta"])
	})

	t.Run("MissingURL", func(t *testing.T) {
		env := newTestEnv(t)

		rr := env.post(t, "/playlists/adhoc", map[string]interface{}{})

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Empty(t, env.invoker.handles)
	})

	t.Run("NotConfigured", func(t *testing.T) {
		env := newTestEnv(t)
		env.handlers.config = &config.Config{}

		rr := env.post(t, "/playlists/adhoc", map[string]interface{}{
			"url": "https://example.com",
		})

		assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	})
}

func TestReadSurface(t *testing.T) {
	env := newTestEnv(t)
	strategy := env.seedStrategy(t)

	playlist, err := env.handlers.engine.Start(context.Background(), strategy,
		map[string]interface{}{"isBeta": false}, nil, nil)
	require.NoError(t, err)

	t.Run("ListPlaylists", func(t *testing.T) {
		rr := env.get(t, "/playlists?startRow=0&endRow=10")

		require.Equal(t, http.StatusOK, rr.Code)
		var body struct {
			Rows  []*models.Playlist `json:"rows"`
			Count int                `json:"count"`
		}
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
		assert.Equal(t, 1, body.Count)
		require.Len(t, body.Rows, 1)
		assert.Equal(t, playlist.Slug, body.Rows[0].Slug)
	})

	t.Run("ListPlaylistsBadFilter", func(t *testing.T) {
		rr := env.get(t, "/playlists?from=yesterday")
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("GetPlaylistBySlug", func(t *testing.T) {
		rr := env.get(t, fmt.Sprintf("/playlists/%s", playlist.Slug))

		require.Equal(t, http.StatusOK, rr.Code)
		var got models.Playlist
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
		assert.Equal(t, playlist.ID, got.ID)
	})

	t.Run("GetPlaylistNotFound", func(t *testing.T) {
		rr := env.get(t, "/playlists/does-not-exist")
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("ListPlugins", func(t *testing.T) {
		rr := env.get(t, "/plugins")

		require.Equal(t, http.StatusOK, rr.Code)
		var plugins []*models.Plugin
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &plugins))
		require.Len(t, plugins, 1)
		assert.Equal(t, "audit", plugins[0].Slug)
		// Secret keys never leave the process.
		assert.NotContains(t, rr.Body.String(), "audit-key")
	})

	t.Run("GetPluginBySlug", func(t *testing.T) {
		rr := env.get(t, "/plugins/audit")

		require.Equal(t, http.StatusOK, rr.Code)
		var plugin models.Plugin
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &plugin))
		assert.Equal(t, "audit-fn", plugin.Handle)
	})

	t.Run("Health", func(t *testing.T) {
		rr := env.get(t, "/health")
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Body.String(), "healthy")
	})
}
