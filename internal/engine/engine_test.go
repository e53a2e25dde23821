package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"pulse-engine/internal/common/errors"
	"pulse-engine/internal/locks"
	"pulse-engine/internal/models"
	"pulse-engine/internal/storage"
)

// fakeStore is an in-memory Storage for engine tests.
type fakeStore struct {
	mu           sync.Mutex
	nextID       int64
	playlists    map[int64]*models.Playlist
	pluginsByKey map[string]*models.Plugin
	strategies   map[string]*models.Strategy
	updateCount  int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		playlists:    map[int64]*models.Playlist{},
		pluginsByKey: map[string]*models.Plugin{},
		strategies:   map[string]*models.Strategy{},
	}
}

func (s *fakeStore) Close() error  { return nil }
func (s *fakeStore) Health() error { return nil }

func (s *fakeStore) CreatePlugin(plugin *models.Plugin) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	plugin.ID = s.nextID
	s.pluginsByKey[plugin.Key] = plugin
	return nil
}

func (s *fakeStore) GetPluginByKey(key string) (*models.Plugin, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	plugin, ok := s.pluginsByKey[key]
	if !ok {
		return nil, errors.NotFoundError("plugin not found")
	}
	return plugin, nil
}

func (s *fakeStore) GetPluginBySlug(slug string) (*models.Plugin, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, plugin := range s.pluginsByKey {
		if plugin.Slug == slug {
			return plugin, nil
		}
	}
	return nil, errors.NotFoundError("plugin not found")
}

func (s *fakeStore) ListPlugins() ([]*models.Plugin, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var plugins []*models.Plugin
	for _, plugin := range s.pluginsByKey {
		plugins = append(plugins, plugin)
	}
	return plugins, nil
}

func (s *fakeStore) CreateStrategy(strategy *models.Strategy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	strategy.ID = s.nextID
	s.strategies[strategy.Slug] = strategy
	return nil
}

func (s *fakeStore) CreateSlot(slot *models.Slot) error { return nil }

func (s *fakeStore) GetStrategy(id int64) (*models.Strategy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, strategy := range s.strategies {
		if strategy.ID == id {
			return strategy, nil
		}
	}
	return nil, errors.NotFoundError("strategy not found")
}

func (s *fakeStore) GetStrategyBySlug(slug string) (*models.Strategy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	strategy, ok := s.strategies[slug]
	if !ok {
		return nil, errors.NotFoundError("strategy not found")
	}
	return strategy, nil
}

func (s *fakeStore) CreateTrigger(trigger *models.Trigger) error { return nil }

func (s *fakeStore) FindDueScheduleTriggers(now time.Time) ([]*models.Trigger, error) {
	return nil, nil
}

func (s *fakeStore) UpdateTriggerContext(id int64, context map[string]interface{}) error {
	return nil
}

func (s *fakeStore) CreatePlaylist(playlist *models.Playlist) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	playlist.ID = s.nextID
	cp := *playlist
	s.playlists[playlist.ID] = &cp
	return nil
}

func (s *fakeStore) GetPlaylist(id int64) (*models.Playlist, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	playlist, ok := s.playlists[id]
	if !ok {
		return nil, errors.NotFoundError(fmt.Sprintf("playlist %d not found", id))
	}
	cp := *playlist
	return &cp, nil
}

func (s *fakeStore) GetPlaylistBySlug(slug string) (*models.Playlist, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, playlist := range s.playlists {
		if playlist.Slug == slug {
			cp := *playlist
			return &cp, nil
		}
	}
	return nil, errors.NotFoundError("playlist not found")
}

func (s *fakeStore) ListPlaylists(filters storage.PlaylistFilters) ([]*models.Playlist, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var playlists []*models.Playlist
	for _, playlist := range s.playlists {
		cp := *playlist
		playlists = append(playlists, &cp)
	}
	return playlists, len(playlists), nil
}

func (s *fakeStore) UpdatePlaylist(playlist *models.Playlist) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *playlist
	s.playlists[playlist.ID] = &cp
	s.updateCount++
	return nil
}

func (s *fakeStore) ListPlaylistsByStatus(status models.PlaylistStatus) ([]*models.Playlist, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var playlists []*models.Playlist
	for _, playlist := range s.playlists {
		if playlist.Status == status {
			cp := *playlist
			playlists = append(playlists, &cp)
		}
	}
	return playlists, nil
}

// fakeInvoker records worker invocations and can be told to fail.
type fakeInvoker struct {
	mu      sync.Mutex
	handles []string
	failFor map[string]error
}

func newFakeInvoker() *fakeInvoker {
	return &fakeInvoker{failFor: map[string]error{}}
}

func (f *fakeInvoker) Invoke(ctx context.Context, handle string, payload interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failFor[handle]; ok {
		return err
	}
	f.handles = append(f.handles, handle)
	return nil
}

func (f *fakeInvoker) invoked() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.handles...)
}

// fakeNotifier counts refresh signals.
type fakeNotifier struct {
	mu        sync.Mutex
	refreshes int
}

func (f *fakeNotifier) RefreshPlaylists() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshes++
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refreshes
}

func newTestEngine(store *fakeStore, invoker *fakeInvoker, beta bool) (*Engine, *fakeNotifier) {
	notifier := &fakeNotifier{}
	eng := New(store, invoker, notifier, locks.NewMemoryManager(), beta)
	return eng, notifier
}
