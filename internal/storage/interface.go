// Package storage defines the persistence contract for the pulse engine:
// the plugin registry, strategy definitions, triggers, and playlist
// execution state.
package storage

import (
	"time"

	"pulse-engine/internal/models"
)

// Storage is the persistence interface the engine, scheduler and handlers
// depend on. Adapters exist for PostgreSQL and SQLite; both create their
// schema on connect.
type Storage interface {
	// Connection management
	Close() error
	Health() error

	// Plugin registry
	CreatePlugin(plugin *models.Plugin) error
	// GetPluginByKey resolves a plugin by its secret callback key. The key
	// authenticates completion messages and is never serialized outward.
	GetPluginByKey(key string) (*models.Plugin, error)
	GetPluginBySlug(slug string) (*models.Plugin, error)
	ListPlugins() ([]*models.Plugin, error)

	// Strategy definitions
	CreateStrategy(strategy *models.Strategy) error
	CreateSlot(slot *models.Slot) error
	// GetStrategy loads a strategy with its slots and their plugins, ready
	// for pipeline construction.
	GetStrategy(id int64) (*models.Strategy, error)
	GetStrategyBySlug(slug string) (*models.Strategy, error)

	// Triggers
	CreateTrigger(trigger *models.Trigger) error
	// FindDueScheduleTriggers returns SCHEDULE triggers whose next_execution
	// is at or before now, each with its strategy graph loaded.
	FindDueScheduleTriggers(now time.Time) ([]*models.Trigger, error)
	UpdateTriggerContext(id int64, context map[string]interface{}) error

	// Playlists
	CreatePlaylist(playlist *models.Playlist) error
	GetPlaylist(id int64) (*models.Playlist, error)
	GetPlaylistBySlug(slug string) (*models.Playlist, error)
	ListPlaylists(filters PlaylistFilters) ([]*models.Playlist, int, error)
	UpdatePlaylist(playlist *models.Playlist) error
	// ListPlaylistsByStatus supports the watchdog's stuck-step scan.
	ListPlaylistsByStatus(status models.PlaylistStatus) ([]*models.Playlist, error)
}

// PlaylistFilters narrows and pages playlist listings. StartRow/EndRow are a
// half-open row window; Sort is "column" or "column:desc".
type PlaylistFilters struct {
	From     *time.Time
	To       *time.Time
	Sort     string
	StartRow int
	EndRow   int
}

// Limit returns the row-window size, or 0 for no limit.
func (f PlaylistFilters) Limit() int {
	if f.EndRow > f.StartRow {
		return f.EndRow - f.StartRow
	}
	return 0
}
