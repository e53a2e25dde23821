// Package postgres implements the storage interface on PostgreSQL using the
// pgx driver. It is the backend for shared beta/production deployments.
package postgres

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"pulse-engine/internal/common/errors"
	"pulse-engine/internal/models"
	"pulse-engine/internal/storage"
)

type Adapter struct {
	db     *sql.DB
	config *Config
}

// NewAdapter opens the database, applies the schema, and returns a ready
// adapter.
func NewAdapter(config *Config) (*Adapter, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid PostgreSQL config: %w", err)
	}

	db, err := sql.Open("pgx", config.GetConnectionString())
	if err != nil {
		return nil, errors.ConnectionError("failed to open database", err)
	}

	if err := db.Ping(); err != nil {
		return nil, errors.ConnectionError("failed to ping database", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	adapter := &Adapter{db: db, config: config}

	if err := adapter.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return adapter, nil
}

func (a *Adapter) Close() error {
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}

func (a *Adapter) Health() error {
	return a.db.Ping()
}

func (a *Adapter) migrate() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS plugins (
			id BIGSERIAL PRIMARY KEY,
			teams_id BIGINT NOT NULL DEFAULT 0,
			name VARCHAR(60) NOT NULL,
			plugin_key VARCHAR(60) NOT NULL UNIQUE,
			slug TEXT NOT NULL UNIQUE,
			plugin_type VARCHAR(20) NOT NULL,
			handle VARCHAR(2048) NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			deleted_at TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS strategies (
			id BIGSERIAL PRIMARY KEY,
			projects_id BIGINT NOT NULL DEFAULT 0,
			name VARCHAR(255) NOT NULL,
			stage VARCHAR(20) NOT NULL DEFAULT '',
			slug TEXT NOT NULL UNIQUE
		)`,
		`CREATE TABLE IF NOT EXISTS slots (
			id BIGSERIAL PRIMARY KEY,
			strategies_id BIGINT NOT NULL REFERENCES strategies(id),
			plugins_id BIGINT NOT NULL REFERENCES plugins(id),
			sort_order INTEGER NOT NULL DEFAULT 0,
			max_retries INTEGER NOT NULL DEFAULT 0,
			min_outputs INTEGER NOT NULL DEFAULT 0,
			metadata JSONB NOT NULL DEFAULT '{}'
		)`,
		`CREATE TABLE IF NOT EXISTS triggers (
			id BIGSERIAL PRIMARY KEY,
			strategies_id BIGINT NOT NULL REFERENCES strategies(id),
			type VARCHAR(20) NOT NULL,
			context JSONB NOT NULL DEFAULT '{}'
		)`,
		`CREATE TABLE IF NOT EXISTS playlists (
			id BIGSERIAL PRIMARY KEY,
			strategies_id BIGINT NOT NULL REFERENCES strategies(id),
			triggers_id BIGINT,
			memberships_id BIGINT,
			slug TEXT NOT NULL UNIQUE,
			manifest JSONB NOT NULL,
			status VARCHAR(20) NOT NULL,
			next_step VARCHAR(2048),
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_playlists_status ON playlists(status)`,
		`CREATE INDEX IF NOT EXISTS idx_playlists_created_at ON playlists(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_triggers_type ON triggers(type)`,
		`CREATE INDEX IF NOT EXISTS idx_triggers_next_execution
			ON triggers ((context->>'next_execution')) WHERE type = 'SCHEDULE'`,
	}

	for _, query := range queries {
		if _, err := a.db.Exec(query); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}

// Plugin registry

func (a *Adapter) CreatePlugin(plugin *models.Plugin) error {
	now := time.Now().UTC()
	err := a.db.QueryRow(
		`INSERT INTO plugins (teams_id, name, plugin_key, slug, plugin_type, handle, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
		plugin.TeamID, plugin.Name, plugin.Key, plugin.Slug, string(plugin.Type), plugin.Handle, now, now,
	).Scan(&plugin.ID)
	if err != nil {
		return errors.InternalError("failed to create plugin", err)
	}
	plugin.CreatedAt = now
	plugin.UpdatedAt = now
	return nil
}

const pluginColumns = `id, teams_id, name, plugin_key, slug, plugin_type, handle, created_at, updated_at`

func (a *Adapter) scanPlugin(row interface{ Scan(...interface{}) error }) (*models.Plugin, error) {
	var plugin models.Plugin
	var pluginType string
	err := row.Scan(&plugin.ID, &plugin.TeamID, &plugin.Name, &plugin.Key,
		&plugin.Slug, &pluginType, &plugin.Handle, &plugin.CreatedAt, &plugin.UpdatedAt)
	if err != nil {
		return nil, err
	}
	plugin.Type = models.PluginType(pluginType)
	return &plugin, nil
}

func (a *Adapter) GetPluginByKey(key string) (*models.Plugin, error) {
	row := a.db.QueryRow(
		`SELECT `+pluginColumns+` FROM plugins WHERE plugin_key = $1 AND deleted_at IS NULL`, key)
	plugin, err := a.scanPlugin(row)
	if err == sql.ErrNoRows {
		return nil, errors.NotFoundError("plugin not found").WithContext("key", "redacted")
	}
	if err != nil {
		return nil, errors.InternalError("failed to get plugin", err)
	}
	return plugin, nil
}

func (a *Adapter) GetPluginBySlug(slug string) (*models.Plugin, error) {
	row := a.db.QueryRow(
		`SELECT `+pluginColumns+` FROM plugins WHERE slug = $1 AND deleted_at IS NULL`, slug)
	plugin, err := a.scanPlugin(row)
	if err == sql.ErrNoRows {
		return nil, errors.NotFoundError("plugin not found").WithContext("slug", slug)
	}
	if err != nil {
		return nil, errors.InternalError("failed to get plugin", err)
	}
	return plugin, nil
}

func (a *Adapter) ListPlugins() ([]*models.Plugin, error) {
	rows, err := a.db.Query(
		`SELECT ` + pluginColumns + ` FROM plugins WHERE deleted_at IS NULL ORDER BY id`)
	if err != nil {
		return nil, errors.InternalError("failed to list plugins", err)
	}
	defer rows.Close()

	var plugins []*models.Plugin
	for rows.Next() {
		plugin, err := a.scanPlugin(rows)
		if err != nil {
			return nil, errors.InternalError("failed to scan plugin", err)
		}
		plugins = append(plugins, plugin)
	}
	return plugins, rows.Err()
}

// Strategy definitions

func (a *Adapter) CreateStrategy(strategy *models.Strategy) error {
	err := a.db.QueryRow(
		`INSERT INTO strategies (projects_id, name, stage, slug) VALUES ($1, $2, $3, $4) RETURNING id`,
		strategy.ProjectID, strategy.Name, strategy.Stage, strategy.Slug,
	).Scan(&strategy.ID)
	if err != nil {
		return errors.InternalError("failed to create strategy", err)
	}
	return nil
}

func (a *Adapter) CreateSlot(slot *models.Slot) error {
	metadata, err := json.Marshal(slot.Metadata)
	if err != nil {
		return errors.InternalError("failed to marshal slot metadata", err)
	}
	err = a.db.QueryRow(
		`INSERT INTO slots (strategies_id, plugins_id, sort_order, max_retries, min_outputs, metadata)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		slot.StrategyID, slot.PluginID, slot.Order, slot.MaxRetries, slot.MinOutputs, string(metadata),
	).Scan(&slot.ID)
	if err != nil {
		return errors.InternalError("failed to create slot", err)
	}
	return nil
}

func (a *Adapter) GetStrategy(id int64) (*models.Strategy, error) {
	row := a.db.QueryRow(
		`SELECT id, projects_id, name, stage, slug FROM strategies WHERE id = $1`, id)
	return a.loadStrategy(row)
}

func (a *Adapter) GetStrategyBySlug(slug string) (*models.Strategy, error) {
	row := a.db.QueryRow(
		`SELECT id, projects_id, name, stage, slug FROM strategies WHERE slug = $1`, slug)
	return a.loadStrategy(row)
}

func (a *Adapter) loadStrategy(row *sql.Row) (*models.Strategy, error) {
	var strategy models.Strategy
	err := row.Scan(&strategy.ID, &strategy.ProjectID, &strategy.Name, &strategy.Stage, &strategy.Slug)
	if err == sql.ErrNoRows {
		return nil, errors.NotFoundError("strategy not found")
	}
	if err != nil {
		return nil, errors.InternalError("failed to get strategy", err)
	}

	slots, err := a.loadSlots(strategy.ID)
	if err != nil {
		return nil, err
	}
	strategy.Slots = slots

	triggers, err := a.loadTriggers(strategy.ID)
	if err != nil {
		return nil, err
	}
	strategy.Triggers = triggers

	return &strategy, nil
}

func (a *Adapter) loadSlots(strategyID int64) ([]*models.Slot, error) {
	rows, err := a.db.Query(
		`SELECT s.id, s.strategies_id, s.plugins_id, s.sort_order, s.max_retries, s.min_outputs, s.metadata,
		        p.id, p.teams_id, p.name, p.plugin_key, p.slug, p.plugin_type, p.handle, p.created_at, p.updated_at
		 FROM slots s
		 JOIN plugins p ON p.id = s.plugins_id
		 WHERE s.strategies_id = $1
		 ORDER BY s.id`, strategyID)
	if err != nil {
		return nil, errors.InternalError("failed to load slots", err)
	}
	defer rows.Close()

	var slots []*models.Slot
	for rows.Next() {
		var slot models.Slot
		var plugin models.Plugin
		var metadata, pluginType string
		err := rows.Scan(&slot.ID, &slot.StrategyID, &slot.PluginID, &slot.Order,
			&slot.MaxRetries, &slot.MinOutputs, &metadata,
			&plugin.ID, &plugin.TeamID, &plugin.Name, &plugin.Key, &plugin.Slug,
			&pluginType, &plugin.Handle, &plugin.CreatedAt, &plugin.UpdatedAt)
		if err != nil {
			return nil, errors.InternalError("failed to scan slot", err)
		}
		if err := json.Unmarshal([]byte(metadata), &slot.Metadata); err != nil {
			return nil, errors.InternalError("failed to parse slot metadata", err)
		}
		plugin.Type = models.PluginType(pluginType)
		slot.Plugin = &plugin
		slots = append(slots, &slot)
	}
	return slots, rows.Err()
}

func (a *Adapter) loadTriggers(strategyID int64) ([]*models.Trigger, error) {
	rows, err := a.db.Query(
		`SELECT id, strategies_id, type, context FROM triggers WHERE strategies_id = $1 ORDER BY id`, strategyID)
	if err != nil {
		return nil, errors.InternalError("failed to load triggers", err)
	}
	defer rows.Close()

	var triggers []*models.Trigger
	for rows.Next() {
		trigger, err := a.scanTrigger(rows)
		if err != nil {
			return nil, err
		}
		triggers = append(triggers, trigger)
	}
	return triggers, rows.Err()
}

// Triggers

func (a *Adapter) CreateTrigger(trigger *models.Trigger) error {
	context, err := json.Marshal(trigger.Context)
	if err != nil {
		return errors.InternalError("failed to marshal trigger context", err)
	}
	err = a.db.QueryRow(
		`INSERT INTO triggers (strategies_id, type, context) VALUES ($1, $2, $3) RETURNING id`,
		trigger.StrategyID, string(trigger.Type), string(context),
	).Scan(&trigger.ID)
	if err != nil {
		return errors.InternalError("failed to create trigger", err)
	}
	return nil
}

func (a *Adapter) scanTrigger(row interface{ Scan(...interface{}) error }) (*models.Trigger, error) {
	var trigger models.Trigger
	var triggerType, context string
	if err := row.Scan(&trigger.ID, &trigger.StrategyID, &triggerType, &context); err != nil {
		return nil, errors.InternalError("failed to scan trigger", err)
	}
	trigger.Type = models.TriggerType(triggerType)
	if err := json.Unmarshal([]byte(context), &trigger.Context); err != nil {
		return nil, errors.InternalError("failed to parse trigger context", err)
	}
	return &trigger, nil
}

func (a *Adapter) FindDueScheduleTriggers(now time.Time) ([]*models.Trigger, error) {
	rows, err := a.db.Query(
		`SELECT id, strategies_id, type, context FROM triggers
		 WHERE type = $1 AND (context->>'next_execution') <= $2`,
		string(models.TriggerTypeSchedule), now.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, errors.InternalError("failed to query due triggers", err)
	}
	defer rows.Close()

	var triggers []*models.Trigger
	for rows.Next() {
		trigger, err := a.scanTrigger(rows)
		if err != nil {
			return nil, err
		}
		triggers = append(triggers, trigger)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.InternalError("failed to iterate due triggers", err)
	}

	for _, trigger := range triggers {
		strategy, err := a.GetStrategy(trigger.StrategyID)
		if err != nil {
			return nil, err
		}
		trigger.Strategy = strategy
	}

	return triggers, nil
}

func (a *Adapter) UpdateTriggerContext(id int64, context map[string]interface{}) error {
	raw, err := json.Marshal(context)
	if err != nil {
		return errors.InternalError("failed to marshal trigger context", err)
	}
	result, err := a.db.Exec(`UPDATE triggers SET context = $1 WHERE id = $2`, string(raw), id)
	if err != nil {
		return errors.InternalError("failed to update trigger context", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return errors.InternalError("failed to check trigger update", err)
	}
	if affected == 0 {
		return errors.NotFoundError("trigger not found").WithContext("id", id)
	}
	return nil
}

// Playlists

func (a *Adapter) CreatePlaylist(playlist *models.Playlist) error {
	manifest, err := json.Marshal(playlist.Manifest)
	if err != nil {
		return errors.InternalError("failed to marshal manifest", err)
	}

	now := time.Now().UTC()
	err = a.db.QueryRow(
		`INSERT INTO playlists (strategies_id, triggers_id, memberships_id, slug, manifest, status, next_step, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
		playlist.StrategyID, playlist.TriggerID, playlist.MembershipID, playlist.Slug,
		string(manifest), string(playlist.Status), playlist.NextStep, now,
	).Scan(&playlist.ID)
	if err != nil {
		return errors.InternalError("failed to create playlist", err)
	}
	playlist.CreatedAt = now
	return nil
}

const playlistColumns = `id, strategies_id, triggers_id, memberships_id, slug, manifest, status, next_step, created_at`

func (a *Adapter) scanPlaylist(row interface{ Scan(...interface{}) error }) (*models.Playlist, error) {
	var playlist models.Playlist
	var manifest, status string
	err := row.Scan(&playlist.ID, &playlist.StrategyID, &playlist.TriggerID,
		&playlist.MembershipID, &playlist.Slug, &manifest, &status,
		&playlist.NextStep, &playlist.CreatedAt)
	if err != nil {
		return nil, err
	}
	playlist.Status = models.PlaylistStatus(status)
	if err := json.Unmarshal([]byte(manifest), &playlist.Manifest); err != nil {
		return nil, errors.InternalError("failed to parse manifest", err)
	}
	return &playlist, nil
}

func (a *Adapter) GetPlaylist(id int64) (*models.Playlist, error) {
	row := a.db.QueryRow(`SELECT `+playlistColumns+` FROM playlists WHERE id = $1`, id)
	playlist, err := a.scanPlaylist(row)
	if err == sql.ErrNoRows {
		return nil, errors.NotFoundError("playlist not found").WithContext("id", id)
	}
	if err != nil {
		return nil, errors.InternalError("failed to get playlist", err)
	}
	return playlist, nil
}

func (a *Adapter) GetPlaylistBySlug(slug string) (*models.Playlist, error) {
	row := a.db.QueryRow(`SELECT `+playlistColumns+` FROM playlists WHERE slug = $1`, slug)
	playlist, err := a.scanPlaylist(row)
	if err == sql.ErrNoRows {
		return nil, errors.NotFoundError("playlist not found").WithContext("slug", slug)
	}
	if err != nil {
		return nil, errors.InternalError("failed to get playlist", err)
	}
	return playlist, nil
}

func (a *Adapter) ListPlaylists(filters storage.PlaylistFilters) ([]*models.Playlist, int, error) {
	where := "WHERE 1=1"
	args := []interface{}{}
	arg := 0

	next := func() string {
		arg++
		return fmt.Sprintf("$%d", arg)
	}

	if filters.From != nil {
		where += " AND created_at >= " + next()
		args = append(args, filters.From.UTC())
	}
	if filters.To != nil {
		where += " AND created_at <= " + next()
		args = append(args, filters.To.UTC())
	}

	var count int
	if err := a.db.QueryRow(`SELECT COUNT(*) FROM playlists `+where, args...).Scan(&count); err != nil {
		return nil, 0, errors.InternalError("failed to count playlists", err)
	}

	query := `SELECT ` + playlistColumns + ` FROM playlists ` + where + ` ` + storage.OrderClause(filters.Sort)
	if limit := filters.Limit(); limit > 0 {
		query += " LIMIT " + next()
		args = append(args, limit)
		query += " OFFSET " + next()
		args = append(args, filters.StartRow)
	}

	rows, err := a.db.Query(query, args...)
	if err != nil {
		return nil, 0, errors.InternalError("failed to list playlists", err)
	}
	defer rows.Close()

	var playlists []*models.Playlist
	for rows.Next() {
		playlist, err := a.scanPlaylist(rows)
		if err != nil {
			return nil, 0, errors.InternalError("failed to scan playlist", err)
		}
		playlists = append(playlists, playlist)
	}
	return playlists, count, rows.Err()
}

func (a *Adapter) UpdatePlaylist(playlist *models.Playlist) error {
	manifest, err := json.Marshal(playlist.Manifest)
	if err != nil {
		return errors.InternalError("failed to marshal manifest", err)
	}

	result, err := a.db.Exec(
		`UPDATE playlists SET manifest = $1, status = $2, next_step = $3 WHERE id = $4`,
		string(manifest), string(playlist.Status), playlist.NextStep, playlist.ID,
	)
	if err != nil {
		return errors.InternalError("failed to update playlist", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return errors.InternalError("failed to check playlist update", err)
	}
	if affected == 0 {
		return errors.NotFoundError("playlist not found").WithContext("id", playlist.ID)
	}
	return nil
}

func (a *Adapter) ListPlaylistsByStatus(status models.PlaylistStatus) ([]*models.Playlist, error) {
	rows, err := a.db.Query(
		`SELECT `+playlistColumns+` FROM playlists WHERE status = $1 ORDER BY id`, string(status))
	if err != nil {
		return nil, errors.InternalError("failed to list playlists by status", err)
	}
	defer rows.Close()

	var playlists []*models.Playlist
	for rows.Next() {
		playlist, err := a.scanPlaylist(rows)
		if err != nil {
			return nil, errors.InternalError("failed to scan playlist", err)
		}
		playlists = append(playlists, playlist)
	}
	return playlists, rows.Err()
}
