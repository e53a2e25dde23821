package engine

import (
	"context"
	"sort"

	"github.com/lucsky/cuid"
	"pulse-engine/internal/common/errors"
	"pulse-engine/internal/common/logging"
	"pulse-engine/internal/models"
)

// bucketOrder fixes the execution phases of a pipeline: a source must
// resolve the target before anything can measure it, and delivery runs
// last. Within a bucket, slot order breaks ties; the source bucket keeps
// its natural order.
var bucketOrder = []models.PluginType{
	models.PluginTypeSource,
	models.PluginTypeProvider,
	models.PluginTypeProcessing,
	models.PluginTypeDelivery,
}

// BuildSequence partitions a strategy's slots into type buckets and
// concatenates them in execution order.
func BuildSequence(slots []*models.Slot) []models.SlotSnapshot {
	buckets := make(map[models.PluginType][]*models.Slot, len(bucketOrder))
	for _, slot := range slots {
		if slot.Plugin == nil {
			continue
		}
		buckets[slot.Plugin.Type] = append(buckets[slot.Plugin.Type], slot)
	}

	sequence := make([]models.SlotSnapshot, 0, len(slots))
	for _, bucket := range bucketOrder {
		entries := buckets[bucket]
		if bucket != models.PluginTypeSource {
			sort.SliceStable(entries, func(i, j int) bool {
				return entries[i].Order < entries[j].Order
			})
		}
		for _, slot := range entries {
			sequence = append(sequence, slot.Snapshot())
		}
	}
	return sequence
}

// Start materializes a strategy into a playlist and begins executing it.
// The initial context is copied into the manifest; triggerID and
// membershipID record provenance and may be nil.
func (e *Engine) Start(ctx context.Context, strategy *models.Strategy, initial map[string]interface{}, triggerID, membershipID *int64) (*models.Playlist, error) {
	if strategy == nil {
		return nil, errors.ValidationError("cannot start playlist without a strategy")
	}

	sequence := BuildSequence(strategy.Slots)
	manifest := models.NewManifest(initial, sequence)

	playlist := &models.Playlist{
		StrategyID:   strategy.ID,
		TriggerID:    triggerID,
		MembershipID: membershipID,
		Slug:         cuid.New(),
		Manifest:     manifest,
		Status:       models.PlaylistStatusCreated,
		NextStep:     manifest.NextHandle(),
		CreatedAt:    e.now().UTC(),
	}

	if err := e.store.CreatePlaylist(playlist); err != nil {
		return nil, err
	}

	e.logger.Info("Playlist created",
		logging.Field{Key: "playlist", Value: playlist.Slug},
		logging.Field{Key: "strategy", Value: strategy.Slug},
		logging.Field{Key: "steps", Value: len(sequence)})

	err := e.locks.WithLock(ctx, playlistLockKey(playlist.ID), func() error {
		return e.run(ctx, playlist)
	})
	if err != nil {
		return playlist, err
	}
	return playlist, nil
}

// Run resumes execution of an existing playlist by id.
func (e *Engine) Run(ctx context.Context, playlistID int64) error {
	return e.locks.WithLock(ctx, playlistLockKey(playlistID), func() error {
		playlist, err := e.store.GetPlaylist(playlistID)
		if err != nil {
			return err
		}
		return e.run(ctx, playlist)
	})
}
