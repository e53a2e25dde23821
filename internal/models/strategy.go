package models

// Strategy is a reusable, declarative pipeline definition: an ordered set of
// plugin slots plus the triggers that may start it. A strategy holds no
// execution state; a Playlist materializes it into a run.
type Strategy struct {
	ID        int64      `json:"id"`
	ProjectID int64      `json:"project_id"`
	Name      string     `json:"name"`
	Stage     string     `json:"stage"`
	Slug      string     `json:"slug"`
	Slots     []*Slot    `json:"slots,omitempty"`
	Triggers  []*Trigger `json:"triggers,omitempty"`
}

// Slot is one configured step in a strategy. Order breaks ties within the
// slot's plugin-type bucket; MinOutputs is the fan-in threshold the
// completion handler applies before advancing past this step.
type Slot struct {
	ID         int64                  `json:"id"`
	StrategyID int64                  `json:"strategy_id"`
	PluginID   int64                  `json:"plugin_id"`
	Plugin     *Plugin                `json:"plugin,omitempty"`
	Order      int                    `json:"order"`
	MaxRetries int                    `json:"max_retries"`
	MinOutputs int                    `json:"min_outputs"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// Snapshot freezes the slot into the self-contained form embedded in a
// playlist manifest, so the completion handler can resolve thresholds
// without re-querying the slot table.
func (s *Slot) Snapshot() SlotSnapshot {
	snap := SlotSnapshot{
		Order:      s.Order,
		MinOutputs: s.MinOutputs,
		MaxRetries: s.MaxRetries,
		Metadata:   s.Metadata,
	}
	if s.Plugin != nil {
		snap.Plugin = PluginRef{
			Handle: s.Plugin.Handle,
			Type:   s.Plugin.Type,
		}
	}
	return snap
}
