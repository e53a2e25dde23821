package models

import "time"

// PlaylistStatus is the lifecycle state of a playlist. Transitions are
// monotonic: CREATED -> IN_PROCESS -> {FAILED | COMPLETE}, and the two
// terminal states are never exited.
type PlaylistStatus string

const (
	PlaylistStatusCreated   PlaylistStatus = "CREATED"
	PlaylistStatusInProcess PlaylistStatus = "IN_PROCESS"
	PlaylistStatusFailed    PlaylistStatus = "FAILED"
	PlaylistStatusComplete  PlaylistStatus = "COMPLETE"
)

// Terminal reports whether the status is final.
func (s PlaylistStatus) Terminal() bool {
	return s == PlaylistStatusFailed || s == PlaylistStatusComplete
}

// Playlist is one durable execution of a strategy. It is created by the
// dispatcher, mutated only by the dispatcher and the completion handler,
// and never deleted: terminal playlists are permanent audit records.
type Playlist struct {
	ID           int64          `json:"id"`
	StrategyID   int64          `json:"strategy_id"`
	TriggerID    *int64         `json:"trigger_id,omitempty"`
	MembershipID *int64         `json:"membership_id,omitempty"`
	Slug         string         `json:"slug"`
	Manifest     Manifest       `json:"manifest"`
	Status       PlaylistStatus `json:"status"`
	NextStep     *string        `json:"next_step"`
	CreatedAt    time.Time      `json:"created_at"`
}
