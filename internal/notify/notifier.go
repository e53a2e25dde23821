// Package notify carries the fire-and-forget "refresh" signal the engine
// emits when a playlist starts running. Delivery is best effort; there is
// no contract on it and the engine never waits for it.
package notify

// Notifier announces that the playlist table changed and UIs should reload.
type Notifier interface {
	RefreshPlaylists()
}

// NoopNotifier discards refresh signals. Used when no topic is configured
// and in tests.
type NoopNotifier struct{}

func (NoopNotifier) RefreshPlaylists() {}
