package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pulse-engine/internal/common/errors"
	"pulse-engine/internal/models"
)

// seedStrategy registers three plugins and a strategy using them: a
// passthrough source, a provider requiring two outputs, and a delivery
// step that advances on first completion.
func seedStrategy(t *testing.T, store *fakeStore) *models.Strategy {
	t.Helper()

	source := &models.Plugin{
		Name: "Target", Key: "source-key", Slug: "target",
		Type: models.PluginTypeSource, Handle: "target-NoOp",
	}
	audit := &models.Plugin{
		Name: "Audit", Key: "audit-key", Slug: "audit",
		Type: models.PluginTypeProvider, Handle: "audit-fn",
	}
	deliver := &models.Plugin{
		Name: "Deliver", Key: "deliver-key", Slug: "deliver",
		Type: models.PluginTypeDelivery, Handle: "deliver-fn",
	}
	for _, plugin := range []*models.Plugin{source, audit, deliver} {
		require.NoError(t, store.CreatePlugin(plugin))
	}

	strategy := &models.Strategy{
		Name: "Page Audit", Slug: "page-audit",
		Slots: []*models.Slot{
			{Plugin: source, Order: 0, MinOutputs: 0,
				Metadata: map[string]interface{}{"url": "https://example.com"}},
			{Plugin: audit, Order: 0, MinOutputs: 2},
			{Plugin: deliver, Order: 0, MinOutputs: 0},
		},
	}
	require.NoError(t, store.CreateStrategy(strategy))
	return strategy
}

func TestPipelineEndToEnd(t *testing.T) {
	store := newFakeStore()
	invoker := newFakeInvoker()
	eng, notifier := newTestEngine(store, invoker, false)
	strategy := seedStrategy(t, store)
	ctx := context.Background()

	playlist, err := eng.Start(ctx, strategy, map[string]interface{}{"isBeta": false}, nil, nil)
	require.NoError(t, err)

	// The passthrough source merged synchronously and the audit step was
	// dispatched to its worker.
	current, err := store.GetPlaylist(playlist.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PlaylistStatusInProcess, current.Status)
	assert.Equal(t, "https://example.com", current.Manifest.Context["url"])
	assert.Equal(t, []string{"audit-fn"}, invoker.invoked())
	require.NotNil(t, current.NextStep)
	assert.Equal(t, "audit-fn", *current.NextStep)
	assert.Len(t, current.Manifest.Executed, 2)
	assert.Len(t, current.Manifest.Sequence, 1)
	assert.Equal(t, 1, notifier.count())

	// First completion is below the fan-in threshold.
	err = eng.Segue(ctx, SegueMessage{
		ID: playlist.ID, Key: "audit-key",
		Output: map[string]interface{}{"result": "A"},
	})
	require.NoError(t, err)

	current, _ = store.GetPlaylist(playlist.ID)
	assert.Len(t, current.Manifest.Outputs("audit-fn"), 1)
	assert.Equal(t, "audit-fn", *current.NextStep)
	assert.Equal(t, []string{"audit-fn"}, invoker.invoked())

	// Second completion meets the threshold and advances to delivery.
	err = eng.Segue(ctx, SegueMessage{
		ID: playlist.ID, Key: "audit-key",
		Output: map[string]interface{}{"result": "B"},
	})
	require.NoError(t, err)

	current, _ = store.GetPlaylist(playlist.ID)
	assert.Len(t, current.Manifest.Outputs("audit-fn"), 2)
	assert.Equal(t, []string{"audit-fn", "deliver-fn"}, invoker.invoked())
	assert.Equal(t, "deliver-fn", *current.NextStep)

	// Delivery confirms with an empty payload; minOutputs 0 still advances
	// and the queue is drained.
	err = eng.Segue(ctx, SegueMessage{
		ID: playlist.ID, Key: "deliver-key",
		Output: map[string]interface{}{},
	})
	require.NoError(t, err)

	current, _ = store.GetPlaylist(playlist.ID)
	assert.Equal(t, models.PlaylistStatusComplete, current.Status)
	assert.Nil(t, current.NextStep)
	assert.Empty(t, current.Manifest.Sequence)
	assert.Empty(t, current.Manifest.Outputs("deliver-fn"))
}

func TestSegueQueueConservation(t *testing.T) {
	store := newFakeStore()
	invoker := newFakeInvoker()
	eng, _ := newTestEngine(store, invoker, false)
	strategy := seedStrategy(t, store)
	ctx := context.Background()

	playlist, err := eng.Start(ctx, strategy, map[string]interface{}{"isBeta": false}, nil, nil)
	require.NoError(t, err)

	total := len(strategy.Slots)
	check := func() {
		current, err := store.GetPlaylist(playlist.ID)
		require.NoError(t, err)
		assert.Equal(t, total, len(current.Manifest.Sequence)+len(current.Manifest.Executed))
	}

	check()
	for _, msg := range []SegueMessage{
		{ID: playlist.ID, Key: "audit-key", Output: map[string]interface{}{"result": "A"}},
		{ID: playlist.ID, Key: "audit-key", Output: map[string]interface{}{"result": "B"}},
		{ID: playlist.ID, Key: "deliver-key", Output: map[string]interface{}{}},
	} {
		require.NoError(t, eng.Segue(ctx, msg))
		check()
	}
}

func TestSegueFailure(t *testing.T) {
	store := newFakeStore()
	invoker := newFakeInvoker()
	eng, _ := newTestEngine(store, invoker, false)
	strategy := seedStrategy(t, store)
	ctx := context.Background()

	playlist, err := eng.Start(ctx, strategy, map[string]interface{}{"isBeta": false}, nil, nil)
	require.NoError(t, err)

	err = eng.Segue(ctx, SegueMessage{ID: playlist.ID, Key: "audit-key", Failed: true})
	require.NoError(t, err)

	current, _ := store.GetPlaylist(playlist.ID)
	assert.Equal(t, models.PlaylistStatusFailed, current.Status)

	t.Run("TerminalStateIsFinal", func(t *testing.T) {
		err := eng.Segue(ctx, SegueMessage{
			ID: playlist.ID, Key: "audit-key",
			Output: map[string]interface{}{"result": "late"},
		})
		require.NoError(t, err)

		current, _ := store.GetPlaylist(playlist.ID)
		assert.Equal(t, models.PlaylistStatusFailed, current.Status)
		assert.Empty(t, current.Manifest.Outputs("audit-fn"))
	})

	t.Run("UnknownKeyStillRejected", func(t *testing.T) {
		// Key validation happens before the terminal discard, so a bogus
		// key is a hard error even on a finished playlist.
		err := eng.Segue(ctx, SegueMessage{ID: playlist.ID, Key: "bogus-key"})
		assert.True(t, errors.IsNotFound(err))
	})
}

func TestSegueEnvironmentIsolation(t *testing.T) {
	store := newFakeStore()
	invoker := newFakeInvoker()
	eng, _ := newTestEngine(store, invoker, false)
	strategy := seedStrategy(t, store)
	ctx := context.Background()

	// A beta playlist processed by a production engine.
	playlist, err := eng.Start(ctx, strategy, map[string]interface{}{"isBeta": false}, nil, nil)
	require.NoError(t, err)
	before, _ := store.GetPlaylist(playlist.ID)

	betaEngine := New(store, invoker, &fakeNotifier{}, eng.locks, true)
	err = betaEngine.Segue(ctx, SegueMessage{
		ID: playlist.ID, Key: "audit-key",
		Output: map[string]interface{}{"result": "cross-env"},
	})
	require.NoError(t, err)

	after, _ := store.GetPlaylist(playlist.ID)
	assert.Equal(t, before.Status, after.Status)
	assert.Equal(t, before.NextStep, after.NextStep)
	assert.Empty(t, after.Manifest.Outputs("audit-fn"))
}

func TestSegueSourceOutputReplacesURL(t *testing.T) {
	store := newFakeStore()
	invoker := newFakeInvoker()
	eng, _ := newTestEngine(store, invoker, false)
	ctx := context.Background()

	source := &models.Plugin{
		Name: "Resolver", Key: "resolve-key", Slug: "resolver",
		Type: models.PluginTypeSource, Handle: "resolve-fn",
	}
	require.NoError(t, store.CreatePlugin(source))
	strategy := &models.Strategy{
		Name: "Resolve Only", Slug: "resolve-only",
		Slots: []*models.Slot{{Plugin: source, MinOutputs: 0}},
	}
	require.NoError(t, store.CreateStrategy(strategy))

	playlist, err := eng.Start(ctx, strategy, map[string]interface{}{
		"isBeta": false, "url": "https://example.com",
	}, nil, nil)
	require.NoError(t, err)

	err = eng.Segue(ctx, SegueMessage{
		ID: playlist.ID, Key: "resolve-key",
		Output: "https://example.com/resolved",
	})
	require.NoError(t, err)

	current, _ := store.GetPlaylist(playlist.ID)
	assert.Equal(t, "https://example.com/resolved", current.Manifest.Context["url"])
	// Source output replaces the URL, it never accumulates.
	assert.Empty(t, current.Manifest.Outputs("resolve-fn"))
	assert.Equal(t, models.PlaylistStatusComplete, current.Status)
}

func TestSegueErrors(t *testing.T) {
	store := newFakeStore()
	invoker := newFakeInvoker()
	eng, _ := newTestEngine(store, invoker, false)
	strategy := seedStrategy(t, store)
	ctx := context.Background()

	playlist, err := eng.Start(ctx, strategy, map[string]interface{}{"isBeta": false}, nil, nil)
	require.NoError(t, err)

	t.Run("UnknownPlaylist", func(t *testing.T) {
		err := eng.Segue(ctx, SegueMessage{ID: 9999, Key: "audit-key"})
		assert.True(t, errors.IsNotFound(err))
	})

	t.Run("UnknownPluginKey", func(t *testing.T) {
		err := eng.Segue(ctx, SegueMessage{ID: playlist.ID, Key: "bogus-key"})
		assert.True(t, errors.IsNotFound(err))
	})

	t.Run("NotYetDispatched", func(t *testing.T) {
		err := eng.Segue(ctx, SegueMessage{
			ID: playlist.ID, Key: "deliver-key",
			Output: map[string]interface{}{},
		})
		assert.True(t, errors.IsNotFound(err))
	})
}

func TestTrigger(t *testing.T) {
	store := newFakeStore()
	invoker := newFakeInvoker()
	eng, _ := newTestEngine(store, invoker, false)
	seedStrategy(t, store)
	ctx := context.Background()

	t.Run("StartsPlaylistForStrategy", func(t *testing.T) {
		playlist, err := eng.Trigger(ctx, TriggerMessage{
			URL: "https://example.com", Strategy: "page-audit", IsBeta: false,
		})
		require.NoError(t, err)
		require.NotNil(t, playlist)
		assert.NotEmpty(t, playlist.Slug)
		assert.Equal(t, []string{"audit-fn"}, invoker.invoked())
	})

	t.Run("OtherModeDiscarded", func(t *testing.T) {
		playlist, err := eng.Trigger(ctx, TriggerMessage{
			Strategy: "page-audit", IsBeta: true,
		})
		require.NoError(t, err)
		assert.Nil(t, playlist)
	})

	t.Run("UnknownStrategy", func(t *testing.T) {
		_, err := eng.Trigger(ctx, TriggerMessage{Strategy: "missing", IsBeta: false})
		assert.True(t, errors.IsNotFound(err))
	})

	t.Run("MissingStrategy", func(t *testing.T) {
		_, err := eng.Trigger(ctx, TriggerMessage{IsBeta: false})
		assert.True(t, errors.IsValidation(err))
	})
}

func TestDispatchRetryBudget(t *testing.T) {
	store := newFakeStore()
	invoker := newFakeInvoker()
	eng, _ := newTestEngine(store, invoker, false)
	ctx := context.Background()

	audit := &models.Plugin{
		Name: "Audit", Key: "audit-key", Slug: "audit",
		Type: models.PluginTypeProvider, Handle: "audit-fn",
	}
	require.NoError(t, store.CreatePlugin(audit))
	strategy := &models.Strategy{
		Name: "Flaky", Slug: "flaky",
		Slots: []*models.Slot{{Plugin: audit, MinOutputs: 1, MaxRetries: 1}},
	}
	require.NoError(t, store.CreateStrategy(strategy))

	invoker.failFor["audit-fn"] = errors.DispatchError("invoke failed", nil)

	playlist, err := eng.Start(ctx, strategy, map[string]interface{}{"isBeta": false}, nil, nil)
	require.NoError(t, err)

	current, _ := store.GetPlaylist(playlist.ID)
	assert.Equal(t, models.PlaylistStatusFailed, current.Status)
	assert.Empty(t, invoker.invoked())
}

func TestOutputHooks(t *testing.T) {
	store := newFakeStore()
	invoker := newFakeInvoker()
	eng, _ := newTestEngine(store, invoker, false)
	strategy := seedStrategy(t, store)
	ctx := context.Background()

	var captured []string
	eng.RegisterOutputHook("audit", func(ctx context.Context, playlist *models.Playlist, handle string, output interface{}) error {
		captured = append(captured, handle)
		return nil
	})

	playlist, err := eng.Start(ctx, strategy, map[string]interface{}{"isBeta": false}, nil, nil)
	require.NoError(t, err)

	require.NoError(t, eng.Segue(ctx, SegueMessage{
		ID: playlist.ID, Key: "audit-key",
		Output: map[string]interface{}{"result": "A"},
	}))
	require.NoError(t, eng.Segue(ctx, SegueMessage{
		ID: playlist.ID, Key: "audit-key",
		Output: map[string]interface{}{"result": "B"},
	}))
	require.NoError(t, eng.Segue(ctx, SegueMessage{
		ID: playlist.ID, Key: "deliver-key",
		Output: map[string]interface{}{},
	}))

	// Hook fired once per audit completion, never for delivery.
	assert.Equal(t, []string{"audit-fn", "audit-fn"}, captured)
}

func TestEmptyStrategyCompletesImmediately(t *testing.T) {
	store := newFakeStore()
	invoker := newFakeInvoker()
	eng, _ := newTestEngine(store, invoker, false)
	ctx := context.Background()

	strategy := &models.Strategy{Name: "Empty", Slug: "empty"}
	require.NoError(t, store.CreateStrategy(strategy))

	playlist, err := eng.Start(ctx, strategy, map[string]interface{}{"isBeta": false}, nil, nil)
	require.NoError(t, err)

	current, _ := store.GetPlaylist(playlist.ID)
	assert.Equal(t, models.PlaylistStatusComplete, current.Status)
	assert.Nil(t, current.NextStep)
	assert.Empty(t, invoker.invoked())
}
