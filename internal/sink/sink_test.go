package sink

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pulse-engine/internal/models"
)

type recordingSink struct {
	slugs   []string
	handles []string
	outputs []interface{}
}

func (r *recordingSink) Record(ctx context.Context, playlistSlug, handle string, output interface{}) error {
	r.slugs = append(r.slugs, playlistSlug)
	r.handles = append(r.handles, handle)
	r.outputs = append(r.outputs, output)
	return nil
}

func TestHookDelegatesToSink(t *testing.T) {
	recorder := &recordingSink{}
	hook := Hook(recorder)

	playlist := &models.Playlist{Slug: "pl-123"}
	output := map[string]interface{}{"score": 98}
	require.NoError(t, hook(context.Background(), playlist, "measure-fn", output))

	assert.Equal(t, []string{"pl-123"}, recorder.slugs)
	assert.Equal(t, []string{"measure-fn"}, recorder.handles)
	assert.Equal(t, []interface{}{output}, recorder.outputs)
}

func TestLogSinkRecord(t *testing.T) {
	err := NewLogSink().Record(context.Background(), "pl-123", "measure-fn", "raw")
	assert.NoError(t, err)
}
