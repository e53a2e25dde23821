package models

import (
	"strings"
	"time"
)

// PluginRef is the subset of a plugin embedded in slot snapshots.
type PluginRef struct {
	Handle string     `json:"handle"`
	Type   PluginType `json:"type"`
}

// IsPassthrough reports whether the referenced plugin performs no
// external call.
func (r PluginRef) IsPassthrough() bool {
	return strings.Contains(r.Handle, PassthroughMarker)
}

// SlotSnapshot is a slot frozen into a manifest at playlist creation time.
// DispatchedAt is stamped when the slot moves to the executed queue, so a
// watchdog can detect steps that never received a completion.
type SlotSnapshot struct {
	Plugin       PluginRef              `json:"plugin"`
	Order        int                    `json:"order"`
	MinOutputs   int                    `json:"min_outputs"`
	MaxRetries   int                    `json:"max_retries"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
	DispatchedAt *time.Time             `json:"dispatched_at,omitempty"`
}

// Manifest is the execution state of a playlist: the accumulated context,
// the not-yet-dispatched slot queue, and the append-only executed history.
//
// Manifest is a value type. Every operation returns a new Manifest and never
// mutates the receiver, so a caller can only persist state it was explicitly
// handed back. Slices and the context map are copied on write; snapshot
// elements are never modified in place.
type Manifest struct {
	Context  map[string]interface{} `json:"context"`
	Sequence []SlotSnapshot         `json:"sequence"`
	Executed []SlotSnapshot         `json:"executed_slots"`
}

// ContextKeyURL is where the SOURCE plugin's resolved output lives.
const ContextKeyURL = "url"

// ContextKeyOutput holds per-plugin output arrays, keyed by invocation handle.
const ContextKeyOutput = "output"

// ContextKeyBeta partitions playlists into beta and production populations.
const ContextKeyBeta = "isBeta"

// NewManifest builds a manifest from an initial context and an ordered slot
// queue. The context map is copied.
func NewManifest(context map[string]interface{}, sequence []SlotSnapshot) Manifest {
	ctx := make(map[string]interface{}, len(context))
	for k, v := range context {
		ctx[k] = v
	}
	return Manifest{
		Context:  ctx,
		Sequence: sequence,
		Executed: []SlotSnapshot{},
	}
}

// Dispatch pops the head of the pending queue and appends it, stamped with
// the dispatch time, to the executed history. The returned bool is false if
// the queue was empty.
func (m Manifest) Dispatch(now time.Time) (Manifest, SlotSnapshot, bool) {
	if len(m.Sequence) == 0 {
		return m, SlotSnapshot{}, false
	}

	current := m.Sequence[0]
	current.DispatchedAt = &now

	next := m
	next.Sequence = m.Sequence[1:]
	next.Executed = make([]SlotSnapshot, len(m.Executed), len(m.Executed)+1)
	copy(next.Executed, m.Executed)
	next.Executed = append(next.Executed, current)

	return next, current, true
}

// MergeContext overlays metadata onto the context, returning the new value.
// Used for passthrough plugins whose configuration becomes context directly.
func (m Manifest) MergeContext(metadata map[string]interface{}) Manifest {
	next := m
	next.Context = cloneContext(m.Context)
	for k, v := range metadata {
		next.Context[k] = v
	}
	return next
}

// SetURL replaces the context URL with the SOURCE plugin's output.
// Unlike other plugin types the source output is single-valued.
func (m Manifest) SetURL(output interface{}) Manifest {
	next := m
	next.Context = cloneContext(m.Context)
	next.Context[ContextKeyURL] = output
	return next
}

// AppendOutput appends a non-empty output payload to the plugin's output
// array, creating the array if absent. It returns the new manifest and the
// resulting array length, or the unchanged manifest and 0 when the payload
// was empty and nothing was appended.
func (m Manifest) AppendOutput(handle string, output interface{}) (Manifest, int) {
	if EmptyOutput(output) {
		return m, 0
	}

	next := m
	next.Context = cloneContext(m.Context)

	outputs := map[string]interface{}{}
	if existing, ok := next.Context[ContextKeyOutput].(map[string]interface{}); ok {
		for k, v := range existing {
			outputs[k] = v
		}
	}

	var entries []interface{}
	if existing, ok := outputs[handle].([]interface{}); ok {
		entries = make([]interface{}, len(existing), len(existing)+1)
		copy(entries, existing)
	}
	entries = append(entries, output)

	outputs[handle] = entries
	next.Context[ContextKeyOutput] = outputs

	return next, len(entries)
}

// Outputs returns the accumulated output array for a handle.
func (m Manifest) Outputs(handle string) []interface{} {
	outputs, ok := m.Context[ContextKeyOutput].(map[string]interface{})
	if !ok {
		return nil
	}
	entries, _ := outputs[handle].([]interface{})
	return entries
}

// ExecutedSlot finds the dispatched slot for an invocation handle. A slot is
// only findable after it has been dispatched.
func (m Manifest) ExecutedSlot(handle string) (SlotSnapshot, bool) {
	for i := len(m.Executed) - 1; i >= 0; i-- {
		if m.Executed[i].Plugin.Handle == handle {
			return m.Executed[i], true
		}
	}
	return SlotSnapshot{}, false
}

// CurrentStep returns the most recently dispatched slot.
func (m Manifest) CurrentStep() (SlotSnapshot, bool) {
	if len(m.Executed) == 0 {
		return SlotSnapshot{}, false
	}
	return m.Executed[len(m.Executed)-1], true
}

// NextHandle returns the invocation handle at the head of the pending queue,
// or nil if the queue is empty.
func (m Manifest) NextHandle() *string {
	if len(m.Sequence) == 0 {
		return nil
	}
	handle := m.Sequence[0].Plugin.Handle
	return &handle
}

// IsBeta reports whether the playlist belongs to the beta population.
func (m Manifest) IsBeta() bool {
	beta, _ := m.Context[ContextKeyBeta].(bool)
	return beta
}

// EmptyOutput reports whether a completion payload carries no result.
// Payloads are JSON objects or strings; an object with no keys or an empty
// string counts as empty.
func EmptyOutput(output interface{}) bool {
	switch v := output.(type) {
	case map[string]interface{}:
		return len(v) == 0
	case string:
		return v == ""
	case []interface{}:
		return len(v) == 0
	case nil:
		return true
	default:
		return true
	}
}

func cloneContext(ctx map[string]interface{}) map[string]interface{} {
	next := make(map[string]interface{}, len(ctx)+1)
	for k, v := range ctx {
		next[k] = v
	}
	return next
}
