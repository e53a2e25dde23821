package models

import (
	"strings"
	"time"
)

// PluginType classifies a plugin by its role in a pipeline.
type PluginType string

const (
	PluginTypeTrigger    PluginType = "TRIGGER"
	PluginTypeProvider   PluginType = "PROVIDER"
	PluginTypeSource     PluginType = "SOURCE"
	PluginTypeProcessing PluginType = "PROCESSING"
	PluginTypeDelivery   PluginType = "DELIVERY"
)

// PassthroughMarker is the reserved substring in an invocation handle that
// marks a plugin as a no-op: it is never invoked externally and its slot
// metadata is merged straight into the pipeline context.
const PassthroughMarker = "NoOp"

// Plugin is an invokable unit of external work. The Handle is an opaque
// resource identifier understood by the worker infrastructure; the Key
// authenticates asynchronous completion callbacks and is never serialized.
type Plugin struct {
	ID        int64      `json:"id"`
	TeamID    int64      `json:"team_id"`
	Name      string     `json:"name"`
	Key       string     `json:"-"`
	Slug      string     `json:"slug"`
	Type      PluginType `json:"plugin_type"`
	Handle    string     `json:"handle"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// IsPassthrough reports whether the plugin performs no external call.
func (p *Plugin) IsPassthrough() bool {
	return strings.Contains(p.Handle, PassthroughMarker)
}
