// Package plugin defines the Plugin interface and the lifecycle stages
// used to hook into a chat turn.
//
// Plugins are registered by name via RegisterFactory and loaded by the
// assistant at startup. The plugin.Context carries the provider request and
// response through each stage, and plugins may modify or reject a turn.
//
// Built-in plugins live in the internal/plugins/* packages and are registered
// by importing them with a blank import (e.g. _ "github.com/ferro-labs/assistme/internal/plugins/wordfilter").
package plugin

import (
	"context"

	"github.com/ferro-labs/assistme/providers"
)

// Plugin is the interface all plugins must implement.
type Plugin interface {
	Name() string
	Type() PluginType
	Init(config map[string]interface{}) error
	Execute(ctx context.Context, pctx *Context) error
}

// PluginType categorizes plugins.
//nolint:revive // keep for backwards compatibility
type PluginType string

// PluginType constants define the supported plugin categories.
const (
	TypeGuardrail PluginType = "guardrail"
	TypeLogging   PluginType = "logging"
	TypeTransform PluginType = "transform"
)

// Stage defines when a plugin runs in a chat turn.
type Stage string

// Stage constants define the execution phases around the provider call.
const (
	StageBeforeRequest Stage = "before_request"
	StageAfterRequest  Stage = "after_request"
	StageOnError       Stage = "on_error"
)

// Context provides access to turn data for plugins.
type Context struct {
	Request   *providers.Request
	Response  *providers.Response
	SessionID string
	// Message is the visitor's raw message before prompt construction.
	Message string
	Stream  bool
	// Source is the display name of the answering provider.
	Source   string
	Metadata map[string]interface{}
	Error    error
	Reject   bool
	Reason   string
}

// NewContext creates a new plugin context for a request.
func NewContext(req *providers.Request) *Context {
	return &Context{
		Request:  req,
		Metadata: make(map[string]interface{}),
	}
}

// Stage reports the stage the context is currently in, derived from which of
// Error and Response are set.
func (c *Context) Stage() Stage {
	switch {
	case c.Error != nil:
		return StageOnError
	case c.Response != nil:
		return StageAfterRequest
	default:
		return StageBeforeRequest
	}
}
