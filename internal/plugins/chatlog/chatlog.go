// Package chatlog provides the chat-log plugin, which persists one row per
// stage of every chat turn. Register it with a blank import:
//
//	_ "github.com/ferro-labs/assistme/internal/plugins/chatlog"
//
// The plugin writes either to a Writer handed over in its config under the
// "writer" key, or to a store it opens itself from the "dsn" key.
package chatlog

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	store "github.com/ferro-labs/assistme/internal/chatlog"
	"github.com/ferro-labs/assistme/internal/logging"
	"github.com/ferro-labs/assistme/plugin"
)

func init() {
	plugin.RegisterFactory("chat-log", func() plugin.Plugin {
		return &Plugin{}
	})
}

// Plugin writes chat log entries.
type Plugin struct {
	writer store.Writer
	owned  *store.SQLWriter
	now    func() time.Time
}

// Name returns the plugin identifier.
func (p *Plugin) Name() string { return "chat-log" }

// Type returns the plugin category.
func (p *Plugin) Type() plugin.PluginType { return plugin.TypeLogging }

// Init configures the destination.
func (p *Plugin) Init(config map[string]interface{}) error {
	p.now = time.Now
	if w, ok := config["writer"].(store.Writer); ok && w != nil {
		p.writer = w
		return nil
	}
	if dsn, ok := config["dsn"].(string); ok {
		w, err := store.Open(dsn)
		if err != nil {
			return fmt.Errorf("chat-log: %w", err)
		}
		p.writer = w
		p.owned = w
		return nil
	}
	p.writer = store.NoopWriter{}
	return nil
}

// Execute records the turn at its current stage.
func (p *Plugin) Execute(ctx context.Context, pctx *plugin.Context) error {
	traceID := logging.TraceIDFromContext(ctx)
	if traceID == "" {
		traceID = uuid.NewString()
	}
	entry := store.Entry{
		TraceID:     traceID,
		SessionID:   pctx.SessionID,
		Stage:       string(pctx.Stage()),
		Source:      pctx.Source,
		PromptChars: len([]rune(pctx.Message)),
		CreatedAt:   p.now().UTC(),
	}
	if pctx.Request != nil {
		entry.Model = pctx.Request.Model
	}
	if pctx.Response != nil {
		entry.Provider = pctx.Response.Provider
		entry.AnswerChars = len([]rune(pctx.Response.Content))
		if pctx.Response.Model != "" {
			entry.Model = pctx.Response.Model
		}
	}
	if pctx.Error != nil {
		entry.ErrorMessage = pctx.Error.Error()
	}
	if err := p.writer.Write(ctx, entry); err != nil {
		return fmt.Errorf("chat-log: %w", err)
	}
	return nil
}

// Close releases a store the plugin opened itself. A store handed over by
// the caller stays open.
func (p *Plugin) Close() error {
	if p.owned == nil {
		return nil
	}
	return p.owned.Close()
}
