// Package logger provides a request-logger plugin that records each chat
// turn and its answer through the structured logger. Register it with a
// blank import:
//
//	_ "github.com/ferro-labs/assistme/internal/plugins/logger"
package logger

import (
	"context"
	"log/slog"

	"github.com/ferro-labs/assistme/internal/logging"
	"github.com/ferro-labs/assistme/plugin"
)

func init() {
	plugin.RegisterFactory("request-logger", func() plugin.Plugin {
		return &RequestLogger{}
	})
}

// RequestLogger is a logging plugin that emits structured log entries
// for every chat turn flowing through the assistant.
type RequestLogger struct {
	logLevel slog.Level
}

// Name returns the plugin identifier.
func (l *RequestLogger) Name() string { return "request-logger" }

// Type returns the plugin category.
func (l *RequestLogger) Type() plugin.PluginType { return plugin.TypeLogging }

// Init configures the plugin from the provided options map.
func (l *RequestLogger) Init(config map[string]interface{}) error {
	l.logLevel = slog.LevelInfo
	if level, ok := config["level"].(string); ok {
		switch level {
		case "debug":
			l.logLevel = slog.LevelDebug
		case "warn":
			l.logLevel = slog.LevelWarn
		case "error":
			l.logLevel = slog.LevelError
		}
	}
	return nil
}

// Execute logs the turn according to the stage it is in.
func (l *RequestLogger) Execute(ctx context.Context, pctx *plugin.Context) error {
	log := logging.FromContext(ctx)
	model := ""
	messages := 0
	if pctx.Request != nil {
		model = pctx.Request.Model
		messages = len(pctx.Request.Messages)
	}

	switch pctx.Stage() {
	case plugin.StageBeforeRequest:
		log.Log(ctx, l.logLevel, "chat request",
			"session_id", pctx.SessionID,
			"model", model,
			"messages", messages,
			"message_chars", len([]rune(pctx.Message)),
			"stream", pctx.Stream,
		)
	case plugin.StageAfterRequest:
		attrs := []any{
			"session_id", pctx.SessionID,
			"model", pctx.Response.Model,
			"provider", pctx.Response.Provider,
			"source", pctx.Source,
			"answer_chars", len([]rune(pctx.Response.Content)),
			"stream", pctx.Stream,
		}
		if u := pctx.Response.Usage; u != nil {
			attrs = append(attrs,
				"prompt_tokens", u.PromptTokens,
				"completion_tokens", u.CompletionTokens,
				"total_tokens", u.TotalTokens,
			)
		}
		log.Log(ctx, l.logLevel, "chat response", attrs...)
	case plugin.StageOnError:
		log.Log(ctx, slog.LevelError, "chat error",
			"session_id", pctx.SessionID,
			"model", model,
			"error", pctx.Error.Error(),
		)
	}
	return nil
}
