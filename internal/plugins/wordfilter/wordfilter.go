// Package wordfilter provides a word-filter guardrail plugin that rejects
// chat turns whose visitor text contains blocked words. Register it with a
// blank import:
//
//	_ "github.com/ferro-labs/assistme/internal/plugins/wordfilter"
package wordfilter

import (
	"context"
	"strings"

	"github.com/ferro-labs/assistme/plugin"
	"github.com/ferro-labs/assistme/providers"
)

func init() {
	plugin.RegisterFactory("word-filter", func() plugin.Plugin {
		return &WordFilter{}
	})
}

// WordFilter is a guardrail plugin that blocks turns containing
// configurable blocked words or phrases. Only user-authored text is checked;
// the system prompt is ours and is never filtered.
type WordFilter struct {
	blockedWords  []string
	caseSensitive bool
}

// Name returns the plugin identifier.
func (w *WordFilter) Name() string { return "word-filter" }

// Type returns the plugin category.
func (w *WordFilter) Type() plugin.PluginType { return plugin.TypeGuardrail }

// Init configures the plugin from the provided options map.
func (w *WordFilter) Init(config map[string]interface{}) error {
	if words, ok := config["blocked_words"]; ok {
		switch list := words.(type) {
		case []interface{}:
			for _, word := range list {
				if s, ok := word.(string); ok && s != "" {
					w.blockedWords = append(w.blockedWords, s)
				}
			}
		case []string:
			w.blockedWords = append(w.blockedWords, list...)
		}
	}
	if cs, ok := config["case_sensitive"].(bool); ok {
		w.caseSensitive = cs
	}
	return nil
}

// Execute rejects the turn on the first blocked word found.
func (w *WordFilter) Execute(_ context.Context, pctx *plugin.Context) error {
	if len(w.blockedWords) == 0 {
		return nil
	}

	texts := []string{pctx.Message}
	if pctx.Request != nil {
		for _, msg := range pctx.Request.Messages {
			if msg.Role == providers.RoleUser {
				texts = append(texts, msg.Content)
			}
		}
	}

	for _, content := range texts {
		if !w.caseSensitive {
			content = strings.ToLower(content)
		}
		for _, word := range w.blockedWords {
			check := word
			if !w.caseSensitive {
				check = strings.ToLower(check)
			}
			if strings.Contains(content, check) {
				pctx.Reject = true
				pctx.Reason = "blocked word detected: " + word
				return nil
			}
		}
	}
	return nil
}
