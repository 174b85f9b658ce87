// Package maxtoken provides a max-token guardrail plugin that caps
// max_tokens on outgoing provider requests and bounds how much conversation
// a turn may carry. Register it with a blank import:
//
//	_ "github.com/ferro-labs/assistme/internal/plugins/maxtoken"
package maxtoken

import (
	"context"
	"fmt"

	"github.com/ferro-labs/assistme/plugin"
)

func init() {
	plugin.RegisterFactory("max-token", func() plugin.Plugin {
		return &MaxToken{}
	})
}

// MaxToken caps max_tokens and rejects turns with too many messages or too
// much input text.
type MaxToken struct {
	maxTokens   int
	maxMessages int
	maxInputLen int
}

// Name returns the plugin identifier.
func (m *MaxToken) Name() string { return "max-token" }

// Type returns the plugin category.
func (m *MaxToken) Type() plugin.PluginType { return plugin.TypeGuardrail }

func intOption(config map[string]interface{}, key string, def int) (int, error) {
	v, ok := config[key]
	if !ok {
		return def, nil
	}
	switch val := v.(type) {
	case float64:
		return int(val), nil
	case int:
		return val, nil
	default:
		return 0, fmt.Errorf("max-token: %s must be a number", key)
	}
}

// Init configures the plugin from the provided options map.
func (m *MaxToken) Init(config map[string]interface{}) error {
	var err error
	if m.maxTokens, err = intOption(config, "max_tokens", 2000); err != nil {
		return err
	}
	if m.maxMessages, err = intOption(config, "max_messages", 60); err != nil {
		return err
	}
	// 0 = no limit
	if m.maxInputLen, err = intOption(config, "max_input_length", 0); err != nil {
		return err
	}
	return nil
}

// Execute caps max_tokens in place and rejects oversized conversations.
func (m *MaxToken) Execute(_ context.Context, pctx *plugin.Context) error {
	if pctx.Request == nil {
		return nil
	}

	if m.maxTokens > 0 && pctx.Request.MaxTokens != nil && *pctx.Request.MaxTokens > m.maxTokens {
		capped := m.maxTokens
		pctx.Request.MaxTokens = &capped
		pctx.Metadata["max_tokens_capped"] = true
	}

	if m.maxMessages > 0 && len(pctx.Request.Messages) > m.maxMessages {
		pctx.Reject = true
		pctx.Reason = fmt.Sprintf("message count %d exceeds limit of %d", len(pctx.Request.Messages), m.maxMessages)
		return nil
	}

	if m.maxInputLen > 0 {
		totalLen := 0
		for _, msg := range pctx.Request.Messages {
			totalLen += len([]rune(msg.Content))
		}
		if totalLen > m.maxInputLen {
			pctx.Reject = true
			pctx.Reason = fmt.Sprintf("total input length %d exceeds limit of %d", totalLen, m.maxInputLen)
		}
	}
	return nil
}
