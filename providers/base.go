package providers

import "strings"

// Base carries the fields every provider implementation shares. Embed it to
// get Name, BaseURL and Models for free.
type Base struct {
	name    string
	apiKey  string
	baseURL string
	models  []ModelInfo
}

func newBase(name, apiKey, baseURL string, models []ModelInfo) Base {
	owned := make([]ModelInfo, len(models))
	for i, m := range models {
		if m.Provider == "" {
			m.Provider = name
		}
		if m.Name == "" {
			m.Name = m.ID
		}
		owned[i] = m
	}
	return Base{
		name:    name,
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		models:  owned,
	}
}

// Name returns the provider name.
func (b *Base) Name() string { return b.name }

// BaseURL returns the provider root URL without a trailing slash.
func (b *Base) BaseURL() string { return b.baseURL }

// Models returns the configured models served by this provider.
func (b *Base) Models() []ModelInfo {
	out := make([]ModelInfo, len(b.models))
	copy(out, b.models)
	return out
}
