package assistme

import (
	"context"
	"fmt"
	"time"

	"github.com/ferro-labs/assistme/internal/logging"
	"github.com/ferro-labs/assistme/internal/version"
	"github.com/ferro-labs/assistme/providers"
)

// ServiceName is reported by the health endpoint.
const ServiceName = "assistme-api"

// ModelList is the model picker payload.
type ModelList struct {
	Models  []providers.ModelInfo `json:"models"`
	Default string                `json:"default"`
	Current string                `json:"current"`
}

// Models lists the selectable models. Without registered providers the
// configured lists are returned so the picker still renders.
func (a *Assistant) Models() ModelList {
	models := a.registry.AllModels()
	if len(models) == 0 {
		for _, group := range []struct {
			provider string
			models   []providers.ModelInfo
		}{
			{"openrouter", a.cfg.OpenRouter.Models},
			{"gemini", a.cfg.Gemini.Models},
		} {
			for _, m := range group.models {
				if m.Provider == "" {
					m.Provider = group.provider
				}
				models = append(models, m)
			}
		}
	}
	if models == nil {
		models = []providers.ModelInfo{}
	}
	return ModelList{Models: models, Default: a.cfg.DefaultModel, Current: a.cfg.DefaultModel}
}

// Health is the health endpoint payload.
type Health struct {
	Status          string            `json:"status"`
	Timestamp       string            `json:"timestamp"`
	Service         string            `json:"service"`
	Version         string            `json:"version"`
	Build           string            `json:"build"`
	Features        map[string]bool   `json:"features"`
	Config          HealthConfig      `json:"config"`
	Providers       []string          `json:"providers"`
	CircuitBreakers map[string]string `json:"circuit_breakers,omitempty"`
}

// HealthConfig summarizes the running configuration.
type HealthConfig struct {
	APIKeyConfigured bool   `json:"api_key_configured"`
	ModelsAvailable  int    `json:"models_available"`
	DefaultModel     string `json:"default_model"`
	CacheSize        int    `json:"cache_size"`
	ActiveSessions   int    `json:"active_sessions"`
	RateLimit        string `json:"rate_limit"`
}

// Health reports liveness and a summary of the running state. A failing
// session backend degrades the status instead of failing the probe.
func (a *Assistant) Health(ctx context.Context) Health {
	status := "healthy"
	sessions, err := a.sessions.Len(ctx)
	if err != nil {
		logging.FromContext(ctx).Warn("session count failed", "error", err)
		status = "degraded"
	}
	return Health{
		Status:    status,
		Timestamp: a.now().UTC().Format(time.RFC3339),
		Service:   ServiceName,
		Version:   version.APIVersion,
		Build:     version.Short(),
		Features: map[string]bool{
			"streaming":           true,
			"conversation_memory": true,
			"rate_limiting":       true,
			"multi_model_support": true,
			"typing_indicators":   true,
			"github_proxy":        a.github != nil,
			"contact_form":        a.contact.Configured(),
		},
		Config: HealthConfig{
			APIKeyConfigured: a.registry.Len() > 0,
			ModelsAvailable:  len(a.Models().Models),
			DefaultModel:     a.cfg.DefaultModel,
			CacheSize:        a.responses.Len(),
			ActiveSessions:   sessions,
			RateLimit:        fmt.Sprintf("%d req/%ds", a.cfg.RateLimit.Requests, a.cfg.RateLimit.WindowSeconds),
		},
		Providers:       a.registry.Names(),
		CircuitBreakers: a.breakers.States(),
	}
}
